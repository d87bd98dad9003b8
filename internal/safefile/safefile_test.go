package safefile

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRegular_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gamestate.cfg")
	require.NoError(t, os.WriteFile(path, []byte("uri 127.0.0.1"), 0o644))

	f, info, err := OpenRegular(path)
	require.NoError(t, err)
	defer f.Close()

	assert.True(t, info.Mode().IsRegular())
	buf := make([]byte, 32)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "uri 127.0.0.1", string(buf[:n]))
}

func TestOpenRegular_FileNotExist(t *testing.T) {
	_, _, err := OpenRegular(filepath.Join(t.TempDir(), "missing.cfg"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestOpenRegular_RejectsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test requires Unix")
	}

	dir := t.TempDir()
	target := filepath.Join(dir, "target.cfg")
	link := filepath.Join(dir, "link.cfg")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, os.Symlink(target, link))

	_, _, err := OpenRegular(link)
	assert.ErrorIs(t, err, ErrNotRegularFile)
}

func TestOpenRegular_RejectsDirectory(t *testing.T) {
	_, _, err := OpenRegular(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRegularFile)
}

func TestReadRegular(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.wasm")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o644))

	tests := []struct {
		name    string
		max     int64
		want    string
		wantErr error
	}{
		{name: "no limit", max: 0, want: "0123456789"},
		{name: "exact limit", max: 10, want: "0123456789"},
		{name: "over limit", max: 9, wantErr: ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ReadRegular(path, tt.max)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}
}

func TestReadRegular_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.cfg")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	data, err := ReadRegular(path, 1024)
	require.NoError(t, err)
	assert.Empty(t, data)
}
