package gamewatch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

func (r *recorder) count() int {
	return len(r.snapshot())
}

func taskParser(t *testing.T) gamewatch.Parser {
	t.Helper()
	p, err := gamewatch.NewBuiltinParser("tasklog", gamewatch.BuiltinOptions{})
	require.NoError(t, err)
	return p
}

func taskLine(ts time.Time, verb, name string) string {
	return fmt.Sprintf("%s [Task] %s: %s", ts.Format("2006-01-02 15:04:05.000"), verb, name)
}

func appendTo(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer f.Close()
	for _, l := range lines {
		_, err := fmt.Fprintln(f, l)
		require.NoError(t, err)
	}
	require.NoError(t, f.Sync())
}

func TestNewWatcher_Validation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	tests := []struct {
		name string
		opts []gamewatch.Option
	}{
		{"no parser", []gamewatch.Option{gamewatch.WithLogFile(path)}},
		{"no source", []gamewatch.Option{gamewatch.WithParser(taskParser(t))}},
		{"file and dir", []gamewatch.Option{gamewatch.WithParser(taskParser(t)), gamewatch.WithLogFile(path), gamewatch.WithLogDir(dir)}},
		{"bad poll interval", []gamewatch.Option{gamewatch.WithParser(taskParser(t)), gamewatch.WithLogFile(path), gamewatch.WithPollInterval(0)}},
		{"negative offset", []gamewatch.Option{gamewatch.WithParser(taskParser(t)), gamewatch.WithLogFile(path), gamewatch.WithSeekOffset(-1)}},
		{"start and offset", []gamewatch.Option{gamewatch.WithParser(taskParser(t)), gamewatch.WithLogFile(path), gamewatch.WithSeekOffset(3), gamewatch.WithReplayFromStart()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gamewatch.NewWatcher(tt.opts...)
			assert.ErrorContains(t, err, "invalid options")
		})
	}
}

func TestNewWatcher_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")

	_, err := gamewatch.NewWatcher(gamewatch.WithParser(taskParser(t)), gamewatch.WithLogFile(path))
	var werr *gamewatch.WatchError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, gamewatch.WatchOpTail, werr.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)

	w, err := gamewatch.NewWatcher(gamewatch.WithParser(taskParser(t)), gamewatch.WithLogFile(path), gamewatch.WithWaitForCreation(true))
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())
}

func TestNewWatcher_LogDirNotFound(t *testing.T) {
	_, err := gamewatch.NewWatcher(
		gamewatch.WithParser(taskParser(t)),
		gamewatch.WithLogDir(filepath.Join(t.TempDir(), "nope")),
		gamewatch.WithLogGlob("*.log"),
	)
	assert.ErrorIs(t, err, gamewatch.ErrLogDirNotFound)
}

func TestWatcher_StartLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := gamewatch.NewWatcher(gamewatch.WithParser(taskParser(t)), gamewatch.WithLogFile(path), gamewatch.WithPolling(true))
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.ErrorIs(t, w.Start(context.Background()), gamewatch.ErrAlreadyWatching)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.ErrorIs(t, w.Start(context.Background()), gamewatch.ErrWatcherClosed)
	w.Wait()
}

func TestWatcher_WaitWithoutStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	w, err := gamewatch.NewWatcher(gamewatch.WithParser(taskParser(t)), gamewatch.WithLogFile(path))
	require.NoError(t, err)
	w.Wait()
}

func TestWatcher_DeliversNewEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.log")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	w, err := gamewatch.NewWatcher(
		gamewatch.WithParser(taskParser(t)),
		gamewatch.WithLogFile(path),
		gamewatch.WithPolling(true),
	)
	require.NoError(t, err)

	rec := &recorder{}
	w.NotifyOnEvent(event.KindTaskStart, rec.handle)
	w.NotifyOnEvent(event.KindTaskFinish, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()
	time.Sleep(200 * time.Millisecond)

	now := time.Now()
	appendTo(t, path,
		taskLine(now.Add(-48*time.Hour), "Started", "Stale task"),
		"2024-01-15 21:04:05 [Task] Teleported: Nowhere",
		taskLine(now.Add(time.Second), "Started", "Fishing (id=7)"),
		"unrelated chatter",
		taskLine(now.Add(2*time.Second), "Completed", "Fishing (id=7)"),
	)

	require.Eventually(t, func() bool { return rec.count() == 2 }, 5*time.Second, 20*time.Millisecond)
	events := rec.snapshot()
	assert.Equal(t, event.KindTaskStart, events[0].Kind)
	assert.Equal(t, event.KindTaskFinish, events[1].Kind)
	finish := events[1].Payload.(event.Task)
	assert.Equal(t, "7", finish.ID)
	assert.Equal(t, time.Second, finish.Duration)

	cancel()
	w.Wait()
}

func TestWatcher_ReplayAndFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.log")
	old := time.Date(2024, 1, 15, 21, 0, 0, 0, time.Local)
	appendTo(t, path,
		taskLine(old, "Started", "A"),
		taskLine(old.Add(time.Minute), "Completed", "A"),
	)

	w, err := gamewatch.NewWatcher(
		gamewatch.WithParser(taskParser(t)),
		gamewatch.WithLogFile(path),
		gamewatch.WithReplayFromStart(),
		gamewatch.WithTimeGate(false),
		gamewatch.WithExcludeKinds(event.KindTaskStart),
		gamewatch.WithPolling(true),
		gamewatch.WithBatch(true),
		gamewatch.WithPollInterval(50*time.Millisecond),
	)
	require.NoError(t, err)

	rec := &recorder{}
	w.NotifyOnAny(rec.handle)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	events := rec.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, event.KindTaskFinish, events[0].Kind)
}

func TestWatcher_ThresholdOption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.log")
	base := time.Date(2024, 1, 15, 21, 0, 0, 0, time.Local)
	appendTo(t, path,
		taskLine(base, "Started", "before"),
		taskLine(base.Add(time.Hour), "Started", "after"),
	)

	w, err := gamewatch.NewWatcher(
		gamewatch.WithParser(taskParser(t)),
		gamewatch.WithLogFile(path),
		gamewatch.WithReplayFromStart(),
		gamewatch.WithThreshold(base.Add(time.Minute)),
		gamewatch.WithPolling(true),
	)
	require.NoError(t, err)

	rec := &recorder{}
	w.NotifyOnAny(rec.handle)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "after", rec.snapshot()[0].Payload.(event.Task).Name)
}

func TestWatcher_ParserPanicIsContained(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	appendTo(t, path, "panic", "ok")

	p := gamewatch.ParserFunc(func(ctx context.Context, line string) (gamewatch.ParseResult, error) {
		if line == "panic" {
			panic("parser bug")
		}
		return gamewatch.ParseResult{Matched: true, Events: []event.Event{custom(line)}}, nil
	})
	w, err := gamewatch.NewWatcher(
		gamewatch.WithParser(p),
		gamewatch.WithLogFile(path),
		gamewatch.WithReplayFromStart(),
		gamewatch.WithTimeGate(false),
		gamewatch.WithPolling(true),
	)
	require.NoError(t, err)
	rec := &recorder{}
	w.NotifyOnAny(rec.handle)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcher_LogRotation(t *testing.T) {
	if testing.Short() {
		t.Skip("rotation check runs on a 2s ticker")
	}
	dir := t.TempDir()
	first := filepath.Join(dir, "client_1.log")
	appendTo(t, first, "x")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(first, old, old))

	w, err := gamewatch.NewWatcher(
		gamewatch.WithParser(taskParser(t)),
		gamewatch.WithLogDir(dir),
		gamewatch.WithLogGlob("client_*.log"),
		gamewatch.WithPolling(true),
	)
	require.NoError(t, err)
	assert.Equal(t, first, filepath.Join(dir, filepath.Base(w.Path())))

	rec := &recorder{}
	w.NotifyOnAny(rec.handle)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	second := filepath.Join(dir, "client_2.log")
	appendTo(t, second, taskLine(time.Now().Add(time.Second), "Started", "Rotated"))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 8*time.Second, 50*time.Millisecond)
	assert.Equal(t, "client_2.log", filepath.Base(w.Path()))
}
