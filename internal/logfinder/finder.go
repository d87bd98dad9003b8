// Package logfinder locates a game's log directory and its newest log file.
package logfinder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// EnvLogDir overrides the auto-detected log directory.
const EnvLogDir = "GAMEWATCH_LOGDIR"

// DefaultGlob matches any .log or .txt file.
const DefaultGlob = "*.[lt][ox][gt]"

// Sentinel errors.
var (
	ErrLogDirNotFound = errors.New("log directory not found")
	ErrNoLogFiles     = errors.New("no log files found")
)

// DefaultLogDirs expands game-relative directories against the per-user
// locations games usually write to: the OS config dir, LocalLow on Windows,
// and the home directory.
func DefaultLogDirs(rel ...string) []string {
	var roots []string
	if cfg, err := os.UserConfigDir(); err == nil {
		roots = append(roots, cfg)
	}
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		roots = append(roots, filepath.Join(filepath.Dir(local), "LocalLow"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, home)
	}

	dirs := make([]string, 0, len(roots)*len(rel))
	for _, r := range rel {
		for _, root := range roots {
			dirs = append(dirs, filepath.Join(root, r))
		}
	}
	return dirs
}

// FindLogDir returns the first directory containing files matching glob.
//
// Priority:
//  1. explicit (if non-empty)
//  2. GAMEWATCH_LOGDIR environment variable
//  3. candidates, in order
//
// The returned path has symlinks resolved.
func FindLogDir(explicit, glob string, candidates ...string) (string, error) {
	if glob == "" {
		glob = DefaultGlob
	}

	if explicit != "" {
		if resolved := resolveAndValidateLogDir(explicit, glob); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s is not a directory or has no %s files", ErrLogDirNotFound, explicit, glob)
	}

	if envDir := os.Getenv(EnvLogDir); envDir != "" {
		if resolved := resolveAndValidateLogDir(envDir, glob); resolved != "" {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s points to an invalid directory", ErrLogDirNotFound, EnvLogDir)
	}

	for _, dir := range candidates {
		if resolved := resolveAndValidateLogDir(dir, glob); resolved != "" {
			return resolved, nil
		}
	}

	return "", ErrLogDirNotFound
}

// logCandidate caches the mtime so files deleted mid-sort cannot reorder results.
type logCandidate struct {
	path    string
	modTime int64
}

// FindLatestLogFile returns the most recently modified regular file in dir
// matching glob.
func FindLatestLogFile(dir, glob string) (string, error) {
	if glob == "" {
		glob = DefaultGlob
	}
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return "", fmt.Errorf("globbing log files: %w", err)
	}

	candidates := make([]logCandidate, 0, len(matches))
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, logCandidate{
			path:    m,
			modTime: info.ModTime().UnixNano(),
		})
	}

	if len(candidates) == 0 {
		return "", fmt.Errorf("%w in %s matching %s", ErrNoLogFiles, dir, glob)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime == candidates[j].modTime {
			return candidates[i].path > candidates[j].path
		}
		return candidates[i].modTime > candidates[j].modTime
	})

	return candidates[0].path, nil
}

// resolveAndValidateLogDir returns the symlink-resolved dir, or "" when it
// is not a directory or holds no matching files.
func resolveAndValidateLogDir(dir, glob string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return ""
	}

	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return ""
	}

	matches, err := filepath.Glob(filepath.Join(resolved, glob))
	if err != nil || len(matches) == 0 {
		return ""
	}

	return resolved
}
