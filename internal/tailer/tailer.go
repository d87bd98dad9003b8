// Package tailer follows a single log file and hands newly appended lines to
// a callback on a dedicated goroutine.
package tailer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nxadm/tail"
)

// DefaultPollInterval is the batch flush interval used when none is set.
const DefaultPollInterval = 250 * time.Millisecond

// LogLinesDelta holds the lines observed since the previous delivery, in file
// order. Lines are not deduplicated.
type LogLinesDelta []string

// Config describes how a file is watched.
type Config struct {
	// WaitForCreation blocks until the file appears instead of failing Open.
	WaitForCreation bool

	// FromStart reads existing content instead of seeking to the end.
	FromStart bool

	// Offset seeks to this byte offset from the start. Ignored when FromStart is set.
	Offset int64

	// PollInterval is the batch flush interval.
	PollInterval time.Duration

	// LoopOnReplace follows the path rather than the descriptor (tail -F):
	// a truncated, deleted or recreated file is reopened from its start.
	LoopOnReplace bool

	// Poll stats the file instead of using filesystem notifications.
	Poll bool

	// Batch coalesces the lines seen during one PollInterval into one delta.
	// Otherwise every line is delivered on its own.
	Batch bool

	// Once reads to the current end of file and stops.
	Once bool
}

// Tailer delivers appended lines of one file to a callback.
type Tailer struct {
	path    string
	cfg     Config
	onDelta func(LogLinesDelta)
	logger  *slog.Logger

	t      *tail.Tail
	ctx    context.Context
	cancel context.CancelFunc
	doneCh chan struct{}

	pending LogLinesDelta

	mu      sync.Mutex
	stopped bool
}

// Open starts tailing path. onDelta runs on the tailer's goroutine and must
// return quickly; a slow callback stalls reading.
//
// Without WaitForCreation a missing file is an error.
func Open(ctx context.Context, path string, onDelta func(LogLinesDelta), cfg Config, logger *slog.Logger) (*Tailer, error) {
	if onDelta == nil {
		return nil, errors.New("tailer: nil delta callback")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	location := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	switch {
	case cfg.FromStart:
		location = &tail.SeekInfo{Offset: 0, Whence: io.SeekStart}
	case cfg.Offset > 0:
		location = &tail.SeekInfo{Offset: cfg.Offset, Whence: io.SeekStart}
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    !cfg.Once,
		ReOpen:    cfg.LoopOnReplace && !cfg.Once,
		Poll:      cfg.Poll,
		MustExist: !cfg.WaitForCreation,
		Location:  location,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening tail: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	tl := &Tailer{
		path:    path,
		cfg:     cfg,
		onDelta: onDelta,
		logger:  logger.With("path", path),
		t:       t,
		ctx:     ctx,
		cancel:  cancel,
		doneCh:  make(chan struct{}),
	}

	go tl.run()

	return tl, nil
}

// Path returns the tailed path.
func (t *Tailer) Path() string {
	return t.path
}

// Stop signals the worker and blocks until it has exited.
// Safe to call multiple times.
func (t *Tailer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		<-t.doneCh
		return
	}
	t.stopped = true
	t.mu.Unlock()

	t.cancel()
	<-t.doneCh
}

// Wait blocks until the worker exits, either through Stop, context
// cancellation, or end of file in Once mode.
func (t *Tailer) Wait() {
	<-t.doneCh
}

// Done is closed when the worker has exited.
func (t *Tailer) Done() <-chan struct{} {
	return t.doneCh
}

func (t *Tailer) run() {
	defer close(t.doneCh)
	defer func() {
		if err := t.t.Stop(); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Debug("tail stopped with error", "error", err)
		}
	}()

	var tick <-chan time.Time
	if t.cfg.Batch {
		ticker := time.NewTicker(t.cfg.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-t.ctx.Done():
			t.flush()
			return
		case <-tick:
			t.flush()
		case line, ok := <-t.t.Lines:
			if !ok {
				t.flush()
				return
			}
			if line.Err != nil {
				t.logger.Warn("tail read error", "error", line.Err)
				continue
			}
			text := strings.TrimSuffix(line.Text, "\r")
			if t.cfg.Batch {
				t.pending = append(t.pending, text)
				continue
			}
			t.deliver(LogLinesDelta{text})
		}
	}
}

func (t *Tailer) flush() {
	if len(t.pending) == 0 {
		return
	}
	delta := t.pending
	t.pending = nil
	t.deliver(delta)
}

func (t *Tailer) deliver(delta LogLinesDelta) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("delta callback panicked", "panic", r, "lines", len(delta))
		}
	}()
	t.onDelta(delta)
}
