package gamewatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gamewatch/gamewatch-go/internal/logfinder"
	"github.com/gamewatch/gamewatch-go/internal/tailer"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// rotationInterval is how often a directory watcher looks for a newer log file.
const rotationInterval = 2 * time.Second

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Watcher tails one game log, parses each line and publishes the resulting
// events on its EventBus.
type Watcher struct {
	cfg    watchConfig
	path   string
	logDir string
	bus    *EventBus
	log    *slog.Logger

	mu       sync.Mutex
	closed   bool
	watching bool
	ctx      context.Context
	cancel   context.CancelFunc
	doneCh   chan struct{}
}

// NewWatcher validates the options and resolves the log file.
// It does not start any goroutine.
func NewWatcher(opts ...Option) (*Watcher, error) {
	cfg := applyWatchOptions(opts)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	log := cfg.logger
	if log == nil {
		log = discardLogger
	}

	w := &Watcher{
		cfg: *cfg,
		log: log,
		bus: NewEventBus(
			WithTimeThreshold(cfg.threshold),
			WithTimeChecks(cfg.timeChecks),
			WithBusLogger(log),
		),
	}

	if cfg.logFile != "" {
		if !cfg.waitForCreation {
			if _, err := os.Stat(cfg.logFile); err != nil {
				return nil, &WatchError{Op: WatchOpTail, Path: cfg.logFile, Err: err}
			}
		}
		w.path = cfg.logFile
		return w, nil
	}

	dir, err := logfinder.FindLogDir(cfg.logDir, cfg.logGlob)
	if err != nil {
		return nil, &WatchError{Op: WatchOpFindDir, Path: cfg.logDir, Err: err}
	}
	path, err := logfinder.FindLatestLogFile(dir, cfg.logGlob)
	if err != nil {
		return nil, &WatchError{Op: WatchOpFindLatest, Path: dir, Err: err}
	}
	w.logDir = dir
	w.path = path
	return w, nil
}

// Path returns the file being watched.
func (w *Watcher) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Bus returns the watcher's event bus.
func (w *Watcher) Bus() *EventBus {
	return w.bus
}

// NotifyOnEvent registers h for kind. Handlers run on the tailer goroutine.
func (w *Watcher) NotifyOnEvent(kind event.Kind, h Handler) {
	w.bus.NotifyOnEvent(kind, h)
}

// NotifyOnAny registers h for every kind.
func (w *Watcher) NotifyOnAny(h Handler) {
	w.bus.NotifyOnAny(h)
}

// Start begins tailing. Unless a threshold was configured, events stamped
// before this call are dropped.
//
// Start may be called once. It returns ErrWatcherClosed after Stop and
// ErrAlreadyWatching on a second call.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.watching {
		return ErrAlreadyWatching
	}

	if w.cfg.threshold.IsZero() {
		w.bus.SetTimeThreshold(time.Now())
	}

	ctx, cancel := context.WithCancel(ctx)
	w.ctx = ctx

	t, err := w.openTailer(ctx, w.path, w.cfg.fromStart)
	if err != nil {
		cancel()
		return err
	}

	w.watching = true
	w.cancel = cancel
	w.doneCh = make(chan struct{})
	w.log.Debug("started watching", "path", w.path, "from_start", w.cfg.fromStart)

	go w.run(ctx, t)
	return nil
}

// Stop stops tailing and blocks until the tailer goroutine has exited.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	doneCh := w.doneCh
	w.mu.Unlock()

	if doneCh != nil {
		<-doneCh
	}
	return nil
}

// Wait blocks until the watcher stops, through Stop or cancellation of the
// context passed to Start. It returns immediately if Start was never called.
func (w *Watcher) Wait() {
	w.mu.Lock()
	doneCh := w.doneCh
	w.mu.Unlock()
	if doneCh != nil {
		<-doneCh
	}
}

func (w *Watcher) openTailer(ctx context.Context, path string, fromStart bool) (*tailer.Tailer, error) {
	cfg := tailer.Config{
		WaitForCreation: w.cfg.waitForCreation,
		FromStart:       fromStart,
		PollInterval:    w.cfg.pollInterval,
		LoopOnReplace:   w.cfg.loopOnReplace,
		Poll:            w.cfg.poll,
		Batch:           w.cfg.batch,
	}
	if !fromStart {
		cfg.Offset = w.cfg.offset
	}
	t, err := tailer.Open(ctx, path, w.handleDelta, cfg, w.log)
	if err != nil {
		return nil, &WatchError{Op: WatchOpTail, Path: path, Err: err}
	}
	return t, nil
}

func (w *Watcher) run(ctx context.Context, t *tailer.Tailer) {
	defer close(w.doneCh)

	var tick <-chan time.Time
	if w.logDir != "" {
		ticker := time.NewTicker(rotationInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	current := t.Path()
	for {
		var done <-chan struct{}
		if t != nil {
			done = t.Done()
		}

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return
		case <-done:
			return
		case <-tick:
			newest, err := logfinder.FindLatestLogFile(w.logDir, w.cfg.logGlob)
			if err != nil {
				w.log.Warn("checking for log rotation", "dir", w.logDir, "error", err)
				continue
			}
			if newest == current && t != nil {
				continue
			}
			w.log.Info("log rotation detected", "from", current, "to", newest)
			if t != nil {
				t.Stop()
				t = nil
			}
			nt, err := w.openTailer(ctx, newest, true)
			if err != nil {
				w.log.Warn("opening rotated log", "error", err)
				continue
			}
			t = nt
			current = newest
			w.mu.Lock()
			w.path = newest
			w.mu.Unlock()
		}
	}
}

func (w *Watcher) handleDelta(delta tailer.LogLinesDelta) {
	for _, line := range delta {
		w.processLine(line)
	}
}

func (w *Watcher) processLine(line string) {
	result, err := safeParse(w.ctx, w.cfg.parser, line)

	// Events are published even when err != nil so ChainContinueOnError
	// keeps the output of the parsers that succeeded.
	for _, ev := range result.Events {
		if !w.cfg.filter.Allows(ev.Kind) {
			continue
		}
		w.bus.Publish(ev)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		w.log.Warn("skipping malformed line", "error", &ParseError{Line: line, Err: err})
	}
}

// safeParse turns a parser panic into an error.
func safeParse(ctx context.Context, p Parser, line string) (result ParseResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ParseResult{}
			err = fmt.Errorf("parser panicked: %v", r)
		}
	}()
	return p.ParseLine(ctx, line)
}
