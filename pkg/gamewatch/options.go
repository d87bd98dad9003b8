package gamewatch

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// Option configures a Watcher using the functional options pattern.
type Option func(*watchConfig)

type watchConfig struct {
	logFile         string
	logDir          string
	logGlob         string
	pollInterval    time.Duration
	waitForCreation bool
	fromStart       bool
	offset          int64
	loopOnReplace   bool
	poll            bool
	batch           bool
	threshold       time.Time
	timeChecks      bool
	filter          *compiledFilter
	parser          Parser
	logger          *slog.Logger
}

func defaultWatchConfig() *watchConfig {
	return &watchConfig{
		pollInterval:  250 * time.Millisecond,
		loopOnReplace: true,
		timeChecks:    true,
	}
}

func applyWatchOptions(opts []Option) *watchConfig {
	cfg := defaultWatchConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

func (c *watchConfig) validate() error {
	if c.parser == nil {
		return fmt.Errorf("a parser is required")
	}
	if c.logFile == "" && c.logDir == "" && c.logGlob == "" {
		return fmt.Errorf("either a log file or a log directory/glob is required")
	}
	if c.logFile != "" && c.logDir != "" {
		return fmt.Errorf("log file and log directory are mutually exclusive")
	}
	if c.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.pollInterval)
	}
	if c.offset < 0 {
		return fmt.Errorf("seek offset must be non-negative, got %d", c.offset)
	}
	if c.fromStart && c.offset > 0 {
		return fmt.Errorf("replay from start and seek offset are mutually exclusive")
	}
	return nil
}

// WithLogFile watches path directly.
func WithLogFile(path string) Option {
	return func(c *watchConfig) {
		c.logFile = path
	}
}

// WithLogDir watches the newest file in dir matching the log glob.
// Falls back to the GAMEWATCH_LOGDIR environment variable when dir is empty.
func WithLogDir(dir string) Option {
	return func(c *watchConfig) {
		c.logDir = dir
	}
}

// WithLogGlob sets the file name pattern used with WithLogDir.
func WithLogGlob(glob string) Option {
	return func(c *watchConfig) {
		c.logGlob = glob
	}
}

// WithParser sets the line parser. Nil is ignored.
func WithParser(p Parser) Option {
	return func(c *watchConfig) {
		if p != nil {
			c.parser = p
		}
	}
}

// WithParsers combines parsers in ChainAll mode.
func WithParsers(parsers ...Parser) Option {
	return func(c *watchConfig) {
		if len(parsers) > 0 {
			c.parser = &ParserChain{Mode: ChainAll, Parsers: parsers}
		}
	}
}

// WithPollInterval sets the batch flush interval. Default: 250ms.
func WithPollInterval(d time.Duration) Option {
	return func(c *watchConfig) {
		c.pollInterval = d
	}
}

// WithWaitForCreation makes Start wait for a missing log file instead of failing.
func WithWaitForCreation(wait bool) Option {
	return func(c *watchConfig) {
		c.waitForCreation = wait
	}
}

// WithReplayFromStart reads the existing content of the file.
// Combine with WithTimeChecks(false) or an early WithTimeThreshold, otherwise
// the replayed events are older than the threshold and dropped.
func WithReplayFromStart() Option {
	return func(c *watchConfig) {
		c.fromStart = true
	}
}

// WithSeekOffset starts reading at a byte offset.
func WithSeekOffset(offset int64) Option {
	return func(c *watchConfig) {
		c.offset = offset
	}
}

// WithLoopOnReplace reopens the file when it is truncated or recreated.
// Default: true.
func WithLoopOnReplace(loop bool) Option {
	return func(c *watchConfig) {
		c.loopOnReplace = loop
	}
}

// WithPolling stats the file instead of relying on filesystem notifications.
func WithPolling(poll bool) Option {
	return func(c *watchConfig) {
		c.poll = poll
	}
}

// WithBatch coalesces the lines of one poll interval before parsing.
func WithBatch(batch bool) Option {
	return func(c *watchConfig) {
		c.batch = batch
	}
}

// WithThreshold drops events stamped before t. Default: the time Start is called.
func WithThreshold(t time.Time) Option {
	return func(c *watchConfig) {
		c.threshold = t
	}
}

// WithTimeGate enables or disables the bus time gate. Default: enabled.
func WithTimeGate(enabled bool) Option {
	return func(c *watchConfig) {
		c.timeChecks = enabled
	}
}

// WithIncludeKinds forwards only the given kinds.
func WithIncludeKinds(kinds ...event.Kind) Option {
	return func(c *watchConfig) {
		if c.filter == nil {
			c.filter = &compiledFilter{}
		}
		c.filter.include = kindSet(kinds)
	}
}

// WithExcludeKinds drops the given kinds. Exclude takes precedence over include.
func WithExcludeKinds(kinds ...event.Kind) Option {
	return func(c *watchConfig) {
		if c.filter == nil {
			c.filter = &compiledFilter{}
		}
		c.filter.exclude = kindSet(kinds)
	}
}

// WithLogger sets the logger. Nil disables logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *watchConfig) {
		c.logger = l
	}
}

// ParseOption configures ParseFile.
type ParseOption func(*parseConfig)

type parseConfig struct {
	filter      *compiledFilter
	since       time.Time
	until       time.Time
	stopOnError bool
	logger      *slog.Logger
}

func applyParseOptions(opts []ParseOption) *parseConfig {
	cfg := &parseConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger
	}
	return cfg
}

// WithParseFilter sets include and exclude kinds.
func WithParseFilter(include, exclude []event.Kind) ParseOption {
	return func(c *parseConfig) {
		c.filter = newCompiledFilter(include, exclude)
	}
}

// WithParseTimeRange keeps events in [since, until). Zero bounds are open.
func WithParseTimeRange(since, until time.Time) ParseOption {
	return func(c *parseConfig) {
		c.since = since
		c.until = until
	}
}

// WithParseStopOnError returns the first parse error instead of skipping the line.
func WithParseStopOnError(stop bool) ParseOption {
	return func(c *parseConfig) {
		c.stopOnError = stop
	}
}

// WithParseLogger sets the logger used for skipped lines.
func WithParseLogger(l *slog.Logger) ParseOption {
	return func(c *parseConfig) {
		c.logger = l
	}
}
