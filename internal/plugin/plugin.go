package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/gamewatch/gamewatch-go/internal/safefile"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch"
	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

const (
	// ABIVersion is the plugin ABI this host implements.
	ABIVersion = 1

	// DefaultTimeout bounds one parse_line call.
	DefaultTimeout = 50 * time.Millisecond

	// MaxModuleSize bounds the .wasm file.
	MaxModuleSize = 10 << 20

	// MaxInputSize bounds the JSON written into the plugin.
	MaxInputSize = 64 << 10

	// MaxOutputSize bounds the JSON read back from the plugin.
	MaxOutputSize = 1 << 20
)

var requiredExports = []string{"abi_version", "alloc", "free", "parse_line"}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Plugin is a gamewatch.Parser backed by a compiled WebAssembly module.
// Each ParseLine call runs in a fresh module instance, so a Plugin is safe for
// concurrent use and plugin state never carries over between lines.
type Plugin struct {
	name string

	mu       sync.RWMutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache

	host    *host
	timeout time.Duration
	log     *slog.Logger
	seq     atomic.Uint64
}

type config struct {
	logger   *slog.Logger
	timeout  time.Duration
	cacheDir string
	noCache  bool
	now      func() time.Time
}

// Option configures Load.
type Option func(*config)

// WithLogger receives plugin log output and host warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithCacheDir stores compiled modules in dir.
// Default: <user cache dir>/gamewatch/wasm.
func WithCacheDir(dir string) Option {
	return func(c *config) { c.cacheDir = dir }
}

// WithoutCompilationCache compiles in memory only.
func WithoutCompilationCache() Option {
	return func(c *config) { c.noCache = true }
}

// WithClock stamps events that carry no time, and backs now_ms.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// Load reads, compiles and validates the module at path.
func Load(ctx context.Context, path string, opts ...Option) (*Plugin, error) {
	cfg := config{logger: discardLogger, timeout: DefaultTimeout, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger
	}
	if cfg.timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", cfg.timeout)
	}

	code, err := safefile.ReadRegular(path, MaxModuleSize)
	switch {
	case errors.Is(err, safefile.ErrTooLarge):
		return nil, fmt.Errorf("wasm file: %w (max %d bytes)", ErrTooLarge, MaxModuleSize)
	case err != nil:
		return nil, fmt.Errorf("reading wasm file: %w", err)
	}

	p := &Plugin{
		name:    filepath.Base(path),
		host:    newHost(cfg.logger),
		timeout: cfg.timeout,
		log:     cfg.logger.With("plugin", filepath.Base(path)),
	}
	p.host.now = cfg.now
	p.host.log = p.log

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if !cfg.noCache {
		if cache, err := newCompilationCache(cfg.cacheDir); err != nil {
			p.log.Warn("compilation cache unavailable", "error", err)
		} else {
			p.cache = cache
			rtConfig = rtConfig.WithCompilationCache(cache)
		}
	}
	p.runtime = wazero.NewRuntimeWithConfig(ctx, rtConfig)

	if err := p.setup(ctx, code); err != nil {
		p.closeAll(context.Background())
		return nil, err
	}
	p.log.Debug("plugin loaded")
	return p, nil
}

func (p *Plugin) setup(ctx context.Context, code []byte) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, p.runtime); err != nil {
		return &RuntimeError{Op: "wasi instantiation", Err: err}
	}
	if err := p.host.register(ctx, p.runtime); err != nil {
		return &RuntimeError{Op: "host module registration", Err: err}
	}

	compiled, err := p.runtime.CompileModule(ctx, code)
	if err != nil {
		return &RuntimeError{Op: "compilation", Err: err}
	}
	p.compiled = compiled

	exports := compiled.ExportedFunctions()
	for _, name := range requiredExports {
		if _, ok := exports[name]; !ok {
			return &ABIError{Function: name, Reason: "missing required export"}
		}
	}

	mod, err := p.instantiate(ctx)
	if err != nil {
		return err
	}
	defer mod.Close(context.Background())

	res, err := mod.ExportedFunction("abi_version").Call(ctx)
	if err != nil {
		return &RuntimeError{Op: "abi_version call", Err: err}
	}
	if len(res) == 0 {
		return &ABIError{Function: "abi_version", Reason: "no return value"}
	}
	if v := uint32(res[0]); v != ABIVersion {
		return fmt.Errorf("%w: plugin %d, host %d", ErrABIVersionMismatch, v, ABIVersion)
	}
	return nil
}

func (p *Plugin) instantiate(ctx context.Context) (api.Module, error) {
	cfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("%s-%d", p.name, p.seq.Add(1)))
	mod, err := p.runtime.InstantiateModule(ctx, p.compiled, cfg)
	if err != nil {
		return nil, &RuntimeError{Op: "instantiation", Err: err}
	}
	if mod.Memory() == nil {
		mod.Close(context.Background())
		return nil, &ABIError{Function: "memory", Reason: "module exports no memory"}
	}
	return mod, nil
}

type pluginInput struct {
	Line string `json:"line"`
}

type pluginEvent struct {
	Type string            `json:"type"`
	Time string            `json:"time,omitempty"`
	Data map[string]string `json:"data,omitempty"`
}

type pluginOutput struct {
	OK     bool          `json:"ok"`
	Events []pluginEvent `json:"events"`
	Error  string        `json:"error,omitempty"`
	Code   string        `json:"code,omitempty"`
}

// ParseLine implements gamewatch.Parser.
func (p *Plugin) ParseLine(ctx context.Context, line string) (gamewatch.ParseResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.runtime == nil {
		return gamewatch.ParseResult{}, ErrClosed
	}

	input, err := json.Marshal(pluginInput{Line: line})
	if err != nil {
		return gamewatch.ParseResult{}, err
	}
	if len(input) > MaxInputSize {
		return gamewatch.ParseResult{}, fmt.Errorf("input: %w: %d bytes (max %d)", ErrTooLarge, len(input), MaxInputSize)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.call(ctx, input)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return gamewatch.ParseResult{}, ErrTimeout
			}
			return gamewatch.ParseResult{}, ctxErr
		}
		return gamewatch.ParseResult{}, err
	}

	var out pluginOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return gamewatch.ParseResult{}, fmt.Errorf("decoding plugin output: %w", err)
	}
	if !out.OK {
		msg := out.Error
		if msg == "" {
			msg = "unknown error"
		}
		return gamewatch.ParseResult{}, &PluginError{Code: out.Code, Message: msg}
	}
	if len(out.Events) == 0 {
		return gamewatch.ParseResult{}, nil
	}

	events := make([]event.Event, 0, len(out.Events))
	for i, pe := range out.Events {
		ev, err := p.toEvent(pe)
		if err != nil {
			return gamewatch.ParseResult{}, fmt.Errorf("plugin event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return gamewatch.ParseResult{Events: events, Matched: true}, nil
}

// call runs parse_line in a fresh instance and returns a copy of its output.
func (p *Plugin) call(ctx context.Context, input []byte) ([]byte, error) {
	mod, err := p.instantiate(ctx)
	if err != nil {
		return nil, err
	}
	defer mod.Close(context.Background())

	alloc := mod.ExportedFunction("alloc")
	free := mod.ExportedFunction("free")
	parse := mod.ExportedFunction("parse_line")

	res, err := alloc.Call(ctx, uint64(len(input)))
	if err != nil {
		return nil, &RuntimeError{Op: "alloc call", Err: err}
	}
	if len(res) == 0 {
		return nil, &ABIError{Function: "alloc", Reason: "no return value"}
	}
	inPtr := uint32(res[0])
	if !mod.Memory().Write(inPtr, input) {
		return nil, &ABIError{Function: "alloc", Reason: "returned buffer outside memory"}
	}

	res, err = parse.Call(ctx, uint64(inPtr), uint64(len(input)))
	if err != nil {
		return nil, &RuntimeError{Op: "parse_line call", Err: err}
	}
	if len(res) == 0 {
		return nil, &ABIError{Function: "parse_line", Reason: "no return value"}
	}
	outPtr := uint32(res[0])
	outLen := uint32(res[0] >> 32)
	if outLen > MaxOutputSize {
		return nil, fmt.Errorf("output: %w: %d bytes (max %d)", ErrTooLarge, outLen, MaxOutputSize)
	}

	view, ok := mod.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, &ABIError{Function: "parse_line", Reason: "output outside memory"}
	}
	// Read returns a view into module memory; copy before free can reuse it.
	out := make([]byte, len(view))
	copy(out, view)

	_, _ = free.Call(ctx, uint64(outPtr), uint64(outLen))
	_, _ = free.Call(ctx, uint64(inPtr), uint64(len(input)))
	return out, nil
}

func (p *Plugin) toEvent(pe pluginEvent) (event.Event, error) {
	if pe.Type == "" {
		return event.Event{}, errors.New("missing type")
	}
	ts := p.host.now()
	if pe.Time != "" {
		parsed, err := time.Parse(time.RFC3339Nano, pe.Time)
		if err != nil {
			return event.Event{}, fmt.Errorf("invalid time %q: %w", pe.Time, err)
		}
		ts = parsed
	}
	return event.Event{
		Kind:    event.KindCustom,
		Time:    ts,
		Payload: event.Custom{Type: pe.Type, Data: pe.Data},
	}, nil
}

// Close releases the runtime. Safe to call more than once.
func (p *Plugin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeAll(context.Background())
}

func (p *Plugin) closeAll(ctx context.Context) error {
	var errs []error
	if p.compiled != nil {
		errs = append(errs, p.compiled.Close(ctx))
		p.compiled = nil
	}
	if p.runtime != nil {
		errs = append(errs, p.runtime.Close(ctx))
		p.runtime = nil
	}
	if p.cache != nil {
		errs = append(errs, p.cache.Close(ctx))
		p.cache = nil
	}
	return errors.Join(errs...)
}

func newCompilationCache(dir string) (wazero.CompilationCache, error) {
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "gamewatch", "wasm")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return wazero.NewCompilationCacheWithDir(dir)
}

var _ gamewatch.Parser = (*Plugin)(nil)
