package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/time/rate"
)

const (
	// MaxLogSize truncates plugin log messages.
	MaxLogSize = 256

	// LogRateLimit is the number of plugin log calls allowed per second.
	LogRateLimit = 10

	// MaxPatternLength bounds regexes passed to the host.
	MaxPatternLength = 512

	// MaxCachedPatterns bounds the compiled regex cache.
	MaxCachedPatterns = 100

	regexTTL = 10 * time.Minute

	bufferTooSmall = 0xFFFFFFFF
)

type host struct {
	regexes *gocache.Cache
	log     *slog.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

func newHost(logger *slog.Logger) *host {
	return &host{
		regexes: gocache.New(regexTTL, 2*regexTTL),
		log:     logger,
		limiter: rate.NewLimiter(LogRateLimit, LogRateLimit),
		now:     time.Now,
	}
}

// compile returns a cached regex. Past MaxCachedPatterns new patterns are
// compiled but not cached.
func (h *host) compile(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > MaxPatternLength {
		return nil, fmt.Errorf("pattern of %d bytes exceeds %d", len(pattern), MaxPatternLength)
	}
	if re, ok := h.regexes.Get(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if h.regexes.ItemCount() < MaxCachedPatterns {
		h.regexes.SetDefault(pattern, re)
	}
	return re, nil
}

func (h *host) readRegex(m api.Module, strPtr, strLen, rePtr, reLen uint32) (string, *regexp.Regexp, bool) {
	str, ok := m.Memory().Read(strPtr, strLen)
	if !ok {
		return "", nil, false
	}
	pat, ok := m.Memory().Read(rePtr, reLen)
	if !ok {
		return "", nil, false
	}
	re, err := h.compile(string(pat))
	if err != nil {
		h.log.Warn("plugin regex rejected", "error", err)
		return "", nil, false
	}
	return string(str), re, true
}

// regexMatch: (str_ptr, str_len, re_ptr, re_len) -> 1 on match, else 0.
func (h *host) regexMatch(_ context.Context, m api.Module, strPtr, strLen, rePtr, reLen uint32) uint32 {
	str, re, ok := h.readRegex(m, strPtr, strLen, rePtr, reLen)
	if !ok || !re.MatchString(str) {
		return 0
	}
	return 1
}

// regexFindSubmatch writes the submatches as a JSON array of strings into the
// output buffer and returns the byte count: 0 for no match, bufferTooSmall when
// the buffer cannot hold the result.
func (h *host) regexFindSubmatch(_ context.Context, m api.Module, strPtr, strLen, rePtr, reLen, outPtr, outLen uint32) uint32 {
	str, re, ok := h.readRegex(m, strPtr, strLen, rePtr, reLen)
	if !ok {
		return 0
	}
	matches := re.FindStringSubmatch(str)
	if matches == nil {
		return 0
	}
	out, err := json.Marshal(matches)
	if err != nil {
		return 0
	}
	if uint32(len(out)) > outLen {
		return bufferTooSmall
	}
	if !m.Memory().Write(outPtr, out) {
		return 0
	}
	return uint32(len(out))
}

// logMessage: (level, ptr, len). Levels 0..3 map to debug, info, warn, error.
func (h *host) logMessage(_ context.Context, m api.Module, level, ptr, size uint32) {
	if !h.limiter.Allow() {
		return
	}
	truncated := size > MaxLogSize
	if truncated {
		size = MaxLogSize
	}
	raw, ok := m.Memory().Read(ptr, size)
	if !ok {
		return
	}
	h.emit(level, string(raw), truncated)
}

func (h *host) emit(level uint32, msg string, truncated bool) {
	msg = strings.ToValidUTF8(msg, "�")
	if truncated {
		msg += " [truncated]"
	}
	var lvl slog.Level
	switch level {
	case 0:
		lvl = slog.LevelDebug
	case 1:
		lvl = slog.LevelInfo
	case 2:
		lvl = slog.LevelWarn
	case 3:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	h.log.Log(context.Background(), lvl, "plugin: "+msg)
}

func (h *host) nowMs() int64 {
	return h.now().UnixMilli()
}

// register instantiates the "env" host module in rt.
func (h *host) register(ctx context.Context, rt wazero.Runtime) error {
	_, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().WithFunc(h.regexMatch).Export("regex_match").
		NewFunctionBuilder().WithFunc(h.regexFindSubmatch).Export("regex_find_submatch").
		NewFunctionBuilder().WithFunc(h.logMessage).Export("log").
		NewFunctionBuilder().WithFunc(h.nowMs).Export("now_ms").
		Instantiate(ctx)
	return err
}
