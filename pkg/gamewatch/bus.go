package gamewatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/gamewatch/gamewatch-go/pkg/gamewatch/event"
)

// DefaultFutureTolerance is how far ahead of the clock an event may be stamped.
const DefaultFutureTolerance = 5 * time.Minute

// Drop reasons used in the dropped-events counter.
const (
	dropStale       = "stale"
	dropFuture      = "future"
	dropInvalid     = "invalid_payload"
	dropChannelFull = "channel_full"
)

var (
	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamewatch",
		Subsystem: "bus",
		Name:      "events_delivered_total",
		Help:      "Events passed to subscribers, by kind.",
	}, []string{"kind"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gamewatch",
		Subsystem: "bus",
		Name:      "events_dropped_total",
		Help:      "Events not delivered, by kind and reason.",
	}, []string{"kind", "reason"})
)

// Handler receives one event. It runs on the goroutine that called Notify.
type Handler func(e event.Event)

type subscription struct {
	kind event.Kind
	any  bool
	h    Handler
}

// EventBus delivers events to subscribers synchronously, in registration
// order, after checking the event time against a threshold.
//
// Handlers must return quickly: they run on the producing tailer or HTTP
// goroutine. Wrap slow consumers with ChannelHandler.
type EventBus struct {
	mu         sync.RWMutex
	subs       []subscription
	threshold  time.Time
	timeChecks bool

	tolerance time.Duration
	now       func() time.Time
	log       *slog.Logger
	dropLog   *rate.Limiter
}

// BusOption configures an EventBus.
type BusOption func(*busConfig)

type busConfig struct {
	threshold  time.Time
	timeChecks bool
	tolerance  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// WithTimeThreshold drops events stamped before t.
func WithTimeThreshold(t time.Time) BusOption {
	return func(c *busConfig) {
		c.threshold = t
	}
}

// WithTimeChecks enables or disables the time gate. Default: enabled.
func WithTimeChecks(enabled bool) BusOption {
	return func(c *busConfig) {
		c.timeChecks = enabled
	}
}

// WithFutureTolerance sets how far in the future an event may be stamped.
func WithFutureTolerance(d time.Duration) BusOption {
	return func(c *busConfig) {
		c.tolerance = d
	}
}

// WithBusLogger sets the logger. Nil disables logging.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(c *busConfig) {
		c.logger = l
	}
}

// WithBusClock replaces time.Now.
func WithBusClock(now func() time.Time) BusOption {
	return func(c *busConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewEventBus creates a bus with time checks enabled.
func NewEventBus(opts ...BusOption) *EventBus {
	cfg := busConfig{
		timeChecks: true,
		tolerance:  DefaultFutureTolerance,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger
	}
	if cfg.tolerance < 0 {
		cfg.tolerance = 0
	}

	return &EventBus{
		threshold:  cfg.threshold,
		timeChecks: cfg.timeChecks,
		tolerance:  cfg.tolerance,
		now:        cfg.now,
		log:        cfg.logger,
		dropLog:    rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// NotifyOnEvent registers h for kind.
func (b *EventBus) NotifyOnEvent(kind event.Kind, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, subscription{kind: kind, h: h})
	b.mu.Unlock()
}

// NotifyOnAny registers h for every kind.
func (b *EventBus) NotifyOnAny(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subs = append(b.subs, subscription{any: true, h: h})
	b.mu.Unlock()
}

// SetTimeThreshold moves the stale-event threshold.
func (b *EventBus) SetTimeThreshold(t time.Time) {
	b.mu.Lock()
	b.threshold = t
	b.mu.Unlock()
}

// TimeThreshold returns the current threshold.
func (b *EventBus) TimeThreshold() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.threshold
}

// SetTimeChecks enables or disables the time gate.
func (b *EventBus) SetTimeChecks(enabled bool) {
	b.mu.Lock()
	b.timeChecks = enabled
	b.mu.Unlock()
}

// NotifyOption adjusts a single Notify call.
type NotifyOption func(*notifyConfig)

type notifyConfig struct {
	checkTime bool
	quiet     bool
}

// WithoutTimeCheck delivers the event regardless of its time.
func WithoutTimeCheck() NotifyOption {
	return func(c *notifyConfig) {
		c.checkTime = false
	}
}

// Quiet suppresses the debug log line for the delivery.
func Quiet() NotifyOption {
	return func(c *notifyConfig) {
		c.quiet = true
	}
}

// Notify delivers an event of kind stamped t to every matching subscriber.
// It reports whether the event passed the gate.
func (b *EventBus) Notify(kind event.Kind, t time.Time, payload event.Payload, opts ...NotifyOption) bool {
	return b.Publish(event.Event{Kind: kind, Time: t, Payload: payload}, opts...)
}

// Publish is Notify for an already assembled event.
func (b *EventBus) Publish(e event.Event, opts ...NotifyOption) bool {
	nc := notifyConfig{checkTime: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&nc)
		}
	}

	if !e.Valid() {
		b.drop(e, dropInvalid, "payload does not match kind")
		return false
	}

	b.mu.RLock()
	threshold, checks := b.threshold, b.timeChecks
	subs := b.subs
	b.mu.RUnlock()

	if checks && nc.checkTime {
		if e.Time.Before(threshold) {
			b.drop(e, dropStale, "event older than threshold", "threshold", threshold)
			return false
		}
		if limit := b.now().Add(b.tolerance); e.Time.After(limit) {
			b.drop(e, dropFuture, "event too far in the future", "limit", limit)
			return false
		}
	}

	if !nc.quiet {
		b.log.Debug("event", "kind", e.Kind, "time", e.Time)
	}
	eventsDelivered.WithLabelValues(string(e.Kind)).Inc()

	for _, s := range subs {
		if s.any || s.kind == e.Kind {
			b.invoke(s.h, e)
		}
	}
	return true
}

func (b *EventBus) invoke(h Handler, e event.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "kind", e.Kind, "panic", r)
		}
	}()
	h(e)
}

func (b *EventBus) drop(e event.Event, reason, msg string, attrs ...any) {
	eventsDropped.WithLabelValues(string(e.Kind), reason).Inc()
	attrs = append(attrs, "kind", e.Kind, "time", e.Time, "reason", reason)
	if b.dropLog.Allow() {
		b.log.Warn(msg, attrs...)
		return
	}
	b.log.Debug(msg, attrs...)
}

// ChannelHandler forwards events to ch without blocking. When ch is full the
// event is dropped and counted.
func ChannelHandler(ch chan<- event.Event) Handler {
	return func(e event.Event) {
		select {
		case ch <- e:
		default:
			eventsDropped.WithLabelValues(string(e.Kind), dropChannelFull).Inc()
		}
	}
}
