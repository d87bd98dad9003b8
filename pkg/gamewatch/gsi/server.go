package gsi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"
	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// EnvPrefix is the envconfig prefix of Config, e.g. GAMEWATCH_GSI_ADDR.
const EnvPrefix = "gamewatch_gsi"

// MaxSnapshotSize bounds a POST body.
const MaxSnapshotSize = 1 << 20

var snapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gamewatch",
	Subsystem: "gsi",
	Name:      "snapshots_total",
	Help:      "Snapshots received, by game and result.",
}, []string{"game", "result"})

// Config is the listener configuration.
type Config struct {
	// Addr is the interface to bind.
	Addr string `default:"127.0.0.1"`
	// Port is bound when no published port is reused; 0 picks a free port.
	Port int `default:"0"`
	// Token, when set, must match the snapshot's auth.token.
	Token string
	// TTL is how long the latest snapshot of a game is served by GET.
	TTL time.Duration `default:"15s"`
	// BindAttempts is how often binding is tried before giving up.
	BindAttempts int `default:"3" split_words:"true"`
}

// ConfigFromEnv reads Config from GAMEWATCH_GSI_* variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("gsi config: %w", err)
	}
	return cfg, nil
}

// Delegate consumes snapshots posted for a game.
type Delegate interface {
	HandleSnapshot(s *Snapshot)
}

// DelegateFunc adapts a function to Delegate.
type DelegateFunc func(s *Snapshot)

// HandleSnapshot calls f(s).
func (f DelegateFunc) HandleSnapshot(s *Snapshot) { f(s) }

// DelegateHandle identifies a registration for RemoveDelegate.
type DelegateHandle uint64

type delegateEntry struct {
	handle DelegateHandle
	game   string
	d      Delegate
}

// ProcessProbe reports whether the game is running. A published port is only
// reused when it does.
type ProcessProbe func() bool

// Server receives snapshots over HTTP and hands them to delegates.
type Server struct {
	cfg      Config
	artifact *Artifact
	probe    ProcessProbe
	log      *slog.Logger
	latest   *gocache.Cache
	router   *mux.Router

	mu        sync.RWMutex
	delegates []delegateEntry
	next      DelegateHandle

	srvMu    sync.Mutex
	http     *http.Server
	listener net.Listener
	done     chan struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithArtifact publishes the bound port into a.
func WithArtifact(a *Artifact) ServerOption {
	return func(s *Server) { s.artifact = a }
}

// WithProcessProbe sets the probe consulted before reusing a published port.
func WithProcessProbe(p ProcessProbe) ServerOption {
	return func(s *Server) { s.probe = p }
}

// WithServerLogger sets the logger. Default discards.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer returns an unstarted server.
func NewServer(cfg Config, opts ...ServerOption) *Server {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Second
	}
	if cfg.BindAttempts <= 0 {
		cfg.BindAttempts = 3
	}
	s := &Server{
		cfg:    cfg,
		log:    discardLogger,
		latest: gocache.New(cfg.TTL, 10*cfg.TTL),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Path("/{game}/gsi").Methods(http.MethodPost).HandlerFunc(s.handlePost)
	r.Path("/{game}/gsi").Methods(http.MethodGet).HandlerFunc(s.handleGet)
	r.Path("/metrics").Methods(http.MethodGet).Handler(promhttp.Handler())
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.log.Debug("unmatched request", "method", req.Method, "url", req.URL.String())
		w.WriteHeader(http.StatusNotFound)
	})
	return r
}

// Handler returns the HTTP handler, for mounting elsewhere or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AddDelegate registers d for snapshots posted to /{game}/gsi.
func (s *Server) AddDelegate(game string, d Delegate) DelegateHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.delegates = append(s.delegates, delegateEntry{handle: s.next, game: game, d: d})
	return s.next
}

// RemoveDelegate unregisters h. It reports whether h was registered.
func (s *Server) RemoveDelegate(h DelegateHandle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.delegates {
		if e.handle == h {
			s.delegates = append(s.delegates[:i:i], s.delegates[i+1:]...)
			return true
		}
	}
	return false
}

// dispatch calls the game's delegates in registration order. The list is
// copied under the read lock so a delegate may add or remove delegates.
func (s *Server) dispatch(game string, snap *Snapshot) int {
	s.mu.RLock()
	targets := make([]Delegate, 0, len(s.delegates))
	for _, e := range s.delegates {
		if e.game == game {
			targets = append(targets, e.d)
		}
	}
	s.mu.RUnlock()

	for _, d := range targets {
		s.invoke(game, d, snap)
	}
	return len(targets)
}

func (s *Server) invoke(game string, d Delegate, snap *Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("delegate panicked", "game", game, "panic", r)
		}
	}()
	d.HandleSnapshot(snap)
}

func (s *Server) handlePost(w http.ResponseWriter, req *http.Request) {
	game := mux.Vars(req)["game"]

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, MaxSnapshotSize))
	if err != nil || len(body) == 0 {
		s.log.Warn("empty or unreadable snapshot", "game", game, "remote", req.RemoteAddr, "error", err)
		s.reject(w, game, "bad_request", http.StatusBadRequest)
		return
	}

	snap, skipped, err := DecodeSnapshot(body)
	if err != nil {
		s.log.Warn("could not decode snapshot", "game", game, "remote", req.RemoteAddr, "error", err)
		s.reject(w, game, "bad_request", http.StatusBadRequest)
		return
	}
	for _, e := range skipped {
		s.log.Debug("skipped snapshot section", "game", game, "error", e)
	}

	if !s.authorized(snap) {
		s.log.Warn("snapshot with wrong token", "game", game, "remote", req.RemoteAddr)
		s.reject(w, game, "unauthorized", http.StatusUnauthorized)
		return
	}
	snap.Auth = nil

	s.latest.SetDefault(game, snap)
	n := s.dispatch(game, snap)
	snapshotsTotal.WithLabelValues(game, "ok").Inc()
	s.log.Debug("snapshot dispatched", "game", game, "delegates", n)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) authorized(snap *Snapshot) bool {
	if s.cfg.Token == "" {
		return true
	}
	if snap.Auth == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(snap.Auth.Token), []byte(s.cfg.Token)) == 1
}

func (s *Server) reject(w http.ResponseWriter, game, result string, status int) {
	snapshotsTotal.WithLabelValues(game, result).Inc()
	w.WriteHeader(status)
}

func (s *Server) handleGet(w http.ResponseWriter, req *http.Request) {
	game := mux.Vars(req)["game"]

	if s.cfg.Token != "" {
		token, ok := strings.CutPrefix(req.Header.Get("Authorization"), "GSI ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Token)) != 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	cached, ok := s.latest.Get(game)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	body, err := json.Marshal(cached.(*Snapshot))
	if err != nil {
		s.log.Error("could not encode snapshot", "game", game, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(body); err != nil {
		s.log.Debug("could not write snapshot", "game", game, "error", err)
	}
}

// Latest returns the most recent snapshot posted for game within the TTL.
func (s *Server) Latest(game string) (*Snapshot, bool) {
	v, ok := s.latest.Get(game)
	if !ok {
		return nil, false
	}
	return v.(*Snapshot), true
}

// Start binds the listener, publishes the port and serves in the background.
//
// A port found in the artifact is tried first when the probe reports the game
// running; otherwise, or when that bind fails, Config.Port is bound.
func (s *Server) Start(ctx context.Context) error {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if s.http != nil {
		return errors.New("gsi server already started")
	}

	ln, err := s.listen(ctx)
	if err != nil {
		return err
	}
	port := ln.Addr().(*net.TCPAddr).Port

	if s.artifact != nil {
		if err := s.artifact.Write(port, s.cfg.Token); err != nil {
			ln.Close()
			return err
		}
		s.log.Info("config artifact written", "path", s.artifact.Path, "port", port)
	}

	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	s.done = make(chan struct{})
	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("gsi server stopped", "error", err)
		}
	}(s.http, s.done)

	s.log.Info("gsi server listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	var lc net.ListenConfig

	if port, ok := s.reusablePort(); ok {
		ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.cfg.Addr, strconv.Itoa(port)))
		if err == nil {
			s.log.Info("reusing published port", "port", port)
			return ln, nil
		}
		s.log.Warn("published port unavailable", "port", port, "error", err)
	}

	addr := net.JoinHostPort(s.cfg.Addr, strconv.Itoa(s.cfg.Port))
	var lastErr error
	for attempt := 1; attempt <= s.cfg.BindAttempts; attempt++ {
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		s.log.Warn("bind failed", "addr", addr, "attempt", attempt, "error", err)
		if attempt == s.cfg.BindAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("binding gsi listener on %s: %w", addr, lastErr)
}

func (s *Server) reusablePort() (int, bool) {
	if s.artifact == nil || s.probe == nil {
		return 0, false
	}
	port, err := s.artifact.PublishedPort()
	if err != nil {
		s.log.Debug("no published port", "error", err)
		return 0, false
	}
	if !s.probe() {
		s.log.Debug("game not running, ignoring published port", "port", port)
		return 0, false
	}
	return port, true
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.srvMu.Lock()
	defer s.srvMu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down gracefully and waits for it to exit.
// Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.srvMu.Lock()
	srv, done := s.http, s.done
	s.http = nil
	s.listener = nil
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.latest.Flush()
	return err
}
