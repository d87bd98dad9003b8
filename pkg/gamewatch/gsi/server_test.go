package gsi

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotSink struct {
	mu  sync.Mutex
	got []*Snapshot
}

func (s *snapshotSink) HandleSnapshot(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, snap)
}

func (s *snapshotSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestServer_Post(t *testing.T) {
	s := NewServer(Config{})
	sink := &snapshotSink{}
	other := &snapshotSink{}
	s.AddDelegate("csgo", sink)
	s.AddDelegate("dota2", other)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := post(t, ts.URL+"/csgo/gsi", `{"provider": {"steamid": "1"}, "auth": {"token": "x"}}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 1, sink.count())
	assert.Equal(t, "1", sink.got[0].LocalPlayerID())
	assert.Nil(t, sink.got[0].Auth, "auth is stripped before dispatch")
	assert.Zero(t, other.count())

	resp = post(t, ts.URL+"/unknown/gsi", `{}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "no delegate is not an error")
}

func TestServer_PostRejects(t *testing.T) {
	s := NewServer(Config{})
	sink := &snapshotSink{}
	s.AddDelegate("csgo", sink)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	for _, body := range []string{"", "not json", "[1]", "null"} {
		resp := post(t, ts.URL+"/csgo/gsi", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %q", body)
	}
	assert.Zero(t, sink.count())

	resp := post(t, ts.URL+"/csgo/gsi", `{"round": 5}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "a malformed section is skipped, not fatal")
}

func TestServer_Token(t *testing.T) {
	s := NewServer(Config{Token: "secret"})
	sink := &snapshotSink{}
	s.AddDelegate("csgo", sink)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	assert.Equal(t, http.StatusUnauthorized, post(t, ts.URL+"/csgo/gsi", `{}`).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, post(t, ts.URL+"/csgo/gsi", `{"auth": {"token": "wrong"}}`).StatusCode)
	assert.Zero(t, sink.count())
	assert.Equal(t, http.StatusNoContent, post(t, ts.URL+"/csgo/gsi", `{"auth": {"token": "secret"}}`).StatusCode)
	assert.Equal(t, 1, sink.count())

	resp, err := http.Get(ts.URL + "/csgo/gsi")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/csgo/gsi", nil)
	req.Header.Set("Authorization", "GSI secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "secret")
}

func TestServer_GetLatest(t *testing.T) {
	s := NewServer(Config{TTL: 50 * time.Millisecond})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/csgo/gsi")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	post(t, ts.URL+"/csgo/gsi", `{"map": {"name": "de_nuke", "mode": "competitive"}}`)

	resp, err = http.Get(ts.URL + "/csgo/gsi")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"map": {"name": "de_nuke", "mode": "competitive"}}`, string(body))

	snap, ok := s.Latest("csgo")
	require.True(t, ok)
	assert.Equal(t, "de_nuke", snap.Map.Name)

	assert.Eventually(t, func() bool {
		_, ok := s.Latest("csgo")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestServer_Delegates(t *testing.T) {
	s := NewServer(Config{})
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) DelegateFunc {
		return func(*Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}
	recorded := func() []string {
		mu.Lock()
		defer mu.Unlock()
		out := order
		order = nil
		return out
	}

	first := s.AddDelegate("csgo", record("first"))
	s.AddDelegate("csgo", DelegateFunc(func(*Snapshot) { panic("boom") }))
	s.AddDelegate("csgo", record("third"))

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	assert.Equal(t, http.StatusNoContent, post(t, ts.URL+"/csgo/gsi", `{}`).StatusCode)
	assert.Equal(t, []string{"first", "third"}, recorded())

	assert.True(t, s.RemoveDelegate(first))
	assert.False(t, s.RemoveDelegate(first))
	post(t, ts.URL+"/csgo/gsi", `{}`)
	assert.Equal(t, []string{"third"}, recorded())
}

func TestServer_DelegateRemovesItself(t *testing.T) {
	s := NewServer(Config{})
	var calls atomic.Int32
	var h atomic.Uint64
	h.Store(uint64(s.AddDelegate("csgo", DelegateFunc(func(*Snapshot) {
		calls.Add(1)
		s.RemoveDelegate(DelegateHandle(h.Load()))
	}))))

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	post(t, ts.URL+"/csgo/gsi", `{}`)
	post(t, ts.URL+"/csgo/gsi", `{}`)
	assert.Equal(t, int32(1), calls.Load())
}

func TestServer_Metrics(t *testing.T) {
	s := NewServer(Config{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	post(t, ts.URL+"/metricsgame/gsi", `{}`)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `gamewatch_gsi_snapshots_total{game="metricsgame",result="ok"} 1`)
}

func TestServer_NotFound(t *testing.T) {
	ts := httptest.NewServer(NewServer(Config{}).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StartWritesArtifact(t *testing.T) {
	a := &Artifact{Path: filepath.Join(t.TempDir(), "gsi.cfg"), Template: DefaultCSGOTemplate}
	s := NewServer(Config{Addr: "127.0.0.1"}, WithArtifact(a))
	sink := &snapshotSink{}
	s.AddDelegate("csgo", sink)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())
	assert.Error(t, s.Start(context.Background()), "second start")

	port := s.Addr().(*net.TCPAddr).Port
	published, err := a.PublishedPort()
	require.NoError(t, err)
	assert.Equal(t, port, published)

	resp := post(t, "http://"+s.Addr().String()+"/csgo/gsi", `{}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 1, sink.count())

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Nil(t, s.Addr())
}

func TestServer_ReusesPublishedPort(t *testing.T) {
	a := &Artifact{Path: filepath.Join(t.TempDir(), "gsi.cfg"), Template: DefaultCSGOTemplate}

	first := NewServer(Config{Addr: "127.0.0.1"}, WithArtifact(a))
	require.NoError(t, first.Start(context.Background()))
	port := first.Addr().(*net.TCPAddr).Port
	require.NoError(t, first.Stop(context.Background()))

	second := NewServer(Config{Addr: "127.0.0.1"}, WithArtifact(a), WithProcessProbe(func() bool { return true }))
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop(context.Background())
	assert.Equal(t, port, second.Addr().(*net.TCPAddr).Port)
}

func TestServer_PublishedPortBusyFallsBack(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	a := &Artifact{Path: filepath.Join(t.TempDir(), "gsi.cfg"), Template: DefaultCSGOTemplate}
	require.NoError(t, a.Write(busyPort, ""))

	s := NewServer(Config{Addr: "127.0.0.1"}, WithArtifact(a), WithProcessProbe(func() bool { return true }))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	port := s.Addr().(*net.TCPAddr).Port
	assert.NotEqual(t, busyPort, port)
	published, err := a.PublishedPort()
	require.NoError(t, err)
	assert.Equal(t, port, published, "artifact rewritten with the new port")
}

func TestServer_BindFailure(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	s := NewServer(Config{Addr: "127.0.0.1", Port: busy.Addr().(*net.TCPAddr).Port, BindAttempts: 2})
	err = s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binding gsi listener")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GAMEWATCH_GSI_ADDR", "0.0.0.0")
	t.Setenv("GAMEWATCH_GSI_PORT", "3000")
	t.Setenv("GAMEWATCH_GSI_TOKEN", "abc")
	t.Setenv("GAMEWATCH_GSI_TTL", "30s")
	t.Setenv("GAMEWATCH_GSI_BIND_ATTEMPTS", "5")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{Addr: "0.0.0.0", Port: 3000, Token: "abc", TTL: 30 * time.Second, BindAttempts: 5}, cfg)

	t.Setenv("GAMEWATCH_GSI_PORT", "not-a-port")
	_, err = ConfigFromEnv()
	assert.Error(t, err)
}
