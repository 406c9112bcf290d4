package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) add(s ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, s...)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.items...)
}

func newTestServer(t *testing.T) (*httptest.Server, *recorder) {
	t.Helper()
	seen := &recorder{}
	var mu sync.Mutex
	running := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/gateway/start", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen.add(r.Method+" "+r.URL.Path, string(body))
		mu.Lock()
		defer mu.Unlock()
		if running {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"message":"Gateway already running","status":{"running":true}}`))
			return
		}
		running = true
		_, _ = w.Write([]byte(`{"success":true,"message":"Gateway started on port 18789","status":{"running":true,"pid":77,"port":18789}}`))
	})
	mux.HandleFunc("/api/gateway/stop", func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.Method + " " + r.URL.Path)
		mu.Lock()
		defer mu.Unlock()
		if !running {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"success":false,"message":"Gateway not running","status":{"running":false}}`))
			return
		}
		running = false
		_, _ = w.Write([]byte(`{"success":true,"message":"Gateway stopped","status":{"running":false}}`))
	})
	mux.HandleFunc("/api/gateway/status", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"running": running, "resources": map[string]any{"pid": 77, "cpu_percent": 1.5}})
	})
	mux.HandleFunc("/api/gateway/logs", func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"logs":["a","b"]}`))
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"authentication_failed","message":"Authentication required"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"outcome":"success","returncode":0,"stdout":"healthy"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, seen
}

func newClient(srv *httptest.Server, user, pass string) *Client {
	return New(Config{BaseURL: srv.URL + "/api/", Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Username: user, Password: pass})
}

func TestGatewayLifecycle(t *testing.T) {
	srv, seen := newTestServer(t)
	c := newClient(srv, "", "")
	ctx := context.Background()

	assert.True(t, c.IsReachable(ctx))

	resp, err := c.StartGateway(ctx, 0)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, 77, resp.Status.PID)
	assert.Equal(t, []string{"POST /api/gateway/start", ""}, seen.all())

	_, err = c.StartGateway(ctx, 19000)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusConflict))
	assert.Contains(t, err.Error(), "already running")
	assert.JSONEq(t, `{"port":19000}`, seen.all()[3])

	st, err := c.GatewayStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)
	require.NotNil(t, st.Resources)
	assert.Equal(t, 1.5, st.Resources.CPUPercent)

	_, err = c.StopGateway(ctx)
	require.NoError(t, err)
	_, err = c.StopGateway(ctx)
	assert.True(t, IsStatus(err, http.StatusConflict))
}

func TestGatewayLogs(t *testing.T) {
	srv, seen := newTestServer(t)
	c := newClient(srv, "", "")

	lines, err := c.GatewayLogs(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lines)
	assert.Equal(t, "lines=25", seen.all()[0])

	_, err = c.GatewayLogs(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "", seen.all()[1])
}

func TestHealthWithBasicAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := newClient(srv, "", "").Health(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "authentication_failed")

	res, err := newClient(srv, "admin", "pw").Health(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "healthy", res.Stdout)
}

func TestUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.GatewayStatus(context.Background())
	assert.Error(t, err)
	assert.False(t, IsStatus(err, http.StatusNotFound))
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()
	c := New(Config{BaseURL: srv.URL, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	_, err := c.GatewayStatus(context.Background())
	require.Error(t, err)
	assert.Equal(t, "HTTP 502", err.Error())
}

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	c := New(Config{})
	assert.Equal(t, DefaultBaseURL, c.baseURL)
	assert.Equal(t, DefaultTimeout, c.client.Timeout)
}
