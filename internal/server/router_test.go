package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/clawpanel/internal/auth"
	"github.com/loykin/clawpanel/internal/config"
	"github.com/loykin/clawpanel/internal/cron"
	"github.com/loykin/clawpanel/internal/gateway"
	"github.com/loykin/clawpanel/internal/runner"
	"github.com/loykin/clawpanel/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeGateway struct {
	mu       sync.Mutex
	running  bool
	port     int
	startErr error
	stopErr  error
	lines    []string
}

func (g *fakeGateway) Start(port int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.startErr != nil {
		return g.startErr
	}
	if g.running {
		return gateway.ErrAlreadyRunning
	}
	g.running, g.port = true, port
	return nil
}

func (g *fakeGateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopErr != nil {
		return g.stopErr
	}
	if !g.running {
		return gateway.ErrNotRunning
	}
	g.running = false
	return nil
}

func (g *fakeGateway) Status() gateway.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := gateway.Status{Running: g.running, Port: g.port}
	if g.running {
		st.PID = 4242
	}
	return st
}

func (g *fakeGateway) Tail(n int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n >= len(g.lines) {
		return append([]string(nil), g.lines...)
	}
	return append([]string(nil), g.lines[len(g.lines)-n:]...)
}

func (g *fakeGateway) LogCapacity() int { return 500 }

type call struct {
	timeout time.Duration
	args    []string
}

type fakeCommands struct {
	mu     sync.Mutex
	calls  []call
	result runner.Result
}

func (f *fakeCommands) Run(_ context.Context, timeout time.Duration, args ...string) runner.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{timeout: timeout, args: args})
	res := f.result
	res.Command = "openclaw " + strings.Join(args, " ")
	return res
}

func (f *fakeCommands) last(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

type fixture struct {
	gw    *fakeGateway
	cmds  *fakeCommands
	store *settings.Store
	h     http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{
		gw:    &fakeGateway{},
		cmds:  &fakeCommands{result: runner.Result{Success: true, Outcome: runner.OutcomeSuccess, Stdout: "ok"}},
		store: settings.New(t.TempDir()+"/openclaw.json", nil),
	}
	f.h = NewRouter(f.gw, f.cmds, f.store, opts).Handler()
	return f
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestCommandRoutes(t *testing.T) {
	f := newFixture(t, Options{CommandTimeout: 3 * time.Second})
	cases := []struct {
		path string
		args []string
	}{
		{"/api/health", []string{"health"}},
		{"/api/status", []string{"status"}},
		{"/api/version", []string{"--version"}},
		{"/api/doctor", []string{"doctor"}},
		{"/api/skills", []string{"skills", "list"}},
		{"/api/logs", []string{"logs", "--lines", "100"}},
		{"/api/logs?lines=25", []string{"logs", "--lines", "25"}},
	}
	for _, tc := range cases {
		rec := doReq(t, f.h, http.MethodGet, tc.path, nil)
		require.Equal(t, http.StatusOK, rec.Code, tc.path)
		c := f.cmds.last(t)
		assert.Equal(t, tc.args, c.args, tc.path)
		assert.Equal(t, 3*time.Second, c.timeout, tc.path)

		m := decode(t, rec)
		assert.Equal(t, true, m["success"])
		assert.Equal(t, "ok", m["stdout"])
		assert.Contains(t, m, "returncode")
	}
}

func TestToolLogsRejectsBadLines(t *testing.T) {
	f := newFixture(t, Options{})
	rec := doReq(t, f.h, http.MethodGet, "/api/logs?lines=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.cmds.calls)
}

func TestFailureResultIsStillOK(t *testing.T) {
	f := newFixture(t, Options{})
	f.cmds.result = runner.Result{Outcome: runner.OutcomeNotFound, ExitCode: -1, Message: "openclaw not found; install it first"}
	rec := doReq(t, f.h, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	assert.Equal(t, false, m["success"])
	assert.Equal(t, "not_found", m["outcome"])
	assert.EqualValues(t, -1, m["returncode"])
}

func TestSessionsDecodesJSON(t *testing.T) {
	f := newFixture(t, Options{})
	f.cmds.result = runner.Result{Success: true, Outcome: runner.OutcomeSuccess, Stdout: `[{"id":"s1"}]`}
	rec := doReq(t, f.h, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sessions", "list", "--json"}, f.cmds.last(t).args)
	m := decode(t, rec)
	sessions, ok := m["sessions"].([]any)
	require.True(t, ok, rec.Body.String())
	assert.Len(t, sessions, 1)

	f.cmds.result.Stdout = "no sessions"
	rec = doReq(t, f.h, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m = decode(t, rec)
	assert.NotContains(t, m, "sessions")
	assert.Equal(t, "no sessions", m["stdout"])
}

func TestGatewayStartStop(t *testing.T) {
	f := newFixture(t, Options{DefaultGatewayPort: 19000})

	rec := doReq(t, f.h, http.MethodPost, "/api/gateway/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(t, rec)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "Gateway started on port 19000", m["message"])
	assert.Equal(t, 19000, f.gw.Status().Port)

	rec = doReq(t, f.h, http.MethodPost, "/api/gateway/start", map[string]int{"port": 19001})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 19000, f.gw.Status().Port)

	rec = doReq(t, f.h, http.MethodPost, "/api/gateway/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Gateway stopped", decode(t, rec)["message"])

	rec = doReq(t, f.h, http.MethodPost, "/api/gateway/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doReq(t, f.h, http.MethodPost, "/api/gateway/start", map[string]int{"port": 19001})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 19001, f.gw.Status().Port)
}

func TestGatewayStartValidation(t *testing.T) {
	f := newFixture(t, Options{})
	for _, body := range []any{map[string]int{"port": 0}, map[string]int{"port": 70000}, "{bad"} {
		rec := doReq(t, f.h, http.MethodPost, "/api/gateway/start", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, fmt.Sprint(body))
	}
	assert.False(t, f.gw.Status().Running)

	rec := doReq(t, f.h, http.MethodPost, "/api/gateway/start", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, gateway.DefaultPort, f.gw.Status().Port)
}

func TestGatewayErrorsMapToStatus(t *testing.T) {
	f := newFixture(t, Options{})
	f.gw.startErr = fmt.Errorf("start gateway: %w", gateway.ErrExecutableNotFound)
	rec := doReq(t, f.h, http.MethodPost, "/api/gateway/start", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "not found")

	f.gw.stopErr = fmt.Errorf("stop gateway: %w", gateway.ErrStopTimeout)
	rec = doReq(t, f.h, http.MethodPost, "/api/gateway/stop", nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	f.gw.stopErr = errors.New("boom")
	rec = doReq(t, f.h, http.MethodPost, "/api/gateway/stop", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGatewayStatusAndLogs(t *testing.T) {
	f := newFixture(t, Options{})
	for i := 0; i < 150; i++ {
		f.gw.lines = append(f.gw.lines, fmt.Sprintf("line %d", i))
	}

	rec := doReq(t, f.h, http.MethodGet, "/api/gateway/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["running"])

	rec = doReq(t, f.h, http.MethodGet, "/api/gateway/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Logs []string `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Logs, 100)
	assert.Equal(t, "line 50", body.Logs[0])
	assert.Equal(t, "line 149", body.Logs[99])

	rec = doReq(t, f.h, http.MethodGet, "/api/gateway/logs?lines=3", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"line 147", "line 148", "line 149"}, body.Logs)

	f.gw.lines = nil
	rec = doReq(t, f.h, http.MethodGet, "/api/gateway/logs", nil)
	assert.JSONEq(t, `{"logs":[]}`, rec.Body.String())
}

func TestGatewayResourcesDisabled(t *testing.T) {
	f := newFixture(t, Options{})
	rec := doReq(t, f.h, http.MethodGet, "/api/gateway/resources", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageSend(t *testing.T) {
	f := newFixture(t, Options{})
	rec := doReq(t, f.h, http.MethodPost, "/api/message/send", map[string]string{"target": "+15550100", "message": "hi there"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"message", "send", "--target", "+15550100", "--message", "hi there"}, f.cmds.last(t).args)

	rec = doReq(t, f.h, http.MethodPost, "/api/message/send", map[string]string{"target": "ops", "message": "x", "channel": "slack"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"message", "send", "--target", "ops", "--message", "x", "--channel", "slack"}, f.cmds.last(t).args)

	n := len(f.cmds.calls)
	rec = doReq(t, f.h, http.MethodPost, "/api/message/send", map[string]string{"target": "ops"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.cmds.calls, n)
}

func TestAgentUsesAgentTimeout(t *testing.T) {
	f := newFixture(t, Options{AgentTimeout: 7 * time.Second})
	rec := doReq(t, f.h, http.MethodPost, "/api/agent", map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, rec.Code)
	c := f.cmds.last(t)
	assert.Equal(t, 7*time.Second, c.timeout)
	assert.Equal(t, []string{"agent", "--message", "hello", "--thinking", "medium"}, c.args)

	rec = doReq(t, f.h, http.MethodPost, "/api/agent", map[string]string{"message": "hello", "thinking": "high"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "high", f.cmds.last(t).args[4])

	rec = doReq(t, f.h, http.MethodPost, "/api/agent", map[string]string{"thinking": "high"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfigRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})

	rec := doReq(t, f.h, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = doReq(t, f.h, http.MethodPost, "/api/config", `{"agent":{"model":"m1"},"custom":{"n":12345678901234567890}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doReq(t, f.h, http.MethodPut, "/api/config/field", map[string]any{"section": "agent", "key": "temperature", "value": 0.5})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doReq(t, f.h, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"agent":{"model":"m1","temperature":0.5},"custom":{"n":12345678901234567890}}`, rec.Body.String())
}

func TestConfigReplaceRejectsInvalid(t *testing.T) {
	f := newFixture(t, Options{})
	require.NoError(t, f.store.SetField("agent", "model", "keep"))

	for _, body := range []string{"{not json", "[1,2]"} {
		rec := doReq(t, f.h, http.MethodPost, "/api/config", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Equal(t, "keep", settings.Model(f.store.Load()))
}

func TestConfigFieldRequiresSectionAndKey(t *testing.T) {
	f := newFixture(t, Options{})
	rec := doReq(t, f.h, http.MethodPut, "/api/config/field", map[string]any{"section": "agent", "value": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doReq(t, f.h, http.MethodPut, "/api/config/field", "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetupModel(t *testing.T) {
	f := newFixture(t, Options{})
	rec := doReq(t, f.h, http.MethodPost, "/api/setup/model", map[string]string{"model": "openai/gpt-5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "openai/gpt-5", decode(t, rec)["model"])

	rec = doReq(t, f.h, http.MethodPost, "/api/setup/model", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, settings.DefaultModel, decode(t, rec)["model"])
}

func TestSetupChannelsForm(t *testing.T) {
	f := newFixture(t, Options{})
	form := url.Values{}
	form.Set("whatsapp_enabled", "true")
	form.Set("whatsapp_allow", " +1555 , +1666 ,")
	form.Set("telegram_enabled", "true")
	form.Set("discord_enabled", "true") // no token, left untouched
	req := httptest.NewRequest(http.MethodPost, "/api/setup/channels", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	doc := f.store.Load()
	channels := settings.Section(doc, "channels")
	wa, ok := channels["whatsapp"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"+1555", "+1666"}, wa["allowFrom"])
	assert.NotContains(t, channels, "telegram")
	assert.NotContains(t, channels, "discord")
}

func TestSetupChannelsCheckboxForm(t *testing.T) {
	f := newFixture(t, Options{})
	form := url.Values{}
	form.Set("telegram_enabled", "on")
	form.Set("telegram_token", "abc")
	form.Set("discord_enabled", "off")
	form.Set("discord_token", "d-token")
	req := httptest.NewRequest(http.MethodPost, "/api/setup/channels", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	channels := settings.Section(f.store.Load(), "channels")
	assert.Equal(t, map[string]any{"botToken": "abc"}, channels["telegram"])
	assert.NotContains(t, channels, "discord")
}

func TestSetupChannelsJSON(t *testing.T) {
	f := newFixture(t, Options{})
	rec := doReq(t, f.h, http.MethodPost, "/api/setup/channels", map[string]any{
		"slack_enabled": true, "slack_bot_token": "xoxb", "slack_app_token": "xapp",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(t, rec)
	channels, ok := m["channels"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"botToken": "xoxb", "appToken": "xapp"}, channels["slack"])
}

func TestCustomBasePath(t *testing.T) {
	f := newFixture(t, Options{BasePath: "/panel/"})
	assert.Equal(t, http.StatusOK, doReq(t, f.h, http.MethodGet, "/panel/health", nil).Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, f.h, http.MethodGet, "/api/health", nil).Code)

	root := newFixture(t, Options{BasePath: "/"})
	assert.Equal(t, http.StatusOK, doReq(t, root.h, http.MethodGet, "/health", nil).Code)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t, Options{})
	rec := doReq(t, f.h, http.MethodGet, "/api/gateway/status", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/gateway/status", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	svc, err := auth.NewAuthService(config.AuthConfig{Enabled: true, Username: "admin", PasswordHash: string(hash)})
	require.NoError(t, err)
	f := newFixture(t, Options{Auth: auth.NewMiddleware(svc), MetricsEnabled: true})

	rec := doReq(t, f.h, http.MethodGet, "/api/gateway/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/api/gateway/status", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/gateway/status", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// metrics live outside the authenticated group
	rec = doReq(t, f.h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServerTimeouts(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NotFoundHandler(), nil, 0)
	assert.Equal(t, 15*time.Second, srv.WriteTimeout)
	srv = NewServer("127.0.0.1:0", http.NotFoundHandler(), nil, 3*time.Minute)
	assert.Equal(t, 3*time.Minute, srv.WriteTimeout)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
}

type fakeSchedules []cron.Run

func (f fakeSchedules) Runs() []cron.Run { return f }

func TestSchedules(t *testing.T) {
	f := newFixture(t, Options{})
	rec := doReq(t, f.h, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"runs":[]}`, rec.Body.String())

	runs := fakeSchedules{{Job: "health", Runs: 3, Result: runner.Result{Success: true, Outcome: runner.OutcomeSuccess}}}
	f = newFixture(t, Options{Schedules: runs})
	rec = doReq(t, f.h, http.MethodGet, "/api/schedules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []cron.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, "health", body.Runs[0].Job)
	assert.EqualValues(t, 3, body.Runs[0].Runs)
	assert.True(t, body.Runs[0].Result.Success)
}
