package server

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loykin/clawpanel/internal/auth"
	"github.com/loykin/clawpanel/internal/cron"
	"github.com/loykin/clawpanel/internal/gateway"
	"github.com/loykin/clawpanel/internal/metrics"
	"github.com/loykin/clawpanel/internal/runner"
	"github.com/loykin/clawpanel/internal/settings"
)

// DefaultBasePath prefixes every API route unless configured otherwise.
const DefaultBasePath = "/api"

// Gateway is the supervisor surface used by the handlers.
type Gateway interface {
	Start(port int) error
	Stop() error
	Status() gateway.Status
	Tail(n int) []string
	LogCapacity() int
}

// Commands runs one-shot agent tool subcommands.
type Commands interface {
	Run(ctx context.Context, timeout time.Duration, args ...string) runner.Result
}

// Settings is the config document store.
type Settings interface {
	Path() string
	Load() settings.Document
	Replace(raw []byte) error
	SetField(section, key string, value any) error
	SetModel(model string) error
	ApplyChannels(f settings.ChannelForm) error
}

// Schedules reports the latest periodic command runs.
type Schedules interface {
	Runs() []cron.Run
}

// Options tunes the router. Zero values fall back to the package defaults.
type Options struct {
	BasePath           string
	DefaultGatewayPort int
	CommandTimeout     time.Duration
	AgentTimeout       time.Duration
	Auth               *auth.Middleware
	MetricsEnabled     bool
	MetricsPath        string
	Sampler            *metrics.ProcessSampler
	Schedules          Schedules
	Logger             *slog.Logger
}

// Router provides embeddable HTTP handlers for the panel.
// Endpoints, all relative to the base path:
//
//	GET  /health /status /version /doctor /skills /sessions /logs?lines=N
//	POST /gateway/start   body: {"port": N} (optional)
//	POST /gateway/stop
//	GET  /gateway/status
//	GET  /gateway/logs?lines=N
//	GET  /gateway/resources
//	POST /message/send    body: {"target", "message", "channel"}
//	POST /agent           body: {"message", "thinking"}
//	GET  /config          POST /config (whole document)
//	PUT  /config/field    body: {"section", "key", "value"}
//	POST /setup/model     POST /setup/channels
//	GET  /schedules
//
// The metrics endpoint, when enabled, is served outside the base path.
type Router struct {
	gw       Gateway
	cmds     Commands
	store    Settings
	basePath string
	opts     Options
	logger   *slog.Logger
}

// NewRouter constructs a Router. basePath "" selects DefaultBasePath; "/" mounts at the root.
func NewRouter(gw Gateway, cmds Commands, store Settings, opts Options) *Router {
	bp := DefaultBasePath
	if opts.BasePath != "" {
		bp = sanitizeBase(opts.BasePath)
	}
	if opts.DefaultGatewayPort <= 0 {
		opts.DefaultGatewayPort = gateway.DefaultPort
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = runner.DefaultTimeout
	}
	if opts.AgentTimeout <= 0 {
		opts.AgentTimeout = runner.AgentTimeout
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Router{gw: gw, cmds: cmds, store: store, basePath: bp, opts: opts, logger: l.With("component", "http")}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestID(), requestLogger(r.logger))
	if r.opts.MetricsEnabled {
		g.GET(r.opts.MetricsPath, gin.WrapH(metrics.Handler()))
	}

	group := g.Group(r.basePath)
	if r.opts.Auth != nil {
		group.Use(r.opts.Auth.GinAuth())
	}

	group.GET("/health", r.command("health"))
	group.GET("/status", r.command("status"))
	group.GET("/version", r.command("--version"))
	group.GET("/doctor", r.command("doctor"))
	group.GET("/skills", r.command("skills", "list"))
	group.GET("/sessions", r.handleSessions)
	group.GET("/logs", r.handleToolLogs)

	group.POST("/gateway/start", r.handleGatewayStart)
	group.POST("/gateway/stop", r.handleGatewayStop)
	group.GET("/gateway/status", r.handleGatewayStatus)
	group.GET("/gateway/logs", r.handleGatewayLogs)
	group.GET("/gateway/resources", r.handleGatewayResources)

	group.POST("/message/send", r.handleMessageSend)
	group.POST("/agent", r.handleAgent)

	group.GET("/config", r.handleConfigGet)
	group.POST("/config", r.handleConfigReplace)
	group.PUT("/config/field", r.handleConfigField)
	group.POST("/setup/model", r.handleSetupModel)
	group.POST("/setup/channels", r.handleSetupChannels)
	group.GET("/schedules", r.handleSchedules)
	return g
}

// NewServer builds a standalone HTTP server for handler. writeTimeout must
// cover the longest command a handler may wait for; <= 0 selects 15s.
func NewServer(addr string, handler http.Handler, tlsCfg *tls.Config, writeTimeout time.Duration) *http.Server {
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
