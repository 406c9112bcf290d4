package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/loykin/clawpanel/internal/auth"
	"github.com/loykin/clawpanel/internal/config"
	"github.com/loykin/clawpanel/internal/cron"
	"github.com/loykin/clawpanel/internal/env"
	"github.com/loykin/clawpanel/internal/gateway"
	"github.com/loykin/clawpanel/internal/history"
	"github.com/loykin/clawpanel/internal/history/factory"
	"github.com/loykin/clawpanel/internal/metrics"
	"github.com/loykin/clawpanel/internal/runner"
	"github.com/loykin/clawpanel/internal/server"
	"github.com/loykin/clawpanel/internal/settings"
	"github.com/prometheus/client_golang/prometheus"
)

// app wires the panel components for one serve run.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	hist       *history.Dispatcher
	sampler    *metrics.ProcessSampler
	supervisor *gateway.Supervisor
	store      *settings.Store
	runner     *runner.Runner
	scheduler  *cron.Scheduler
	handler    http.Handler
	closers    []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.History.Enabled && len(cfg.History.Sinks) > 0 {
		sinks, err := factory.NewSinks(cfg.History.Sinks)
		if err != nil {
			return nil, err
		}
		a.hist = history.NewDispatcher(logger, cfg.History.SendTimeout, sinks...)
		logger.Info("history enabled", "sinks", a.hist.Len())
	}

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			logger.Warn("failed to register metrics", "error", err)
		}
	}

	pairs, err := cfg.OpenClawEnv()
	if err != nil {
		_ = a.hist.Close()
		return nil, fmt.Errorf("openclaw env: %w", err)
	}
	childEnv := env.FromPairs(pairs).FromOS()

	gwOpts := []gateway.Option{
		gateway.WithLogger(logger),
		gateway.WithEnv(childEnv),
		gateway.WithHistory(a.hist),
	}
	if cfg.Gateway.LogFile {
		if w := cfg.Log.ProcessWriter(gateway.Name); w != nil {
			gwOpts = append(gwOpts, gateway.WithOutputFile(w))
			a.closers = append(a.closers, w)
		} else {
			logger.Warn("gateway.log_file set but log.file.dir is empty")
		}
	}
	a.supervisor = gateway.New(gateway.Config{
		Binary:      cfg.OpenClaw.Binary,
		WorkDir:     cfg.OpenClaw.WorkDir,
		StopTimeout: cfg.Gateway.StopTimeout,
		LogCapacity: cfg.Gateway.LogCapacity,
	}, gwOpts...)

	a.runner = runner.New(runner.Config{
		Binary:  cfg.OpenClaw.Binary,
		WorkDir: cfg.OpenClaw.WorkDir,
		Timeout: cfg.OpenClaw.CommandTimeout,
	}, runner.WithLogger(logger), runner.WithEnv(childEnv), runner.WithHistory(a.hist))

	a.store = settings.New(cfg.OpenClaw.ConfigPath, logger)

	a.sampler = metrics.NewProcessSampler(cfg.Metrics.Sampler)
	if a.sampler.IsEnabled() {
		if cfg.Metrics.Enabled {
			if err := a.sampler.Register(prometheus.DefaultRegisterer); err != nil {
				logger.Warn("failed to register gateway sampler", "error", err)
			}
		}
		a.sampler.Start(ctx, a.supervisor.PID)
	}

	a.scheduler = cron.NewScheduler(a.runner, logger)
	for _, sc := range cfg.Schedules {
		if err := a.scheduler.Add(&cron.Job{Name: sc.Name, Args: sc.Args, Schedule: sc.Schedule, Timeout: sc.Timeout}); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("schedule: %w", err)
		}
	}
	if a.scheduler.Len() > 0 {
		if err := a.scheduler.Start(ctx); err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("schedule: %w", err)
		}
		logger.Info("started scheduled commands", "jobs", a.scheduler.Len())
	}

	var mw *auth.Middleware
	if cfg.Server.Auth.Enabled {
		svc, err := auth.NewAuthService(cfg.Server.Auth)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("auth: %w", err)
		}
		mw = auth.NewMiddleware(svc)
	}

	basePath := cfg.Server.BasePath
	if basePath == "" {
		basePath = "/"
	}
	router := server.NewRouter(a.supervisor, a.runner, a.store, server.Options{
		BasePath:           basePath,
		DefaultGatewayPort: cfg.Gateway.DefaultPort,
		CommandTimeout:     cfg.OpenClaw.CommandTimeout,
		AgentTimeout:       cfg.OpenClaw.AgentTimeout,
		Auth:               mw,
		MetricsEnabled:     cfg.Metrics.Enabled,
		MetricsPath:        cfg.Metrics.Path,
		Sampler:            a.sampler,
		Schedules:          a.scheduler,
		Logger:             logger,
	})
	a.handler = router.Handler()
	return a, nil
}

// Close stops the background loops, then the gateway, then the history sinks.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	a.sampler.Stop()
	if err := a.supervisor.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("gateway: %w", err))
	}
	if err := a.hist.Close(); err != nil {
		errs = append(errs, fmt.Errorf("history: %w", err))
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
	return errors.Join(errs...)
}
