package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/clawpanel/internal/config"
	"github.com/loykin/clawpanel/internal/server"
	paneltls "github.com/loykin/clawpanel/internal/tls"
	"github.com/spf13/cobra"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config-file]",
		Short: "Start the panel HTTP server",
		Long: `Start the panel server. Settings come from the optional config file and
from the environment: OPENCLAW_GUI_HOST and OPENCLAW_GUI_PORT select the
listener, CLAWPANEL_<SECTION>_<KEY> overrides any other key.

Examples:
  clawpanel serve
  clawpanel serve clawpanel.toml
  OPENCLAW_GUI_PORT=8080 clawpanel serve`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, path)
		},
	}
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	logger := cfg.Log.NewSlogger()
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	tlsCfg, err := paneltls.SetupTLS(cfg.Server)
	if err != nil {
		_ = a.Close(context.Background())
		return fmt.Errorf("failed to set up TLS: %w", err)
	}
	srv := server.NewServer(cfg.Server.Addr(), a.handler, tlsCfg, cfg.OpenClaw.AgentTimeout+30*time.Second)

	protocol := "http"
	errCh := make(chan error, 1)
	go func() {
		if tlsCfg != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()
	if tlsCfg != nil {
		protocol = "https"
	}
	logger.Info("clawpanel listening",
		"url", fmt.Sprintf("%s://%s%s", protocol, cfg.Server.Addr(), cfg.Server.BasePath),
		"openclaw", cfg.OpenClaw.Binary,
		"config", a.store.Path(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		if err != nil {
			err = fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.StopTimeout+5*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		logger.Warn("http shutdown", "error", serr)
	}
	if cerr := a.Close(shutdownCtx); cerr != nil {
		logger.Warn("shutdown", "error", cerr)
	}
	if err == nil {
		_, _ = fmt.Fprintln(os.Stderr, "clawpanel stopped")
	}
	return err
}
