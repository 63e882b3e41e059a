package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuttercut/shuttercut-agent/internal/api"
	"github.com/shuttercut/shuttercut-agent/internal/cloud"
	"github.com/shuttercut/shuttercut-agent/internal/config"
	"github.com/shuttercut/shuttercut-agent/internal/editor"
	"github.com/shuttercut/shuttercut-agent/internal/history"
	"github.com/shuttercut/shuttercut-agent/internal/logging"
	"github.com/shuttercut/shuttercut-agent/internal/playback"
	"github.com/shuttercut/shuttercut-agent/internal/render"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local editing API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func runServe(parent context.Context, cfg config.Config, out io.Writer) error {
	startTime := time.Now()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting shuttercut agent", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	st, err := openStore(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	authToken, err := history.EnsureAuthToken(ctx, st.repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║                  SHUTTERCUT AGENT v%-22s ║\n", config.Version)
	fmt.Fprintln(out, "╠═══════════════════════════════════════════════════════════╣")
	fmt.Fprintf(out, "║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Fprintf(out, "║  Auth Token: %-45s ║\n", authToken)
	fmt.Fprintf(out, "║  Backend:    %-45s ║\n", cfg.BackendURL())
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	backend := cloud.NewHTTPClient(cfg.BackendURL(), cloud.HTTPClientOptions{
		Token:          cfg.BackendToken(),
		RequestTimeout: cfg.RequestTimeout(),
		UploadTimeout:  cfg.UploadTimeout(),
	}, logging.WithComponent(logger, "cloud"))

	healthCtx, healthCancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	if h, err := backend.Health(healthCtx); err != nil {
		logger.Warn("render backend unreachable; renders will fail until it is up", "url", cfg.BackendURL(), "error", err)
	} else {
		logger.Info("render backend reachable", "service", h.Service, "version", h.Version)
	}
	healthCancel()

	recorder := history.NewRecorder(st.repo, logging.WithComponent(logger, "history"))
	downloader := history.NewDownloader(st.repo, backend, cfg.ResultsDir(), logging.WithComponent(logger, "downloader"))
	jobs := render.NewClient(backend, render.Options{
		PollInterval: cfg.PollInterval(),
		MaxPolls:     cfg.MaxPolls(),
		Observer: func(s render.Snapshot) {
			recorder.Observe(s)
			downloader.Observe(s)
		},
	}, logging.WithComponent(logger, "render"))

	session := editor.NewSession(editor.Options{
		Loader: newLoader(cfg, logger),
		Jobs:   jobs,
		OnSubmit: func(c render.Composition) {
			recorder.Prepare(history.SubmissionFor(c))
		},
	}, logging.WithComponent(logger, "editor"))

	go downloader.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:        cfg.Port(),
		Session:     session,
		Repository:  st.repo,
		Media:       playback.NewMediaServer(logger),
		CORSOrigins: cfg.CORSOrigins(),
		Logger:      logger,
		StartTime:   startTime,
		Version:     config.Version,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	jobs.Reset()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
