package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shuttercut/shuttercut-agent/internal/cloud"
	"github.com/shuttercut/shuttercut-agent/internal/config"
	"github.com/shuttercut/shuttercut-agent/internal/editor"
	"github.com/shuttercut/shuttercut-agent/internal/export"
	"github.com/shuttercut/shuttercut-agent/internal/history"
	"github.com/shuttercut/shuttercut-agent/internal/logging"
	"github.com/shuttercut/shuttercut-agent/internal/project"
	"github.com/shuttercut/shuttercut-agent/internal/render"
)

// renderBackend is what a headless render needs from the cloud client.
type renderBackend interface {
	render.Transport
	history.ResultFetcher
}

type renderOptions struct {
	out        string
	dryRun     bool
	noProgress bool
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render PROJECT",
		Short: "Submit a project file for rendering and download the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRender(runCtx, cfg, args[0], opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Where to write the rendered video (default: the results directory)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Build and validate the upload without contacting the backend")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Do not report progress")
	return cmd
}

func runRender(ctx context.Context, cfg config.Config, path string, opts renderOptions, out, errOut io.Writer) error {
	proj, err := project.Load(path)
	if err != nil {
		return err
	}
	if opts.out != "" {
		if err := export.ValidateOutputPath(opts.out); err != nil {
			return err
		}
	}

	level := cfg.LogLevel()
	if isTerminal(errOut) && logging.ParseLevel(level) < slog.LevelWarn {
		level = "warn"
	}
	logger := logging.New(errOut, level)

	st, err := openStore(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	var backend renderBackend
	if opts.dryRun {
		backend = cloud.NewStubClient(logging.WithComponent(logger, "cloud"))
	} else {
		backend = cloud.NewHTTPClient(cfg.BackendURL(), cloud.HTTPClientOptions{
			Token:          cfg.BackendToken(),
			RequestTimeout: cfg.RequestTimeout(),
			UploadTimeout:  cfg.UploadTimeout(),
		}, logging.WithComponent(logger, "cloud"))
	}

	recorder := history.NewRecorder(st.repo, logging.WithComponent(logger, "history"))
	reporter := newProgressReporter(errOut, opts.noProgress)
	jobs := render.NewClient(backend, render.Options{
		PollInterval: cfg.PollInterval(),
		MaxPolls:     cfg.MaxPolls(),
		Observer: func(s render.Snapshot) {
			recorder.Observe(s)
			reporter.Observe(s)
		},
	}, logging.WithComponent(logger, "render"))

	session := editor.NewSession(editor.Options{
		Loader: newLoader(cfg, logger),
		Jobs:   jobs,
		OnSubmit: func(c render.Composition) {
			recorder.Prepare(history.SubmissionFor(c))
		},
	}, logging.WithComponent(logger, "editor"))

	if err := proj.Apply(ctx, session); err != nil {
		return err
	}
	if err := session.Submit(ctx); err != nil {
		return err
	}

	snap, err := jobs.Wait(ctx)
	reporter.Finish()
	if err != nil {
		jobs.Reset()
		return err
	}

	if snap.State != render.StateCompleted {
		if snap.Err != nil {
			return snap.Err
		}
		if snap.Message != "" {
			return fmt.Errorf("render %s: %s", snap.State, snap.Message)
		}
		return fmt.Errorf("render ended in state %s", snap.State)
	}

	job, ok := recorder.Current()
	if !ok {
		return errors.New("render completed but no job was recorded")
	}
	if opts.dryRun {
		fmt.Fprintf(out, "Dry run accepted as %s (%d overlays, %d assets)\n", job.RemoteID, job.OverlayCount, job.AssetCount)
		return nil
	}

	downloader := history.NewDownloader(st.repo, backend, cfg.ResultsDir(), logging.WithComponent(logger, "downloader"))
	target := opts.out
	if target == "" {
		if target, err = downloader.DefaultPath(&job); err != nil {
			return err
		}
	}
	n, err := downloader.Fetch(ctx, &job, target)
	if err != nil {
		return fmt.Errorf("download result: %w", err)
	}

	fmt.Fprintf(out, "Rendered %s (%s)\n", target, humanize.Bytes(uint64(n)))
	return nil
}
