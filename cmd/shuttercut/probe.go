package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shuttercut/shuttercut-agent/internal/config"
	"github.com/shuttercut/shuttercut-agent/internal/logging"
	"github.com/shuttercut/shuttercut-agent/internal/media"
)

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe VIDEO",
		Short: "Print the native resolution and duration of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runProbe(cmd.Context(), cfg, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runProbe(ctx context.Context, cfg config.Config, path string, out, errOut io.Writer) error {
	logger := logging.New(errOut, cfg.LogLevel())

	probe, err := media.NewFFProbe(cfg.FFProbePath(), 0, logger)
	if err != nil {
		return err
	}
	md, err := probe.Load(ctx, path)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, formatMetadata(md))
	return nil
}

func formatMetadata(md media.Metadata) string {
	d := time.Duration(md.Duration * float64(time.Second)).Round(time.Millisecond)
	return fmt.Sprintf("%dx%d, %s (%.3fs)", md.Width, md.Height, d, md.Duration)
}
