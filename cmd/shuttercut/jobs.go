package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/shuttercut/shuttercut-agent/internal/config"
	"github.com/shuttercut/shuttercut-agent/internal/history"
	"github.com/shuttercut/shuttercut-agent/internal/logging"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent render jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runJobs(cmd.Context(), cfg, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	return cmd
}

func runJobs(ctx context.Context, cfg config.Config, limit int, out io.Writer) error {
	logger := logging.Discard()

	st, err := openStore(ctx, cfg, false, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	jobs, err := st.repo.ListJobs(ctx, limit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No render jobs yet")
		return nil
	}

	fmt.Fprint(out, formatJobs(jobs))
	fmt.Fprintln(out)
	return nil
}

func formatJobs(jobs []*history.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			shortID(job.ID),
			orDash(job.RemoteID),
			jobStatusLabel(job),
			strconv.Itoa(job.Progress) + "%",
			strconv.Itoa(job.OverlayCount),
			humanize.Time(job.CreatedAt),
			jobResultLabel(job),
		})
	}
	return renderTable(
		[]string{"ID", "Remote", "Status", "Progress", "Overlays", "Created", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
	)
}

func jobStatusLabel(job *history.Job) string {
	if job.Error == "" {
		return job.Status
	}
	return job.Status + ": " + job.Error
}

func jobResultLabel(job *history.Job) string {
	if job.HasResult() {
		return fmt.Sprintf("%s (%s)", job.ResultPath, humanize.Bytes(uint64(job.ResultBytes)))
	}
	if job.Status == history.JobStatusCompleted {
		return "not downloaded"
	}
	return "-"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
