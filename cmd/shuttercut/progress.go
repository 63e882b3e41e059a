package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/shuttercut/shuttercut-agent/internal/render"
)

// progressReporter renders render client snapshots for a person watching a
// single export.
type progressReporter interface {
	Observe(render.Snapshot)
	Finish()
}

func newProgressReporter(w io.Writer, quiet bool) progressReporter {
	if quiet {
		return nopReporter{}
	}
	if isTerminal(w) {
		return newBarReporter(w)
	}
	return &lineReporter{w: w}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

type nopReporter struct{}

func (nopReporter) Observe(render.Snapshot) {}
func (nopReporter) Finish()                 {}

type barReporter struct {
	bar   *progressbar.ProgressBar
	state render.State
}

func newBarReporter(w io.Writer) *barReporter {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return &barReporter{bar: bar}
}

func (r *barReporter) Observe(s render.Snapshot) {
	if s.State != r.state {
		r.state = s.State
		r.bar.Describe(string(s.State))
	}
	_ = r.bar.Set(s.Progress)
}

func (r *barReporter) Finish() {
	_ = r.bar.Finish()
}

// lineReporter prints one line per state change and per 10% of progress,
// for logs and pipes.
type lineReporter struct {
	w        io.Writer
	state    render.State
	reported int
}

func (r *lineReporter) Observe(s render.Snapshot) {
	if s.State == r.state && s.Progress < r.reported+10 {
		return
	}
	if s.State != r.state {
		r.reported = 0
	}
	r.state = s.State
	r.reported = s.Progress - s.Progress%10

	switch {
	case s.Message != "":
		fmt.Fprintf(r.w, "%s: %s\n", s.State, s.Message)
	case s.JobID != "":
		fmt.Fprintf(r.w, "%s %3d%% (job %s)\n", s.State, s.Progress, s.JobID)
	default:
		fmt.Fprintf(r.w, "%s %3d%%\n", s.State, s.Progress)
	}
}

func (r *lineReporter) Finish() {}
