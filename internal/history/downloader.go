package history

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shuttercut/shuttercut-agent/internal/logging"
	"github.com/shuttercut/shuttercut-agent/internal/render"
)

const maxDownloadAttempts = 3

// ResultFetcher downloads the rendered video of a completed backend job.
type ResultFetcher interface {
	DownloadResult(ctx context.Context, jobID string, w io.Writer) (int64, error)
}

// Downloader fetches the results of completed jobs into the data dir so
// they can be previewed locally after the backend forgets them.
type Downloader struct {
	repo         Repository
	fetcher      ResultFetcher
	dir          string
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool

	mu       sync.Mutex
	attempts map[string]int
}

func NewDownloader(repo Repository, fetcher ResultFetcher, dir string, logger *slog.Logger) *Downloader {
	return &Downloader{
		repo:         repo,
		fetcher:      fetcher,
		dir:          dir,
		logger:       logger,
		pollInterval: 5 * time.Second,
		attempts:     make(map[string]int),
	}
}

func (d *Downloader) Start(ctx context.Context) {
	if d.running.Swap(true) {
		return
	}

	d.logger.Info("result downloader started", "dir", logging.SanitizePath(d.dir))

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("result downloader stopping")
			d.running.Store(false)
			return
		case <-ticker.C:
			if !d.paused.Load() {
				d.ProcessPending(ctx)
			}
		}
	}
}

// Pause stops the background loop from fetching until Resume.
func (d *Downloader) Pause() {
	if !d.paused.Swap(true) {
		d.logger.Info("result downloader paused")
	}
}

func (d *Downloader) Resume() {
	if d.paused.Swap(false) {
		d.logger.Info("result downloader resumed")
	}
}

func (d *Downloader) IsPaused() bool {
	return d.paused.Load()
}

// Observe is installed next to the recorder as a render client observer.
// Downloads wait while an upload is using the link.
func (d *Downloader) Observe(s render.Snapshot) {
	if s.State == render.StateUploading {
		d.Pause()
		return
	}
	d.Resume()
}

// ProcessPending downloads every completed job without a local result and
// returns how many succeeded. Jobs that keep failing are skipped after a
// few attempts.
func (d *Downloader) ProcessPending(ctx context.Context) int {
	jobs, err := d.repo.ListPendingDownloads(ctx)
	if err != nil {
		d.logger.Error("failed to list pending downloads", "error", err)
		return 0
	}

	done := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if d.exhausted(job.ID) {
			continue
		}
		path, err := d.DefaultPath(job)
		if err != nil {
			d.fail(job.ID)
			d.logger.Warn("result download skipped", "job", job.ID, "error", err)
			continue
		}
		if _, err := d.Fetch(ctx, job, path); err != nil {
			n := d.fail(job.ID)
			logging.WithJobID(d.logger, job.RemoteID).Warn("result download failed", "attempt", n, "error", err)
			continue
		}
		done++
	}
	return done
}

// DefaultPath is where ProcessPending stores a job's result. Files are
// named after the local job id; the backend's id never reaches the file
// system.
func (d *Downloader) DefaultPath(job *Job) (string, error) {
	name := job.ID
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("job id %q is not a usable file name", job.ID)
	}
	return filepath.Join(d.dir, name+".mp4"), nil
}

// Fetch downloads the result of job to path and records it. The file is
// written under a temporary name and renamed once complete.
func (d *Downloader) Fetch(ctx context.Context, job *Job, path string) (int64, error) {
	if job.RemoteID == "" {
		return 0, fmt.Errorf("job %s has no backend id", job.ID)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create result directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := d.fetcher.DownloadResult(ctx, job.RemoteID, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("store result: %w", err)
	}
	if err := d.repo.SetResult(ctx, job.ID, path, n); err != nil {
		return n, fmt.Errorf("record result: %w", err)
	}

	job.ResultPath = path
	job.ResultBytes = n
	logging.WithJobID(d.logger, job.RemoteID).Info("result stored",
		"path", logging.SanitizePath(path),
		"size", humanize.Bytes(uint64(n)),
	)
	return n, nil
}

func (d *Downloader) exhausted(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts[id] >= maxDownloadAttempts
}

func (d *Downloader) fail(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts[id]++
	return d.attempts[id]
}
