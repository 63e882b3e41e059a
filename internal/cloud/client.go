package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shuttercut/shuttercut-agent/internal/export"
)

// ProgressFunc receives upload progress as a percentage in [0, 100].
type ProgressFunc func(percent int)

// Client is the render backend as seen by the agent.
type Client interface {
	Upload(ctx context.Context, p *export.Payload, onProgress ProgressFunc) (*UploadResponse, error)
	Status(ctx context.Context, jobID string) (*StatusResponse, error)
	ResultURL(jobID string) string
	DownloadResult(ctx context.Context, jobID string, w io.Writer) (int64, error)
	Health(ctx context.Context) (*HealthResponse, error)
}

// StubClient accepts every upload and reports the job completed on the
// first status query. Used for dry runs.
type StubClient struct {
	mu     sync.Mutex
	jobs   map[string]int
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{
		jobs:   make(map[string]int),
		logger: logger,
	}
}

func (c *StubClient) Upload(ctx context.Context, p *export.Payload, onProgress ProgressFunc) (*UploadResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := "dry-run-" + uuid.NewString()
	c.mu.Lock()
	c.jobs[id] = len(p.Metadata)
	c.mu.Unlock()

	c.logger.Info("cloud stub: upload accepted",
		"job_id", id,
		"video", p.Video.Filename,
		"assets", len(p.Assets),
		"overlays", len(p.Metadata),
	)
	if onProgress != nil {
		onProgress(100)
	}
	return &UploadResponse{JobID: id, Status: StatusQueued}, nil
}

func (c *StubClient) Status(ctx context.Context, jobID string) (*StatusResponse, error) {
	c.mu.Lock()
	_, ok := c.jobs[jobID]
	c.mu.Unlock()
	if !ok {
		return nil, &APIError{StatusCode: 404, Body: `{"detail":"Job not found"}`}
	}
	done := 100.0
	return &StatusResponse{JobID: jobID, Status: StatusCompleted, Progress: &done}, nil
}

func (c *StubClient) ResultURL(jobID string) string {
	return "stub://result/" + jobID
}

func (c *StubClient) DownloadResult(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	return 0, fmt.Errorf("cloud stub: no result for job %s", jobID)
}

func (c *StubClient) Health(ctx context.Context) (*HealthResponse, error) {
	return &HealthResponse{Status: "healthy", Service: "stub", Version: "0"}, nil
}

// Opener opens the bytes behind an asset URI and reports their size.
type Opener func(uri string) (io.ReadCloser, int64, error)

// OpenLocal opens plain paths and file:// URIs.
func OpenLocal(uri string) (io.ReadCloser, int64, error) {
	path := strings.TrimPrefix(uri, "file://")
	f, err := openFile(path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", path)
	}
	return f, info.Size(), nil
}
