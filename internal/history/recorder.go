package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shuttercut/shuttercut-agent/internal/render"
)

// Submission describes what is about to be uploaded.
type Submission struct {
	VideoURI     string
	OverlayCount int
	AssetCount   int
}

// SubmissionFor describes a composition about to be submitted.
func SubmissionFor(c render.Composition) Submission {
	s := Submission{VideoURI: c.VideoURI, OverlayCount: len(c.Overlays)}
	for _, o := range c.Overlays {
		if o.Kind.HasAsset() {
			s.AssetCount++
		}
	}
	return s
}

// Recorder mirrors render client snapshots into the jobs table. Like the
// client it tracks a single job at a time.
type Recorder struct {
	repo   Repository
	logger *slog.Logger

	mu      sync.Mutex
	next    Submission
	current *Job
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Prepare stashes the description used for the row opened by the next
// uploading snapshot.
func (r *Recorder) Prepare(s Submission) {
	r.mu.Lock()
	r.next = s
	r.mu.Unlock()
}

// Current returns a copy of the tracked job, if any.
func (r *Recorder) Current() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Job{}, false
	}
	return *r.current, true
}

// Observe is installed as the render client's observer.
func (r *Recorder) Observe(s render.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.State == render.StateIdle {
		r.closeIdle(ctx, s)
		return
	}

	if r.current == nil || r.current.Finished() {
		if s.State != render.StateUploading {
			return
		}
		r.open(ctx)
	}

	j := r.current
	status := statusFor(s.State)
	if j.Status == status && j.Progress == s.Progress && j.Polls == s.Polls && j.RemoteID == s.JobID {
		return
	}
	j.Status = status
	j.Progress = s.Progress
	j.Polls = s.Polls
	j.RemoteID = s.JobID
	j.ResultURL = s.ResultURL
	j.Error = s.Message
	r.save(ctx, j)
}

func (r *Recorder) open(ctx context.Context) {
	now := time.Now().UTC()
	j := &Job{
		ID:           uuid.NewString(),
		VideoURI:     r.next.VideoURI,
		OverlayCount: r.next.OverlayCount,
		AssetCount:   r.next.AssetCount,
		Status:       JobStatusUploading,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	r.next = Submission{}
	r.current = j
	if err := r.repo.CreateJob(ctx, j); err != nil && r.logger != nil {
		r.logger.Warn("failed to record render job", "id", j.ID, "error", err)
	}
}

// closeIdle handles the client returning to idle: an upload failure, a
// reset of a running job, or a reset after a terminal state.
func (r *Recorder) closeIdle(ctx context.Context, s render.Snapshot) {
	j := r.current
	r.current = nil
	if j == nil || j.Finished() {
		return
	}
	if s.Err != nil {
		j.Status = JobStatusUploadFailed
		j.Error = s.Message
	} else {
		j.Status = JobStatusCancelled
	}
	r.save(ctx, j)
}

func (r *Recorder) save(ctx context.Context, j *Job) {
	if err := r.repo.UpdateJob(ctx, j); err != nil && r.logger != nil {
		r.logger.Warn("failed to update render job", "id", j.ID, "status", j.Status, "error", err)
	}
}

func statusFor(s render.State) string {
	switch s {
	case render.StateUploading:
		return JobStatusUploading
	case render.StateProcessing:
		return JobStatusProcessing
	case render.StateCompleted:
		return JobStatusCompleted
	case render.StateFailed:
		return JobStatusFailed
	case render.StateTimedOut:
		return JobStatusTimedOut
	default:
		return string(s)
	}
}
