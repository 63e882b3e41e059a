// Package render runs one render job at a time against the backend: upload,
// then poll until the job completes, fails or the poll budget runs out.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shuttercut/shuttercut-agent/internal/cloud"
	"github.com/shuttercut/shuttercut-agent/internal/export"
	"github.com/shuttercut/shuttercut-agent/internal/geometry"
	"github.com/shuttercut/shuttercut-agent/internal/logging"
	"github.com/shuttercut/shuttercut-agent/internal/media"
	"github.com/shuttercut/shuttercut-agent/internal/overlay"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 300
)

type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

// Terminal reports whether the state only changes through Reset.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// Active reports whether a run is uploading or polling.
func (s State) Active() bool {
	return s == StateUploading || s == StateProcessing
}

// Transport is the subset of the backend client the job client needs.
type Transport interface {
	Upload(ctx context.Context, p *export.Payload, onProgress cloud.ProgressFunc) (*cloud.UploadResponse, error)
	Status(ctx context.Context, jobID string) (*cloud.StatusResponse, error)
	ResultURL(jobID string) string
}

// Composition is everything a submission needs from the editor.
type Composition struct {
	VideoURI string
	// Metadata is nil until the media loader has reported.
	Metadata *media.Metadata
	Viewport geometry.Size
	Overlays []overlay.Overlay
}

// Snapshot is the observable state of the client.
type Snapshot struct {
	State     State  `json:"state"`
	JobID     string `json:"job_id,omitempty"`
	Progress  int    `json:"progress"`
	ResultURL string `json:"result_url,omitempty"`
	Polls     int    `json:"polls"`
	Message   string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

type Options struct {
	PollInterval time.Duration
	MaxPolls     int
	// Observer receives every snapshot in order. It must not call back
	// into the Client.
	Observer func(Snapshot)
}

// run is one submission. Reset cancels it and detaches it from the client,
// after which anything it reports is dropped.
type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Client struct {
	transport Transport
	opts      Options
	logger    *slog.Logger

	mu   sync.Mutex
	snap Snapshot
	run  *run

	notifyMu sync.Mutex
}

func NewClient(transport Transport, opts Options, logger *slog.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = DefaultMaxPolls
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Client{
		transport: transport,
		opts:      opts,
		logger:    logger,
		snap:      Snapshot{State: StateIdle},
	}
}

// Submit validates the composition and starts a run. It returns once the
// upload has started; the run outlives ctx's cancellation but keeps its
// values.
func (c *Client) Submit(ctx context.Context, comp Composition) error {
	if s := c.Snapshot(); s.State != StateIdle {
		return ErrBusy
	}

	payload, err := prepare(comp)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.snap.State != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{cancel: cancel, done: make(chan struct{})}
	c.run = r
	c.snap = Snapshot{State: StateUploading}
	c.publishLocked()

	go c.execute(runCtx, r, payload)
	return nil
}

func prepare(comp Composition) (*export.Payload, error) {
	if comp.VideoURI == "" {
		return nil, &ValidationError{Reason: "no base video loaded"}
	}
	if comp.Metadata == nil {
		return nil, &ValidationError{Reason: "video metadata is not known yet"}
	}
	fit, err := geometry.Contain(comp.Viewport, *comp.Metadata)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	payload, err := export.Build(comp.VideoURI, comp.Overlays, fit)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	return payload, nil
}

// Reset cancels any run, discards its late results and returns to idle.
func (c *Client) Reset() {
	c.mu.Lock()
	if c.run != nil {
		c.run.cancel()
		c.run = nil
	}
	c.snap = Snapshot{State: StateIdle}
	c.publishLocked()
}

func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Wait blocks until the current run stops or ctx is done.
func (c *Client) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()

	if r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
	return c.Snapshot(), nil
}

func (c *Client) execute(ctx context.Context, r *run, payload *export.Payload) {
	defer close(r.done)

	resp, err := c.transport.Upload(ctx, payload, func(pct int) {
		c.apply(r, "", func(s *Snapshot) {
			if s.State == StateUploading {
				s.Progress = clampPercent(float64(pct))
			}
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		uploadErr := classifyUpload(err)
		c.logger.Warn("render upload failed", "error", uploadErr)
		c.apply(r, "", func(s *Snapshot) {
			*s = Snapshot{State: StateIdle, Err: uploadErr, Message: userMessage(uploadErr)}
		})
		return
	}

	jobID := resp.JobID
	if !c.apply(r, "", func(s *Snapshot) {
		*s = Snapshot{State: StateProcessing, JobID: jobID}
	}) {
		return
	}
	logging.WithJobID(c.logger, jobID).Info("render job processing")
	c.poll(ctx, r, jobID)
}

func (c *Client) poll(ctx context.Context, r *run, jobID string) {
	logger := logging.WithJobID(c.logger, jobID)
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		polls++
		if polls > c.opts.MaxPolls {
			timeout := &TimeoutError{JobID: jobID, Attempts: c.opts.MaxPolls}
			logger.Warn("render job timed out", "polls", c.opts.MaxPolls)
			c.apply(r, jobID, func(s *Snapshot) {
				s.State = StateTimedOut
				s.Progress = 0
				s.Err = timeout
				s.Message = timeout.Error()
			})
			return
		}

		// the next tick waits for this query, so polls never overlap
		st, err := c.transport.Status(ctx, jobID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Debug("status check failed", "poll", polls, "error", err)
			c.apply(r, jobID, func(s *Snapshot) { s.Polls = polls })
			continue
		}

		switch st.Status {
		case cloud.StatusCompleted:
			url := c.transport.ResultURL(jobID)
			logger.Info("render job completed", "polls", polls)
			c.apply(r, jobID, func(s *Snapshot) {
				s.State = StateCompleted
				s.Progress = 100
				s.ResultURL = url
				s.Polls = polls
			})
			return
		case cloud.StatusFailed:
			msg := DefaultFailureMessage
			if st.Error != nil && *st.Error != "" {
				msg = *st.Error
			}
			failure := &ServerError{JobID: jobID, Message: msg}
			logger.Warn("render job failed", "error", msg)
			c.apply(r, jobID, func(s *Snapshot) {
				s.State = StateFailed
				s.Progress = 0
				s.Polls = polls
				s.Err = failure
				s.Message = msg
			})
			return
		default:
			c.apply(r, jobID, func(s *Snapshot) {
				s.Polls = polls
				if st.Progress != nil {
					s.Progress = clampPercent(*st.Progress)
				}
			})
		}
	}
}

// apply mutates the snapshot on behalf of run r. Updates from a detached
// run, or for a job id other than the tracked one, are dropped.
func (c *Client) apply(r *run, jobID string, fn func(*Snapshot)) bool {
	c.mu.Lock()
	if c.run != r || (jobID != "" && c.snap.JobID != jobID) {
		c.mu.Unlock()
		return false
	}
	fn(&c.snap)
	c.publishLocked()
	return true
}

// publishLocked hands the snapshot to the observer and releases c.mu.
// notifyMu is taken before c.mu is released so observers see snapshots in
// mutation order.
func (c *Client) publishLocked() {
	snap := c.snap
	if c.opts.Observer == nil {
		c.mu.Unlock()
		return
	}
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	c.opts.Observer(snap)
}

func classifyUpload(err error) error {
	var apiErr *cloud.APIError
	if errors.As(err, &apiErr) {
		return &ServerError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message(),
			Retryable:  apiErr.IsRetryable(),
		}
	}
	return &TransportError{Op: "upload", Err: err}
}

func userMessage(err error) string {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		if serverErr.Retryable {
			return serverErr.Message + " (the render service is having trouble, please try again)"
		}
		return serverErr.Message
	}
	return fmt.Sprintf("Upload failed: %v", errors.Unwrap(err))
}

func clampPercent(p float64) int {
	if math.IsNaN(p) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, p))))
}
