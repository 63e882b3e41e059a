// Package history records render submissions in SQLite and keeps the
// agent's small key/value config (API token).
package history

import (
	"time"
)

const (
	JobStatusUploading    = "uploading"
	JobStatusProcessing   = "processing"
	JobStatusCompleted    = "completed"
	JobStatusFailed       = "failed"
	JobStatusTimedOut     = "timed_out"
	JobStatusUploadFailed = "upload_failed"
	JobStatusCancelled    = "cancelled"
	JobStatusInterrupted  = "interrupted"

	ConfigKeyAuthToken = "auth_token"
)

// Job is one render submission as the agent saw it.
type Job struct {
	ID           string    `json:"id"`
	RemoteID     string    `json:"remote_id,omitempty"`
	VideoURI     string    `json:"video_uri"`
	OverlayCount int       `json:"overlay_count"`
	AssetCount   int       `json:"asset_count"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	Polls        int       `json:"polls"`
	Error        string    `json:"error,omitempty"`
	ResultURL    string    `json:"result_url,omitempty"`
	ResultPath   string    `json:"result_path,omitempty"`
	ResultBytes  int64     `json:"result_bytes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Finished reports whether the job will not change any more.
func (j *Job) Finished() bool {
	switch j.Status {
	case JobStatusUploading, JobStatusProcessing:
		return false
	default:
		return true
	}
}

// HasResult reports whether the rendered video is on local disk.
func (j *Job) HasResult() bool {
	return j.ResultPath != ""
}
