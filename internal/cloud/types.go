package cloud

// Job statuses reported by the render backend.
const (
	StatusQueued     = "queued"
	StatusRunning    = "running"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status,omitempty"`
}

// StatusResponse is the body of GET /status/{job_id}. Progress and Error
// are optional on the wire.
type StatusResponse struct {
	JobID    string   `json:"job_id,omitempty"`
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	Error    *string  `json:"error,omitempty"`
}

// HealthResponse is the body of GET / on the render backend.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}
