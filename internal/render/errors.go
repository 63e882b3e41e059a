package render

import (
	"errors"
	"fmt"
)

// ErrBusy is returned by Submit when a job is already active or a terminal
// state has not been reset.
var ErrBusy = errors.New("render job already in progress")

// DefaultFailureMessage is shown when the backend marks a job failed
// without saying why.
const DefaultFailureMessage = "Video rendering failed. Please try again."

// ValidationError rejects a submission before any network call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid render request: " + e.Reason
}

// TransportError is a network failure talking to the backend.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerError is a non-2xx upload response (StatusCode set) or a job the
// backend reported as failed (JobID set). Retryable marks upload rejections
// caused by the backend itself rather than the request.
type ServerError struct {
	StatusCode int
	JobID      string
	Message    string
	Retryable  bool
}

func (e *ServerError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("render backend rejected upload (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("render job %s failed: %s", e.JobID, e.Message)
}

// TimeoutError means the poll budget ran out with the job unresolved.
type TimeoutError struct {
	JobID    string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("render job %s did not finish after %d status checks", e.JobID, e.Attempts)
}
