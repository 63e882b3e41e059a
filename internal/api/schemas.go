package api

import (
	"github.com/shuttercut/shuttercut-agent/internal/editor"
	"github.com/shuttercut/shuttercut-agent/internal/history"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeInternal     = "INTERNAL_ERROR"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type OpenVideoRequest struct {
	URI string `json:"uri" validate:"required"`
}

type MetadataRequest struct {
	Width    int     `json:"native_width" validate:"gt=0"`
	Height   int     `json:"native_height" validate:"gt=0"`
	Duration float64 `json:"duration_seconds" validate:"gte=0"`
}

type ViewportRequest struct {
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

type AddOverlayRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=text image video"`
	Content   string `json:"content"`
	SourceURI string `json:"source_uri"`
}

type StepRequest struct {
	Field     string `json:"field" validate:"required,oneof=start end font_size size"`
	Direction int    `json:"direction" validate:"oneof=-1 1"`
}

type DragRequest struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type SelectionRequest struct {
	ID string `json:"id"`
}

// ClockRequest is one master clock event. A missing position means the
// base video has not reported one yet.
type ClockRequest struct {
	Playing  bool     `json:"playing"`
	Position *float64 `json:"position" validate:"omitempty,gte=0"`
}

type OverlaysResponse struct {
	Overlays []editor.OverlayView `json:"overlays"`
}

type JobsResponse struct {
	Jobs []*history.Job `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
