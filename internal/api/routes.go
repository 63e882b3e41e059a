package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shuttercut/shuttercut-agent/internal/editor"
	"github.com/shuttercut/shuttercut-agent/internal/geometry"
	"github.com/shuttercut/shuttercut-agent/internal/media"
	"github.com/shuttercut/shuttercut-agent/internal/playback"
	"github.com/shuttercut/shuttercut-agent/internal/render"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORS(cfg.CORSOrigins))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/video", openVideoHandler(cfg))
		r.Put("/video/metadata", reportMetadataHandler(cfg))
		r.Put("/viewport", viewportHandler(cfg))

		r.Get("/overlays", listOverlaysHandler(cfg))
		r.Post("/overlays", addOverlayHandler(cfg))
		r.Patch("/overlays/{id}", updateOverlayHandler(cfg))
		r.Delete("/overlays/{id}", removeOverlayHandler(cfg))
		r.Post("/overlays/{id}/step", stepOverlayHandler(cfg))
		r.Post("/overlays/{id}/drag", dragOverlayHandler(cfg))
		r.Put("/selection", selectionHandler(cfg))
		r.Post("/clock", clockHandler(cfg))

		r.Post("/export", submitExportHandler(cfg))
		r.Get("/export", exportStatusHandler(cfg))
		r.Delete("/export", resetExportHandler(cfg))

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
	})

	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())

		mediaRoutes := map[string]http.HandlerFunc{
			"/media/video":         videoMediaHandler(cfg),
			"/media/overlays/{id}": overlayMediaHandler(cfg),
			"/jobs/{id}/result":    jobResultHandler(cfg),
		}
		for pattern, h := range mediaRoutes {
			r.Get(pattern, h)
			r.Head(pattern, h)
		}
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Session.Summary())
	}
}

func openVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenVideoRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		info, err := cfg.Session.OpenVideo(r.Context(), req.URI)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, info)
	}
}

func reportMetadataHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req MetadataRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		md := media.Metadata{Width: req.Width, Height: req.Height, Duration: req.Duration}
		if err := cfg.Session.ReportMetadata(md); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cfg.Session.Video())
	}
}

func viewportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ViewportRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		if err := cfg.Session.SetViewport(geometry.Size{Width: req.Width, Height: req.Height}); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clockHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClockRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		c := playback.Clock{Playing: req.Playing}
		if req.Position != nil {
			c.Known = true
			c.Position = *req.Position
		}
		WriteJSON(w, http.StatusOK, cfg.Session.Tick(c))
	}
}

// decodeRequest reads a JSON body into v and validates it, writing the
// error response itself on failure.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", CodeBadRequest)
		return false
	}

	if err := validate.Struct(v); err != nil {
		WriteError(w, http.StatusBadRequest, describeValidation(err), CodeValidation)
		return false
	}
	return true
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(problems, ", ")
}

// writeSessionError maps editor and render errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	var verr *render.ValidationError
	switch {
	case errors.Is(err, editor.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), CodeNotFound)
	case errors.Is(err, editor.ErrNoVideo),
		errors.Is(err, render.ErrBusy),
		errors.Is(err, media.ErrAlreadySet):
		WriteError(w, http.StatusConflict, err.Error(), CodeConflict)
	case errors.Is(err, editor.ErrInvalidEdit),
		errors.Is(err, editor.ErrMissingSource),
		errors.Is(err, media.ErrInvalidMetadata),
		errors.As(err, &verr):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeValidation)
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), CodeInternal)
	}
}
