package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

const defaultJobsLimit = 50

func submitExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.Submit(r.Context()); err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, cfg.Session.Job())
	}
}

func exportStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Session.Job())
	}
}

func resetExportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Session.ResetJob()
		w.WriteHeader(http.StatusNoContent)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultJobsLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", CodeBadRequest)
				return
			}
			limit = n
		}

		jobs, err := cfg.Repository.ListJobs(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", CodeInternal)
			return
		}
		WriteJSON(w, http.StatusOK, JobsResponse{Jobs: jobs})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Repository.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), CodeInternal)
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", CodeNotFound)
			return
		}
		WriteJSON(w, http.StatusOK, job)
	}
}

func jobResultHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), CodeInternal)
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", CodeNotFound)
			return
		}
		if !job.HasResult() {
			WriteError(w, http.StatusNotFound, "result has not been downloaded", CodeNotFound)
			return
		}

		serveMedia(cfg, w, r, job.ResultPath)
	}
}

func videoMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uri := cfg.Session.Video().URI
		if uri == "" {
			WriteError(w, http.StatusNotFound, "no base video loaded", CodeNotFound)
			return
		}
		serveMedia(cfg, w, r, uri)
	}
}

func overlayMediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o, ok := cfg.Session.Overlay(chi.URLParam(r, "id"))
		if !ok || o.SourceURI == "" {
			WriteError(w, http.StatusNotFound, "overlay has no media", CodeNotFound)
			return
		}
		serveMedia(cfg, w, r, o.SourceURI)
	}
}

// serveMedia streams a local file. Remote URIs are for the player to fetch
// itself.
func serveMedia(cfg ServerConfig, w http.ResponseWriter, r *http.Request, uri string) {
	if strings.Contains(uri, "://") && !strings.HasPrefix(uri, "file://") {
		WriteError(w, http.StatusNotFound, "media is not a local file", CodeNotFound)
		return
	}
	if err := cfg.Media.Serve(w, r, uri); err != nil {
		cfg.Logger.Error("media error", "error", err, "path", uri)
	}
}
