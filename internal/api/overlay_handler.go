package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shuttercut/shuttercut-agent/internal/overlay"
)

func listOverlaysHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, OverlaysResponse{Overlays: cfg.Session.Overlays()})
	}
}

func addOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddOverlayRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		o, err := cfg.Session.AddOverlay(overlay.Kind(req.Kind), req.Content, req.SourceURI)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, o)
	}
}

func updateOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch overlay.Patch
		if !decodeRequest(w, r, &patch) {
			return
		}
		if patch.IsEmpty() {
			WriteError(w, http.StatusBadRequest, "no fields to update", CodeBadRequest)
			return
		}

		o, err := cfg.Session.UpdateOverlay(chi.URLParam(r, "id"), patch)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, o)
	}
}

func removeOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Session.RemoveOverlay(chi.URLParam(r, "id")); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func stepOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StepRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		o, err := cfg.Session.Step(chi.URLParam(r, "id"), req.Field, req.Direction)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, o)
	}
}

func dragOverlayHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DragRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		o, err := cfg.Session.Drag(chi.URLParam(r, "id"), req.DX, req.DY)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, o)
	}
}

func selectionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectionRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		if err := cfg.Session.Select(req.ID); err != nil {
			writeSessionError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
