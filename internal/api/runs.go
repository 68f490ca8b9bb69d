package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"otto/internal/run"
	"otto/internal/store"
)

type createRunRequest struct {
	Task     string `json:"task"`
	MaxIters int    `json:"max_iters,omitempty"`
}

func (h *handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	created, err := h.controller.CreateRun(r.Context(), req.Task, run.Limits{MaxIters: req.MaxIters})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	// The loop outlives the request.
	go func() {
		_, _ = h.controller.StartRun(h.background(), created.ID)
	}()
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) handleListRuns(w http.ResponseWriter) {
	runs, err := h.controller.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error")
		return
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

func (h *handler) handleGetRun(w http.ResponseWriter, id string) {
	r, err := h.controller.GetRun(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func (h *handler) handleCancelRun(w http.ResponseWriter, id string) {
	if err := h.controller.CancelRun(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found")
			return
		}
		writeError(w, http.StatusConflict, "run_not_cancelable")
		return
	}
	r, err := h.controller.GetRun(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func (h *handler) handleResumeRun(w http.ResponseWriter, id string) {
	r, err := h.controller.GetRun(id)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	if r.Status.Terminal() {
		writeError(w, http.StatusConflict, "run_not_resumable")
		return
	}
	go func() {
		_, _ = h.controller.ResumeRun(h.background(), id)
	}()
	writeJSON(w, http.StatusAccepted, r)
}

func (h *handler) handleIterations(w http.ResponseWriter, id string) {
	if _, err := h.controller.GetRun(id); err != nil {
		writeLookupError(w, err)
		return
	}
	iterations, err := h.controller.GetIterations(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error")
		return
	}
	writeJSON(w, http.StatusOK, iterationsResponse{Iterations: iterations})
}

func (h *handler) handleEvents(w http.ResponseWriter, r *http.Request, id string) {
	after := 0
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset")
			return
		}
		after = parsed
	}
	if _, err := h.controller.GetRun(id); err != nil {
		writeLookupError(w, err)
		return
	}
	events, err := h.controller.Events(id, after)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset")
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	writeError(w, http.StatusInternalServerError, "store_error")
}
