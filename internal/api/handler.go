// Package api exposes the run controller over HTTP. Handlers are thin: they
// marshal engine and store data and never contain control logic of their own.
package api

import (
	"context"
	"net/http"
	"strings"

	"otto/internal/run"
)

// Controller is the slice of the engine the HTTP surface needs.
type Controller interface {
	CreateRun(ctx context.Context, task string, limits run.Limits) (run.Run, error)
	StartRun(ctx context.Context, runID string) (run.Run, error)
	ResumeRun(ctx context.Context, runID string) (run.Run, error)
	CancelRun(runID string) error
	GetRun(runID string) (run.Run, error)
	GetIterations(runID string) ([]run.Iteration, error)
	ListRuns() ([]run.Run, error)
	Events(runID string, after int) ([]run.Event, error)
}

// Config wires dependencies for the HTTP handler.
type Config struct {
	Controller Controller
	// Background supplies the context for detached run loops. Defaults to
	// context.Background; tests inject a cancelable one.
	Background func() context.Context
}

// NewHandler builds the HTTP handler for the run API.
func NewHandler(cfg Config) http.Handler {
	h := &handler{controller: cfg.Controller, background: cfg.Background}
	if h.background == nil {
		h.background = context.Background
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/runs", h.handleRuns)
	mux.HandleFunc("/runs/", h.handleRunByID)
	return mux
}

type handler struct {
	controller Controller
	background func() context.Context
}

func (h *handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateRun(w, r)
	case http.MethodGet:
		h.handleListRuns(w)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleRunByID dispatches /runs/{id} and its subresources.
func (h *handler) handleRunByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/runs/")
	id, sub, _ := strings.Cut(rest, "/")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleGetRun(w, id)
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCancelRun(w, id)
	case "resume":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleResumeRun(w, id)
	case "iterations":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleIterations(w, id)
	case "events":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEvents(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not_found")
	}
}
