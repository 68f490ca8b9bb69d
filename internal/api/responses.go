package api

import (
	"encoding/json"
	"net/http"

	"otto/internal/run"
)

type errorResponse struct {
	Error string `json:"error"`
}

type runsResponse struct {
	Runs []run.Run `json:"runs"`
}

type iterationsResponse struct {
	Iterations []run.Iteration `json:"iterations"`
}

type eventsResponse struct {
	Events []run.Event `json:"events"`
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
