// Package store persists runs on the filesystem. Each run owns a directory
// under the runs root holding its state record, an append-only iteration log,
// an event log, and snapshotted artifacts.
package store

import (
	"errors"

	"otto/internal/run"
)

// ErrNotFound is returned when a run id has no directory under the root.
var ErrNotFound = errors.New("run not found")

// Store is the persistence surface the controller writes through. Iteration
// and event appends are durable before the call returns.
type Store interface {
	// SaveRun writes the run's state record, creating the run directory on
	// first save.
	SaveRun(r run.Run) error
	LoadRun(id string) (run.Run, error)
	// ListRuns loads every run state under the root, newest first.
	ListRuns() ([]run.Run, error)

	AppendIteration(it run.Iteration) error
	Iterations(runID string) ([]run.Iteration, error)

	AppendEvent(ev run.Event) error
	Events(runID string) ([]run.Event, error)

	// SaveArtifact copies the file at src into the run's artifacts directory
	// under name.
	SaveArtifact(runID, name, src string) error
	Artifacts(runID string) ([]string, error)

	// RunDir returns the run's directory path without creating it.
	RunDir(runID string) string
}
