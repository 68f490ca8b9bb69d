// Package run defines the persistent data model of a task execution: the run
// state record, the append-only iteration log, and per-action outcomes.
package run

import (
	"time"

	"otto/internal/plan"
)

// Status is the lifecycle state of a run. Running is the only non-terminal
// status; terminal statuses never transition further.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// StopReason classifies why a run left the running state. A terminal run
// always carries a stop reason.
type StopReason string

const (
	StopCompleted   StopReason = "completed"
	StopMaxIters    StopReason = "max_iters"
	StopNoProgress  StopReason = "no_progress"
	StopCanceled    StopReason = "canceled"
	StopError       StopReason = "error"
	StopInterrupted StopReason = "interrupted"
)

// Run is the state record of one task execution. It is owned exclusively by
// its controller while running and persisted after every mutation.
type Run struct {
	ID              string     `json:"run_id"`
	Task            string     `json:"task"`
	Status          Status     `json:"status"`
	StopReason      StopReason `json:"stop_reason,omitempty"`
	Iteration       int        `json:"iteration"`
	MaxIters        int        `json:"max_iters"`
	Workspace       string     `json:"workspace"`
	LastOutput      string     `json:"last_output,omitempty"`
	CancelRequested bool       `json:"cancel_requested"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// FailureClass buckets action failures for streak detection. Empty means the
// failure (if any) carries no capability signal.
type FailureClass string

const (
	FailureNone           FailureClass = ""
	FailureTimeout        FailureClass = "timeout"
	FailureMissingModule  FailureClass = "missing_module"
	FailureMissingBinary  FailureClass = "missing_binary"
	FailureBlockedCommand FailureClass = "blocked_command"
	FailurePathEscape     FailureClass = "path_escape"
	FailureDenied         FailureClass = "capability_denied"
	FailureExit           FailureClass = "exit_error"
)

// ActionResult is the recorded outcome of executing one action.
type ActionResult struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Output   string        `json:"output"`
	Error    string        `json:"error,omitempty"`
	Class    FailureClass  `json:"class,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Iteration is one plan->execute->validate cycle. Immutable once appended.
type Iteration struct {
	RunID     string         `json:"run_id"`
	Index     int            `json:"iteration"`
	Timestamp time.Time      `json:"timestamp"`
	Prompt    string         `json:"prompt,omitempty"`
	Plan      plan.Plan      `json:"plan"`
	RawPlan   string         `json:"raw_plan,omitempty"`
	Results   []ActionResult `json:"action_results"`
	Output    string         `json:"output"`
	Done      bool           `json:"done"`
	Err       string         `json:"error,omitempty"`
}

// FailedAction reports whether any action in the iteration failed.
func (it Iteration) FailedAction() bool {
	for _, result := range it.Results {
		if !result.OK {
			return true
		}
	}
	return false
}

// Limits bound a run at creation time.
type Limits struct {
	MaxIters    int
	MaxWallTime time.Duration
}

// Event is one audit record emitted by the controller. Seq is assigned by the
// run's event stream and is strictly increasing per run.
type Event struct {
	RunID     string    `json:"run_id"`
	Seq       int       `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

// Event kinds written by the controller.
const (
	EventRunCreated    = "run_created"
	EventIteration     = "iteration"
	EventActionDenied  = "action_denied"
	EventAutoInstall   = "auto_install"
	EventValidation    = "validation"
	EventDirective     = "directive"
	EventStateChanged  = "state_changed"
	EventSessionClosed = "session_closed"
	EventArtifact      = "artifact"
)
