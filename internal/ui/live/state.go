package live

import (
	"time"

	"otto/internal/run"
)

// maxRecent bounds the scrollback kept in the view.
const maxRecent = 12

// Counts aggregates event totals for the summary line.
type Counts struct {
	Iterations int
	Denied     int
	Installs   int
	Artifacts  int
	Directives int
}

// State captures everything the live view renders.
type State struct {
	RunID      string
	Task       string
	Status     run.Status
	StopReason run.StopReason
	StartedAt  time.Time
	LastEvent  string
	Recent     []string
	Counts     Counts
	Finished   bool
}
