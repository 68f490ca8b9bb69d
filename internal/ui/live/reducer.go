package live

import (
	"strings"

	"otto/internal/run"
)

// Reduce folds one controller event into the view state. Pure so the view
// logic is testable without a terminal.
func Reduce(state State, event run.Event) State {
	if state.RunID == "" {
		state.RunID = event.RunID
	}
	line := event.Kind + ": " + event.Message

	switch event.Kind {
	case run.EventRunCreated:
		state.StartedAt = event.Timestamp
		state.Status = run.StatusRunning
		if task, ok := strings.CutPrefix(event.Message, "run created task="); ok {
			state.Task = task
		}
	case run.EventIteration:
		state.Counts.Iterations++
	case run.EventActionDenied:
		state.Counts.Denied++
	case run.EventAutoInstall:
		state.Counts.Installs++
	case run.EventArtifact:
		state.Counts.Artifacts++
	case run.EventDirective:
		state.Counts.Directives++
	case run.EventStateChanged:
		if status, reason, ok := parseStateChange(event.Message); ok {
			state.Status = status
			state.StopReason = reason
			state.Finished = status.Terminal()
		}
	}

	state.LastEvent = line
	state.Recent = append(state.Recent, line)
	if len(state.Recent) > maxRecent {
		state.Recent = state.Recent[len(state.Recent)-maxRecent:]
	}
	return state
}

// parseStateChange extracts status and stop reason from a state_changed
// message of the form "status=<s> stop_reason=<r> ...".
func parseStateChange(message string) (run.Status, run.StopReason, bool) {
	var status run.Status
	var reason run.StopReason
	found := false
	for _, field := range strings.Fields(message) {
		if value, ok := strings.CutPrefix(field, "status="); ok {
			status = run.Status(value)
			found = true
		}
		if value, ok := strings.CutPrefix(field, "stop_reason="); ok {
			reason = run.StopReason(value)
		}
	}
	return status, reason, found
}
