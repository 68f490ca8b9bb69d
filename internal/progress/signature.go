// Package progress watches a run's iterations for repetition, repeated
// capability failures, planner parse streaks, and wall-clock exhaustion, and
// decides whether the run should be forced to stop.
package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"otto/internal/plan"
	"otto/internal/run"
)

// Sample is the per-iteration input to the monitor.
type Sample struct {
	Actions    []plan.Action
	Results    []run.ActionResult
	Output     string
	ParseError bool
	// Score counts satisfied objective targets; it only ever needs to be
	// comparable between iterations of the same run.
	Score int
}

type compactResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Output string `json:"output"`
}

type signaturePayload struct {
	Actions []plan.Action   `json:"actions"`
	Results []compactResult `json:"results"`
	Output  string          `json:"output"`
}

// Signature fingerprints an iteration for repetition detection. Outputs are
// clipped so cosmetic tail differences in long logs do not defeat detection.
func Signature(sample Sample) string {
	payload := signaturePayload{
		Actions: sample.Actions,
		Results: make([]compactResult, 0, len(sample.Results)),
		Output:  clip(sample.Output, 800),
	}
	for _, result := range sample.Results {
		payload.Results = append(payload.Results, compactResult{
			Name:   result.Name,
			OK:     result.OK,
			Error:  result.Error,
			Output: clip(result.Output, 500),
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// Marshal of plain structs cannot fail; keep a stable fallback anyway.
		raw = []byte(sample.Output)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func clip(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
