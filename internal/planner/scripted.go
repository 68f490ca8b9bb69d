package planner

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedProvider replays canned completions in order. It backs tests and
// the acceptance suite so the engine can be driven without a model.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []string
	calls     int
	// Prompts records the user prompt of each call for assertions.
	Prompts []string
}

// NewScriptedProvider builds a provider that returns the given completions in
// sequence and fails once they are exhausted.
func NewScriptedProvider(responses ...string) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Generate returns the next scripted completion.
func (s *ScriptedProvider) Generate(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = append(s.Prompts, user)
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("scripted provider exhausted after %d calls", s.calls)
	}
	response := s.responses[s.calls]
	s.calls++
	return response, nil
}

// Calls reports how many completions have been served.
func (s *ScriptedProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
