// Package planner turns run state into the next plan. The model call sits
// behind the Provider interface; parsing failures are retried with a degraded
// prompt before they count against the run.
package planner

import (
	"context"
	"fmt"

	"otto/internal/plan"
)

// Provider generates one model completion for a system and user prompt.
type Provider interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Request carries everything the planner folds into the prompt.
type Request struct {
	Task           string
	Iteration      int
	MaxIters       int
	PreviousOutput string
	// Context is injected capability/memory text, dropped when the prompt is
	// degraded after a parse failure.
	Context string
	// Directive is a recovery instruction from the progress monitor.
	Directive    string
	AllowedTools []string
}

// Result is one successful planning round.
type Result struct {
	Plan   plan.Plan
	Raw    string
	Prompt string
}

// Planner drives a Provider with bounded in-round retries.
type Planner struct {
	provider Provider
	retries  int
}

// New builds a planner. retries is the number of extra attempts after the
// first parse failure; negative means none.
func New(provider Provider, retries int) *Planner {
	if retries < 0 {
		retries = 0
	}
	return &Planner{provider: provider, retries: retries}
}

// Plan requests a plan, retrying with a degraded prompt on parse errors.
// A provider failure is returned as-is; exhausted retries return the last
// *plan.ParseError so the caller can count a parse streak.
func (p *Planner) Plan(ctx context.Context, req Request) (Result, error) {
	var lastParseErr *plan.ParseError
	for attempt := 0; attempt <= p.retries; attempt++ {
		prompt := BuildPrompt(req, attempt > 0)
		content, err := p.provider.Generate(ctx, systemPrompt, prompt)
		if err != nil {
			return Result{}, fmt.Errorf("planner provider: %w", err)
		}
		parsed, parseErr := plan.Parse(content)
		if parseErr == nil {
			return Result{Plan: parsed, Raw: content, Prompt: prompt}, nil
		}
		lastParseErr = parseErr
	}
	return Result{}, lastParseErr
}
