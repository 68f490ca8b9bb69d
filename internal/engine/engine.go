// Package engine is the run controller. It owns the per-run iteration state
// machine: planning, policy-gated execution, validation, progress monitoring,
// and durable persistence of every step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"otto/internal/config"
	"otto/internal/events"
	"otto/internal/exec"
	"otto/internal/planner"
	"otto/internal/policy"
	"otto/internal/run"
	"otto/internal/store"
)

// RunIndex receives terminal runs for cross-run queries. Implemented by the
// analytical index; nil disables indexing.
type RunIndex interface {
	IndexRun(r run.Run, iterations []run.Iteration) error
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	// Clock is injected for tests; defaults to time.Now.
	Clock func() time.Time
	// ToolSource returns the currently permitted tool names. Re-read every
	// iteration so external policy edits apply without a restart. nil means
	// unrestricted.
	ToolSource func() policy.ToolSet
	// ContextSource supplies injected memory/capability text for the
	// planning prompt.
	ContextSource func() string
	// SkillNames seed runtime profile selection.
	SkillNames []string
	Index      RunIndex
	// Backend overrides backend construction, for tests.
	Backend func(r run.Run, image string) exec.Backend
}

// Engine drives runs. One goroutine per started run; all cross-run state
// lives in the store and broker, which are safe for concurrent use.
type Engine struct {
	cfg      config.Config
	store    store.Store
	broker   *events.Broker
	provider planner.Provider
	opts     Options
}

// New builds an engine over a store and event broker.
func New(cfg config.Config, st store.Store, broker *events.Broker, provider planner.Provider, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{cfg: cfg, store: st, broker: broker, provider: provider, opts: opts}
}

// NewRunID returns a sortable run identifier: UTC timestamp plus a short
// random suffix.
func NewRunID(clock func() time.Time) string {
	return clock().UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// CreateRun registers a new run in the running state without starting its
// loop.
func (e *Engine) CreateRun(ctx context.Context, task string, limits run.Limits) (run.Run, error) {
	if strings.TrimSpace(task) == "" {
		return run.Run{}, fmt.Errorf("task is required")
	}
	if limits.MaxIters <= 0 {
		limits.MaxIters = e.cfg.MaxIters
	}
	now := e.opts.Clock().UTC()
	r := run.Run{
		ID:        NewRunID(e.opts.Clock),
		Task:      task,
		Status:    run.StatusRunning,
		MaxIters:  limits.MaxIters,
		Workspace: e.cfg.Workspace,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.SaveRun(r); err != nil {
		return run.Run{}, fmt.Errorf("create run: %w", err)
	}
	e.event(r.ID, run.EventRunCreated, "run created task="+task)
	return r, nil
}

// StartRun executes the run's loop until a terminal state. It blocks; callers
// wanting concurrency start their own goroutine.
func (e *Engine) StartRun(ctx context.Context, runID string) (run.Run, error) {
	r, err := e.store.LoadRun(runID)
	if err != nil {
		return run.Run{}, err
	}
	if r.Status.Terminal() {
		return r, fmt.Errorf("run %s is already %s", runID, r.Status)
	}
	e.seedEvents(runID)
	return e.loop(ctx, r)
}

// ResumeRun re-enters the loop of a previously interrupted run from its
// persisted state.
func (e *Engine) ResumeRun(ctx context.Context, runID string) (run.Run, error) {
	r, err := e.store.LoadRun(runID)
	if err != nil {
		return run.Run{}, err
	}
	if r.Status.Terminal() {
		return r, fmt.Errorf("run %s is already %s (stop_reason=%s)", runID, r.Status, r.StopReason)
	}
	e.seedEvents(runID)
	e.event(r.ID, run.EventStateChanged, fmt.Sprintf("resumed at iteration=%d", r.Iteration))
	return e.loop(ctx, r)
}

// CancelRun requests cooperative cancellation. The run's loop honors it at
// the top of its next iteration.
func (e *Engine) CancelRun(runID string) error {
	r, err := e.store.LoadRun(runID)
	if err != nil {
		return err
	}
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is already %s", runID, r.Status)
	}
	r.CancelRequested = true
	r.UpdatedAt = e.opts.Clock().UTC()
	if err := e.store.SaveRun(r); err != nil {
		return fmt.Errorf("persist cancel request: %w", err)
	}
	e.seedEvents(runID)
	e.event(runID, run.EventStateChanged, "cancel requested")
	return nil
}

// GetRun returns the persisted state of a run.
func (e *Engine) GetRun(runID string) (run.Run, error) {
	return e.store.LoadRun(runID)
}

// GetIterations returns the run's iteration log in order.
func (e *Engine) GetIterations(runID string) ([]run.Iteration, error) {
	return e.store.Iterations(runID)
}

// ListRuns returns all persisted runs, newest first.
func (e *Engine) ListRuns() ([]run.Run, error) {
	return e.store.ListRuns()
}

// Events returns the run's events with Seq > after. Offsets that have left
// the broker's in-memory window are served from the persisted event log; an
// offset beyond the latest sequence in either is events.ErrOffsetInvalid.
func (e *Engine) Events(runID string, after int) ([]run.Event, error) {
	evs, err := e.broker.EventsAfter(runID, after)
	if err == nil && (len(evs) > 0 || after > 0) {
		return evs, nil
	}
	if err != nil && !errors.Is(err, events.ErrOffsetExpired) && !errors.Is(err, events.ErrOffsetInvalid) {
		return nil, err
	}
	persisted, storeErr := e.store.Events(runID)
	if storeErr != nil {
		return nil, storeErr
	}
	latest := 0
	if n := len(persisted); n > 0 {
		latest = persisted[n-1].Seq
	}
	if after > latest {
		return nil, fmt.Errorf("%w: offset=%d latest=%d", events.ErrOffsetInvalid, after, latest)
	}
	out := persisted[:0:0]
	for _, ev := range persisted {
		if ev.Seq > after {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Subscribe attaches a live observer to the run's event stream.
func (e *Engine) Subscribe(runID string) (<-chan run.Event, func()) {
	return e.broker.Subscribe(runID)
}

// CleanupOrphans removes session containers whose run is no longer running.
// Called on controller start so a crash never leaks a per_run container.
func (e *Engine) CleanupOrphans(ctx context.Context) ([]string, error) {
	names, err := exec.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	runs, err := e.store.ListRuns()
	if err != nil {
		return nil, err
	}
	active := map[string]bool{}
	for _, r := range runs {
		if !r.Status.Terminal() {
			active[exec.SessionPrefix(r.ID)] = true
		}
	}
	var removed []string
	for _, name := range names {
		if hasActivePrefix(name, active) {
			continue
		}
		if err := exec.RemoveSession(ctx, name); err != nil {
			return removed, err
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func hasActivePrefix(name string, active map[string]bool) bool {
	for prefix := range active {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// event publishes to the live broker and appends to the durable event log
// with the broker-assigned sequence.
func (e *Engine) event(runID, kind, message string) {
	ev := e.broker.Publish(runID, kind, message)
	_ = e.store.AppendEvent(ev)
}

// seedEvents aligns the broker's sequence with the persisted event log, so a
// run picked up by a fresh process continues its stream instead of reissuing
// sequence numbers.
func (e *Engine) seedEvents(runID string) {
	persisted, err := e.store.Events(runID)
	if err != nil || len(persisted) == 0 {
		return
	}
	e.broker.SeedAfter(runID, persisted[len(persisted)-1].Seq)
}
