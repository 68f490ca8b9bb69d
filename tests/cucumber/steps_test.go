package cucumber

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"otto/internal/config"
	"otto/internal/engine"
	"otto/internal/events"
	"otto/internal/planner"
	"otto/internal/run"
	"otto/internal/store"
)

// featureState holds scenario state for run engine features.
type featureState struct {
	baseDir   string
	cfg       config.Config
	store     *store.FS
	engine    *engine.Engine
	provider  *planner.ScriptedProvider
	responses []string
	runID     string
	final     run.Run
	started   bool
}

// InitializeScenario wires cucumber steps to the feature state.
func InitializeScenario(ctx *godog.ScenarioContext) {
	state := &featureState{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		state.reset()
		return ctx, nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		state.cleanup()
		return ctx, nil
	})

	ctx.Step(`^a fresh workspace$`, state.aFreshWorkspace)
	ctx.Step(`^the planner will reply with:$`, state.thePlannerWillReplyWith)
	ctx.Step(`^the repetition threshold is (\d+)$`, state.theRepetitionThresholdIs)
	ctx.Step(`^I start a run for task "([^"]*)"$`, state.iStartARunForTask)
	ctx.Step(`^I start a run for task "([^"]*)" with an iteration budget of (\d+)$`, state.iStartARunWithBudget)
	ctx.Step(`^I create a run for task "([^"]*)"$`, state.iCreateARunForTask)
	ctx.Step(`^I request cancellation$`, state.iRequestCancellation)
	ctx.Step(`^the run executes$`, state.theRunExecutes)
	ctx.Step(`^the run status is "([^"]*)" with stop reason "([^"]*)"$`, state.theRunStatusIs)
	ctx.Step(`^the workspace file "([^"]*)" exists$`, state.theWorkspaceFileExists)
	ctx.Step(`^iteration (\d+) is recorded as done$`, state.iterationIsDone)
	ctx.Step(`^iteration (\d+) is recorded as not done$`, state.iterationIsNotDone)
	ctx.Step(`^iteration (\d+) output contains "([^"]*)"$`, state.iterationOutputContains)
	ctx.Step(`^the run output contains "([^"]*)"$`, state.theRunOutputContains)
	ctx.Step(`^the planner was consulted exactly (\d+) times$`, state.thePlannerWasConsulted)
	ctx.Step(`^reloading the run from the store reproduces its state$`, state.reloadingReproducesState)
	ctx.Step(`^every recorded event carries an increasing sequence$`, state.eventsCarryIncreasingSequence)
}

func (s *featureState) reset() {
	*s = featureState{}
}

func (s *featureState) cleanup() {
	if s.baseDir != "" {
		_ = os.RemoveAll(s.baseDir)
	}
}

func (s *featureState) aFreshWorkspace() error {
	dir, err := os.MkdirTemp("", "otto-cucumber-*")
	if err != nil {
		return fmt.Errorf("make base dir: %w", err)
	}
	s.baseDir = dir

	cfg := config.Default()
	cfg.Workspace = filepath.Join(dir, "workspace")
	cfg.RunsDir = filepath.Join(dir, "runs")
	cfg.Exec.Runtime = "host"
	if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
		return fmt.Errorf("make workspace: %w", err)
	}
	s.cfg = cfg
	return nil
}

func (s *featureState) thePlannerWillReplyWith(doc *godog.DocString) error {
	s.responses = nil
	for _, line := range strings.Split(doc.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.responses = append(s.responses, line)
	}
	return nil
}

func (s *featureState) theRepetitionThresholdIs(n int) error {
	s.cfg.Progress.RepeatThreshold = n
	return nil
}

// buildEngine assembles the engine once the scenario has declared its
// planner transcript and config overrides.
func (s *featureState) buildEngine() error {
	if s.engine != nil {
		return nil
	}
	st, err := store.NewFS(s.cfg.RunsDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	s.store = st
	s.provider = planner.NewScriptedProvider(s.responses...)
	broker := events.NewBroker(0, nil)
	s.engine = engine.New(s.cfg, st, broker, s.provider, engine.Options{})
	return nil
}

func (s *featureState) iCreateARunForTask(task string) error {
	if err := s.buildEngine(); err != nil {
		return err
	}
	created, err := s.engine.CreateRun(context.Background(), task, run.Limits{})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	s.runID = created.ID
	return nil
}

func (s *featureState) theRunExecutes() error {
	final, err := s.engine.StartRun(context.Background(), s.runID)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	s.final = final
	s.started = true
	return nil
}

func (s *featureState) iStartARunForTask(task string) error {
	if err := s.iCreateARunForTask(task); err != nil {
		return err
	}
	return s.theRunExecutes()
}

func (s *featureState) iStartARunWithBudget(task string, maxIters int) error {
	if err := s.buildEngine(); err != nil {
		return err
	}
	created, err := s.engine.CreateRun(context.Background(), task, run.Limits{MaxIters: maxIters})
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	s.runID = created.ID
	return s.theRunExecutes()
}

func (s *featureState) iRequestCancellation() error {
	if err := s.engine.CancelRun(s.runID); err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}

func (s *featureState) theRunStatusIs(status, stopReason string) error {
	if !s.started {
		return fmt.Errorf("run was never executed")
	}
	if string(s.final.Status) != status {
		return fmt.Errorf("status = %q, want %q (output: %s)", s.final.Status, status, s.final.LastOutput)
	}
	if string(s.final.StopReason) != stopReason {
		return fmt.Errorf("stop reason = %q, want %q", s.final.StopReason, stopReason)
	}
	if s.final.StopReason == "" {
		return fmt.Errorf("terminal run carries no stop reason")
	}
	return nil
}

func (s *featureState) theWorkspaceFileExists(name string) error {
	path := filepath.Join(s.final.Workspace, name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("workspace file %s: %w", name, err)
	}
	return nil
}

func (s *featureState) iteration(index int) (run.Iteration, error) {
	iterations, err := s.engine.GetIterations(s.runID)
	if err != nil {
		return run.Iteration{}, fmt.Errorf("get iterations: %w", err)
	}
	for _, it := range iterations {
		if it.Index == index {
			return it, nil
		}
	}
	return run.Iteration{}, fmt.Errorf("iteration %d not recorded (have %d)", index, len(iterations))
}

func (s *featureState) iterationIsDone(index int) error {
	it, err := s.iteration(index)
	if err != nil {
		return err
	}
	if !it.Done {
		return fmt.Errorf("iteration %d not marked done: %s", index, it.Output)
	}
	return nil
}

func (s *featureState) iterationIsNotDone(index int) error {
	it, err := s.iteration(index)
	if err != nil {
		return err
	}
	if it.Done {
		return fmt.Errorf("iteration %d unexpectedly marked done", index)
	}
	return nil
}

func (s *featureState) iterationOutputContains(index int, want string) error {
	it, err := s.iteration(index)
	if err != nil {
		return err
	}
	if !strings.Contains(it.Output, want) {
		return fmt.Errorf("iteration %d output %q does not contain %q", index, it.Output, want)
	}
	return nil
}

func (s *featureState) theRunOutputContains(want string) error {
	if !strings.Contains(s.final.LastOutput, want) {
		return fmt.Errorf("run output %q does not contain %q", s.final.LastOutput, want)
	}
	return nil
}

func (s *featureState) thePlannerWasConsulted(n int) error {
	if got := s.provider.Calls(); got != n {
		return fmt.Errorf("planner calls = %d, want %d", got, n)
	}
	return nil
}

func (s *featureState) reloadingReproducesState() error {
	loaded, err := s.store.LoadRun(s.runID)
	if err != nil {
		return fmt.Errorf("reload run: %w", err)
	}
	if loaded.Status != s.final.Status || loaded.StopReason != s.final.StopReason {
		return fmt.Errorf("reloaded run = %s/%s, want %s/%s",
			loaded.Status, loaded.StopReason, s.final.Status, s.final.StopReason)
	}
	if loaded.Iteration != s.final.Iteration {
		return fmt.Errorf("reloaded iteration = %d, want %d", loaded.Iteration, s.final.Iteration)
	}
	if loaded.Task != s.final.Task {
		return fmt.Errorf("reloaded task = %q, want %q", loaded.Task, s.final.Task)
	}
	iterations, err := s.store.Iterations(s.runID)
	if err != nil {
		return fmt.Errorf("reload iterations: %w", err)
	}
	if len(iterations) != s.final.Iteration {
		return fmt.Errorf("reloaded %d iterations, want %d", len(iterations), s.final.Iteration)
	}
	return nil
}

func (s *featureState) eventsCarryIncreasingSequence() error {
	recorded, err := s.engine.Events(s.runID, 0)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(recorded) == 0 {
		return fmt.Errorf("no events recorded")
	}
	if recorded[0].Kind != run.EventRunCreated {
		return fmt.Errorf("first event kind = %s, want %s", recorded[0].Kind, run.EventRunCreated)
	}
	prev := 0
	for _, ev := range recorded {
		if ev.Seq <= prev {
			return fmt.Errorf("event seq %d not increasing after %d", ev.Seq, prev)
		}
		prev = ev.Seq
	}
	return nil
}
