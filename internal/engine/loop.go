package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"otto/internal/exec"
	"otto/internal/plan"
	"otto/internal/planner"
	"otto/internal/policy"
	"otto/internal/progress"
	"otto/internal/run"
	"otto/internal/validate"
)

// loop drives one run to a terminal state. All persistence for iteration N
// completes before iteration N+1 begins.
func (e *Engine) loop(ctx context.Context, r run.Run) (run.Run, error) {
	backend := e.buildBackend(r)
	defer func() {
		if err := backend.Close(context.Background()); err != nil {
			e.event(r.ID, run.EventSessionClosed, "session teardown failed: "+err.Error())
		} else if e.cfg.Exec.Runtime == "container" && e.cfg.Exec.Container.Lifecycle == "per_run" {
			e.event(r.ID, run.EventSessionClosed, "session container removed")
		}
	}()

	monitor := progress.NewMonitor(progress.Config{
		RepeatThreshold:            e.cfg.Progress.RepeatThreshold,
		ParseErrorThreshold:        e.cfg.Progress.ParseErrorThreshold,
		CapabilityFailureThreshold: e.cfg.Progress.CapabilityFailureThreshold,
		ResetPolicy:                e.cfg.Progress.CapabilityReset,
		StagnationThreshold:        e.cfg.Progress.StagnationThreshold,
		MaxWallTime:                e.cfg.MaxWallTime.Std(),
	}, e.opts.Clock)
	pl := planner.New(e.provider, e.cfg.Planner.Retries)
	gate := policy.NewGate(r.Workspace, e.cfg.Exec.SafeCommands)
	budget := exec.Budget{
		Timeout:        e.cfg.Exec.Timeout.Std(),
		MaxOutputChars: e.cfg.Exec.MaxOutputChars,
	}

	produced := map[string]bool{}
	directive := ""
	prevFailed := false

	for r.Iteration < r.MaxIters {
		if elapsed, exceeded := monitor.WallTimeExceeded(); exceeded {
			detail := fmt.Sprintf("stopped by wall time limit (elapsed=%ds, limit=%s)",
				int(elapsed.Seconds()), e.cfg.MaxWallTime.Std())
			r.LastOutput = detail
			return e.finish(r, run.StatusFailed, run.StopNoProgress, detail)
		}
		if err := ctx.Err(); err != nil {
			return e.finish(r, run.StatusCanceled, run.StopInterrupted, "stopped: interrupt")
		}

		// Re-read state so a cancel from another process is honored.
		if latest, err := e.store.LoadRun(r.ID); err == nil && latest.CancelRequested {
			r.CancelRequested = true
			return e.finish(r, run.StatusCanceled, run.StopCanceled, "stopped by cancel request")
		}

		iteration := r.Iteration + 1
		tools := e.currentTools()
		result, err := pl.Plan(ctx, planner.Request{
			Task:           r.Task,
			Iteration:      iteration,
			MaxIters:       r.MaxIters,
			PreviousOutput: r.LastOutput,
			Context:        e.currentContext(),
			Directive:      directive,
			AllowedTools:   tools.Names(),
		})
		directive = ""
		if err != nil {
			var parseErr *plan.ParseError
			if !errors.As(err, &parseErr) {
				if errors.Is(err, context.Canceled) {
					return e.finish(r, run.StatusCanceled, run.StopInterrupted, "stopped: interrupt")
				}
				return e.finish(r, run.StatusFailed, run.StopError, "error: "+err.Error())
			}
			e.event(r.ID, run.EventIteration, fmt.Sprintf("iteration=%d planner_parse_error: %s", iteration, parseErr.Reason))
			if verdict := monitor.ObserveParseError(); verdict.Stop {
				detail := "stopped: " + verdict.Detail + "; model output could not be parsed as valid JSON plan"
				r.LastOutput = detail
				return e.finish(r, run.StatusFailed, verdict.Reason, detail)
			}
			// The parse failure consumes the iteration slot so a looping
			// model still runs out of budget. It is logged like any other
			// iteration, keeping the audit trail gap-free.
			record := run.Iteration{
				RunID:     r.ID,
				Index:     iteration,
				Timestamp: e.opts.Clock().UTC(),
				RawPlan:   parseErr.Raw,
				Output:    "model output could not be parsed as valid JSON plan",
				Err:       parseErr.Reason,
			}
			if err := e.store.AppendIteration(record); err != nil {
				return e.finish(r, run.StatusFailed, run.StopError, "error: "+err.Error())
			}
			r.Iteration = iteration
			r.UpdatedAt = e.opts.Clock().UTC()
			if err := e.store.SaveRun(r); err != nil {
				return e.finish(r, run.StatusFailed, run.StopError, "error: "+err.Error())
			}
			continue
		}

		results, execErr := e.executeActions(ctx, r, gate, tools, backend, budget, result.Plan.Actions, produced)
		if execErr != nil {
			if errors.Is(execErr, exec.ErrRuntimeUnavailable) {
				return e.finish(r, run.StatusFailed, run.StopError, "error: "+execErr.Error())
			}
			if errors.Is(execErr, context.Canceled) {
				return e.finish(r, run.StatusCanceled, run.StopInterrupted, "stopped: interrupt")
			}
			return e.finish(r, run.StatusFailed, run.StopError, "error: "+execErr.Error())
		}

		done := result.Plan.Done
		output := composeOutput(result.Plan, results)
		failedAction := anyFailed(results)

		if done && failedAction {
			done = false
			output = appendDiagnostic(output, "- current iteration has failed actions")
			e.event(r.ID, run.EventValidation, "validation blocked by failed actions in iteration")
		} else if done && prevFailed && len(result.Plan.Actions) == 0 {
			done = false
			output = appendDiagnostic(output, "- previous iteration failed and no recovery action executed")
			e.event(r.ID, run.EventValidation, "validation blocked by unresolved previous failure")
		}

		inferred := validate.Infer(r.Task, produced)
		if done {
			checks := validate.Dedup(append(result.Plan.Validations, inferred...))
			report := validate.Evaluate(checks, r.Workspace)
			if !report.OK {
				done = false
				output = appendDiagnostic(output, bulleted(report.Failures))
				e.event(r.ID, run.EventValidation, fmt.Sprintf("objective validation failed count=%d", len(report.Failures)))
			} else {
				e.event(r.ID, run.EventValidation, "objective validation passed")
			}
		}

		record := run.Iteration{
			RunID:     r.ID,
			Index:     iteration,
			Timestamp: e.opts.Clock().UTC(),
			Prompt:    result.Prompt,
			Plan:      result.Plan,
			RawPlan:   result.Raw,
			Results:   results,
			Output:    output,
			Done:      done,
		}
		if err := e.store.AppendIteration(record); err != nil {
			return e.finish(r, run.StatusFailed, run.StopError, "error: "+err.Error())
		}
		e.event(r.ID, run.EventIteration, fmt.Sprintf("iteration=%d done=%t actions=%d", iteration, done, len(results)))

		r.Iteration = iteration
		r.LastOutput = output
		r.UpdatedAt = e.opts.Clock().UTC()
		prevFailed = failedAction

		if done {
			return e.finish(r, run.StatusCompleted, run.StopCompleted, "")
		}

		// Auto-complete: a clean iteration whose inferred objective checks
		// all pass completes the run even if the planner never says done.
		// Only files written during this run count; a reused workspace must
		// not satisfy a fresh run's objective.
		if !failedAction && len(inferred) > 0 && allProduced(inferred, produced) {
			if report := validate.Evaluate(inferred, r.Workspace); report.OK {
				e.event(r.ID, run.EventValidation, "objective auto-completed from inferred validations")
				return e.finish(r, run.StatusCompleted, run.StopCompleted, "")
			}
		}

		if err := e.store.SaveRun(r); err != nil {
			return e.finish(r, run.StatusFailed, run.StopError, "error: "+err.Error())
		}

		verdict := monitor.Observe(progress.Sample{
			Actions: result.Plan.Actions,
			Results: results,
			Output:  output,
			Score:   e.progressScore(r, inferred),
		})
		if verdict.Stop {
			if verdict.Detail != "" {
				r.LastOutput = "stopped: " + verdict.Detail
			}
			return e.finish(r, run.StatusFailed, verdict.Reason, "stopped: "+verdict.Detail)
		}
		if verdict.Directive != "" {
			directive = verdict.Directive
			e.event(r.ID, run.EventDirective, verdict.Directive)
		}
	}

	output := appendMaxItersDiagnostic(r.LastOutput, r.Task, r.Workspace)
	r.LastOutput = output
	return e.finish(r, run.StatusFailed, run.StopMaxIters, "stopped: max_iters reached")
}

// executeActions runs the plan's actions strictly in sequence, gating each
// one through the safety policy first.
func (e *Engine) executeActions(ctx context.Context, r run.Run, gate *policy.Gate, tools policy.ToolSet, backend exec.Backend, budget exec.Budget, actions []plan.Action, produced map[string]bool) ([]run.ActionResult, error) {
	var results []run.ActionResult
	for _, action := range actions {
		decision := gate.Authorize(action, tools)
		if !decision.Allowed {
			results = append(results, run.ActionResult{
				Name:  action.Name,
				OK:    false,
				Error: decision.Detail,
				Class: failureClassFor(decision.Reason),
			})
			e.event(r.ID, run.EventActionDenied, fmt.Sprintf("policy blocked action name=%s reason=%s", action.Name, decision.Reason))
			continue
		}
		result, err := backend.Execute(ctx, action, budget)
		if err != nil {
			return results, err
		}
		results = append(results, result)
		if result.OK && action.Name == "write_file" {
			e.recordArtifact(r, action, produced)
		}
	}
	return results, nil
}

// recordArtifact tracks a produced file and snapshots it into the run's
// artifact directory.
func (e *Engine) recordArtifact(r run.Run, action plan.Action, produced map[string]bool) {
	rel := action.PathParam()
	if rel == "" {
		return
	}
	produced[rel] = true
	src, err := policy.ResolveWithin(r.Workspace, rel)
	if err != nil {
		return
	}
	name := filepath.Base(src)
	if err := e.store.SaveArtifact(r.ID, name, src); err == nil {
		e.event(r.ID, run.EventArtifact, "artifact saved "+name)
	}
}

// progressScore counts satisfied inferred checks, giving the monitor a
// comparable objective-progress number.
func (e *Engine) progressScore(r run.Run, inferred []plan.Check) int {
	if len(inferred) == 0 {
		return 0
	}
	report := validate.Evaluate(inferred, r.Workspace)
	return len(report.Checks) - len(report.Failures)
}

// finish persists the terminal state, emits the closing events, and feeds
// the run to the analytical index. LastOutput is the caller's to set.
func (e *Engine) finish(r run.Run, status run.Status, reason run.StopReason, detail string) (run.Run, error) {
	r.Status = status
	r.StopReason = reason
	r.UpdatedAt = e.opts.Clock().UTC()
	if err := e.store.SaveRun(r); err != nil {
		return r, fmt.Errorf("persist terminal state: %w", err)
	}
	message := fmt.Sprintf("status=%s stop_reason=%s", status, reason)
	if detail != "" {
		message += " " + detail
	}
	e.event(r.ID, run.EventStateChanged, message)

	if e.opts.Index != nil {
		iterations, err := e.store.Iterations(r.ID)
		if err == nil {
			_ = e.opts.Index.IndexRun(r, iterations)
		}
	}
	return r, nil
}

func (e *Engine) buildBackend(r run.Run) exec.Backend {
	profile := exec.SelectProfile(e.cfg.Exec.Container.ImageProfile, r.Task, e.opts.SkillNames)
	image := exec.ImageFor(profile, e.cfg.Exec.Container.Images)
	if e.opts.Backend != nil {
		return e.opts.Backend(r, image)
	}
	if e.cfg.Exec.Runtime != "container" {
		return exec.NewHost(r.Workspace)
	}
	e.event(r.ID, run.EventStateChanged, fmt.Sprintf("container runtime profile=%s image=%s", profile, image))
	container := exec.NewContainer(r.Workspace, r.ID, image, e.cfg.Exec.Container)
	container.OnInstall = func(module string, ok bool) {
		e.event(r.ID, run.EventAutoInstall, fmt.Sprintf("pip install %s ok=%t", module, ok))
	}
	return container
}

func (e *Engine) currentTools() policy.ToolSet {
	if e.opts.ToolSource == nil {
		return nil
	}
	return e.opts.ToolSource()
}

func (e *Engine) currentContext() string {
	if e.opts.ContextSource == nil {
		return ""
	}
	return e.opts.ContextSource()
}

func failureClassFor(reason policy.DenyReason) run.FailureClass {
	switch reason {
	case policy.DenyPathEscape:
		return run.FailurePathEscape
	case policy.DenyBlockedCommand:
		return run.FailureBlockedCommand
	default:
		return run.FailureDenied
	}
}

func composeOutput(p plan.Plan, results []run.ActionResult) string {
	if p.FinalOutput != "" {
		return p.FinalOutput
	}
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for _, result := range results {
		text := fmt.Sprintf("[%s] ok=%t\n%s", result.Name, result.OK, result.Output)
		if result.Error != "" {
			text += "\nerror=" + result.Error
		}
		parts = append(parts, strings.TrimSpace(text))
	}
	return strings.Join(parts, "\n\n")
}

// allProduced reports whether every checked path was written during this run.
func allProduced(checks []plan.Check, produced map[string]bool) bool {
	for _, check := range checks {
		if check.Path != "" && !produced[check.Path] {
			return false
		}
	}
	return true
}

func anyFailed(results []run.ActionResult) bool {
	for _, result := range results {
		if !result.OK {
			return true
		}
	}
	return false
}

func appendDiagnostic(output, detail string) string {
	diag := "[validation] failed; continue iterations\n" + detail
	if output == "" {
		return diag
	}
	return output + "\n\n" + diag
}

func bulleted(failures []string) string {
	lines := make([]string, len(failures))
	for i, failure := range failures {
		lines[i] = "- " + failure
	}
	return strings.Join(lines, "\n")
}

// appendMaxItersDiagnostic summarizes which required outputs are still
// missing when the iteration budget runs out.
func appendMaxItersDiagnostic(output, task, workspace string) string {
	targets := validate.OutputTargets(task)
	if len(targets) == 0 {
		return output
	}
	var missing []string
	for _, target := range targets {
		if resolved, err := policy.ResolveWithin(workspace, target); err == nil {
			if fileExists(resolved) {
				continue
			}
		}
		missing = append(missing, target)
	}
	diag := fmt.Sprintf("[objective] incomplete at max_iters\n- required_outputs: %d\n- missing: %s",
		len(targets), orDash(missing))
	if output == "" {
		return diag
	}
	return output + "\n\n" + diag
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func orDash(values []string) string {
	if len(values) == 0 {
		return "-"
	}
	return strings.Join(values, ", ")
}
