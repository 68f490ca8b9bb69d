package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"otto/internal/engine"
	"otto/internal/run"
	"otto/internal/ui/live"
)

func runRun(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", defaultConfigPath, "Path to otto.yml")
		plansPath := fs.String("plans", "", "Planner transcript, one response per line")
		maxIters := fs.Int("max-iters", 0, "Iteration budget override")
		uiMode := fs.String("ui", "auto", "UI mode: auto|live|plain")
		noColor := fs.Bool("no-color", false, "Disable color output")
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}
		task := fs.Arg(0)
		if task == "" {
			fmt.Fprintln(stderr, "Missing <task>")
			printCommandUsage(cmd, stderr)
			return ExitUsage
		}
		if fs.NArg() > 1 {
			fmt.Fprintln(stderr, "Too many arguments")
			return ExitUsage
		}

		decision, err := resolveUIMode(*uiMode, stdout)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return ExitUsage
		}
		if decision.warning != "" {
			fmt.Fprintln(stderr, decision.warning)
		}

		logger := newLogger(stderr, *noColor)
		cfg, err := loadConfig(*configPath)
		if err != nil {
			logger.Error("load config", "err", err)
			return ExitError
		}
		provider, err := loadPlans(*plansPath)
		if err != nil {
			logger.Error("load plans", "err", err)
			return ExitError
		}
		eng, cleanup, err := buildEngine(cfg, provider)
		if err != nil {
			logger.Error("wire engine", "err", err)
			return ExitError
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if removed, err := eng.CleanupOrphans(ctx); err == nil && len(removed) > 0 {
			logger.Info("removed orphan sessions", "count", len(removed))
		}

		created, err := eng.CreateRun(ctx, task, run.Limits{MaxIters: *maxIters})
		if err != nil {
			logger.Error("create run", "err", err)
			return ExitError
		}

		final, err := driveRun(ctx, eng, created.ID, stdout, decision.useLive, *noColor)
		if err != nil {
			logger.Error("run", "err", err)
			return ExitError
		}
		printOutcome(stdout, final)
		if final.Status != run.StatusCompleted {
			return ExitError
		}
		return ExitOK
	}
}

// driveRun executes the run loop, mirroring events into the live UI when
// enabled.
func driveRun(ctx context.Context, eng *engine.Engine, runID string, stdout io.Writer, useLive, noColor bool) (run.Run, error) {
	if !useLive {
		return eng.StartRun(ctx, runID)
	}
	events, cancel := eng.Subscribe(runID)
	defer cancel()
	ui := live.Start(stdout, live.Options{NoColor: noColor})
	go func() {
		for event := range events {
			ui.Send(event)
		}
		ui.Close()
	}()
	final, err := eng.StartRun(ctx, runID)
	cancel()
	ui.Wait()
	return final, err
}

func printOutcome(stdout io.Writer, final run.Run) {
	fmt.Fprintf(stdout, "Run %s %s", final.ID, final.Status)
	if final.StopReason != "" {
		fmt.Fprintf(stdout, " (%s)", final.StopReason)
	}
	fmt.Fprintf(stdout, " after %d iteration(s)\n", final.Iteration)
	if final.LastOutput != "" {
		fmt.Fprintln(stdout, final.LastOutput)
	}
}
