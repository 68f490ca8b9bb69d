package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"otto/internal/run"
)

func runResume(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", defaultConfigPath, "Path to otto.yml")
		plansPath := fs.String("plans", "", "Planner transcript, one response per line")
		noColor := fs.Bool("no-color", false, "Disable color output")
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}
		runID := fs.Arg(0)
		if runID == "" {
			fmt.Fprintln(stderr, "Missing <run-id>")
			return ExitUsage
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

		final, err := eng.ResumeRun(ctx, runID)
		if err != nil {
			logger.Error("resume run", "err", err)
			return ExitError
		}
		printOutcome(stdout, final)
		if final.Status != run.StatusCompleted {
			return ExitError
		}
		return ExitOK
	}
}
