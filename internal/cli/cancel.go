package cli

import (
	"flag"
	"fmt"
	"io"

	"otto/internal/planner"
)

func runCancel(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", defaultConfigPath, "Path to otto.yml")
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}
		runID := fs.Arg(0)
		if runID == "" {
			fmt.Fprintln(stderr, "Missing <run-id>")
			return ExitUsage
		}

		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return ExitError
		}
		eng, cleanup, err := buildEngine(cfg, planner.NewScriptedProvider())
		if err != nil {
			fmt.Fprintf(stderr, "Failed to wire engine: %v\n", err)
			return ExitError
		}
		defer cleanup()

		if err := eng.CancelRun(runID); err != nil {
			fmt.Fprintf(stderr, "Cancel failed: %v\n", err)
			return ExitError
		}
		fmt.Fprintf(stdout, "Cancel requested for %s\n", runID)
		return ExitOK
	}
}
