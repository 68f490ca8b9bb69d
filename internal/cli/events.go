package cli

import (
	"flag"
	"fmt"
	"io"

	"otto/internal/planner"
)

func runEvents(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", defaultConfigPath, "Path to otto.yml")
		after := fs.Int("after", 0, "Only events with a sequence above this offset")
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

		if _, err := eng.GetRun(runID); err != nil {
			fmt.Fprintf(stderr, "Run not found: %v\n", err)
			return ExitError
		}
		events, err := eng.Events(runID, *after)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to read events: %v\n", err)
			return ExitError
		}
		for _, ev := range events {
			fmt.Fprintf(stdout, "%4d %s %-15s %s\n",
				ev.Seq, ev.Timestamp.Format("15:04:05.000"), ev.Kind, ev.Message)
		}
		return ExitOK
	}
}
