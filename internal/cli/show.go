package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"otto/internal/planner"
	"otto/internal/run"
)

func runShow(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
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

		r, err := eng.GetRun(runID)
		if err != nil {
			fmt.Fprintf(stderr, "Run not found: %v\n", err)
			return ExitError
		}
		iterations, err := eng.GetIterations(runID)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to read iterations: %v\n", err)
			return ExitError
		}

		printRun(stdout, r)
		for _, it := range iterations {
			printIteration(stdout, it)
		}
		return ExitOK
	}
}

func printRun(w io.Writer, r run.Run) {
	fmt.Fprintf(w, "Run:        %s\n", r.ID)
	fmt.Fprintf(w, "Task:       %s\n", r.Task)
	fmt.Fprintf(w, "Status:     %s\n", r.Status)
	if r.StopReason != "" {
		fmt.Fprintf(w, "Stop:       %s\n", r.StopReason)
	}
	fmt.Fprintf(w, "Iterations: %d/%d\n", r.Iteration, r.MaxIters)
	fmt.Fprintf(w, "Workspace:  %s\n", r.Workspace)
	fmt.Fprintf(w, "Created:    %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	if r.LastOutput != "" {
		fmt.Fprintf(w, "Last output:\n%s\n", indent(r.LastOutput))
	}
}

func printIteration(w io.Writer, it run.Iteration) {
	fmt.Fprintf(w, "\n--- iteration %d (done=%t) ---\n", it.Index, it.Done)
	for _, result := range it.Results {
		line := fmt.Sprintf("[%s] ok=%t", result.Name, result.OK)
		if result.Class != run.FailureNone {
			line += " class=" + string(result.Class)
		}
		if result.Error != "" {
			line += " error=" + result.Error
		}
		fmt.Fprintln(w, line)
	}
	if it.Output != "" {
		fmt.Fprintln(w, indent(it.Output))
	}
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
