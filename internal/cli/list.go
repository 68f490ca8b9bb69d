package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"otto/internal/index"
)

func runList(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", defaultConfigPath, "Path to otto.yml")
		limit := fs.Int("limit", 20, "Maximum rows to print (0 for all)")
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}
		if fs.NArg() > 0 {
			fmt.Fprintln(stderr, "Too many arguments")
			return ExitUsage
		}

		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return ExitError
		}
		ix, err := index.Open(cfg.Index.Path)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open index: %v\n", err)
			return ExitError
		}
		defer ix.Close()

		summaries, err := ix.Summaries(context.Background(), *limit)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to list runs: %v\n", err)
			return ExitError
		}
		if len(summaries) == 0 {
			fmt.Fprintln(stdout, "No runs indexed yet")
			return ExitOK
		}

		fmt.Fprintf(stdout, "%-28s %-10s %-12s %5s  %s\n", "RUN", "STATUS", "STOP", "ITERS", "TASK")
		for _, s := range summaries {
			fmt.Fprintf(stdout, "%-28s %-10s %-12s %2d/%-2d  %s\n",
				s.RunID, s.Status, orEmptyDash(string(s.StopReason)), s.Iterations, s.MaxIters, clipTask(s.Task))
		}
		return ExitOK
	}
}

func orEmptyDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func clipTask(task string) string {
	normalized := strings.Join(strings.Fields(task), " ")
	const limit = 60
	if len(normalized) <= limit {
		return normalized
	}
	return normalized[:limit-3] + "..."
}
