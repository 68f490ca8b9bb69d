package cli

import (
	"fmt"
	"io"

	"otto/internal/config"
)

func runInit(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		path := defaultConfigPath
		if len(args) > 0 {
			path = args[0]
		}
		if len(args) > 1 {
			fmt.Fprintln(stderr, "Too many arguments")
			return ExitUsage
		}
		if err := config.Scaffold(path); err != nil {
			fmt.Fprintf(stderr, "Init failed: %v\n", err)
			return ExitError
		}
		fmt.Fprintf(stdout, "Wrote %s\n", path)
		return ExitOK
	}
}
