// Package cli implements the otto command table. Commands parse flags, load
// configuration, and call into the engine; control logic stays out of here.
package cli

import (
	"fmt"
	"io"
)

const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

type Command struct {
	Name    string
	Summary string
	Usage   []string
	Run     func(args []string, stdout, stderr io.Writer) int
}

func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdout)
		return ExitUsage
	}
	if isHelpArg(args[0]) {
		printUsage(stdout)
		return ExitOK
	}

	cmd := findCommand(args[0])
	if cmd == nil {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return ExitUsage
	}

	return cmd.Run(args[1:], stdout, stderr)
}

func findCommand(name string) *Command {
	for _, cmd := range commands {
		if cmd.Name == name {
			return cmd
		}
	}
	return nil
}

func isHelpArg(arg string) bool {
	switch arg {
	case "-h", "--help", "help":
		return true
	default:
		return false
	}
}

func wantsHelp(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-h", "--help":
			return true
		}
	}
	return false
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  otto <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", cmd.Name, cmd.Summary)
	}
	fmt.Fprintln(w, "\nUse \"otto <command> --help\" for more information.")
}

func printCommandUsage(cmd *Command, w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	for _, line := range cmd.Usage {
		fmt.Fprintf(w, "  %s\n", line)
	}
	if cmd.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", cmd.Summary)
	}
}

func command(name, summary string, usage []string, runner func(cmd *Command) func(args []string, stdout, stderr io.Writer) int) *Command {
	cmd := &Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
	}
	cmd.Run = runner(cmd)
	return cmd
}

var commands = []*Command{
	command("run", "Start a run for a task", []string{
		"otto run [--config otto.yml] [--plans plans.jsonl] [--max-iters N] [--ui auto|live|plain] \"<task>\"",
	}, runRun),
	command("resume", "Resume an interrupted run", []string{
		"otto resume [--config otto.yml] [--plans plans.jsonl] <run-id>",
	}, runResume),
	command("cancel", "Request cancellation of a run", []string{
		"otto cancel [--config otto.yml] <run-id>",
	}, runCancel),
	command("list", "List indexed runs", []string{
		"otto list [--config otto.yml] [--limit N]",
	}, runList),
	command("show", "Show a run and its iterations", []string{
		"otto show [--config otto.yml] <run-id>",
	}, runShow),
	command("events", "Print a run's event log", []string{
		"otto events [--config otto.yml] [--after N] <run-id>",
	}, runEvents),
	command("serve", "Serve the run API over HTTP", []string{
		"otto serve [--config otto.yml] [--addr 127.0.0.1:7700]",
	}, runServe),
	command("validate", "Validate the config file", []string{
		"otto validate [--config otto.yml]",
	}, runValidate),
	command("init", "Scaffold a default otto.yml", []string{
		"otto init [path]",
	}, runInit),
}
