package exec

import (
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"otto/internal/plan"
	"otto/internal/policy"
	"otto/internal/run"
)

// Host executes commands and code directly as child processes of the engine,
// each in its own process group so a timeout kills the whole tree.
type Host struct {
	workspace string
	files     workspaceFS
}

// NewHost builds a host backend rooted at the workspace.
func NewHost(workspace string) *Host {
	return &Host{workspace: workspace, files: workspaceFS{root: workspace}}
}

func (h *Host) Execute(ctx context.Context, action plan.Action, budget Budget) (run.ActionResult, error) {
	started := time.Now()
	var result run.ActionResult
	switch action.Name {
	case "run_command":
		result = h.runCommand(ctx, action, budget)
	case "run_code":
		result = h.runCode(ctx, action, budget)
	default:
		result = h.files.execute(action, budget)
	}
	result.Duration = time.Since(started)
	return result, nil
}

// Close is a no-op; host processes do not outlive their action.
func (h *Host) Close(ctx context.Context) error { return nil }

func (h *Host) runCommand(ctx context.Context, action plan.Action, budget Budget) run.ActionResult {
	command := action.StringParam("command")
	parts, err := policy.SplitCommand(command)
	if err != nil || len(parts) == 0 {
		return failure(action.Name, "", "invalid command", run.FailureNone)
	}
	return h.runProcess(ctx, action.Name, budget, parts[0], parts[1:]...)
}

func (h *Host) runCode(ctx context.Context, action plan.Action, budget Budget) run.ActionResult {
	code := action.StringParam("code")
	if code == "" {
		return failure(action.Name, "", "missing required code parameter", run.FailureNone)
	}
	script, err := writeCodeFile(h.workspace, code)
	if err != nil {
		return failure(action.Name, "", err.Error(), run.FailureNone)
	}
	return h.runProcess(ctx, action.Name, budget, pythonBinary(), script)
}

func (h *Host) runProcess(ctx context.Context, name string, budget Budget, bin string, args ...string) run.ActionResult {
	ctx, cancel := context.WithTimeout(ctx, budget.Timeout)
	defer cancel()

	buffer := &boundedBuffer{max: bufferCap(budget)}
	cmd := execCommand(ctx, bin, args...)
	cmd.Dir = h.workspace
	cmd.Stdout = buffer
	cmd.Stderr = buffer
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid targets the process group.
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}

	err := cmd.Run()
	output := buffer.String()
	switch {
	case err == nil:
		return run.ActionResult{Name: name, OK: true, Output: output}
	case ctx.Err() == context.DeadlineExceeded:
		return failure(name, output, fmt.Sprintf("timeout after %s", budget.Timeout), run.FailureTimeout)
	case errors.Is(err, osexec.ErrNotFound):
		return failure(name, output, fmt.Sprintf("binary not found: %s", bin), run.FailureMissingBinary)
	default:
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			return failure(name, output, fmt.Sprintf("exit_code=%d", exitErr.ExitCode()), run.FailureExit)
		}
		return failure(name, output, err.Error(), run.FailureNone)
	}
}

// writeCodeFile stores the code under the workspace so both backends see it
// at a workspace-relative path.
func writeCodeFile(workspace, code string) (string, error) {
	dir := filepath.Join(workspace, ".otto", "code")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create code dir: %w", err)
	}
	name := uuid.NewString()[:8] + ".py"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		return "", fmt.Errorf("write code file: %w", err)
	}
	return filepath.Join(".otto", "code", name), nil
}

func pythonBinary() string {
	if _, err := osexec.LookPath("python3"); err == nil {
		return "python3"
	}
	return "python"
}

func bufferCap(budget Budget) int {
	if budget.MaxOutputChars <= 0 {
		return 1024 * 1024
	}
	return budget.MaxOutputChars
}
