package exec

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"otto/internal/config"
	"otto/internal/plan"
	"otto/internal/run"
)

const containerWorkspace = "/workspace"

// Container executes commands and code inside docker containers with the
// workspace mounted at /workspace. File actions stay on the host side of the
// mount. With the per_run lifecycle one container serves the whole run and
// is removed exactly once by Close.
type Container struct {
	workspace string
	runID     string
	image     string
	cfg       config.ContainerConfig
	files     workspaceFS

	session     string
	venvReady   bool
	installed   map[string]bool
	installFail map[string]bool

	// OnInstall, when set, observes each auto-install attempt.
	OnInstall func(module string, ok bool)
}

// NewContainer builds a container backend. image is the already-resolved
// profile image for this run.
func NewContainer(workspace, runID, image string, cfg config.ContainerConfig) *Container {
	return &Container{
		workspace:   workspace,
		runID:       runID,
		image:       image,
		cfg:         cfg,
		files:       workspaceFS{root: workspace},
		installed:   map[string]bool{},
		installFail: map[string]bool{},
	}
}

func (c *Container) Execute(ctx context.Context, action plan.Action, budget Budget) (run.ActionResult, error) {
	started := time.Now()
	var result run.ActionResult
	var err error
	switch action.Name {
	case "run_command":
		result, err = c.runCommand(ctx, action, budget)
	case "run_code":
		result, err = c.runCode(ctx, action, budget)
	default:
		result = c.files.execute(action, budget)
	}
	if err != nil {
		return run.ActionResult{}, err
	}
	result.Duration = time.Since(started)
	return result, nil
}

// Close removes the per_run session container. Safe to call more than once.
func (c *Container) Close(ctx context.Context) error {
	if c.session == "" {
		return nil
	}
	name := c.session
	c.session = ""
	cmd := execCommand(ctx, "docker", "rm", "-f", name)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

// SessionName reports the per_run container name, empty until the first
// command runs.
func (c *Container) SessionName() string { return c.session }

func (c *Container) runCommand(ctx context.Context, action plan.Action, budget Budget) (run.ActionResult, error) {
	command := action.StringParam("command")
	if strings.TrimSpace(command) == "" {
		return failure(action.Name, "", "missing command", run.FailureNone), nil
	}
	return c.runShell(ctx, action.Name, budget, command)
}

func (c *Container) runCode(ctx context.Context, action plan.Action, budget Budget) (run.ActionResult, error) {
	code := action.StringParam("code")
	if code == "" {
		return failure(action.Name, "", "missing required code parameter", run.FailureNone), nil
	}
	script, err := writeCodeFile(c.workspace, code)
	if err != nil {
		return failure(action.Name, "", err.Error(), run.FailureNone), nil
	}
	python, err := c.ensurePython(ctx, budget)
	if err != nil {
		return run.ActionResult{}, err
	}
	command := python + " " + path.Join(containerWorkspace, filepath.ToSlash(script))

	result, err := c.runShell(ctx, action.Name, budget, command)
	if err != nil || result.OK {
		return result, err
	}
	return c.retryWithInstall(ctx, action.Name, budget, command, result)
}

// retryWithInstall installs missing modules into the run venv and retries
// the code once. Bounded by the distinct-module cap for the whole run.
func (c *Container) retryWithInstall(ctx context.Context, name string, budget Budget, command string, failed run.ActionResult) (run.ActionResult, error) {
	if !boolValue(c.cfg.AutoInstall.Enabled) {
		return failed, nil
	}
	modules := missingModules(failed.Output + "\n" + failed.Error)
	if len(modules) == 0 {
		return failed, nil
	}

	installedAny := false
	for _, module := range modules {
		if c.installed[module] || c.installFail[module] {
			continue
		}
		if len(c.installed) >= c.cfg.AutoInstall.MaxModules {
			break
		}
		pip, err := c.ensurePip(ctx, budget)
		if err != nil {
			return run.ActionResult{}, err
		}
		installResult, err := c.runShell(ctx, name, budget, pip+" install "+module)
		if err != nil {
			return run.ActionResult{}, err
		}
		if c.OnInstall != nil {
			c.OnInstall(module, installResult.OK)
		}
		if installResult.OK {
			c.installed[module] = true
			installedAny = true
		} else {
			c.installFail[module] = true
		}
	}
	if !installedAny {
		return failed, nil
	}

	result, err := c.runShell(ctx, name, budget, command)
	if err != nil {
		return run.ActionResult{}, err
	}
	result.Output = "[auto-install] installed: " + strings.Join(installedList(c.installed), ", ") + "\n" + result.Output
	return result, nil
}

// runShell executes one shell command in a container under the action budget.
func (c *Container) runShell(ctx context.Context, name string, budget Budget, command string) (run.ActionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, budget.Timeout)
	defer cancel()

	var args []string
	if c.cfg.Lifecycle == "per_run" {
		if err := c.ensureSession(ctx); err != nil {
			return run.ActionResult{}, err
		}
		args = c.execArgs(command)
	} else {
		args = c.perActionArgs(command)
	}

	buffer := &boundedBuffer{max: bufferCap(budget)}
	cmd := execCommand(ctx, "docker", args...)
	cmd.Stdout = buffer
	cmd.Stderr = buffer
	err := cmd.Run()
	output := buffer.String()
	switch {
	case err == nil:
		return run.ActionResult{Name: name, OK: true, Output: output}, nil
	case ctx.Err() == context.DeadlineExceeded:
		return failure(name, output, fmt.Sprintf("timeout after %s", budget.Timeout), run.FailureTimeout), nil
	case errors.Is(err, osexec.ErrNotFound):
		return run.ActionResult{}, fmt.Errorf("%w: docker CLI not found", ErrRuntimeUnavailable)
	default:
		if daemonDown(output) {
			return run.ActionResult{}, fmt.Errorf("%w: %s", ErrRuntimeUnavailable, firstLine(output))
		}
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			return failure(name, output, fmt.Sprintf("exit_code=%d", exitErr.ExitCode()), run.FailureExit), nil
		}
		return failure(name, output, err.Error(), run.FailureNone), nil
	}
}

// perActionArgs builds the argv for a throwaway container.
func (c *Container) perActionArgs(command string) []string {
	args := []string{"run", "--rm", "-i"}
	args = append(args, c.resourceArgs()...)
	args = append(args, c.image, "sh", "-c", command)
	return args
}

// sessionArgs builds the argv that starts the per_run session container.
func (c *Container) sessionArgs(name string) []string {
	args := []string{"run", "-d", "--name", name}
	args = append(args, c.resourceArgs()...)
	args = append(args, c.image, "sleep", "infinity")
	return args
}

func (c *Container) execArgs(command string) []string {
	return []string{"exec", "-i", c.session, "sh", "-c", command}
}

func (c *Container) resourceArgs() []string {
	args := []string{
		"--network", c.cfg.Network,
		"--cpus", fmt.Sprintf("%g", c.cfg.CPUs),
		"--memory", c.cfg.Memory,
		"--pids-limit", fmt.Sprintf("%d", c.cfg.PidsLimit),
		"-v", c.workspace + ":" + containerWorkspace,
		"-w", containerWorkspace,
	}
	if c.cfg.CacheDir != "" {
		cache := c.cfg.CacheDir
		if !filepath.IsAbs(cache) {
			cache = filepath.Join(c.workspace, cache)
		}
		args = append(args, "-v", cache+":/root/.cache/pip")
	}
	for _, key := range sortedKeys(c.cfg.Env) {
		args = append(args, "-e", key+"="+c.cfg.Env[key])
	}
	return args
}

func (c *Container) ensureSession(ctx context.Context) error {
	if c.session != "" {
		return nil
	}
	name := SessionNameFor(c.runID)
	cmd := execCommand(ctx, "docker", c.sessionArgs(name)...)
	buffer := &boundedBuffer{max: 4096}
	cmd.Stdout = buffer
	cmd.Stderr = buffer
	if err := cmd.Run(); err != nil {
		if errors.Is(err, osexec.ErrNotFound) {
			return fmt.Errorf("%w: docker CLI not found", ErrRuntimeUnavailable)
		}
		if daemonDown(buffer.String()) {
			return fmt.Errorf("%w: %s", ErrRuntimeUnavailable, firstLine(buffer.String()))
		}
		return fmt.Errorf("start session container %s: %w", name, err)
	}
	c.session = name
	return nil
}

// ensurePython returns the python to use, creating the run venv on first use
// when enabled.
func (c *Container) ensurePython(ctx context.Context, budget Budget) (string, error) {
	if !boolValue(c.cfg.RunVenv) {
		return "python3", nil
	}
	if !c.venvReady {
		result, err := c.runShell(ctx, "run_code", budget, "python3 -m venv "+venvPath)
		if err != nil {
			return "", err
		}
		if !result.OK {
			// Fall back to the image python rather than failing the action.
			return "python3", nil
		}
		c.venvReady = true
	}
	return venvPath + "/bin/python", nil
}

func (c *Container) ensurePip(ctx context.Context, budget Budget) (string, error) {
	if _, err := c.ensurePython(ctx, budget); err != nil {
		return "", err
	}
	if c.venvReady {
		return venvPath + "/bin/pip", nil
	}
	return "pip3", nil
}

const venvPath = containerWorkspace + "/.otto/venv"

// SessionNameFor derives a per_run container name. The otto- prefix makes
// orphaned sessions discoverable by cleanup.
func SessionNameFor(runID string) string {
	return SessionPrefix(runID) + uuid.NewString()[:8]
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "run"
	}
	return b.String()
}

func daemonDown(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "cannot connect to the docker daemon") ||
		strings.Contains(lower, "is the docker daemon running")
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func boolValue(value *bool) bool {
	return value != nil && *value
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func installedList(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
