package exec

import (
	"context"
	"fmt"
	osexec "os/exec"
	"strings"
	"testing"
	"time"

	"otto/internal/config"
	"otto/internal/plan"
)

func testContainerConfig() config.ContainerConfig {
	enabled := true
	return config.ContainerConfig{
		Lifecycle:    "per_action",
		ImageProfile: "auto",
		Network:      "none",
		CPUs:         1.0,
		Memory:       "512m",
		PidsLimit:    256,
		CacheDir:     ".otto/container-cache",
		RunVenv:      &enabled,
		AutoInstall:  config.AutoInstallConfig{Enabled: &enabled, MaxModules: 6},
	}
}

func TestPerActionArgs(t *testing.T) {
	c := NewContainer("/ws", "r1", "python:3.11-slim", testContainerConfig())
	args := c.perActionArgs("echo hi")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"run --rm -i",
		"--network none",
		"--cpus 1",
		"--memory 512m",
		"--pids-limit 256",
		"-v /ws:/workspace",
		"-w /workspace",
		"-v /ws/.otto/container-cache:/root/.cache/pip",
		"python:3.11-slim sh -c echo hi",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q:\n%s", want, joined)
		}
	}
}

func TestSessionArgs(t *testing.T) {
	c := NewContainer("/ws", "r1", "python:3.11-slim", testContainerConfig())
	args := c.sessionArgs("otto-r1-abc")
	joined := strings.Join(args, " ")
	if !strings.HasPrefix(joined, "run -d --name otto-r1-abc") {
		t.Fatalf("args = %s", joined)
	}
	if !strings.HasSuffix(joined, "python:3.11-slim sleep infinity") {
		t.Fatalf("args = %s", joined)
	}
}

func TestExecArgs(t *testing.T) {
	c := NewContainer("/ws", "r1", "img", testContainerConfig())
	c.session = "otto-r1-abc"
	args := c.execArgs("ls")
	want := []string{"exec", "-i", "otto-r1-abc", "sh", "-c", "ls"}
	if len(args) != len(want) {
		t.Fatalf("args = %v", args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestEnvArgsSorted(t *testing.T) {
	cfg := testContainerConfig()
	cfg.Env = map[string]string{"ZED": "1", "ALPHA": "2"}
	c := NewContainer("/ws", "r1", "img", cfg)
	joined := strings.Join(c.resourceArgs(), " ")
	if strings.Index(joined, "ALPHA=2") > strings.Index(joined, "ZED=1") {
		t.Fatalf("env not sorted: %s", joined)
	}
}

func TestSessionNameFor(t *testing.T) {
	name := SessionNameFor("20260301T120000Z-deadbeef")
	if !strings.HasPrefix(name, "otto-20260301-") {
		t.Fatalf("name = %q", name)
	}
	if name == SessionNameFor("20260301T120000Z-deadbeef") {
		t.Fatal("session names must be unique per session")
	}
}

func TestCloseRemovesSessionOnce(t *testing.T) {
	var calls [][]string
	restore := execCommand
	execCommand = func(ctx context.Context, name string, args ...string) *osexec.Cmd {
		calls = append(calls, append([]string{name}, args...))
		return osexec.CommandContext(ctx, "true")
	}
	defer func() { execCommand = restore }()

	c := NewContainer("/ws", "r1", "img", testContainerConfig())
	c.session = "otto-r1-abc"
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("docker invoked %d times, want 1", len(calls))
	}
	got := strings.Join(calls[0], " ")
	if got != "docker rm -f otto-r1-abc" {
		t.Fatalf("call = %q", got)
	}
}

// scriptDocker replaces each docker invocation with a shell stub whose output
// and exit code are chosen from the command it was asked to run.
func scriptDocker(t *testing.T, respond func(command string) (string, int)) *[]string {
	t.Helper()
	var commands []string
	restore := execCommand
	execCommand = func(ctx context.Context, name string, args ...string) *osexec.Cmd {
		command := args[len(args)-1]
		commands = append(commands, command)
		output, code := respond(command)
		script := fmt.Sprintf(`printf '%%s' "$1"; exit %d`, code)
		return osexec.CommandContext(ctx, "sh", "-c", script, "stub", output)
	}
	t.Cleanup(func() { execCommand = restore })
	return &commands
}

func TestRunCodeAutoInstallRetries(t *testing.T) {
	workspace := t.TempDir()
	pyRuns := 0
	commands := scriptDocker(t, func(command string) (string, int) {
		switch {
		case strings.Contains(command, "-m venv"):
			return "", 0
		case strings.Contains(command, " install "):
			return "Successfully installed pandas", 0
		default:
			pyRuns++
			if pyRuns == 1 {
				return "ModuleNotFoundError: No module named 'pandas'", 1
			}
			return "rows=3", 0
		}
	})

	c := NewContainer(workspace, "r1", "img", testContainerConfig())
	var installs []string
	c.OnInstall = func(module string, ok bool) {
		installs = append(installs, fmt.Sprintf("%s ok=%t", module, ok))
	}

	result, err := c.Execute(context.Background(), plan.Action{
		Name:   "run_code",
		Params: map[string]any{"code": "import pandas"},
	}, Budget{Timeout: 5 * time.Second, MaxOutputChars: 4096})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.OK {
		t.Fatalf("result = %+v", result)
	}
	if !strings.Contains(result.Output, "[auto-install] installed: pandas") {
		t.Fatalf("output missing install marker: %q", result.Output)
	}
	if !strings.Contains(result.Output, "rows=3") {
		t.Fatalf("output missing retry result: %q", result.Output)
	}
	if len(installs) != 1 || installs[0] != "pandas ok=true" {
		t.Fatalf("installs = %v", installs)
	}
	pipCalls := 0
	for _, cmd := range *commands {
		if strings.Contains(cmd, " install ") {
			pipCalls++
		}
	}
	if pipCalls != 1 {
		t.Fatalf("pip invoked %d times, want 1", pipCalls)
	}
}

func TestAutoInstallCapsDistinctModules(t *testing.T) {
	workspace := t.TempDir()
	cfg := testContainerConfig()
	cfg.AutoInstall.MaxModules = 1
	commands := scriptDocker(t, func(command string) (string, int) {
		switch {
		case strings.Contains(command, "-m venv"):
			return "", 0
		case strings.Contains(command, " install "):
			return "ok", 0
		default:
			return "No module named 'numpy'\nNo module named 'pandas'", 1
		}
	})

	c := NewContainer(workspace, "r2", "img", cfg)
	var installed []string
	c.OnInstall = func(module string, ok bool) { installed = append(installed, module) }

	result, err := c.Execute(context.Background(), plan.Action{
		Name:   "run_code",
		Params: map[string]any{"code": "import numpy, pandas"},
	}, Budget{Timeout: 5 * time.Second, MaxOutputChars: 4096})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.OK {
		t.Fatalf("result = %+v, want failure while a module stays missing", result)
	}
	if len(installed) != 1 || installed[0] != "numpy" {
		t.Fatalf("installed = %v, want just the first module", installed)
	}
	pipCalls := 0
	for _, cmd := range *commands {
		if strings.Contains(cmd, " install ") {
			pipCalls++
		}
	}
	if pipCalls != 1 {
		t.Fatalf("pip invoked %d times, want 1", pipCalls)
	}
}

func TestDaemonDownDetection(t *testing.T) {
	if !daemonDown("Cannot connect to the Docker daemon at unix:///var/run/docker.sock") {
		t.Fatal("daemon-down message not detected")
	}
	if daemonDown("exit status 1: python error") {
		t.Fatal("ordinary failure misread as daemon down")
	}
}
