package exec

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"otto/internal/plan"
	"otto/internal/policy"
	"otto/internal/run"
)

// workspaceFS serves the file actions for both backends. The policy gate has
// already authorized the paths; confinement is re-checked here so a backend
// used directly still cannot leave the workspace.
type workspaceFS struct {
	root string
}

func (fs workspaceFS) execute(action plan.Action, budget Budget) run.ActionResult {
	switch action.Name {
	case "list_dir":
		return fs.listDir(action)
	case "read_file":
		return fs.readFile(action, budget)
	case "write_file":
		return fs.writeFile(action)
	}
	return unsupportedAction(action)
}

func (fs workspaceFS) resolve(action plan.Action, fallback string) (string, run.ActionResult, bool) {
	raw := action.PathParam()
	if raw == "" {
		raw = fallback
	}
	if raw == "" {
		return "", failure(action.Name, "", "missing required path parameter", run.FailureNone), false
	}
	resolved, err := policy.ResolveWithin(fs.root, raw)
	if err != nil {
		return "", failure(action.Name, "", err.Error(), run.FailurePathEscape), false
	}
	return resolved, run.ActionResult{}, true
}

func (fs workspaceFS) listDir(action plan.Action) run.ActionResult {
	path, fail, ok := fs.resolve(action, ".")
	if !ok {
		return fail
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return failure(action.Name, "", fmt.Sprintf("not a directory: %s", action.PathParam()), run.FailureNone)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return run.ActionResult{Name: action.Name, OK: true, Output: strings.Join(names, "\n")}
}

func (fs workspaceFS) readFile(action plan.Action, budget Budget) run.ActionResult {
	path, fail, ok := fs.resolve(action, "")
	if !ok {
		return fail
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return failure(action.Name, "", fmt.Sprintf("not a file: %s", action.PathParam()), run.FailureNone)
	}
	content := string(data)
	if budget.MaxOutputChars > 0 && len(content) > budget.MaxOutputChars {
		content = content[:budget.MaxOutputChars]
	}
	return run.ActionResult{Name: action.Name, OK: true, Output: content}
}

func (fs workspaceFS) writeFile(action plan.Action) run.ActionResult {
	path, fail, ok := fs.resolve(action, "")
	if !ok {
		return fail
	}
	content := action.StringParam("content")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return failure(action.Name, "", fmt.Sprintf("create parent dir: %v", err), run.FailureNone)
	}
	if action.StringParam("mode") == "append" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return failure(action.Name, "", err.Error(), run.FailureNone)
		}
		_, writeErr := file.WriteString(content)
		if closeErr := file.Close(); writeErr == nil {
			writeErr = closeErr
		}
		if writeErr != nil {
			return failure(action.Name, "", writeErr.Error(), run.FailureNone)
		}
	} else if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return failure(action.Name, "", err.Error(), run.FailureNone)
	}
	return run.ActionResult{Name: action.Name, OK: true, Output: "written: " + path}
}
