package validate

import (
	"path/filepath"
	"regexp"
	"strings"

	"otto/internal/plan"
)

// fileToken matches relative file references mentioned in task text.
var fileToken = regexp.MustCompile(`[A-Za-z0-9_][A-Za-z0-9_\-./]*\.(?:txt|md|json|csv|py|html|xml|ya?ml|log)\b`)

// knownModules are libraries whose mention in a task implies the produced
// source must actually use them, preventing hollow "completed" claims.
var knownModules = []string{
	"pandas", "numpy", "requests", "matplotlib", "scipy",
	"sklearn", "bs4", "selenium", "openpyxl",
}

// nonEmptyExts are output extensions that additionally require content.
var nonEmptyExts = map[string]bool{
	".txt": true, ".md": true, ".json": true, ".csv": true,
	".html": true, ".xml": true, ".yaml": true, ".yml": true, ".log": true,
}

// Infer synthesizes objective checks from the task text and the set of files
// produced during the run. Returned checks are deduplicated against nothing;
// callers merge them with declared checks via Dedup.
func Infer(task string, produced map[string]bool) []plan.Check {
	var checks []plan.Check
	outputs := OutputTargets(task)
	for _, path := range outputs {
		checks = append(checks, plan.Check{Type: "file_exists", Path: path})
		if nonEmptyExts[strings.ToLower(filepath.Ext(path))] {
			checks = append(checks, plan.Check{Type: "file_non_empty", Path: path})
		}
	}

	modules := RequiredModules(task)
	if len(modules) > 0 {
		for _, path := range outputs {
			if !strings.HasSuffix(path, ".py") {
				continue
			}
			if produced != nil && !produced[path] {
				continue
			}
			for _, module := range modules {
				checks = append(checks, plan.Check{Type: "python_import", Path: path, Module: module})
			}
		}
	}
	return checks
}

// OutputTargets extracts workspace-relative file names referenced by the task.
func OutputTargets(task string) []string {
	matches := fileToken.FindAllString(task, -1)
	seen := make(map[string]bool, len(matches))
	var outputs []string
	for _, match := range matches {
		cleaned := strings.TrimSpace(match)
		if cleaned == "" || seen[cleaned] {
			continue
		}
		if strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "../") {
			continue
		}
		seen[cleaned] = true
		outputs = append(outputs, cleaned)
	}
	return outputs
}

// RequiredModules lists known libraries mentioned in the task text.
func RequiredModules(task string) []string {
	lowered := strings.ToLower(task)
	var modules []string
	for _, module := range knownModules {
		if strings.Contains(lowered, module) {
			modules = append(modules, module)
		}
	}
	return modules
}

var (
	importLine = regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z0-9_.]+(?:\s*,\s*[A-Za-z0-9_.]+)*)`)
	fromLine   = regexp.MustCompile(`(?m)^\s*from\s+([A-Za-z0-9_.]+)\s+import\b`)
)

// ImportsModule reports whether Python source imports the given top-level
// module, either directly or via a from-import.
func ImportsModule(source, module string) bool {
	target := strings.ToLower(strings.TrimSpace(module))
	if target == "" {
		return false
	}
	for _, match := range importLine.FindAllStringSubmatch(source, -1) {
		for _, name := range strings.Split(match[1], ",") {
			if topLevel(name) == target {
				return true
			}
		}
	}
	for _, match := range fromLine.FindAllStringSubmatch(source, -1) {
		if topLevel(match[1]) == target {
			return true
		}
	}
	return false
}

func topLevel(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	if idx := strings.Index(name, "."); idx >= 0 {
		name = name[:idx]
	}
	return name
}
