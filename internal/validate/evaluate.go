// Package validate evaluates declarative objective checks against the
// workspace. Checks are read-only and order-independent; all of them must
// pass for a run to be considered complete.
package validate

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"otto/internal/plan"
	"otto/internal/policy"
)

// Report is the outcome of evaluating a set of checks.
type Report struct {
	OK       bool
	Failures []string
	Checks   []plan.Check
}

// Evaluate runs every check against the workspace root and returns the
// aggregate report. A path escaping the root is a check failure, never an
// error: the validator must not be usable as a probe outside the workspace.
func Evaluate(checks []plan.Check, root string) Report {
	report := Report{OK: true, Checks: checks}
	for _, check := range Dedup(checks) {
		if failure := evaluateOne(check, root); failure != "" {
			report.Failures = append(report.Failures, failure)
		}
	}
	report.OK = len(report.Failures) == 0
	return report
}

func evaluateOne(check plan.Check, root string) string {
	ctype := strings.ToLower(strings.TrimSpace(check.Type))
	path := strings.TrimSpace(check.Path)
	if path == "" {
		return "validation missing path"
	}
	target, err := policy.ResolveWithin(root, path)
	if err != nil {
		return fmt.Sprintf("path escapes workspace: %s", path)
	}

	switch ctype {
	case "file_exists":
		if !isFile(target) {
			return fmt.Sprintf("missing output file: %s", path)
		}
	case "file_absent":
		if _, serr := os.Stat(target); serr == nil {
			return fmt.Sprintf("file should be absent but still exists: %s", path)
		}
	case "file_non_empty":
		info, serr := os.Stat(target)
		if serr != nil || info.IsDir() {
			return fmt.Sprintf("missing output file: %s", path)
		}
		if info.Size() <= 0 {
			return fmt.Sprintf("output file is empty: %s", path)
		}
	case "text_in_file":
		content, failure := readFile(target, path)
		if failure != "" {
			return failure
		}
		if check.Contains != "" && !strings.Contains(content, check.Contains) {
			return fmt.Sprintf("text not found in %s: %s", path, check.Contains)
		}
	case "python_import":
		content, failure := readFile(target, path)
		if failure != "" {
			return failure
		}
		module := strings.TrimSpace(check.Module)
		if module == "" {
			return fmt.Sprintf("validation missing module for %s", path)
		}
		if !ImportsModule(content, module) {
			return fmt.Sprintf("module not imported in %s: %s", path, module)
		}
	case "json_key_exists", "json_key_equals":
		content, failure := readFile(target, path)
		if failure != "" {
			return failure
		}
		key := strings.TrimSpace(check.Key)
		if key == "" {
			return fmt.Sprintf("validation missing key for %s", path)
		}
		var payload map[string]any
		if jerr := json.Unmarshal([]byte(content), &payload); jerr != nil {
			return fmt.Sprintf("invalid json in %s", path)
		}
		value, ok := payload[key]
		if !ok {
			return fmt.Sprintf("json key not found in %s: %s", path, key)
		}
		if ctype == "json_key_equals" {
			actual := fmt.Sprintf("%v", value)
			if actual != check.Value {
				return fmt.Sprintf("json key mismatch in %s: %s expected=%q actual=%q", path, key, check.Value, actual)
			}
		}
	default:
		return fmt.Sprintf("unknown validation type: %s", ctype)
	}
	return ""
}

func isFile(target string) bool {
	info, err := os.Stat(target)
	return err == nil && !info.IsDir()
}

func readFile(target, display string) (string, string) {
	data, err := os.ReadFile(target)
	if err != nil {
		return "", fmt.Sprintf("missing output file: %s", display)
	}
	return string(data), ""
}

// Dedup drops repeated checks while preserving first-seen order.
func Dedup(checks []plan.Check) []plan.Check {
	seen := make(map[plan.Check]bool, len(checks))
	uniq := make([]plan.Check, 0, len(checks))
	for _, check := range checks {
		if seen[check] {
			continue
		}
		seen[check] = true
		uniq = append(uniq, check)
	}
	return uniq
}
