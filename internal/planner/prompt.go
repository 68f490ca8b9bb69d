package planner

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are the Otto run planner.
Return STRICT JSON only with shape:
{
  "thought": "short reasoning",
  "done": boolean,
  "final_output": "string when done=true else optional",
  "actions": [
    {"name": "list_dir|read_file|write_file|run_command|run_code", "params": {...}}
  ],
  "validations": [
    {"type": "file_exists|file_non_empty|text_in_file|python_import|json_key_exists|json_key_equals|file_absent", ...}
  ]
}
Rules:
- Do not include markdown.
- Prefer small safe actions.
- Use done=true only when the task is complete.`

// BuildPrompt assembles the user prompt. A degraded prompt drops the injected
// context block and repeats the JSON-only rule, giving the model a cleaner
// retry after a parse failure.
func BuildPrompt(req Request, degraded bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", req.Task)
	fmt.Fprintf(&b, "Iteration: %d/%d\n", req.Iteration, req.MaxIters)
	previous := req.PreviousOutput
	if previous == "" {
		previous = "N/A"
	}
	fmt.Fprintf(&b, "Previous output: %s\n", previous)
	if len(req.AllowedTools) > 0 {
		fmt.Fprintf(&b, "Allowed actions: %s\n", strings.Join(req.AllowedTools, ", "))
	}
	if req.Directive != "" {
		fmt.Fprintf(&b, "Guidance: %s\n", req.Directive)
	}
	if req.Context != "" && !degraded {
		fmt.Fprintf(&b, "Context:\n%s\n", req.Context)
	}
	if degraded {
		b.WriteString("Your previous reply was not valid JSON. Reply with the JSON object only.\n")
	}
	b.WriteString("Return JSON plan now.")
	return b.String()
}
