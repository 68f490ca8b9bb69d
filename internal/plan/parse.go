package plan

import (
	"encoding/json"
	"strings"
)

// ParseError describes a planner response that could not be parsed into a
// valid Plan. It is a first-class outcome: callers branch on it instead of
// treating it as exceptional.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return "planner_parse_error: " + e.Reason
}

// Parse decodes a planner response into a Plan. The response must be a JSON
// object; as a concession to chatty models, a JSON object embedded in
// surrounding prose is also accepted (first '{' to last '}').
func Parse(content string) (Plan, *ParseError) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Plan{}, &ParseError{Reason: "empty response", Raw: content}
	}

	if p, ok := decode(trimmed); ok {
		return p, nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		if p, ok := decode(trimmed[start : end+1]); ok {
			return p, nil
		}
	}

	return Plan{}, &ParseError{Reason: "response is not a JSON plan", Raw: content}
}

func decode(text string) (Plan, bool) {
	var p Plan
	decoder := json.NewDecoder(strings.NewReader(text))
	if err := decoder.Decode(&p); err != nil {
		return Plan{}, false
	}
	return p, true
}
