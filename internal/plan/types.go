package plan

// Action is a single capability invocation requested by the planner. It has
// no identity beyond its position in a Plan.
type Action struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Check is a declarative objective validation carried by a plan.
type Check struct {
	Type     string `json:"type"`
	Path     string `json:"path"`
	Contains string `json:"contains,omitempty"`
	Module   string `json:"module,omitempty"`
	Key      string `json:"key,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Plan is the planner's structured response for one iteration. Plans are
// consumed once and never mutated.
type Plan struct {
	Thought     string   `json:"thought,omitempty"`
	Done        bool     `json:"done"`
	FinalOutput string   `json:"final_output,omitempty"`
	Actions     []Action `json:"actions"`
	Validations []Check  `json:"validations,omitempty"`
}

// StringParam returns a string parameter by name, tolerating missing params.
func (a Action) StringParam(name string) string {
	if a.Params == nil {
		return ""
	}
	value, ok := a.Params[name]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return text
}

// PathParam returns the filesystem path parameter, accepting the legacy
// file_path alias.
func (a Action) PathParam() string {
	if path := a.StringParam("path"); path != "" {
		return path
	}
	return a.StringParam("file_path")
}
