package policy

import (
	"fmt"
	"strings"
)

// SplitCommand tokenizes a shell command the way a POSIX shell would split
// words, honoring single quotes, double quotes, and backslash escapes. It
// does not expand variables or globs; the gate only needs word boundaries.
func SplitCommand(command string) ([]string, error) {
	var (
		parts   []string
		current strings.Builder
		inWord  bool
		single  bool
		double  bool
		escaped bool
	)
	for _, r := range command {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
			inWord = true
		case r == '\\' && !single:
			escaped = true
			inWord = true
		case r == '\'' && !double:
			single = !single
			inWord = true
		case r == '"' && !single:
			double = !double
			inWord = true
		case (r == ' ' || r == '\t' || r == '\n') && !single && !double:
			if inWord {
				parts = append(parts, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if escaped || single || double {
		return nil, fmt.Errorf("unterminated quoting in command")
	}
	if inWord {
		parts = append(parts, current.String())
	}
	return parts, nil
}
