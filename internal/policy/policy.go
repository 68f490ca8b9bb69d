// Package policy implements the safety gate evaluated before every action.
// Authorization is a pure function of the action, the currently permitted
// tool set, and the workspace root; it performs no I/O beyond path
// resolution and never mutates state.
package policy

import (
	"fmt"
	"sort"
	"strings"

	"otto/internal/plan"
)

// DenyReason classifies why an action was refused.
type DenyReason string

const (
	DenyPathEscape     DenyReason = "path_escape"
	DenyBlockedCommand DenyReason = "command_blocked"
	DenyCapability     DenyReason = "capability_denied"
)

// Decision is the outcome of authorizing one action.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Detail  string
}

func allowed() Decision { return Decision{Allowed: true} }

func denied(reason DenyReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// ToolSet is the set of tool names currently permitted by policy. A nil set
// means the policy source imposes no restriction.
type ToolSet map[string]bool

// Permits reports whether a tool name is in the set.
func (s ToolSet) Permits(name string) bool {
	if s == nil {
		return true
	}
	return s[strings.ToLower(strings.TrimSpace(name))]
}

// Names returns the permitted tool names, sorted. Nil for an unrestricted
// set.
func (s ToolSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s))
	for name, ok := range s {
		if ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// blockedTokens are intrinsically destructive commands denied even when
// nominally allow-listed. rm is absent: it is permitted when every target
// stays inside the workspace.
var blockedTokens = map[string]bool{
	"sudo": true, "su": true, "ssh": true, "scp": true,
	"curl": true, "wget": true, "mv": true,
}

// Gate authorizes actions against an immutable command allow-list and a
// workspace root. The per-iteration policy tool set is passed to Authorize so
// hot reload is simply part of the call.
type Gate struct {
	Root         string
	SafeCommands map[string]bool
}

// NewGate builds a gate for a workspace root and command allow-list.
func NewGate(root string, safeCommands []string) *Gate {
	allow := make(map[string]bool, len(safeCommands))
	for _, name := range safeCommands {
		allow[strings.TrimSpace(name)] = true
	}
	return &Gate{Root: root, SafeCommands: allow}
}

// Authorize evaluates one action against the gate and the supplied tool set.
func (g *Gate) Authorize(action plan.Action, tools ToolSet) Decision {
	name := strings.ToLower(strings.TrimSpace(action.Name))
	if !tools.Permits(name) {
		return denied(DenyCapability, fmt.Sprintf("blocked by policy tool set: %s", name))
	}

	switch name {
	case "read_file", "write_file", "list_dir", "run_code":
		return g.checkPathParams(action)
	case "run_command":
		return g.checkCommand(action)
	default:
		return allowed()
	}
}

// checkPathParams confines every filesystem parameter to the workspace root.
func (g *Gate) checkPathParams(action plan.Action) Decision {
	path := action.PathParam()
	if path == "" {
		return allowed()
	}
	if _, err := ResolveWithin(g.Root, path); err != nil {
		return denied(DenyPathEscape, err.Error())
	}
	return allowed()
}

// checkCommand enforces the executable allow-list, the blocked-token list,
// and workspace confinement of rm targets.
func (g *Gate) checkCommand(action plan.Action) Decision {
	command := strings.TrimSpace(action.StringParam("command"))
	if command == "" {
		return denied(DenyBlockedCommand, "empty command")
	}
	parts, err := SplitCommand(command)
	if err != nil || len(parts) == 0 {
		return denied(DenyBlockedCommand, "command could not be parsed")
	}

	base := parts[0]
	if !g.SafeCommands[base] {
		return denied(DenyBlockedCommand, fmt.Sprintf("command is not allowlisted: %s", base))
	}
	for _, token := range parts {
		if blockedTokens[token] {
			return denied(DenyBlockedCommand, fmt.Sprintf("command contains blocked token: %s", token))
		}
	}

	if base == "rm" {
		for _, target := range rmTargets(parts) {
			if _, err := ResolveWithin(g.Root, target); err != nil {
				return denied(DenyPathEscape, fmt.Sprintf("rm target %s: %v", target, err))
			}
		}
	}
	return allowed()
}

// rmTargets extracts the non-flag arguments of an rm invocation.
func rmTargets(parts []string) []string {
	targets := make([]string, 0, len(parts)-1)
	literal := false
	for _, token := range parts[1:] {
		if token == "--" {
			literal = true
			continue
		}
		if !literal && strings.HasPrefix(token, "-") {
			continue
		}
		targets = append(targets, token)
	}
	return targets
}
