package live

import (
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// renderHeader renders the run header line.
func renderHeader(state State, now time.Time, noColor bool) string {
	line := "Run " + state.RunID
	if state.Task != "" {
		line += " | " + truncate(state.Task, 60)
	}
	if !state.StartedAt.IsZero() {
		line += " | Elapsed: " + now.Sub(state.StartedAt).Round(100*time.Millisecond).String()
	}
	return stylize(line, noColor, lipgloss.Color("33"))
}

// renderStatus renders the spinner and counts line.
func renderStatus(state State, frame string, noColor bool) string {
	status := string(state.Status)
	if status == "" {
		status = "starting"
	}
	line := status
	if !state.Finished {
		line = frame + " " + line
	} else if state.StopReason != "" {
		line += " (" + string(state.StopReason) + ")"
	}
	counts := state.Counts
	line += " | Iterations: " + strconv.Itoa(counts.Iterations) +
		" Denied: " + strconv.Itoa(counts.Denied) +
		" Installs: " + strconv.Itoa(counts.Installs) +
		" Artifacts: " + strconv.Itoa(counts.Artifacts)
	return stylize(line, noColor, lipgloss.Color("242"))
}

// renderRecent renders the recent event lines.
func renderRecent(state State, noColor bool) string {
	if len(state.Recent) == 0 {
		return ""
	}
	lines := make([]string, len(state.Recent))
	for i, line := range state.Recent {
		lines[i] = "  " + truncate(line, 100)
	}
	return stylize(strings.Join(lines, "\n"), noColor, lipgloss.Color("240"))
}

// renderFooter renders the last event line.
func renderFooter(state State, noColor bool) string {
	if state.LastEvent == "" {
		return ""
	}
	return stylize("Last event: "+truncate(state.LastEvent, 100), noColor, lipgloss.Color("244"))
}

// truncate collapses whitespace and clips text for display.
func truncate(text string, limit int) string {
	normalized := strings.Join(strings.Fields(text), " ")
	if len(normalized) <= limit {
		return normalized
	}
	return normalized[:limit-3] + "..."
}

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}
