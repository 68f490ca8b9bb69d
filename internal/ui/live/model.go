// Package live renders a run's event stream as a console UI using Bubble
// Tea. The model is fed controller events through a channel; once the run
// reaches a terminal state the program exits on its own.
package live

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"otto/internal/run"
)

// Model renders a live run view.
type Model struct {
	state        State
	spinner      spinner.Model
	events       <-chan run.Event
	tickInterval time.Duration
	now          time.Time
	noColor      bool
}

// Options configures the live UI model.
type Options struct {
	NoColor      bool
	TickInterval time.Duration
}

// NewModel constructs a live UI model for an event stream.
func NewModel(events <-chan run.Event, opts Options) Model {
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = 200 * time.Millisecond
	}
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	if !opts.NoColor {
		sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	}
	return Model{
		spinner:      sp,
		events:       events,
		tickInterval: tickInterval,
		now:          time.Now(),
		noColor:      opts.NoColor,
	}
}

// Init starts the spinner, the clock, and the first event wait.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events), tick(m.tickInterval))
}

// Update consumes controller events, spinner frames, and clock ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		if typed.String() == "q" || typed.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case EventMsg:
		m.state = Reduce(m.state, typed.Event)
		if m.state.Finished {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	case tickMsg:
		m.now = time.Time(typed)
		return m, tick(m.tickInterval)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}
	return m, nil
}

// View renders the live run view.
func (m Model) View() string {
	header := renderHeader(m.state, m.now, m.noColor)
	status := renderStatus(m.state, m.spinner.View(), m.noColor)
	recent := renderRecent(m.state, m.noColor)
	footer := renderFooter(m.state, m.noColor)
	return lipgloss.JoinVertical(lipgloss.Left, header, status, recent, footer)
}

// EventMsg wraps a controller event for Bubble Tea.
type EventMsg struct {
	Event run.Event
}

// tickMsg carries a clock tick for elapsed-time updates.
type tickMsg time.Time

// waitForEvent blocks until a controller event is available.
func waitForEvent(events <-chan run.Event) tea.Cmd {
	return func() tea.Msg {
		if events == nil {
			return nil
		}
		event, ok := <-events
		if !ok {
			return tea.Quit()
		}
		return EventMsg{Event: event}
	}
}

// tick emits a periodic tick message.
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}
