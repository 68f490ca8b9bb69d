package live

import (
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"otto/internal/run"
)

// Controller runs the live UI and forwards engine events into it.
type Controller struct {
	events    chan run.Event
	program   *tea.Program
	done      chan struct{}
	closeOnce sync.Once
}

// Start launches the live UI writing to stdout.
func Start(stdout io.Writer, opts Options) *Controller {
	if stdout == nil {
		stdout = os.Stdout
	}
	events := make(chan run.Event, 256)
	model := NewModel(events, opts)
	program := tea.NewProgram(model, tea.WithOutput(stdout))
	controller := &Controller{
		events:  events,
		program: program,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(controller.done)
	}()
	return controller
}

// Send enqueues an event without blocking the caller.
func (c *Controller) Send(event run.Event) {
	if c == nil {
		return
	}
	select {
	case c.events <- event:
	default:
	}
}

// Close signals the UI to stop once pending events are drained.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.events)
	})
}

// Wait blocks until the UI has exited.
func (c *Controller) Wait() {
	if c == nil {
		return
	}
	<-c.done
}
