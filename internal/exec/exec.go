// Package exec runs plan actions. A Backend executes one action under a
// budget; file actions always touch the host workspace while commands and
// code run either on the host or inside a container session.
package exec

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"
	"time"

	"otto/internal/plan"
	"otto/internal/run"
)

// ErrRuntimeUnavailable means the runtime itself cannot execute anything,
// as opposed to an action failing. The controller stops the run with an
// error stop reason when it sees this.
var ErrRuntimeUnavailable = errors.New("execution runtime unavailable")

// Budget bounds one action execution.
type Budget struct {
	Timeout        time.Duration
	MaxOutputChars int
}

// Backend executes authorized actions. The returned error is reserved for
// infrastructure failures; action-level failures are reported inside the
// ActionResult.
type Backend interface {
	Execute(ctx context.Context, action plan.Action, budget Budget) (run.ActionResult, error)
	Close(ctx context.Context) error
}

// execCommand is swapped in tests.
var execCommand = func(ctx context.Context, name string, args ...string) *osexec.Cmd {
	return osexec.CommandContext(ctx, name, args...)
}

// boundedBuffer keeps the last max bytes written, so long outputs retain
// their tail where errors usually are.
type boundedBuffer struct {
	buf       []byte
	max       int
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if b.max <= 0 {
		b.buf = append(b.buf, p...)
		return len(p), nil
	}
	if len(p) >= b.max {
		b.buf = append(b.buf[:0], p[len(p)-b.max:]...)
		b.truncated = true
		return len(p), nil
	}
	if len(b.buf)+len(p) > b.max {
		drop := len(b.buf) + len(p) - b.max
		b.buf = append(b.buf[:0], b.buf[drop:]...)
		b.truncated = true
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	text := strings.TrimSpace(string(b.buf))
	if b.truncated {
		return "...[output truncated]\n" + text
	}
	return text
}

func failure(name, output, detail string, class run.FailureClass) run.ActionResult {
	return run.ActionResult{Name: name, OK: false, Output: output, Error: detail, Class: class}
}

func unsupportedAction(action plan.Action) run.ActionResult {
	return failure(action.Name, "", fmt.Sprintf("action not supported: %s", action.Name), run.FailureDenied)
}
