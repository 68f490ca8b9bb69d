package exec

import (
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"
)

// SessionPrefix returns the container name prefix shared by all sessions of
// one run.
func SessionPrefix(runID string) string {
	id := sanitizeID(runID)
	if len(id) > 8 {
		id = id[:8]
	}
	return "otto-" + id + "-"
}

// ListSessions returns the names of all otto session containers, running or
// exited.
func ListSessions(ctx context.Context) ([]string, error) {
	buffer := &boundedBuffer{max: 1024 * 1024}
	cmd := execCommand(ctx, "docker", "ps", "-a", "--format", "{{.Names}}")
	cmd.Stdout = buffer
	cmd.Stderr = buffer
	if err := cmd.Run(); err != nil {
		if errors.Is(err, osexec.ErrNotFound) {
			return nil, fmt.Errorf("%w: docker CLI not found", ErrRuntimeUnavailable)
		}
		if daemonDown(buffer.String()) {
			return nil, fmt.Errorf("%w: %s", ErrRuntimeUnavailable, firstLine(buffer.String()))
		}
		return nil, fmt.Errorf("list containers: %w", err)
	}
	var names []string
	for _, line := range strings.Split(buffer.String(), "\n") {
		name := strings.TrimSpace(line)
		if strings.HasPrefix(name, "otto-") {
			names = append(names, name)
		}
	}
	return names, nil
}

// RemoveSession force-removes one session container.
func RemoveSession(ctx context.Context, name string) error {
	cmd := execCommand(ctx, "docker", "rm", "-f", name)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}
