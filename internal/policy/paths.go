package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveWithin canonicalizes path against root and returns the absolute
// location, or an error when the resolution lands outside root. Symlinks in
// the existing portion of the path are followed so a link pointing out of the
// workspace cannot smuggle a path through.
func ResolveWithin(root, path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	if resolved, rerr := filepath.EvalSymlinks(rootAbs); rerr == nil {
		rootAbs = resolved
	}

	cleaned := filepath.Clean(trimmed)
	abs := cleaned
	if !filepath.IsAbs(cleaned) {
		abs = filepath.Join(rootAbs, cleaned)
	}

	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", err
	}
	if resolved != rootAbs && !strings.HasPrefix(resolved, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace", path)
	}
	return resolved, nil
}

// resolveExisting follows symlinks on the deepest existing ancestor of path
// and rejoins the non-existing suffix, so confinement holds for files the
// action is about to create.
func resolveExisting(abs string) (string, error) {
	remainder := []string{}
	current := abs
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			if len(remainder) == 0 {
				return resolved, nil
			}
			parts := append([]string{resolved}, reverse(remainder)...)
			return filepath.Join(parts...), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolve %s: %w", abs, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		remainder = append(remainder, filepath.Base(current))
		current = parent
	}
}

func reverse(parts []string) []string {
	out := make([]string, len(parts))
	for i, part := range parts {
		out[len(parts)-1-i] = part
	}
	return out
}
