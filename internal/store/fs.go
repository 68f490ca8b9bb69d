package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"otto/internal/run"
)

const (
	stateFile      = "state.json"
	iterationsFile = "iterations.jsonl"
	eventsFile     = "events.log"
	artifactsDir   = "artifacts"
)

// FS is a filesystem-backed store rooted at a runs directory.
type FS struct {
	root string
}

// NewFS creates the runs root if needed and returns a store over it.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("runs root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create runs root: %w", err)
	}
	return &FS{root: root}, nil
}

// RunDir returns the run's directory path without creating it.
func (s *FS) RunDir(runID string) string {
	return filepath.Join(s.root, runID)
}

// SaveRun persists the run state record using an atomic rename.
func (s *FS) SaveRun(r run.Run) error {
	if r.ID == "" {
		return fmt.Errorf("run id is required")
	}
	dir := s.RunDir(r.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}
	return writeAtomic(filepath.Join(dir, stateFile), payload)
}

// LoadRun reads a run's state record.
func (s *FS) LoadRun(id string) (run.Run, error) {
	data, err := os.ReadFile(filepath.Join(s.RunDir(id), stateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return run.Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return run.Run{}, fmt.Errorf("read run state: %w", err)
	}
	var r run.Run
	if err := json.Unmarshal(data, &r); err != nil {
		return run.Run{}, fmt.Errorf("decode run state %s: %w", id, err)
	}
	return r, nil
}

// ListRuns loads every run state under the root, newest first by creation
// time. Directories without a readable state file are skipped.
func (s *FS) ListRuns() ([]run.Run, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read runs root: %w", err)
	}
	runs := make([]run.Run, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		r, err := s.LoadRun(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// AppendIteration appends one iteration record to the run's iteration log.
func (s *FS) AppendIteration(it run.Iteration) error {
	if it.RunID == "" {
		return fmt.Errorf("iteration run id is required")
	}
	return appendJSONLine(filepath.Join(s.RunDir(it.RunID), iterationsFile), it)
}

// Iterations reads the run's iteration log in append order.
func (s *FS) Iterations(runID string) ([]run.Iteration, error) {
	var iterations []run.Iteration
	err := readJSONLines(filepath.Join(s.RunDir(runID), iterationsFile), func(line []byte) error {
		var it run.Iteration
		if err := json.Unmarshal(line, &it); err != nil {
			return fmt.Errorf("decode iteration: %w", err)
		}
		iterations = append(iterations, it)
		return nil
	})
	return iterations, err
}

// AppendEvent appends one event record to the run's event log.
func (s *FS) AppendEvent(ev run.Event) error {
	if ev.RunID == "" {
		return fmt.Errorf("event run id is required")
	}
	return appendJSONLine(filepath.Join(s.RunDir(ev.RunID), eventsFile), ev)
}

// Events reads the run's event log in append order.
func (s *FS) Events(runID string) ([]run.Event, error) {
	var events []run.Event
	err := readJSONLines(filepath.Join(s.RunDir(runID), eventsFile), func(line []byte) error {
		var ev run.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

// SaveArtifact copies the file at src into the run's artifacts directory.
func (s *FS) SaveArtifact(runID, name, src string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("artifact name must be a bare file name: %q", name)
	}
	dir := filepath.Join(s.RunDir(runID), artifactsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open artifact source: %w", err)
	}
	defer in.Close()
	out, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy artifact: %w", err)
	}
	return out.Close()
}

// Artifacts lists the run's snapshotted artifact names, sorted.
func (s *FS) Artifacts(runID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.RunDir(runID), artifactsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifacts dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// writeAtomic writes payload to path via a temp file and rename, syncing
// before the swap.
func writeAtomic(path string, payload []byte) error {
	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := file.Write(payload)
	syncErr := file.Sync()
	closeErr := file.Close()
	for _, err := range []error{writeErr, syncErr, closeErr} {
		if err != nil {
			_ = os.Remove(tmpPath)
			return err
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// appendJSONLine appends one JSON document plus newline, syncing before
// returning so the record survives a crash.
func appendJSONLine(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	_, writeErr := file.Write(append(payload, '\n'))
	syncErr := file.Sync()
	closeErr := file.Close()
	for _, err := range []error{writeErr, syncErr, closeErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// readJSONLines streams the file line by line; a missing file yields no
// records and no error.
func readJSONLines(path string, visit func(line []byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := visit(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
