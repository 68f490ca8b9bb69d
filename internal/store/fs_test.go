package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"otto/internal/run"
)

func newTestStore(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(filepath.Join(t.TempDir(), "runs"))
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func sampleRun(id string, created time.Time) run.Run {
	return run.Run{
		ID:        id,
		Task:      "write report.csv",
		Status:    run.StatusRunning,
		MaxIters:  10,
		Workspace: "/tmp/ws",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := sampleRun("r1", created)
	want.Status = run.StatusCompleted
	want.StopReason = run.StopCompleted
	want.Iteration = 4
	want.LastOutput = "done"

	if err := s.SaveRun(want); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	got, err := s.LoadRun("r1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadMissingRun(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadRun("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveRunOverwritesAtomically(t *testing.T) {
	s := newTestStore(t)
	r := sampleRun("r1", time.Now().UTC())
	if err := s.SaveRun(r); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	r.Iteration = 7
	if err := s.SaveRun(r); err != nil {
		t.Fatalf("second SaveRun: %v", err)
	}
	got, err := s.LoadRun("r1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if got.Iteration != 7 {
		t.Fatalf("Iteration = %d, want 7", got.Iteration)
	}
	if _, err := os.Stat(filepath.Join(s.RunDir("r1"), "state.json.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		if err := s.SaveRun(sampleRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveRun %s: %v", id, err)
		}
	}
	runs, err := s.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len = %d, want 3", len(runs))
	}
	if runs[0].ID != "new" || runs[2].ID != "old" {
		t.Fatalf("order = %s,%s,%s", runs[0].ID, runs[1].ID, runs[2].ID)
	}
}

func TestIterationLogAppendOrder(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveRun(sampleRun("r1", time.Now().UTC())); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	for i := 1; i <= 3; i++ {
		it := run.Iteration{
			RunID:  "r1",
			Index:  i,
			Output: "step output",
			Results: []run.ActionResult{
				{Name: "write_file", OK: true, Output: "ok"},
			},
		}
		if err := s.AppendIteration(it); err != nil {
			t.Fatalf("AppendIteration %d: %v", i, err)
		}
	}
	iterations, err := s.Iterations("r1")
	if err != nil {
		t.Fatalf("Iterations: %v", err)
	}
	if len(iterations) != 3 {
		t.Fatalf("len = %d, want 3", len(iterations))
	}
	for i, it := range iterations {
		if it.Index != i+1 {
			t.Fatalf("iteration %d has index %d", i, it.Index)
		}
	}
	if len(iterations[0].Results) != 1 || iterations[0].Results[0].Name != "write_file" {
		t.Fatalf("results not preserved: %+v", iterations[0].Results)
	}
}

func TestIterationsMissingLog(t *testing.T) {
	s := newTestStore(t)
	iterations, err := s.Iterations("r1")
	if err != nil || len(iterations) != 0 {
		t.Fatalf("got %d iterations, err %v", len(iterations), err)
	}
}

func TestEventLog(t *testing.T) {
	s := newTestStore(t)
	for seq := 1; seq <= 2; seq++ {
		ev := run.Event{RunID: "r1", Seq: seq, Kind: run.EventIteration, Message: "iteration finished"}
		if err := s.AppendEvent(ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	events, err := s.Events("r1")
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 || events[0].Seq != 1 || events[1].Seq != 2 {
		t.Fatalf("events = %+v", events)
	}
}

func TestArtifactSnapshot(t *testing.T) {
	s := newTestStore(t)
	src := filepath.Join(t.TempDir(), "report.csv")
	if err := os.WriteFile(src, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := s.SaveArtifact("r1", "report.csv", src); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	names, err := s.Artifacts("r1")
	if err != nil {
		t.Fatalf("Artifacts: %v", err)
	}
	if len(names) != 1 || names[0] != "report.csv" {
		t.Fatalf("names = %v", names)
	}
	data, err := os.ReadFile(filepath.Join(s.RunDir("r1"), "artifacts", "report.csv"))
	if err != nil || string(data) != "a,b\n1,2\n" {
		t.Fatalf("artifact content %q, err %v", data, err)
	}
}

func TestArtifactNameMustBeBare(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveArtifact("r1", "../escape.txt", "/dev/null"); err == nil {
		t.Fatal("expected error for traversal name")
	}
}

func TestArtifactsEmptyRun(t *testing.T) {
	s := newTestStore(t)
	names, err := s.Artifacts("r1")
	if err != nil || names != nil {
		t.Fatalf("names = %v, err %v", names, err)
	}
}
