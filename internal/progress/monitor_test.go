package progress

import (
	"strings"
	"testing"
	"time"

	"otto/internal/plan"
	"otto/internal/run"
)

func testConfig() Config {
	return Config{
		RepeatThreshold:            3,
		ParseErrorThreshold:        3,
		CapabilityFailureThreshold: 4,
		ResetPolicy:                "strict",
		StagnationThreshold:        3,
		MaxWallTime:                15 * time.Minute,
	}
}

func noopSample(output string) Sample {
	return Sample{
		Actions: []plan.Action{{Name: "list_dir", Params: map[string]any{"path": "."}}},
		Results: []run.ActionResult{{Name: "list_dir", OK: true, Output: output}},
		Output:  output,
		Score:   1,
	}
}

func TestRepetitionStopsAtExactThreshold(t *testing.T) {
	m := NewMonitor(testConfig(), nil)

	for i := 1; i <= 2; i++ {
		if v := m.Observe(noopSample("same")); v.Stop {
			t.Fatalf("stopped at observation %d, before threshold", i)
		}
	}
	v := m.Observe(noopSample("same"))
	if !v.Stop || v.Reason != run.StopNoProgress {
		t.Fatalf("verdict at threshold = %+v", v)
	}
	if !strings.Contains(v.Detail, "repeated=3") || !strings.Contains(v.Detail, "list_dir") {
		t.Fatalf("detail = %q", v.Detail)
	}
}

func TestRepetitionResetsOnDifferentSignature(t *testing.T) {
	m := NewMonitor(testConfig(), nil)
	m.Observe(noopSample("a"))
	m.Observe(noopSample("a"))
	m.Observe(noopSample("b")) // breaks the streak
	m.Observe(noopSample("a"))
	if v := m.Observe(noopSample("a")); v.Stop {
		t.Fatalf("stopped after reset: %+v", v)
	}
}

func TestParseErrorStreak(t *testing.T) {
	m := NewMonitor(testConfig(), nil)
	if v := m.ObserveParseError(); v.Stop {
		t.Fatalf("stopped on first parse error")
	}
	if v := m.ObserveParseError(); v.Stop {
		t.Fatalf("stopped on second parse error")
	}
	if v := m.ObserveParseError(); !v.Stop || v.Reason != run.StopNoProgress {
		t.Fatalf("third parse error verdict = %+v", v)
	}
}

func TestParseErrorStreakResetsOnParsedPlan(t *testing.T) {
	m := NewMonitor(testConfig(), nil)
	m.ObserveParseError()
	m.ObserveParseError()
	m.Observe(noopSample("parsed fine"))
	m.ObserveParseError()
	if v := m.ObserveParseError(); v.Stop {
		t.Fatalf("stopped despite reset: %+v", v)
	}
}

func failSample(errText string, class run.FailureClass) Sample {
	return Sample{
		Actions: []plan.Action{{Name: "run_command"}},
		Results: []run.ActionResult{{Name: "run_command", OK: false, Error: errText, Class: class}},
		Output:  errText,
		Score:   0,
	}
}

func TestCapabilityStreakStops(t *testing.T) {
	m := NewMonitor(testConfig(), nil)
	for i := 1; i <= 3; i++ {
		if v := m.Observe(failSample("command is not allowlisted: gcc", run.FailureBlockedCommand)); v.Stop {
			// Repetition threshold is 3 and would also fire on identical
			// samples; vary the output to isolate the capability counter.
			t.Fatalf("stopped early at %d: %+v", i, v)
		}
		m.lastSignature = "" // force distinct signatures between observations
	}
	v := m.Observe(failSample("command is not allowlisted: gcc", run.FailureBlockedCommand))
	if !v.Stop || !strings.Contains(v.Detail, "capability block") {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestCapabilityStreakStrictReset(t *testing.T) {
	cfg := testConfig()
	m := NewMonitor(cfg, nil)
	m.Observe(failSample("no module named 'pandas'", run.FailureNone))
	m.lastSignature = ""
	m.Observe(failSample("some flaky unrelated failure xyz", run.FailureNone))
	if m.capStreak != 1 {
		t.Fatalf("strict reset: capStreak = %d, want 1", m.capStreak)
	}
}

func TestCapabilityStreakLenientIgnoresNoise(t *testing.T) {
	cfg := testConfig()
	cfg.ResetPolicy = "lenient"
	m := NewMonitor(cfg, nil)
	m.Observe(failSample("no module named 'pandas'", run.FailureNone))
	m.lastSignature = ""
	m.Observe(failSample("some flaky unrelated failure xyz", run.FailureNone))
	if m.capFingerprint != "missing_module:pandas" {
		t.Fatalf("lenient: fingerprint = %q", m.capFingerprint)
	}
	m.lastSignature = ""
	m.Observe(failSample("no module named 'pandas'", run.FailureNone))
	if m.capStreak != 2 {
		t.Fatalf("lenient: capStreak = %d, want 2", m.capStreak)
	}
}

func TestWallTimeExceeded(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	cfg := testConfig()
	cfg.MaxWallTime = time.Minute
	m := NewMonitor(cfg, clock)

	if _, exceeded := m.WallTimeExceeded(); exceeded {
		t.Fatal("exceeded at start")
	}
	now = now.Add(2 * time.Minute)
	elapsed, exceeded := m.WallTimeExceeded()
	if !exceeded || elapsed != 2*time.Minute {
		t.Fatalf("elapsed=%v exceeded=%v", elapsed, exceeded)
	}
}

func TestStagnationDirective(t *testing.T) {
	m := NewMonitor(testConfig(), nil)
	sample := noopSample("first")
	sample.Score = 1
	m.Observe(sample)

	for i := 0; i < 2; i++ {
		s := noopSample("varies " + strings.Repeat("x", i+1))
		s.Score = 1
		if v := m.Observe(s); v.Directive != "" {
			t.Fatalf("directive emitted early at %d", i)
		}
	}
	s := noopSample("varies again differently")
	s.Score = 1
	v := m.Observe(s)
	if v.Stop {
		t.Fatalf("stagnation stopped the run: %+v", v)
	}
	if v.Directive == "" {
		t.Fatal("no recovery directive at stagnation threshold")
	}
}

func TestFingerprintSignals(t *testing.T) {
	results := []run.ActionResult{
		{Name: "run_code", OK: false, Output: "Traceback...\nModuleNotFoundError: No module named 'requests'"},
		{Name: "run_command", OK: false, Error: "command is not allowlisted: gcc"},
		{Name: "read_file", OK: true},
	}
	fp := Fingerprint(results)
	if !strings.Contains(fp, "missing_module:requests") {
		t.Errorf("fingerprint %q missing module signal", fp)
	}
	if !strings.Contains(fp, "blocked_command:gcc") {
		t.Errorf("fingerprint %q missing blocked signal", fp)
	}
	if !Classified(fp) {
		t.Errorf("fingerprint %q not classified", fp)
	}
	if Fingerprint([]run.ActionResult{{Name: "x", OK: true}}) != "" {
		t.Error("fingerprint of all-ok results not empty")
	}
	if Classified("raw:something odd") {
		t.Error("raw-only fingerprint classified")
	}
}

func TestSignatureStability(t *testing.T) {
	a := noopSample("hello")
	b := noopSample("hello")
	if Signature(a) != Signature(b) {
		t.Error("identical samples produced different signatures")
	}
	c := noopSample("different")
	if Signature(a) == Signature(c) {
		t.Error("different samples produced identical signatures")
	}
}
