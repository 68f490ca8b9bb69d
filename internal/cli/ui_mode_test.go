package cli

import (
	"io"
	"testing"
)

func withTerminal(t *testing.T, value bool) {
	t.Helper()
	prev := isTerminal
	isTerminal = func(io.Writer) bool { return value }
	t.Cleanup(func() { isTerminal = prev })
}

func TestResolveUIModeAuto(t *testing.T) {
	withTerminal(t, true)
	decision, err := resolveUIMode("auto", nil)
	if err != nil || !decision.useLive {
		t.Fatalf("decision = %+v err = %v", decision, err)
	}

	withTerminal(t, false)
	decision, err = resolveUIMode("", nil)
	if err != nil || decision.useLive {
		t.Fatalf("decision = %+v err = %v", decision, err)
	}
}

func TestResolveUIModeLiveOffTTYFallsBack(t *testing.T) {
	withTerminal(t, false)
	decision, err := resolveUIMode("live", nil)
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if decision.useLive || decision.warning == "" {
		t.Fatalf("decision = %+v", decision)
	}
}

func TestResolveUIModePlain(t *testing.T) {
	withTerminal(t, true)
	decision, err := resolveUIMode("plain", nil)
	if err != nil || decision.useLive {
		t.Fatalf("decision = %+v err = %v", decision, err)
	}
}

func TestResolveUIModeInvalid(t *testing.T) {
	if _, err := resolveUIMode("fancy", nil); err == nil {
		t.Fatal("invalid mode accepted")
	}
}
