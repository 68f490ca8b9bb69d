package progress

import (
	"fmt"
	"strings"
	"time"

	"otto/internal/run"
)

// Config holds the monitor thresholds. Zero values are invalid; the config
// package clamps them before a monitor is built.
type Config struct {
	RepeatThreshold            int
	ParseErrorThreshold        int
	CapabilityFailureThreshold int
	// ResetPolicy decides when the capability-failure streak resets:
	// "strict" on any different fingerprint, "lenient" only when a different
	// classified fingerprint appears (unclassified noise is ignored).
	ResetPolicy         string
	StagnationThreshold int
	MaxWallTime         time.Duration
}

// Verdict is the monitor's decision after observing one iteration.
type Verdict struct {
	Stop   bool
	Reason run.StopReason
	Detail string
	// Directive nudges the planner toward a different strategy when the run
	// is stagnating but no hard counter has tripped.
	Directive string
}

// Monitor tracks one run's progress. It is owned by a single controller
// goroutine and needs no locking.
type Monitor struct {
	cfg       Config
	clock     func() time.Time
	startedAt time.Time

	lastSignature string
	repeatCount   int

	parseErrStreak int

	capFingerprint string
	capStreak      int

	bestScore  int
	stagnation int
}

// NewMonitor builds a monitor; clock defaults to time.Now.
func NewMonitor(cfg Config, clock func() time.Time) *Monitor {
	if clock == nil {
		clock = time.Now
	}
	return &Monitor{cfg: cfg, clock: clock, startedAt: clock(), bestScore: -1}
}

// WallTimeExceeded reports whether the run's wall-clock budget is spent. The
// controller checks this at the top of every iteration.
func (m *Monitor) WallTimeExceeded() (time.Duration, bool) {
	if m.cfg.MaxWallTime <= 0 {
		return 0, false
	}
	elapsed := m.clock().Sub(m.startedAt)
	return elapsed, elapsed >= m.cfg.MaxWallTime
}

// ObserveParseError advances the planner-parse-error streak. It is fed once
// per iteration whose plan could not be parsed after bounded retries.
func (m *Monitor) ObserveParseError() Verdict {
	m.parseErrStreak++
	if m.parseErrStreak >= m.cfg.ParseErrorThreshold {
		return Verdict{
			Stop:   true,
			Reason: run.StopNoProgress,
			Detail: fmt.Sprintf("repeated planner_parse_error (streak=%d)", m.parseErrStreak),
		}
	}
	return Verdict{}
}

// Observe feeds a completed iteration and returns the monitor's verdict.
// Counter order matches the controller's transition rules: capability streak,
// then repetition, then stagnation directive.
func (m *Monitor) Observe(sample Sample) Verdict {
	m.parseErrStreak = 0

	if verdict := m.observeCapability(sample); verdict.Stop {
		return verdict
	}
	if verdict := m.observeRepetition(sample); verdict.Stop {
		return verdict
	}
	return m.observeStagnation(sample)
}

func (m *Monitor) observeCapability(sample Sample) Verdict {
	fingerprint := Fingerprint(sample.Results)
	switch {
	case fingerprint == "":
		m.capStreak = 0
		m.capFingerprint = ""
	case fingerprint == m.capFingerprint:
		m.capStreak++
	case m.cfg.ResetPolicy == "lenient" && !Classified(fingerprint) && m.capFingerprint != "":
		// Unclassified noise neither advances nor resets the streak.
	default:
		m.capStreak = 1
		m.capFingerprint = fingerprint
	}

	if m.capStreak >= m.cfg.CapabilityFailureThreshold {
		return Verdict{
			Stop:   true,
			Reason: run.StopNoProgress,
			Detail: fmt.Sprintf("repeated capability block (streak=%d, fingerprint=%s)", m.capStreak, m.capFingerprint),
		}
	}
	return Verdict{}
}

func (m *Monitor) observeRepetition(sample Sample) Verdict {
	signature := Signature(sample)
	if signature == m.lastSignature {
		m.repeatCount++
	} else {
		m.repeatCount = 1
		m.lastSignature = signature
	}

	if m.repeatCount >= m.cfg.RepeatThreshold {
		names := make([]string, 0, len(sample.Actions))
		for _, action := range sample.Actions {
			names = append(names, action.Name)
		}
		detail := fmt.Sprintf(
			"no progress: identical iterations repeated=%d signature=%s actions=%s",
			m.repeatCount, signature[:12], strings.Join(names, ","),
		)
		return Verdict{Stop: true, Reason: run.StopNoProgress, Detail: detail}
	}
	return Verdict{}
}

func (m *Monitor) observeStagnation(sample Sample) Verdict {
	if sample.Score > m.bestScore {
		m.bestScore = sample.Score
		m.stagnation = 0
		return Verdict{}
	}
	m.stagnation++
	if m.stagnation >= m.cfg.StagnationThreshold {
		return Verdict{
			Directive: fmt.Sprintf(
				"Objective has not advanced for %d iterations. Change strategy: "+
					"use a different action sequence, re-check the required outputs, "+
					"and execute the objective directly instead of gathering more context.",
				m.stagnation,
			),
		}
	}
	return Verdict{}
}
