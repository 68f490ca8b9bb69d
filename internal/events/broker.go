// Package events is an in-memory replayable event stream. Each run has an
// ordered history with monotonic sequence numbers so observers can reconnect
// and resume from the last offset they saw.
package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"otto/internal/run"
)

// DefaultHistoryLimit bounds the retained history per run.
const DefaultHistoryLimit = 256

var (
	ErrOffsetInvalid = errors.New("event offset is invalid")
	ErrOffsetExpired = errors.New("event offset expired")
)

// Broker retains per-run event history and fans out new events to
// subscribers. Safe for concurrent use.
type Broker struct {
	mu           sync.Mutex
	historyLimit int
	clock        func() time.Time
	runs         map[string]*stream
}

type stream struct {
	nextSeq int
	events  []run.Event
	subs    map[int]chan run.Event
	nextSub int
}

// NewBroker builds a broker; clock defaults to time.Now.
func NewBroker(historyLimit int, clock func() time.Time) *Broker {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if clock == nil {
		clock = time.Now
	}
	return &Broker{
		historyLimit: historyLimit,
		clock:        clock,
		runs:         make(map[string]*stream),
	}
}

// Publish appends an event to the run's stream, assigns its sequence number,
// and delivers it to live subscribers. Slow subscribers miss events rather
// than blocking the publisher; they can recover via EventsAfter.
func (b *Broker) Publish(runID, kind, message string) run.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.streamLocked(runID)
	event := run.Event{
		RunID:     runID,
		Seq:       st.nextSeq,
		Timestamp: b.clock().UTC(),
		Kind:      kind,
		Message:   message,
	}
	st.nextSeq++
	st.events = append(st.events, event)
	if len(st.events) > b.historyLimit {
		st.events = st.events[len(st.events)-b.historyLimit:]
	}
	for _, ch := range st.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return event
}

// SeedAfter advances the run's next sequence past seq. Used when a run's
// earlier events live only in a persisted log from a previous process, so
// resumed streams stay monotonic. Never moves the sequence backwards.
func (b *Broker) SeedAfter(runID string, seq int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.streamLocked(runID)
	if st.nextSeq <= seq {
		st.nextSeq = seq + 1
	}
}

// EventsAfter returns the run's retained events with Seq > after, in order.
// An offset older than the retained window is ErrOffsetExpired; an offset
// beyond the latest sequence is ErrOffsetInvalid.
func (b *Broker) EventsAfter(runID string, after int) ([]run.Event, error) {
	if after < 0 {
		return nil, fmt.Errorf("%w: offset must be non-negative", ErrOffsetInvalid)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.runs[runID]
	if !ok {
		if after == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: no events for run %s", ErrOffsetInvalid, runID)
	}
	latest := st.nextSeq - 1
	if after > latest {
		return nil, fmt.Errorf("%w: offset=%d latest=%d", ErrOffsetInvalid, after, latest)
	}
	if len(st.events) > 0 {
		oldest := st.events[0].Seq
		if after < oldest-1 {
			return nil, fmt.Errorf("%w: offset=%d oldest_retained=%d", ErrOffsetExpired, after, oldest)
		}
	}

	start := 0
	for start < len(st.events) && st.events[start].Seq <= after {
		start++
	}
	out := make([]run.Event, len(st.events)-start)
	copy(out, st.events[start:])
	return out, nil
}

// Subscribe registers a live observer for the run. The returned cancel
// function must be called to release the subscription; the channel is closed
// by cancel.
func (b *Broker) Subscribe(runID string) (<-chan run.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.streamLocked(runID)
	id := st.nextSub
	st.nextSub++
	ch := make(chan run.Event, 64)
	st.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := st.subs[id]; ok {
			delete(st.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (b *Broker) streamLocked(runID string) *stream {
	st, ok := b.runs[runID]
	if !ok {
		st = &stream{nextSeq: 1, subs: make(map[int]chan run.Event)}
		b.runs[runID] = st
	}
	return st
}
