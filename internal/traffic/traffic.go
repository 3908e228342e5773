// Package traffic keeps sliding windows of per-city check outcomes and API
// rate-limit denials. The health endpoint reads the failure rate from here.
package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long outcomes are retained regardless of query window.
const maxAge = 30 * time.Minute

type outcome uint8

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeDenied
)

type event struct {
	at   time.Time
	kind outcome
}

var defaultTracker Tracker

// RecordSuccess records a city check that produced a reading.
func RecordSuccess() { defaultTracker.record(outcomeSuccess) }

// RecordFailure records a city check whose fetch failed.
func RecordFailure() { defaultTracker.record(outcomeFailure) }

// RecordDenied records an API request rejected by the rate limiter.
func RecordDenied() { defaultTracker.record(outcomeDenied) }

// ErrorRate returns (failures, total) checks within the window. Denials are excluded.
func ErrorRate(window time.Duration) (failures, total int) {
	return defaultTracker.ErrorRate(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() { defaultTracker.Reset() }

// Tracker holds outcome events in arrival order.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *Tracker) record(kind outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.events = append(t.events, event{at: now, kind: kind})
	t.pruneLocked(now)
}

// RecordSuccess records a successful check on this tracker.
func (t *Tracker) RecordSuccess() { t.record(outcomeSuccess) }

// RecordFailure records a failed check on this tracker.
func (t *Tracker) RecordFailure() { t.record(outcomeFailure) }

// RecordDenied records a rate-limit denial on this tracker.
func (t *Tracker) RecordDenied() { t.record(outcomeDenied) }

// ErrorRate returns (failures, successes+failures) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	for _, e := range t.events {
		if e.at.Before(cutoff) {
			continue
		}
		switch e.kind {
		case outcomeFailure:
			failures++
			total++
		case outcomeSuccess:
			total++
		}
	}
	return failures, total
}

// DenialCount returns denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	n := 0
	for _, e := range t.events {
		if e.kind == outcomeDenied && !e.at.Before(cutoff) {
			n++
		}
	}
	return n
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events older than maxAge. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
