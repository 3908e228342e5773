package traffic

import (
	"testing"
	"time"
)

// TestErrorRate_Empty verifies that ErrorRate reports zero when nothing was recorded.
func TestErrorRate_Empty(t *testing.T) {
	Reset()
	if failures, total := ErrorRate(time.Minute); failures != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", failures, total)
	}
}

// TestErrorRate_SuccessAndFailure verifies failures and successes both count toward total.
func TestErrorRate_SuccessAndFailure(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordSuccess()
	RecordFailure()
	failures, total := ErrorRate(time.Minute)
	if failures != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", failures, total)
	}
}

// TestErrorRate_DeniedExcluded verifies that rate-limit denials do not count as checks.
func TestErrorRate_DeniedExcluded(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordDenied()
	RecordDenied()
	if failures, total := ErrorRate(time.Minute); failures != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", failures, total)
	}
	if n := DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
}

// TestTracker_WindowExcludesOldEvents verifies that events older than the
// window are not counted and events older than maxAge are pruned.
func TestTracker_WindowExcludesOldEvents(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tr := &Tracker{now: func() time.Time { return now }}

	tr.RecordFailure()
	now = now.Add(2 * time.Minute)
	tr.RecordSuccess()

	if failures, total := tr.ErrorRate(time.Minute); failures != 0 || total != 1 {
		t.Errorf("ErrorRate(1m) = (%d, %d), want (0, 1)", failures, total)
	}
	if failures, total := tr.ErrorRate(5 * time.Minute); failures != 1 || total != 2 {
		t.Errorf("ErrorRate(5m) = (%d, %d), want (1, 2)", failures, total)
	}

	now = now.Add(maxAge + time.Minute)
	tr.RecordSuccess()
	tr.mu.Lock()
	n := len(tr.events)
	tr.mu.Unlock()
	if n != 1 {
		t.Errorf("events after prune = %d, want 1", n)
	}
}
