// Package lifecycle tracks process readiness and derives the health status.
package lifecycle

import "sync/atomic"

// Health statuses reported by GET /health.
const (
	StatusStarting     = "starting"
	StatusHealthy      = "healthy"
	StatusDegraded     = "degraded"
	StatusShuttingDown = "shutting-down"
)

var (
	ready        atomic.Bool
	shuttingDown atomic.Bool
)

// SetReady marks the store as open and migrated. Health reports starting until then.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady reports whether startup finished.
func IsReady() bool {
	return ready.Load()
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT is received.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true while the process drains and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Signals are the inputs to a health decision.
type Signals struct {
	StoreErr         error
	Failures         int
	Total            int
	DegradedErrorPct float64
}

// Status derives the health status. Shutdown wins over everything, then
// readiness, then the store ping, then the recent fetch failure rate.
// A failure rate needs at least one check in the window to count.
func Status(s Signals) string {
	switch {
	case IsShuttingDown():
		return StatusShuttingDown
	case !IsReady():
		return StatusStarting
	case s.StoreErr != nil:
		return StatusDegraded
	case s.Total > 0 && s.DegradedErrorPct > 0 &&
		float64(s.Failures)*100/float64(s.Total) >= s.DegradedErrorPct:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
