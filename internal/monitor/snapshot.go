package monitor

import (
	"time"

	"github.com/pidpatrol/pidpatrol/internal/monitor/sampler"
)

// Snapshot is the outcome of one cycle.  Rows follow the watch-list order at
// the moment the cycle began.  A published snapshot is never modified.
type Snapshot struct {
	Rows     []sampler.MetricsRow
	Taken    time.Time
	Cycle    uint64
	Duration time.Duration
}

// Status is a consistent view of the monitor's control state.
type Status struct {
	Running  bool
	Interval float64
	Names    []string
	// Zero until the first snapshot is published.
	LastUpdate time.Time
}

// Results is what read requests get while the monitor is running with a
// non-empty watch-list.
type Results struct {
	Status
	Snapshot Snapshot
	// Set when no cycle has finished yet in the current run.
	Pending bool
}
