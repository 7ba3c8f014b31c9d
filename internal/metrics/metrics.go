package metrics

import (
	"sync"
	"sync/atomic"
)

// engineStats holds counters for automation engine activity.
// Kept simple/thread-safe for use from the coordinator and exposition.
type engineStats struct {
	cycles   uint64
	mu       sync.Mutex
	byStatus map[string]uint64
}

var eng engineStats

// IncCycle increments the completed-cycle counter.
func IncCycle() {
	atomic.AddUint64(&eng.cycles, 1)
}

// IncRun increments the per-status run counter (success, partial, error, skipped).
func IncRun(status string) {
	if status == "" {
		status = "unknown"
	}
	eng.mu.Lock()
	if eng.byStatus == nil {
		eng.byStatus = make(map[string]uint64)
	}
	eng.byStatus[status]++
	eng.mu.Unlock()
}

// EngineSnapshot returns a copy of the current counters.
func EngineSnapshot() (cycles uint64, byStatus map[string]uint64) {
	cycles = atomic.LoadUint64(&eng.cycles)
	eng.mu.Lock()
	defer eng.mu.Unlock()
	byStatus = make(map[string]uint64, len(eng.byStatus))
	for k, v := range eng.byStatus {
		byStatus[k] = v
	}
	return cycles, byStatus
}

// Reset clears all counters. Test helper.
func Reset() {
	atomic.StoreUint64(&eng.cycles, 0)
	eng.mu.Lock()
	eng.byStatus = nil
	eng.mu.Unlock()
}
