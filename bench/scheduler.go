package bench

import "time"

// syncScheduler decides when the run phase flushes the backend. It fires
// after an operation once more whole milliseconds than the interval have
// passed since the last sync (or the phase start). It never fires early
// and has no way to preempt a slow operation, so a sync may land
// arbitrarily late.
type syncScheduler struct {
	intervalMs int64
	lastSync   time.Time
	now        func() time.Time
}

func newSyncScheduler(intervalMs int, start time.Time, now func() time.Time) *syncScheduler {
	return &syncScheduler{
		intervalMs: int64(intervalMs),
		lastSync:   start,
		now:        now,
	}
}

func (s *syncScheduler) due() bool {
	return s.now().Sub(s.lastSync).Milliseconds() > s.intervalMs
}

// synced restarts the interval from the time the sync returned.
func (s *syncScheduler) synced() {
	s.lastSync = s.now()
}
