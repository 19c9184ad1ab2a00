package monitor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

func secondsToDuration(s float64) time.Duration {
	if s > MaxInterval {
		s = MaxInterval
	}
	return time.Duration(s * float64(time.Second))
}

// run is the body of one loop goroutine.  It samples immediately, then after
// every pause, until ctx is cancelled by Stop.
func (m *Monitor) run(ctx context.Context, runID int64, wake <-chan struct{}) {
	defer m.wg.Done()

	for {
		interval, ok := m.cycle(runID)
		if !ok {
			return
		}

		timer := time.NewTimer(secondsToDuration(interval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// cycle samples the watch-list once and publishes the result.  It returns the
// interval to wait before the next cycle, re-read after sampling so that a
// change made during the cycle applies to the very next pause.  ok is false
// once the run is no longer current.
func (m *Monitor) cycle(runID int64) (interval float64, ok bool) {
	m.lock.RLock()
	if m.runID != runID {
		m.lock.RUnlock()
		return 0, false
	}
	watched := m.names.List()
	m.lock.RUnlock()

	// Not tied to the run context so that Stop never cuts a sample short.
	ctx, cancel := context.WithTimeout(context.Background(), m.sampleTimeout)
	started := m.now()
	rows := m.sampler.SampleAll(ctx, watched)
	cancel()
	finished := m.now()

	m.lock.Lock()
	if m.runID != runID {
		m.lock.Unlock()
		logger.Debug("Discarding snapshot from a stopped run")
		return 0, false
	}
	m.cycles++
	snap := Snapshot{
		Rows:     rows,
		Taken:    finished,
		Cycle:    m.cycles,
		Duration: finished.Sub(started),
	}
	m.snapshot = &snap
	m.snapRun = runID
	interval = m.interval
	listeners := make([]func(Snapshot), len(m.listeners))
	copy(listeners, m.listeners)
	m.lock.Unlock()

	logger.WithFields(log.Fields{
		"cycle":    snap.Cycle,
		"names":    len(rows),
		"duration": snap.Duration,
	}).Debug("Published snapshot")

	for _, fn := range listeners {
		fn(snap)
	}
	return interval, true
}
