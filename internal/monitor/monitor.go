// Package monitor holds the watch-list, the start/stop lifecycle and the loop
// that periodically samples every watched name.  A single Monitor is shared
// by the HTTP handlers, the exporters and the diagnostics socket.
package monitor

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pidpatrol/pidpatrol/internal/monitor/names"
	"github.com/pidpatrol/pidpatrol/internal/monitor/sampler"
)

var logger = log.WithFields(log.Fields{"component": "monitor"})

// RowSampler produces one row per name, in order.
type RowSampler interface {
	SampleAll(ctx context.Context, names []string) []sampler.MetricsRow
}

// Config for a new Monitor
type Config struct {
	Interval float64
	Names    []string
	// Upper bound on the sampling part of a single cycle.
	SampleTimeout time.Duration
}

// StartRequest carries the optional parts of a start call.  A nil Interval
// keeps the current one and absent Names keep the current watch-list.
type StartRequest struct {
	Interval *float64
	Names    names.Input
}

// Monitor is the shared monitoring state.  All of its fields are guarded by
// lock; the loop only holds it to read its inputs and to publish.
type Monitor struct {
	sampler       RowSampler
	sampleTimeout time.Duration
	now           func() time.Time

	lock     sync.RWMutex
	running  bool
	interval float64
	names    *names.Set
	snapshot *Snapshot
	// runID of the run that produced snapshot
	snapRun int64
	cycles  uint64

	runID     int64
	cancel    context.CancelFunc
	wake      chan struct{}
	listeners []func(Snapshot)

	wg sync.WaitGroup
}

// New creates a stopped monitor.  An invalid configured interval falls back
// to DefaultInterval.
func New(s RowSampler, conf Config) *Monitor {
	interval := conf.Interval
	if ValidateInterval(interval) != nil {
		if interval != 0 {
			logger.WithField("interval", interval).Warn("Ignoring invalid interval, using default")
		}
		interval = DefaultInterval
	}
	timeout := conf.SampleTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Monitor{
		sampler:       s,
		sampleTimeout: timeout,
		now:           time.Now,
		interval:      interval,
		names:         names.NewSet(conf.Names...),
	}
}

func (m *Monitor) statusLocked() Status {
	st := Status{
		Running:  m.running,
		Interval: m.interval,
		Names:    m.names.List(),
	}
	if m.snapshot != nil {
		st.LastUpdate = m.snapshot.Taken
	}
	return st
}

// Status always succeeds.
func (m *Monitor) Status() Status {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.statusLocked()
}

// Results returns the latest snapshot of the current run.  The second return
// is false when there is nothing to report: the monitor is stopped or the
// watch-list is empty.
func (m *Monitor) Results() (Results, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if !m.running || m.names.Len() == 0 {
		return Results{}, false
	}

	res := Results{Status: m.statusLocked()}
	if m.snapshot == nil || m.snapRun != m.runID {
		res.Pending = true
		res.Snapshot = Snapshot{Rows: []sampler.MetricsRow{}}
		return res, true
	}
	res.Snapshot = *m.snapshot
	return res, true
}

// Snapshot returns the most recently published snapshot whether or not the
// monitor is still running.
func (m *Monitor) Snapshot() (Snapshot, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.snapshot == nil {
		return Snapshot{}, false
	}
	return *m.snapshot, true
}

// Subscribe registers fn to be called with every published snapshot.  fn is
// called from the loop goroutine without any lock held and should not block.
func (m *Monitor) Subscribe(fn func(Snapshot)) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.listeners = append(m.listeners, fn)
}

// AddNames merges the input into the watch-list.  Input that yields no usable
// name is rejected.
func (m *Monitor) AddNames(in names.Input) (Status, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	before := m.names.Len()
	if err := m.names.Merge(in, true); err != nil {
		return m.statusLocked(), fromNamesErr(err)
	}
	if m.names.Len() != before {
		logger.WithField("names", m.names.List()).Info("Watch-list extended")
		m.poke()
	}
	return m.statusLocked(), nil
}

// RemoveName drops name from the watch-list if present.
func (m *Monitor) RemoveName(name string) (Status, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	removed, err := m.names.Remove(name)
	if err != nil {
		return m.statusLocked(), fromNamesErr(err)
	}
	if removed {
		logger.WithField("name", name).Info("Name removed from watch-list")
		m.poke()
	}
	return m.statusLocked(), nil
}

// SetInterval changes the pause between cycles.  A running loop picks it up
// after its current pause.
func (m *Monitor) SetInterval(seconds float64) (Status, error) {
	if err := ValidateInterval(seconds); err != nil {
		return m.Status(), err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	m.interval = seconds
	logger.WithField("interval", seconds).Info("Interval updated")
	return m.statusLocked(), nil
}

// Start validates the request, applies it and makes sure a loop is running.
// Calling it while already running only applies the request.
func (m *Monitor) Start(req StartRequest) (Status, error) {
	if req.Interval != nil {
		if err := ValidateInterval(*req.Interval); err != nil {
			return m.Status(), err
		}
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if req.Interval != nil {
		m.interval = *req.Interval
	}
	replaced := m.names.Replace(req.Names)
	if req.Names.Given() && !replaced {
		logger.Debug("Start request carried no usable names, keeping the watch-list")
	}

	m.running = true
	if m.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.runID++
		m.wake = make(chan struct{}, 1)
		m.wg.Add(1)
		go m.run(ctx, m.runID, m.wake)

		logger.WithFields(log.Fields{
			"interval": m.interval,
			"names":    m.names.List(),
		}).Info("Monitoring started")
	} else if replaced {
		m.poke()
	}
	return m.statusLocked(), nil
}

// Stop halts the loop.  A cycle that is already sampling is allowed to finish
// but its snapshot is discarded.  Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop() Status {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
		m.runID++
		logger.Info("Monitoring stopped")
	}
	m.running = false
	return m.statusLocked()
}

// Shutdown stops the monitor and waits for the loop goroutine to exit.
func (m *Monitor) Shutdown() {
	m.Stop()
	m.wg.Wait()
}

// poke wakes the loop so a watch-list change shows up without waiting out the
// interval.  Must be called with lock held.
func (m *Monitor) poke() {
	if m.cancel == nil {
		return
	}
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
