// Package sampler turns a list of watched process names into one metrics row
// per name by looking the names up in the OS process table.
package sampler

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithFields(log.Fields{"component": "sampler"})

// Status of a watched name in one row
type Status string

const (
	// Running means at least one process with the name was sampled
	Running Status = "running"
	// NotRunning means no process with the name was found, or none survived
	// long enough to be read
	NotRunning Status = "not running"
)

// MetricsRow is the aggregated view of every process that carries one
// watched name.
type MetricsRow struct {
	Name   string
	PIDs   []int32
	Status Status
	// Sum of per-process CPU%, each relative to a single core.
	CPUPercent float64
	// CPUPercent divided by the logical core count, at most 100.
	CPUPercentNormalized float64
	MemoryMB             float64
	LastChecked          time.Time
}

// FirstPID is the lowest PID in the row, if any.
func (r *MetricsRow) FirstPID() (int32, bool) {
	if len(r.PIDs) == 0 {
		return 0, false
	}
	return r.PIDs[0], true
}

// DefaultCPUWindow is how long freshly opened handles are observed before
// their first CPU reading.
const DefaultCPUWindow = 100 * time.Millisecond

// Options tune a Sampler.  Zero values get sensible defaults except
// CPUWindow, where zero disables the priming wait.
type Options struct {
	CPUWindow   time.Duration
	LogicalCPUs int
	Now         func() time.Time
}

// Sampler computes metrics rows.  Calls are serialized since process handles
// carry CPU state between calls.
type Sampler struct {
	provider Provider
	window   time.Duration
	cores    int
	now      func() time.Time
	mu       sync.Mutex
}

// New creates a sampler reading from provider.
func New(provider Provider, opts Options) *Sampler {
	s := &Sampler{
		provider: provider,
		window:   opts.CPUWindow,
		cores:    opts.LogicalCPUs,
		now:      opts.Now,
	}
	if s.cores < 1 {
		s.cores = 1
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Sample produces the row for a single name.
func (s *Sampler) Sample(ctx context.Context, name string) MetricsRow {
	return s.SampleAll(ctx, []string{name})[0]
}

// SampleAll produces one row per name, in the same order.  The process table
// is enumerated once, so a PID can never show up in two rows.  Names are
// matched exactly, ignoring case.
func (s *Sampler) SampleAll(ctx context.Context, names []string) []MetricsRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]MetricsRow, len(names))
	for i := range names {
		rows[i] = MetricsRow{Name: names[i], Status: NotRunning, PIDs: []int32{}}
	}
	if len(names) == 0 {
		return rows
	}

	targets := make(map[string]int, len(names))
	for i, n := range names {
		k := strings.ToLower(strings.TrimSpace(n))
		if k == "" {
			continue
		}
		if _, dup := targets[k]; !dup {
			targets[k] = i
		}
	}

	matches := make([][]Handle, len(names))

	entries, err := s.provider.List(ctx)
	if err != nil {
		logger.WithError(err).Warn("Process enumeration failed, reporting all names as not running")
	} else {
		seen := make(map[int32]bool, len(entries))
		for _, e := range entries {
			if e.PID <= 0 || seen[e.PID] {
				continue
			}
			idx, ok := targets[strings.ToLower(e.Name)]
			if !ok {
				continue
			}
			seen[e.PID] = true

			h, err := s.provider.Open(ctx, e.PID)
			if err != nil {
				logTransient(e, err)
				continue
			}
			matches[idx] = append(matches[idx], h)
		}
	}

	s.prime(ctx, matches)

	checked := s.now()
	for i := range rows {
		s.fill(ctx, &rows[i], matches[i])
		rows[i].LastChecked = checked
	}
	return rows
}

// prime takes the first CPU reading of every new handle and waits one window
// so that the following reading has something to compare against.
func (s *Sampler) prime(ctx context.Context, matches [][]Handle) {
	fresh := 0
	for i := range matches {
		kept := matches[i][:0]
		for _, h := range matches[i] {
			if !h.Primed() {
				if _, err := h.CPUPercent(ctx); err != nil {
					logTransient(Entry{PID: h.PID()}, err)
					continue
				}
				fresh++
			}
			kept = append(kept, h)
		}
		matches[i] = kept
	}

	if fresh == 0 || s.window <= 0 {
		return
	}
	timer := time.NewTimer(s.window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Sampler) fill(ctx context.Context, row *MetricsRow, handles []Handle) {
	var cpuSum float64
	var rssSum uint64
	for _, h := range handles {
		pct, err := h.CPUPercent(ctx)
		if err != nil {
			logTransient(Entry{PID: h.PID(), Name: row.Name}, err)
			continue
		}
		rss, err := h.RSS(ctx)
		if err != nil {
			logTransient(Entry{PID: h.PID(), Name: row.Name}, err)
			continue
		}
		if pct > 0 {
			cpuSum += pct
		}
		rssSum += rss
		row.PIDs = append(row.PIDs, h.PID())
	}

	if len(row.PIDs) == 0 {
		return
	}

	sort.Slice(row.PIDs, func(i, j int) bool { return row.PIDs[i] < row.PIDs[j] })
	row.Status = Running
	row.CPUPercent = Round3(cpuSum)
	row.CPUPercentNormalized = Round3(math.Min(100, cpuSum/float64(s.cores)))
	row.MemoryMB = Round3(float64(rssSum) / (1024 * 1024))
}

func logTransient(e Entry, err error) {
	logger.WithFields(log.Fields{
		"pid":   e.PID,
		"name":  e.Name,
		"error": err,
	}).Debug("Skipping process that could not be read")
}

// Round3 rounds to three decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
