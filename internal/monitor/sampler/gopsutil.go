package sampler

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/process"
	log "github.com/sirupsen/logrus"
)

// DefaultHandleCacheSize bounds how many process handles are kept between
// cycles when no size is configured.
const DefaultHandleCacheSize = 4096

// OSProvider is the Provider backed by gopsutil.  Process handles are cached
// by PID so that CPU usage is measured over the time between two cycles
// rather than over a short window.
type OSProvider struct {
	handles *lru.Cache
}

var _ Provider = &OSProvider{}

// NewOSProvider creates a provider that keeps up to cacheSize process handles
// alive between cycles.
func NewOSProvider(cacheSize int) (*OSProvider, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultHandleCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not create process handle cache")
	}
	return &OSProvider{handles: cache}, nil
}

// List enumerates every live process with its executable name.  Processes
// whose name cannot be read are left out.
func (p *OSProvider) List(ctx context.Context) ([]Entry, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not enumerate processes")
	}

	out := make([]Entry, 0, len(procs))
	for _, proc := range procs {
		if proc == nil || proc.Pid <= 0 {
			continue
		}
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			logger.WithFields(log.Fields{
				"pid":   proc.Pid,
				"error": err,
			}).Debug("Could not read process name")
			continue
		}
		out = append(out, Entry{PID: proc.Pid, Name: name})
	}
	return out, nil
}

// Open returns the cached handle for pid if it still refers to the same
// process, otherwise a fresh unprimed one.
func (p *OSProvider) Open(ctx context.Context, pid int32) (Handle, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		p.handles.Remove(pid)
		return nil, err
	}
	created, err := proc.CreateTimeWithContext(ctx)
	if err != nil {
		p.handles.Remove(pid)
		return nil, err
	}

	if v, ok := p.handles.Get(pid); ok {
		if h := v.(*osHandle); h.created == created {
			return h, nil
		}
	}

	h := &osHandle{proc: proc, created: created}
	p.handles.Add(pid, h)
	return h, nil
}

type osHandle struct {
	proc    *process.Process
	created int64
	primed  bool
}

func (h *osHandle) PID() int32 {
	return h.proc.Pid
}

func (h *osHandle) Primed() bool {
	return h.primed
}

// CPUPercent is not divided by the number of cores, so a process busy on
// several cores reports more than 100.
func (h *osHandle) CPUPercent(ctx context.Context) (float64, error) {
	pct, err := h.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return 0, err
	}
	h.primed = true
	return pct, nil
}

func (h *osHandle) RSS(ctx context.Context) (uint64, error) {
	mem, err := h.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return mem.RSS, nil
}

// LogicalCPUs returns the number of logical cores, or 1 if it cannot be
// determined.
func LogicalCPUs(ctx context.Context) int {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil || n < 1 {
		logger.WithError(err).Warn("Could not determine logical CPU count, assuming 1")
		return 1
	}
	return n
}
