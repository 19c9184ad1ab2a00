package sampler

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	log "github.com/sirupsen/logrus"
)

// ProcfsProvider reads the process table straight from /proc.  Names are the
// kernel's comm value, which is cut at 15 characters.
type ProcfsProvider struct {
	fs      procfs.FS
	handles *lru.Cache
	now     func() time.Time
}

var _ Provider = &ProcfsProvider{}

// NewProcfsProvider creates a provider over the proc filesystem mounted at
// mountPoint, keeping up to cacheSize handles between cycles.
func NewProcfsProvider(mountPoint string, cacheSize int) (*ProcfsProvider, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open proc filesystem at %s", mountPoint)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultHandleCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "could not create process handle cache")
	}
	return &ProcfsProvider{fs: fs, handles: cache, now: time.Now}, nil
}

// List enumerates every process in /proc.
func (p *ProcfsProvider) List(ctx context.Context) ([]Entry, error) {
	procs, err := p.fs.AllProcs()
	if err != nil {
		return nil, errors.Wrap(err, "could not enumerate processes")
	}

	out := make([]Entry, 0, len(procs))
	for _, proc := range procs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		comm, err := proc.Comm()
		if err != nil {
			logger.WithFields(log.Fields{
				"pid":   proc.PID,
				"error": err,
			}).Debug("Could not read process name")
			continue
		}
		out = append(out, Entry{PID: int32(proc.PID), Name: comm})
	}
	return out, nil
}

// Open returns the cached handle for pid if the process start time still
// matches, otherwise a fresh unprimed one.
func (p *ProcfsProvider) Open(ctx context.Context, pid int32) (Handle, error) {
	proc, err := p.fs.Proc(int(pid))
	if err != nil {
		p.handles.Remove(pid)
		return nil, err
	}
	stat, err := proc.Stat()
	if err != nil {
		p.handles.Remove(pid)
		return nil, err
	}

	if v, ok := p.handles.Get(pid); ok {
		if h := v.(*procfsHandle); h.started == stat.Starttime {
			return h, nil
		}
	}

	h := &procfsHandle{proc: proc, started: stat.Starttime, now: p.now}
	p.handles.Add(pid, h)
	return h, nil
}

type procfsHandle struct {
	proc    procfs.Proc
	started uint64
	now     func() time.Time

	primed  bool
	lastCPU float64
	lastAt  time.Time
}

func (h *procfsHandle) PID() int32 {
	return int32(h.proc.PID)
}

func (h *procfsHandle) Primed() bool {
	return h.primed
}

// CPUPercent is the share of one core used since the previous call.
func (h *procfsHandle) CPUPercent(ctx context.Context) (float64, error) {
	stat, err := h.proc.Stat()
	if err != nil {
		return 0, err
	}
	cpu := stat.CPUTime()
	at := h.now()

	var pct float64
	if h.primed {
		if elapsed := at.Sub(h.lastAt).Seconds(); elapsed > 0 && cpu >= h.lastCPU {
			pct = (cpu - h.lastCPU) / elapsed * 100
		}
	}
	h.primed = true
	h.lastCPU = cpu
	h.lastAt = at
	return pct, nil
}

func (h *procfsHandle) RSS(ctx context.Context) (uint64, error) {
	stat, err := h.proc.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(stat.ResidentMemory()), nil
}
