package sampler

import (
	"context"
)

// Entry is one live process as seen during enumeration.
type Entry struct {
	PID  int32
	Name string
}

// Handle reads metrics for a single process.  CPUPercent returns the CPU use
// since the previous call on the same handle; the first call only primes the
// handle and its value is meaningless.
type Handle interface {
	PID() int32
	Primed() bool
	CPUPercent(ctx context.Context) (float64, error)
	RSS(ctx context.Context) (uint64, error)
}

// Provider is the operating system's process table.  Errors from Open and
// from Handle reads are expected when a process exits mid-cycle or the OS
// denies access to it.
type Provider interface {
	List(ctx context.Context) ([]Entry, error)
	Open(ctx context.Context, pid int32) (Handle, error)
}
