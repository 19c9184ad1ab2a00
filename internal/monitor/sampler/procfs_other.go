//go:build !linux
// +build !linux

package sampler

import (
	"context"

	"github.com/pkg/errors"
)

// ProcfsProvider is only available on Linux
type ProcfsProvider struct{}

// NewProcfsProvider always fails outside of Linux
func NewProcfsProvider(mountPoint string, cacheSize int) (*ProcfsProvider, error) {
	return nil, errors.New("the procfs process source is only available on Linux")
}

// List is never reached since the provider cannot be created
func (p *ProcfsProvider) List(ctx context.Context) ([]Entry, error) {
	return nil, errors.New("not supported")
}

// Open is never reached since the provider cannot be created
func (p *ProcfsProvider) Open(ctx context.Context, pid int32) (Handle, error) {
	return nil, errors.New("not supported")
}
