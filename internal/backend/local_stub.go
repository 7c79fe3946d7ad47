//go:build !llama

package backend

import (
	"context"
	"errors"
)

// Compiled when the 'llama' build tag is NOT set, keeping default builds
// CGO-free. Load fails fast instead of mocking inference.

type localBackend struct{}

// LocalOptions configures NewLocal.
type LocalOptions struct {
	ContextSize int
	Threads     int
	GPU         bool
}

// NewLocal returns a stub Backend; in-process inference needs the 'llama'
// build tag.
func NewLocal(opts LocalOptions) Backend { return &localBackend{} }

func (b *localBackend) AcceleratorAvailable(ctx context.Context) bool { return false }

func (b *localBackend) Load(ctx context.Context, spec LoadSpec) (Handle, error) {
	return nil, errors.New("in-process inference not built (missing 'llama' build tag)")
}
