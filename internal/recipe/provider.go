package recipe

import (
	"context"
	"sync/atomic"

	"recipebox/internal/logger"
)

// Provider hands out the process-wide Store. Until Load finishes it
// withholds the Store entirely, so dependents can't read or mutate a
// collection that is still being loaded.
type Provider struct {
	store atomic.Pointer[Store]
	ready chan struct{}
}

// NewProvider returns a Provider in the loading state.
func NewProvider() *Provider {
	return &Provider{ready: make(chan struct{})}
}

// Load opens the Store from slot and publishes it. Only the first call has
// any effect.
func (p *Provider) Load(ctx context.Context, slot Slot, log *logger.Logger) *Store {
	if s := p.store.Load(); s != nil {
		return s
	}
	s := Open(ctx, slot, log)
	if !p.store.CompareAndSwap(nil, s) {
		s.Close(ctx)
		return p.store.Load()
	}
	close(p.ready)
	return s
}

// Store returns the Store once loaded. ok is false while loading.
func (p *Provider) Store() (s *Store, ok bool) {
	s = p.store.Load()
	return s, s != nil
}

// Wait blocks until the Store is loaded or ctx is done.
func (p *Provider) Wait(ctx context.Context) (*Store, error) {
	select {
	case <-p.ready:
		return p.store.Load(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
