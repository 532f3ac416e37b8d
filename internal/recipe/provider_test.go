package recipe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipebox/internal/logger"
)

// blockingSlot holds Get until release is closed.
type blockingSlot struct {
	*MemorySlot
	release chan struct{}
}

func (b *blockingSlot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	<-b.release
	return b.MemorySlot.Get(ctx, key)
}

func TestProviderWithholdsStoreWhileLoading(t *testing.T) {
	p := NewProvider()
	slot := &blockingSlot{MemorySlot: NewMemorySlot(), release: make(chan struct{})}

	loaded := make(chan *Store)
	go func() { loaded <- p.Load(context.Background(), slot, logger.Nop()) }()

	_, ok := p.Store()
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(slot.release)
	s := <-loaded
	t.Cleanup(func() { s.Close(context.Background()) })

	got, ok := p.Store()
	require.True(t, ok)
	assert.Same(t, s, got)

	waited, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, s, waited)
}

func TestProviderLoadsOnce(t *testing.T) {
	p := NewProvider()
	first := p.Load(context.Background(), NewMemorySlot(), logger.Nop())
	t.Cleanup(func() { first.Close(context.Background()) })

	second := p.Load(context.Background(), NewMemorySlot(), logger.Nop())
	assert.Same(t, first, second)
}
