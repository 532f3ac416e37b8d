package recipe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDetailSource is a mock of the remote detail lookup.
type mockDetailSource struct {
	recipes map[string]*Recipe
	err     error
	calls   atomic.Int32
	delay   time.Duration
}

func (m *mockDetailSource) LookupRecipe(ctx context.Context, id string) (*Recipe, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.recipes[id], nil
}

func TestResolverPrefersStore(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	s.Add(Recipe{ID: "42", Name: "Stored"})

	remote := &mockDetailSource{recipes: map[string]*Recipe{"42": {ID: "42", Name: "Remote"}}}
	r := NewResolver(s, remote)

	got, err := r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "Stored", got.Name)
	assert.Equal(t, []Ingredient{}, got.Ingredients)
	require.NotNil(t, got.Instructions)
	assert.Equal(t, "", *got.Instructions)
	assert.Equal(t, int32(0), remote.calls.Load())

	// The stored record itself stays unresolved.
	assert.Nil(t, s.GetByID("42").Ingredients)
}

func TestResolverFallsBackToRemote(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	remote := &mockDetailSource{recipes: map[string]*Recipe{
		"52772": {
			ID:           "52772",
			Name:         "Teriyaki Chicken Casserole",
			Category:     "Chicken",
			Ingredients:  []Ingredient{{ID: "ing-1", Name: "soy sauce", Measure: "3/4 cup"}},
			Instructions: String("Preheat oven."),
		},
	}}
	r := NewResolver(s, remote)

	got, err := r.Resolve(context.Background(), "52772")
	require.NoError(t, err)
	assert.Equal(t, "Chicken", got.Category)
	assert.Len(t, got.Ingredients, 1)
	assert.Equal(t, "Preheat oven.", *got.Instructions)
	assert.False(t, s.IsFavorite("52772"))
}

func TestResolverNotFound(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	r := NewResolver(s, &mockDetailSource{recipes: map[string]*Recipe{}})

	got, err := r.Resolve(context.Background(), "999")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolverSurfacesRemoteFailure(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	fetchErr := errors.New("lookup: remote fetch failed with status 500")
	r := NewResolver(s, &mockDetailSource{err: fetchErr})

	got, err := r.Resolve(context.Background(), "999")
	assert.Nil(t, got)
	assert.Equal(t, fetchErr, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolverSharesConcurrentLookups(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	remote := &mockDetailSource{
		recipes: map[string]*Recipe{"1": {ID: "1", Name: "Soup"}},
		delay:   50 * time.Millisecond,
	}
	r := NewResolver(s, remote)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.Resolve(context.Background(), "1")
			assert.NoError(t, err)
			assert.Equal(t, "Soup", got.Name)
		}()
	}
	wg.Wait()

	assert.Less(t, remote.calls.Load(), int32(5))
}

func TestResolverCallerCancelLeavesSharedLookupRunning(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	remote := &mockDetailSource{
		recipes: map[string]*Recipe{"1": {ID: "1", Name: "Soup"}},
		delay:   100 * time.Millisecond,
	}
	r := NewResolver(s, remote)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := r.Resolve(firstCtx, "1")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return remote.calls.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan *Recipe, 1)
	go func() {
		got, err := r.Resolve(context.Background(), "1")
		assert.NoError(t, err)
		second <- got
	}()

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	got := <-second
	require.NotNil(t, got)
	assert.Equal(t, "Soup", got.Name)
	assert.Equal(t, int32(1), remote.calls.Load())
}
