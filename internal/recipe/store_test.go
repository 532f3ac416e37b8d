package recipe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipebox/internal/logger"
)

// failingSlot fails reads and/or writes on demand.
type failingSlot struct {
	*MemorySlot
	mu       sync.Mutex
	readErr  error
	writeErr error
	writes   int
}

func (f *failingSlot) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.readErr != nil {
		return nil, false, f.readErr
	}
	return f.MemorySlot.Get(ctx, key)
}

func (f *failingSlot) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	f.writes++
	err := f.writeErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemorySlot.Set(ctx, key, value)
}

// stalledWriteSlot holds Set until release is closed.
type stalledWriteSlot struct {
	*MemorySlot
	release chan struct{}
}

func (b *stalledWriteSlot) Set(ctx context.Context, key string, value []byte) error {
	<-b.release
	return b.MemorySlot.Set(ctx, key, value)
}

func openStore(t *testing.T, slot Slot) *Store {
	t.Helper()
	s := Open(context.Background(), slot, logger.Nop())
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func sampleRecipe(id string) Recipe {
	return Recipe{
		ID:       id,
		Name:     "Recipe " + id,
		Category: "Dessert",
		ImageURI: String("https://example.com/" + id + ".jpg"),
		Ingredients: []Ingredient{
			{ID: "ing-1", Name: "Flour", Measure: "2 cups"},
			{ID: "ing-2", Name: "Sugar", Measure: ""},
		},
		Instructions: String("Mix.\nBake."),
	}
}

func TestStoreAdd(t *testing.T) {
	t.Run("duplicate add keeps the first record", func(t *testing.T) {
		s := openStore(t, NewMemorySlot())

		first := sampleRecipe("52772")
		second := sampleRecipe("52772")
		second.Name = "Overwritten"

		assert.True(t, s.Add(first))
		assert.False(t, s.Add(second))

		list := s.List()
		require.Len(t, list, 1)
		assert.Equal(t, first.Name, list[0].Name)
	})

	t.Run("preserves insertion order", func(t *testing.T) {
		s := openStore(t, NewMemorySlot())
		for _, id := range []string{"3", "1", "2"} {
			s.Add(sampleRecipe(id))
		}

		var ids []string
		for _, r := range s.List() {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []string{"3", "1", "2"}, ids)
	})

	t.Run("stored record is isolated from caller mutations", func(t *testing.T) {
		s := openStore(t, NewMemorySlot())
		r := sampleRecipe("1")
		s.Add(r)

		r.Ingredients[0].Name = "Changed"
		*r.Instructions = "Changed"

		got := s.GetByID("1")
		require.NotNil(t, got)
		assert.Equal(t, "Flour", got.Ingredients[0].Name)
		assert.Equal(t, "Mix.\nBake.", *got.Instructions)
	})
}

func TestStoreUpdate(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	s.Add(sampleRecipe("1"))

	t.Run("unknown id changes nothing", func(t *testing.T) {
		before := s.List()
		assert.False(t, s.Update(sampleRecipe("missing")))
		assert.Equal(t, before, s.List())
		assert.False(t, s.IsFavorite("missing"))
	})

	t.Run("known id replaces the whole record", func(t *testing.T) {
		updated := Recipe{ID: "1", Name: "Renamed"}
		assert.True(t, s.Update(updated))

		got := s.GetByID("1")
		require.NotNil(t, got)
		assert.Equal(t, "Renamed", got.Name)
		assert.Nil(t, got.Ingredients)
		assert.Nil(t, got.Instructions)
		assert.Equal(t, 1, s.Len())
	})
}

func TestStoreRemove(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	s.Add(sampleRecipe("1"))
	s.Add(sampleRecipe("2"))

	assert.True(t, s.Remove("1"))
	afterOnce := s.List()

	assert.False(t, s.Remove("1"))
	assert.Equal(t, afterOnce, s.List())

	require.Len(t, afterOnce, 1)
	assert.Equal(t, "2", afterOnce[0].ID)
}

func TestStoreIsFavorite(t *testing.T) {
	s := openStore(t, NewMemorySlot())

	assert.False(t, s.IsFavorite("42"))
	s.Add(sampleRecipe("42"))
	assert.True(t, s.IsFavorite("42"))
	s.Remove("42")
	assert.False(t, s.IsFavorite("42"))
}

func TestStoreGetByIDMissing(t *testing.T) {
	s := openStore(t, NewMemorySlot())
	assert.Nil(t, s.GetByID("nope"))
}

func TestStoreRoundTrip(t *testing.T) {
	slot := NewMemorySlot()
	s := Open(context.Background(), slot, logger.Nop())

	custom := Recipe{ID: NewCustomID(), Name: "Toast", Category: ""}
	s.Add(sampleRecipe("52772"))
	s.Add(custom)
	s.Add(sampleRecipe("53000"))
	s.Remove("53000")

	require.NoError(t, s.Close(context.Background()))

	reloaded := openStore(t, slot)
	assert.Equal(t, s.List(), reloaded.List())
}

func TestStoreLoad(t *testing.T) {
	t.Run("missing slot is an empty collection", func(t *testing.T) {
		s := openStore(t, NewMemorySlot())
		assert.Empty(t, s.List())
		assert.NotNil(t, s.List())
	})

	t.Run("unparseable slot is an empty collection", func(t *testing.T) {
		slot := NewMemorySlot()
		require.NoError(t, slot.Set(context.Background(), StorageKey, []byte("{not json")))

		s := openStore(t, slot)
		assert.Empty(t, s.List())
	})

	t.Run("read failure is an empty collection", func(t *testing.T) {
		slot := &failingSlot{MemorySlot: NewMemorySlot(), readErr: errors.New("disk gone")}
		s := openStore(t, slot)
		assert.Empty(t, s.List())
	})

	t.Run("records without detail keep it absent", func(t *testing.T) {
		slot := NewMemorySlot()
		raw := `[{"id":"42","name":"Stew","category":"Beef","imageUri":null}]`
		require.NoError(t, slot.Set(context.Background(), StorageKey, []byte(raw)))

		s := openStore(t, slot)
		got := s.GetByID("42")
		require.NotNil(t, got)
		assert.Nil(t, got.Ingredients)
		assert.Nil(t, got.Instructions)
		assert.Nil(t, got.ImageURI)
	})

	t.Run("duplicate stored ids collapse to the first", func(t *testing.T) {
		slot := NewMemorySlot()
		raw := `[{"id":"1","name":"First"},{"id":"1","name":"Second"}]`
		require.NoError(t, slot.Set(context.Background(), StorageKey, []byte(raw)))

		s := openStore(t, slot)
		list := s.List()
		require.Len(t, list, 1)
		assert.Equal(t, "First", list[0].Name)
	})
}

func TestStoreFlush(t *testing.T) {
	t.Run("flush writes the latest snapshot", func(t *testing.T) {
		slot := NewMemorySlot()
		s := openStore(t, slot)

		for i := 0; i < 20; i++ {
			s.Add(sampleRecipe(string(rune('a' + i))))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, s.Flush(ctx))

		data, ok, err := slot.Get(ctx, StorageKey)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Contains(t, string(data), `"id":"t"`)
	})

	t.Run("flush without mutations does not write", func(t *testing.T) {
		slot := &failingSlot{MemorySlot: NewMemorySlot()}
		s := openStore(t, slot)

		require.NoError(t, s.Flush(context.Background()))
		slot.mu.Lock()
		defer slot.mu.Unlock()
		assert.Equal(t, 0, slot.writes)
	})

	t.Run("write failure is reported by flush but memory keeps the change", func(t *testing.T) {
		slot := &failingSlot{MemorySlot: NewMemorySlot(), writeErr: errors.New("read-only")}
		s := openStore(t, slot)

		s.Add(sampleRecipe("1"))
		err := s.Flush(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read-only")
		assert.True(t, s.IsFavorite("1"))
	})

	t.Run("flush honours context cancellation", func(t *testing.T) {
		slot := &stalledWriteSlot{MemorySlot: NewMemorySlot(), release: make(chan struct{})}
		s := openStore(t, slot)
		defer close(slot.release)

		s.Add(sampleRecipe("1"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Flush(ctx)
		require.ErrorIs(t, err, context.Canceled)
		assert.True(t, s.IsFavorite("1"))
	})
}

func TestOpenWithoutLogger(t *testing.T) {
	s := Open(context.Background(), &failingSlot{MemorySlot: NewMemorySlot(), readErr: errors.New("disk gone")}, nil)
	defer s.Close(context.Background())

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Add(sampleRecipe("1")))
	require.NoError(t, s.Flush(context.Background()))
}

func TestStoreConcurrentMutations(t *testing.T) {
	slot := NewMemorySlot()
	s := openStore(t, slot)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(sampleRecipe("same"))
			s.IsFavorite("same")
			s.List()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, s.Len())
	require.NoError(t, s.Flush(context.Background()))

	reloaded := openStore(t, slot)
	assert.Equal(t, 1, reloaded.Len())
}
