package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"recipebox/internal/logger"
)

// writeTimeout bounds a single background write to the durable slot.
const writeTimeout = 10 * time.Second

// Store owns the user's recipe collection (favorites and custom recipes).
// Mutations apply to memory immediately; every mutation schedules a write of
// the full collection to the durable slot on a background goroutine.
type Store struct {
	slot Slot
	log  *logger.Logger

	mu      sync.RWMutex
	recipes []Recipe
	version uint64 // bumped on every applied mutation

	pmu       sync.Mutex
	written   uint64 // version covered by the last completed write
	writeErr  error
	writtenCh chan struct{} // closed and replaced after each write

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Open reads the collection from slot and returns a ready Store. A missing
// slot is an empty collection; a read or parse failure is logged and also
// treated as empty. A nil log discards output.
func Open(ctx context.Context, slot Slot, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	s := &Store{
		slot:      slot,
		log:       log,
		recipes:   load(ctx, slot, log),
		writtenCh: make(chan struct{}),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writer()

	return s
}

func load(ctx context.Context, slot Slot, log *logger.Logger) []Recipe {
	data, ok, err := slot.Get(ctx, StorageKey)
	if err != nil {
		log.Error("failed to read stored recipes: %v", err)
		return []Recipe{}
	}
	if !ok {
		log.Debug("no stored recipes under %s", StorageKey)
		return []Recipe{}
	}

	var recipes []Recipe
	if err := json.Unmarshal(data, &recipes); err != nil {
		log.Warn("failed to parse stored recipes, starting empty: %v", err)
		return []Recipe{}
	}

	// Ids must stay unique even if the stored array was edited by hand.
	seen := make(map[string]bool, len(recipes))
	out := make([]Recipe, 0, len(recipes))
	for _, r := range recipes {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	log.Info("loaded %d stored recipes", len(out))
	return out
}

// Add inserts r if no recipe with the same id exists. It reports whether r
// was inserted; an existing entry is never overwritten.
func (s *Store) Add(r Recipe) bool {
	s.mu.Lock()
	if s.indexOf(r.ID) >= 0 {
		s.mu.Unlock()
		s.log.Debug("add ignored, recipe %s already stored", r.ID)
		return false
	}
	s.recipes = append(s.recipes, r.Clone())
	s.version++
	s.mu.Unlock()

	s.log.Debug("added recipe %s", r.ID)
	s.schedule()
	return true
}

// Update replaces the recipe with r.ID. It reports whether an entry was
// found; updating an unknown id changes nothing.
func (s *Store) Update(r Recipe) bool {
	s.mu.Lock()
	i := s.indexOf(r.ID)
	if i < 0 {
		s.mu.Unlock()
		s.log.Debug("update ignored, recipe %s not stored", r.ID)
		return false
	}
	s.recipes[i] = r.Clone()
	s.version++
	s.mu.Unlock()

	s.log.Debug("updated recipe %s", r.ID)
	s.schedule()
	return true
}

// Remove deletes the recipe with id and reports whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.recipes = append(s.recipes[:i:i], s.recipes[i+1:]...)
	s.version++
	s.mu.Unlock()

	s.log.Debug("removed recipe %s", id)
	s.schedule()
	return true
}

// IsFavorite reports whether a recipe with id is stored. Saved custom
// recipes count as favorites too.
func (s *Store) IsFavorite(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id) >= 0
}

// GetByID returns a copy of the stored recipe, or nil.
func (s *Store) GetByID(id string) *Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	r := s.recipes[i].Clone()
	return &r
}

// List returns a snapshot of the collection in insertion order.
func (s *Store) List() []Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Recipe, len(s.recipes))
	for i, r := range s.recipes {
		out[i] = r.Clone()
	}
	return out
}

// Len returns the number of stored recipes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recipes)
}

// Flush blocks until every mutation applied before the call has been
// written to the durable slot, and returns the error of that write.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.RLock()
	target := s.version
	s.mu.RUnlock()

	for {
		s.pmu.Lock()
		if s.written >= target {
			err := s.writeErr
			s.pmu.Unlock()
			return err
		}
		ch := s.writtenCh
		s.pmu.Unlock()

		s.schedule()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return fmt.Errorf("store closed before flush completed")
		}
	}
}

// Close flushes pending writes and stops the background writer. The Store
// must not be mutated afterwards.
func (s *Store) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return err
}

// indexOf must be called with mu held.
func (s *Store) indexOf(id string) int {
	for i := range s.recipes {
		if s.recipes[i].ID == id {
			return i
		}
	}
	return -1
}

// schedule wakes the writer. Bursts of mutations coalesce into one write
// of the latest snapshot.
func (s *Store) schedule() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Store) writer() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.kick:
			s.persist()
		}
	}
}

func (s *Store) persist() {
	s.mu.RLock()
	version := s.version
	data, err := json.Marshal(s.recipes)
	s.mu.RUnlock()

	s.pmu.Lock()
	upToDate := version <= s.written
	s.pmu.Unlock()
	if upToDate {
		return
	}

	if err != nil {
		err = fmt.Errorf("failed to marshal recipes: %w", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err = s.slot.Set(ctx, StorageKey, data)
		cancel()
	}
	if err != nil {
		s.log.Error("failed to persist recipes: %v", err)
	} else {
		s.log.Debug("persisted %d bytes of recipes (version %d)", len(data), version)
	}

	s.pmu.Lock()
	s.written = version
	s.writeErr = err
	close(s.writtenCh)
	s.writtenCh = make(chan struct{})
	s.pmu.Unlock()
}
