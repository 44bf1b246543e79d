package talkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sort"
	"sync"

	"earshot/internal/logging"
)

// StorageKey is the workspace storage key holding the persisted sequence.
const StorageKey = "talkpoints"

// Memento is workspace-scoped durable storage for opaque serializable values.
type Memento interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Update(ctx context.Context, key string, value any) error
}

// Store maps breakpoint identity to talkpoint. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	saveMu  sync.Mutex
	entries map[string]Talkpoint
	memento Memento
}

// NewStore creates a store backed by memento and loads persisted entries.
// A nil memento gives a memory-only store.
func NewStore(ctx context.Context, memento Memento) (*Store, error) {
	s := &Store{
		entries: make(map[string]Talkpoint),
		memento: memento,
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the talkpoint for a breakpoint identity.
func (s *Store) Get(id string) (Talkpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tp, ok := s.entries[id]
	return tp, ok
}

// Has reports whether a talkpoint exists for the identity.
func (s *Store) Has(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Set stores tp under id, replacing any previous entry. The stored value's
// BreakpointID is always id.
func (s *Store) Set(id string, tp Talkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = tp.WithBreakpointID(id)
}

// Delete removes the entry for id and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return false
	}
	delete(s.entries, id)
	return true
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Talkpoint)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries yields (id, talkpoint) pairs from a snapshot taken when iteration
// starts, ordered by path, line then id. The sequence can be ranged over
// again.
func (s *Store) Entries() iter.Seq2[string, Talkpoint] {
	return func(yield func(string, Talkpoint) bool) {
		for _, tp := range s.snapshot() {
			if !yield(tp.BreakpointID, tp) {
				return
			}
		}
	}
}

// List returns an ordered snapshot of all talkpoints.
func (s *Store) List() []Talkpoint {
	return s.snapshot()
}

func (s *Store) snapshot() []Talkpoint {
	s.mu.RLock()
	out := make([]Talkpoint, 0, len(s.entries))
	for _, tp := range s.entries {
		out = append(out, tp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return out[i].BreakpointID < out[j].BreakpointID
	})
	return out
}

// Load replaces the in-memory entries with the persisted sequence. Pairs that
// do not decode are dropped and logged.
func (s *Store) Load(ctx context.Context) error {
	if s.memento == nil {
		return nil
	}

	var raw []json.RawMessage
	found, err := s.memento.Get(ctx, StorageKey, &raw)
	if err != nil {
		return fmt.Errorf("failed to load talkpoints: %w", err)
	}

	loaded := make(map[string]Talkpoint, len(raw))
	dropped := 0
	for i, item := range raw {
		var pair []json.RawMessage
		if err := json.Unmarshal(item, &pair); err != nil || len(pair) != 2 {
			logging.Get(logging.CategoryStore).Warn("dropping persisted entry %d: not an [id, talkpoint] pair", i)
			dropped++
			continue
		}
		var id string
		if err := json.Unmarshal(pair[0], &id); err != nil || id == "" {
			logging.Get(logging.CategoryStore).Warn("dropping persisted entry %d: bad id", i)
			dropped++
			continue
		}
		var tp Talkpoint
		if err := json.Unmarshal(pair[1], &tp); err != nil {
			logging.Get(logging.CategoryStore).Warn("dropping persisted entry %d (%s): %v", i, id, err)
			dropped++
			continue
		}
		loaded[id] = tp.WithBreakpointID(id)
	}

	s.mu.Lock()
	s.entries = loaded
	s.mu.Unlock()

	if found {
		logging.Store("loaded %d talkpoints (%d dropped)", len(loaded), dropped)
	}
	return nil
}

// Save writes the current entries to the memento as a flat sequence of
// [id, talkpoint] pairs. Concurrent saves are serialized, and each writes the
// state current when it acquired the lock.
func (s *Store) Save(ctx context.Context) error {
	if s.memento == nil {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snap := s.snapshot()
	pairs := make([][2]any, 0, len(snap))
	for _, tp := range snap {
		pairs = append(pairs, [2]any{tp.BreakpointID, tp})
	}
	if err := s.memento.Update(ctx, StorageKey, pairs); err != nil {
		return fmt.Errorf("failed to save talkpoints: %w", err)
	}
	logging.StoreDebug("saved %d talkpoints", len(pairs))
	return nil
}
