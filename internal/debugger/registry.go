// Package debugger models the live breakpoint set owned by the debugging
// subsystem. Breakpoint identities are minted fresh in every process, which
// is why talkpoints are re-linked by (path, line) on load.
package debugger

import (
	"context"
	"sort"
	"sync"
	"time"

	"earshot/internal/logging"
	"earshot/internal/source"

	"github.com/google/uuid"
)

// StorageKey is the workspace storage key holding plain breakpoint locations.
const StorageKey = "breakpoints"

// Breakpoint is a live source breakpoint.
type Breakpoint struct {
	ID       string
	Location source.Location
	Enabled  bool
}

// ChangeEvent describes a mutation of the live set.
type ChangeEvent struct {
	Added   []Breakpoint
	Removed []Breakpoint
}

// Memento is workspace-scoped durable storage.
type Memento interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Update(ctx context.Context, key string, value any) error
}

// Registry is the live breakpoint set. It is safe for concurrent use;
// subscribers are called synchronously after the registry lock is released.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]Breakpoint
	loaded  bool
	memento Memento
	newID   func() string

	subMu      sync.RWMutex
	nextSub    int
	changeSubs map[int]func(ChangeEvent)
	loadedSubs map[int]func([]Breakpoint)
}

// NewRegistry creates an empty registry persisting to memento (may be nil).
func NewRegistry(memento Memento) *Registry {
	return &Registry{
		byID:       make(map[string]Breakpoint),
		memento:    memento,
		newID:      uuid.NewString,
		changeSubs: make(map[int]func(ChangeEvent)),
		loadedSubs: make(map[int]func([]Breakpoint)),
	}
}

// Load materializes the persisted breakpoints with fresh identities and
// announces the full set to OnLoaded subscribers. Later calls do not mint
// new identities; they re-announce the current set.
func (r *Registry) Load(ctx context.Context) ([]Breakpoint, error) {
	r.mu.Lock()
	if !r.loaded {
		var locs []source.Location
		if r.memento != nil {
			if _, err := r.memento.Get(ctx, StorageKey, &locs); err != nil {
				r.mu.Unlock()
				return nil, err
			}
		}
		for _, loc := range locs {
			if r.findLocked(loc) != nil {
				continue
			}
			bp := Breakpoint{ID: r.newID(), Location: loc, Enabled: true}
			r.byID[bp.ID] = bp
		}
		r.loaded = true
		logging.Breakpoints("loaded %d breakpoints", len(r.byID))
	}
	all := r.sortedLocked()
	r.mu.Unlock()

	r.subMu.RLock()
	subs := make([]func([]Breakpoint), 0, len(r.loadedSubs))
	for _, fn := range r.loadedSubs {
		subs = append(subs, fn)
	}
	r.subMu.RUnlock()
	for _, fn := range subs {
		fn(all)
	}
	return all, nil
}

// All returns the live breakpoints ordered by path and line.
func (r *Registry) All() []Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// Get returns a breakpoint by identity.
func (r *Registry) Get(id string) (Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.byID[id]
	return bp, ok
}

// Find returns the breakpoint at loc's (path, line), if any.
func (r *Registry) Find(loc source.Location) (Breakpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if bp := r.findLocked(loc); bp != nil {
		return *bp, true
	}
	return Breakpoint{}, false
}

// Stage mints a breakpoint for loc without adding it to the live set.
func (r *Registry) Stage(loc source.Location) Breakpoint {
	return Breakpoint{ID: r.newID(), Location: loc, Enabled: true}
}

// Add inserts breakpoints into the live set. Breakpoints whose location is
// already occupied are skipped.
func (r *Registry) Add(bps ...Breakpoint) {
	r.mu.Lock()
	var added []Breakpoint
	for _, bp := range bps {
		if _, exists := r.byID[bp.ID]; exists || r.findLocked(bp.Location) != nil {
			continue
		}
		r.byID[bp.ID] = bp
		added = append(added, bp)
	}
	r.mu.Unlock()

	if len(added) == 0 {
		return
	}
	logging.BreakpointsDebug("added %d breakpoints", len(added))
	r.persist()
	r.emit(ChangeEvent{Added: added})
}

// Remove deletes breakpoints by identity and returns those that existed.
func (r *Registry) Remove(ids ...string) []Breakpoint {
	r.mu.Lock()
	var removed []Breakpoint
	for _, id := range ids {
		if bp, ok := r.byID[id]; ok {
			delete(r.byID, id)
			removed = append(removed, bp)
		}
	}
	r.mu.Unlock()

	if len(removed) == 0 {
		return nil
	}
	logging.BreakpointsDebug("removed %d breakpoints", len(removed))
	r.persist()
	r.emit(ChangeEvent{Removed: removed})
	return removed
}

// RemoveAll clears the live set.
func (r *Registry) RemoveAll() []Breakpoint {
	all := r.All()
	ids := make([]string, len(all))
	for i, bp := range all {
		ids[i] = bp.ID
	}
	return r.Remove(ids...)
}

// OnChange subscribes to add/remove events.
func (r *Registry) OnChange(fn func(ChangeEvent)) (unsubscribe func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.nextSub++
	id := r.nextSub
	r.changeSubs[id] = fn
	return func() {
		r.subMu.Lock()
		delete(r.changeSubs, id)
		r.subMu.Unlock()
	}
}

// OnLoaded subscribes to load notifications carrying the full set.
func (r *Registry) OnLoaded(fn func([]Breakpoint)) (unsubscribe func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.nextSub++
	id := r.nextSub
	r.loadedSubs[id] = fn
	return func() {
		r.subMu.Lock()
		delete(r.loadedSubs, id)
		r.subMu.Unlock()
	}
}

func (r *Registry) emit(ev ChangeEvent) {
	r.subMu.RLock()
	subs := make([]func(ChangeEvent), 0, len(r.changeSubs))
	for _, fn := range r.changeSubs {
		subs = append(subs, fn)
	}
	r.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}

func (r *Registry) persist() {
	if r.memento == nil {
		return
	}
	all := r.All()
	locs := make([]source.Location, len(all))
	for i, bp := range all {
		locs[i] = bp.Location
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.memento.Update(ctx, StorageKey, locs); err != nil {
		logging.Get(logging.CategoryBreakpoints).Error("failed to persist breakpoints: %v", err)
	}
}

func (r *Registry) findLocked(loc source.Location) *Breakpoint {
	key := loc.Key()
	for _, bp := range r.byID {
		if bp.Location.Key() == key {
			return &bp
		}
	}
	return nil
}

func (r *Registry) sortedLocked() []Breakpoint {
	out := make([]Breakpoint, 0, len(r.byID))
	for _, bp := range r.byID {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Location.Key(), out[j].Location.Key()
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Line < b.Line
	})
	return out
}
