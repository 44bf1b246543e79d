// Package reconcile re-links persisted talkpoints to the breakpoint
// identities of the current session using (file path, line) as the join key.
package reconcile

import (
	"sync"

	"earshot/internal/debugger"
	"earshot/internal/logging"
	"earshot/internal/source"
	"earshot/internal/talkpoint"
)

// LoadNotifier announces the initial live breakpoint set.
type LoadNotifier interface {
	OnLoaded(fn func([]debugger.Breakpoint)) (unsubscribe func())
}

// Reconciler performs the identity join once per session.
type Reconciler struct {
	store *talkpoint.Store
	bus   *talkpoint.Bus

	mu     sync.Mutex
	loaded bool
}

// New creates a reconciler over store.
func New(store *talkpoint.Store, bus *talkpoint.Bus) *Reconciler {
	return &Reconciler{store: store, bus: bus}
}

// Attach runs the reconciler on the notifier's load events.
func (r *Reconciler) Attach(n LoadNotifier) (detach func()) {
	return n.OnLoaded(func(bps []debugger.Breakpoint) {
		r.OnBreakpointsLoaded(bps)
	})
}

// Summary counts the outcome of a reconciliation.
type Summary struct {
	Kept    int
	Dropped int
}

// OnBreakpointsLoaded re-keys the store to the identities in bps. Talkpoints
// with no breakpoint at their (path, line) are dropped from the live store.
// Only the first call per session does anything; it reports whether it ran.
func (r *Reconciler) OnBreakpointsLoaded(bps []debugger.Breakpoint) (Summary, bool) {
	r.mu.Lock()
	if r.loaded {
		r.mu.Unlock()
		logging.ReconcileDebug("breakpoints already loaded this session, skipping")
		return Summary{}, false
	}
	r.loaded = true

	byKey := make(map[source.Key]talkpoint.Talkpoint, r.store.Len())
	for _, tp := range r.store.Entries() {
		byKey[tp.Key()] = tp
	}
	before := r.store.Len()

	r.store.Clear()
	kept := 0
	matched := make(map[source.Key]bool, len(byKey))
	for _, bp := range bps {
		key := bp.Location.Key()
		tp, ok := byKey[key]
		if !ok {
			continue
		}
		r.store.Set(bp.ID, tp.WithBreakpointID(bp.ID))
		matched[key] = true
		kept++
	}
	r.mu.Unlock()

	// Several breakpoints can share a key, so kept may exceed the matched
	// keys. Dropped counts stored talkpoints whose key went unmatched.
	dropped := before - len(matched)
	logging.Reconcile("reconciled talkpoints: %d kept, %d dropped", kept, dropped)
	logging.Audit().Reconciled(kept, dropped)
	r.bus.Emit(talkpoint.TalkpointsChanged)
	return Summary{Kept: kept, Dropped: dropped}, true
}
