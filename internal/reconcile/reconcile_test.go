package reconcile

import (
	"context"
	"testing"

	"earshot/internal/debugger"
	"earshot/internal/source"
	"earshot/internal/talkpoint"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, tps ...talkpoint.Talkpoint) (*talkpoint.Store, *talkpoint.Bus, *int) {
	t.Helper()
	store, err := talkpoint.NewStore(context.Background(), nil)
	require.NoError(t, err)
	for _, tp := range tps {
		store.Set(tp.BreakpointID, tp)
	}
	bus := talkpoint.NewBus()
	emitted := 0
	bus.Subscribe(talkpoint.TalkpointsChanged, func() { emitted++ })
	return store, bus, &emitted
}

func bp(id, uri string, line int) debugger.Breakpoint {
	return debugger.Breakpoint{ID: id, Location: source.Location{URI: uri, Line: line}, Enabled: true}
}

func TestJoinRewritesIdentity(t *testing.T) {
	persisted := talkpoint.Talkpoint{
		BreakpointID:   "old-1",
		URI:            "file:///a.py",
		Position:       talkpoint.Position{Line: 10},
		ShouldContinue: true,
		Action:         talkpoint.Text{Text: "loop entered"},
	}
	store, bus, emitted := newStore(t, persisted)

	r := New(store, bus)
	summary, ran := r.OnBreakpointsLoaded([]debugger.Breakpoint{bp("bp-7", "/a.py", 10)})
	require.True(t, ran)
	assert.Equal(t, Summary{Kept: 1}, summary)

	got, ok := store.Get("bp-7")
	require.True(t, ok)
	want := persisted
	want.BreakpointID = "bp-7"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("reconciled talkpoint mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, store.Has("old-1"))
	assert.Equal(t, 1, *emitted)
}

func TestUnmatchedTalkpointIsDropped(t *testing.T) {
	store, bus, _ := newStore(t,
		talkpoint.Talkpoint{BreakpointID: "old-1", URI: "/a.py", Position: talkpoint.Position{Line: 10}, Action: talkpoint.Tonal{}},
		talkpoint.Talkpoint{BreakpointID: "old-2", URI: "/b.py", Position: talkpoint.Position{Line: 3}, Action: talkpoint.Tonal{}},
	)

	r := New(store, bus)
	summary, _ := r.OnBreakpointsLoaded([]debugger.Breakpoint{
		bp("bp-1", "/b.py", 3),
		bp("bp-2", "/a.py", 11), // one line off: no fuzzy matching
	})

	assert.Equal(t, Summary{Kept: 1, Dropped: 1}, summary)
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Has("bp-1"))
	assert.False(t, store.Has("bp-2"))
}

func TestReconcileRunsOncePerSession(t *testing.T) {
	store, bus, emitted := newStore(t,
		talkpoint.Talkpoint{BreakpointID: "old", URI: "/a.py", Position: talkpoint.Position{Line: 1}, Action: talkpoint.Tonal{}},
	)
	live := []debugger.Breakpoint{bp("bp-1", "/a.py", 1)}

	r := New(store, bus)
	_, ran := r.OnBreakpointsLoaded(live)
	assert.True(t, ran)

	// A talkpoint created after the first load must survive a repeat event.
	store.Set("bp-9", talkpoint.Talkpoint{BreakpointID: "bp-9", URI: "/c.py", Action: talkpoint.Tonal{}})

	_, ran = r.OnBreakpointsLoaded(live)
	assert.False(t, ran)
	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Has("bp-1"))
	assert.True(t, store.Has("bp-9"))
	assert.Equal(t, 1, *emitted)
}

func TestSharedKeyCountsDroppedPerTalkpoint(t *testing.T) {
	store, bus, _ := newStore(t,
		talkpoint.Talkpoint{BreakpointID: "old-1", URI: "/a.py", Position: talkpoint.Position{Line: 4}, Action: talkpoint.Tonal{}},
		talkpoint.Talkpoint{BreakpointID: "old-2", URI: "/b.py", Position: talkpoint.Position{Line: 8}, Action: talkpoint.Tonal{}},
	)

	// Two live breakpoints at the same (path, line) both pick up a.py's
	// talkpoint; b.py's has no breakpoint and is the only one dropped.
	r := New(store, bus)
	summary, ran := r.OnBreakpointsLoaded([]debugger.Breakpoint{
		bp("bp-1", "/a.py", 4),
		bp("bp-2", "/a.py", 4),
	})
	require.True(t, ran)
	assert.Equal(t, Summary{Kept: 2, Dropped: 1}, summary)
	assert.True(t, store.Has("bp-1"))
	assert.True(t, store.Has("bp-2"))
}

func TestAttachToRegistry(t *testing.T) {
	store, bus, _ := newStore(t,
		talkpoint.Talkpoint{BreakpointID: "stale", URI: "/a.py", Position: talkpoint.Position{Line: 5}, Action: talkpoint.Tonal{}},
	)
	registry := debugger.NewRegistry(nil)
	registry.Add(registry.Stage(source.Location{URI: "/a.py", Line: 5}))

	r := New(store, bus)
	detach := r.Attach(registry)
	defer detach()

	bps, err := registry.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, bps, 1)

	assert.True(t, store.Has(bps[0].ID))
	assert.False(t, store.Has("stale"))
}
