package talkpoint

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(id, uri string, line int, action Action) Talkpoint {
	return Talkpoint{
		BreakpointID: id,
		URI:          uri,
		Position:     Position{Line: line},
		Action:       action,
	}
}

func TestStoreBasicOperations(t *testing.T) {
	s, err := NewStore(context.Background(), nil)
	require.NoError(t, err)

	tp := sample("bp-1", "file:///a.py", 9, Text{Text: "hello"})
	s.Set("bp-1", tp)

	assert.True(t, s.Has("bp-1"))
	assert.Equal(t, 1, s.Len())
	got, ok := s.Get("bp-1")
	require.True(t, ok)
	assert.Equal(t, tp, got)

	// Set under a different key rewrites the identity
	s.Set("bp-2", tp)
	got, _ = s.Get("bp-2")
	assert.Equal(t, "bp-2", got.BreakpointID)

	assert.True(t, s.Delete("bp-1"))
	assert.False(t, s.Delete("bp-1"))
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStoreEntriesRestartableAndOrdered(t *testing.T) {
	s, _ := NewStore(context.Background(), nil)
	s.Set("z", sample("z", "/a.py", 1, Tonal{}))
	s.Set("y", sample("y", "/a.py", 20, Tonal{}))
	s.Set("x", sample("x", "/b.py", 0, Tonal{}))

	collect := func() []string {
		var ids []string
		for id := range s.Entries() {
			ids = append(ids, id)
		}
		return ids
	}
	first := collect()
	second := collect()
	if diff := cmp.Diff([]string{"z", "y", "x"}, first); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second iteration differs (-first +second):\n%s", diff)
	}

	// Early break
	n := 0
	for range s.Entries() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := newMemMemento()
	s, err := NewStore(ctx, mem)
	require.NoError(t, err)

	want := []Talkpoint{
		{BreakpointID: "a", URI: "file:///a.py", Position: Position{Line: 3}, Action: Tonal{Sound: "/s/ding.wav"}},
		{BreakpointID: "b", URI: "file:///a.py", Position: Position{Line: 9}, ShouldContinue: true, Action: Text{Text: "loop"}},
		{BreakpointID: "c", URI: "file:///b.py", Position: Position{Line: 1}, OwnsBreakpoint: true, Action: Expression{Expression: "len(xs)"}},
	}
	for _, tp := range want {
		s.Set(tp.BreakpointID, tp)
	}
	require.NoError(t, s.Save(ctx))

	reloaded, err := NewStore(ctx, mem)
	require.NoError(t, err)
	if diff := cmp.Diff(want, reloaded.List()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, mem.raw(StorageKey), `["a",{"breakpointId":"a"`)
}

func TestStoreLoadDropsMalformedEntries(t *testing.T) {
	ctx := context.Background()
	mem := newMemMemento()
	mem.values[StorageKey] = []byte(`[
		["ok", {"breakpointId":"ok","uri":"/a.py","position":{"line":1,"character":0},"shouldContinue":false,"type":"text","text":"hi"}],
		["weird", {"breakpointId":"weird","uri":"/a.py","position":{"line":2,"character":0},"type":"vibrate"}],
		["nobp", {"uri":"/a.py"}],
		"not a pair",
		["short"],
		[42, {"breakpointId":"x"}]
	]`)

	s, err := NewStore(ctx, mem)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	weird, ok := s.Get("weird")
	require.True(t, ok)
	assert.Equal(t, Unknown{Type: "vibrate"}, weird.Action)
	assert.Equal(t, "vibrate", weird.KindName())

	// Unknown entries survive a save
	require.NoError(t, s.Save(ctx))
	assert.Contains(t, mem.raw(StorageKey), `"type":"vibrate"`)
}

func TestStoreLoadNothingPersisted(t *testing.T) {
	s, err := NewStore(context.Background(), newMemMemento())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestDescribe(t *testing.T) {
	tp := sample("bp", "file:///src/a.py", 9, Text{Text: "hello"})
	tp.ShouldContinue = true
	assert.Equal(t, `say "hello", then continue at a.py:10`, tp.Describe())

	tp.Action = nil
	tp.ShouldContinue = false
	assert.Equal(t, "missing talkpoint at a.py:10", tp.Describe())
}
