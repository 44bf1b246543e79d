package talkpoint

import "sync"

// Signal is an internal notification. The set is closed.
type Signal int

const (
	// TalkpointsChanged fires after any Store mutation made by the
	// lifecycle controller or the reconciler.
	TalkpointsChanged Signal = iota + 1
)

func (s Signal) String() string {
	switch s {
	case TalkpointsChanged:
		return "talkpoints.changed"
	default:
		return "unknown"
	}
}

// Bus delivers signals synchronously to subscribers, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Signal][]subscription
}

type subscription struct {
	id int
	fn func()
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Signal][]subscription)}
}

// Subscribe registers fn for sig and returns a function that removes it.
func (b *Bus) Subscribe(sig Signal, fn func()) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[sig] = append(b.subs[sig], subscription{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[sig]
		for i, s := range list {
			if s.id == id {
				b.subs[sig] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// Emit calls every subscriber of sig.
func (b *Bus) Emit(sig Signal) {
	b.mu.RLock()
	list := append([]subscription(nil), b.subs[sig]...)
	b.mu.RUnlock()
	for _, s := range list {
		s.fn()
	}
}
