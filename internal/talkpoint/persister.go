package talkpoint

import (
	"context"
	"sync"

	"earshot/internal/logging"
)

// Persister saves the Store in the background every time TalkpointsChanged
// fires. Callers that emit the signal never wait for the write.
type Persister struct {
	store *Store
	ctx   context.Context
	wg    sync.WaitGroup
	stop  func()
}

// NewPersister subscribes a background saver to bus.
func NewPersister(ctx context.Context, store *Store, bus *Bus) *Persister {
	p := &Persister{store: store, ctx: ctx}
	p.stop = bus.Subscribe(TalkpointsChanged, p.schedule)
	return p
}

func (p *Persister) schedule() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.store.Save(p.ctx); err != nil {
			logging.Get(logging.CategoryStore).Error("background save failed: %v", err)
		}
	}()
}

// Flush waits for in-flight saves.
func (p *Persister) Flush() {
	p.wg.Wait()
}

// Close unsubscribes and waits for in-flight saves.
func (p *Persister) Close() {
	p.stop()
	p.wg.Wait()
}
