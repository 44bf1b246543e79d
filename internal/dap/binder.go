package dap

import (
	"context"
	"sync"

	"earshot/internal/debugger"
	"earshot/internal/logging"
)

// Binder pushes the registry's breakpoints to the adapter, one file at a
// time, whenever the live set changes.
type Binder struct {
	client   *Client
	registry *debugger.Registry
	ctx      context.Context

	unsubscribe func()
	wg          sync.WaitGroup
}

// Bind subscribes to registry changes.
func Bind(ctx context.Context, client *Client, registry *debugger.Registry) *Binder {
	b := &Binder{client: client, registry: registry, ctx: ctx}
	b.unsubscribe = registry.OnChange(b.onChange)
	return b
}

// SyncAll sends every file that has breakpoints.
func (b *Binder) SyncAll(ctx context.Context) error {
	byPath := b.group()
	for path, bps := range byPath {
		if err := b.client.SetBreakpoints(ctx, path, bps); err != nil {
			return err
		}
	}
	logging.DAP("synced breakpoints for %d files", len(byPath))
	return nil
}

func (b *Binder) onChange(ev debugger.ChangeEvent) {
	paths := make(map[string]struct{})
	for _, bp := range ev.Added {
		paths[bp.Location.Path()] = struct{}{}
	}
	for _, bp := range ev.Removed {
		paths[bp.Location.Path()] = struct{}{}
	}

	// Registry callbacks must not block on adapter round trips.
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		byPath := b.group()
		for path := range paths {
			if err := b.client.SetBreakpoints(b.ctx, path, byPath[path]); err != nil {
				logging.Get(logging.CategoryDAP).Warn("failed to sync breakpoints for %s: %v", path, err)
			}
		}
	}()
}

func (b *Binder) group() map[string][]debugger.Breakpoint {
	out := make(map[string][]debugger.Breakpoint)
	for _, bp := range b.registry.All() {
		if !bp.Enabled {
			continue
		}
		path := bp.Location.Path()
		out[path] = append(out[path], bp)
	}
	return out
}

// Wait blocks until pending syncs finish.
func (b *Binder) Wait() {
	b.wg.Wait()
}

// Close unsubscribes and waits for pending syncs.
func (b *Binder) Close() {
	b.unsubscribe()
	b.wg.Wait()
}
