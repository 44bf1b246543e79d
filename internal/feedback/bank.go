package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"earshot/internal/config"
	"earshot/internal/logging"
)

// Category selects one of the configurable tones.
type Category string

const (
	CategoryTalkpoint Category = "talkpoint"
	CategoryError     Category = "error"
	CategoryWarning   Category = "warning"
)

// DefaultTone returns the built-in tone for a category.
func DefaultTone(cat Category) []byte {
	switch cat {
	case CategoryError:
		return GenerateTone(220, 250*time.Millisecond)
	case CategoryWarning:
		return GenerateTone(440, 150*time.Millisecond)
	default:
		return GenerateTone(880, 120*time.Millisecond)
	}
}

// ToneBank holds one decoded buffer per category plus a cache of custom
// talkpoint sounds. A failed load keeps whatever buffer the category had.
type ToneBank struct {
	loader    Loader
	player    Player
	announcer Announcer

	mu      sync.RWMutex
	buffers map[Category][]byte
	sources map[Category]string
	custom  map[string][]byte
	closed  bool

	wg sync.WaitGroup
}

// NewToneBank creates a bank seeded with the built-in tones.
func NewToneBank(loader Loader, player Player, announcer Announcer) *ToneBank {
	b := &ToneBank{
		loader:    loader,
		player:    player,
		announcer: announcer,
		buffers:   make(map[Category][]byte),
		sources:   make(map[Category]string),
		custom:    make(map[string][]byte),
	}
	for _, cat := range []Category{CategoryTalkpoint, CategoryError, CategoryWarning} {
		b.buffers[cat] = DefaultTone(cat)
	}
	return b
}

// Load replaces a category's buffer with the sound at path. An empty path
// restores the built-in tone.
func (b *ToneBank) Load(ctx context.Context, cat Category, path string) error {
	if path == "" {
		b.mu.Lock()
		b.buffers[cat] = DefaultTone(cat)
		b.sources[cat] = ""
		b.mu.Unlock()
		logging.Feedback("using built-in %s tone", cat)
		return nil
	}

	b.mu.RLock()
	same := b.sources[cat] == path
	b.mu.RUnlock()
	if same {
		return nil
	}

	data, err := b.loader.Load(ctx, path)
	if err != nil {
		b.announcer.Error(fmt.Sprintf("Could not load %s sound %s: %v", cat, path, err))
		return fmt.Errorf("failed to load %s sound: %w", cat, err)
	}

	b.mu.Lock()
	b.buffers[cat] = data
	b.sources[cat] = path
	b.mu.Unlock()
	logging.FeedbackDebug("loaded %s sound from %s", cat, path)
	return nil
}

// Configure loads every category from the feedback settings.
func (b *ToneBank) Configure(ctx context.Context, fc config.FeedbackConfig) error {
	return errors.Join(
		b.Load(ctx, CategoryTalkpoint, fc.TalkpointSound),
		b.Load(ctx, CategoryError, fc.ErrorSound),
		b.Load(ctx, CategoryWarning, fc.WarningSound),
	)
}

// Buffer returns the current buffer for a category.
func (b *ToneBank) Buffer(cat Category) []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.buffers[cat]
}

// Play plays a category's tone.
func (b *ToneBank) Play(cat Category) {
	b.mu.RLock()
	buf, closed := b.buffers[cat], b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	b.player.Play(buf)
}

// PlaySound plays a talkpoint's sound. An empty sound is the talkpoint tone;
// anything else is loaded once and cached. A sound that cannot be loaded is
// reported and the talkpoint tone plays instead.
func (b *ToneBank) PlaySound(ctx context.Context, sound string) {
	if sound == "" {
		b.Play(CategoryTalkpoint)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	buf, cached := b.custom[sound]
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		if !cached {
			data, err := b.loader.Load(ctx, sound)
			if err != nil {
				b.announcer.Error(fmt.Sprintf("Could not load sound %s: %v", sound, err))
				b.Play(CategoryTalkpoint)
				return
			}
			b.mu.Lock()
			b.custom[sound] = data
			b.mu.Unlock()
			buf = data
		}

		b.mu.RLock()
		closed := b.closed
		b.mu.RUnlock()
		if !closed {
			b.player.Play(buf)
		}
	}()
}

// Close waits for pending loads; later plays do nothing.
func (b *ToneBank) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
