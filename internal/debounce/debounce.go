// Package debounce rate-limits bursts of triggers on the leading edge: the
// first trigger runs immediately and the rest are dropped until the interval
// has elapsed.
package debounce

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Debouncer wraps a plain handler with a leading-edge limit.
type Debouncer struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	fn      func()
	now     func() time.Time
}

// New creates a debouncer. An interval <= 0 disables limiting.
func New(interval time.Duration, fn func()) *Debouncer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Debouncer{
		limiter: rate.NewLimiter(limit, 1),
		fn:      fn,
		now:     time.Now,
	}
}

// Trigger runs the handler if the interval has passed since it last ran and
// reports whether it did.
func (d *Debouncer) Trigger() bool {
	d.mu.Lock()
	ok := d.limiter.AllowN(d.now(), 1)
	d.mu.Unlock()
	if ok {
		d.fn()
	}
	return ok
}

// SetInterval changes the interval, for configuration reloads.
func (d *Debouncer) SetInterval(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if interval <= 0 {
		d.limiter.SetLimitAt(d.now(), rate.Inf)
		return
	}
	d.limiter.SetLimitAt(d.now(), rate.Every(interval))
}

// Keyed keeps one Debouncer per key so bursts on one document do not
// suppress another.
type Keyed struct {
	mu       sync.Mutex
	interval time.Duration
	fn       func(key string)
	byKey    map[string]*Debouncer
	now      func() time.Time
}

// NewKeyed creates a keyed debouncer calling fn with the triggering key.
func NewKeyed(interval time.Duration, fn func(key string)) *Keyed {
	return &Keyed{interval: interval, fn: fn, byKey: make(map[string]*Debouncer), now: time.Now}
}

// Trigger triggers the debouncer for key.
func (k *Keyed) Trigger(key string) bool {
	k.mu.Lock()
	d, ok := k.byKey[key]
	if !ok {
		d = New(k.interval, func() { k.fn(key) })
		d.now = k.now
		k.byKey[key] = d
	}
	k.mu.Unlock()
	return d.Trigger()
}

// SetInterval changes the interval for every key, including ones already
// seen.
func (k *Keyed) SetInterval(interval time.Duration) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.interval = interval
	for _, d := range k.byKey {
		d.SetInterval(interval)
	}
}

// Forget drops the state for key.
func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	delete(k.byKey, key)
	k.mu.Unlock()
}
