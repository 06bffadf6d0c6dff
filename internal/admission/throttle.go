package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/arefkin/peercall/internal/store"
)

const throttlePrefix = "throttle:"

const (
	// DefaultMaxAttempts is the connection-attempt budget per source address
	// within one window.
	DefaultMaxAttempts = 5

	// DefaultResetPeriod is the window length, and also the sweep interval
	// for stale windows.
	DefaultResetPeriod = 60 * time.Second
)

// window is one source address's attempt bucket.
type window struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// Throttle caps connection attempts per source address. Windows survive the
// connections that created them: a disconnect does not clear the counter.
type Throttle struct {
	store  store.Store
	clock  Clock
	max    int
	period time.Duration

	// Serializes read-modify-write cycles on the store. For the Redis-backed
	// store this only protects against races within this process; the
	// remaining cross-node race slightly over-admits, which is acceptable for
	// abuse throttling.
	mu sync.Mutex
}

// NewThrottle creates a throttle backed by st. Non-positive max or period
// fall back to the defaults.
func NewThrottle(st store.Store, clock Clock, max int, period time.Duration) *Throttle {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	if period <= 0 {
		period = DefaultResetPeriod
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Throttle{store: st, clock: clock, max: max, period: period}
}

// Allow records one attempt from addr and reports whether it is within the
// budget. The first attempt after the reset period starts a fresh window with
// a count of one.
func (t *Throttle) Allow(ctx context.Context, addr string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := throttlePrefix + addr
	now := t.clock.Now()

	w := window{Count: 0, WindowStart: now}
	raw, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load throttle window: %w", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &w); err != nil {
			return false, fmt.Errorf("decode throttle window: %w", err)
		}
		if now.Sub(w.WindowStart) > t.period {
			w = window{Count: 0, WindowStart: now}
		}
	}

	w.Count++
	encoded, err := json.Marshal(w)
	if err != nil {
		return false, fmt.Errorf("encode throttle window: %w", err)
	}
	if err := t.store.Set(ctx, key, encoded); err != nil {
		return false, fmt.Errorf("save throttle window: %w", err)
	}

	return w.Count <= t.max, nil
}

// Sweep deletes windows whose reset period has elapsed. Run it periodically
// to keep the store from accumulating stale addresses.
func (t *Throttle) Sweep(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	return t.store.ForEach(ctx, throttlePrefix, func(key string, raw []byte) error {
		var w window
		if err := json.Unmarshal(raw, &w); err != nil {
			// Unreadable windows are dropped rather than kept forever.
			return t.store.Delete(ctx, key)
		}
		if now.Sub(w.WindowStart) > t.period {
			return t.store.Delete(ctx, key)
		}
		return nil
	})
}
