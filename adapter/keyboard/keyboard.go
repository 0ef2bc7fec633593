// Package keyboard implements the typing-rate adapter. It counts key presses
// per report interval without ever recording which keys were pressed; only the
// aggregate rate leaves this package.
package keyboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/deskclaw/deskclaw/adapter"
	"github.com/deskclaw/deskclaw/config"
)

const (
	// Name is the adapter identity and snapshot key.
	Name = "keyboard"

	// BurstPriority keeps typing reports below the default: rhythm is
	// background context, never an interrupt.
	BurstPriority = 3

	// KindTypingBurst is emitted once per interval while the user types,
	// plus once on the transition back to idle.
	KindTypingBurst = "typing_burst"
)

// KeySource delivers one content-free tick per physical key press.
type KeySource interface {
	// Available reports whether key events can be observed on this machine.
	Available() bool

	// Watch streams press timestamps into ticks until ctx is canceled.
	Watch(ctx context.Context, ticks chan<- time.Time) error
}

// Adapter aggregates key-press ticks into a typing rate.
type Adapter struct {
	source   KeySource
	interval time.Duration

	mu       sync.Mutex
	lastKey  time.Time
	lastRate float64
	active   bool
}

// New creates the keyboard adapter.
func New(cfg config.KeyboardConfig, source KeySource) *Adapter {
	return &Adapter{source: source, interval: cfg.Interval()}
}

// Info implements adapter.Adapter.
func (a *Adapter) Info() adapter.Info {
	return adapter.Info{Name: Name, DefaultPriority: BurstPriority}
}

// Available implements adapter.Adapter.
func (a *Adapter) Available() bool { return a.source.Available() }

// Init implements adapter.Adapter. The source opens its devices in Run.
func (a *Adapter) Init(ctx context.Context) error { return nil }

// Run implements adapter.Adapter: drain ticks from the source and report the
// rate once per interval.
func (a *Adapter) Run(ctx context.Context, sink adapter.Sink) error {
	ticks := make(chan time.Time, 64)
	errCh := make(chan error, 1)
	go func() { errCh <- a.source.Watch(ctx, ticks) }()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var count int
	wasActive := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err == nil {
				// All device readers died without a fault of their own.
				return errors.New("keyboard: key source stopped")
			}
			return fmt.Errorf("keyboard: key source: %w", err)
		case at := <-ticks:
			count++
			a.mu.Lock()
			a.lastKey = at
			a.mu.Unlock()
		case <-ticker.C:
			rate := float64(count) * float64(time.Minute) / float64(a.interval)
			active := count > 0
			count = 0

			a.mu.Lock()
			a.lastRate = rate
			a.active = active
			a.mu.Unlock()

			// Quiet intervals emit nothing, except the first one after a
			// burst so downstream sees the idle transition.
			if active || wasActive {
				sink.Emit(adapter.NewEvent(Name, KindTypingBurst, map[string]any{
					"typing_rate": rate,
					"active":      active,
				}, BurstPriority))
			}
			wasActive = active
		}
	}
}

// State implements adapter.Adapter from cached observations only.
func (a *Adapter) State(ctx context.Context) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := map[string]any{
		"typing_rate": a.lastRate,
		"active":      a.active,
	}
	if !a.lastKey.IsZero() {
		state["last_key_ago_seconds"] = int(time.Since(a.lastKey).Seconds())
	}
	return state, nil
}
