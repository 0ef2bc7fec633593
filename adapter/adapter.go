package adapter

import (
	"context"
	"errors"
)

// ErrUnsupportedPlatform reports that a capability does not exist on the host
// OS. Adapters surface it from Available/Init so the manager skips them; there
// is no silent fallback.
var ErrUnsupportedPlatform = errors.New("adapter: unsupported platform")

// Info is the immutable registration metadata an adapter declares once.
// Device metadata (for hardware-backed adapters) is captured here at
// registration time rather than polled live.
type Info struct {
	Name            string            // fixed identity, snapshot key
	DefaultPriority int               // interrupt priority for routine events
	Device          map[string]string // optional hardware metadata
}

// Sink is the handle an adapter loop uses to report observations. The manager
// hands one to Run; tests substitute their own.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(ev).
func (f SinkFunc) Emit(ev Event) { f(ev) }

// Adapter is the capability set every sensor source implements.
//
// Lifecycle: the manager checks Available, then calls Init, then runs Run in
// a supervised goroutine until the run context is canceled. Run owns all of
// the adapter's I/O and must release every resource before returning. A
// non-nil return that is not the context's error counts as a runtime fault
// and is retried a bounded number of times.
type Adapter interface {
	// Info returns fixed registration metadata. Called once at Register.
	Info() Info

	// Available reports whether the host platform supports this adapter.
	// Queried before Init; an unavailable adapter is never started and its
	// snapshot key is simply absent.
	Available() bool

	// Init acquires resources (models, devices, OS hooks). On failure it must
	// release anything it already acquired; the manager disables the adapter
	// for the run and continues with the rest.
	Init(ctx context.Context) error

	// Run executes the observation loop, emitting events through sink, until
	// ctx is canceled. It must return promptly on cancellation with all
	// resources released.
	Run(ctx context.Context, sink Sink) error

	// State returns the adapter's best current snapshot without waiting for
	// the next observation cycle. Implementations answer from cached state
	// and honor ctx as an upper bound; they must never block indefinitely.
	State(ctx context.Context) (map[string]any, error)
}
