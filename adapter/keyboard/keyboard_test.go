package keyboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/deskclaw/deskclaw/adapter"
	"github.com/deskclaw/deskclaw/config"
)

type fakeSource struct {
	presses chan time.Time
	watchFn func(ctx context.Context, ticks chan<- time.Time) error
}

func (f *fakeSource) Available() bool { return true }

func (f *fakeSource) Watch(ctx context.Context, ticks chan<- time.Time) error {
	if f.watchFn != nil {
		return f.watchFn(ctx, ticks)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case at := <-f.presses:
			ticks <- at
		}
	}
}

type eventSink struct {
	ch chan adapter.Event
}

func (s *eventSink) Emit(ev adapter.Event) { s.ch <- ev }

func TestRunReportsBurstsAndIdleTransition(t *testing.T) {
	src := &fakeSource{presses: make(chan time.Time, 16)}
	a := New(config.KeyboardConfig{}, src)
	a.interval = 50 * time.Millisecond

	sink := &eventSink{ch: make(chan adapter.Event, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, sink) }()

	for i := 0; i < 5; i++ {
		src.presses <- time.Now()
	}

	var burst adapter.Event
	select {
	case burst = <-sink.ch:
	case <-time.After(time.Second):
		t.Fatal("no typing burst emitted")
	}
	if burst.Kind != KindTypingBurst || burst.Priority != BurstPriority {
		t.Errorf("burst = kind %q priority %d", burst.Kind, burst.Priority)
	}
	if active, _ := burst.Data["active"].(bool); !active {
		t.Error("burst should report active typing")
	}
	if rate, _ := burst.Data["typing_rate"].(float64); rate <= 0 {
		t.Errorf("typing_rate = %f, want positive", rate)
	}

	// The first quiet interval reports the idle transition.
	select {
	case ev := <-sink.ch:
		if active, _ := ev.Data["active"].(bool); active {
			t.Error("expected idle transition event")
		}
		if rate, _ := ev.Data["typing_rate"].(float64); rate != 0 {
			t.Errorf("idle typing_rate = %f", rate)
		}
	case <-time.After(time.Second):
		t.Fatal("no idle transition emitted")
	}

	// Further quiet intervals stay silent.
	select {
	case ev := <-sink.ch:
		t.Errorf("unexpected event while idle: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	state, err := a.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if active, _ := state["active"].(bool); active {
		t.Error("state should be idle")
	}
	if _, ok := state["last_key_ago_seconds"]; !ok {
		t.Errorf("state missing last_key_ago_seconds: %v", state)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestRunSourceFaultIsError(t *testing.T) {
	src := &fakeSource{watchFn: func(ctx context.Context, ticks chan<- time.Time) error {
		return errors.New("device vanished")
	}}
	a := New(config.KeyboardConfig{}, src)
	a.interval = 50 * time.Millisecond

	err := a.Run(context.Background(), &eventSink{ch: make(chan adapter.Event, 1)})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("source fault must fail the loop, got %v", err)
	}
}

func TestRunSilentSourceDeathIsFault(t *testing.T) {
	src := &fakeSource{watchFn: func(ctx context.Context, ticks chan<- time.Time) error {
		return nil
	}}
	a := New(config.KeyboardConfig{}, src)
	a.interval = 50 * time.Millisecond

	err := a.Run(context.Background(), &eventSink{ch: make(chan adapter.Event, 1)})
	if err == nil {
		t.Fatal("a source that returns nil without cancellation must fail the loop")
	}
	if strings.Contains(err.Error(), "%!w") {
		t.Errorf("malformed error wrap: %v", err)
	}
}

func TestStateBeforeAnyKey(t *testing.T) {
	a := New(config.KeyboardConfig{}, &fakeSource{})
	state, err := a.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if _, ok := state["last_key_ago_seconds"]; ok {
		t.Error("no key seen yet, last_key_ago_seconds must be absent")
	}
}
