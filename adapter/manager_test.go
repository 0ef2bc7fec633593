package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// fakeAdapter is a scriptable adapter for manager tests.
type fakeAdapter struct {
	name      string
	available bool
	initErr   error
	state     map[string]any
	runFn     func(ctx context.Context, sink Sink) error

	initCalls atomic.Int32
}

func (f *fakeAdapter) Info() Info      { return Info{Name: f.name, DefaultPriority: DefaultPriority} }
func (f *fakeAdapter) Available() bool { return f.available }

func (f *fakeAdapter) Init(ctx context.Context) error {
	f.initCalls.Add(1)
	return f.initErr
}

func (f *fakeAdapter) Run(ctx context.Context, sink Sink) error {
	if f.runFn != nil {
		return f.runFn(ctx, sink)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeAdapter) State(ctx context.Context) (map[string]any, error) {
	if f.state == nil {
		return map[string]any{}, nil
	}
	return f.state, nil
}

func idleAdapter(name string) *fakeAdapter {
	return &fakeAdapter{name: name, available: true}
}

func testConfig() Config {
	return Config{
		StopGrace:       200 * time.Millisecond,
		DecisionTimeout: time.Second,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestStartAllSnapshotMembership(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(testConfig())

	healthy := idleAdapter("screen")
	healthy.state = map[string]any{"active_window": "Terminal"}
	unavailable := &fakeAdapter{name: "voice", available: false}
	broken := &fakeAdapter{name: "keyboard", available: true, initErr: errors.New("no device")}

	for _, a := range []Adapter{healthy, unavailable, broken} {
		if err := m.Register(a); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	snap := m.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected exactly 1 snapshot entry, got %d: %v", len(snap), snap)
	}
	entry, ok := snap["screen"]
	if !ok {
		t.Fatal("expected snapshot entry for screen")
	}
	if entry.Data["active_window"] != "Terminal" {
		t.Errorf("seed state not reflected: %v", entry.Data)
	}
	if unavailable.initCalls.Load() != 0 {
		t.Error("unavailable adapter must never be initialized")
	}

	health := m.Health()
	if len(health) != 3 {
		t.Fatalf("expected health for 3 adapters, got %d", len(health))
	}
	statuses := map[string]Status{}
	for _, h := range health {
		statuses[h.Name] = h.Status
	}
	if statuses["screen"] != StatusRunning {
		t.Errorf("screen status = %s, want running", statuses["screen"])
	}
	if statuses["voice"] != StatusDisabled || statuses["keyboard"] != StatusDisabled {
		t.Errorf("skipped adapters should be disabled: %v", statuses)
	}
}

func TestEventRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	emit := make(chan map[string]any)
	a := idleAdapter("screen")
	a.runFn = func(ctx context.Context, sink Sink) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case data := <-emit:
				sink.Emit(NewEvent("screen", "window_changed", data, 5))
			}
		}
	}

	m := NewManager(testConfig())
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	// Per-adapter FIFO: the snapshot always reflects the most recent emit.
	for i := 0; i < 20; i++ {
		emit <- map[string]any{"active_window": "win", "seq": i}
	}

	waitFor(t, time.Second, func() bool {
		entry, ok := m.Snapshot()["screen"]
		return ok && entry.Data["seq"] == 19
	})
}

func TestBusyGateSerializesDecisions(t *testing.T) {
	defer goleak.VerifyNone(t)

	var running, maxRunning, calls atomic.Int32
	var mu sync.Mutex
	var texts []string

	m := NewManager(testConfig())
	m.SetDecisionCallback(func(ctx context.Context, text string) {
		n := running.Add(1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		mu.Lock()
		texts = append(texts, text)
		mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		calls.Add(1)
	})

	a := idleAdapter("voice")
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	// Two speech events at default priority (below the interrupt threshold):
	// the second waits behind the busy gate, it is not dropped and not run
	// concurrently.
	m.OnEvent(NewEvent("voice", KindSpeech, map[string]any{DataRecognizedText: "first"}, DefaultPriority))
	m.OnEvent(NewEvent("voice", KindSpeech, map[string]any{DataRecognizedText: "second"}, DefaultPriority))

	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 2 })

	if maxRunning.Load() != 1 {
		t.Errorf("decision callbacks overlapped: max concurrency %d", maxRunning.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(texts) != 2 || texts[0] != "first" || texts[1] != "second" {
		t.Errorf("unexpected callback order: %v", texts)
	}
}

func TestHighPriorityInterruptCancelsInFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan string, 4)
	canceled := make(chan string, 4)

	m := NewManager(testConfig())
	m.SetDecisionCallback(func(ctx context.Context, text string) {
		started <- text
		select {
		case <-ctx.Done():
			canceled <- text
		case <-time.After(500 * time.Millisecond):
		}
	})

	a := idleAdapter("voice")
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	m.OnEvent(NewEvent("voice", KindSpeech, map[string]any{DataRecognizedText: "old"}, DefaultPriority))
	if got := <-started; got != "old" {
		t.Fatalf("first call text = %q", got)
	}

	// Priority 9 exceeds the default threshold of 8: the outstanding call is
	// canceled and a new call starts with the newer text.
	m.OnEvent(NewEvent("voice", KindSpeech, map[string]any{DataRecognizedText: "new"}, 9))

	if got := <-canceled; got != "old" {
		t.Fatalf("canceled call text = %q, want old", got)
	}
	if got := <-started; got != "new" {
		t.Fatalf("replacement call text = %q, want new", got)
	}
}

func TestNonSpeechInterruptReissuesCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	started := make(chan string, 4)

	m := NewManager(testConfig())
	m.SetDecisionCallback(func(ctx context.Context, text string) {
		started <- text
		select {
		case <-ctx.Done():
		case <-time.After(200 * time.Millisecond):
		}
	})

	a := idleAdapter("voice")
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	m.OnEvent(NewEvent("voice", KindSpeech, map[string]any{DataRecognizedText: "question"}, DefaultPriority))
	if got := <-started; got != "question" {
		t.Fatalf("first call text = %q", got)
	}

	// A non-speech event above the threshold cancels the call; the request is
	// re-issued so a fresh call runs with updated context.
	m.OnEvent(NewEvent("hardware", "alert", map[string]any{"button": "pressed"}, 10))

	if got := <-started; got != "question" {
		t.Fatalf("re-issued call text = %q, want question", got)
	}
}

func TestStopAllReturnsDespiteHangingAdapter(t *testing.T) {
	// The hung loop is abandoned by design, so no goleak check here.
	hang := make(chan struct{})
	defer close(hang)

	a := idleAdapter("stuck")
	a.runFn = func(ctx context.Context, sink Sink) error {
		<-hang // ignores ctx
		return nil
	}

	cfg := testConfig()
	cfg.StopGrace = 100 * time.Millisecond
	m := NewManager(cfg)
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.StopAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StopAll did not return within the grace period")
	}
}

func TestLateEventsDroppedAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := NewManager(testConfig())
	a := idleAdapter("screen")
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	m.StopAll()

	before := m.Snapshot()
	m.OnEvent(NewEvent("screen", "window_changed", map[string]any{"active_window": "late"}, 5))
	time.Sleep(20 * time.Millisecond)

	after := m.Snapshot()
	if after["screen"].Data["active_window"] != before["screen"].Data["active_window"] {
		t.Error("late event mutated the snapshot after StopAll")
	}
	if !after["screen"].Stale {
		t.Error("stopped adapter's entry must be flagged stale")
	}
}

func TestSupervisorRestartsFaultedLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	var attempts atomic.Int32
	a := idleAdapter("flaky")
	a.runFn = func(ctx context.Context, sink Sink) error {
		if attempts.Add(1) <= 2 {
			return errors.New("sensor glitch")
		}
		<-ctx.Done()
		return ctx.Err()
	}

	m := NewManager(testConfig())
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	waitFor(t, 5*time.Second, func() bool { return attempts.Load() >= 3 })

	health := m.Health()
	if len(health) != 1 {
		t.Fatalf("expected 1 health record, got %d", len(health))
	}
	if health[0].Restarts != 2 {
		t.Errorf("restarts = %d, want 2", health[0].Restarts)
	}
	if health[0].LastError == "" {
		t.Error("fault must be observable in health")
	}
}

func TestSupervisorDisablesAfterRetriesExhausted(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := idleAdapter("doomed")
	a.runFn = func(ctx context.Context, sink Sink) error {
		return errors.New("hardware gone")
	}

	cfg := testConfig()
	cfg.MaxRestarts = 1
	m := NewManager(cfg)
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	waitFor(t, 5*time.Second, func() bool {
		h := m.Health()
		return len(h) == 1 && h[0].Status == StatusFailed
	})

	if entry, ok := m.Snapshot()["doomed"]; !ok || !entry.Stale {
		t.Error("failed adapter's snapshot entry must remain, flagged stale")
	}
}

func TestStateOfLiveAndFallback(t *testing.T) {
	defer goleak.VerifyNone(t)

	a := idleAdapter("keyboard")
	a.state = map[string]any{"typing_rate": 80.0, "active": true}

	m := NewManager(testConfig())
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}

	state, err := m.StateOf(context.Background(), "keyboard")
	if err != nil {
		t.Fatalf("StateOf: %v", err)
	}
	if active, _ := state["active"].(bool); !active {
		t.Errorf("live state = %v", state)
	}

	if _, err := m.StateOf(context.Background(), "ghost"); err == nil {
		t.Error("unknown adapter must be an error")
	}

	m.StopAll()

	// A stopped adapter answers from the merged snapshot entry.
	state, err = m.StateOf(context.Background(), "keyboard")
	if err != nil {
		t.Fatalf("StateOf after stop: %v", err)
	}
	if state["typing_rate"] != 80.0 {
		t.Errorf("fallback state = %v", state)
	}
}

func TestRegisterValidation(t *testing.T) {
	m := NewManager(testConfig())
	if err := m.Register(idleAdapter("screen")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(idleAdapter("screen")); err == nil {
		t.Error("duplicate registration must fail")
	}
	if err := m.Register(&fakeAdapter{available: true}); err == nil {
		t.Error("registration without a name must fail")
	}

	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()
	if err := m.Register(idleAdapter("voice")); err == nil {
		t.Error("registration after StartAll must fail")
	}
}

func TestAdapterPanicIsAFault(t *testing.T) {
	defer goleak.VerifyNone(t)

	var attempts atomic.Int32
	a := idleAdapter("panicky")
	a.runFn = func(ctx context.Context, sink Sink) error {
		if attempts.Add(1) == 1 {
			panic("boom")
		}
		<-ctx.Done()
		return ctx.Err()
	}

	m := NewManager(testConfig())
	if err := m.Register(a); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	defer m.StopAll()

	waitFor(t, 5*time.Second, func() bool { return attempts.Load() >= 2 })
}
