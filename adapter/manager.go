package adapter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"sync"
	"time"
)

// Config tunes the manager. Zero values fall back to the defaults below.
type Config struct {
	// InterruptThreshold is the priority an event must exceed to cancel an
	// in-flight decision call.
	InterruptThreshold int

	// DecisionTimeout bounds a single decision callback invocation.
	DecisionTimeout time.Duration

	// StaleAfter is how old a snapshot entry may grow before it reports
	// stale even without an explicit stop/fault flag.
	StaleAfter time.Duration

	// StopGrace is how long StopAll waits for each adapter loop to unwind
	// before abandoning it.
	StopGrace time.Duration

	// MaxRestarts bounds how often a faulted adapter loop is restarted
	// before the adapter is disabled for the run.
	MaxRestarts int

	// EventBuffer and DecisionBuffer size the ingress and decision queues.
	EventBuffer    int
	DecisionBuffer int

	// Verbose enables debug logging (dropped late events and the like).
	Verbose bool
}

const (
	DefaultInterruptThreshold = 8
	DefaultDecisionTimeout    = 10 * time.Second
	DefaultStaleAfter         = 2 * time.Minute
	DefaultStopGrace          = 5 * time.Second
	DefaultMaxRestarts        = 3

	defaultEventBuffer    = 256
	defaultDecisionBuffer = 8
	restartDelay          = time.Second
)

func (c Config) withDefaults() Config {
	if c.InterruptThreshold == 0 {
		c.InterruptThreshold = DefaultInterruptThreshold
	}
	if c.DecisionTimeout == 0 {
		c.DecisionTimeout = DefaultDecisionTimeout
	}
	if c.StaleAfter == 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.StopGrace == 0 {
		c.StopGrace = DefaultStopGrace
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = DefaultMaxRestarts
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = defaultEventBuffer
	}
	if c.DecisionBuffer == 0 {
		c.DecisionBuffer = defaultDecisionBuffer
	}
	return c
}

// Status describes an adapter's lifecycle state as seen by the manager.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusRunning    Status = "running"
	StatusDisabled   Status = "disabled" // unavailable or Init failed
	StatusFailed     Status = "failed"   // runtime faults exhausted retries
	StatusStopped    Status = "stopped"
)

// Health reports one adapter's supervision state.
type Health struct {
	Name      string
	Status    Status
	Restarts  int
	LastEvent time.Time
	LastError string
}

// Entry is one adapter's latest reported state in a snapshot.
type Entry struct {
	Data       map[string]any
	ObservedAt time.Time
	Stale      bool
}

// Snapshot maps adapter identity to its latest state. Entries for stopped or
// crashed adapters stay present but flagged stale, so a pending decision call
// still sees last-known context rather than a hole.
type Snapshot map[string]Entry

// DecisionFunc is invoked for each decision trigger (recognized speech or an
// explicit request). The context is canceled on timeout, on shutdown, or when
// a higher-priority event interrupts the call; implementations must unwind
// promptly when it fires.
type DecisionFunc func(ctx context.Context, text string)

type decisionRequest struct {
	reason string
	text   string
}

type flight struct {
	cancel  context.CancelFunc
	requeue bool // fresh call with updated context after a non-speech interrupt
}

type registration struct {
	adapter   Adapter
	info      Info
	status    Status
	restarts  int
	lastEvent time.Time
	lastErr   error
	done      chan struct{}
}

type entryState struct {
	data       map[string]any
	observedAt time.Time
	stale      bool
}

// Manager owns the registered adapters, runs each under a supervised
// goroutine, serializes snapshot merges, and gates decision-loop invocations
// so at most one is in flight.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	regs     map[string]*registration
	order    []string
	snapshot map[string]*entryState
	callback DecisionFunc
	started  bool
	stopping bool

	events   chan Event
	requests chan decisionRequest

	runCtx    context.Context
	cancelRun context.CancelFunc

	collectorDone  chan struct{}
	dispatcherDone chan struct{}

	flightMu sync.Mutex
	flight   *flight
}

// NewManager creates a manager. Adapters are added with Register and nothing
// runs until StartAll.
func NewManager(cfg Config) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:      cfg,
		regs:     make(map[string]*registration),
		snapshot: make(map[string]*entryState),
		events:   make(chan Event, cfg.EventBuffer),
		requests: make(chan decisionRequest, cfg.DecisionBuffer),
	}
}

// Register records an adapter. It may only be called before StartAll.
func (m *Manager) Register(a Adapter) error {
	info := a.Info()
	if info.Name == "" {
		return errors.New("adapter: registration requires a name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("adapter: cannot register %q after StartAll", info.Name)
	}
	if _, exists := m.regs[info.Name]; exists {
		return fmt.Errorf("adapter: %q already registered", info.Name)
	}
	m.regs[info.Name] = &registration{
		adapter: a,
		info:    info,
		status:  StatusRegistered,
		done:    make(chan struct{}),
	}
	m.order = append(m.order, info.Name)
	return nil
}

// SetDecisionCallback registers the function invoked for speech events and
// explicit decision requests. Only one invocation proceeds at a time.
func (m *Manager) SetDecisionCallback(fn DecisionFunc) {
	m.mu.Lock()
	m.callback = fn
	m.mu.Unlock()
}

// StartAll initializes and starts every registered, available adapter.
// Partial failure is not fatal: an adapter that is unavailable or fails Init
// is disabled for the run and the rest continue.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("adapter: manager already started")
	}
	m.started = true
	m.stopping = false
	m.runCtx, m.cancelRun = context.WithCancel(ctx)
	m.collectorDone = make(chan struct{})
	m.dispatcherDone = make(chan struct{})
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	go m.collect()
	go m.dispatch()

	for _, name := range order {
		m.mu.Lock()
		reg := m.regs[name]
		m.mu.Unlock()
		if reg == nil {
			continue
		}

		if !reg.adapter.Available() {
			log.Printf("[manager] adapter %s unavailable on this platform, skipping", name)
			m.setStatus(name, StatusDisabled, ErrUnsupportedPlatform)
			close(reg.done)
			continue
		}

		if err := reg.adapter.Init(ctx); err != nil {
			log.Printf("[manager] adapter %s failed to initialize: %v", name, err)
			m.setStatus(name, StatusDisabled, err)
			close(reg.done)
			continue
		}

		m.seedSnapshot(ctx, reg)
		m.setStatus(name, StatusRunning, nil)
		go m.supervise(reg)
		log.Printf("[manager] adapter %s started", name)
	}
	return nil
}

// seedSnapshot records an adapter's initial state so the snapshot has exactly
// one entry per adapter that passed Available and Init.
func (m *Manager) seedSnapshot(ctx context.Context, reg *registration) {
	stateCtx, cancel := context.WithTimeout(ctx, time.Second)
	data, err := reg.adapter.State(stateCtx)
	cancel()
	if err != nil || data == nil {
		data = map[string]any{}
	}

	m.mu.Lock()
	m.snapshot[reg.info.Name] = &entryState{data: data, observedAt: time.Now()}
	m.mu.Unlock()
}

// supervise runs one adapter's observation loop, restarting it after runtime
// faults up to MaxRestarts before disabling the adapter. A crashed loop is
// always observable: the snapshot entry goes stale and Health reports the
// fault.
func (m *Manager) supervise(reg *registration) {
	defer close(reg.done)
	name := reg.info.Name

	for {
		err := m.runOnce(reg)

		if m.runCtx.Err() != nil || errors.Is(err, context.Canceled) {
			m.setStatus(name, StatusStopped, nil)
			m.markStale(name)
			return
		}
		if err == nil {
			// Loop ended on its own without a fault; treat as stopped.
			log.Printf("[manager] adapter %s loop ended", name)
			m.setStatus(name, StatusStopped, nil)
			m.markStale(name)
			return
		}

		m.markStale(name)
		restarts := m.recordFault(name, err)
		if restarts > m.cfg.MaxRestarts {
			log.Printf("[manager] adapter %s failed permanently after %d restarts: %v", name, restarts-1, err)
			m.setStatus(name, StatusFailed, err)
			return
		}
		log.Printf("[manager] adapter %s fault (restart %d/%d): %v", name, restarts, m.cfg.MaxRestarts, err)

		select {
		case <-m.runCtx.Done():
			m.setStatus(name, StatusStopped, nil)
			return
		case <-time.After(restartDelay):
		}
	}
}

// runOnce executes a single Run invocation, converting panics into faults.
func (m *Manager) runOnce(reg *registration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter %s panicked: %v", reg.info.Name, r)
		}
	}()
	return reg.adapter.Run(m.runCtx, SinkFunc(m.OnEvent))
}

// StopAll signals every running adapter to stop and waits for each with a
// bounded grace period. It always returns; a loop that never unwinds is
// abandoned and logged. Registrations are cleared; snapshot entries survive,
// flagged stale.
func (m *Manager) StopAll() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.stopping = true
	regs := make([]*registration, 0, len(m.order))
	for _, name := range m.order {
		if reg := m.regs[name]; reg != nil {
			regs = append(regs, reg)
		}
	}
	m.mu.Unlock()

	m.cancelRun()

	for _, reg := range regs {
		select {
		case <-reg.done:
		case <-time.After(m.cfg.StopGrace):
			log.Printf("[manager] adapter %s did not stop within %v, abandoning (resources may leak)", reg.info.Name, m.cfg.StopGrace)
		}
	}

	waitClosed(m.collectorDone, m.cfg.StopGrace)
	waitClosed(m.dispatcherDone, m.cfg.StopGrace)

	m.mu.Lock()
	for name := range m.snapshot {
		m.snapshot[name].stale = true
	}
	m.regs = make(map[string]*registration)
	m.order = nil
	m.started = false
	m.mu.Unlock()
	log.Println("[manager] stopped")
}

func waitClosed(ch chan struct{}, grace time.Duration) {
	select {
	case <-ch:
	case <-time.After(grace):
	}
}

// OnEvent is the single ingress point adapter tasks use to report an
// observation. Safe for concurrent use; events from one adapter are applied
// in emit order. Events arriving after StopAll has begun are dropped.
func (m *Manager) OnEvent(ev Event) {
	m.mu.RLock()
	stopping := m.stopping || !m.started
	m.mu.RUnlock()
	if stopping {
		m.debugf("[manager] dropping late event from %s (%s)", ev.Source, ev.Kind)
		return
	}

	select {
	case m.events <- ev:
	default:
		log.Printf("[manager] event queue full, dropping event from %s (%s)", ev.Source, ev.Kind)
	}
}

// Emit implements Sink.
func (m *Manager) Emit(ev Event) { m.OnEvent(ev) }

// collect is the single goroutine that mutates the snapshot, serializing
// merges across concurrent emitters.
func (m *Manager) collect() {
	defer close(m.collectorDone)
	for {
		select {
		case <-m.runCtx.Done():
			return
		case ev := <-m.events:
			m.apply(ev)
		}
	}
}

func (m *Manager) apply(ev Event) {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return
	}
	m.snapshot[ev.Source] = &entryState{
		data:       ev.Data,
		observedAt: ev.ObservedAt,
	}
	if reg, ok := m.regs[ev.Source]; ok {
		reg.lastEvent = ev.ObservedAt
	}
	threshold := m.cfg.InterruptThreshold
	m.mu.Unlock()

	isSpeech := ev.RecognizedText() != ""

	if ev.Priority > threshold {
		m.interruptFlight(ev, isSpeech)
	}

	if isSpeech {
		m.enqueueDecision(decisionRequest{reason: "speech", text: ev.RecognizedText()})
	}
}

// interruptFlight cancels the in-flight decision call. The most recent
// high-priority event always wins; an earlier still-pending interrupt is
// simply superseded. A speech interrupt carries its own replacement request;
// any other interrupt re-issues the canceled call with updated context.
func (m *Manager) interruptFlight(ev Event, isSpeech bool) {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()
	if m.flight == nil {
		return
	}
	log.Printf("[manager] event from %s (priority %d) interrupts in-flight decision", ev.Source, ev.Priority)
	m.flight.requeue = !isSpeech
	m.flight.cancel()
}

// RequestDecision queues a decision-loop invocation through the busy gate,
// e.g. for the orchestrator's periodic nudge. The text may be empty.
func (m *Manager) RequestDecision(reason, text string) {
	m.mu.RLock()
	stopping := m.stopping || !m.started
	m.mu.RUnlock()
	if stopping {
		return
	}
	m.enqueueDecision(decisionRequest{reason: reason, text: text})
}

func (m *Manager) enqueueDecision(req decisionRequest) {
	select {
	case m.requests <- req:
	default:
		log.Printf("[manager] decision queue full, dropping request (%s)", req.reason)
	}
}

// dispatch runs decision callbacks one at a time. A request arriving while a
// callback executes waits in the queue; it is neither dropped nor run
// concurrently.
func (m *Manager) dispatch() {
	defer close(m.dispatcherDone)
	for {
		select {
		case <-m.runCtx.Done():
			return
		case req := <-m.requests:
			m.runDecision(req)
		}
	}
}

func (m *Manager) runDecision(req decisionRequest) {
	m.mu.RLock()
	cb := m.callback
	m.mu.RUnlock()
	if cb == nil {
		m.debugf("[manager] no decision callback registered, dropping request (%s)", req.reason)
		return
	}

	ctx, cancel := context.WithTimeout(m.runCtx, m.cfg.DecisionTimeout)
	fl := &flight{cancel: cancel}
	m.flightMu.Lock()
	m.flight = fl
	m.flightMu.Unlock()

	cb(ctx, req.text)

	m.flightMu.Lock()
	requeue := fl.requeue
	m.flight = nil
	m.flightMu.Unlock()
	cancel()

	if requeue && m.runCtx.Err() == nil {
		m.debugf("[manager] re-issuing interrupted decision (%s) with updated context", req.reason)
		m.enqueueDecision(req)
	}
}

// Busy reports whether a decision call is in flight.
func (m *Manager) Busy() bool {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()
	return m.flight != nil
}

// Snapshot returns a consistent point-in-time copy of every adapter's latest
// state. Entries older than StaleAfter, or belonging to stopped/faulted
// adapters, report Stale.
func (m *Manager) Snapshot() Snapshot {
	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(Snapshot, len(m.snapshot))
	for name, st := range m.snapshot {
		out[name] = Entry{
			Data:       maps.Clone(st.data),
			ObservedAt: st.observedAt,
			Stale:      st.stale || now.Sub(st.observedAt) > m.cfg.StaleAfter,
		}
	}
	return out
}

// StateOf returns the live state of one running adapter, falling back to the
// merged snapshot entry when the adapter is gone.
func (m *Manager) StateOf(ctx context.Context, name string) (map[string]any, error) {
	m.mu.RLock()
	var live Adapter
	if reg := m.regs[name]; reg != nil && reg.status == StatusRunning {
		live = reg.adapter
	}
	m.mu.RUnlock()

	if live == nil {
		if entry, ok := m.Snapshot()[name]; ok {
			return entry.Data, nil
		}
		return nil, fmt.Errorf("adapter: %q not registered", name)
	}
	return live.State(ctx)
}

// Health reports per-adapter supervision state in registration order.
func (m *Manager) Health() []Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Health, 0, len(m.order))
	for _, name := range m.order {
		reg := m.regs[name]
		if reg == nil {
			continue
		}
		h := Health{
			Name:      name,
			Status:    reg.status,
			Restarts:  reg.restarts,
			LastEvent: reg.lastEvent,
		}
		if reg.lastErr != nil {
			h.LastError = reg.lastErr.Error()
		}
		out = append(out, h)
	}
	return out
}

func (m *Manager) setStatus(name string, status Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if reg, ok := m.regs[name]; ok {
		reg.status = status
		if err != nil {
			reg.lastErr = err
		}
	}
}

func (m *Manager) recordFault(name string, err error) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.regs[name]
	if !ok {
		return 0
	}
	reg.restarts++
	reg.lastErr = err
	return reg.restarts
}

func (m *Manager) markStale(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.snapshot[name]; ok {
		st.stale = true
	}
}

func (m *Manager) debugf(format string, args ...any) {
	if m.cfg.Verbose {
		log.Printf(format, args...)
	}
}
