// Package adapter provides the perception framework for deskclaw: the event
// model adapters use to report observations, the contract every sensor source
// implements, and the manager that supervises adapter loops and merges their
// state into a single context snapshot for the decision loop.
//
// Adapters never share mutable state with each other. Every observation
// crosses a single ingress (the manager's Sink) and a single collector
// goroutine applies it to the snapshot, so merge order for one adapter always
// matches its emit order.
package adapter

import "time"

// Well-known event kinds the manager reacts to. Adapters own the rest of
// their vocabulary (e.g. "window_changed", "screen_content", "typing_burst").
const (
	// KindSpeech carries recognized user speech and triggers the decision
	// callback. The payload key is DataRecognizedText.
	KindSpeech = "speech"
)

// DataRecognizedText is the payload key for recognized speech text.
const DataRecognizedText = "recognized_text"

// Priority bounds for events. Higher priority entitles an event to interrupt
// an in-flight decision call.
const (
	MinPriority = 1
	MaxPriority = 10

	// DefaultPriority is used when an adapter does not declare one.
	DefaultPriority = 5
)

// Event is a single immutable observation emitted by an adapter. It is
// consumed exactly once by the manager's merge step; only its effect on the
// snapshot persists.
type Event struct {
	Source     string         // adapter identity, e.g. "screen"
	Kind       string         // observation category, adapter-defined
	Data       map[string]any // payload, schema owned by the adapter
	ObservedAt time.Time      // when the adapter observed the change
	Priority   int            // 1..10, interrupt entitlement
}

// NewEvent builds an event stamped with the current time. Priority is clamped
// into the valid range; zero becomes DefaultPriority.
func NewEvent(source, kind string, data map[string]any, priority int) Event {
	switch {
	case priority == 0:
		priority = DefaultPriority
	case priority < MinPriority:
		priority = MinPriority
	case priority > MaxPriority:
		priority = MaxPriority
	}
	return Event{
		Source:     source,
		Kind:       kind,
		Data:       data,
		ObservedAt: time.Now(),
		Priority:   priority,
	}
}

// RecognizedText returns the recognized speech text carried by a speech
// event, or "" if the event is not a speech observation.
func (e Event) RecognizedText() string {
	if e.Kind != KindSpeech || e.Data == nil {
		return ""
	}
	text, _ := e.Data[DataRecognizedText].(string)
	return text
}
