package events

import "tribecore/core/types"

// Event represents a structured state change emitted by a protocol engine.
type Event interface {
	EventType() string
}

// Payload is implemented by events that flatten into the generic attribute
// record consumed by the embedding node's event bus.
type Payload interface {
	Event() *types.Event
}

// Flatten renders an event as its generic attribute record. Events without a
// payload conversion yield the type alone.
func Flatten(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if p, ok := evt.(Payload); ok {
		return p.Event()
	}
	return &types.Event{Type: evt.EventType()}
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers or the
// embedding node's event bus).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Recorder captures emitted events in order. It is primarily used by tests
// that assert on engine event emission.
type Recorder struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.Events = append(r.Events, evt)
}
