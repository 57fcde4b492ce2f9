package events

import (
	"sync"

	"daosplit/core/types"
)

// Event represents a structured state change emitted by a native module.
type Event interface {
	EventType() string
}

// Payload is implemented by events that can render their canonical attribute
// map.
type Payload interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans an event out to every wrapped emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps the most recent events in memory. It is safe for concurrent
// use.
type Recorder struct {
	mu     sync.RWMutex
	limit  int
	events []*types.Event
}

// NewRecorder creates a recorder retaining at most limit events. A non-positive
// limit keeps every event.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Emit implements the Emitter interface. Events without a canonical payload
// are recorded with their type only.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	var rendered *types.Event
	if payload, ok := evt.(Payload); ok {
		rendered = payload.Event().Clone()
	}
	if rendered == nil {
		rendered = &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, rendered)
	if r.limit > 0 && len(r.events) > r.limit {
		r.events = append([]*types.Event(nil), r.events[len(r.events)-r.limit:]...)
	}
}

// Events returns copies of the recorded events, oldest first.
func (r *Recorder) Events() []*types.Event {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Event, len(r.events))
	for i, evt := range r.events {
		out[i] = evt.Clone()
	}
	return out
}

// Filter returns the recorded events of the supplied type.
func (r *Recorder) Filter(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range r.Events() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// Reset drops every recorded event.
func (r *Recorder) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Buffer holds events until the surrounding operation settles. Flush forwards
// them to the target emitter and Drop discards them. It is safe for concurrent
// use.
type Buffer struct {
	mu      sync.Mutex
	target  Emitter
	pending []Event
}

// NewBuffer wraps target. A nil target discards flushed events.
func NewBuffer(target Emitter) *Buffer {
	if target == nil {
		target = NoopEmitter{}
	}
	return &Buffer{target: target}
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.mu.Lock()
	b.pending = append(b.pending, evt)
	b.mu.Unlock()
}

// Flush forwards the buffered events in emission order.
func (b *Buffer) Flush() {
	if b == nil {
		return
	}
	b.mu.Lock()
	queued := b.pending
	b.pending = nil
	b.mu.Unlock()
	for _, evt := range queued {
		b.target.Emit(evt)
	}
}

// Drop discards the buffered events.
func (b *Buffer) Drop() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
