// Package events defines the live call events emitted as sessions change and
// the sinks that deliver them: an in-process hub for SSE and a Redis publisher.
package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Type represents the kind of event.
type Type string

const (
	CallStarted  Type = "call.started"
	CallMessage  Type = "call.message"
	CallTurn     Type = "call.turn"
	CallTakeover Type = "call.takeover"
	CallEnded    Type = "call.ended"
)

// Event is a structured event emitted during a call.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	CallID    string                 `json:"call_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates a new event for callID.
func New(eventType Type, callID string) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		CallID:    callID,
	}
}

// WithData adds data fields to the event and returns it for chaining.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// JSON returns the event serialized as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter is the interface for event consumers. Emit must not block the
// caller for long; sinks that do I/O bound it themselves.
type Emitter interface {
	Emit(event *Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter by discarding the event.
func (NoopEmitter) Emit(*Event) {}

// CollectorEmitter collects events in memory.
type CollectorEmitter struct {
	mu     sync.Mutex
	events []*Event
}

// Emit appends the event to the collector.
func (c *CollectorEmitter) Emit(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of the collected events.
func (c *CollectorEmitter) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Event(nil), c.events...)
}

// Types returns the collected event types in order.
func (c *CollectorEmitter) Types() []Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Type, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

// Multi fans an event out to every emitter in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(event *Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
