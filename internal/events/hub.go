package events

import (
	"sync"
	"sync/atomic"
)

// Hub broadcasts events to in-process subscribers. Slow subscribers lose
// events rather than block the emitter.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]chan *Event
	next    int
	dropped atomic.Int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan *Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan *Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan *Event, buffer)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Emit delivers event to every subscriber with room in its buffer.
func (h *Hub) Emit(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for full buffers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
