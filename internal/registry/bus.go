// ABOUTME: In-process event source for host lifecycle signals.
// ABOUTME: Subscriptions go through the Registry so they can be released by context.
package registry

import "sync"

// Handler receives an emitted payload.
type Handler func(payload any)

// Source is anything handlers can subscribe to by event name.
type Source interface {
	ID() string
	On(event string, h Handler) (off func())
}

// Bus is a synchronous, in-process Source.
type Bus struct {
	id       string
	mu       sync.Mutex
	handlers map[string][]*busHandler
}

type busHandler struct {
	h       Handler
	removed bool
}

// NewBus creates a Bus identified by id.
func NewBus(id string) *Bus {
	return &Bus{id: id, handlers: make(map[string][]*busHandler)}
}

// ID returns the bus identity used in subscription keys.
func (b *Bus) ID() string { return b.id }

// On registers h for event and returns a function removing it.
func (b *Bus) On(event string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry := &busHandler{h: h}
	b.handlers[event] = append(b.handlers[event], entry)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entry.removed = true
		list := b.handlers[event]
		for i, other := range list {
			if other == entry {
				b.handlers[event] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

// Emit calls every handler registered for event, in registration order.
func (b *Bus) Emit(event string, payload any) {
	b.mu.Lock()
	list := make([]*busHandler, len(b.handlers[event]))
	copy(list, b.handlers[event])
	b.mu.Unlock()

	for _, entry := range list {
		b.mu.Lock()
		removed := entry.removed
		b.mu.Unlock()
		if !removed {
			entry.h(payload)
		}
	}
}

// Count returns the number of handlers registered for event.
func (b *Bus) Count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[event])
}
