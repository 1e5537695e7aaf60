package app

import (
	"sync"

	"treasure-quest-service/internal/domain"
)

// Hub fans out state-change events to every subscribed connection. Targeted
// replies never pass through here; they travel on the requesting
// connection's own send channel.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan domain.Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan domain.Event)}
}

// Subscribe registers a connection and returns its event channel. The caller
// must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(connID string) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	h.mu.Lock()
	h.subs[connID] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if existing, ok := h.subs[connID]; ok && existing == ch {
			delete(h.subs, connID)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast delivers an event to all current subscribers. Slow consumers
// lose their oldest pending event rather than blocking everyone else.
// Broadcasters are serialized under the exclusive lock so the drain-then-send
// below never races another sender into a full buffer.
func (h *Hub) Broadcast(evt domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// Count reports how many connections are currently subscribed.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
