package vectorize

import (
	"sync"

	"github.com/wes/duckbake/internal/models"
)

const subscriberBuffer = 64

// Hub fans progress events out to subscribers. Delivery is best-effort: a
// subscriber that stops draining misses events rather than blocking the
// orchestrator, whose own state transitions stay authoritative.
type Hub struct {
	mu   sync.Mutex
	subs map[chan models.ProgressEvent]struct{}
}

// NewHub returns a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan models.ProgressEvent]struct{})}
}

// Subscribe registers a listener. The returned cancel function removes the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends the event to every subscriber without blocking.
func (h *Hub) Publish(ev models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports how many listeners are registered.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
