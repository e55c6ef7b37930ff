package service

import (
	"sync"

	"github.com/scoutexam/exam-backend/internal/engine"
)

const subscriberBuffer = 64

// Hub fans session notices out to the stream connections of each attempt.
// Publish never blocks: a subscriber that falls behind loses notices and
// recovers by asking for the full state.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan engine.Notice]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan engine.Notice]struct{})}
}

// Subscribe registers a listener for an attempt. Call the returned function
// to unsubscribe; it closes the channel.
func (h *Hub) Subscribe(attemptID string) (<-chan engine.Notice, func()) {
	ch := make(chan engine.Notice, subscriberBuffer)

	h.mu.Lock()
	if h.subs[attemptID] == nil {
		h.subs[attemptID] = make(map[chan engine.Notice]struct{})
	}
	h.subs[attemptID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[attemptID], ch)
			if len(h.subs[attemptID]) == 0 {
				delete(h.subs, attemptID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers n to every subscriber of its attempt.
func (h *Hub) Publish(n engine.Notice) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[n.SessionID] {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribers returns the number of listeners of an attempt.
func (h *Hub) Subscribers(attemptID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[attemptID])
}
