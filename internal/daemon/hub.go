package daemon

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Coldaine/ShortcutSage/internal/model"
)

const defaultSubscriberBuffer = 16

// Notification is published once per processed event, even when no
// suggestion came out of it.
type Notification struct {
	EventID     string                   `json:"event_id"`
	Time        time.Time                `json:"time"`
	Action      string                   `json:"action"`
	Suggestions []model.SuggestionResult `json:"suggestions"`
}

// hub fans notifications out to subscribers. Slow subscribers lose
// notifications instead of delaying event processing.
type hub struct {
	mu      sync.Mutex
	subs    map[int]chan Notification
	next    int
	bufSize int
	closed  bool
	dropped atomic.Int64
}

func newHub(bufSize int) *hub {
	if bufSize <= 0 {
		bufSize = defaultSubscriberBuffer
	}
	return &hub{subs: make(map[int]chan Notification), bufSize: bufSize}
}

// subscribe registers a subscriber. The returned cancel func is idempotent
// and closes the channel.
func (h *hub) subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Notification, h.bufSize)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

func (h *hub) publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			h.dropped.Add(1)
			slog.Warn("subscriber buffer full, dropping notification", "subscriber", id, "event_id", n.EventID)
		}
	}
}

// SubscriberStats reports the notification fan-out.
type SubscriberStats struct {
	Active  int   `json:"active"`
	Dropped int64 `json:"dropped"`
}

func (h *hub) stats() SubscriberStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return SubscriberStats{Active: len(h.subs), Dropped: h.dropped.Load()}
}

// close ends every subscription.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
