package events

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is one published progress notification.
type Event struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	RunID string          `json:"run_id,omitempty"`
	At    time.Time       `json:"at"`
	Data  json.RawMessage `json:"data"`
}

const subscriberBuffer = 128

// Hub fans run progress out to live subscribers and keeps the most recent
// events so a client that connects mid-run can replay them.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	keep    int
	backlog []Event
	subs    map[chan Event]struct{}
}

// NewHub returns a hub retaining up to keep events (100 when keep <= 0).
func NewHub(keep int) *Hub {
	if keep <= 0 {
		keep = 100
	}
	return &Hub{
		keep:    keep,
		backlog: make([]Event, 0, keep),
		subs:    make(map[chan Event]struct{}),
	}
}

// Publish records an event and fans it out to subscribers. A nil Hub drops it.
func (h *Hub) Publish(eventType, runID string, data any) {
	if h == nil {
		return
	}

	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, RunID: runID, At: time.Now().UTC(), Data: payload}

	if len(h.backlog) == h.keep {
		copy(h.backlog, h.backlog[1:])
		h.backlog = h.backlog[:h.keep-1]
	}
	h.backlog = append(h.backlog, ev)

	for ch := range h.subs {
		// A full subscriber misses the event rather than stalling the run.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of new events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// SnapshotSince returns retained events newer than lastID, oldest first.
// Zero returns everything retained.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, len(h.backlog))
	for _, ev := range h.backlog {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
