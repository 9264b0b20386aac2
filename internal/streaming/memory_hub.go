package streaming

import (
	"context"
	"sync"
)

// subscriberBuffer is how many events a subscriber may lag before the hub
// starts dropping events for it.
const subscriberBuffer = 64

// MemoryHub is the in-process EventHub. Publishing never blocks: a
// subscriber that has fallen subscriberBuffer events behind misses events
// until it drains, which keeps one stuck SSE client from stalling every
// conversation in the process.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

type subscription struct {
	events chan StreamEvent
	filter EventFilter
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[*subscription]struct{})}
}

// Publish delivers event to every subscriber whose filter matches it.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if !sub.filter.matches(event) {
			continue
		}
		select {
		case sub.events <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a filtered subscriber and returns its event channel
// together with an unsubscribe function. The channel is never closed;
// callers stop reading after unsubscribing.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{
		events: make(chan StreamEvent, subscriberBuffer),
		filter: filter,
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
	}
	return sub.events, unsubscribe, nil
}

// matches reports whether the filter admits the event. An empty filter
// admits everything.
func (f EventFilter) matches(e StreamEvent) bool {
	if f.SessionID != "" && f.SessionID != e.SessionID {
		return false
	}
	if len(f.EventTypes) == 0 {
		return true
	}
	for _, t := range f.EventTypes {
		if t == e.EventType {
			return true
		}
	}
	return false
}
