package events

import (
	"sync"
	"time"

	"capstan/pkg/logging"
)

// Bus fans events out to subscribers. Publication is best-effort and
// never blocks: a subscriber that cannot keep up loses events rather
// than stalling the publisher. The invocation path publishes here as a
// side channel and does not depend on any subscriber succeeding.
type Bus struct {
	templates *MessageTemplateEngine

	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
}

// NewBus creates an event bus with the default message templates.
func NewBus() *Bus {
	return &Bus{
		templates:   NewMessageTemplateEngine(),
		subscribers: make(map[int]chan Event),
	}
}

// Subscribe registers a subscriber with the given channel buffer size.
// The returned cancel function removes the subscription and closes the
// channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish renders the message for the reason and delivers the event to
// all current subscribers without blocking.
func (b *Bus) Publish(reason EventReason, data EventData) {
	event := Event{
		Reason:    reason,
		Type:      getEventType(reason),
		Message:   b.templates.Render(reason, data),
		Data:      data,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			logging.Debug("Events", "Dropping event %s for slow subscriber", reason)
		}
	}
}

// SetTemplate overrides the message template for a reason.
func (b *Bus) SetTemplate(reason EventReason, template string) {
	b.templates.SetTemplate(reason, template)
}
