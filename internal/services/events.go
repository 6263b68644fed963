package services

import (
	"sync"

	"github.com/tbourn/go-chat-widget/internal/domain"
)

// EventType names a session change pushed to subscribers.
type EventType string

const (
	EventMessageCreated EventType = "message.created"
	EventMessageUpdated EventType = "message.updated"
	EventMessagesRead   EventType = "messages.read"
	EventVisitorUpdated EventType = "visitor.updated"
	EventTyping         EventType = "typing"
)

// Event is one session change.
type Event struct {
	Type    EventType             `json:"type"`
	Message *domain.Message       `json:"message,omitempty"`
	IDs     []int64               `json:"ids,omitempty"`
	Visitor *domain.VisitorRecord `json:"visitor,omitempty"`
	Pending *int                  `json:"pending,omitempty"`
}

// Bus fans events out to subscribers. Publishing never blocks: a subscriber
// whose buffer is full misses the event. A nil *Bus discards everything.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]chan Event
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call more
// than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			eventsDropped.Inc()
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (b *Bus) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
