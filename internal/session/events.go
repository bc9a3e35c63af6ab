package session

import "sync"

// EventType identifies a session lifecycle event.
type EventType int

const (
	// SessionEstablished fires after a successful sign-in or restore.
	SessionEstablished EventType = iota

	// SessionRefreshed fires after a successful token refresh.
	SessionRefreshed

	// SessionCleared fires after sign-out or terminal auth failure.
	SessionCleared
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case SessionEstablished:
		return "established"
	case SessionRefreshed:
		return "refreshed"
	case SessionCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers on every session transition. Session
// is nil for SessionCleared.
type Event struct {
	Type    EventType
	Session *Session
}

// Broker fans session events out to subscribers. Handlers run on the
// publishing goroutine and must not block.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]func(Event))}
}

// Subscribe registers a handler and returns the function that removes it.
// The caller owns the returned handle and must call it on teardown.
func (b *Broker) Subscribe(handler func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *Broker) publish(event Event) {
	b.mu.Lock()
	handlers := make([]func(Event), 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}
