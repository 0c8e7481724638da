// Package events carries classified upstream failures from the transport
// layer to anyone who cares, without the transport holding references to
// session management or UI code.
package events

import "sync"

// Kind classifies a broadcast event
type Kind string

const (
	// AuthExpired means an upstream call came back 401: the session is dead
	AuthExpired Kind = "auth-expired"
	// AccessDenied means an upstream call came back 403: the session is
	// valid but lacks permission for that one action
	AccessDenied Kind = "access-denied"
	// ServerError means an upstream call came back 5xx
	ServerError Kind = "server-error"
)

// Event is a single broadcast notification
type Event struct {
	Kind    Kind
	Status  int    // originating HTTP status
	Message string // upstream error payload, may be empty
}

// Handler receives published events
type Handler func(Event)

// Bus is a fire-and-forget, many-listener broadcast. Publishers never learn
// who is subscribed; subscribers never learn who published.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[Kind][]Handler),
	}
}

// Subscribe registers a handler for a single event kind
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish delivers the event to every handler subscribed to its kind.
// Handlers run synchronously in subscription order; a handler must not
// block on network calls.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	hs := b.handlers[ev.Kind]
	b.mu.RUnlock()

	for _, h := range hs {
		h(ev)
	}
}
