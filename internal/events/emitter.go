// Package events defines the canonical connection lifecycle event schema and
// the in-process emitter that fans events out to subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Name identifies a lifecycle event. All values are lowercase.
type Name string

const (
	Connected    Name = "connected"
	Disconnected Name = "disconnected"
	Reconnected  Name = "reconnected"
	Error        Name = "error"
	Reset        Name = "reset"
)

// IsValid checks if the name is a known event.
func (n Name) IsValid() bool {
	switch n {
	case Connected, Disconnected, Reconnected, Error, Reset:
		return true
	default:
		return false
	}
}

// Event is one lifecycle notification. Err is set only for Error events.
type Event struct {
	Name Name      `json:"name"`
	Time time.Time `json:"time"`
	Err  error     `json:"-"`
}

// Handler receives events. Handlers run synchronously on the emitting
// goroutine, in subscription order.
type Handler func(Event)

// Emitter fans lifecycle events out to subscribers. Delivery order matches
// emission order; a panicking subscriber is recovered and logged so it
// cannot break delivery to the others.
type Emitter struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
	logger *slog.Logger
}

type subscription struct {
	id int
	fn Handler
}

// NewEmitter creates an emitter. A nil logger falls back to slog.Default.
func NewEmitter(logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{logger: logger}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Unsubscribing twice is a no-op.
func (e *Emitter) Subscribe(fn Handler) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers the event to every subscriber in subscription order.
func (e *Emitter) Emit(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	e.mu.Lock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		e.deliver(s, evt)
	}
}

func (e *Emitter) deliver(s subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event subscriber panicked", "event", string(evt.Name), "panic", r)
		}
	}()
	s.fn(evt)
}
