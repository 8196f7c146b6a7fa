package replication

import (
	"sync"
	"time"
)

// EventType names what happened on a replication channel.
type EventType string

const (
	// EventChange reports documents pushed or pulled.
	EventChange EventType = "change"
	// EventPaused means the channel caught up and waits for new writes.
	EventPaused EventType = "paused"
	// EventActive means the channel started a cycle.
	EventActive EventType = "active"
	// EventDenied means the server rejected the credentials.
	EventDenied EventType = "denied"
	// EventComplete means the channel was cancelled and exited.
	EventComplete EventType = "complete"
	// EventError reports a failed cycle; the channel retries on its own.
	EventError EventType = "error"
)

// Direction of a change event.
const (
	DirectionPush = "push"
	DirectionPull = "pull"
)

// Event is emitted by a channel.
type Event struct {
	Type       EventType
	Collection string
	Direction  string
	Docs       int
	Err        error
	At         time.Time
}

// Listener receives channel events. It runs on the channel goroutine and
// must not call Start or Stop synchronously.
type Listener func(Event)

type emitter struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
}

func (e *emitter) on(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[int]Listener)
	}
	id := e.next
	e.next++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *emitter) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	e.mu.RLock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}
