// ABOUTME: Recorder lifecycle events and listener registration
// ABOUTME: A closed set of event types with per-type listener lists
package recorder

import (
	"fmt"
	"sync"
	"time"
)

// EventType names a recorder event
type EventType int

const (
	EventStart EventType = iota
	EventStop
	EventPause
	EventResume
	EventDataAvailable
	EventError

	numEventTypes
)

func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventStop:
		return "stop"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventDataAvailable:
		return "dataavailable"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event is delivered to listeners. Data, MimeType and Timecode are set for
// dataavailable; Err is set for error.
type Event struct {
	Type     EventType
	Data     []byte
	MimeType string
	Timecode time.Time
	Err      error
}

type listener struct {
	fn func(Event)
}

type emitter struct {
	mu        sync.Mutex
	listeners [numEventTypes][]*listener
}

func (e *emitter) on(t EventType, fn func(Event)) func() {
	if t < 0 || t >= numEventTypes {
		panic(fmt.Sprintf("recorder: unknown event type %d", int(t)))
	}

	l := &listener{fn: fn}
	e.mu.Lock()
	e.listeners[t] = append(e.listeners[t], l)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		list := e.listeners[t]
		for i, other := range list {
			if other == l {
				e.listeners[t] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// emit calls listeners outside the lock so they may call back into the recorder
func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	list := append([]*listener(nil), e.listeners[ev.Type]...)
	e.mu.Unlock()

	for _, l := range list {
		l.fn(ev)
	}
}
