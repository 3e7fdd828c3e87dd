// ABOUTME: Worker channel abstraction shared by recorder and encoder
// ABOUTME: Defines the Worker interface, an unbounded Mailbox and a Dispatcher
package protocol

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned when posting to or reading from a closed channel
var ErrClosed = errors.New("protocol: channel closed")

// Worker is the recorder's handle on an encoder execution context.
//
// PostMessage must never block: it is called from the audio callback.
// Replies are delivered in order to the handler installed with SetHandler;
// replies that arrive before a handler is installed are held until one is.
type Worker interface {
	// PostMessage queues a message for the encoder
	PostMessage(msg Message) error

	// SetHandler installs the reply handler, replacing any previous one
	SetHandler(handler func(Message))

	// Terminate tears down the execution context
	Terminate() error
}

// Mailbox is an unbounded FIFO with a single consumer.
// Put never blocks, so producers on real-time paths are never stalled.
type Mailbox struct {
	mu     sync.Mutex
	queue  []Message
	closed bool
	signal chan struct{}
	done   chan struct{}
}

// NewMailbox creates an empty mailbox
func NewMailbox() *Mailbox {
	return &Mailbox{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Put appends a message
func (m *Mailbox) Put(msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return nil
}

// Get removes the oldest message, waiting until one is available.
// Messages queued before Close are still returned; after that ErrClosed.
func (m *Mailbox) Get(ctx context.Context) (Message, error) {
	for {
		m.mu.Lock()
		if len(m.queue) > 0 {
			msg := m.queue[0]
			m.queue[0] = Message{}
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return msg, nil
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return Message{}, ErrClosed
		}

		select {
		case <-m.signal:
		case <-m.done:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// Len returns the number of queued messages
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close stops accepting messages. It is safe to call more than once.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}

// Dispatcher delivers replies to a replaceable handler in arrival order.
// Handler calls are serialized; a handler must not call SetHandler.
type Dispatcher struct {
	mu      sync.Mutex
	handler func(Message)
	pending []Message
}

// SetHandler installs handler and flushes any held messages to it
func (d *Dispatcher) SetHandler(handler func(Message)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handler = handler
	if handler == nil {
		return
	}
	for len(d.pending) > 0 {
		msg := d.pending[0]
		d.pending = d.pending[1:]
		handler(msg)
	}
}

// Dispatch delivers msg, or holds it until a handler is installed
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handler == nil {
		d.pending = append(d.pending, msg)
		return
	}
	d.handler(msg)
}
