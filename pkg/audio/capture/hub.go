// ABOUTME: Subscriber fan-out shared by capture streams
// ABOUTME: Publishes buffers to a snapshot of current subscribers
package capture

import (
	"sync"

	"github.com/Sendspin/mp3rec/pkg/audio"
)

type hub struct {
	mu   sync.Mutex
	subs map[uint64]func(audio.Buffer)
	next uint64
}

// Subscribe registers fn until the returned function is called
func (h *hub) Subscribe(fn func(audio.Buffer)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[uint64]func(audio.Buffer))
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
		})
	}
}

// Subscribers returns the number of registered subscribers
func (h *hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// publish runs without the lock held so subscribers may unsubscribe
func (h *hub) publish(buf audio.Buffer) {
	h.mu.Lock()
	subs := make([]func(audio.Buffer), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(buf)
	}
}
