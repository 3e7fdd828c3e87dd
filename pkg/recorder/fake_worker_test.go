// ABOUTME: Scriptable worker double for recorder tests
// ABOUTME: Records posted messages and replies asynchronously in order
package recorder

import (
	"context"
	"sync"

	"github.com/Sendspin/mp3rec/pkg/protocol"
)

type fakeWorker struct {
	dispatcher protocol.Dispatcher
	replies    *protocol.Mailbox
	done       chan struct{}

	mu         sync.Mutex
	posted     []protocol.Message
	ack        bool
	initFails  bool
	flushFails bool
	blob       []byte
	terminated bool
}

// newFakeWorker posts ready immediately and, with ack set, answers start
// and stop the way an encoder would
func newFakeWorker(ack bool) *fakeWorker {
	w := &fakeWorker{
		replies: protocol.NewMailbox(),
		done:    make(chan struct{}),
		ack:     ack,
		blob:    []byte{0xff, 0xfb, 0x90, 0x00},
	}
	go w.run()
	w.reply(protocol.WorkerReady())
	return w
}

func (w *fakeWorker) run() {
	defer close(w.done)
	for {
		msg, err := w.replies.Get(context.Background())
		if err != nil {
			return
		}
		w.dispatcher.Dispatch(msg)
	}
}

func (w *fakeWorker) reply(msg protocol.Message) {
	_ = w.replies.Put(msg)
}

func (w *fakeWorker) PostMessage(msg protocol.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminated {
		return protocol.ErrClosed
	}
	w.posted = append(w.posted, msg)

	if !w.ack {
		return nil
	}
	switch msg.Type {
	case protocol.TypeStartRecording:
		if w.initFails {
			w.reply(protocol.ErrorMessage(protocol.ReasonInitFailed))
		} else {
			w.reply(protocol.WorkerRecording())
		}
	case protocol.TypeStopRecording:
		if w.flushFails {
			w.reply(protocol.ErrorMessage(protocol.ReasonFlushFailed))
		} else {
			w.reply(protocol.BlobReady(w.blob))
		}
	}
	return nil
}

func (w *fakeWorker) SetHandler(handler func(protocol.Message)) {
	w.dispatcher.SetHandler(handler)
}

func (w *fakeWorker) Terminate() error {
	w.mu.Lock()
	w.terminated = true
	w.mu.Unlock()
	w.replies.Close()
	<-w.done
	return nil
}

func (w *fakeWorker) types() []protocol.MessageType {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]protocol.MessageType, len(w.posted))
	for i, m := range w.posted {
		out[i] = m.Type
	}
	return out
}

func (w *fakeWorker) frames() [][]float32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out [][]float32
	for _, m := range w.posted {
		if m.Type == protocol.TypeDataAvailable {
			out = append(out, m.Data)
		}
	}
	return out
}
