// ABOUTME: In-process encoder worker
// ABOUTME: Loads the codec and runs an Encoder on a dedicated goroutine
package encode

import (
	"context"
	"errors"
	"sync"

	"github.com/Sendspin/mp3rec/pkg/codec"
	"github.com/Sendspin/mp3rec/pkg/protocol"
	"go.uber.org/zap"
)

// Worker is a protocol.Worker backed by a goroutine.
// It posts WorkerReady once the codec is loaded, or Error("load_failed").
type Worker struct {
	inbox      *protocol.Mailbox
	dispatcher protocol.Dispatcher
	logger     *zap.Logger
	metrics    Metrics

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewWorker starts a worker that loads its codec with loader
func NewWorker(loader codec.Loader, opts ...Option) *Worker {
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		inbox:   protocol.NewMailbox(),
		logger:  o.logger,
		metrics: o.metrics,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run(ctx, loader, opts)
	return w
}

func (w *Worker) run(ctx context.Context, loader codec.Loader, opts []Option) {
	defer close(w.done)

	c, err := loader.Load(ctx)
	if err != nil {
		w.logger.Error("failed to load codec", zap.Error(err))
		w.inbox.Close()
		w.metrics.Failure(protocol.ReasonLoadFailed)
		w.dispatcher.Dispatch(protocol.ErrorMessage(protocol.ReasonLoadFailed))
		return
	}

	enc := NewEncoder(c, opts...)
	defer func() {
		// Terminate cancels ctx; teardown still needs a live one
		if err := enc.Close(context.Background()); err != nil {
			w.logger.Warn("failed to close codec", zap.Error(err))
		}
	}()

	w.logger.Debug("worker ready")
	w.dispatcher.Dispatch(protocol.WorkerReady())

	for {
		msg, err := w.inbox.Get(ctx)
		if err != nil {
			if !errors.Is(err, protocol.ErrClosed) && !errors.Is(err, context.Canceled) {
				w.logger.Warn("worker inbox failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		if reply, ok := enc.Handle(ctx, msg); ok {
			w.dispatcher.Dispatch(reply)
		}
	}
}

// PostMessage queues msg without blocking
func (w *Worker) PostMessage(msg protocol.Message) error {
	return w.inbox.Put(msg)
}

// SetHandler installs the reply handler
func (w *Worker) SetHandler(handler func(protocol.Message)) {
	w.dispatcher.SetHandler(handler)
}

// Terminate stops the goroutine and releases the codec. Messages still
// queued are discarded. It must not be called from the reply handler.
func (w *Worker) Terminate() error {
	w.once.Do(func() {
		w.inbox.Close()
		w.cancel()
	})
	<-w.done
	return nil
}
