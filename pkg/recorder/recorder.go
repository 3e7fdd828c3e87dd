// ABOUTME: Recorder state machine
// ABOUTME: Drives the audio graph and worker and turns replies into events
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sendspin/mp3rec/pkg/audio"
	"github.com/Sendspin/mp3rec/pkg/audio/graph"
	"github.com/Sendspin/mp3rec/pkg/protocol"
	"go.uber.org/zap"
)

const (
	// DefaultBufferSize is the frame length posted to the worker
	DefaultBufferSize = 4096

	processorInputChannels  = 1
	processorOutputChannels = 1
)

// Options configures a Recorder
type Options struct {
	// Worker runs the encoder. Required.
	Worker protocol.Worker

	// AudioContext is used instead of an internal one. The recorder never
	// closes it, only disconnects its own nodes and resumes it if Pause
	// suspended it.
	AudioContext *graph.Context

	// BufferSize is the processor block size in frames
	BufferSize int

	Logger *zap.Logger
}

// Recorder records a stream to MP3 through an encoder worker
type Recorder struct {
	emitter

	stream     graph.Stream
	worker     protocol.Worker
	logger     *zap.Logger
	bufferSize int
	external   bool

	mu           sync.Mutex
	audioCtx     *graph.Context
	source       *graph.SourceNode
	gain         *graph.GainNode
	processor    *graph.ScriptProcessorNode
	state        State
	startPending bool
	stopPending  bool
	ready        bool
	readyCh      chan error
	suspended    bool // audioCtx suspended by Pause
	closed       bool

	// read on the audio path; true while recording with no stop in flight
	delivering atomic.Bool
}

// New builds the audio graph and waits for the worker to report ready
func New(ctx context.Context, stream graph.Stream, opts Options) (*Recorder, error) {
	if opts.Worker == nil {
		return nil, ErrMissingWorker
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &Recorder{
		stream:     stream,
		worker:     opts.Worker,
		logger:     opts.Logger,
		bufferSize: opts.BufferSize,
		external:   opts.AudioContext != nil,
		audioCtx:   opts.AudioContext,
		readyCh:    make(chan error, 1),
	}

	if err := r.buildGraph(); err != nil {
		return nil, err
	}

	r.worker.SetHandler(r.onWorkerMessage)

	select {
	case err := <-r.readyCh:
		if err != nil {
			r.discardGraph()
			return nil, err
		}
	case <-ctx.Done():
		r.discardGraph()
		return nil, fmt.Errorf("waiting for worker: %w", ctx.Err())
	}

	r.logger.Debug("recorder ready", zap.Int("sample_rate", r.audioCtx.SampleRate()))
	return r, nil
}

// buildGraph wires source -> gain -> processor, creating the context if
// the recorder owns it. Callers hold mu or have exclusive access.
func (r *Recorder) buildGraph() error {
	if !r.external {
		r.audioCtx = graph.NewContext(graph.Options{
			SampleRate: r.stream.SampleRate(),
			Logger:     r.logger,
		})
	}

	source, err := r.audioCtx.CreateMediaStreamSource(r.stream)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	gain := r.audioCtx.CreateGain()
	gain.SetGain(1)

	processor, err := r.audioCtx.CreateScriptProcessor(r.bufferSize, processorInputChannels, processorOutputChannels)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	if err := source.Connect(gain); err != nil {
		return err
	}
	if err := gain.Connect(processor); err != nil {
		return err
	}

	r.source, r.gain, r.processor = source, gain, processor
	return nil
}

func (r *Recorder) discardGraph() {
	if r.external {
		r.source.Release()
		r.gain.Disconnect()
		return
	}
	_ = r.audioCtx.Close(context.Background())
}

// State returns the lifecycle state
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// MimeType returns the output MIME type
func (r *Recorder) MimeType() string {
	return MimeType
}

// Stream returns the recorded stream
func (r *Recorder) Stream() graph.Stream {
	return r.stream
}

// AudioContext returns the context currently driving the graph
func (r *Recorder) AudioContext() *graph.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.audioCtx
}

// On registers fn for events of type t and returns a function removing it.
// It panics on an unknown event type.
func (r *Recorder) On(t EventType, fn func(Event)) (remove func()) {
	return r.on(t, fn)
}

// RequestData is accepted for API compatibility. Data is only delivered
// once, when the encoder finishes.
func (r *Recorder) RequestData() {}

// Start begins a session. The recorder reports recording once the worker
// acknowledges.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.state != StateInactive || r.startPending {
		return &InvalidStateError{Op: "start", State: r.state}
	}

	if r.audioCtx.State() == audio.ContextClosed {
		if r.external {
			return fmt.Errorf("start: %w", graph.ErrClosed)
		}
		if err := r.buildGraph(); err != nil {
			return err
		}
	}
	if r.audioCtx.State() == audio.ContextSuspended {
		if err := r.audioCtx.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume audio context: %w", err)
		}
	}
	r.suspended = false

	r.processor.SetOnAudioProcess(r.onAudioProcess)
	if err := r.processor.Connect(r.audioCtx.Destination()); err != nil {
		return err
	}

	cfg := protocol.EncodingConfig{SampleRate: r.audioCtx.SampleRate()}
	if err := r.worker.PostMessage(protocol.StartRecording(cfg)); err != nil {
		r.processor.Disconnect()
		r.processor.SetOnAudioProcess(nil)
		return fmt.Errorf("failed to post start: %w", err)
	}

	r.startPending = true
	r.logger.Debug("start requested", zap.Int("sample_rate", cfg.SampleRate))
	return nil
}

// Pause stops frame delivery and suspends the audio context
func (r *Recorder) Pause(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateRecording || r.stopPending {
		state := r.state
		r.mu.Unlock()
		return &InvalidStateError{Op: "pause", State: state}
	}

	r.delivering.Store(false)
	r.processor.Disconnect()
	if err := r.audioCtx.Suspend(ctx); err != nil {
		_ = r.processor.Connect(r.audioCtx.Destination())
		r.delivering.Store(true)
		r.mu.Unlock()
		return fmt.Errorf("failed to suspend audio context: %w", err)
	}
	r.state = StatePaused
	r.suspended = true
	r.mu.Unlock()

	r.emit(Event{Type: EventPause})
	return nil
}

// Resume restarts the audio context and frame delivery
func (r *Recorder) Resume(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StatePaused || r.stopPending {
		state := r.state
		r.mu.Unlock()
		return &InvalidStateError{Op: "resume", State: state}
	}

	if err := r.audioCtx.Resume(ctx); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to resume audio context: %w", err)
	}
	if err := r.processor.Connect(r.audioCtx.Destination()); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = StateRecording
	r.suspended = false
	r.delivering.Store(true)
	r.mu.Unlock()

	r.emit(Event{Type: EventResume})
	return nil
}

// Stop ends the session. The recorder reports inactive once the encoded
// data, or an error, arrives.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateInactive || r.stopPending {
		return &InvalidStateError{Op: "stop", State: r.state}
	}

	r.delivering.Store(false)
	r.stopPending = true
	r.teardown(ctx)

	if err := r.worker.PostMessage(protocol.StopRecording()); err != nil {
		r.stopPending = false
		r.state = StateInactive
		return fmt.Errorf("failed to post stop: %w", err)
	}

	r.logger.Debug("stop requested")
	return nil
}

// teardown detaches the processor and closes an owned context. An external
// context the recorder suspended is resumed. mu is held.
func (r *Recorder) teardown(ctx context.Context) {
	r.processor.Disconnect()
	r.processor.SetOnAudioProcess(nil)

	suspended := r.suspended
	r.suspended = false
	if r.external {
		if suspended && r.audioCtx.State() == audio.ContextSuspended {
			if err := r.audioCtx.Resume(ctx); err != nil {
				r.logger.Warn("failed to resume audio context", zap.Error(err))
			}
		}
		return
	}
	if r.audioCtx.State() == audio.ContextClosed {
		return
	}
	if err := r.audioCtx.Close(ctx); err != nil && !errors.Is(err, graph.ErrClosed) {
		r.logger.Warn("failed to close audio context", zap.Error(err))
	}
}

// Close tears down the graph and terminates the worker.
// It must not be called from an event listener.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.delivering.Store(false)
	r.teardown(ctx)
	if r.external {
		r.source.Release()
		r.gain.Disconnect()
	}
	r.state = StateInactive
	r.startPending, r.stopPending = false, false
	r.mu.Unlock()

	return r.worker.Terminate()
}

func (r *Recorder) onAudioProcess(e graph.ProcessEvent) {
	if !r.delivering.Load() {
		return
	}
	if err := r.worker.PostMessage(protocol.DataAvailable(audio.Downmix(e.InputBuffer))); err != nil {
		r.logger.Debug("dropping frame", zap.Error(err))
	}
}

func (r *Recorder) onWorkerMessage(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeWorkerReady:
		r.onReady(nil)

	case protocol.TypeWorkerRecording:
		r.mu.Lock()
		if !r.startPending {
			r.mu.Unlock()
			r.logger.Warn("unexpected recording acknowledgement")
			return
		}
		r.startPending = false
		r.state = StateRecording
		r.delivering.Store(!r.stopPending)
		r.mu.Unlock()

		r.logger.Info("recording started")
		r.emit(Event{Type: EventStart})

	case protocol.TypeBlobReady:
		r.mu.Lock()
		if !r.stopPending {
			r.mu.Unlock()
			r.logger.Warn("unexpected encoded data")
			return
		}
		r.stopPending = false
		r.state = StateInactive
		r.mu.Unlock()

		r.logger.Info("recording finished", zap.Int("bytes", len(msg.Blob)))
		r.emit(Event{
			Type:     EventDataAvailable,
			Data:     msg.Blob,
			MimeType: MimeType,
			Timecode: time.Now(),
		})
		r.emit(Event{Type: EventStop})

	case protocol.TypeError:
		if r.onReady(&EncoderError{Reason: msg.Error}) {
			return
		}

		r.mu.Lock()
		r.delivering.Store(false)
		r.startPending, r.stopPending = false, false
		r.state = StateInactive
		if !r.closed {
			r.teardown(context.Background())
		}
		r.mu.Unlock()

		r.logger.Error("encoder failed", zap.String("reason", msg.Error))
		r.emit(Event{Type: EventError, Err: &EncoderError{Reason: msg.Error}})

	default:
		r.logger.Warn("ignoring worker message", zap.Stringer("message", msg))
	}
}

// onReady resolves construction. It reports whether err was consumed.
func (r *Recorder) onReady(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ready {
		return false
	}
	if err == nil {
		r.ready = true
	}
	select {
	case r.readyCh <- err:
	default:
	}
	return true
}
