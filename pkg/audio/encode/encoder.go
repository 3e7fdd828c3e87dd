// ABOUTME: Per-session MP3 encoding over the codec
// ABOUTME: Maps worker messages to init/encode/flush/free and normalizes failures
package encode

import (
	"context"
	"errors"
	"time"

	"github.com/Sendspin/mp3rec/pkg/codec"
	"github.com/Sendspin/mp3rec/pkg/protocol"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session outcomes reported to Metrics
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeReplaced  = "replaced"
)

// session is everything scoped to one init..free span.
// Dropping the *session drops the PCM pointer with it.
type session struct {
	id         uuid.UUID
	sampleRate int
	ref        uint32
	pcm        uint32
	started    time.Time
	frames     int
}

// Encoder handles worker messages against a single codec instance.
// It is not safe for concurrent use; a Worker serializes access.
type Encoder struct {
	codec   codec.Codec
	session *session
	logger  *zap.Logger
	metrics Metrics
}

// NewEncoder wraps a loaded codec
func NewEncoder(c codec.Codec, opts ...Option) *Encoder {
	o := buildOptions(opts)
	return &Encoder{
		codec:   c,
		logger:  o.logger,
		metrics: o.metrics,
	}
}

// Active reports whether a session is live
func (e *Encoder) Active() bool {
	return e.session != nil
}

// Handle processes one message and returns the reply, if there is one
func (e *Encoder) Handle(ctx context.Context, msg protocol.Message) (protocol.Message, bool) {
	switch msg.Type {
	case protocol.TypeStartRecording:
		if msg.Config == nil {
			e.logger.Warn("start without config")
			return e.fail(protocol.ReasonInitFailed), true
		}
		return e.start(ctx, msg.Config.SampleRate)
	case protocol.TypeDataAvailable:
		return e.encode(ctx, msg.Data)
	case protocol.TypeStopRecording:
		return e.stop(ctx)
	default:
		e.logger.Warn("ignoring unexpected message", zap.Stringer("message", msg))
		return protocol.Message{}, false
	}
}

func (e *Encoder) start(ctx context.Context, sampleRate int) (protocol.Message, bool) {
	if e.session != nil {
		e.logger.Warn("start during live session, replacing it", zap.Stringer("session", e.session.id))
		e.release(ctx, OutcomeReplaced)
	}

	ref, err := e.codec.Init(ctx, sampleRate)
	if err != nil {
		e.logger.Error("codec init failed", zap.Int("sample_rate", sampleRate), zap.Error(err))
		return e.failFrom(err, protocol.ReasonInitFailed), true
	}
	if ref == 0 {
		e.logger.Error("codec init returned no session", zap.Int("sample_rate", sampleRate))
		return e.fail(protocol.ReasonInitFailed), true
	}

	pcm, err := codec.NewLayout(e.codec.Memory(), ref).PCMInput()
	if err != nil {
		e.logger.Error("failed to resolve pcm input", zap.Uint32("ref", ref), zap.Error(err))
		e.free(ctx, ref)
		return e.fail(protocol.ReasonInitFailed), true
	}

	e.session = &session{
		id:         uuid.New(),
		sampleRate: sampleRate,
		ref:        ref,
		pcm:        pcm,
		started:    time.Now(),
	}
	e.metrics.SessionStarted()
	e.logger.Info("session started",
		zap.Stringer("session", e.session.id),
		zap.Int("sample_rate", sampleRate),
		zap.Uint32("ref", ref))

	return protocol.WorkerRecording(), true
}

func (e *Encoder) encode(ctx context.Context, frame []float32) (protocol.Message, bool) {
	s := e.session
	if s == nil {
		return protocol.Message{}, false
	}

	if err := codec.WriteSamples(e.codec.Memory(), s.pcm, frame); err != nil {
		e.logger.Error("failed to copy frame", zap.Stringer("session", s.id), zap.Int("samples", len(frame)), zap.Error(err))
		e.release(ctx, OutcomeFailed)
		return e.fail(protocol.ReasonEncodingFailed), true
	}

	n, err := e.codec.Encode(ctx, s.ref, len(frame))
	if err != nil || n < 0 {
		e.logger.Error("codec encode failed",
			zap.Stringer("session", s.id),
			zap.Int32("result", n),
			zap.Error(err))
		e.release(ctx, OutcomeFailed)
		return e.failFrom(err, protocol.ReasonEncodingFailed), true
	}

	s.frames++
	e.metrics.FrameEncoded(len(frame))
	return protocol.Message{}, false
}

func (e *Encoder) stop(ctx context.Context) (protocol.Message, bool) {
	s := e.session
	if s == nil {
		e.logger.Warn("stop without live session")
		return protocol.Message{}, false
	}

	n, err := e.codec.Flush(ctx, s.ref)
	if err != nil || n < 0 {
		e.logger.Error("codec flush failed", zap.Stringer("session", s.id), zap.Int32("result", n), zap.Error(err))
		e.release(ctx, OutcomeFailed)
		return e.failFrom(err, protocol.ReasonFlushFailed), true
	}

	blob, err := codec.NewLayout(e.codec.Memory(), s.ref).Output()
	if err != nil {
		e.logger.Error("failed to read output", zap.Stringer("session", s.id), zap.Error(err))
		e.release(ctx, OutcomeFailed)
		return e.fail(protocol.ReasonFlushFailed), true
	}

	e.free(ctx, s.ref)
	e.session = nil

	elapsed := time.Since(s.started)
	e.metrics.SessionFinished(OutcomeCompleted, len(blob), elapsed)
	e.logger.Info("session finished",
		zap.Stringer("session", s.id),
		zap.Int("frames", s.frames),
		zap.Int("bytes", len(blob)),
		zap.Duration("elapsed", elapsed))

	return protocol.BlobReady(blob), true
}

// release frees the live session and forgets it
func (e *Encoder) release(ctx context.Context, outcome string) {
	s := e.session
	e.session = nil
	e.free(ctx, s.ref)
	e.metrics.SessionFinished(outcome, 0, time.Since(s.started))
}

func (e *Encoder) free(ctx context.Context, ref uint32) {
	if err := e.codec.Free(ctx, ref); err != nil {
		e.logger.Warn("codec free failed", zap.Uint32("ref", ref), zap.Error(err))
	}
}

func (e *Encoder) fail(reason string) protocol.Message {
	e.metrics.Failure(reason)
	return protocol.ErrorMessage(reason)
}

// failFrom maps a codec exit to the internal reason
func (e *Encoder) failFrom(err error, reason string) protocol.Message {
	if errors.Is(err, codec.ErrExit) {
		reason = protocol.ReasonInternal
	}
	return e.fail(reason)
}

// Close frees any live session and releases the codec
func (e *Encoder) Close(ctx context.Context) error {
	if e.session != nil {
		e.release(ctx, OutcomeFailed)
	}
	return e.codec.Close(ctx)
}
