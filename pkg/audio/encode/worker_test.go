// ABOUTME: Tests for the in-process encoder worker
// ABOUTME: Verifies readiness signalling, ordered replies and termination
package encode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sendspin/mp3rec/pkg/codec"
	"github.com/Sendspin/mp3rec/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaderFor(c codec.Codec) codec.Loader {
	return codec.LoaderFunc(func(context.Context) (codec.Codec, error) {
		return c, nil
	})
}

func collect(w *Worker) <-chan protocol.Message {
	replies := make(chan protocol.Message, 16)
	w.SetHandler(func(msg protocol.Message) {
		replies <- msg
	})
	return replies
}

func next(t *testing.T, replies <-chan protocol.Message) protocol.Message {
	t.Helper()
	select {
	case msg := <-replies:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker reply")
		return protocol.Message{}
	}
}

func TestWorkerRoundTrip(t *testing.T) {
	fc := newFakeCodec()
	w := NewWorker(loaderFor(fc))
	replies := collect(w)

	assert.Equal(t, protocol.TypeWorkerReady, next(t, replies).Type)

	require.NoError(t, w.PostMessage(protocol.StartRecording(protocol.EncodingConfig{SampleRate: 44100})))
	require.NoError(t, w.PostMessage(protocol.DataAvailable([]float32{0.25})))
	require.NoError(t, w.PostMessage(protocol.DataAvailable([]float32{-0.25})))
	require.NoError(t, w.PostMessage(protocol.StopRecording()))

	assert.Equal(t, protocol.TypeWorkerRecording, next(t, replies).Type)
	blob := next(t, replies)
	assert.Equal(t, protocol.TypeBlobReady, blob.Type)
	assert.Equal(t, fc.output, blob.Blob)

	require.NoError(t, w.Terminate())
	assert.Equal(t, [][]float32{{0.25}, {-0.25}}, fc.encoded)
	assert.True(t, fc.closed)
}

func TestWorkerHoldsReadyUntilHandler(t *testing.T) {
	w := NewWorker(loaderFor(newFakeCodec()))
	defer w.Terminate()

	// give the worker time to load and post readiness
	time.Sleep(20 * time.Millisecond)

	replies := collect(w)
	assert.Equal(t, protocol.TypeWorkerReady, next(t, replies).Type)
}

func TestWorkerLoadFailure(t *testing.T) {
	metrics := &fakeMetrics{}
	w := NewWorker(codec.LoaderFunc(func(context.Context) (codec.Codec, error) {
		return nil, errors.New("404")
	}), WithMetrics(metrics))
	replies := collect(w)

	msg := next(t, replies)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, protocol.ReasonLoadFailed, msg.Error)

	// nothing drains the inbox after a failed load
	assert.ErrorIs(t, w.PostMessage(protocol.StartRecording(protocol.EncodingConfig{SampleRate: 44100})), protocol.ErrClosed)

	require.NoError(t, w.Terminate())
	assert.Equal(t, []string{protocol.ReasonLoadFailed}, metrics.failures)
}

func TestWorkerTerminate(t *testing.T) {
	fc := newFakeCodec()
	w := NewWorker(loaderFor(fc))
	replies := collect(w)
	next(t, replies)

	require.NoError(t, w.PostMessage(protocol.StartRecording(protocol.EncodingConfig{SampleRate: 8000})))
	next(t, replies)

	require.NoError(t, w.Terminate())
	require.NoError(t, w.Terminate())

	assert.True(t, fc.closed)
	assert.Equal(t, []uint32{fakeRef}, fc.freed, "live session is freed on terminate")
	assert.ErrorIs(t, w.PostMessage(protocol.StopRecording()), protocol.ErrClosed)
}
