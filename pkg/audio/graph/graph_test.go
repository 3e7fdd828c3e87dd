// ABOUTME: Tests for the audio graph
// ABOUTME: Covers block batching, gain, state gating and teardown
package graph

import (
	"context"
	"sync"
	"testing"

	"github.com/Sendspin/mp3rec/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// manualStream delivers buffers only when Push is called
type manualStream struct {
	mu       sync.Mutex
	rate     int
	channels int
	subs     map[int]func(audio.Buffer)
	next     int
}

func newManualStream(rate, channels int) *manualStream {
	return &manualStream{rate: rate, channels: channels, subs: make(map[int]func(audio.Buffer))}
}

func (s *manualStream) SampleRate() int { return s.rate }
func (s *manualStream) Channels() int   { return s.channels }

func (s *manualStream) Subscribe(fn func(audio.Buffer)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *manualStream) subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *manualStream) Push(values ...float32) {
	buf := audio.Buffer{SampleRate: s.rate, Channels: make([][]float32, s.channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = append([]float32(nil), values...)
	}

	s.mu.Lock()
	subs := make([]func(audio.Buffer), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(buf)
	}
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) / float32(n)
	}
	return out
}

type chain struct {
	ctx    *Context
	stream *manualStream
	src    *SourceNode
	gain   *GainNode
	proc   *ScriptProcessorNode
	blocks [][]float32
}

func newChain(t *testing.T, channels, bufferSize int) *chain {
	t.Helper()
	c := &chain{
		ctx:    NewContext(Options{SampleRate: 8000}),
		stream: newManualStream(8000, channels),
	}

	src, err := c.ctx.CreateMediaStreamSource(c.stream)
	require.NoError(t, err)
	c.src = src
	c.gain = c.ctx.CreateGain()
	c.proc, err = c.ctx.CreateScriptProcessor(bufferSize, 1, 1)
	require.NoError(t, err)

	require.NoError(t, src.Connect(c.gain))
	require.NoError(t, c.gain.Connect(c.proc))
	c.proc.SetOnAudioProcess(func(e ProcessEvent) {
		c.blocks = append(c.blocks, e.InputBuffer.Channels[0])
	})
	require.NoError(t, c.proc.Connect(c.ctx.Destination()))
	return c
}

func TestProcessorBatchesBlocks(t *testing.T) {
	c := newChain(t, 1, 256)

	input := ramp(600)
	c.stream.Push(input[:100]...)
	assert.Empty(t, c.blocks)
	c.stream.Push(input[100:]...)

	require.Len(t, c.blocks, 2)
	assert.Equal(t, input[:256], c.blocks[0])
	assert.Equal(t, input[256:512], c.blocks[1])
}

func TestProcessorDownmixesBySummation(t *testing.T) {
	c := newChain(t, 2, 256)

	c.stream.Push(make([]float32, 256)...)
	c.stream.Push(append(make([]float32, 255), 0.75)...)

	require.Len(t, c.blocks, 2)
	assert.Equal(t, float32(0), c.blocks[0][0])
	assert.Equal(t, float32(1), c.blocks[1][255], "0.75+0.75 clamps to 1")
}

func TestGainScales(t *testing.T) {
	c := newChain(t, 1, 256)
	assert.Equal(t, float32(1), c.gain.Gain())

	c.gain.SetGain(0.5)
	c.stream.Push(append(make([]float32, 255), 0.5)...)

	require.Len(t, c.blocks, 1)
	assert.Equal(t, float32(0.25), c.blocks[0][255])
}

func TestProcessorNeedsOutputConnection(t *testing.T) {
	c := newChain(t, 1, 256)
	c.proc.Disconnect()

	c.stream.Push(ramp(512)...)
	assert.Empty(t, c.blocks)

	// reconnecting starts from a fresh block
	require.NoError(t, c.proc.Connect(c.ctx.Destination()))
	c.stream.Push(ramp(256)...)
	require.Len(t, c.blocks, 1)
}

func TestSuspendedContextDropsInput(t *testing.T) {
	ctx := context.Background()
	c := newChain(t, 1, 256)

	require.NoError(t, c.ctx.Suspend(ctx))
	assert.Equal(t, audio.ContextSuspended, c.ctx.State())
	c.stream.Push(ramp(512)...)
	assert.Empty(t, c.blocks)

	require.NoError(t, c.ctx.Resume(ctx))
	assert.Equal(t, audio.ContextRunning, c.ctx.State())
	c.stream.Push(ramp(256)...)
	assert.Len(t, c.blocks, 1)
}

func TestCloseDetachesStreams(t *testing.T) {
	ctx := context.Background()
	c := newChain(t, 1, 256)
	assert.Equal(t, 1, c.stream.subscribers())

	require.NoError(t, c.ctx.Close(ctx))
	assert.Equal(t, audio.ContextClosed, c.ctx.State())
	assert.Zero(t, c.stream.subscribers())

	assert.ErrorIs(t, c.ctx.Close(ctx), ErrClosed)
	assert.ErrorIs(t, c.ctx.Suspend(ctx), ErrClosed)
	assert.ErrorIs(t, c.ctx.Resume(ctx), ErrClosed)

	_, err := c.ctx.CreateMediaStreamSource(c.stream)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReleaseDetachesOneSource(t *testing.T) {
	ctx := context.Background()
	c := newChain(t, 1, 256)

	other, err := c.ctx.CreateMediaStreamSource(c.stream)
	require.NoError(t, err)
	require.NoError(t, other.Connect(c.gain))
	assert.Equal(t, 2, c.stream.subscribers())

	c.src.Release()
	c.src.Release()
	assert.Equal(t, 1, c.stream.subscribers())
	assert.Equal(t, audio.ContextRunning, c.ctx.State())

	c.stream.Push(ramp(256)...)
	assert.Len(t, c.blocks, 1, "the remaining source still renders")

	require.NoError(t, c.ctx.Close(ctx))
	assert.Zero(t, c.stream.subscribers())
}

func TestCurrentTimeTracksRenderedFrames(t *testing.T) {
	c := newChain(t, 1, 256)
	c.stream.Push(make([]float32, 4000)...)
	assert.Equal(t, "500ms", c.ctx.CurrentTime().String())
}

func TestSuspendHonorsContext(t *testing.T) {
	c := NewContext(Options{})
	assert.Equal(t, DefaultSampleRate, c.SampleRate())

	c.sem <- struct{}{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Suspend(ctx), context.Canceled)
	<-c.sem
}

func TestConstructionErrors(t *testing.T) {
	c := NewContext(Options{SampleRate: 8000})

	_, err := c.CreateMediaStreamSource(newManualStream(44100, 1))
	assert.ErrorIs(t, err, ErrSampleRateMismatch)

	for _, size := range []int{100, 128, 32768, 3000} {
		_, err := c.CreateScriptProcessor(size, 1, 1)
		assert.Error(t, err, "buffer size %d", size)
	}
	_, err = c.CreateScriptProcessor(4096, 0, 1)
	assert.Error(t, err)
	_, err = c.CreateScriptProcessor(4096, 1, 33)
	assert.Error(t, err)

	proc, err := c.CreateScriptProcessor(0, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, DefaultBufferSize, proc.BufferSize())

	other := NewContext(Options{SampleRate: 8000})
	assert.ErrorIs(t, proc.Connect(other.Destination()), ErrCrossContext)
	assert.ErrorIs(t, c.Destination().Connect(proc), ErrNoOutput)
}
