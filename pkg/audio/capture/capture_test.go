// ABOUTME: Tests for capture streams
// ABOUTME: Covers tone synthesis, fan-out and sample conversion
package capture

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sendspin/mp3rec/pkg/audio"
	"github.com/Sendspin/mp3rec/pkg/audio/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ graph.Stream = (*ToneStream)(nil)
	_ graph.Stream = (*MicStream)(nil)
)

func TestToneGenerateIsContinuous(t *testing.T) {
	s := NewToneStream(ToneOptions{SampleRate: 8000, Channels: 2, Frequency: 1000, Amplitude: 1})

	first := s.Generate(4)
	second := s.Generate(4)

	require.Equal(t, 2, first.NumberOfChannels())
	assert.Equal(t, first.Channels[0], first.Channels[1])

	// 1 kHz at 8 kHz is 8 samples per cycle
	assert.InDelta(t, 0, first.Channels[0][0], 1e-6)
	assert.InDelta(t, 1, first.Channels[0][2], 1e-6)
	assert.InDelta(t, 0, second.Channels[0][0], 1e-6)
	assert.InDelta(t, -1, second.Channels[0][2], 1e-6)
}

func TestToneDefaults(t *testing.T) {
	s := NewToneStream(ToneOptions{})
	assert.Equal(t, 44100, s.SampleRate())
	assert.Equal(t, 1, s.Channels())

	peak := 0.0
	for _, v := range s.Generate(200).Channels[0] {
		peak = math.Max(peak, math.Abs(float64(v)))
	}
	assert.LessOrEqual(t, peak, DefaultAmplitude+1e-6)
}

func TestHubFanOut(t *testing.T) {
	s := NewToneStream(ToneOptions{SampleRate: 8000})

	var a, b int
	unsubA := s.Subscribe(func(buf audio.Buffer) { a += buf.Length() })
	unsubB := s.Subscribe(func(buf audio.Buffer) { b += buf.Length() })
	assert.Equal(t, 2, s.Subscribers())

	s.Pump(10)
	unsubA()
	unsubA()
	s.Pump(5)
	unsubB()

	assert.Equal(t, 10, a)
	assert.Equal(t, 15, b)
	assert.Zero(t, s.Subscribers())
}

func TestToneStartStop(t *testing.T) {
	s := NewToneStream(ToneOptions{SampleRate: 8000, ChunkFrames: 80})

	var frames atomic.Int64
	s.Subscribe(func(buf audio.Buffer) { frames.Add(int64(buf.Length())) })

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return frames.Load() >= 160 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	stopped := frames.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, frames.Load())
}

func TestDeinterleaveS16(t *testing.T) {
	input := []byte{
		0xff, 0x7f, 0x00, 0x80, // frame 0: max, min
		0x00, 0x00, 0x00, 0x40, // frame 1: 0, half
	}
	buf := deinterleaveS16(input, 2, 2, 48000)

	require.Equal(t, 2, buf.NumberOfChannels())
	assert.Equal(t, 48000, buf.SampleRate)
	assert.InDelta(t, 1, buf.Channels[0][0], 1e-4)
	assert.Equal(t, float32(-1), buf.Channels[1][0])
	assert.Equal(t, float32(0), buf.Channels[0][1])
	assert.InDelta(t, 0.5, buf.Channels[1][1], 1e-4)

	// truncated input yields the whole frames present
	assert.Equal(t, 1, deinterleaveS16(input[:6], 2, 2, 48000).Length())
}
