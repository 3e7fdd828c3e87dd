// ABOUTME: Synthetic sine wave stream
// ABOUTME: Generates a tone for demos and tests without a capture device
package capture

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/Sendspin/mp3rec/pkg/audio"
)

const (
	DefaultFrequency   = 440.0 // A4 note
	DefaultAmplitude   = 0.5
	DefaultChunkFrames = 1024
)

// ToneOptions configures a ToneStream
type ToneOptions struct {
	SampleRate  int
	Channels    int
	Frequency   float64
	Amplitude   float64
	ChunkFrames int
}

// ToneStream generates a sine wave on every channel
type ToneStream struct {
	hub
	opts ToneOptions

	mu          sync.Mutex
	sampleIndex uint64
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewToneStream creates a tone stream with defaults filled in
func NewToneStream(opts ToneOptions) *ToneStream {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.Frequency <= 0 {
		opts.Frequency = DefaultFrequency
	}
	if opts.Amplitude <= 0 {
		opts.Amplitude = DefaultAmplitude
	}
	if opts.ChunkFrames <= 0 {
		opts.ChunkFrames = DefaultChunkFrames
	}
	return &ToneStream{opts: opts}
}

func (s *ToneStream) SampleRate() int { return s.opts.SampleRate }
func (s *ToneStream) Channels() int   { return s.opts.Channels }

// Generate returns the next frames of the tone
func (s *ToneStream) Generate(frames int) audio.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()

	mono := make([]float32, frames)
	for i := range mono {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.opts.SampleRate)
		mono[i] = float32(s.opts.Amplitude * math.Sin(2*math.Pi*s.opts.Frequency*t))
	}
	s.sampleIndex += uint64(frames)

	buf := audio.Buffer{SampleRate: s.opts.SampleRate, Channels: make([][]float32, s.opts.Channels)}
	buf.Channels[0] = mono
	for ch := 1; ch < s.opts.Channels; ch++ {
		buf.Channels[ch] = append([]float32(nil), mono...)
	}
	return buf
}

// Pump generates frames and publishes them on the calling goroutine
func (s *ToneStream) Pump(frames int) {
	s.publish(s.Generate(frames))
}

// Start publishes one chunk per chunk duration until Stop or ctx ends
func (s *ToneStream) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return errors.New("tone stream already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	interval := time.Duration(s.opts.ChunkFrames) * time.Second / time.Duration(s.opts.SampleRate)
	go s.run(ctx, interval, s.done)
	return nil
}

func (s *ToneStream) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Pump(s.opts.ChunkFrames)
		}
	}
}

// Stop ends real-time generation
func (s *ToneStream) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
