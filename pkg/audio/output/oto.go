// ABOUTME: Oto-based audio output implementation
// ABOUTME: Handles PCM playback with software volume control using oto library
package output

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Oto output implementation using oto library
type Oto struct {
	logger     *zap.Logger
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     int
	muted      bool
	ready      bool
}

// NewOto creates a new Oto output
func NewOto(logger *zap.Logger) *Oto {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oto{
		logger: logger,
		volume: 100,
	}
}

// Open initializes the output device. oto allows one context per process,
// so after the first Open the device format is fixed.
func (o *Oto) Open(sampleRate, channels int) error {
	if o.otoCtx != nil {
		if sampleRate != o.sampleRate || channels != o.channels {
			return fmt.Errorf("oto already opened at %dHz %dch, cannot switch to %dHz %dch",
				o.sampleRate, o.channels, sampleRate, channels)
		}
		if o.ready {
			return nil
		}
		if err := o.otoCtx.Resume(); err != nil {
			return fmt.Errorf("failed to resume oto context: %w", err)
		}
		o.startPlayer()
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels
	o.startPlayer()

	o.logger.Info("audio output initialized", zap.Int("sample_rate", sampleRate), zap.Int("channels", channels))
	return nil
}

// startPlayer creates the persistent player fed through a pipe
func (o *Oto) startPlayer() {
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()
	o.ready = true
}

// Write outputs audio samples (blocks until written)
func (o *Oto) Write(samples []int16) error {
	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	scaled := applyVolume(samples, o.volume, o.muted)
	buf := make([]byte, len(scaled)*2)
	for i, s := range scaled {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	if _, err := o.pipeWriter.Write(buf); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
	if o.pipeReader != nil {
		o.pipeReader.Close()
		o.pipeReader = nil
	}
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			o.logger.Warn("failed to suspend oto context", zap.Error(err))
		}
	}
	o.ready = false
	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.muted = muted
}

// Volume returns current volume
func (o *Oto) Volume() int {
	return o.volume
}

// applyVolume applies volume and mute to samples with clipping protection
func applyVolume(samples []int16, volume int, muted bool) []int16 {
	multiplier := float64(volume) / 100.0
	if muted {
		multiplier = 0
	}
	if multiplier == 1 {
		return samples
	}

	result := make([]int16, len(samples))
	for i, sample := range samples {
		scaled := float64(sample) * multiplier
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		result[i] = int16(scaled)
	}
	return result
}
