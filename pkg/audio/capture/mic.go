// ABOUTME: Microphone capture stream via malgo
// ABOUTME: Converts interleaved 16-bit device frames into planar float buffers
package capture

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Sendspin/mp3rec/pkg/audio"
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// MicOptions configures a MicStream
type MicOptions struct {
	SampleRate int
	Channels   int
	Logger     *zap.Logger
}

// MicStream captures the default input device
type MicStream struct {
	hub
	sampleRate int
	channels   int
	logger     *zap.Logger

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
}

// NewMicStream prepares a capture stream; call Start to open the device
func NewMicStream(opts MicOptions) *MicStream {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 44100
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &MicStream{
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		logger:     opts.Logger,
	}
}

func (m *MicStream) SampleRate() int { return m.sampleRate }
func (m *MicStream) Channels() int   { return m.channels }

// Start opens and starts the capture device
func (m *MicStream) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}

	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.channels)
	deviceConfig.SampleRate = uint32(m.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			m.publish(deinterleaveS16(input, int(frameCount), m.channels, m.sampleRate))
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	m.device = device

	m.logger.Info("microphone capture started",
		zap.Int("sample_rate", m.sampleRate),
		zap.Int("channels", m.channels))
	return nil
}

// Stop closes the device and releases the malgo context
func (m *MicStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.logger.Warn("failed to stop capture device", zap.Error(err))
		}
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoCtx != nil {
		_ = m.malgoCtx.Uninit()
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

func deinterleaveS16(input []byte, frames, channels, sampleRate int) audio.Buffer {
	if avail := len(input) / (2 * channels); frames > avail {
		frames = avail
	}

	buf := audio.Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for ch := range buf.Channels {
		buf.Channels[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			buf.Channels[ch][i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(input[off:])))
		}
	}
	return buf
}
