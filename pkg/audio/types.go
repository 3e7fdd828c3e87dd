// ABOUTME: Audio type definitions
// ABOUTME: Defines planar PCM buffers, context states and sample conversions
package audio

const (
	// Normalized float sample range
	MaxSample = 1.0
	MinSample = -1.0

	// 16-bit integer range used by capture devices and MP3 decoders
	MaxInt16 = 32767
	MinInt16 = -32768
)

// Buffer is one processing quantum of planar PCM audio
type Buffer struct {
	SampleRate int
	Channels   [][]float32 // one slice per channel, all the same length
}

// Length returns the number of sample frames in the buffer
func (b Buffer) Length() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// NumberOfChannels returns the channel count
func (b Buffer) NumberOfChannels() int {
	return len(b.Channels)
}

// ContextState is the lifecycle state of an audio context
type ContextState int

const (
	ContextRunning ContextState = iota
	ContextSuspended
	ContextClosed
)

// String returns the Web Audio style name of the state
func (s ContextState) String() string {
	switch s {
	case ContextRunning:
		return "running"
	case ContextSuspended:
		return "suspended"
	case ContextClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Downmix collapses a planar buffer to one channel.
// Channels are summed sample by sample and the sum is clamped to the
// normalized range. The result never aliases the input.
func Downmix(b Buffer) []float32 {
	n := b.Length()
	mono := make([]float32, n)
	if n == 0 {
		return mono
	}

	if len(b.Channels) == 1 {
		copy(mono, b.Channels[0])
		return mono
	}

	for i := 0; i < n; i++ {
		var sum float64
		for _, ch := range b.Channels {
			if i < len(ch) {
				sum += float64(ch[i])
			}
		}
		mono[i] = ClampSample(sum)
	}
	return mono
}

// ClampSample clamps a sample to the normalized float range
func ClampSample(v float64) float32 {
	if v > MaxSample {
		return MaxSample
	}
	if v < MinSample {
		return MinSample
	}
	return float32(v)
}

// SampleToInt16 converts a normalized float sample to int16 with clipping
func SampleToInt16(sample float32) int16 {
	scaled := float64(ClampSample(float64(sample))) * MaxInt16
	if scaled < MinInt16 {
		scaled = MinInt16
	}
	return int16(scaled)
}

// SampleFromInt16 converts an int16 sample to the normalized float range
func SampleFromInt16(sample int16) float32 {
	if sample == MinInt16 {
		return MinSample
	}
	return float32(sample) / MaxInt16
}
