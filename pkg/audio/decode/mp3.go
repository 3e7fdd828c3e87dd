// ABOUTME: MP3 probing and decoding
// ABOUTME: Wraps go-mp3 for whole-buffer inspection of recorder output
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to 16-bit little-endian stereo
const (
	Channels       = 2
	bytesPerSample = 2
	bytesPerFrame  = Channels * bytesPerSample
)

// ErrEmpty is returned for empty input
var ErrEmpty = errors.New("decode: empty mp3 data")

// Info describes an MP3 stream
type Info struct {
	SampleRate int
	Channels   int
	Frames     int64 // PCM frames per channel
	Duration   time.Duration
	Size       int
}

// PCM is decoded interleaved audio
type PCM struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

func newDecoder(data []byte) (*mp3.Decoder, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}
	return d, nil
}

// Probe reads stream parameters
func Probe(data []byte) (Info, error) {
	d, err := newDecoder(data)
	if err != nil {
		return Info{}, err
	}

	frames := d.Length() / bytesPerFrame
	return Info{
		SampleRate: d.SampleRate(),
		Channels:   Channels,
		Frames:     frames,
		Duration:   time.Duration(frames) * time.Second / time.Duration(d.SampleRate()),
		Size:       len(data),
	}, nil
}

// Decode decodes the whole stream
func Decode(data []byte) (PCM, error) {
	d, err := newDecoder(data)
	if err != nil {
		return PCM{}, err
	}

	raw, err := io.ReadAll(d)
	if err != nil {
		return PCM{}, fmt.Errorf("mp3 decode error: %w", err)
	}

	samples := make([]int16, len(raw)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*bytesPerSample:]))
	}

	return PCM{
		SampleRate: d.SampleRate(),
		Channels:   Channels,
		Samples:    samples,
	}, nil
}
