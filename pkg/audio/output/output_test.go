// ABOUTME: Tests for playback helpers
// ABOUTME: Verifies volume scaling and chunked MP3 playback into a fake output
package output

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Output = (*Oto)(nil)

type fakeOutput struct {
	rate, channels int
	written        int
	writes         int
}

func (f *fakeOutput) Open(rate, channels int) error {
	f.rate, f.channels = rate, channels
	return nil
}

func (f *fakeOutput) Write(samples []int16) error {
	f.written += len(samples)
	f.writes++
	return nil
}

func (f *fakeOutput) Close() error { return nil }

func silentFrames(n int) []byte {
	const frameSize = 417
	out := make([]byte, 0, n*frameSize)
	for i := 0; i < n; i++ {
		frame := make([]byte, frameSize)
		copy(frame, []byte{0xff, 0xfb, 0x90, 0x64})
		out = append(out, frame...)
	}
	return out
}

func TestApplyVolume(t *testing.T) {
	in := []int16{1000, -1000, 32767}

	assert.Equal(t, in, applyVolume(in, 100, false))
	assert.Equal(t, []int16{500, -500, 16383}, applyVolume(in, 50, false))
	assert.Equal(t, []int16{0, 0, 0}, applyVolume(in, 100, true))
}

func TestOtoVolumeBounds(t *testing.T) {
	o := NewOto(nil)
	o.SetVolume(150)
	assert.Equal(t, 100, o.Volume())
	o.SetVolume(-3)
	assert.Equal(t, 0, o.Volume())

	assert.Error(t, o.Write([]int16{1}), "write before open")
}

func TestPlayMP3(t *testing.T) {
	out := &fakeOutput{}
	require.NoError(t, PlayMP3(context.Background(), out, silentFrames(4)))

	assert.Equal(t, 44100, out.rate)
	assert.Equal(t, 2, out.channels)
	assert.Positive(t, out.written)
	assert.Greater(t, out.writes, 1)
}

func TestPlayMP3Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := &fakeOutput{}
	assert.ErrorIs(t, PlayMP3(ctx, out, silentFrames(4)), context.Canceled)
	assert.Zero(t, out.written)

	assert.Error(t, PlayMP3(context.Background(), out, []byte("nope")))
}
