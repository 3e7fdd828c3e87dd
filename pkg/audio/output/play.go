// ABOUTME: MP3 playback through an Output
// ABOUTME: Decodes a finished recording and streams it in chunks
package output

import (
	"context"
	"fmt"

	"github.com/Sendspin/mp3rec/pkg/audio/decode"
)

// playChunk is the number of interleaved samples written at a time
const playChunk = 4096

// PlayMP3 decodes data and writes it to out, stopping early when ctx ends.
// The output is opened but not closed.
func PlayMP3(ctx context.Context, out Output, data []byte) error {
	pcm, err := decode.Decode(data)
	if err != nil {
		return err
	}

	if err := out.Open(pcm.SampleRate, pcm.Channels); err != nil {
		return fmt.Errorf("failed to open output: %w", err)
	}

	for off := 0; off < len(pcm.Samples); off += playChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+playChunk, len(pcm.Samples))
		if err := out.Write(pcm.Samples[off:end]); err != nil {
			return err
		}
	}
	return nil
}
