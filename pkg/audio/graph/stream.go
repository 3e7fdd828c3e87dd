// ABOUTME: Stream interface consumed by source nodes
// ABOUTME: A live audio producer that fans buffers out to subscribers
package graph

import "github.com/Sendspin/mp3rec/pkg/audio"

// Stream is a live audio producer, typically a capture device.
// Subscribers are called on the producer's goroutine and must not block.
type Stream interface {
	SampleRate() int
	Channels() int

	// Subscribe registers fn for every captured buffer until unsubscribe is called
	Subscribe(fn func(audio.Buffer)) (unsubscribe func())
}
