// ABOUTME: Codec interface definition
// ABOUTME: The four codec entry points plus the linear memory they share
package codec

import (
	"context"
	"errors"
)

var (
	// ErrExit is returned once the codec has called its exit import
	ErrExit = errors.New("codec: exit called")

	// ErrOutOfBounds is returned for memory accesses outside linear memory
	ErrOutOfBounds = errors.New("codec: memory access out of bounds")

	// ErrMissingExport is returned when a module lacks a required entry point
	ErrMissingExport = errors.New("codec: missing export")
)

// Memory is the subset of a linear memory the encoder needs.
// wazero's api.Memory satisfies it directly.
type Memory interface {
	// Size returns the size in bytes
	Size() uint32

	// Read returns a view of byteCount bytes at offset
	Read(offset, byteCount uint32) ([]byte, bool)

	// ReadUint32Le reads a little-endian word at offset
	ReadUint32Le(offset uint32) (uint32, bool)

	// Write copies v to offset
	Write(offset uint32, v []byte) bool
}

// Codec is a loaded MP3 codec.
// Implementations are not safe for concurrent use.
type Codec interface {
	// Init opens a session and returns its handle; zero means failure
	Init(ctx context.Context, sampleRate int) (uint32, error)

	// Encode consumes length samples from the session's PCM input region.
	// A negative result is a codec failure.
	Encode(ctx context.Context, ref uint32, length int) (int32, error)

	// Flush finalizes the stream. A negative result is a codec failure.
	Flush(ctx context.Context, ref uint32) (int32, error)

	// Free releases the codec's session bookkeeping
	Free(ctx context.Context, ref uint32) error

	// Memory returns the linear memory shared with the codec
	Memory() Memory

	// Close releases the module instance
	Close(ctx context.Context) error
}

// Loader produces a ready Codec
type Loader interface {
	Load(ctx context.Context) (Codec, error)
}

// LoaderFunc adapts a function to Loader
type LoaderFunc func(ctx context.Context) (Codec, error)

// Load calls f
func (f LoaderFunc) Load(ctx context.Context) (Codec, error) {
	return f(ctx)
}
