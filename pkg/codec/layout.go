// ABOUTME: Session header layout shared with the codec
// ABOUTME: Isolates all pointer arithmetic relative to a session handle
package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Session header words, relative to the handle returned by init
const (
	PCMInputOffset      = 0 // pointer to the float32 PCM input region
	OutputPointerOffset = 4 // pointer to the encoded bytes (valid after flush)
	OutputLengthOffset  = 8 // number of encoded bytes (valid after flush)
)

// Layout reads a session header. It is the only code that knows the
// offsets; everything else goes through its methods.
type Layout struct {
	mem Memory
	ref uint32
}

// NewLayout binds a layout to a session handle
func NewLayout(mem Memory, ref uint32) Layout {
	return Layout{mem: mem, ref: ref}
}

func (l Layout) word(offset uint32) (uint32, error) {
	addr := uint64(l.ref) + uint64(offset)
	if addr > math.MaxUint32 {
		return 0, fmt.Errorf("%w: header word at %#x+%d", ErrOutOfBounds, l.ref, offset)
	}
	v, ok := l.mem.ReadUint32Le(uint32(addr))
	if !ok {
		return 0, fmt.Errorf("%w: header word at %#x+%d", ErrOutOfBounds, l.ref, offset)
	}
	return v, nil
}

// PCMInput returns the address the codec reads the next frame from
func (l Layout) PCMInput() (uint32, error) {
	return l.word(PCMInputOffset)
}

// Output copies the encoded bytes out of linear memory
func (l Layout) Output() ([]byte, error) {
	ptr, err := l.word(OutputPointerOffset)
	if err != nil {
		return nil, err
	}
	size, err := l.word(OutputLengthOffset)
	if err != nil {
		return nil, err
	}

	view, ok := l.mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("%w: output %d bytes at %#x", ErrOutOfBounds, size, ptr)
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// WriteSamples stores samples as little-endian float32 at ptr
func WriteSamples(mem Memory, ptr uint32, samples []float32) error {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	if !mem.Write(ptr, buf) {
		return fmt.Errorf("%w: %d samples at %#x", ErrOutOfBounds, len(samples), ptr)
	}
	return nil
}

// SliceMemory is a Memory over a plain byte slice
type SliceMemory []byte

// NewSliceMemory allocates size zeroed bytes
func NewSliceMemory(size uint32) SliceMemory {
	return make(SliceMemory, size)
}

func (m SliceMemory) inRange(offset, byteCount uint32) bool {
	return uint64(offset)+uint64(byteCount) <= uint64(len(m))
}

// Size returns the size in bytes
func (m SliceMemory) Size() uint32 {
	return uint32(len(m))
}

// Read returns a view of byteCount bytes at offset
func (m SliceMemory) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.inRange(offset, byteCount) {
		return nil, false
	}
	return m[offset : offset+byteCount], true
}

// ReadUint32Le reads a little-endian word at offset
func (m SliceMemory) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.inRange(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m[offset:]), true
}

// WriteUint32Le writes a little-endian word at offset
func (m SliceMemory) WriteUint32Le(offset, v uint32) bool {
	if !m.inRange(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m[offset:], v)
	return true
}

// Write copies v to offset
func (m SliceMemory) Write(offset uint32, v []byte) bool {
	if !m.inRange(offset, uint32(len(v))) {
		return false
	}
	copy(m[offset:], v)
	return true
}
