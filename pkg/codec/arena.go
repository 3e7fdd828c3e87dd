// ABOUTME: Monotonic bump allocator backing the codec's sbrk import
// ABOUTME: Hands out linear memory from a fixed top and never reuses it
package codec

const (
	// Must stay in sync with the emcc settings the codec was built with
	DefaultStackSize = 5 * 1024 * 1024
	TotalMemory      = 128 * 1024 * 1024
	PageSize         = 64 * 1024

	// DefaultMemoryPages is TotalMemory expressed in wasm pages
	DefaultMemoryPages = TotalMemory / PageSize
)

// Arena is the codec's only source of dynamic memory.
// The top moves forward only; nothing is returned to it.
type Arena struct {
	top   uint32
	limit uint32
}

// NewArena creates an arena that starts handing out memory at base
func NewArena(base, limit uint32) *Arena {
	return &Arena{top: base, limit: limit}
}

// Grow advances the top by n bytes and returns the previous top.
// It returns -1, the sbrk failure value, for negative n or exhaustion.
func (a *Arena) Grow(n int32) int32 {
	if n < 0 {
		return -1
	}
	if uint64(a.top)+uint64(n) > uint64(a.limit) {
		return -1
	}
	prev := a.top
	a.top += uint32(n)
	return int32(prev)
}

// Top returns the current top
func (a *Arena) Top() uint32 {
	return a.top
}

// Remaining returns how many bytes can still be handed out
func (a *Arena) Remaining() uint32 {
	return a.limit - a.top
}
