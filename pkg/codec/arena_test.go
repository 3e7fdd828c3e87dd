// ABOUTME: Tests for the codec bump allocator
// ABOUTME: Covers monotonic growth, zero-size queries and exhaustion
package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArenaGrowReturnsPreviousTop(t *testing.T) {
	a := NewArena(DefaultStackSize, TotalMemory)

	assert.Equal(t, int32(DefaultStackSize), a.Grow(16))
	assert.Equal(t, int32(DefaultStackSize+16), a.Grow(4096))
	assert.Equal(t, uint32(DefaultStackSize+16+4096), a.Top())
}

func TestArenaGrowZeroQueriesTop(t *testing.T) {
	a := NewArena(100, 200)
	assert.Equal(t, int32(100), a.Grow(0))
	assert.Equal(t, int32(100), a.Grow(0))
}

func TestArenaGrowFailures(t *testing.T) {
	a := NewArena(100, 200)

	assert.Equal(t, int32(-1), a.Grow(-4), "negative growth")
	assert.Equal(t, int32(-1), a.Grow(101), "past the limit")

	// failures leave the top untouched
	assert.Equal(t, uint32(100), a.Top())
	assert.Equal(t, int32(100), a.Grow(100))
	assert.Equal(t, uint32(0), a.Remaining())
	assert.Equal(t, int32(-1), a.Grow(1))
}

func TestDefaultGeometry(t *testing.T) {
	assert.Equal(t, 2048, DefaultMemoryPages)
	assert.Equal(t, 5242880, DefaultStackSize)
}
