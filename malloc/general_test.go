package malloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnclabs/vmalloc/api"
)

func TestGeneralAllocatorSmallRoundTrip(t *testing.T) {
	ga := NewGeneralAllocator()
	require.True(t, ga.Init(), "expected init to succeed")

	p := ga.Allocate(48, Alignment, 0, api.Site{})
	require.NotNil(t, p, "expected a small allocation to succeed")
	assert.GreaterOrEqual(t, ga.GetAllocSize(p), int64(48))
	ga.Deallocate(p)
}

func TestGeneralAllocatorLargeRoundTrip(t *testing.T) {
	ga := NewGeneralAllocator()
	require.True(t, ga.Init(), "expected init to succeed")

	p := ga.Allocate(4096, Alignment, 0, api.Site{})
	require.NotNil(t, p, "expected a tree-bin-range allocation to succeed")
	assert.GreaterOrEqual(t, ga.GetAllocSize(p), int64(4096))
	ga.Deallocate(p)
}

func TestGeneralAllocatorCoalescesOnFree(t *testing.T) {
	ga := NewGeneralAllocator()
	require.True(t, ga.Init(), "expected init to succeed")

	a := ga.Allocate(64, Alignment, 0, api.Site{})
	b := ga.Allocate(64, Alignment, 0, api.Site{})
	c := ga.Allocate(64, Alignment, 0, api.Site{})
	require.NotNil(t, a, "expected three small allocations to succeed")
	require.NotNil(t, b)
	require.NotNil(t, c)

	before := ga.GetTotalAllocated()
	ga.Deallocate(a)
	ga.Deallocate(b)
	ga.Deallocate(c)
	after := ga.GetTotalAllocated()
	assert.LessOrEqual(t, after, before, "expected footprint to not grow after freeing everything")

	// a 192-byte request after freeing everything must still succeed; it
	// dispatches to a different size class than the three 64-byte blocks.
	d := ga.Allocate(192, Alignment, 0, api.Site{})
	require.NotNil(t, d, "expected reuse allocation to succeed")
	ga.Deallocate(d)
}

// TestGeneralAllocatorCoalescesNonSequentialFreeOrder is the §8 scenario-4
// property: allocate four consecutive blocks A, B, C, D; free A, then C,
// then B (D stays allocated so the merged region doesn't get absorbed into
// top, and instead its forward boundary can be checked directly). After the
// third free, A, B and C must have consolidated into exactly one free chunk
// immediately preceding D -- the backward merge B triggers with A must still
// notice C was already freed forward of it.
func TestGeneralAllocatorCoalescesNonSequentialFreeOrder(t *testing.T) {
	ga := NewGeneralAllocator()
	require.True(t, ga.Init(), "expected init to succeed")

	a := ga.Allocate(40, Alignment, 0, api.Site{})
	b := ga.Allocate(40, Alignment, 0, api.Site{})
	c := ga.Allocate(40, Alignment, 0, api.Site{})
	d := ga.Allocate(40, Alignment, 0, api.Site{})
	require.NotNil(t, a, "expected A to allocate")
	require.NotNil(t, b, "expected B to allocate")
	require.NotNil(t, c, "expected C to allocate")
	require.NotNil(t, d, "expected D to allocate")

	chunkA := chunkFromMem(a)
	chunkD := chunkFromMem(d)
	sizeA := chunkSize(chunkA)
	sizeB := chunkSize(chunkFromMem(b))
	sizeC := chunkSize(chunkFromMem(c))

	ga.Deallocate(a)
	ga.Deallocate(c)
	ga.Deallocate(b)

	assert.Equal(t, sizeA+sizeB+sizeC, chunkSize(chunkA),
		"expected A, B and C to have merged into a single free chunk spanning all three")
	assert.Equal(t, chunkD, chunkA+uintptr(chunkSize(chunkA)),
		"expected the merged chunk to sit immediately before D with no gap")
	assert.False(t, chunkPInuse(chunkD),
		"expected D's PINUSE bit to reflect that its predecessor is now free")

	ga.Deallocate(d)
}

func TestGeneralAllocatorAlignedAllocate(t *testing.T) {
	ga := NewGeneralAllocator()
	require.True(t, ga.Init(), "expected init to succeed")

	for _, alignment := range []int64{16, 64, 256, 4096} {
		p := ga.Allocate(100, alignment, 0, api.Site{})
		require.NotNilf(t, p, "expected aligned allocation to succeed for alignment %v", alignment)
		assert.Zerof(t, uintptr(p)%uintptr(alignment), "pointer %p not aligned to %v", p, alignment)
		ga.Deallocate(p)
	}
}

func TestGeneralAllocatorCallocateOverflow(t *testing.T) {
	ga := NewGeneralAllocator()
	ga.Init()

	assert.Nil(t, ga.Callocate(1<<40, 1<<40, api.Site{}), "expected overflowing Callocate to return nil")

	p := ga.Callocate(4, 16, api.Site{})
	if assert.NotNil(t, p, "expected a well-formed Callocate to succeed") {
		ga.Deallocate(p)
	}
}
