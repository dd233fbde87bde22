package malloc

import (
	"sync"
	"unsafe"

	"github.com/bnclabs/vmalloc/api"
)

// Pool is a fixed-size slot allocator backed by an intrusive singly-linked
// free list threaded through the slots themselves (§4.3): the first word
// of each free slot points at the next free slot, the tail points at nil.
// Acquire/release are O(1).
type Pool struct {
	mu sync.Mutex

	parent    api.Allocator
	elemSize  int64 // configured element size, including room for the link word
	count     int64 // configured number of elements
	alignment int64
	preOffset int64

	base   uintptr
	free   uintptr // head of the free list, 0 when exhausted
	live   int64   // live allocation count, for the leak check on Release
}

var _ api.Allocator = (*Pool)(nil)

// NewPool configures a pool of `count` slots each usable for at least
// `elemSize` bytes, obtained in one region from parent.
func NewPool(parent api.Allocator, elemSize, count, alignment, preOffset int64) *Pool {
	if alignment <= 0 {
		alignment = api.DefaultAlignment
	}
	slot := elemSize
	if slot < wordSize {
		slot = wordSize // must hold at least the free-list link word
	}
	return &Pool{
		parent: parent, elemSize: slot, count: count,
		alignment: alignment, preOffset: preOffset,
	}
}

// Init obtains one region from the parent allocator and threads the free
// list through it.
func (p *Pool) Init() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	region := p.parent.Allocate(p.elemSize*p.count, p.alignment, p.preOffset, api.Site{})
	if region == nil {
		return false
	}
	p.base = uintptr(region)

	var prev uintptr
	for i := p.count - 1; i >= 0; i-- {
		slot := p.base + uintptr(i*p.elemSize)
		storeWord(slot, prev)
		prev = slot
	}
	p.free = prev
	return true
}

// Allocate returns the head free slot, ignoring size/alignment/offset
// (slot i starts at base+i*elemSize, so slots keep the configured alignment
// only when elemSize is a multiple of it); returns nil once exhausted.
func (p *Pool) Allocate(size, alignment, offset int64, site api.Site) unsafe.Pointer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.free == 0 {
		return nil
	}
	slot := p.free
	p.free = loadWord(slot)
	p.live++
	return unsafe.Pointer(slot)
}

// Callocate is equivalent to Allocate for a Pool: every slot is a single
// fixed-size element, so n must be 1.
func (p *Pool) Callocate(n, elemSize int64, site api.Site) unsafe.Pointer {
	if n != 1 {
		return nil
	}
	return p.Allocate(elemSize, p.alignment, p.preOffset, site)
}

// Deallocate pushes ptr back onto the free list.
func (p *Pool) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := uintptr(ptr)
	storeWord(slot, p.free)
	p.free = slot
	p.live--
}

// GetAllocSize returns the configured element size for any slot.
func (p *Pool) GetAllocSize(ptr unsafe.Pointer) int64 {
	return p.elemSize
}

// GetTotalAllocated returns live_count * elemSize.
func (p *Pool) GetTotalAllocated() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live * p.elemSize
}

// Live returns the number of slots currently allocated, used by the
// destructor's leak check.
func (p *Pool) Live() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live
}
