package malloc

import (
	"math"
	"sync"
	"unsafe"

	"github.com/bnclabs/vmalloc/api"
	"github.com/bnclabs/vmalloc/log"
	"github.com/bnclabs/vmalloc/vm"
)

// GeneralAllocator is the segregated heap facade (§4.1): 21 independent
// MemorySpace instances keyed by size class, lazily constructed on first
// demand. A space is destroyed only when MemorySpace.free reports that its
// top chunk spans the whole reserved segment; a space's top starts as one
// committed page of that segment, so freeing every allocation in a space
// does not destroy it.
type GeneralAllocator struct {
	mu       sync.RWMutex
	spaces   [nSpaces]*MemorySpace
	known    map[uintptr]*MemorySpace // owner-footer address -> space, for Deallocate's dispatch
	pageSize int64
}

var _ api.Allocator = (*GeneralAllocator)(nil)

// NewGeneralAllocator builds an (uninitialised) segregated heap. Call Init
// before use.
func NewGeneralAllocator() *GeneralAllocator {
	return &GeneralAllocator{known: make(map[uintptr]*MemorySpace)}
}

// Init discovers the host page size; spaces themselves are constructed
// lazily on first allocation for their size class.
func (ga *GeneralAllocator) Init() bool {
	ga.pageSize = vm.PageSize()
	if ga.pageSize <= 0 {
		ga.pageSize = defaultPageSize
	}
	return true
}

func (ga *GeneralAllocator) spaceFor(idx int) *MemorySpace {
	ga.mu.RLock()
	ms := ga.spaces[idx]
	ga.mu.RUnlock()
	if ms != nil {
		return ms
	}

	ga.mu.Lock()
	defer ga.mu.Unlock()
	if ga.spaces[idx] != nil { // lost the race
		return ga.spaces[idx]
	}
	ms = newMemorySpace(idx, ga.pageSize)
	if !ms.init() {
		return nil
	}
	ga.spaces[idx] = ms
	ga.known[ms.self] = ms
	return ms
}

// Allocate implements api.Allocator.
func (ga *GeneralAllocator) Allocate(size, alignment, offset int64, site api.Site) unsafe.Pointer {
	if alignment <= Alignment {
		return ga.allocateUnaligned(size)
	}
	return ga.allocateAligned(size, alignment, offset)
}

func (ga *GeneralAllocator) allocateUnaligned(size int64) unsafe.Pointer {
	idx := spaceIndex(size)
	ms := ga.spaceFor(idx)
	if ms == nil {
		return nil
	}
	c := ms.allocate(size)
	if c == 0 {
		log.Warnf("malloc: space %d: allocate(%d) failed\n", idx, size)
		return nil
	}
	return unsafe.Pointer(c)
}

// allocateAligned over-allocates to carve a payload at the requested
// alignment/offset, per §4.1 "Aligned allocate": leader and trailer slack
// are freed through the normal path once the middle chunk has been
// returned and later deallocated.
func (ga *GeneralAllocator) allocateAligned(size, alignment, offset int64) unsafe.Pointer {
	req := size + alignment + offset + minChunkSize
	mem := ga.allocateUnaligned(req)
	if mem == nil {
		return nil
	}
	c := chunkFromMem(mem)
	total := chunkSize(c)

	payload := uintptr(mem)
	misalign := (int64(payload)+offset)%alignment
	if misalign != 0 {
		payload += uintptr(alignment - misalign)
	}
	leaderSize := int64(payload) - int64(uintptr(mem))
	for leaderSize > 0 && leaderSize < minChunkSize {
		payload += uintptr(alignment)
		leaderSize += alignment
	}

	newc := chunkFromMem(unsafe.Pointer(payload))
	ownerWord := footerWord(c) // preserved across the carve below

	if leaderSize > 0 {
		ga.carveOff(c, uintptr(leaderSize), ownerWord)
	} else {
		newc = c
	}

	nb := padRequest(size)
	newTotal := total - (int64(newc) - int64(c))
	trailer := newTotal - nb
	pinuse := chunkPInuse(newc) // false once a freed leader precedes newc
	if trailer >= minChunkSize {
		setHead(newc, nb, pinuse, true)
		setFooterOwner(newc, ownerWord)
		trailerChunk := newc + uintptr(nb)
		setHead(trailerChunk, trailer, true, true)
		setFooterOwner(trailerChunk, ownerWord)
		ga.Deallocate(memPtr(trailerChunk))
	} else {
		setHead(newc, newTotal, pinuse, true)
		setFooterOwner(newc, ownerWord)
	}
	return memPtr(newc)
}

// carveOff frees the leader [c, c+leaderSize) back through the normal
// path and leaves [c+leaderSize, ...) as a fresh in-use chunk with the
// same owner, so the caller can keep shrinking/using it.
func (ga *GeneralAllocator) carveOff(c uintptr, leaderSize uintptr, owner uintptr) {
	total := chunkSize(c)
	setHead(c, int64(leaderSize), chunkPInuse(c), true)
	setFooterOwner(c, owner)
	rest := c + leaderSize
	setHead(rest, total-int64(leaderSize), true, true)
	setFooterOwner(rest, owner)
	ga.Deallocate(memPtr(c))
}

// Callocate implements api.Allocator; n*elemSize overflow returns nil.
func (ga *GeneralAllocator) Callocate(n, elemSize int64, site api.Site) unsafe.Pointer {
	if n <= 0 || elemSize <= 0 {
		return nil
	}
	if n > math.MaxInt64/elemSize {
		return nil
	}
	return ga.Allocate(n*elemSize, Alignment, 0, site)
}

// Deallocate implements api.Allocator: reads the footer to find the owning
// space (validating it against the known set of space bases before
// dereferencing, per the design note on integer footers), or releases
// directly to the OS for the standalone/"big" path.
func (ga *GeneralAllocator) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	c := chunkFromMem(ptr)
	owner := footerWord(c)

	if owner == 0 {
		ga.freeStandalone(c)
		return
	}

	ga.mu.RLock()
	ms, ok := ga.known[owner]
	ga.mu.RUnlock()
	if !ok {
		log.Errorf("malloc: deallocate(%p): footer does not match a known space, leaking\n", ptr)
		return
	}

	if ms.free(uintptr(ptr)) {
		ga.destroySpace(ms)
	}
}

func (ga *GeneralAllocator) freeStandalone(c uintptr) {
	size := chunkSize(c) + headerSize
	vm.ReleaseSegment(c, roundUp(size, defaultPageSize))
}

func (ga *GeneralAllocator) destroySpace(ms *MemorySpace) {
	ga.mu.Lock()
	defer ga.mu.Unlock()
	if ga.spaces[ms.index] != ms {
		return
	}
	ms.release()
	ga.spaces[ms.index] = nil
	delete(ga.known, ms.self)
}

// GetAllocSize implements api.Allocator.
func (ga *GeneralAllocator) GetAllocSize(ptr unsafe.Pointer) int64 {
	if ptr == nil {
		return 0
	}
	c := chunkFromMem(ptr)
	return chunkSize(c) - chunkOverhead
}

// GetTotalAllocated implements api.Allocator: the sum of committed
// footprint across every currently-constructed space.
func (ga *GeneralAllocator) GetTotalAllocated() int64 {
	ga.mu.RLock()
	defer ga.mu.RUnlock()
	var total int64
	for _, ms := range ga.spaces {
		if ms != nil {
			total += ms.footprint
		}
	}
	return total
}
