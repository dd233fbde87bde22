package malloc

import (
	"sync"
	"unsafe"

	"github.com/bnclabs/vmalloc/api"
	"github.com/bnclabs/vmalloc/vm"
)

// Bump is a single-threaded monotonic allocator over one fixed reserved and
// committed region (§4.2). It never frees individual objects; Reset
// rewinds the cursor to the start.
type Bump struct {
	mu       sync.Mutex
	base     uintptr
	size     int64
	cursor   uintptr
	reserved bool
}

var _ api.Allocator = (*Bump)(nil)

// NewBump configures (but does not reserve memory for) a bump arena of the
// given size, rounded up to the page size.
func NewBump(size int64) *Bump {
	return &Bump{size: roundUp(size, vm.PageSize())}
}

// Init reserves and commits the whole region in one step.
func (b *Bump) Init() bool {
	base, ok := vm.ReserveCommitSegment(b.size)
	if !ok {
		return false
	}
	b.base, b.cursor, b.reserved = base, base, true
	return true
}

// Allocate advances the cursor so that (cursor+offset)%alignment == 0,
// writes the chunk size in the word immediately preceding the returned
// pointer (so GetAllocSize can recover it), and returns the pointer. Fails
// once the cursor would cross the region end.
func (b *Bump) Allocate(size, alignment, offset int64, site api.Site) unsafe.Pointer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.reserved {
		return nil
	}
	if alignment <= 0 {
		alignment = api.DefaultAlignment
	}

	candidate := b.cursor + uintptr(wordSize) // room for the size word
	misalign := (int64(candidate) + offset) % alignment
	if misalign != 0 {
		candidate += uintptr(alignment - misalign)
	}

	end := candidate + uintptr(size)
	if end > b.base+uintptr(b.size) {
		return nil
	}

	storeWord(candidate-uintptr(wordSize), uintptr(size))
	b.cursor = end
	return unsafe.Pointer(candidate)
}

// Callocate implements api.Allocator; n*elemSize overflow returns nil.
func (b *Bump) Callocate(n, elemSize int64, site api.Site) unsafe.Pointer {
	if n <= 0 || elemSize <= 0 || n > (1<<62)/elemSize {
		return nil
	}
	return b.Allocate(n*elemSize, api.DefaultAlignment, 0, site)
}

// Deallocate is a no-op; Bump never frees individual objects.
func (b *Bump) Deallocate(ptr unsafe.Pointer) {}

// GetAllocSize returns the size word stored immediately before ptr.
func (b *Bump) GetAllocSize(ptr unsafe.Pointer) int64 {
	if ptr == nil {
		return 0
	}
	return int64(loadWord(uintptr(ptr) - uintptr(wordSize)))
}

// GetTotalAllocated returns cursor - start.
func (b *Bump) GetTotalAllocated() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(b.cursor - b.base)
}

// Reset rewinds the cursor to the start of the region; every pointer
// previously handed out becomes invalid.
func (b *Bump) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cursor = b.base
}

// Release gives the region back to the OS.
func (b *Bump) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reserved {
		vm.ReleaseSegment(b.base, b.size)
		b.reserved = false
	}
}
