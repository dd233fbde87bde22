package malloc

import (
	"sync"
	"unsafe"

	"github.com/bnclabs/vmalloc/api"
	"github.com/bnclabs/vmalloc/log"
)

// guardWords is the size, in words, of each of the two guard regions
// BoundsChecked pads an allocation with.
const guardWords = 2
const guardSize = guardWords * wordSize

// BoundsChecked wraps any api.Allocator, padding every allocation with a
// guard region on each side stamped with a sentinel byte pattern and
// validated on Deallocate (§4.8). Stamping/validation only happen in
// builds tagged `debug` (see debug.go/production.go); the padding itself
// is always present so GetAllocSize/offsets behave identically in both
// builds.
type BoundsChecked struct {
	inner api.Allocator
}

var _ api.Allocator = (*BoundsChecked)(nil)

func NewBoundsChecked(inner api.Allocator) *BoundsChecked {
	return &BoundsChecked{inner: inner}
}

func (b *BoundsChecked) Init() bool { return b.inner.Init() }

func (b *BoundsChecked) Allocate(size, alignment, offset int64, site api.Site) unsafe.Pointer {
	raw := b.inner.Allocate(size+2*guardSize, alignment, offset+guardSize, site)
	if raw == nil {
		return nil
	}
	base := uintptr(raw)
	stampGuard(base, guardSize)
	stampGuard(base+uintptr(b.inner.GetAllocSize(raw)-guardSize), guardSize)
	return unsafe.Pointer(base + uintptr(guardSize))
}

func (b *BoundsChecked) Callocate(n, elemSize int64, site api.Site) unsafe.Pointer {
	if n <= 0 || elemSize <= 0 || n > (1<<63-1)/elemSize {
		return nil
	}
	return b.Allocate(n*elemSize, api.DefaultAlignment, 0, site)
}

func (b *BoundsChecked) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	base := uintptr(ptr) - uintptr(guardSize)
	size := b.inner.GetAllocSize(unsafe.Pointer(base)) - 2*guardSize
	if debugBuild {
		if !checkGuard(base, guardSize) || !checkGuard(base+uintptr(guardSize)+uintptr(size), guardSize) {
			log.Fatalf("malloc: BoundsChecked: guard corruption detected at %p\n", ptr)
		}
	}
	b.inner.Deallocate(unsafe.Pointer(base))
}

func (b *BoundsChecked) GetAllocSize(ptr unsafe.Pointer) int64 {
	base := uintptr(ptr) - uintptr(guardSize)
	return b.inner.GetAllocSize(unsafe.Pointer(base)) - 2*guardSize
}

func (b *BoundsChecked) GetTotalAllocated() int64 { return b.inner.GetTotalAllocated() }

// Tracked wraps any api.Allocator and accumulates call-site-keyed (api.Site)
// footprint counters, for the CLI's -track flag (§4.8). It adds no padding
// and does not change pointers returned by the wrapped allocator.
type Tracked struct {
	inner api.Allocator

	mu     sync.Mutex
	bySite map[api.Site]*SiteStats
	byPtr  map[uintptr]allocRecord
}

type allocRecord struct {
	site api.Site
	size int64
}

type SiteStats struct {
	Allocs   int64
	Frees    int64
	LiveSize int64
}

var _ api.Allocator = (*Tracked)(nil)

func NewTracked(inner api.Allocator) *Tracked {
	return &Tracked{
		inner:  inner,
		bySite: make(map[api.Site]*SiteStats),
		byPtr:  make(map[uintptr]allocRecord),
	}
}

func (t *Tracked) Init() bool { return t.inner.Init() }

func (t *Tracked) Allocate(size, alignment, offset int64, site api.Site) unsafe.Pointer {
	p := t.inner.Allocate(size, alignment, offset, site)
	if p == nil {
		return nil
	}
	t.record(p, size, site)
	return p
}

func (t *Tracked) Callocate(n, elemSize int64, site api.Site) unsafe.Pointer {
	p := t.inner.Callocate(n, elemSize, site)
	if p == nil {
		return nil
	}
	t.record(p, n*elemSize, site)
	return p
}

func (t *Tracked) record(p unsafe.Pointer, size int64, site api.Site) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.bySite[site]
	if !ok {
		st = &SiteStats{}
		t.bySite[site] = st
	}
	st.Allocs++
	st.LiveSize += size
	t.byPtr[uintptr(p)] = allocRecord{site: site, size: size}
	log.Debugf("malloc: tracked allocate site=%s size=%d\n", site, size)
}

func (t *Tracked) Deallocate(ptr unsafe.Pointer) {
	if ptr == nil {
		t.inner.Deallocate(ptr)
		return
	}
	t.mu.Lock()
	if rec, ok := t.byPtr[uintptr(ptr)]; ok {
		delete(t.byPtr, uintptr(ptr))
		if st, ok := t.bySite[rec.site]; ok {
			st.Frees++
			st.LiveSize -= rec.size
		}
	}
	t.mu.Unlock()
	t.inner.Deallocate(ptr)
}

func (t *Tracked) GetAllocSize(ptr unsafe.Pointer) int64 { return t.inner.GetAllocSize(ptr) }
func (t *Tracked) GetTotalAllocated() int64              { return t.inner.GetTotalAllocated() }

// Stats returns a snapshot of allocation counts keyed by call site.
func (t *Tracked) Stats() map[api.Site]SiteStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[api.Site]SiteStats, len(t.bySite))
	for k, v := range t.bySite {
		out[k] = *v
	}
	return out
}
