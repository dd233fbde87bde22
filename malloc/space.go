package malloc

import (
	"sync"

	"github.com/bnclabs/vmalloc/log"
	"github.com/bnclabs/vmalloc/vm"
)

// MemorySpace is one dlmalloc-style boundary-tagged heap instance: small
// bins + tree bins + a designated victim + a top chunk, backed by a single
// growable OS reservation. A GeneralAllocator owns 21 of these, one per
// size class (§3).
type MemorySpace struct {
	mu sync.Mutex

	smallMap uint32
	treeMap  uint32
	smallBins [nSmallBins]uintptr
	treeBins  [nTreeBins]uintptr

	dv     uintptr
	dvSize int64
	top    uintptr
	topSize int64

	leastAddr     uintptr
	currPageIndex int64 // pages committed so far, 1-based once init'd
	footprint     int64
	maxFootprint  int64

	pageSize           int64
	segmentGranularity int64
	segmentThreshold   int64
	segSize            int64 // total reserved (not necessarily committed) size

	index int // this space's slot among the GeneralAllocator's 21
	self  uintptr // uintptr of &MemorySpace itself, the owner back-pointer value
}

// newMemorySpace reserves (but does not commit) a segment sized for the
// space's class: small classes reserve segmentGranularity, the large class
// (index nSpaces-1) reserves a multiple of it, matching §3's "small spaces
// are configured with small segments; space 20 with a large segment".
func newMemorySpace(index int, pageSize int64) *MemorySpace {
	ms := &MemorySpace{
		pageSize:           pageSize,
		segmentGranularity: defaultSegmentGranularity,
		segmentThreshold:   defaultSegmentThreshold,
		index:              index,
	}
	ms.self = ms.addr()

	segSize := ms.segmentGranularity
	if index == nSpaces-1 {
		segSize = ms.segmentGranularity * 4
	}
	segSize = roundUp(segSize, ms.pageSize)
	ms.segSize = segSize
	return ms
}

func (ms *MemorySpace) addr() uintptr {
	return uintptrOf(ms)
}

func roundUp(n, mult int64) int64 {
	if n%mult == 0 {
		return n
	}
	return ((n / mult) + 1) * mult
}

func padRequest(size int64) int64 {
	nb := roundUp(size+chunkOverhead, Alignment)
	if nb < minChunkSize {
		nb = minChunkSize
	}
	return nb
}

// init reserves the segment and commits its first page, carving the
// committed region into a single top chunk. Returns false if the OS
// reservation fails.
func (ms *MemorySpace) init() bool {
	base, ok := vm.ReserveSegment(ms.segSize, 0)
	if !ok {
		log.Errorf("malloc: space %d: reserve_segment(%d) failed\n", ms.index, ms.segSize)
		return false
	}
	ms.leastAddr = base
	if !vm.CommitPage(base, ms.pageSize) {
		vm.ReleaseSegment(base, ms.segSize)
		log.Errorf("malloc: space %d: commit_page failed\n", ms.index)
		return false
	}
	ms.currPageIndex = 1
	ms.footprint = ms.pageSize
	ms.maxFootprint = ms.pageSize

	ms.top = base
	ms.topSize = ms.pageSize
	setHead(ms.top, ms.topSize, true /*pinuse*/, false /*cinuse*/)
	return true
}

// release gives the entire segment back to the OS; called by the owning
// GeneralAllocator once this space's top chunk spans the whole segment
// again (§4.1 step 4, "signal the owner to drop this space").
func (ms *MemorySpace) release() {
	if ms.leastAddr != 0 {
		vm.ReleaseSegment(ms.leastAddr, ms.segSize)
		ms.leastAddr = 0
	}
}

//---- allocation (§4.1 steps 1-7)

func (ms *MemorySpace) allocate(size int64) uintptr {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	nb := padRequest(size)

	if nb <= maxSmallRequest {
		if p := ms.allocSmall(nb); p != 0 {
			return p
		}
		if p := ms.treeAllocSmall(nb); p != 0 {
			return p
		}
	} else {
		if p := ms.treeAllocLarge(nb); p != 0 {
			return p
		}
	}

	if p := ms.allocFromDV(nb); p != 0 {
		return p
	}
	if p := ms.allocFromTop(nb); p != 0 {
		return p
	}
	if p := ms.growAndRetry(nb); p != 0 {
		return p
	}
	return 0
}

// allocSmall tries an exact small-bin fit first, then the next larger
// small bin, splitting the remainder into dv (§4.1 step 2, first two
// bullets).
func (ms *MemorySpace) allocSmall(nb int64) uintptr {
	if nb > maxSmallRequest {
		return 0
	}
	idx := smallBinIndex(nb)
	if !ms.smallBinEmpty(idx) {
		c := ms.smallBins[idx]
		ms.unlinkSmallChunk(idx, c)
		ms.markInuse(c, chunkSize(c))
		return uintptr(memPtr(c))
	}

	nextIdx, head := ms.firstSmallChunkAtLeast(idx + 1)
	if head == 0 {
		return 0
	}
	ms.unlinkSmallChunk(nextIdx, head)
	ms.splitAndServe(head, nb)
	return uintptr(memPtr(head))
}

// treeAllocSmall is used when small bins have nothing and nb still fits
// the small-request range: smallest overall fit from the tree bins.
func (ms *MemorySpace) treeAllocSmall(nb int64) uintptr {
	return ms.treeAllocLarge(nb)
}

// treeAllocLarge walks the tree bin whose index matches nb for the
// smallest node >= nb; if none, escalates to the smallest non-empty bin
// above it (every node there is guaranteed big enough).
func (ms *MemorySpace) treeAllocLarge(nb int64) uintptr {
	idx := treeBinIndex(nb)
	var c uintptr
	if !ms.treeBinEmpty(idx) {
		c = ms.treeFindBestFit(idx, nb)
	}
	if c == 0 {
		above := ms.firstTreeBinAbove(idx)
		if above < 0 {
			return 0
		}
		c = ms.smallestInTree(above)
		if c == 0 {
			return 0
		}
	}
	ms.unlinkTreeChunk(c)
	ms.splitAndServe(c, nb)
	return uintptr(memPtr(c))
}

// splitAndServe carves nb bytes off the low end of free chunk c, makes the
// remainder the new dv (any previous dv goes back into its bin), and marks
// the served piece in-use.
func (ms *MemorySpace) splitAndServe(c uintptr, nb int64) {
	total := chunkSize(c)
	rem := total - nb
	if rem < minChunkSize {
		ms.markInuse(c, total)
		return
	}
	ms.markInuse(c, nb)
	r := c + uintptr(nb)
	setHead(r, rem, true /*pinuse*/, false)
	setFooterSize(r, rem)
	ms.replaceDV(r, rem)
}

// replaceDV installs chunk c (size sz) as the new designated victim,
// reinserting the old dv into its bin first.
func (ms *MemorySpace) replaceDV(c uintptr, sz int64) {
	if ms.dv != 0 {
		ms.insertFree(ms.dv, ms.dvSize)
	}
	ms.dv, ms.dvSize = c, sz
}

// insertFree routes a free chunk to a small bin (exact-size ring) when it
// is within the small-request range, otherwise to a tree bin. Every size
// that qualifies for a tree bin is, by construction, at least minLargeSize
// (maxSmallRequest+8), comfortably above treeChunkSize, so tree fields are
// always safe to write.
func (ms *MemorySpace) insertFree(c uintptr, size int64) {
	if size <= maxSmallRequest {
		ms.insertSmallChunk(smallBinIndex(size), c)
		return
	}
	ms.insertTreeChunk(c)
}

// allocFromDV serves nb from the designated victim if it fits (§4.1 step 4).
func (ms *MemorySpace) allocFromDV(nb int64) uintptr {
	if ms.dv == 0 || ms.dvSize < nb {
		return 0
	}
	c, sz := ms.dv, ms.dvSize
	rem := sz - nb
	if rem < minChunkSize {
		ms.dv, ms.dvSize = 0, 0
		ms.markInuse(c, sz)
		return uintptr(memPtr(c))
	}
	ms.markInuse(c, nb)
	r := c + uintptr(nb)
	setHead(r, rem, true, false)
	setFooterSize(r, rem)
	ms.dv, ms.dvSize = r, rem
	return uintptr(memPtr(c))
}

// allocFromTop serves nb off the low end of top, committing pages on
// demand as top's low edge advances past what is already committed
// (§4.1 step 5).
func (ms *MemorySpace) allocFromTop(nb int64) uintptr {
	if ms.topSize < nb {
		return 0
	}
	c := ms.top
	rem := ms.topSize - nb
	committedEnd := ms.leastAddr + uintptr(ms.currPageIndex*ms.pageSize)
	needEnd := c + uintptr(nb)
	for needEnd > committedEnd {
		if !vm.CommitPage(committedEnd, ms.pageSize) {
			return 0
		}
		ms.currPageIndex++
		ms.footprint += ms.pageSize
		if ms.footprint > ms.maxFootprint {
			ms.maxFootprint = ms.footprint
		}
		committedEnd = ms.leastAddr + uintptr(ms.currPageIndex*ms.pageSize)
	}

	ms.markInuse(c, nb)
	ms.top = c + uintptr(nb)
	ms.topSize = rem
	if rem > 0 {
		setHead(ms.top, rem, true, false)
	}
	return uintptr(memPtr(c))
}

// growAndRetry extends the segment (§4.1 steps 6-7): first try reserving
// enough whole pages (at least one) contiguous with the current segment to
// cover the shortfall; if that fails or the request is at or above the
// segment threshold, escalate to a standalone OS region.
func (ms *MemorySpace) growAndRetry(nb int64) uintptr {
	if nb < ms.segmentThreshold && ms.leastAddr != 0 {
		end := ms.leastAddr + uintptr(ms.segSize)
		grow := roundUp(nb-ms.topSize, ms.pageSize)
		if grow < ms.pageSize {
			grow = ms.pageSize
		}
		if _, ok := vm.ReserveSegment(grow, end); ok {
			ms.segSize += grow
			ms.topSize += grow
			if p := ms.allocFromTop(nb); p != 0 {
				return p
			}
		}
	}
	return ms.allocStandalone(nb)
}

// allocStandalone reserves+commits a private region directly from the OS
// for requests too large (or whose segment growth failed) to serve from
// the space (§4.1 step 7). The footer is left null, marking it "big" on
// free.
func (ms *MemorySpace) allocStandalone(nb int64) uintptr {
	total := nb + headerSize
	total = roundUp(total, ms.pageSize)
	base, ok := vm.ReserveCommitSegment(total)
	if !ok {
		return 0
	}
	setHead(base, total-headerSize, true, true)
	setFooterOwner(base, 0) // null owner marks the standalone/OS path
	return uintptr(memPtr(base))
}

// markInuse finalises chunk c of size sz as allocated: sets its head flags,
// writes the owner footer for the next chunk to read, and sets the next
// chunk's PINUSE bit (invariant 5).
func (ms *MemorySpace) markInuse(c uintptr, sz int64) {
	setHead(c, sz, true, true)
	setFooterOwner(c, ms.self)
	setPInuse(nextChunk(c), true)
}

//---- free (§4.1 "Free")

// free releases ptr, which this MemorySpace was identified (via its
// footer) as owning. Returns true if this space's top now spans the whole
// segment, signalling the GeneralAllocator to destroy it.
func (ms *MemorySpace) free(ptr uintptr) (shouldDestroy bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	c := ptr - uintptr(headerSize)
	sz := chunkSize(c)

	if chunkPInuse(c) == false {
		prev := prevChunk(c)
		if prev != ms.dv {
			ms.removeFree(prev)
		} else {
			ms.dv, ms.dvSize = 0, 0
		}
		sz += chunkSize(prev)
		c = prev
	}

	// nxt must be derived from the (possibly just-merged) sz, not by
	// re-reading c's header via nextChunk: when a backward merge happened
	// above, c's header still holds its pre-merge size until setHead below,
	// so nextChunk(c) would resolve to the wrong address.
	nxt := c + uintptr(sz)
	if nxt == ms.top {
		ms.topSize += sz
		ms.top = c
		setHead(ms.top, ms.topSize, true, false)
		ms.shrinkTop()
		if ms.topSize >= ms.segSize-headerSize {
			return true
		}
		return false
	}

	if !chunkCInuse(nxt) {
		nsz := chunkSize(nxt)
		if nxt == ms.dv {
			ms.dv, ms.dvSize = 0, 0
		} else {
			ms.removeFree(nxt)
		}
		sz += nsz
	}

	setHead(c, sz, true, false)
	setFooterSize(c, sz)
	setPInuse(nextChunk(c), false)

	if ms.dv == 0 {
		ms.dv, ms.dvSize = c, sz
	} else if sz > ms.dvSize {
		ms.insertFree(ms.dv, ms.dvSize)
		ms.dv, ms.dvSize = c, sz
	} else {
		ms.insertFree(c, sz)
	}
	return false
}

// removeFree unlinks a free chunk from whichever bin currently holds it,
// mirroring insertFree's size-based routing.
func (ms *MemorySpace) removeFree(c uintptr) {
	sz := chunkSize(c)
	if sz <= maxSmallRequest {
		ms.unlinkSmallChunk(smallBinIndex(sz), c)
		return
	}
	ms.unlinkTreeChunk(c)
}

// shrinkTop decommits trailing pages that top no longer needs, but only
// once top's low edge has retreated past a page boundary -- never on
// every small free (Open Question #2 resolution, SPEC_FULL.md §9).
func (ms *MemorySpace) shrinkTop() {
	neededPages := (int64(ms.top-ms.leastAddr) + headerSize + ms.pageSize - 1) / ms.pageSize
	if neededPages >= ms.currPageIndex {
		return
	}
	for ms.currPageIndex > neededPages && ms.currPageIndex > 1 {
		ms.currPageIndex--
		pageAddr := ms.leastAddr + uintptr(ms.currPageIndex*ms.pageSize)
		vm.DecommitPage(pageAddr, ms.pageSize)
		ms.footprint -= ms.pageSize
	}
	if ms.footprint > ms.segmentGranularity {
		log.Warnf("malloc: space %d: footprint %d exceeds granularity %d after shrink\n",
			ms.index, ms.footprint, ms.segmentGranularity)
	}
}
