package malloc

import "unsafe"

// A chunk is addressed by the uintptr of its first header word (prev_foot),
// exactly like dlmalloc's malloc_chunk. The payload returned to a caller
// starts headerSize bytes past that address. Tree fields beyond fd/bk are
// only meaningful while the chunk is linked into a tree bin; every other
// free or in-use chunk simply never has those words read.
//
//	word 0: prev_foot   (size of previous chunk when it is free; otherwise
//	                     the previous chunk's owner footer -- each chunk's
//	                     own footer lives in the NEXT chunk's prev_foot
//	                     slot, see footer helpers below)
//	word 1: head        size | PINUSE | CINUSE
//	word 2: fd          (free chunks only)
//	word 3: bk          (free chunks only)
//	word 4: child[0]    (tree chunks only)
//	word 5: child[1]    (tree chunks only)
//	word 6: parent      (tree chunks only)
//	word 7: tree index  (tree chunks only)

func loadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func storeWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v
}

func headAddr(c uintptr) uintptr   { return c + uintptr(wordSize) }
func fdAddr(c uintptr) uintptr     { return c + uintptr(headerSize) }
func bkAddr(c uintptr) uintptr     { return c + uintptr(headerSize) + uintptr(wordSize) }
func child0Addr(c uintptr) uintptr { return c + uintptr(headerSize) + uintptr(2*wordSize) }
func child1Addr(c uintptr) uintptr { return c + uintptr(headerSize) + uintptr(3*wordSize) }
func parentAddr(c uintptr) uintptr { return c + uintptr(headerSize) + uintptr(4*wordSize) }
func treeIdxAddr(c uintptr) uintptr {
	return c + uintptr(headerSize) + uintptr(5*wordSize)
}

func chunkHead(c uintptr) uintptr { return loadWord(headAddr(c)) }

func chunkSize(c uintptr) int64 {
	return int64(chunkHead(c) &^ flagsMask)
}

func chunkPInuse(c uintptr) bool { return chunkHead(c)&pinuseBit != 0 }
func chunkCInuse(c uintptr) bool { return chunkHead(c)&cinuseBit != 0 }
func chunkInuse(c uintptr) bool  { return chunkHead(c)&(pinuseBit|cinuseBit) == (pinuseBit | cinuseBit) }

// setHead writes size (already a multiple of 8) and the two flag bits.
func setHead(c uintptr, size int64, pinuse, cinuse bool) {
	h := uintptr(size)
	if pinuse {
		h |= pinuseBit
	}
	if cinuse {
		h |= cinuseBit
	}
	storeWord(headAddr(c), h)
}

func setPInuse(c uintptr, on bool) {
	h := chunkHead(c)
	if on {
		h |= pinuseBit
	} else {
		h &^= pinuseBit
	}
	storeWord(headAddr(c), h)
}

func setCInuse(c uintptr, on bool) {
	h := chunkHead(c)
	if on {
		h |= cinuseBit
	} else {
		h &^= cinuseBit
	}
	storeWord(headAddr(c), h)
}

// nextChunk returns the address of the chunk immediately following c.
func nextChunk(c uintptr) uintptr { return c + uintptr(chunkSize(c)) }

// prevChunk returns the address of the chunk immediately before c. Only
// valid when chunkPInuse(c) is false (the previous chunk is free, so its
// size was written into c's prev_foot slot).
func prevChunk(c uintptr) uintptr { return c - uintptr(loadWord(c)) }

// memPtr/chunkFromMem translate between a chunk address and the pointer
// handed to/received from a caller.
func memPtr(c uintptr) unsafe.Pointer { return unsafe.Pointer(c + uintptr(headerSize)) }
func chunkFromMem(p unsafe.Pointer) uintptr { return uintptr(p) - uintptr(headerSize) }

// Free-list links.
func chunkFd(c uintptr) uintptr    { return loadWord(fdAddr(c)) }
func chunkBk(c uintptr) uintptr    { return loadWord(bkAddr(c)) }
func setChunkFd(c, v uintptr)      { storeWord(fdAddr(c), v) }
func setChunkBk(c, v uintptr)      { storeWord(bkAddr(c), v) }

// Tree links, valid only while c is linked into a tree bin.
func chunkChild(c uintptr, side int) uintptr {
	if side == 0 {
		return loadWord(child0Addr(c))
	}
	return loadWord(child1Addr(c))
}
func setChunkChild(c uintptr, side int, v uintptr) {
	if side == 0 {
		storeWord(child0Addr(c), v)
	} else {
		storeWord(child1Addr(c), v)
	}
}
func chunkParent(c uintptr) uintptr    { return loadWord(parentAddr(c)) }
func setChunkParent(c, v uintptr)      { storeWord(parentAddr(c), v) }
func chunkTreeIndex(c uintptr) int     { return int(loadWord(treeIdxAddr(c))) }
func setChunkTreeIndex(c uintptr, i int) { storeWord(treeIdxAddr(c), uintptr(i)) }

// Footer helpers. The footer of chunk c is the prev_foot slot belonging to
// the chunk right after it; its meaning depends on c's own state:
//   - c free:    footer holds size(c), used by the next chunk to coalesce
//     backward (invariant 5).
//   - c in use:  footer holds the owning *MemorySpace as a uintptr, used by
//     deallocate to find the right space without a linear search
//     (invariant 3, design note "back-pointers as integer footers").
func footerAddr(c uintptr) uintptr { return nextChunk(c) }

func setFooterSize(c uintptr, size int64) {
	storeWord(footerAddr(c), uintptr(size))
}

func setFooterOwner(c uintptr, owner uintptr) {
	storeWord(footerAddr(c), owner)
}

func footerWord(c uintptr) uintptr {
	return loadWord(footerAddr(c))
}
