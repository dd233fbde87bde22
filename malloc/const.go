package malloc

// Alignment every chunk size and every chunk address is a multiple of.
const Alignment = int64(8)

const wordSize = int64(8)

// headerSize is the two words (prev_foot, head) present in every chunk,
// free or in use.
const headerSize = 2 * wordSize

// minChunkSize is round_up(sizeof(MemoryChunk), 8): header plus the fd/bk
// link pointers a free chunk always has room for, tree or small bin.
const minChunkSize = headerSize + 2*wordSize // 32

// treeChunkSize is round_up(sizeof(MemoryTreeChunk), 8): a free chunk needs
// this much room before it is eligible to live in a tree bin, since a tree
// node additionally carries child[0], child[1], parent and tree_bin_index.
const treeChunkSize = minChunkSize + 4*wordSize // 64

// chunkOverhead is the bookkeeping cost charged against every request: the
// two header words. An in-use chunk's owner footer occupies the next
// chunk's prev_foot word and is not charged separately.
const chunkOverhead = headerSize

// nSmallBins and nTreeBins mirror the two 32-bit bitmaps (small_map,
// tree_map) per MemorySpace.
const (
	nSmallBins = 32
	nTreeBins  = 32
)

// smallBinSpacing is the size delta between adjacent small bins.
const smallBinSpacing = wordSize

// maxSmallRequest is the largest padded request size still served by the
// small-bin/dv/top fast path; above it a request goes straight to the tree
// bins (§4.1 step 2 vs 3).
const maxSmallRequest = minChunkSize + (nSmallBins-1)*smallBinSpacing

// minLargeSize is the smallest padded size that can only be served by a
// tree bin.
const minLargeSize = maxSmallRequest + smallBinSpacing

// pinuseBit and cinuseBit are the two flag bits packed into the low bits of
// head; a chunk's size is always a multiple of 8 so bits 0 and 1 are free.
const (
	pinuseBit uintptr = 1 << 0
	cinuseBit uintptr = 1 << 1
	flagsMask uintptr = pinuseBit | cinuseBit
)

// defaultPageSize is used when a MemorySpace is not given an explicit page
// size; the spec calls out 64 KiB as typical.
const defaultPageSize = int64(64 * 1024)

// defaultSegmentGranularity is the size each small-class space reserves
// (the large class reserves four times it). shrinkTop logs a warning when a
// space's committed footprint stays above it; no pages are released to the
// OS on that account.
const defaultSegmentGranularity = int64(16 * 1024 * 1024)

// defaultSegmentThreshold is the padded request size at or above which a
// request that bins, dv and top cannot serve skips segment growth and is
// served from a standalone OS reservation (§4.1 step 7).
const defaultSegmentThreshold = int64(1 * 1024 * 1024)

// nSpaces is the number of independent MemorySpace instances a
// GeneralAllocator dispatches across (§3 size classes): 20 small spaces
// plus one large space.
const nSpaces = 21

// spaceIndex dispatches a request size to a space index per §3:
// size < 64 -> size>>3 (0-7), 64 <= size < 256 -> (size>>4)+4 (8-19),
// size >= 256 -> 20. The middle branch assigns to the single outer `index`
// variable per the Open Question resolved in SPEC_FULL.md §9.
func spaceIndex(size int64) int {
	var index int
	if size < 64 {
		index = int(size >> 3)
	} else if size < 256 {
		index = int(size>>4) + 4
	} else {
		index = nSpaces - 1
	}
	return index
}
