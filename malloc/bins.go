package malloc

import "github.com/bnclabs/vmalloc/lib"

// smallBinIndex is only valid for nb <= maxSmallRequest.
func smallBinIndex(nb int64) int {
	return int((nb - minChunkSize) / smallBinSpacing)
}

func smallIndexToSize(idx int) int64 {
	return minChunkSize + int64(idx)*smallBinSpacing
}

// treeBinIndex maps a chunk size onto one of the 32 tree bins, per §4.1:
// "bitscan_reverse(s>>8)*2 + extraBit".
func treeBinIndex(size int64) int {
	x := size >> 8
	if x == 0 {
		return 0
	}
	if x > 0xffff {
		return nTreeBins - 1
	}
	k := int(lib.Bit32(uint32(x)).Findlastset())
	idx := (k << 1) + int((size>>uint(k+7))&1)
	if idx > nTreeBins-1 {
		idx = nTreeBins - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

//---- small bin rings (doubly-linked, no sentinel: head==0 means empty)

func (ms *MemorySpace) smallBinEmpty(idx int) bool {
	return ms.smallMap&(1<<uint(idx)) == 0
}

func (ms *MemorySpace) markSmallBin(idx int, nonEmpty bool) {
	if nonEmpty {
		ms.smallMap |= 1 << uint(idx)
	} else {
		ms.smallMap &^= 1 << uint(idx)
	}
}

// insertSmallChunk links c into small bin idx.
func (ms *MemorySpace) insertSmallChunk(idx int, c uintptr) {
	head := ms.smallBins[idx]
	if head == 0 {
		setChunkFd(c, c)
		setChunkBk(c, c)
		ms.smallBins[idx] = c
		ms.markSmallBin(idx, true)
		return
	}
	tail := chunkBk(head)
	setChunkFd(tail, c)
	setChunkBk(c, tail)
	setChunkFd(c, head)
	setChunkBk(head, c)
}

// unlinkChunkFromRing removes c from whatever doubly-linked ring it is
// currently part of (small bin or tree-bin same-size ring), given the bin's
// current head. Returns the new head (0 if the ring is now empty).
func unlinkChunkFromRing(head, c uintptr) uintptr {
	fd, bk := chunkFd(c), chunkBk(c)
	if fd == c { // only member
		return 0
	}
	setChunkBk(fd, bk)
	setChunkFd(bk, fd)
	if head == c {
		return fd
	}
	return head
}

func (ms *MemorySpace) unlinkSmallChunk(idx int, c uintptr) {
	newHead := unlinkChunkFromRing(ms.smallBins[idx], c)
	ms.smallBins[idx] = newHead
	if newHead == 0 {
		ms.markSmallBin(idx, false)
	}
}

// firstSmallChunkAtLeast returns the head of the smallest non-empty small
// bin with index >= from, or 0 if none.
func (ms *MemorySpace) firstSmallChunkAtLeast(from int) (int, uintptr) {
	mask := ms.smallMap &^ ((1 << uint(from)) - 1)
	if mask == 0 {
		return -1, 0
	}
	idx := int(lib.Bit32(mask).Findfirstset())
	return idx, ms.smallBins[idx]
}

//---- tree bins: a size-keyed binary search tree per bin, duplicates form a
// ring off the tree-resident node (the only ring member with a non-zero
// parent).

func (ms *MemorySpace) treeBinEmpty(idx int) bool {
	return ms.treeMap&(1<<uint(idx)) == 0
}

func (ms *MemorySpace) markTreeBin(idx int, nonEmpty bool) {
	if nonEmpty {
		ms.treeMap |= 1 << uint(idx)
	} else {
		ms.treeMap &^= 1 << uint(idx)
	}
}

// insertTreeChunk inserts a free chunk of treeChunkSize-or-larger capacity
// into its size-indexed bin.
func (ms *MemorySpace) insertTreeChunk(c uintptr) {
	size := chunkSize(c)
	idx := treeBinIndex(size)
	root := ms.treeBins[idx]
	setChunkChild(c, 0, 0)
	setChunkChild(c, 1, 0)
	setChunkTreeIndex(c, idx)

	if root == 0 {
		ms.treeBins[idx] = c
		setChunkParent(c, c) // self-parent marks "is the tree root", never 0/absent
		setChunkFd(c, c)
		setChunkBk(c, c)
		ms.markTreeBin(idx, true)
		return
	}

	node := root
	for {
		nsize := chunkSize(node)
		if size == nsize {
			// join the same-size ring; c is not tree-linked.
			tail := chunkBk(node)
			setChunkFd(tail, c)
			setChunkBk(c, tail)
			setChunkFd(c, node)
			setChunkBk(node, c)
			setChunkParent(c, 0)
			return
		}
		side := 0
		if size > nsize {
			side = 1
		}
		child := chunkChild(node, side)
		if child == 0 {
			setChunkChild(node, side, c)
			setChunkParent(c, node)
			setChunkFd(c, c)
			setChunkBk(c, c)
			return
		}
		node = child
	}
}

// unlinkTreeChunk removes c (a tree-resident node or a ring member) from
// its bin, restructuring the tree if c itself was the tree-resident node.
func (ms *MemorySpace) unlinkTreeChunk(c uintptr) {
	idx := chunkTreeIndex(c)
	fd, bk := chunkFd(c), chunkBk(c)

	if fd != c {
		// part of a same-size ring; promote the next ring member if c was
		// the tree-resident node, otherwise just unlink from the ring.
		setChunkBk(fd, bk)
		setChunkFd(bk, fd)
		if chunkParent(c) != 0 { // c was the tree-resident node
			replacement := fd
			parent := chunkParent(c)
			setChunkChild(replacement, 0, chunkChild(c, 0))
			setChunkChild(replacement, 1, chunkChild(c, 1))
			if chunkChild(c, 0) != 0 {
				setChunkParent(chunkChild(c, 0), replacement)
			}
			if chunkChild(c, 1) != 0 {
				setChunkParent(chunkChild(c, 1), replacement)
			}
			setChunkTreeIndex(replacement, idx)
			if parent == c {
				ms.treeBins[idx] = replacement
				setChunkParent(replacement, replacement)
			} else {
				side := 0
				if chunkChild(parent, 1) == c {
					side = 1
				}
				setChunkChild(parent, side, replacement)
				setChunkParent(replacement, parent)
			}
		}
		return
	}

	// c is the sole ring member and the tree-resident node: splice it out
	// of the tree using standard BST deletion.
	left, right := chunkChild(c, 0), chunkChild(c, 1)
	parent := chunkParent(c)

	var replacement uintptr
	switch {
	case left == 0:
		replacement = right
	case right == 0:
		replacement = left
	default:
		// find the in-order successor: leftmost node of the right subtree.
		succParent := c
		succ := right
		for chunkChild(succ, 0) != 0 {
			succParent = succ
			succ = chunkChild(succ, 0)
		}
		if succParent != c {
			setChunkChild(succParent, 0, chunkChild(succ, 1))
			if chunkChild(succ, 1) != 0 {
				setChunkParent(chunkChild(succ, 1), succParent)
			}
			setChunkChild(succ, 1, right)
			setChunkParent(right, succ)
		}
		setChunkChild(succ, 0, left)
		setChunkParent(left, succ)
		replacement = succ
	}

	if parent == c { // c was the root
		ms.treeBins[idx] = replacement
		if replacement != 0 {
			setChunkParent(replacement, replacement)
			setChunkTreeIndex(replacement, idx)
		}
	} else {
		side := 0
		if chunkChild(parent, 1) == c {
			side = 1
		}
		setChunkChild(parent, side, replacement)
		if replacement != 0 {
			setChunkParent(replacement, parent)
		}
	}
	if ms.treeBins[idx] == 0 {
		ms.markTreeBin(idx, false)
	}
}

// treeFindBestFit searches bin idx's tree for the smallest node with size
// >= nb, returning 0 if the bin has nothing big enough.
func (ms *MemorySpace) treeFindBestFit(idx int, nb int64) uintptr {
	node := ms.treeBins[idx]
	var best uintptr
	bestSize := int64(-1)
	for node != 0 {
		size := chunkSize(node)
		if size >= nb && (bestSize < 0 || size < bestSize) {
			best, bestSize = node, size
			if size == nb {
				break
			}
		}
		if size < nb {
			node = chunkChild(node, 1)
		} else {
			node = chunkChild(node, 0)
		}
	}
	return best
}

// smallestInTree returns the leftmost (smallest-size) node in bin idx's
// tree, used when escalating to the next non-empty tree bin above the
// size-matching one (every node there is guaranteed >= nb).
func (ms *MemorySpace) smallestInTree(idx int) uintptr {
	node := ms.treeBins[idx]
	if node == 0 {
		return 0
	}
	for chunkChild(node, 0) != 0 {
		node = chunkChild(node, 0)
	}
	return node
}

// firstTreeBinAbove finds the smallest non-empty tree bin with index > idx.
func (ms *MemorySpace) firstTreeBinAbove(idx int) int {
	if idx >= nTreeBins-1 {
		return -1
	}
	mask := ms.treeMap &^ ((1 << uint(idx+1)) - 1)
	if mask == 0 {
		return -1
	}
	return int(lib.Bit32(mask).Findfirstset())
}
