// Package malloc supplies the allocators used by this module: a
// single-threaded bump arena, a fixed-size slot pool, and a dlmalloc-style
// segregated heap (GeneralAllocator) built from 21 independent MemorySpace
// instances keyed by size class.
//
// Types and functions exported by this package are safe for concurrent use
// only where documented: MemorySpace serialises itself with a mutex,
// GeneralAllocator dispatches to one MemorySpace per call, and Bump and Pool
// each serialise their methods on an internal mutex.
//
// Memory for every space, the bump arena, and a pool's backing region comes
// straight from the OS via the vm package: nothing here allocates Go-managed
// memory for chunk payloads, so the Go garbage collector never scans or
// moves a byte a caller's pointer refers to.
package malloc

// Spaces are never compacted across size classes, and two mostly-empty
// adjacent spaces are never merged. GeneralAllocator.Deallocate destroys a
// space only when MemorySpace.free reports that its top chunk spans the
// whole reserved segment; a space's top starts as one committed page, so
// freeing every allocation in a space does not destroy it.
