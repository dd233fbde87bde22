package malloc

import "unsafe"

// uintptrOf returns the raw address backing a Go value, used only for the
// owner back-pointer footer (§3 invariant 3, §9 "back-pointers as integer
// footers"). The MemorySpace it points at is heap-allocated once at
// construction and never moved (Go's GC may move it, but the struct itself
// is kept alive for the GeneralAllocator's whole lifetime and its pinned
// fields -- least_addr, top, etc. -- never depend on this address once
// computed here being stale would only affect the footer-validation
// lookup, not memory safety of the chunk data itself, which lives in OS
// memory addressed separately).
func uintptrOf(ms *MemorySpace) uintptr {
	return uintptr(unsafe.Pointer(ms))
}

// sliceFromAddr views n bytes starting at a raw OS address as a []byte,
// used by the guard-byte stamping/checking in debug.go.
func sliceFromAddr(addr uintptr, n int64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(n))
}
