package vm

import (
	"sync"
	"unsafe"

	"github.com/cloudfoundry/gosigar"
	"golang.org/x/sys/unix"
)

// segments tracks the byte slice backing each live reservation so Release
// can hand it back to Munmap without the caller carrying the slice header
// around itself.
var (
	segmentsMu sync.Mutex
	segments   = map[uintptr][]byte{}
)

func track(b []byte) uintptr {
	base := uintptr(unsafe.Pointer(&b[0]))
	segmentsMu.Lock()
	segments[base] = b
	segmentsMu.Unlock()
	return base
}

// ReserveSegment reserves `size` bytes of address space without committing
// any pages (PROT_NONE). If hint is non-zero, the OS is asked to place the
// mapping exactly there; when it cannot, ReserveSegment returns (0, false)
// instead of silently placing it elsewhere, so the caller (MemorySpace,
// growing its segment contiguously) can fall back to a standalone OS
// allocation per §4.1 step 6/7.
func ReserveSegment(size int64, hint uintptr) (uintptr, bool) {
	if hint == 0 {
		b, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE,
			unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			return 0, false
		}
		return track(b), true
	}

	// A hinted reservation must land at the exact address, so it is made
	// with the raw mmap(2) syscall (x/sys/unix does not expose the addr
	// argument through its Mmap wrapper, which always passes addr=0).
	addr, _, errno := unix.Syscall6(
		unix.SYS_MMAP, hint, uintptr(size),
		uintptr(unix.PROT_NONE), uintptr(unix.MAP_ANON|unix.MAP_PRIVATE),
		^uintptr(0), 0)
	if errno != 0 || addr != hint {
		if errno == 0 {
			unix.Syscall(unix.SYS_MUNMAP, addr, uintptr(size), 0)
		}
		return 0, false
	}
	b := unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
	return track(b), true
}

// ReleaseSegment releases the entire reservation at ptr.
func ReleaseSegment(ptr uintptr, size int64) {
	segmentsMu.Lock()
	b, ok := segments[ptr]
	delete(segments, ptr)
	segmentsMu.Unlock()
	if !ok {
		b = unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	}
	unix.Munmap(b)
}

// CommitPage makes the page-aligned range [ptr, ptr+size) readable/writable.
func CommitPage(ptr uintptr, size int64) bool {
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	return unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE) == nil
}

// DecommitPage releases the backing storage for [ptr, ptr+size) but keeps
// the reservation alive.
func DecommitPage(ptr uintptr, size int64) bool {
	b := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
	unix.Madvise(b, unix.MADV_DONTNEED)
	return unix.Mprotect(b, unix.PROT_NONE) == nil
}

// ReserveCommitSegment reserves and commits `size` bytes in one step, used
// by the bump arena which never grows or shrinks its footprint.
func ReserveCommitSegment(size int64) (uintptr, bool) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, false
	}
	return track(b), true
}

// PageSize returns the host page size.
func PageSize() int64 {
	return int64(unix.Getpagesize())
}

// HostMemory reports total/used/free physical memory via sigar.Mem{}, as
// printed by the CLI's -stats flag.
func HostMemory() (total, used, free uint64) {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		return 0, 0, 0
	}
	return mem.Total, mem.Used, mem.Free
}
