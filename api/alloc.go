// Package api defines the interfaces shared by the allocator and scheduler
// packages, so that neither has to import the other's concrete types.
package api

import (
	"fmt"
	"runtime"
	"unsafe"
)

// DefaultAlignment used when a caller does not request a specific one.
const DefaultAlignment = 8

// Site records optional debug provenance for an allocation: the file, line
// and function of the caller. Zero value means "not tracked".
type Site struct {
	File string
	Line int
	Func string
}

func (s Site) String() string {
	if s.File == "" {
		return "<untracked>"
	}
	return fmt.Sprintf("%s:%d %s", s.File, s.Line, s.Func)
}

// Caller captures a Site for the frame `skip` levels above its own caller.
// Use skip=0 to capture the direct caller of Caller().
func Caller(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{}
	}
	fn := runtime.FuncForPC(pc)
	name := ""
	if fn != nil {
		name = fn.Name()
	}
	return Site{File: file, Line: line, Func: name}
}

// Allocator is the facade implemented by every allocator in this module:
// the bump arena, the fixed-size pool, the segregated heap, and the
// bounds-checking/tracking decorators that wrap them.
type Allocator interface {
	// Init prepares the allocator for use, reserving/committing memory as
	// needed. Must be called exactly once before any other method.
	Init() bool

	// Allocate returns a pointer p such that (p+offset)%alignment == 0 and
	// the usable region is at least size bytes, or nil on failure.
	Allocate(size, alignment, offset int64, site Site) unsafe.Pointer

	// Callocate allocates n*elemSize bytes; returns nil on overflow or
	// failure. Unlike C calloc, contents are not guaranteed to be zeroed
	// unless the underlying pages are fresh from the OS.
	Callocate(n, elemSize int64, site Site) unsafe.Pointer

	// Deallocate releases memory obtained from Allocate/Callocate. Freeing
	// nil is a no-op; double free is undefined.
	Deallocate(ptr unsafe.Pointer)

	// GetAllocSize returns the usable size of the chunk backing ptr.
	GetAllocSize(ptr unsafe.Pointer) int64

	// GetTotalAllocated returns the total committed footprint.
	GetTotalAllocated() int64
}
