package sched

import (
	"sync/atomic"
	"unsafe"

	"github.com/bnclabs/vmalloc/api"
)

// Deque is a per-worker bounded lock-free work-stealing deque (§4.4): the
// owner pushes/pops at the bottom, thieves steal from the top. Its ring
// buffer holds TaskID values -- plain int64s, no Go pointers -- so it can
// be backed by memory obtained straight from an api.Allocator instead of
// Go-managed memory, honouring "the scheduler allocates all of its
// internal data structures ... through the allocator interface".
type Deque struct {
	alloc    api.Allocator
	buf      []int64
	capacity int64
	top      atomic.Int64
	bottom   atomic.Int64
}

// NewDeque allocates a ring buffer of `capacity` slots from alloc.
func NewDeque(alloc api.Allocator, capacity int64) *Deque {
	mem := alloc.Allocate(capacity*8, 8, 0, api.Site{})
	if mem == nil {
		return nil
	}
	return &Deque{
		alloc:    alloc,
		buf:      unsafe.Slice((*int64)(mem), int(capacity)),
		capacity: capacity,
	}
}

// Release gives the ring buffer back to the allocator.
func (d *Deque) Release() {
	if len(d.buf) > 0 {
		d.alloc.Deallocate(unsafe.Pointer(&d.buf[0]))
		d.buf = nil
	}
}

// Push is owner-only. Returns false on overflow (a bounded-queue error,
// reported rather than retried, §7).
func (d *Deque) Push(id TaskID) bool {
	b := d.bottom.Load()
	t := d.top.Load()
	if b-t >= d.capacity {
		return false
	}
	atomic.StoreInt64(&d.buf[b%d.capacity], int64(id))
	d.bottom.Store(b + 1)
	return true
}

// Pop is owner-only.
func (d *Deque) Pop() (TaskID, bool) {
	b := d.bottom.Load() - 1
	d.bottom.Store(b)
	t := d.top.Load()

	if t > b {
		d.bottom.Store(t)
		return NilTaskID, false
	}

	id := TaskID(atomic.LoadInt64(&d.buf[b%d.capacity]))
	if t == b {
		ok := d.top.CompareAndSwap(t, t+1)
		d.bottom.Store(t + 1)
		if !ok {
			return NilTaskID, false
		}
		return id, true
	}
	return id, true
}

// Steal is safe for any number of concurrent thief callers.
func (d *Deque) Steal() (TaskID, bool) {
	t := d.top.Load()
	b := d.bottom.Load()
	if t >= b {
		return NilTaskID, false
	}
	id := TaskID(atomic.LoadInt64(&d.buf[t%d.capacity]))
	if !d.top.CompareAndSwap(t, t+1) {
		return NilTaskID, false
	}
	return id, true
}
