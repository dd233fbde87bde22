package sched

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/bnclabs/vmalloc/api"
)

// Inbox is a single-producer/multi-consumer bounded queue (§4.5). push
// serialises producers on the inbox mutex; pop races multiple workers on
// top and the loser retries. A condition variable is signalled whenever a
// publish advances bottom, waking workers blocked in WaitForTask.
type Inbox struct {
	alloc    api.Allocator
	buf      []int64
	capacity int64
	top      atomic.Int64

	mu     sync.Mutex
	cond   *sync.Cond
	bottom int64
	done   bool
}

func NewInbox(alloc api.Allocator, capacity int64) *Inbox {
	mem := alloc.Allocate(capacity*8, 8, 0, api.Site{})
	if mem == nil {
		return nil
	}
	ib := &Inbox{
		alloc:    alloc,
		buf:      unsafe.Slice((*int64)(mem), int(capacity)),
		capacity: capacity,
	}
	ib.cond = sync.NewCond(&ib.mu)
	return ib
}

func (ib *Inbox) Release() {
	if len(ib.buf) > 0 {
		ib.alloc.Deallocate(unsafe.Pointer(&ib.buf[0]))
		ib.buf = nil
	}
}

// Push publishes id under the inbox mutex, so concurrent producers are
// serialised; returns false on overflow.
func (ib *Inbox) Push(id TaskID) bool {
	ib.mu.Lock()
	top := ib.top.Load()
	if ib.bottom-top >= ib.capacity {
		ib.mu.Unlock()
		return false
	}
	atomic.StoreInt64(&ib.buf[ib.bottom%ib.capacity], int64(id))
	ib.bottom++
	ib.mu.Unlock()
	ib.cond.Broadcast()
	return true
}

// tryPop races concurrent consumers on top; the loser observes a CAS
// failure and the caller is expected to retry.
func (ib *Inbox) tryPop() (TaskID, bool) {
	t := ib.top.Load()
	ib.mu.Lock()
	b := ib.bottom
	ib.mu.Unlock()
	if t >= b {
		return NilTaskID, false
	}
	id := TaskID(atomic.LoadInt64(&ib.buf[t%ib.capacity]))
	if !ib.top.CompareAndSwap(t, t+1) {
		return NilTaskID, false
	}
	return id, true
}

// Pop attempts a single non-blocking pop, retrying internally only against
// the race with other poppers (never blocks waiting for new work).
func (ib *Inbox) Pop() (TaskID, bool) {
	for {
		t := ib.top.Load()
		ib.mu.Lock()
		b := ib.bottom
		ib.mu.Unlock()
		if t >= b {
			return NilTaskID, false
		}
		id, ok := ib.tryPop()
		if ok {
			return id, true
		}
		// lost the CAS race to another popper; the queue may now be
		// empty or may still have work, so recheck rather than spin
		// indefinitely on the same stale top.
		continue
	}
}

// WaitForTask blocks on the condition variable while the inbox is empty,
// then pops one entry. Returns ok=false once Shutdown has been called and
// no work remains.
func (ib *Inbox) WaitForTask() (TaskID, bool) {
	ib.mu.Lock()
	for ib.bottom <= ib.top.Load() && !ib.done {
		ib.cond.Wait()
	}
	empty := ib.bottom <= ib.top.Load()
	shuttingDown := ib.done
	ib.mu.Unlock()

	if empty && shuttingDown {
		return NilTaskID, false
	}
	if id, ok := ib.Pop(); ok {
		return id, true
	}
	// another worker took the entry first; wait again
	return ib.WaitForTask()
}

// Shutdown wakes every waiter; WaitForTask returns ok=false once the
// inbox has also drained.
func (ib *Inbox) Shutdown() {
	ib.mu.Lock()
	ib.done = true
	ib.mu.Unlock()
	ib.cond.Broadcast()
}
