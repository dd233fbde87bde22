package sched

import (
	"sync/atomic"
	"unsafe"
)

// WorkQueueSize is the capacity of each worker's local deque.
const WorkQueueSize = 1024

// GlobalQueueSize is the capacity of the global inbox and global task pool.
const GlobalQueueSize = 128

// TaskID packs a pool index (high bits) and a slot offset (low 16 bits),
// per §3/§4.6: `(pool_index << 16) | slot_offset`. pool_index == N (the
// worker count) denotes the global pool; 0..N-1 denote local pools.
type TaskID int64

// NilTaskID denotes "no task"/"no parent".
const NilTaskID TaskID = -1

func makeTaskID(poolIndex, slot int) TaskID {
	return TaskID(int64(poolIndex)<<16 | int64(slot))
}

func (id TaskID) poolIndex() int { return int(id >> 16) }
func (id TaskID) slot() int      { return int(id & 0xFFFF) }

// TaskFunc is a kernel: the function body executed when a task runs.
type TaskFunc func(*TaskData)

// TaskData is the kernel-visible payload: a general pointer plus a
// streaming sub-record of up to four input and four output stream
// pointers and an element count (§3).
type TaskData struct {
	Ptr    unsafe.Pointer
	Ins    [4]unsafe.Pointer
	Outs   [4]unsafe.Pointer
	Count  int64
}

// Task is a scheduler-owned record: created into a pool slot, published,
// executed, then returned to its pool once open_tasks reaches 0.
type Task struct {
	openTasks int64 // atomic: live children + 1
	id        TaskID
	parent    TaskID
	kernel    TaskFunc
	Data      TaskData

	nextFree int32 // intrusive free-list link within its pool, mirrors malloc.Pool
}

// ID returns this task's packed identifier.
func (t *Task) ID() TaskID { return t.id }

// OpenTasks returns the current live-children+1 counter.
func (t *Task) OpenTasks() int64 { return atomic.LoadInt64(&t.openTasks) }

// addChildren reserves n additional open slots atomically, used when a
// task is constructed with children_to_be_added > 0.
func (t *Task) addChildren(n int64) {
	atomic.AddInt64(&t.openTasks, n)
}

// decrementOpenTasks atomically decrements open_tasks by one and returns
// the resulting value, used by Scheduler.finish to detect join completion.
func (t *Task) decrementOpenTasks() int64 {
	return atomic.AddInt64(&t.openTasks, -1)
}
