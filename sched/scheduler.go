package sched

import (
	"runtime"
	"sync"

	"github.com/bnclabs/vmalloc/api"
	"github.com/bnclabs/vmalloc/log"
)

// Scheduler owns one global inbox, one global task pool, N local deques and
// N local task pools, and N-1 spawned worker goroutines; index 0 is the
// calling goroutine itself (§4.6, Open Question 1).
type Scheduler struct {
	alloc api.Allocator
	n     int // worker count, detected from the OS unless overridden

	globalInbox *Inbox
	globalPool  *taskPool // pool index == n

	deques []*Deque    // [0..n-1]
	pools  []*taskPool // [0..n-1]

	wg sync.WaitGroup
}

// NewScheduler configures a scheduler with n workers; n<=0 detects the
// logical processor count via runtime.NumCPU, matching "detect the worker
// count N from the OS".
func NewScheduler(alloc api.Allocator, n int) *Scheduler {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	return &Scheduler{alloc: alloc, n: n}
}

// Init allocates every owned resource. Must be called once before Start.
func (s *Scheduler) Init() bool {
	s.globalInbox = NewInbox(s.alloc, GlobalQueueSize)
	if s.globalInbox == nil {
		log.Errorf("sched: failed to allocate global inbox\n")
		return false
	}
	s.globalPool = newTaskPool(s.n, GlobalQueueSize)

	s.deques = make([]*Deque, s.n)
	s.pools = make([]*taskPool, s.n)
	for i := 0; i < s.n; i++ {
		d := NewDeque(s.alloc, WorkQueueSize)
		if d == nil {
			log.Errorf("sched: failed to allocate deque for worker %d\n", i)
			return false
		}
		s.deques[i] = d
		s.pools[i] = newTaskPool(i, WorkQueueSize)
	}
	return true
}

// NumWorkers returns N.
func (s *Scheduler) NumWorkers() int { return s.n }

// getTask resolves a TaskID to its backing slot.
func (s *Scheduler) getTask(id TaskID) *Task {
	idx := id.poolIndex()
	if idx == s.n {
		return s.globalPool.get(id.slot())
	}
	return s.pools[idx].get(id.slot())
}

func (s *Scheduler) poolFor(poolIndex int) *taskPool {
	if poolIndex == s.n {
		return s.globalPool
	}
	return s.pools[poolIndex]
}

// Submit acquires a slot from the global pool, the normal path for external
// submitters, and publishes it into the global inbox.
func (s *Scheduler) Submit(kernel TaskFunc, data TaskData, childrenToBeAdded int64) (TaskID, bool) {
	t, ok := s.globalPool.acquire()
	if !ok {
		return NilTaskID, false
	}
	t.kernel = kernel
	t.Data = data
	if childrenToBeAdded > 0 {
		t.addChildren(childrenToBeAdded)
	}
	if !s.globalInbox.Push(t.id) {
		s.globalPool.release(t.id.slot())
		return NilTaskID, false
	}
	return t.id, true
}

// SpawnChild acquires a slot from worker i's local pool, sets parent, and
// pushes it onto worker i's local deque -- the "local deque, when called
// from inside a running task" path (§4.6 Submission).
func (s *Scheduler) SpawnChild(i int, parent TaskID, kernel TaskFunc, data TaskData, childrenToBeAdded int64) (TaskID, bool) {
	t, ok := s.pools[i].acquire()
	if !ok {
		return NilTaskID, false
	}
	t.parent = parent
	t.kernel = kernel
	t.Data = data
	if childrenToBeAdded > 0 {
		t.addChildren(childrenToBeAdded)
	}
	if !s.deques[i].Push(t.id) {
		s.pools[i].release(t.id.slot())
		return NilTaskID, false
	}
	return t.id, true
}

// Start spawns workers 1..N-1 as goroutines. The caller is expected to
// additionally call Run() itself, acting as worker 0.
func (s *Scheduler) Start() {
	s.wg.Add(s.n - 1)
	for i := 1; i < s.n; i++ {
		go func(i int) {
			defer s.wg.Done()
			s.workerLoop(i)
		}(i)
	}
}

// Run executes the worker-0 loop in the calling goroutine, blocking until
// RequestShutdown drains the global inbox.
func (s *Scheduler) Run() {
	s.workerLoop(0)
}

// Wait blocks until every spawned worker (1..N-1) has returned. Call after
// Run() has itself returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// RequestShutdown signals every worker blocked in wait_for_task to drain and
// return; does not itself block.
func (s *Scheduler) RequestShutdown() {
	s.globalInbox.Shutdown()
}

// Close releases the inbox and deque ring buffers back to the allocator.
// Task pools are ordinary Go memory and need no explicit release.
func (s *Scheduler) Close() {
	s.globalInbox.Release()
	for _, d := range s.deques {
		d.Release()
	}
}

func (s *Scheduler) workerLoop(i int) {
	for {
		id, ok := s.globalInbox.WaitForTask()
		if !ok {
			return
		}
		s.run(id, i)
	}
}

// run executes task id on worker i: cooperatively steals other work while
// children are still outstanding, invokes the kernel, then joins.
func (s *Scheduler) run(id TaskID, i int) {
	t := s.getTask(id)
	for t.OpenTasks() > 1 {
		s.runOtherTasks(i)
	}
	t.kernel(&t.Data)
	s.finish(t)
}

// runOtherTasks tries, in order: the worker's own local deque, the global
// inbox, and a round-robin steal from peers starting at (i+1)%N. If all
// fail it yields to the OS and returns (§4.6).
func (s *Scheduler) runOtherTasks(i int) {
	if id, ok := s.deques[i].Pop(); ok {
		s.run(id, i)
		return
	}
	if id, ok := s.globalInbox.Pop(); ok {
		s.run(id, i)
		return
	}
	for off := 1; off < s.n; off++ {
		peer := (i + off) % s.n
		if peer == i {
			continue
		}
		if id, ok := s.deques[peer].Steal(); ok {
			s.run(id, i)
			return
		}
	}
	runtime.Gosched()
}

// finish decrements task.open_tasks; when it reaches 0 the slot is returned
// to its originating pool and, recursively, the parent's counter is
// decremented the same way (§4.6).
func (s *Scheduler) finish(t *Task) {
	for {
		remaining := t.decrementOpenTasks()
		if remaining != 0 {
			return
		}
		parent := t.parent
		s.poolFor(t.id.poolIndex()).release(t.id.slot())
		if parent == NilTaskID {
			return
		}
		t = s.getTask(parent)
	}
}

// IsTaskFinished reports whether the resolved task's open_tasks counter has
// reached 0. Callers must keep the task's owning slot alive for as long as
// they query it.
func (s *Scheduler) IsTaskFinished(id TaskID) bool {
	return s.getTask(id).OpenTasks() == 0
}
