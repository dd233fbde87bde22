package sched

import "sync"

// taskPool is an array of Task slots threaded with an intrusive
// singly-linked free list, the same discipline as malloc.Pool (§4.3) --
// but over an ordinary Go slice rather than raw OS memory, since Task
// carries a kernel closure and a parent TaskID that must stay inside
// memory the garbage collector scans.
type taskPool struct {
	mu       sync.Mutex
	index    int
	slots    []Task
	freeHead int32
	inUse    int
}

func newTaskPool(index int, capacity int) *taskPool {
	slots := make([]Task, capacity)
	for i := range slots {
		if i+1 < len(slots) {
			slots[i].nextFree = int32(i + 1)
		} else {
			slots[i].nextFree = -1
		}
	}
	return &taskPool{index: index, slots: slots, freeHead: 0}
}

// acquire returns a fresh slot initialised with openTasks=1, or ok=false
// if the pool is exhausted.
func (p *taskPool) acquire() (*Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.freeHead < 0 {
		return nil, false
	}
	slot := p.freeHead
	t := &p.slots[slot]
	p.freeHead = t.nextFree
	*t = Task{id: makeTaskID(p.index, int(slot)), parent: NilTaskID, openTasks: 1}
	p.inUse++
	return t, true
}

// release returns slot to the free list.
func (p *taskPool) release(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[slot].nextFree = p.freeHead
	p.freeHead = int32(slot)
	p.inUse--
}

func (p *taskPool) get(slot int) *Task {
	return &p.slots[slot]
}

// live reports the number of slots currently in use, for tests asserting
// a pool has drained (§8 scenario 5/6).
func (p *taskPool) live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}
