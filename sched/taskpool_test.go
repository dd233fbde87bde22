package sched

import "testing"

func TestTaskPoolAcquireReleaseExhaustion(t *testing.T) {
	p := newTaskPool(3, 4)

	var ids []TaskID
	for i := 0; i < 4; i++ {
		task, ok := p.acquire()
		if !ok {
			t.Fatalf("expected slot %v to be available", i)
		}
		if task.id.poolIndex() != 3 {
			t.Errorf("expected pool index 3, got %v", task.id.poolIndex())
		}
		if task.OpenTasks() != 1 {
			t.Errorf("expected a fresh task to start with open_tasks=1, got %v", task.OpenTasks())
		}
		ids = append(ids, task.id)
	}
	if _, ok := p.acquire(); ok {
		t.Errorf("expected the pool to be exhausted after 4 acquisitions")
	}
	if p.live() != 4 {
		t.Errorf("expected live()=4, got %v", p.live())
	}

	for _, id := range ids {
		p.release(id.slot())
	}
	if p.live() != 0 {
		t.Errorf("expected live()=0 after releasing everything, got %v", p.live())
	}

	if _, ok := p.acquire(); !ok {
		t.Errorf("expected a slot to be reusable after release")
	}
}

func TestTaskIDPacking(t *testing.T) {
	id := makeTaskID(5, 1234)
	if id.poolIndex() != 5 {
		t.Errorf("expected pool index 5, got %v", id.poolIndex())
	}
	if id.slot() != 1234 {
		t.Errorf("expected slot 1234, got %v", id.slot())
	}
}
