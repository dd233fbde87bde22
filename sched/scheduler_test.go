package sched

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnclabs/vmalloc/malloc"
)

func newTestScheduler(t *testing.T, workers int) (*Scheduler, func()) {
	t.Helper()
	alloc := malloc.NewGeneralAllocator()
	if !alloc.Init() {
		t.Fatalf("expected allocator init to succeed")
	}
	s := NewScheduler(alloc, workers)
	if !s.Init() {
		t.Fatalf("expected scheduler init to succeed")
	}

	s.Start()
	var worker0 sync.WaitGroup
	worker0.Add(1)
	go func() {
		defer worker0.Done()
		s.Run()
	}()

	teardown := func() {
		s.RequestShutdown()
		worker0.Wait()
		s.Wait()
		s.Close()
	}
	return s, teardown
}

func waitFinished(t *testing.T, s *Scheduler, id TaskID) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.IsTaskFinished(id) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %v did not finish within the deadline", id)
}

// TestSchedulerFlatSubmission is the §8 scenario-5-shaped benchmark, scaled
// to the global pool/inbox capacity: a batch of independent leaf tasks
// submitted through the global inbox, each incrementing a shared counter.
func TestSchedulerFlatSubmission(t *testing.T) {
	const n = 100
	s, teardown := newTestScheduler(t, 4)
	defer teardown()

	var counter int64
	ids := make([]TaskID, 0, n)
	for i := 0; i < n; i++ {
		id, ok := s.Submit(func(_ *TaskData) {
			atomic.AddInt64(&counter, 1)
		}, TaskData{}, 0)
		if !ok {
			t.Fatalf("expected submission %v to succeed", i)
		}
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitFinished(t, s, id)
	}
	if got := atomic.LoadInt64(&counter); got != n {
		t.Errorf("expected %v tasks to run, got %v", n, got)
	}
}

// TestSchedulerParentChildJoin is the §8 scenario-6-shaped benchmark: one
// root task reserves 72 child slots (73 tasks total including itself), each
// child incrementing a shared counter; the root's own kernel only runs once
// every child has finished.
func TestSchedulerParentChildJoin(t *testing.T) {
	const fanout = 72
	s, teardown := newTestScheduler(t, 4)
	defer teardown()

	var counter int64
	var childrenDoneBeforeRoot int64
	root, ok := s.Submit(func(_ *TaskData) {
		childrenDoneBeforeRoot = atomic.LoadInt64(&counter)
		atomic.AddInt64(&counter, 1)
	}, TaskData{}, fanout)
	if !ok {
		t.Fatalf("expected root submission to succeed")
	}

	for i := 0; i < fanout; i++ {
		if _, ok := s.SpawnChild(0, root, func(_ *TaskData) {
			atomic.AddInt64(&counter, 1)
		}, TaskData{}, 0); !ok {
			t.Fatalf("expected child submission %v to succeed", i)
		}
	}

	waitFinished(t, s, root)
	if got := atomic.LoadInt64(&counter); got != fanout+1 {
		t.Errorf("expected %v total completions (root+children), got %v", fanout+1, got)
	}
	if childrenDoneBeforeRoot != fanout {
		t.Errorf("expected all %v children to finish before the root kernel ran, got %v", fanout, childrenDoneBeforeRoot)
	}
}

func TestSchedulerIsTaskFinishedBeforeCompletion(t *testing.T) {
	s, teardown := newTestScheduler(t, 2)
	defer teardown()

	var release = make(chan struct{})
	id, ok := s.Submit(func(_ *TaskData) {
		<-release
	}, TaskData{}, 0)
	if !ok {
		t.Fatalf("expected submission to succeed")
	}

	time.Sleep(20 * time.Millisecond)
	if s.IsTaskFinished(id) {
		t.Errorf("expected task to still be running")
	}
	close(release)
	waitFinished(t, s, id)
}
