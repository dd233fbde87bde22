package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bnclabs/vmalloc/lib"
	"github.com/bnclabs/vmalloc/sched"
)

func TestEngineRunsSubmittedTasks(t *testing.T) {
	e, ok := New(lib.Config{"workers": int64(2)})
	if !ok {
		t.Fatalf("expected engine construction to succeed")
	}

	e.Start()
	var worker0 sync.WaitGroup
	worker0.Add(1)
	go func() {
		defer worker0.Done()
		e.Run()
	}()

	var counter int64
	id, ok := e.Scheduler().Submit(func(_ *sched.TaskData) {
		atomic.AddInt64(&counter, 1)
	}, sched.TaskData{}, 0)
	if !ok {
		t.Fatalf("expected submission to succeed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !e.Scheduler().IsTaskFinished(id) {
		time.Sleep(time.Millisecond)
	}
	if !e.Scheduler().IsTaskFinished(id) {
		t.Fatalf("expected task to finish within the deadline")
	}
	if atomic.LoadInt64(&counter) != 1 {
		t.Errorf("expected the kernel to have run exactly once, got %v", counter)
	}

	e.Scheduler().RequestShutdown()
	worker0.Wait()
	e.Scheduler().Wait()
	e.Scheduler().Close()
}

func TestEngineTrackedAllocator(t *testing.T) {
	e, ok := New(lib.Config{"workers": int64(1), "track": true})
	if !ok {
		t.Fatalf("expected engine construction to succeed")
	}
	if e.Allocator() == nil {
		t.Fatalf("expected a non-nil allocator")
	}
}
