package main

import "fmt"
import "flag"
import "sync"
import "sync/atomic"
import "time"

import "github.com/bnclabs/vmalloc/engine"
import "github.com/bnclabs/vmalloc/lib"
import "github.com/bnclabs/vmalloc/malloc"
import "github.com/bnclabs/vmalloc/sched"
import "github.com/bnclabs/vmalloc/vm"
import hm "github.com/dustin/go-humanize"

var options struct {
	workers int
	ntasks  int
	fanout  int
	track   bool
	stats   bool
}

func argParse() {
	flag.IntVar(&options.workers, "workers", 0,
		"number of scheduler workers, 0 detects runtime.NumCPU")
	flag.IntVar(&options.ntasks, "ntasks", 10000,
		"number of leaf tasks to submit")
	flag.IntVar(&options.fanout, "fanout", 0,
		"when >0, submit one root task that fans out this many children")
	flag.BoolVar(&options.track, "track", false,
		"wrap the allocator in malloc.Tracked and print per-site stats")
	flag.BoolVar(&options.stats, "stats", false,
		"print host memory stats before running")
	flag.Parse()
}

func main() {
	argParse()
	if options.stats {
		printHostStats()
	}

	config := lib.Config{
		"workers": int64(options.workers),
		"track":   options.track,
	}
	e, ok := engine.New(config)
	if !ok {
		fmt.Println("engine: init failed")
		return
	}

	// Start spawns workers 1..N-1; the calling goroutine normally runs the
	// worker-0 loop itself, but here the main goroutine is busy submitting
	// and polling, so worker 0 runs in its own goroutine instead.
	e.Start()
	var worker0 sync.WaitGroup
	worker0.Add(1)
	go func() {
		defer worker0.Done()
		e.Run()
	}()

	now := time.Now()
	if options.fanout > 0 {
		runFanout(e)
	} else {
		runFlat(e)
	}
	elapsed := time.Since(now)

	e.Scheduler().RequestShutdown()
	worker0.Wait()
	e.Scheduler().Wait()
	e.Scheduler().Close()

	fmt.Printf("ran %v tasks across %v workers in %v\n",
		options.ntasks, e.Scheduler().NumWorkers(), elapsed)

	if options.track {
		printTrackStats(e)
	}
}

func printHostStats() {
	total, used, free := vm.HostMemory()
	fmsg := "host memory: total %v used %v free %v, page size %v\n"
	fmt.Printf(fmsg, hm.Bytes(total), hm.Bytes(used), hm.Bytes(free), vm.PageSize())
}

// runFlat submits ntasks independent leaf tasks into the global inbox and
// waits for all of them to finish, the §8 scenario-5-shaped benchmark.
func runFlat(e *engine.Engine) {
	n := options.ntasks
	var counter int64
	ids := make([]sched.TaskID, 0, n)
	for i := 0; i < n; i++ {
		id, ok := e.Scheduler().Submit(func(_ *sched.TaskData) {
			atomic.AddInt64(&counter, 1)
		}, sched.TaskData{}, 0)
		if ok {
			ids = append(ids, id)
		}
	}
	pollUntilDone(e, ids)
	fmt.Printf("flat benchmark: %v/%v tasks completed\n", atomic.LoadInt64(&counter), n)
}

// runFanout submits one root task whose open_tasks counter reserves
// `fanout` children up front, spawns them onto worker 0's local deque, and
// waits on completion, the §8 scenario-6-shaped parent/child join benchmark.
func runFanout(e *engine.Engine) {
	var counter int64
	root, ok := e.Scheduler().Submit(func(_ *sched.TaskData) {
		atomic.AddInt64(&counter, 1)
	}, sched.TaskData{}, int64(options.fanout))
	if !ok {
		fmt.Println("fanout: root submission failed")
		return
	}
	for i := 0; i < options.fanout; i++ {
		e.Scheduler().SpawnChild(0, root, func(_ *sched.TaskData) {
			atomic.AddInt64(&counter, 1)
		}, sched.TaskData{}, 0)
	}
	pollUntilDone(e, []sched.TaskID{root})
	fmt.Printf("fanout benchmark: %v/%v tasks completed (root+children)\n",
		atomic.LoadInt64(&counter), options.fanout+1)
}

func pollUntilDone(e *engine.Engine, ids []sched.TaskID) {
	for {
		pending := 0
		for _, id := range ids {
			if !e.Scheduler().IsTaskFinished(id) {
				pending++
			}
		}
		if pending == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func printTrackStats(e *engine.Engine) {
	tr, ok := e.Allocator().(*malloc.Tracked)
	if !ok {
		return
	}
	stats := make(map[string]interface{})
	for site, st := range tr.Stats() {
		stats[site.String()] = map[string]interface{}{
			"allocs": st.Allocs,
			"frees":  st.Frees,
			"live":   st.LiveSize,
		}
	}
	fmt.Println(lib.Prettystats(stats, true))
}
