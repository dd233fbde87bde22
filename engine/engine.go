// Package engine is the facade an application actually embeds: one
// lib.Config builds a malloc.GeneralAllocator paired with a sched.Scheduler,
// either bare or wrapped in the bounds-checking/tracking decorators,
// following the same settings-mixin construction style the teacher uses to
// wire its storage engines together from one Config.
package engine

import (
	"github.com/bnclabs/vmalloc/api"
	"github.com/bnclabs/vmalloc/lib"
	"github.com/bnclabs/vmalloc/log"
	"github.com/bnclabs/vmalloc/malloc"
	"github.com/bnclabs/vmalloc/sched"
)

// Defaultsettings returns the Config an Engine falls back to for any key
// not supplied by the caller, mirroring the teacher's own
// `Defaultsettings()` constructors.
func Defaultsettings() lib.Config {
	return lib.Config{
		"workers":     0,     // <=0 means detect via runtime.NumCPU
		"track":       false, // wrap the allocator in malloc.Tracked
		"boundscheck": false, // wrap the allocator in malloc.BoundsChecked
	}
}

// Engine owns one allocator and one scheduler built from a single Config.
type Engine struct {
	config lib.Config
	alloc  api.Allocator
	sched  *sched.Scheduler
}

// New builds and initialises an Engine; config is mixed over
// Defaultsettings() the way the teacher mixes settings via lib.Config.Mixin.
func New(config lib.Config) (*Engine, bool) {
	config = lib.Mixinconfig(Defaultsettings(), config)

	var alloc api.Allocator = malloc.NewGeneralAllocator()
	if !alloc.Init() {
		log.Errorf("engine: allocator init failed\n")
		return nil, false
	}
	if config.Bool("track") {
		alloc = malloc.NewTracked(alloc)
	}
	if config.Bool("boundscheck") {
		alloc = malloc.NewBoundsChecked(alloc)
	}

	n := int(config.Int64("workers"))
	s := sched.NewScheduler(alloc, n)
	if !s.Init() {
		log.Errorf("engine: scheduler init failed\n")
		return nil, false
	}

	return &Engine{config: config, alloc: alloc, sched: s}, true
}

// Allocator returns the configured api.Allocator (possibly decorator-wrapped).
func (e *Engine) Allocator() api.Allocator { return e.alloc }

// Scheduler returns the owned work-stealing scheduler.
func (e *Engine) Scheduler() *sched.Scheduler { return e.sched }

// Start spawns worker goroutines 1..N-1; the caller must still call Run()
// itself to act as worker 0.
func (e *Engine) Start() { e.sched.Start() }

// Run blocks the calling goroutine as worker 0 until shutdown is requested.
func (e *Engine) Run() { e.sched.Run() }

// Shutdown requests drain, joins every spawned worker, and releases queues.
func (e *Engine) Shutdown() {
	e.sched.RequestShutdown()
	e.sched.Wait()
	e.sched.Close()
}
