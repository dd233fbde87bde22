// Package sched implements the work-stealing task scheduler: a bounded
// global inbox feeding N workers, each with a bounded Chase-Lev
// work-stealing deque and its own task pool, plus cooperative
// parent/child join accounting (§4.4-§4.6).
//
// Task records live in an ordinary Go-managed slice per pool (they carry
// kernel closures and Go pointers the garbage collector must track); the
// deque and inbox ring buffers hold only TaskID values (plain integers)
// and are obtained from an api.Allocator, honouring "the scheduler
// allocates all of its internal data structures ... through the allocator
// interface" for the structures where that is actually safe to do. See
// DESIGN.md for the reasoning behind this split.
package sched
