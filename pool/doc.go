// Package pool implements a fixed-capacity, lock-free, multi-producer
// multi-consumer object pool for trivially copyable, standard-layout types.
//
// A Pool hands out pointers from a power-of-two ring of pre-allocated slots
// using a per-slot sequence-counter protocol adapted from Dmitry Vyukov's
// bounded MPMC queue: Allocate claims the next "reserved" ticket the way an
// enqueue claims an empty cell. Free is not a mirror-image dequeue, though —
// unlike a value queue, a slot's payload here has no indirection to read
// back, so there is no "next" slot for Free to drain. Instead Free recovers
// the slot straight from the pointer's own offset into the payload array and
// validates and releases that specific slot's sequence state. Allocations
// that would exceed capacity transparently fall back to the Go heap; the
// same pointer-range check against the payload array that Free uses to
// locate its slot also tells the two paths apart, so callers never need to
// know which path an allocation took.
//
// The same control structure can live in process-local heap memory or in a
// named POSIX shared-memory segment, letting a single-writer owner process
// and any number of client processes share one pool across process
// boundaries. See BackingMode.
package pool
