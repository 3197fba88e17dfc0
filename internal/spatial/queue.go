// Package spatial provides cache-efficient spatial data structures used by
// the match engine for broad-phase neighbor queries, ranked leaderboards,
// and a lock-free handoff queue between worker goroutines and the engine
// thread.
package spatial

import (
	"runtime"
	"sync/atomic"
)

// CacheLineSize is the typical CPU cache line size (64 bytes on x86-64).
const CacheLineSize = 64

// Padding keeps adjacent fields off the same cache line, preventing false
// sharing between the producer-side head and the consumer-side tail.
type Padding [CacheLineSize]byte

// LockFreeQueue is a multi-producer single-consumer ring buffer: any number
// of goroutines may Push concurrently, but only the tick goroutine may ever
// call TryPop. internal/clock.Scheduler instantiates this as
// LockFreeQueue[func()] for its "background work completes, then
// re-enters the engine thread" bridge — the completion closure itself is
// the queued item, so the consumer only ever needs to invoke what it pops.
//
// Origin: Vyukov MPSC queue / LMAX Disruptor ring-buffer layout.
type LockFreeQueue[T any] struct {
	_pad0 Padding

	head  uint64 // write position (producers), own cache line
	_pad1 Padding

	tail  uint64 // read position (the single consumer), own cache line
	_pad2 Padding

	mask uint64 // capacity - 1, capacity is rounded up to a power of 2
	data []T
}

// NewLockFreeQueue creates a queue with room for at least capacity items.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	cap := 1
	for cap < capacity {
		cap <<= 1
	}
	return &LockFreeQueue[T]{
		mask: uint64(cap - 1),
		data: make([]T, cap),
	}
}

// TryPush claims the next slot via CAS and writes item. Returns false if the
// queue is full; safe to call from any number of producer goroutines.
func (q *LockFreeQueue[T]) TryPush(item T) bool {
	for {
		head := atomic.LoadUint64(&q.head)
		tail := atomic.LoadUint64(&q.tail)
		if head-tail > q.mask {
			return false
		}
		if atomic.CompareAndSwapUint64(&q.head, head, head+1) {
			q.data[head&q.mask] = item
			return true
		}
		runtime.Gosched()
	}
}

// Push spins until TryPush succeeds. The bridge queue is sized generously
// enough that producers should never actually contend this loop in
// practice; it exists so a momentarily full queue doesn't drop work.
func (q *LockFreeQueue[T]) Push(item T) {
	for !q.TryPush(item) {
		runtime.Gosched()
	}
}

// TryPop removes the oldest item. Must only be called by the single
// consumer (the tick goroutine draining the bridge each Tick).
func (q *LockFreeQueue[T]) TryPop() (T, bool) {
	var zero T
	tail := atomic.LoadUint64(&q.tail)
	head := atomic.LoadUint64(&q.head)
	if tail >= head {
		return zero, false
	}
	item := q.data[tail&q.mask]
	atomic.StoreUint64(&q.tail, tail+1)
	return item, true
}
