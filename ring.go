package ringbuffer

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// Ring is a bounded multi-producer/multi-consumer FIFO of pointers.
//
// Elements travel as *T; nil is reserved as the "no element" result of
// Consume and is rejected by Produce. The size must be a power of two and
// size-1 slots are usable: one slot is sacrificed so that full and empty
// stay distinguishable by counter subtraction alone.
//
// Consumption returns elements in strict FIFO order of publication, and
// publication order always equals reservation order.
type Ring[T any] struct {
	_            cpu.CacheLinePad
	mask         uint64
	slots        []atomic.Pointer[T]
	_            cpu.CacheLinePad
	consumerHead atomic.Uint64 // next slot a consumer may claim
	_            cpu.CacheLinePad
	producerHead atomic.Uint64 // next slot a producer may reserve
	_            cpu.CacheLinePad
	producerTail atomic.Uint64 // publication boundary; everything below is written
	_            cpu.CacheLinePad
}

// New creates a Ring with the given size.
// 'size' must be a power of two and at least 2; usable capacity is size-1.
func New[T any](size uint64) (*Ring[T], error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, ErrInvalidCapacity
	}

	return &Ring[T]{
		mask:  size - 1,
		slots: make([]atomic.Pointer[T], size),
	}, nil
}

// Produce appends v to the ring.
// Returns ErrQueueIsFull if no slot is free; the call never blocks waiting
// for consumers. Safe to call concurrently from many producer goroutines.
//
// Publication follows reservation order: after writing its slot, Produce
// busy-waits (yielding periodically) until every earlier reservation has
// published. A producer preempted inside Produce therefore stalls producers
// that reserved after it, though never consumers of already-published
// elements.
func (r *Ring[T]) Produce(v *T) error {
	if v == nil {
		return ErrNilElement
	}

	var spins uint32
	p := r.producerHead.Load()
	for {
		c := r.consumerHead.Load()

		if p-c < r.mask {
			// Room exists, try to reserve slot p.
			if r.producerHead.CompareAndSwap(p, p+1) {
				break
			}
			// Another producer won the slot, retry with a fresh head.
			p = r.producerHead.Load()
		} else {
			// No apparent room. Only a stale p can say otherwise; re-read it.
			np := r.producerHead.Load()
			if np == p {
				return ErrQueueIsFull
			}
			p = np
		}

		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}

	// Slot p is exclusively ours. The atomic store orders the payload write
	// before the tail advance below.
	r.slots[p&r.mask].Store(v)

	// Wait for every earlier reservation to publish first.
	for r.producerTail.Load() != p {
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
	r.producerTail.Store(p + 1)

	return nil
}

// Consume removes and returns the oldest published element, or nil if the
// ring is empty. Safe to call concurrently from many consumer goroutines.
func (r *Ring[T]) Consume() *T {
	var spins uint32
	for {
		c := r.consumerHead.Load()
		p := r.producerTail.Load()

		if c == p {
			return nil
		}

		// Speculative read: another consumer may still win slot c. The slot
		// cannot be rewritten until consumerHead passes it, so the value is
		// stable while the claim below is in flight.
		v := r.slots[c&r.mask].Load()

		if r.consumerHead.CompareAndSwap(c, c+1) {
			return v
		}

		// Another consumer won the slot, retry.
		spins++
		if spins%goschedEvery == 0 {
			runtime.Gosched()
		}
	}
}

// Empty reports whether the ring holds no published elements. The answer is
// advisory: under concurrent activity it may be stale the instant it
// returns, so it must not gate the correctness of Consume.
func (r *Ring[T]) Empty() bool {
	return r.producerTail.Load() == r.consumerHead.Load()
}

// Len returns the number of published, unconsumed elements. Advisory, like
// Empty.
func (r *Ring[T]) Len() int {
	// Head first: consumerHead never passes producerTail, so loading it
	// before the tail keeps the difference from underflowing.
	c := r.consumerHead.Load()
	p := r.producerTail.Load()
	return int(p - c)
}

// Capacity returns the number of usable slots, size-1.
func (r *Ring[T]) Capacity() uint64 {
	return r.mask
}

// Cleanup drains the ring and releases its storage. If destroy is non-nil,
// it is invoked once per remaining element, in FIFO order. Cleanup must not
// run concurrently with any other Ring method; teardown is not part of the
// lock-free contract.
func (r *Ring[T]) Cleanup(destroy func(*T)) {
	for v := r.Consume(); v != nil; v = r.Consume() {
		if destroy != nil {
			destroy(v)
		}
	}
	r.slots = nil
}
