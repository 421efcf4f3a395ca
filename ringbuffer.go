// Package ringbuffer implements bounded, array-backed, lock-free FIFO queues
// for concurrent producers and consumers, built on atomic compare-and-swap.
//
// The core type is Ring, a multi-producer/multi-consumer circular buffer
// coordinated by three monotonically increasing counters:
//
//	consumerHead <= producerTail <= producerHead
//
// producerHead is where producers reserve slots, producerTail is the
// publication boundary below which every reserved slot has been fully
// written, and consumerHead is where consumers claim published slots. The
// counters are never masked in storage; a slot index is always
// counter & (size-1), so the counters also encode how many times the ring
// has wrapped and distance checks are plain uint64 subtraction, which stays
// correct across overflow.
//
// Go's sync/atomic operations are sequentially consistent, which is stronger
// than the minimal ordering the hand-off needs (a release of the slot write
// before the tail advance, and an acquire of the tail before the slot read).
// Nothing here relies on more than that pair.
package ringbuffer

import "fmt"

var (
	ErrInvalidCapacity = fmt.Errorf("capacity must be a power of two")
	ErrQueueIsFull     = fmt.Errorf("queue is full")
	ErrNilElement      = fmt.Errorf("nil element")
	ErrTimeout         = fmt.Errorf("timeout")
)

const goschedEvery = 64 // reduce runtime.Gosched() frequency in hot loops
