package ringbuffer

// Consumer is a single-consumer view of a Ring.
//
// Holding a Consumer is a contract: while it is in use, its goroutine must
// be the only consumer of the underlying ring (producers stay unrestricted).
// Peek, DiscardOne and Consume all rely on that exclusivity; using them
// while other goroutines consume from the same ring is undefined.
//
// The cheap Peek/DiscardOne pair supports inspect-then-maybe-skip patterns
// without a claim-and-requeue cycle.
type Consumer[T any] struct {
	r *Ring[T]
}

// SingleConsumer returns the single-consumer view of the ring.
func (r *Ring[T]) SingleConsumer() *Consumer[T] {
	return &Consumer[T]{r: r}
}

// Peek returns the oldest published element without claiming it, or nil if
// the ring is empty. Repeated calls return the same element until Consume or
// DiscardOne advances past it.
func (c *Consumer[T]) Peek() *T {
	r := c.r

	h := r.consumerHead.Load()
	if h == r.producerTail.Load() {
		return nil
	}

	return r.slots[h&r.mask].Load()
}

// DiscardOne drops the oldest published element without reading it. Call it
// only after Peek observed a non-nil element; discarding from an empty ring
// corrupts the counters.
func (c *Consumer[T]) DiscardOne() {
	c.r.consumerHead.Add(1)
}

// Consume removes and returns the oldest published element, or nil if the
// ring is empty. No CAS is needed: the head cannot move under the sole
// consumer.
func (c *Consumer[T]) Consume() *T {
	r := c.r

	h := r.consumerHead.Load()
	if h == r.producerTail.Load() {
		return nil
	}

	v := r.slots[h&r.mask].Load()
	r.consumerHead.Store(h + 1)

	return v
}
