package ringbuffer

// ArrayRing is a fixed pool of value slots handed out through a Ring of free
// positions. Enqueue claims a free position and stores the value there; the
// position stays readable via Get until Release returns it to the pool.
type ArrayRing[T any] struct {
	free *Ring[int]
	pos  []int
	data []T
}

// NewArrayRing creates a pool holding 'capacity' values.
// 'capacity' must be a power of two and > 0.
func NewArrayRing[T any](capacity uint64) (*ArrayRing[T], error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}

	// The free ring must hold every position at once; a ring of size n
	// stores n-1 elements, so double up.
	free, err := New[int](capacity * 2)
	if err != nil {
		return nil, err
	}

	a := &ArrayRing[T]{
		free: free,
		pos:  make([]int, capacity),
		data: make([]T, capacity),
	}

	// pos is a stable cell per index so positions round-trip through the
	// free ring without allocating.
	for i := range a.pos {
		a.pos[i] = i
		if err := a.free.Produce(&a.pos[i]); err != nil {
			panic("unreached")
		}
	}

	return a, nil
}

// Enqueue stores v in a free position and returns that position.
// Returns false if every position is taken.
// May be called concurrently from many goroutines.
func (a *ArrayRing[T]) Enqueue(v T) (int, bool) {
	p := a.free.Consume()
	if p == nil {
		return 0, false
	}

	a.data[*p] = v
	return *p, true
}

// Get returns the value at the given position.
// Can be called concurrently from many goroutines (read-only) for any
// position that has not been released.
func (a *ArrayRing[T]) Get(pos int) T {
	return a.data[pos]
}

// Release returns pos to the pool.
// May be called concurrently from many goroutines, but only once per
// position handed out by Enqueue.
func (a *ArrayRing[T]) Release(pos int) {
	if err := a.free.Produce(&a.pos[pos]); err != nil {
		panic("unreached")
	}
}
