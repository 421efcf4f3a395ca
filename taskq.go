package ringbuffer

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task states. A producer that stops waiting moves its task from pending to
// abandoned; the worker moves it from pending to claimed. Whoever loses the
// race defers to the winner.
const (
	taskPending uint32 = iota
	taskClaimed
	taskAbandoned
)

// Task is one unit of work travelling through a TaskQ.
type Task struct {
	payload []byte
	resp    []byte

	ch      chan error
	noReply bool
	state   atomic.Uint32
}

// Payload returns the request bytes. Valid until the task is completed.
func (t *Task) Payload() []byte {
	return t.payload
}

// SetResponse records the response bytes that Complete delivers back to the
// waiting producer.
func (t *Task) SetResponse(b []byte) {
	t.resp = append(t.resp[:0], b...)
}

func (t *Task) reset() {
	t.payload = t.payload[:0]
	t.resp = t.resp[:0]
	t.noReply = false
	t.state.Store(taskPending)
}

var taskPool sync.Pool

func getTask() *Task {
	if v := taskPool.Get(); v != nil {
		return v.(*Task)
	}
	return &Task{ch: make(chan error, 1)}
}

func putTask(t *Task) {
	t.reset()
	taskPool.Put(t)
}

// TaskQ dispatches tasks from many producer goroutines to a single worker
// goroutine over a Ring, with per-call timeouts on the producer side.
type TaskQ struct {
	ring *Ring[Task]
	cons *Consumer[Task]

	enqueueAttempts       uint64
	enqueueFailedQIsFull  uint64
	dequeueAttempts       uint64
	dequeueFailedQIsEmpty uint64
	abandoned             uint64
	timeout               uint64
	success               uint64
}

// TaskQStats is a snapshot of the TaskQ counters.
type TaskQStats struct {
	EnqueueAttempts       uint64
	EnqueueFailedQIsFull  uint64
	DequeueAttempts       uint64
	DequeueFailedQIsEmpty uint64
	Abandoned             uint64
	Timeout               uint64
	Success               uint64
}

// NewTaskQ creates a queue holding at most capacity-1 in-flight tasks.
// 'capacity' must be a power of two (1<<k).
func NewTaskQ(capacity uint64) (*TaskQ, error) {
	ring, err := New[Task](capacity)
	if err != nil {
		return nil, err
	}

	return &TaskQ{
		ring: ring,
		cons: ring.SingleConsumer(),
	}, nil
}

// Do enqueues the task bytes and waits until the worker completes them or
// ctx ends. On completion, reader (if non-nil) is called with the response
// bytes before they are recycled, and the worker's error is returned.
// Returns ErrQueueIsFull without waiting when the queue has no room, and
// ErrTimeout when ctx ends before the worker picks the task up. If ctx ends
// after pickup, Do still waits for the in-flight completion.
// May be called concurrently from many goroutines.
func (q *TaskQ) Do(ctx context.Context, task []byte, reader func(resp []byte)) error {
	t := getTask()
	t.payload = append(t.payload[:0], task...)

	atomic.AddUint64(&q.enqueueAttempts, 1)
	if err := q.ring.Produce(t); err != nil {
		atomic.AddUint64(&q.enqueueFailedQIsFull, 1)
		putTask(t)
		return err
	}

	select {
	case err := <-t.ch:
		atomic.AddUint64(&q.success, 1)
		if reader != nil {
			reader(t.resp)
		}
		putTask(t)
		return err
	case <-ctx.Done():
		if t.state.CompareAndSwap(taskPending, taskAbandoned) {
			// The worker recycles the task when it reaches it.
			atomic.AddUint64(&q.timeout, 1)
			return ErrTimeout
		}

		// The worker claimed the task first; its completion is on the way.
		err := <-t.ch
		atomic.AddUint64(&q.success, 1)
		if reader != nil {
			reader(t.resp)
		}
		putTask(t)
		return err
	}
}

// Post enqueues the task bytes without waiting for completion; the worker
// recycles the task after Complete. Returns ErrQueueIsFull when the queue
// has no room.
// May be called concurrently from many goroutines.
func (q *TaskQ) Post(task []byte) error {
	t := getTask()
	t.noReply = true
	t.payload = append(t.payload[:0], task...)

	atomic.AddUint64(&q.enqueueAttempts, 1)
	if err := q.ring.Produce(t); err != nil {
		atomic.AddUint64(&q.enqueueFailedQIsFull, 1)
		putTask(t)
		return err
	}

	return nil
}

// Next claims the next runnable task, dropping tasks whose producer already
// gave up. Returns nil when the queue is empty.
// IMPORTANT: must be called from the single worker goroutine.
func (q *TaskQ) Next() *Task {
	for {
		atomic.AddUint64(&q.dequeueAttempts, 1)

		t := q.cons.Peek()
		if t == nil {
			atomic.AddUint64(&q.dequeueFailedQIsEmpty, 1)
			return nil
		}

		if t.state.CompareAndSwap(taskPending, taskClaimed) {
			q.cons.DiscardOne()
			return t
		}

		// The producer timed out before pickup: skip without dispatching.
		q.cons.DiscardOne()
		putTask(t)
		atomic.AddUint64(&q.abandoned, 1)
	}
}

// Complete finishes a task returned by Next. For Do tasks, err and any
// response set via SetResponse are delivered to the waiting producer; Post
// tasks are recycled in place.
func (q *TaskQ) Complete(t *Task, err error) {
	if t.noReply {
		atomic.AddUint64(&q.success, 1)
		putTask(t)
		return
	}

	t.ch <- err
}

// Stats retrieves the current statistics of the TaskQ.
func (q *TaskQ) Stats() TaskQStats {
	return TaskQStats{
		EnqueueAttempts:       atomic.LoadUint64(&q.enqueueAttempts),
		EnqueueFailedQIsFull:  atomic.LoadUint64(&q.enqueueFailedQIsFull),
		DequeueAttempts:       atomic.LoadUint64(&q.dequeueAttempts),
		DequeueFailedQIsEmpty: atomic.LoadUint64(&q.dequeueFailedQIsEmpty),
		Abandoned:             atomic.LoadUint64(&q.abandoned),
		Timeout:               atomic.LoadUint64(&q.timeout),
		Success:               atomic.LoadUint64(&q.success),
	}
}

// Capacity returns the number of usable task slots.
func (q *TaskQ) Capacity() uint64 {
	return q.ring.Capacity()
}
