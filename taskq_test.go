package ringbuffer

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// echoWorker drains q, echoing each payload back prefixed with "echo:",
// until stop is closed and the queue is empty.
func echoWorker(q *TaskQ, stop <-chan struct{}) {
	for {
		t := q.Next()
		if t == nil {
			select {
			case <-stop:
				return
			default:
				runtime.Gosched()
				continue
			}
		}
		t.SetResponse(append([]byte("echo:"), t.Payload()...))
		q.Complete(t, nil)
	}
}

func TestTaskQRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	const (
		capacity  = 1 << 6
		producers = 8
		perProd   = 500
	)

	q, err := NewTaskQ(capacity)
	require.NoError(t, err)

	stop := make(chan struct{})
	var workerDone sync.WaitGroup
	workerDone.Add(1)
	go func() {
		defer workerDone.Done()
		echoWorker(q, stop)
	}()

	var wg sync.WaitGroup
	wg.Add(producers)
	var bad int64
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				payload := fmt.Sprintf("task-%d-%d", p, i)
				want := "echo:" + payload
				for {
					err := q.Do(context.Background(), []byte(payload), func(resp []byte) {
						if string(resp) != want {
							atomic.AddInt64(&bad, 1)
						}
					})
					if err == nil {
						break
					}
					if err != ErrQueueIsFull {
						atomic.AddInt64(&bad, 1)
						break
					}
					runtime.Gosched()
				}
			}
		}(p)
	}
	wg.Wait()
	close(stop)
	workerDone.Wait()

	require.Zero(t, atomic.LoadInt64(&bad))
	require.Equal(t, uint64(producers*perProd), q.Stats().Success)
	require.Zero(t, q.Stats().Timeout)
}

func TestTaskQFull(t *testing.T) {
	q, err := NewTaskQ(2) // one usable slot
	require.NoError(t, err)

	require.NoError(t, q.Post([]byte("a")))
	require.ErrorIs(t, q.Post([]byte("b")), ErrQueueIsFull)

	stats := q.Stats()
	require.Equal(t, uint64(2), stats.EnqueueAttempts)
	require.Equal(t, uint64(1), stats.EnqueueFailedQIsFull)
}

func TestTaskQInvalidCapacity(t *testing.T) {
	_, err := NewTaskQ(3)
	require.ErrorIs(t, err, ErrInvalidCapacity)
}

// A producer that gives up before pickup gets ErrTimeout; the worker later
// skips the abandoned task without dispatching it.
func TestTaskQTimeoutAbandons(t *testing.T) {
	defer goleak.VerifyNone(t)

	q, err := NewTaskQ(8)
	require.NoError(t, err)

	// No worker running yet.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = q.Do(ctx, []byte("slow"), nil)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, uint64(1), q.Stats().Timeout)

	// The worker finds only the abandoned task and drops it.
	require.Nil(t, q.Next())
	require.Equal(t, uint64(1), q.Stats().Abandoned)
	require.True(t, q.ring.Empty())
}

func TestTaskQPost(t *testing.T) {
	const k = 10

	q, err := NewTaskQ(32)
	require.NoError(t, err)

	for i := 0; i < k; i++ {
		require.NoError(t, q.Post([]byte(fmt.Sprintf("job %d", i))))
	}

	for i := 0; i < k; i++ {
		task := q.Next()
		require.NotNil(t, task)
		require.Equal(t, fmt.Sprintf("job %d", i), string(task.Payload()))
		q.Complete(task, nil)
	}
	require.Nil(t, q.Next())

	stats := q.Stats()
	require.Equal(t, uint64(k), stats.Success)
	require.Equal(t, uint64(1), stats.DequeueFailedQIsEmpty)
}

// Completion that loses the race against ctx is still delivered.
func TestTaskQClaimBeatsTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	q, err := NewTaskQ(8)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- q.Do(ctx, []byte("racy"), nil)
	}()

	// Claim the task, then expire the context: Do must still wait for the
	// in-flight completion instead of reporting a timeout.
	var task *Task
	for task = q.Next(); task == nil; task = q.Next() {
		runtime.Gosched()
	}
	cancel()

	task.SetResponse([]byte("ok"))
	q.Complete(task, nil)

	require.NoError(t, <-done)
	require.Equal(t, uint64(1), q.Stats().Success)
	require.Zero(t, q.Stats().Timeout)
}
