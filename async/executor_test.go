package async

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingTask(n int) (TaskFunc, *int) {
	remaining := n
	counter := &remaining
	return func(ctx context.Context) (Status, error) {
		*counter--
		if *counter <= 0 {
			return Ready, nil
		}
		return Pending, nil
	}, counter
}

func TestExecutorRunsHighestPriorityFirst(t *testing.T) {
	ex := NewExecutor(0)
	var order []string

	ex.Spawn(TaskFunc(func(ctx context.Context) (Status, error) {
		order = append(order, "low")
		return Ready, nil
	}), 1, 0)
	ex.Spawn(TaskFunc(func(ctx context.Context) (Status, error) {
		order = append(order, "high")
		return Ready, nil
	}), 10, 0)
	ex.Spawn(TaskFunc(func(ctx context.Context) (Status, error) {
		order = append(order, "mid")
		return Ready, nil
	}), 5, 0)

	result := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestExecutorFIFOWithinSamePriority(t *testing.T) {
	ex := NewExecutor(0)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		ex.Spawn(TaskFunc(func(ctx context.Context) (Status, error) {
			order = append(order, i)
			return Ready, nil
		}), 1, 0)
	}
	ex.PollAsyncTasks(context.Background())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestExecutorRequeuesPendingTasks(t *testing.T) {
	ex := NewExecutor(0)
	task, _ := countingTask(3)
	ex.Spawn(task, 0, 0)

	r1 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r1.Pending)
	assert.Equal(t, 1, ex.Len())

	r2 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r2.Pending)

	r3 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r3.Completed)
	assert.Equal(t, 0, ex.Len())
}

func TestExecutorSuspendsTaskWithInsufficientFuelWithoutPolling(t *testing.T) {
	ex := NewExecutor(0)
	polled := false
	id := ex.SpawnWithPollCost(TaskFunc(func(ctx context.Context) (Status, error) {
		polled = true
		return Ready, nil
	}), 0, 2, 3, nil)

	result := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, result.Suspended)
	assert.False(t, polled, "a task whose fuel is below its poll cost must never be polled")

	status, err := ex.TaskState(id)
	assert.Equal(t, FuelExhausted, status)
	assert.ErrorIs(t, err, ErrFuelExhausted())
}

// TestExecutorPerTaskFuelDecrementThenRefill exercises spec scenario 5's
// numbers directly: fuel 10 with a poll cost of 3 yields ⌈10/3⌉ = 4 poll
// steps (3 of which actually run the task) before suspension, and a
// refill resumes the task to completion.
func TestExecutorPerTaskFuelDecrementThenRefill(t *testing.T) {
	ex := NewExecutor(0)
	task, counter := countingTask(5)
	id := ex.SpawnWithPollCost(task, 0, 10, 3, nil)

	r1 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r1.Pending)
	r2 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r2.Pending)
	r3 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r3.Pending)

	// fuel is 10-3*3=1, below the next poll's cost of 3: suspended, not polled.
	r4 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r4.Suspended)
	assert.Equal(t, 2, *counter, "task must not be polled a 4th time while its fuel is insufficient")

	require.NoError(t, ex.Refill(id, 10))

	r5 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r5.Pending)
	r6 := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, r6.Completed)
}

func TestExecutorRefillRejectsUnknownID(t *testing.T) {
	ex := NewExecutor(0)
	err := ex.Refill(999, 10)
	require.Error(t, err)
}

func TestExecutorTaskStateRejectsUnknownID(t *testing.T) {
	ex := NewExecutor(0)
	_, err := ex.TaskState(999)
	require.Error(t, err)
}

func TestExecutorSkipsCancelledTasks(t *testing.T) {
	ex := NewExecutor(0)
	token := NewCancellationToken()
	polled := false
	ex.SpawnCancellable(TaskFunc(func(ctx context.Context) (Status, error) {
		polled = true
		return Ready, nil
	}), 0, 0, token)
	token.Cancel("shutdown")

	result := ex.PollAsyncTasks(context.Background())
	assert.Equal(t, 1, result.Cancelled)
	assert.False(t, polled)
}

func TestCancellationTokenIdempotent(t *testing.T) {
	tok := NewCancellationToken()
	tok.Cancel("first")
	tok.Cancel("second")
	assert.True(t, tok.Cancelled())
	assert.Equal(t, "first", tok.Reason())
}

func TestWaitqueuePriorityOrdering(t *testing.T) {
	q := NewWaitqueue()
	low := q.Enqueue(30, 0)
	high := q.Enqueue(80, 0)
	mid := q.Enqueue(50, 0)

	id1, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, high, id1)

	id2, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, mid, id2)

	id3, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, low, id3)
}

func TestWaitqueueFIFOWithinSamePriority(t *testing.T) {
	q := NewWaitqueue()
	first := q.Enqueue(10, 0)
	second := q.Enqueue(10, 0)
	third := q.Enqueue(10, 0)

	id1, _ := q.Dequeue()
	id2, _ := q.Dequeue()
	id3, _ := q.Dequeue()
	assert.Equal(t, []WaiterID{first, second, third}, []WaiterID{id1, id2, id3})
}

func TestWaitqueueNotifyWakesHighestFirst(t *testing.T) {
	q := NewWaitqueue()
	q.Enqueue(1, 0)
	high := q.Enqueue(99, 0)

	woken := q.Notify(1)
	require.Len(t, woken, 1)
	assert.Equal(t, high, woken[0])
	assert.Equal(t, 1, q.WaiterCount())
}

func TestWaitqueueRemove(t *testing.T) {
	q := NewWaitqueue()
	id := q.Enqueue(5, 0)
	assert.True(t, q.Remove(id))
	assert.False(t, q.Remove(id))
	assert.Equal(t, 0, q.WaiterCount())
}

func TestWaitqueueProcessTimeouts(t *testing.T) {
	q := NewWaitqueue()
	expired := q.Enqueue(1, time.Millisecond)
	kept := q.Enqueue(1, time.Hour)

	time.Sleep(5 * time.Millisecond)
	timedOut := q.ProcessTimeouts()
	require.Len(t, timedOut, 1)
	assert.Equal(t, expired, timedOut[0])
	assert.Equal(t, 1, q.WaiterCount())

	_, ok := q.Dequeue()
	assert.True(t, ok)
	_ = kept
}

func TestWaitqueueStatsTrackCounters(t *testing.T) {
	q := NewWaitqueue()
	q.Enqueue(1, 0)
	q.Enqueue(1, 0)
	q.Notify(1)

	stats := q.Stats()
	assert.Equal(t, uint64(2), stats.TotalWaits)
	assert.Equal(t, uint64(1), stats.Notifies)
	assert.Equal(t, uint32(1), stats.CurrentWaiters)
}
