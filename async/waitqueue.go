package async

import (
	"container/heap"
	"sync"
	"time"

	"github.com/pulseengine/wrt-sub014/wrterr"
)

// WaiterID identifies one waiter registered with a Waitqueue.
type WaiterID uint64

type waiter struct {
	id       WaiterID
	priority uint8
	seq      uint64
	enqueued time.Time
	timeout  time.Duration // zero means no timeout
	index    int           // heap.Interface bookkeeping, for remove-by-id
}

// waiterHeap orders waiters by (priority desc, seq asc): the source's
// binary_search_by(priority.cmp(...).reverse()) leaves the tiebreak
// between equal priorities unspecified (insertion position within an
// equal-priority run is whatever binary_search_by's "found" branch
// happens to return). This port resolves that ambiguity to a strict total
// order — FIFO within a priority tier, via a monotonic sequence number —
// so Dequeue/Notify behavior is fully deterministic rather than
// leaving equal-priority ties to the arbitrary side a binary search lands
// on (SPEC_FULL.md §9 Open Question: wait queue tie-break order).
type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// WaitStats mirrors the source's WaitQueueStats.
type WaitStats struct {
	TotalWaits     uint64
	CurrentWaiters uint32
	Timeouts       uint64
	Notifies       uint64
}

// Waitqueue is a priority-ordered set of waiters, each optionally
// carrying a timeout.
type Waitqueue struct {
	mu      sync.Mutex
	waiters waiterHeap
	byID    map[WaiterID]*waiter
	nextID  atomicCounter
	stats   WaitStats
}

// NewWaitqueue creates an empty Waitqueue.
func NewWaitqueue() *Waitqueue {
	return &Waitqueue{byID: make(map[WaiterID]*waiter)}
}

// Enqueue registers a waiter at priority, with an optional timeout (0
// means wait indefinitely).
func (q *Waitqueue) Enqueue(priority uint8, timeout time.Duration) WaiterID {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := WaiterID(q.nextID.next())
	w := &waiter{
		id:       id,
		priority: priority,
		seq:      taskSeq.Add(1),
		enqueued: time.Now(),
		timeout:  timeout,
	}
	heap.Push(&q.waiters, w)
	q.byID[id] = w
	q.stats.TotalWaits++
	q.stats.CurrentWaiters = uint32(len(q.waiters))
	return id
}

// Dequeue removes and returns the highest-priority (oldest within that
// priority) waiter, or false if the queue is empty.
func (q *Waitqueue) Dequeue() (WaiterID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.waiters) == 0 {
		return 0, false
	}
	w := heap.Pop(&q.waiters).(*waiter)
	delete(q.byID, w.id)
	q.stats.CurrentWaiters = uint32(len(q.waiters))
	return w.id, true
}

// Notify dequeues up to count waiters and returns their ids, in wake
// order (highest priority first).
func (q *Waitqueue) Notify(count int) []WaiterID {
	q.mu.Lock()
	defer q.mu.Unlock()
	var woken []WaiterID
	for i := 0; i < count && len(q.waiters) > 0; i++ {
		w := heap.Pop(&q.waiters).(*waiter)
		delete(q.byID, w.id)
		woken = append(woken, w.id)
	}
	q.stats.CurrentWaiters = uint32(len(q.waiters))
	q.stats.Notifies += uint64(len(woken))
	return woken
}

// Remove removes a specific waiter by id, reporting whether it was found.
func (q *Waitqueue) Remove(id WaiterID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	w, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.waiters, w.index)
	delete(q.byID, id)
	q.stats.CurrentWaiters = uint32(len(q.waiters))
	return true
}

// ProcessTimeouts removes every waiter whose timeout has elapsed and
// returns their ids.
func (q *Waitqueue) ProcessTimeouts() []WaiterID {
	q.mu.Lock()
	defer q.mu.Unlock()

	t := time.Now()
	var timedOut []WaiterID
	remaining := make([]*waiter, 0, len(q.waiters))
	for _, w := range q.waiters {
		if w.timeout > 0 && t.Sub(w.enqueued) >= w.timeout {
			timedOut = append(timedOut, w.id)
			delete(q.byID, w.id)
			continue
		}
		remaining = append(remaining, w)
	}
	q.waiters = remaining
	heap.Init(&q.waiters)
	q.stats.CurrentWaiters = uint32(len(q.waiters))
	q.stats.Timeouts += uint64(len(timedOut))
	return timedOut
}

// WaiterCount returns the number of currently waiting entries.
func (q *Waitqueue) WaiterCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

// Stats returns a snapshot of this queue's counters.
func (q *Waitqueue) Stats() WaitStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

var errQueueFull = wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceLimitExceeded, "wait queue is full")

// ErrQueueFull is returned by bounded queue variants; this port's
// Waitqueue is unbounded (Go's append-based slice has no fixed-capacity
// std-mode equivalent to guard against), so it is exposed for callers
// layering their own capacity check in front of Enqueue.
func ErrQueueFull() error { return errQueueFull }
