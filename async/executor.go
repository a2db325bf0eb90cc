// Package async implements the cooperative, fuel-metered task executor:
// a priority-ordered ready queue, fuel-limited polling, wait queues with
// timeout processing, and cancellation tokens.
//
// Grounded on original_source/wrt-runtime/src/wait_queue.rs for the wait
// queue and original_source/wrt-component/src/async_/
// task_manager_async_bridge.rs for the task/fuel lifecycle; the ready
// queue and tick structure follow
// _examples/joeycumines-go-utilpkg/eventloop's loop.go (container/heap
// timerHeap) and state.go (atomic CAS state machine), the closest
// structural ancestor in the pack to a cooperative scheduler, generalized
// from wall-clock timers to priority-ordered fuel-metered tasks.
package async

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"

	"github.com/pulseengine/wrt-sub014/wrterr"
)

// Status reports the outcome of polling a Task once (Pending, Ready,
// Failed — the only three a Task.Poll implementation returns), or one of
// the executor's own bookkeeping states for an entry between ticks
// (Running, Cancelled, FuelExhausted). Only FuelExhausted is retained and
// queryable after the tick that produced it, via TaskState; Running and
// Cancelled describe transient per-tick outcomes (PollResult.Cancelled
// counts the latter) rather than a state later lookups can observe.
type Status uint8

const (
	// Pending means the task did not complete this poll and remains
	// runnable; it stays enqueued for a later tick.
	Pending Status = iota
	// Ready means the task completed successfully.
	Ready
	// Failed means the task returned an error.
	Failed
	// Running names the instant an entry's Poll call is in flight during
	// a tick; the executor does not persist it anywhere a caller can
	// query it.
	Running
	// Cancelled names an entry dropped this tick because its
	// cancellation token had already fired (see PollResult.Cancelled).
	Cancelled
	// FuelExhausted is reported by TaskState once an entry's own fuel
	// allowance drops below its poll cost: it is suspended out of the
	// ready queue and only Refill can make it runnable again.
	FuelExhausted
)

// Task is one schedulable unit of async work. Poll is called repeatedly
// until it returns Ready or Failed; ctx carries cancellation.
type Task interface {
	Poll(ctx context.Context) (Status, error)
}

// TaskFunc adapts a plain function to Task for tasks with no internal
// state across polls (they must finish in one call).
type TaskFunc func(ctx context.Context) (Status, error)

func (f TaskFunc) Poll(ctx context.Context) (Status, error) { return f(ctx) }

var taskSeq atomic.Uint64

type entry struct {
	task      Task
	id        uint64
	priority  int
	seq       uint64 // monotonic tiebreaker: lower seq = enqueued earlier
	fuel      uint64 // remaining fuel, decremented by pollCost before each Poll
	pollCost  uint64
	unmetered bool // spawned with fuel 0: never gated or decremented
	cancel    *CancellationToken
}

// readyHeap orders entries by (priority desc, seq asc), giving strict
// FIFO-within-priority ordering — the same total order this port applies
// to WaitQueue (see waitqueue.go), so an executor tick and a queue notify
// agree on tie-break behavior.
type readyHeap []*entry

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h readyHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *readyHeap) Push(x any)   { *h = append(*h, x.(*entry)) }
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// PollResult summarizes one PollAsyncTasks call.
type PollResult struct {
	Completed int
	Failed    int
	Pending   int
	// Suspended counts entries moved out of the ready queue this tick
	// because their own remaining fuel fell below their poll cost. A
	// suspended entry is not dropped: Refill adds fuel and re-enqueues it.
	Suspended int
	// Cancelled counts entries dropped this tick because their
	// cancellation token had already fired.
	Cancelled int
}

// Executor runs Tasks cooperatively, highest priority first and FIFO
// within a priority tier. Each task carries its own fuel allowance,
// decremented by its poll cost before every Poll call; a task whose
// remaining fuel can't cover its next poll is suspended rather than
// polled, and stays suspended until an external caller calls Refill.
type Executor struct {
	mu        sync.Mutex
	ready     readyHeap
	suspended map[uint64]*entry
	nextID    atomic.Uint64
	fuelTotal uint64
	fuelUsed  atomic.Uint64
}

// NewExecutor creates an Executor. fuelBudget is tracked as an aggregate
// statistic (see FuelRemaining) and does not gate any individual task —
// only a task's own fuel, set at Spawn, does that.
func NewExecutor(fuelBudget uint64) *Executor {
	return &Executor{fuelTotal: fuelBudget, suspended: make(map[uint64]*entry)}
}

// Spawn enqueues task at priority (higher runs first), with its own fuel
// allowance and a poll cost of 1, returning an id usable for bookkeeping
// by callers. fuel 0 means unmetered: the task is never suspended for
// lack of fuel.
func (e *Executor) Spawn(task Task, priority int, fuel uint64) uint64 {
	return e.spawn(task, priority, fuel, 1, nil)
}

// SpawnCancellable enqueues task as Spawn does, but drops it (reported as
// Cancelled) instead of polling it once token is cancelled.
func (e *Executor) SpawnCancellable(task Task, priority int, fuel uint64, token *CancellationToken) uint64 {
	return e.spawn(task, priority, fuel, 1, token)
}

// SpawnWithPollCost is Spawn/SpawnCancellable generalized to a poll cost
// other than 1: pollCost fuel is deducted from the task's own allowance
// before each Poll call, so a task spawned with fuel F and pollCost q is
// polled at most ⌊F/q⌋ times; the tick after that suspends it with
// FuelExhausted. token may be nil.
func (e *Executor) SpawnWithPollCost(task Task, priority int, fuel, pollCost uint64, token *CancellationToken) uint64 {
	return e.spawn(task, priority, fuel, pollCost, token)
}

func (e *Executor) spawn(task Task, priority int, fuel, pollCost uint64, token *CancellationToken) uint64 {
	if pollCost == 0 {
		pollCost = 1
	}
	id := e.nextID.Add(1)
	e.mu.Lock()
	defer e.mu.Unlock()
	heap.Push(&e.ready, &entry{
		task:      task,
		id:        id,
		priority:  priority,
		seq:       taskSeq.Add(1),
		fuel:      fuel,
		pollCost:  pollCost,
		unmetered: fuel == 0,
		cancel:    token,
	})
	return id
}

// FuelRemaining returns the unspent portion of the executor's aggregate
// fuel budget (always the full value when unmetered). This is a
// telemetry figure only — it does not gate whether any individual task
// is polled; that is governed entirely by the task's own fuel and
// pollCost.
func (e *Executor) FuelRemaining() uint64 {
	if e.fuelTotal == 0 {
		return ^uint64(0)
	}
	used := e.fuelUsed.Load()
	if used >= e.fuelTotal {
		return 0
	}
	return e.fuelTotal - used
}

// TaskState reports a suspended task's status as FuelExhausted, with err
// set to ErrFuelExhausted — the executor's own suspension path is what
// produces that error. It returns a CodeResourceInvalidHandle error for
// an id that is not currently suspended, whether because the task is
// still in the ready queue or because it already reached a terminal
// state (Ready/Failed/Cancelled) and was dropped.
func (e *Executor) TaskState(id uint64) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, suspended := e.suspended[id]; suspended {
		return FuelExhausted, ErrFuelExhausted()
	}
	return Pending, wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "async: no suspended task with this id")
}

// Refill adds extraFuel to a suspended task's allowance and re-enqueues
// it for polling, resuming a task that PollAsyncTasks previously
// suspended with FuelExhausted. It returns a CodeResourceInvalidHandle
// error if id does not name a currently suspended task.
func (e *Executor) Refill(id uint64, extraFuel uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.suspended[id]
	if !ok {
		return wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "async: no suspended task with this id")
	}
	delete(e.suspended, id)
	ent.fuel += extraFuel
	heap.Push(&e.ready, ent)
	return nil
}

// PollAsyncTasks drains the ready queue once, polling every entry at most
// once this tick. Pending results are re-enqueued for the next tick;
// Ready/Failed results are dropped. A cancelled entry is dropped without
// being polled. An entry whose remaining fuel is below its poll cost is
// moved to the suspended set instead of being polled or dropped — it
// stays there until Refill restores it to the ready queue.
func (e *Executor) PollAsyncTasks(ctx context.Context) PollResult {
	e.mu.Lock()
	batch := make([]*entry, len(e.ready))
	copy(batch, e.ready)
	e.ready = e.ready[:0]
	e.mu.Unlock()

	// preserve priority/seq order within the batch
	ordered := readyHeap(batch)
	heap.Init(&ordered)

	var result PollResult
	for ordered.Len() > 0 {
		ent := heap.Pop(&ordered).(*entry)

		if ent.cancel != nil && ent.cancel.Cancelled() {
			result.Cancelled++
			continue
		}

		if !ent.unmetered && ent.fuel < ent.pollCost {
			e.mu.Lock()
			e.suspended[ent.id] = ent
			e.mu.Unlock()
			result.Suspended++
			continue
		}

		if !ent.unmetered {
			ent.fuel -= ent.pollCost
		}
		status, err := ent.task.Poll(ctx)
		if e.fuelTotal != 0 {
			e.fuelUsed.Add(ent.pollCost)
		}

		switch status {
		case Pending:
			if err != nil {
				result.Failed++
				continue
			}
			result.Pending++
			e.mu.Lock()
			heap.Push(&e.ready, ent)
			e.mu.Unlock()
		case Ready:
			result.Completed++
		case Failed:
			result.Failed++
		}
	}
	return result
}

// Len reports the number of tasks currently enqueued (ready to poll;
// suspended tasks are not counted).
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ready)
}

// Pause yields the current goroutine to the Go scheduler, the idiomatic
// rendition of the source's CPU pause-instruction busy-wait hint — Go has
// no portable spin-wait intrinsic, and runtime.Gosched is the standard
// substitute used for cooperative busy-wait backoff.
func Pause() { pause() }

var errFuelExhausted = wrterr.New(wrterr.CategoryRuntime, wrterr.CodeFuelExhausted, "task fuel budget exhausted")

// ErrFuelExhausted is returned by callers that want a fuel-exhaustion
// value to compare against with errors.Is.
func ErrFuelExhausted() error { return errFuelExhausted }
