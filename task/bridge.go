// Package task implements the Component Model task bridge: it binds a
// component's async task ids to entries in one async.Executor, enforces
// per-component resource limits, batches task admission, and drives the
// three-state suspend/resume lifecycle.
//
// Grounded on
// original_source/wrt-component/src/async_/task_manager_async_bridge.rs
// (TaskManagerAsyncBridge, ComponentAsyncState, BridgeConfiguration,
// per-task fuel division) and
// _examples/joeycumines-go-utilpkg/microbatch's Batcher for admission
// batching (spawning many small component tasks one at a time defeats the
// purpose of a fuel-metered scheduler tick; microbatch amortizes the
// enqueue over a short window the same way it batches any other small
// unit of work). Per-component concurrent-task admission is capped with
// golang.org/x/sync/semaphore, and SuspendComponent cancels in-flight
// tasks via async.CancellationToken rather than tearing the executor
// down.
package task

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/joeycumines/go-microbatch"
	"golang.org/x/sync/semaphore"

	"github.com/pulseengine/wrt-sub014/async"
	"github.com/pulseengine/wrt-sub014/wrterr"
)

// ComponentTaskID identifies one task within a ComponentInstanceID's
// namespace; the pair (ComponentInstanceID, ComponentTaskID) is globally
// unique.
type ComponentTaskID uint32

// ComponentInstanceID identifies one component instance registered with
// a Bridge.
type ComponentInstanceID uint32

// ResourceLimits bounds one component instance's async task usage,
// mirroring BridgeConfiguration's per-component defaults in the source
// (max_concurrent_tasks, fuel_budget, ...).
type ResourceLimits struct {
	MaxConcurrentTasks uint32
	MaxFutures         uint32
	MaxStreams         uint32
	FuelBudget         uint64
	MemoryLimit        uint32
}

// AsyncState mirrors ComponentAsyncState's three-state lifecycle.
type AsyncState uint8

const (
	Active AsyncState = iota
	Suspending
	Suspended
)

func (s AsyncState) String() string {
	switch s {
	case Active:
		return "active"
	case Suspending:
		return "suspending"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

type componentContext struct {
	limits      ResourceLimits
	state       AsyncState
	activeTasks uint32
	// sem caps concurrent in-flight tasks at limits.MaxConcurrentTasks
	// (or effectively unbounded when that is 0); admission acquires it
	// and NotifyTaskComplete releases it.
	sem        *semaphore.Weighted
	taskIDs    map[ComponentTaskID]uint64 // -> async.Executor task id
	taskTokens map[ComponentTaskID]*async.CancellationToken
	nextTaskID uint32
}

// admission is one pending spawn request, the microbatch "Job" type.
type admission struct {
	component ComponentInstanceID
	task      async.Task
	priority  int
	result    ComponentTaskID
	err       error
}

// Bridge binds component task ids to one shared async.Executor.
type Bridge struct {
	mu         sync.Mutex
	executor   *async.Executor
	components map[ComponentInstanceID]*componentContext
	batcher    *microbatch.Batcher[*admission]
}

// Config tunes the admission batcher; a nil Config uses microbatch's own
// defaults (16 jobs or 50ms, whichever first, one concurrent flush).
type Config struct {
	MaxBatchSize   int
	FlushInterval  time.Duration
	MaxConcurrency int
}

// NewBridge creates a Bridge driving executor, batching Spawn admission
// through microbatch per cfg (nil for defaults).
func NewBridge(executor *async.Executor, cfg *Config) *Bridge {
	b := &Bridge{
		executor:   executor,
		components: make(map[ComponentInstanceID]*componentContext),
	}

	var bc *microbatch.BatcherConfig
	if cfg != nil {
		bc = &microbatch.BatcherConfig{
			MaxSize:        cfg.MaxBatchSize,
			FlushInterval:  cfg.FlushInterval,
			MaxConcurrency: cfg.MaxConcurrency,
		}
	}
	b.batcher = microbatch.NewBatcher(bc, b.processAdmissions)
	return b
}

// Close stops the admission batcher. Safe to call once.
func (b *Bridge) Close() error { return b.batcher.Close() }

// InitializeComponent registers a component instance with limits, in the
// Active state.
func (b *Bridge) InitializeComponent(id ComponentInstanceID, limits ResourceLimits) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.components[id]; exists {
		return wrterr.New(wrterr.CategoryResource, wrterr.CodeInvalidInput, "component already initialized")
	}
	concurrencyCap := int64(limits.MaxConcurrentTasks)
	if concurrencyCap == 0 {
		concurrencyCap = math.MaxInt64
	}
	b.components[id] = &componentContext{
		limits:     limits,
		state:      Active,
		sem:        semaphore.NewWeighted(concurrencyCap),
		taskIDs:    make(map[ComponentTaskID]uint64),
		taskTokens: make(map[ComponentTaskID]*async.CancellationToken),
	}
	return nil
}

// perTaskFuel divides a component's fuel budget evenly across its max
// concurrent task slots (floor division), matching
// context.resource_limits.fuel_budget / max_concurrent_tasks in the
// source.
func perTaskFuel(limits ResourceLimits) uint64 {
	if limits.MaxConcurrentTasks == 0 {
		return limits.FuelBudget
	}
	return limits.FuelBudget / uint64(limits.MaxConcurrentTasks)
}

// SpawnAsyncTask admits task for component at priority, via the admission
// batcher. Blocks until the batch containing this admission has been
// processed.
func (b *Bridge) SpawnAsyncTask(ctx context.Context, component ComponentInstanceID, task async.Task, priority int) (ComponentTaskID, error) {
	job := &admission{component: component, task: task, priority: priority}
	result, err := b.batcher.Submit(ctx, job)
	if err != nil {
		return 0, err
	}
	if err := result.Wait(ctx); err != nil {
		return 0, err
	}
	if job.err != nil {
		return 0, job.err
	}
	return job.result, nil
}

// processAdmissions is the microbatch BatchProcessor: it validates and
// admits every job in one flush under the Bridge lock, amortizing lock
// acquisition and executor interaction across the whole batch.
func (b *Bridge) processAdmissions(ctx context.Context, jobs []*admission) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, j := range jobs {
		cc, ok := b.components[j.component]
		if !ok {
			j.err = wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "unknown component instance")
			continue
		}
		if cc.state != Active {
			j.err = wrterr.New(wrterr.CategoryRuntime, wrterr.CodeInvalidInput, "component is not accepting new async tasks")
			continue
		}
		if !cc.sem.TryAcquire(1) {
			j.err = wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceLimitExceeded, "component at max concurrent async tasks")
			continue
		}

		cc.nextTaskID++
		taskID := ComponentTaskID(cc.nextTaskID)
		token := async.NewCancellationToken()
		execID := b.executor.SpawnCancellable(j.task, j.priority, perTaskFuel(cc.limits), token)
		cc.taskIDs[taskID] = execID
		cc.taskTokens[taskID] = token
		cc.activeTasks++
		j.result = taskID
	}
	return nil
}

// PollAsyncTasks drives one tick of the shared executor.
func (b *Bridge) PollAsyncTasks(ctx context.Context) async.PollResult {
	return b.executor.PollAsyncTasks(ctx)
}

// drainSuspending cancels every task a component currently has in
// flight: each task was admitted with its own CancellationToken, so
// cancelling it here lets the executor's next PollAsyncTasks tick drop
// the task on its own terms (PollResult.Cancelled) rather than this
// call reaching into the executor to kill it mid-poll.
func (b *Bridge) drainSuspending(cc *componentContext) {
	for _, token := range cc.taskTokens {
		token.Cancel("component suspended")
	}
}

// SuspendComponent transitions component from Active to Suspending,
// cancelling its in-flight tasks, then to Suspended once they have
// drained from the executor's bookkeeping (mirroring
// suspend_component_async's two-step transition).
func (b *Bridge) SuspendComponent(id ComponentInstanceID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cc, ok := b.components[id]
	if !ok {
		return wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "unknown component instance")
	}
	cc.state = Suspending
	b.drainSuspending(cc)
	if cc.activeTasks == 0 {
		cc.state = Suspended
	}
	return nil
}

// NotifyTaskComplete must be called once a ComponentTaskID's underlying
// executor task finishes, to keep Bridge bookkeeping and the suspend
// lifecycle accurate.
func (b *Bridge) NotifyTaskComplete(component ComponentInstanceID, taskID ComponentTaskID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cc, ok := b.components[component]
	if !ok {
		return wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "unknown component instance")
	}
	if _, ok := cc.taskIDs[taskID]; !ok {
		return wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "unknown task id")
	}
	delete(cc.taskIDs, taskID)
	delete(cc.taskTokens, taskID)
	cc.sem.Release(1)
	if cc.activeTasks > 0 {
		cc.activeTasks--
	}
	if cc.state == Suspending && cc.activeTasks == 0 {
		cc.state = Suspended
	}
	return nil
}

// ComponentState returns a component's current lifecycle state.
func (b *Bridge) ComponentState(id ComponentInstanceID) (AsyncState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cc, ok := b.components[id]
	if !ok {
		return 0, wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "unknown component instance")
	}
	return cc.state, nil
}

// ActiveTaskCount returns the number of tasks a component has in flight.
func (b *Bridge) ActiveTaskCount(id ComponentInstanceID) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cc, ok := b.components[id]
	if !ok {
		return 0, wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "unknown component instance")
	}
	return cc.activeTasks, nil
}
