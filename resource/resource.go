// Package resource implements the Component Model resource table: handle
// issuance, generational borrow/invalidate semantics, per-resource memory
// strategies, and an ordered interceptor chain.
//
// Grounded on original_source/wrt-component/src/resources.rs. The weak
// back-reference borrow graph described there is rendered as an arena plus
// generational indices (spec.md §9's own redesign instruction): a borrow
// is a (index, generation) pair, and dropping the owner bumps the
// generation so stale borrows fail cleanly at next access, matching the
// generation trick budget.Arena uses for Block invalidation.
package resource

import (
	"sync"

	"github.com/pulseengine/wrt-sub014/wrterr"
)

// Handle is an opaque resource reference, monotonically issued starting
// at 1; zero is never a valid handle.
type Handle uint32

// MemoryStrategy selects how a resource's data is exposed to callers.
type MemoryStrategy uint8

const (
	// ZeroCopy hands out the underlying data directly; the caller is
	// trusted not to retain it past the resource's lifetime.
	ZeroCopy MemoryStrategy = iota
	// BoundedCopy copies into a pooled scratch buffer, avoiding both an
	// allocation per access and exposure of the live backing store.
	BoundedCopy
	// Isolated makes a full independent copy and validates it, for
	// resources crossing the strongest capability boundary.
	Isolated
)

// Interceptor observes resource table operations in registration order,
// mirroring ResourceTable::add_interceptor's ordered Vec of hooks. OnCreate,
// OnDrop and OnOp fire before the underlying operation proceeds; OnBorrow
// and OnAccess fire after the borrow or lookup has succeeded.
type Interceptor interface {
	OnCreate(handle Handle, data any)
	OnBorrow(owner, borrow Handle)
	OnDrop(handle Handle)
	OnAccess(handle Handle)
	OnOp(handle Handle, op string)
}

type slot struct {
	generation uint32
	live       bool
	data       any
	strategy   MemoryStrategy
	ownerOf    Handle // zero if this slot is not a borrow of another
}

// Table issues and tracks resource handles. Every method holds the
// table's mutex, so a Table is safe for concurrent use.
type Table struct {
	mu           sync.Mutex
	capacity     int
	nextHandle   uint32
	slots        map[Handle]*slot
	interceptors []Interceptor
	pool         *BufferPool
}

// DefaultCapacity matches spec.md §4.6's default resource table capacity.
const DefaultCapacity = 1024

// NewTable creates a Table with the given capacity (DefaultCapacity if 0).
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Table{
		capacity:   capacity,
		nextHandle: 1,
		slots:      make(map[Handle]*slot),
		pool:       NewBufferPool(),
	}
}

// AddInterceptor appends an interceptor to the ordered chain.
func (t *Table) AddInterceptor(i Interceptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interceptors = append(t.interceptors, i)
}

// Count returns the number of live (non-dropped) resources.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.slots {
		if s.live {
			n++
		}
	}
	return n
}

// Create issues a new handle for data, with the given memory strategy.
// Fails with CodeResourceLimitExceeded once Count reaches capacity.
func (t *Table) Create(data any, strategy MemoryStrategy) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.slots) >= t.capacity {
		return 0, wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceLimitExceeded, "resource table at capacity")
	}

	for _, ic := range t.interceptors {
		ic.OnCreate(Handle(t.nextHandle), data)
	}

	h := Handle(t.nextHandle)
	t.nextHandle++
	t.slots[h] = &slot{generation: 1, live: true, data: data, strategy: strategy}
	return h, nil
}

func (t *Table) lookup(h Handle) (*slot, error) {
	s, ok := t.slots[h]
	if !ok || !s.live {
		return nil, wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "invalid or dropped resource handle")
	}
	return s, nil
}

// Borrow creates a new handle aliasing the same underlying resource as h,
// with a back-reference so that dropping h invalidates the borrow on its
// next access (via generation mismatch): the new handle gets its own
// slot, but that slot's validity is tied to the owner's liveness, checked
// in Get.
func (t *Table) Borrow(h Handle) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	owner, err := t.lookup(h)
	if err != nil {
		return 0, err
	}

	newHandle := Handle(t.nextHandle)
	t.nextHandle++
	t.slots[newHandle] = &slot{generation: owner.generation, live: true, data: owner.data, strategy: owner.strategy, ownerOf: h}

	for _, ic := range t.interceptors {
		ic.OnBorrow(h, newHandle)
	}
	return newHandle, nil
}

// Drop invalidates handle. If handle owns other live borrows (created via
// Borrow), those borrows' generation check fails on next Get because the
// owner's slot generation is bumped.
func (t *Table) Drop(handle Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(handle)
	if err != nil {
		return err
	}

	for _, ic := range t.interceptors {
		ic.OnDrop(handle)
	}

	s.live = false
	s.generation++
	delete(t.slots, handle)
	return nil
}

// Get returns the data behind handle, validating that any borrow's owner
// is still live (generation still matches what was recorded at Borrow
// time).
func (t *Table) Get(handle Handle) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, err := t.lookup(handle)
	if err != nil {
		return nil, err
	}
	if s.ownerOf != 0 {
		owner, ok := t.slots[s.ownerOf]
		if !ok || !owner.live || owner.generation != s.generation {
			return nil, wrterr.New(wrterr.CategoryResource, wrterr.CodeResourceInvalidHandle, "borrow invalidated: owner has been dropped")
		}
	}

	for _, ic := range t.interceptors {
		ic.OnAccess(handle)
	}
	return s.data, nil
}

// Apply runs a named custom op against handle, after notifying
// interceptors. Recognized ops ("new", "drop", "rep") are handled inline;
// anything else is surfaced to the caller as a no-op success, matching
// "or named custom op" in spec.md §4.6 (dispatch for custom ops is the
// host's responsibility, not the table's).
func (t *Table) Apply(handle Handle, op string) error {
	t.mu.Lock()
	for _, ic := range t.interceptors {
		ic.OnOp(handle, op)
	}
	t.mu.Unlock()

	switch op {
	case "drop":
		return t.Drop(handle)
	case "new", "rep":
		_, err := t.Get(handle)
		return err
	default:
		_, err := t.Get(handle)
		return err
	}
}

// Strategy returns the memory strategy a handle was created with.
func (t *Table) Strategy(handle Handle) (MemoryStrategy, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, err := t.lookup(handle)
	if err != nil {
		return 0, err
	}
	return s.strategy, nil
}

// BoundedCopyBuffer borrows a scratch buffer of at least size bytes from
// the table's BufferPool, for use with the BoundedCopy memory strategy.
// Callers must ReturnBuffer when finished.
func (t *Table) BoundedCopyBuffer(size int) []byte {
	return t.pool.Get(size)
}

// ReturnBuffer returns a buffer obtained from BoundedCopyBuffer to the
// pool for reuse.
func (t *Table) ReturnBuffer(buf []byte) {
	t.pool.Put(buf)
}
