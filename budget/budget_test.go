package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint32(8), alignUp(1, 8))
	assert.Equal(t, uint32(8), alignUp(8, 8))
	assert.Equal(t, uint32(16), alignUp(9, 8))
	assert.Equal(t, uint32(0), alignUp(0, 8))
}

func TestArenaBasicAllocation(t *testing.T) {
	a := newArena(CrateRuntime, 1024)
	blk, err := a.Allocate(64)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), blk.Size())
	assert.Equal(t, uint32(1024-64), a.Available())

	b, err := blk.Bytes()
	require.NoError(t, err)
	assert.Len(t, b, 64)
}

func TestArenaRejectsZeroSize(t *testing.T) {
	a := newArena(CrateRuntime, 1024)
	_, err := a.Allocate(0)
	require.Error(t, err)
}

func TestArenaBudgetEnforced(t *testing.T) {
	a := newArena(CrateRuntime, 128)
	_, err := a.Allocate(64)
	require.NoError(t, err)
	_, err = a.Allocate(128)
	require.Error(t, err)
}

func TestArenaDisable(t *testing.T) {
	a := newArena(CrateRuntime, 1024)
	a.Disable()
	_, err := a.Allocate(8)
	require.Error(t, err)
}

func TestArenaScopeBasic(t *testing.T) {
	a := newArena(CrateRuntime, 1024)
	scope, err := a.EnterScope(512)
	require.NoError(t, err)

	blk, err := a.Allocate(64)
	require.NoError(t, err)
	assert.Equal(t, uint32(1024-64), a.Available())

	scope.Exit()
	assert.Equal(t, uint32(1024), a.Available(), "scope exit must rewind allocated bytes")

	_, err = blk.Bytes()
	require.Error(t, err, "block from an exited scope must be invalidated")
}

func TestArenaScopeBudget(t *testing.T) {
	a := newArena(CrateRuntime, 1024)
	scope, err := a.EnterScope(32)
	require.NoError(t, err)
	defer scope.Exit()

	_, err = a.Allocate(64)
	require.Error(t, err, "allocation exceeding the scope's own sub-budget must fail even though the arena has room")
}

func TestArenaScopeNested(t *testing.T) {
	a := newArena(CrateRuntime, 1024)
	outer, err := a.EnterScope(1024)
	require.NoError(t, err)
	defer outer.Exit()

	_, err = a.Allocate(100)
	require.NoError(t, err)

	inner, err := a.EnterScope(256)
	require.NoError(t, err)
	_, err = a.Allocate(64)
	require.NoError(t, err)
	inner.Exit()

	// Allocate(100) reserves 104 bytes after 8-byte alignment.
	assert.Equal(t, uint32(1024-104), a.Available(), "inner scope exit must not roll back the outer scope's allocations")
}

func TestArenaScopeStackOverflow(t *testing.T) {
	a := newArena(CrateRuntime, 1<<20)
	var scopes []*Scope
	for i := 0; i < MaxScopes; i++ {
		s, err := a.EnterScope(1024)
		require.NoError(t, err)
		scopes = append(scopes, s)
	}
	_, err := a.EnterScope(1024)
	require.Error(t, err)
	for i := len(scopes) - 1; i >= 0; i-- {
		scopes[i].Exit()
	}
}

func TestAllocatorForCrate(t *testing.T) {
	alloc := NewAllocator(TotalHeapSize)
	arena := alloc.ForCrate(CrateRuntime)
	require.NotNil(t, arena)
	assert.Equal(t, CrateRuntime, arena.Crate())
	assert.Greater(t, arena.TotalBudget(), uint32(0))
}

func TestAllocatorWithExactBudgets(t *testing.T) {
	alloc := NewAllocatorWithBudgets(CrateBudgetTable())
	assert.Equal(t, uint32(4<<20), alloc.ForCrate(CrateRuntime).TotalBudget())
	assert.Equal(t, uint32(1<<20), alloc.ForCrate(CrateFoundation).TotalBudget())
}
