package bounded

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseengine/wrt-sub014/budget"
)

type codecInt int

func (c codecInt) ToBytes(w *bytes.Buffer) error {
	return w.WriteByte(byte(c))
}

func (c codecInt) FromBytes(r *bytes.Reader) error { return nil }

func (c codecInt) Checksum(acc uint32) uint32 { return acc + uint32(c) }

func TestVecPushGetPop(t *testing.T) {
	p := NewSystemProvider(1024)
	v := NewVec[codecInt](4, 8, p)
	require.NoError(t, v.Push(1))
	require.NoError(t, v.Push(2))
	assert.Equal(t, 2, v.Len())

	got, err := v.Get(0)
	require.NoError(t, err)
	assert.Equal(t, codecInt(1), got)

	last, err := v.Pop()
	require.NoError(t, err)
	assert.Equal(t, codecInt(2), last)
	assert.Equal(t, 1, v.Len())
}

func TestVecCapacityEnforced(t *testing.T) {
	p := NewSystemProvider(1024)
	v := NewVec[codecInt](2, 8, p)
	require.NoError(t, v.Push(1))
	require.NoError(t, v.Push(2))
	require.Error(t, v.Push(3))
}

func TestVecChecksumDeterministic(t *testing.T) {
	p := NewSystemProvider(1024)
	v := NewVec[codecInt](4, 8, p)
	_ = v.Push(1)
	_ = v.Push(2)
	_ = v.Push(3)
	assert.Equal(t, uint32(6), v.Checksum(0))
}

func TestMapInsertionOrderPreserved(t *testing.T) {
	p := NewSystemProvider(1024)
	m := NewMap[string, codecInt](4, 8, p)
	require.NoError(t, m.Set("c", 3))
	require.NoError(t, m.Set("a", 1))
	require.NoError(t, m.Set("b", 2))

	var keys []string
	m.Each(func(key string, value codecInt) { keys = append(keys, key) })
	assert.Equal(t, []string{"c", "a", "b"}, keys)
}

func TestMapOverwriteDoesNotConsumeCapacity(t *testing.T) {
	p := NewSystemProvider(1024)
	m := NewMap[string, codecInt](1, 8, p)
	require.NoError(t, m.Set("a", 1))
	require.NoError(t, m.Set("a", 2))
	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, codecInt(2), v)
}

func TestMapCapacityEnforced(t *testing.T) {
	p := NewSystemProvider(1024)
	m := NewMap[string, codecInt](1, 8, p)
	require.NoError(t, m.Set("a", 1))
	require.Error(t, m.Set("b", 2))
}

func TestMapDeletePreservesOrder(t *testing.T) {
	p := NewSystemProvider(1024)
	m := NewMap[string, codecInt](4, 8, p)
	_ = m.Set("a", 1)
	_ = m.Set("b", 2)
	_ = m.Set("c", 3)
	m.Delete("b")

	var keys []string
	m.Each(func(key string, value codecInt) { keys = append(keys, key) })
	assert.Equal(t, []string{"a", "c"}, keys)

	_, ok := m.Get("b")
	assert.False(t, ok)

	require.NoError(t, m.Set("d", 4))
}

func TestSetAddContainsRemove(t *testing.T) {
	p := NewSystemProvider(1024)
	s := NewSet[string](2, 8, p)
	require.NoError(t, s.Add("x"))
	require.NoError(t, s.Add("x"), "re-adding an existing member must not error or consume capacity")
	require.NoError(t, s.Add("y"))
	assert.Equal(t, 2, s.Len())
	require.Error(t, s.Add("z"))

	assert.True(t, s.Contains("x"))
	s.Remove("x")
	assert.False(t, s.Contains("x"))
	require.NoError(t, s.Add("z"))
}

func TestStringAppendCapacity(t *testing.T) {
	p := NewSystemProvider(1024)
	s := NewString(5, p)
	require.NoError(t, s.Append("ab"))
	require.NoError(t, s.Append("cd"))
	assert.Equal(t, "abcd", s.String())
	require.Error(t, s.Append("xy"), "appending past capacity must fail")
	require.NoError(t, s.Append("e"))
	assert.Equal(t, "abcde", s.String())
}

func TestSystemProviderBudget(t *testing.T) {
	p := NewSystemProvider(16)
	b, err := p.AllocateBytes(10)
	require.NoError(t, err)
	assert.Len(t, b, 10)
	assert.Equal(t, uint32(6), p.Available())

	_, err = p.AllocateBytes(10)
	require.Error(t, err)
}

func TestVecProviderBudgetGatesGrowth(t *testing.T) {
	p := NewSystemProvider(16)
	v := NewVec[codecInt](100, 8, p)
	require.NoError(t, v.Push(1))
	require.NoError(t, v.Push(2))
	// Capacity (100) is nowhere near exhausted; the provider's 16-byte
	// budget is, at 2 slots of 8 bytes each. Growth must stop there.
	require.Error(t, v.Push(3), "push must fail once the provider is out of budget, independent of capacity")
	assert.Equal(t, uint32(0), p.Available())
}

func TestVecBackedByArenaAllocatesFromCrateBudget(t *testing.T) {
	arena := budget.NewAllocator(budget.TotalHeapSize).ForCrate(budget.CrateRuntime)
	before := arena.Available()

	v := NewVec[codecInt](4, 8, arena)
	require.NoError(t, v.Push(1))
	require.NoError(t, v.Push(2))

	assert.Less(t, arena.Available(), before, "pushing must draw real bytes from the arena's crate budget")
	assert.Equal(t, 2, v.Len())
}
