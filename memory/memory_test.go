package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func onePage() Limits { return Limits{Min: 1} }

func TestInstanceLoadStoreRoundTrip(t *testing.T) {
	m := NewInstance(onePage(), false, false)
	require.NoError(t, m.Store(10, []byte("hello")))
	got, err := m.Load(10, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestInstanceStoreOutOfBoundsRejected(t *testing.T) {
	m := NewInstance(onePage(), false, false)
	err := m.Store(PageSize-2, []byte("abcd"))
	require.Error(t, err)
}

func TestInstanceGrow(t *testing.T) {
	max := uint32(4)
	m := NewInstance(Limits{Min: 1, Max: &max}, false, false)
	prev, err := m.Grow(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), prev)
	assert.Equal(t, uint32(3), m.SizePages())
}

func TestInstanceGrowRejectsExceedingMax(t *testing.T) {
	max := uint32(2)
	m := NewInstance(Limits{Min: 1, Max: &max}, false, false)
	_, err := m.Grow(5)
	require.Error(t, err)
}

func TestInstanceFill(t *testing.T) {
	m := NewInstance(onePage(), false, false)
	require.NoError(t, m.Fill(0, 0xAB, 4))
	got, err := m.Load(0, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAB, 0xAB, 0xAB, 0xAB}, got)
}

func TestInstanceCopyOverlapping(t *testing.T) {
	m := NewInstance(onePage(), false, false)
	require.NoError(t, m.Store(0, []byte("abcdef")))
	require.NoError(t, m.Copy(2, 0, 6))
	got, err := m.Load(0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte("ababcdef"), got)
}

func TestInstanceInit(t *testing.T) {
	m := NewInstance(onePage(), false, false)
	segment := []byte("segment-data")
	require.NoError(t, m.Init(0, segment, 0, uint64(len(segment))))
	got, err := m.Load(0, uint32FromInt(len(segment)))
	require.NoError(t, err)
	assert.Equal(t, segment, got)
}

func uint32FromInt(n int) uint32 { return uint32(n) }

func TestContextRegisterAndCap(t *testing.T) {
	c := NewContext()
	for i := 0; i < MaxMemories; i++ {
		require.NoError(t, c.Register(uint32(i), NewInstance(onePage(), false, false)))
	}
	err := c.Register(MaxMemories, NewInstance(onePage(), false, false))
	require.Error(t, err)
}

func TestContextRegisterDuplicateRejected(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Register(0, NewInstance(onePage(), false, false)))
	err := c.Register(0, NewInstance(onePage(), false, false))
	require.Error(t, err)
}

func TestCrossCopyMovesBytes(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Register(0, NewInstance(onePage(), false, false)))
	require.NoError(t, c.Register(1, NewInstance(onePage(), false, false)))

	src, _ := c.Get(0)
	require.NoError(t, src.Store(0, []byte("cross-memory")))

	require.NoError(t, c.CrossCopy(1, 100, 0, 0, 12))

	dst, _ := c.Get(1)
	got, err := dst.Load(100, 12)
	require.NoError(t, err)
	assert.Equal(t, []byte("cross-memory"), got)
}

func TestCrossCopyAllOrNothingOnDestBoundsFailure(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Register(0, NewInstance(onePage(), false, false)))
	require.NoError(t, c.Register(1, NewInstance(onePage(), false, false)))

	src, _ := c.Get(0)
	require.NoError(t, src.Store(0, []byte("payload")))

	err := c.CrossCopy(1, PageSize-3, 0, 0, 7)
	require.Error(t, err)

	dst, _ := c.Get(1)
	got, err := dst.Load(0, 7)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 7), got, "no bytes should move when the destination range is invalid")
}

func TestCrossCopyAllOrNothingOnSrcBoundsFailure(t *testing.T) {
	c := NewContext()
	require.NoError(t, c.Register(0, NewInstance(onePage(), false, false)))
	require.NoError(t, c.Register(1, NewInstance(onePage(), false, false)))

	err := c.CrossCopy(1, 0, 0, PageSize-3, 7)
	require.Error(t, err)

	dst, _ := c.Get(1)
	got, err := dst.Load(0, 7)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 7), got)
}

func TestSplatAndExtractLane(t *testing.T) {
	v := Splat(I32x4, 0xDEADBEEF)
	lane, err := ExtractLane(v, I32x4, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEF), lane)
}

func TestReplaceLane(t *testing.T) {
	v := Splat(I16x8, 0)
	v2, err := ReplaceLane(v, I16x8, 3, 42)
	require.NoError(t, err)
	lane, err := ExtractLane(v2, I16x8, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), lane)
}

func TestExtractLaneOutOfRange(t *testing.T) {
	v := Splat(I8x16, 1)
	_, err := ExtractLane(v, I8x16, 16)
	require.Error(t, err)
}

func TestArithAddI32x4(t *testing.T) {
	a := Splat(I32x4, 10)
	b := Splat(I32x4, 5)
	sum, err := Arith(OpAdd, I32x4, a, b)
	require.NoError(t, err)
	lane, _ := ExtractLane(sum, I32x4, 0)
	assert.Equal(t, uint64(15), lane)
}

func TestArithAddSatI8x16Saturates(t *testing.T) {
	a := Splat(I8x16, uint64(int8(120)))
	b := Splat(I8x16, uint64(int8(100)))
	sum, err := Arith(OpAddSat, I8x16, a, b)
	require.NoError(t, err)
	lane, _ := ExtractLane(sum, I8x16, 0)
	assert.Equal(t, uint64(127), lane, "i8 addition must saturate at the signed max rather than wrap")
}

func TestBitwiseAnd(t *testing.T) {
	a := Splat(I8x16, 0b1100)
	b := Splat(I8x16, 0b1010)
	out, err := Bitwise(OpAnd, a, b)
	require.NoError(t, err)
	assert.Equal(t, byte(0b1000), out[0])
}

func TestCompareEqProducesAllOnesMask(t *testing.T) {
	a := Splat(I32x4, 7)
	b := Splat(I32x4, 7)
	mask, err := Compare(OpEq, I32x4, a, b)
	require.NoError(t, err)
	lane, _ := ExtractLane(mask, I32x4, 0)
	assert.Equal(t, uint64(0xFFFFFFFF), lane)
}

func TestMinMaxFloatPropagatesNaN(t *testing.T) {
	nan := fromF32([4]float32{floatNaN(), 0, 0, 0})
	one := Splat(F32x4, 0)
	out, err := Arith(OpMin, F32x4, nan, one)
	require.NoError(t, err)
	lanes := out.lanesF32()
	assert.True(t, lanes[0] != lanes[0], "NaN must propagate through min, not be discarded")
}

func floatNaN() float32 {
	var z float32
	return z / z
}

func TestNarrowI16x8Saturates(t *testing.T) {
	a := fromI16([8]int16{300, -300, 0, 0, 0, 0, 0, 0})
	b := Splat(I16x8, 0)
	out := NarrowI16x8(a, b, true)
	assert.Equal(t, int8(127), int8(out[0]))
	assert.Equal(t, int8(-128), int8(out[1]))
}

func TestShuffleSelectsFromBothOperands(t *testing.T) {
	a := fromI8([16]int8{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15})
	b := fromI8([16]int8{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110, 111, 112, 113, 114, 115})
	var idx [16]byte
	idx[0] = 0
	idx[1] = 16
	out := Shuffle(a, b, idx)
	assert.Equal(t, byte(0), out[0])
	assert.Equal(t, byte(100), out[1])
}

func TestSwizzleOutOfRangeYieldsZero(t *testing.T) {
	a := fromI8([16]int8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})
	idx := Splat(I8x16, 200)
	out := Swizzle(a, idx)
	assert.Equal(t, V128{}, out)
}

func TestDotProduct(t *testing.T) {
	a := fromI16([8]int16{1, 2, 0, 0, 0, 0, 0, 0})
	b := fromI16([8]int16{3, 4, 0, 0, 0, 0, 0, 0})
	out := DotProduct(a, b)
	lane := out.lanesI32()[0]
	assert.Equal(t, int32(1*3+2*4), lane)
}

func TestPairwiseAddI16x8(t *testing.T) {
	a := fromI8([16]int8{1, 2, 3, 4, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	out := PairwiseAddI16x8(a, true)
	lanes := out.lanesI16()
	assert.Equal(t, int16(3), lanes[0])
	assert.Equal(t, int16(7), lanes[1])
}
