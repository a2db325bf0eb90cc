package safety

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsilOrdering(t *testing.T) {
	assert.True(t, QM < AsilA)
	assert.True(t, AsilA < AsilB)
	assert.True(t, AsilB < AsilC)
	assert.True(t, AsilC < AsilD)
}

func TestAsilProperties(t *testing.T) {
	assert.False(t, AsilB.RequiresMemoryProtection())
	assert.True(t, AsilC.RequiresMemoryProtection())
	assert.True(t, AsilD.RequiresMemoryProtection())

	assert.False(t, AsilA.RequiresRuntimeVerification())
	assert.True(t, AsilB.RequiresRuntimeVerification())

	assert.False(t, AsilB.RequiresCFI())
	assert.True(t, AsilC.RequiresCFI())

	assert.False(t, AsilC.RequiresRedundancy())
	assert.True(t, AsilD.RequiresRedundancy())

	assert.Equal(t, uint64(0), QM.VerificationFrequency())
	assert.Equal(t, uint64(1), AsilD.VerificationFrequency())
}

func TestContextUpgrade(t *testing.T) {
	c := NewContext(AsilA, nil)
	require.NoError(t, c.UpgradeRuntime(AsilC))
	assert.Equal(t, AsilC, c.EffectiveASIL())

	err := c.UpgradeRuntime(QM)
	require.Error(t, err)
	assert.Equal(t, AsilC, c.EffectiveASIL(), "runtime downgrade below compile-time floor must not be observable")
}

func TestContextUpgradeRejectsBelowCompileTimeFloor(t *testing.T) {
	c := NewContext(AsilC, nil)
	err := c.UpgradeRuntime(QM)
	require.Error(t, err)
	assert.Equal(t, AsilC, c.EffectiveASIL())
}

func TestContextViolationsAndSafety(t *testing.T) {
	c := NewContext(AsilB, nil)
	for i := 0; i < 100; i++ {
		c.ShouldVerify()
	}
	assert.True(t, c.IsSafe())
	c.RecordViolation("op", "test violation")
	assert.Equal(t, uint64(1), c.ViolationCount())
	// 1/100 = 0.01, right at ASIL-B's max error rate.
	assert.True(t, c.IsSafe())
	c.RecordViolation("op", "test violation 2")
	assert.False(t, c.IsSafe())
}

func TestContextReset(t *testing.T) {
	c := NewContext(AsilA, nil)
	c.RecordViolation("op", "x")
	c.ShouldVerify()
	c.Reset()
	assert.Equal(t, uint64(0), c.ViolationCount())
	assert.Equal(t, uint64(0), c.OperationCount())
}

func TestShouldVerifyFrequency(t *testing.T) {
	c := NewContext(AsilD, nil)
	assert.True(t, c.ShouldVerify(), "ASIL-D verifies every operation")

	c2 := NewContext(AsilA, nil)
	var hits int
	for i := 0; i < 1000; i++ {
		if c2.ShouldVerify() {
			hits++
		}
	}
	assert.Equal(t, 1, hits)
}

func TestGuardRefusesWhenUnsafe(t *testing.T) {
	c := NewContext(AsilD, nil)
	// Drive the error rate above ASIL-D's 0.0001 max.
	c.ShouldVerify()
	c.RecordViolation("op", "seed violation")
	_, err := c.Guard("next-op")
	require.Error(t, err)
}

func TestGuardCompleteSuppressesViolation(t *testing.T) {
	c := NewContext(AsilA, nil)
	func() {
		g, err := c.Guard("op")
		require.NoError(t, err)
		defer g.Close()
		g.Complete()
	}()
	assert.Equal(t, uint64(0), c.ViolationCount())
}

func TestGuardWithoutCompleteRecordsViolation(t *testing.T) {
	c := NewContext(AsilA, nil)
	func() {
		g, err := c.Guard("op")
		require.NoError(t, err)
		defer g.Close()
	}()
	assert.Equal(t, uint64(1), c.ViolationCount())
}

func TestGuardVerifyIfRequired(t *testing.T) {
	c := NewContext(AsilD, nil)
	g, err := c.Guard("op")
	require.NoError(t, err)
	defer g.Close()

	verifyErr := errors.New("boom")
	err = g.VerifyIfRequired(func() error { return verifyErr })
	require.Error(t, err)
	assert.Equal(t, uint64(1), c.ViolationCount())
	g.Complete()
}

func TestGuardPanicRecordsViolationAndRepanics(t *testing.T) {
	c := NewContext(AsilA, nil)
	assert.Panics(t, func() {
		g, err := c.Guard("op")
		require.NoError(t, err)
		defer g.Close()
		panic("boom")
	})
	assert.Equal(t, uint64(1), c.ViolationCount())
}

func TestSafeAllocationIntegrity(t *testing.T) {
	c := NewContext(AsilD, nil)
	data := []byte{1, 2, 3, 4}
	alloc := NewSafeAllocation(data, c)

	got, err := alloc.Data()
	require.NoError(t, err)
	assert.Equal(t, data, got)

	data[0] = 0xFF
	_, err = alloc.Data()
	require.Error(t, err)
	assert.Equal(t, uint64(1), c.ViolationCount())

	alloc.UpdateChecksum()
	_, err = alloc.Data()
	require.NoError(t, err)
}

func TestSafeAllocationSkipsVerificationBelowAsilC(t *testing.T) {
	c := NewContext(AsilB, nil)
	data := []byte{1, 2, 3}
	alloc := NewSafeAllocation(data, c)
	data[0] = 0xFF
	_, err := alloc.Data()
	require.NoError(t, err, "ASIL-B does not require memory protection")
}
