package component

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{HighWaterPercent: 80, LowWaterPercent: 20, MaxBufferSize: 100}
}

func TestStreamingLiftFillsBufferUntilHighWaterMark(t *testing.T) {
	abi := NewStreamingAbi(smallBackpressureConfig())
	handle := abi.CreateStream(Lifting, CanonOptions{StringEncoding: UTF8})

	now := time.Unix(0, 0)
	res, err := abi.StreamingLift(handle, now, make([]byte, 50))
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, res.Result)
	assert.Equal(t, 50, res.BytesConsumed)

	stats, err := abi.Stats(handle)
	require.NoError(t, err)
	assert.False(t, stats.BackpressureActive)
}

func TestStreamingLiftArmsBackpressureAtHighWaterMark(t *testing.T) {
	abi := NewStreamingAbi(smallBackpressureConfig())
	handle := abi.CreateStream(Lifting, CanonOptions{})

	now := time.Unix(0, 0)
	_, err := abi.StreamingLift(handle, now, make([]byte, 90))
	require.NoError(t, err)

	stats, err := abi.Stats(handle)
	require.NoError(t, err)
	assert.True(t, stats.BackpressureActive)

	later := now.Add(10 * time.Millisecond)
	res, err := abi.StreamingLift(handle, later, make([]byte, 10))
	require.NoError(t, err)
	assert.Equal(t, ResultBackpressure, res.Result)
}

func TestRetryAfterMsIsDeterministicFromThroughput(t *testing.T) {
	assert.Equal(t, uint32(0), retryAfterMs(0, 10))
	assert.Equal(t, uint32(1), retryAfterMs(5, 0))
	assert.Equal(t, uint32(1), retryAfterMs(5, 10))
	assert.Equal(t, uint32(5), retryAfterMs(50, 10))
	assert.Equal(t, uint32(4), retryAfterMs(31, 10))
}

func TestStreamingLowerReturnsCopiedBytes(t *testing.T) {
	abi := NewStreamingAbi(smallBackpressureConfig())
	handle := abi.CreateStream(Lowering, CanonOptions{})

	in := []byte{1, 2, 3}
	res, err := abi.StreamingLower(handle, time.Unix(0, 0), in)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, res.Result)
	require.Equal(t, in, res.Bytes)

	in[0] = 99
	assert.Equal(t, byte(1), res.Bytes[0], "StreamingLower must copy, not alias, its input")
}

func TestCloseStreamInvalidatesHandle(t *testing.T) {
	abi := NewStreamingAbi(smallBackpressureConfig())
	handle := abi.CreateStream(Lifting, CanonOptions{})
	require.NoError(t, abi.CloseStream(handle))

	_, err := abi.Stats(handle)
	assert.Error(t, err)
}

func TestUnknownHandleFails(t *testing.T) {
	abi := NewStreamingAbi(smallBackpressureConfig())
	_, err := abi.StreamingLift(StreamHandle(999), time.Unix(0, 0), nil)
	assert.Error(t, err)
}

func TestThroughputTrackerEstimatesRate(t *testing.T) {
	var tr throughputTracker
	start := time.Unix(0, 0)
	tr.record(start, 100)
	tr.record(start.Add(10*time.Millisecond), 100)

	rate := tr.bytesPerMs(start.Add(10 * time.Millisecond))
	assert.InDelta(t, 10.0, rate, 0.001)
}
