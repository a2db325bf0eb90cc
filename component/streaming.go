package component

import (
	"math"
	"time"

	"github.com/pulseengine/wrt-sub014/wrterr"
)

// StreamDirection is the direction bytes flow through a stream: core
// wasm bytes lifted into component values, component values lowered
// into core wasm bytes, or both.
type StreamDirection uint8

const (
	Lifting StreamDirection = iota
	Lowering
	BidirectionalStream
)

// BackpressureConfig sets the high/low water marks (as percentages of
// buffer capacity) that arm and release backpressure, plus the buffer
// size those percentages apply to. The throughput used to derive a
// retry delay is measured per stream, not configured here.
type BackpressureConfig struct {
	HighWaterPercent uint8
	LowWaterPercent  uint8
	MaxBufferSize    int
}

// DefaultBackpressureConfig matches the 80/20 default original_source
// ships (streaming_canonical.rs::BackpressureConfig::default).
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{HighWaterPercent: 80, LowWaterPercent: 20, MaxBufferSize: 8192}
}

// BackpressureState tracks one stream's current buffer occupancy
// against its configured water marks.
type BackpressureState struct {
	BufferUsagePercent uint8
	Active             bool
	AvailableCapacity  int
	highWaterMark      int
	lowWaterMark       int
}

func newBackpressureState(cfg BackpressureConfig) BackpressureState {
	high := cfg.MaxBufferSize * int(cfg.HighWaterPercent) / 100
	low := cfg.MaxBufferSize * int(cfg.LowWaterPercent) / 100
	if high <= 0 {
		high = 1
	}
	return BackpressureState{
		AvailableCapacity: cfg.MaxBufferSize,
		highWaterMark:     high,
		lowWaterMark:      low,
	}
}

func (s *BackpressureState) update(bufferLen int) {
	usage := bufferLen * 100 / s.highWaterMark
	if usage > 100 {
		usage = 100
	}
	s.BufferUsagePercent = uint8(usage)
	switch {
	case bufferLen >= s.highWaterMark && !s.Active:
		s.Active = true
	case bufferLen <= s.lowWaterMark && s.Active:
		s.Active = false
	}
	s.AvailableCapacity = s.highWaterMark - bufferLen
	if s.AvailableCapacity < 0 {
		s.AvailableCapacity = 0
	}
}

// throughputSample is one (time, cumulative bytes) observation, held
// in a small fixed-size ring so recent-rate estimation never grows
// unbounded. Reimplements catrate/ring.go's circular-buffer idiom
// directly (that type is unexported, so it can't be imported) rather
// than a general sorted-insert ring, since samples only ever append.
type throughputSample struct {
	at    time.Time
	bytes uint64
}

type throughputTracker struct {
	samples  [16]throughputSample
	head     int
	count    int
	lifetime uint64
}

func (t *throughputTracker) record(now time.Time, n int) {
	t.lifetime += uint64(n)
	t.samples[t.head] = throughputSample{at: now, bytes: t.lifetime}
	t.head = (t.head + 1) % len(t.samples)
	if t.count < len(t.samples) {
		t.count++
	}
}

// bytesPerMs estimates recent throughput from the oldest retained
// sample through now. Returns 0 if fewer than two samples exist yet.
func (t *throughputTracker) bytesPerMs(now time.Time) float64 {
	if t.count < 2 {
		return 0
	}
	oldestIdx := (t.head - t.count + len(t.samples)) % len(t.samples)
	oldest := t.samples[oldestIdx]
	elapsedMs := float64(now.Sub(oldest.at).Milliseconds())
	if elapsedMs <= 0 {
		return 0
	}
	return float64(t.lifetime-oldest.bytes) / elapsedMs
}

// StreamHandle identifies one active streaming context.
type StreamHandle uint32

// StreamingContext holds one stream's buffer, direction, options, and
// backpressure/throughput bookkeeping.
type StreamingContext struct {
	Handle         StreamHandle
	Direction      StreamDirection
	Options        CanonOptions
	buffer         []byte
	bytesProcessed uint64
	backpressure   BackpressureState
	throughput     throughputTracker
}

// StreamingResult classifies the outcome of one streaming lift/lower
// call.
type StreamingResult uint8

const (
	ResultSuccess StreamingResult = iota
	ResultPending
	ResultBackpressure
	ResultEndOfStream
)

// StreamingLiftResult is the outcome of StreamingLift.
type StreamingLiftResult struct {
	Result         StreamingResult
	BytesConsumed  int
	NeedsMoreInput bool
	RetryAfterMs   uint32
}

// StreamingLowerResult is the outcome of StreamingLower.
type StreamingLowerResult struct {
	Result         StreamingResult
	Bytes          []byte
	NeedsMoreInput bool
	RetryAfterMs   uint32
}

// StreamingAbi manages the active streaming contexts backing the
// component model's stream/future canonical ABI surface, applying
// backpressure once a stream's buffer has reached its high water mark.
// A single lift may carry the buffer past that mark (up to
// MaxBufferSize); later calls then see a backpressure result.
type StreamingAbi struct {
	streams map[StreamHandle]*StreamingContext
	nextID  uint32
	config  BackpressureConfig
}

// NewStreamingAbi creates an empty StreamingAbi using cfg for every
// stream it creates.
func NewStreamingAbi(cfg BackpressureConfig) *StreamingAbi {
	return &StreamingAbi{streams: make(map[StreamHandle]*StreamingContext), nextID: 1, config: cfg}
}

// CreateStream opens a new streaming context and returns its handle.
func (a *StreamingAbi) CreateStream(direction StreamDirection, options CanonOptions) StreamHandle {
	handle := StreamHandle(a.nextID)
	a.nextID++
	a.streams[handle] = &StreamingContext{
		Handle:       handle,
		Direction:    direction,
		Options:      options,
		backpressure: newBackpressureState(a.config),
	}
	return handle
}

func (a *StreamingAbi) lookup(handle StreamHandle) (*StreamingContext, error) {
	ctx, ok := a.streams[handle]
	if !ok {
		return nil, wrterr.New(wrterr.CategoryRuntime, wrterr.CodeResourceInvalidHandle, "component: unknown stream handle")
	}
	return ctx, nil
}

// retryAfterMs derives the deterministic backoff hint from the
// stream's recent observed throughput: ceil(slack_bytes /
// configured_bytes_per_ms). slack_bytes is how far the buffer must
// drain before it clears the low water mark. A zero or unmeasurable
// rate falls back to 1ms, never to an unbounded or infinite wait.
func retryAfterMs(slackBytes int, bytesPerMs float64) uint32 {
	if slackBytes <= 0 {
		return 0
	}
	if bytesPerMs <= 0 {
		return 1
	}
	ms := math.Ceil(float64(slackBytes) / bytesPerMs)
	if ms < 1 {
		ms = 1
	}
	return uint32(ms)
}

// StreamingLift consumes input into the stream's buffer (core bytes
// flowing into the component), returning a backpressure result with a
// deterministic retry hint if the buffer is past its high water mark.
func (a *StreamingAbi) StreamingLift(handle StreamHandle, now time.Time, input []byte) (StreamingLiftResult, error) {
	ctx, err := a.lookup(handle)
	if err != nil {
		return StreamingLiftResult{}, err
	}
	if ctx.backpressure.Active {
		slack := len(ctx.buffer) - ctx.backpressure.lowWaterMark
		return StreamingLiftResult{
			Result:       ResultBackpressure,
			RetryAfterMs: retryAfterMs(slack, ctx.throughput.bytesPerMs(now)),
		}, nil
	}

	take := len(input)
	if avail := ctx.backpressure.AvailableCapacity; take > avail {
		take = avail
	}
	ctx.buffer = append(ctx.buffer, input[:take]...)
	ctx.bytesProcessed += uint64(take)
	ctx.throughput.record(now, take)
	ctx.backpressure.update(len(ctx.buffer))

	return StreamingLiftResult{
		Result:         ResultSuccess,
		BytesConsumed:  take,
		NeedsMoreInput: take < len(input),
	}, nil
}

// StreamingLower copies values out as core bytes (component values
// flowing out to core bytes), counting them toward the stream's
// throughput. It does not consume the stream's buffer, so it never
// lowers buffer occupancy or releases backpressure that StreamingLift
// armed.
func (a *StreamingAbi) StreamingLower(handle StreamHandle, now time.Time, values []byte) (StreamingLowerResult, error) {
	ctx, err := a.lookup(handle)
	if err != nil {
		return StreamingLowerResult{}, err
	}
	if ctx.backpressure.Active {
		slack := len(ctx.buffer) - ctx.backpressure.lowWaterMark
		return StreamingLowerResult{
			Result:       ResultBackpressure,
			RetryAfterMs: retryAfterMs(slack, ctx.throughput.bytesPerMs(now)),
		}, nil
	}

	out := make([]byte, len(values))
	copy(out, values)
	ctx.bytesProcessed += uint64(len(values))
	ctx.throughput.record(now, len(values))

	return StreamingLowerResult{Result: ResultSuccess, Bytes: out}, nil
}

// CloseStream releases a stream's buffer.
func (a *StreamingAbi) CloseStream(handle StreamHandle) error {
	if _, err := a.lookup(handle); err != nil {
		return err
	}
	delete(a.streams, handle)
	return nil
}

// StreamStats reports one stream's cumulative counters.
type StreamStats struct {
	BytesProcessed     uint64
	BufferSize         int
	BackpressureActive bool
	BufferUsagePercent uint8
}

// Stats returns handle's current counters.
func (a *StreamingAbi) Stats(handle StreamHandle) (StreamStats, error) {
	ctx, err := a.lookup(handle)
	if err != nil {
		return StreamStats{}, err
	}
	return StreamStats{
		BytesProcessed:     ctx.bytesProcessed,
		BufferSize:         len(ctx.buffer),
		BackpressureActive: ctx.backpressure.Active,
		BufferUsagePercent: ctx.backpressure.BufferUsagePercent,
	}, nil
}
