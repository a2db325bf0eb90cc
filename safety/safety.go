// Package safety implements the ASIL-aware guard rails every other WRT
// package builds on: a compile-time/runtime Automotive Safety Integrity
// Level, violation/operation counters, a scoped Guard for bracketing an
// operation, and a checksum-verified memory allocation wrapper.
//
// Grounded on original_source/wrt-foundation/src/safety_system.rs. The one
// structural departure from that source is Guard: Rust's Drop runs
// unconditionally at scope exit, so a panicking thread is detected via
// std::thread::panicking(); Go has no destructor, so callers must
// `defer guard.Close()`, and Close uses recover() to detect an in-flight
// panic in the same spot Drop would have seen one.
package safety

import (
	"sync/atomic"

	"github.com/pulseengine/wrt-sub014/wrterr"
	"github.com/pulseengine/wrt-sub014/wrtlog"
)

// AsilLevel is an Automotive Safety Integrity Level, ordered QM < A < B < C
// < D per ISO 26262.
type AsilLevel uint8

const (
	QM AsilLevel = iota
	AsilA
	AsilB
	AsilC
	AsilD
)

func (l AsilLevel) String() string {
	switch l {
	case QM:
		return "QM"
	case AsilA:
		return "ASIL-A"
	case AsilB:
		return "ASIL-B"
	case AsilC:
		return "ASIL-C"
	case AsilD:
		return "ASIL-D"
	default:
		return "ASIL-D"
	}
}

// RequiresMemoryProtection reports whether this level requires hardware or
// software memory protection (MPU/MMU-backed isolation).
func (l AsilLevel) RequiresMemoryProtection() bool { return l >= AsilC }

// RequiresRuntimeVerification reports whether this level requires periodic
// runtime self-checks, not just design-time verification.
func (l AsilLevel) RequiresRuntimeVerification() bool { return l >= AsilB }

// RequiresCFI reports whether this level requires control-flow integrity
// enforcement.
func (l AsilLevel) RequiresCFI() bool { return l >= AsilC }

// RequiresRedundancy reports whether this level requires redundant
// execution or voting.
func (l AsilLevel) RequiresRedundancy() bool { return l == AsilD }

// VerificationFrequency is the number of operations between mandatory
// verification passes: Context.ShouldVerify reports true on every Nth
// operation, and Guard.VerifyIfRequired then runs its verifier. Zero at QM
// means "never".
func (l AsilLevel) VerificationFrequency() uint64 {
	switch l {
	case AsilA:
		return 1000
	case AsilB:
		return 100
	case AsilC:
		return 10
	case AsilD:
		return 1
	default:
		return 0
	}
}

// MaxErrorRate is the maximum tolerated violations/operations ratio before
// Context.IsSafe reports false.
func (l AsilLevel) MaxErrorRate() float64 {
	switch l {
	case AsilA:
		return 0.1
	case AsilB:
		return 0.01
	case AsilC:
		return 0.001
	case AsilD:
		return 0.0001
	default:
		return 1.0
	}
}

func clampAsil(v uint32) AsilLevel {
	if v > uint32(AsilD) {
		return AsilD
	}
	return AsilLevel(v)
}

// Context tracks the ASIL level and running violation/operation counters
// for one safety-relevant component. The zero value is not usable; build
// one with NewContext.
type Context struct {
	compileTimeASIL AsilLevel
	runtimeASIL     atomic.Uint32
	violations      atomic.Uint64
	operations      atomic.Uint64

	logger *wrtlog.Logger
}

// NewContext creates a Context at the given compile-time ASIL. The runtime
// ASIL starts equal to the compile-time one; it may only be raised, never
// lowered, via UpgradeRuntime.
func NewContext(compileTime AsilLevel, logger *wrtlog.Logger) *Context {
	c := &Context{compileTimeASIL: compileTime, logger: logger}
	c.runtimeASIL.Store(uint32(compileTime))
	return c
}

// EffectiveASIL is the higher of the compile-time and current runtime
// level; an out-of-range stored value is treated as ASIL-D (fail closed,
// never silently downgraded).
func (c *Context) EffectiveASIL() AsilLevel {
	runtime := clampAsil(c.runtimeASIL.Load())
	if runtime > c.compileTimeASIL {
		return runtime
	}
	return c.compileTimeASIL
}

// UpgradeRuntime raises the runtime ASIL. It is an error to request a level
// below the compile-time floor; the runtime level can only ever increase
// relative to where it started.
func (c *Context) UpgradeRuntime(level AsilLevel) error {
	if level < c.compileTimeASIL {
		return wrterr.New(wrterr.CategorySafety, wrterr.CodeSafetyViolation,
			"runtime ASIL may not drop below the compile-time floor")
	}
	for {
		cur := c.runtimeASIL.Load()
		if level <= clampAsil(cur) {
			return nil
		}
		if c.runtimeASIL.CompareAndSwap(cur, uint32(level)) {
			return nil
		}
	}
}

// RecordViolation increments the violation counter and, subject to rate
// limiting, logs at a severity derived from the effective ASIL. The
// counter itself is never rate-limited, only the log line.
func (c *Context) RecordViolation(operation, message string) {
	c.violations.Add(1)
	if c.logger != nil {
		c.logger.LogViolation(c.EffectiveASIL().String(), wrtlog.ViolationThreshold, operation, message)
	}
}

// ViolationCount returns the total recorded violations.
func (c *Context) ViolationCount() uint64 { return c.violations.Load() }

// OperationCount returns the total operations counted via ShouldVerify.
func (c *Context) OperationCount() uint64 { return c.operations.Load() }

// ShouldVerify increments the operation counter and reports whether this
// operation falls on a verification boundary for the effective ASIL
// (always false at QM).
func (c *Context) ShouldVerify() bool {
	n := c.operations.Add(1)
	freq := c.EffectiveASIL().VerificationFrequency()
	if freq == 0 {
		return false
	}
	return n%freq == 0
}

// Reset zeroes both counters. Intended for test fixtures and for a
// supervisor restarting a component after a handled failure.
func (c *Context) Reset() {
	c.violations.Store(0)
	c.operations.Store(0)
}

// IsSafe reports whether the observed violation rate is within
// EffectiveASIL's MaxErrorRate. A Context with zero recorded operations is
// considered safe.
func (c *Context) IsSafe() bool {
	ops := c.operations.Load()
	if ops == 0 {
		return true
	}
	rate := float64(c.violations.Load()) / float64(ops)
	return rate <= c.EffectiveASIL().MaxErrorRate()
}

// Guard brackets one safety-relevant operation. Callers must create one
// with Context.Guard and immediately `defer guard.Close()`; Close records a
// violation if the guard was never explicitly Completed, or if it detects
// an in-flight panic via recover.
type Guard struct {
	context       *Context
	operationName string
	completed     bool
	verified      bool
}

// Guard opens a new Guard for operation, first checking that the context
// is still within its safe error-rate envelope; a context that has already
// exceeded its budget fails closed, recording another violation and
// refusing to start the operation.
func (c *Context) Guard(operation string) (*Guard, error) {
	if !c.IsSafe() {
		c.RecordViolation(operation, "refused: context already exceeds max error rate")
		return nil, wrterr.New(wrterr.CategorySafety, wrterr.CodeSafetyViolation,
			"context exceeds max error rate, refusing new operation")
	}
	return &Guard{context: c, operationName: operation}, nil
}

// VerifyIfRequired calls verifier only when Context.ShouldVerify reports
// this operation falls on a verification boundary. A verifier that returns
// an error is recorded as a violation and the error is propagated; a
// verifier that is skipped (not on a boundary) returns nil without being
// called at all.
func (g *Guard) VerifyIfRequired(verifier func() error) error {
	if !g.context.ShouldVerify() {
		return nil
	}
	g.verified = true
	if err := verifier(); err != nil {
		g.context.RecordViolation(g.operationName, "verification failed: "+err.Error())
		if g.context.logger != nil {
			g.context.logger.LogViolation(g.context.EffectiveASIL().String(), wrtlog.ViolationVerificationFail, g.operationName, err.Error())
		}
		return wrterr.Wrap(wrterr.CategorySafety, wrterr.CodeVerificationFailed, g.operationName, err)
	}
	return nil
}

// Complete marks the guard's operation as having finished without
// incident. Close is then a no-op beyond panic detection.
func (g *Guard) Complete() {
	g.completed = true
}

// Close must be deferred immediately after Guard returns. It records a
// violation if the operation was never Completed, or if Close observes an
// in-flight panic via recover — mirroring SafetyGuard's Drop, which records
// a violation whenever the thread is panicking.
func (g *Guard) Close() {
	if r := recover(); r != nil {
		g.context.RecordViolation(g.operationName, "operation panicked")
		panic(r)
	}
	if !g.completed {
		g.context.RecordViolation(g.operationName, "guard closed without Complete")
	}
}

// SafeAllocation wraps a byte slice with a checksum that is only verified
// or refreshed when the owning Context's effective ASIL requires memory
// protection (ASIL-C and ASIL-D) — at lower levels the checks are a no-op,
// matching the source's "verification only where required" policy.
type SafeAllocation struct {
	data     []byte
	context  *Context
	checksum uint32
}

// NewSafeAllocation wraps data and computes its initial checksum.
func NewSafeAllocation(data []byte, context *Context) *SafeAllocation {
	return &SafeAllocation{data: data, context: context, checksum: checksumFold(data)}
}

// checksumFold is the shared fold used by both safety and bounded so the
// two packages never disagree on what "the checksum" of a byte slice is.
func checksumFold(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}

// VerifyIntegrity recomputes the checksum and compares it against the
// stored one, but only when the context's effective ASIL requires memory
// protection; otherwise it always reports success.
func (a *SafeAllocation) VerifyIntegrity() error {
	if !a.context.EffectiveASIL().RequiresMemoryProtection() {
		return nil
	}
	if checksumFold(a.data) != a.checksum {
		a.context.RecordViolation("verify-integrity", "checksum mismatch")
		if a.context.logger != nil {
			a.context.logger.LogViolation(a.context.EffectiveASIL().String(), wrtlog.ViolationMemoryCorruption, "verify-integrity", "checksum mismatch")
		}
		return wrterr.New(wrterr.CategoryMemory, wrterr.CodeMemoryCorruptionDetected, "safe allocation checksum mismatch")
	}
	return nil
}

// Data returns the wrapped slice read-only, verifying integrity first.
func (a *SafeAllocation) Data() ([]byte, error) {
	if err := a.VerifyIntegrity(); err != nil {
		return nil, err
	}
	return a.data, nil
}

// DataMut returns the wrapped slice for mutation, verifying integrity
// first (a corrupted allocation must not be handed out for further writes).
func (a *SafeAllocation) DataMut() ([]byte, error) {
	if err := a.VerifyIntegrity(); err != nil {
		return nil, err
	}
	return a.data, nil
}

// UpdateChecksum recomputes the stored checksum from the current contents
// of data. Like VerifyIntegrity, this only does real work when the
// context's effective ASIL requires memory protection.
func (a *SafeAllocation) UpdateChecksum() {
	if !a.context.EffectiveASIL().RequiresMemoryProtection() {
		return
	}
	a.checksum = checksumFold(a.data)
}
