// Package wrtlog is the structured logging facade used by every WRT
// package. It wraps github.com/joeycumines/logiface's generic Logger so the
// rest of the runtime logs against a small fixed vocabulary (level plus
// key/value fields) while the wire format stays swappable: stumpy for an
// embedded target, zerolog for a hosted one.
//
// Safety-violation and verification-failure lines are the one place this
// package applies its own policy on top of logiface: they are rate-limited
// per ASIL level with github.com/joeycumines/go-catrate, so a violation
// cascade at ASIL C/D cannot itself become a logging-induced denial of
// service. The protective action the caller is taking (recording the
// violation, failing closed) is never throttled — only the log line is.
package wrtlog

import (
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	izerolog "github.com/joeycumines/izerolog"
	"github.com/joeycumines/stumpy"
	"github.com/rs/zerolog"
)

// Logger is the facade every WRT package logs through. E is the concrete
// logiface event type bound at construction (stumpy's *stumpy.Event or
// izerolog's *izerolog.Event); callers outside this package interact with
// the non-generic Logger returned by NewEmbedded/NewHosted.
type Logger struct {
	l *logiface.Logger[logiface.Event]

	violations *catrate.Limiter
}

// violationCategory keys the rate limiter by ASIL level plus event kind, so
// a burst of ASIL-D memory-corruption violations doesn't also starve
// ASIL-A log lines of their own (much larger) budget.
type violationCategory struct {
	level string
	kind  string
}

// defaultViolationRates bounds safety-violation and verification-failure
// log volume. These are log-emission rates, not the verification-sampling
// rates from package safety: a system can be sampling every operation at
// ASIL D while still only logging a handful of lines a second.
func defaultViolationRates() map[time.Duration]int {
	return map[time.Duration]int{
		time.Second: 5,
		time.Minute: 100,
	}
}

func newLogger[E logiface.Event](option logiface.Option[E]) *Logger {
	l := logiface.New(option)
	return &Logger{
		l:          l.Logger(),
		violations: catrate.NewLimiter(defaultViolationRates()),
	}
}

// NewEmbedded builds a Logger backed by stumpy, a dependency-free
// line-oriented JSON encoder suited to constrained or no_std-adjacent
// embedded targets.
func NewEmbedded(options ...stumpy.Option) *Logger {
	return newLogger(stumpy.WithStumpy(options...))
}

// NewHosted builds a Logger backed by zerolog, for hosted targets that
// want human-readable or log-aggregator-friendly output.
func NewHosted(zl zerolog.Logger) *Logger {
	return newLogger(izerolog.WithZerolog(zl))
}

// Emerg, Alert, Crit, Err, Warning, Notice, Info, Debug and Trace each
// start a log entry at the named syslog-style level, mirroring logiface's
// own vocabulary so call sites read the same regardless of backend.
func (x *Logger) Emerg() *logiface.Builder[logiface.Event]   { return x.l.Emerg() }
func (x *Logger) Alert() *logiface.Builder[logiface.Event]   { return x.l.Alert() }
func (x *Logger) Crit() *logiface.Builder[logiface.Event]    { return x.l.Crit() }
func (x *Logger) Err() *logiface.Builder[logiface.Event]     { return x.l.Err() }
func (x *Logger) Warning() *logiface.Builder[logiface.Event] { return x.l.Warning() }
func (x *Logger) Notice() *logiface.Builder[logiface.Event]  { return x.l.Notice() }
func (x *Logger) Info() *logiface.Builder[logiface.Event]    { return x.l.Info() }
func (x *Logger) Debug() *logiface.Builder[logiface.Event]   { return x.l.Debug() }
func (x *Logger) Trace() *logiface.Builder[logiface.Event]   { return x.l.Trace() }

// ViolationKind names the event being reported through LogViolation, for
// use as part of the rate-limiter category (so e.g. memory-corruption
// reports don't starve plain threshold violations of their own budget).
type ViolationKind string

const (
	ViolationThreshold        ViolationKind = "threshold"
	ViolationVerificationFail ViolationKind = "verification-failed"
	ViolationMemoryCorruption ViolationKind = "memory-corruption"
)

// LogViolation emits a safety-violation line at a level derived from asilLevel
// (Emerg at ASIL D down to Warning at ASIL A, and Notice at QM or an
// unrecognized level), subject to the category's rate
// limit. It returns false when the line was suppressed by the limiter,
// which callers may use for their own diagnostics but must never treat as
// a reason to skip the violation recording itself.
func (x *Logger) LogViolation(asilLevel string, kind ViolationKind, operation, message string) bool {
	if _, ok := x.violations.Allow(violationCategory{level: asilLevel, kind: string(kind)}); !ok {
		return false
	}
	b := x.builderForASIL(asilLevel)
	b.Str("operation", operation).Str("kind", string(kind)).Log(message)
	return true
}

func (x *Logger) builderForASIL(asilLevel string) *logiface.Builder[logiface.Event] {
	switch asilLevel {
	case "ASIL-D":
		return x.Emerg()
	case "ASIL-C":
		return x.Crit()
	case "ASIL-B":
		return x.Err()
	case "ASIL-A":
		return x.Warning()
	default:
		return x.Notice()
	}
}
