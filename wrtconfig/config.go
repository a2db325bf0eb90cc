// Package wrtconfig holds the runtime's recognized configuration
// options (spec.md §6) behind a functional-options constructor, and
// loads the xtask-facing requirements-traceability file.
//
// The functional-options pattern (Option interface, unexported options
// struct, With* constructors, a resolve function applying defaults then
// options) is grounded on
// _examples/joeycumines-go-utilpkg/eventloop/options.go's LoopOption.
package wrtconfig

import (
	"fmt"

	"github.com/pulseengine/wrt-sub014/decoder"
	"github.com/pulseengine/wrt-sub014/safety"
)

// Config is the runtime's resolved configuration, one field per option
// in spec.md §6's table.
type Config struct {
	HeapSize            uint32
	PerCrateBudget      map[string]uint32
	ValidationLevel     decoder.ValidationLevel
	AsilCompileTime     safety.AsilLevel
	MaxMemories         uint32
	MultiMemory         bool
	StrictBuiltins      bool
	BackpressureHighPct uint8
	BackpressureLowPct  uint8
	MemoryProtection    bool
}

// defaults returns the spec's documented defaults.
func defaults() Config {
	return Config{
		HeapSize:            262_144,
		PerCrateBudget:      make(map[string]uint32),
		ValidationLevel:     decoder.ValidationBasic,
		AsilCompileTime:     safety.QM,
		MaxMemories:         1,
		MultiMemory:         false,
		StrictBuiltins:      false,
		BackpressureHighPct: 80,
		BackpressureLowPct:  20,
		MemoryProtection:    false,
	}
}

// Option configures a Config.
type Option interface {
	apply(*Config) error
}

type optionFunc func(*Config) error

func (f optionFunc) apply(c *Config) error { return f(c) }

// WithHeapSize overrides the total arena byte budget.
func WithHeapSize(bytes uint32) Option {
	return optionFunc(func(c *Config) error {
		c.HeapSize = bytes
		return nil
	})
}

// WithCrateBudget overrides one named crate's sub-budget.
func WithCrateBudget(name string, bytes uint32) Option {
	return optionFunc(func(c *Config) error {
		c.PerCrateBudget[name] = bytes
		return nil
	})
}

// WithValidationLevel sets the decoder's structural validation depth.
func WithValidationLevel(level decoder.ValidationLevel) Option {
	return optionFunc(func(c *Config) error {
		c.ValidationLevel = level
		return nil
	})
}

// WithAsilCompileTime sets the floor ASIL level for this build; safety.Context
// rejects any runtime downgrade attempt below it.
func WithAsilCompileTime(level safety.AsilLevel) Option {
	return optionFunc(func(c *Config) error {
		c.AsilCompileTime = level
		return nil
	})
}

// WithMaxMemories sets the memory index cap, 1-16.
func WithMaxMemories(n uint32) Option {
	return optionFunc(func(c *Config) error {
		if n < 1 || n > 16 {
			return fmt.Errorf("wrtconfig: max-memories must be in [1, 16], got %d", n)
		}
		c.MaxMemories = n
		return nil
	})
}

// WithMultiMemory enables memory indices greater than 0.
func WithMultiMemory(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.MultiMemory = enabled
		return nil
	})
}

// WithStrictBuiltins fails the build if a required builtin has no
// implementation or fallback.
func WithStrictBuiltins(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.StrictBuiltins = enabled
		return nil
	})
}

// WithBackpressureThresholds sets the streaming ABI's high/low water
// marks, as percentages of configured buffer capacity.
func WithBackpressureThresholds(highPct, lowPct uint8) Option {
	return optionFunc(func(c *Config) error {
		if lowPct >= highPct {
			return fmt.Errorf("wrtconfig: backpressure low-water-pct (%d) must be below high-water-pct (%d)", lowPct, highPct)
		}
		c.BackpressureHighPct = highPct
		c.BackpressureLowPct = lowPct
		return nil
	})
}

// WithMemoryProtection sets Config.MemoryProtection. safety.SafeAllocation
// does not read this field: it decides checksumming from the effective ASIL
// level alone, so the option does not turn checksumming on below that.
func WithMemoryProtection(enabled bool) Option {
	return optionFunc(func(c *Config) error {
		c.MemoryProtection = enabled
		return nil
	})
}

// Resolve applies defaults then opts, in order, stopping at the first
// error.
func Resolve(opts ...Option) (*Config, error) {
	cfg := defaults()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.AsilCompileTime.RequiresMemoryProtection() {
		cfg.MemoryProtection = true
	}
	return &cfg, nil
}
