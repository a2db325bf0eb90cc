package wrtconfig

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/pulseengine/wrt-sub014/decoder"
)

// fileBackpressure is the `[backpressure]` sub-table of a config file.
type fileBackpressure struct {
	HighWaterPct uint8 `toml:"high-water-pct"`
	LowWaterPct  uint8 `toml:"low-water-pct"`
}

// fileConfig is the on-disk shape of a runtime config TOML file: flat
// spec.md §6 keys become nested tables where the table names a related
// group (today, just `[backpressure]`).
type fileConfig struct {
	HeapSize         uint32            `toml:"heap-size"`
	CrateBudget      map[string]uint32 `toml:"crate-budget"`
	ValidationLevel  string            `toml:"validation-level"`
	AsilCompileTime  string            `toml:"asil-compile-time"`
	MaxMemories      uint32            `toml:"max-memories"`
	MultiMemory      bool              `toml:"multi-memory"`
	StrictBuiltins   bool              `toml:"strict-builtins"`
	Backpressure     fileBackpressure  `toml:"backpressure"`
	MemoryProtection bool              `toml:"memory-protection"`
}

func validationLevelFromString(s string) decoder.ValidationLevel {
	switch s {
	case "none", "None":
		return decoder.ValidationNone
	case "full", "Full":
		return decoder.ValidationFull
	default:
		return decoder.ValidationBasic
	}
}

// Load reads a runtime config TOML file (spec.md §6's option table) and
// resolves it into a Config, applying the same defaults and validation
// Resolve applies to programmatic Option values. Fields absent from the
// file keep Resolve's documented defaults, since toml.Unmarshal leaves
// unset fields at fileConfig's zero value and every zero value below is
// overridden by an explicit Option only when the file actually set it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	fc := fileConfig{CrateBudget: make(map[string]uint32)}
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}

	var opts []Option
	if fc.HeapSize != 0 {
		opts = append(opts, WithHeapSize(fc.HeapSize))
	}
	for name, budget := range fc.CrateBudget {
		opts = append(opts, WithCrateBudget(name, budget))
	}
	if fc.ValidationLevel != "" {
		opts = append(opts, WithValidationLevel(validationLevelFromString(fc.ValidationLevel)))
	}
	if fc.AsilCompileTime != "" {
		opts = append(opts, WithAsilCompileTime(asilFromString(fc.AsilCompileTime)))
	}
	if fc.MaxMemories != 0 {
		opts = append(opts, WithMaxMemories(fc.MaxMemories))
	}
	if fc.MultiMemory {
		opts = append(opts, WithMultiMemory(true))
	}
	if fc.StrictBuiltins {
		opts = append(opts, WithStrictBuiltins(true))
	}
	if fc.Backpressure.HighWaterPct != 0 || fc.Backpressure.LowWaterPct != 0 {
		high, low := fc.Backpressure.HighWaterPct, fc.Backpressure.LowWaterPct
		if high == 0 {
			high = defaults().BackpressureHighPct
		}
		if low == 0 {
			low = defaults().BackpressureLowPct
		}
		opts = append(opts, WithBackpressureThresholds(high, low))
	}
	if fc.MemoryProtection {
		opts = append(opts, WithMemoryProtection(true))
	}

	return Resolve(opts...)
}
