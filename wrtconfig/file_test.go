package wrtconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulseengine/wrt-sub014/decoder"
	"github.com/pulseengine/wrt-sub014/safety"
)

const sampleConfigToml = `
heap-size = 1048576
validation-level = "full"
asil-compile-time = "ASIL-B"
max-memories = 4
multi-memory = true

[crate-budget]
wrt-runtime = 4096

[backpressure]
high-water-pct = 90
low-water-pct = 10
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wrt.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesFileValues(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleConfigToml))
	require.NoError(t, err)

	assert.Equal(t, uint32(1048576), cfg.HeapSize)
	assert.Equal(t, decoder.ValidationFull, cfg.ValidationLevel)
	assert.Equal(t, safety.AsilB, cfg.AsilCompileTime)
	assert.Equal(t, uint32(4), cfg.MaxMemories)
	assert.True(t, cfg.MultiMemory)
	assert.Equal(t, uint32(4096), cfg.PerCrateBudget["wrt-runtime"])
	assert.Equal(t, uint8(90), cfg.BackpressureHighPct)
	assert.Equal(t, uint8(10), cfg.BackpressureLowPct)
}

func TestLoadFallsBackToDefaultsForUnsetFields(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `max-memories = 2`))
	require.NoError(t, err)

	defaultCfg := defaults()
	assert.Equal(t, defaultCfg.HeapSize, cfg.HeapSize)
	assert.Equal(t, defaultCfg.ValidationLevel, cfg.ValidationLevel)
	assert.Equal(t, uint32(2), cfg.MaxMemories)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadAsilCStillForcesMemoryProtection(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, `asil-compile-time = "ASIL-C"`))
	require.NoError(t, err)
	assert.True(t, cfg.MemoryProtection)
}
