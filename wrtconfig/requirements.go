package wrtconfig

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/pulseengine/wrt-sub014/safety"
)

// RequirementsMeta is the `[meta]` table of a requirements-traceability
// file (spec.md §6).
type RequirementsMeta struct {
	Project       string `toml:"project"`
	Version       string `toml:"version"`
	SafetyStandard string `toml:"safety_standard"`
}

// Requirement is one `[[requirement]]` table entry.
type Requirement struct {
	ID              string   `toml:"id"`
	Title           string   `toml:"title"`
	Description     string   `toml:"description"`
	Type            string   `toml:"type"`
	AsilLevel       string   `toml:"asil_level"`
	Implementations []string `toml:"implementations"`
	Tests           []string `toml:"tests"`
	Documentation   []string `toml:"documentation"`
}

// Requirements is the parsed form of a requirements-traceability TOML
// file, ingested by the xtask collaborator (not the runtime itself) to
// cross-check implementations and tests against ASIL-tagged requirements.
type Requirements struct {
	Meta        RequirementsMeta `toml:"meta"`
	Requirement []Requirement    `toml:"requirement"`
}

// ParseRequirements decodes a requirements-traceability TOML file.
func ParseRequirements(path string) (*Requirements, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reqs Requirements
	if err := toml.Unmarshal(data, &reqs); err != nil {
		return nil, err
	}
	return &reqs, nil
}

// asilFromString maps a requirement's asil_level string to safety.AsilLevel,
// defaulting to QM for an unrecognized or empty value rather than failing
// the parse — traceability metadata should not block a build over a typo.
func asilFromString(s string) safety.AsilLevel {
	switch s {
	case "A", "ASIL-A", "AsilA":
		return safety.AsilA
	case "B", "ASIL-B", "AsilB":
		return safety.AsilB
	case "C", "ASIL-C", "AsilC":
		return safety.AsilC
	case "D", "ASIL-D", "AsilD":
		return safety.AsilD
	default:
		return safety.QM
	}
}

// AsilLevelValue returns this requirement's ASIL level, parsed from its
// asil_level string field.
func (r Requirement) AsilLevelValue() safety.AsilLevel { return asilFromString(r.AsilLevel) }
