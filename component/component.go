// Package component implements the Component Model loader, canonical
// ABI option set, and core-module adaptation layer that sits above
// package decoder's shallow component recognition.
package component

import (
	"github.com/pulseengine/wrt-sub014/decoder"
	"github.com/pulseengine/wrt-sub014/wrterr"
)

// StringEncoding is the canonical ABI's string representation, chosen
// per-adapter via CanonOptions.
type StringEncoding uint8

const (
	UTF8 StringEncoding = iota
	UTF16LE
	UTF16BE
	Latin1
)

func (e StringEncoding) String() string {
	switch e {
	case UTF8:
		return "utf8"
	case UTF16LE:
		return "utf16le"
	case UTF16BE:
		return "utf16be"
	case Latin1:
		return "latin1"
	default:
		return "unknown"
	}
}

// FuncIndex is a core-module function index, used by CanonOptions to
// name the realloc/post-return functions a lift/lower pair may call.
type FuncIndex uint32

// CanonOptions are the canonical ABI options attached to one lift or
// lower adapter, mirroring the `canon lift`/`canon lower` instruction's
// optional clauses.
type CanonOptions struct {
	StringEncoding StringEncoding
	MemoryIndex    uint32
	Realloc        *FuncIndex
	PostReturn     *FuncIndex
}

// AdaptMode is the direction a FunctionAdapter converts values.
type AdaptMode uint8

const (
	Direct AdaptMode = iota
	Lift
	Lower
	Bidirectional
)

func (m AdaptMode) String() string {
	switch m {
	case Direct:
		return "direct"
	case Lift:
		return "lift"
	case Lower:
		return "lower"
	case Bidirectional:
		return "bidirectional"
	default:
		return "unknown"
	}
}

// CoreValType is a WebAssembly core value type, distinct from the
// component-level ValType the canonical ABI lifts to.
type CoreValType uint8

const (
	CoreI32 CoreValType = iota
	CoreI64
	CoreF32
	CoreF64
	CoreV128
	CoreFuncRef
	CoreExternRef
)

// CoreFunctionSignature is a core function's parameter/result types.
type CoreFunctionSignature struct {
	Params  []CoreValType
	Results []CoreValType
}

// FunctionAdapter binds one core-module function to its component
// signature and adaptation mode.
type FunctionAdapter struct {
	CoreIndex          uint32
	ComponentSignature decoder.FuncType
	CoreSignature      CoreFunctionSignature
	Mode               AdaptMode
	Options            CanonOptions
}

// MemoryAdapter re-exposes one core memory under the component.
type MemoryAdapter struct {
	CoreIndex uint32
	Limits    decoder.Limits
	Shared    bool
}

// TableAdapter re-exposes one core table under the component.
type TableAdapter struct {
	CoreIndex   uint32
	ElementType CoreValType
	Limits      decoder.Limits
}

// GlobalAdapter re-exposes one core global under the component.
type GlobalAdapter struct {
	CoreIndex  uint32
	GlobalType CoreValType
	Mutable    bool
}

// CoreModuleAdapter wraps one core WebAssembly module for use inside a
// component, exposing its functions/memories/tables/globals through
// the canonical ABI.
type CoreModuleAdapter struct {
	Name      string
	Functions []FunctionAdapter
	Memories  []MemoryAdapter
	Tables    []TableAdapter
	Globals   []GlobalAdapter
}

// NewCoreModuleAdapter creates an empty adapter for the named module.
func NewCoreModuleAdapter(name string) *CoreModuleAdapter {
	return &CoreModuleAdapter{Name: name}
}

func (a *CoreModuleAdapter) AddFunction(fn FunctionAdapter) { a.Functions = append(a.Functions, fn) }
func (a *CoreModuleAdapter) AddMemory(m MemoryAdapter)      { a.Memories = append(a.Memories, m) }
func (a *CoreModuleAdapter) AddTable(t TableAdapter)        { a.Tables = append(a.Tables, t) }
func (a *CoreModuleAdapter) AddGlobal(g GlobalAdapter)      { a.Globals = append(a.Globals, g) }

// Component is a loaded Component Model binary: its import/export
// surface plus the adapters binding it to whatever core modules it
// instantiates.
type Component struct {
	Name      string
	Imports   []decoder.Import
	Exports   []decoder.Export
	Adapters  []*CoreModuleAdapter
	Resources []ResourceTypeDecl
}

// ResourceTypeDecl names a resource type this component declares,
// ahead of any concrete resource.Table handle being issued for it.
type ResourceTypeDecl struct {
	Name string
}

// Loader builds a Component from a decoder.WasmInfo that wraps a
// component binary.
type Loader struct{}

// NewLoader creates a Loader. It carries no state of its own; it
// exists as a type so future canonical-ABI configuration (e.g. a
// shared resource.Table) can be threaded through its methods without
// an API break.
func NewLoader() *Loader { return &Loader{} }

// Load builds a Component from the shallow component info the decoder
// already recognized, parsing RawSections[sectionImport] and
// RawSections[sectionExport] into Imports/Exports. Deeper section kinds
// (core module, core instance, alias, type, canon, start) are
// intentionally not parsed here: original_source's own component.rs
// stages those incrementally across multiple passes, and this loader
// mirrors only the shape SPEC_FULL.md names for a loaded Component
// (imports, exports, plus adapters/resources a Builder attaches once the
// core modules a component instantiates are known), not a full
// binary-format decoder for nested core modules.
func (l *Loader) Load(info *decoder.WasmInfo) (*Component, error) {
	ci, err := info.RequireComponentInfo()
	if err != nil {
		return nil, err
	}
	if ci == nil {
		return nil, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "component: missing component info")
	}

	c := &Component{}
	if raw, ok := ci.RawSections[sectionImport]; ok {
		imports, err := decodeImportSection(raw)
		if err != nil {
			return nil, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "component: bad import section", err)
		}
		c.Imports = imports
	}
	if raw, ok := ci.RawSections[sectionExport]; ok {
		exports, err := decodeExportSection(raw)
		if err != nil {
			return nil, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "component: bad export section", err)
		}
		c.Exports = exports
	}
	return c, nil
}
