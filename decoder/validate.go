package decoder

import (
	"github.com/pulseengine/wrt-sub014/wrterr"
)

// maxPages32 is the maximum page count for a 32-bit memory (65536 pages of
// 64KiB each = 4GiB address space).
const maxPages32 = 65536

// validateModule enforces the structural rules from spec.md §4.4, grounded
// file-for-file on original_source/wrt-decoder/src/validation.rs. level
// distinguishes Basic (structural only) from Full (adds import/export
// index coherence); both levels enforce the same hard invariants that are
// never optional (function/code count match is checked unconditionally by
// parseModule itself, before this function even runs).
func validateModule(m *Module, level ValidationLevel) error {
	if err := validateMemories(m); err != nil {
		return err
	}
	if err := validateConstExprs(m); err != nil {
		return err
	}
	if err := validateExports(m); err != nil {
		return err
	}
	if err := validateStart(m); err != nil {
		return err
	}
	if level == ValidationFull {
		if err := validateIndices(m); err != nil {
			return err
		}
	}
	return nil
}

func validateMemoryType(mt MemoryType) error {
	if mt.Shared && (mt.Limits.Max == nil || mt.Index64) {
		return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError,
			"shared memory requires a declared max and a 32-bit index type")
	}
	if !mt.Index64 {
		if mt.Limits.Min > maxPages32 {
			return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError,
				"32-bit memory min exceeds 65536 pages")
		}
		if mt.Limits.Max != nil {
			if *mt.Limits.Max > maxPages32 {
				return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError,
					"32-bit memory max exceeds 65536 pages")
			}
			if *mt.Limits.Max < mt.Limits.Min {
				return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError,
					"memory max must be >= min")
			}
		}
	} else if mt.Limits.Max != nil && *mt.Limits.Max < mt.Limits.Min {
		return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "memory max must be >= min")
	}
	return nil
}

func validateMemories(m *Module) error {
	count := len(m.Memories)
	for _, imp := range m.Imports {
		if imp.Kind == ImportMemory {
			count++
			if err := validateMemoryType(imp.Memory); err != nil {
				return err
			}
		}
	}
	for _, mt := range m.Memories {
		if err := validateMemoryType(mt); err != nil {
			return err
		}
	}
	// Wasm 1.0 permits at most one memory; the decoder accepts up to 16
	// (the multi-memory cap, which package memory's Context also enforces
	// on memory indices) and does not check whether multi-memory mode was
	// enabled, since it has no notion of the deployment config.
	if count > 16 {
		return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "module declares more than 16 memories")
	}
	return nil
}

// ValidateMemoryAlignment checks that align (as log2 of the access byte
// width) does not exceed the natural alignment of accessSize bytes.
func ValidateMemoryAlignment(align uint32, accessSize uint32) error {
	var natural uint32
	switch accessSize {
	case 1:
		natural = 0
	case 2:
		natural = 1
	case 4:
		natural = 2
	case 8:
		natural = 3
	case 16:
		natural = 4
	default:
		return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "unsupported memory access size")
	}
	if align > natural {
		return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "memory access alignment exceeds natural alignment")
	}
	return nil
}

func validateConstExprs(m *Module) error {
	isImmutableGlobalOfType := func(idx uint32, want ValType) bool {
		var globalCount uint32
		for _, imp := range m.Imports {
			if imp.Kind == ImportGlobal {
				if globalCount == idx {
					return !imp.Global.Mutable && imp.Global.ValType == want
				}
				globalCount++
			}
		}
		for _, g := range m.Globals {
			if globalCount == idx {
				return !g.Type.Mutable && g.Type.ValType == want
			}
			globalCount++
		}
		return false
	}

	checkExpr := func(expr ConstExpr, want ValType) error {
		switch expr.Kind {
		case ConstI32:
			if want != ValI32 {
				return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "i32.const used where a different type is expected")
			}
		case ConstI64:
			if want != ValI64 {
				return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "i64.const used where a different type is expected")
			}
		case ConstGlobalGet:
			if !isImmutableGlobalOfType(expr.GlobalIndex, want) {
				return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "global.get in constant expression must reference an immutable global of matching type")
			}
		default:
			return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "unsupported constant expression kind")
		}
		return nil
	}

	for _, g := range m.Globals {
		if err := checkExpr(g.Init, g.Type.ValType); err != nil {
			return err
		}
	}
	for _, el := range m.Elements {
		if err := checkExpr(el.Offset, ValI32); err != nil {
			return err
		}
	}
	for _, d := range m.Data {
		if !d.Active {
			continue
		}
		if err := checkExpr(d.Offset, ValI32); err != nil {
			return err
		}
	}
	return nil
}

func validateExports(m *Module) error {
	seen := make(map[string]bool, len(m.Exports))
	for _, e := range m.Exports {
		if seen[e.Name] {
			return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "duplicate export name")
		}
		seen[e.Name] = true
	}
	return nil
}

func validateStart(m *Module) error {
	if m.Start == nil {
		return nil
	}
	typeIdx, err := functionTypeIndex(m, *m.Start)
	if err != nil {
		return err
	}
	ft, err := typeAt(m, typeIdx)
	if err != nil {
		return err
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "start function must have type [] -> []")
	}
	return nil
}

func typeAt(m *Module, idx uint32) (FuncType, error) {
	if int(idx) >= len(m.Types) {
		return FuncType{}, wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "type index out of range")
	}
	return m.Types[idx], nil
}

// functionTypeIndex resolves a function index (imports counted first, as
// spec.md §4.4 requires) to its type-section index.
func functionTypeIndex(m *Module, funcIdx uint32) (uint32, error) {
	var importedFuncCount uint32
	for _, imp := range m.Imports {
		if imp.Kind == ImportFunc {
			if importedFuncCount == funcIdx {
				return imp.Index, nil
			}
			importedFuncCount++
		}
	}
	defIdx := funcIdx - importedFuncCount
	if int(defIdx) >= len(m.Functions) {
		return 0, wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "function index out of range")
	}
	return m.Functions[defIdx], nil
}

// validateIndices checks every function/type/table/memory/global index
// referenced from exports and element segments resolves to a valid slot,
// counting imports before definitions.
func validateIndices(m *Module) error {
	var importedFuncs, importedTables, importedMems, importedGlobals uint32
	for _, imp := range m.Imports {
		switch imp.Kind {
		case ImportFunc:
			importedFuncs++
		case ImportTable:
			importedTables++
		case ImportMemory:
			importedMems++
		case ImportGlobal:
			importedGlobals++
		}
	}
	totalFuncs := importedFuncs + uint32(len(m.Functions))
	totalTables := importedTables + uint32(len(m.Tables))
	totalMems := importedMems + uint32(len(m.Memories))
	totalGlobals := importedGlobals + uint32(len(m.Globals))

	for _, e := range m.Exports {
		var limit uint32
		switch e.Kind {
		case ExportFunc:
			limit = totalFuncs
		case ExportTable:
			limit = totalTables
		case ExportMemory:
			limit = totalMems
		case ExportGlobal:
			limit = totalGlobals
		}
		if e.Index >= limit {
			return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "export references an out-of-range index")
		}
	}

	for _, el := range m.Elements {
		if el.TableIndex >= totalTables {
			return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "element segment references an out-of-range table index")
		}
		for _, fi := range el.FuncIndices {
			if fi >= totalFuncs {
				return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "element segment references an out-of-range function index")
			}
		}
	}

	for _, d := range m.Data {
		if d.Active && d.MemoryIndex >= totalMems {
			return wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "data segment references an out-of-range memory index")
		}
	}

	return nil
}
