// Package decoder implements the streaming section parser and structural
// validator for both core WebAssembly modules and Component Model
// binaries, producing a single discriminated WasmInfo result consumed by
// downstream packages (component.Loader in particular) without
// re-parsing.
//
// Grounded on original_source/wrt-decoder/src/unified_loader.rs (the
// WasmInfo shape) and validation.rs (the structural rules enforced by
// validateModule).
package decoder

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pulseengine/wrt-sub014/wrterr"
)

// ValidationLevel selects how much structural checking Load performs.
type ValidationLevel uint8

const (
	ValidationNone ValidationLevel = iota
	ValidationBasic
	ValidationFull
)

var coreMagic = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"
var coreVersion = [4]byte{0x01, 0x00, 0x00, 0x00}

// componentVersion is the Component Model's distinguishing version word,
// sharing the same "\0asm" magic as core modules but a different version
// (0x0d in the low bytes, and a layer field of 1 in bytes 2-3 where core
// modules carry 0).
var componentVersion = [4]byte{0x0d, 0x00, 0x01, 0x00}

// SectionID identifies a core module section. IDs above SectionDataCount
// are not core sections; parseModule rejects them as malformed. A
// Component Model binary is recognised by its header version word, not by
// its section ids.
type SectionID uint8

const (
	SectionCustom SectionID = iota
	SectionType
	SectionImport
	SectionFunction
	SectionTable
	SectionMemory
	SectionGlobal
	SectionExport
	SectionStart
	SectionElement
	SectionCode
	SectionData
	SectionDataCount
)

// ValType is a WebAssembly value type.
type ValType uint8

const (
	ValI32 ValType = iota
	ValI64
	ValF32
	ValF64
	ValV128
	ValFuncRef
	ValExternRef
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Limits bounds a table or memory's size in its natural unit (pages for
// memories, elements for tables).
type Limits struct {
	Min uint32
	Max *uint32
}

// MemoryType describes one memory import or definition.
type MemoryType struct {
	Limits  Limits
	Index64 bool
	Shared  bool
}

// TableType describes one table import or definition.
type TableType struct {
	ElemType ValType
	Limits   Limits
}

// GlobalType describes one global import or definition.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// ImportKind discriminates what an Import refers to.
type ImportKind uint8

const (
	ImportFunc ImportKind = iota
	ImportTable
	ImportMemory
	ImportGlobal
)

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	Kind   ImportKind
	Index  uint32 // index into Types (ImportFunc), or the inline type otherwise encoded by caller
	Table  TableType
	Memory MemoryType
	Global GlobalType
}

// ExportKind discriminates what an Export refers to.
type ExportKind uint8

const (
	ExportFunc ExportKind = iota
	ExportTable
	ExportMemory
	ExportGlobal
)

// Export is one entry of the export section.
type Export struct {
	Name  string
	Kind  ExportKind
	Index uint32
}

// ConstExprKind discriminates the three constant-expression forms the
// decoder accepts in global and data initializers.
type ConstExprKind uint8

const (
	ConstI32 ConstExprKind = iota
	ConstI64
	ConstGlobalGet
)

// ConstExpr is a constant expression as permitted in a global initializer
// or an active element/data segment's offset.
type ConstExpr struct {
	Kind        ConstExprKind
	I32         int32
	I64         int64
	GlobalIndex uint32
}

// Global is one defined global: its type and initializer.
type Global struct {
	Type GlobalType
	Init ConstExpr
}

// ElementSegment is one entry of the element section. Only the active-
// segment shape is modeled (offset expression into a table), matching
// what the validator in original_source actually checks.
type ElementSegment struct {
	TableIndex uint32
	Offset     ConstExpr
	FuncIndices []uint32
}

// DataSegment is one entry of the data section. Active is false for
// passive segments (kind 1), which carry no memory index or offset.
type DataSegment struct {
	Active      bool
	MemoryIndex uint32
	Offset      ConstExpr
	Bytes       []byte
}

// CodeBody is one defined function's locals declaration plus its raw
// instruction bytes; instruction-level decoding belongs to the execution
// substrate, not this package.
type CodeBody struct {
	Locals []ValType
	Code   []byte
}

// Module is a validated core WebAssembly module.
type Module struct {
	Types      []FuncType
	Imports    []Import
	Functions  []uint32 // type index per defined function, parallel to Code
	Tables     []TableType
	Memories   []MemoryType
	Globals    []Global
	Exports    []Export
	Start      *uint32
	Elements   []ElementSegment
	Code       []CodeBody
	Data       []DataSegment
	DataCount  *uint32
	Customs    map[string][]byte
}

// ComponentInfo is the shallow result of recognizing a Component Model
// binary. Deep component semantics (adapters, canonical ABI options) are
// the responsibility of package component's Loader, which takes the raw
// section bytes captured here and builds a component.Component.
type ComponentInfo struct {
	RawSections map[uint8][]byte
}

// Format discriminates the two binary kinds WasmInfo may carry.
type Format uint8

const (
	FormatModule Format = iota
	FormatComponent
)

// WasmInfo is the unified result of Load, carrying exactly one of Module
// or Component depending on Format.
type WasmInfo struct {
	Format    Format
	Module    *Module
	Component *ComponentInfo
}

// IsCoreModule reports whether this WasmInfo wraps a core module.
func (w *WasmInfo) IsCoreModule() bool { return w.Format == FormatModule }

// IsComponent reports whether this WasmInfo wraps a component.
func (w *WasmInfo) IsComponent() bool { return w.Format == FormatComponent }

// RequireModuleInfo returns the wrapped Module, or a clear type-mismatch
// error rather than letting a caller panic on a failed type assertion.
func (w *WasmInfo) RequireModuleInfo() (*Module, error) {
	if !w.IsCoreModule() {
		return nil, wrterr.New(wrterr.CategoryType, wrterr.CodeTypeMismatch, "wasm binary is a component, not a core module")
	}
	return w.Module, nil
}

// RequireComponentInfo returns the wrapped ComponentInfo, or a clear
// type-mismatch error.
func (w *WasmInfo) RequireComponentInfo() (*ComponentInfo, error) {
	if !w.IsComponent() {
		return nil, wrterr.New(wrterr.CategoryType, wrterr.CodeTypeMismatch, "wasm binary is a core module, not a component")
	}
	return w.Component, nil
}

// reader wraps a bufio.Reader with the LEB128 helpers the section parser
// needs, streaming section-by-section rather than buffering the entire
// input up front.
type reader struct {
	r *bufio.Reader
}

func newReader(r io.Reader) *reader {
	return &reader{r: bufio.NewReader(r)}
}

func (r *reader) readByte() (byte, error) {
	return r.r.ReadByte()
}

func (r *reader) readBytes(n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "truncated section", err)
	}
	return buf, nil
}

func (r *reader) readU32() (uint32, error) {
	v, err := binary.ReadUvarint(r.r)
	if err != nil {
		return 0, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "malformed LEB128 u32", err)
	}
	if v > 0xFFFFFFFF {
		return 0, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "LEB128 value exceeds u32 range")
	}
	return uint32(v), nil
}

func (r *reader) readI32() (int32, error) {
	v, err := r.readI64()
	return int32(v), err
}

func (r *reader) readI64() (int64, error) {
	var v int64
	for shift := uint(0); ; shift += 7 {
		b, err := r.r.ReadByte()
		if err != nil {
			return 0, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "malformed LEB128 i64", err)
		}
		v |= int64(b&0x7f) << shift
		if b&0x80 == 0 {
			if shift+7 < 64 && b&0x40 != 0 {
				v |= -1 << (shift + 7)
			}
			return v, nil
		}
	}
}

func (r *reader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) readValType() (ValType, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "truncated value type", err)
	}
	switch b {
	case 0x7f:
		return ValI32, nil
	case 0x7e:
		return ValI64, nil
	case 0x7d:
		return ValF32, nil
	case 0x7c:
		return ValF64, nil
	case 0x7b:
		return ValV128, nil
	case 0x70:
		return ValFuncRef, nil
	case 0x6f:
		return ValExternRef, nil
	default:
		return 0, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "unknown value type byte")
	}
}

// Load reads a wasm binary header and, if core, every section into a
// validated Module; if component, shallow-captures raw sections into a
// ComponentInfo for package component to finish loading. level controls
// how much structural validation Load performs on a core module.
func Load(src io.Reader, level ValidationLevel) (*WasmInfo, error) {
	r := newReader(src)

	var magic, version [4]byte
	for i := range magic {
		b, err := r.readByte()
		if err != nil {
			return nil, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "truncated magic", err)
		}
		magic[i] = b
	}
	if magic != coreMagic {
		return nil, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "bad magic: not a wasm binary")
	}
	for i := range version {
		b, err := r.readByte()
		if err != nil {
			return nil, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "truncated version", err)
		}
		version[i] = b
	}

	switch version {
	case coreVersion:
		mod, err := parseModule(r)
		if err != nil {
			return nil, err
		}
		if level != ValidationNone {
			if err := validateModule(mod, level); err != nil {
				return nil, err
			}
		}
		return &WasmInfo{Format: FormatModule, Module: mod}, nil
	case componentVersion:
		info, err := parseComponentShallow(r)
		if err != nil {
			return nil, err
		}
		return &WasmInfo{Format: FormatComponent, Component: info}, nil
	default:
		return nil, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "unrecognized version: neither core nor component")
	}
}

func parseComponentShallow(r *reader) (*ComponentInfo, error) {
	info := &ComponentInfo{RawSections: make(map[uint8][]byte)}
	for {
		idByte, err := r.readByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "truncated section id", err)
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		payload, err := r.readBytes(size)
		if err != nil {
			return nil, err
		}
		info.RawSections[idByte] = append(info.RawSections[idByte], payload...)
	}
	return info, nil
}

func parseModule(r *reader) (*Module, error) {
	mod := &Module{Customs: make(map[string][]byte)}
	var funcCount, codeCount int

	for {
		idByte, err := r.readByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, wrterr.Wrap(wrterr.CategoryParse, wrterr.CodeParseError, "truncated section id", err)
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		payload, err := r.readBytes(size)
		if err != nil {
			return nil, err
		}
		sr := newReader(byteReader(payload))

		switch SectionID(idByte) {
		case SectionCustom:
			name, err := sr.readName()
			if err != nil {
				return nil, err
			}
			mod.Customs[name] = payload
		case SectionType:
			if mod.Types, err = parseTypeSection(sr); err != nil {
				return nil, err
			}
		case SectionImport:
			if mod.Imports, err = parseImportSection(sr); err != nil {
				return nil, err
			}
		case SectionFunction:
			n, err := sr.readU32()
			if err != nil {
				return nil, err
			}
			funcCount = int(n)
			mod.Functions = make([]uint32, n)
			for i := range mod.Functions {
				if mod.Functions[i], err = sr.readU32(); err != nil {
					return nil, err
				}
			}
		case SectionTable:
			if mod.Tables, err = parseTableSection(sr); err != nil {
				return nil, err
			}
		case SectionMemory:
			if mod.Memories, err = parseMemorySection(sr); err != nil {
				return nil, err
			}
		case SectionGlobal:
			if mod.Globals, err = parseGlobalSection(sr); err != nil {
				return nil, err
			}
		case SectionExport:
			if mod.Exports, err = parseExportSection(sr); err != nil {
				return nil, err
			}
		case SectionStart:
			idx, err := sr.readU32()
			if err != nil {
				return nil, err
			}
			mod.Start = &idx
		case SectionElement:
			if mod.Elements, err = parseElementSection(sr); err != nil {
				return nil, err
			}
		case SectionCode:
			n, err := sr.readU32()
			if err != nil {
				return nil, err
			}
			codeCount = int(n)
			mod.Code = make([]CodeBody, n)
			for i := range mod.Code {
				if mod.Code[i], err = parseCodeEntry(sr); err != nil {
					return nil, err
				}
			}
		case SectionData:
			if mod.Data, err = parseDataSection(sr); err != nil {
				return nil, err
			}
		case SectionDataCount:
			n, err := sr.readU32()
			if err != nil {
				return nil, err
			}
			mod.DataCount = &n
		default:
			// Section id > 12: per spec this indicates a component binary
			// reached by way of a core-version header, which cannot happen
			// given the version dispatch in Load; treated as malformed here.
			return nil, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "unknown core section id")
		}
	}

	if funcCount != codeCount {
		return nil, wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "function and code section counts must match")
	}
	return mod, nil
}

func parseTypeSection(r *reader) ([]FuncType, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	types := make([]FuncType, n)
	for i := range types {
		tag, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if tag != 0x60 {
			return nil, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "expected func type tag 0x60")
		}
		pn, err := r.readU32()
		if err != nil {
			return nil, err
		}
		params := make([]ValType, pn)
		for j := range params {
			if params[j], err = r.readValType(); err != nil {
				return nil, err
			}
		}
		rn, err := r.readU32()
		if err != nil {
			return nil, err
		}
		results := make([]ValType, rn)
		for j := range results {
			if results[j], err = r.readValType(); err != nil {
				return nil, err
			}
		}
		types[i] = FuncType{Params: params, Results: results}
	}
	return types, nil
}

func parseLimits(r *reader) (Limits, error) {
	flag, err := r.readByte()
	if err != nil {
		return Limits{}, err
	}
	min, err := r.readU32()
	if err != nil {
		return Limits{}, err
	}
	lim := Limits{Min: min}
	if flag&0x01 != 0 {
		max, err := r.readU32()
		if err != nil {
			return Limits{}, err
		}
		lim.Max = &max
	}
	return lim, nil
}

func parseImportSection(r *reader) ([]Import, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	imports := make([]Import, n)
	for i := range imports {
		module, err := r.readName()
		if err != nil {
			return nil, err
		}
		name, err := r.readName()
		if err != nil {
			return nil, err
		}
		kindByte, err := r.readByte()
		if err != nil {
			return nil, err
		}
		imp := Import{Module: module, Name: name}
		switch kindByte {
		case 0x00:
			imp.Kind = ImportFunc
			if imp.Index, err = r.readU32(); err != nil {
				return nil, err
			}
		case 0x01:
			imp.Kind = ImportTable
			elemType, err := r.readValType()
			if err != nil {
				return nil, err
			}
			lim, err := parseLimits(r)
			if err != nil {
				return nil, err
			}
			imp.Table = TableType{ElemType: elemType, Limits: lim}
		case 0x02:
			imp.Kind = ImportMemory
			memFlag, err := r.readByte()
			if err != nil {
				return nil, err
			}
			mt, err := parseMemoryTypeFromFlag(r, memFlag)
			if err != nil {
				return nil, err
			}
			imp.Memory = mt
		case 0x03:
			imp.Kind = ImportGlobal
			vt, err := r.readValType()
			if err != nil {
				return nil, err
			}
			mutByte, err := r.readByte()
			if err != nil {
				return nil, err
			}
			imp.Global = GlobalType{ValType: vt, Mutable: mutByte != 0}
		default:
			return nil, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "unknown import kind")
		}
		imports[i] = imp
	}
	return imports, nil
}

func parseMemoryTypeFromFlag(r *reader, flag byte) (MemoryType, error) {
	shared := flag&0x02 != 0
	index64 := flag&0x04 != 0
	min, err := r.readU32()
	if err != nil {
		return MemoryType{}, err
	}
	mt := MemoryType{Limits: Limits{Min: min}, Shared: shared, Index64: index64}
	if flag&0x01 != 0 {
		max, err := r.readU32()
		if err != nil {
			return MemoryType{}, err
		}
		mt.Limits.Max = &max
	}
	return mt, nil
}

func parseTableSection(r *reader) ([]TableType, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	tables := make([]TableType, n)
	for i := range tables {
		elemType, err := r.readValType()
		if err != nil {
			return nil, err
		}
		lim, err := parseLimits(r)
		if err != nil {
			return nil, err
		}
		tables[i] = TableType{ElemType: elemType, Limits: lim}
	}
	return tables, nil
}

func parseMemorySection(r *reader) ([]MemoryType, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	mems := make([]MemoryType, n)
	for i := range mems {
		flag, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if mems[i], err = parseMemoryTypeFromFlag(r, flag); err != nil {
			return nil, err
		}
	}
	return mems, nil
}

func parseConstExpr(r *reader) (ConstExpr, error) {
	op, err := r.readByte()
	if err != nil {
		return ConstExpr{}, err
	}
	var expr ConstExpr
	switch op {
	case 0x41: // i32.const
		v, err := r.readI32()
		if err != nil {
			return ConstExpr{}, err
		}
		expr = ConstExpr{Kind: ConstI32, I32: v}
	case 0x42: // i64.const
		v, err := r.readI64()
		if err != nil {
			return ConstExpr{}, err
		}
		expr = ConstExpr{Kind: ConstI64, I64: v}
	case 0x23: // global.get
		v, err := r.readU32()
		if err != nil {
			return ConstExpr{}, err
		}
		expr = ConstExpr{Kind: ConstGlobalGet, GlobalIndex: v}
	default:
		return ConstExpr{}, wrterr.New(wrterr.CategoryValidation, wrterr.CodeValidationError, "unsupported constant expression opcode")
	}
	end, err := r.readByte()
	if err != nil {
		return ConstExpr{}, err
	}
	if end != 0x0b { // end
		return ConstExpr{}, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "constant expression missing end opcode")
	}
	return expr, nil
}

func parseGlobalSection(r *reader) ([]Global, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	globals := make([]Global, n)
	for i := range globals {
		vt, err := r.readValType()
		if err != nil {
			return nil, err
		}
		mutByte, err := r.readByte()
		if err != nil {
			return nil, err
		}
		init, err := parseConstExpr(r)
		if err != nil {
			return nil, err
		}
		globals[i] = Global{Type: GlobalType{ValType: vt, Mutable: mutByte != 0}, Init: init}
	}
	return globals, nil
}

func parseExportSection(r *reader) ([]Export, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	exports := make([]Export, n)
	for i := range exports {
		name, err := r.readName()
		if err != nil {
			return nil, err
		}
		kindByte, err := r.readByte()
		if err != nil {
			return nil, err
		}
		idx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		exports[i] = Export{Name: name, Kind: ExportKind(kindByte), Index: idx}
	}
	return exports, nil
}

func parseElementSection(r *reader) ([]ElementSegment, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	elems := make([]ElementSegment, n)
	for i := range elems {
		tableIdx, err := r.readU32()
		if err != nil {
			return nil, err
		}
		offset, err := parseConstExpr(r)
		if err != nil {
			return nil, err
		}
		fn, err := r.readU32()
		if err != nil {
			return nil, err
		}
		indices := make([]uint32, fn)
		for j := range indices {
			if indices[j], err = r.readU32(); err != nil {
				return nil, err
			}
		}
		elems[i] = ElementSegment{TableIndex: tableIdx, Offset: offset, FuncIndices: indices}
	}
	return elems, nil
}

func parseCodeEntry(r *reader) (CodeBody, error) {
	size, err := r.readU32()
	if err != nil {
		return CodeBody{}, err
	}
	body, err := r.readBytes(size)
	if err != nil {
		return CodeBody{}, err
	}
	br := newReader(byteReader(body))
	localGroups, err := br.readU32()
	if err != nil {
		return CodeBody{}, err
	}
	var locals []ValType
	for i := uint32(0); i < localGroups; i++ {
		count, err := br.readU32()
		if err != nil {
			return CodeBody{}, err
		}
		vt, err := br.readValType()
		if err != nil {
			return CodeBody{}, err
		}
		for j := uint32(0); j < count; j++ {
			locals = append(locals, vt)
		}
	}
	rest, _ := io.ReadAll(br.r)
	return CodeBody{Locals: locals, Code: rest}, nil
}

func parseDataSection(r *reader) ([]DataSegment, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	segs := make([]DataSegment, n)
	for i := range segs {
		kind, err := r.readU32()
		if err != nil {
			return nil, err
		}
		var seg DataSegment
		switch kind {
		case 0:
			offset, err := parseConstExpr(r)
			if err != nil {
				return nil, err
			}
			seg.Active = true
			seg.Offset = offset
		case 1:
			// passive segment; no memory index or offset.
		case 2:
			memIdx, err := r.readU32()
			if err != nil {
				return nil, err
			}
			offset, err := parseConstExpr(r)
			if err != nil {
				return nil, err
			}
			seg.Active = true
			seg.MemoryIndex = memIdx
			seg.Offset = offset
		default:
			return nil, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "unknown data segment kind")
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		b, err := r.readBytes(size)
		if err != nil {
			return nil, err
		}
		seg.Bytes = b
		segs[i] = seg
	}
	return segs, nil
}

// byteReader adapts a []byte to an io.Reader without pulling in bytes.Reader
// semantics this package doesn't need beyond Read.
type byteReaderImpl struct {
	b []byte
}

func byteReader(b []byte) io.Reader { return &byteReaderImpl{b: b} }

func (r *byteReaderImpl) Read(p []byte) (int, error) {
	if len(r.b) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.b)
	r.b = r.b[n:]
	return n, nil
}
