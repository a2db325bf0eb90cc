package component

import (
	"github.com/pulseengine/wrt-sub014/decoder"
	"github.com/pulseengine/wrt-sub014/wrterr"
)

// Component-level raw section ids the loader understands, in the same
// numeric space decoder.ComponentInfo.RawSections keys on (a real
// Component Model binary defines twelve section kinds — core module, core
// instance, alias, type, canon, start, and so on — of which this runtime's
// loader only ever needs the two that populate Component.Imports/Exports;
// the rest stay opaque bytes a Builder fills in by hand, same as before
// this fix).
const (
	sectionImport uint8 = 10
	sectionExport uint8 = 11
)

func uleb(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			break
		}
	}
	return out
}

// sectionReader is a minimal LEB128/string cursor over one raw section's
// payload, sized for the small import/export vectors this file decodes —
// package decoder's equivalent reader isn't exported, and a stream-backed
// reader buys nothing here since RawSections already holds the whole
// payload in memory.
type sectionReader struct {
	data []byte
	pos  int
}

func (r *sectionReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "component section: truncated")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *sectionReader) readU32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "component section: LEB128 overflow")
		}
	}
}

func (r *sectionReader) readString() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", wrterr.New(wrterr.CategoryParse, wrterr.CodeParseError, "component section: truncated string")
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func encodeString(s string) []byte {
	return append(uleb(uint32(len(s))), []byte(s)...)
}

// EncodeImportSection is decodeImportSection's reciprocal writer: vec(
// module:string, name:string, kind:byte, index:u32). Used by tests (and
// anything else assembling a component binary from a Builder's Component)
// to produce the bytes the loader reads back under sectionImport.
func EncodeImportSection(imports []decoder.Import) []byte {
	out := uleb(uint32(len(imports)))
	for _, imp := range imports {
		out = append(out, encodeString(imp.Module)...)
		out = append(out, encodeString(imp.Name)...)
		out = append(out, byte(imp.Kind))
		out = append(out, uleb(imp.Index)...)
	}
	return out
}

// decodeImportSection parses the bytes EncodeImportSection produces back
// into Import entries.
func decodeImportSection(data []byte) ([]decoder.Import, error) {
	r := &sectionReader{data: data}
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	imports := make([]decoder.Import, 0, count)
	for i := uint32(0); i < count; i++ {
		module, err := r.readString()
		if err != nil {
			return nil, err
		}
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		kind, err := r.readByte()
		if err != nil {
			return nil, err
		}
		index, err := r.readU32()
		if err != nil {
			return nil, err
		}
		imports = append(imports, decoder.Import{
			Module: module,
			Name:   name,
			Kind:   decoder.ImportKind(kind),
			Index:  index,
		})
	}
	return imports, nil
}

// EncodeExportSection is decodeExportSection's reciprocal writer: vec(
// name:string, kind:byte, index:u32).
func EncodeExportSection(exports []decoder.Export) []byte {
	out := uleb(uint32(len(exports)))
	for _, exp := range exports {
		out = append(out, encodeString(exp.Name)...)
		out = append(out, byte(exp.Kind))
		out = append(out, uleb(exp.Index)...)
	}
	return out
}

// decodeExportSection parses the bytes EncodeExportSection produces back
// into Export entries.
func decodeExportSection(data []byte) ([]decoder.Export, error) {
	r := &sectionReader{data: data}
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	exports := make([]decoder.Export, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.readString()
		if err != nil {
			return nil, err
		}
		kind, err := r.readByte()
		if err != nil {
			return nil, err
		}
		index, err := r.readU32()
		if err != nil {
			return nil, err
		}
		exports = append(exports, decoder.Export{
			Name:  name,
			Kind:  decoder.ExportKind(kind),
			Index: index,
		})
	}
	return exports, nil
}
