package component

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/joeycumines/go-utilpkg/jsonenc"

	"github.com/pulseengine/wrt-sub014/wrterr"
)

// LiftString decodes raw linear-memory bytes into a Go string per the
// canonical ABI's StringEncoding (CanonOptions.StringEncoding selects
// which of the four applies to one lift/lower pair).
func LiftString(enc StringEncoding, raw []byte) (string, error) {
	switch enc {
	case UTF8:
		if !utf8.Valid(raw) {
			msg := append([]byte("component: invalid utf8 string: "), jsonenc.AppendString(nil, string(raw))...)
			return "", wrterr.New(wrterr.CategoryType, wrterr.CodeTypeMismatch, string(msg))
		}
		return string(raw), nil
	case UTF16LE, UTF16BE:
		if len(raw)%2 != 0 {
			return "", wrterr.New(wrterr.CategoryType, wrterr.CodeTypeMismatch, "component: utf16 string has odd byte length")
		}
		units := make([]uint16, len(raw)/2)
		for i := range units {
			if enc == UTF16LE {
				units[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
			} else {
				units[i] = uint16(raw[2*i])<<8 | uint16(raw[2*i+1])
			}
		}
		return string(utf16.Decode(units)), nil
	case Latin1:
		runes := make([]rune, len(raw))
		for i, b := range raw {
			runes[i] = rune(b)
		}
		return string(runes), nil
	default:
		return "", wrterr.New(wrterr.CategoryType, wrterr.CodeTypeMismatch, "component: unknown string encoding")
	}
}

// LowerString encodes s per enc, appending to dst, the same
// "append-to-byte-slice, report consumed width" shape jsonenc's
// AppendFloat64/AppendString use for JSON — except the canonical ABI's
// consumed width is measured in raw bytes rather than JSON syntax, so
// LowerString reports it directly as a return value rather than requiring
// the caller to diff slice lengths.
func LowerString(dst []byte, enc StringEncoding, s string) ([]byte, int) {
	start := len(dst)
	switch enc {
	case UTF8:
		dst = append(dst, s...)
	case UTF16LE, UTF16BE:
		for _, u := range utf16.Encode([]rune(s)) {
			if enc == UTF16LE {
				dst = append(dst, byte(u), byte(u>>8))
			} else {
				dst = append(dst, byte(u>>8), byte(u))
			}
		}
	case Latin1:
		for _, r := range s {
			dst = append(dst, byte(r))
		}
	}
	return dst, len(dst) - start
}
