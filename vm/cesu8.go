package vm

import (
	"unicode/utf16"
	"unicode/utf8"
)

// Strings are stored as CESU-8: UTF-8 where characters outside the basic
// multilingual plane are written as two encoded UTF-16 surrogates. Byte order
// then matches UTF-16 code unit order.

// cesu8Length returns the number of UTF-16 code units encoded in b.
func cesu8Length(b []byte) uint32 {
	var n uint32
	for _, c := range b {
		switch {
		case c&0xC0 == 0x80:
			// continuation byte
		case c >= 0xF0:
			n += 2
		default:
			n++
		}
	}
	return n
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// utf8ToCESU8 rewrites four-byte UTF-8 sequences as surrogate pairs. The input
// is returned unchanged when no rewriting is needed.
func utf8ToCESU8(b []byte) []byte {
	needs := false
	for _, c := range b {
		if c >= 0xF0 {
			needs = true
			break
		}
	}
	if !needs {
		return b
	}
	out := make([]byte, 0, len(b)+len(b)/2)
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		if r > 0xFFFF {
			hi, lo := utf16.EncodeRune(r)
			out = appendSurrogate(out, hi)
			out = appendSurrogate(out, lo)
			continue
		}
		out = utf8.AppendRune(out, r)
	}
	return out
}

func appendSurrogate(out []byte, r rune) []byte {
	return append(out,
		byte(0xE0|(r>>12)),
		byte(0x80|((r>>6)&0x3F)),
		byte(0x80|(r&0x3F)))
}

// decodeCESU8Unit decodes one code unit (one to three bytes) at the start of b.
func decodeCESU8Unit(b []byte) (rune, int) {
	c := b[0]
	switch {
	case c < 0x80:
		return rune(c), 1
	case c < 0xE0 && len(b) >= 2:
		return rune(c&0x1F)<<6 | rune(b[1]&0x3F), 2
	case c < 0xF0 && len(b) >= 3:
		return rune(c&0x0F)<<12 | rune(b[1]&0x3F)<<6 | rune(b[2]&0x3F), 3
	}
	r, size := utf8.DecodeRune(b)
	return r, size
}

// cesu8ToUTF8 joins surrogate pairs back into four-byte sequences.
func cesu8ToUTF8(b []byte) string {
	if isASCII(b) {
		return string(b)
	}
	out := make([]byte, 0, len(b))
	for len(b) > 0 {
		r, size := decodeCESU8Unit(b)
		b = b[size:]
		if utf16.IsSurrogate(r) && r < 0xDC00 && len(b) >= 3 {
			lo, loSize := decodeCESU8Unit(b)
			if lo >= 0xDC00 && lo <= 0xDFFF {
				out = utf8.AppendRune(out, utf16.DecodeRune(r, lo))
				b = b[loSize:]
				continue
			}
		}
		out = utf8.AppendRune(out, r)
	}
	return string(out)
}

// cesu8UnitAt returns the byte span of the code unit at index i.
func cesu8UnitAt(b []byte, i uint32) ([]byte, bool) {
	var n uint32
	for pos := 0; pos < len(b); {
		_, size := decodeCESU8Unit(b[pos:])
		if n == i {
			return b[pos : pos+size], true
		}
		n++
		pos += size
	}
	return nil, false
}
