package vm

import (
	"bytes"
	"strconv"
)

// ---------------------------------------------------------------------------
// String descriptors
// ---------------------------------------------------------------------------

type stringContainer uint8

const (
	containerShort  stringContainer = iota // byte buffer, size <= shortStringMaxSize
	containerLong                          // byte buffer, larger sizes
	containerUint                          // canonical array index, no buffer
	containerSymbol                        // wraps a description value
)

const shortStringMaxSize = 0xFFFF

// maxIndexDigits is the digit count of the largest array index.
const maxIndexDigits = 10

// stringDesc is the heap record behind string, symbol and pointer-backed
// direct string values.
type stringDesc struct {
	refs      uint32
	container stringContainer
	static    bool // literal storage, lives as long as the VM
	hash      uint32
	length    uint32 // UTF-16 code units
	data      []byte
	u32       uint32
	desc      Value
}

func containerForSize(size int) stringContainer {
	if size <= shortStringMaxSize {
		return containerShort
	}
	return containerLong
}

// 32-bit FNV-1a. Hashing continues over appended bytes, so the hash of a
// concatenation is derived from the left operand's hash.
const (
	fnvOffset uint32 = 2166136261
	fnvPrime  uint32 = 16777619
)

func stringHash(b []byte) uint32 { return hashCombine(fnvOffset, b) }

func hashCombine(h uint32, b []byte) uint32 {
	for _, c := range b {
		h ^= uint32(c)
		h *= fnvPrime
	}
	return h
}

// parseArrayIndex accepts canonical array indices: decimal digits, no leading
// zero except for "0" itself, value at most 2^32-2.
func parseArrayIndex(b []byte) (uint32, bool) {
	if len(b) == 0 || len(b) > maxIndexDigits {
		return 0, false
	}
	if b[0] == '0' {
		return 0, len(b) == 1
	}
	var n uint64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint64(c-'0')
	}
	if n > 0xFFFFFFFE {
		return 0, false
	}
	return uint32(n), true
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// NewString creates a string from Go (UTF-8) text.
func (vm *VM) NewString(s string) Value {
	b := utf8ToCESU8([]byte(s))
	if v, ok := vm.findSpecialString(b); ok {
		return v
	}
	return vm.allocString(b, stringHash(b), cesu8Length(b))
}

// NewStringFromUTF8 creates a string from UTF-8 bytes.
func (vm *VM) NewStringFromUTF8(b []byte) Value {
	return vm.NewStringFromBytes(utf8ToCESU8(b))
}

// NewStringFromBytes creates a string from CESU-8 bytes. Well-known strings
// and canonical array indices never allocate.
func (vm *VM) NewStringFromBytes(b []byte) Value {
	if v, ok := vm.findSpecialString(b); ok {
		return v
	}
	data := make([]byte, len(b))
	copy(data, b)
	return vm.allocString(data, stringHash(data), cesu8Length(data))
}

// findSpecialString returns the canonical encoding of b if it is a magic
// string, an external magic string or an array index.
func (vm *VM) findSpecialString(b []byte) (Value, bool) {
	if id, ok := lookupMagic(b); ok {
		return MagicValue(id), true
	}
	if id, ok := vm.lookupExternalMagic(b); ok {
		return makeDirectString(directStringMagicEx, id), true
	}
	if len(b) > 0 && len(b) <= maxIndexDigits && b[0] >= '0' && b[0] <= '9' {
		if n, ok := parseArrayIndex(b); ok {
			return vm.uintString(n), true
		}
	}
	return Empty, false
}

// allocString takes ownership of data.
func (vm *VM) allocString(data []byte, hash, length uint32) Value {
	d := &stringDesc{
		refs:      1,
		container: containerForSize(len(data)),
		hash:      hash,
		length:    length,
		data:      data,
	}
	idx, gen, ok := vm.heap.strings.alloc(d)
	if !ok {
		vm.fatal(FatalOutOfMemory)
	}
	return makeHandle(tagString, idx, gen)
}

// uintString returns the string form of an array index.
func (vm *VM) uintString(n uint32) Value {
	if n <= directUintMax {
		return makeDirectString(directStringUint, n)
	}
	var buf [maxIndexDigits]byte
	digits := strconv.AppendUint(buf[:0], uint64(n), 10)
	d := &stringDesc{
		refs:      1,
		container: containerUint,
		hash:      stringHash(digits),
		length:    uint32(len(digits)),
		u32:       n,
	}
	idx, gen, ok := vm.heap.strings.alloc(d)
	if !ok {
		vm.fatal(FatalOutOfMemory)
	}
	return makeHandle(tagString, idx, gen)
}

// Intern returns the literal-storage string for s. Interning the same content
// twice returns the identical value; literal-storage strings are not
// reference counted and live as long as the VM.
func (vm *VM) Intern(s string) Value {
	return vm.internBytes(utf8ToCESU8([]byte(s)))
}

func (vm *VM) internBytes(b []byte) Value {
	if v, ok := vm.literalStrings[string(b)]; ok {
		return v
	}
	if v, ok := vm.findSpecialString(b); ok {
		if v.IsDirectString() {
			return v
		}
		// indexes above directUintMax come back as counted heap strings
		vm.FreeValue(v)
	}
	d := &stringDesc{refs: 1, static: true}
	if n, ok := parseArrayIndex(b); ok {
		d.container = containerUint
		d.u32 = n
		d.hash = stringHash(b)
		d.length = uint32(len(b))
	} else {
		data := make([]byte, len(b))
		copy(data, b)
		d.container = containerForSize(len(data))
		d.data = data
		d.hash = stringHash(data)
		d.length = cesu8Length(data)
	}
	idx, gen, ok := vm.heap.strings.alloc(d)
	if !ok {
		vm.fatal(FatalOutOfMemory)
	}
	v := makeHandle(tagDirectString, idx, gen)
	vm.literalStrings[string(b)] = v
	return v
}

// NewSymbol creates a symbol with the given description (a string or
// undefined).
func (vm *VM) NewSymbol(description Value) Value {
	d := &stringDesc{refs: 1, container: containerSymbol, desc: vm.CopyValue(description)}
	idx, gen, ok := vm.heap.strings.alloc(d)
	if !ok {
		vm.fatal(FatalOutOfMemory)
	}
	d.hash = (idx+1)*0x9E3779B1 ^ uint32(gen)
	return makeHandle(tagSymbol, idx, gen)
}

// SymbolDescription returns the borrowed description of a symbol.
func (vm *VM) SymbolDescription(v Value) Value {
	return vm.stringDesc(v).desc
}

// ---------------------------------------------------------------------------
// Reference counting
// ---------------------------------------------------------------------------

func (vm *VM) stringDesc(v Value) *stringDesc {
	d := vm.heap.strings.get(v.index(), v.gen())
	if d == nil {
		vm.fatal(FatalUnreachable)
	}
	return d
}

func (vm *VM) refString(v Value) {
	d := vm.stringDesc(v)
	if d.static {
		return
	}
	if d.refs >= valueRefLimit {
		vm.fatal(FatalRefCountLimit)
	}
	d.refs++
}

func (vm *VM) derefString(v Value) {
	d := vm.heap.strings.get(v.index(), v.gen())
	if d == nil {
		if debugAssertions {
			vm.fatal(FatalFailedAssertion)
		}
		return
	}
	if d.static {
		return
	}
	d.refs--
	if d.refs > 0 {
		return
	}
	if d.container == containerSymbol {
		vm.FreeValue(d.desc)
	}
	vm.heap.strings.release(v.index())
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// stringBytes returns the CESU-8 bytes of a string. Integer-backed strings
// are rendered into buf. The result must not be retained or modified.
func (vm *VM) stringBytes(v Value, buf []byte) []byte {
	if v.tag() == tagDirectString {
		switch v.directStringKind() {
		case directStringMagic:
			return magicBytes[v.payload()]
		case directStringUint:
			return strconv.AppendUint(buf[:0], uint64(v.payload()), 10)
		case directStringMagicEx:
			return vm.externalMagic.bytes[v.payload()]
		}
	}
	d := vm.stringDesc(v)
	if d.container == containerUint {
		return strconv.AppendUint(buf[:0], uint64(d.u32), 10)
	}
	return d.data
}

// StringBytes returns a copy of the CESU-8 bytes of a string.
func (vm *VM) StringBytes(v Value) []byte {
	var buf [maxIndexDigits]byte
	b := vm.stringBytes(v, buf[:0])
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// GoString converts a string value to Go (UTF-8) text.
func (vm *VM) GoString(v Value) string {
	var buf [maxIndexDigits]byte
	return cesu8ToUTF8(vm.stringBytes(v, buf[:0]))
}

// StringLength returns the length of a string in UTF-16 code units.
func (vm *VM) StringLength(v Value) uint32 {
	if v.tag() == tagDirectString {
		switch v.directStringKind() {
		case directStringMagic:
			return magicLengths[v.payload()]
		case directStringUint:
			return uint32(digitCount(v.payload()))
		case directStringMagicEx:
			return vm.externalMagic.lengths[v.payload()]
		}
	}
	return vm.stringDesc(v).length
}

func digitCount(n uint32) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}

// StringHash returns the content hash of a string.
func (vm *VM) StringHash(v Value) uint32 {
	if v.tag() == tagDirectString {
		switch v.directStringKind() {
		case directStringMagic:
			return magicHashes[v.payload()]
		case directStringUint:
			var buf [maxIndexDigits]byte
			return stringHash(strconv.AppendUint(buf[:0], uint64(v.payload()), 10))
		case directStringMagicEx:
			return vm.externalMagic.hashes[v.payload()]
		}
	}
	return vm.stringDesc(v).hash
}

// StringToArrayIndex returns the array index a string denotes, if any.
func (vm *VM) StringToArrayIndex(v Value) (uint32, bool) {
	switch v.tag() {
	case tagDirectString:
		switch v.directStringKind() {
		case directStringUint:
			return v.payload(), true
		case directStringPtr:
			if d := vm.stringDesc(v); d.container == containerUint {
				return d.u32, true
			}
		}
	case tagString:
		if d := vm.stringDesc(v); d.container == containerUint {
			return d.u32, true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// StringsEqual compares two strings: identity first, then hash, container
// kind and finally the bytes. Symbols are equal only to themselves.
func (vm *VM) StringsEqual(a, b Value) bool {
	if a == b {
		return true
	}
	if a.isCanonicalDirectString() || b.isCanonicalDirectString() {
		return false
	}
	if a.IsSymbol() || b.IsSymbol() {
		return false
	}
	da, db := vm.stringDesc(a), vm.stringDesc(b)
	if da.hash != db.hash {
		return false
	}
	if da.container != db.container {
		return false
	}
	if da.container == containerUint {
		return da.u32 == db.u32
	}
	return bytes.Equal(da.data, db.data)
}

// CompareStrings orders two strings lexicographically by code unit. A proper
// prefix orders first.
func (vm *VM) CompareStrings(a, b Value) int {
	var bufA, bufB [maxIndexDigits]byte
	return bytes.Compare(vm.stringBytes(a, bufA[:0]), vm.stringBytes(b, bufB[:0]))
}

// ---------------------------------------------------------------------------
// Concatenation
// ---------------------------------------------------------------------------

// AppendToString appends CESU-8 bytes to left. The reference held on left is
// consumed and a reference to the result is returned.
func (vm *VM) AppendToString(left Value, right []byte) Value {
	if len(right) == 0 {
		return left
	}
	var buf [maxIndexDigits]byte
	lb := vm.stringBytes(left, buf[:0])
	size := len(lb) + len(right)

	if vm.mayBeSpecial(size) {
		combined := make([]byte, 0, size)
		combined = append(combined, lb...)
		combined = append(combined, right...)
		if v, ok := vm.findSpecialString(combined); ok {
			vm.FreeValue(left)
			return v
		}
		h := hashCombine(vm.StringHash(left), right)
		l := vm.StringLength(left) + cesu8Length(right)
		vm.FreeValue(left)
		return vm.allocString(combined, h, l)
	}

	if left.tag() == tagString {
		d := vm.stringDesc(left)
		if d.refs == 1 && d.container != containerUint {
			d.data = append(d.data, right...)
			d.hash = hashCombine(d.hash, right)
			d.length += cesu8Length(right)
			d.container = containerForSize(len(d.data))
			return left
		}
	}

	data := make([]byte, 0, size)
	data = append(data, lb...)
	data = append(data, right...)
	h := hashCombine(vm.StringHash(left), right)
	l := vm.StringLength(left) + cesu8Length(right)
	vm.FreeValue(left)
	return vm.allocString(data, h, l)
}

// ConcatStrings returns left+right. The reference held on left is consumed;
// right is borrowed.
func (vm *VM) ConcatStrings(left, right Value) Value {
	if left == MagicValue(MagicEmpty) {
		return vm.CopyValue(right)
	}
	var buf [maxIndexDigits]byte
	return vm.AppendToString(left, vm.stringBytes(right, buf[:0]))
}

// mayBeSpecial reports whether a string of the given size could collapse to
// a magic string or an array index.
func (vm *VM) mayBeSpecial(size int) bool {
	if size <= magicMaxSize || size <= maxIndexDigits {
		return true
	}
	return vm.externalMagic != nil && size <= vm.externalMagic.maxSize
}

// stringCharAt returns the code unit at index i as a string.
func (vm *VM) stringCharAt(v Value, i uint32) (Value, bool) {
	var buf [maxIndexDigits]byte
	unit, ok := cesu8UnitAt(vm.stringBytes(v, buf[:0]), i)
	if !ok {
		return Undefined, false
	}
	return vm.NewStringFromBytes(unit), true
}
