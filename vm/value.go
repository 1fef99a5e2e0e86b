package vm

import (
	"fmt"
	"math"
)

// Value is a tagged 64-bit scalar that holds every script-visible value.
//
// The low three bits select the type tag. The remaining bits are interpreted
// per tag:
//   - direct:        bit 3 set marks an integer with a signed 32-bit payload in
//     bits 32-63; otherwise bits 4-31 hold a simple constant id
//   - direct string: bits 3-4 select the sub-tag, bits 32-63 hold the payload
//     (pointer-backed strings also keep a generation in bits 16-31)
//   - heap handles:  bits 16-31 hold the slot generation, bits 32-63 the
//     arena index (strings, floats, objects, symbols)
//   - internal:      bits 3-7 select the internal kind, bits 8-15 carry a small
//     auxiliary field, bits 32-63 the payload
//
// The zero Value is Empty.
type Value uint64

// Type tags
const (
	tagDirect       uint64 = 0 // integer or simple constant
	tagString       uint64 = 1 // heap string handle
	tagFloat        uint64 = 2 // boxed float handle
	tagObject       uint64 = 3 // object or lexical environment handle
	tagSymbol       uint64 = 4 // symbol handle (lives in the string arena)
	tagDirectString uint64 = 5 // string encoded in the value itself
	tagInternal     uint64 = 6 // context headers, collections
	tagMask         uint64 = 7 // tag 7 is reserved

	directIntegerBit uint64 = 1 << 3
	simpleShift             = 4
	handleGenShift          = 16
	payloadShift            = 32
)

// Direct string sub-tags
const (
	directStringPtr     = 0 // pointer to a literal-storage string
	directStringMagic   = 1 // well-known magic string id
	directStringUint    = 2 // canonical array index rendered as a string
	directStringMagicEx = 3 // host supplied external magic string id
)

// directUintMax is the largest array index stored as a direct string. Larger
// indices use the heap uint container.
const directUintMax = 1<<28 - 1

// Integer range of direct integers.
const (
	IntegerMin = math.MinInt32
	IntegerMax = math.MaxInt32
)

// Simple constants. Equality on simple constants is equality of the raw bits.
const (
	Empty               Value = Value(0<<simpleShift | tagDirect)
	ErrorValue          Value = Value(1<<simpleShift | tagDirect)
	False               Value = Value(2<<simpleShift | tagDirect)
	True                Value = Value(3<<simpleShift | tagDirect)
	Undefined           Value = Value(4<<simpleShift | tagDirect)
	Null                Value = Value(5<<simpleShift | tagDirect)
	ArrayHole           Value = Value(6<<simpleShift | tagDirect)
	NotFound            Value = Value(7<<simpleShift | tagDirect)
	RegisterRef         Value = Value(8<<simpleShift | tagDirect)
	ImplicitConstructor Value = Value(9<<simpleShift | tagDirect)
)

var simpleNames = [...]string{
	"empty", "error", "false", "true", "undefined", "null",
	"array-hole", "not-found", "register-ref", "implicit-constructor",
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// IntegerValue creates a direct integer.
func IntegerValue(n int32) Value {
	return Value(uint64(uint32(n))<<payloadShift | directIntegerBit | tagDirect)
}

// TryIntegerValue creates a direct integer if n lies within the integer range.
func TryIntegerValue(n int64) (Value, bool) {
	if n < IntegerMin || n > IntegerMax {
		return Empty, false
	}
	return IntegerValue(int32(n)), true
}

// BooleanValue returns True or False.
func BooleanValue(b bool) Value {
	if b {
		return True
	}
	return False
}

func makeHandle(tag uint64, index uint32, gen uint16) Value {
	return Value(uint64(index)<<payloadShift | uint64(gen)<<handleGenShift | tag)
}

func makeDirectString(sub uint64, payload uint32) Value {
	return Value(uint64(payload)<<payloadShift | sub<<3 | tagDirectString)
}

func makeInternal(kind uint64, aux uint8, payload uint32) Value {
	return Value(uint64(payload)<<payloadShift | uint64(aux)<<8 | kind<<3 | tagInternal)
}

// floatToInteger reports whether f can be stored as a direct integer.
// Negative zero stays a float.
func floatToInteger(f float64) (int32, bool) {
	if f < IntegerMin || f > IntegerMax || f != math.Trunc(f) {
		return 0, false
	}
	if f == 0 && math.Signbit(f) {
		return 0, false
	}
	return int32(f), true
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

func (v Value) tag() uint64 { return uint64(v) & tagMask }

// IsInteger returns true if v is a direct integer.
func (v Value) IsInteger() bool {
	return uint64(v)&(tagMask|directIntegerBit) == directIntegerBit|tagDirect
}

// IsSimple returns true if v is a simple constant.
func (v Value) IsSimple() bool {
	return uint64(v)&(tagMask|directIntegerBit) == tagDirect
}

// IsFloat returns true if v is a boxed float.
func (v Value) IsFloat() bool { return v.tag() == tagFloat }

// IsNumber returns true if v is an integer or a float.
func (v Value) IsNumber() bool { return v.IsInteger() || v.IsFloat() }

// IsString returns true for heap strings and direct strings.
func (v Value) IsString() bool {
	t := v.tag()
	return t == tagString || t == tagDirectString
}

// IsDirectString returns true if the string is encoded in the value itself.
func (v Value) IsDirectString() bool { return v.tag() == tagDirectString }

// IsObject returns true for objects and lexical environments.
func (v Value) IsObject() bool { return v.tag() == tagObject }

// IsSymbol returns true for symbols.
func (v Value) IsSymbol() bool { return v.tag() == tagSymbol }

// IsError returns true for the error marker returned by failing operations.
func (v Value) IsError() bool { return v == ErrorValue }

// IsUndefined returns true for undefined.
func (v Value) IsUndefined() bool { return v == Undefined }

// IsNull returns true for null.
func (v Value) IsNull() bool { return v == Null }

// IsNullOrUndefined returns true for null and undefined.
func (v Value) IsNullOrUndefined() bool { return v == Null || v == Undefined }

// IsBoolean returns true for True and False.
func (v Value) IsBoolean() bool { return v == True || v == False }

// IsPropertyName returns true for values usable directly as property keys.
func (v Value) IsPropertyName() bool { return v.IsString() || v.IsSymbol() }

func (v Value) isInternal() bool { return v.tag() == tagInternal }

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Integer returns the payload of a direct integer.
func (v Value) Integer() int32 { return int32(uint32(uint64(v) >> payloadShift)) }

func (v Value) index() uint32 { return uint32(uint64(v) >> payloadShift) }

func (v Value) gen() uint16 { return uint16(uint64(v) >> handleGenShift) }

func (v Value) directStringKind() uint64 { return (uint64(v) >> 3) & 3 }

func (v Value) payload() uint32 { return uint32(uint64(v) >> payloadShift) }

func (v Value) simpleID() uint64 { return uint64(v) >> simpleShift }

func (v Value) internalKind() uint64 { return (uint64(v) >> 3) & 0x1F }

func (v Value) internalAux() uint8 { return uint8(uint64(v) >> 8) }

// isCanonicalDirectString reports whether v is a direct string whose bits
// alone identify its content. Such strings are never equal to a
// descriptor-backed string.
func (v Value) isCanonicalDirectString() bool {
	return v.tag() == tagDirectString && v.directStringKind() != directStringPtr
}

// String describes the tag and payload of v. Heap contents are not decoded;
// use VM.Inspect for that.
func (v Value) String() string {
	switch v.tag() {
	case tagDirect:
		if v.IsInteger() {
			return fmt.Sprintf("%d", v.Integer())
		}
		if id := v.simpleID(); id < uint64(len(simpleNames)) {
			return simpleNames[id]
		}
		return fmt.Sprintf("simple(%d)", v.simpleID())
	case tagString:
		return fmt.Sprintf("string#%d.%d", v.index(), v.gen())
	case tagFloat:
		return fmt.Sprintf("float#%d.%d", v.index(), v.gen())
	case tagObject:
		return fmt.Sprintf("object#%d.%d", v.index(), v.gen())
	case tagSymbol:
		return fmt.Sprintf("symbol#%d.%d", v.index(), v.gen())
	case tagDirectString:
		switch v.directStringKind() {
		case directStringMagic:
			return fmt.Sprintf("magic(%q)", magicStrings[v.payload()])
		case directStringUint:
			return fmt.Sprintf("uint(%d)", v.payload())
		case directStringMagicEx:
			return fmt.Sprintf("magic-ex(%d)", v.payload())
		}
		return fmt.Sprintf("literal#%d.%d", v.index(), v.gen())
	case tagInternal:
		return fmt.Sprintf("internal(%d:%d:%d)", v.internalKind(), v.internalAux(), v.payload())
	}
	return fmt.Sprintf("reserved(%#x)", uint64(v))
}
