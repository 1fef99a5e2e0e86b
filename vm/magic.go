package vm

// ---------------------------------------------------------------------------
// Magic strings: well-known strings addressed by id
// ---------------------------------------------------------------------------

// MagicID identifies a well-known string.
type MagicID uint32

const (
	MagicEmpty MagicID = iota
	MagicLength
	MagicPrototype
	MagicConstructor
	MagicName
	MagicMessage
	MagicArguments
	MagicCallee
	MagicCaller
	MagicUndefined
	MagicNull
	MagicTrue
	MagicFalse
	MagicNaN
	MagicInfinity
	MagicNegativeInfinity
	MagicObjectType
	MagicFunctionType
	MagicNumberType
	MagicStringType
	MagicBooleanType
	MagicSymbolType
	MagicToString
	MagicValueOf
	MagicObject
	MagicFunction
	MagicArray
	MagicString
	MagicNumber
	MagicBoolean
	MagicSymbol
	MagicArgumentsClass
	MagicError
	MagicTypeError
	MagicReferenceError
	MagicRangeError
	MagicSyntaxError
	MagicGet
	MagicSet
	MagicValueKey
	MagicWritable
	MagicEnumerable
	MagicConfigurable
	MagicGlobalThis
	MagicProto
	MagicColonSpace
	magicCount
)

var magicStrings = [magicCount]string{
	MagicEmpty:            "",
	MagicLength:           "length",
	MagicPrototype:        "prototype",
	MagicConstructor:      "constructor",
	MagicName:             "name",
	MagicMessage:          "message",
	MagicArguments:        "arguments",
	MagicCallee:           "callee",
	MagicCaller:           "caller",
	MagicUndefined:        "undefined",
	MagicNull:             "null",
	MagicTrue:             "true",
	MagicFalse:            "false",
	MagicNaN:              "NaN",
	MagicInfinity:         "Infinity",
	MagicNegativeInfinity: "-Infinity",
	MagicObjectType:       "object",
	MagicFunctionType:     "function",
	MagicNumberType:       "number",
	MagicStringType:       "string",
	MagicBooleanType:      "boolean",
	MagicSymbolType:       "symbol",
	MagicToString:         "toString",
	MagicValueOf:          "valueOf",
	MagicObject:           "Object",
	MagicFunction:         "Function",
	MagicArray:            "Array",
	MagicString:           "String",
	MagicNumber:           "Number",
	MagicBoolean:          "Boolean",
	MagicSymbol:           "Symbol",
	MagicArgumentsClass:   "Arguments",
	MagicError:            "Error",
	MagicTypeError:        "TypeError",
	MagicReferenceError:   "ReferenceError",
	MagicRangeError:       "RangeError",
	MagicSyntaxError:      "SyntaxError",
	MagicGet:              "get",
	MagicSet:              "set",
	MagicValueKey:         "value",
	MagicWritable:         "writable",
	MagicEnumerable:       "enumerable",
	MagicConfigurable:     "configurable",
	MagicGlobalThis:       "globalThis",
	MagicProto:            "__proto__",
	MagicColonSpace:       ": ",
}

var (
	magicBytes   [magicCount][]byte
	magicHashes  [magicCount]uint32
	magicLengths [magicCount]uint32
	magicIndex   map[string]MagicID

	// magicMaxSize is the longest magic string; longer byte spans skip the
	// table lookup.
	magicMaxSize int
)

func init() {
	magicIndex = make(map[string]MagicID, magicCount)
	for id, s := range magicStrings {
		b := []byte(s)
		magicBytes[id] = b
		magicHashes[id] = stringHash(b)
		magicLengths[id] = cesu8Length(b)
		magicIndex[s] = MagicID(id)
		if len(b) > magicMaxSize {
			magicMaxSize = len(b)
		}
	}
}

// MagicValue returns the direct string for a magic id.
func MagicValue(id MagicID) Value {
	return makeDirectString(directStringMagic, uint32(id))
}

// lookupMagic returns the magic id for b, if any.
func lookupMagic(b []byte) (MagicID, bool) {
	if len(b) > magicMaxSize {
		return 0, false
	}
	id, ok := magicIndex[string(b)]
	return id, ok
}

// externalMagic is a host supplied table addressed by the external magic
// sub-tag.
type externalMagic struct {
	bytes   [][]byte
	hashes  []uint32
	lengths []uint32
	index   map[string]uint32
	maxSize int
}

// RegisterExternalMagicStrings installs a table of host strings that are
// represented as direct values from then on. Strings already in the built-in
// table keep their built-in id. The table should be installed before any
// string with the same content is created.
func (vm *VM) RegisterExternalMagicStrings(strs []string) {
	ext := &externalMagic{index: make(map[string]uint32, len(strs))}
	for _, s := range strs {
		b := utf8ToCESU8([]byte(s))
		if _, ok := lookupMagic(b); ok {
			continue
		}
		if _, ok := ext.index[string(b)]; ok {
			continue
		}
		if _, ok := parseArrayIndex(b); ok {
			continue
		}
		ext.index[string(b)] = uint32(len(ext.bytes))
		ext.bytes = append(ext.bytes, b)
		ext.hashes = append(ext.hashes, stringHash(b))
		ext.lengths = append(ext.lengths, cesu8Length(b))
		if len(b) > ext.maxSize {
			ext.maxSize = len(b)
		}
	}
	vm.externalMagic = ext
}

func (vm *VM) lookupExternalMagic(b []byte) (uint32, bool) {
	ext := vm.externalMagic
	if ext == nil || len(b) > ext.maxSize {
		return 0, false
	}
	id, ok := ext.index[string(b)]
	return id, ok
}
