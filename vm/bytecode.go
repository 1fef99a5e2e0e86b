package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is a base instruction. OpExt is followed by an ExtOpcode byte.
type Opcode byte

// ExtOpcode is an instruction of the extended table.
type ExtOpcode byte

// Stack and constants
const (
	OpNop Opcode = iota
	OpExt
	OpPop
	OpPopBlock
	OpPushUndefined
	OpPushNull
	OpPushTrue
	OpPushFalse
	OpPushThis
	OpPushNumber0
	OpPushNumberPosByte // byte n pushes n+1
	OpPushNumberNegByte // byte n pushes -(n+1)
	OpPushLiteral
	OpPushTwoLiterals
	OpPushThisLiteral
	OpPushObject
	OpPushArray
	OpArrayAppend // byte count: [array, v1..vn] -> [array]
	OpSetProperty // literal name: [obj, value] -> [obj]
	OpSetComputedProperty
	OpSetGetter
	OpSetSetter

	// References: [base, name, value]
	OpPushIdentReference
	OpPushPropReference
	OpPushPropLiteralReference

	OpPropGet
	OpPropLiteralGet
	OpPropLiteralLiteralGet
	OpPropThisLiteralGet

	// Assignment
	OpAssign // [base, name, value] -> []
	OpAssignPushResult
	OpAssignBlock
	OpAssignSetIdent
	OpAssignSetIdentPushResult
	OpAssignSetIdentBlock
	OpAssignLiteralSetIdent
	OpAssignPropLiteral // literal name: [obj, value] -> []
	OpAssignPropLiteralPushResult

	OpDeletePushResult
	OpDeleteIdentPushResult
	OpTypeof
	OpTypeofIdent

	// Unary operators
	OpPlus
	OpNegate
	OpLogicalNot
	OpBitNot
	OpVoid
)

// Binary operators. Each has a stack form, a form whose right operand is a
// literal, and a form with two literal operands.
const (
	OpBitOr Opcode = OpVoid + 1 + iota*3
	OpBitXor
	OpBitAnd
	OpEqual
	OpNotEqual
	OpStrictEqual
	OpStrictNotEqual
	OpLess
	OpGreater
	OpLessEqual
	OpGreaterEqual
	OpIn
	OpInstanceof
	OpLeftShift
	OpRightShift
	OpUnsRightShift
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpExp

	binaryFirst = OpBitOr
	binaryCount = 22
)

// Increment and decrement. Each has a reference form (operating on a
// pushed reference) and an identifier form, each with a variant that also
// pushes the result.
const (
	OpPreIncr Opcode = OpBitOr + binaryCount*3 + iota*4
	OpPreDecr
	OpPostIncr
	OpPostDecr

	incrDecrFirst = OpPreIncr
)

// Control flow. Every branch opcode has 1, 2 and 3 byte offset variants at
// consecutive values.
const (
	OpJumpForward Opcode = OpPreIncr + 16 + iota*3
	OpJumpBackward
	OpBranchIfTrueForward
	OpBranchIfTrueBackward
	OpBranchIfFalseForward
	OpBranchIfFalseBackward
	OpBranchIfLogicalTrue
	OpBranchIfLogicalFalse
	OpBranchIfStrictEqual
	OpJumpForwardExitContext
)

// Calls, returns, declarations
const (
	OpCall Opcode = OpJumpForwardExitContext + 3 + iota // byte argc: [func, args] -> result
	OpCallPushResult
	OpCallBlock
	OpCallProp // byte argc: [this, name, func, args] -> result
	OpCallPropPushResult
	OpCallPropBlock
	OpNew // byte argc: [ctor, args] -> object
	OpReturn
	OpReturnWithBlock
	OpReturnWithLiteral
	OpThrow
	OpDefineVar
	OpInitializeVar
	OpContextEnd

	opCount
)

// Extended opcodes
const (
	ExtNop ExtOpcode = iota
	ExtTryCreateContext
	ExtTryCreateContext2
	ExtTryCreateContext3
	ExtCatch
	ExtCatch2
	ExtCatch3
	ExtFinally
	ExtFinally2
	ExtFinally3
	ExtWithCreateContext
	ExtWithCreateContext2
	ExtWithCreateContext3
	ExtForInCreateContext
	ExtForInCreateContext2
	ExtForInCreateContext3
	ExtForInHasNext
	ExtForInHasNext2
	ExtForInHasNext3
	ExtSuperClassCreateContext
	ExtSuperClassCreateContext2
	ExtSuperClassCreateContext3
	ExtForInGetNext
	ExtClassContextEnd // byte: 1 if a super-class context is open
	ExtPushImplicitConstructor
	ExtInitializeClass // literal name: [ctor] -> [class, prototype]
	ExtSetClassMethod  // literal name: [class, prototype, fn] -> [class, prototype]
	ExtSetStaticMethod
	ExtSuperCall // byte argc: [args] -> result
	ExtSuperPropLiteralReference
	ExtResolveBase

	extCount
)

// ---------------------------------------------------------------------------
// Operand-shape descriptors
// ---------------------------------------------------------------------------

// OpFlags describe the operand bytes that follow an opcode.
type OpFlags uint8

const (
	ArgLiteral  OpFlags = 1 << iota // literal index
	ArgLiteral2                     // second literal index
	ArgByte                         // one byte
	ArgBranch                       // branch offset, OpInfo.BranchBytes long
	ArgBackward                     // the branch offset is subtracted
)

// GetMode says where the operands of an instruction come from.
type GetMode uint8

const (
	GetNone GetMode = iota
	GetLiteral
	GetStack
	GetStackStack
	GetStackLiteral
	GetLiteralLiteral
	GetThisLiteral
)

// PutMode says where the result of an instruction goes.
type PutMode uint8

const (
	PutNone      PutMode = 0
	PutStack     PutMode = 1 << 0
	PutBlock     PutMode = 1 << 1
	PutIdent     PutMode = 1 << 2
	PutReference PutMode = 1 << 3
)

type opGroup uint8

const (
	groupNop opGroup = iota
	groupPop
	groupPushConst
	groupPushNumber
	groupPushLiteral
	groupPushTwoLiterals
	groupPushThisLiteral
	groupPushObject
	groupPushArray
	groupArrayAppend
	groupSetProperty
	groupSetComputedProperty
	groupSetAccessor
	groupPushIdentReference
	groupPushPropReference
	groupPropGet
	groupAssign
	groupAssignPropLiteral
	groupDelete
	groupDeleteIdent
	groupTypeof
	groupTypeofIdent
	groupUnary
	groupBinary
	groupIncrDecr
	groupJump
	groupBranchIfTrue
	groupBranchIfFalse
	groupBranchIfLogicalTrue
	groupBranchIfLogicalFalse
	groupBranchIfStrictEqual
	groupJumpExitContext
	groupCall
	groupCallProp
	groupNew
	groupReturn
	groupReturnBlock
	groupThrow
	groupDefineVar
	groupInitializeVar
	groupContextEnd

	groupTryCreate
	groupCatch
	groupFinally
	groupWithCreate
	groupForInCreate
	groupForInGetNext
	groupForInHasNext
	groupSuperClassCreate
	groupClassContextEnd
	groupPushImplicitConstructor
	groupInitializeClass
	groupSetClassMethod
	groupSuperCall
	groupSuperPropReference
	groupResolveBase
)

// OpInfo is the operand-shape descriptor of an opcode.
type OpInfo struct {
	Name        string
	Flags       OpFlags
	BranchBytes int
	Get         GetMode
	Put         PutMode

	group opGroup
	arg   uint8 // group specific: constant, operator or variant
}

var (
	baseInfo [256]OpInfo
	extInfo  [256]OpInfo
)

func defineBase(op Opcode, info OpInfo) { baseInfo[op] = info }

func defineExt(op ExtOpcode, info OpInfo) { extInfo[op] = info }

// Binary operator ids (OpInfo.arg of groupBinary)
const (
	binBitOr uint8 = iota
	binBitXor
	binBitAnd
	binEqual
	binNotEqual
	binStrictEqual
	binStrictNotEqual
	binLess
	binGreater
	binLessEqual
	binGreaterEqual
	binIn
	binInstanceof
	binLeftShift
	binRightShift
	binUnsRightShift
	binAdd
	binSub
	binMul
	binDiv
	binMod
	binExp
)

var binaryNames = [binaryCount]string{
	"BIT_OR", "BIT_XOR", "BIT_AND", "EQUAL", "NOT_EQUAL", "STRICT_EQUAL",
	"STRICT_NOT_EQUAL", "LESS", "GREATER", "LESS_EQUAL", "GREATER_EQUAL", "IN",
	"INSTANCEOF", "LEFT_SHIFT", "RIGHT_SHIFT", "UNS_RIGHT_SHIFT", "ADD", "SUB",
	"MUL", "DIV", "MOD", "EXP",
}

// Unary operator ids
const (
	unaryPlus uint8 = iota
	unaryNegate
	unaryLogicalNot
	unaryBitNot
	unaryVoid
)

// Increment/decrement variants
const (
	incrPre  uint8 = 0
	incrPost uint8 = 1 << 1
	incrDecr uint8 = 1 << 0
)

func defineBranches(first Opcode, name string, flags OpFlags, get GetMode, group opGroup) {
	for w := 0; w < 3; w++ {
		n := name
		if w > 0 {
			n = fmt.Sprintf("%s_%d", name, w+1)
		}
		defineBase(first+Opcode(w), OpInfo{Name: n, Flags: flags | ArgBranch, BranchBytes: w + 1, Get: get, group: group})
	}
}

func defineExtBranches(first ExtOpcode, name string, flags OpFlags, get GetMode, group opGroup) {
	for w := 0; w < 3; w++ {
		n := name
		if w > 0 {
			n = fmt.Sprintf("%s_%d", name, w+1)
		}
		defineExt(first+ExtOpcode(w), OpInfo{Name: n, Flags: flags | ArgBranch, BranchBytes: w + 1, Get: get, group: group})
	}
}

func init() {
	for i := range baseInfo {
		baseInfo[i].Name = fmt.Sprintf("UNKNOWN_%02X", i)
		extInfo[i].Name = fmt.Sprintf("EXT_UNKNOWN_%02X", i)
	}

	defineBase(OpNop, OpInfo{Name: "NOP", group: groupNop})
	defineBase(OpExt, OpInfo{Name: "EXT"})
	defineBase(OpPop, OpInfo{Name: "POP", Get: GetStack, group: groupPop})
	defineBase(OpPopBlock, OpInfo{Name: "POP_BLOCK", Get: GetStack, Put: PutBlock, group: groupPop})
	defineBase(OpPushUndefined, OpInfo{Name: "PUSH_UNDEFINED", Put: PutStack, group: groupPushConst, arg: 0})
	defineBase(OpPushNull, OpInfo{Name: "PUSH_NULL", Put: PutStack, group: groupPushConst, arg: 1})
	defineBase(OpPushTrue, OpInfo{Name: "PUSH_TRUE", Put: PutStack, group: groupPushConst, arg: 2})
	defineBase(OpPushFalse, OpInfo{Name: "PUSH_FALSE", Put: PutStack, group: groupPushConst, arg: 3})
	defineBase(OpPushThis, OpInfo{Name: "PUSH_THIS", Put: PutStack, group: groupPushConst, arg: 4})
	defineBase(OpPushNumber0, OpInfo{Name: "PUSH_NUMBER_0", Put: PutStack, group: groupPushNumber, arg: 0})
	defineBase(OpPushNumberPosByte, OpInfo{Name: "PUSH_NUMBER_POS_BYTE", Flags: ArgByte, Put: PutStack, group: groupPushNumber, arg: 1})
	defineBase(OpPushNumberNegByte, OpInfo{Name: "PUSH_NUMBER_NEG_BYTE", Flags: ArgByte, Put: PutStack, group: groupPushNumber, arg: 2})
	defineBase(OpPushLiteral, OpInfo{Name: "PUSH_LITERAL", Flags: ArgLiteral, Get: GetLiteral, Put: PutStack, group: groupPushLiteral})
	defineBase(OpPushTwoLiterals, OpInfo{Name: "PUSH_TWO_LITERALS", Flags: ArgLiteral | ArgLiteral2, Get: GetLiteralLiteral, group: groupPushTwoLiterals})
	defineBase(OpPushThisLiteral, OpInfo{Name: "PUSH_THIS_LITERAL", Flags: ArgLiteral, Get: GetThisLiteral, group: groupPushThisLiteral})
	defineBase(OpPushObject, OpInfo{Name: "PUSH_OBJECT", Put: PutStack, group: groupPushObject})
	defineBase(OpPushArray, OpInfo{Name: "PUSH_ARRAY", Put: PutStack, group: groupPushArray})
	defineBase(OpArrayAppend, OpInfo{Name: "ARRAY_APPEND", Flags: ArgByte, group: groupArrayAppend})
	defineBase(OpSetProperty, OpInfo{Name: "SET_PROPERTY", Flags: ArgLiteral, Get: GetStack, group: groupSetProperty})
	defineBase(OpSetComputedProperty, OpInfo{Name: "SET_COMPUTED_PROPERTY", Get: GetStackStack, group: groupSetComputedProperty})
	defineBase(OpSetGetter, OpInfo{Name: "SET_GETTER", Flags: ArgLiteral, Get: GetStack, group: groupSetAccessor, arg: 0})
	defineBase(OpSetSetter, OpInfo{Name: "SET_SETTER", Flags: ArgLiteral, Get: GetStack, group: groupSetAccessor, arg: 1})

	defineBase(OpPushIdentReference, OpInfo{Name: "PUSH_IDENT_REFERENCE", Flags: ArgLiteral, group: groupPushIdentReference})
	defineBase(OpPushPropReference, OpInfo{Name: "PUSH_PROP_REFERENCE", group: groupPushPropReference, arg: 0})
	defineBase(OpPushPropLiteralReference, OpInfo{Name: "PUSH_PROP_LITERAL_REFERENCE", Flags: ArgLiteral, group: groupPushPropReference, arg: 1})

	defineBase(OpPropGet, OpInfo{Name: "PROP_GET", Get: GetStackStack, Put: PutStack, group: groupPropGet})
	defineBase(OpPropLiteralGet, OpInfo{Name: "PROP_LITERAL_GET", Flags: ArgLiteral, Get: GetStackLiteral, Put: PutStack, group: groupPropGet})
	defineBase(OpPropLiteralLiteralGet, OpInfo{Name: "PROP_LITERAL_LITERAL_GET", Flags: ArgLiteral | ArgLiteral2, Get: GetLiteralLiteral, Put: PutStack, group: groupPropGet})
	defineBase(OpPropThisLiteralGet, OpInfo{Name: "PROP_THIS_LITERAL_GET", Flags: ArgLiteral, Get: GetThisLiteral, Put: PutStack, group: groupPropGet})

	defineBase(OpAssign, OpInfo{Name: "ASSIGN", Get: GetStack, Put: PutReference, group: groupAssign})
	defineBase(OpAssignPushResult, OpInfo{Name: "ASSIGN_PUSH_RESULT", Get: GetStack, Put: PutReference | PutStack, group: groupAssign})
	defineBase(OpAssignBlock, OpInfo{Name: "ASSIGN_BLOCK", Get: GetStack, Put: PutReference | PutBlock, group: groupAssign})
	defineBase(OpAssignSetIdent, OpInfo{Name: "ASSIGN_SET_IDENT", Flags: ArgLiteral, Get: GetStack, Put: PutIdent, group: groupAssign})
	defineBase(OpAssignSetIdentPushResult, OpInfo{Name: "ASSIGN_SET_IDENT_PUSH_RESULT", Flags: ArgLiteral, Get: GetStack, Put: PutIdent | PutStack, group: groupAssign})
	defineBase(OpAssignSetIdentBlock, OpInfo{Name: "ASSIGN_SET_IDENT_BLOCK", Flags: ArgLiteral, Get: GetStack, Put: PutIdent | PutBlock, group: groupAssign})
	defineBase(OpAssignLiteralSetIdent, OpInfo{Name: "ASSIGN_LITERAL_SET_IDENT", Flags: ArgLiteral | ArgLiteral2, Get: GetLiteral, Put: PutIdent, group: groupAssign})
	defineBase(OpAssignPropLiteral, OpInfo{Name: "ASSIGN_PROP_LITERAL", Flags: ArgLiteral, Get: GetStack, group: groupAssignPropLiteral})
	defineBase(OpAssignPropLiteralPushResult, OpInfo{Name: "ASSIGN_PROP_LITERAL_PUSH_RESULT", Flags: ArgLiteral, Get: GetStack, Put: PutStack, group: groupAssignPropLiteral})

	defineBase(OpDeletePushResult, OpInfo{Name: "DELETE_PUSH_RESULT", Get: GetStackStack, Put: PutStack, group: groupDelete})
	defineBase(OpDeleteIdentPushResult, OpInfo{Name: "DELETE_IDENT_PUSH_RESULT", Flags: ArgLiteral, Put: PutStack, group: groupDeleteIdent})
	defineBase(OpTypeof, OpInfo{Name: "TYPEOF", Get: GetStack, Put: PutStack, group: groupTypeof})
	defineBase(OpTypeofIdent, OpInfo{Name: "TYPEOF_IDENT", Flags: ArgLiteral, Put: PutStack, group: groupTypeofIdent})

	defineBase(OpPlus, OpInfo{Name: "PLUS", Get: GetStack, Put: PutStack, group: groupUnary, arg: unaryPlus})
	defineBase(OpNegate, OpInfo{Name: "NEGATE", Get: GetStack, Put: PutStack, group: groupUnary, arg: unaryNegate})
	defineBase(OpLogicalNot, OpInfo{Name: "LOGICAL_NOT", Get: GetStack, Put: PutStack, group: groupUnary, arg: unaryLogicalNot})
	defineBase(OpBitNot, OpInfo{Name: "BIT_NOT", Get: GetStack, Put: PutStack, group: groupUnary, arg: unaryBitNot})
	defineBase(OpVoid, OpInfo{Name: "VOID", Get: GetStack, Put: PutStack, group: groupUnary, arg: unaryVoid})

	for i := 0; i < binaryCount; i++ {
		op := binaryFirst + Opcode(i*3)
		name := binaryNames[i]
		defineBase(op, OpInfo{Name: name, Get: GetStackStack, Put: PutStack, group: groupBinary, arg: uint8(i)})
		defineBase(op+1, OpInfo{Name: name + "_RIGHT_LITERAL", Flags: ArgLiteral, Get: GetStackLiteral, Put: PutStack, group: groupBinary, arg: uint8(i)})
		defineBase(op+2, OpInfo{Name: name + "_TWO_LITERALS", Flags: ArgLiteral | ArgLiteral2, Get: GetLiteralLiteral, Put: PutStack, group: groupBinary, arg: uint8(i)})
	}

	incrNames := [4]string{"PRE_INCR", "PRE_DECR", "POST_INCR", "POST_DECR"}
	for i, name := range incrNames {
		op := incrDecrFirst + Opcode(i*4)
		arg := uint8(i)
		defineBase(op, OpInfo{Name: name, Get: GetStack, Put: PutReference, group: groupIncrDecr, arg: arg})
		defineBase(op+1, OpInfo{Name: name + "_PUSH_RESULT", Get: GetStack, Put: PutReference | PutStack, group: groupIncrDecr, arg: arg})
		defineBase(op+2, OpInfo{Name: name + "_IDENT", Flags: ArgLiteral, Get: GetLiteral, Put: PutIdent, group: groupIncrDecr, arg: arg})
		defineBase(op+3, OpInfo{Name: name + "_IDENT_PUSH_RESULT", Flags: ArgLiteral, Get: GetLiteral, Put: PutIdent | PutStack, group: groupIncrDecr, arg: arg})
	}

	defineBranches(OpJumpForward, "JUMP_FORWARD", 0, GetNone, groupJump)
	defineBranches(OpJumpBackward, "JUMP_BACKWARD", ArgBackward, GetNone, groupJump)
	defineBranches(OpBranchIfTrueForward, "BRANCH_IF_TRUE_FORWARD", 0, GetStack, groupBranchIfTrue)
	defineBranches(OpBranchIfTrueBackward, "BRANCH_IF_TRUE_BACKWARD", ArgBackward, GetStack, groupBranchIfTrue)
	defineBranches(OpBranchIfFalseForward, "BRANCH_IF_FALSE_FORWARD", 0, GetStack, groupBranchIfFalse)
	defineBranches(OpBranchIfFalseBackward, "BRANCH_IF_FALSE_BACKWARD", ArgBackward, GetStack, groupBranchIfFalse)
	defineBranches(OpBranchIfLogicalTrue, "BRANCH_IF_LOGICAL_TRUE", 0, GetNone, groupBranchIfLogicalTrue)
	defineBranches(OpBranchIfLogicalFalse, "BRANCH_IF_LOGICAL_FALSE", 0, GetNone, groupBranchIfLogicalFalse)
	defineBranches(OpBranchIfStrictEqual, "BRANCH_IF_STRICT_EQUAL", 0, GetStack, groupBranchIfStrictEqual)
	defineBranches(OpJumpForwardExitContext, "JUMP_FORWARD_EXIT_CONTEXT", 0, GetNone, groupJumpExitContext)

	defineBase(OpCall, OpInfo{Name: "CALL", Flags: ArgByte, group: groupCall})
	defineBase(OpCallPushResult, OpInfo{Name: "CALL_PUSH_RESULT", Flags: ArgByte, Put: PutStack, group: groupCall})
	defineBase(OpCallBlock, OpInfo{Name: "CALL_BLOCK", Flags: ArgByte, Put: PutBlock, group: groupCall})
	defineBase(OpCallProp, OpInfo{Name: "CALL_PROP", Flags: ArgByte, group: groupCallProp})
	defineBase(OpCallPropPushResult, OpInfo{Name: "CALL_PROP_PUSH_RESULT", Flags: ArgByte, Put: PutStack, group: groupCallProp})
	defineBase(OpCallPropBlock, OpInfo{Name: "CALL_PROP_BLOCK", Flags: ArgByte, Put: PutBlock, group: groupCallProp})
	defineBase(OpNew, OpInfo{Name: "NEW", Flags: ArgByte, Put: PutStack, group: groupNew})
	defineBase(OpReturn, OpInfo{Name: "RETURN", Get: GetStack, group: groupReturn})
	defineBase(OpReturnWithBlock, OpInfo{Name: "RETURN_WITH_BLOCK", group: groupReturnBlock})
	defineBase(OpReturnWithLiteral, OpInfo{Name: "RETURN_WITH_LITERAL", Flags: ArgLiteral, Get: GetLiteral, group: groupReturn})
	defineBase(OpThrow, OpInfo{Name: "THROW", Get: GetStack, group: groupThrow})
	defineBase(OpDefineVar, OpInfo{Name: "DEFINE_VAR", Flags: ArgLiteral, group: groupDefineVar})
	defineBase(OpInitializeVar, OpInfo{Name: "INITIALIZE_VAR", Flags: ArgLiteral | ArgLiteral2, group: groupInitializeVar})
	defineBase(OpContextEnd, OpInfo{Name: "CONTEXT_END", group: groupContextEnd})

	defineExt(ExtNop, OpInfo{Name: "EXT_NOP", group: groupNop})
	defineExtBranches(ExtTryCreateContext, "TRY_CREATE_CONTEXT", 0, GetNone, groupTryCreate)
	defineExtBranches(ExtCatch, "CATCH", 0, GetNone, groupCatch)
	defineExtBranches(ExtFinally, "FINALLY", 0, GetNone, groupFinally)
	defineExtBranches(ExtWithCreateContext, "WITH_CREATE_CONTEXT", 0, GetStack, groupWithCreate)
	defineExtBranches(ExtForInCreateContext, "FOR_IN_CREATE_CONTEXT", 0, GetStack, groupForInCreate)
	defineExtBranches(ExtForInHasNext, "FOR_IN_HAS_NEXT", ArgBackward, GetNone, groupForInHasNext)
	defineExtBranches(ExtSuperClassCreateContext, "SUPER_CLASS_CREATE_CONTEXT", 0, GetStack, groupSuperClassCreate)
	defineExt(ExtForInGetNext, OpInfo{Name: "FOR_IN_GET_NEXT", Put: PutStack, group: groupForInGetNext})
	defineExt(ExtClassContextEnd, OpInfo{Name: "CLASS_CONTEXT_END", Flags: ArgByte, group: groupClassContextEnd})
	defineExt(ExtPushImplicitConstructor, OpInfo{Name: "PUSH_IMPLICIT_CONSTRUCTOR", Put: PutStack, group: groupPushImplicitConstructor})
	defineExt(ExtInitializeClass, OpInfo{Name: "INITIALIZE_CLASS", Flags: ArgLiteral, Get: GetStack, group: groupInitializeClass})
	defineExt(ExtSetClassMethod, OpInfo{Name: "SET_CLASS_METHOD", Flags: ArgLiteral, Get: GetStack, group: groupSetClassMethod, arg: 0})
	defineExt(ExtSetStaticMethod, OpInfo{Name: "SET_STATIC_METHOD", Flags: ArgLiteral, Get: GetStack, group: groupSetClassMethod, arg: 1})
	defineExt(ExtSuperCall, OpInfo{Name: "SUPER_CALL", Flags: ArgByte, Put: PutStack, group: groupSuperCall})
	defineExt(ExtSuperPropLiteralReference, OpInfo{Name: "SUPER_PROP_LITERAL_REFERENCE", Flags: ArgLiteral, group: groupSuperPropReference})
	defineExt(ExtResolveBase, OpInfo{Name: "RESOLVE_BASE", Flags: ArgLiteral, group: groupResolveBase})
}

// Info returns the descriptor of a base opcode.
func (op Opcode) Info() OpInfo { return baseInfo[op] }

// String implements the Stringer interface.
func (op Opcode) String() string { return baseInfo[op].Name }

// Info returns the descriptor of an extended opcode.
func (op ExtOpcode) Info() OpInfo { return extInfo[op] }

// String implements the Stringer interface.
func (op ExtOpcode) String() string { return extInfo[op].Name }

// ---------------------------------------------------------------------------
// Operand encoding
// ---------------------------------------------------------------------------

// Literal index encodings. Small units use one byte below smallLiteralLimit
// and two bytes (biased by smallLiteralBias) otherwise; units flagged
// UnitUint16Arguments use one byte below wideLiteralLimit.
const (
	smallLiteralLimit = 255
	smallLiteralBias  = 0xFE01
	smallLiteralMax   = 0xFFFF - smallLiteralBias
	wideLiteralLimit  = 128
	wideLiteralBias   = 0x8000
	wideLiteralMax    = 0xFFFF - wideLiteralBias
)

// decodeLiteral reads a literal index at code[pos].
func decodeLiteral(code []byte, pos int, wide bool) (index, size int) {
	b0 := int(code[pos])
	if wide {
		if b0 < wideLiteralLimit {
			return b0, 1
		}
		return (b0<<8 | int(code[pos+1])) - wideLiteralBias, 2
	}
	if b0 < smallLiteralLimit {
		return b0, 1
	}
	return (b0<<8 | int(code[pos+1])) - smallLiteralBias, 2
}

// appendLiteral encodes a literal index.
func appendLiteral(code []byte, index int, wide bool) []byte {
	if wide {
		if index < wideLiteralLimit {
			return append(code, byte(index))
		}
		v := index + wideLiteralBias
		return append(code, byte(v>>8), byte(v))
	}
	if index < smallLiteralLimit {
		return append(code, byte(index))
	}
	v := index + smallLiteralBias
	return append(code, byte(v>>8), byte(v))
}

// decodeBranch reads a big-endian branch offset of n bytes.
func decodeBranch(code []byte, pos, n int) int {
	off := 0
	for i := 0; i < n; i++ {
		off = off<<8 | int(code[pos+i])
	}
	return off
}

// branchBytesFor returns the offset width needed for off.
func branchBytesFor(off int) int {
	switch {
	case off <= 0xFF:
		return 1
	case off <= 0xFFFF:
		return 2
	}
	return 3
}

// maxBranchOffset is the largest encodable branch offset.
const maxBranchOffset = 0xFFFFFF
