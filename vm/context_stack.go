package vm

import "math"

// ---------------------------------------------------------------------------
// Control-flow context records
// ---------------------------------------------------------------------------
//
// Structured constructs push a record onto the frame stack directly above
// the registers and any enclosing records; operands live above the records.
// The top slot of a record is its header, an internal value carrying the
// record type and the code offset where the construct ends.
//
//   try, catch, finally-*: [aux, header]
//   with:                  [header]
//   super-class:           [env, header]
//   for-in:                [object, index, collection, header]

// Internal value kinds
const (
	internalContext    uint64 = 1
	internalCollection uint64 = 2
)

type contextType uint8

const (
	ctxTry contextType = iota
	ctxCatch
	ctxFinallyJump
	ctxFinallyThrow
	ctxFinallyReturn
	ctxWith
	ctxForIn
	ctxSuperClass
)

var contextSlots = [...]int{
	ctxTry:           2,
	ctxCatch:         2,
	ctxFinallyJump:   2,
	ctxFinallyThrow:  2,
	ctxFinallyReturn: 2,
	ctxWith:          1,
	ctxForIn:         4,
	ctxSuperClass:    2,
}

func contextHeader(typ contextType, end int) Value {
	return makeInternal(internalContext, uint8(typ), uint32(end))
}

func headerType(h Value) contextType { return contextType(h.internalAux()) }

func headerEnd(h Value) int { return int(h.payload()) }

// continuation is the pending outcome a finally block resumes with.
type continuation uint8

const (
	contJump continuation = iota
	contThrow
	contReturn
)

// contextBase is the stack index just above the context records.
func (f *frame) contextBase() int { return f.unit.registerEnd + f.contextDepth }

// topHeader returns the header of the innermost record.
func (f *frame) topHeader() Value { return f.stack[f.contextBase()-1] }

// pushContext inserts a record at the top of the context area. Operands
// already on the stack are moved above it.
func (f *frame) pushContext(slots ...Value) {
	base := f.contextBase()
	n := len(slots)
	f.stack = append(f.stack, slots...)
	copy(f.stack[base+n:], f.stack[base:len(f.stack)-n])
	copy(f.stack[base:], slots)
	f.contextDepth += n
}

// dropContext removes the innermost record without releasing its slots,
// moving any operands above it down.
func (f *frame) dropContext() {
	base := f.contextBase()
	n := contextSlots[headerType(f.stack[base-1])]
	copy(f.stack[base-n:], f.stack[base:])
	f.stack = f.stack[:len(f.stack)-n]
	f.contextDepth -= n
}

// ---------------------------------------------------------------------------
// Environments owned by contexts
// ---------------------------------------------------------------------------

// pushEnv makes env the current environment. The frame takes over the
// reference the caller holds on env.
func (vm *VM) pushEnv(f *frame, env *Object) {
	vm.derefObject(f.env)
	f.env = env
}

// popEnv restores the environment enclosing the current one.
func (vm *VM) popEnv(f *frame) {
	outer := vm.outerEnv(f.env)
	if outer == nil {
		vm.fatal(FatalUnreachable)
	}
	vm.refObject(outer)
	vm.derefObject(f.env)
	f.env = outer
}

// ---------------------------------------------------------------------------
// Abort
// ---------------------------------------------------------------------------

// contextAbort tears down the innermost record: environments installed by
// with, catch and super-class records are popped, for-in iterators are
// released together with their object, and pending finally values are
// freed.
func (vm *VM) contextAbort(f *frame) {
	base := f.contextBase()
	h := f.stack[base-1]
	switch headerType(h) {
	case ctxCatch:
		vm.popEnv(f)
	case ctxFinallyThrow, ctxFinallyReturn:
		vm.FreeValue(f.stack[base-2])
	case ctxWith:
		vm.popEnv(f)
	case ctxSuperClass:
		vm.popEnv(f)
	case ctxForIn:
		vm.freeCollection(f.stack[base-2])
		vm.FreeValue(f.stack[base-4])
	}
	f.dropContext()
}

// abortAllContexts aborts every record of the frame.
func (vm *VM) abortAllContexts(f *frame) {
	for f.contextDepth > 0 {
		vm.contextAbort(f)
	}
}

// ---------------------------------------------------------------------------
// find_finally
// ---------------------------------------------------------------------------

// findFinally walks the records top-down looking for a handler for a
// continuation leaving the current position. searchLimit is the target of
// a jump; throws and returns search every record. value is the returned
// value for contReturn and is stored in the record when a finally block
// takes over; the pending exception is moved into the record for contThrow.
//
// When a handler is found the record is rewritten in place, f.ip points at
// the handler and true is returned. Records without a handler are aborted
// on the way; when none is found the continuation belongs to the caller.
func (vm *VM) findFinally(f *frame, kind continuation, searchLimit int, value Value) bool {
	if kind != contJump {
		searchLimit = math.MaxInt
	}
	code := f.unit.code
	wide := f.unit.wide()

	for f.contextDepth > 0 {
		base := f.contextBase()
		h := f.stack[base-1]
		typ, end := headerType(h), headerEnd(h)

		if kind == contJump && searchLimit < end {
			return false
		}
		if typ != ctxTry && typ != ctxCatch {
			vm.contextAbort(f)
			continue
		}
		if kind == contJump && searchLimit == end {
			return false
		}

		ins, _ := decodeInstruction(code, end, wide)
		if typ == ctxTry && ins.ext && ins.info.group == groupCatch {
			if kind == contThrow {
				f.stack[base-1] = contextHeader(ctxCatch, ins.target())
				f.ip = ins.next
				return true
			}
			ins, _ = decodeInstruction(code, ins.target(), wide)
		}
		if typ == ctxCatch {
			vm.popEnv(f)
		}

		if ins.ext && ins.info.group == groupFinally {
			var aux Value
			var ftyp contextType
			switch kind {
			case contJump:
				ftyp, aux = ctxFinallyJump, IntegerValue(int32(searchLimit))
			case contThrow:
				ftyp, aux = ctxFinallyThrow, vm.takeException()
			default:
				ftyp, aux = ctxFinallyReturn, value
			}
			f.stack[base-2] = aux
			f.stack[base-1] = contextHeader(ftyp, ins.target())
			f.ip = ins.next
			return true
		}
		f.dropContext()
	}
	return false
}
