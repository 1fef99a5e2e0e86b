package vm

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

// frame is the execution state of one run of a unit. stack holds the
// registers, then the context records, then the operands; every value on
// it is a counted reference.
type frame struct {
	unit         *Unit
	ip           int
	stack        []Value
	contextDepth int
	env          *Object // current environment, one reference owned
	varEnv       *Object // environment receiving var declarations
	this         Value
	blockResult  Value
	fn           *Object
	strict       bool

	call   pendingCall
	result Value
}

// pendingCall describes a call the loop handed to the execution driver.
type pendingCall struct {
	group opGroup
	argc  int
	put   PutMode
}

type stepResult uint8

const (
	stepThrow stepResult = iota
	stepReturn
	stepCall
	stepNext
)

func (f *frame) push(v Value) { f.stack = append(f.stack, v) }

func (f *frame) pop() Value {
	n := len(f.stack) - 1
	v := f.stack[n]
	f.stack = f.stack[:n]
	return v
}

func (f *frame) peek() Value { return f.stack[len(f.stack)-1] }

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// fetchLiteral returns a new reference to the value of a literal operand:
// a register, the value of an identifier, a constant, or a new closure.
func (vm *VM) fetchLiteral(f *frame, idx int) Value {
	u := f.unit
	switch {
	case idx < u.registerEnd:
		return vm.CopyValue(f.stack[idx])
	case idx < u.identEnd:
		return vm.resolveReferenceValue(f.env, u.literal(idx))
	case idx < u.constEnd:
		return vm.CopyValue(u.literal(idx))
	}
	return vm.createFunction(u.functions[idx-u.constEnd], f.env.self, f.this).self
}

// literalName returns a new reference to a literal operand used as a
// property name.
func (vm *VM) literalName(f *frame, idx int) Value {
	u := f.unit
	switch {
	case idx < u.registerEnd:
		return vm.toPropertyKey(f.stack[idx])
	case idx < u.constEnd:
		v := u.literal(idx)
		if v.IsPropertyName() {
			return vm.CopyValue(v)
		}
		return vm.toPropertyKey(v)
	}
	return vm.throwTypeError("function literal used as a property name")
}

// storeRegister replaces a register value. value is copied.
func (vm *VM) storeRegister(f *frame, idx int, value Value) {
	old := f.stack[idx]
	f.stack[idx] = vm.CopyValue(value)
	vm.FreeValue(old)
}

// storeIdent assigns a register or identifier operand.
func (vm *VM) storeIdent(f *frame, idx int, value Value) Value {
	if idx < f.unit.registerEnd {
		vm.storeRegister(f, idx, value)
		return Empty
	}
	return vm.putIdentifier(f.env, f.unit.literal(idx), value, f.strict)
}

// storeReference assigns through a [base, name] reference taken off the
// stack.
func (vm *VM) storeReference(f *frame, base, name, value Value) Value {
	if base == RegisterRef {
		vm.storeRegister(f, int(name.Integer()), value)
		return Empty
	}
	if o := vm.objectOrNil(base); o != nil && o.isLexEnv() {
		return vm.setBinding(o, name, value, f.strict)
	}
	return vm.putValue(base, name, value, f.strict)
}

// pushIdentReference pushes [base, name, value] for an identifier operand.
// Registers use the RegisterRef base with the register index as name.
func (vm *VM) pushIdentReference(f *frame, idx int) Value {
	u := f.unit
	if idx < u.registerEnd {
		v := vm.CopyValue(f.stack[idx])
		f.push(RegisterRef)
		f.push(IntegerValue(int32(idx)))
		f.push(v)
		return Empty
	}
	name := u.literal(idx)
	base := vm.resolveReferenceBase(f.env, name)
	if base == nil {
		return vm.throwReferenceError("%s is not defined", vm.GoString(name))
	}
	var v Value
	if base.kind() == LexObjectBound {
		bound := vm.object(base.bound)
		if v = vm.getProperty(bound, name, bound.self); v.IsError() {
			return v
		}
	} else {
		v = vm.CopyValue(vm.findNamedProperty(base, name).value())
	}
	f.push(vm.CopyValue(base.self))
	f.push(name)
	f.push(v)
	return Empty
}

// pollStop counts a backward branch and consults the stop callback every
// StopFrequency branches. It reports false when the callback asked to
// abort; its value is then the pending exception.
func (vm *VM) pollStop() bool {
	if vm.config.Stop == nil {
		return true
	}
	vm.stopCounter--
	if vm.stopCounter > 0 {
		return true
	}
	vm.stopCounter = vm.config.StopFrequency
	v := vm.config.Stop(vm)
	if v == Undefined {
		return true
	}
	vm.stats.stops++
	vm.raise(v)
	return false
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// dispatch executes instructions until the frame throws, returns, or needs
// a call performed by the driver.
func (vm *VM) dispatch(f *frame) stepResult {
	u := f.unit
	code := u.code
	wide := u.wide()

	for {
		if f.ip >= len(code) {
			vm.abortAllContexts(f)
			if u.Flags&UnitFunction != 0 {
				f.result = Undefined
			} else {
				f.result = f.blockResult
				f.blockResult = Undefined
			}
			return stepReturn
		}

		// Decode
		pos := f.ip
		p := pos + 1
		var info *OpInfo
		if op := Opcode(code[pos]); op == OpExt {
			info = &extInfo[code[p]]
			p++
		} else {
			info = &baseInfo[op]
		}
		var lit1, lit2, byteArg, branch, n int
		if info.Flags&ArgLiteral != 0 {
			lit1, n = decodeLiteral(code, p, wide)
			p += n
		}
		if info.Flags&ArgLiteral2 != 0 {
			lit2, n = decodeLiteral(code, p, wide)
			p += n
		}
		if info.Flags&ArgByte != 0 {
			byteArg = int(code[p])
			p++
		}
		if info.Flags&ArgBranch != 0 {
			branch = decodeBranch(code, p, info.BranchBytes)
			p += info.BranchBytes
			if info.Flags&ArgBackward != 0 {
				branch = -branch
			}
		}
		f.ip = p
		target := pos + branch
		backward := info.Flags&ArgBackward != 0

		// Operands
		left, right := Empty, Empty
		switch info.Get {
		case GetLiteral:
			left = vm.fetchLiteral(f, lit1)
		case GetStack:
			left = f.pop()
		case GetStackStack:
			right = f.pop()
			left = f.pop()
		case GetStackLiteral:
			left = f.pop()
			right = vm.fetchLiteral(f, lit1)
		case GetLiteralLiteral:
			left = vm.fetchLiteral(f, lit1)
			if !left.IsError() {
				right = vm.fetchLiteral(f, lit2)
			}
		case GetThisLiteral:
			left = vm.CopyValue(f.this)
			right = vm.fetchLiteral(f, lit1)
		}
		if left.IsError() || right.IsError() {
			vm.FreeValue(left)
			vm.FreeValue(right)
			return stepThrow
		}

		// Execute
		result, pushed := Empty, Empty
		thrown := false

		switch info.group {
		case groupNop:

		case groupPop:
			result, left = left, Empty

		case groupPushConst:
			switch info.arg {
			case 0:
				result = Undefined
			case 1:
				result = Null
			case 2:
				result = True
			case 3:
				result = False
			default:
				result = vm.CopyValue(f.this)
			}

		case groupPushNumber:
			switch info.arg {
			case 0:
				result = IntegerValue(0)
			case 1:
				result = IntegerValue(int32(byteArg + 1))
			default:
				result = IntegerValue(-int32(byteArg + 1))
			}

		case groupPushLiteral:
			result, left = left, Empty

		case groupPushTwoLiterals, groupPushThisLiteral:
			f.push(left)
			f.push(right)
			left, right = Empty, Empty

		case groupPushObject:
			result = vm.NewObject()

		case groupPushArray:
			result = vm.createArray().self

		case groupArrayAppend:
			top := len(f.stack)
			arr := vm.object(f.stack[top-byteArg-1])
			for _, v := range f.stack[top-byteArg:] {
				vm.arrayAppend(arr, v)
				vm.FreeValue(v)
			}
			f.stack = f.stack[:top-byteArg]

		case groupSetProperty:
			name := vm.literalName(f, lit1)
			if name.IsError() {
				thrown = true
				break
			}
			vm.defineDataProperty(vm.object(f.peek()), name, left, PropDefault)
			vm.FreeValue(name)

		case groupSetComputedProperty:
			name := vm.toPropertyKey(left)
			if name.IsError() {
				thrown = true
				break
			}
			vm.defineDataProperty(vm.object(f.peek()), name, right, PropDefault)
			vm.FreeValue(name)

		case groupSetAccessor:
			name := vm.literalName(f, lit1)
			if name.IsError() {
				thrown = true
				break
			}
			vm.defineAccessor(vm.object(f.peek()), name, left, info.arg == 1)
			vm.FreeValue(name)

		case groupPushIdentReference:
			thrown = vm.pushIdentReference(f, lit1).IsError()

		case groupPushPropReference:
			thrown = vm.pushPropReference(f, info.arg == 1, lit1).IsError()

		case groupPropGet:
			result = vm.getValue(left, right)
			thrown = result.IsError()

		case groupAssign:
			result, left = left, Empty

		case groupAssignPropLiteral:
			obj := f.pop()
			name := vm.literalName(f, lit1)
			if name.IsError() {
				vm.FreeValue(obj)
				thrown = true
				break
			}
			r := vm.putValue(obj, name, left, f.strict)
			vm.FreeValue(name)
			vm.FreeValue(obj)
			if r.IsError() {
				thrown = true
				break
			}
			result, left = left, Empty

		case groupDelete:
			result = vm.deleteValue(left, right, f.strict)
			thrown = result.IsError()

		case groupDeleteIdent:
			if lit1 < u.registerEnd {
				result = False
				break
			}
			result = vm.deleteIdentifier(f.env, u.literal(lit1), f.strict)
			thrown = result.IsError()

		case groupTypeof:
			result = vm.TypeOf(left)

		case groupTypeofIdent:
			if lit1 < u.registerEnd {
				result = vm.TypeOf(f.stack[lit1])
				break
			}
			v, found := vm.lookupIdentifier(f.env, u.literal(lit1))
			if v.IsError() {
				thrown = true
				break
			}
			if found {
				result = vm.TypeOf(v)
				vm.FreeValue(v)
			} else {
				result = MagicValue(MagicUndefined)
			}

		case groupUnary:
			result = vm.unary(info.arg, left)
			thrown = result.IsError()

		case groupBinary:
			result = vm.binary(info.arg, left, right)
			thrown = result.IsError()

		case groupIncrDecr:
			old, r := vm.incrDecr(left, info.arg&incrDecr != 0)
			if r.IsError() {
				vm.FreeValue(old)
				thrown = true
				break
			}
			result = r
			if info.arg&incrPost != 0 {
				pushed = old
			} else {
				vm.FreeValue(old)
			}

		case groupJump:
			if backward && !vm.pollStop() {
				thrown = true
				break
			}
			f.ip = target

		case groupBranchIfTrue, groupBranchIfFalse:
			if vm.ToBoolean(left) == (info.group == groupBranchIfTrue) {
				if backward && !vm.pollStop() {
					thrown = true
					break
				}
				f.ip = target
			}

		case groupBranchIfLogicalTrue, groupBranchIfLogicalFalse:
			if vm.ToBoolean(f.peek()) == (info.group == groupBranchIfLogicalTrue) {
				f.ip = target
			} else {
				vm.FreeValue(f.pop())
			}

		case groupBranchIfStrictEqual:
			if vm.StrictEquals(left, f.peek()) {
				vm.FreeValue(f.pop())
				f.ip = target
			}

		case groupJumpExitContext:
			if f.contextDepth == 0 || !vm.findFinally(f, contJump, target, Empty) {
				f.ip = target
			}

		case groupCall, groupCallProp, groupNew, groupSuperCall:
			f.call = pendingCall{group: info.group, argc: byteArg, put: info.Put}
			return stepCall

		case groupReturn, groupReturnBlock:
			value := left
			if info.group == groupReturnBlock {
				value = f.blockResult
				f.blockResult = Undefined
			}
			left = Empty
			if f.contextDepth > 0 && vm.findFinally(f, contReturn, 0, value) {
				break
			}
			f.result = value
			return stepReturn

		case groupThrow:
			vm.raise(left)
			left = Empty
			thrown = true

		case groupDefineVar:
			if lit1 >= u.registerEnd {
				thrown = vm.declareVar(f.varEnv, u.literal(lit1)).IsError()
			}

		case groupInitializeVar:
			value := vm.fetchLiteral(f, lit2)
			if value.IsError() {
				thrown = true
				break
			}
			if lit1 < u.registerEnd {
				vm.storeRegister(f, lit1, value)
			} else {
				name := u.literal(lit1)
				thrown = vm.declareVar(f.varEnv, name).IsError() ||
					vm.setBinding(f.varEnv, name, value, f.strict).IsError()
			}
			vm.FreeValue(value)

		case groupContextEnd:
			switch vm.contextEnd(f) {
			case stepThrow:
				thrown = true
			case stepReturn:
				return stepReturn
			}

		// Extended instructions

		case groupTryCreate:
			f.pushContext(Empty, contextHeader(ctxTry, target))

		case groupCatch:
			// reached by normal completion of the try block
			f.ip = target

		case groupFinally:
			base := f.contextBase()
			if headerType(f.stack[base-1]) == ctxCatch {
				vm.popEnv(f)
			}
			f.stack[base-2] = IntegerValue(int32(target))
			f.stack[base-1] = contextHeader(ctxFinallyJump, target)

		case groupWithCreate:
			obj := vm.ToObject(left)
			if obj.IsError() {
				thrown = true
				break
			}
			env := vm.createObjectBoundEnv(f.env.self, obj, LexObjectBound, true)
			vm.FreeValue(obj)
			vm.pushEnv(f, env)
			f.pushContext(contextHeader(ctxWith, target))

		case groupForInCreate:
			thrown = vm.forInCreate(f, left, target).IsError()

		case groupForInGetNext:
			base := f.contextBase()
			idx := int(f.stack[base-3].Integer())
			result = vm.CopyValue(vm.collection(f.stack[base-2]).at(idx))
			f.stack[base-3] = IntegerValue(int32(idx + 1))

		case groupForInHasNext:
			if vm.forInHasNext(f) {
				if !vm.pollStop() {
					thrown = true
					break
				}
				f.ip = target
			} else {
				vm.contextAbort(f)
			}

		case groupSuperClassCreate:
			if left != Null {
				if o := vm.objectOrNil(left); o == nil || !vm.isConstructor(o) {
					vm.throwTypeError("Class extends value %s is not a constructor or null", vm.Inspect(left))
					thrown = true
					break
				}
			}
			env := vm.createObjectBoundEnv(f.env.self, left, LexSuperObjectBound, false)
			vm.pushEnv(f, env)
			f.pushContext(env.self, contextHeader(ctxSuperClass, target))

		case groupClassContextEnd:
			vm.FreeValue(f.pop())
			if byteArg != 0 {
				vm.contextAbort(f)
			}

		case groupPushImplicitConstructor:
			result = vm.createImplicitConstructor(f.env).self

		case groupInitializeClass:
			thrown = vm.initializeClass(f, left, lit1).IsError()

		case groupSetClassMethod:
			thrown = vm.setClassMethod(f, left, lit1, info.arg == 1).IsError()

		case groupSuperPropReference:
			thrown = vm.pushSuperPropReference(f, lit1).IsError()

		case groupResolveBase:
			name := u.literal(lit1)
			this, fn := vm.resolveCallBase(f.env, name)
			if fn.IsError() {
				vm.FreeValue(this)
				thrown = true
				break
			}
			f.push(this)
			f.push(name)
			f.push(fn)

		default:
			vm.throwSyntaxError("invalid instruction %s at %d", info.Name, pos)
			thrown = true
		}

		vm.FreeValue(left)
		vm.FreeValue(right)
		if thrown {
			vm.FreeValue(result)
			vm.FreeValue(pushed)
			return stepThrow
		}

		// Epilogue
		if put := info.Put; put != PutNone {
			if put&PutIdent != 0 {
				idx := lit1
				if info.Flags&ArgLiteral2 != 0 {
					idx = lit2
				}
				if vm.storeIdent(f, idx, result).IsError() {
					vm.FreeValue(result)
					vm.FreeValue(pushed)
					return stepThrow
				}
			}
			if put&PutReference != 0 {
				name := f.pop()
				base := f.pop()
				r := vm.storeReference(f, base, name, result)
				vm.FreeValue(name)
				vm.FreeValue(base)
				if r.IsError() {
					vm.FreeValue(result)
					vm.FreeValue(pushed)
					return stepThrow
				}
			}
			if put&PutStack != 0 {
				if pushed != Empty {
					f.push(pushed)
					pushed = Empty
				} else {
					f.push(vm.CopyValue(result))
				}
			}
			if put&PutBlock != 0 {
				vm.FreeValue(f.blockResult)
				f.blockResult = vm.CopyValue(result)
			}
		}
		vm.FreeValue(result)
		vm.FreeValue(pushed)
	}
}

// pushPropReference turns [obj, key] (or [obj] with a literal key) into
// [obj, name, value].
func (vm *VM) pushPropReference(f *frame, literal bool, lit int) Value {
	var key Value
	if literal {
		key = vm.fetchLiteral(f, lit)
		if key.IsError() {
			return key
		}
	} else {
		key = f.pop()
	}
	name := vm.toPropertyKey(key)
	vm.FreeValue(key)
	if name.IsError() {
		return name
	}
	v := vm.getNamed(f.peek(), name)
	if v.IsError() {
		vm.FreeValue(name)
		return v
	}
	f.push(name)
	f.push(v)
	return Empty
}

// contextEnd executes CONTEXT_END: the normal exit of the innermost record.
// Finally records resume the continuation they were entered with.
func (vm *VM) contextEnd(f *frame) stepResult {
	base := f.contextBase()
	switch headerType(f.stack[base-1]) {
	case ctxFinallyJump:
		target := int(f.stack[base-2].Integer())
		f.dropContext()
		if target == f.ip {
			return stepNext
		}
		if f.contextDepth == 0 || !vm.findFinally(f, contJump, target, Empty) {
			f.ip = target
		}
	case ctxFinallyThrow:
		exc := f.stack[base-2]
		f.dropContext()
		vm.raise(exc)
		return stepThrow
	case ctxFinallyReturn:
		value := f.stack[base-2]
		f.dropContext()
		if f.contextDepth > 0 && vm.findFinally(f, contReturn, 0, value) {
			return stepNext
		}
		f.result = value
		return stepReturn
	default:
		vm.contextAbort(f)
	}
	return stepNext
}

// unwind drains the operands above the context records and looks for a
// handler of the pending exception. It reports false when the exception
// leaves the frame; all records have been aborted then.
func (vm *VM) unwind(f *frame) bool {
	base := f.contextBase()
	for len(f.stack) > base {
		// RegisterRef and its index word are direct values; freeing them is a
		// no-op.
		vm.FreeValue(f.pop())
	}
	if f.contextDepth == 0 || !vm.findFinally(f, contThrow, 0, Empty) {
		return false
	}
	if headerType(f.topHeader()) != ctxCatch {
		return true
	}

	exc := vm.takeException()
	env := vm.createDeclarativeEnv(f.env.self)
	vm.pushEnv(f, env)
	u := f.unit
	if ins, err := decodeInstruction(u.code, f.ip, u.wide()); err == nil && !ins.ext &&
		ins.op == OpAssignSetIdent && ins.lit1 >= u.registerEnd && ins.lit1 < u.identEnd {
		vm.createNamedDataProperty(env, u.literal(ins.lit1), exc, PropWritable|PropEnumerable)
	}
	f.push(exc)
	return true
}
