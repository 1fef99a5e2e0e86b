package vm

import "math"

// Operators take borrowed operands and return a new reference or ErrorValue.

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// Arithmetic operator ids, shared with the binary opcode table.
const (
	arithAdd = binAdd
	arithSub = binSub
	arithMul = binMul
	arithDiv = binDiv
	arithMod = binMod
	arithExp = binExp
)

// floatArith is the generic numeric path of the arithmetic operators.
func floatArith(op uint8, l, r float64) float64 {
	switch op {
	case arithAdd:
		return l + r
	case arithSub:
		return l - r
	case arithMul:
		return l * r
	case arithDiv:
		return l / r
	case arithMod:
		return jsMod(l, r)
	case arithExp:
		return jsPow(l, r)
	}
	return math.NaN()
}

func jsMod(l, r float64) float64 {
	if math.IsNaN(l) || math.IsNaN(r) || math.IsInf(l, 0) || r == 0 {
		return math.NaN()
	}
	if math.IsInf(r, 0) || l == 0 {
		return l
	}
	return math.Mod(l, r)
}

func jsPow(l, r float64) float64 {
	if math.IsNaN(r) {
		return math.NaN()
	}
	if math.Abs(l) == 1 && math.IsInf(r, 0) {
		return math.NaN()
	}
	return math.Pow(l, r)
}

// integerArith is the fast path for two direct integers. ok is false when
// the result is not a direct integer (overflow, negative zero, fractions).
func integerArith(op uint8, a, b int32) (Value, bool) {
	l, r := int64(a), int64(b)
	switch op {
	case arithAdd:
		return TryIntegerValue(l + r)
	case arithSub:
		return TryIntegerValue(l - r)
	case arithMul:
		p := l * r
		if p == 0 && (l < 0 || r < 0) {
			return Empty, false // -0
		}
		return TryIntegerValue(p)
	case arithMod:
		if r == 0 {
			return Empty, false
		}
		m := l % r
		if m == 0 && l < 0 {
			return Empty, false // -0
		}
		return IntegerValue(int32(m)), true
	}
	return Empty, false
}

// arithmetic implements - * / % ** and the numeric half of +.
func (vm *VM) arithmetic(op uint8, left, right Value) Value {
	if left.IsInteger() && right.IsInteger() {
		if v, ok := integerArith(op, left.Integer(), right.Integer()); ok {
			return v
		}
	}
	l, ok := vm.ToNumber(left)
	if !ok {
		return ErrorValue
	}
	r, ok := vm.ToNumber(right)
	if !ok {
		return ErrorValue
	}
	return vm.NumberValue(floatArith(op, l, r))
}

// add implements +: string concatenation when either primitive operand is a
// string, numeric addition otherwise.
func (vm *VM) add(left, right Value) Value {
	if left.IsInteger() && right.IsInteger() {
		if v, ok := integerArith(arithAdd, left.Integer(), right.Integer()); ok {
			return v
		}
	}
	if left.IsNumber() && right.IsNumber() {
		return vm.NumberValue(vm.Number(left) + vm.Number(right))
	}
	if left.IsString() && right.IsString() {
		return vm.ConcatStrings(vm.CopyValue(left), right)
	}

	lp := vm.ToPrimitive(left, hintDefault)
	if lp.IsError() {
		return lp
	}
	defer vm.FreeValue(lp)
	rp := vm.ToPrimitive(right, hintDefault)
	if rp.IsError() {
		return rp
	}
	defer vm.FreeValue(rp)

	if lp.IsString() || rp.IsString() {
		ls := vm.ToString(lp)
		if ls.IsError() {
			return ls
		}
		rs := vm.ToString(rp)
		if rs.IsError() {
			vm.FreeValue(ls)
			return rs
		}
		s := vm.ConcatStrings(ls, rs)
		vm.FreeValue(rs)
		return s
	}
	return vm.arithmetic(arithAdd, lp, rp)
}

// ---------------------------------------------------------------------------
// Bitwise
// ---------------------------------------------------------------------------

func (vm *VM) toInt32Value(v Value) (int32, bool) {
	if v.IsInteger() {
		return v.Integer(), true
	}
	f, ok := vm.ToNumber(v)
	if !ok {
		return 0, false
	}
	return toInt32(f), true
}

// bitwise implements | ^ & << >> >>>.
func (vm *VM) bitwise(op uint8, left, right Value) Value {
	l, ok := vm.toInt32Value(left)
	if !ok {
		return ErrorValue
	}
	r, ok := vm.toInt32Value(right)
	if !ok {
		return ErrorValue
	}
	shift := uint32(r) & 31
	switch op {
	case binBitOr:
		return IntegerValue(l | r)
	case binBitXor:
		return IntegerValue(l ^ r)
	case binBitAnd:
		return IntegerValue(l & r)
	case binLeftShift:
		return IntegerValue(l << shift)
	case binRightShift:
		return IntegerValue(l >> shift)
	case binUnsRightShift:
		return vm.NumberValue(float64(uint32(l) >> shift))
	}
	return vm.throwTypeError("unknown bitwise operator")
}

// ---------------------------------------------------------------------------
// Relational and equality
// ---------------------------------------------------------------------------

// lessThan is the abstract relational comparison x < y. The result is True,
// False, Undefined (a NaN was involved) or ErrorValue.
func (vm *VM) lessThan(x, y Value, leftFirst bool) Value {
	if x.IsInteger() && y.IsInteger() {
		return BooleanValue(x.Integer() < y.Integer())
	}
	var px, py Value
	if leftFirst {
		if px = vm.ToPrimitive(x, hintNumber); px.IsError() {
			return px
		}
		if py = vm.ToPrimitive(y, hintNumber); py.IsError() {
			vm.FreeValue(px)
			return py
		}
	} else {
		if py = vm.ToPrimitive(y, hintNumber); py.IsError() {
			return py
		}
		if px = vm.ToPrimitive(x, hintNumber); px.IsError() {
			vm.FreeValue(py)
			return px
		}
	}
	defer vm.FreeValue(px)
	defer vm.FreeValue(py)

	if px.IsString() && py.IsString() {
		return BooleanValue(vm.CompareStrings(px, py) < 0)
	}
	nx, ok := vm.ToNumber(px)
	if !ok {
		return ErrorValue
	}
	ny, ok := vm.ToNumber(py)
	if !ok {
		return ErrorValue
	}
	if math.IsNaN(nx) || math.IsNaN(ny) {
		return Undefined
	}
	return BooleanValue(nx < ny)
}

func (vm *VM) relational(op uint8, left, right Value) Value {
	var r Value
	switch op {
	case binLess:
		r = vm.lessThan(left, right, true)
		if r == Undefined {
			return False
		}
		return r
	case binGreater:
		r = vm.lessThan(right, left, false)
		if r == Undefined {
			return False
		}
		return r
	case binLessEqual:
		r = vm.lessThan(right, left, false)
	case binGreaterEqual:
		r = vm.lessThan(left, right, true)
	}
	switch r {
	case ErrorValue:
		return r
	case True, Undefined:
		return False
	}
	return True
}

// inOperator implements key in obj.
func (vm *VM) inOperator(key, obj Value) Value {
	o := vm.objectOrNil(obj)
	if o == nil {
		return vm.throwTypeError("Cannot use 'in' operator to search for '%s' in %s", vm.Inspect(key), vm.Inspect(obj))
	}
	name := vm.toPropertyKey(key)
	if name.IsError() {
		return name
	}
	found := vm.hasProperty(o, name)
	vm.FreeValue(name)
	return BooleanValue(found)
}

// binary dispatches a binary operator.
func (vm *VM) binary(op uint8, left, right Value) Value {
	switch op {
	case binAdd:
		return vm.add(left, right)
	case binSub, binMul, binDiv, binMod, binExp:
		return vm.arithmetic(op, left, right)
	case binBitOr, binBitXor, binBitAnd, binLeftShift, binRightShift, binUnsRightShift:
		return vm.bitwise(op, left, right)
	case binEqual, binNotEqual:
		eq, ok := vm.LooseEquals(left, right)
		if !ok {
			return ErrorValue
		}
		return BooleanValue(eq == (op == binEqual))
	case binStrictEqual:
		return BooleanValue(vm.StrictEquals(left, right))
	case binStrictNotEqual:
		return BooleanValue(!vm.StrictEquals(left, right))
	case binLess, binGreater, binLessEqual, binGreaterEqual:
		return vm.relational(op, left, right)
	case binIn:
		return vm.inOperator(left, right)
	case binInstanceof:
		return vm.instanceOf(left, right)
	}
	return vm.throwTypeError("unknown binary operator %d", op)
}

// ---------------------------------------------------------------------------
// Unary
// ---------------------------------------------------------------------------

func (vm *VM) unary(op uint8, v Value) Value {
	switch op {
	case unaryPlus:
		return vm.toNumeric(v)
	case unaryNegate:
		if v.IsInteger() {
			if n := v.Integer(); n != 0 && n != IntegerMin {
				return IntegerValue(-n)
			}
		}
		f, ok := vm.ToNumber(v)
		if !ok {
			return ErrorValue
		}
		return vm.NumberValue(-f)
	case unaryLogicalNot:
		return BooleanValue(!vm.ToBoolean(v))
	case unaryBitNot:
		n, ok := vm.toInt32Value(v)
		if !ok {
			return ErrorValue
		}
		return IntegerValue(^n)
	case unaryVoid:
		return Undefined
	}
	return vm.throwTypeError("unknown unary operator %d", op)
}

// incrDecr converts v to a number and steps it. old is the converted
// operand (the result of a postfix expression); both are new references.
// Floats that step back into the integer range become integers again.
func (vm *VM) incrDecr(v Value, decr bool) (old, result Value) {
	if v.IsInteger() {
		// direct integers carry no reference
		n := int64(v.Integer())
		if decr {
			n--
		} else {
			n++
		}
		if r, ok := TryIntegerValue(n); ok {
			return v, r
		}
		return v, vm.FloatValue(float64(n))
	}
	old = vm.toNumeric(v)
	if old.IsError() {
		return old, ErrorValue
	}
	f := vm.Number(old)
	if decr {
		f--
	} else {
		f++
	}
	if old.IsFloat() {
		return old, vm.UpdateFloat(vm.CopyValue(old), f)
	}
	return old, vm.NumberValue(f)
}
