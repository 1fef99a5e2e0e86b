package vm

import (
	"math"
	"strings"
)

// Conversions return a new reference (or ErrorValue with the exception
// pending) unless documented otherwise.

// ToBoolean converts v to a boolean. It never fails.
func (vm *VM) ToBoolean(v Value) bool {
	switch {
	case v == True:
		return true
	case v == False, v == Undefined, v == Null:
		return false
	case v.IsInteger():
		return v.Integer() != 0
	case v.IsFloat():
		f := vm.Number(v)
		return f != 0 && !math.IsNaN(f)
	case v.IsString():
		return vm.StringLength(v) > 0
	}
	return true
}

// ToNumber converts v to a number. ok is false when an exception was raised.
func (vm *VM) ToNumber(v Value) (f float64, ok bool) {
	switch {
	case v.IsInteger():
		return float64(v.Integer()), true
	case v.IsFloat():
		return vm.Number(v), true
	case v == Undefined:
		return math.NaN(), true
	case v == Null, v == False:
		return 0, true
	case v == True:
		return 1, true
	case v.IsString():
		return vm.StringToNumber(v), true
	case v.IsSymbol():
		vm.throwTypeError("Cannot convert a Symbol value to a number")
		return 0, false
	case v.IsObject():
		prim := vm.ToPrimitive(v, hintNumber)
		if prim.IsError() {
			return 0, false
		}
		f, ok = vm.ToNumber(prim)
		vm.FreeValue(prim)
		return f, ok
	}
	return math.NaN(), true
}

// StringToNumber converts a string value to a number.
func (vm *VM) StringToNumber(v Value) float64 {
	if idx, ok := vm.StringToArrayIndex(v); ok {
		return float64(idx)
	}
	return parseNumber(vm.GoString(v))
}

// toNumeric converts v to a number value, keeping integers direct.
func (vm *VM) toNumeric(v Value) Value {
	if v.IsNumber() {
		return vm.CopyValue(v)
	}
	f, ok := vm.ToNumber(v)
	if !ok {
		return ErrorValue
	}
	return vm.NumberValue(f)
}

// ToString converts v to a string.
func (vm *VM) ToString(v Value) Value {
	switch {
	case v.IsString():
		return vm.CopyValue(v)
	case v.IsNumber():
		return vm.NumberToString(v)
	case v == Undefined:
		return MagicValue(MagicUndefined)
	case v == Null:
		return MagicValue(MagicNull)
	case v == True:
		return MagicValue(MagicTrue)
	case v == False:
		return MagicValue(MagicFalse)
	case v.IsSymbol():
		return vm.throwTypeError("Cannot convert a Symbol value to a string")
	case v.IsObject():
		prim := vm.ToPrimitive(v, hintString)
		if prim.IsError() {
			return prim
		}
		s := vm.ToString(prim)
		vm.FreeValue(prim)
		return s
	}
	return vm.throwTypeError("Cannot convert value to a string")
}

// toPropertyKey converts v to a property name (a string or symbol).
func (vm *VM) toPropertyKey(v Value) Value {
	if v.IsPropertyName() {
		return vm.CopyValue(v)
	}
	if v.IsInteger() && v.Integer() >= 0 {
		return vm.uintString(uint32(v.Integer()))
	}
	if v.IsObject() {
		prim := vm.ToPrimitive(v, hintString)
		if prim.IsError() {
			return prim
		}
		key := vm.toPropertyKey(prim)
		vm.FreeValue(prim)
		return key
	}
	return vm.ToString(v)
}

type primitiveHint int

const (
	hintDefault primitiveHint = iota
	hintNumber
	hintString
)

// ToPrimitive converts an object by calling its valueOf and toString
// methods in hint order.
func (vm *VM) ToPrimitive(v Value, hint primitiveHint) Value {
	if !v.IsObject() {
		return vm.CopyValue(v)
	}
	order := [2]MagicID{MagicValueOf, MagicToString}
	if hint == hintString {
		order = [2]MagicID{MagicToString, MagicValueOf}
	}
	o := vm.object(v)
	for _, id := range order {
		fn := vm.getProperty(o, MagicValue(id), v)
		if fn.IsError() {
			return fn
		}
		if vm.IsCallable(fn) {
			r := vm.callFunction(fn, v, nil)
			vm.FreeValue(fn)
			if r.IsError() || !r.IsObject() {
				return r
			}
			vm.FreeValue(r)
			continue
		}
		vm.FreeValue(fn)
	}
	return vm.throwTypeError("Cannot convert object to primitive value")
}

// ToObject converts v to an object, wrapping primitives.
func (vm *VM) ToObject(v Value) Value {
	var class ClassID
	var proto int
	switch {
	case v.IsObject():
		return vm.CopyValue(v)
	case v.IsNullOrUndefined():
		return vm.throwTypeError("Cannot convert undefined or null to object")
	case v.IsBoolean():
		class, proto = ClassBoolean, protoBoolean
	case v.IsNumber():
		class, proto = ClassNumber, protoNumber
	case v.IsString():
		class, proto = ClassString, protoString
	case v.IsSymbol():
		class, proto = ClassSymbol, protoSymbol
	default:
		return vm.throwTypeError("Cannot convert value to object")
	}
	o := vm.createObject(vm.protos[proto], KindClass, &classExt{class: class, primitive: vm.CopyValue(v)})
	return o.self
}

// protoForPrimitive returns the prototype used for property access on a
// primitive, or nil for null and undefined.
func (vm *VM) protoForPrimitive(v Value) *Object {
	switch {
	case v.IsBoolean():
		return vm.object(vm.protos[protoBoolean])
	case v.IsNumber():
		return vm.object(vm.protos[protoNumber])
	case v.IsString():
		return vm.object(vm.protos[protoString])
	case v.IsSymbol():
		return vm.object(vm.protos[protoSymbol])
	}
	return nil
}

// TypeOf returns the typeof string of v.
func (vm *VM) TypeOf(v Value) Value {
	switch {
	case v == Undefined:
		return MagicValue(MagicUndefined)
	case v == Null:
		return MagicValue(MagicObjectType)
	case v.IsBoolean():
		return MagicValue(MagicBooleanType)
	case v.IsNumber():
		return MagicValue(MagicNumberType)
	case v.IsString():
		return MagicValue(MagicStringType)
	case v.IsSymbol():
		return MagicValue(MagicSymbolType)
	case v.IsObject():
		if vm.object(v).isCallable() {
			return MagicValue(MagicFunctionType)
		}
	}
	return MagicValue(MagicObjectType)
}

// StrictEquals implements ===.
func (vm *VM) StrictEquals(a, b Value) bool {
	if a.IsNumber() && b.IsNumber() {
		if a.IsInteger() && b.IsInteger() {
			return a == b
		}
		return vm.Number(a) == vm.Number(b)
	}
	if a.IsString() && b.IsString() {
		return vm.StringsEqual(a, b)
	}
	return a == b
}

// LooseEquals implements ==. ok is false when a conversion raised.
func (vm *VM) LooseEquals(a, b Value) (eq, ok bool) {
	switch {
	case a.IsNumber() && b.IsNumber(), a.IsString() && b.IsString():
		return vm.StrictEquals(a, b), true
	case a.IsNullOrUndefined() || b.IsNullOrUndefined():
		return a.IsNullOrUndefined() && b.IsNullOrUndefined(), true
	case a.IsNumber() && b.IsString():
		return vm.Number(a) == vm.StringToNumber(b), true
	case a.IsString() && b.IsNumber():
		return vm.StringToNumber(a) == vm.Number(b), true
	case a.IsBoolean():
		return vm.LooseEquals(booleanToNumber(a), b)
	case b.IsBoolean():
		return vm.LooseEquals(a, booleanToNumber(b))
	case a.IsObject() && b.IsObject():
		return a == b, true
	case a.IsObject() && (b.IsNumber() || b.IsString() || b.IsSymbol()):
		prim := vm.ToPrimitive(a, hintDefault)
		if prim.IsError() {
			return false, false
		}
		eq, ok = vm.LooseEquals(prim, b)
		vm.FreeValue(prim)
		return eq, ok
	case b.IsObject() && (a.IsNumber() || a.IsString() || a.IsSymbol()):
		return vm.LooseEquals(b, a)
	}
	return a == b, true
}

func booleanToNumber(v Value) Value {
	if v == True {
		return IntegerValue(1)
	}
	return IntegerValue(0)
}

// ---------------------------------------------------------------------------
// Debug rendering
// ---------------------------------------------------------------------------

// Inspect renders v for hosts and diagnostics. It never runs script code.
func (vm *VM) Inspect(v Value) string {
	var sb strings.Builder
	vm.inspect(&sb, v, 0)
	return sb.String()
}

func (vm *VM) inspect(sb *strings.Builder, v Value, depth int) {
	switch {
	case v.IsNumber():
		sb.WriteString(formatNumber(vm.Number(v)))
	case v.IsString():
		if depth > 0 {
			sb.WriteByte('"')
			sb.WriteString(vm.GoString(v))
			sb.WriteByte('"')
		} else {
			sb.WriteString(vm.GoString(v))
		}
	case v.IsSymbol():
		sb.WriteString("Symbol(")
		if d := vm.SymbolDescription(v); d.IsString() {
			sb.WriteString(vm.GoString(d))
		}
		sb.WriteByte(')')
	case v.IsObject():
		vm.inspectObject(sb, vm.object(v), depth)
	default:
		sb.WriteString(v.String())
	}
}

func (vm *VM) inspectObject(sb *strings.Builder, o *Object, depth int) {
	switch {
	case o.isCallable():
		sb.WriteString("[Function")
		if name := vm.plainGet(o, MagicValue(MagicName)); name.IsString() && vm.StringLength(name) > 0 {
			sb.WriteString(": ")
			sb.WriteString(vm.GoString(name))
		}
		sb.WriteByte(']')
	case o.kind() == KindArray:
		if depth > 1 {
			sb.WriteString("[Array]")
			return
		}
		sb.WriteByte('[')
		n := o.ext.(*arrayExt).length
		for i := uint32(0); i < n; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			if i >= 100 {
				sb.WriteString("...")
				break
			}
			name := vm.uintString(i)
			elem := vm.plainGet(o, name)
			vm.FreeValue(name)
			vm.inspect(sb, elem, depth+1)
		}
		sb.WriteByte(']')
	case vm.classOf(o) == MagicError:
		sb.WriteString(vm.describe(o.self))
	default:
		sb.WriteString("[object ")
		sb.WriteString(magicStrings[vm.classOf(o)])
		sb.WriteByte(']')
	}
}
