package vm

import "math"

// arrayExt is the payload of array objects. Elements are ordinary index
// properties; length is computed.
type arrayExt struct {
	length uint32
}

// NewArray creates an array holding copies of elems. The caller owns one
// reference.
func (vm *VM) NewArray(elems []Value) Value {
	o := vm.createArray()
	for _, v := range elems {
		vm.arrayAppend(o, v)
	}
	return o.self
}

func (vm *VM) createArray() *Object {
	return vm.createObject(vm.protos[protoArray], KindArray, &arrayExt{})
}

// arrayAppend stores v at index length. ArrayHole only advances the length.
func (vm *VM) arrayAppend(o *Object, v Value) {
	ext := o.ext.(*arrayExt)
	idx := ext.length
	ext.length++
	if v == ArrayHole {
		return
	}
	name := vm.uintString(idx)
	vm.createNamedDataProperty(o, name, v, PropDefault)
	vm.FreeValue(name)
}

// ArrayLength returns the length of an array, or 0 for other values.
func (vm *VM) ArrayLength(v Value) uint32 {
	if o := vm.objectOrNil(v); o != nil && o.kind() == KindArray {
		return o.ext.(*arrayExt).length
	}
	return 0
}

// arraySet is [[Put]] for arrays: assigning length truncates, assigning an
// index at or past the end grows the array.
func (vm *VM) arraySet(o *Object, name, value, receiver Value, strict bool) Value {
	ext := o.ext.(*arrayExt)
	if name == MagicValue(MagicLength) && receiver == o.self {
		f, ok := vm.ToNumber(value)
		if !ok {
			return ErrorValue
		}
		n := toUint32(f)
		if float64(n) != f {
			return vm.throwRangeError("Invalid array length")
		}
		if !vm.setArrayLength(o, n) {
			return vm.reject(strict, "Cannot delete array element")
		}
		return Empty
	}
	r := vm.ordinarySet(o, name, value, receiver, strict)
	if r.IsError() {
		return r
	}
	if idx, ok := vm.StringToArrayIndex(name); ok && idx >= ext.length && vm.findNamedProperty(o, name).found() {
		ext.length = idx + 1
	}
	return r
}

// setArrayLength deletes elements at or above n. It stops at the first
// element that cannot be deleted and reports false.
func (vm *VM) setArrayLength(o *Object, n uint32) bool {
	ext := o.ext.(*arrayExt)
	if n >= ext.length {
		ext.length = n
		return true
	}
	names := vm.ownPropertyNames(o, false)
	// Indices come first in ascending order; delete from the top.
	for i := len(names) - 1; i >= 0; i-- {
		idx, ok := vm.StringToArrayIndex(names[i])
		if !ok || idx < n {
			continue
		}
		ref := vm.findNamedProperty(o, names[i])
		if !ref.has(PropConfigurable) {
			ext.length = idx + 1
			return false
		}
		vm.deleteProperty(o, ref)
	}
	ext.length = n
	return true
}

// arrayElements returns copies of the elements of an array-like object:
// anything with a numeric length.
func (vm *VM) arrayElements(v Value) ([]Value, Value) {
	o := vm.objectOrNil(v)
	if o == nil {
		if v.IsNullOrUndefined() {
			return nil, Empty
		}
		return nil, vm.throwTypeError("%s is not array-like", vm.Inspect(v))
	}
	lv := vm.getProperty(o, MagicValue(MagicLength), v)
	if lv.IsError() {
		return nil, lv
	}
	f, ok := vm.ToNumber(lv)
	vm.FreeValue(lv)
	if !ok {
		return nil, ErrorValue
	}
	n := toUint32(f)
	if math.IsNaN(f) {
		n = 0
	}
	out := make([]Value, 0, n)
	for i := uint32(0); i < n; i++ {
		name := vm.uintString(i)
		e := vm.getProperty(o, name, v)
		vm.FreeValue(name)
		if e.IsError() {
			vm.freeValues(out)
			return nil, e
		}
		out = append(out, e)
	}
	return out, Empty
}

func (vm *VM) freeValues(vals []Value) {
	for _, v := range vals {
		vm.FreeValue(v)
	}
}

// createArguments builds the arguments object of a call.
func (vm *VM) createArguments(callee Value, args []Value, strict bool) *Object {
	o := vm.createObject(vm.protos[protoObject], KindPseudoArray, nil)
	for i, a := range args {
		name := vm.uintString(uint32(i))
		vm.createNamedDataProperty(o, name, a, PropDefault)
		vm.FreeValue(name)
	}
	vm.createNamedDataProperty(o, MagicValue(MagicLength), IntegerValue(int32(len(args))), PropWritable|PropConfigurable)
	if !strict {
		vm.createNamedDataProperty(o, MagicValue(MagicCallee), callee, PropWritable|PropConfigurable)
	}
	return o
}
