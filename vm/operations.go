package vm

// ---------------------------------------------------------------------------
// Own properties
// ---------------------------------------------------------------------------

// findOwnProperty is findNamedProperty plus properties that are created on
// first access: the prototype object of a script function.
func (vm *VM) findOwnProperty(o *Object, name Value) propRef {
	ref := vm.findNamedProperty(o, name)
	if !ref.found() && o.kind() == KindFunction && name == MagicValue(MagicPrototype) {
		ref = vm.lazyPrototype(o)
	}
	return ref
}

// virtualOwn returns properties that are computed rather than stored: the
// length of arrays, and the length and characters of String wrappers. The
// value is a new reference.
func (vm *VM) virtualOwn(o *Object, name Value) (Value, Property, bool) {
	switch o.kind() {
	case KindArray:
		if name == MagicValue(MagicLength) {
			return vm.NumberValue(float64(o.ext.(*arrayExt).length)), PropWritable, true
		}
	case KindClass:
		ext, ok := o.ext.(*classExt)
		if !ok || ext.class != ClassString {
			break
		}
		if name == MagicValue(MagicLength) {
			return vm.NumberValue(float64(vm.StringLength(ext.primitive))), 0, true
		}
		if idx, ok := vm.StringToArrayIndex(name); ok {
			if ch, ok := vm.stringCharAt(ext.primitive, idx); ok {
				return ch, PropEnumerable, true
			}
		}
	}
	return Empty, 0, false
}

// hasOwnProperty reports whether o has an own property name.
func (vm *VM) hasOwnProperty(o *Object, name Value) bool {
	if v, _, ok := vm.virtualOwn(o, name); ok {
		vm.FreeValue(v)
		return true
	}
	return vm.findOwnProperty(o, name).found()
}

// hasProperty reports whether name is found on o or its prototype chain.
func (vm *VM) hasProperty(o *Object, name Value) bool {
	for ; o != nil; o = vm.prototypeOf(o) {
		if vm.hasOwnProperty(o, name) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// [[Get]]
// ---------------------------------------------------------------------------

// getProperty reads name from o or its prototype chain. Accessors are
// called with receiver as this.
func (vm *VM) getProperty(o *Object, name, receiver Value) Value {
	for ; o != nil; o = vm.prototypeOf(o) {
		if v, _, ok := vm.virtualOwn(o, name); ok {
			return v
		}
		ref := vm.findOwnProperty(o, name)
		if !ref.found() {
			continue
		}
		if ref.typ() == propTypeAccessor {
			getter := ref.getter()
			if getter == Undefined {
				return Undefined
			}
			return vm.callFunction(getter, receiver, nil)
		}
		return vm.CopyValue(ref.value())
	}
	return Undefined
}

// getNamed reads a property of any value. name must be a property key.
func (vm *VM) getNamed(base, name Value) Value {
	if base.IsObject() {
		return vm.getProperty(vm.object(base), name, base)
	}
	if base.IsNullOrUndefined() {
		return vm.throwTypeError("Cannot read property '%s' of %s", vm.Inspect(name), vm.Inspect(base))
	}
	if base.IsString() {
		if name == MagicValue(MagicLength) {
			return IntegerValue(int32(vm.StringLength(base)))
		}
		if idx, ok := vm.StringToArrayIndex(name); ok {
			if ch, ok := vm.stringCharAt(base, idx); ok {
				return ch
			}
		}
	}
	return vm.getProperty(vm.protoForPrimitive(base), name, base)
}

// getValue reads base[key], converting key to a property name.
func (vm *VM) getValue(base, key Value) Value {
	if base.IsNullOrUndefined() {
		return vm.throwTypeError("Cannot read property '%s' of %s", vm.Inspect(key), vm.Inspect(base))
	}
	name := vm.toPropertyKey(key)
	if name.IsError() {
		return name
	}
	v := vm.getNamed(base, name)
	vm.FreeValue(name)
	return v
}

// ---------------------------------------------------------------------------
// [[Put]]
// ---------------------------------------------------------------------------

// reject fails an assignment: a TypeError in strict code, silently
// otherwise.
func (vm *VM) reject(strict bool, format string, args ...any) Value {
	if strict {
		return vm.throwTypeError(format, args...)
	}
	return Empty
}

// setProperty assigns name on o. Inherited setters are called with receiver
// as this; data properties are created on the receiver. The result is Empty
// or ErrorValue.
func (vm *VM) setProperty(o *Object, name, value, receiver Value, strict bool) Value {
	if o.kind() == KindArray {
		return vm.arraySet(o, name, value, receiver, strict)
	}
	return vm.ordinarySet(o, name, value, receiver, strict)
}

func (vm *VM) ordinarySet(o *Object, name, value, receiver Value, strict bool) Value {
	for p := o; p != nil; p = vm.prototypeOf(p) {
		if v, attrs, ok := vm.virtualOwn(p, name); ok {
			vm.FreeValue(v)
			if attrs&PropWritable == 0 {
				return vm.reject(strict, "Cannot assign to read only property '%s'", vm.Inspect(name))
			}
			break
		}
		ref := vm.findOwnProperty(p, name)
		if !ref.found() {
			continue
		}
		if ref.typ() == propTypeAccessor {
			return vm.callSetter(ref.setter(), receiver, value, name, strict)
		}
		if !ref.has(PropWritable) {
			return vm.reject(strict, "Cannot assign to read only property '%s'", vm.Inspect(name))
		}
		if p == o && receiver == o.self {
			vm.setPropertyValue(ref, value)
			return Empty
		}
		break
	}

	if !receiver.IsObject() {
		return vm.reject(strict, "Cannot create property '%s' on %s", vm.Inspect(name), vm.Inspect(receiver))
	}
	target := vm.object(receiver)
	if target != o {
		if ref := vm.findOwnProperty(target, name); ref.found() {
			if ref.typ() != propTypeData || !ref.has(PropWritable) {
				return vm.reject(strict, "Cannot assign to read only property '%s'", vm.Inspect(name))
			}
			vm.setPropertyValue(ref, value)
			return Empty
		}
	}
	if !target.extensible() {
		return vm.reject(strict, "Cannot add property '%s', object is not extensible", vm.Inspect(name))
	}
	vm.createNamedDataProperty(target, name, value, PropDefault)
	return Empty
}

func (vm *VM) callSetter(setter, receiver, value, name Value, strict bool) Value {
	if setter == Undefined {
		return vm.reject(strict, "Cannot set property '%s' which has only a getter", vm.Inspect(name))
	}
	args := [1]Value{value}
	r := vm.callFunction(setter, receiver, args[:])
	if r.IsError() {
		return r
	}
	vm.FreeValue(r)
	return Empty
}

// setNamed assigns a property of any value. name must be a property key.
func (vm *VM) setNamed(base, name, value Value, strict bool) Value {
	if base.IsObject() {
		return vm.setProperty(vm.object(base), name, value, base, strict)
	}
	if base.IsNullOrUndefined() {
		return vm.throwTypeError("Cannot set property '%s' of %s", vm.Inspect(name), vm.Inspect(base))
	}
	return vm.ordinarySet(vm.protoForPrimitive(base), name, value, base, strict)
}

// putValue assigns base[key], converting key to a property name.
func (vm *VM) putValue(base, key, value Value, strict bool) Value {
	if base.IsNullOrUndefined() {
		return vm.throwTypeError("Cannot set property '%s' of %s", vm.Inspect(key), vm.Inspect(base))
	}
	name := vm.toPropertyKey(key)
	if name.IsError() {
		return name
	}
	r := vm.setNamed(base, name, value, strict)
	vm.FreeValue(name)
	return r
}

// ---------------------------------------------------------------------------
// Definitions (object literals, built-ins)
// ---------------------------------------------------------------------------

// defineDataProperty creates or overwrites an own data property.
func (vm *VM) defineDataProperty(o *Object, name, value Value, attrs Property) {
	if o.kind() == KindArray {
		if idx, ok := vm.StringToArrayIndex(name); ok {
			ext := o.ext.(*arrayExt)
			if idx >= ext.length {
				ext.length = idx + 1
			}
		}
	}
	ref := vm.findNamedProperty(o, name)
	switch {
	case !ref.found():
		vm.createNamedDataProperty(o, name, value, attrs)
	case ref.typ() == propTypeAccessor:
		vm.convertToData(ref, value, attrs)
	default:
		vm.setPropertyValue(ref, value)
		ref.node.types[ref.slot] = propTypeData | attrs&PropAttributes | ref.node.types[ref.slot]&propLCached
	}
}

// defineAccessor installs one side of an accessor property, keeping the
// other side if the property already is an accessor.
func (vm *VM) defineAccessor(o *Object, name, fn Value, isSetter bool) {
	ref := vm.findNamedProperty(o, name)
	attrs := PropEnumerable | PropConfigurable
	getter, setter := Undefined, Undefined
	if isSetter {
		setter = fn
	} else {
		getter = fn
	}
	switch {
	case !ref.found():
		vm.createNamedAccessorProperty(o, name, getter, setter, attrs)
	case ref.typ() == propTypeAccessor:
		if isSetter {
			ref.node.values[ref.slot].setter = fn
		} else {
			ref.node.values[ref.slot].value = fn
		}
	default:
		vm.convertToAccessor(ref, getter, setter, attrs)
	}
}

// ---------------------------------------------------------------------------
// delete
// ---------------------------------------------------------------------------

// deleteNamed removes an own property. The result is True, False or
// ErrorValue.
func (vm *VM) deleteNamed(o *Object, name Value, strict bool) Value {
	if v, _, ok := vm.virtualOwn(o, name); ok {
		vm.FreeValue(v)
		if r := vm.reject(strict, "Cannot delete property '%s'", vm.Inspect(name)); r.IsError() {
			return r
		}
		return False
	}
	ref := vm.findOwnProperty(o, name)
	if !ref.found() {
		return True
	}
	if !ref.has(PropConfigurable) {
		if r := vm.reject(strict, "Cannot delete property '%s'", vm.Inspect(name)); r.IsError() {
			return r
		}
		return False
	}
	vm.deleteProperty(o, ref)
	return True
}

// deleteValue implements the delete operator on base[key].
func (vm *VM) deleteValue(base, key Value, strict bool) Value {
	if base.IsNullOrUndefined() {
		return vm.throwTypeError("Cannot convert undefined or null to object")
	}
	name := vm.toPropertyKey(key)
	if name.IsError() {
		return name
	}
	defer vm.FreeValue(name)
	if !base.IsObject() {
		if base.IsString() {
			if name == MagicValue(MagicLength) {
				return vm.rejectDelete(name, strict)
			}
			if idx, ok := vm.StringToArrayIndex(name); ok && idx < vm.StringLength(base) {
				return vm.rejectDelete(name, strict)
			}
		}
		return True
	}
	return vm.deleteNamed(vm.object(base), name, strict)
}

func (vm *VM) rejectDelete(name Value, strict bool) Value {
	if r := vm.reject(strict, "Cannot delete property '%s'", vm.Inspect(name)); r.IsError() {
		return r
	}
	return False
}

// ---------------------------------------------------------------------------
// Host access
// ---------------------------------------------------------------------------

// Get reads a named property of obj. The result is owned by the caller.
func (vm *VM) Get(obj Value, name string) (Value, error) {
	key := vm.NewString(name)
	v := vm.getNamed(obj, key)
	vm.FreeValue(key)
	if v.IsError() {
		return Undefined, vm.exceptionFromValue(vm.takeException())
	}
	return v, nil
}

// Set assigns a named property of obj.
func (vm *VM) Set(obj Value, name string, value Value) error {
	key := vm.NewString(name)
	r := vm.setNamed(obj, key, value, true)
	vm.FreeValue(key)
	if r.IsError() {
		return vm.exceptionFromValue(vm.takeException())
	}
	return nil
}

// Has reports whether obj has a property name, own or inherited.
func (vm *VM) Has(obj Value, name string) bool {
	o := vm.objectOrNil(obj)
	if o == nil {
		return false
	}
	key := vm.NewString(name)
	defer vm.FreeValue(key)
	return vm.hasProperty(o, key)
}

// Delete removes an own property of obj.
func (vm *VM) Delete(obj Value, name string) (bool, error) {
	o := vm.objectOrNil(obj)
	if o == nil {
		return false, ErrNotObject
	}
	key := vm.NewString(name)
	r := vm.deleteNamed(o, key, false)
	vm.FreeValue(key)
	if r.IsError() {
		return false, vm.exceptionFromValue(vm.takeException())
	}
	return r == True, nil
}

// OwnKeys returns the enumerable own string keys of obj in enumeration
// order.
func (vm *VM) OwnKeys(obj Value) []string {
	o := vm.objectOrNil(obj)
	if o == nil {
		return nil
	}
	names := vm.ownPropertyNames(o, true)
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = vm.GoString(n)
	}
	return keys
}
