package vm

// ---------------------------------------------------------------------------
// Identifier resolution over environment chains
// ---------------------------------------------------------------------------

// Declarative environments keep their bindings as own properties. Object
// bound environments resolve through their bound object and its prototype
// chain. Super-object-bound environments only carry the class's parent and
// never hold bindings.

// resolveReferenceBase returns the environment binding name, or nil when the
// identifier is unresolvable.
func (vm *VM) resolveReferenceBase(env *Object, name Value) *Object {
	for ; env != nil; env = vm.outerEnv(env) {
		switch env.kind() {
		case LexDeclarative:
			if vm.findNamedProperty(env, name).found() {
				return env
			}
		case LexObjectBound:
			if vm.hasProperty(vm.object(env.bound), name) {
				return env
			}
		}
	}
	return nil
}

// resolveReferenceValue returns a new reference to the value bound to name.
// Unresolvable identifiers raise a ReferenceError.
func (vm *VM) resolveReferenceValue(env *Object, name Value) Value {
	v, found := vm.lookupIdentifier(env, name)
	if !found {
		return vm.throwReferenceError("%s is not defined", vm.GoString(name))
	}
	return v
}

// lookupIdentifier returns the value bound to name. found is false when
// the identifier is unresolvable; no exception is raised in that case, which
// is what typeof needs.
func (vm *VM) lookupIdentifier(env *Object, name Value) (v Value, found bool) {
	for ; env != nil; env = vm.outerEnv(env) {
		switch env.kind() {
		case LexDeclarative:
			if ref := vm.findNamedProperty(env, name); ref.found() {
				return vm.CopyValue(ref.value()), true
			}
		case LexObjectBound:
			if v, ok := vm.getIfPresent(vm.object(env.bound), name); ok {
				return v, true
			}
		}
	}
	return Undefined, false
}

// getIfPresent is [[Get]] on o that also reports whether the property was
// found anywhere on the prototype chain.
func (vm *VM) getIfPresent(o *Object, name Value) (Value, bool) {
	receiver := o.self
	for p := o; p != nil; p = vm.prototypeOf(p) {
		if v, _, ok := vm.virtualOwn(p, name); ok {
			return v, true
		}
		ref := vm.findOwnProperty(p, name)
		if !ref.found() {
			continue
		}
		if ref.typ() == propTypeAccessor {
			if ref.getter() == Undefined {
				return Undefined, true
			}
			return vm.callFunction(ref.getter(), receiver, nil), true
		}
		return vm.CopyValue(ref.value()), true
	}
	return Undefined, false
}

// resolveCallBase returns the this value and callee of an identifier call.
// The this value is the bound object of a with environment and undefined
// otherwise. Both values are new references.
func (vm *VM) resolveCallBase(env *Object, name Value) (this, fn Value) {
	base := vm.resolveReferenceBase(env, name)
	if base == nil {
		return Undefined, vm.throwReferenceError("%s is not defined", vm.GoString(name))
	}
	if base.kind() == LexObjectBound {
		bound := vm.object(base.bound)
		fn = vm.getProperty(bound, name, bound.self)
		if base.providesThis() && !fn.IsError() {
			return vm.CopyValue(bound.self), fn
		}
		return Undefined, fn
	}
	return Undefined, vm.CopyValue(vm.findNamedProperty(base, name).value())
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

// putIdentifier assigns an identifier. An unresolvable identifier is a
// ReferenceError in strict code and creates a global property otherwise.
// The result is Empty or ErrorValue.
func (vm *VM) putIdentifier(env *Object, name, value Value, strict bool) Value {
	base := vm.resolveReferenceBase(env, name)
	if base == nil {
		if strict {
			return vm.throwReferenceError("%s is not defined", vm.GoString(name))
		}
		return vm.setNamed(vm.global, name, value, false)
	}
	return vm.setBinding(base, name, value, strict)
}

// setBinding assigns name in a specific environment. Declarative bindings
// that do not exist yet are created.
func (vm *VM) setBinding(env *Object, name, value Value, strict bool) Value {
	switch env.kind() {
	case LexDeclarative:
		ref := vm.findNamedProperty(env, name)
		if !ref.found() {
			vm.createNamedDataProperty(env, name, value, PropWritable|PropEnumerable)
			return Empty
		}
		if !ref.has(PropWritable) {
			if strict {
				return vm.throwTypeError("Assignment to constant variable '%s'", vm.GoString(name))
			}
			return Empty
		}
		vm.setPropertyValue(ref, value)
		return Empty
	case LexObjectBound:
		bound := vm.object(env.bound)
		return vm.setProperty(bound, name, value, bound.self, strict)
	}
	return vm.throwReferenceError("%s is not defined", vm.GoString(name))
}

// declareVar creates name in env with the value undefined unless it is
// already bound there.
func (vm *VM) declareVar(env *Object, name Value) Value {
	switch env.kind() {
	case LexDeclarative:
		if !vm.findNamedProperty(env, name).found() {
			vm.createNamedDataProperty(env, name, Undefined, PropWritable|PropEnumerable)
		}
	case LexObjectBound:
		bound := vm.object(env.bound)
		if !vm.hasOwnProperty(bound, name) {
			if !bound.extensible() {
				return vm.throwTypeError("Cannot define variable '%s'", vm.GoString(name))
			}
			vm.createNamedDataProperty(bound, name, Undefined, PropWritable|PropEnumerable)
		}
	}
	return Empty
}

// deleteIdentifier implements delete on an identifier. Unresolvable names
// delete successfully.
func (vm *VM) deleteIdentifier(env *Object, name Value, strict bool) Value {
	base := vm.resolveReferenceBase(env, name)
	if base == nil {
		return True
	}
	if base.kind() == LexObjectBound {
		return vm.deleteNamed(vm.object(base.bound), name, strict)
	}
	ref := vm.findNamedProperty(base, name)
	if !ref.has(PropConfigurable) {
		return False
	}
	vm.deleteProperty(base, ref)
	return True
}
