package vm

// ---------------------------------------------------------------------------
// Execution driver
// ---------------------------------------------------------------------------

// execute drives the dispatch loop of f. Calls requested by the loop are
// performed here, one native call per script call, and exceptions are routed
// to the frame's handlers. The result is a new reference or ErrorValue with
// the exception pending.
func (vm *VM) execute(f *frame) Value {
	for {
		switch vm.dispatch(f) {
		case stepReturn:
			return f.result
		case stepCall:
			if vm.performCall(f) {
				continue
			}
		}
		if !vm.unwind(f) {
			return ErrorValue
		}
	}
}

// performCall performs the call recorded in f.call. Operands are released
// and the result is routed through the put mode of the call instruction.
func (vm *VM) performCall(f *frame) bool {
	c := f.call
	top := len(f.stack)
	args := f.stack[top-c.argc:]

	var r Value
	consumed := c.argc
	switch c.group {
	case groupCall:
		consumed++
		r = vm.callFunction(f.stack[top-consumed], Undefined, args)
	case groupCallProp:
		consumed += 3
		r = vm.callFunction(f.stack[top-c.argc-1], f.stack[top-consumed], args)
	case groupNew:
		consumed++
		r = vm.construct(f.stack[top-consumed], args)
	case groupSuperCall:
		r = vm.superCall(f, args)
	default:
		vm.fatal(FatalUnreachable)
	}

	for _, v := range f.stack[top-consumed:] {
		vm.FreeValue(v)
	}
	f.stack = f.stack[:top-consumed]
	if r.IsError() {
		return false
	}

	switch {
	case c.put&PutStack != 0:
		f.push(r)
	case c.put&PutBlock != 0:
		vm.FreeValue(f.blockResult)
		f.blockResult = r
	default:
		vm.FreeValue(r)
	}
	return true
}

// superCall runs the parent constructor of the active class constructor on
// the current this value.
func (vm *VM) superCall(f *frame, args []Value) Value {
	var parent *Object
	if f.fn != nil {
		parent = vm.prototypeOf(f.fn)
	}
	if parent == nil || !vm.isConstructor(parent) {
		return vm.throwTypeError("Super constructor is not a constructor")
	}
	r := vm.callSuper(parent, f.this, args)
	if r.IsError() {
		return r
	}
	vm.FreeValue(r)
	return vm.CopyValue(f.this)
}

// ---------------------------------------------------------------------------
// for-in
// ---------------------------------------------------------------------------

// forInCreate opens a for-in record over the keys of value. When there is
// nothing to enumerate the loop is skipped by jumping to end.
func (vm *VM) forInCreate(f *frame, value Value, end int) Value {
	if value.IsNullOrUndefined() {
		f.ip = end
		return Empty
	}
	obj := vm.ToObject(value)
	if obj.IsError() {
		return obj
	}
	handle, keys := vm.forInKeys(vm.object(obj))
	if keys.count == 0 {
		vm.freeCollection(handle)
		vm.FreeValue(obj)
		f.ip = end
		return Empty
	}
	f.pushContext(obj, IntegerValue(0), handle, contextHeader(ctxForIn, end))
	return Empty
}

// forInHasNext advances the record past keys deleted since enumeration
// started and reports whether a key remains.
func (vm *VM) forInHasNext(f *frame) bool {
	base := f.contextBase()
	obj := vm.object(f.stack[base-4])
	keys := vm.collection(f.stack[base-2])
	idx := int(f.stack[base-3].Integer())
	for idx < keys.count && !vm.hasProperty(obj, keys.at(idx)) {
		idx++
	}
	f.stack[base-3] = IntegerValue(int32(idx))
	return idx < keys.count
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// createImplicitConstructor creates the constructor of a class without an
// explicit one. Invoking it forwards the arguments to the parent class.
func (vm *VM) createImplicitConstructor(env *Object) *Object {
	ext := &functionExt{scope: env.self, this: Undefined, home: Undefined, classCtor: true}
	o := vm.createObject(vm.protos[protoFunction], KindFunction, ext)
	vm.createNamedDataProperty(o, MagicValue(MagicLength), IntegerValue(0), PropConfigurable)
	return o
}

// initializeClass turns ctor into a class: it creates the prototype object,
// links both to the parent class when a super-class record is open, and
// pushes [class, prototype].
func (vm *VM) initializeClass(f *frame, ctor Value, lit int) Value {
	o := vm.objectOrNil(ctor)
	if o == nil || o.kind() != KindFunction {
		return vm.throwTypeError("class constructor is not a function")
	}
	ext := o.ext.(*functionExt)

	protoParent := vm.protos[protoObject]
	if f.contextDepth > 0 && headerType(f.topHeader()) == ctxSuperClass {
		env := vm.object(f.stack[f.contextBase()-2])
		if parent := env.bound; parent == Null {
			protoParent = Null
		} else {
			pp := vm.getProperty(vm.object(parent), MagicValue(MagicPrototype), parent)
			if pp.IsError() {
				return pp
			}
			if !pp.IsObject() && pp != Null {
				vm.FreeValue(pp)
				return vm.throwTypeError("Class extends value does not have valid prototype property")
			}
			vm.FreeValue(pp)
			protoParent = pp
			o.protoOrOuter = parent
		}
	}

	proto := vm.createObject(protoParent, KindGeneral, nil)
	ext.classCtor = true
	ext.protoCreated = true
	ext.home = proto.self
	vm.defineDataProperty(o, MagicValue(MagicPrototype), proto.self, 0)
	vm.createNamedDataProperty(proto, MagicValue(MagicConstructor), o.self, PropWritable|PropConfigurable)

	name := vm.literalName(f, lit)
	if name.IsError() {
		vm.derefObject(proto)
		return name
	}
	if vm.StringLength(name) > 0 {
		vm.defineDataProperty(o, MagicValue(MagicName), name, PropConfigurable)
	}
	vm.FreeValue(name)

	f.push(vm.CopyValue(ctor))
	f.push(proto.self)
	return Empty
}

// setClassMethod installs fn on the prototype, or on the class itself for
// static methods. The stack holds [class, prototype].
func (vm *VM) setClassMethod(f *frame, fn Value, lit int, static bool) Value {
	top := len(f.stack)
	target := vm.object(f.stack[top-1])
	if static {
		target = vm.object(f.stack[top-2])
	}
	name := vm.literalName(f, lit)
	if name.IsError() {
		return name
	}
	vm.defineDataProperty(target, name, fn, PropWritable|PropConfigurable)
	vm.FreeValue(name)
	if o := vm.objectOrNil(fn); o != nil {
		if ext, ok := o.ext.(*functionExt); ok {
			ext.home = target.self
		}
	}
	return Empty
}

// pushSuperPropReference pushes [this, name, value] for super.name, looking
// the name up on the prototype of the object the running method was
// installed on.
func (vm *VM) pushSuperPropReference(f *frame, lit int) Value {
	home := Undefined
	if f.fn != nil {
		if ext, ok := f.fn.ext.(*functionExt); ok {
			home = ext.home
		}
	}
	if home == Undefined {
		return vm.throwSyntaxError("'super' keyword unexpected here")
	}
	base := vm.prototypeOf(vm.object(home))
	if base == nil {
		return vm.throwTypeError("Cannot read properties of null (reading super property)")
	}
	name := vm.literalName(f, lit)
	if name.IsError() {
		return name
	}
	v := vm.getProperty(base, name, f.this)
	if v.IsError() {
		vm.FreeValue(name)
		return v
	}
	f.push(vm.CopyValue(f.this))
	f.push(name)
	f.push(v)
	return Empty
}
