package vm

// ---------------------------------------------------------------------------
// Function payloads
// ---------------------------------------------------------------------------

// functionExt is the payload of script functions. Implicit class
// constructors have no unit.
type functionExt struct {
	unit      *Unit
	scope     Value // captured environment
	this      Value // captured this of arrow functions
	home      Value // object a method was installed on, for super lookups
	classCtor bool

	protoCreated bool
}

func (e *functionExt) trace(visit func(Value)) {
	visit(e.scope)
	visit(e.this)
	visit(e.home)
}

func (e *functionExt) release(vm *VM) {
	vm.freeValueIfNotObject(e.this)
	if e.unit != nil {
		vm.ReleaseUnit(e.unit)
	}
}

// NativeFunction implements a host function. The returned value is owned by
// the caller. Returning an *Exception rethrows its value; any other error is
// thrown as an Error object.
type NativeFunction func(vm *VM, call Call) (Value, error)

// Call carries the receiver and borrowed arguments of a native call.
type Call struct {
	This      Value
	Args      []Value
	Callee    Value
	NewTarget Value // Undefined unless invoked by new
}

// Arg returns argument i, or Undefined when it was not supplied.
func (c Call) Arg(i int) Value {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return Undefined
}

// IsConstruct reports whether the function was invoked by new.
func (c Call) IsConstruct() bool { return c.NewTarget != Undefined }

type externalExt struct {
	name string
	fn   NativeFunction
}

// boundExt is the payload of functions created by Function.prototype.bind.
type boundExt struct {
	target Value
	this   Value
	args   []Value
}

func (e *boundExt) trace(visit func(Value)) {
	visit(e.target)
	visit(e.this)
	for _, a := range e.args {
		visit(a)
	}
}

func (e *boundExt) release(vm *VM) {
	vm.freeValueIfNotObject(e.this)
	for _, a := range e.args {
		vm.freeValueIfNotObject(a)
	}
}

// ---------------------------------------------------------------------------
// Creation
// ---------------------------------------------------------------------------

// createFunction creates a closure of unit over scope. this is captured by
// arrow functions only.
func (vm *VM) createFunction(unit *Unit, scope, this Value) *Object {
	kind := KindFunction
	ext := &functionExt{unit: unit, scope: scope, this: Undefined, home: Undefined}
	if unit.Flags&UnitArrow != 0 {
		kind = KindArrowFunction
		ext.this = vm.copyValueIfNotObject(this)
	}
	if unit.Flags&UnitClassConstructor != 0 {
		ext.classCtor = true
	}
	vm.refUnit(unit)
	o := vm.createObject(vm.protos[protoFunction], kind, ext)
	vm.createNamedDataProperty(o, MagicValue(MagicLength), IntegerValue(int32(unit.argumentEnd)), PropConfigurable)
	if unit.name != Empty {
		vm.createNamedDataProperty(o, MagicValue(MagicName), unit.name, PropConfigurable)
	}
	return o
}

// NewNativeFunction creates a function object backed by fn. The caller owns
// one reference.
func (vm *VM) NewNativeFunction(name string, length int, fn NativeFunction) Value {
	o := vm.createObject(vm.protos[protoFunction], KindExternalFunction, &externalExt{name: name, fn: fn})
	nameV := vm.NewString(name)
	vm.createNamedDataProperty(o, MagicValue(MagicName), nameV, PropConfigurable)
	vm.FreeValue(nameV)
	vm.createNamedDataProperty(o, MagicValue(MagicLength), IntegerValue(int32(length)), PropConfigurable)
	return o.self
}

// BindFunction creates a bound function. It is named "bound " plus the
// name of target, and its length is the length of target less the bound
// arguments. A target that is not callable throws a TypeError.
func (vm *VM) BindFunction(target, this Value, args []Value) Value {
	if !vm.IsCallable(target) {
		return vm.throwTypeError("Bind must be called on a function")
	}
	lv := vm.getNamed(target, MagicValue(MagicLength))
	if lv.IsError() {
		return lv
	}
	length := int32(0)
	if lv.IsNumber() {
		n := vm.Number(lv) - float64(len(args))
		switch {
		case n > IntegerMax:
			length = IntegerMax
		case n > 0:
			length = int32(n)
		}
	}
	vm.FreeValue(lv)
	nv := vm.getNamed(target, MagicValue(MagicName))
	if nv.IsError() {
		return nv
	}
	name := ""
	if nv.IsString() {
		name = vm.GoString(nv)
	}
	vm.FreeValue(nv)

	ext := &boundExt{target: target, this: vm.copyValueIfNotObject(this)}
	for _, a := range args {
		ext.args = append(ext.args, vm.copyValueIfNotObject(a))
	}
	o := vm.createObject(vm.protos[protoFunction], KindBoundFunction, ext)
	nameV := vm.NewString("bound " + name)
	vm.createNamedDataProperty(o, MagicValue(MagicName), nameV, PropConfigurable)
	vm.FreeValue(nameV)
	vm.createNamedDataProperty(o, MagicValue(MagicLength), IntegerValue(length), PropConfigurable)
	return o.self
}

// lazyPrototype creates the prototype object of a script function on first
// access.
func (vm *VM) lazyPrototype(fn *Object) propRef {
	ext := fn.ext.(*functionExt)
	if ext.protoCreated || ext.unit == nil {
		return propRef{}
	}
	ext.protoCreated = true
	proto := vm.createObject(vm.protos[protoObject], KindGeneral, nil)
	vm.createNamedDataProperty(proto, MagicValue(MagicConstructor), fn.self, PropWritable|PropConfigurable)
	ref := vm.createNamedDataProperty(fn, MagicValue(MagicPrototype), proto.self, PropWritable)
	vm.derefObject(proto)
	return ref
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// IsCallable reports whether v is a function.
func (vm *VM) IsCallable(v Value) bool {
	o := vm.objectOrNil(v)
	return o != nil && o.isCallable()
}

func (vm *VM) isConstructor(o *Object) bool {
	switch o.kind() {
	case KindFunction, KindExternalFunction:
		return true
	case KindBoundFunction:
		if t := vm.objectOrNil(o.ext.(*boundExt).target); t != nil {
			return vm.isConstructor(t)
		}
	}
	return false
}

// enter increments the nesting depth, raising a RangeError when the limit is
// reached. Every successful enter is paired with vm.depth--.
func (vm *VM) enter() bool {
	if vm.depth >= vm.config.MaxRecursionDepth {
		vm.throwRangeError("Maximum call stack size exceeded")
		return false
	}
	vm.depth++
	return true
}

// callFunction calls fn with the borrowed this and args.
func (vm *VM) callFunction(fn, this Value, args []Value) Value {
	o := vm.objectOrNil(fn)
	if o == nil || !o.isCallable() {
		return vm.throwTypeError("%s is not a function", vm.Inspect(fn))
	}
	switch o.kind() {
	case KindExternalFunction:
		return vm.callNative(o, this, args, Undefined)
	case KindBoundFunction:
		ext := o.ext.(*boundExt)
		return vm.callFunction(ext.target, ext.this, vm.boundArgs(ext, args))
	}
	ext := o.ext.(*functionExt)
	if ext.classCtor {
		return vm.throwTypeError("Class constructor cannot be invoked without 'new'")
	}
	return vm.invoke(o, this, args)
}

func (vm *VM) boundArgs(ext *boundExt, args []Value) []Value {
	if len(ext.args) == 0 {
		return args
	}
	all := make([]Value, 0, len(ext.args)+len(args))
	all = append(all, ext.args...)
	return append(all, args...)
}

func (vm *VM) callNative(o *Object, this Value, args []Value, newTarget Value) Value {
	if !vm.enter() {
		return ErrorValue
	}
	defer func() { vm.depth-- }()
	vm.stats.calls++
	ext := o.ext.(*externalExt)
	r, err := ext.fn(vm, Call{This: this, Args: args, Callee: o.self, NewTarget: newTarget})
	if err != nil {
		if r != ErrorValue {
			vm.FreeValue(r)
		}
		return vm.errorFromHost(err)
	}
	if r == ErrorValue && !vm.hasException {
		return vm.throwTypeError("native function %s failed", ext.name)
	}
	return r
}

// invoke runs a script function. Class constructors are accepted: the check
// lives in callFunction.
func (vm *VM) invoke(o *Object, this Value, args []Value) Value {
	ext := o.ext.(*functionExt)
	if ext.unit == nil {
		// implicit class constructor: forward to the parent constructor
		if parent := vm.prototypeOf(o); parent != nil && parent.isCallable() {
			r := vm.callSuper(parent, this, args)
			if r.IsError() {
				return r
			}
			vm.FreeValue(r)
		}
		return Undefined
	}

	unit := ext.unit
	if o.kind() == KindArrowFunction {
		this = ext.this
	} else if unit.Flags&UnitStrict == 0 {
		if this.IsNullOrUndefined() {
			this = vm.global
		} else if !this.IsObject() {
			wrapped := vm.ToObject(this)
			if wrapped.IsError() {
				return wrapped
			}
			defer vm.FreeValue(wrapped)
			this = wrapped
		}
	}
	return vm.run(unit, this, ext.scope, 0, args, o)
}

// callSuper invokes a parent constructor on an existing this value.
func (vm *VM) callSuper(parent *Object, this Value, args []Value) Value {
	switch parent.kind() {
	case KindFunction:
		return vm.invoke(parent, this, args)
	case KindExternalFunction:
		return vm.callNative(parent, this, args, parent.self)
	case KindBoundFunction:
		ext := parent.ext.(*boundExt)
		target := vm.objectOrNil(ext.target)
		if target == nil {
			return Undefined
		}
		return vm.callSuper(target, this, vm.boundArgs(ext, args))
	}
	return vm.throwTypeError("Super constructor is not a constructor")
}

// construct implements new fn(...args).
func (vm *VM) construct(fn Value, args []Value) Value {
	o := vm.objectOrNil(fn)
	if o == nil || !vm.isConstructor(o) || vm.isMethodLike(o) {
		return vm.throwTypeError("%s is not a constructor", vm.Inspect(fn))
	}
	if o.kind() == KindBoundFunction {
		ext := o.ext.(*boundExt)
		return vm.construct(ext.target, vm.boundArgs(ext, args))
	}

	protoV := vm.getProperty(o, MagicValue(MagicPrototype), fn)
	if protoV.IsError() {
		return protoV
	}
	proto := vm.protos[protoObject]
	if protoV.IsObject() {
		proto = protoV
	}
	this := vm.createObject(proto, KindGeneral, nil)
	vm.FreeValue(protoV)

	var r Value
	if o.kind() == KindExternalFunction {
		r = vm.callNative(o, this.self, args, fn)
	} else {
		r = vm.invoke(o, this.self, args)
	}
	if r.IsError() {
		vm.derefObject(this)
		return r
	}
	if r.IsObject() {
		vm.derefObject(this)
		return r
	}
	vm.FreeValue(r)
	return this.self
}

// isMethodLike reports functions that exist only to be called: arrow
// functions.
func (vm *VM) isMethodLike(o *Object) bool {
	return o.kind() == KindArrowFunction
}

// instanceOf implements v instanceof ctor.
func (vm *VM) instanceOf(v, ctor Value) Value {
	c := vm.objectOrNil(ctor)
	if c == nil || !c.isCallable() {
		return vm.throwTypeError("Right-hand side of 'instanceof' is not callable")
	}
	if c.kind() == KindBoundFunction {
		return vm.instanceOf(v, c.ext.(*boundExt).target)
	}
	o := vm.objectOrNil(v)
	if o == nil {
		return False
	}
	protoV := vm.getProperty(c, MagicValue(MagicPrototype), ctor)
	if protoV.IsError() {
		return protoV
	}
	defer vm.FreeValue(protoV)
	if !protoV.IsObject() {
		return vm.throwTypeError("Function has non-object prototype in instanceof check")
	}
	for p := vm.prototypeOf(o); p != nil; p = vm.prototypeOf(p) {
		if p.self == protoV {
			return True
		}
	}
	return False
}

// ---------------------------------------------------------------------------
// Host entry points
// ---------------------------------------------------------------------------

// Call invokes fn from host code. The result is owned by the caller.
func (vm *VM) Call(fn, this Value, args ...Value) (Value, error) {
	if !vm.IsCallable(fn) {
		return Undefined, ErrNotCallable
	}
	r := vm.callFunction(fn, this, args)
	if r.IsError() {
		return Undefined, vm.exceptionFromValue(vm.takeException())
	}
	return r, nil
}

// Construct invokes fn as a constructor from host code.
func (vm *VM) Construct(fn Value, args ...Value) (Value, error) {
	r := vm.construct(fn, args)
	if r.IsError() {
		return Undefined, vm.exceptionFromValue(vm.takeException())
	}
	return r, nil
}
