package vm

import (
	"math"
	"strings"
)

// Built-in prototype slots
const (
	protoObject = iota
	protoFunction
	protoArray
	protoBoolean
	protoNumber
	protoString
	protoSymbol
	protoError // followed by one prototype per ErrorKind
	protoCount = protoError + int(errorKindCount)
)

// builtinAttrs is the attribute set of built-in methods.
const builtinAttrs = PropWritable | PropConfigurable

// initBuiltins creates the prototypes, the constructors and the global
// object and environment. The VM keeps one reference on each prototype, the
// global object and the global environment for its whole life.
func (vm *VM) initBuiltins() {
	objProto := vm.allocObject(uint32(KindGeneral)|objExtensible|objBuiltin, Null, nil)
	vm.protos[protoObject] = objProto.self

	fnProto := vm.allocObject(uint32(KindExternalFunction)|objExtensible|objBuiltin, objProto.self,
		&externalExt{name: "", fn: func(*VM, Call) (Value, error) { return Undefined, nil }})
	vm.protos[protoFunction] = fnProto.self

	vm.protos[protoArray] = vm.builtinObject(KindArray, &arrayExt{}).self
	vm.protos[protoBoolean] = vm.builtinObject(KindClass, &classExt{class: ClassBoolean, primitive: False}).self
	vm.protos[protoNumber] = vm.builtinObject(KindClass, &classExt{class: ClassNumber, primitive: IntegerValue(0)}).self
	vm.protos[protoString] = vm.builtinObject(KindClass, &classExt{class: ClassString, primitive: MagicValue(MagicEmpty)}).self
	vm.protos[protoSymbol] = vm.builtinObject(KindGeneral, nil).self

	errProto := vm.builtinObject(KindGeneral, nil)
	vm.protos[protoError] = errProto.self
	for kind := TypeError; kind < errorKindCount; kind++ {
		o := vm.allocObject(uint32(KindGeneral)|objExtensible|objBuiltin, errProto.self, nil)
		vm.protos[protoError+int(kind)] = o.self
	}

	global := vm.builtinObject(KindGeneral, nil)
	vm.global = global.self
	vm.globalEnv = vm.createObjectBoundEnv(Empty, global.self, LexObjectBound, false)

	vm.initObjectPrototype(objProto)
	vm.initFunctionPrototype(fnProto)
	vm.initArrayPrototype(vm.object(vm.protos[protoArray]))
	vm.initPrimitivePrototypes()
	vm.initErrors()
	vm.initGlobal(global)
}

// builtinObject allocates a built-in object inheriting from Object.prototype.
func (vm *VM) builtinObject(kind ObjectKind, ext any) *Object {
	return vm.allocObject(uint32(kind)|objExtensible|objBuiltin, vm.protos[protoObject], ext)
}

// defineNative installs a native method on o.
func (vm *VM) defineNative(o *Object, name string, length int, fn NativeFunction) Value {
	f := vm.NewNativeFunction(name, length, fn)
	vm.object(f).header |= objBuiltin
	vm.createNamedDataProperty(o, vm.Intern(name), f, builtinAttrs)
	vm.FreeValue(f)
	return f
}

// defineConstructor installs a native constructor as a global and links it
// with its prototype.
func (vm *VM) defineConstructor(global *Object, name string, length int, proto Value, fn NativeFunction) {
	ctor := vm.defineNative(global, name, length, fn)
	c := vm.object(ctor)
	vm.createNamedDataProperty(c, MagicValue(MagicPrototype), proto, 0)
	vm.defineDataProperty(vm.object(proto), MagicValue(MagicConstructor), ctor, builtinAttrs)
}

// ---------------------------------------------------------------------------
// Object.prototype
// ---------------------------------------------------------------------------

func (vm *VM) initObjectPrototype(o *Object) {
	vm.defineNative(o, "toString", 0, func(vm *VM, c Call) (Value, error) {
		var class string
		switch {
		case c.This == Undefined:
			class = "Undefined"
		case c.This == Null:
			class = "Null"
		case c.This.IsObject():
			class = magicStrings[vm.classOf(vm.object(c.This))]
		case c.This.IsBoolean():
			class = "Boolean"
		case c.This.IsNumber():
			class = "Number"
		case c.This.IsString():
			class = "String"
		default:
			class = "Symbol"
		}
		return vm.NewString("[object " + class + "]"), nil
	})
	vm.defineNative(o, "valueOf", 0, func(vm *VM, c Call) (Value, error) {
		return vm.ToObject(c.This), nil
	})
	vm.defineNative(o, "hasOwnProperty", 1, func(vm *VM, c Call) (Value, error) {
		name := vm.toPropertyKey(c.Arg(0))
		if name.IsError() {
			return name, nil
		}
		defer vm.FreeValue(name)
		obj := vm.ToObject(c.This)
		if obj.IsError() {
			return obj, nil
		}
		defer vm.FreeValue(obj)
		return BooleanValue(vm.hasOwnProperty(vm.object(obj), name)), nil
	})
}

// ---------------------------------------------------------------------------
// Function.prototype
// ---------------------------------------------------------------------------

func (vm *VM) initFunctionPrototype(o *Object) {
	vm.defineNative(o, "call", 1, func(vm *VM, c Call) (Value, error) {
		var args []Value
		if len(c.Args) > 1 {
			args = c.Args[1:]
		}
		return vm.callFunction(c.This, c.Arg(0), args), nil
	})
	vm.defineNative(o, "apply", 2, func(vm *VM, c Call) (Value, error) {
		args, err := vm.arrayElements(c.Arg(1))
		if err.IsError() {
			return err, nil
		}
		defer vm.freeValues(args)
		return vm.callFunction(c.This, c.Arg(0), args), nil
	})
	vm.defineNative(o, "bind", 1, func(vm *VM, c Call) (Value, error) {
		var args []Value
		if len(c.Args) > 1 {
			args = c.Args[1:]
		}
		return vm.BindFunction(c.This, c.Arg(0), args), nil
	})
}

// ---------------------------------------------------------------------------
// Array.prototype
// ---------------------------------------------------------------------------

func (vm *VM) initArrayPrototype(o *Object) {
	vm.defineNative(o, "push", 1, func(vm *VM, c Call) (Value, error) {
		arr := vm.objectOrNil(c.This)
		if arr == nil || arr.kind() != KindArray {
			return vm.throwTypeError("Array.prototype.push called on a non-array"), nil
		}
		for _, v := range c.Args {
			vm.arrayAppend(arr, v)
		}
		return vm.NumberValue(float64(arr.ext.(*arrayExt).length)), nil
	})
	vm.defineNative(o, "join", 1, func(vm *VM, c Call) (Value, error) {
		elems, err := vm.arrayElements(c.This)
		if err.IsError() {
			return err, nil
		}
		defer vm.freeValues(elems)
		sep := ","
		if c.Arg(0) != Undefined {
			s := vm.ToString(c.Arg(0))
			if s.IsError() {
				return s, nil
			}
			sep = vm.GoString(s)
			vm.FreeValue(s)
		}
		parts := make([]string, len(elems))
		for i, e := range elems {
			if e.IsNullOrUndefined() {
				continue
			}
			s := vm.ToString(e)
			if s.IsError() {
				return s, nil
			}
			parts[i] = vm.GoString(s)
			vm.FreeValue(s)
		}
		return vm.NewString(strings.Join(parts, sep)), nil
	})
}

// ---------------------------------------------------------------------------
// Boolean, Number, String and Symbol prototypes
// ---------------------------------------------------------------------------

// thisPrimitive unwraps the this value of a primitive method.
func (vm *VM) thisPrimitive(this Value, class ClassID, is func(Value) bool) Value {
	if is(this) {
		return this
	}
	if o := vm.objectOrNil(this); o != nil {
		if ext, ok := o.ext.(*classExt); ok && ext.class == class {
			return ext.primitive
		}
	}
	return vm.throwTypeError("%s.prototype method called on incompatible receiver", magicStrings[classNames[class]])
}

func (vm *VM) initPrimitivePrototypes() {
	kinds := []struct {
		proto int
		class ClassID
		is    func(Value) bool
	}{
		{protoBoolean, ClassBoolean, Value.IsBoolean},
		{protoNumber, ClassNumber, Value.IsNumber},
		{protoString, ClassString, Value.IsString},
		{protoSymbol, ClassSymbol, Value.IsSymbol},
	}
	for _, k := range kinds {
		o := vm.object(vm.protos[k.proto])
		vm.defineNative(o, "valueOf", 0, func(vm *VM, c Call) (Value, error) {
			p := vm.thisPrimitive(c.This, k.class, k.is)
			if p.IsError() {
				return p, nil
			}
			return vm.CopyValue(p), nil
		})
		vm.defineNative(o, "toString", 0, func(vm *VM, c Call) (Value, error) {
			p := vm.thisPrimitive(c.This, k.class, k.is)
			if p.IsError() {
				return p, nil
			}
			if p.IsSymbol() {
				desc := vm.SymbolDescription(p)
				s := "Symbol()"
				if desc.IsString() {
					s = "Symbol(" + vm.GoString(desc) + ")"
				}
				vm.FreeValue(desc)
				return vm.NewString(s), nil
			}
			return vm.ToString(p), nil
		})
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func (vm *VM) initErrors() {
	for kind := CommonError; kind < errorKindCount; kind++ {
		o := vm.object(vm.protos[protoError+int(kind)])
		vm.createNamedDataProperty(o, MagicValue(MagicName), MagicValue(errorKindMagic[kind]), builtinAttrs)
		vm.createNamedDataProperty(o, MagicValue(MagicMessage), MagicValue(MagicEmpty), builtinAttrs)
	}
	vm.defineNative(vm.object(vm.protos[protoError]), "toString", 0, func(vm *VM, c Call) (Value, error) {
		o := vm.objectOrNil(c.This)
		if o == nil {
			return vm.throwTypeError("Error.prototype.toString called on non-object"), nil
		}
		part := func(key MagicID, def string) (string, Value) {
			v := vm.getProperty(o, MagicValue(key), c.This)
			if v.IsError() {
				return "", v
			}
			defer vm.FreeValue(v)
			if v == Undefined {
				return def, Empty
			}
			s := vm.ToString(v)
			if s.IsError() {
				return "", s
			}
			defer vm.FreeValue(s)
			return vm.GoString(s), Empty
		}
		name, r := part(MagicName, "Error")
		if r.IsError() {
			return r, nil
		}
		msg, r := part(MagicMessage, "")
		if r.IsError() {
			return r, nil
		}
		switch {
		case name == "":
			return vm.NewString(msg), nil
		case msg == "":
			return vm.NewString(name), nil
		}
		return vm.NewString(name + ": " + msg), nil
	})
}

// errorConstructor returns the native constructor of an error kind. Calling
// it without new also creates an error object.
func errorConstructor(kind ErrorKind) NativeFunction {
	return func(vm *VM, c Call) (Value, error) {
		msg := ""
		if c.Arg(0) != Undefined {
			s := vm.ToString(c.Arg(0))
			if s.IsError() {
				return s, nil
			}
			msg = vm.GoString(s)
			vm.FreeValue(s)
		}
		return vm.NewError(kind, msg), nil
	}
}

// ---------------------------------------------------------------------------
// Global object
// ---------------------------------------------------------------------------

func (vm *VM) initGlobal(global *Object) {
	vm.createNamedDataProperty(global, MagicValue(MagicGlobalThis), global.self, builtinAttrs)
	vm.createNamedDataProperty(global, MagicValue(MagicUndefined), Undefined, 0)
	vm.createNamedDataProperty(global, MagicValue(MagicNaN), vm.staticFloat(math.NaN()), 0)
	vm.createNamedDataProperty(global, MagicValue(MagicInfinity), vm.staticFloat(math.Inf(1)), 0)

	vm.defineConstructor(global, "Object", 1, vm.protos[protoObject], func(vm *VM, c Call) (Value, error) {
		if v := c.Arg(0); !v.IsNullOrUndefined() {
			return vm.ToObject(v), nil
		}
		return vm.NewObject(), nil
	})
	vm.defineConstructor(global, "Function", 1, vm.protos[protoFunction], func(vm *VM, c Call) (Value, error) {
		return vm.throwSyntaxError("Function constructor requires a source compiler"), nil
	})
	vm.defineConstructor(global, "Array", 1, vm.protos[protoArray], func(vm *VM, c Call) (Value, error) {
		return vm.NewArray(c.Args), nil
	})
	vm.defineConstructor(global, "Boolean", 1, vm.protos[protoBoolean], func(vm *VM, c Call) (Value, error) {
		b := BooleanValue(vm.ToBoolean(c.Arg(0)))
		if c.IsConstruct() {
			return vm.ToObject(b), nil
		}
		return b, nil
	})
	vm.defineConstructor(global, "Number", 1, vm.protos[protoNumber], func(vm *VM, c Call) (Value, error) {
		n := IntegerValue(0)
		if len(c.Args) > 0 {
			f, ok := vm.ToNumber(c.Arg(0))
			if !ok {
				return ErrorValue, nil
			}
			n = vm.NumberValue(f)
		}
		if c.IsConstruct() {
			defer vm.FreeValue(n)
			return vm.ToObject(n), nil
		}
		return n, nil
	})
	vm.defineConstructor(global, "String", 1, vm.protos[protoString], func(vm *VM, c Call) (Value, error) {
		s := MagicValue(MagicEmpty)
		if len(c.Args) > 0 {
			if s = vm.ToString(c.Arg(0)); s.IsError() {
				return s, nil
			}
		}
		if c.IsConstruct() {
			defer vm.FreeValue(s)
			return vm.ToObject(s), nil
		}
		return s, nil
	})
	for kind := CommonError; kind < errorKindCount; kind++ {
		vm.defineConstructor(global, magicStrings[errorKindMagic[kind]], 1, vm.protos[protoError+int(kind)], errorConstructor(kind))
	}

	vm.defineNative(global, "isNaN", 1, func(vm *VM, c Call) (Value, error) {
		f, ok := vm.ToNumber(c.Arg(0))
		if !ok {
			return ErrorValue, nil
		}
		return BooleanValue(math.IsNaN(f)), nil
	})
}
