package vm

// Object is a heap record addressed by an object handle. Lexical
// environments are objects too: their kind is one of the Lex* kinds, their
// outer environment lives where an ordinary object keeps its prototype, and
// object-bound environments keep the bound object in bound.
//
// The header packs:
//   - bits 0-3:  kind
//   - bit 4:     built-in flag
//   - bit 5:     extensible (this-providing on object-bound environments)
//   - bit 6:     reachability mark
//   - bits 7-31: external reference count
type Object struct {
	header       uint32
	self         Value
	gcNext       *Object
	props        *propNode
	protoOrOuter Value
	bound        Value
	ext          any
}

// ObjectKind is the kind stored in an object header.
type ObjectKind uint8

const (
	KindGeneral ObjectKind = iota
	KindClass
	KindFunction
	KindExternalFunction
	KindArray
	KindBoundFunction
	KindPseudoArray
	KindArrowFunction

	LexDeclarative      ObjectKind = 13
	LexObjectBound      ObjectKind = 14
	LexSuperObjectBound ObjectKind = 15
)

const (
	objKindMask    uint32 = 0xF
	objBuiltin     uint32 = 1 << 4
	objExtensible  uint32 = 1 << 5
	objProvideThis        = objExtensible
	objMark        uint32 = 1 << 6
	objRefShift           = 7
	objRefOne      uint32 = 1 << objRefShift
	objRefLimit    uint32 = 1<<25 - 1
)

func (o *Object) kind() ObjectKind { return ObjectKind(o.header & objKindMask) }

func (o *Object) isLexEnv() bool { return o.kind() >= LexDeclarative }

func (o *Object) refs() uint32 { return o.header >> objRefShift }

func (o *Object) extensible() bool { return o.header&objExtensible != 0 }

func (o *Object) setExtensible(on bool) {
	if on {
		o.header |= objExtensible
	} else {
		o.header &^= objExtensible
	}
}

func (o *Object) isBuiltin() bool { return o.header&objBuiltin != 0 }

// providesThis reports whether an object-bound environment supplies its
// bound object as the this value of calls through it (with statements).
func (o *Object) providesThis() bool { return o.header&objProvideThis != 0 }

func (o *Object) marked() bool { return o.header&objMark != 0 }

// Kind returns the object kind.
func (o *Object) Kind() ObjectKind { return o.kind() }

// Value returns the handle of o. No reference is acquired.
func (o *Object) Value() Value { return o.self }

// isCallable reports whether o can be invoked.
func (o *Object) isCallable() bool {
	switch o.kind() {
	case KindFunction, KindExternalFunction, KindBoundFunction, KindArrowFunction:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Handles and references
// ---------------------------------------------------------------------------

// object resolves an object handle. A stale handle is fatal.
func (vm *VM) object(v Value) *Object {
	o := vm.heap.objects.get(v.index(), v.gen())
	if o == nil {
		vm.fatal(FatalUnreachable)
	}
	return o
}

// objectOrNil resolves v when it is a live object handle.
func (vm *VM) objectOrNil(v Value) *Object {
	if !v.IsObject() {
		return nil
	}
	return vm.heap.objects.get(v.index(), v.gen())
}

func (vm *VM) refObject(o *Object) {
	if o.refs() >= objRefLimit {
		vm.fatal(FatalRefCountLimit)
	}
	o.header += objRefOne
}

func (vm *VM) derefObject(o *Object) {
	if o.refs() == 0 {
		if debugAssertions {
			vm.fatal(FatalFailedAssertion)
		}
		return
	}
	o.header -= objRefOne
}

// ---------------------------------------------------------------------------
// Creation
// ---------------------------------------------------------------------------

// createObject allocates an extensible object with one external reference.
// proto is an object handle or Null. ext is the kind-specific payload.
func (vm *VM) createObject(proto Value, kind ObjectKind, ext any) *Object {
	return vm.allocObject(uint32(kind)|objExtensible, proto, ext)
}

func (vm *VM) allocObject(header uint32, protoOrOuter Value, ext any) *Object {
	vm.gcIfNeeded()
	o := &Object{
		header:       header | objRefOne,
		protoOrOuter: protoOrOuter,
		bound:        Empty,
		ext:          ext,
	}
	idx, gen, ok := vm.heap.objects.alloc(o)
	if !ok {
		vm.fatal(FatalOutOfMemory)
	}
	o.self = makeHandle(tagObject, idx, gen)
	o.gcNext = vm.heap.gcHead
	vm.heap.gcHead = o
	vm.heap.objectAllocs++
	return o
}

// NewObject creates an empty ordinary object inheriting from
// Object.prototype. The caller owns one reference.
func (vm *VM) NewObject() Value {
	return vm.createObject(vm.protos[protoObject], KindGeneral, nil).self
}

// createDeclarativeEnv creates a declarative environment. outer is an
// environment handle or Empty for the outermost environment.
func (vm *VM) createDeclarativeEnv(outer Value) *Object {
	return vm.allocObject(uint32(LexDeclarative), outer, nil)
}

// createObjectBoundEnv creates an environment whose bindings are the
// properties of bound. kind is LexObjectBound or LexSuperObjectBound.
func (vm *VM) createObjectBoundEnv(outer, bound Value, kind ObjectKind, provideThis bool) *Object {
	header := uint32(kind)
	if provideThis {
		header |= objProvideThis
	}
	env := vm.allocObject(header, outer, nil)
	env.bound = bound
	return env
}

// outerEnv returns the enclosing environment of env, or nil.
func (vm *VM) outerEnv(env *Object) *Object {
	if env.protoOrOuter == Empty {
		return nil
	}
	return vm.object(env.protoOrOuter)
}

// prototypeOf returns the prototype of an ordinary object, or nil.
func (vm *VM) prototypeOf(o *Object) *Object {
	return vm.objectOrNil(o.protoOrOuter)
}

// ---------------------------------------------------------------------------
// Extension payloads
// ---------------------------------------------------------------------------

// ClassID identifies the internal class of KindClass objects.
type ClassID uint8

const (
	ClassObject ClassID = iota
	ClassError
	ClassBoolean
	ClassNumber
	ClassString
	ClassSymbol
	ClassArguments
)

var classNames = [...]MagicID{
	ClassObject:    MagicObject,
	ClassError:     MagicError,
	ClassBoolean:   MagicBoolean,
	ClassNumber:    MagicNumber,
	ClassString:    MagicString,
	ClassSymbol:    MagicSymbol,
	ClassArguments: MagicArgumentsClass,
}

// classExt is the payload of KindClass objects. Primitive wrappers keep the
// wrapped value.
type classExt struct {
	class     ClassID
	primitive Value
}

func (e *classExt) trace(visit func(Value)) { visit(e.primitive) }

func (e *classExt) release(vm *VM) { vm.freeValueIfNotObject(e.primitive) }

// extPayload is implemented by extension payloads that hold values. trace
// reports every value reachable from the payload; release frees the
// payload's counted references when the object is swept.
type extPayload interface {
	trace(visit func(Value))
	release(vm *VM)
}

// classOf returns the internal class name used by Object.prototype.toString.
func (vm *VM) classOf(o *Object) MagicID {
	switch o.kind() {
	case KindFunction, KindExternalFunction, KindBoundFunction, KindArrowFunction:
		return MagicFunction
	case KindArray:
		return MagicArray
	case KindPseudoArray:
		return MagicArgumentsClass
	case KindClass:
		if ext, ok := o.ext.(*classExt); ok {
			return classNames[ext.class]
		}
	}
	return MagicObject
}
