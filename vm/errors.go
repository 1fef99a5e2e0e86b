package vm

import (
	"errors"
	"fmt"
)

// debugAssertions enables internal consistency checks. They are never relied
// upon for correctness.
const debugAssertions = false

// Sentinel errors returned at the host boundary.
var (
	ErrInvalidUnit = errors.New("invalid bytecode unit")
	ErrNotCallable = errors.New("value is not callable")
	ErrNotObject   = errors.New("value is not an object")

	ErrNotEnvironment = errors.New("value is not an environment")
)

// ---------------------------------------------------------------------------
// Fatal conditions
// ---------------------------------------------------------------------------

// FatalCode identifies a non-recoverable engine condition.
type FatalCode int

const (
	FatalOutOfMemory FatalCode = iota + 1
	FatalRefCountLimit
	FatalUnreachable
	FatalFailedAssertion
)

func (c FatalCode) String() string {
	switch c {
	case FatalOutOfMemory:
		return "out of memory"
	case FatalRefCountLimit:
		return "reference count limit reached"
	case FatalUnreachable:
		return "unreachable state"
	case FatalFailedAssertion:
		return "failed assertion"
	}
	return fmt.Sprintf("fatal(%d)", int(c))
}

// FatalError is the panic value used when a fatal condition is reported.
type FatalError struct {
	Code FatalCode
}

func (e *FatalError) Error() string {
	return "ecmavm: fatal: " + e.Code.String()
}

// FatalFunc receives fatal conditions. Execution never continues after it
// returns: the VM panics with a *FatalError.
type FatalFunc func(code FatalCode)

func (vm *VM) fatal(code FatalCode) {
	vm.log.Critical("fatal engine condition", "code", code.String())
	if vm.config.Fatal != nil {
		vm.config.Fatal(code)
	}
	panic(&FatalError{Code: code})
}

// ---------------------------------------------------------------------------
// Script exceptions
// ---------------------------------------------------------------------------

// Exception is a thrown script value surfaced to the host.
type Exception struct {
	Value   Value
	Message string
}

func (e *Exception) Error() string {
	return "uncaught exception: " + e.Message
}

// ErrorKind selects a built-in error constructor.
type ErrorKind uint8

const (
	CommonError ErrorKind = iota
	TypeError
	ReferenceError
	RangeError
	SyntaxError
	errorKindCount
)

var errorKindMagic = [errorKindCount]MagicID{
	CommonError:    MagicError,
	TypeError:      MagicTypeError,
	ReferenceError: MagicReferenceError,
	RangeError:     MagicRangeError,
	SyntaxError:    MagicSyntaxError,
}

// raise stores v as the pending exception and returns the error marker. The
// reference on v is transferred to the VM.
func (vm *VM) raise(v Value) Value {
	if vm.hasException {
		vm.FreeValue(vm.exception)
	}
	vm.exception = v
	vm.hasException = true
	return ErrorValue
}

// takeException removes the pending exception and returns it.
func (vm *VM) takeException() Value {
	if !vm.hasException {
		return Undefined
	}
	v := vm.exception
	vm.exception = Undefined
	vm.hasException = false
	return v
}

// HasException reports whether an exception is pending.
func (vm *VM) HasException() bool { return vm.hasException }

// Throw raises v from host code and returns the error marker.
func (vm *VM) Throw(v Value) Value {
	return vm.raise(vm.CopyValue(v))
}

// ThrowError raises a new error object of the given kind.
func (vm *VM) ThrowError(kind ErrorKind, format string, args ...any) Value {
	return vm.raise(vm.NewError(kind, fmt.Sprintf(format, args...)))
}

func (vm *VM) throwTypeError(format string, args ...any) Value {
	return vm.ThrowError(TypeError, format, args...)
}

func (vm *VM) throwReferenceError(format string, args ...any) Value {
	return vm.ThrowError(ReferenceError, format, args...)
}

func (vm *VM) throwRangeError(format string, args ...any) Value {
	return vm.ThrowError(RangeError, format, args...)
}

func (vm *VM) throwSyntaxError(format string, args ...any) Value {
	return vm.ThrowError(SyntaxError, format, args...)
}

// NewError creates an error object with the given message.
func (vm *VM) NewError(kind ErrorKind, message string) Value {
	o := vm.createObject(vm.protos[protoError+int(kind)], KindClass, &classExt{class: ClassError})
	if message != "" {
		msg := vm.NewString(message)
		vm.createNamedDataProperty(o, MagicValue(MagicMessage), msg, PropWritable|PropConfigurable)
		vm.FreeValue(msg)
	}
	return o.self
}

// exceptionFromValue converts a thrown value into a host error. The reference
// on v moves into the returned Exception.
func (vm *VM) exceptionFromValue(v Value) *Exception {
	return &Exception{Value: v, Message: vm.describe(v)}
}

// describe renders a thrown value for host-facing messages without running
// script code.
func (vm *VM) describe(v Value) string {
	if v.IsObject() {
		o := vm.object(v)
		if ext, ok := o.ext.(*classExt); ok && ext.class == ClassError {
			name := vm.plainGet(o, MagicValue(MagicName))
			msg := vm.plainGet(o, MagicValue(MagicMessage))
			var out string
			if name.IsString() {
				out = vm.GoString(name)
			} else {
				out = "Error"
			}
			if msg.IsString() && vm.StringLength(msg) > 0 {
				out += ": " + vm.GoString(msg)
			}
			return out
		}
		return vm.Inspect(v)
	}
	return vm.Inspect(v)
}

// plainGet reads a data property along the prototype chain without invoking
// accessors. The result is borrowed.
func (vm *VM) plainGet(o *Object, name Value) Value {
	for o != nil {
		if ref := vm.findNamedProperty(o, name); ref.found() {
			if ref.typ() == propTypeData {
				return ref.value()
			}
			return Undefined
		}
		o = vm.objectOrNil(o.protoOrOuter)
	}
	return Undefined
}

// errorFromHost converts a Go error returned by a native function into a
// thrown value.
func (vm *VM) errorFromHost(err error) Value {
	var exc *Exception
	if errors.As(err, &exc) {
		return vm.raise(vm.CopyValue(exc.Value))
	}
	return vm.raise(vm.NewError(CommonError, err.Error()))
}
