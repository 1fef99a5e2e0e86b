package vm

import "fmt"

// RunFlags modify how a unit is run.
type RunFlags uint8

const (
	// RunStrict runs the unit as strict code regardless of its flags.
	RunStrict RunFlags = 1 << iota
)

// run executes unit with the given this binding, enclosing environment and
// arguments. fn is the function object being invoked, nil for global code.
// The result is a new reference, or ErrorValue with the exception pending.
func (vm *VM) run(unit *Unit, this, scope Value, flags RunFlags, args []Value, fn *Object) Value {
	if !vm.enter() {
		return ErrorValue
	}
	defer func() { vm.depth-- }()
	vm.stats.calls++

	f := vm.newFrame(unit, this, scope, flags, args, fn)
	r := vm.execute(f)
	vm.releaseFrame(f)
	return r
}

// newFrame sets up the registers and environments of a run.
//
// Arguments are copied into the leading registers and padded with
// undefined; with a rest parameter the last argument register receives an
// array of the excess arguments, otherwise they are dropped. Function code
// gets a fresh declarative environment unless the unit declares it does not
// need one.
func (vm *VM) newFrame(unit *Unit, this, scope Value, flags RunFlags, args []Value, fn *Object) *frame {
	f := &frame{
		unit:        unit,
		this:        vm.CopyValue(this),
		blockResult: Undefined,
		result:      Undefined,
		fn:          fn,
		strict:      unit.strict() || flags&RunStrict != 0,
	}
	f.stack = make([]Value, unit.registerEnd, unit.registerEnd+unit.stackLimit)

	params := unit.argumentEnd
	rest := unit.Flags&UnitRestParam != 0 && params > 0
	if rest {
		params--
	}
	for i := 0; i < params; i++ {
		if i < len(args) {
			f.stack[i] = vm.CopyValue(args[i])
		} else {
			f.stack[i] = Undefined
		}
	}
	if rest {
		var extra []Value
		if len(args) > params {
			extra = args[params:]
		}
		f.stack[params] = vm.NewArray(extra)
	}
	for i := unit.argumentEnd; i < unit.registerEnd; i++ {
		f.stack[i] = Undefined
	}

	outer := vm.object(scope)
	if unit.Flags&UnitFunction == 0 ||
		(unit.Flags&UnitLexicalEnvNotNeeded != 0 && unit.Flags&UnitArgumentsNeeded == 0) {
		vm.refObject(outer)
		f.env = outer
	} else {
		f.env = vm.createDeclarativeEnv(scope)
	}
	f.varEnv = f.env
	vm.refObject(f.varEnv)

	if unit.Flags&UnitArgumentsNeeded != 0 && fn != nil {
		argsObj := vm.createArguments(fn.self, args, f.strict)
		vm.createNamedDataProperty(f.env, MagicValue(MagicArguments), argsObj.self, PropWritable)
		vm.derefObject(argsObj)
	}
	return f
}

// releaseFrame drops every reference the frame holds.
func (vm *VM) releaseFrame(f *frame) {
	vm.abortAllContexts(f)
	for _, v := range f.stack {
		vm.FreeValue(v)
	}
	f.stack = nil
	vm.FreeValue(f.blockResult)
	vm.FreeValue(f.this)
	vm.derefObject(f.env)
	vm.derefObject(f.varEnv)
}

// Run executes a linked unit. env is the enclosing environment; Empty or
// Undefined selects the global environment, and an Empty this selects the
// global object. Global code completes with the value of its last
// expression statement. A thrown value is returned as an *Exception whose
// Value is owned by the caller.
func (vm *VM) Run(unit *Unit, this, env Value, flags RunFlags, args ...Value) (Value, error) {
	if unit == nil {
		return Undefined, fmt.Errorf("ecmavm: run: %w", ErrInvalidUnit)
	}
	if env == Empty || env == Undefined {
		env = vm.globalEnv.self
	} else if o := vm.objectOrNil(env); o == nil || !o.isLexEnv() {
		return Undefined, fmt.Errorf("ecmavm: run: %w", ErrNotEnvironment)
	}
	if this == Empty {
		this = vm.global
	}
	if vm.config.Strict {
		flags |= RunStrict
	}

	vm.refUnit(unit)
	r := vm.run(unit, this, env, flags, args, nil)
	vm.ReleaseUnit(unit)
	if r.IsError() {
		exc := vm.exceptionFromValue(vm.takeException())
		vm.log.Debugf("script exception: %s", exc.Message)
		return Undefined, exc
	}
	return r, nil
}

// RunGlobal runs global code in the global environment.
func (vm *VM) RunGlobal(unit *Unit) (Value, error) {
	return vm.Run(unit, Empty, Empty, 0)
}

// GlobalEnvironment returns the global environment. No reference is
// acquired.
func (vm *VM) GlobalEnvironment() Value { return vm.globalEnv.self }

// NewEnvironment creates a declarative environment nested in outer, which
// is an environment or Empty for the global environment. The caller owns
// one reference.
func (vm *VM) NewEnvironment(outer Value) Value {
	if outer == Empty {
		outer = vm.globalEnv.self
	}
	return vm.createDeclarativeEnv(outer).self
}
