package vm

import (
	"errors"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func newTestVM(t *testing.T) *VM {
	t.Helper()
	return New(Config{})
}

// linkAssembled builds and links the unit held by a. The unit is released
// when the test ends.
func linkAssembled(t *testing.T, vm *VM, a *Assembler) *Unit {
	t.Helper()
	img, err := a.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	u, err := vm.Link(img)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	t.Cleanup(func() { vm.ReleaseUnit(u) })
	return u
}

// buildFunction assembles a function unit.
func buildFunction(t *testing.T, name string, body func(a *Assembler)) *UnitImage {
	t.Helper()
	a := NewAssembler()
	a.SetFlags(UnitFunction)
	a.SetName(name)
	body(a)
	img, err := a.Build()
	if err != nil {
		t.Fatalf("Build %s: %v", name, err)
	}
	return img
}

// runAssembled runs a as global code.
func runAssembled(t *testing.T, vm *VM, a *Assembler) (Value, error) {
	t.Helper()
	return vm.RunGlobal(linkAssembled(t, vm, a))
}

// mustRun runs a as global code and fails the test on an exception.
func mustRun(t *testing.T, vm *VM, a *Assembler) Value {
	t.Helper()
	r, err := runAssembled(t, vm, a)
	if err != nil {
		t.Fatalf("RunGlobal: %v", err)
	}
	return r
}

// str converts v with ToString and returns the Go string.
func str(t *testing.T, vm *VM, v Value) string {
	t.Helper()
	s := vm.ToString(v)
	if s.IsError() {
		t.Fatalf("ToString(%v) threw", v)
	}
	defer vm.FreeValue(s)
	return vm.GoString(s)
}

// exceptionOf returns the script exception carried by err.
func exceptionOf(t *testing.T, err error) *Exception {
	t.Helper()
	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("error = %v, want *Exception", err)
	}
	return exc
}

// registerCounter installs a global function that counts its calls.
func registerCounter(vm *VM, name string) *int {
	n := new(int)
	vm.Register(name, 0, func(vm *VM, call Call) (Value, error) {
		*n++
		return Undefined, nil
	})
	return n
}

// emitCall emits name() as a statement.
func emitCall(a *Assembler, name string) {
	a.Emit(OpPushLiteral, a.Ident(name))
	a.EmitByte(OpCall, 0)
}
