package vm

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Expressions and completion values
// ---------------------------------------------------------------------------

func TestRunCompletionValue(t *testing.T) {
	tests := []struct {
		name  string
		build func(a *Assembler)
		want  string
	}{
		{"integer add", func(a *Assembler) {
			a.Emit(OpAdd+2, a.Number(1), a.Number(2))
			a.Emit(OpPopBlock)
		}, "3"},
		{"string concat", func(a *Assembler) {
			a.Emit(OpAdd+2, a.String("foo"), a.String("bar"))
			a.Emit(OpPopBlock)
		}, "foobar"},
		{"number plus string", func(a *Assembler) {
			a.Emit(OpAdd+2, a.Number(1.5), a.String("x"))
			a.Emit(OpPopBlock)
		}, "1.5x"},
		{"var declaration", func(a *Assembler) {
			x := a.Ident("x")
			a.Emit(OpDefineVar, x)
			a.Emit(OpAssignLiteralSetIdent, a.Number(5), x)
			a.Emit(OpPushLiteral, x)
			a.Emit(OpPopBlock)
		}, "5"},
		{"typeof unresolvable", func(a *Assembler) {
			a.Emit(OpTypeofIdent, a.Ident("nope"))
			a.Emit(OpPopBlock)
		}, "undefined"},
		{"register postfix increment", func(a *Assembler) {
			r := a.Register("r")
			a.Emit(OpAssignLiteralSetIdent, a.Number(41), r)
			a.Emit(OpPostIncr+3, r)
			a.Emit(OpPop)
			a.Emit(OpPushLiteral, r)
			a.Emit(OpPopBlock)
		}, "42"},
		{"object property", func(a *Assembler) {
			a.Emit(OpPushObject)
			a.EmitByte(OpPushNumberPosByte, 6)
			a.Emit(OpSetProperty, a.String("seven"))
			a.Emit(OpPropLiteralGet, a.String("seven"))
			a.Emit(OpPopBlock)
		}, "7"},
		{"strict equality", func(a *Assembler) {
			a.Emit(OpStrictEqual+2, a.Number(2), a.Number(2))
			a.Emit(OpPopBlock)
		}, "true"},
		{"no expression statement", func(a *Assembler) {
			a.Emit(OpNop)
		}, "undefined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			a := NewAssembler()
			tt.build(a)
			r := mustRun(t, vm, a)
			defer vm.FreeValue(r)
			if got := str(t, vm, r); got != tt.want {
				t.Errorf("completion = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIntegerOverflowProducesFloat(t *testing.T) {
	vm := newTestVM(t)
	a := NewAssembler()
	a.Emit(OpAdd+2, a.Number(IntegerMax), a.Number(1))
	a.Emit(OpPopBlock)
	r := mustRun(t, vm, a)
	defer vm.FreeValue(r)

	if !r.IsFloat() {
		t.Fatalf("result %v is not a float", r)
	}
	if got := vm.Number(r); got != float64(IntegerMax)+1 {
		t.Errorf("result = %v, want %v", got, float64(IntegerMax)+1)
	}
}

func TestUnresolvableReference(t *testing.T) {
	vm := newTestVM(t)
	a := NewAssembler()
	a.Emit(OpPushLiteral, a.Ident("missing"))
	a.Emit(OpPopBlock)

	_, err := runAssembled(t, vm, a)
	exc := exceptionOf(t, err)
	defer vm.FreeValue(exc.Value)
	if exc.Message != "ReferenceError: missing is not defined" {
		t.Errorf("message = %q", exc.Message)
	}
}

func TestThrownPrimitive(t *testing.T) {
	vm := newTestVM(t)
	a := NewAssembler()
	a.Emit(OpPushLiteral, a.String("boom"))
	a.Emit(OpThrow)

	_, err := runAssembled(t, vm, a)
	exc := exceptionOf(t, err)
	defer vm.FreeValue(exc.Value)
	if got := str(t, vm, exc.Value); got != "boom" {
		t.Errorf("thrown = %q, want boom", got)
	}
	if vm.HasException() {
		t.Error("exception still pending after Run returned")
	}
}

// ---------------------------------------------------------------------------
// try / catch / finally
// ---------------------------------------------------------------------------

// emitTryFinally emits try { body } finally { mark() }.
func emitTryFinally(a *Assembler, body func()) {
	fin, end := a.NewLabel(), a.NewLabel()
	a.EmitExtBranch(ExtTryCreateContext, fin)
	body()
	a.Mark(fin)
	a.EmitExtBranch(ExtFinally, end)
	emitCall(a, "mark")
	a.Emit(OpContextEnd)
	a.Mark(end)
}

func TestFinallyRunsOnce(t *testing.T) {
	tests := []struct {
		name    string
		build   func(t *testing.T, a *Assembler)
		want    string
		wantErr string
	}{
		{"fallthrough", func(t *testing.T, a *Assembler) {
			emitTryFinally(a, func() {
				a.EmitByte(OpPushNumberPosByte, 0)
				a.Emit(OpPopBlock)
			})
		}, "1", ""},
		{"throw caught", func(t *testing.T, a *Assembler) {
			catch, fin, end := a.NewLabel(), a.NewLabel(), a.NewLabel()
			e := a.Ident("e")
			a.EmitExtBranch(ExtTryCreateContext, catch)
			a.Emit(OpPushLiteral, a.String("boom"))
			a.Emit(OpThrow)
			a.Mark(catch)
			a.EmitExtBranch(ExtCatch, fin)
			a.Emit(OpAssignSetIdent, e)
			a.Emit(OpPushLiteral, e)
			a.Emit(OpPopBlock)
			a.Mark(fin)
			a.EmitExtBranch(ExtFinally, end)
			emitCall(a, "mark")
			a.Emit(OpContextEnd)
			a.Mark(end)
		}, "boom", ""},
		{"throw uncaught", func(t *testing.T, a *Assembler) {
			emitTryFinally(a, func() {
				a.Emit(OpPushLiteral, a.String("escaped"))
				a.Emit(OpThrow)
			})
		}, "", "escaped"},
		{"return", func(t *testing.T, a *Assembler) {
			fn := buildFunction(t, "ret", func(a *Assembler) {
				emitTryFinally(a, func() {
					a.Emit(OpReturnWithLiteral, a.Number(7))
				})
			})
			a.Emit(OpPushLiteral, a.Function(fn))
			a.EmitByte(OpCallBlock, 0)
		}, "7", ""},
		{"break out of loop", func(t *testing.T, a *Assembler) {
			top, exit := a.NewLabel(), a.NewLabel()
			a.Mark(top)
			emitTryFinally(a, func() {
				a.EmitBranch(OpJumpForwardExitContext, exit)
			})
			a.EmitBranch(OpJumpForward, top)
			a.Mark(exit)
			a.Emit(OpPushLiteral, a.String("after"))
			a.Emit(OpPopBlock)
		}, "after", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			marks := registerCounter(vm, "mark")
			a := NewAssembler()
			tt.build(t, a)

			r, err := runAssembled(t, vm, a)
			if tt.wantErr != "" {
				exc := exceptionOf(t, err)
				defer vm.FreeValue(exc.Value)
				if got := str(t, vm, exc.Value); got != tt.wantErr {
					t.Errorf("thrown = %q, want %q", got, tt.wantErr)
				}
			} else {
				if err != nil {
					t.Fatalf("RunGlobal: %v", err)
				}
				defer vm.FreeValue(r)
				if got := str(t, vm, r); got != tt.want {
					t.Errorf("completion = %q, want %q", got, tt.want)
				}
			}
			if *marks != 1 {
				t.Errorf("finally ran %d times, want 1", *marks)
			}
		})
	}
}

func TestCatchWithoutFinally(t *testing.T) {
	vm := newTestVM(t)
	a := NewAssembler()
	catch, end := a.NewLabel(), a.NewLabel()
	e := a.Register("e")
	a.EmitExtBranch(ExtTryCreateContext, catch)
	a.Emit(OpPushLiteral, a.Ident("undefinedName"))
	a.Emit(OpPop)
	a.Mark(catch)
	a.EmitExtBranch(ExtCatch, end)
	a.Emit(OpAssignSetIdent, e)
	a.Emit(OpPushLiteral, e)
	a.Emit(OpPropLiteralGet, a.String("name"))
	a.Emit(OpPopBlock)
	a.Mark(end)
	a.Emit(OpContextEnd)

	r := mustRun(t, vm, a)
	defer vm.FreeValue(r)
	if got := str(t, vm, r); got != "ReferenceError" {
		t.Errorf("caught %q, want ReferenceError", got)
	}
}

// ---------------------------------------------------------------------------
// for-in
// ---------------------------------------------------------------------------

// emitForInConcat emits: s = ""; for (k in o) { body; s = s + k }; s
// where o is left on the stack by pushObj.
func emitForInConcat(a *Assembler, pushObj func(), body func()) {
	s, k := a.Register("s"), a.Register("k")
	a.Emit(OpAssignLiteralSetIdent, a.String(""), s)
	pushObj()
	loop, end := a.NewLabel(), a.NewLabel()
	a.EmitExtBranch(ExtForInCreateContext, end)
	a.Mark(loop)
	a.EmitExt(ExtForInGetNext)
	a.Emit(OpAssignSetIdent, k)
	if body != nil {
		body()
	}
	a.Emit(OpAdd+2, s, k)
	a.Emit(OpAssignSetIdent, s)
	a.EmitExtBranch(ExtForInHasNext, loop)
	a.Mark(end)
	a.Emit(OpPushLiteral, s)
	a.Emit(OpPopBlock)
}

func emitObject(a *Assembler, keys ...string) {
	a.Emit(OpPushObject)
	for i, k := range keys {
		a.EmitByte(OpPushNumberPosByte, byte(i))
		a.Emit(OpSetProperty, a.String(k))
	}
}

func TestForIn(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, a *Assembler)
		want  string
	}{
		{"insertion order with indices first", func(t *testing.T, a *Assembler) {
			emitForInConcat(a, func() { emitObject(a, "b", "a", "1", "0") }, nil)
		}, "01ba"},
		{"deleted keys are skipped", func(t *testing.T, a *Assembler) {
			o := a.Register("o")
			emitObject(a, "a", "b", "c")
			a.Emit(OpAssignSetIdent, o)
			emitForInConcat(a, func() { a.Emit(OpPushLiteral, o) }, func() {
				a.Emit(OpPushLiteral, o)
				a.Emit(OpPushLiteral, a.String("c"))
				a.Emit(OpDeletePushResult)
				a.Emit(OpPop)
			})
		}, "ab"},
		{"inherited keys", func(t *testing.T, a *Assembler) {
			ctor := buildFunction(t, "C", func(a *Assembler) {
				a.Emit(OpPushThis)
				a.EmitByte(OpPushNumberPosByte, 0)
				a.Emit(OpAssignPropLiteral, a.String("own"))
			})
			c := a.Register("C")
			a.Emit(OpAssignLiteralSetIdent, a.Function(ctor), c)
			a.Emit(OpPushLiteral, c)
			a.Emit(OpPropLiteralGet, a.String("prototype"))
			a.EmitByte(OpPushNumberPosByte, 1)
			a.Emit(OpAssignPropLiteral, a.String("inherited"))
			emitForInConcat(a, func() {
				a.Emit(OpPushLiteral, c)
				a.EmitByte(OpNew, 0)
			}, nil)
		}, "owninherited"},
		{"null is skipped", func(t *testing.T, a *Assembler) {
			emitForInConcat(a, func() { a.Emit(OpPushNull) }, nil)
		}, ""},
		{"empty object", func(t *testing.T, a *Assembler) {
			emitForInConcat(a, func() { a.Emit(OpPushObject) }, nil)
		}, ""},
		{"string indices", func(t *testing.T, a *Assembler) {
			emitForInConcat(a, func() { a.Emit(OpPushLiteral, a.String("xyz")) }, nil)
		}, "012"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			a := NewAssembler()
			tt.build(t, a)
			r := mustRun(t, vm, a)
			defer vm.FreeValue(r)
			if got := str(t, vm, r); got != tt.want {
				t.Errorf("keys = %q, want %q", got, tt.want)
			}
			if n := vm.Heap().Stats().Collections; n != 0 {
				t.Errorf("%d key collections still live", n)
			}
		})
	}
}

func TestForInBreakThroughFinally(t *testing.T) {
	vm := newTestVM(t)
	marks := registerCounter(vm, "mark")
	a := NewAssembler()
	k := a.Register("k")
	emitObject(a, "a", "b", "c")
	loop, end := a.NewLabel(), a.NewLabel()
	a.EmitExtBranch(ExtForInCreateContext, end)
	a.Mark(loop)
	a.EmitExt(ExtForInGetNext)
	a.Emit(OpAssignSetIdent, k)
	emitTryFinally(a, func() {
		a.EmitBranch(OpJumpForwardExitContext, end)
	})
	a.EmitExtBranch(ExtForInHasNext, loop)
	a.Mark(end)
	a.Emit(OpPushLiteral, k)
	a.Emit(OpPopBlock)

	r := mustRun(t, vm, a)
	defer vm.FreeValue(r)
	if got := str(t, vm, r); got != "a" {
		t.Errorf("last key = %q, want a", got)
	}
	if *marks != 1 {
		t.Errorf("finally ran %d times, want 1", *marks)
	}
	if n := vm.Heap().Stats().Collections; n != 0 {
		t.Errorf("%d key collections still live after break", n)
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

func TestCalls(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T, a *Assembler)
		want  string
	}{
		{"missing arguments are undefined", func(t *testing.T, a *Assembler) {
			fn := buildFunction(t, "p", func(a *Assembler) {
				a.Argument("a")
				b := a.Argument("b")
				a.Emit(OpTypeofIdent, b)
				a.Emit(OpReturn)
			})
			a.Emit(OpPushLiteral, a.Function(fn))
			a.EmitByte(OpPushNumberPosByte, 0)
			a.EmitByte(OpCallBlock, 1)
		}, "undefined"},
		{"rest parameter", func(t *testing.T, a *Assembler) {
			fn := buildFunction(t, "r", func(a *Assembler) {
				a.SetFlags(UnitFunction | UnitRestParam)
				a.Argument("a")
				rest := a.Argument("rest")
				a.Emit(OpPushLiteral, rest)
				a.Emit(OpPropLiteralGet, a.String("length"))
				a.Emit(OpReturn)
			})
			a.Emit(OpPushLiteral, a.Function(fn))
			for i := 0; i < 4; i++ {
				a.EmitByte(OpPushNumberPosByte, byte(i))
			}
			a.EmitByte(OpCallBlock, 4)
		}, "3"},
		{"arguments object", func(t *testing.T, a *Assembler) {
			fn := buildFunction(t, "args", func(a *Assembler) {
				a.SetFlags(UnitFunction | UnitArgumentsNeeded)
				a.Emit(OpPushLiteral, a.Ident("arguments"))
				a.Emit(OpPropLiteralGet, a.String("length"))
				a.Emit(OpReturn)
			})
			a.Emit(OpPushLiteral, a.Function(fn))
			a.Emit(OpPushTrue)
			a.Emit(OpPushNull)
			a.EmitByte(OpCallBlock, 2)
		}, "2"},
		{"closure counter", func(t *testing.T, a *Assembler) {
			inner := buildFunction(t, "next", func(a *Assembler) {
				a.Emit(OpPreIncr+3, a.Ident("n"))
				a.Emit(OpReturn)
			})
			outer := buildFunction(t, "counter", func(a *Assembler) {
				n := a.Ident("n")
				a.Emit(OpDefineVar, n)
				a.Emit(OpAssignLiteralSetIdent, a.Number(0), n)
				a.Emit(OpReturnWithLiteral, a.Function(inner))
			})
			c := a.Register("c")
			a.Emit(OpPushLiteral, a.Function(outer))
			a.EmitByte(OpCallPushResult, 0)
			a.Emit(OpAssignSetIdent, c)
			for i := 0; i < 2; i++ {
				a.Emit(OpPushLiteral, c)
				a.EmitByte(OpCall, 0)
			}
			a.Emit(OpPushLiteral, c)
			a.EmitByte(OpCallBlock, 0)
		}, "3"},
		{"method call binds this", func(t *testing.T, a *Assembler) {
			fn := buildFunction(t, "get", func(a *Assembler) {
				a.Emit(OpPropThisLiteralGet, a.String("v"))
				a.Emit(OpReturn)
			})
			emitObject(a, "v")
			a.Emit(OpPushLiteral, a.Function(fn))
			a.Emit(OpSetProperty, a.String("get"))
			a.Emit(OpPushPropLiteralReference, a.String("get"))
			a.EmitByte(OpCallPropBlock, 0)
		}, "1"},
		{"constructor", func(t *testing.T, a *Assembler) {
			fn := buildFunction(t, "Point", func(a *Assembler) {
				x := a.Argument("x")
				a.Emit(OpPushThis)
				a.Emit(OpPushLiteral, x)
				a.Emit(OpAssignPropLiteral, a.String("x"))
			})
			a.Emit(OpPushLiteral, a.Function(fn))
			a.EmitByte(OpPushNumberPosByte, 8)
			a.EmitByte(OpNew, 1)
			a.Emit(OpPropLiteralGet, a.String("x"))
			a.Emit(OpPopBlock)
		}, "9"},
		{"host function", func(t *testing.T, a *Assembler) {
			a.Emit(OpPushLiteral, a.Ident("twice"))
			a.EmitByte(OpPushNumberPosByte, 20)
			a.EmitByte(OpCallBlock, 1)
		}, "42"},
		{"resolved base", func(t *testing.T, a *Assembler) {
			a.EmitExt(ExtResolveBase, a.Ident("twice"))
			a.EmitByte(OpPushNumberPosByte, 1)
			a.EmitByte(OpCallPropBlock, 1)
		}, "4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := newTestVM(t)
			vm.Register("twice", 1, func(vm *VM, call Call) (Value, error) {
				n, _ := vm.ToNumber(call.Arg(0))
				return vm.NumberValue(2 * n), nil
			})
			a := NewAssembler()
			tt.build(t, a)
			r := mustRun(t, vm, a)
			defer vm.FreeValue(r)
			if got := str(t, vm, r); got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCallNonFunction(t *testing.T) {
	vm := newTestVM(t)
	a := NewAssembler()
	a.EmitByte(OpPushNumberPosByte, 2)
	a.EmitByte(OpCall, 0)

	_, err := runAssembled(t, vm, a)
	exc := exceptionOf(t, err)
	defer vm.FreeValue(exc.Value)
	if !strings.HasPrefix(exc.Message, "TypeError:") {
		t.Errorf("message = %q, want a TypeError", exc.Message)
	}
}

func TestHostErrorBecomesException(t *testing.T) {
	vm := newTestVM(t)
	vm.Register("fail", 0, func(vm *VM, call Call) (Value, error) {
		return Undefined, errTestHost
	})
	a := NewAssembler()
	emitCall(a, "fail")

	_, err := runAssembled(t, vm, a)
	exc := exceptionOf(t, err)
	defer vm.FreeValue(exc.Value)
	if exc.Message != "Error: host failure" {
		t.Errorf("message = %q", exc.Message)
	}
}

type testError string

func (e testError) Error() string { return string(e) }

const errTestHost = testError("host failure")

// ---------------------------------------------------------------------------
// Recursion limit and stop callback
// ---------------------------------------------------------------------------

// emitRecursive defines global function f() { return f() } and calls it.
func emitRecursive(t *testing.T, a *Assembler, call func()) {
	fn := buildFunction(t, "f", func(a *Assembler) {
		a.Emit(OpPushLiteral, a.Ident("f"))
		a.EmitByte(OpCallPushResult, 0)
		a.Emit(OpReturn)
	})
	f := a.Ident("f")
	a.Emit(OpDefineVar, f)
	a.Emit(OpAssignLiteralSetIdent, a.Function(fn), f)
	call()
}

func TestRecursionLimit(t *testing.T) {
	vm := New(Config{MaxRecursionDepth: 64})
	a := NewAssembler()
	emitRecursive(t, a, func() { emitCall(a, "f") })

	_, err := runAssembled(t, vm, a)
	exc := exceptionOf(t, err)
	defer vm.FreeValue(exc.Value)
	if exc.Message != "RangeError: Maximum call stack size exceeded" {
		t.Errorf("message = %q", exc.Message)
	}
	if vm.depth != 0 {
		t.Errorf("depth = %d after unwinding, want 0", vm.depth)
	}
}

func TestRecursionLimitIsCatchable(t *testing.T) {
	vm := New(Config{MaxRecursionDepth: 64})
	a := NewAssembler()
	emitRecursive(t, a, func() {
		catch, end := a.NewLabel(), a.NewLabel()
		e := a.Register("e")
		a.EmitExtBranch(ExtTryCreateContext, catch)
		emitCall(a, "f")
		a.Mark(catch)
		a.EmitExtBranch(ExtCatch, end)
		a.Emit(OpAssignSetIdent, e)
		a.Emit(OpPushLiteral, e)
		a.Emit(OpPropLiteralGet, a.String("name"))
		a.Emit(OpPopBlock)
		a.Mark(end)
		a.Emit(OpContextEnd)
	})

	r := mustRun(t, vm, a)
	defer vm.FreeValue(r)
	if got := str(t, vm, r); got != "RangeError" {
		t.Errorf("caught %q, want RangeError", got)
	}

	// the engine is usable again
	b := NewAssembler()
	b.Emit(OpAdd+2, b.Number(2), b.Number(3))
	b.Emit(OpPopBlock)
	r2 := mustRun(t, vm, b)
	if got := str(t, vm, r2); got != "5" {
		t.Errorf("follow-up run = %q, want 5", got)
	}
}

func TestStopCallback(t *testing.T) {
	polls := 0
	vm := New(Config{
		StopFrequency: 2,
		Stop: func(vm *VM) Value {
			polls++
			if polls == 3 {
				return vm.NewError(CommonError, "halted")
			}
			return Undefined
		},
	})
	a := NewAssembler()
	loop := a.NewLabel()
	a.Mark(loop)
	a.EmitBranch(OpJumpForward, loop)

	_, err := runAssembled(t, vm, a)
	exc := exceptionOf(t, err)
	defer vm.FreeValue(exc.Value)
	if exc.Message != "Error: halted" {
		t.Errorf("message = %q", exc.Message)
	}
	if polls != 3 {
		t.Errorf("stop polled %d times, want 3", polls)
	}
	if got := vm.Stats().Stops; got != 1 {
		t.Errorf("Stats().Stops = %d, want 1", got)
	}
}

func TestStopCallbackCaughtByScript(t *testing.T) {
	stop := true
	vm := New(Config{
		StopFrequency: 1,
		Stop: func(vm *VM) Value {
			if stop {
				stop = false
				return vm.NewString("stopped")
			}
			return Undefined
		},
	})
	a := NewAssembler()
	catch, end, loop := a.NewLabel(), a.NewLabel(), a.NewLabel()
	e := a.Register("e")
	a.EmitExtBranch(ExtTryCreateContext, catch)
	a.Mark(loop)
	a.EmitBranch(OpJumpForward, loop)
	a.Mark(catch)
	a.EmitExtBranch(ExtCatch, end)
	a.Emit(OpAssignSetIdentBlock, e)
	a.Mark(end)
	a.Emit(OpContextEnd)

	r := mustRun(t, vm, a)
	defer vm.FreeValue(r)
	if got := str(t, vm, r); got != "stopped" {
		t.Errorf("caught %q, want stopped", got)
	}
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func TestClassInheritance(t *testing.T) {
	vm := newTestVM(t)
	a := NewAssembler()

	// class A { constructor() { this.x = 1 } m() { return 10 } }
	ctorA := buildFunction(t, "A", func(a *Assembler) {
		a.SetFlags(UnitFunction | UnitClassConstructor)
		a.Emit(OpPushThis)
		a.EmitByte(OpPushNumberPosByte, 0)
		a.Emit(OpAssignPropLiteral, a.String("x"))
	})
	mA := buildFunction(t, "m", func(a *Assembler) {
		a.Emit(OpReturnWithLiteral, a.Number(10))
	})
	classA := a.Ident("A")
	a.Emit(OpDefineVar, classA)
	a.Emit(OpPushLiteral, a.Function(ctorA))
	a.EmitExt(ExtInitializeClass, a.String("A"))
	a.Emit(OpPushLiteral, a.Function(mA))
	a.EmitExt(ExtSetClassMethod, a.String("m"))
	a.EmitExtByte(ExtClassContextEnd, 0)
	a.Emit(OpAssignSetIdent, classA)

	// class B extends A { m() { return super.m() + 1 } }
	mB := buildFunction(t, "m", func(a *Assembler) {
		a.EmitExt(ExtSuperPropLiteralReference, a.String("m"))
		a.EmitByte(OpCallPropPushResult, 0)
		a.Emit(OpAdd+1, a.Number(1))
		a.Emit(OpReturn)
	})
	classB := a.Ident("B")
	end := a.NewLabel()
	a.Emit(OpDefineVar, classB)
	a.Emit(OpPushLiteral, classA)
	a.EmitExtBranch(ExtSuperClassCreateContext, end)
	a.EmitExt(ExtPushImplicitConstructor)
	a.EmitExt(ExtInitializeClass, a.String("B"))
	a.Emit(OpPushLiteral, a.Function(mB))
	a.EmitExt(ExtSetClassMethod, a.String("m"))
	a.EmitExtByte(ExtClassContextEnd, 1)
	a.Mark(end)
	a.Emit(OpAssignSetIdent, classB)

	// new B()
	a.Emit(OpPushLiteral, classB)
	a.EmitByte(OpNew, 0)
	a.Emit(OpPopBlock)

	obj := mustRun(t, vm, a)
	defer vm.FreeValue(obj)

	x, err := vm.Get(obj, "x")
	if err != nil {
		t.Fatalf("Get x: %v", err)
	}
	if got := str(t, vm, x); got != "1" {
		t.Errorf("x = %q, want 1 (parent constructor not run?)", got)
	}

	m, err := vm.Get(obj, "m")
	if err != nil {
		t.Fatalf("Get m: %v", err)
	}
	defer vm.FreeValue(m)
	r, err := vm.Call(m, obj)
	if err != nil {
		t.Fatalf("Call m: %v", err)
	}
	if got := str(t, vm, r); got != "11" {
		t.Errorf("m() = %q, want 11", got)
	}

	b, err := vm.Get(vm.Global(), "B")
	if err != nil {
		t.Fatalf("Get B: %v", err)
	}
	defer vm.FreeValue(b)
	if _, err := vm.Call(b, Undefined); err == nil {
		t.Error("calling a class without new succeeded")
	}
	name, _ := vm.Get(b, "name")
	defer vm.FreeValue(name)
	if got := str(t, vm, name); got != "B" {
		t.Errorf("B.name = %q", got)
	}
}

func TestSuperOutsideMethod(t *testing.T) {
	vm := newTestVM(t)
	fn := buildFunction(t, "plain", func(a *Assembler) {
		a.EmitExt(ExtSuperPropLiteralReference, a.String("m"))
		a.Emit(OpReturn)
	})
	a := NewAssembler()
	a.Emit(OpPushLiteral, a.Function(fn))
	a.EmitByte(OpCall, 0)

	_, err := runAssembled(t, vm, a)
	exc := exceptionOf(t, err)
	defer vm.FreeValue(exc.Value)
	if !strings.HasPrefix(exc.Message, "SyntaxError:") {
		t.Errorf("message = %q, want a SyntaxError", exc.Message)
	}
}

// ---------------------------------------------------------------------------
// with
// ---------------------------------------------------------------------------

func TestWithScope(t *testing.T) {
	vm := newTestVM(t)
	a := NewAssembler()
	end := a.NewLabel()
	emitObject(a, "p")
	a.EmitExtBranch(ExtWithCreateContext, end)
	a.Emit(OpAdd+2, a.Ident("p"), a.Number(100))
	a.Emit(OpPopBlock)
	a.Mark(end)
	a.Emit(OpContextEnd)

	r := mustRun(t, vm, a)
	defer vm.FreeValue(r)
	if got := str(t, vm, r); got != "101" {
		t.Errorf("result = %q, want 101", got)
	}
}
