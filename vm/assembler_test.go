package vm

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestBranchRelaxation(t *testing.T) {
	tests := []struct {
		name  string
		nops  int
		width int
	}{
		{"short", 10, 1},
		{"two bytes", 300, 2},
		{"three bytes", 70000, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler()
			skip := a.NewLabel()
			a.EmitBranch(OpJumpForward, skip)
			for i := 0; i < tt.nops; i++ {
				a.Emit(OpNop)
			}
			a.Mark(skip)
			a.Emit(OpPushLiteral, a.String("jumped"))
			a.Emit(OpPopBlock)

			img, err := a.Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got := Opcode(img.Code[0]); got != OpJumpForward+Opcode(tt.width-1) {
				t.Fatalf("branch opcode = %s, want width %d", got, tt.width)
			}

			vm := newTestVM(t)
			u, err := vm.Link(img)
			if err != nil {
				t.Fatalf("Link: %v", err)
			}
			defer vm.ReleaseUnit(u)
			r, err := vm.RunGlobal(u)
			if err != nil {
				t.Fatalf("RunGlobal: %v", err)
			}
			if got := str(t, vm, r); got != "jumped" {
				t.Errorf("completion = %q", got)
			}
		})
	}
}

func TestBackwardBranch(t *testing.T) {
	vm := newTestVM(t)
	a := NewAssembler()
	i := a.Register("i")
	loop := a.NewLabel()
	a.Emit(OpAssignLiteralSetIdent, a.Number(0), i)
	a.Mark(loop)
	a.Emit(OpPreIncr+2, i)
	a.Emit(OpPushLiteral, i)
	a.Emit(OpLess+1, a.Number(1000))
	a.EmitBranch(OpBranchIfTrueForward, loop)
	a.Emit(OpPushLiteral, i)
	a.Emit(OpPopBlock)

	img, err := a.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(mustDisassemble(t, img), "BRANCH_IF_TRUE_BACKWARD") {
		t.Error("branch to a marked label was not emitted backward")
	}
	u, err := vm.Link(img)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	defer vm.ReleaseUnit(u)
	r, err := vm.RunGlobal(u)
	if err != nil {
		t.Fatalf("RunGlobal: %v", err)
	}
	if got := str(t, vm, r); got != "1000" {
		t.Errorf("i = %s, want 1000", got)
	}
}

func TestWideLiterals(t *testing.T) {
	a := NewAssembler()
	var last Literal
	for i := 0; i < 600; i++ {
		last = a.String(fmt.Sprintf("s%d", i))
	}
	a.Emit(OpPushLiteral, last)
	a.Emit(OpPopBlock)

	img, err := a.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if img.Flags&UnitUint16Arguments == 0 {
		t.Fatal("600 literals did not switch to the wide encoding")
	}

	vm := newTestVM(t)
	u, err := vm.Link(img)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	defer vm.ReleaseUnit(u)
	r, err := vm.RunGlobal(u)
	if err != nil {
		t.Fatalf("RunGlobal: %v", err)
	}
	if got := str(t, vm, r); got != "s599" {
		t.Errorf("completion = %q, want s599", got)
	}
}

func TestTwoByteSmallLiterals(t *testing.T) {
	a := NewAssembler()
	var lit Literal
	for i := 0; i < 300; i++ {
		lit = a.Number(float64(i) + 0.5)
	}
	a.Emit(OpPushLiteral, lit)
	a.Emit(OpPopBlock)

	img, err := a.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if img.Flags&UnitUint16Arguments != 0 {
		t.Fatal("300 literals switched to the wide encoding")
	}
	vm := newTestVM(t)
	u, err := vm.Link(img)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	defer vm.ReleaseUnit(u)
	r, err := vm.RunGlobal(u)
	if err != nil {
		t.Fatalf("RunGlobal: %v", err)
	}
	if got := str(t, vm, r); got != "299.5" {
		t.Errorf("completion = %q, want 299.5", got)
	}
}

func TestAssemblerErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(a *Assembler)
	}{
		{"missing literal", func(a *Assembler) { a.Emit(OpPushLiteral) }},
		{"extra literal", func(a *Assembler) { a.Emit(OpPop, a.Number(1)) }},
		{"byte operand through Emit", func(a *Assembler) { a.Emit(OpCall) }},
		{"branch through EmitByte", func(a *Assembler) { a.EmitByte(OpPop, 1) }},
		{"unmarked label", func(a *Assembler) { a.EmitBranch(OpJumpForward, a.NewLabel()) }},
		{"label marked twice", func(a *Assembler) {
			l := a.NewLabel()
			a.Mark(l)
			a.Mark(l)
			a.Emit(OpNop)
		}},
		{"argument after register", func(a *Assembler) {
			a.Register("r")
			a.Argument("x")
			a.Emit(OpNop)
		}},
		{"backward exit jump", func(a *Assembler) {
			l := a.NewLabel()
			a.Mark(l)
			a.EmitBranch(OpJumpForwardExitContext, l)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler()
			tt.build(a)
			if _, err := a.Build(); err == nil {
				t.Error("Build succeeded")
			}
		})
	}
}

func TestLinkRejectsInvalidImages(t *testing.T) {
	tests := []struct {
		name string
		img  *UnitImage
	}{
		{"nil", nil},
		{"empty code", &UnitImage{StackLimit: 4}},
		{"truncated literal", &UnitImage{Code: []byte{byte(OpPushLiteral)}}},
		{"literal out of range", &UnitImage{Code: []byte{byte(OpPushLiteral), 3}}},
		{"branch out of range", &UnitImage{Code: []byte{byte(OpJumpForward), 50}}},
		{"truncated branch", &UnitImage{Code: []byte{byte(OpJumpForward + 2), 0}}},
		{"unknown opcode", &UnitImage{Code: []byte{0xFF}}},
		{"unknown extended opcode", &UnitImage{Code: []byte{byte(OpExt), 0xFF}}},
		{"registers below arguments", &UnitImage{ArgumentEnd: 2, RegisterEnd: 1, Code: []byte{byte(OpNop)}}},
		{"regexp unit", &UnitImage{Flags: UnitRegexp, Code: []byte{byte(OpNop)}}},
		{"non-function child", &UnitImage{
			Code:      []byte{byte(OpNop)},
			Functions: []*UnitImage{{Code: []byte{byte(OpNop)}}},
		}},
		{"pop from an empty stack", &UnitImage{Code: []byte{byte(OpPop)}}},
		{"binary operator short an operand", &UnitImage{
			StackLimit: 1,
			Code:       []byte{byte(OpPushTrue), byte(OpAdd), byte(OpPopBlock)},
		}},
		{"call without a function", &UnitImage{
			StackLimit: 1,
			Code:       []byte{byte(OpPushTrue), byte(OpCall), 1},
		}},
		{"assignment without a reference", &UnitImage{
			StackLimit: 1,
			Code:       []byte{byte(OpPushTrue), byte(OpAssign)},
		}},
		{"stack limit too small", &UnitImage{Code: []byte{byte(OpPushTrue), byte(OpPopBlock)}}},
		{"context end without a record", &UnitImage{Code: []byte{byte(OpContextEnd)}}},
		{"for-in step outside a loop", &UnitImage{Code: []byte{byte(OpExt), byte(ExtForInGetNext)}}},
		{"try without a handler", &UnitImage{
			Code: []byte{byte(OpExt), byte(ExtTryCreateContext), 3, byte(OpNop)},
		}},
		{"branch into an instruction", &UnitImage{
			StackLimit: 1,
			Code:       []byte{byte(OpJumpForward), 3, byte(OpPushNumberPosByte), 7, byte(OpPopBlock)},
		}},
	}
	vm := newTestVM(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.img); !errors.Is(err, ErrInvalidUnit) {
				t.Errorf("Validate = %v, want ErrInvalidUnit", err)
			}
			u, err := vm.Link(tt.img)
			if err == nil {
				vm.ReleaseUnit(u)
				t.Fatal("Link succeeded")
			}
			if !errors.Is(err, ErrInvalidUnit) {
				t.Errorf("error %v does not wrap ErrInvalidUnit", err)
			}
		})
	}
}

func TestStackLimit(t *testing.T) {
	tests := []struct {
		name  string
		build func(a *Assembler)
		want  int
	}{
		{"no operands", func(a *Assembler) {
			a.Emit(OpNop)
		}, 0},
		{"binary expression", func(a *Assembler) {
			a.Emit(OpPushTrue)
			a.Emit(OpPushFalse)
			a.Emit(OpAdd)
			a.Emit(OpPopBlock)
		}, 2},
		{"resolved base call", func(a *Assembler) {
			a.EmitExt(ExtResolveBase, a.Ident("f"))
			a.EmitByte(OpPushNumberPosByte, 1)
			a.EmitByte(OpCallPropBlock, 1)
		}, 4},
		{"catch handler", func(a *Assembler) {
			catch, end := a.NewLabel(), a.NewLabel()
			e := a.Register("e")
			a.EmitExtBranch(ExtTryCreateContext, catch)
			a.Emit(OpPushTrue)
			a.Emit(OpThrow)
			a.Mark(catch)
			a.EmitExtBranch(ExtCatch, end)
			a.Emit(OpAssignSetIdent, e)
			a.Mark(end)
			a.Emit(OpContextEnd)
		}, 3},
		{"for-in record", func(a *Assembler) {
			loop, end := a.NewLabel(), a.NewLabel()
			k := a.Register("k")
			a.Emit(OpPushObject)
			a.EmitExtBranch(ExtForInCreateContext, end)
			a.Mark(loop)
			a.EmitExt(ExtForInGetNext)
			a.Emit(OpAssignSetIdent, k)
			a.EmitExtBranch(ExtForInHasNext, loop)
			a.Mark(end)
			a.Emit(OpNop)
		}, 5},
		{"logical or", func(a *Assembler) {
			end := a.NewLabel()
			a.Emit(OpPushFalse)
			a.EmitBranch(OpBranchIfLogicalTrue, end)
			a.Emit(OpPushTrue)
			a.Mark(end)
			a.Emit(OpPopBlock)
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssembler()
			tt.build(a)
			img, err := a.Build()
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if img.StackLimit != tt.want {
				t.Errorf("StackLimit = %d, want %d", img.StackLimit, tt.want)
			}
			if tt.want == 0 {
				return
			}
			img.StackLimit--
			if err := Validate(img); !errors.Is(err, ErrInvalidUnit) {
				t.Errorf("Validate with a short limit = %v, want ErrInvalidUnit", err)
			}
		})
	}
}

func TestSetStackLimitTooSmall(t *testing.T) {
	a := NewAssembler()
	a.SetStackLimit(1)
	a.Emit(OpPushTrue)
	a.Emit(OpPushFalse)
	a.Emit(OpAdd)
	a.Emit(OpPopBlock)
	if _, err := a.Build(); !errors.Is(err, ErrInvalidUnit) {
		t.Errorf("Build = %v, want ErrInvalidUnit", err)
	}
}

func mustDisassemble(t *testing.T, img *UnitImage) string {
	t.Helper()
	out, err := Disassemble(img)
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	return out
}

func TestDisassemble(t *testing.T) {
	fn := buildFunction(t, "inner", func(a *Assembler) {
		x := a.Argument("x")
		a.Emit(OpPushLiteral, x)
		a.Emit(OpReturn)
	})
	a := NewAssembler()
	a.SetName("main")
	a.Emit(OpPushLiteral, a.Function(fn))
	a.EmitByte(OpPushNumberPosByte, 4)
	a.EmitByte(OpCallBlock, 1)
	a.Emit(OpAssignLiteralSetIdent, a.String("hi"), a.Ident("greeting"))
	img, err := a.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out := mustDisassemble(t, img)
	for _, want := range []string{
		"unit main",
		"PUSH_LITERAL function:inner",
		"PUSH_NUMBER_POS_BYTE 4",
		"CALL_BLOCK 1",
		`ASSIGN_LITERAL_SET_IDENT "hi" greeting`,
		"  unit inner args=1 regs=1",
		"PUSH_LITERAL r0:x",
		"RETURN",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly lacks %q:\n%s", want, out)
		}
	}
}
