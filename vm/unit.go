package vm

import (
	"fmt"
	"math"
)

// UnitFlags are the status flags of a bytecode unit.
type UnitFlags uint16

const (
	UnitFunction UnitFlags = 1 << iota
	UnitRegexp             // reserved
	UnitStrict
	UnitUint16Arguments // wide literal index encoding
	UnitArrow
	UnitClassConstructor
	UnitRestParam
	UnitArgumentsNeeded
	UnitLexicalEnvNotNeeded
)

// ConstKind is the type of a constant literal.
type ConstKind uint8

const (
	ConstString ConstKind = iota
	ConstNumber
)

// Const is a constant literal of a unit image.
type Const struct {
	Kind ConstKind `cbor:"k"`
	Str  string    `cbor:"s,omitempty"`
	Num  float64   `cbor:"n,omitempty"`
}

// UnitImage is the portable form of a bytecode unit: plain data, produced by
// the assembler or decoded from a snapshot, turned into a runnable Unit by
// VM.Link.
//
// The literal index space is laid out as:
//   - [0, RegisterEnd):                 registers, the first ArgumentEnd of
//     which receive the call arguments
//   - [RegisterEnd, RegisterEnd+Idents): identifier names
//   - next len(Consts) indices:         constants
//   - next len(Functions) indices:      function templates
type UnitImage struct {
	Flags       UnitFlags    `cbor:"flags"`
	ArgumentEnd int          `cbor:"args"`
	RegisterEnd int          `cbor:"regs"`
	StackLimit  int          `cbor:"stack"`
	Name        string       `cbor:"name,omitempty"`
	Registers   []string     `cbor:"regnames,omitempty"`
	Idents      []string     `cbor:"idents,omitempty"`
	Consts      []Const      `cbor:"consts,omitempty"`
	Functions   []*UnitImage `cbor:"funcs,omitempty"`
	Code        []byte       `cbor:"code"`
}

// IdentEnd is the first literal index after the identifiers.
func (img *UnitImage) IdentEnd() int { return img.RegisterEnd + len(img.Idents) }

// ConstEnd is the first literal index after the constants.
func (img *UnitImage) ConstEnd() int { return img.IdentEnd() + len(img.Consts) }

// LiteralEnd is the size of the literal index space.
func (img *UnitImage) LiteralEnd() int { return img.ConstEnd() + len(img.Functions) }

// Unit is a linked bytecode unit. Units are reference counted: every
// function object created from a unit holds one reference, and the host
// holds the reference returned by Link.
type Unit struct {
	refs uint32

	Flags       UnitFlags
	argumentEnd int
	registerEnd int
	identEnd    int
	constEnd    int
	stackLimit  int
	code        []byte
	literals    []Value // identifier and constant values, from registerEnd
	functions   []*Unit
	name        Value
	image       *UnitImage
}

// Image returns the image the unit was linked from.
func (u *Unit) Image() *UnitImage { return u.image }

// Code returns the instruction bytes.
func (u *Unit) Code() []byte { return u.code }

func (u *Unit) wide() bool { return u.Flags&UnitUint16Arguments != 0 }

func (u *Unit) strict() bool { return u.Flags&UnitStrict != 0 }

// literal returns the borrowed value of an identifier or constant index.
func (u *Unit) literal(index int) Value { return u.literals[index-u.registerEnd] }

// ---------------------------------------------------------------------------
// Linking
// ---------------------------------------------------------------------------

// Link validates img and materializes its literals in the VM heap. The
// returned unit carries one reference owned by the caller; release it with
// ReleaseUnit.
func (vm *VM) Link(img *UnitImage) (*Unit, error) {
	if err := validateImage(img); err != nil {
		return nil, err
	}
	return vm.link(img), nil
}

func (vm *VM) link(img *UnitImage) *Unit {
	u := &Unit{
		refs:        1,
		Flags:       img.Flags,
		argumentEnd: img.ArgumentEnd,
		registerEnd: img.RegisterEnd,
		identEnd:    img.IdentEnd(),
		constEnd:    img.ConstEnd(),
		stackLimit:  img.StackLimit,
		code:        img.Code,
		name:        Empty,
		image:       img,
	}
	u.literals = make([]Value, 0, len(img.Idents)+len(img.Consts))
	for _, id := range img.Idents {
		u.literals = append(u.literals, vm.Intern(id))
	}
	for _, c := range img.Consts {
		switch c.Kind {
		case ConstString:
			u.literals = append(u.literals, vm.Intern(c.Str))
		case ConstNumber:
			if n, ok := floatToInteger(c.Num); ok {
				u.literals = append(u.literals, IntegerValue(n))
			} else {
				u.literals = append(u.literals, vm.staticFloat(c.Num))
			}
		}
	}
	for _, child := range img.Functions {
		u.functions = append(u.functions, vm.link(child))
	}
	if img.Name != "" {
		u.name = vm.Intern(img.Name)
	}
	vm.stats.unitsLinked++
	return u
}

func (vm *VM) refUnit(u *Unit) {
	if u.refs >= valueRefLimit {
		vm.fatal(FatalRefCountLimit)
	}
	u.refs++
}

// ReleaseUnit drops one reference. Literals are in literal storage and live
// as long as the VM; child units are released with their parent.
func (vm *VM) ReleaseUnit(u *Unit) {
	if u.refs == 0 {
		if debugAssertions {
			vm.fatal(FatalFailedAssertion)
		}
		return
	}
	u.refs--
	if u.refs > 0 {
		return
	}
	for _, child := range u.functions {
		vm.ReleaseUnit(child)
	}
	u.functions = nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

func invalidUnit(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidUnit, fmt.Sprintf(format, args...))
}

// Validate reports whether img would be accepted by VM.Link. Errors wrap
// ErrInvalidUnit.
func Validate(img *UnitImage) error { return validateImage(img) }

// validateImage checks the literal layout, decodes every instruction and
// verifies the operand stack, so that the interpreter never reads past the
// code, the literal table or the bottom of the stack.
func validateImage(img *UnitImage) error {
	if img == nil {
		return invalidUnit("nil image")
	}
	if img.Flags&UnitRegexp != 0 {
		return invalidUnit("regexp units are not supported")
	}
	if img.ArgumentEnd < 0 || img.RegisterEnd < img.ArgumentEnd {
		return invalidUnit("argument end %d exceeds register end %d", img.ArgumentEnd, img.RegisterEnd)
	}
	if len(img.Registers) != 0 && len(img.Registers) != img.RegisterEnd {
		return invalidUnit("%d register names for %d registers", len(img.Registers), img.RegisterEnd)
	}
	limit := smallLiteralMax
	if img.Flags&UnitUint16Arguments != 0 {
		limit = wideLiteralMax
	}
	if img.LiteralEnd() > limit+1 {
		return invalidUnit("%d literals exceed the encoding limit", img.LiteralEnd())
	}
	if img.StackLimit < 0 || img.StackLimit > math.MaxUint16 {
		return invalidUnit("stack limit %d out of range", img.StackLimit)
	}
	if len(img.Code) == 0 {
		return invalidUnit("empty code")
	}
	for _, c := range img.Consts {
		if c.Kind != ConstString && c.Kind != ConstNumber {
			return invalidUnit("unknown constant kind %d", c.Kind)
		}
	}

	need, err := checkCode(img)
	if err != nil {
		return err
	}
	if need > img.StackLimit {
		return invalidUnit("code needs %d stack slots, stack limit is %d", need, img.StackLimit)
	}

	for i, child := range img.Functions {
		if child == nil || child.Flags&UnitFunction == 0 {
			return invalidUnit("function literal %d is not a function unit", i)
		}
		if err := validateImage(child); err != nil {
			return fmt.Errorf("function %d: %w", i, err)
		}
	}
	return nil
}

// checkCode decodes and checks every instruction of img and returns the
// stack slots the code needs.
func checkCode(img *UnitImage) (int, error) {
	wide := img.Flags&UnitUint16Arguments != 0
	starts := make([]bool, len(img.Code)+1)
	for pos := 0; pos < len(img.Code); {
		ins, err := decodeInstruction(img.Code, pos, wide)
		if err != nil {
			return 0, err
		}
		starts[pos] = true
		for _, lit := range ins.literals() {
			if lit >= img.LiteralEnd() {
				return 0, invalidUnit("literal %d out of range at %d", lit, pos)
			}
		}
		if ins.info.Flags&ArgBranch != 0 {
			if t := ins.target(); t < 0 || t > len(img.Code) {
				return 0, invalidUnit("branch target %d out of range at %d", t, pos)
			}
		}
		pos = ins.next
	}
	starts[len(img.Code)] = true
	return checkStack(img, starts)
}

// instruction is one decoded instruction.
type instruction struct {
	pos    int
	ext    bool
	op     Opcode
	extOp  ExtOpcode
	info   OpInfo
	lit1   int
	lit2   int
	byteOp int
	branch int
	next   int
}

func (ins *instruction) literals() []int {
	var out []int
	if ins.info.Flags&ArgLiteral != 0 {
		out = append(out, ins.lit1)
	}
	if ins.info.Flags&ArgLiteral2 != 0 {
		out = append(out, ins.lit2)
	}
	return out
}

func (ins *instruction) target() int {
	if ins.info.Flags&ArgBackward != 0 {
		return ins.pos - ins.branch
	}
	return ins.pos + ins.branch
}

func (ins *instruction) name() string { return ins.info.Name }

// decodeInstruction decodes the instruction at pos with bounds checks.
func decodeInstruction(code []byte, pos int, wide bool) (instruction, error) {
	ins := instruction{pos: pos}
	p := pos
	ins.op = Opcode(code[p])
	p++
	if ins.op == OpExt {
		if p >= len(code) {
			return ins, invalidUnit("truncated extended opcode at %d", pos)
		}
		ins.ext = true
		ins.extOp = ExtOpcode(code[p])
		p++
		if ins.extOp >= extCount {
			return ins, invalidUnit("unknown extended opcode %#x at %d", byte(ins.extOp), pos)
		}
		ins.info = ins.extOp.Info()
	} else {
		if ins.op >= opCount {
			return ins, invalidUnit("unknown opcode %#x at %d", byte(ins.op), pos)
		}
		ins.info = ins.op.Info()
	}

	readLiteral := func() (int, error) {
		if p >= len(code) {
			return 0, invalidUnit("truncated literal at %d", pos)
		}
		b0 := int(code[p])
		if (wide && b0 >= wideLiteralLimit) || (!wide && b0 >= smallLiteralLimit) {
			if p+1 >= len(code) {
				return 0, invalidUnit("truncated literal at %d", pos)
			}
		}
		idx, n := decodeLiteral(code, p, wide)
		p += n
		return idx, nil
	}

	var err error
	if ins.info.Flags&ArgLiteral != 0 {
		if ins.lit1, err = readLiteral(); err != nil {
			return ins, err
		}
	}
	if ins.info.Flags&ArgLiteral2 != 0 {
		if ins.lit2, err = readLiteral(); err != nil {
			return ins, err
		}
	}
	if ins.info.Flags&ArgByte != 0 {
		if p >= len(code) {
			return ins, invalidUnit("truncated byte operand at %d", pos)
		}
		ins.byteOp = int(code[p])
		p++
	}
	if ins.info.Flags&ArgBranch != 0 {
		n := ins.info.BranchBytes
		if p+n > len(code) {
			return ins, invalidUnit("truncated branch at %d", pos)
		}
		ins.branch = decodeBranch(code, p, n)
		p += n
	}
	ins.next = p
	return ins, nil
}
