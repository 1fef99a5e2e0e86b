package vm

import (
	"errors"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Assembler: builds unit images without a parser
// ---------------------------------------------------------------------------

type literalKind uint8

const (
	literalRegister literalKind = iota
	literalIdent
	literalConst
	literalFunction
)

// Literal names an entry of the literal table being assembled. Its final
// index is assigned by Build.
type Literal struct {
	kind  literalKind
	index int
}

// Label represents a branch target. Labels may be used before they are
// marked.
type Label struct {
	resolved bool
	item     int
}

type asmItem struct {
	ext    bool
	op     Opcode
	extOp  ExtOpcode
	info   OpInfo
	lits   []Literal
	byteOp byte
	label  *Label
	width  int // branch operand width, relaxed by Build
	mark   *Label
}

// Assembler builds a UnitImage. Branch widths are chosen by Build: every
// branch starts at one byte and is widened until all offsets fit.
type Assembler struct {
	flags      UnitFlags
	name       string
	stackLimit int

	arguments int
	registers []string
	idents    []string
	consts    []Const
	functions []*UnitImage

	identIndex  map[string]int
	stringIndex map[string]int
	numberIndex map[uint64]int

	items []asmItem
	err   error
}

// NewAssembler creates an assembler for global code. Use SetFlags to build
// function units.
func NewAssembler() *Assembler {
	return &Assembler{
		identIndex:  make(map[string]int),
		stringIndex: make(map[string]int),
		numberIndex: make(map[uint64]int),
	}
}

func (a *Assembler) fail(format string, args ...any) {
	if a.err == nil {
		a.err = fmt.Errorf("assembler: "+format, args...)
	}
}

// SetFlags sets the unit flags. UnitUint16Arguments is computed by Build.
func (a *Assembler) SetFlags(flags UnitFlags) { a.flags = flags &^ UnitUint16Arguments }

// SetName sets the function name.
func (a *Assembler) SetName(name string) { a.name = name }

// SetStackLimit sets the stack limit instead of computing it from the
// code. Build fails when the code needs more.
func (a *Assembler) SetStackLimit(n int) { a.stackLimit = n }

// Argument declares the next parameter register. Parameters must be
// declared before other registers.
func (a *Assembler) Argument(name string) Literal {
	if len(a.registers) != a.arguments {
		a.fail("argument %q declared after a register", name)
	}
	a.arguments++
	return a.Register(name)
}

// Register declares a register.
func (a *Assembler) Register(name string) Literal {
	a.registers = append(a.registers, name)
	return Literal{kind: literalRegister, index: len(a.registers) - 1}
}

// Ident returns the identifier literal for name.
func (a *Assembler) Ident(name string) Literal {
	if i, ok := a.identIndex[name]; ok {
		return Literal{kind: literalIdent, index: i}
	}
	a.idents = append(a.idents, name)
	a.identIndex[name] = len(a.idents) - 1
	return Literal{kind: literalIdent, index: len(a.idents) - 1}
}

// String returns the string constant literal for s.
func (a *Assembler) String(s string) Literal {
	if i, ok := a.stringIndex[s]; ok {
		return Literal{kind: literalConst, index: i}
	}
	a.consts = append(a.consts, Const{Kind: ConstString, Str: s})
	a.stringIndex[s] = len(a.consts) - 1
	return Literal{kind: literalConst, index: len(a.consts) - 1}
}

// Number returns the number constant literal for f.
func (a *Assembler) Number(f float64) Literal {
	bits := math.Float64bits(f)
	if i, ok := a.numberIndex[bits]; ok {
		return Literal{kind: literalConst, index: i}
	}
	a.consts = append(a.consts, Const{Kind: ConstNumber, Num: f})
	a.numberIndex[bits] = len(a.consts) - 1
	return Literal{kind: literalConst, index: len(a.consts) - 1}
}

// Function adds a function template. Pushing it creates a closure.
func (a *Assembler) Function(img *UnitImage) Literal {
	a.functions = append(a.functions, img)
	return Literal{kind: literalFunction, index: len(a.functions) - 1}
}

// NewLabel creates an unresolved label.
func (a *Assembler) NewLabel() *Label { return &Label{} }

// Mark resolves label at the current position.
func (a *Assembler) Mark(label *Label) {
	if label.resolved {
		a.fail("label marked twice")
		return
	}
	label.resolved = true
	label.item = len(a.items)
	a.items = append(a.items, asmItem{mark: label})
}

func (a *Assembler) add(item asmItem) {
	want := OpFlags(0)
	switch len(item.lits) {
	case 1:
		want = ArgLiteral
	case 2:
		want = ArgLiteral | ArgLiteral2
	}
	if item.info.Flags&(ArgLiteral|ArgLiteral2) != want {
		a.fail("%s takes different literal operands", item.info.Name)
		return
	}
	a.items = append(a.items, item)
}

// Emit emits an instruction without operands, or with the literal operands
// its descriptor declares.
func (a *Assembler) Emit(op Opcode, lits ...Literal) {
	info := op.Info()
	if op == OpExt || info.Flags&(ArgByte|ArgBranch) != 0 {
		a.fail("%s needs a byte or branch operand", info.Name)
		return
	}
	a.add(asmItem{op: op, info: info, lits: lits})
}

// EmitByte emits an instruction with a byte operand.
func (a *Assembler) EmitByte(op Opcode, b byte, lits ...Literal) {
	info := op.Info()
	if info.Flags&ArgByte == 0 {
		a.fail("%s takes no byte operand", info.Name)
		return
	}
	a.add(asmItem{op: op, info: info, lits: lits, byteOp: b})
}

// EmitBranch emits a branch to label. op is the one-byte variant of a branch
// family; forward jumps and conditional branches whose label is already
// marked are turned into their backward counterparts.
func (a *Assembler) EmitBranch(op Opcode, label *Label) {
	info := op.Info()
	if info.Flags&ArgBranch == 0 || info.BranchBytes != 1 {
		a.fail("%s is not a one-byte branch", info.Name)
		return
	}
	if label.resolved && info.Flags&ArgBackward == 0 {
		switch op {
		case OpJumpForward, OpBranchIfTrueForward, OpBranchIfFalseForward:
			op += 3
			info = op.Info()
		default:
			a.fail("%s cannot branch backward", info.Name)
			return
		}
	}
	a.add(asmItem{op: op, info: info, label: label, width: 1})
}

// EmitExt emits an extended instruction without a branch.
func (a *Assembler) EmitExt(op ExtOpcode, lits ...Literal) {
	info := op.Info()
	if info.Flags&(ArgByte|ArgBranch) != 0 {
		a.fail("%s needs a byte or branch operand", info.Name)
		return
	}
	a.add(asmItem{ext: true, extOp: op, info: info, lits: lits})
}

// EmitExtByte emits an extended instruction with a byte operand.
func (a *Assembler) EmitExtByte(op ExtOpcode, b byte) {
	info := op.Info()
	if info.Flags&ArgByte == 0 {
		a.fail("%s takes no byte operand", info.Name)
		return
	}
	a.add(asmItem{ext: true, extOp: op, info: info, byteOp: b})
}

// EmitExtBranch emits an extended branch instruction. op is the one-byte
// variant.
func (a *Assembler) EmitExtBranch(op ExtOpcode, label *Label) {
	info := op.Info()
	if info.Flags&ArgBranch == 0 || info.BranchBytes != 1 {
		a.fail("%s is not a one-byte branch", info.Name)
		return
	}
	a.add(asmItem{ext: true, extOp: op, info: info, label: label, width: 1})
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

// errUnresolvedLabel is returned when a branch targets a label never marked.
var errUnresolvedLabel = errors.New("assembler: branch to unmarked label")

// Build lays out the code and returns the image.
func (a *Assembler) Build() (*UnitImage, error) {
	if a.err != nil {
		return nil, a.err
	}
	img := &UnitImage{
		Flags:       a.flags,
		ArgumentEnd: a.arguments,
		RegisterEnd: len(a.registers),
		Name:        a.name,
		Registers:   a.registers,
		Idents:      a.idents,
		Consts:      a.consts,
		Functions:   a.functions,
	}
	wide := img.LiteralEnd() > smallLiteralMax+1
	if wide {
		img.Flags |= UnitUint16Arguments
	}

	for _, it := range a.items {
		if it.label != nil && !it.label.resolved {
			return nil, errUnresolvedLabel
		}
	}

	// Relax branch widths. Widths only grow, so the loop terminates.
	pos := make([]int, len(a.items)+1)
	for {
		p := 0
		for i := range a.items {
			pos[i] = p
			p += a.itemSize(&a.items[i], img, wide)
		}
		pos[len(a.items)] = p

		changed := false
		for i := range a.items {
			it := &a.items[i]
			if it.label == nil {
				continue
			}
			off := pos[it.label.item] - pos[i]
			if off < 0 {
				off = -off
			}
			if off > maxBranchOffset {
				return nil, fmt.Errorf("assembler: %s offset %d too large", it.info.Name, off)
			}
			if w := branchBytesFor(off); w > it.width {
				it.width = w
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	var code []byte
	for i := range a.items {
		it := &a.items[i]
		if it.mark != nil {
			continue
		}
		start := len(code)
		if it.ext {
			code = append(code, byte(OpExt), byte(it.extOp)+byte(it.width-1)*boolByte(it.label != nil))
		} else {
			code = append(code, byte(it.op)+byte(it.width-1)*boolByte(it.label != nil))
		}
		for _, lit := range it.lits {
			code = appendLiteral(code, a.literalIndex(lit, img), wide)
		}
		if it.info.Flags&ArgByte != 0 {
			code = append(code, it.byteOp)
		}
		if it.label != nil {
			off := pos[it.label.item] - start
			if it.info.Flags&ArgBackward != 0 {
				off = -off
			}
			if off < 0 {
				return nil, fmt.Errorf("assembler: %s at %d branches the wrong way", it.info.Name, start)
			}
			for b := it.width - 1; b >= 0; b-- {
				code = append(code, byte(off>>(8*b)))
			}
		}
	}
	img.Code = code

	img.StackLimit = a.stackLimit
	if img.StackLimit == 0 {
		need, err := checkCode(img)
		if err != nil {
			return nil, err
		}
		img.StackLimit = need
	}
	if err := validateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (a *Assembler) literalIndex(lit Literal, img *UnitImage) int {
	switch lit.kind {
	case literalIdent:
		return img.RegisterEnd + lit.index
	case literalConst:
		return img.IdentEnd() + lit.index
	case literalFunction:
		return img.ConstEnd() + lit.index
	}
	return lit.index
}

func (a *Assembler) itemSize(it *asmItem, img *UnitImage, wide bool) int {
	if it.mark != nil {
		return 0
	}
	n := 1
	if it.ext {
		n++
	}
	for _, lit := range it.lits {
		idx := a.literalIndex(lit, img)
		if (wide && idx < wideLiteralLimit) || (!wide && idx < smallLiteralLimit) {
			n++
		} else {
			n += 2
		}
	}
	if it.info.Flags&ArgByte != 0 {
		n++
	}
	if it.label != nil {
		n += it.width
	}
	return n
}
