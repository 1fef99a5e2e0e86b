package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at pos and returns the
// position of the next one.
func DisassembleInstruction(img *UnitImage, pos int) (string, int, error) {
	ins, err := decodeInstruction(img.Code, pos, img.Flags&UnitUint16Arguments != 0)
	if err != nil {
		return "", 0, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%04d  %s", pos, ins.name())
	for _, lit := range ins.literals() {
		sb.WriteByte(' ')
		sb.WriteString(describeLiteral(img, lit))
	}
	if ins.info.Flags&ArgByte != 0 {
		fmt.Fprintf(&sb, " %d", ins.byteOp)
	}
	if ins.info.Flags&ArgBranch != 0 {
		fmt.Fprintf(&sb, " (-> %04d)", ins.target())
	}
	return sb.String(), ins.next, nil
}

func describeLiteral(img *UnitImage, index int) string {
	switch {
	case index < img.RegisterEnd:
		if index < len(img.Registers) && img.Registers[index] != "" {
			return "r" + strconv.Itoa(index) + ":" + img.Registers[index]
		}
		return "r" + strconv.Itoa(index)
	case index < img.IdentEnd():
		return img.Idents[index-img.RegisterEnd]
	case index < img.ConstEnd():
		c := img.Consts[index-img.IdentEnd()]
		if c.Kind == ConstNumber {
			return formatNumber(c.Num)
		}
		return strconv.Quote(c.Str)
	}
	fn := index - img.ConstEnd()
	if fn < len(img.Functions) && img.Functions[fn].Name != "" {
		return "function:" + img.Functions[fn].Name
	}
	return "function#" + strconv.Itoa(fn)
}

// Disassemble returns a full disassembly of img and its function templates.
func Disassemble(img *UnitImage) (string, error) {
	var sb strings.Builder
	if err := disassemble(&sb, img, ""); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func disassemble(sb *strings.Builder, img *UnitImage, indent string) error {
	name := img.Name
	if name == "" {
		name = "<anonymous>"
	}
	fmt.Fprintf(sb, "%sunit %s args=%d regs=%d idents=%d consts=%d funcs=%d stack=%d",
		indent, name, img.ArgumentEnd, img.RegisterEnd, len(img.Idents), len(img.Consts), len(img.Functions), img.StackLimit)
	if img.Flags&UnitStrict != 0 {
		sb.WriteString(" strict")
	}
	sb.WriteByte('\n')
	for pos := 0; pos < len(img.Code); {
		line, next, err := DisassembleInstruction(img, pos)
		if err != nil {
			return err
		}
		sb.WriteString(indent)
		sb.WriteString(line)
		sb.WriteByte('\n')
		pos = next
	}
	for _, child := range img.Functions {
		if err := disassemble(sb, child, indent+"  "); err != nil {
			return err
		}
	}
	return nil
}
