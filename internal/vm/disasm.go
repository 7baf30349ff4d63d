package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable representation of the bytecode
func Disassemble(chunk *Chunk, name string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("== %s ==\n", name))

	for offset := 0; offset < len(chunk.Code); offset++ {
		disassembleInstruction(&sb, chunk, offset)
	}

	return sb.String()
}

// DisassembleInstruction disassembles the single instruction at offset,
// without a trailing newline.
func DisassembleInstruction(chunk *Chunk, offset int) string {
	var sb strings.Builder
	disassembleInstruction(&sb, chunk, offset)
	return strings.TrimSuffix(sb.String(), "\n")
}

func disassembleInstruction(sb *strings.Builder, chunk *Chunk, offset int) {
	sb.WriteString(fmt.Sprintf("%04d ", offset))

	// Print line number
	line := chunk.Line(offset)
	if offset > 0 && line == chunk.Line(offset-1) {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", line))
	}

	ins := chunk.Code[offset]
	name := ins.Op.String()

	switch ins.Op.operand() {
	case operandNone:
		simpleInstruction(sb, name)
	case operandConstant:
		constantInstruction(sb, name, chunk, int(ins.Operand))
	case operandSlot:
		byteInstruction(sb, name, int(ins.Operand))
	case operandJump:
		jumpInstruction(sb, name, 1, offset, int(ins.Operand))
	case operandLoop:
		jumpInstruction(sb, name, -1, offset, int(ins.Operand))
	default:
		sb.WriteString(fmt.Sprintf("Unknown opcode %d\n", ins.Op))
	}
}

func simpleInstruction(sb *strings.Builder, name string) {
	sb.WriteString(fmt.Sprintf("%s\n", name))
}

func constantInstruction(sb *strings.Builder, name string, chunk *Chunk, idx int) {
	if idx < len(chunk.Constants) {
		sb.WriteString(fmt.Sprintf("%-16s %4d '%s'\n", name, idx, chunk.Constants[idx].Inspect()))
	} else {
		sb.WriteString(fmt.Sprintf("%-16s %4d (invalid)\n", name, idx))
	}
}

func byteInstruction(sb *strings.Builder, name string, slot int) {
	sb.WriteString(fmt.Sprintf("%-16s %4d\n", name, slot))
}

func jumpInstruction(sb *strings.Builder, name string, sign int, offset, jump int) {
	target := offset + 1 + sign*jump
	sb.WriteString(fmt.Sprintf("%-16s %4d -> %d\n", name, jump, target))
}

// FormatStack renders the operand stack bottom first, the way the execution
// trace prints it before each instruction.
func FormatStack(stack []Value) string {
	var sb strings.Builder
	sb.WriteString("          ")
	for _, v := range stack {
		sb.WriteString("[ ")
		sb.WriteString(v.Inspect())
		sb.WriteString(" ]")
	}
	return sb.String()
}
