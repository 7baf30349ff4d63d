package vm

import (
	"errors"
	"fmt"
)

// MaxConstants is the constant pool capacity addressable by an 8-bit operand.
const MaxConstants = 256

var errTooManyConstants = errors.New("too many constants in one chunk")

// Chunk represents a sequence of bytecode instructions
type Chunk struct {
	// Code is the bytecode instructions
	Code []Instruction `cbor:"1,keyasint"`

	// Constants pool - literals and global names
	Constants []Value `cbor:"2,keyasint"`

	// Lines maps instruction index to source line number (for errors)
	Lines LineMap `cbor:"3,keyasint"`
}

// NewChunk creates a new empty chunk
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]Instruction, 0, 256),
		Constants: make([]Value, 0, 64),
	}
}

// Write appends an instruction tagged with the line it came from
func (c *Chunk) Write(ins Instruction, line int) {
	c.Code = append(c.Code, ins)
	c.Lines.Append(line)
}

// WriteOp writes an operand-less opcode to the chunk
func (c *Chunk) WriteOp(op Opcode, line int) {
	c.Write(Instruction{Op: op}, line)
}

// AddConstant adds a constant to the pool and returns its index. The pool
// is left untouched when it is already full.
func (c *Chunk) AddConstant(value Value) (int, error) {
	if len(c.Constants) >= MaxConstants {
		return 0, errTooManyConstants
	}
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1, nil
}

// findString returns the index of a string constant equal to s, or -1.
func (c *Chunk) findString(s string) int {
	for i, v := range c.Constants {
		if v.IsString() && v.Str == s {
			return i
		}
	}
	return -1
}

// Len returns the number of instructions in the chunk
func (c *Chunk) Len() int {
	return len(c.Code)
}

// Line returns the source line recorded for the instruction at offset
func (c *Chunk) Line(offset int) int {
	return c.Lines.At(offset)
}

// Validate checks that the chunk can be executed without out-of-range
// operands. Chunks built by the compiler always pass; it exists for chunks
// decoded from a bytecode image.
func (c *Chunk) Validate() error {
	if c.Lines.Len() != len(c.Code) {
		return fmt.Errorf("%w: line map covers %d of %d instructions", ErrInvalidChunk, c.Lines.Len(), len(c.Code))
	}
	if len(c.Constants) > MaxConstants {
		return fmt.Errorf("%w: %d constants", ErrInvalidChunk, len(c.Constants))
	}
	for offset, ins := range c.Code {
		if ins.Op >= numOpcodes {
			return fmt.Errorf("%w: unknown opcode %d at %04d", ErrInvalidChunk, ins.Op, offset)
		}
		switch ins.Op.operand() {
		case operandNone:
			if ins.Operand != 0 {
				return fmt.Errorf("%w: %s at %04d takes no operand", ErrInvalidChunk, ins.Op, offset)
			}
		case operandConstant:
			idx := int(ins.Operand)
			if idx >= len(c.Constants) {
				return fmt.Errorf("%w: constant %d out of range at %04d", ErrInvalidChunk, idx, offset)
			}
			if ins.Op != OP_CONSTANT && !c.Constants[idx].IsString() {
				return fmt.Errorf("%w: %s at %04d names a non-string constant", ErrInvalidChunk, ins.Op, offset)
			}
		case operandSlot:
			if ins.Operand > 0xff {
				return fmt.Errorf("%w: slot %d out of range at %04d", ErrInvalidChunk, ins.Operand, offset)
			}
		case operandJump:
			if target := offset + 1 + int(ins.Operand); target > len(c.Code) {
				return fmt.Errorf("%w: jump target %d out of range at %04d", ErrInvalidChunk, target, offset)
			}
		case operandLoop:
			if target := offset + 1 - int(ins.Operand); target < 0 {
				return fmt.Errorf("%w: loop target %d out of range at %04d", ErrInvalidChunk, target, offset)
			}
		}
	}
	return nil
}
