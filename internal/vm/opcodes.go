// Package vm implements the single-pass compiler and the stack-based
// bytecode virtual machine for the scripting language.
package vm

// Opcode represents a single VM instruction
type Opcode byte

const (
	OP_RETURN   Opcode = iota // Stop execution of the script
	OP_CONSTANT               // Push constant from pool (operand: constant index)
	OP_NIL                    // Push nil
	OP_TRUE                   // Push true
	OP_FALSE                  // Push false
	OP_POP                    // Discard top of stack

	// Logic and comparison
	OP_NOT     // !
	OP_EQUAL   // ==
	OP_GREATER // >
	OP_LESS    // <

	// Arithmetic
	OP_NEGATE   // Unary minus
	OP_ADD      // + (numbers or strings)
	OP_SUBTRACT // -
	OP_MULTIPLY // *
	OP_DIVIDE   // /

	OP_PRINT // Pop and print top of stack

	// Control flow (operand: 16-bit distance)
	OP_JUMP          // Unconditional forward jump
	OP_JUMP_IF_FALSE // Forward jump if top of stack is falsey (does not pop)
	OP_LOOP          // Backward jump

	// Variables (operand: stack slot or name constant)
	OP_GET_LOCAL
	OP_SET_LOCAL
	OP_GET_GLOBAL
	OP_DEFINE_GLOBAL
	OP_SET_GLOBAL

	numOpcodes
)

// OpcodeNames maps opcodes to their string names (for debugging)
var OpcodeNames = [numOpcodes]string{
	OP_RETURN:   "OP_RETURN",
	OP_CONSTANT: "OP_CONSTANT",
	OP_NIL:      "OP_NIL",
	OP_TRUE:     "OP_TRUE",
	OP_FALSE:    "OP_FALSE",
	OP_POP:      "OP_POP",

	OP_NOT:     "OP_NOT",
	OP_EQUAL:   "OP_EQUAL",
	OP_GREATER: "OP_GREATER",
	OP_LESS:    "OP_LESS",

	OP_NEGATE:   "OP_NEGATE",
	OP_ADD:      "OP_ADD",
	OP_SUBTRACT: "OP_SUBTRACT",
	OP_MULTIPLY: "OP_MULTIPLY",
	OP_DIVIDE:   "OP_DIVIDE",

	OP_PRINT: "OP_PRINT",

	OP_JUMP:          "OP_JUMP",
	OP_JUMP_IF_FALSE: "OP_JUMP_IF_FALSE",
	OP_LOOP:          "OP_LOOP",

	OP_GET_LOCAL:     "OP_GET_LOCAL",
	OP_SET_LOCAL:     "OP_SET_LOCAL",
	OP_GET_GLOBAL:    "OP_GET_GLOBAL",
	OP_DEFINE_GLOBAL: "OP_DEFINE_GLOBAL",
	OP_SET_GLOBAL:    "OP_SET_GLOBAL",
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return OpcodeNames[op]
	}
	return "OP_UNKNOWN"
}

// operandKind describes what an opcode's operand means.
type operandKind uint8

const (
	operandNone     operandKind = iota
	operandConstant             // 8-bit index into the constant pool
	operandSlot                 // 8-bit local slot
	operandJump                 // 16-bit forward distance
	operandLoop                 // 16-bit backward distance
)

func (op Opcode) operand() operandKind {
	switch op {
	case OP_CONSTANT, OP_GET_GLOBAL, OP_DEFINE_GLOBAL, OP_SET_GLOBAL:
		return operandConstant
	case OP_GET_LOCAL, OP_SET_LOCAL:
		return operandSlot
	case OP_JUMP, OP_JUMP_IF_FALSE:
		return operandJump
	case OP_LOOP:
		return operandLoop
	default:
		return operandNone
	}
}

// Instruction is one decoded opcode with its (at most one) operand.
// Constant and slot operands fit in 8 bits, jump distances in 16.
type Instruction struct {
	Op      Opcode `cbor:"1,keyasint"`
	Operand uint16 `cbor:"2,keyasint,omitempty"`
}
