package vm

import "github.com/funvibe/loxvm/internal/token"

// beginScope starts a new scope
func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope ends the current scope and pops its locals off the runtime stack
func (c *Compiler) endScope() {
	c.scopeDepth--

	for len(c.locals) > 0 && c.locals[len(c.locals)-1].Depth > c.scopeDepth {
		c.emit(OP_POP)
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// addLocal adds an uninitialized local variable to the current scope
func (c *Compiler) addLocal(name token.Token) {
	if len(c.locals) >= MaxLocals {
		c.error("Too many local variables in function.")
		return
	}
	c.locals = append(c.locals, Local{Name: name, Depth: uninitialized})
}

// markInitialized makes the newest local visible to name resolution
func (c *Compiler) markInitialized() {
	if len(c.locals) == 0 {
		return
	}
	c.locals[len(c.locals)-1].Depth = c.scopeDepth
}

// resolveLocal looks up a local variable by name. The innermost declaration
// wins; -1 means the name is global.
func (c *Compiler) resolveLocal(name token.Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if c.locals[i].Name.Lexeme == name.Lexeme {
			if c.locals[i].Depth == uninitialized {
				c.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// emit helpers

func (c *Compiler) emit(op Opcode) {
	c.chunk.WriteOp(op, c.parser.previous.Line)
}

func (c *Compiler) emitOperand(op Opcode, operand int) {
	c.chunk.Write(Instruction{Op: op, Operand: uint16(operand)}, c.parser.previous.Line)
}

func (c *Compiler) emitConstant(value Value) {
	c.emitOperand(OP_CONSTANT, int(c.makeConstant(value)))
}

func (c *Compiler) makeConstant(value Value) uint8 {
	idx, err := c.chunk.AddConstant(value)
	if err != nil {
		c.error("Too many constants in one chunk.")
		return 0
	}
	return uint8(idx)
}

// identifierConstant interns a global's name in the constant pool
func (c *Compiler) identifierConstant(name token.Token) uint8 {
	if idx := c.chunk.findString(name.Lexeme); idx != -1 {
		return uint8(idx)
	}
	return c.makeConstant(StringVal(name.Lexeme))
}

// emitJump emits a jump with a placeholder distance and returns its index
// for patchJump.
func (c *Compiler) emitJump(op Opcode) int {
	c.emitOperand(op, 0xffff)
	return c.chunk.Len() - 1
}

// patchJump points the jump at offset to the next instruction to be emitted
func (c *Compiler) patchJump(offset int) {
	jump := c.chunk.Len() - offset - 1

	if jump > 0xffff {
		c.error("Too much code to jump over.")
		return
	}

	c.chunk.Code[offset].Operand = uint16(jump)
}
