package vm

import "github.com/funvibe/loxvm/internal/token"

// emitLoop emits a backward jump to loopStart
func (c *Compiler) emitLoop(loopStart int) {
	offset := c.chunk.Len() - loopStart + 1
	if offset > 0xffff {
		c.error("Loop body too large.")
		return
	}

	c.emitOperand(OP_LOOP, offset)
}

func (c *Compiler) whileStatement() {
	loopStart := c.chunk.Len()

	c.consume(token.LPAREN, "Expect '(' after 'while'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	exitJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emit(OP_POP)
	c.statement()
	c.emitLoop(loopStart)

	c.patchJump(exitJump)
	c.emit(OP_POP)
}

// forStatement compiles for (init; cond; incr) body. The increment is
// emitted before the body, so control jumps over it on entry and the body
// loops back to it rather than to the condition.
func (c *Compiler) forStatement() {
	// The initializer's variable is scoped to the loop
	c.beginScope()

	c.consume(token.LPAREN, "Expect '(' after 'for'.")
	switch {
	case c.match(token.SEMICOLON):
		// No initializer.
	case c.match(token.VAR):
		c.varDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := c.chunk.Len()

	exitJump := -1
	if !c.match(token.SEMICOLON) {
		c.expression()
		c.consume(token.SEMICOLON, "Expect ';' after loop condition.")

		exitJump = c.emitJump(OP_JUMP_IF_FALSE)
		c.emit(OP_POP)
	}

	if !c.match(token.RPAREN) {
		bodyJump := c.emitJump(OP_JUMP)

		incrementStart := c.chunk.Len()
		c.expression()
		c.emit(OP_POP)
		c.consume(token.RPAREN, "Expect ')' after for clauses.")

		c.emitLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.emitLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emit(OP_POP) // Condition
	}

	c.endScope()
}
