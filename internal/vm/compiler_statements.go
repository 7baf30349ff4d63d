package vm

import "github.com/funvibe/loxvm/internal/token"

func (c *Compiler) declaration() {
	if c.match(token.VAR) {
		c.varDeclaration()
	} else {
		c.statement()
	}

	if c.parser.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration() {
	global := c.parseVariable("Expect variable name.")

	if c.match(token.ASSIGN) {
		c.expression()
	} else {
		c.emit(OP_NIL)
	}
	c.consume(token.SEMICOLON, "Expect ';' after variable declaration.")

	c.defineVariable(global)
}

// parseVariable consumes a variable name. For globals it returns the name's
// constant index; locals need none.
func (c *Compiler) parseVariable(message string) uint8 {
	c.consume(token.IDENT, message)

	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}

	return c.identifierConstant(c.parser.previous)
}

// declareVariable records a local in the current block scope. Globals are
// late-bound and need no declaration.
func (c *Compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}

	name := c.parser.previous
	for i := len(c.locals) - 1; i >= 0; i-- {
		local := c.locals[i]
		if local.Depth != uninitialized && local.Depth < c.scopeDepth {
			break
		}
		if local.Name.Lexeme == name.Lexeme {
			c.error("Already a variable with this name in this scope.")
		}
	}

	c.addLocal(name)
}

func (c *Compiler) defineVariable(global uint8) {
	if c.scopeDepth > 0 {
		// The value is already in the local's slot.
		c.markInitialized()
		return
	}

	c.emitOperand(OP_DEFINE_GLOBAL, int(global))
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after value.")
	c.emit(OP_PRINT)
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMICOLON, "Expect ';' after expression.")
	c.emit(OP_POP)
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}

	c.consume(token.RBRACE, "Expect '}' after block.")
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "Expect '(' after 'if'.")
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after condition.")

	thenJump := c.emitJump(OP_JUMP_IF_FALSE)
	c.emit(OP_POP) // Condition, on the then path
	c.statement()

	elseJump := c.emitJump(OP_JUMP)

	c.patchJump(thenJump)
	c.emit(OP_POP) // Condition, on the else path

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}
