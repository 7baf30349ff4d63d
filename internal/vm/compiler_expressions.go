package vm

import (
	"strconv"

	"github.com/funvibe/loxvm/internal/token"
)

// Precedence levels, lowest to highest
type Precedence uint8

const (
	PREC_NONE       Precedence = iota
	PREC_ASSIGNMENT            // =
	PREC_OR                    // or
	PREC_AND                   // and
	PREC_EQUALITY              // == !=
	PREC_COMPARISON            // < > <= >=
	PREC_TERM                  // + -
	PREC_FACTOR                // * /
	PREC_UNARY                 // ! -
	PREC_CALL                  // . ()
	PREC_PRIMARY
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// rules is indexed by token type. Kinds without an entry have no prefix or
// infix action and PREC_NONE.
var rules [token.NumTypes]parseRule

// Filled in init because the parse functions refer back to the table.
func init() {
	rules = [token.NumTypes]parseRule{
		token.LPAREN:   {(*Compiler).grouping, nil, PREC_NONE},
		token.MINUS:    {(*Compiler).unary, (*Compiler).binary, PREC_TERM},
		token.PLUS:     {nil, (*Compiler).binary, PREC_TERM},
		token.SLASH:    {nil, (*Compiler).binary, PREC_FACTOR},
		token.ASTERISK: {nil, (*Compiler).binary, PREC_FACTOR},
		token.BANG:     {(*Compiler).unary, nil, PREC_NONE},
		token.NOT_EQ:   {nil, (*Compiler).binary, PREC_EQUALITY},
		token.EQ:       {nil, (*Compiler).binary, PREC_EQUALITY},
		token.GT:       {nil, (*Compiler).binary, PREC_COMPARISON},
		token.GT_EQ:    {nil, (*Compiler).binary, PREC_COMPARISON},
		token.LT:       {nil, (*Compiler).binary, PREC_COMPARISON},
		token.LT_EQ:    {nil, (*Compiler).binary, PREC_COMPARISON},
		token.IDENT:    {(*Compiler).variable, nil, PREC_NONE},
		token.STRING:   {(*Compiler).str, nil, PREC_NONE},
		token.NUMBER:   {(*Compiler).number, nil, PREC_NONE},
		token.AND:      {nil, (*Compiler).and, PREC_AND},
		token.OR:       {nil, (*Compiler).or, PREC_OR},
		token.FALSE:    {(*Compiler).literal, nil, PREC_NONE},
		token.NIL:      {(*Compiler).literal, nil, PREC_NONE},
		token.TRUE:     {(*Compiler).literal, nil, PREC_NONE},
	}
}

func (c *Compiler) expression() {
	c.parsePrecedence(PREC_ASSIGNMENT)
}

// parsePrecedence compiles an expression whose operators all bind at
// least as tightly as prec.
func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := rules[c.parser.previous.Type].prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}

	canAssign := prec <= PREC_ASSIGNMENT
	prefix(c, canAssign)

	for prec <= rules[c.parser.current.Type].precedence {
		c.advance()
		infix := rules[c.parser.previous.Type].infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.ASSIGN) {
		c.error("Invalid assignment target.")
	}
}

func (c *Compiler) number(_ bool) {
	n, err := strconv.ParseFloat(c.parser.previous.Lexeme, 64)
	if err != nil {
		c.error("Invalid number literal.")
		return
	}
	c.emitConstant(NumberVal(n))
}

func (c *Compiler) str(_ bool) {
	lexeme := c.parser.previous.Lexeme
	// Strip the surrounding quotes
	c.emitConstant(StringVal(lexeme[1 : len(lexeme)-1]))
}

func (c *Compiler) literal(_ bool) {
	switch c.parser.previous.Type {
	case token.FALSE:
		c.emit(OP_FALSE)
	case token.NIL:
		c.emit(OP_NIL)
	case token.TRUE:
		c.emit(OP_TRUE)
	}
}

func (c *Compiler) grouping(_ bool) {
	c.expression()
	c.consume(token.RPAREN, "Expect ')' after expression.")
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.parser.previous, canAssign)
}

// namedVariable emits a get, or a set when the name is an assignment target.
// Locals resolve to stack slots; everything else is a late-bound global.
func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp Opcode
	arg := c.resolveLocal(name)
	if arg != -1 {
		getOp, setOp = OP_GET_LOCAL, OP_SET_LOCAL
	} else {
		arg = int(c.identifierConstant(name))
		getOp, setOp = OP_GET_GLOBAL, OP_SET_GLOBAL
	}

	if canAssign && c.match(token.ASSIGN) {
		c.expression()
		c.emitOperand(setOp, arg)
	} else {
		c.emitOperand(getOp, arg)
	}
}

func (c *Compiler) unary(_ bool) {
	op := c.parser.previous.Type

	// Compile the operand
	c.parsePrecedence(PREC_UNARY)

	switch op {
	case token.BANG:
		c.emit(OP_NOT)
	case token.MINUS:
		c.emit(OP_NEGATE)
	}
}

func (c *Compiler) binary(_ bool) {
	op := c.parser.previous.Type
	rule := rules[op]

	// Left-associative: the right operand binds one level tighter
	c.parsePrecedence(rule.precedence + 1)

	switch op {
	case token.NOT_EQ:
		c.emit(OP_EQUAL)
		c.emit(OP_NOT)
	case token.EQ:
		c.emit(OP_EQUAL)
	case token.GT:
		c.emit(OP_GREATER)
	case token.GT_EQ:
		c.emit(OP_LESS)
		c.emit(OP_NOT)
	case token.LT:
		c.emit(OP_LESS)
	case token.LT_EQ:
		c.emit(OP_GREATER)
		c.emit(OP_NOT)
	case token.PLUS:
		c.emit(OP_ADD)
	case token.MINUS:
		c.emit(OP_SUBTRACT)
	case token.ASTERISK:
		c.emit(OP_MULTIPLY)
	case token.SLASH:
		c.emit(OP_DIVIDE)
	}
}

// and leaves a falsey left operand on the stack and skips the right one.
func (c *Compiler) and(_ bool) {
	endJump := c.emitJump(OP_JUMP_IF_FALSE)

	c.emit(OP_POP)
	c.parsePrecedence(PREC_AND)

	c.patchJump(endJump)
}

// or leaves a truthy left operand on the stack and skips the right one.
func (c *Compiler) or(_ bool) {
	elseJump := c.emitJump(OP_JUMP_IF_FALSE)
	endJump := c.emitJump(OP_JUMP)

	c.patchJump(elseJump)
	c.emit(OP_POP)

	c.parsePrecedence(PREC_OR)
	c.patchJump(endJump)
}
