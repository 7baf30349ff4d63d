package vm

import (
	"fmt"
	"io"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/funvibe/loxvm/internal/lexer"
	"github.com/funvibe/loxvm/internal/token"
)

// MaxLocals is the number of local slots addressable by an 8-bit operand.
const MaxLocals = 256

// uninitialized marks a local that is declared but whose initializer has
// not finished compiling yet.
const uninitialized = -1

// Local represents a local variable during compilation
type Local struct {
	Name  token.Token
	Depth int // Scope depth where this local was declared, or uninitialized
}

// Parser holds the token window and error state of one compile.
type Parser struct {
	previous token.Token
	current  token.Token

	hadError  bool
	panicMode bool // Suppress reports until the next statement boundary
}

// Compiler turns source text directly into a Chunk, without building a
// syntax tree. A Compiler owns all of its state, so separate instances may
// compile concurrently.
type Compiler struct {
	lexer  *lexer.Lexer
	parser Parser
	chunk  *Chunk

	locals     []Local
	scopeDepth int // 0 = top level, where declarations become globals

	errs        *multierror.Error
	diag        io.Writer // Compile errors are reported here as they occur
	disassembly io.Writer // When set, receives the chunk after a successful compile
	log         *logrus.Entry
}

// NewCompiler creates a new compiler for top-level code
func NewCompiler() *Compiler {
	return &Compiler{
		locals: make([]Local, 0, MaxLocals),
		log:    logrus.NewEntry(logrus.StandardLogger()),
	}
}

// SetDiagnostics sets the writer compile errors are reported to
func (c *Compiler) SetDiagnostics(w io.Writer) {
	c.diag = w
}

// SetDisassembly sets the writer that receives the disassembled chunk
func (c *Compiler) SetDisassembly(w io.Writer) {
	c.disassembly = w
}

// SetLogger sets the logger entry used for debug output
func (c *Compiler) SetLogger(entry *logrus.Entry) {
	c.log = entry
}

// Compile compiles a whole program. On failure it returns a nil chunk and
// an error aggregating every reported CompileError.
func (c *Compiler) Compile(source string) (*Chunk, error) {
	c.lexer = lexer.New(source)
	c.parser = Parser{}
	c.chunk = NewChunk()
	c.locals = c.locals[:0]
	c.scopeDepth = 0
	c.errs = nil

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	c.endCompiler()

	if c.parser.hadError {
		return nil, c.errs.ErrorOrNil()
	}
	return c.chunk, nil
}

// Compile compiles source with a fresh Compiler
func Compile(source string) (*Chunk, error) {
	return NewCompiler().Compile(source)
}

func (c *Compiler) endCompiler() {
	c.emit(OP_RETURN)

	if c.parser.hadError {
		return
	}
	if c.disassembly != nil {
		fmt.Fprint(c.disassembly, Disassemble(c.chunk, "code"))
	}
	if c.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		c.log.WithFields(logrus.Fields{
			"instructions": c.chunk.Len(),
			"constants":    len(c.chunk.Constants),
		}).Debug("compiled chunk\n" + Disassemble(c.chunk, "code"))
	}
}

// Token window

func (c *Compiler) advance() {
	c.parser.previous = c.parser.current

	for {
		c.parser.current = c.lexer.ScanToken()
		if c.parser.current.Type != token.ERROR {
			break
		}
		c.errorAtCurrent(c.parser.current.Lexeme)
	}
}

func (c *Compiler) consume(tt token.TokenType, message string) {
	if c.parser.current.Type == tt {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

func (c *Compiler) check(tt token.TokenType) bool {
	return c.parser.current.Type == tt
}

func (c *Compiler) match(tt token.TokenType) bool {
	if !c.check(tt) {
		return false
	}
	c.advance()
	return true
}

// Error reporting

func (c *Compiler) error(message string) {
	c.errorAt(c.parser.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.parser.current, message)
}

func (c *Compiler) errorAt(tok token.Token, message string) {
	if c.parser.panicMode {
		return
	}
	c.parser.panicMode = true

	err := &CompileError{Line: tok.Line, Message: message}
	switch tok.Type {
	case token.EOF:
		err.Where = " at end"
	case token.ERROR:
		// The message is the lexeme.
	default:
		err.Where = fmt.Sprintf(" at '%s'", tok.Lexeme)
	}

	if c.diag != nil {
		fmt.Fprintln(c.diag, err.Error())
	}
	c.errs = multierror.Append(c.errs, err)
	c.errs.ErrorFormat = joinErrors
	c.parser.hadError = true
}

// synchronize skips tokens until something that looks like a statement
// boundary, so one mistake produces one report.
func (c *Compiler) synchronize() {
	c.parser.panicMode = false

	for c.parser.current.Type != token.EOF {
		if c.parser.previous.Type == token.SEMICOLON {
			return
		}
		switch c.parser.current.Type {
		case token.CLASS, token.FUN, token.VAR, token.FOR,
			token.IF, token.WHILE, token.PRINT, token.RETURN:
			return
		}
		c.advance()
	}
}

func joinErrors(errs []error) string {
	lines := make([]string, len(errs))
	for i, err := range errs {
		lines[i] = err.Error()
	}
	return strings.Join(lines, "\n")
}
