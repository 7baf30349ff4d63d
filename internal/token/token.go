// Package token defines the lexical tokens produced by the scanner and
// consumed by the single-pass compiler.
package token

// TokenType is the ordinal kind of a token. The compiler indexes its parse
// rule table by this value, so the kinds form a small closed set ending in
// NumTypes.
type TokenType uint8

const (
	// Single-character tokens
	LPAREN    TokenType = iota // (
	RPAREN                     // )
	LBRACE                     // {
	RBRACE                     // }
	COMMA                      // ,
	DOT                        // .
	MINUS                      // -
	PLUS                       // +
	SEMICOLON                  // ;
	SLASH                      // /
	ASTERISK                   // *

	// One or two character tokens
	BANG   // !
	NOT_EQ // !=
	ASSIGN // =
	EQ     // ==
	GT     // >
	GT_EQ  // >=
	LT     // <
	LT_EQ  // <=

	// Literals
	IDENT
	STRING
	NUMBER

	// Keywords
	AND
	CLASS
	ELSE
	FALSE
	FUN
	FOR
	IF
	NIL
	OR
	PRINT
	RETURN
	SUPER
	THIS
	TRUE
	VAR
	WHILE

	// ERROR carries the scanner's diagnostic in Lexeme instead of source text.
	ERROR
	EOF

	NumTypes
)

var typeNames = [NumTypes]string{
	LPAREN:    "LPAREN",
	RPAREN:    "RPAREN",
	LBRACE:    "LBRACE",
	RBRACE:    "RBRACE",
	COMMA:     "COMMA",
	DOT:       "DOT",
	MINUS:     "MINUS",
	PLUS:      "PLUS",
	SEMICOLON: "SEMICOLON",
	SLASH:     "SLASH",
	ASTERISK:  "ASTERISK",
	BANG:      "BANG",
	NOT_EQ:    "NOT_EQ",
	ASSIGN:    "ASSIGN",
	EQ:        "EQ",
	GT:        "GT",
	GT_EQ:     "GT_EQ",
	LT:        "LT",
	LT_EQ:     "LT_EQ",
	IDENT:     "IDENT",
	STRING:    "STRING",
	NUMBER:    "NUMBER",
	AND:       "AND",
	CLASS:     "CLASS",
	ELSE:      "ELSE",
	FALSE:     "FALSE",
	FUN:       "FUN",
	FOR:       "FOR",
	IF:        "IF",
	NIL:       "NIL",
	OR:        "OR",
	PRINT:     "PRINT",
	RETURN:    "RETURN",
	SUPER:     "SUPER",
	THIS:      "THIS",
	TRUE:      "TRUE",
	VAR:       "VAR",
	WHILE:     "WHILE",
	ERROR:     "ERROR",
	EOF:       "EOF",
}

func (t TokenType) String() string {
	if t < NumTypes {
		return typeNames[t]
	}
	return "UNKNOWN"
}

// Token is a single lexeme tagged with its source position.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Column int
}

var keywords = map[string]TokenType{
	"and":    AND,
	"class":  CLASS,
	"else":   ELSE,
	"false":  FALSE,
	"fun":    FUN,
	"for":    FOR,
	"if":     IF,
	"nil":    NIL,
	"or":     OR,
	"print":  PRINT,
	"return": RETURN,
	"super":  SUPER,
	"this":   THIS,
	"true":   TRUE,
	"var":    VAR,
	"while":  WHILE,
}

// LookupIdent returns the keyword kind for ident, or IDENT.
func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}
