// Package lexer turns source text into a lazy stream of tokens. It keeps no
// lookahead buffer: every ScanToken call produces the next token from the
// current position, and once the input is exhausted it keeps returning EOF.
package lexer

import (
	"unicode"
	"unicode/utf8"

	"github.com/funvibe/loxvm/internal/token"
)

type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           rune // current char under examination
	line         int  // current line number
	column       int  // current column number
}

func New(input string) *Lexer {
	l := &Lexer{input: input, line: 1, column: 0}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}

	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = len(l.input)
		return
	}

	r, w := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += w
	l.column++
}

func (l *Lexer) atEnd() bool {
	return l.position >= len(l.input)
}

// ScanToken returns the next token. Malformed input yields an ERROR token
// whose Lexeme is the diagnostic message.
func (l *Lexer) ScanToken() token.Token {
	l.skipWhitespace()

	if l.atEnd() {
		return token.Token{Type: token.EOF, Line: l.line, Column: l.column}
	}

	line, col := l.line, l.column
	start := l.position

	switch {
	case isLetter(l.ch):
		lexeme := l.readIdentifier()
		return token.Token{Type: token.LookupIdent(lexeme), Lexeme: lexeme, Line: line, Column: col}
	case isDigit(l.ch):
		lexeme := l.readNumber()
		return token.Token{Type: token.NUMBER, Lexeme: lexeme, Line: line, Column: col}
	case l.ch == '"':
		lexeme, ok := l.readString()
		if !ok {
			return l.errorToken("Unterminated string.", line, col)
		}
		return token.Token{Type: token.STRING, Lexeme: lexeme, Line: line, Column: col}
	}

	var tt token.TokenType
	switch l.ch {
	case '(':
		tt = token.LPAREN
	case ')':
		tt = token.RPAREN
	case '{':
		tt = token.LBRACE
	case '}':
		tt = token.RBRACE
	case ',':
		tt = token.COMMA
	case '.':
		tt = token.DOT
	case '-':
		tt = token.MINUS
	case '+':
		tt = token.PLUS
	case ';':
		tt = token.SEMICOLON
	case '/':
		tt = token.SLASH
	case '*':
		tt = token.ASTERISK
	case '!':
		tt = l.twoChar('=', token.NOT_EQ, token.BANG)
	case '=':
		tt = l.twoChar('=', token.EQ, token.ASSIGN)
	case '<':
		tt = l.twoChar('=', token.LT_EQ, token.LT)
	case '>':
		tt = l.twoChar('=', token.GT_EQ, token.GT)
	default:
		l.readChar()
		return l.errorToken("Unexpected character.", line, col)
	}

	l.readChar()
	return token.Token{Type: tt, Lexeme: l.input[start:l.position], Line: line, Column: col}
}

// twoChar consumes the current char's companion when the next char is
// second, leaving l.ch on the last char of the lexeme.
func (l *Lexer) twoChar(second rune, matched, single token.TokenType) token.TokenType {
	if l.peekChar() == second {
		l.readChar()
		return matched
	}
	return single
}

func (l *Lexer) errorToken(message string, line, col int) token.Token {
	return token.Token{Type: token.ERROR, Lexeme: message, Line: line, Column: col}
}

// readString consumes a double-quoted string literal, quotes included.
// Strings may span lines.
func (l *Lexer) readString() (string, bool) {
	position := l.position
	for {
		l.readChar()
		if l.atEnd() {
			return "", false
		}
		if l.ch == '"' {
			break
		}
	}
	l.readChar()
	return l.input[position:l.position], true
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[position:l.position]
}

func (l *Lexer) readNumber() string {
	position := l.position
	for isDigit(l.ch) {
		l.readChar()
	}

	// A fractional part needs at least one digit after the dot.
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return l.input[position:l.position]
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' || (ch >= 0x80 && unicode.IsLetter(ch))
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) skipWhitespace() {
	for {
		for !l.atEnd() && (l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n') {
			l.readChar()
		}
		if l.ch == '/' && l.peekChar() == '/' {
			for !l.atEnd() && l.ch != '\n' {
				l.readChar()
			}
			continue
		}
		break
	}
}
