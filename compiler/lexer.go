package compiler

import (
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for assembler source
// ---------------------------------------------------------------------------

// Lexer tokenizes assembler source. Source is line oriented: newlines are
// tokens and ';' starts a comment that runs to the end of the line.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // column of ch (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.col++
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Column: l.col}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipBlanks()
	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '\n':
		l.readChar()
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos}

	case l.ch == ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}

	case l.ch == '!':
		l.readChar()
		return Token{Type: TokenBang, Literal: "!", Pos: pos}

	case l.ch == '\'':
		return l.readCharacter(pos)

	case l.ch == ':':
		l.readChar()
		if !isIdentStart(l.ch) {
			return Token{Type: TokenError, Literal: "expected label name after ':'", Pos: pos}
		}
		return Token{Type: TokenLabelRef, Literal: l.readIdent(), Pos: pos}

	case l.ch == '&':
		l.readChar()
		l.skipBlanks()
		switch {
		case isDigit(l.ch):
			return Token{Type: TokenAddress, Literal: l.readNumber(), Pos: pos}
		case isIdentStart(l.ch):
			return Token{Type: TokenAddress, Literal: l.readIdent(), Pos: pos}
		}
		return Token{Type: TokenError, Literal: "expected symbol or address after '&'", Pos: pos}

	case l.ch == '.' && isIdentStart(l.peekChar()):
		l.readChar()
		return Token{Type: TokenDirective, Literal: "." + l.readIdent(), Pos: pos}

	case isDigit(l.ch) || ((l.ch == '-' || l.ch == '+') && isDigit(l.peekChar())):
		sign := ""
		if l.ch == '-' || l.ch == '+' {
			sign = string(l.ch)
			l.readChar()
		}
		return Token{Type: TokenNumber, Literal: sign + l.readNumber(), Pos: pos}

	case isIdentStart(l.ch):
		name := l.readIdent()
		if l.ch == ':' {
			l.readChar()
			return Token{Type: TokenLabel, Literal: name, Pos: pos}
		}
		return Token{Type: TokenIdent, Literal: name, Pos: pos}
	}

	ch := l.ch
	l.readChar()
	return Token{Type: TokenError, Literal: "unexpected character " + string(ch), Pos: pos}
}

// skipBlanks skips spaces, tabs, carriage returns and comments, but not
// newlines.
func (l *Lexer) skipBlanks() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case ';':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readIdent() string {
	start := l.pos
	for isIdentStart(l.ch) || isDigit(l.ch) || l.ch == '.' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads the body of a numeric literal. Validation is left to
// emit.ParseCell.
func (l *Lexer) readNumber() string {
	start := l.pos
	for isDigit(l.ch) || unicode.IsLetter(l.ch) || l.ch == '_' {
		l.readChar()
	}
	return l.input[start:l.pos]
}

func (l *Lexer) readCharacter(pos Position) Token {
	start := l.pos
	l.readChar() // opening quote
	for l.ch != '\'' {
		if l.ch == 0 || l.ch == '\n' {
			return Token{Type: TokenError, Literal: "unterminated character literal", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
		}
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: TokenCharacter, Literal: l.input[start:l.pos], Pos: pos}
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
