package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the assembler lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenNewline

	TokenNumber    // 42, -7, 0x2A, 1_000
	TokenCharacter // 'A', '\n'
	TokenIdent     // LOAD.L.P, counter
	TokenDirective // .routine, .if
	TokenLabel     // loop:
	TokenLabelRef  // :loop
	TokenAddress   // &counter, &0x100

	TokenComma // ,
	TokenBang  // !
)

var tokenNames = map[TokenType]string{
	TokenEOF:       "EOF",
	TokenError:     "ERROR",
	TokenNewline:   "NEWLINE",
	TokenNumber:    "NUMBER",
	TokenCharacter: "CHARACTER",
	TokenIdent:     "IDENT",
	TokenDirective: "DIRECTIVE",
	TokenLabel:     "LABEL",
	TokenLabelRef:  "LABELREF",
	TokenAddress:   "ADDRESS",
	TokenComma:     ",",
	TokenBang:      "!",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in source text.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF, TokenNewline:
		return t.Type.String()
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}
