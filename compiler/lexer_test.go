package compiler

import (
	"testing"
)

func TestLexerTokens(t *testing.T) {
	input := "loop: LOAD.U.P &count, :done ! x ; trailing comment\n.routine main"
	expected := []struct {
		typ TokenType
		lit string
	}{
		{TokenLabel, "loop"},
		{TokenIdent, "LOAD.U.P"},
		{TokenAddress, "count"},
		{TokenComma, ","},
		{TokenLabelRef, "done"},
		{TokenBang, "!"},
		{TokenIdent, "x"},
		{TokenNewline, "\n"},
		{TokenDirective, ".routine"},
		{TokenIdent, "main"},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Type != exp.typ {
			t.Errorf("token[%d] type = %v, want %v", i, tok.Type, exp.typ)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		want  string
	}{
		{"42", TokenNumber, "42"},
		{"-7", TokenNumber, "-7"},
		{"+3", TokenNumber, "+3"},
		{"0x2A", TokenNumber, "0x2A"},
		{"1_000", TokenNumber, "1_000"},
		{"&0x100", TokenAddress, "0x100"},
		{"'A'", TokenCharacter, "'A'"},
		{`'\n'`, TokenCharacter, `'\n'`},
		{`'\''`, TokenCharacter, `'\''`},
	}

	for _, tc := range tests {
		tok := NewLexer(tc.input).NextToken()
		if tok.Type != tc.typ {
			t.Errorf("Lexer(%q): type = %v, want %v", tc.input, tok.Type, tc.typ)
		}
		if tok.Literal != tc.want {
			t.Errorf("Lexer(%q): literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerErrors(t *testing.T) {
	for _, input := range []string{"'A", ": x", "&", "#", "&-"} {
		tok := NewLexer(input).NextToken()
		if tok.Type != TokenError {
			t.Errorf("Lexer(%q) = %v, want ERROR", input, tok)
		}
	}
}

func TestLexerPositions(t *testing.T) {
	l := NewLexer("NOP\n  RET")
	want := []Position{{1, 1}, {1, 4}, {2, 3}, {2, 6}}
	for i, pos := range want {
		tok := l.NextToken()
		if tok.Pos != pos {
			t.Errorf("token[%d] %v at %v, want %v", i, tok, tok.Pos, pos)
		}
	}
}
