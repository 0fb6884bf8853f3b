package compiler

import (
	"errors"
	"testing"
)

func TestParseStatements(t *testing.T) {
	src := `
; header comment
.global count, 5
.routine main
start:  LOAD.U.P &count
        JZER :start
done:
.if !debug
        CONST.P 'x'
.endif
.end
`
	stmts, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []string{
		".global count, 5",
		".routine main",
		"start: LOAD.U.P &count",
		"JZER :start",
		"done:",
		".if !debug",
		"CONST.P 'x'",
		".endif",
		".end",
	}
	if len(stmts) != len(want) {
		t.Fatalf("got %d statements, want %d: %v", len(stmts), len(want), stmts)
	}
	for i, st := range stmts {
		if st.String() != want[i] {
			t.Errorf("stmt[%d] = %q, want %q", i, st.String(), want[i])
		}
	}
	if stmts[2].Pos.Line != 5 {
		t.Errorf("stmt[2] line = %d, want 5", stmts[2].Pos.Line)
	}
	if !stmts[0].IsDirective() || stmts[3].IsDirective() {
		t.Errorf("IsDirective misclassified %q or %q", stmts[0], stmts[3])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"missing operand", "NOP\nLOAD.P ,", 2},
		{"trailing garbage", "NOP\nNOP\nRET 1 2", 3},
		{"bang without operand", ".if !", 1},
		{"unterminated char", "CONST.P 'a", 1},
		{"label ref only", ":loop", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.src)
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("Parse = %v, want ErrSyntax", err)
			}
			var perr *Error
			if !errors.As(err, &perr) {
				t.Fatalf("Parse error %T carries no position", err)
			}
			if perr.Pos.Line != tc.line {
				t.Errorf("error line = %d, want %d", perr.Pos.Line, tc.line)
			}
		})
	}
}

func TestParseReportsEveryError(t *testing.T) {
	_, err := Parse("NOP ,\nRET\nHALT 1 2\n")
	var list *ErrorList
	if !errors.As(err, &list) {
		t.Fatalf("Parse = %v, want *ErrorList", err)
	}
	if len(list.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(list.Errors), list)
	}
}
