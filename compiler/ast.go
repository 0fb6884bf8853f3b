package compiler

import "strings"

// Statement is one source line: an optional label definition followed by an
// optional instruction or directive.
type Statement struct {
	Pos   Position
	Label string // defined label, without the colon
	Op    string // mnemonic, or directive including the leading '.'
	Args  []Arg
}

// IsDirective reports whether Op names a directive.
func (s Statement) IsDirective() bool {
	return strings.HasPrefix(s.Op, ".")
}

// Arg is one comma-separated operand as written in the source.
type Arg struct {
	Pos  Position
	Text string // canonical operand text, accepted by emit.ParseOperand
}

func (s Statement) String() string {
	var b strings.Builder
	if s.Label != "" {
		b.WriteString(s.Label)
		b.WriteString(":")
	}
	if s.Op != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s.Op)
		for i, a := range s.Args {
			if i == 0 {
				b.WriteString(" ")
			} else {
				b.WriteString(", ")
			}
			b.WriteString(a.Text)
		}
	}
	return b.String()
}
