package emit

import (
	"errors"
	"testing"

	"github.com/chazu/cellemit/isa"
)

func TestParseOperand(t *testing.T) {
	tests := []struct {
		text string
		want Operand
	}{
		{"42", Imm(42)},
		{"-7", Imm(-7)},
		{"0x2A", Imm(42)},
		{"0o52", Imm(42)},
		{"0b101010", Imm(42)},
		{"1_000", Imm(1000)},
		{"0xFFFFFFFFFFFFFFFF", Imm(-1)},
		{"-9223372036854775808", Imm(-9223372036854775808)},
		{"'A'", Imm(65)},
		{`'\n'`, Imm(10)},
		{"&counter", AddrOf("counter")},
		{"& 0x100", AddrAt(0x100)},
		{":loop", Ref("loop")},
		{"counter", ValueOf("counter")},
		{"  spaced  ", ValueOf("spaced")},
	}

	for _, tt := range tests {
		got, err := ParseOperand(tt.text)
		if err != nil {
			t.Errorf("ParseOperand(%q): %v", tt.text, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseOperand(%q) = %#v, want %#v", tt.text, got, tt.want)
		}
	}
}

func TestParseOperandErrors(t *testing.T) {
	for _, text := range []string{
		"",
		":",
		":9lives",
		"&",
		"&a-b",
		"0x",
		"12abc",
		"0x1FFFFFFFFFFFFFFFF",
		"-9223372036854775809",
		"'ab'",
		"''",
		"a+b",
	} {
		if op, err := ParseOperand(text); !errors.Is(err, ErrInvalidOperand) {
			t.Errorf("ParseOperand(%q) = %v, %v; want ErrInvalidOperand", text, op, err)
		}
	}
}

func TestOperandKinds(t *testing.T) {
	tests := []struct {
		op   Operand
		kind isa.OperandKind
		text string
	}{
		{Imm(3), isa.KindImmediate, "3"},
		{AddrOf("x"), isa.KindAddress, "&x"},
		{AddrAt(0x10), isa.KindAddress, "&@0010"},
		{ValueOf("x"), isa.KindImmediate, "x"},
		{Ref("top"), isa.KindLabel, ":top"},
	}
	for _, tt := range tests {
		if tt.op.Kind() != tt.kind {
			t.Errorf("%s: Kind = %s, want %s", tt.text, tt.op.Kind(), tt.kind)
		}
		if tt.op.String() != tt.text {
			t.Errorf("String = %q, want %q", tt.op.String(), tt.text)
		}
	}
}

func TestIsIdentifier(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"loop", true},
		{"_tmp", true},
		{"x1", true},
		{"$ret", true},
		{"local.i", true},
		{"1x", false},
		{"", false},
		{"a b", false},
		{"a-b", false},
	}
	for _, tt := range tests {
		if got := IsIdentifier(tt.s); got != tt.want {
			t.Errorf("IsIdentifier(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
