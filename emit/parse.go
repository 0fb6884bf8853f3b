package emit

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/chazu/cellemit/isa"
)

// ParseOperand converts operand text into an Operand:
//
//	42 -7 0x2A 0o52 0b101010 1_000   immediate
//	'A' '\n'                          immediate (character code)
//	&name                             address of a named symbol
//	&0x100                            raw address
//	:name                             label reference
//	name                              value of a named symbol
func ParseOperand(text string) (Operand, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fmt.Errorf("%w: empty operand", ErrInvalidOperand)
	}

	switch {
	case s[0] == ':':
		name := s[1:]
		if !IsIdentifier(name) {
			return nil, fmt.Errorf("%w: %w: %q", ErrInvalidOperand, ErrInvalidLabelName, name)
		}
		return Ref(name), nil

	case s[0] == '&':
		rest := strings.TrimSpace(s[1:])
		if rest == "" {
			return nil, fmt.Errorf("%w: address-of without a target", ErrInvalidOperand)
		}
		if startsNumber(rest) {
			v, err := ParseCell(rest)
			if err != nil {
				return nil, err
			}
			return AddrAt(isa.Addr(v)), nil
		}
		if !IsIdentifier(rest) {
			return nil, fmt.Errorf("%w: invalid symbol name %q", ErrInvalidOperand, rest)
		}
		return AddrOf(rest), nil

	case s[0] == '\'':
		v, err := parseChar(s)
		if err != nil {
			return nil, err
		}
		return Immediate{Value: v}, nil

	case startsNumber(s):
		v, err := ParseCell(s)
		if err != nil {
			return nil, err
		}
		return Immediate{Value: v}, nil
	}

	if !IsIdentifier(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperand, s)
	}
	return ValueOf(s), nil
}

// ParseCell parses an integer literal in any base Go literal syntax allows
// and returns its bit pattern as a cell. Unsigned literals up to 2^64-1 are
// accepted and wrap into the word, so 0xFFFFFFFFFFFFFFFF is -1.
func ParseCell(s string) (isa.Cell, error) {
	body := s
	neg := false
	switch {
	case strings.HasPrefix(body, "-"):
		neg = true
		body = body[1:]
	case strings.HasPrefix(body, "+"):
		body = body[1:]
	}
	u, err := strconv.ParseUint(body, 0, isa.CellBits)
	if err != nil {
		return 0, fmt.Errorf("%w: integer literal %q: %w", ErrInvalidOperand, s, err)
	}
	if neg {
		if u > 1<<(isa.CellBits-1) {
			return 0, fmt.Errorf("%w: integer literal %q out of range", ErrInvalidOperand, s)
		}
		return isa.Cell(-int64(u)), nil
	}
	return isa.Cell(u), nil
}

// IsIdentifier reports whether s is a valid symbol or label name.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$' || r == '.' || unicode.IsLetter(r):
		case unicode.IsDigit(r) && i > 0:
		default:
			return false
		}
	}
	return true
}

func startsNumber(s string) bool {
	if s[0] == '-' || s[0] == '+' {
		s = s[1:]
	}
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func parseChar(s string) (isa.Cell, error) {
	if len(s) < 3 || s[len(s)-1] != '\'' {
		return 0, fmt.Errorf("%w: character literal %s", ErrInvalidOperand, s)
	}
	r, _, tail, err := strconv.UnquoteChar(s[1:len(s)-1], '\'')
	if err != nil || tail != "" {
		return 0, fmt.Errorf("%w: character literal %s", ErrInvalidOperand, s)
	}
	return isa.Cell(r), nil
}
