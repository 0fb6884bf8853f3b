package emit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chazu/cellemit/isa"
)

var (
	// ErrUnknownMnemonicOrShape reports an instruction the table does not know
	// with the given number of operands.
	ErrUnknownMnemonicOrShape = isa.ErrUnknownMnemonicOrShape

	// ErrInvalidOperandKind reports an operand that does not fit its slot, or
	// a SymbolValue used in dynamic mode.
	ErrInvalidOperandKind = isa.ErrInvalidOperandKind

	ErrBufferOverflow    = errors.New("buffer overflow")
	ErrDuplicateLabel    = errors.New("duplicate label")
	ErrUnresolvedLabel   = errors.New("unresolved label")
	ErrInvalidLabelName  = errors.New("invalid label name")
	ErrInvalidOperand    = errors.New("invalid operand")
	ErrUnknownSymbol     = errors.New("unknown symbol")
	ErrContextClosed     = errors.New("context is not open")
	ErrRegionUnavailable = errors.New("region unavailable")
)

// OverflowError reports an instruction that does not fit in the remaining
// capacity of a context. It matches ErrBufferOverflow with errors.Is.
type OverflowError struct {
	Mnemonic string
	Cursor   int
	Width    int
	Capacity int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("%s: %s needs %d cell(s) at offset %d, capacity %d",
		ErrBufferOverflow, e.Mnemonic, e.Width, e.Cursor, e.Capacity)
}

func (e *OverflowError) Unwrap() error {
	return ErrBufferOverflow
}

// UnresolvedLabelError lists every label that was referenced but never
// defined when a context was finalized.
type UnresolvedLabelError struct {
	Names []string
}

func (e *UnresolvedLabelError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnresolvedLabel, strings.Join(e.Names, ", "))
}

func (e *UnresolvedLabelError) Unwrap() error {
	return ErrUnresolvedLabel
}

// ResolveError reports an operand that could not be turned into cells.
type ResolveError struct {
	Mnemonic string
	Slot     int // 1-based
	Operand  Operand
	Err      error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("%s operand %d (%s): %v", e.Mnemonic, e.Slot, e.Operand, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}
