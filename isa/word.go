package isa

import "fmt"

// Cell is the machine word of the virtual machine. It is the smallest
// addressable and encodable unit: opcodes, operands, data and stack slots
// all occupy exactly one cell.
type Cell int64

// CellBits is the width of a cell in bits.
const CellBits = 64

// Addr is a cell index into machine memory.
type Addr int64

// Cell returns the address as an encodable cell.
func (a Addr) Cell() Cell {
	return Cell(a)
}

// Add returns the address n cells past a.
func (a Addr) Add(n int) Addr {
	return a + Addr(n)
}

// String implements the Stringer interface.
func (a Addr) String() string {
	return fmt.Sprintf("@%04X", int64(a))
}

// Bool converts a truth value into the cell the machine uses for it.
func Bool(b bool) Cell {
	if b {
		return 1
	}
	return 0
}

// StorageClass tells where a variable lives.
type StorageClass uint8

const (
	// Global variables live at a fixed address.
	Global StorageClass = iota
	// Local variables live at an offset from the current frame pointer.
	Local
)

// String implements the Stringer interface.
func (c StorageClass) String() string {
	switch c {
	case Global:
		return "global"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("StorageClass(%d)", c)
	}
}
