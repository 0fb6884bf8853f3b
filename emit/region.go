package emit

import (
	"fmt"

	"github.com/chazu/cellemit/isa"
)

// Region is the memory a Context writes into. Offsets are cell offsets from
// Base and are always within [0, Capacity).
type Region interface {
	Base() isa.Addr
	Capacity() int
	Load(offset int) isa.Cell

	// Store writes one cell. It fails once the region has been sealed,
	// poisoned or released.
	Store(offset int, v isa.Cell) error

	// Attest fails unless the region is writable and nothing is executing
	// it. A successful Attest binds the region to the caller: a second
	// Attest fails, so at most one dynamic context writes a region.
	Attest() error

	// Seal hands the first length cells over as a finished instruction
	// sequence. It is called once, by a successful Finalize.
	Seal(length int) error

	// Poison marks the region as never enterable. It is called by Discard.
	Poison() error
}

// Originer is implemented by regions that start part-way into a routine.
// Origin is the offset of the region's first cell from the routine entry;
// absolute label operands are written relative to the routine entry.
type Originer interface {
	Origin() int
}

// SymbolTable is the symbol classification service. Static contexts use it
// to resolve named operands and to pick ".U" variants.
type SymbolTable interface {
	Symbol(name string) (Symbol, bool)
}

// Symbol describes one named storage cell.
type Symbol struct {
	Name     string
	Class    isa.StorageClass
	Location isa.Cell // fixed address for Global, frame offset for Local
	Value    isa.Cell // compile-time contents, valid when HasValue
	HasValue bool
}

// ---------------------------------------------------------------------------
// Buffer: a detached in-memory region
// ---------------------------------------------------------------------------

// Buffer is a Region backed by its own cell slice. It is the target of
// static segments and of tests; base is only used to compute addresses.
type Buffer struct {
	base     isa.Addr
	cells    []isa.Cell
	length   int
	sealed   bool
	poisoned bool
	bound    bool // attested by a context
}

// NewBuffer creates a zeroed buffer of capacity cells at base.
func NewBuffer(base isa.Addr, capacity int) *Buffer {
	return &Buffer{base: base, cells: make([]isa.Cell, capacity)}
}

func (b *Buffer) Base() isa.Addr { return b.base }
func (b *Buffer) Capacity() int { return len(b.cells) }
func (b *Buffer) Load(offset int) isa.Cell { return b.cells[offset] }

// Store implements Region.
func (b *Buffer) Store(offset int, v isa.Cell) error {
	if err := b.writable(); err != nil {
		return err
	}
	b.cells[offset] = v
	return nil
}

func (b *Buffer) writable() error {
	switch {
	case b.sealed:
		return fmt.Errorf("%w: buffer at %s is sealed", ErrRegionUnavailable, b.base)
	case b.poisoned:
		return fmt.Errorf("%w: buffer at %s is poisoned", ErrRegionUnavailable, b.base)
	}
	return nil
}

// Attest implements Region.
func (b *Buffer) Attest() error {
	if err := b.writable(); err != nil {
		return err
	}
	if b.bound {
		return fmt.Errorf("%w: buffer at %s is bound to another context", ErrRegionUnavailable, b.base)
	}
	b.bound = true
	return nil
}

// Seal implements Region.
func (b *Buffer) Seal(length int) error {
	if b.sealed || b.poisoned {
		return fmt.Errorf("%w: buffer at %s already released", ErrRegionUnavailable, b.base)
	}
	b.sealed = true
	b.length = length
	return nil
}

// Poison implements Region.
func (b *Buffer) Poison() error {
	if b.sealed {
		return fmt.Errorf("%w: buffer at %s is sealed", ErrRegionUnavailable, b.base)
	}
	b.poisoned = true
	return nil
}

// Sealed reports whether the buffer was sealed.
func (b *Buffer) Sealed() bool {
	return b.sealed
}

// Poisoned reports whether the buffer was poisoned.
func (b *Buffer) Poisoned() bool {
	return b.poisoned
}

// Cells returns a copy of the sealed instruction sequence, or of the whole
// buffer if it has not been sealed.
func (b *Buffer) Cells() []isa.Cell {
	n := len(b.cells)
	if b.sealed {
		n = b.length
	}
	return append([]isa.Cell(nil), b.cells[:n]...)
}
