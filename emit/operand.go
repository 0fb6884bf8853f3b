package emit

import (
	"fmt"

	"github.com/chazu/cellemit/isa"
)

// Operand is a syntactic instruction operand. The set of variants is closed:
// Immediate, SymbolAddress, SymbolValue and LabelRef.
type Operand interface {
	// Kind is the slot kind this operand can fill.
	Kind() isa.OperandKind
	String() string
	operand()
}

// SymbolRef names a storage cell, either by symbol name (looked up in the
// context's symbol table) or by a raw address supplied by the caller.
type SymbolRef struct {
	Name string
	Addr isa.Addr // used when Name is empty
}

// IsRaw reports whether the reference is a raw address.
func (s SymbolRef) IsRaw() bool {
	return s.Name == ""
}

func (s SymbolRef) String() string {
	if s.IsRaw() {
		return s.Addr.String()
	}
	return s.Name
}

// Immediate is a literal cell value.
type Immediate struct {
	Value isa.Cell
}

// SymbolAddress is the location of a storage cell, never its contents.
type SymbolAddress struct {
	Sym SymbolRef
}

// SymbolValue is the current contents of a storage cell. Only static
// contexts can resolve it, from the symbol table's compile-time value.
type SymbolValue struct {
	Sym SymbolRef
}

// LabelRef refers to a label in the same context.
type LabelRef struct {
	Name string
}

func (Immediate) Kind() isa.OperandKind { return isa.KindImmediate }
func (SymbolAddress) Kind() isa.OperandKind { return isa.KindAddress }
func (SymbolValue) Kind() isa.OperandKind { return isa.KindImmediate }
func (LabelRef) Kind() isa.OperandKind { return isa.KindLabel }

func (Immediate) operand() {}
func (SymbolAddress) operand() {}
func (SymbolValue) operand() {}
func (LabelRef) operand() {}

func (o Immediate) String() string { return fmt.Sprintf("%d", int64(o.Value)) }
func (o SymbolAddress) String() string { return "&" + o.Sym.String() }
func (o SymbolValue) String() string { return o.Sym.String() }
func (o LabelRef) String() string { return ":" + o.Name }

// Imm returns an immediate operand.
func Imm(v int64) Operand {
	return Immediate{Value: isa.Cell(v)}
}

// AddrOf returns the address of a named symbol.
func AddrOf(name string) Operand {
	return SymbolAddress{Sym: SymbolRef{Name: name}}
}

// AddrAt returns a raw location operand: an absolute address for global
// variants, a frame offset for local ones.
func AddrAt(a isa.Addr) Operand {
	return SymbolAddress{Sym: SymbolRef{Addr: a}}
}

// ValueOf returns the contents of a named symbol.
func ValueOf(name string) Operand {
	return SymbolValue{Sym: SymbolRef{Name: name}}
}

// Ref returns a label reference.
func Ref(label string) Operand {
	return LabelRef{Name: label}
}

// ShapeOf returns the operand kinds of ops.
func ShapeOf(ops []Operand) isa.Shape {
	shape := make(isa.Shape, len(ops))
	for i, op := range ops {
		shape[i] = op.Kind()
	}
	return shape
}
