package emit

import (
	"fmt"

	"github.com/chazu/cellemit/isa"
)

// Encoded is the cell an operand resolves to. For a label reference Value
// is a placeholder and Label/Rule say how the Label Resolver fills it in.
type Encoded struct {
	Value isa.Cell
	Label string
	Rule  isa.PatchRule
}

// IsLabel reports whether the cell still needs the Label Resolver.
func (e Encoded) IsLabel() bool {
	return e.Label != ""
}

// Resolver turns operands into cells for one instruction slot at a time.
// It never touches labels or buffers.
type Resolver struct {
	Mode    Mode
	Symbols SymbolTable // may be nil
}

// Resolve encodes op for slot (0-based) of ins.
func (r Resolver) Resolve(ins *isa.Instruction, slot int, op Operand) (Encoded, error) {
	fail := func(err error) (Encoded, error) {
		return Encoded{}, &ResolveError{Mnemonic: ins.Mnemonic, Slot: slot + 1, Operand: op, Err: err}
	}
	if slot < 0 || slot >= len(ins.Operands) {
		return fail(fmt.Errorf("%w: %s has %d operand(s)", ErrUnknownMnemonicOrShape, ins.Mnemonic, len(ins.Operands)))
	}
	want := ins.Operands[slot]
	if !want.Accepts(op.Kind()) {
		return fail(fmt.Errorf("%w: want %s, got %s", ErrInvalidOperandKind, want, op.Kind()))
	}

	switch o := op.(type) {
	case Immediate:
		return Encoded{Value: o.Value}, nil

	case SymbolAddress:
		if o.Sym.IsRaw() {
			return Encoded{Value: o.Sym.Addr.Cell()}, nil
		}
		sym, err := r.lookup(o.Sym.Name)
		if err != nil {
			return fail(err)
		}
		// A frame offset is only meaningful to a local variant, and a fixed
		// address only to a global one or as a plain immediate.
		wantClass := isa.Global
		if want == isa.KindAddress {
			wantClass = ins.Class
		}
		if sym.Class != wantClass {
			return fail(fmt.Errorf("%w: %s is %s, %s expects %s",
				ErrInvalidOperandKind, sym.Name, sym.Class, ins.Mnemonic, wantClass))
		}
		return Encoded{Value: sym.Location}, nil

	case SymbolValue:
		if r.Mode != ModeStatic {
			return fail(fmt.Errorf("%w: value of %s is not known to a %s context",
				ErrInvalidOperandKind, o.Sym, r.Mode))
		}
		if o.Sym.IsRaw() {
			return fail(fmt.Errorf("%w: value of a raw address", ErrInvalidOperandKind))
		}
		sym, err := r.lookup(o.Sym.Name)
		if err != nil {
			return fail(err)
		}
		if !sym.HasValue {
			return fail(fmt.Errorf("%w: %s has no compile-time value", ErrInvalidOperandKind, sym.Name))
		}
		return Encoded{Value: sym.Value}, nil

	case LabelRef:
		if !IsIdentifier(o.Name) {
			return fail(fmt.Errorf("%w: %q", ErrInvalidLabelName, o.Name))
		}
		return Encoded{Label: o.Name, Rule: ins.Patch}, nil
	}
	return fail(fmt.Errorf("%w: %T", ErrInvalidOperandKind, op))
}

// ResolveAll encodes every operand of ins, failing on the first error.
func (r Resolver) ResolveAll(ins *isa.Instruction, ops []Operand) ([]Encoded, error) {
	if err := ins.Check(ShapeOf(ops)); err != nil {
		return nil, err
	}
	out := make([]Encoded, len(ops))
	for i, op := range ops {
		enc, err := r.Resolve(ins, i, op)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// Classify returns the storage class of the first named symbol operand.
func (r Resolver) Classify(ops []Operand) (isa.StorageClass, error) {
	for _, op := range ops {
		var ref SymbolRef
		switch o := op.(type) {
		case SymbolAddress:
			ref = o.Sym
		case SymbolValue:
			ref = o.Sym
		default:
			continue
		}
		if ref.IsRaw() {
			return isa.Global, nil
		}
		sym, err := r.lookup(ref.Name)
		if err != nil {
			return 0, err
		}
		return sym.Class, nil
	}
	return 0, fmt.Errorf("%w: no symbol operand to select a variant", ErrInvalidOperandKind)
}

func (r Resolver) lookup(name string) (Symbol, error) {
	if r.Symbols == nil {
		return Symbol{}, fmt.Errorf("%w: %s (no symbol table)", ErrUnknownSymbol, name)
	}
	sym, ok := r.Symbols.Symbol(name)
	if !ok {
		return Symbol{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, name)
	}
	return sym, nil
}
