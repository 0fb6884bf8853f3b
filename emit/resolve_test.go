package emit

import (
	"errors"
	"testing"

	"github.com/chazu/cellemit/isa"
)

func lookup(t *testing.T, mnemonic string) *isa.Instruction {
	t.Helper()
	ins, ok := isa.Find(mnemonic)
	if !ok {
		t.Fatalf("%s not in table", mnemonic)
	}
	return ins
}

func TestAddressAndValueDiffer(t *testing.T) {
	r := Resolver{Mode: ModeStatic, Symbols: testSymbols()}
	ins := lookup(t, "CONST.P")

	addr, err := r.Resolve(ins, 0, AddrOf("counter"))
	if err != nil {
		t.Fatalf("Resolve(&counter): %v", err)
	}
	val, err := r.Resolve(ins, 0, ValueOf("counter"))
	if err != nil {
		t.Fatalf("Resolve(counter): %v", err)
	}
	if addr.Value != 0x40 {
		t.Errorf("address = %d, want 0x40", addr.Value)
	}
	if val.Value != 7 {
		t.Errorf("value = %d, want 7", val.Value)
	}
}

func TestResolveErrors(t *testing.T) {
	syms := testSymbols()
	syms["novalue"] = Symbol{Name: "novalue", Class: isa.Global, Location: 0x41}

	tests := []struct {
		name     string
		mode     Mode
		mnemonic string
		op       Operand
		want     error
	}{
		{"value in dynamic mode", ModeDynamic, "CONST.P", ValueOf("counter"), ErrInvalidOperandKind},
		{"local for global slot", ModeStatic, "LOAD.P", AddrOf("i"), ErrInvalidOperandKind},
		{"global for local slot", ModeStatic, "LOAD.L.P", AddrOf("counter"), ErrInvalidOperandKind},
		{"local as immediate", ModeStatic, "CONST.P", AddrOf("i"), ErrInvalidOperandKind},
		{"unknown symbol", ModeStatic, "LOAD.P", AddrOf("missing"), ErrUnknownSymbol},
		{"value of raw address", ModeStatic, "CONST.P", SymbolValue{Sym: SymbolRef{Addr: 0x40}}, ErrInvalidOperandKind},
		{"value without contents", ModeStatic, "CONST.P", ValueOf("novalue"), ErrInvalidOperandKind},
		{"immediate for address", ModeStatic, "INC.G", Imm(0x40), ErrInvalidOperandKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolver{Mode: tt.mode, Symbols: syms}
			_, err := r.Resolve(lookup(t, tt.mnemonic), 0, tt.op)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Resolve = %v, want %v", err, tt.want)
			}
			var re *ResolveError
			if !errors.As(err, &re) || re.Slot != 1 {
				t.Errorf("error %v is not a slot-1 ResolveError", err)
			}
		})
	}
}

func TestResolveLabelCarriesRule(t *testing.T) {
	r := Resolver{Mode: ModeDynamic}
	for _, tt := range []struct {
		mnemonic string
		rule     isa.PatchRule
	}{
		{"JUMP", isa.PatchAbsolute},
		{"CALL", isa.PatchAbsolute},
		{"JZER", isa.PatchRelative},
		{"JREL", isa.PatchRelative},
	} {
		enc, err := r.Resolve(lookup(t, tt.mnemonic), 0, Ref("x"))
		if err != nil {
			t.Fatalf("%s: %v", tt.mnemonic, err)
		}
		if !enc.IsLabel() || enc.Label != "x" || enc.Rule != tt.rule {
			t.Errorf("%s: Encoded = %+v, want label x %s", tt.mnemonic, enc, tt.rule)
		}
	}
}

func TestResolveRawAddress(t *testing.T) {
	r := Resolver{Mode: ModeDynamic}
	enc, err := r.Resolve(lookup(t, "LOAD.P"), 0, AddrAt(0x1234))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if enc.Value != 0x1234 || enc.IsLabel() {
		t.Errorf("Encoded = %+v", enc)
	}
}
