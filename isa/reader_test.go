package isa

import (
	"errors"
	"strings"
	"testing"
)

func TestReaderDecodes(t *testing.T) {
	cells := []Cell{
		Cell(OpPROC),
		Cell(OpConstP), 5,
		Cell(OpJZER), 3,
		Cell(OpSetM), 0x40, -1,
		Cell(OpRET),
	}
	r := NewReader(cells)

	want := []struct {
		op       Opcode
		offset   int
		operands int
	}{
		{OpPROC, 0, 0},
		{OpConstP, 1, 1},
		{OpJZER, 3, 1},
		{OpSetM, 5, 2},
		{OpRET, 8, 0},
	}
	for _, w := range want {
		d, err := r.Next()
		if err != nil {
			t.Fatalf("Next at %d: %v", w.offset, err)
		}
		if d.Op != w.op || d.Offset != w.offset || len(d.Operands) != w.operands {
			t.Errorf("decoded %s@%d/%d, want %s@%d/%d",
				d.Op, d.Offset, len(d.Operands), w.op, w.offset, w.operands)
		}
	}
	if r.HasMore() {
		t.Error("reader should be exhausted")
	}
}

func TestDecodedTarget(t *testing.T) {
	cells := []Cell{Cell(OpNOP), Cell(OpJZER), 4, Cell(OpJUMP), 1}
	r := NewReader(cells)
	r.Seek(1)

	d, _ := r.Next()
	if target, ok := d.Target(); !ok || target != 6 {
		t.Errorf("JZER target = %d (%v), want 6", target, ok)
	}
	d, _ = r.Next()
	if target, ok := d.Target(); !ok || target != 1 {
		t.Errorf("JUMP target = %d (%v), want 1", target, ok)
	}
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader([]Cell{Cell(OpSetM), 1})
	_, err := r.Next()
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("error = %v, want ErrTruncated", err)
	}
}

func TestReaderUnknownOpcode(t *testing.T) {
	r := NewReader([]Cell{0x1_0000_0030, Cell(OpNOP)})
	d, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if d.Ins != nil {
		t.Errorf("out-of-range cell decoded as %s", d.Ins.Mnemonic)
	}
	if d.Width() != 1 {
		t.Errorf("unknown width = %d, want 1", d.Width())
	}
}

func TestDisassemble(t *testing.T) {
	cells := []Cell{
		Cell(OpPROC),
		Cell(OpLoadP), 0x20,
		Cell(OpLoadLP), -2,
		Cell(OpJZER), 2,
		Cell(OpRET),
	}
	out := Disassemble(cells, 0x100)
	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	checks := []string{"PROC", "LOAD.P", "@0020", "[FP-2]", "JZER", "(-> @0108)", "RET"}
	for _, c := range checks {
		if !strings.Contains(out, c) {
			t.Errorf("disassembly missing %q:\n%s", c, out)
		}
	}
	if !strings.HasPrefix(lines[0], "@0100") {
		t.Errorf("first line should start at base, got %q", lines[0])
	}
}
