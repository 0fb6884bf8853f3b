package isa

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTruncated reports an instruction whose operands run past the end of
// the cells being decoded.
var ErrTruncated = errors.New("truncated instruction")

// ---------------------------------------------------------------------------
// Reader: decodes an encoded cell stream
// ---------------------------------------------------------------------------

// Decoded is one instruction read back from a cell stream.
type Decoded struct {
	Offset   int          // offset of the opcode cell
	Op       Opcode       // raw opcode
	Ins      *Instruction // nil for unknown opcodes
	Operands []Cell
}

// Width returns the number of cells the instruction occupied.
func (d Decoded) Width() int {
	return 1 + len(d.Operands)
}

// Target returns the stream offset a label operand points at.
func (d Decoded) Target() (int, bool) {
	if d.Ins == nil || d.Ins.Patch == PatchNone || len(d.Operands) == 0 {
		return 0, false
	}
	v := int(d.Operands[0])
	if d.Ins.Patch == PatchRelative {
		// the label operand is the cell right after the opcode
		return d.Offset + 1 + v, true
	}
	return v, true
}

// Reader reads instructions out of a cell slice.
type Reader struct {
	cells []Cell
	pos   int
}

// NewReader creates a reader over cells.
func NewReader(cells []Cell) *Reader {
	return &Reader{cells: cells}
}

// Position returns the current read offset.
func (r *Reader) Position() int {
	return r.pos
}

// HasMore returns true if there are more cells to read.
func (r *Reader) HasMore() bool {
	return r.pos < len(r.cells)
}

// Seek sets the read offset.
func (r *Reader) Seek(pos int) {
	r.pos = pos
}

// Next decodes the instruction at the current offset and advances past it.
// Unknown opcodes decode as a single cell with a nil Ins.
func (r *Reader) Next() (Decoded, error) {
	if r.pos >= len(r.cells) {
		return Decoded{}, fmt.Errorf("%w: at offset %d", ErrTruncated, r.pos)
	}
	d := Decoded{Offset: r.pos, Op: Opcode(r.cells[r.pos])}
	r.pos++
	ins, ok := byOpcode[d.Op]
	if !ok || r.cells[d.Offset] < 0 || r.cells[d.Offset] > 0xFFFF {
		return d, nil
	}
	d.Ins = ins
	n := len(ins.Operands)
	if r.pos+n > len(r.cells) {
		r.pos = len(r.cells)
		return d, fmt.Errorf("%w: %s at offset %d", ErrTruncated, ins.Mnemonic, d.Offset)
	}
	d.Operands = append([]Cell(nil), r.cells[r.pos:r.pos+n]...)
	r.pos += n
	return d, nil
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// Format renders a decoded instruction. base is the address of offset 0 and
// is only used for display.
func (d Decoded) Format(base Addr) string {
	pos := base.Add(d.Offset)
	if d.Ins == nil {
		return fmt.Sprintf("%s  %-9s ; 0x%X", pos, d.Op, int64(d.Op))
	}
	if len(d.Operands) == 0 {
		return fmt.Sprintf("%s  %s", pos, d.Ins.Mnemonic)
	}
	args := make([]string, len(d.Operands))
	for i, v := range d.Operands {
		switch d.Ins.Operands[i] {
		case KindAddress:
			if d.Ins.Class == Local {
				args[i] = fmt.Sprintf("[FP%+d]", int64(v))
			} else {
				args[i] = Addr(v).String()
			}
		default:
			args[i] = fmt.Sprintf("%d", int64(v))
		}
	}
	line := fmt.Sprintf("%s  %-9s %s", pos, d.Ins.Mnemonic, strings.Join(args, ", "))
	if target, ok := d.Target(); ok {
		line += fmt.Sprintf(" (-> %s)", base.Add(target))
	}
	return line
}

// Disassemble returns a listing of cells, one instruction per line.
func Disassemble(cells []Cell, base Addr) string {
	r := NewReader(cells)
	var lines []string
	for r.HasMore() {
		d, err := r.Next()
		if err != nil {
			lines = append(lines, fmt.Sprintf("%s  ; %v", base.Add(d.Offset), err))
			break
		}
		lines = append(lines, d.Format(base))
	}
	return strings.Join(lines, "\n")
}
