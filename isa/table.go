package isa

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownMnemonicOrShape reports a mnemonic that is not in the table,
	// or one that is used with the wrong number of operands.
	ErrUnknownMnemonicOrShape = errors.New("unknown mnemonic or operand shape")

	// ErrInvalidOperandKind reports an operand whose kind does not fit the
	// slot it was given for.
	ErrInvalidOperandKind = errors.New("invalid operand kind")
)

// OperandKind classifies an encoded operand slot.
type OperandKind uint8

const (
	// KindImmediate is a literal cell value.
	KindImmediate OperandKind = iota + 1
	// KindAddress is the location of a storage cell: a fixed address for
	// global variants, a frame offset for local variants.
	KindAddress
	// KindLabel is a reference to a label in the same stream.
	KindLabel
)

// String implements the Stringer interface.
func (k OperandKind) String() string {
	switch k {
	case KindImmediate:
		return "imm"
	case KindAddress:
		return "addr"
	case KindLabel:
		return "label"
	default:
		return fmt.Sprintf("OperandKind(%d)", k)
	}
}

// Accepts reports whether an operand of kind supplied may fill a slot of
// kind k. An address is a valid immediate (its value is the location), but
// an immediate is never a valid address.
func (k OperandKind) Accepts(supplied OperandKind) bool {
	if k == supplied {
		return true
	}
	return k == KindImmediate && supplied == KindAddress
}

// Shape is the list of operand kinds supplied to an instruction.
type Shape []OperandKind

// String implements the Stringer interface.
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, k := range s {
		parts[i] = k.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// PatchRule says how a label operand is computed once the label is known.
type PatchRule uint8

const (
	// PatchNone marks instructions without a label slot.
	PatchNone PatchRule = iota
	// PatchAbsolute writes the label's offset within the stream.
	PatchAbsolute
	// PatchRelative writes the label's offset minus the operand cell offset.
	PatchRelative
)

// String implements the Stringer interface.
func (r PatchRule) String() string {
	switch r {
	case PatchNone:
		return "none"
	case PatchAbsolute:
		return "absolute"
	case PatchRelative:
		return "relative"
	default:
		return fmt.Sprintf("PatchRule(%d)", r)
	}
}

// Apply computes the operand value for a site once the label offset is known.
func (r PatchRule) Apply(labelOffset, siteOffset int) Cell {
	if r == PatchRelative {
		return Cell(labelOffset - siteOffset)
	}
	return Cell(labelOffset)
}

// Register names the registers an instruction touches implicitly. These
// are part of the mnemonic, never encoded as operands.
type Register uint8

const (
	RegNone Register = 0
	RegP    Register = 1 << 0
	RegS    Register = 1 << 1
	RegBoth          = RegP | RegS
)

// String implements the Stringer interface.
func (r Register) String() string {
	switch r {
	case RegNone:
		return "-"
	case RegP:
		return "P"
	case RegS:
		return "S"
	case RegBoth:
		return "P,S"
	default:
		return fmt.Sprintf("Register(%d)", r)
	}
}

// ---------------------------------------------------------------------------
// Instruction table
// ---------------------------------------------------------------------------

// Instruction is one immutable entry of the instruction table.
type Instruction struct {
	Mnemonic string
	Op       Opcode
	Operands Shape        // kind of each encoded operand slot
	Implicit Register     // registers named by the mnemonic suffix
	Class    StorageClass // storage class of KindAddress slots
	Patch    PatchRule    // rule for the KindLabel slot, if any
}

// Width returns the encoded width in cells: the opcode cell plus one cell
// per operand slot.
func (ins *Instruction) Width() int {
	return 1 + len(ins.Operands)
}

// String implements the Stringer interface.
func (ins *Instruction) String() string {
	return ins.Mnemonic + ins.Operands.String()
}

// Check validates a supplied shape against the instruction's slots.
func (ins *Instruction) Check(shape Shape) error {
	if len(shape) != len(ins.Operands) {
		return fmt.Errorf("%w: %s takes %d operand(s), got %d",
			ErrUnknownMnemonicOrShape, ins.Mnemonic, len(ins.Operands), len(shape))
	}
	for i, want := range ins.Operands {
		if !want.Accepts(shape[i]) {
			return fmt.Errorf("%w: %s operand %d wants %s, got %s",
				ErrInvalidOperandKind, ins.Mnemonic, i+1, want, shape[i])
		}
	}
	return nil
}

var (
	imm   = Shape{KindImmediate}
	addr  = Shape{KindAddress}
	label = Shape{KindLabel}
)

// table is the process-wide instruction table. It is built at package
// initialization and never mutated afterwards.
var table = []Instruction{
	// Control
	{Mnemonic: "NOP", Op: OpNOP},
	{Mnemonic: "HALT", Op: OpHALT, Implicit: RegP},
	{Mnemonic: "TRAP", Op: OpTRAP},

	// Frames and calls
	{Mnemonic: "PROC", Op: OpPROC},
	{Mnemonic: "RET", Op: OpRET, Implicit: RegP},
	{Mnemonic: "STACK", Op: OpSTACK, Operands: imm},
	{Mnemonic: "CALL", Op: OpCALL, Operands: label, Patch: PatchAbsolute},
	{Mnemonic: "CALLA", Op: OpCALLA, Operands: addr, Class: Global},

	// Constants
	{Mnemonic: "CONST.P", Op: OpConstP, Operands: imm, Implicit: RegP},
	{Mnemonic: "CONST.S", Op: OpConstS, Operands: imm, Implicit: RegS},
	{Mnemonic: "ZERO.P", Op: OpZeroP, Implicit: RegP},
	{Mnemonic: "ZERO.S", Op: OpZeroS, Implicit: RegS},
	{Mnemonic: "PUSH.C", Op: OpPushC, Operands: imm},

	// Global storage
	{Mnemonic: "LOAD.P", Op: OpLoadP, Operands: addr, Implicit: RegP, Class: Global},
	{Mnemonic: "LOAD.S", Op: OpLoadS, Operands: addr, Implicit: RegS, Class: Global},
	{Mnemonic: "STOR.P", Op: OpStorP, Operands: addr, Implicit: RegP, Class: Global},
	{Mnemonic: "STOR.S", Op: OpStorS, Operands: addr, Implicit: RegS, Class: Global},
	{Mnemonic: "INC.G", Op: OpIncG, Operands: addr, Class: Global},
	{Mnemonic: "DEC.G", Op: OpDecG, Operands: addr, Class: Global},
	{Mnemonic: "SETM", Op: OpSetM, Operands: Shape{KindAddress, KindImmediate}, Class: Global},

	// Local storage
	{Mnemonic: "LOAD.L.P", Op: OpLoadLP, Operands: addr, Implicit: RegP, Class: Local},
	{Mnemonic: "LOAD.L.S", Op: OpLoadLS, Operands: addr, Implicit: RegS, Class: Local},
	{Mnemonic: "STOR.L.P", Op: OpStorLP, Operands: addr, Implicit: RegP, Class: Local},
	{Mnemonic: "STOR.L.S", Op: OpStorLS, Operands: addr, Implicit: RegS, Class: Local},
	{Mnemonic: "ADDR.L.P", Op: OpAddrLP, Operands: addr, Implicit: RegP, Class: Local},
	{Mnemonic: "INC.L", Op: OpIncL, Operands: addr, Class: Local},
	{Mnemonic: "DEC.L", Op: OpDecL, Operands: addr, Class: Local},

	// Registers and indirection
	{Mnemonic: "LI.P", Op: OpLIP, Implicit: RegP},
	{Mnemonic: "SI.P", Op: OpSIP, Implicit: RegBoth},
	{Mnemonic: "MOVE.P", Op: OpMoveP, Implicit: RegBoth},
	{Mnemonic: "MOVE.S", Op: OpMoveS, Implicit: RegBoth},
	{Mnemonic: "XCHG", Op: OpXCHG, Implicit: RegBoth},
	{Mnemonic: "PUSH.P", Op: OpPushP, Implicit: RegP},
	{Mnemonic: "PUSH.S", Op: OpPushS, Implicit: RegS},
	{Mnemonic: "POP.P", Op: OpPopP, Implicit: RegP},
	{Mnemonic: "POP.S", Op: OpPopS, Implicit: RegS},
	{Mnemonic: "INC.P", Op: OpIncP, Implicit: RegP},
	{Mnemonic: "DEC.P", Op: OpDecP, Implicit: RegP},

	// Arithmetic and logic
	{Mnemonic: "ADD", Op: OpADD, Implicit: RegBoth},
	{Mnemonic: "SUB", Op: OpSUB, Implicit: RegBoth},
	{Mnemonic: "MUL", Op: OpMUL, Implicit: RegBoth},
	{Mnemonic: "DIV", Op: OpDIV, Implicit: RegBoth},
	{Mnemonic: "MOD", Op: OpMOD, Implicit: RegBoth},
	{Mnemonic: "AND", Op: OpAND, Implicit: RegBoth},
	{Mnemonic: "OR", Op: OpOR, Implicit: RegBoth},
	{Mnemonic: "XOR", Op: OpXOR, Implicit: RegBoth},
	{Mnemonic: "SHL", Op: OpSHL, Implicit: RegBoth},
	{Mnemonic: "SHR", Op: OpSHR, Implicit: RegBoth},
	{Mnemonic: "NEG", Op: OpNEG, Implicit: RegP},
	{Mnemonic: "NOT", Op: OpNOT, Implicit: RegP},

	// Comparison
	{Mnemonic: "EQ", Op: OpEQ, Implicit: RegBoth},
	{Mnemonic: "NEQ", Op: OpNEQ, Implicit: RegBoth},
	{Mnemonic: "LESS", Op: OpLESS, Implicit: RegBoth},
	{Mnemonic: "LEQ", Op: OpLEQ, Implicit: RegBoth},
	{Mnemonic: "GRTR", Op: OpGRTR, Implicit: RegBoth},
	{Mnemonic: "GEQ", Op: OpGEQ, Implicit: RegBoth},

	// Jumps
	{Mnemonic: "JUMP", Op: OpJUMP, Operands: label, Patch: PatchAbsolute},
	{Mnemonic: "JREL", Op: OpJREL, Operands: label, Patch: PatchRelative},
	{Mnemonic: "JZER", Op: OpJZER, Operands: label, Implicit: RegP, Patch: PatchRelative},
	{Mnemonic: "JNZ", Op: OpJNZ, Operands: label, Implicit: RegP, Patch: PatchRelative},
	{Mnemonic: "JEQ", Op: OpJEQ, Operands: label, Implicit: RegBoth, Patch: PatchRelative},
	{Mnemonic: "JNEQ", Op: OpJNEQ, Operands: label, Implicit: RegBoth, Patch: PatchRelative},
}

var (
	byMnemonic = make(map[string]*Instruction, len(table))
	byOpcode   = make(map[Opcode]*Instruction, len(table))
)

func init() {
	for i := range table {
		ins := &table[i]
		if _, dup := byMnemonic[ins.Mnemonic]; dup {
			panic("isa: duplicate mnemonic " + ins.Mnemonic)
		}
		if _, dup := byOpcode[ins.Op]; dup {
			panic(fmt.Sprintf("isa: duplicate opcode 0x%02X", uint16(ins.Op)))
		}
		byMnemonic[ins.Mnemonic] = ins
		byOpcode[ins.Op] = ins
	}
}

// Find returns the table entry for a mnemonic, ignoring case.
func Find(mnemonic string) (*Instruction, bool) {
	ins, ok := byMnemonic[strings.ToUpper(mnemonic)]
	return ins, ok
}

// Lookup returns the table entry for a mnemonic used with the given operand
// shape. It fails with ErrUnknownMnemonicOrShape when the mnemonic is unknown
// or the operand count is wrong, and with ErrInvalidOperandKind when a
// supplied kind does not fit its slot.
func Lookup(mnemonic string, shape Shape) (*Instruction, error) {
	ins, ok := Find(mnemonic)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMnemonicOrShape, mnemonic)
	}
	if err := ins.Check(shape); err != nil {
		return nil, err
	}
	return ins, nil
}

// ByOpcode returns the table entry for an opcode.
func ByOpcode(op Opcode) (*Instruction, bool) {
	ins, ok := byOpcode[op]
	return ins, ok
}

// All returns every table entry ordered by opcode.
func All() []*Instruction {
	out := make([]*Instruction, 0, len(table))
	for i := range table {
		out = append(out, &table[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op < out[j].Op })
	return out
}

// Count returns the number of table entries.
func Count() int {
	return len(table)
}
