package isa

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode is the numeric identifier of an instruction. It is encoded in the
// first cell of every instruction.
type Opcode uint16

// Control
const (
	OpNOP  Opcode = 0x00 // no operation
	OpHALT Opcode = 0x01 // stop the machine, result in P
	OpTRAP Opcode = 0x02 // fault; fills discarded regions
)

// Frames and calls
const (
	OpPROC  Opcode = 0x10 // routine entry marker
	OpRET   Opcode = 0x11 // leave frame, return P to caller
	OpSTACK Opcode = 0x12 // reserve n cells on the stack (imm)
	OpCALL  Opcode = 0x13 // call label in the current stream (absolute)
	OpCALLA Opcode = 0x14 // call routine at a memory address
)

// Constants
const (
	OpConstP Opcode = 0x20 // P = imm
	OpConstS Opcode = 0x21 // S = imm
	OpZeroP  Opcode = 0x22 // P = 0
	OpZeroS  Opcode = 0x23 // S = 0
	OpPushC  Opcode = 0x24 // push imm
)

// Global (fixed address) storage
const (
	OpLoadP Opcode = 0x30 // P = mem[addr]
	OpLoadS Opcode = 0x31 // S = mem[addr]
	OpStorP Opcode = 0x32 // mem[addr] = P
	OpStorS Opcode = 0x33 // mem[addr] = S
	OpIncG  Opcode = 0x34 // mem[addr]++
	OpDecG  Opcode = 0x35 // mem[addr]--
	OpSetM  Opcode = 0x36 // mem[addr] = imm
)

// Local (frame relative) storage
const (
	OpLoadLP Opcode = 0x40 // P = mem[FP+off]
	OpLoadLS Opcode = 0x41 // S = mem[FP+off]
	OpStorLP Opcode = 0x42 // mem[FP+off] = P
	OpStorLS Opcode = 0x43 // mem[FP+off] = S
	OpAddrLP Opcode = 0x44 // P = FP+off
	OpIncL   Opcode = 0x45 // mem[FP+off]++
	OpDecL   Opcode = 0x46 // mem[FP+off]--
)

// Registers and indirection
const (
	OpLIP   Opcode = 0x50 // P = mem[P]
	OpSIP   Opcode = 0x51 // mem[S] = P
	OpMoveP Opcode = 0x52 // P = S
	OpMoveS Opcode = 0x53 // S = P
	OpXCHG  Opcode = 0x54 // swap P and S
	OpPushP Opcode = 0x55 // push P
	OpPushS Opcode = 0x56 // push S
	OpPopP  Opcode = 0x57 // pop into P
	OpPopS  Opcode = 0x58 // pop into S
	OpIncP  Opcode = 0x59 // P++
	OpDecP  Opcode = 0x5A // P--
)

// Arithmetic and logic: P = P op S
const (
	OpADD Opcode = 0x60
	OpSUB Opcode = 0x61
	OpMUL Opcode = 0x62
	OpDIV Opcode = 0x63
	OpMOD Opcode = 0x64
	OpAND Opcode = 0x65
	OpOR  Opcode = 0x66
	OpXOR Opcode = 0x67
	OpSHL Opcode = 0x68
	OpSHR Opcode = 0x69 // arithmetic shift
	OpNEG Opcode = 0x6A // P = -P
	OpNOT Opcode = 0x6B // P = ^P
)

// Comparison: P = P cmp S ? 1 : 0
const (
	OpEQ   Opcode = 0x70
	OpNEQ  Opcode = 0x71
	OpLESS Opcode = 0x72
	OpLEQ  Opcode = 0x73
	OpGRTR Opcode = 0x74
	OpGEQ  Opcode = 0x75
)

// Jumps
const (
	OpJUMP Opcode = 0x80 // jump to label (absolute within the stream)
	OpJREL Opcode = 0x81 // jump to label (relative displacement)
	OpJZER Opcode = 0x82 // jump if P == 0 (relative)
	OpJNZ  Opcode = 0x83 // jump if P != 0 (relative)
	OpJEQ  Opcode = 0x84 // jump if P == S (relative)
	OpJNEQ Opcode = 0x85 // jump if P != S (relative)
)

// Info returns the table entry for an opcode.
func (op Opcode) Info() (*Instruction, bool) {
	ins, ok := byOpcode[op]
	return ins, ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	if ins, ok := byOpcode[op]; ok {
		return ins.Mnemonic
	}
	return fmt.Sprintf("UNKNOWN_%02X", uint16(op))
}

// Width returns the encoded width of the instruction in cells, or 1 for an
// unknown opcode.
func (op Opcode) Width() int {
	if ins, ok := byOpcode[op]; ok {
		return ins.Width()
	}
	return 1
}

// IsJump reports whether the opcode transfers control to a label.
func (op Opcode) IsJump() bool {
	return op >= OpJUMP && op <= OpJNEQ || op == OpCALL
}
