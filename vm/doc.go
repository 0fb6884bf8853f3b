// Package vm implements the cell machine: a flat memory of cells with named
// regions, leases that let an emit.Context rewrite a region in place, and an
// interpreter that runs what was emitted.
//
// The machine has two registers, P (primary) and S (secondary), and a stack
// at the top of memory growing down. A call pushes its arguments in reverse
// order, then the argument count. CALL itself pushes the caller's code
// base, the return address and the frame pointer, and points FP at the
// saved frame pointer. PROC only marks a routine entry. Inside a routine
// the frame looks like
//
//	FP-n  local n
//	FP+0  saved FP
//	FP+1  return address
//	FP+2  caller code base
//	FP+3  argument count
//	FP+4  argument 0
//
// RET unwinds the frame and drops the arguments. The result is left in P.
//
// Absolute label operands (JUMP, CALL) are offsets from the running
// routine's code base; relative operands are displacements from the operand
// cell.
package vm
