// Package emit builds executable instruction streams for the cell machine
// without going through a compiler.
//
// A Context owns a target Region, a write cursor and a table of labels.
// Emit is the atomic primitive: it resolves the operands, checks that the
// encoded instruction fits in the remaining capacity and only then writes
// the cells and advances the cursor. A failed Emit leaves the context
// exactly as it was.
//
// # Modes
//
// A static context writes into a segment that is appended to a program's
// instruction stream when the context is finalized. It can resolve named
// symbols through a SymbolTable, read their compile-time contents with
// SymbolValue, and auto-select ".U" instruction variants by storage class.
//
// A dynamic context writes into memory that is already loaded and may be
// executed later. The region must attest that it is writable and not being
// executed when the context is created. Until Finalize succeeds the region
// is not safe to enter; only the Routine returned by Finalize exposes an
// entry point.
//
// # Labels
//
// Labels may be referenced before they are defined. The reference writes a
// placeholder and records the operand cell together with the instruction's
// patch rule (absolute offset or relative displacement). DefineLabel patches
// every recorded site immediately; Finalize fails with UnresolvedLabelError
// if any referenced label was never defined.
package emit
