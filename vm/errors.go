package vm

import (
	"errors"
	"fmt"

	"github.com/chazu/cellemit/isa"
)

var (
	ErrOutOfBounds    = errors.New("address out of bounds")
	ErrOutOfMemory    = errors.New("out of memory")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrStackUnderflow = errors.New("stack underflow")
	ErrTrap           = errors.New("trap")
	ErrDivideByZero   = errors.New("division by zero")
	ErrStepLimit      = errors.New("step limit exceeded")

	ErrUnknownRegion  = errors.New("unknown region")
	ErrUnknownGlobal  = errors.New("unknown global")
	ErrDuplicateName  = errors.New("name already defined")
	ErrRegionOverlap  = errors.New("region overlaps another region")
	ErrRegionTooSmall = errors.New("region too small")
	ErrRegionBusy     = errors.New("region busy")
	ErrRegionPoisoned = errors.New("region poisoned")
	ErrLeaseReleased  = errors.New("lease already released")
)

// Fault is a runtime error raised by an instruction.
type Fault struct {
	PC  isa.Addr
	Op  isa.Opcode
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault at %s (%s): %v", f.PC, f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}
