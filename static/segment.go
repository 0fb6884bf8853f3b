package static

import (
	"fmt"

	"github.com/chazu/cellemit/emit"
	"github.com/chazu/cellemit/isa"
)

// Segment is the region behind a static block. It is a detached buffer
// addressed at the program position the block was opened at; sealing it
// appends the finished stream to the program's code at that position.
type Segment struct {
	*emit.Buffer
	prog  *Program
	entry isa.Addr // entry of the enclosing routine
}

var _ emit.Region = (*Segment)(nil)
var _ emit.Originer = (*Segment)(nil)

func newSegment(prog *Program, entry isa.Addr, capacity int) *Segment {
	return &Segment{
		Buffer: emit.NewBuffer(prog.Here(), capacity),
		prog:   prog,
		entry:  entry,
	}
}

// Origin implements emit.Originer. Absolute label operands are offsets from
// the enclosing routine's entry.
func (s *Segment) Origin() int {
	return int(s.Base() - s.entry)
}

// Seal implements emit.Region. It fails if anything was appended to the
// program since the segment was opened.
func (s *Segment) Seal(length int) error {
	if here := s.prog.Here(); here != s.Base() {
		return fmt.Errorf("%w: segment at %s, program at %s", ErrSiteMoved, s.Base(), here)
	}
	if err := s.Buffer.Seal(length); err != nil {
		return err
	}
	s.prog.Append(s.Cells()...)
	return nil
}
