package emit

import (
	"sort"

	"github.com/google/uuid"

	"github.com/chazu/cellemit/isa"
)

// Routine is a finalized instruction sequence. It is only produced by a
// successful Finalize, so holding one means the region is complete and
// consistent and may be entered at offset 0.
type Routine struct {
	id     uuid.UUID
	base   isa.Addr
	length int
	mode   Mode
	labels map[string]int
}

// EntryPoint returns the address execution starts at.
func (r *Routine) EntryPoint() isa.Addr {
	return r.base
}

// ID returns the id of the context that produced the routine.
func (r *Routine) ID() uuid.UUID {
	return r.id
}

// Len returns the number of cells in the sequence.
func (r *Routine) Len() int {
	return r.length
}

// Mode returns the mode of the producing context.
func (r *Routine) Mode() Mode {
	return r.mode
}

// Label returns the absolute address of a label defined in the routine.
func (r *Routine) Label(name string) (isa.Addr, bool) {
	off, ok := r.labels[name]
	if !ok {
		return 0, false
	}
	return r.base.Add(off), true
}

// Labels returns the names of every label defined in the routine, sorted.
func (r *Routine) Labels() []string {
	names := make([]string, 0, len(r.labels))
	for name := range r.labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
