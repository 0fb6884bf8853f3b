package vm

import (
	"fmt"

	"github.com/chazu/cellemit/isa"
	"github.com/chazu/cellemit/static"
)

// LoadImage copies a linked program into memory at its base address,
// defines its globals and registers each routine as a named region. The
// image must lie in unallocated memory below the stack. Every check runs
// before memory changes, so a failed load leaves memory as it was.
func (m *Memory) LoadImage(img *static.Image) error {
	if img.Version != static.ImageVersion {
		return fmt.Errorf("image version %d, want %d", img.Version, static.ImageVersion)
	}
	if err := img.CheckLayout(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if img.Base < m.next || img.End() > m.limit {
		return fmt.Errorf("%w: image %s..%s, free %s..%s", ErrOutOfMemory, img.Base, img.End(), m.next, m.limit)
	}
	for _, g := range img.Globals {
		if _, ok := m.globals[g.Name]; ok {
			return fmt.Errorf("%w: global %s", ErrDuplicateName, g.Name)
		}
	}
	for _, r := range img.Routines {
		if _, ok := m.byName[r.Name]; ok {
			return fmt.Errorf("%w: region %s", ErrDuplicateName, r.Name)
		}
	}

	copy(m.cells[img.Base:], img.Cells)
	m.next = img.End()
	for _, g := range img.Globals {
		m.bindGlobal(g.Name, g.Addr)
	}
	for _, r := range img.Routines {
		sp, err := m.register(r.Name, r.Base, r.Capacity)
		if err != nil {
			return err
		}
		sp.length = r.Capacity
	}
	log.Infof("loaded image: %d cell(s) at %s, %d routine(s), %d global(s)",
		len(img.Cells), img.Base, len(img.Routines), len(img.Globals))
	return nil
}

// Dump returns the cells of the named region, for disassembly.
func (m *Memory) Dump(name string) ([]isa.Cell, isa.Addr, error) {
	sp, ok := m.Region(name)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownRegion, name)
	}
	cells, err := m.Slice(sp.Base, sp.Capacity)
	return cells, sp.Base, err
}
