package vm

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/cellemit/emit"
	"github.com/chazu/cellemit/isa"
)

// Lease grants one emission context exclusive write access to a region of
// loaded memory. While the lease is open the machine refuses to enter the
// region. Sealing the lease publishes the new sequence; poisoning it makes
// the region unenterable until it is leased and sealed again.
type Lease struct {
	id   uuid.UUID
	mem  *Memory
	sp    *span
	bound   bool // attested by an emission context
	written bool // Store succeeded at least once
	done    bool
}

var _ emit.Region = (*Lease)(nil)

// Lease opens a lease on the named region.
func (m *Memory) Lease(name string) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegion, name)
	}
	return m.lease(sp)
}

// LeaseAt opens a lease on capacity cells at base. The range must either be
// exactly a registered region or lie in allocated memory outside every
// region, in which case it is registered as an unnamed region.
func (m *Memory) LeaseAt(base isa.Addr, capacity int) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if capacity <= 0 || base < 0 || base.Add(capacity) > m.next {
		return nil, fmt.Errorf("%w: %d cell(s) at %s is not allocated memory", ErrOutOfBounds, capacity, base)
	}
	sp := m.find(base)
	if sp == nil {
		var err error
		if sp, err = m.register("", base, capacity); err != nil {
			return nil, err
		}
	} else if sp.base != base || sp.capacity != capacity {
		return nil, fmt.Errorf("%w: %s", ErrRegionOverlap, sp.label())
	}
	return m.lease(sp)
}

// lease opens a lease on sp. Callers hold m.mu.
func (m *Memory) lease(sp *span) (*Lease, error) {
	switch {
	case sp.lease != nil:
		return nil, fmt.Errorf("%w: %s is already leased", ErrRegionBusy, sp.label())
	case sp.running > 0:
		return nil, fmt.Errorf("%w: %s is executing", ErrRegionBusy, sp.label())
	}
	l := &Lease{id: uuid.New(), mem: m, sp: sp}
	sp.lease = l
	log.Debugf("lease %s: opened on %s", l.id, sp.label())
	return l, nil
}

// ID returns the lease id.
func (l *Lease) ID() uuid.UUID {
	return l.id
}

// Name returns the region name, empty for unnamed regions.
func (l *Lease) Name() string {
	return l.sp.name
}

// Base implements emit.Region.
func (l *Lease) Base() isa.Addr {
	return l.sp.base
}

// Capacity implements emit.Region.
func (l *Lease) Capacity() int {
	return l.sp.capacity
}

// Load implements emit.Region.
func (l *Lease) Load(offset int) isa.Cell {
	l.mem.mu.Lock()
	defer l.mem.mu.Unlock()
	return l.mem.cells[l.sp.base.Add(offset)]
}

// Store implements emit.Region. Writes fail once the lease is sealed,
// poisoned or released.
func (l *Lease) Store(offset int, v isa.Cell) error {
	l.mem.mu.Lock()
	defer l.mem.mu.Unlock()
	if l.done || l.sp.lease != l {
		return fmt.Errorf("%w: %s", ErrLeaseReleased, l.sp.label())
	}
	l.mem.cells[l.sp.base.Add(offset)] = v
	l.written = true
	return nil
}

// Attest implements emit.Region. It fails once the lease is released, if
// the region is executing, or if another context already attested it.
func (l *Lease) Attest() error {
	l.mem.mu.Lock()
	defer l.mem.mu.Unlock()
	switch {
	case l.done || l.sp.lease != l:
		return fmt.Errorf("%w: %s", ErrLeaseReleased, l.sp.label())
	case l.sp.running > 0:
		return fmt.Errorf("%w: %s is executing", ErrRegionBusy, l.sp.label())
	case l.bound:
		return fmt.Errorf("%w: lease on %s is bound to another context", ErrRegionBusy, l.sp.label())
	}
	l.bound = true
	return nil
}

// Seal implements emit.Region. The region becomes enterable again.
func (l *Lease) Seal(length int) error {
	l.mem.mu.Lock()
	defer l.mem.mu.Unlock()
	if l.done {
		return fmt.Errorf("%w: %s", ErrLeaseReleased, l.sp.label())
	}
	l.done = true
	l.sp.lease = nil
	l.sp.length = length
	l.sp.poisoned = false
	log.Debugf("lease %s: sealed %d cell(s) on %s", l.id, length, l.sp.label())
	return nil
}

// Poison implements emit.Region. The region stays unenterable.
func (l *Lease) Poison() error {
	l.mem.mu.Lock()
	defer l.mem.mu.Unlock()
	if l.done {
		return fmt.Errorf("%w: %s", ErrLeaseReleased, l.sp.label())
	}
	l.done = true
	l.sp.lease = nil
	l.sp.poisoned = true
	log.Warningf("lease %s: poisoned %s", l.id, l.sp.label())
	return nil
}

// Release gives up a lease. A region nothing was written to keeps its
// previous cells and state; one holding a partial rewrite is poisoned.
// Release is a no-op on a lease that was already sealed or poisoned.
func (l *Lease) Release() {
	l.mem.mu.Lock()
	defer l.mem.mu.Unlock()
	if l.done {
		return
	}
	l.done = true
	l.sp.lease = nil
	if l.written {
		l.sp.poisoned = true
		log.Warningf("lease %s: released after writes, poisoned %s", l.id, l.sp.label())
	}
}
