package vm

import (
	"fmt"

	"github.com/chazu/cellemit/isa"
)

// DefaultStepLimit bounds a single Invoke unless WithStepLimit overrides it.
const DefaultStepLimit = 1_000_000

// returnSentinel is the return address Invoke pushes; returning to it ends
// the invocation.
const returnSentinel isa.Addr = -1

// Entry is anything that can be invoked. Finalized routines, reserved
// regions and linked image routines all qualify; an open emission context
// does not.
type Entry interface {
	EntryPoint() isa.Addr
}

// Option configures a Machine.
type Option func(*Machine)

// WithStepLimit bounds the number of instructions one Invoke may execute.
// A limit <= 0 disables the bound.
func WithStepLimit(n int) Option {
	return func(m *Machine) {
		m.stepLimit = n
	}
}

// Machine executes code in a Memory. A Machine is not safe for concurrent
// use; several machines may share one Memory.
type Machine struct {
	mem *Memory

	P, S isa.Cell

	sp, fp isa.Addr
	pc     isa.Addr
	cbase  isa.Addr // code base of the running routine

	steps     int
	stepLimit int
	active    []*span // regions entered by the live activations
}

// NewMachine creates a machine over mem.
func NewMachine(mem *Memory, opts ...Option) *Machine {
	m := &Machine{mem: mem, stepLimit: DefaultStepLimit}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Memory returns the machine's memory.
func (m *Machine) Memory() *Memory {
	return m.mem
}

// StepLimit returns the per-Invoke instruction bound, <= 0 if unbounded.
func (m *Machine) StepLimit() int {
	return m.stepLimit
}

// Steps returns the number of instructions executed by the last Invoke.
func (m *Machine) Steps() int {
	return m.steps
}

// Invoke calls the routine at entry with args and returns P when it
// returns to the caller or halts.
func (m *Machine) Invoke(entry Entry, args ...isa.Cell) (isa.Cell, error) {
	if entry == nil {
		return 0, fmt.Errorf("%w: nil entry", ErrUnknownRegion)
	}
	top := isa.Addr(m.mem.Size())
	m.sp, m.fp = top, top
	m.cbase = 0
	m.steps = 0
	m.active = m.active[:0]
	defer m.leaveAll()

	for i := len(args) - 1; i >= 0; i-- {
		if err := m.push(args[i]); err != nil {
			return 0, err
		}
	}
	if err := m.push(isa.Cell(len(args))); err != nil {
		return 0, err
	}
	if err := m.call(entry.EntryPoint(), returnSentinel); err != nil {
		return 0, err
	}
	return m.run()
}

// Call invokes the named region.
func (m *Machine) Call(name string, args ...isa.Cell) (isa.Cell, error) {
	sp, ok := m.mem.Region(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRegion, name)
	}
	return m.Invoke(sp, args...)
}

// call builds a frame (caller code base, ret, saved FP) and enters target.
func (m *Machine) call(target, ret isa.Addr) error {
	sp, err := m.mem.enter(target)
	if err != nil {
		return err
	}
	for _, v := range []isa.Cell{m.cbase.Cell(), ret.Cell(), m.fp.Cell()} {
		if err := m.push(v); err != nil {
			m.mem.leave(sp)
			return err
		}
	}
	m.fp = m.sp
	m.active = append(m.active, sp)
	m.pc = target
	m.cbase = target
	if sp != nil {
		m.cbase = sp.base
	}
	return nil
}

func (m *Machine) leaveAll() {
	for i := len(m.active) - 1; i >= 0; i-- {
		m.mem.leave(m.active[i])
	}
	m.active = m.active[:0]
}

func (m *Machine) leaveOne() {
	if n := len(m.active); n > 0 {
		m.mem.leave(m.active[n-1])
		m.active = m.active[:n-1]
	}
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

func (m *Machine) push(v isa.Cell) error {
	if m.sp-1 < m.mem.StackBase() {
		return ErrStackOverflow
	}
	m.sp--
	return m.mem.Store(m.sp, v)
}

func (m *Machine) pop() (isa.Cell, error) {
	if int(m.sp) >= m.mem.Size() {
		return 0, ErrStackUnderflow
	}
	v, err := m.mem.Load(m.sp)
	if err != nil {
		return 0, err
	}
	m.sp++
	return v, nil
}
