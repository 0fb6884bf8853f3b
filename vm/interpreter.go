package vm

import (
	"fmt"

	"github.com/chazu/cellemit/isa"
)

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

func (m *Machine) run() (isa.Cell, error) {
	for {
		at := m.pc
		if m.stepLimit > 0 && m.steps >= m.stepLimit {
			return 0, &Fault{PC: at, Err: fmt.Errorf("%w: %d", ErrStepLimit, m.stepLimit)}
		}
		m.steps++

		word, err := m.mem.Load(at)
		if err != nil {
			return 0, &Fault{PC: at, Err: err}
		}
		if word < 0 || word > 0xFFFF {
			return 0, &Fault{PC: at, Err: fmt.Errorf("%w: invalid opcode cell %d", ErrTrap, word)}
		}
		op := isa.Opcode(word)
		ins, ok := isa.ByOpcode(op)
		if !ok {
			return 0, &Fault{PC: at, Op: op, Err: fmt.Errorf("%w: invalid opcode", ErrTrap)}
		}

		var a, b isa.Cell
		if n := len(ins.Operands); n > 0 {
			if a, err = m.mem.Load(at + 1); err != nil {
				return 0, &Fault{PC: at, Op: op, Err: err}
			}
			if n > 1 {
				if b, err = m.mem.Load(at + 2); err != nil {
					return 0, &Fault{PC: at, Op: op, Err: err}
				}
			}
		}
		m.pc = at.Add(ins.Width())

		done, err := m.exec(op, at, a, b)
		if err != nil {
			return 0, &Fault{PC: at, Op: op, Err: err}
		}
		if done {
			return m.P, nil
		}
	}
}

// exec executes one decoded instruction at address at with operands a and
// b. It reports true when the invocation is over.
func (m *Machine) exec(op isa.Opcode, at isa.Addr, a, b isa.Cell) (bool, error) {
	local := func() isa.Addr { return m.fp + isa.Addr(a) }
	site := at + 1 // relative displacements count from the operand cell

	switch op {
	case isa.OpNOP:
	case isa.OpHALT:
		return true, nil
	case isa.OpTRAP:
		return false, ErrTrap

	// Frames and calls
	case isa.OpPROC:
		// Entry marker; CALL has already built the frame.
	case isa.OpRET:
		return m.ret()
	case isa.OpSTACK:
		sp := m.sp - isa.Addr(a)
		if sp < m.mem.StackBase() {
			return false, ErrStackOverflow
		}
		if int(sp) > m.mem.Size() {
			return false, ErrStackUnderflow
		}
		m.sp = sp
	case isa.OpCALL:
		return false, m.call(m.cbase+isa.Addr(a), m.pc)
	case isa.OpCALLA:
		return false, m.call(isa.Addr(a), m.pc)

	// Constants
	case isa.OpConstP:
		m.P = a
	case isa.OpConstS:
		m.S = a
	case isa.OpZeroP:
		m.P = 0
	case isa.OpZeroS:
		m.S = 0
	case isa.OpPushC:
		return false, m.push(a)

	// Global storage
	case isa.OpLoadP:
		return false, m.load(&m.P, isa.Addr(a))
	case isa.OpLoadS:
		return false, m.load(&m.S, isa.Addr(a))
	case isa.OpStorP:
		return false, m.mem.Store(isa.Addr(a), m.P)
	case isa.OpStorS:
		return false, m.mem.Store(isa.Addr(a), m.S)
	case isa.OpIncG:
		return false, m.add(isa.Addr(a), 1)
	case isa.OpDecG:
		return false, m.add(isa.Addr(a), -1)
	case isa.OpSetM:
		return false, m.mem.Store(isa.Addr(a), b)

	// Local storage
	case isa.OpLoadLP:
		return false, m.load(&m.P, local())
	case isa.OpLoadLS:
		return false, m.load(&m.S, local())
	case isa.OpStorLP:
		return false, m.mem.Store(local(), m.P)
	case isa.OpStorLS:
		return false, m.mem.Store(local(), m.S)
	case isa.OpAddrLP:
		m.P = local().Cell()
	case isa.OpIncL:
		return false, m.add(local(), 1)
	case isa.OpDecL:
		return false, m.add(local(), -1)

	// Registers and indirection
	case isa.OpLIP:
		return false, m.load(&m.P, isa.Addr(m.P))
	case isa.OpSIP:
		return false, m.mem.Store(isa.Addr(m.S), m.P)
	case isa.OpMoveP:
		m.P = m.S
	case isa.OpMoveS:
		m.S = m.P
	case isa.OpXCHG:
		m.P, m.S = m.S, m.P
	case isa.OpPushP:
		return false, m.push(m.P)
	case isa.OpPushS:
		return false, m.push(m.S)
	case isa.OpPopP:
		return false, m.popInto(&m.P)
	case isa.OpPopS:
		return false, m.popInto(&m.S)
	case isa.OpIncP:
		m.P++
	case isa.OpDecP:
		m.P--

	// Arithmetic and logic
	case isa.OpADD:
		m.P += m.S
	case isa.OpSUB:
		m.P -= m.S
	case isa.OpMUL:
		m.P *= m.S
	case isa.OpDIV:
		if m.S == 0 {
			return false, ErrDivideByZero
		}
		m.P /= m.S
	case isa.OpMOD:
		if m.S == 0 {
			return false, ErrDivideByZero
		}
		m.P %= m.S
	case isa.OpAND:
		m.P &= m.S
	case isa.OpOR:
		m.P |= m.S
	case isa.OpXOR:
		m.P ^= m.S
	case isa.OpSHL:
		m.P <<= uint64(m.S) & (isa.CellBits - 1)
	case isa.OpSHR:
		m.P >>= uint64(m.S) & (isa.CellBits - 1)
	case isa.OpNEG:
		m.P = -m.P
	case isa.OpNOT:
		m.P = ^m.P

	// Comparison
	case isa.OpEQ:
		m.P = isa.Bool(m.P == m.S)
	case isa.OpNEQ:
		m.P = isa.Bool(m.P != m.S)
	case isa.OpLESS:
		m.P = isa.Bool(m.P < m.S)
	case isa.OpLEQ:
		m.P = isa.Bool(m.P <= m.S)
	case isa.OpGRTR:
		m.P = isa.Bool(m.P > m.S)
	case isa.OpGEQ:
		m.P = isa.Bool(m.P >= m.S)

	// Jumps
	case isa.OpJUMP:
		m.pc = m.cbase + isa.Addr(a)
	case isa.OpJREL:
		m.pc = site + isa.Addr(a)
	case isa.OpJZER:
		if m.P == 0 {
			m.pc = site + isa.Addr(a)
		}
	case isa.OpJNZ:
		if m.P != 0 {
			m.pc = site + isa.Addr(a)
		}
	case isa.OpJEQ:
		if m.P == m.S {
			m.pc = site + isa.Addr(a)
		}
	case isa.OpJNEQ:
		if m.P != m.S {
			m.pc = site + isa.Addr(a)
		}

	default:
		return false, fmt.Errorf("%w: no semantics for %s", ErrTrap, op)
	}
	return false, nil
}

// ret unwinds the frame built by CALL.
func (m *Machine) ret() (bool, error) {
	m.sp = m.fp
	var fp, pc, base, argc isa.Cell
	for _, dst := range []*isa.Cell{&fp, &pc, &base, &argc} {
		if err := m.popInto(dst); err != nil {
			return false, err
		}
	}
	if argc < 0 || int(m.sp)+int(argc) > m.mem.Size() {
		return false, fmt.Errorf("%w: %d argument(s)", ErrStackUnderflow, argc)
	}
	m.sp += isa.Addr(argc)
	m.fp = isa.Addr(fp)
	m.pc = isa.Addr(pc)
	m.cbase = isa.Addr(base)
	m.leaveOne()
	return m.pc == returnSentinel, nil
}

func (m *Machine) load(dst *isa.Cell, a isa.Addr) error {
	v, err := m.mem.Load(a)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (m *Machine) add(a isa.Addr, delta isa.Cell) error {
	v, err := m.mem.Load(a)
	if err != nil {
		return err
	}
	return m.mem.Store(a, v+delta)
}

func (m *Machine) popInto(dst *isa.Cell) error {
	v, err := m.pop()
	if err != nil {
		return err
	}
	*dst = v
	return nil
}
