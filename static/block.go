package static

import (
	"errors"
	"fmt"

	"github.com/chazu/cellemit/emit"
	"github.com/chazu/cellemit/isa"
)

// DefaultBlockCapacity is the segment size used when OpenBlock is given a
// non-positive capacity.
const DefaultBlockCapacity = 4096

var (
	ErrBlockOpen    = errors.New("static block already open")
	ErrUnbalancedIf = errors.New("unbalanced conditional")
)

// cond is one level of conditional compilation.
type cond struct {
	active  bool // the current branch is being emitted
	taken   bool // some branch at this level has been emitted
	outer   bool // the enclosing level is active
	sawElse bool
}

// Block is a static emission site inside a routine. It writes through a
// static emit.Context into a Segment and honors conditional compilation:
// instructions and labels in inactive branches are not emitted at all.
type Block struct {
	prog    *Program
	ctx     *emit.Context
	seg     *Segment
	conds   []cond
	skipped int
}

// OpenBlock opens a static block at the current program position. Only one
// block may be open at a time and it must be inside a routine.
func (p *Program) OpenBlock(capacity int) (*Block, error) {
	if p.current == nil {
		return nil, ErrNoRoutine
	}
	if p.open != nil {
		return nil, ErrBlockOpen
	}
	if capacity <= 0 {
		capacity = DefaultBlockCapacity
	}
	seg := newSegment(p, p.current.Base, capacity)
	ctx, err := emit.NewStatic(seg, p.scope)
	if err != nil {
		return nil, err
	}
	b := &Block{prog: p, ctx: ctx, seg: seg}
	p.open = b
	return b, nil
}

// Context returns the underlying emission context.
func (b *Block) Context() *emit.Context {
	return b.ctx
}

// Active reports whether emission is currently enabled.
func (b *Block) Active() bool {
	if len(b.conds) == 0 {
		return true
	}
	return b.conds[len(b.conds)-1].active
}

// Skipped returns the number of instructions dropped in inactive branches.
func (b *Block) Skipped() int {
	return b.skipped
}

// Emit emits one instruction, or does nothing in an inactive branch.
func (b *Block) Emit(mnemonic string, ops ...emit.Operand) error {
	if !b.Active() {
		b.skipped++
		return nil
	}
	return b.ctx.Emit(mnemonic, ops...)
}

// EmitInstruction is Emit for an already looked-up instruction.
func (b *Block) EmitInstruction(ins *isa.Instruction, ops ...emit.Operand) error {
	if !b.Active() {
		b.skipped++
		return nil
	}
	return b.ctx.EmitInstruction(ins, ops...)
}

// Label defines a label, or does nothing in an inactive branch.
func (b *Block) Label(name string) error {
	if !b.Active() {
		return nil
	}
	return b.ctx.DefineLabel(name)
}

// If opens a conditional level.
func (b *Block) If(c bool) {
	outer := b.Active()
	b.conds = append(b.conds, cond{active: outer && c, taken: c, outer: outer})
}

// ElseIf switches to a new branch of the innermost level.
func (b *Block) ElseIf(c bool) error {
	top, err := b.top("elseif")
	if err != nil {
		return err
	}
	if top.sawElse {
		return fmt.Errorf("%w: elseif after else", ErrUnbalancedIf)
	}
	top.active = top.outer && !top.taken && c
	top.taken = top.taken || c
	return nil
}

// Else switches to the final branch of the innermost level.
func (b *Block) Else() error {
	top, err := b.top("else")
	if err != nil {
		return err
	}
	if top.sawElse {
		return fmt.Errorf("%w: duplicate else", ErrUnbalancedIf)
	}
	top.sawElse = true
	top.active = top.outer && !top.taken
	top.taken = true
	return nil
}

// EndIf closes the innermost level.
func (b *Block) EndIf() error {
	if _, err := b.top("endif"); err != nil {
		return err
	}
	b.conds = b.conds[:len(b.conds)-1]
	return nil
}

// Depth returns the conditional nesting depth.
func (b *Block) Depth() int {
	return len(b.conds)
}

func (b *Block) top(what string) (*cond, error) {
	if len(b.conds) == 0 {
		return nil, fmt.Errorf("%w: %s without if", ErrUnbalancedIf, what)
	}
	return &b.conds[len(b.conds)-1], nil
}

// Close finalizes the block and appends its stream to the program.
func (b *Block) Close() (*emit.Routine, error) {
	if len(b.conds) > 0 {
		return nil, fmt.Errorf("%w: %d level(s) still open", ErrUnbalancedIf, len(b.conds))
	}
	r, err := b.ctx.Finalize()
	if err != nil {
		return nil, err
	}
	b.prog.open = nil
	if b.skipped > 0 {
		log.Debugf("block at %s: %d instruction(s) skipped", r.EntryPoint(), b.skipped)
	}
	return r, nil
}

// Discard abandons the block. Nothing is appended to the program.
func (b *Block) Discard() error {
	if b.prog.open == b {
		b.prog.open = nil
	}
	return b.ctx.Discard()
}
