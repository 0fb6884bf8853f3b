package compiler

import (
	"fmt"

	"github.com/chazu/cellemit/emit"
	"github.com/chazu/cellemit/isa"
	"github.com/chazu/cellemit/static"
)

// Options configure Assemble.
type Options struct {
	// DataBase is the address of the first data cell; code follows data.
	DataBase isa.Addr
	// DataCells sizes the data segment. Zero means one cell per .global,
	// unless the source has a .data directive.
	DataCells int
	// BlockCapacity bounds the size of one routine body.
	BlockCapacity int
}

// assembler drives a static.Program from parsed statements.
type assembler struct {
	opts    Options
	prog    *static.Program
	block   *static.Block
	routine string
	reserve int
}

// Assemble translates source into a linked image.
//
// Source lines are "label: MNEMONIC op, op" with every part optional.
// Directives:
//
//	.data N                 size the data segment
//	.global name [init]     declare a global cell
//	.routine name [reserve] start a routine, optionally padded to reserve cells
//	.local name offset      bind a frame offset inside the current routine
//	.end                    end the routine
//	.if cond / .elseif cond / .else / .endif
//
// A condition is an integer literal or a global's initial value, optionally
// negated with '!'. Instructions in branches not taken are not emitted.
func Assemble(src string, opts Options) (*static.Image, error) {
	stmts, err := Parse(src)
	if err != nil {
		return nil, err
	}
	cells, err := dataCells(stmts, opts.DataCells)
	if err != nil {
		return nil, err
	}
	a := &assembler{opts: opts, prog: static.NewProgram(opts.DataBase, cells)}
	for _, st := range stmts {
		if err := a.statement(st); err != nil {
			return nil, err
		}
	}
	if a.block != nil {
		return nil, fmt.Errorf("%w: routine %s has no .end", ErrMisplaced, a.routine)
	}
	img, err := a.prog.Link()
	if err != nil {
		return nil, err
	}
	log.Infof("assembled %d routine(s), %d global(s), %d cell(s)", len(img.Routines), len(img.Globals), len(img.Cells))
	return img, nil
}

// dataCells sizes the data segment: a .data directive wins, then the
// explicit option, then the number of globals.
func dataCells(stmts []Statement, fallback int) (int, error) {
	globals, size, seenCode := 0, -1, false
	for _, st := range stmts {
		switch st.Op {
		case ".data":
			if seenCode || globals > 0 {
				return 0, errorAt(st.Pos, fmt.Errorf("%w: .data after globals or code", ErrMisplaced))
			}
			if len(st.Args) != 1 {
				return 0, errorAt(st.Pos, fmt.Errorf("%w: .data takes one count", ErrBadArguments))
			}
			n, err := emit.ParseCell(st.Args[0].Text)
			if err != nil || n < 0 {
				return 0, errorAt(st.Pos, fmt.Errorf("%w: .data %s", ErrBadArguments, st.Args[0].Text))
			}
			size = int(n)
		case ".global":
			globals++
		case ".routine":
			seenCode = true
		}
	}
	switch {
	case size >= 0:
		return size, nil
	case fallback > 0:
		return fallback, nil
	}
	return globals, nil
}

func (a *assembler) statement(st Statement) error {
	if st.Label != "" {
		if a.block == nil {
			return errorAt(st.Pos, fmt.Errorf("%w: label %s outside a routine", ErrMisplaced, st.Label))
		}
		if err := a.block.Label(st.Label); err != nil {
			return errorAt(st.Pos, err)
		}
	}
	switch {
	case st.Op == "":
		return nil
	case st.IsDirective():
		return a.directive(st)
	}
	if a.block == nil {
		return errorAt(st.Pos, fmt.Errorf("%w: %s outside a routine", ErrMisplaced, st.Op))
	}
	ops, err := operands(st.Args)
	if err != nil {
		return errorAt(st.Pos, err)
	}
	if err := a.block.Emit(st.Op, ops...); err != nil {
		return errorAt(st.Pos, err)
	}
	return nil
}

// operands parses every argument of an instruction.
func operands(args []Arg) ([]emit.Operand, error) {
	ops := make([]emit.Operand, len(args))
	for i, arg := range args {
		op, err := emit.ParseOperand(arg.Text)
		if err != nil {
			return nil, err
		}
		ops[i] = op
	}
	return ops, nil
}

// ---------------------------------------------------------------------------
// Directives
// ---------------------------------------------------------------------------

func (a *assembler) directive(st Statement) error {
	var err error
	switch st.Op {
	case ".data":
		// Sized before translation by dataCells.
	case ".global":
		err = a.global(st)
	case ".routine":
		err = a.beginRoutine(st)
	case ".local":
		err = a.local(st)
	case ".end":
		err = a.endRoutine(st)
	case ".if", ".elseif":
		err = a.conditional(st)
	case ".else":
		if err = a.needBlock(st, 0); err == nil {
			err = a.block.Else()
		}
	case ".endif":
		if err = a.needBlock(st, 0); err == nil {
			err = a.block.EndIf()
		}
	case ".patch", ".endpatch":
		err = fmt.Errorf("%w: %s belongs in a patch file", ErrMisplaced, st.Op)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownDirective, st.Op)
	}
	if err != nil {
		return errorAt(st.Pos, err)
	}
	return nil
}

// needBlock checks that st is inside a routine and has n arguments.
func (a *assembler) needBlock(st Statement, n int) error {
	if a.block == nil {
		return fmt.Errorf("%w: %s outside a routine", ErrMisplaced, st.Op)
	}
	return arity(st, n, n)
}

func arity(st Statement, min, max int) error {
	if len(st.Args) < min || len(st.Args) > max {
		return fmt.Errorf("%w: %s takes %d to %d argument(s), got %d", ErrBadArguments, st.Op, min, max, len(st.Args))
	}
	return nil
}

func name(arg Arg) (string, error) {
	if !emit.IsIdentifier(arg.Text) {
		return "", fmt.Errorf("%w: %q is not a name", ErrBadArguments, arg.Text)
	}
	return arg.Text, nil
}

func number(arg Arg) (isa.Cell, error) {
	op, err := emit.ParseOperand(arg.Text)
	if err != nil {
		return 0, err
	}
	imm, ok := op.(emit.Immediate)
	if !ok {
		return 0, fmt.Errorf("%w: %q is not a number", ErrBadArguments, arg.Text)
	}
	return imm.Value, nil
}

func (a *assembler) global(st Statement) error {
	if a.block != nil {
		return fmt.Errorf("%w: .global inside routine %s", ErrMisplaced, a.routine)
	}
	if err := arity(st, 1, 2); err != nil {
		return err
	}
	n, err := name(st.Args[0])
	if err != nil {
		return err
	}
	var init isa.Cell
	if len(st.Args) == 2 {
		if init, err = number(st.Args[1]); err != nil {
			return err
		}
	}
	_, err = a.prog.DeclareGlobal(n, init)
	return err
}

func (a *assembler) beginRoutine(st Statement) error {
	if a.block != nil {
		return fmt.Errorf("%w: .routine inside routine %s", ErrMisplaced, a.routine)
	}
	if err := arity(st, 1, 2); err != nil {
		return err
	}
	n, err := name(st.Args[0])
	if err != nil {
		return err
	}
	reserve := 0
	if len(st.Args) == 2 {
		v, err := number(st.Args[1])
		if err != nil {
			return err
		}
		reserve = int(v)
	}
	if err := a.prog.BeginRoutine(n); err != nil {
		return err
	}
	b, err := a.prog.OpenBlock(a.opts.BlockCapacity)
	if err != nil {
		return err
	}
	a.block, a.routine, a.reserve = b, n, reserve
	return nil
}

func (a *assembler) local(st Statement) error {
	if err := a.needBlock(st, 2); err != nil {
		return err
	}
	n, err := name(st.Args[0])
	if err != nil {
		return err
	}
	off, err := number(st.Args[1])
	if err != nil {
		return err
	}
	return a.prog.Scope().DeclareLocal(n, int(off))
}

func (a *assembler) endRoutine(st Statement) error {
	if err := a.needBlock(st, 0); err != nil {
		return err
	}
	if _, err := a.block.Close(); err != nil {
		return fmt.Errorf("routine %s: %w", a.routine, err)
	}
	a.block = nil
	_, err := a.prog.EndRoutine(a.reserve)
	return err
}

func (a *assembler) conditional(st Statement) error {
	if err := a.needBlock(st, 1); err != nil {
		return err
	}
	c, err := a.eval(st.Args[0])
	if err != nil {
		return err
	}
	if st.Op == ".if" {
		a.block.If(c)
		return nil
	}
	return a.block.ElseIf(c)
}

// eval evaluates a condition: a literal or a global's compile-time value,
// optionally negated.
func (a *assembler) eval(arg Arg) (bool, error) {
	text, negate := arg.Text, false
	if len(text) > 0 && text[0] == '!' {
		text, negate = text[1:], true
	}
	op, err := emit.ParseOperand(text)
	if err != nil {
		return false, err
	}
	var v isa.Cell
	switch o := op.(type) {
	case emit.Immediate:
		v = o.Value
	case emit.SymbolValue:
		sym, ok := a.prog.Scope().Symbol(o.Sym.Name)
		if !ok {
			return false, fmt.Errorf("%w: %s", emit.ErrUnknownSymbol, o.Sym.Name)
		}
		if !sym.HasValue {
			return false, fmt.Errorf("%w: %s has no compile-time value", ErrBadArguments, o.Sym.Name)
		}
		v = sym.Value
	default:
		return false, fmt.Errorf("%w: condition %q", ErrBadArguments, arg.Text)
	}
	return (v != 0) != negate, nil
}
