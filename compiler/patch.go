package compiler

import (
	"fmt"

	"github.com/chazu/cellemit/emit"
	"github.com/chazu/cellemit/isa"
	"github.com/chazu/cellemit/vm"
)

// Patch is one region rewrite: a body of instructions to emit into loaded
// memory through a dynamic context.
type Patch struct {
	Pos      Position
	Region   string   // named region; empty when Base and Capacity are used
	Base     isa.Addr // raw region base
	Capacity int      // raw region capacity
	Body     []Statement
}

// Target names the patched region for messages.
func (p *Patch) Target() string {
	if p.Region != "" {
		return p.Region
	}
	return fmt.Sprintf("%d cell(s) at %s", p.Capacity, p.Base)
}

// ParsePatch parses a patch file:
//
//	.patch name
//	    ... instructions and labels ...
//	.endpatch
//	.patch 0x120, 16
//	    ...
//	.endpatch
func ParsePatch(src string) ([]*Patch, error) {
	stmts, err := Parse(src)
	if err != nil {
		return nil, err
	}
	var (
		out []*Patch
		cur *Patch
	)
	for _, st := range stmts {
		switch st.Op {
		case ".patch":
			if cur != nil {
				return nil, errorAt(st.Pos, fmt.Errorf("%w: .patch inside patch for %s", ErrMisplaced, cur.Target()))
			}
			if st.Label != "" {
				return nil, errorAt(st.Pos, fmt.Errorf("%w: label %s on .patch", ErrMisplaced, st.Label))
			}
			p, err := patchHeader(st)
			if err != nil {
				return nil, errorAt(st.Pos, err)
			}
			cur = p
			continue
		case ".endpatch":
			if cur == nil {
				return nil, errorAt(st.Pos, fmt.Errorf("%w: .endpatch without .patch", ErrMisplaced))
			}
			if st.Label != "" {
				cur.Body = append(cur.Body, Statement{Pos: st.Pos, Label: st.Label})
			}
			out = append(out, cur)
			cur = nil
			continue
		}
		if cur == nil {
			return nil, errorAt(st.Pos, fmt.Errorf("%w: %q outside a patch", ErrMisplaced, st.String()))
		}
		if st.IsDirective() {
			return nil, errorAt(st.Pos, fmt.Errorf("%w: %s inside a patch", ErrMisplaced, st.Op))
		}
		cur.Body = append(cur.Body, st)
	}
	if cur != nil {
		return nil, errorAt(cur.Pos, fmt.Errorf("%w: patch for %s has no .endpatch", ErrMisplaced, cur.Target()))
	}
	return out, nil
}

func patchHeader(st Statement) (*Patch, error) {
	p := &Patch{Pos: st.Pos}
	switch len(st.Args) {
	case 1:
		n, err := name(st.Args[0])
		if err != nil {
			return nil, err
		}
		p.Region = n
	case 2:
		base, err := number(st.Args[0])
		if err != nil {
			return nil, err
		}
		capacity, err := number(st.Args[1])
		if err != nil {
			return nil, err
		}
		p.Base, p.Capacity = isa.Addr(base), int(capacity)
	default:
		return nil, fmt.Errorf("%w: .patch takes a region name or a base and capacity", ErrBadArguments)
	}
	return p, nil
}

// ApplyPatch leases the patch's region, emits the body and seals it. The
// body resolves names against mem's globals. If emission fails after cells
// were written the region is poisoned; otherwise the lease is released and
// the region keeps its previous contents.
func ApplyPatch(mem *vm.Memory, p *Patch) (*emit.Routine, error) {
	var (
		lease *vm.Lease
		err   error
	)
	if p.Region != "" {
		lease, err = mem.Lease(p.Region)
	} else {
		lease, err = mem.LeaseAt(p.Base, p.Capacity)
	}
	if err != nil {
		return nil, errorAt(p.Pos, err)
	}
	ctx, err := emit.NewDynamic(lease, emit.WithSymbols(mem))
	if err != nil {
		lease.Release()
		return nil, errorAt(p.Pos, err)
	}
	for _, st := range p.Body {
		if err := emitStatement(ctx, st); err != nil {
			abandon(ctx, lease)
			return nil, errorAt(st.Pos, err)
		}
	}
	r, err := ctx.Finalize()
	if err != nil {
		abandon(ctx, lease)
		return nil, errorAt(p.Pos, fmt.Errorf("patch for %s: %w", p.Target(), err))
	}
	log.Infof("patched %s: %d cell(s) at %s", p.Target(), r.Len(), r.EntryPoint())
	return r, nil
}

// ApplyPatches applies patches in order and stops at the first failure.
func ApplyPatches(mem *vm.Memory, patches []*Patch) ([]*emit.Routine, error) {
	out := make([]*emit.Routine, 0, len(patches))
	for _, p := range patches {
		r, err := ApplyPatch(mem, p)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func emitStatement(ctx *emit.Context, st Statement) error {
	if st.Label != "" {
		if err := ctx.DefineLabel(st.Label); err != nil {
			return err
		}
	}
	if st.Op == "" {
		return nil
	}
	ops, err := operands(st.Args)
	if err != nil {
		return err
	}
	return ctx.Emit(st.Op, ops...)
}

// abandon gives up a failed patch. Untouched regions keep running their old
// code; partly overwritten ones are poisoned.
func abandon(ctx *emit.Context, lease *vm.Lease) {
	if ctx.Cursor() == 0 {
		lease.Release()
		return
	}
	if err := ctx.Discard(); err != nil {
		log.Errorf("discarding patch: %s", err)
	}
}
