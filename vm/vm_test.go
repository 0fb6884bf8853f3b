package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/cellemit/emit"
	"github.com/chazu/cellemit/isa"
)

func newMemory(t *testing.T) *Memory {
	t.Helper()
	mem, err := NewMemory(4096, 256)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return mem
}

// install reserves a region, rewrites it through a dynamic context and
// returns the finalized routine.
func install(t *testing.T, mem *Memory, name string, capacity int, body func(ctx *emit.Context) error) *emit.Routine {
	t.Helper()
	if _, err := mem.Reserve(name, capacity); err != nil {
		t.Fatalf("Reserve(%s): %v", name, err)
	}
	lease, err := mem.Lease(name)
	if err != nil {
		t.Fatalf("Lease(%s): %v", name, err)
	}
	ctx, err := emit.NewDynamic(lease, emit.WithSymbols(mem))
	if err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	if err := body(ctx); err != nil {
		t.Fatalf("emit %s: %v", name, err)
	}
	r, err := ctx.Finalize()
	if err != nil {
		t.Fatalf("Finalize(%s): %v", name, err)
	}
	return r
}

// emitAll emits a list of instructions, stopping at the first error.
func emitAll(ctx *emit.Context, lines ...[]any) error {
	for _, line := range lines {
		if name := line[0].(string); len(line) == 1 && strings.HasSuffix(name, ":") {
			if err := ctx.DefineLabel(strings.TrimSuffix(name, ":")); err != nil {
				return err
			}
			continue
		}
		ops := make([]emit.Operand, 0, len(line)-1)
		for _, o := range line[1:] {
			ops = append(ops, o.(emit.Operand))
		}
		if err := ctx.Emit(line[0].(string), ops...); err != nil {
			return err
		}
	}
	return nil
}

func op(mnemonic string, ops ...emit.Operand) []any {
	line := []any{mnemonic}
	for _, o := range ops {
		line = append(line, o)
	}
	return line
}

func label(name string) []any {
	return []any{name + ":"}
}

// ---------------------------------------------------------------------------
// End-to-end emission
// ---------------------------------------------------------------------------

func TestDynamicRewriteOfStub(t *testing.T) {
	mem := newMemory(t)
	m := NewMachine(mem)

	if _, err := mem.Reserve("answer", 4); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	got, err := m.Call("answer")
	if err != nil || got != 0 {
		t.Fatalf("stub returned %d, %v; want 0", got, err)
	}

	lease, err := mem.Lease("answer")
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	ctx, err := emit.NewDynamic(lease)
	if err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	if err := emitAll(ctx, op("PROC"), op("CONST.P", emit.Imm(5)), op("RET")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if ctx.Cursor() != 4 {
		t.Errorf("Cursor = %d, want 4", ctx.Cursor())
	}

	if _, err := m.Call("answer"); !errors.Is(err, ErrRegionBusy) {
		t.Errorf("Call during rewrite = %v, want ErrRegionBusy", err)
	}

	r, err := ctx.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got, err := m.Invoke(r); err != nil || got != 5 {
		t.Errorf("Invoke = %d, %v; want 5", got, err)
	}
	if got, err := m.Call("answer"); err != nil || got != 5 {
		t.Errorf("Call = %d, %v; want 5", got, err)
	}
	if sp, _ := mem.Region("answer"); sp.Length != 4 {
		t.Errorf("Length = %d, want 4", sp.Length)
	}
}

func TestDynamicBranchOnGlobal(t *testing.T) {
	mem := newMemory(t)
	m := NewMachine(mem)
	if _, err := mem.DefineGlobal("var", 0); err != nil {
		t.Fatalf("DefineGlobal: %v", err)
	}

	r := install(t, mem, "check", 16, func(ctx *emit.Context) error {
		return emitAll(ctx,
			op("LOAD.P", emit.AddrOf("var")),
			op("JZER", emit.Ref("fail")),
			op("CONST.P", emit.Imm(0)),
			op("RET"),
			label("fail"),
			op("CONST.P", emit.Imm(1)),
			op("RET"),
		)
	})

	tests := []struct {
		value isa.Cell
		want  isa.Cell
	}{
		{0, 1},
		{7, 0},
		{-1, 0},
	}
	for _, tt := range tests {
		if err := mem.SetGlobal("var", tt.value); err != nil {
			t.Fatalf("SetGlobal: %v", err)
		}
		got, err := m.Invoke(r)
		if err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if got != tt.want {
			t.Errorf("var=%d: got %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestDiscardedRegionRefusesEntry(t *testing.T) {
	mem := newMemory(t)
	m := NewMachine(mem)
	span, err := mem.Reserve("r", 6)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	lease, _ := mem.Lease("r")
	ctx, err := emit.NewDynamic(lease)
	if err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	if err := ctx.Emit("JUMP", emit.Ref("nowhere")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := ctx.Discard(); err != nil {
		t.Fatalf("Discard: %v", err)
	}

	if _, err := m.Call("r"); !errors.Is(err, ErrRegionPoisoned) {
		t.Errorf("Call poisoned = %v, want ErrRegionPoisoned", err)
	}
	cells, err := mem.Slice(span.Base, span.Capacity)
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	for i, c := range cells {
		if c != isa.Cell(isa.OpTRAP) {
			t.Errorf("cell %d = %d, want TRAP", i, c)
		}
	}

	// A poisoned region can be leased and rewritten.
	lease, err = mem.Lease("r")
	if err != nil {
		t.Fatalf("Lease poisoned: %v", err)
	}
	ctx, _ = emit.NewDynamic(lease)
	if err := emitAll(ctx, op("CONST.P", emit.Imm(3)), op("RET")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if _, err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if got, err := m.Call("r"); err != nil || got != 3 {
		t.Errorf("Call = %d, %v; want 3", got, err)
	}
}

// ---------------------------------------------------------------------------
// Leases
// ---------------------------------------------------------------------------

func TestLeaseExclusive(t *testing.T) {
	mem := newMemory(t)
	if _, err := mem.Reserve("r", 4); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	first, err := mem.Lease("r")
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	if _, err := mem.Lease("r"); !errors.Is(err, ErrRegionBusy) {
		t.Errorf("second Lease = %v, want ErrRegionBusy", err)
	}
	first.Release()
	second, err := mem.Lease("r")
	if err != nil {
		t.Fatalf("Lease after Release: %v", err)
	}
	if err := first.Attest(); !errors.Is(err, ErrLeaseReleased) {
		t.Errorf("released lease Attest = %v, want ErrLeaseReleased", err)
	}
	if _, err := emit.NewDynamic(first); !errors.Is(err, emit.ErrRegionUnavailable) {
		t.Errorf("NewDynamic on released lease = %v", err)
	}
	if err := second.Attest(); err != nil {
		t.Errorf("Attest = %v", err)
	}
	if _, err := mem.Lease("missing"); !errors.Is(err, ErrUnknownRegion) {
		t.Errorf("Lease(missing) = %v, want ErrUnknownRegion", err)
	}
}

func TestLeaseBindsOneContext(t *testing.T) {
	mem := newMemory(t)
	m := NewMachine(mem)
	if _, err := mem.Reserve("r", 4); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	lease, err := mem.Lease("r")
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	ctx, err := emit.NewDynamic(lease)
	if err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	_, err = emit.NewDynamic(lease)
	if !errors.Is(err, ErrRegionBusy) || !errors.Is(err, emit.ErrRegionUnavailable) {
		t.Fatalf("second NewDynamic = %v, want ErrRegionBusy", err)
	}

	if err := emitAll(ctx, op("CONST.P", emit.Imm(5)), op("RET")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if _, err := ctx.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := lease.Store(0, isa.Cell(isa.OpTRAP)); !errors.Is(err, ErrLeaseReleased) {
		t.Errorf("Store after seal = %v, want ErrLeaseReleased", err)
	}
	if err := ctx.Discard(); !errors.Is(err, emit.ErrContextClosed) {
		t.Errorf("Discard after Finalize = %v", err)
	}
	if got, err := m.Call("r"); err != nil || got != 5 {
		t.Errorf("Call = %d, %v; want 5", got, err)
	}
}

func TestReleaseMidRewrite(t *testing.T) {
	mem := newMemory(t)
	m := NewMachine(mem)
	span, err := mem.Reserve("r", 4)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	lease, _ := mem.Lease("r")
	ctx, err := emit.NewDynamic(lease)
	if err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	if err := ctx.Emit("CONST.P", emit.Imm(7)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	lease.Release()

	if err := ctx.Emit("RET"); !errors.Is(err, ErrLeaseReleased) {
		t.Errorf("Emit after Release = %v, want ErrLeaseReleased", err)
	}
	if err := ctx.Discard(); !errors.Is(err, ErrLeaseReleased) {
		t.Errorf("Discard after Release = %v, want ErrLeaseReleased", err)
	}
	if _, err := m.Call("r"); !errors.Is(err, ErrRegionPoisoned) {
		t.Errorf("Call = %v, want ErrRegionPoisoned", err)
	}
	cells, _ := mem.Slice(span.Base, 2)
	if cells[0] != isa.Cell(isa.OpConstP) || cells[1] != 7 {
		t.Errorf("cells = %v, want the partial rewrite untouched", cells)
	}

	// A lease released before any write leaves the stub callable.
	lease, _ = mem.Lease("r")
	if _, err := emit.NewDynamic(lease); err != nil {
		t.Fatalf("NewDynamic: %v", err)
	}
	lease.Release()
	if sp, _ := mem.Region("r"); !sp.Poisoned {
		t.Errorf("region = %+v, want still poisoned", sp)
	}
}

func TestLeaseRefusedWhileExecuting(t *testing.T) {
	mem := newMemory(t)
	span, err := mem.Reserve("r", 4)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	sp, err := mem.enter(span.Base.Add(1))
	if err != nil || sp == nil {
		t.Fatalf("enter = %v, %v", sp, err)
	}
	if _, err := mem.Lease("r"); !errors.Is(err, ErrRegionBusy) {
		t.Errorf("Lease while executing = %v, want ErrRegionBusy", err)
	}
	mem.leave(sp)
	if _, err := mem.Lease("r"); err != nil {
		t.Errorf("Lease after leave = %v", err)
	}
}

func TestLeaseAt(t *testing.T) {
	mem := newMemory(t)
	base, err := mem.Alloc(8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	lease, err := mem.LeaseAt(base, 8)
	if err != nil {
		t.Fatalf("LeaseAt: %v", err)
	}
	if lease.Name() != "" || lease.Base() != base || lease.Capacity() != 8 {
		t.Errorf("lease = %q %s %d", lease.Name(), lease.Base(), lease.Capacity())
	}
	if _, err := mem.LeaseAt(base.Add(2), 2); !errors.Is(err, ErrRegionOverlap) {
		t.Errorf("overlapping LeaseAt = %v, want ErrRegionOverlap", err)
	}
	if _, err := mem.LeaseAt(base.Add(100), 2); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("unallocated LeaseAt = %v, want ErrOutOfBounds", err)
	}
	lease.Release()
	if _, err := mem.LeaseAt(base, 8); err != nil {
		t.Errorf("LeaseAt same range = %v", err)
	}
}

func TestReserve(t *testing.T) {
	mem := newMemory(t)
	span, err := mem.Reserve("r", 5)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	cells, _ := mem.Slice(span.Base, 5)
	want := []isa.Opcode{isa.OpPROC, isa.OpZeroP, isa.OpRET, isa.OpNOP, isa.OpNOP}
	for i, code := range want {
		if cells[i] != isa.Cell(code) {
			t.Errorf("cell %d = %d, want %s", i, cells[i], code)
		}
	}
	if _, err := mem.Reserve("r", 5); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate Reserve = %v", err)
	}
	if _, err := mem.Reserve("tiny", 2); !errors.Is(err, ErrRegionTooSmall) {
		t.Errorf("tiny Reserve = %v", err)
	}
	if _, err := mem.Reserve("huge", 1<<20); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("huge Reserve = %v", err)
	}
}
