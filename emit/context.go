package emit

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/chazu/cellemit/isa"
)

// Mode selects how a context's output is used.
type Mode uint8

const (
	// ModeStatic contexts produce a stream merged into a compiled program.
	ModeStatic Mode = iota
	// ModeDynamic contexts rewrite loaded memory.
	ModeDynamic
)

// String implements the Stringer interface.
func (m Mode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeDynamic:
		return "dynamic"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// State is the lifecycle state of a context.
type State uint8

const (
	StateOpen State = iota
	StateFinalized
	StateDiscarded
)

// String implements the Stringer interface.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateFinalized:
		return "finalized"
	case StateDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Option configures a context.
type Option func(*Context)

// WithSymbols lets a dynamic context resolve named addresses. Values are
// still refused in dynamic mode.
func WithSymbols(symbols SymbolTable) Option {
	return func(c *Context) {
		c.resolver.Symbols = symbols
	}
}

// ---------------------------------------------------------------------------
// Context: the emission state machine
// ---------------------------------------------------------------------------

// Context writes encoded instructions into a Region. It has exactly one
// owner and is not safe for concurrent use.
type Context struct {
	id       uuid.UUID
	region   Region
	capacity int
	cursor   int
	state    State
	resolver Resolver
	labels   *labelTable
	emitted  int // instructions written
}

// NewDynamic opens a context that rewrites region in place. It refuses
// creation unless the region attests that it is writable and idle.
func NewDynamic(region Region, opts ...Option) (*Context, error) {
	if region == nil {
		return nil, fmt.Errorf("%w: nil region", ErrRegionUnavailable)
	}
	if err := region.Attest(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegionUnavailable, err)
	}
	return newContext(ModeDynamic, region, opts...)
}

// NewStatic opens a context that produces a stream for a compiled program.
func NewStatic(region Region, symbols SymbolTable, opts ...Option) (*Context, error) {
	if region == nil {
		return nil, fmt.Errorf("%w: nil region", ErrRegionUnavailable)
	}
	opts = append([]Option{WithSymbols(symbols)}, opts...)
	return newContext(ModeStatic, region, opts...)
}

func newContext(mode Mode, region Region, opts ...Option) (*Context, error) {
	if region.Capacity() < 0 {
		return nil, fmt.Errorf("%w: negative capacity", ErrRegionUnavailable)
	}
	origin := 0
	if o, ok := region.(Originer); ok {
		origin = o.Origin()
	}
	c := &Context{
		id:       uuid.New(),
		region:   region,
		capacity: region.Capacity(),
		state:    StateOpen,
		resolver: Resolver{Mode: mode},
		labels:   newLabelTable(origin),
	}
	for _, opt := range opts {
		opt(c)
	}
	log.Debugf("context %s: open %s, base %s, capacity %d", c.id, mode, region.Base(), c.capacity)
	return c, nil
}

func (c *Context) ID() uuid.UUID { return c.id }
func (c *Context) Mode() Mode { return c.resolver.Mode }
func (c *Context) State() State { return c.state }
func (c *Context) Base() isa.Addr { return c.region.Base() }
func (c *Context) Cursor() int { return c.cursor }
func (c *Context) Capacity() int { return c.capacity }
func (c *Context) Remaining() int { return c.capacity - c.cursor }
func (c *Context) Emitted() int { return c.emitted }

// LabelOffset returns the offset a label was defined at.
func (c *Context) LabelOffset(name string) (int, bool) {
	return c.labels.offset(name)
}

// Pending returns the number of sites still waiting for a label.
func (c *Context) Pending(name string) int {
	return c.labels.pendingSites(name)
}

func (c *Context) checkOpen() error {
	if c.state != StateOpen {
		return fmt.Errorf("%w: context %s is %s", ErrContextClosed, c.id, c.state)
	}
	return nil
}

// Emit encodes one instruction named by mnemonic. In static mode a ".U"
// mnemonic is first mapped to its concrete variant by the storage class of
// its symbol operand.
func (c *Context) Emit(mnemonic string, ops ...Operand) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.Mode() == ModeStatic && isa.IsGeneric(mnemonic) {
		class, err := c.resolver.Classify(ops)
		if err != nil {
			return fmt.Errorf("%s: %w", mnemonic, err)
		}
		concrete, err := isa.Select(mnemonic, class)
		if err != nil {
			return err
		}
		mnemonic = concrete
	}
	ins, err := isa.Lookup(mnemonic, ShapeOf(ops))
	if err != nil {
		return err
	}
	return c.EmitInstruction(ins, ops...)
}

// EmitInstruction encodes ins with ops. Either the whole instruction is
// written and the cursor advances by its width, or nothing changes.
func (c *Context) EmitInstruction(ins *isa.Instruction, ops ...Operand) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	enc, err := c.resolver.ResolveAll(ins, ops)
	if err != nil {
		return err
	}
	width := ins.Width()
	if c.cursor+width > c.capacity {
		return &OverflowError{Mnemonic: ins.Mnemonic, Cursor: c.cursor, Width: width, Capacity: c.capacity}
	}

	at := c.cursor
	if err := c.store(at, isa.Cell(ins.Op)); err != nil {
		return err
	}
	for i, e := range enc {
		siteOffset := at + 1 + i
		v := e.Value
		if e.IsLabel() {
			v = c.labels.reference(e.Label, siteOffset, e.Rule)
		}
		if err := c.store(siteOffset, v); err != nil {
			return err
		}
	}
	c.cursor += width
	c.emitted++
	return nil
}

// DefineLabel binds name to the current cursor and patches every earlier
// reference to it.
func (c *Context) DefineLabel(name string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !IsIdentifier(name) {
		return fmt.Errorf("%w: %q", ErrInvalidLabelName, name)
	}
	n, err := c.labels.define(name, c.cursor, c.store)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Debugf("context %s: label %s at %d patched %d site(s)", c.id, name, c.cursor, n)
	}
	return nil
}

// store writes one cell, failing once the region stops accepting writes.
func (c *Context) store(offset int, v isa.Cell) error {
	if err := c.region.Store(offset, v); err != nil {
		return fmt.Errorf("%w: context %s: %w", ErrRegionUnavailable, c.id, err)
	}
	return nil
}

// Finalize closes the context and hands the region over as a complete
// instruction sequence. It fails without side effects if any referenced
// label is undefined.
func (c *Context) Finalize() (*Routine, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	if names := c.labels.unresolved(); len(names) > 0 {
		return nil, &UnresolvedLabelError{Names: names}
	}
	if err := c.region.Seal(c.cursor); err != nil {
		return nil, fmt.Errorf("finalize context %s: %w", c.id, err)
	}
	c.state = StateFinalized
	log.Infof("context %s: finalized %s stream of %d cell(s) at %s", c.id, c.Mode(), c.cursor, c.region.Base())
	return &Routine{
		id:     c.id,
		base:   c.region.Base(),
		length: c.cursor,
		mode:   c.Mode(),
		labels: c.labels.resolvedOffsets(),
	}, nil
}

// Discard abandons the context. The whole region is overwritten with TRAP
// and poisoned so it can never be entered. Discarding twice is a no-op;
// discarding a finalized context is an error. If the region no longer
// accepts writes nothing is written and the context stays open.
func (c *Context) Discard() error {
	switch c.state {
	case StateDiscarded:
		return nil
	case StateFinalized:
		return fmt.Errorf("%w: context %s is finalized", ErrContextClosed, c.id)
	}
	for off := 0; off < c.capacity; off++ {
		if err := c.store(off, isa.Cell(isa.OpTRAP)); err != nil {
			return fmt.Errorf("discard: %w", err)
		}
	}
	if err := c.region.Poison(); err != nil {
		return fmt.Errorf("discard context %s: %w", c.id, err)
	}
	c.state = StateDiscarded
	log.Warningf("context %s: discarded at cursor %d", c.id, c.cursor)
	return nil
}
