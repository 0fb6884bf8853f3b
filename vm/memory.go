package vm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/chazu/cellemit/emit"
	"github.com/chazu/cellemit/isa"
)

// MinRegionCells is the smallest region Reserve accepts: room for the stub
// routine PROC; ZERO.P; RET.
const MinRegionCells = 3

// DefaultStackCells is the stack size used by NewMemory when stack <= 0.
const DefaultStackCells = 1024

// span is one registered region of memory.
type span struct {
	name     string
	base     isa.Addr
	capacity int
	length   int    // cells of the last sealed sequence
	lease    *Lease // open lease, if any
	running  int    // activations currently executing inside
	poisoned bool
}

func (s *span) contains(a isa.Addr) bool {
	return a >= s.base && a < s.base.Add(s.capacity)
}

func (s *span) export() Span {
	return Span{Name: s.name, Base: s.base, Capacity: s.capacity, Length: s.length, Poisoned: s.poisoned}
}

// Span describes a registered region.
type Span struct {
	Name     string
	Base     isa.Addr
	Capacity int
	Length   int
	Poisoned bool
}

// EntryPoint returns the region's first cell.
func (s Span) EntryPoint() isa.Addr {
	return s.Base
}

// End returns the address one past the region.
func (s Span) End() isa.Addr {
	return s.Base.Add(s.Capacity)
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

// Memory is the machine's cell array. Low memory is handed out upwards by
// Alloc, Reserve and LoadImage; the top StackCells cells hold the stack.
// Memory is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	cells   []isa.Cell
	next    isa.Addr // first unallocated cell
	limit   isa.Addr // first stack cell
	spans   []*span  // sorted by base
	byName  map[string]*span
	globals map[string]isa.Addr
	order   []string // global names in definition order
}

// NewMemory creates a memory of size cells of which the top stack cells are
// reserved for the stack.
func NewMemory(size, stack int) (*Memory, error) {
	if stack <= 0 {
		stack = DefaultStackCells
	}
	if size <= stack {
		return nil, fmt.Errorf("%w: %d cell(s) cannot hold a %d cell stack", ErrOutOfMemory, size, stack)
	}
	return &Memory{
		cells:   make([]isa.Cell, size),
		limit:   isa.Addr(size - stack),
		byName:  make(map[string]*span),
		globals: make(map[string]isa.Addr),
	}, nil
}

// Size returns the number of cells.
func (m *Memory) Size() int {
	return len(m.cells)
}

// StackBase returns the lowest stack cell.
func (m *Memory) StackBase() isa.Addr {
	return m.limit
}

// Free returns the number of unallocated cells below the stack.
func (m *Memory) Free() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.limit - m.next)
}

func (m *Memory) inBounds(a isa.Addr) bool {
	return a >= 0 && int64(a) < int64(len(m.cells))
}

// Load returns the cell at a.
func (m *Memory) Load(a isa.Addr) (isa.Cell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inBounds(a) {
		return 0, fmt.Errorf("%w: load %s", ErrOutOfBounds, a)
	}
	return m.cells[a], nil
}

// Store writes the cell at a.
func (m *Memory) Store(a isa.Addr, v isa.Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inBounds(a) {
		return fmt.Errorf("%w: store %s", ErrOutOfBounds, a)
	}
	m.cells[a] = v
	return nil
}

// Slice returns a copy of n cells starting at a.
func (m *Memory) Slice(a isa.Addr, n int) ([]isa.Cell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || !m.inBounds(a) || (n > 0 && !m.inBounds(a.Add(n-1))) {
		return nil, fmt.Errorf("%w: %d cell(s) at %s", ErrOutOfBounds, n, a)
	}
	return append([]isa.Cell(nil), m.cells[a:a.Add(n)]...), nil
}

// Alloc hands out n zeroed cells and returns the first address.
func (m *Memory) Alloc(n int) (isa.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alloc(n)
}

func (m *Memory) alloc(n int) (isa.Addr, error) {
	if n < 0 || m.next.Add(n) > m.limit {
		return 0, fmt.Errorf("%w: %d cell(s) requested, %d free", ErrOutOfMemory, n, m.limit-m.next)
	}
	base := m.next
	m.next = m.next.Add(n)
	return base, nil
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// DefineGlobal allocates one cell for name and initializes it.
func (m *Memory) DefineGlobal(name string, init isa.Cell) (isa.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.globals[name]; ok {
		return 0, fmt.Errorf("%w: global %s", ErrDuplicateName, name)
	}
	a, err := m.alloc(1)
	if err != nil {
		return 0, err
	}
	m.cells[a] = init
	m.bindGlobal(name, a)
	return a, nil
}

func (m *Memory) bindGlobal(name string, a isa.Addr) {
	m.globals[name] = a
	m.order = append(m.order, name)
}

// GlobalAddr returns the address of a global.
func (m *Memory) GlobalAddr(name string) (isa.Addr, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.globals[name]
	return a, ok
}

// Global returns the current value of a global.
func (m *Memory) Global(name string) (isa.Cell, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.globals[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownGlobal, name)
	}
	return m.cells[a], nil
}

// SetGlobal overwrites the value of a global.
func (m *Memory) SetGlobal(name string, v isa.Cell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.globals[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownGlobal, name)
	}
	m.cells[a] = v
	return nil
}

// Globals returns global names in definition order.
func (m *Memory) Globals() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Symbol implements emit.SymbolTable for dynamic contexts. Runtime contents
// are never reported as compile-time values.
func (m *Memory) Symbol(name string) (emit.Symbol, bool) {
	a, ok := m.GlobalAddr(name)
	if !ok {
		return emit.Symbol{}, false
	}
	return emit.Symbol{Name: name, Class: isa.Global, Location: a.Cell()}, true
}

var _ emit.SymbolTable = (*Memory)(nil)

// ---------------------------------------------------------------------------
// Regions
// ---------------------------------------------------------------------------

// Reserve allocates a named region of capacity cells and installs a stub
// routine that returns 0, so the region can be called before it is
// rewritten.
func (m *Memory) Reserve(name string, capacity int) (Span, error) {
	if capacity < MinRegionCells {
		return Span{}, fmt.Errorf("%w: %s needs at least %d cells, got %d", ErrRegionTooSmall, name, MinRegionCells, capacity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[name]; ok {
		return Span{}, fmt.Errorf("%w: region %s", ErrDuplicateName, name)
	}
	base, err := m.alloc(capacity)
	if err != nil {
		return Span{}, err
	}
	stub := []isa.Cell{isa.Cell(isa.OpPROC), isa.Cell(isa.OpZeroP), isa.Cell(isa.OpRET)}
	copy(m.cells[base:], stub)
	for i := len(stub); i < capacity; i++ {
		m.cells[base.Add(i)] = isa.Cell(isa.OpNOP)
	}
	sp, err := m.register(name, base, capacity)
	if err != nil {
		return Span{}, err
	}
	sp.length = len(stub)
	log.Debugf("reserved region %s: %d cell(s) at %s", name, capacity, base)
	return sp.export(), nil
}

// register records a region. Callers hold m.mu.
func (m *Memory) register(name string, base isa.Addr, capacity int) (*span, error) {
	if name != "" {
		if _, ok := m.byName[name]; ok {
			return nil, fmt.Errorf("%w: region %s", ErrDuplicateName, name)
		}
	}
	sp := &span{name: name, base: base, capacity: capacity}
	i := sort.Search(len(m.spans), func(i int) bool { return m.spans[i].base >= base })
	if i > 0 && m.spans[i-1].base.Add(m.spans[i-1].capacity) > base {
		return nil, fmt.Errorf("%w: %s", ErrRegionOverlap, m.spans[i-1].name)
	}
	if i < len(m.spans) && base.Add(capacity) > m.spans[i].base {
		return nil, fmt.Errorf("%w: %s", ErrRegionOverlap, m.spans[i].name)
	}
	m.spans = append(m.spans, nil)
	copy(m.spans[i+1:], m.spans[i:])
	m.spans[i] = sp
	if name != "" {
		m.byName[name] = sp
	}
	return sp, nil
}

// Region returns the named region.
func (m *Memory) Region(name string) (Span, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.byName[name]
	if !ok {
		return Span{}, false
	}
	return sp.export(), true
}

// Regions returns every registered region ordered by base address.
func (m *Memory) Regions() []Span {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Span, len(m.spans))
	for i, sp := range m.spans {
		out[i] = sp.export()
	}
	return out
}

// find returns the region containing a. Callers hold m.mu.
func (m *Memory) find(a isa.Addr) *span {
	i := sort.Search(len(m.spans), func(i int) bool { return m.spans[i].base > a })
	if i == 0 {
		return nil
	}
	if sp := m.spans[i-1]; sp.contains(a) {
		return sp
	}
	return nil
}

// enter marks the region containing a as executing. Entering a leased or
// poisoned region fails. The returned span is nil for unregistered memory.
func (m *Memory) enter(a isa.Addr) (*span, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inBounds(a) {
		return nil, fmt.Errorf("%w: enter %s", ErrOutOfBounds, a)
	}
	sp := m.find(a)
	if sp == nil {
		return nil, nil
	}
	switch {
	case sp.lease != nil:
		return nil, fmt.Errorf("%w: %s is being rewritten", ErrRegionBusy, sp.label())
	case sp.poisoned:
		return nil, fmt.Errorf("%w: %s", ErrRegionPoisoned, sp.label())
	}
	sp.running++
	return sp, nil
}

func (m *Memory) leave(sp *span) {
	if sp == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sp.running > 0 {
		sp.running--
	}
}

func (s *span) label() string {
	if s.name == "" {
		return "region at " + s.base.String()
	}
	return "region " + s.name
}
