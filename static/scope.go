package static

import (
	"errors"
	"fmt"

	"github.com/chazu/cellemit/emit"
	"github.com/chazu/cellemit/isa"
)

var (
	ErrDuplicateSymbol = errors.New("duplicate symbol")
	ErrNoFrame         = errors.New("no local frame")
)

// Scope is the symbol classification service of a program: it knows, for
// every visible name, whether it is a fixed global or a frame-relative
// local. It implements emit.SymbolTable.
type Scope struct {
	globals map[string]*global
	frames  []map[string]emit.Symbol
}

type global struct {
	addr  isa.Addr
	value *isa.Cell // the program's data cell
}

func newScope() *Scope {
	return &Scope{globals: make(map[string]*global)}
}

func (s *Scope) declareGlobal(name string, addr isa.Addr, value *isa.Cell) error {
	if _, ok := s.globals[name]; ok {
		return fmt.Errorf("%w: global %s", ErrDuplicateSymbol, name)
	}
	s.globals[name] = &global{addr: addr, value: value}
	return nil
}

// Push opens a new local frame.
func (s *Scope) Push() {
	s.frames = append(s.frames, make(map[string]emit.Symbol))
}

// Pop closes the innermost local frame.
func (s *Scope) Pop() error {
	if len(s.frames) == 0 {
		return ErrNoFrame
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

// Depth returns the number of open local frames.
func (s *Scope) Depth() int {
	return len(s.frames)
}

// DeclareLocal binds name to a frame offset in the innermost frame. Locals
// live below the frame pointer (negative offsets); arguments start at +4.
func (s *Scope) DeclareLocal(name string, offset int) error {
	if len(s.frames) == 0 {
		return fmt.Errorf("%w: local %s outside a routine", ErrNoFrame, name)
	}
	frame := s.frames[len(s.frames)-1]
	if _, ok := frame[name]; ok {
		return fmt.Errorf("%w: local %s", ErrDuplicateSymbol, name)
	}
	frame[name] = emit.Symbol{Name: name, Class: isa.Local, Location: isa.Cell(offset)}
	return nil
}

// Symbol implements emit.SymbolTable. Locals shadow globals.
func (s *Scope) Symbol(name string) (emit.Symbol, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if sym, ok := s.frames[i][name]; ok {
			return sym, true
		}
	}
	g, ok := s.globals[name]
	if !ok {
		return emit.Symbol{}, false
	}
	return emit.Symbol{
		Name:     name,
		Class:    isa.Global,
		Location: g.addr.Cell(),
		Value:    *g.value,
		HasValue: true,
	}, true
}

// Classify returns the storage class of name.
func (s *Scope) Classify(name string) (isa.StorageClass, bool) {
	sym, ok := s.Symbol(name)
	return sym.Class, ok
}
