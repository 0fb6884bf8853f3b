package static

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/cellemit/isa"
)

// ImageVersion is the current linked image format version.
const ImageVersion uint16 = 1

var (
	ErrDataFull        = errors.New("data segment full")
	ErrRoutineOpen     = errors.New("routine still open")
	ErrNoRoutine       = errors.New("no open routine")
	ErrDuplicateName   = errors.New("duplicate routine")
	ErrSiteMoved       = errors.New("emission site moved")
	ErrReserveTooSmall = errors.New("routine exceeds its reservation")
	ErrImageLayout     = errors.New("bad image layout")
)

// ---------------------------------------------------------------------------
// Program: data segment, code segment and the instruction stream sink
// ---------------------------------------------------------------------------

// Program is the output of a translation. The data segment starts at
// DataBase and holds DataCells cells; the code segment follows it.
type Program struct {
	dataBase isa.Addr
	data     []isa.Cell // fixed length; never reallocated
	dataUsed int
	code     []isa.Cell
	scope    *Scope
	globals  []GlobalInfo
	routines []RoutineInfo
	current  *RoutineInfo
	open     *Block
}

// GlobalInfo names one global of a linked image.
type GlobalInfo struct {
	Name string
	Addr isa.Addr
}

// RoutineInfo names one routine of a linked image. Capacity includes any
// reserved padding after the routine body.
type RoutineInfo struct {
	Name     string
	Base     isa.Addr
	Capacity int
}

// EntryPoint returns the routine's first cell.
func (r RoutineInfo) EntryPoint() isa.Addr {
	return r.Base
}

// NewProgram creates an empty program with a data segment of dataCells cells
// at dataBase.
func NewProgram(dataBase isa.Addr, dataCells int) *Program {
	if dataCells < 0 {
		dataCells = 0
	}
	return &Program{
		dataBase: dataBase,
		data:     make([]isa.Cell, dataCells),
		scope:    newScope(),
	}
}

// Scope returns the program's symbol table.
func (p *Program) Scope() *Scope {
	return p.scope
}

// CodeBase returns the address of the first code cell.
func (p *Program) CodeBase() isa.Addr {
	return p.dataBase.Add(len(p.data))
}

// Here returns the address the next appended cell will occupy.
func (p *Program) Here() isa.Addr {
	return p.CodeBase().Add(len(p.code))
}

// DeclareGlobal allocates one data cell initialized to init.
func (p *Program) DeclareGlobal(name string, init isa.Cell) (isa.Addr, error) {
	if p.dataUsed >= len(p.data) {
		return 0, fmt.Errorf("%w: %d cell(s), declaring %s", ErrDataFull, len(p.data), name)
	}
	addr := p.dataBase.Add(p.dataUsed)
	if err := p.scope.declareGlobal(name, addr, &p.data[p.dataUsed]); err != nil {
		return 0, err
	}
	p.data[p.dataUsed] = init
	p.dataUsed++
	p.globals = append(p.globals, GlobalInfo{Name: name, Addr: addr})
	return addr, nil
}

// Append writes cells at the end of the code segment and returns the address
// of the first one. This is the instruction stream sink.
func (p *Program) Append(cells ...isa.Cell) isa.Addr {
	at := p.Here()
	p.code = append(p.code, cells...)
	return at
}

// BeginRoutine starts a routine at the current position and opens a local
// frame in the scope.
func (p *Program) BeginRoutine(name string) error {
	if p.current != nil {
		return fmt.Errorf("%w: %s", ErrRoutineOpen, p.current.Name)
	}
	for _, r := range p.routines {
		if r.Name == name {
			return fmt.Errorf("%w: %s", ErrDuplicateName, name)
		}
	}
	p.current = &RoutineInfo{Name: name, Base: p.Here()}
	p.scope.Push()
	return nil
}

// EndRoutine closes the current routine. If reserve is larger than the
// routine body the rest is padded with NOP so the region can later be
// rewritten with a longer sequence.
func (p *Program) EndRoutine(reserve int) (RoutineInfo, error) {
	if p.current == nil {
		return RoutineInfo{}, ErrNoRoutine
	}
	if p.open != nil {
		return RoutineInfo{}, fmt.Errorf("%w: block still open in %s", ErrRoutineOpen, p.current.Name)
	}
	r := *p.current
	length := int(p.Here() - r.Base)
	if reserve > 0 && length > reserve {
		return RoutineInfo{}, fmt.Errorf("%w: %s is %d cell(s), reserved %d", ErrReserveTooSmall, r.Name, length, reserve)
	}
	for ; length < reserve; length++ {
		p.Append(isa.Cell(isa.OpNOP))
	}
	r.Capacity = length
	p.routines = append(p.routines, r)
	p.current = nil
	if err := p.scope.Pop(); err != nil {
		return RoutineInfo{}, err
	}
	log.Debugf("routine %s: %d cell(s) at %s", r.Name, r.Capacity, r.Base)
	return r, nil
}

// Current returns the routine being translated.
func (p *Program) Current() (RoutineInfo, bool) {
	if p.current == nil {
		return RoutineInfo{}, false
	}
	return *p.current, true
}

// Routines returns every closed routine in declaration order.
func (p *Program) Routines() []RoutineInfo {
	return append([]RoutineInfo(nil), p.routines...)
}

// Link produces the loadable image. Data is laid out first, then code.
func (p *Program) Link() (*Image, error) {
	if p.current != nil {
		return nil, fmt.Errorf("%w: %s", ErrRoutineOpen, p.current.Name)
	}
	cells := make([]isa.Cell, 0, len(p.data)+len(p.code))
	cells = append(cells, p.data...)
	cells = append(cells, p.code...)
	return &Image{
		Version:  ImageVersion,
		Base:     p.dataBase,
		Cells:    cells,
		Globals:  append([]GlobalInfo(nil), p.globals...),
		Routines: p.Routines(),
	}, nil
}

// ---------------------------------------------------------------------------
// Image: a linked program
// ---------------------------------------------------------------------------

// Image is a linked program ready to be loaded at Base.
type Image struct {
	Version  uint16
	Base     isa.Addr
	Cells    []isa.Cell
	Globals  []GlobalInfo
	Routines []RoutineInfo
}

// End returns the address one past the image's last cell.
func (img *Image) End() isa.Addr {
	return img.Base.Add(len(img.Cells))
}

// CheckLayout verifies that names are unique, that every global and
// routine lies inside the image and that no two routines overlap.
func (img *Image) CheckLayout() error {
	if img.Base < 0 {
		return fmt.Errorf("%w: negative base %s", ErrImageLayout, img.Base)
	}
	globals := make(map[string]bool, len(img.Globals))
	for _, g := range img.Globals {
		if globals[g.Name] {
			return fmt.Errorf("%w: global %s listed twice", ErrImageLayout, g.Name)
		}
		globals[g.Name] = true
		if g.Addr < img.Base || g.Addr >= img.End() {
			return fmt.Errorf("%w: global %s at %s lies outside the image", ErrImageLayout, g.Name, g.Addr)
		}
	}
	routines := make(map[string]bool, len(img.Routines))
	for _, r := range img.Routines {
		if routines[r.Name] {
			return fmt.Errorf("%w: routine %s listed twice", ErrImageLayout, r.Name)
		}
		routines[r.Name] = true
		if r.Capacity < 0 || r.Base < img.Base || r.Base.Add(r.Capacity) > img.End() {
			return fmt.Errorf("%w: routine %s lies outside the image", ErrImageLayout, r.Name)
		}
	}
	sorted := append([]RoutineInfo(nil), img.Routines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	for i := 1; i < len(sorted); i++ {
		if prev := sorted[i-1]; prev.Base.Add(prev.Capacity) > sorted[i].Base {
			return fmt.Errorf("%w: routines %s and %s overlap", ErrImageLayout, prev.Name, sorted[i].Name)
		}
	}
	return nil
}

// Routine returns the named routine.
func (img *Image) Routine(name string) (RoutineInfo, bool) {
	for _, r := range img.Routines {
		if r.Name == name {
			return r, true
		}
	}
	return RoutineInfo{}, false
}

// Global returns the named global.
func (img *Image) Global(name string) (GlobalInfo, bool) {
	for _, g := range img.Globals {
		if g.Name == name {
			return g, true
		}
	}
	return GlobalInfo{}, false
}

// RoutineCells returns the cells of the named routine.
func (img *Image) RoutineCells(name string) ([]isa.Cell, bool) {
	r, ok := img.Routine(name)
	if !ok {
		return nil, false
	}
	start := int(r.Base - img.Base)
	return img.Cells[start : start+r.Capacity], true
}
