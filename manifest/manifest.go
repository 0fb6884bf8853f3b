// Package manifest handles cellemit.toml project configuration.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"

	"github.com/chazu/cellemit/isa"
	"github.com/chazu/cellemit/vm"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "cellemit.toml"

// Defaults applied to fields left unset.
const (
	DefaultMemoryCells = 1 << 16
	DefaultStorePath   = ".cellemit/images.db"
)

//go:embed schema.cue
var schemaSource string

// Manifest represents a cellemit.toml project configuration.
type Manifest struct {
	Machine Machine  `toml:"machine"`
	Data    Data     `toml:"data"`
	Log     Log      `toml:"log"`
	Store   Store    `toml:"store"`
	Regions []Region `toml:"region"`

	// Dir is the directory containing the cellemit.toml file (set at load time).
	Dir string `toml:"-"`
}

// Machine sizes the virtual machine.
type Machine struct {
	Memory int `toml:"memory"`
	Stack  int `toml:"stack"`
	// StepLimit is nil when unset; 0 disables the limit.
	StepLimit *int `toml:"step-limit"`
}

// Data places the data segment of assembled programs.
type Data struct {
	Base  int64 `toml:"base"`
	Cells int   `toml:"cells"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Store configures the image catalog.
type Store struct {
	Path string `toml:"path"`
}

// Region is a region reserved in memory before patches are applied.
type Region struct {
	Name     string `toml:"name"`
	Capacity int    `toml:"capacity"`
}

// Default returns the manifest used when no cellemit.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Machine.Memory == 0 {
		m.Machine.Memory = DefaultMemoryCells
	}
	if m.Machine.Stack == 0 {
		m.Machine.Stack = vm.DefaultStackCells
	}
	if m.Machine.StepLimit == nil {
		limit := vm.DefaultStepLimit
		m.Machine.StepLimit = &limit
	}
	if m.Store.Path == "" {
		m.Store.Path = DefaultStorePath
	}
}

// Load parses a cellemit.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes and validates manifest text. Dir is left empty.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	seen := make(map[string]bool)
	for _, r := range m.Regions {
		if seen[r.Name] {
			return nil, fmt.Errorf("invalid manifest: region %s declared twice", r.Name)
		}
		seen[r.Name] = true
	}
	m.applyDefaults()
	if m.Machine.Stack >= m.Machine.Memory {
		return nil, fmt.Errorf("invalid manifest: stack of %d cells does not fit in %d cells of memory", m.Machine.Stack, m.Machine.Memory)
	}
	return &m, nil
}

// Validate checks a decoded TOML document against the embedded CUE schema.
func Validate(doc map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("manifest schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Manifest")).Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}

// FindAndLoad walks up from startDir to find a cellemit.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// StorePath returns the absolute path of the image catalog.
func (m *Manifest) StorePath() string {
	if filepath.IsAbs(m.Store.Path) {
		return m.Store.Path
	}
	return filepath.Join(m.Dir, m.Store.Path)
}

// LogPath returns the log file, or nil to log to stderr.
func (m *Manifest) LogPath() *string {
	if m.Log.File == "" {
		return nil
	}
	p := m.Log.File
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.Dir, p)
	}
	return &p
}

// DataBase returns the data segment base as an address.
func (m *Manifest) DataBase() isa.Addr {
	return isa.Addr(m.Data.Base)
}

// NewMemory creates a memory sized by the manifest.
func (m *Manifest) NewMemory() (*vm.Memory, error) {
	return vm.NewMemory(m.Machine.Memory, m.Machine.Stack)
}

// ReserveRegions reserves the manifest's regions in mem. Call it after
// loading images, which must go to unallocated memory.
func (m *Manifest) ReserveRegions(mem *vm.Memory) error {
	for _, r := range m.Regions {
		if _, err := mem.Reserve(r.Name, r.Capacity); err != nil {
			return fmt.Errorf("region %s: %w", r.Name, err)
		}
	}
	return nil
}

// MachineOptions returns the machine options the manifest configures.
func (m *Manifest) MachineOptions() []vm.Option {
	return []vm.Option{vm.WithStepLimit(*m.Machine.StepLimit)}
}
