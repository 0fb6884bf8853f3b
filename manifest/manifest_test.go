package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/cellemit/vm"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[machine]
memory = 8192
stack = 512
step-limit = 5000

[data]
base = 32
cells = 16

[log]
verbosity = 2
file = "cellemit.log"

[store]
path = "/var/lib/cellemit/images.db"

[[region]]
name = "hook"
capacity = 16

[[region]]
name = "filter"
capacity = 8
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Machine.Memory != 8192 || m.Machine.Stack != 512 || *m.Machine.StepLimit != 5000 {
		t.Errorf("machine = %+v", m.Machine)
	}
	if m.DataBase() != 32 || m.Data.Cells != 16 {
		t.Errorf("data = %+v", m.Data)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if p := m.LogPath(); p == nil || *p != filepath.Join(m.Dir, "cellemit.log") {
		t.Errorf("log path = %v", p)
	}
	if m.StorePath() != "/var/lib/cellemit/images.db" {
		t.Errorf("store path = %q", m.StorePath())
	}
	if len(m.Regions) != 2 || m.Regions[0].Name != "hook" || m.Regions[1].Capacity != 8 {
		t.Errorf("regions = %+v", m.Regions)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Machine.Memory != DefaultMemoryCells {
		t.Errorf("default memory = %d, want %d", m.Machine.Memory, DefaultMemoryCells)
	}
	if m.Machine.Stack != vm.DefaultStackCells {
		t.Errorf("default stack = %d, want %d", m.Machine.Stack, vm.DefaultStackCells)
	}
	if *m.Machine.StepLimit != vm.DefaultStepLimit {
		t.Errorf("default step limit = %d, want %d", *m.Machine.StepLimit, vm.DefaultStepLimit)
	}
	if m.StorePath() != filepath.Join(m.Dir, DefaultStorePath) {
		t.Errorf("default store path = %q", m.StorePath())
	}
	if m.LogPath() != nil {
		t.Errorf("default log path = %q, want stderr", *m.LogPath())
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"syntax", "[machine", "parse error"},
		{"unknown section", "[project]\nname = \"x\"", "invalid manifest"},
		{"unknown field", "[machine]\ncores = 4", "invalid manifest"},
		{"wrong type", "[machine]\nmemory = \"big\"", "invalid manifest"},
		{"negative memory", "[machine]\nmemory = -1", "invalid manifest"},
		{"verbosity out of range", "[log]\nverbosity = 9", "invalid manifest"},
		{"region too small", "[[region]]\nname = \"r\"\ncapacity = 2", "invalid manifest"},
		{"region bad name", "[[region]]\nname = \"1r\"\ncapacity = 4", "invalid manifest"},
		{"region without name", "[[region]]\ncapacity = 4", "invalid manifest"},
		{"duplicate region", "[[region]]\nname = \"r\"\ncapacity = 4\n[[region]]\nname = \"r\"\ncapacity = 4", "declared twice"},
		{"stack larger than memory", "[machine]\nmemory = 100\nstack = 200", "does not fit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.content))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Parse error = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[data]\nbase = 64\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.DataBase() != 64 {
		t.Errorf("data base = %d, want 64", m.DataBase())
	}
	abs, _ := filepath.Abs(dir)
	if m.Dir != abs {
		t.Errorf("dir = %q, want %q", m.Dir, abs)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no cellemit.toml exists")
	}
}

func TestMemoryFromManifest(t *testing.T) {
	m, err := Parse([]byte("[machine]\nmemory = 512\nstack = 64\n[[region]]\nname = \"hook\"\ncapacity = 4\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	mem, err := m.NewMemory()
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if mem.Size() != 512 || mem.StackBase() != 512-64 {
		t.Errorf("memory = %d cell(s), stack at %s", mem.Size(), mem.StackBase())
	}
	if err := m.ReserveRegions(mem); err != nil {
		t.Fatalf("ReserveRegions: %v", err)
	}
	got, err := vm.NewMachine(mem, m.MachineOptions()...).Call("hook")
	if err != nil {
		t.Fatalf("Call(hook): %v", err)
	}
	if got != 0 {
		t.Errorf("stub returned %d, want 0", got)
	}
	if err := m.ReserveRegions(mem); !errors.Is(err, vm.ErrDuplicateName) {
		t.Errorf("second ReserveRegions = %v, want ErrDuplicateName", err)
	}
}

func TestStepLimitFromManifest(t *testing.T) {
	tests := []struct {
		name string
		toml string
		want int
	}{
		{"unset", "", vm.DefaultStepLimit},
		{"explicit", "[machine]\nstep-limit = 5000\n", 5000},
		{"disabled", "[machine]\nstep-limit = 0\n", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.toml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			mem, err := m.NewMemory()
			if err != nil {
				t.Fatalf("NewMemory: %v", err)
			}
			if got := vm.NewMachine(mem, m.MachineOptions()...).StepLimit(); got != tt.want {
				t.Errorf("StepLimit = %d, want %d", got, tt.want)
			}
		})
	}
}
