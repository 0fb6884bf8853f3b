package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/cellemit/compiler"
	"github.com/chazu/cellemit/isa"
	"github.com/chazu/cellemit/manifest"
	"github.com/chazu/cellemit/static"
	"github.com/chazu/cellemit/store"
	"github.com/chazu/cellemit/vm"
	"github.com/chazu/cellemit/vm/dist"
)

const storePrefix = "store:"

// handleBuildCommand processes the `cellemit build` subcommand.
// Usage:
//
//	cellemit build prog.asm                # prog.img
//	cellemit build -o out.img prog.asm     # custom output
//	cellemit build -save prog prog.asm     # also store as "prog"
func handleBuildCommand(args []string, m *manifest.Manifest) error {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	output := fs.String("o", "", "Output image path (default: source name with .img)")
	save := fs.String("save", "", "Also save the image in the store under this name")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: cellemit build [-o out.img] [-save name] file.asm")
	}
	src := fs.Arg(0)

	text, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	img, err := compiler.Assemble(string(text), compiler.Options{
		DataBase:  m.DataBase(),
		DataCells: m.Data.Cells,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}

	if *output == "" {
		*output = strings.TrimSuffix(src, ".asm") + ".img"
	}
	if err := writeImage(*output, img); err != nil {
		return err
	}
	fmt.Printf("%s: %d cell(s), %d routine(s)\n", *output, len(img.Cells), len(img.Routines))

	if *save != "" {
		return withStore(m, func(s *store.Store) error {
			e, err := s.Save(*save, img)
			if err == nil {
				fmt.Printf("saved %s (%s)\n", e.Name, e.Digest)
			}
			return err
		})
	}
	return nil
}

// handleRunCommand processes the `cellemit run` subcommand.
func handleRunCommand(args []string, m *manifest.Manifest) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	patchFile := fs.String("patch", "", "Patch file applied before the call")
	fs.Parse(args)
	if fs.NArg() < 2 {
		return fmt.Errorf("usage: cellemit run [-patch file] image routine [args...]")
	}
	img, err := readImage(fs.Arg(0), m)
	if err != nil {
		return err
	}
	var cellArgs []isa.Cell
	for _, a := range fs.Args()[2:] {
		v, err := strconv.ParseInt(a, 0, 64)
		if err != nil {
			return fmt.Errorf("argument %q: %w", a, err)
		}
		cellArgs = append(cellArgs, isa.Cell(v))
	}

	mem, err := loadMemory(m, img)
	if err != nil {
		return err
	}
	if *patchFile != "" {
		if err := applyPatchFile(mem, *patchFile); err != nil {
			return err
		}
	}
	machine := vm.NewMachine(mem, m.MachineOptions()...)
	result, err := machine.Call(fs.Arg(1), cellArgs...)
	if err != nil {
		return err
	}
	fmt.Println(result)
	return nil
}

// handlePatchCommand processes the `cellemit patch` subcommand. The patched
// image keeps the original layout; patches outside it are applied but not
// saved.
func handlePatchCommand(args []string, m *manifest.Manifest) error {
	fs := flag.NewFlagSet("patch", flag.ExitOnError)
	output := fs.String("o", "", "Output image path (default: overwrite the input file)")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: cellemit patch [-o out.img] image file.patch")
	}
	in := fs.Arg(0)
	if *output == "" {
		if strings.HasPrefix(in, storePrefix) {
			return fmt.Errorf("-o is required when patching a stored image")
		}
		*output = in
	}
	img, err := readImage(in, m)
	if err != nil {
		return err
	}
	mem, err := loadMemory(m, img)
	if err != nil {
		return err
	}
	if err := applyPatchFile(mem, fs.Arg(1)); err != nil {
		return err
	}
	cells, err := mem.Slice(img.Base, len(img.Cells))
	if err != nil {
		return err
	}
	patched := *img
	patched.Cells = cells
	return writeImage(*output, &patched)
}

// handleDisCommand processes the `cellemit dis` subcommand.
func handleDisCommand(args []string, m *manifest.Manifest) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: cellemit dis image [routine]")
	}
	img, err := readImage(args[0], m)
	if err != nil {
		return err
	}
	for _, r := range img.Routines {
		if len(args) == 2 && r.Name != args[1] {
			continue
		}
		cells, _ := img.RoutineCells(r.Name)
		fmt.Printf("%s:\n%s\n\n", r.Name, isa.Disassemble(cells, r.Base))
	}
	if len(args) == 2 {
		if _, ok := img.Routine(args[1]); !ok {
			return fmt.Errorf("%w: %s", vm.ErrUnknownRegion, args[1])
		}
	}
	return nil
}

// handleStoreCommand processes the `cellemit store` subcommand.
// Usage:
//
//	cellemit store save <name> <image>
//	cellemit store load <name> <out.img>
//	cellemit store list
//	cellemit store rm <name>
func handleStoreCommand(args []string, m *manifest.Manifest) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: cellemit store [save|load|list|rm] ...")
	}
	return withStore(m, func(s *store.Store) error {
		switch args[0] {
		case "save":
			if len(args) != 3 {
				return fmt.Errorf("usage: cellemit store save <name> <image>")
			}
			img, err := readImageFile(args[2])
			if err != nil {
				return err
			}
			e, err := s.Save(args[1], img)
			if err == nil {
				fmt.Printf("saved %s (%s)\n", e.Name, e.Digest)
			}
			return err
		case "load":
			if len(args) != 3 {
				return fmt.Errorf("usage: cellemit store load <name> <out.img>")
			}
			img, err := s.Load(args[1])
			if err != nil {
				return err
			}
			return writeImage(args[2], img)
		case "list":
			entries, err := s.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%-20s %8d  %s  %s\n", e.Name, e.Cells, e.Digest[:12], e.SavedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		case "rm":
			if len(args) != 2 {
				return fmt.Errorf("usage: cellemit store rm <name>")
			}
			return s.Delete(args[1])
		}
		return fmt.Errorf("unknown store subcommand: %s", args[0])
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func withStore(m *manifest.Manifest, fn func(*store.Store) error) error {
	s, err := store.Open(m.StorePath())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// readImage reads an image from a file or, for store:<name>, the catalog.
func readImage(arg string, m *manifest.Manifest) (*static.Image, error) {
	name, ok := strings.CutPrefix(arg, storePrefix)
	if !ok {
		return readImageFile(arg)
	}
	var img *static.Image
	err := withStore(m, func(s *store.Store) error {
		var err error
		img, err = s.Load(name)
		return err
	})
	return img, err
}

func readImageFile(path string) (*static.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, err := dist.UnmarshalImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func writeImage(path string, img *static.Image) error {
	data, err := dist.MarshalImage(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// loadMemory creates the manifest's memory, loads img and reserves the
// manifest's regions after it.
func loadMemory(m *manifest.Manifest, img *static.Image) (*vm.Memory, error) {
	mem, err := m.NewMemory()
	if err != nil {
		return nil, err
	}
	if err := mem.LoadImage(img); err != nil {
		return nil, err
	}
	if err := m.ReserveRegions(mem); err != nil {
		return nil, err
	}
	return mem, nil
}

func applyPatchFile(mem *vm.Memory, path string) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	patches, err := compiler.ParsePatch(string(text))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	routines, err := compiler.ApplyPatches(mem, patches)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	for i, r := range routines {
		fmt.Fprintf(os.Stderr, "patched %s: %d cell(s) at %s\n", patches[i].Target(), r.Len(), r.EntryPoint())
	}
	return nil
}
