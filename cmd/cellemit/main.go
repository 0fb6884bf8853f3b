// cellemit CLI - assemble, patch, run and catalog cell machine images
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/cellemit/manifest"
)

func main() {
	verbosity := flag.Int("v", -99, "Log verbosity (-4 none .. 2 debug); overrides cellemit.toml")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cellemit [options] <command> [arguments]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  build [-o out.img] [-save name] file.asm   Assemble a program into an image\n")
		fmt.Fprintf(os.Stderr, "  run [-patch file] image routine [args...]  Load an image and call a routine\n")
		fmt.Fprintf(os.Stderr, "  patch [-o out.img] image file.patch        Apply patches to an image\n")
		fmt.Fprintf(os.Stderr, "  dis image [routine]                        Disassemble an image\n")
		fmt.Fprintf(os.Stderr, "  store save|load|list|rm ...                Manage the image catalog\n")
		fmt.Fprintf(os.Stderr, "\nAn image argument is a file path or store:<name>.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	m, err := loadManifest()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		os.Exit(1)
	}
	if *verbosity != -99 {
		m.Log.Verbosity = *verbosity
	}
	commonlog.Configure(m.Log.Verbosity, m.LogPath())

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	switch args[0] {
	case "build":
		err = handleBuildCommand(args[1:], m)
	case "run":
		err = handleRunCommand(args[1:], m)
	case "patch":
		err = handlePatchCommand(args[1:], m)
	case "dis":
		err = handleDisCommand(args[1:], m)
	case "store":
		err = handleStoreCommand(args[1:], m)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadManifest finds cellemit.toml above the working directory, or falls
// back to the defaults.
func loadManifest() (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m != nil {
		return m, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return manifest.Default(wd), nil
}
