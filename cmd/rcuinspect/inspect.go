// inspect.go implements the default 'rcuinspect' report command.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// flavor names one of this module's RCU/HPREF flavor packages, per spec
// §6's "flavors are selected at link time by naming convention; each
// flavor is its own namespace so multiple flavors coexist in one
// process."
type flavor struct {
	name string // as named in spec.md (§4.5, §4.6, §4.7)
	dir  string // package directory relative to the module root
}

var flavors = []flavor{
	{name: "percpugp (per-CPU-counter RCU)", dir: "rcu/percpugp"},
	{name: "qsbr (quiescent-state-based RCU)", dir: "rcu/qsbr"},
	{name: "hpref (hazard pointers + refcounts)", dir: "hpref"},
}

// inspectCommand parses the flags, loads and parses go.mod, and prints
// one line per known flavor package: present or missing, and the fully
// qualified import path it resolves to.
func inspectCommand(args []string) error {
	fs := flag.NewFlagSet("rcuinspect", flag.ContinueOnError)
	modPath := fs.String("mod", "go.mod", "path to the go.mod file to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := os.ReadFile(*modPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", *modPath, err)
	}

	mf, err := modfile.Parse(*modPath, data, nil)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", *modPath, err)
	}
	if mf.Module == nil {
		return fmt.Errorf("%s has no module directive", *modPath)
	}

	root := filepath.Dir(*modPath)
	modulePath := mf.Module.Mod.Path

	fmt.Printf("module: %s\n", modulePath)
	fmt.Printf("go:     %s\n", goDirective(mf))
	fmt.Println("flavors:")
	for _, fl := range flavors {
		present := dirExists(filepath.Join(root, fl.dir))
		status := "missing"
		if present {
			status = "present"
		}
		fmt.Printf("  %-38s %-8s %s\n", fl.name, status, filepath.ToSlash(filepath.Join(modulePath, fl.dir)))
	}

	return nil
}

func goDirective(mf *modfile.File) string {
	if mf.Go == nil {
		return "unspecified"
	}
	return mf.Go.Version
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
