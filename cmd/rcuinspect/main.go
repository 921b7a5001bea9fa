// Package main implements the rcuinspect CLI tool.
//
// rcuinspect reports which RCU/HPREF flavor packages this module
// currently builds: it parses this repository's own go.mod with
// golang.org/x/mod/modfile and checks each known flavor's package
// directory for presence, the way cmd/racedetector's build step parses
// a target module's go.mod before instrumenting it, just pointed at
// this repo instead of an external one.
//
// Usage:
//
//	rcuinspect                 # report flavors in the current module
//	rcuinspect -mod path/to/go.mod
package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("rcuinspect version %s\n", version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	if err := inspectCommand(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`rcuinspect - report this module's RCU/HPREF flavor build targets

USAGE:
    rcuinspect [-mod path/to/go.mod]

EXAMPLES:
    # Inspect the go.mod in the current directory
    rcuinspect

    # Inspect a go.mod elsewhere
    rcuinspect -mod ../other-checkout/go.mod

ABOUT:
    rcuinspect parses a go.mod file with golang.org/x/mod/modfile and
    reports, for each known flavor package (rcu/qsbr, rcu/percpugp,
    hpref), whether its directory is present under the module root and
    what fully-qualified import path it resolves to given the module's
    declared path. This is a read-only report: it never modifies go.mod.
`)
}
