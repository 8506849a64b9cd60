// Command librarysim runs the concurrent library lending simulation.
//
//	librarysim run --patrons 10 --turns 3
//	librarysim run --store postgres --dsn postgres://... --metrics-addr :9090
//	librarysim inventory --snapshot-file library.json
//
// Every flag can also be set in a YAML config file (--config) or through
// LIBRARYSIM_* environment variables, e.g. LIBRARYSIM_SNAPSHOT_FILE.
package main

import (
	"os"
)

var version = "dev" // set by the linker

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
