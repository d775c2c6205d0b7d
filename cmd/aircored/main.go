// Command aircored hosts an aircore peer: its content index, download
// queue, upload slot manager and hub registry, fronted by a small JSON
// API and driven from the command line via cobra subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/dcwire/aircore/cmd/aircored/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
