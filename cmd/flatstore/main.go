// Package main provides the entry point for the flatstore CLI tool.
// flatstore reads and edits locked JSON documents from the command line.
package main

import (
	"github.com/tmeurs/flatstore/internal/cli"
)

// Version information set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cli.SetVersion(version, commit, date)
	cli.Execute()
}
