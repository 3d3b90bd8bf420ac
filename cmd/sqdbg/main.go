// Package main is the entry point for sqdbg.
// This is a thin wrapper around the cli package.
package main

import (
	"os"

	"github.com/Shaggythecat/suba-yoku-dbg/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
