// Package main is the entry point for modrt.
// This is a thin wrapper around the cli package.
package main

import (
	"os"

	"github.com/zot/modrt/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
