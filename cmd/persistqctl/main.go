// Command persistqctl is a small operator tool for inspecting and poking
// at a persistq queue file from the shell.
package main

import (
	"os"

	"github.com/accurit/persistq/cmd/persistqctl/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args))
}
