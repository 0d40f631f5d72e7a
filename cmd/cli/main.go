// Package main is the entry point for the terrain-build CLI.
package main

import (
	"os"

	"terrain-build/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
