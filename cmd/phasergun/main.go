// Package main provides the entry point for the phasergun CLI.
package main

import (
	"os"

	"github.com/phasergun/phasergun/cmd/phasergun/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
