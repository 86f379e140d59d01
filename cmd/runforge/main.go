// Package main is the entry point for the runforge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/bargom/runforge/cmd/runforge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
