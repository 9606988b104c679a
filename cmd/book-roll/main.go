// Package main is the entry point for book-roll CLI.
package main

import (
	"os"

	"github.com/openledgerworks/bookd-automation/cmd/book-roll/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
