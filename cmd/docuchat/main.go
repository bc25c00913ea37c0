// Package main provides the entry point for the docuchat server CLI.
package main

import (
	"os"

	"github.com/docuchat/docuchat/cmd/docuchat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
