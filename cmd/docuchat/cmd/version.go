package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "0.3.0-dev"

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the docuchat version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("docuchat %s\n", Version)
		},
	}
}
