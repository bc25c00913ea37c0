// Package cmd provides the CLI commands for docuchat.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// NewRootCmd creates the root command for the docuchat CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docuchat",
		Short: "Retrieval-augmented chat backend for documents",
		Long: `docuchat serves a session-scoped document chat API backed by hybrid
retrieval: per-session BM25 keyword indexes fused with semantic vector
search via reciprocal rank fusion.`,
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("docuchat version {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to docuchat.yaml (default: ./docuchat.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewVersionCmd())
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
