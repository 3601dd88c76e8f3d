package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the PawHub CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "pawhub",
		Short:        "PawHub API server and maintenance tools",
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewJobsCmd())

	return cmd
}
