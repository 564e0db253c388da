// Package cli defines the cimcp command tree and the MCP tool surface.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is the version of the cimcp CLI.
// Update this constant manually on every release.
const Version = "v0.2.0"

// NewRootCmd creates the root command for cimcp.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "cimcp",
		Short:   "Local code-intelligence service and MCP server",
		Long:    "cimcp indexes source repositories into full-text, vector, and graph stores and answers semantic code queries over MCP.",
		Version: Version,
	}

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newMcpCmd())

	return rootCmd
}
