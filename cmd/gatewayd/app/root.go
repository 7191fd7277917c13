// Package app wires the gatewayd CLI's subcommands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:               "gatewayd",
	DisableAutoGenTag: true,
	Short:             "MCP gateway identity, authorization, and discovery plane",
	Long: `gatewayd runs the MCP gateway's identity, authorization, and discovery
plane: OAuth flows against a configured identity provider, the self-signed
token service, the scope policy engine, the access enforcement endpoint
proxies call before forwarding to an MCP server, and the discovery index
behind the tool/server search API.`,
}

// NewRootCmd creates the root gatewayd command.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(serveCmd)
	return rootCmd
}
