// Package cmd provides the CLI commands for the aggregation gateway.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diaz3618/mcp-sentinel/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcp-sentinel",
	Short: "mcp-sentinel - MCP aggregation gateway",
	Long: `mcp-sentinel fans in many backend MCP servers — stdio subprocesses,
SSE endpoints, and streamable-HTTP endpoints — and aggregates their tool,
resource, and prompt catalogs behind one authorization and audit boundary.

Configuration is loaded from mcp-sentinel.yaml in the current directory,
$HOME/.mcp-sentinel/, or /etc/mcp-sentinel/.

Environment variables override config values with the MCP_SENTINEL_ prefix.
Example: MCP_SENTINEL_SERVER_HTTP_ADDR=:9090

Commands:
  run       Start the gateway and its management API
  reload    Trigger a config reload on a running gateway
  status    Print a running gateway's backend status
  version   Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcp-sentinel.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
