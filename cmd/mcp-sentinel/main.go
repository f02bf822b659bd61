// Command mcp-sentinel runs the MCP aggregation gateway.
package main

import "github.com/diaz3618/mcp-sentinel/cmd/mcp-sentinel/cmd"

func main() {
	cmd.Execute()
}
