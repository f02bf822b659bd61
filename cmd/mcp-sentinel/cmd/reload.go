package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Trigger a hot reload of a running gateway's config",
	Long: `Ask a running gateway to re-read its config file, rebuild the
capability route map, and reconcile its backend set without restarting
(§8 reconciliation: add/remove/restart backends, then rebuild routes).

Examples:
  mcp-sentinel reload
  mcp-sentinel --config /path/to/mcp-sentinel.yaml reload`,
	RunE: runReload,
}

func init() {
	rootCmd.AddCommand(reloadCmd)
}

type reloadResponse struct {
	Added   []string          `json:"added"`
	Removed []string          `json:"removed"`
	Changed []string          `json:"changed"`
	Errors  map[string]string `json:"errors"`
}

func runReload(cmd *cobra.Command, _ []string) error {
	addr, err := managementAddr()
	if err != nil {
		return err
	}

	body, err := postManagementAPI(addr, "/api/v1/reload")
	if err != nil {
		return err
	}

	var resp reloadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode reload response: %w", err)
	}

	fmt.Printf("reload complete: %d added, %d removed, %d changed\n",
		len(resp.Added), len(resp.Removed), len(resp.Changed))
	for _, name := range resp.Added {
		fmt.Printf("  + %s\n", name)
	}
	for _, name := range resp.Removed {
		fmt.Printf("  - %s\n", name)
	}
	for _, name := range resp.Changed {
		fmt.Printf("  ~ %s\n", name)
	}
	for name, msg := range resp.Errors {
		fmt.Printf("  ! %s: %s\n", name, msg)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("reload reported %d backend error(s)", len(resp.Errors))
	}
	return nil
}
