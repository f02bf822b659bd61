package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/diaz3618/mcp-sentinel/internal/config"
	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a running gateway's backend status",
	Long: `Query the management API of a running gateway and print each
backend's phase, latency, and capability counts.

Examples:
  mcp-sentinel status
  mcp-sentinel --config /path/to/mcp-sentinel.yaml status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusResponse struct {
	Backends []backend.StatusRecord `json:"backends"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr, err := managementAddr()
	if err != nil {
		return err
	}

	body, err := getManagementAPI(addr, "/api/v1/status")
	if err != nil {
		return err
	}

	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}

	if len(resp.Backends) == 0 {
		fmt.Println("no backends configured")
		return nil
	}
	for _, b := range resp.Backends {
		fmt.Printf("%-20s %-14s tools=%d resources=%d prompts=%d latency=%s\n",
			b.Name, b.Phase, b.Capabilities.Tools, b.Capabilities.Resources, b.Capabilities.Prompts, b.LastLatency)
		if b.LastError != "" {
			fmt.Printf("%-20s   last_error=%s\n", "", b.LastError)
		}
	}
	return nil
}

// managementAddr loads the config file to find the running gateway's
// management API address, without applying dev defaults or validating —
// a status/reload call against a partially-configured instance should
// still be able to reach it.
func managementAddr() (string, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	addr := cfg.Server.HTTPAddr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	if addr[0] == ':' {
		addr = "127.0.0.1" + addr
	}
	return addr, nil
}

var managementHTTPClient = &http.Client{Timeout: 10 * time.Second}

func getManagementAPI(addr, path string) ([]byte, error) {
	resp, err := managementHTTPClient.Get("http://" + addr + path)
	if err != nil {
		return nil, fmt.Errorf("connect to management API at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read management API response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("management API %s returned %s: %s", path, resp.Status, body)
	}
	return body, nil
}

func postManagementAPI(addr, path string) ([]byte, error) {
	resp, err := managementHTTPClient.Post("http://"+addr+path, "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("connect to management API at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read management API response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("management API %s returned %s: %s", path, resp.Status, body)
	}
	return body, nil
}
