package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dogkeeper886/mem0/internal/models"
)

func init() {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running memory server",
		Args:  cobra.NoArgs,
		RunE:  runHealth,
	}
	cmd.Flags().String("url", "", "Server URL (default: $MEMORY_SERVER_URL)")

	RootCmd.AddCommand(cmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		url = cfg.MemoryServerURL
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(url, "/") + "/health")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	var health models.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	b, _ := json.MarshalIndent(health, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(b))

	if health.Status != "healthy" {
		return fmt.Errorf("server is %s", health.Status)
	}
	return nil
}
