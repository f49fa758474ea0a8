package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthAddr string

// healthCmd hits a running gateway's health endpoint, grounded on
// cmd_health.go's pattern of a thin CLI wrapper around an existing
// HTTP surface rather than re-implementing the health logic.
func healthCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running gateway's health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthCheck(ctx)
		},
	}
	cmd.Flags().StringVar(&healthAddr, "addr", "http://127.0.0.1:8080", "gateway base address")
	return cmd
}

func runHealthCheck(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, healthAddr+"/api/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", healthAddr, err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway reported unhealthy: %v", body)
	}

	fmt.Printf("gateway healthy: %v\n", body)
	return nil
}
