package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

// Execute builds the gateway's root command and runs it to completion,
// grounded on cmd/cprotocol/root.go's minimal Execute(ctx) shape.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Unified perpetuals-futures trading gateway",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to gateway.yaml (defaults to built-in config)")

	root.AddCommand(serveCmd(ctx))
	root.AddCommand(healthCmd(ctx))

	log.Info().Msg("gateway starting")
	return root.ExecuteContext(ctx)
}
