package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradefabric/gateway/internal/config"
	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/httpapi"
	"github.com/tradefabric/gateway/internal/logx"
	"github.com/tradefabric/gateway/internal/marketdata"
	"github.com/tradefabric/gateway/internal/model"
	"github.com/tradefabric/gateway/internal/orchestrator"
	"github.com/tradefabric/gateway/internal/portfolio"
	"github.com/tradefabric/gateway/internal/venue"
	"github.com/tradefabric/gateway/internal/wshub"

	_ "github.com/tradefabric/gateway/internal/venue/hyperliquid"
	_ "github.com/tradefabric/gateway/internal/venue/lighter"
	_ "github.com/tradefabric/gateway/internal/venue/tradexyz"
)

// serveCmd starts the gateway's full process: Event Bus, venue
// adapters, Orchestrator, Portfolio and Market-Data aggregators, the
// Client WebSocket Hub, and the REST/WS HTTP server. Grounded on
// cmd/cryptorun/monitor_main.go's listen-then-wait-for-signal-then-
// graceful-shutdown shape, generalized from a single mux handler to
// the gateway's multi-component lifecycle.
func serveCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP/WS server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(ctx)
		},
	}
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logx.New(cfg.LogLevel, nil)
	log.Logger = logger

	var broker eventbus.Broker
	if cfg.Broker.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:         cfg.Broker.Addr,
			Password:     cfg.Broker.Password,
			DB:           cfg.Broker.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		broker = eventbus.NewRedisBroker(client, cfg.Broker.Prefix)
		logger.Info().Str("addr", cfg.Broker.Addr).Msg("redis broker configured")
	}

	bus := eventbus.New(broker, logx.Component(logger, "eventbus"))

	reg := prometheus.NewRegistry()
	orch := orchestrator.New(bus, reg, logx.Component(logger, "orchestrator"))

	for name, vcfg := range cfg.Venues {
		if !vcfg.Enabled {
			continue
		}
		v := model.Venue(name)
		if !v.Valid() {
			return fmt.Errorf("unknown venue in config: %s", name)
		}
		adapterCfg := venue.Config{
			Venue: v, RESTBaseURL: vcfg.RESTBaseURL, WSURL: vcfg.WSURL,
			HeartbeatEvery: vcfg.HeartbeatEvery, ReconnectBase: vcfg.ReconnectBase,
			ReconnectCap: vcfg.ReconnectCap, MaxAttempts: vcfg.MaxAttempts,
		}
		adapter, err := venue.DefaultRegistry.Build(v, adapterCfg, bus, logx.ForVenue(logger, name))
		if err != nil {
			return fmt.Errorf("build adapter for %s: %w", name, err)
		}
		orch.AddVenue(adapter)
	}

	pf := portfolio.New(bus, logx.Component(logger, "portfolio"))
	pf.SetVenueSource(orch)
	md := marketdata.New(bus, logx.Component(logger, "marketdata"))
	hub := wshub.New(bus, md, pf, logx.Component(logger, "wshub"))

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.Server.Host
	httpCfg.Port = cfg.Server.Port
	httpCfg.RequestTimeout = cfg.Server.RequestTimeout
	httpCfg.AllowedOrigins = cfg.Server.CORSOrigins
	server := httpapi.NewServer(httpCfg, orch, pf, md, hub, logx.Component(logger, "httpapi"))

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := pf.Start(ctx); err != nil {
		return fmt.Errorf("start portfolio aggregator: %w", err)
	}
	if err := md.Start(ctx); err != nil {
		return fmt.Errorf("start market data aggregator: %w", err)
	}
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("start websocket hub: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", fmt.Sprintf("%s:%d", httpCfg.Host, httpCfg.Port)).Msg("gateway listening")
		if err := server.Start(); err != nil {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("http server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownAll(shutdownCtx, logger, server, hub, md, pf, orch)
	return nil
}

// shutdownAll tears components down in the reverse order they were
// started, logging but not aborting on individual failures so every
// component gets a chance to release its resources.
func shutdownAll(ctx context.Context, logger zerolog.Logger, server *httpapi.Server, hub *wshub.Hub, md *marketdata.Aggregator, pf *portfolio.Aggregator, orch *orchestrator.Orchestrator) {
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	if err := hub.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("websocket hub shutdown error")
	}
	if err := md.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("market data aggregator shutdown error")
	}
	if err := pf.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("portfolio aggregator shutdown error")
	}
	if err := orch.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("orchestrator shutdown error")
	}
	logger.Info().Msg("gateway shutdown complete")
}
