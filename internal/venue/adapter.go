// Package venue defines the uniform capability interface every
// per-venue adapter satisfies (spec.md §4.1), plus the shared
// machinery (registry, reconnect loop, local order validation,
// simulated exchange) every adapter is built from.
//
// Grounded on src/infrastructure/datafacade/interfaces/facade.go's
// VenueAdapter interface, extended from market-data-only reads to the
// full lifecycle + trading + streaming surface the spec requires.
package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefabric/gateway/internal/model"
)

// SymbolInfo carries the venue-local trading rules for one symbol.
type SymbolInfo struct {
	Symbol    model.Symbol
	TickSize  decimal.Decimal
	MinSize   decimal.Decimal
	MaxSize   decimal.Decimal
}

// Adapter is the capability every per-venue module must implement.
// Every method that performs I/O suspends at a network boundary
// (spec.md §5) and must honor ctx cancellation/timeout.
type Adapter interface {
	Venue() model.Venue

	// Lifecycle
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error

	// Health
	HealthCheck(ctx context.Context) bool
	WebSocketHealthCheck(ctx context.Context) bool
	Status() model.VenueStatus

	// Trading
	PlaceOrder(ctx context.Context, order model.Order) (model.Order, error)
	CancelOrder(ctx context.Context, venueOrderID string) (bool, error)
	GetOrderStatus(ctx context.Context, venueOrderID string) (*model.Order, error)

	// Read-side
	GetPositions(ctx context.Context) ([]model.Position, error)
	GetBalances(ctx context.Context) ([]model.Balance, error)
	GetMarketData(ctx context.Context, symbol model.Symbol) (*model.MarketData, error)
	GetRecentTrades(ctx context.Context, symbol model.Symbol, limit int) ([]model.Trade, error)
	GetSymbols(ctx context.Context) ([]model.Symbol, error)
	GetSymbolInfo(ctx context.Context, symbol model.Symbol) (*SymbolInfo, error)

	// Streaming (idempotent)
	SubscribeMarketData(ctx context.Context, symbols []model.Symbol) error
	UnsubscribeMarketData(ctx context.Context, symbols []model.Symbol) error
	SubscribeOrderUpdates(ctx context.Context) error
	SubscribePositionUpdates(ctx context.Context) error
	SubscribeBalanceUpdates(ctx context.Context) error
}

// Config is the per-venue construction configuration, supplied by
// internal/config and consumed by each venue package's constructor.
type Config struct {
	Venue          model.Venue
	RESTBaseURL    string
	WSURL          string
	HeartbeatEvery time.Duration
	ReconnectBase  time.Duration
	ReconnectCap   time.Duration
	MaxAttempts    int
}

// DefaultConfig fills the timing parameters spec.md §4.1/§6 specify
// when a venue section omits them.
func DefaultConfig(v model.Venue, restURL, wsURL string) Config {
	return Config{
		Venue: v, RESTBaseURL: restURL, WSURL: wsURL,
		HeartbeatEvery: 15 * time.Second,
		ReconnectBase:  500 * time.Millisecond,
		ReconnectCap:   60 * time.Second,
		MaxAttempts:    10,
	}
}
