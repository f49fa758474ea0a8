package marketdata

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/model"
)

// Aggregator wires Cache to the event bus: every market_data_update
// event updates the per-(symbol,venue) table and triggers recompute.
type Aggregator struct {
	cache  *Cache
	bus    *eventbus.Bus
	logger zerolog.Logger
	sub    *eventbus.Subscription
}

func New(bus *eventbus.Bus, logger zerolog.Logger) *Aggregator {
	return &Aggregator{cache: NewCache(), bus: bus, logger: logger.With().Str("component", "marketdata").Logger()}
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.sub = a.bus.Subscribe(eventbus.ChannelMarketData, a.handle)
	return nil
}

func (a *Aggregator) Shutdown(ctx context.Context) error {
	a.bus.Unsubscribe(a.sub)
	return nil
}

func (a *Aggregator) handle(ctx context.Context, ev model.Event) error {
	if ev.MarketData == nil {
		return nil
	}
	a.cache.Update(*ev.MarketData)
	return nil
}

func (a *Aggregator) Aggregate(symbol model.Symbol) (Aggregated, bool) { return a.cache.Aggregate(symbol) }

func (a *Aggregator) Snapshot(symbol model.Symbol) []model.MarketData { return a.cache.Snapshot(symbol) }

func (a *Aggregator) Symbols() []model.Symbol { return a.cache.Symbols() }
