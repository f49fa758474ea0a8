package wshub

import (
	"context"
	"time"

	"github.com/tradefabric/gateway/internal/model"
)

// handleOrderEvent routes order_update events to the orders topic,
// grounded on the "Routing rule" paragraph of spec.md §4.5.
func (h *Hub) handleOrderEvent(ctx context.Context, ev model.Event) error {
	if ev.Order == nil {
		return nil
	}
	h.broadcast(TopicOrders, "", serverEnvelope{
		Type: string(model.EventOrderUpdate), Venue: ev.Venue, Data: ev.Order, Timestamp: ev.Ts,
	})
	return nil
}

func (h *Hub) handlePositionEvent(ctx context.Context, ev model.Event) error {
	if ev.Position == nil {
		return nil
	}
	h.broadcast(TopicPositions, "", serverEnvelope{
		Type: string(model.EventPositionUpdate), Venue: ev.Venue, Symbol: ev.Position.Symbol, Data: ev.Position, Timestamp: ev.Ts,
	})
	return nil
}

// handleMarketDataEvent routes market_data_update events to the
// market_data topic, filtered per-connection by symbol.
func (h *Hub) handleMarketDataEvent(ctx context.Context, ev model.Event) error {
	if ev.MarketData == nil {
		return nil
	}
	h.broadcast(TopicMarketData, ev.MarketData.Symbol, serverEnvelope{
		Type: string(model.EventMarketDataUpdate), Venue: ev.Venue, Symbol: ev.MarketData.Symbol, Data: ev.MarketData, Timestamp: ev.Ts,
	})
	return nil
}

// handleSystemEvent routes portfolio-metrics ticks (system_update
// events tagged Component "portfolio") to the portfolio topic. Other
// system events are not forwarded to clients.
func (h *Hub) handleSystemEvent(ctx context.Context, ev model.Event) error {
	if ev.System == nil || ev.System.Component != "portfolio" {
		return nil
	}
	h.broadcast(TopicPortfolio, "", serverEnvelope{
		Type: "portfolio_update", Data: ev.System.Data, Timestamp: ev.Ts,
	})
	return nil
}

// broadcast iterates the subscriber list for topic/symbol under a
// read lock to take a snapshot, then sends outside the lock, grounded
// on spec.md §5's "Client-hub broadcast iterates a snapshot of
// subscribers taken under the lock, then sends outside the lock."
func (h *Hub) broadcast(topic string, symbol model.Symbol, env serverEnvelope) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		if c.wants(topic, symbol) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySendEnvelope(env)
	}
}
