// Package marketdata maintains the cross-venue best-bid/best-ask view
// spec.md §4.5 describes: a price_cache[symbol][venue] table, a
// recomputed aggregated view per symbol with a tie-break rule, and a
// 1-second TTL on the aggregated view.
//
// Grounded on src/infrastructure/datafacade/interfaces/facade.go's
// TTL-cached read contract (CacheLayer Get/Set with a TTL) and
// datafacade/factory.go's per-data-type TTL table, narrowed here to
// the single 1s symbol-level TTL the spec requires.
package marketdata

import (
	"sync"
	"time"

	"github.com/tradefabric/gateway/internal/model"
)

const aggregateTTL = 1 * time.Second

// Aggregated is the cross-venue best-bid/best-ask view for one symbol.
type Aggregated struct {
	Symbol       model.Symbol
	BestBid      model.PriceLevel
	BestBidVenue model.Venue
	BestAsk      model.PriceLevel
	BestAskVenue model.Venue
	Sources      []model.MarketData
	ComputedAt   time.Time
}

// Cache is the marketdata aggregator's state: per-(symbol,venue) raw
// snapshots plus the derived, TTL-cached aggregated view per symbol.
type Cache struct {
	mu        sync.RWMutex
	byVenue   map[model.Symbol]map[model.Venue]model.MarketData
	aggregate map[model.Symbol]Aggregated
}

func NewCache() *Cache {
	return &Cache{
		byVenue:   make(map[model.Symbol]map[model.Venue]model.MarketData),
		aggregate: make(map[model.Symbol]Aggregated),
	}
}

// Update stores a fresh per-venue snapshot and recomputes the
// aggregated view for its symbol.
func (c *Cache) Update(md model.MarketData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	venues, ok := c.byVenue[md.Symbol]
	if !ok {
		venues = make(map[model.Venue]model.MarketData)
		c.byVenue[md.Symbol] = venues
	}
	venues[md.Venue] = md
	c.recomputeLocked(md.Symbol)
}

// recomputeLocked applies the tie-break rule of spec.md §4.5: best_bid
// is the max bid price across venues (ties broken by lower latency,
// then venue ordinal); best_ask is the min ask price with the same
// tie-break.
func (c *Cache) recomputeLocked(symbol model.Symbol) {
	venues := c.byVenue[symbol]
	if len(venues) == 0 {
		return
	}

	var bestBidVenue, bestAskVenue model.Venue
	var bestBid, bestAsk model.MarketData
	first := true
	sources := make([]model.MarketData, 0, len(venues))

	for _, md := range venues {
		sources = append(sources, md)
		if first {
			bestBid, bestAsk = md, md
			bestBidVenue, bestAskVenue = md.Venue, md.Venue
			first = false
			continue
		}
		if betterBid(md, bestBid) {
			bestBid = md
			bestBidVenue = md.Venue
		}
		if betterAsk(md, bestAsk) {
			bestAsk = md
			bestAskVenue = md.Venue
		}
	}

	c.aggregate[symbol] = Aggregated{
		Symbol: symbol, BestBid: bestBid.Bid, BestBidVenue: bestBidVenue,
		BestAsk: bestAsk.Ask, BestAskVenue: bestAskVenue, Sources: sources,
		ComputedAt: time.Now().UTC(),
	}
}

// betterBid reports whether candidate beats current for best_bid:
// higher bid price wins, ties broken by lower latency then venue
// ordinal.
func betterBid(candidate, current model.MarketData) bool {
	switch {
	case candidate.Bid.Price.GreaterThan(current.Bid.Price):
		return true
	case candidate.Bid.Price.LessThan(current.Bid.Price):
		return false
	default:
		return tieBreak(candidate, current)
	}
}

// betterAsk reports whether candidate beats current for best_ask:
// lower ask price wins, same tie-break.
func betterAsk(candidate, current model.MarketData) bool {
	switch {
	case candidate.Ask.Price.LessThan(current.Ask.Price):
		return true
	case candidate.Ask.Price.GreaterThan(current.Ask.Price):
		return false
	default:
		return tieBreak(candidate, current)
	}
}

func tieBreak(candidate, current model.MarketData) bool {
	if candidate.LatencyMS != current.LatencyMS {
		return candidate.LatencyMS < current.LatencyMS
	}
	return candidate.Venue.Ordinal() < current.Venue.Ordinal()
}

// Aggregate returns the cached aggregated view for symbol if it is
// still within the 1s TTL, grounded on the "Aggregated views are also
// cached with a 1-second TTL keyed by symbol" requirement.
func (c *Cache) Aggregate(symbol model.Symbol) (Aggregated, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	agg, ok := c.aggregate[symbol]
	if !ok || time.Since(agg.ComputedAt) > aggregateTTL {
		return Aggregated{}, false
	}
	return agg, true
}

// Snapshot returns the per-venue raw snapshots for symbol regardless
// of TTL, used by callers that want the freshest per-venue data (e.g.
// a specific-venue market order preview) rather than the cached
// cross-venue view.
func (c *Cache) Snapshot(symbol model.Symbol) []model.MarketData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	venues, ok := c.byVenue[symbol]
	if !ok {
		return nil
	}
	out := make([]model.MarketData, 0, len(venues))
	for _, md := range venues {
		out = append(out, md)
	}
	return out
}

func (c *Cache) Symbols() []model.Symbol {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Symbol, 0, len(c.byVenue))
	for s := range c.byVenue {
		out = append(out, s)
	}
	return out
}
