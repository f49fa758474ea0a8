// Package portfolio consolidates per-venue positions and balances into
// a single cross-venue view and derives portfolio-level metrics
// (spec.md §4.4).
//
// Grounded on original_source/app/orchestrator/portfolio_aggregator.py's
// PositionAggregator/BalanceAggregator/PortfolioMetrics — the Python
// source this spec distills — reimplemented with sync.RWMutex-guarded
// tables (spec.md §5: "single-writer, multi-reader") and
// replace-not-mutate recompute on every update instead of Python's
// in-place defaultdict mutation.
package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefabric/gateway/internal/model"
)

// PositionBook holds per-venue positions keyed by symbol, plus the
// derived consolidated view per symbol.
type PositionBook struct {
	mu           sync.RWMutex
	byVenue      map[model.Symbol]map[model.Venue]model.Position
	consolidated map[model.Symbol]model.ConsolidatedPosition
}

func NewPositionBook() *PositionBook {
	return &PositionBook{
		byVenue:      make(map[model.Symbol]map[model.Venue]model.Position),
		consolidated: make(map[model.Symbol]model.ConsolidatedPosition),
	}
}

// Upsert stores or updates a venue's position for a symbol. A
// zero-size position is treated as a close and removes the venue's
// entry entirely, mirroring the Python aggregator's add_position
// size==0 branch.
func (b *PositionBook) Upsert(p model.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Size.IsZero() {
		b.removeLocked(p.Symbol, p.Venue)
		return
	}
	venues, ok := b.byVenue[p.Symbol]
	if !ok {
		venues = make(map[model.Venue]model.Position)
		b.byVenue[p.Symbol] = venues
	}
	venues[p.Venue] = p
	b.consolidateLocked(p.Symbol)
}

// Remove deletes one venue's position for a symbol.
func (b *PositionBook) Remove(symbol model.Symbol, venue model.Venue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(symbol, venue)
}

func (b *PositionBook) removeLocked(symbol model.Symbol, venue model.Venue) {
	venues, ok := b.byVenue[symbol]
	if !ok {
		return
	}
	delete(venues, venue)
	if len(venues) == 0 {
		delete(b.byVenue, symbol)
		delete(b.consolidated, symbol)
		return
	}
	b.consolidateLocked(symbol)
}

// consolidateLocked recomputes the consolidated view for symbol: signed
// size sum, size-weighted entry price, most-recently-updated venue's
// mark price, summed PnL/margin, earliest opened_at, venue list.
func (b *PositionBook) consolidateLocked(symbol model.Symbol) {
	venues := b.byVenue[symbol]
	if len(venues) == 0 {
		return
	}

	var totalSize, unrealized, realized, margin decimal.Decimal
	var weightedEntry, totalAbsSize decimal.Decimal
	var latest model.Position
	var openedAt *time.Time
	venueList := make([]model.Venue, 0, len(venues))

	first := true
	for v, p := range venues {
		venueList = append(venueList, v)
		totalSize = totalSize.Add(p.Size)
		unrealized = unrealized.Add(p.UnrealizedPnL)
		realized = realized.Add(p.RealizedPnL)
		margin = margin.Add(p.MarginUsed)

		absSize := p.Size.Abs()
		if !absSize.IsZero() {
			weightedEntry = weightedEntry.Add(p.EntryPrice.Mul(absSize))
			totalAbsSize = totalAbsSize.Add(absSize)
		}

		if first || p.UpdatedAt.After(latest.UpdatedAt) {
			latest = p
			first = false
		}
		if p.OpenedAt != nil && (openedAt == nil || p.OpenedAt.Before(*openedAt)) {
			openedAt = p.OpenedAt
		}
	}

	entryPrice := latest.EntryPrice
	if !totalAbsSize.IsZero() {
		entryPrice = weightedEntry.Div(totalAbsSize)
	}

	b.consolidated[symbol] = model.ConsolidatedPosition{
		Symbol: symbol, Size: totalSize, EntryPrice: entryPrice, MarkPrice: latest.MarkPrice,
		UnrealizedPnL: unrealized, RealizedPnL: realized, MarginUsed: margin,
		OpenedAt: openedAt, Venues: venueList, UpdatedAt: time.Now().UTC(),
	}
}

func (b *PositionBook) All() []model.ConsolidatedPosition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.ConsolidatedPosition, 0, len(b.consolidated))
	for _, p := range b.consolidated {
		out = append(out, p)
	}
	return out
}

func (b *PositionBook) Get(symbol model.Symbol) (model.ConsolidatedPosition, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.consolidated[symbol]
	return p, ok
}

func (b *PositionBook) ByVenue(venue model.Venue) []model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []model.Position
	for _, venues := range b.byVenue {
		if p, ok := venues[venue]; ok {
			out = append(out, p)
		}
	}
	return out
}
