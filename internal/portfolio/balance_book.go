package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefabric/gateway/internal/model"
)

// BalanceBook holds per-venue balances keyed by asset, plus the
// derived consolidated sum per asset. Grounded on
// portfolio_aggregator.py's BalanceAggregator.
type BalanceBook struct {
	mu           sync.RWMutex
	byVenue      map[string]map[model.Venue]model.Balance
	consolidated map[string]model.ConsolidatedBalance
}

func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		byVenue:      make(map[string]map[model.Venue]model.Balance),
		consolidated: make(map[string]model.ConsolidatedBalance),
	}
}

func (b *BalanceBook) Upsert(bal model.Balance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	venues, ok := b.byVenue[bal.Asset]
	if !ok {
		venues = make(map[model.Venue]model.Balance)
		b.byVenue[bal.Asset] = venues
	}
	venues[bal.Venue] = bal
	b.consolidateLocked(bal.Asset)
}

func (b *BalanceBook) Remove(asset string, venue model.Venue) {
	b.mu.Lock()
	defer b.mu.Unlock()
	venues, ok := b.byVenue[asset]
	if !ok {
		return
	}
	delete(venues, venue)
	if len(venues) == 0 {
		delete(b.byVenue, asset)
		delete(b.consolidated, asset)
		return
	}
	b.consolidateLocked(asset)
}

func (b *BalanceBook) consolidateLocked(asset string) {
	venues := b.byVenue[asset]
	if len(venues) == 0 {
		return
	}
	var total, available, locked, usd decimal.Decimal
	for _, bal := range venues {
		total = total.Add(bal.Total)
		available = available.Add(bal.Available)
		locked = locked.Add(bal.Locked)
		if bal.USDValue != nil {
			usd = usd.Add(*bal.USDValue)
		}
	}
	b.consolidated[asset] = model.ConsolidatedBalance{
		Asset: asset, Total: total, Available: available, Locked: locked,
		USDValue: usd, UpdatedAt: time.Now().UTC(),
	}
}

func (b *BalanceBook) All() []model.ConsolidatedBalance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.ConsolidatedBalance, 0, len(b.consolidated))
	for _, bal := range b.consolidated {
		out = append(out, bal)
	}
	return out
}

func (b *BalanceBook) Get(asset string) (model.ConsolidatedBalance, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bal, ok := b.consolidated[asset]
	return bal, ok
}

func (b *BalanceBook) ByVenue(venue model.Venue) []model.Balance {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []model.Balance
	for _, venues := range b.byVenue {
		if bal, ok := venues[venue]; ok {
			out = append(out, bal)
		}
	}
	return out
}
