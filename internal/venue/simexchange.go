package venue

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefabric/gateway/internal/model"
)

// SimExchange is an in-process stand-in for a venue's matching engine
// and market-data feed. Every reference adapter (internal/venue/hyperliquid,
// .../lighter, .../tradexyz) wraps one SimExchange with its own symbol
// table, local validation, and canonical-model translation — the same
// adapter-owns-translation split the teacher's per-venue adapters use
// (adapters/kraken_adapter.go, adapters/okx_adapter.go, ...), the
// difference being that here the "wire" on the other side of the
// translation is simulated in-process rather than a live REST/WS
// connection, since this exercise has no venue credentials to connect
// with. Swapping SimExchange for a real gorilla/websocket + net/http
// transport behind the same Adapter interface is a contained change
// local to each venue package.
type SimExchange struct {
	mu sync.Mutex

	prices    map[model.Symbol]decimal.Decimal
	orders    map[string]*model.Order
	positions map[model.Symbol]*model.Position
	balances  map[string]*model.Balance
	trades    []model.Trade

	rng *rand.Rand
	seq int64
}

func NewSimExchange(seed int64, startingPrices map[model.Symbol]decimal.Decimal) *SimExchange {
	prices := make(map[model.Symbol]decimal.Decimal, len(startingPrices))
	for s, p := range startingPrices {
		prices[s] = p
	}
	return &SimExchange{
		prices:    prices,
		orders:    make(map[string]*model.Order),
		positions: make(map[model.Symbol]*model.Position),
		balances: map[string]*model.Balance{
			"USD": {Asset: "USD", Total: decimal.NewFromInt(100000), Available: decimal.NewFromInt(100000), Locked: decimal.Zero, UpdatedAt: time.Now().UTC()},
		},
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Tick advances every symbol's last price by a small random walk and
// returns the fresh quotes, keyed by symbol.
func (s *SimExchange) Tick() map[model.Symbol]model.MarketData {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.Symbol]model.MarketData, len(s.prices))
	for sym, px := range s.prices {
		driftBps := decimal.NewFromFloat((s.rng.Float64() - 0.5) * 8) // +/- 4bps
		px = px.Mul(decimal.NewFromInt(10000).Add(driftBps)).Div(decimal.NewFromInt(10000))
		if px.LessThanOrEqual(decimal.Zero) {
			px = decimal.NewFromInt(1)
		}
		s.prices[sym] = px

		half := px.Mul(decimal.NewFromFloat(0.0002))
		md := model.MarketData{
			Symbol:     sym,
			Bid:        model.PriceLevel{Price: px.Sub(half), Size: decimal.NewFromInt(10)},
			Ask:        model.PriceLevel{Price: px.Add(half), Size: decimal.NewFromInt(10)},
			LastPrice:  px,
			ObservedAt: time.Now().UTC(),
		}
		out[sym] = md
		s.markPositions(sym, px)
	}
	return out
}

func (s *SimExchange) markPositions(sym model.Symbol, px decimal.Decimal) {
	if p, ok := s.positions[sym]; ok {
		p.MarkPrice = px
		p.UnrealizedPnL = p.Size.Mul(px.Sub(p.EntryPrice))
		p.UpdatedAt = time.Now().UTC()
	}
}

// Symbols lists every symbol the sim engine quotes.
func (s *SimExchange) Symbols() []model.Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Symbol, 0, len(s.prices))
	for sym := range s.prices {
		out = append(out, sym)
	}
	return out
}

// Submit places an order against the current price and returns the
// (possibly filled) order. Market orders fill immediately; limit
// orders rest as "open" — this exercise does not model resting-order
// matching against future ticks, only immediate marketable fills.
func (s *SimExchange) Submit(ctx context.Context, venueID string, order model.Order) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	px, known := s.prices[order.Symbol]
	if !known {
		return model.Order{}, fmt.Errorf("unknown symbol %q", order.Symbol)
	}

	order.VenueID = venueID
	order.Status = model.OrderOpen
	order.CreatedAt = time.Now().UTC()
	order.UpdatedAt = order.CreatedAt

	fillPrice := px
	marketable := order.Type == model.OrderTypeMarket
	if order.Type == model.OrderTypeLimit && order.Price != nil {
		if (order.Side == model.SideBuy && order.Price.GreaterThanOrEqual(px)) ||
			(order.Side == model.SideSell && order.Price.LessThanOrEqual(px)) {
			marketable = true
			fillPrice = *order.Price
		}
	}

	if marketable {
		order.Status = model.OrderFilled
		order.FilledQty = order.Quantity
		order.AvgFillPrice = &fillPrice
		now := time.Now().UTC()
		order.FilledAt = &now
		order.UpdatedAt = now
		s.applyFill(order, fillPrice)
		s.seq++
		s.trades = append(s.trades, model.Trade{
			Venue: order.Venue, Symbol: order.Symbol, TradeID: fmt.Sprintf("trade-%d", s.seq),
			Side: order.Side, Price: fillPrice, Quantity: order.Quantity, OrderID: order.VenueID, Ts: now,
		})
	}

	o := order
	s.orders[venueID] = &o
	return order, nil
}

func (s *SimExchange) applyFill(order model.Order, fillPrice decimal.Decimal) {
	signedQty := order.Quantity
	if order.Side == model.SideSell {
		signedQty = signedQty.Neg()
	}
	p, ok := s.positions[order.Symbol]
	if !ok {
		p = &model.Position{Venue: order.Venue, Symbol: order.Symbol, EntryPrice: fillPrice, MarkPrice: fillPrice, UpdatedAt: time.Now().UTC()}
		now := time.Now().UTC()
		p.OpenedAt = &now
		s.positions[order.Symbol] = p
	}
	newSize := p.Size.Add(signedQty)
	if !p.Size.IsZero() && p.Size.Sign() == signedQty.Sign() {
		// Same-direction add: weight entry price by size.
		totalCost := p.EntryPrice.Mul(p.Size.Abs()).Add(fillPrice.Mul(signedQty.Abs()))
		p.EntryPrice = totalCost.Div(newSize.Abs())
	} else if newSize.IsZero() {
		delete(s.positions, order.Symbol)
		return
	} else if p.Size.Sign() != 0 && newSize.Sign() != p.Size.Sign() {
		// Flipped direction: realize PnL on the closed portion, reset entry at fill price.
		p.RealizedPnL = p.RealizedPnL.Add(p.Size.Mul(fillPrice.Sub(p.EntryPrice)))
		p.EntryPrice = fillPrice
	}
	p.Size = newSize
	p.MarkPrice = fillPrice
	p.UpdatedAt = time.Now().UTC()
}

func (s *SimExchange) Cancel(venueID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[venueID]
	if !ok || o.Status.Terminal() {
		return false
	}
	o.Status = model.OrderCancelled
	o.UpdatedAt = time.Now().UTC()
	return true
}

func (s *SimExchange) Order(venueID string) (*model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[venueID]
	if !ok {
		return nil, false
	}
	cp := *o
	return &cp, true
}

func (s *SimExchange) Positions() []model.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out
}

func (s *SimExchange) Balances() []model.Balance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Balance, 0, len(s.balances))
	for _, b := range s.balances {
		out = append(out, *b)
	}
	return out
}

func (s *SimExchange) RecentTrades(symbol model.Symbol, limit int) []model.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Trade
	for i := len(s.trades) - 1; i >= 0 && len(out) < limit; i-- {
		if s.trades[i].Symbol == symbol {
			out = append(out, s.trades[i])
		}
	}
	return out
}

func (s *SimExchange) LastPrice(symbol model.Symbol) (decimal.Decimal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prices[symbol]
	return p, ok
}
