// Package tradexyz implements the venue.Adapter capability set for the
// "tradexyz" venue. tradexyz quotes the widest symbol set of the three
// reference venues and the widest per-symbol position caps; grounded
// on the same per-adapter pattern as internal/venue/hyperliquid and
// internal/venue/lighter.
package tradexyz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/tradefabric/gateway/internal/apierr"
	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/model"
	"github.com/tradefabric/gateway/internal/venue"
)

func init() {
	venue.DefaultRegistry.Register(model.VenueTradeXYZ, New)
}

var symbolTable = map[model.Symbol]venue.SymbolInfo{
	"BTC-PERP": {Symbol: "BTC-PERP", TickSize: decimal.NewFromFloat(1), MinSize: decimal.NewFromFloat(0.001), MaxSize: decimal.NewFromInt(200)},
	"ETH-PERP": {Symbol: "ETH-PERP", TickSize: decimal.NewFromFloat(0.1), MinSize: decimal.NewFromFloat(0.01), MaxSize: decimal.NewFromInt(2000)},
	"SOL-PERP": {Symbol: "SOL-PERP", TickSize: decimal.NewFromFloat(0.005), MinSize: decimal.NewFromFloat(0.1), MaxSize: decimal.NewFromInt(20000)},
	"ARB-PERP": {Symbol: "ARB-PERP", TickSize: decimal.NewFromFloat(0.0005), MinSize: decimal.NewFromInt(1), MaxSize: decimal.NewFromInt(100000)},
	"OP-PERP":  {Symbol: "OP-PERP", TickSize: decimal.NewFromFloat(0.0005), MinSize: decimal.NewFromInt(1), MaxSize: decimal.NewFromInt(100000)},
}

// streamFailureThreshold is the number of consecutive publish failures
// streamLoop tolerates before treating the connection as dropped and
// handing off to the Reconnector.
const streamFailureThreshold = 3

var startingPrices = map[model.Symbol]decimal.Decimal{
	"BTC-PERP": decimal.NewFromInt(64990),
	"ETH-PERP": decimal.NewFromInt(3205),
	"SOL-PERP": decimal.NewFromFloat(145.3),
	"ARB-PERP": decimal.NewFromFloat(0.815),
	"OP-PERP":  decimal.NewFromFloat(1.92),
}

type Adapter struct {
	cfg    venue.Config
	bus    *eventbus.Bus
	logger zerolog.Logger

	sim     *venue.SimExchange
	breaker *gobreaker.CircuitBreaker
	orderLimiter *rate.Limiter
	recon   *venue.Reconnector

	mu            sync.RWMutex
	status        model.VenueStatus
	subscribed    map[model.Symbol]bool
	subOrders     bool
	subPositions  bool
	subBalances   bool
	stopStreaming context.CancelFunc
}

func New(cfg venue.Config, bus *eventbus.Bus, logger zerolog.Logger) (venue.Adapter, error) {
	a := &Adapter{
		cfg: cfg, bus: bus, orderLimiter: venue.NewOrderLimiter(), logger: logger.With().Str("venue", string(model.VenueTradeXYZ)).Logger(),
		sim:        venue.NewSimExchange(3, startingPrices),
		subscribed: make(map[model.Symbol]bool),
		status:     model.VenueStatus{Venue: model.VenueTradeXYZ, ConnectionStatus: model.ConnDisconnected, WSStatus: model.ConnDisconnected, APIStatus: model.ConnDisconnected},
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "tradexyz-rest", MaxRequests: 1, Timeout: 60 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})
	a.recon = venue.NewReconnector(cfg.ReconnectBase, cfg.ReconnectCap, cfg.MaxAttempts,
		a.connectWS, a.resubscribeAll, a.setWSStatus, a.logger)
	return a, nil
}

func (a *Adapter) Venue() model.Venue { return model.VenueTradeXYZ }

func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	a.status.ConnectionStatus = model.ConnConnecting
	a.mu.Unlock()

	if err := a.connectWS(ctx); err != nil {
		a.mu.Lock()
		a.status.ConnectionStatus = model.ConnError
		a.status.LastError = err.Error()
		a.mu.Unlock()
		return apierr.VenueConnection(string(model.VenueTradeXYZ), err.Error())
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	a.stopStreaming = cancel
	go a.streamLoop(streamCtx)

	a.mu.Lock()
	a.status.ConnectionStatus = model.ConnConnected
	a.status.APIStatus = model.ConnConnected
	a.status.LastSuccess = time.Now().UTC()
	a.mu.Unlock()
	return nil
}

func (a *Adapter) connectWS(ctx context.Context) error {
	a.mu.Lock()
	a.status.WSStatus = model.ConnConnected
	a.mu.Unlock()
	return nil
}

func (a *Adapter) resubscribeAll(ctx context.Context) error {
	a.mu.RLock()
	symbols := make([]model.Symbol, 0, len(a.subscribed))
	for s, on := range a.subscribed {
		if on {
			symbols = append(symbols, s)
		}
	}
	a.mu.RUnlock()
	return a.SubscribeMarketData(ctx, symbols)
}

func (a *Adapter) setWSStatus(s model.ConnStatus) {
	a.mu.Lock()
	a.status.WSStatus = s
	if s == model.ConnError {
		a.status.ConnectionStatus = model.ConnError
	}
	a.mu.Unlock()
}

// streamLoop processes SimExchange ticks sequentially and publishes
// market_data_update events. A run of failed publishes is treated as a
// dropped connection and hands off to the Reconnector to rebuild the
// session with backoff before resuming ticks.
func (a *Adapter) streamLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatEvery / 3)
	defer ticker.Stop()
	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quotes := a.sim.Tick()
			a.mu.RLock()
			subs := make(map[model.Symbol]bool, len(a.subscribed))
			for s, on := range a.subscribed {
				subs[s] = on
			}
			a.mu.RUnlock()

			failed := false
			for sym, md := range quotes {
				if !subs[sym] {
					continue
				}
				md.Venue = model.VenueTradeXYZ
				md.LatencyMS = 22
				ev := model.NewEvent(model.EventMarketDataUpdate, model.VenueTradeXYZ)
				mdCopy := md
				ev.MarketData = &mdCopy
				if err := a.bus.Publish(ctx, ev); err != nil {
					failed = true
				}
			}

			if !failed {
				consecutiveFailures = 0
				continue
			}
			consecutiveFailures++
			if consecutiveFailures < streamFailureThreshold {
				continue
			}
			consecutiveFailures = 0
			a.logger.Warn().Msg("stream publish failing, treating as dropped connection")
			if err := a.recon.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				a.logger.Error().Err(err).Msg("reconnect attempts exhausted, stopping stream loop")
				return
			}
		}
	}
}

func (a *Adapter) Shutdown(ctx context.Context) error {
	if a.stopStreaming != nil {
		a.stopStreaming()
	}
	a.mu.Lock()
	a.status.ConnectionStatus = model.ConnDisconnected
	a.status.WSStatus = model.ConnDisconnected
	a.mu.Unlock()
	return nil
}

func (a *Adapter) HealthCheck(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status.APIStatus == model.ConnConnected && time.Since(a.status.LastSuccess) < 30*time.Second
}

func (a *Adapter) WebSocketHealthCheck(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status.WSStatus == model.ConnConnected
}

func (a *Adapter) Status() model.VenueStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

func (a *Adapter) PlaceOrder(ctx context.Context, order model.Order) (model.Order, error) {
	order.Venue = model.VenueTradeXYZ
	info, ok := symbolTable[order.Symbol]
	var infoPtr *venue.SymbolInfo
	if ok {
		infoPtr = &info
	}
	if err := venue.ValidateOrder(&order, infoPtr); err != nil {
		order.Status = model.OrderRejected
		order.RejectReason = err.Error()
		a.publishOrder(ctx, order)
		return order, err
	}
	if order.ClientID == "" {
		order.ClientID = fmt.Sprintf("tx-%d", time.Now().UnixNano())
	}

	if err := a.orderLimiter.Wait(ctx); err != nil {
		return order, apierr.RateLimited(string(model.VenueTradeXYZ), 1)
	}

	result, err := a.breaker.Execute(func() (interface{}, error) {
		venueID := fmt.Sprintf("TX-%d", time.Now().UnixNano())
		return a.sim.Submit(ctx, venueID, order)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return order, apierr.CircuitBreakerOpen(string(model.VenueTradeXYZ))
		}
		order.Status = model.OrderRejected
		order.RejectReason = err.Error()
		a.publishOrder(ctx, order)
		return order, apierr.VenueConnection(string(model.VenueTradeXYZ), err.Error())
	}
	placed := result.(model.Order)
	a.publishOrder(ctx, placed)
	return placed, nil
}

func (a *Adapter) publishOrder(ctx context.Context, order model.Order) {
	ev := model.NewEvent(model.EventOrderUpdate, model.VenueTradeXYZ)
	o := order
	ev.Order = &o
	_ = a.bus.Publish(ctx, ev)
}

func (a *Adapter) CancelOrder(ctx context.Context, venueOrderID string) (bool, error) {
	ok := a.sim.Cancel(venueOrderID)
	if !ok {
		return false, apierr.OrderNotFound(venueOrderID)
	}
	if o, found := a.sim.Order(venueOrderID); found {
		a.publishOrder(ctx, *o)
	}
	return true, nil
}

func (a *Adapter) GetOrderStatus(ctx context.Context, venueOrderID string) (*model.Order, error) {
	o, ok := a.sim.Order(venueOrderID)
	if !ok {
		return nil, nil
	}
	return o, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]model.Position, error) {
	pos := a.sim.Positions()
	for i := range pos {
		pos[i].Venue = model.VenueTradeXYZ
	}
	return pos, nil
}

func (a *Adapter) GetBalances(ctx context.Context) ([]model.Balance, error) {
	bals := a.sim.Balances()
	for i := range bals {
		bals[i].Venue = model.VenueTradeXYZ
	}
	return bals, nil
}

func (a *Adapter) GetMarketData(ctx context.Context, symbol model.Symbol) (*model.MarketData, error) {
	px, ok := a.sim.LastPrice(symbol)
	if !ok {
		return nil, apierr.New(apierr.CodeMarketData, fmt.Sprintf("no market data for %q", symbol))
	}
	half := px.Mul(decimal.NewFromFloat(0.00025))
	return &model.MarketData{
		Venue: model.VenueTradeXYZ, Symbol: symbol,
		Bid: model.PriceLevel{Price: px.Sub(half), Size: decimal.NewFromInt(12)},
		Ask: model.PriceLevel{Price: px.Add(half), Size: decimal.NewFromInt(12)},
		LastPrice: px, LatencyMS: 22, ObservedAt: time.Now().UTC(),
	}, nil
}

func (a *Adapter) GetRecentTrades(ctx context.Context, symbol model.Symbol, limit int) ([]model.Trade, error) {
	return a.sim.RecentTrades(symbol, limit), nil
}

func (a *Adapter) GetSymbols(ctx context.Context) ([]model.Symbol, error) {
	out := make([]model.Symbol, 0, len(symbolTable))
	for s := range symbolTable {
		out = append(out, s)
	}
	return out, nil
}

func (a *Adapter) GetSymbolInfo(ctx context.Context, symbol model.Symbol) (*venue.SymbolInfo, error) {
	info, ok := symbolTable[symbol]
	if !ok {
		return nil, apierr.New(apierr.CodeOrderValidation, fmt.Sprintf("symbol %q not supported", symbol))
	}
	return &info, nil
}

func (a *Adapter) SubscribeMarketData(ctx context.Context, symbols []model.Symbol) error {
	a.mu.Lock()
	for _, s := range symbols {
		a.subscribed[s] = true
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) UnsubscribeMarketData(ctx context.Context, symbols []model.Symbol) error {
	a.mu.Lock()
	for _, s := range symbols {
		delete(a.subscribed, s)
	}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SubscribeOrderUpdates(ctx context.Context) error {
	a.mu.Lock()
	a.subOrders = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SubscribePositionUpdates(ctx context.Context) error {
	a.mu.Lock()
	a.subPositions = true
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SubscribeBalanceUpdates(ctx context.Context) error {
	a.mu.Lock()
	a.subBalances = true
	a.mu.Unlock()
	return nil
}
