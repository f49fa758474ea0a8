package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/model"
)

const (
	defaultUpdateInterval = 30 * time.Second
	metricsDebounce        = 10 * time.Second
	healthStaleAfter       = 300 * time.Second
)

// VenueSource is the pull collaborator reconcileLoop uses to refresh
// positions and balances straight from every healthy venue, mirroring
// _refresh_venue_data's per-venue `manager.client.get_positions()` /
// `get_balances()` calls. The Orchestrator satisfies this interface.
type VenueSource interface {
	VenueStatuses() []model.VenueStatus
	GetPositions(ctx context.Context, v model.Venue) ([]model.Position, error)
	GetBalances(ctx context.Context, v model.Venue) ([]model.Balance, error)
}

// Aggregator is the portfolio aggregator of spec.md §4.4: it
// subscribes to position/balance/order events, maintains the
// consolidated books, tracks active orders by client_id, and serves a
// debounced Metrics snapshot.
//
// Grounded on original_source/app/orchestrator/portfolio_aggregator.py's
// PortfolioAggregator: event subscriptions in _setup_event_subscriptions,
// periodic refresh in _periodic_update_task/_refresh_venue_data, and
// the debounced metrics task in _metrics_calculation_task — reimplemented
// with Go channels/goroutines instead of asyncio tasks.
type Aggregator struct {
	bus    *eventbus.Bus
	logger zerolog.Logger

	positions *PositionBook
	balances  *BalanceBook
	venues    VenueSource

	mu           sync.RWMutex
	activeOrders map[string]model.Order

	metricsMu sync.RWMutex
	metrics   Metrics

	forceUpdate chan struct{}
	stop        chan struct{}
	wg          sync.WaitGroup

	lastFullUpdateMu sync.RWMutex
	lastFullUpdate   time.Time

	updateInterval time.Duration
	running        bool
	subs           []*eventbus.Subscription
}

func New(bus *eventbus.Bus, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		bus: bus, logger: logger.With().Str("component", "portfolio").Logger(),
		positions: NewPositionBook(), balances: NewBalanceBook(),
		activeOrders:   make(map[string]model.Order),
		forceUpdate:    make(chan struct{}, 1),
		stop:           make(chan struct{}),
		updateInterval: defaultUpdateInterval,
	}
}

// SetVenueSource wires the collaborator reconcileLoop pulls
// positions/balances from. Call before Start; a nil source (the
// default) means reconciliation only marks freshness from
// event-driven updates instead of pulling from any venue.
func (a *Aggregator) SetVenueSource(vs VenueSource) {
	a.venues = vs
}

// Start subscribes to the event bus and launches the reconciliation
// and metrics-recompute loops.
func (a *Aggregator) Start(ctx context.Context) error {
	a.subs = []*eventbus.Subscription{
		a.bus.Subscribe(eventbus.ChannelPositions, a.handlePositionEvent),
		a.bus.Subscribe(eventbus.ChannelBalances, a.handleBalanceEvent),
		a.bus.Subscribe(eventbus.ChannelOrders, a.handleOrderEvent),
	}

	a.recalculate(0)
	a.markFullUpdate()
	a.running = true

	a.wg.Add(2)
	go a.reconcileLoop()
	go a.metricsLoop()
	return nil
}

func (a *Aggregator) Shutdown(ctx context.Context) error {
	a.running = false
	close(a.stop)
	a.wg.Wait()
	for _, s := range a.subs {
		a.bus.Unsubscribe(s)
	}
	return nil
}

func (a *Aggregator) handlePositionEvent(ctx context.Context, ev model.Event) error {
	if ev.Position == nil {
		return nil
	}
	p := *ev.Position
	if p.Size.IsZero() {
		a.positions.Remove(p.Symbol, p.Venue)
	} else {
		a.positions.Upsert(p)
	}
	a.signalForceUpdate()
	return nil
}

func (a *Aggregator) handleBalanceEvent(ctx context.Context, ev model.Event) error {
	if ev.Balance == nil {
		return nil
	}
	a.balances.Upsert(*ev.Balance)
	a.signalForceUpdate()
	return nil
}

// handleOrderEvent tracks active orders keyed by client_id, mirroring
// _handle_order_event: active statuses are tracked, terminal statuses
// are removed.
func (a *Aggregator) handleOrderEvent(ctx context.Context, ev model.Event) error {
	if ev.Order == nil || ev.Order.ClientID == "" {
		return nil
	}
	o := *ev.Order
	a.mu.Lock()
	if o.Status.Active() {
		a.activeOrders[o.ClientID] = o
	} else {
		delete(a.activeOrders, o.ClientID)
	}
	a.mu.Unlock()
	return nil
}

func (a *Aggregator) signalForceUpdate() {
	select {
	case a.forceUpdate <- struct{}{}:
	default:
	}
}

func (a *Aggregator) markFullUpdate() {
	a.lastFullUpdateMu.Lock()
	a.lastFullUpdate = time.Now().UTC()
	a.lastFullUpdateMu.Unlock()
}

// reconcileLoop fires on the update interval or a forced signal,
// grounded on _periodic_update_task's asyncio.wait_for(event, timeout).
func (a *Aggregator) reconcileLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.refreshVenueData(context.Background())
		case <-a.forceUpdate:
			a.refreshVenueData(context.Background())
		}
	}
}

// refreshVenueData pulls positions and balances from every healthy
// venue and reconciles the books against what came back, mirroring
// _refresh_venue_data: query each healthy venue, upsert what it
// reports, and drop any symbol/asset that venue no longer reports. A
// per-venue failure is logged and skipped, same as the Python
// original's try/except per venue, so one unhealthy adapter never
// blocks the rest. With no VenueSource wired, reconciliation falls
// back to marking freshness from event-driven updates alone.
func (a *Aggregator) refreshVenueData(ctx context.Context) {
	if a.venues == nil {
		a.markFullUpdate()
		return
	}

	for _, status := range a.venues.VenueStatuses() {
		if !status.Healthy() {
			continue
		}
		v := status.Venue

		if positions, err := a.venues.GetPositions(ctx, v); err != nil {
			a.logger.Warn().Err(err).Str("venue", string(v)).Msg("failed to refresh positions")
		} else {
			seen := make(map[model.Symbol]struct{}, len(positions))
			for _, p := range positions {
				p.Venue = v
				a.positions.Upsert(p)
				seen[p.Symbol] = struct{}{}
			}
			for _, existing := range a.positions.ByVenue(v) {
				if _, ok := seen[existing.Symbol]; !ok {
					a.positions.Remove(existing.Symbol, v)
				}
			}
		}

		if balances, err := a.venues.GetBalances(ctx, v); err != nil {
			a.logger.Warn().Err(err).Str("venue", string(v)).Msg("failed to refresh balances")
		} else {
			seen := make(map[string]struct{}, len(balances))
			for _, b := range balances {
				b.Venue = v
				a.balances.Upsert(b)
				seen[b.Asset] = struct{}{}
			}
			for _, existing := range a.balances.ByVenue(v) {
				if _, ok := seen[existing.Asset]; !ok {
					a.balances.Remove(existing.Asset, v)
				}
			}
		}
	}

	a.markFullUpdate()
}

// metricsLoop recomputes Metrics once per metricsDebounce tick —
// grounded on _metrics_calculation_task's 10s cadence. Position and
// balance events do not trigger a recompute of their own; their effect
// shows up at the next tick.
func (a *Aggregator) metricsLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(metricsDebounce)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.recalculate(0)
		}
	}
}

func (a *Aggregator) recalculate(activeOverride int) {
	a.mu.RLock()
	n := len(a.activeOrders)
	a.mu.RUnlock()
	if activeOverride > 0 {
		n = activeOverride
	}
	m := Calculate(a.positions, a.positions.ByVenue, n)
	a.metricsMu.Lock()
	a.metrics = m
	a.metricsMu.Unlock()
	a.publishMetricsTick(m)
}

// publishMetricsTick emits a system_update event carrying the freshly
// computed Metrics, tagged Component "portfolio" so the client hub can
// route it to the "portfolio" topic without a dedicated event type.
func (a *Aggregator) publishMetricsTick(m Metrics) {
	if a.bus == nil {
		return
	}
	ev := model.NewEvent(model.EventSystemUpdate, "")
	ev.System = &model.SystemPayload{
		Component: "portfolio",
		Status:    "ok",
		Data: map[string]interface{}{
			"total_value_usd": m.TotalValueUSD.String(),
			"total_pnl":       m.TotalPnL.String(),
			"position_count":  m.PositionCount,
			"active_orders":   m.ActiveOrderCount,
		},
	}
	if err := a.bus.Publish(context.Background(), ev); err != nil {
		a.logger.Debug().Err(err).Msg("portfolio metrics tick publish failed")
	}
}

func (a *Aggregator) Metrics() Metrics {
	a.metricsMu.RLock()
	defer a.metricsMu.RUnlock()
	return a.metrics
}

func (a *Aggregator) Positions() []model.ConsolidatedPosition { return a.positions.All() }

func (a *Aggregator) Position(symbol model.Symbol) (model.ConsolidatedPosition, bool) {
	return a.positions.Get(symbol)
}

func (a *Aggregator) VenuePositions(v model.Venue) []model.Position { return a.positions.ByVenue(v) }

func (a *Aggregator) Balances() []model.ConsolidatedBalance { return a.balances.All() }

func (a *Aggregator) Balance(asset string) (model.ConsolidatedBalance, bool) {
	return a.balances.Get(asset)
}

func (a *Aggregator) ActiveOrders() []model.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Order, 0, len(a.activeOrders))
	for _, o := range a.activeOrders {
		out = append(out, o)
	}
	return out
}

// Healthy reports whether reconciliation has run within the last 5
// minutes, grounded on health_check's now - last_full_update < 300s.
func (a *Aggregator) Healthy() bool {
	a.lastFullUpdateMu.RLock()
	defer a.lastFullUpdateMu.RUnlock()
	if a.lastFullUpdate.IsZero() {
		return false
	}
	return time.Since(a.lastFullUpdate) < healthStaleAfter
}
