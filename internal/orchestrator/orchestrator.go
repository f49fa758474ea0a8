package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/tradefabric/gateway/internal/apierr"
	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/model"
	"github.com/tradefabric/gateway/internal/venue"
)

const healthMonitorInterval = 30 * time.Second

// metrics are the Prometheus collectors the health-monitor tick feeds.
// Grounded on go.mod's prometheus/client_golang dependency, which the
// distilled spec otherwise never exercises.
type metrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_venue_requests_total", Help: "Venue adapter calls routed through the orchestrator.",
		}, []string{"venue"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_venue_errors_total", Help: "Venue adapter calls that returned an error.",
		}, []string{"venue"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "gateway_venue_request_duration_seconds", Help: "Venue adapter call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"venue"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.errors, m.latency)
	}
	return m
}

// Orchestrator owns one VenueManager per enabled venue and is the
// single point through which trading and read operations reach a
// venue adapter (spec.md §4.3).
type Orchestrator struct {
	mu       sync.RWMutex
	managers map[model.Venue]*VenueManager

	bus     *eventbus.Bus
	metrics *metrics
	logger  zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

func New(bus *eventbus.Bus, reg prometheus.Registerer, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		managers: make(map[model.Venue]*VenueManager),
		bus:      bus,
		metrics:  newMetrics(reg),
		logger:   logger.With().Str("component", "orchestrator").Logger(),
		stop:     make(chan struct{}),
	}
}

// AddVenue registers an already-constructed adapter under management.
// Callers build the adapter via venue.Registry.Build beforehand so
// orchestrator has no direct dependency on any specific venue package.
func (o *Orchestrator) AddVenue(a venue.Adapter) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.managers[a.Venue()] = newVenueManager(a.Venue(), a)
}

// Start initializes every managed adapter and launches the 30s
// health-monitor loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.RLock()
	managers := make([]*VenueManager, 0, len(o.managers))
	for _, m := range o.managers {
		managers = append(managers, m)
	}
	o.mu.RUnlock()

	for _, m := range managers {
		if err := m.adapter.Initialize(ctx); err != nil {
			o.logger.Error().Err(err).Str("venue", string(m.Venue)).Msg("venue initialize failed")
		}
	}

	o.wg.Add(1)
	go o.healthMonitorLoop()
	return nil
}

// Shutdown tears down the health-monitor loop and every adapter.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	close(o.stop)
	o.wg.Wait()

	o.mu.RLock()
	defer o.mu.RUnlock()
	var firstErr error
	for _, m := range o.managers {
		if err := m.adapter.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (o *Orchestrator) manager(v model.Venue) (*VenueManager, error) {
	o.mu.RLock()
	m, ok := o.managers[v]
	o.mu.RUnlock()
	if !ok {
		return nil, apierr.Configuration(fmt.Sprintf("venue %q is not registered", v))
	}
	return m, nil
}

// PlaceOrder routes an order to its target venue. On validation or
// submission failure the adapter itself publishes the rejected order
// as an order_update (see each venue package's PlaceOrder), so the
// orchestrator does not duplicate that publish here. The early returns
// for an unregistered or unhealthy venue or an open manager breaker,
// and an adapter's rate-limit or open-breaker return, publish no
// order_update.
func (o *Orchestrator) PlaceOrder(ctx context.Context, order model.Order) (model.Order, error) {
	m, err := o.manager(order.Venue)
	if err != nil {
		return order, err
	}
	if !m.Healthy() {
		return order, apierr.VenueConnection(string(order.Venue), "venue is unhealthy")
	}

	result, err := m.Execute(func() (interface{}, error) {
		return m.adapter.PlaceOrder(ctx, order)
	})
	o.observe(order.Venue, err)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return order, apierr.CircuitBreakerOpen(string(order.Venue))
		}
		if placed, ok := result.(model.Order); ok {
			return placed, apierr.AsError(err)
		}
		return order, apierr.AsError(err)
	}
	return result.(model.Order), nil
}

func (o *Orchestrator) CancelOrder(ctx context.Context, v model.Venue, venueOrderID string) (bool, error) {
	m, err := o.manager(v)
	if err != nil {
		return false, err
	}
	result, err := m.Execute(func() (interface{}, error) {
		return m.adapter.CancelOrder(ctx, venueOrderID)
	})
	o.observe(v, err)
	if err != nil {
		return false, apierr.AsError(err)
	}
	return result.(bool), nil
}

// GetPositions reads positions from one venue, or from every managed
// venue when v is empty; a venue whose call fails is logged and skipped.
func (o *Orchestrator) GetPositions(ctx context.Context, v model.Venue) ([]model.Position, error) {
	if v != "" {
		m, err := o.manager(v)
		if err != nil {
			return nil, err
		}
		return m.adapter.GetPositions(ctx)
	}
	var out []model.Position
	for _, m := range o.allManagers() {
		pos, err := m.adapter.GetPositions(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Str("venue", string(m.Venue)).Msg("get positions failed")
			continue
		}
		out = append(out, pos...)
	}
	return out, nil
}

func (o *Orchestrator) GetBalances(ctx context.Context, v model.Venue) ([]model.Balance, error) {
	if v != "" {
		m, err := o.manager(v)
		if err != nil {
			return nil, err
		}
		return m.adapter.GetBalances(ctx)
	}
	var out []model.Balance
	for _, m := range o.allManagers() {
		bals, err := m.adapter.GetBalances(ctx)
		if err != nil {
			o.logger.Warn().Err(err).Str("venue", string(m.Venue)).Msg("get balances failed")
			continue
		}
		out = append(out, bals...)
	}
	return out, nil
}

func (o *Orchestrator) GetMarketData(ctx context.Context, v model.Venue, symbol model.Symbol) (*model.MarketData, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	return m.adapter.GetMarketData(ctx, symbol)
}

func (o *Orchestrator) GetOrderStatus(ctx context.Context, v model.Venue, venueOrderID string) (*model.Order, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	return m.adapter.GetOrderStatus(ctx, venueOrderID)
}

func (o *Orchestrator) GetSymbols(ctx context.Context, v model.Venue) ([]model.Symbol, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	return m.adapter.GetSymbols(ctx)
}

func (o *Orchestrator) GetSymbolInfo(ctx context.Context, v model.Venue, symbol model.Symbol) (*venue.SymbolInfo, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	return m.adapter.GetSymbolInfo(ctx, symbol)
}

func (o *Orchestrator) GetRecentTrades(ctx context.Context, v model.Venue, symbol model.Symbol, limit int) ([]model.Trade, error) {
	m, err := o.manager(v)
	if err != nil {
		return nil, err
	}
	return m.adapter.GetRecentTrades(ctx, symbol, limit)
}

// ConnectVenue and DisconnectVenue back the admin lifecycle endpoints
// of spec.md §6 ("POST /venues/{venue}/connect / /disconnect").
func (o *Orchestrator) ConnectVenue(ctx context.Context, v model.Venue) error {
	m, err := o.manager(v)
	if err != nil {
		return err
	}
	return m.adapter.Initialize(ctx)
}

func (o *Orchestrator) DisconnectVenue(ctx context.Context, v model.Venue) error {
	m, err := o.manager(v)
	if err != nil {
		return err
	}
	return m.adapter.Shutdown(ctx)
}

func (o *Orchestrator) VenueStatuses() []model.VenueStatus {
	managers := o.allManagers()
	out := make([]model.VenueStatus, 0, len(managers))
	for _, m := range managers {
		out = append(out, m.adapter.Status())
	}
	return out
}

func (o *Orchestrator) VenueStatus(v model.Venue) (model.VenueStatus, error) {
	m, err := o.manager(v)
	if err != nil {
		return model.VenueStatus{}, err
	}
	return m.adapter.Status(), nil
}

func (o *Orchestrator) Venues() []model.Venue {
	managers := o.allManagers()
	out := make([]model.Venue, 0, len(managers))
	for _, m := range managers {
		out = append(out, m.Venue)
	}
	return out
}

func (o *Orchestrator) allManagers() []*VenueManager {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*VenueManager, 0, len(o.managers))
	for _, m := range o.managers {
		out = append(out, m)
	}
	return out
}

func (o *Orchestrator) observe(v model.Venue, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.requests.WithLabelValues(string(v)).Inc()
	if err != nil {
		o.metrics.errors.WithLabelValues(string(v)).Inc()
	}
}

// healthMonitorLoop ticks every 30s, snapshots each manager's counters,
// and publishes one system event per venue — grounded on
// providers/circuitbreakers.go's GetStatus plus the cooperative
// loop-with-shutdown-signal idiom used by internal/stream/*_bus.go's
// Start/Stop.
func (o *Orchestrator) healthMonitorLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(healthMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.tick()
		}
	}
}

func (o *Orchestrator) tick() {
	ctx := context.Background()
	for _, m := range o.allManagers() {
		snap := m.Snapshot()
		status := m.adapter.Status()
		status.SuccessRate = snap.SuccessRate
		status.LatencyMS = snap.AvgLatency.Milliseconds()
		status.LastCheck = time.Now().UTC()
		m.updateStatus(status)

		if o.metrics != nil {
			o.metrics.latency.WithLabelValues(string(m.Venue)).Observe(snap.AvgLatency.Seconds())
		}

		ev := model.NewEvent(model.EventSystemUpdate, m.Venue)
		ev.System = &model.SystemPayload{
			Component: "orchestrator",
			Status:    m.BreakerState(),
			Message:   fmt.Sprintf("venue=%s requests=%d errors=%d success_rate=%.4f avg_latency_ms=%d", m.Venue, snap.Requests, snap.Errors, snap.SuccessRate, snap.AvgLatency.Milliseconds()),
			Data: map[string]interface{}{
				"requests":     snap.Requests,
				"errors":       snap.Errors,
				"success_rate": snap.SuccessRate,
				"breaker":      m.BreakerState(),
			},
		}
		if err := o.bus.Publish(ctx, ev); err != nil {
			o.logger.Warn().Err(err).Str("venue", string(m.Venue)).Msg("health monitor publish failed")
		}
	}
}
