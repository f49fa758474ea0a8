package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/marketdata"
	"github.com/tradefabric/gateway/internal/model"
	"github.com/tradefabric/gateway/internal/orchestrator"
	"github.com/tradefabric/gateway/internal/portfolio"
	"github.com/tradefabric/gateway/internal/venue"
)

// fakeAdapter is a minimal venue.Adapter test double, mirroring the
// one in internal/orchestrator/orchestrator_test.go.
type fakeAdapter struct {
	v         model.Venue
	healthy   bool
	placeErr  error
	positions []model.Position
}

func (f *fakeAdapter) Venue() model.Venue                        { return f.v }
func (f *fakeAdapter) Initialize(ctx context.Context) error       { return nil }
func (f *fakeAdapter) Shutdown(ctx context.Context) error         { return nil }
func (f *fakeAdapter) HealthCheck(ctx context.Context) bool       { return f.healthy }
func (f *fakeAdapter) WebSocketHealthCheck(ctx context.Context) bool { return f.healthy }
func (f *fakeAdapter) Status() model.VenueStatus {
	status := model.ConnDisconnected
	if f.healthy {
		status = model.ConnConnected
	}
	return model.VenueStatus{Venue: f.v, ConnectionStatus: status}
}
func (f *fakeAdapter) PlaceOrder(ctx context.Context, order model.Order) (model.Order, error) {
	if f.placeErr != nil {
		return order, f.placeErr
	}
	order.Status = model.OrderOpen
	order.VenueID = "v-1"
	return order, nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, venueOrderID string) (bool, error) {
	return true, nil
}
func (f *fakeAdapter) GetOrderStatus(ctx context.Context, venueOrderID string) (*model.Order, error) {
	return &model.Order{VenueID: venueOrderID, Status: model.OrderOpen}, nil
}
func (f *fakeAdapter) GetPositions(ctx context.Context) ([]model.Position, error) { return f.positions, nil }
func (f *fakeAdapter) GetBalances(ctx context.Context) ([]model.Balance, error)   { return nil, nil }
func (f *fakeAdapter) GetMarketData(ctx context.Context, symbol model.Symbol) (*model.MarketData, error) {
	return &model.MarketData{Venue: f.v, Symbol: symbol, Bid: model.PriceLevel{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1)}, Ask: model.PriceLevel{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)}}, nil
}
func (f *fakeAdapter) GetRecentTrades(ctx context.Context, symbol model.Symbol, limit int) ([]model.Trade, error) {
	return nil, nil
}
func (f *fakeAdapter) GetSymbols(ctx context.Context) ([]model.Symbol, error) {
	return []model.Symbol{"BTC-PERP"}, nil
}
func (f *fakeAdapter) GetSymbolInfo(ctx context.Context, symbol model.Symbol) (*venue.SymbolInfo, error) {
	return &venue.SymbolInfo{Symbol: symbol, TickSize: decimal.NewFromFloat(0.5), MinSize: decimal.NewFromFloat(0.001), MaxSize: decimal.NewFromInt(100)}, nil
}
func (f *fakeAdapter) SubscribeMarketData(ctx context.Context, symbols []model.Symbol) error   { return nil }
func (f *fakeAdapter) UnsubscribeMarketData(ctx context.Context, symbols []model.Symbol) error { return nil }
func (f *fakeAdapter) SubscribeOrderUpdates(ctx context.Context) error                         { return nil }
func (f *fakeAdapter) SubscribePositionUpdates(ctx context.Context) error                      { return nil }
func (f *fakeAdapter) SubscribeBalanceUpdates(ctx context.Context) error                       { return nil }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	bus := eventbus.New(nil, zerolog.Nop())
	orch := orchestrator.New(bus, prometheus.NewRegistry(), zerolog.Nop())
	orch.AddVenue(&fakeAdapter{v: model.VenueHyperliquid, healthy: true})
	require.NoError(t, orch.Start(context.Background()))

	pf := portfolio.New(bus, zerolog.Nop())
	require.NoError(t, pf.Start(context.Background()))
	md := marketdata.New(bus, zerolog.Nop())
	require.NoError(t, md.Start(context.Background()))

	return NewServer(DefaultConfig(), orch, pf, md, nil, zerolog.Nop())
}

func TestHealthReturnsOK(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestListVenuesReturnsRegisteredVenue(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/venues", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	venues := body["venues"].([]interface{})
	assert.Equal(t, "hyperliquid", venues[0])
}

func TestPlaceOrderRoutesToAdapter(t *testing.T) {
	srv := newTestServer(t)
	payload := []byte(`{"venue":"hyperliquid","symbol":"BTC-PERP","side":"buy","type":"market","quantity":"0.5"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trading/orders", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var order model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, model.OrderOpen, order.Status)
	assert.Equal(t, "v-1", order.VenueID)
}

func TestPlaceOrderRejectsInvalidQuantity(t *testing.T) {
	srv := newTestServer(t)
	payload := []byte(`{"venue":"hyperliquid","symbol":"BTC-PERP","side":"buy","type":"market","quantity":"not-a-number"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trading/orders", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderUnregisteredVenueIsConfigurationError(t *testing.T) {
	srv := newTestServer(t)
	payload := []byte(`{"venue":"lighter","symbol":"BTC-PERP","side":"buy","type":"market","quantity":"0.5"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trading/orders", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVenueStatusUnknownVenueReturnsError(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/venues/not-a-venue/status", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTickerFallsBackToAggregatedView(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/market-data/ticker/BTC-PERP", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotFoundHandlerReturnsCorrelationID(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

// newTestServerWithPosition is newTestServer plus a seeded BTC-PERP
// position on hyperliquid, published through the event bus the same
// way a real position_update from an adapter would arrive.
func newTestServerWithPosition(t *testing.T, size decimal.Decimal) *Server {
	t.Helper()
	bus := eventbus.New(nil, zerolog.Nop())
	orch := orchestrator.New(bus, prometheus.NewRegistry(), zerolog.Nop())
	orch.AddVenue(&fakeAdapter{v: model.VenueHyperliquid, healthy: true})
	require.NoError(t, orch.Start(context.Background()))

	pf := portfolio.New(bus, zerolog.Nop())
	require.NoError(t, pf.Start(context.Background()))
	md := marketdata.New(bus, zerolog.Nop())
	require.NoError(t, md.Start(context.Background()))

	ev := model.NewEvent(model.EventPositionUpdate, model.VenueHyperliquid)
	ev.Position = &model.Position{
		Venue: model.VenueHyperliquid, Symbol: "BTC-PERP", Size: size,
		EntryPrice: decimal.NewFromInt(60000), MarkPrice: decimal.NewFromInt(61000),
	}
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.Eventually(t, func() bool {
		return len(pf.VenuePositions(model.VenueHyperliquid)) == 1
	}, time.Second, time.Millisecond)

	return NewServer(DefaultConfig(), orch, pf, md, nil, zerolog.Nop())
}

func TestClosePositionFullClosesBySize(t *testing.T) {
	srv := newTestServerWithPosition(t, decimal.NewFromInt(2))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/positions/BTC-PERP/close?venue=hyperliquid", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var order model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.True(t, order.Quantity.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, model.SideSell, order.Side)
}

func TestClosePositionHonorsPartialSize(t *testing.T) {
	srv := newTestServerWithPosition(t, decimal.NewFromInt(2))
	payload := []byte(`{"size":"0.5"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/positions/BTC-PERP/close?venue=hyperliquid", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var order model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.True(t, order.Quantity.Equal(decimal.NewFromFloat(0.5)))
}

func TestClosePositionRejectsSizeLargerThanPosition(t *testing.T) {
	srv := newTestServerWithPosition(t, decimal.NewFromInt(2))
	payload := []byte(`{"size":"5"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/positions/BTC-PERP/close?venue=hyperliquid", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClosePositionShortPositionBuysBack(t *testing.T) {
	srv := newTestServerWithPosition(t, decimal.NewFromInt(-2))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/positions/BTC-PERP/close?venue=hyperliquid", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var order model.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	assert.Equal(t, model.SideBuy, order.Side)
	assert.True(t, order.Quantity.Equal(decimal.NewFromInt(2)))
}
