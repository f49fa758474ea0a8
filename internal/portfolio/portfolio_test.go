package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/model"
)

func TestHandleOrderEventTracksActiveAndDropsTerminal(t *testing.T) {
	bus := eventbus.New(nil, zerolog.Nop())
	a := New(bus, zerolog.Nop())

	open := model.Order{ClientID: "c1", Status: model.OrderOpen, Quantity: decimal.NewFromInt(1)}
	ev := model.NewEvent(model.EventOrderUpdate, model.VenueHyperliquid)
	ev.Order = &open
	require.NoError(t, a.handleOrderEvent(context.Background(), ev))

	active := a.ActiveOrders()
	require.Len(t, active, 1)
	assert.Equal(t, "c1", active[0].ClientID)

	filled := open
	filled.Status = model.OrderFilled
	ev2 := model.NewEvent(model.EventOrderUpdate, model.VenueHyperliquid)
	ev2.Order = &filled
	require.NoError(t, a.handleOrderEvent(context.Background(), ev2))

	assert.Empty(t, a.ActiveOrders())
}

func TestHandlePositionEventRemovesOnZeroSize(t *testing.T) {
	bus := eventbus.New(nil, zerolog.Nop())
	a := New(bus, zerolog.Nop())

	p := model.Position{Venue: model.VenueHyperliquid, Symbol: "BTC-PERP", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(60000), MarkPrice: decimal.NewFromInt(65000), UpdatedAt: time.Now()}
	ev := model.NewEvent(model.EventPositionUpdate, model.VenueHyperliquid)
	ev.Position = &p
	require.NoError(t, a.handlePositionEvent(context.Background(), ev))
	assert.Len(t, a.Positions(), 1)

	closed := p
	closed.Size = decimal.Zero
	ev2 := model.NewEvent(model.EventPositionUpdate, model.VenueHyperliquid)
	ev2.Position = &closed
	require.NoError(t, a.handlePositionEvent(context.Background(), ev2))
	assert.Empty(t, a.Positions())
}

func TestHealthyFalseBeforeStart(t *testing.T) {
	bus := eventbus.New(nil, zerolog.Nop())
	a := New(bus, zerolog.Nop())
	assert.False(t, a.Healthy())
}

func TestStartMarksHealthy(t *testing.T) {
	bus := eventbus.New(nil, zerolog.Nop())
	a := New(bus, zerolog.Nop())
	require.NoError(t, a.Start(context.Background()))
	defer a.Shutdown(context.Background())
	assert.True(t, a.Healthy())
}

// fakeVenueSource is a minimal portfolio.VenueSource test double
// standing in for the Orchestrator.
type fakeVenueSource struct {
	statuses  []model.VenueStatus
	positions []model.Position
	balances  []model.Balance
}

func (f *fakeVenueSource) VenueStatuses() []model.VenueStatus { return f.statuses }
func (f *fakeVenueSource) GetPositions(ctx context.Context, v model.Venue) ([]model.Position, error) {
	return f.positions, nil
}
func (f *fakeVenueSource) GetBalances(ctx context.Context, v model.Venue) ([]model.Balance, error) {
	return f.balances, nil
}

func TestRefreshVenueDataPullsFromHealthyVenues(t *testing.T) {
	bus := eventbus.New(nil, zerolog.Nop())
	a := New(bus, zerolog.Nop())

	pos := model.Position{
		Venue: model.VenueHyperliquid, Symbol: "BTC-PERP", Size: decimal.NewFromInt(1),
		EntryPrice: decimal.NewFromInt(60000), MarkPrice: decimal.NewFromInt(65000), UpdatedAt: time.Now(),
	}
	bal := model.Balance{Venue: model.VenueHyperliquid, Asset: "USD", Total: decimal.NewFromInt(1000), Available: decimal.NewFromInt(1000)}

	src := &fakeVenueSource{
		statuses:  []model.VenueStatus{{Venue: model.VenueHyperliquid, ConnectionStatus: model.ConnConnected, WSStatus: model.ConnConnected, APIStatus: model.ConnConnected}},
		positions: []model.Position{pos},
		balances:  []model.Balance{bal},
	}
	a.SetVenueSource(src)

	a.refreshVenueData(context.Background())

	require.Len(t, a.Positions(), 1)
	assert.Equal(t, model.Symbol("BTC-PERP"), a.Positions()[0].Symbol)
	require.Len(t, a.Balances(), 1)
	assert.Equal(t, "USD", a.Balances()[0].Asset)
	assert.True(t, a.Healthy())
}

func TestRefreshVenueDataRemovesStalePositions(t *testing.T) {
	bus := eventbus.New(nil, zerolog.Nop())
	a := New(bus, zerolog.Nop())

	stale := model.Position{
		Venue: model.VenueHyperliquid, Symbol: "ETH-PERP", Size: decimal.NewFromInt(1),
		EntryPrice: decimal.NewFromInt(3000), MarkPrice: decimal.NewFromInt(3100), UpdatedAt: time.Now(),
	}
	a.positions.Upsert(stale)
	require.Len(t, a.Positions(), 1)

	src := &fakeVenueSource{
		statuses: []model.VenueStatus{{Venue: model.VenueHyperliquid, ConnectionStatus: model.ConnConnected, WSStatus: model.ConnConnected, APIStatus: model.ConnConnected}},
	}
	a.SetVenueSource(src)

	a.refreshVenueData(context.Background())

	assert.Empty(t, a.Positions())
}

func TestRefreshVenueDataSkipsUnhealthyVenues(t *testing.T) {
	bus := eventbus.New(nil, zerolog.Nop())
	a := New(bus, zerolog.Nop())

	src := &fakeVenueSource{
		statuses:  []model.VenueStatus{{Venue: model.VenueLighter, ConnectionStatus: model.ConnDisconnected, WSStatus: model.ConnDisconnected, APIStatus: model.ConnDisconnected}},
		positions: []model.Position{{Venue: model.VenueLighter, Symbol: "SOL-PERP", Size: decimal.NewFromInt(1), UpdatedAt: time.Now()}},
	}
	a.SetVenueSource(src)

	a.refreshVenueData(context.Background())

	assert.Empty(t, a.Positions())
	assert.True(t, a.Healthy())
}
