package tradexyz

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/model"
	"github.com/tradefabric/gateway/internal/venue"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	bus := eventbus.New(nil, zerolog.Nop())
	a, err := New(venue.DefaultConfig(model.VenueTradeXYZ, "", ""), bus, zerolog.Nop())
	require.NoError(t, err)
	return a.(*Adapter)
}

func TestTradeXYZSupportsWidestSymbolSet(t *testing.T) {
	a := newTestAdapter(t)
	symbols, err := a.GetSymbols(context.Background())
	require.NoError(t, err)
	assert.Contains(t, symbols, model.Symbol("OP-PERP"))
	assert.Len(t, symbols, 5)
}

func TestTradeXYZPlaceOrderGeneratesVenuePrefixedID(t *testing.T) {
	a := newTestAdapter(t)
	order := model.Order{Symbol: "ETH-PERP", Side: model.SideSell, Type: model.OrderTypeMarket, Quantity: decimal.NewFromFloat(1)}

	placed, err := a.PlaceOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Contains(t, placed.VenueID, "TX-")
}

func TestTradeXYZCancelAfterFillFails(t *testing.T) {
	a := newTestAdapter(t)
	order := model.Order{Symbol: "ETH-PERP", Side: model.SideBuy, Type: model.OrderTypeMarket, Quantity: decimal.NewFromFloat(1)}
	placed, err := a.PlaceOrder(context.Background(), order)
	require.NoError(t, err)

	ok, err := a.CancelOrder(context.Background(), placed.VenueID)
	assert.False(t, ok)
	require.Error(t, err)
}
