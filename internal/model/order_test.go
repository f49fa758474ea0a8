package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	assert.True(t, OrderPending.CanTransition(OrderOpen))
	assert.True(t, OrderOpen.CanTransition(OrderPartiallyFilled))
	assert.True(t, OrderPartiallyFilled.CanTransition(OrderFilled))
	assert.True(t, OrderOpen.CanTransition(OrderCancelled))

	assert.False(t, OrderFilled.CanTransition(OrderOpen))
	assert.False(t, OrderCancelled.CanTransition(OrderOpen))
	assert.False(t, OrderPending.CanTransition(OrderFilled))
}

func TestOrderActiveTerminalSets(t *testing.T) {
	for _, s := range []OrderStatus{OrderPending, OrderOpen, OrderPartiallyFilled} {
		assert.True(t, s.Active())
		assert.False(t, s.Terminal())
	}
	for _, s := range []OrderStatus{OrderFilled, OrderCancelled, OrderRejected, OrderExpired} {
		assert.True(t, s.Terminal())
		assert.False(t, s.Active())
	}
}

func TestOrderRemainingQtyInvariant(t *testing.T) {
	o := &Order{Quantity: decimal.NewFromFloat(1.5), FilledQty: decimal.NewFromFloat(0.6)}
	assert.True(t, o.RemainingQty().Equal(decimal.NewFromFloat(0.9)))
	assert.True(t, o.FilledQty.Add(o.RemainingQty()).Equal(o.Quantity))
}

func TestOrderValidate(t *testing.T) {
	price := decimal.NewFromInt(100)
	cases := []struct {
		name    string
		order   Order
		wantErr bool
	}{
		{"valid market", Order{Type: OrderTypeMarket, Quantity: decimal.NewFromInt(1)}, false},
		{"limit missing price", Order{Type: OrderTypeLimit, Quantity: decimal.NewFromInt(1)}, true},
		{"limit with price", Order{Type: OrderTypeLimit, Quantity: decimal.NewFromInt(1), Price: &price}, false},
		{"stop_market missing stop", Order{Type: OrderTypeStopMarket, Quantity: decimal.NewFromInt(1)}, true},
		{"zero quantity", Order{Type: OrderTypeMarket, Quantity: decimal.Zero}, true},
		{"overfilled", Order{Type: OrderTypeMarket, Quantity: decimal.NewFromInt(1), FilledQty: decimal.NewFromInt(2)}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.order.Validate()
			if c.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderJSONRoundTrip(t *testing.T) {
	price := decimal.NewFromFloat(50123.456789012345)
	now := time.Now().UTC().Truncate(time.Second)
	orig := Order{
		Venue: VenueHyperliquid, Symbol: "BTC-PERP", Side: SideBuy, Type: OrderTypeLimit,
		Quantity: decimal.NewFromFloat(0.12345678901234), Price: &price, TIF: TIFGTC,
		ClientID: "cid-1", VenueID: "vid-1", Status: OrderOpen,
		FilledQty: decimal.NewFromFloat(0.01), CreatedAt: now, UpdatedAt: now,
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var got Order
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, orig.Venue, got.Venue)
	assert.True(t, orig.Quantity.Equal(got.Quantity))
	assert.True(t, orig.Price.Equal(*got.Price))
	assert.True(t, orig.FilledQty.Equal(got.FilledQty))
	assert.Equal(t, orig.Status, got.Status)
	assert.Equal(t, orig.CreatedAt, got.CreatedAt)
}

func TestOrderJSONEncodesDecimalsAsStrings(t *testing.T) {
	o := Order{Type: OrderTypeMarket, Quantity: decimal.NewFromInt(1), Status: OrderFilled}
	data, err := json.Marshal(o)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	_, isString := raw["quantity"].(string)
	assert.True(t, isString, "quantity must serialize as a JSON string, not a number")
}
