package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionNotionalAndPnLPct(t *testing.T) {
	p := &Position{
		Size: decimal.NewFromFloat(-2.0), EntryPrice: decimal.NewFromInt(3000),
		MarkPrice: decimal.NewFromInt(3100), UnrealizedPnL: decimal.NewFromInt(-200),
	}
	assert.True(t, p.Notional().Equal(decimal.NewFromInt(6200)))
	// -200 / (2.0*3000) * 100 = -3.333...
	expected := decimal.NewFromInt(-200).Div(decimal.NewFromInt(6000)).Mul(decimal.NewFromInt(100))
	assert.True(t, p.PnLPct().Equal(expected))
}

func TestPositionPnLPctZeroDenominator(t *testing.T) {
	p := &Position{Size: decimal.Zero, EntryPrice: decimal.Zero}
	assert.True(t, p.PnLPct().Equal(decimal.Zero))
}

func TestPositionJSONRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	orig := Position{
		Venue: VenueLighter, Symbol: "ETH-PERP", Size: decimal.NewFromFloat(1.5),
		EntryPrice: decimal.NewFromInt(3020), MarkPrice: decimal.NewFromInt(3050),
		UnrealizedPnL: decimal.NewFromInt(45), RealizedPnL: decimal.Zero,
		MarginUsed: decimal.NewFromInt(500), UpdatedAt: now,
	}
	data, err := json.Marshal(orig)
	require.NoError(t, err)
	var got Position
	require.NoError(t, json.Unmarshal(data, &got))
	assert.True(t, orig.Size.Equal(got.Size))
	assert.True(t, orig.EntryPrice.Equal(got.EntryPrice))
	assert.Equal(t, orig.UpdatedAt, got.UpdatedAt)
}

func TestBalanceInvariant(t *testing.T) {
	b := &Balance{Total: decimal.NewFromInt(100), Available: decimal.NewFromInt(60), Locked: decimal.NewFromInt(40)}
	assert.NoError(t, b.Validate())

	bad := &Balance{Total: decimal.NewFromInt(100), Available: decimal.NewFromInt(60), Locked: decimal.NewFromInt(30)}
	assert.Error(t, bad.Validate())
}

func TestMarketDataSpreadAndMid(t *testing.T) {
	md := &MarketData{
		Bid: PriceLevel{Price: decimal.NewFromInt(50950)},
		Ask: PriceLevel{Price: decimal.NewFromInt(51010)},
	}
	assert.True(t, md.Spread().Equal(decimal.NewFromInt(60)))
	assert.True(t, md.Spread().GreaterThanOrEqual(decimal.Zero))
	assert.True(t, md.Mid().Equal(decimal.NewFromInt(50980)))
}
