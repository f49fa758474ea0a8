package marketdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefabric/gateway/internal/model"
)

func md(venue model.Venue, bid, ask decimal.Decimal, latency int64) model.MarketData {
	return model.MarketData{
		Venue: venue, Symbol: "BTC-PERP",
		Bid: model.PriceLevel{Price: bid, Size: decimal.NewFromInt(1)},
		Ask: model.PriceLevel{Price: ask, Size: decimal.NewFromInt(1)},
		LatencyMS: latency, ObservedAt: time.Now().UTC(),
	}
}

func TestBestBidIsHighestAcrossVenues(t *testing.T) {
	c := NewCache()
	c.Update(md(model.VenueHyperliquid, decimal.NewFromInt(64990), decimal.NewFromInt(65010), 8))
	c.Update(md(model.VenueLighter, decimal.NewFromInt(65000), decimal.NewFromInt(65020), 14))

	agg, ok := c.Aggregate("BTC-PERP")
	require.True(t, ok)
	assert.True(t, agg.BestBid.Price.Equal(decimal.NewFromInt(65000)))
	assert.Equal(t, model.VenueLighter, agg.BestBidVenue)
}

func TestBestAskIsLowestAcrossVenues(t *testing.T) {
	c := NewCache()
	c.Update(md(model.VenueHyperliquid, decimal.NewFromInt(64990), decimal.NewFromInt(65010), 8))
	c.Update(md(model.VenueLighter, decimal.NewFromInt(65000), decimal.NewFromInt(65005), 14))

	agg, ok := c.Aggregate("BTC-PERP")
	require.True(t, ok)
	assert.True(t, agg.BestAsk.Price.Equal(decimal.NewFromInt(65005)))
	assert.Equal(t, model.VenueLighter, agg.BestAskVenue)
}

func TestTieBreaksOnLowerLatencyThenVenueOrdinal(t *testing.T) {
	c := NewCache()
	same := decimal.NewFromInt(65000)
	// tradexyz has lower latency (10) than lighter (14) despite a higher venue ordinal.
	c.Update(md(model.VenueLighter, same, decimal.NewFromInt(65100), 14))
	c.Update(md(model.VenueTradeXYZ, same, decimal.NewFromInt(65100), 10))

	agg, ok := c.Aggregate("BTC-PERP")
	require.True(t, ok)
	assert.Equal(t, model.VenueTradeXYZ, agg.BestBidVenue)
}

func TestTieBreaksOnVenueOrdinalWhenLatencyEqual(t *testing.T) {
	c := NewCache()
	same := decimal.NewFromInt(65000)
	c.Update(md(model.VenueTradeXYZ, same, decimal.NewFromInt(65100), 10))
	c.Update(md(model.VenueHyperliquid, same, decimal.NewFromInt(65100), 10))

	agg, ok := c.Aggregate("BTC-PERP")
	require.True(t, ok)
	assert.Equal(t, model.VenueHyperliquid, agg.BestBidVenue) // hyperliquid ordinal 0 < tradexyz ordinal 2
}

func TestAggregateExpiresAfterTTL(t *testing.T) {
	c := NewCache()
	c.Update(md(model.VenueHyperliquid, decimal.NewFromInt(65000), decimal.NewFromInt(65010), 8))
	// simulate TTL expiry by rewriting computed_at directly to a time past the TTL, without sleeping.
	agg, ok := c.Aggregate("BTC-PERP")
	require.True(t, ok)
	agg.ComputedAt = time.Now().Add(-2 * time.Second)
	c.mu.Lock()
	c.aggregate["BTC-PERP"] = agg
	c.mu.Unlock()

	_, ok = c.Aggregate("BTC-PERP")
	assert.False(t, ok)
}
