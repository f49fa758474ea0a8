package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefabric/gateway/internal/model"
)

func TestConsolidatePositionWeightsEntryPriceBySize(t *testing.T) {
	book := NewPositionBook()
	now := time.Now().UTC()

	book.Upsert(model.Position{
		Venue: model.VenueHyperliquid, Symbol: "BTC-PERP",
		Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(60000), MarkPrice: decimal.NewFromInt(65000),
		UnrealizedPnL: decimal.NewFromInt(5000), UpdatedAt: now,
	})
	book.Upsert(model.Position{
		Venue: model.VenueLighter, Symbol: "BTC-PERP",
		Size: decimal.NewFromInt(3), EntryPrice: decimal.NewFromInt(64000), MarkPrice: decimal.NewFromInt(65500),
		UnrealizedPnL: decimal.NewFromInt(4500), UpdatedAt: now.Add(time.Second),
	})

	cp, ok := book.Get("BTC-PERP")
	require.True(t, ok)
	assert.True(t, cp.Size.Equal(decimal.NewFromInt(4)))
	// weighted entry = (60000*1 + 64000*3) / 4 = 63000
	assert.True(t, cp.EntryPrice.Equal(decimal.NewFromInt(63000)), "got %s", cp.EntryPrice)
	// mark price follows the most-recently-updated venue (lighter)
	assert.True(t, cp.MarkPrice.Equal(decimal.NewFromInt(65500)))
	assert.True(t, cp.UnrealizedPnL.Equal(decimal.NewFromInt(9500)))
	assert.ElementsMatch(t, cp.Venues, []model.Venue{model.VenueHyperliquid, model.VenueLighter})
}

func TestZeroSizePositionRemovesVenueEntry(t *testing.T) {
	book := NewPositionBook()
	book.Upsert(model.Position{Venue: model.VenueHyperliquid, Symbol: "ETH-PERP", Size: decimal.NewFromInt(2), EntryPrice: decimal.NewFromInt(3000), MarkPrice: decimal.NewFromInt(3000), UpdatedAt: time.Now()})
	book.Upsert(model.Position{Venue: model.VenueHyperliquid, Symbol: "ETH-PERP", Size: decimal.Zero})

	_, ok := book.Get("ETH-PERP")
	assert.False(t, ok)
}

func TestRemoveLastVenueDropsConsolidatedEntry(t *testing.T) {
	book := NewPositionBook()
	book.Upsert(model.Position{Venue: model.VenueHyperliquid, Symbol: "SOL-PERP", Size: decimal.NewFromInt(10), EntryPrice: decimal.NewFromInt(140), MarkPrice: decimal.NewFromInt(140), UpdatedAt: time.Now()})
	book.Remove("SOL-PERP", model.VenueHyperliquid)

	_, ok := book.Get("SOL-PERP")
	assert.False(t, ok)
	assert.Empty(t, book.All())
}
