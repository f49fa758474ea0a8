package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/tradefabric/gateway/internal/model"
)

func TestCalculateSumsNotionalIntoAssetAllocation(t *testing.T) {
	book := NewPositionBook()
	now := time.Now().UTC()
	book.Upsert(model.Position{Venue: model.VenueHyperliquid, Symbol: "BTC-PERP", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(60000), MarkPrice: decimal.NewFromInt(65000), UpdatedAt: now})
	book.Upsert(model.Position{Venue: model.VenueLighter, Symbol: "ETH-PERP", Size: decimal.NewFromInt(2), EntryPrice: decimal.NewFromInt(3000), MarkPrice: decimal.NewFromInt(3200), UpdatedAt: now})

	m := Calculate(book, book.ByVenue, 3)
	assert.True(t, m.AssetAllocation["BTC"].Equal(decimal.NewFromInt(65000)))
	assert.True(t, m.AssetAllocation["ETH"].Equal(decimal.NewFromInt(6400)))
	assert.True(t, m.TotalValueUSD.Equal(decimal.NewFromInt(71400)))
	assert.Equal(t, 2, m.PositionCount)
	assert.Equal(t, 3, m.ActiveOrderCount)
}

func TestCalculateVenueAllocationOmitsZeroExposureVenues(t *testing.T) {
	book := NewPositionBook()
	book.Upsert(model.Position{Venue: model.VenueHyperliquid, Symbol: "BTC-PERP", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(60000), MarkPrice: decimal.NewFromInt(65000), UpdatedAt: time.Now()})

	m := Calculate(book, book.ByVenue, 0)
	_, hasHL := m.VenueAllocation[model.VenueHyperliquid]
	_, hasLighter := m.VenueAllocation[model.VenueLighter]
	assert.True(t, hasHL)
	assert.False(t, hasLighter)
}

func TestRiskSnapshotLargestPositionNotional(t *testing.T) {
	book := NewPositionBook()
	book.Upsert(model.Position{Venue: model.VenueHyperliquid, Symbol: "BTC-PERP", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(60000), MarkPrice: decimal.NewFromInt(65000), UpdatedAt: time.Now()})
	book.Upsert(model.Position{Venue: model.VenueLighter, Symbol: "ETH-PERP", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(3000), MarkPrice: decimal.NewFromInt(3000), UpdatedAt: time.Now()})

	m := Calculate(book, book.ByVenue, 0)
	assert.True(t, m.Risk.LargestPositionNotional.Equal(decimal.NewFromInt(65000)))
}
