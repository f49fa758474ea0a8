package portfolio

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradefabric/gateway/internal/model"
)

// Metrics is the portfolio-level snapshot spec.md §4.4 requires.
// Grounded on portfolio_aggregator.py's PortfolioMetrics.
type Metrics struct {
	TotalValueUSD       decimal.Decimal
	TotalPnL            decimal.Decimal
	TotalUnrealizedPnL  decimal.Decimal
	TotalRealizedPnL    decimal.Decimal
	TotalMarginUsed     decimal.Decimal
	AssetAllocation     map[string]decimal.Decimal
	VenueAllocation     map[model.Venue]decimal.Decimal
	PositionCount       int
	ActiveOrderCount    int
	LastUpdated         time.Time
	Risk                RiskSnapshot
}

// RiskSnapshot supplements the distilled spec with the risk-exposure
// metrics original_source/app/orchestrator/portfolio_aggregator.py's
// module docstring calls out ("Risk Exposure Metrics") but the
// distillation dropped. Derived fields only — no new inputs, no new
// invariant surface (spec.md SPEC_FULL §4.4 [SUPPLEMENT]).
type RiskSnapshot struct {
	LargestPositionNotional decimal.Decimal
	LargestVenueExposurePct decimal.Decimal
	LeverageWeightedAvg     decimal.Decimal
}

// assetOf extracts the base asset from a symbol like "BTC-PERP" -> "BTC".
func assetOf(symbol model.Symbol) string {
	s := string(symbol)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		return s[:i]
	}
	return s
}

// Calculate recomputes portfolio metrics from the current state of
// positions, balances, and the active-order count. Always returns a
// fresh value (replace-not-mutate), grounded on _calculate_metrics's
// "reset metrics" then recompute shape.
func Calculate(positions *PositionBook, venueRaw func(model.Venue) []model.Position, activeOrders int) Metrics {
	m := Metrics{
		AssetAllocation: make(map[string]decimal.Decimal),
		VenueAllocation: make(map[model.Venue]decimal.Decimal),
		LastUpdated:     time.Now().UTC(),
	}

	all := positions.All()
	var largestNotional decimal.Decimal
	var leverageSum, leverageWeight decimal.Decimal

	for _, p := range all {
		notional := p.Size.Abs().Mul(p.MarkPrice)
		m.TotalUnrealizedPnL = m.TotalUnrealizedPnL.Add(p.UnrealizedPnL)
		m.TotalRealizedPnL = m.TotalRealizedPnL.Add(p.RealizedPnL)
		m.TotalMarginUsed = m.TotalMarginUsed.Add(p.MarginUsed)
		m.TotalValueUSD = m.TotalValueUSD.Add(notional)

		asset := assetOf(p.Symbol)
		m.AssetAllocation[asset] = m.AssetAllocation[asset].Add(notional)

		if notional.GreaterThan(largestNotional) {
			largestNotional = notional
		}
	}

	for _, v := range model.Venues {
		var venueValue decimal.Decimal
		for _, p := range venueRaw(v) {
			notional := p.Size.Abs().Mul(p.MarkPrice)
			venueValue = venueValue.Add(notional)
			if p.Leverage != nil {
				leverageSum = leverageSum.Add(p.Leverage.Mul(notional))
				leverageWeight = leverageWeight.Add(notional)
			}
		}
		if !venueValue.IsZero() {
			m.VenueAllocation[v] = venueValue
		}
	}

	m.TotalPnL = m.TotalUnrealizedPnL.Add(m.TotalRealizedPnL)
	m.PositionCount = len(all)
	m.ActiveOrderCount = activeOrders

	m.Risk.LargestPositionNotional = largestNotional
	if !m.TotalValueUSD.IsZero() {
		largestVenue := decimal.Zero
		for _, v := range m.VenueAllocation {
			if v.GreaterThan(largestVenue) {
				largestVenue = v
			}
		}
		m.Risk.LargestVenueExposurePct = largestVenue.Div(m.TotalValueUSD).Mul(decimal.NewFromInt(100))
	}
	if !leverageWeight.IsZero() {
		m.Risk.LeverageWeightedAvg = leverageSum.Div(leverageWeight)
	}

	return m
}
