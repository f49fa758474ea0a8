package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Position is the canonical per-venue position record. Size is signed:
// long > 0, short < 0.
type Position struct {
	Venue            Venue
	Symbol           Symbol
	Size             decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice *decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	RealizedPnL      decimal.Decimal
	MarginUsed       decimal.Decimal
	Leverage         *decimal.Decimal
	OpenedAt         *time.Time
	UpdatedAt        time.Time
}

// Notional returns |size| * mark_price.
func (p *Position) Notional() decimal.Decimal {
	return p.Size.Abs().Mul(p.MarkPrice)
}

// PnLPct returns unrealized_pnl / (|size| * entry_price) * 100, or
// zero if the denominator is zero.
func (p *Position) PnLPct() decimal.Decimal {
	denom := p.Size.Abs().Mul(p.EntryPrice)
	if denom.IsZero() {
		return decimal.Zero
	}
	return p.UnrealizedPnL.Div(denom).Mul(decimal.NewFromInt(100))
}

type positionJSON struct {
	Venue            Venue      `json:"venue"`
	Symbol           Symbol     `json:"symbol"`
	Size             string     `json:"size"`
	EntryPrice       string     `json:"entry_price"`
	MarkPrice        string     `json:"mark_price"`
	LiquidationPrice *string    `json:"liquidation_price,omitempty"`
	UnrealizedPnL    string     `json:"unrealized_pnl"`
	RealizedPnL      string     `json:"realized_pnl"`
	MarginUsed       string     `json:"margin_used"`
	Leverage         *string    `json:"leverage,omitempty"`
	Notional         string     `json:"notional"`
	PnLPct           string     `json:"pnl_pct"`
	OpenedAt         *time.Time `json:"opened_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (p Position) MarshalJSON() ([]byte, error) {
	j := positionJSON{
		Venue: p.Venue, Symbol: p.Symbol, Size: p.Size.String(),
		EntryPrice: p.EntryPrice.String(), MarkPrice: p.MarkPrice.String(),
		UnrealizedPnL: p.UnrealizedPnL.String(), RealizedPnL: p.RealizedPnL.String(),
		MarginUsed: p.MarginUsed.String(), Notional: p.Notional().String(),
		PnLPct: p.PnLPct().String(), OpenedAt: utcPtr(p.OpenedAt), UpdatedAt: p.UpdatedAt.UTC(),
	}
	if p.LiquidationPrice != nil {
		s := p.LiquidationPrice.String()
		j.LiquidationPrice = &s
	}
	if p.Leverage != nil {
		s := p.Leverage.String()
		j.Leverage = &s
	}
	return json.Marshal(j)
}

func (p *Position) UnmarshalJSON(data []byte) error {
	var j positionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	p.Venue, p.Symbol, p.UpdatedAt, p.OpenedAt = j.Venue, j.Symbol, j.UpdatedAt, j.OpenedAt
	if p.Size, err = decimal.NewFromString(j.Size); err != nil {
		return err
	}
	if p.EntryPrice, err = decimal.NewFromString(j.EntryPrice); err != nil {
		return err
	}
	if p.MarkPrice, err = decimal.NewFromString(j.MarkPrice); err != nil {
		return err
	}
	if p.UnrealizedPnL, err = decimal.NewFromString(j.UnrealizedPnL); err != nil {
		return err
	}
	if p.RealizedPnL, err = decimal.NewFromString(j.RealizedPnL); err != nil {
		return err
	}
	if p.MarginUsed, err = decimal.NewFromString(j.MarginUsed); err != nil {
		return err
	}
	if p.LiquidationPrice, err = decimalPtr(j.LiquidationPrice); err != nil {
		return err
	}
	if p.Leverage, err = decimalPtr(j.Leverage); err != nil {
		return err
	}
	return nil
}

// ConsolidatedPosition is the cross-venue view of a symbol's position,
// derived per spec.md §4.4 — never the source of truth.
type ConsolidatedPosition struct {
	Symbol        Symbol
	Size          decimal.Decimal
	EntryPrice    decimal.Decimal
	MarkPrice     decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal
	MarginUsed    decimal.Decimal
	OpenedAt      *time.Time
	Venues        []Venue
	UpdatedAt     time.Time
}
