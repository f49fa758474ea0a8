package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single (price, size) quote.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

type priceLevelJSON struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (l PriceLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(priceLevelJSON{Price: l.Price.String(), Size: l.Size.String()})
}

func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var j priceLevelJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	if l.Price, err = decimal.NewFromString(j.Price); err != nil {
		return err
	}
	if l.Size, err = decimal.NewFromString(j.Size); err != nil {
		return err
	}
	return nil
}

// MarketData is a per-(venue,symbol) market snapshot.
type MarketData struct {
	Venue           Venue
	Symbol          Symbol
	Bid             PriceLevel
	Ask             PriceLevel
	LastPrice       decimal.Decimal
	Volume24h       decimal.Decimal
	High24h         decimal.Decimal
	Low24h          decimal.Decimal
	ChangePct24h    decimal.Decimal
	FundingRate     decimal.Decimal
	NextFundingTime time.Time
	OpenInterest    decimal.Decimal
	LatencyMS       int64
	ObservedAt      time.Time
}

// Spread returns ask - bid. Per spec.md §8 this must be >= 0.
func (m *MarketData) Spread() decimal.Decimal {
	return m.Ask.Price.Sub(m.Bid.Price)
}

// Mid returns (ask + bid) / 2.
func (m *MarketData) Mid() decimal.Decimal {
	return m.Ask.Price.Add(m.Bid.Price).Div(decimal.NewFromInt(2))
}

type marketDataJSON struct {
	Venue           Venue      `json:"venue"`
	Symbol          Symbol     `json:"symbol"`
	Bid             PriceLevel `json:"bid"`
	Ask             PriceLevel `json:"ask"`
	LastPrice       string     `json:"last_price"`
	Volume24h       string     `json:"volume_24h"`
	High24h         string     `json:"high_24h"`
	Low24h          string     `json:"low_24h"`
	ChangePct24h    string     `json:"change_pct_24h"`
	FundingRate     string     `json:"funding_rate"`
	NextFundingTime time.Time  `json:"next_funding_time"`
	OpenInterest    string     `json:"open_interest"`
	LatencyMS       int64      `json:"latency_ms"`
	ObservedAt      time.Time  `json:"observed_at"`
}

func (m MarketData) MarshalJSON() ([]byte, error) {
	j := marketDataJSON{
		Venue: m.Venue, Symbol: m.Symbol, Bid: m.Bid, Ask: m.Ask,
		LastPrice: m.LastPrice.String(), Volume24h: m.Volume24h.String(),
		High24h: m.High24h.String(), Low24h: m.Low24h.String(),
		ChangePct24h: m.ChangePct24h.String(), FundingRate: m.FundingRate.String(),
		NextFundingTime: m.NextFundingTime.UTC(), OpenInterest: m.OpenInterest.String(),
		LatencyMS: m.LatencyMS, ObservedAt: m.ObservedAt.UTC(),
	}
	return json.Marshal(j)
}

func (m *MarketData) UnmarshalJSON(data []byte) error {
	var j marketDataJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	m.Venue, m.Symbol, m.Bid, m.Ask = j.Venue, j.Symbol, j.Bid, j.Ask
	m.NextFundingTime, m.LatencyMS, m.ObservedAt = j.NextFundingTime, j.LatencyMS, j.ObservedAt
	if m.LastPrice, err = decimal.NewFromString(j.LastPrice); err != nil {
		return err
	}
	if m.Volume24h, err = decimal.NewFromString(j.Volume24h); err != nil {
		return err
	}
	if m.High24h, err = decimal.NewFromString(j.High24h); err != nil {
		return err
	}
	if m.Low24h, err = decimal.NewFromString(j.Low24h); err != nil {
		return err
	}
	if m.ChangePct24h, err = decimal.NewFromString(j.ChangePct24h); err != nil {
		return err
	}
	if m.FundingRate, err = decimal.NewFromString(j.FundingRate); err != nil {
		return err
	}
	if m.OpenInterest, err = decimal.NewFromString(j.OpenInterest); err != nil {
		return err
	}
	return nil
}
