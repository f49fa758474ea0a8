package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the canonical per-venue asset balance. Invariant:
// Total == Available + Locked.
type Balance struct {
	Venue     Venue
	Asset     string
	Total     decimal.Decimal
	Available decimal.Decimal
	Locked    decimal.Decimal
	USDValue  *decimal.Decimal
	UpdatedAt time.Time
}

func (b *Balance) Validate() error {
	if !b.Total.Equal(b.Available.Add(b.Locked)) {
		return fmt.Errorf("balance invariant violated: total %s != available %s + locked %s",
			b.Total, b.Available, b.Locked)
	}
	return nil
}

type balanceJSON struct {
	Venue     Venue     `json:"venue"`
	Asset     string    `json:"asset"`
	Total     string    `json:"total"`
	Available string    `json:"available"`
	Locked    string    `json:"locked"`
	USDValue  *string   `json:"usd_value,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b Balance) MarshalJSON() ([]byte, error) {
	j := balanceJSON{
		Venue: b.Venue, Asset: b.Asset, Total: b.Total.String(),
		Available: b.Available.String(), Locked: b.Locked.String(), UpdatedAt: b.UpdatedAt.UTC(),
	}
	if b.USDValue != nil {
		s := b.USDValue.String()
		j.USDValue = &s
	}
	return json.Marshal(j)
}

func (b *Balance) UnmarshalJSON(data []byte) error {
	var j balanceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	b.Venue, b.Asset, b.UpdatedAt = j.Venue, j.Asset, j.UpdatedAt
	if b.Total, err = decimal.NewFromString(j.Total); err != nil {
		return err
	}
	if b.Available, err = decimal.NewFromString(j.Available); err != nil {
		return err
	}
	if b.Locked, err = decimal.NewFromString(j.Locked); err != nil {
		return err
	}
	if b.USDValue, err = decimalPtr(j.USDValue); err != nil {
		return err
	}
	return nil
}

// ConsolidatedBalance sums Balance fields for one asset across venues.
type ConsolidatedBalance struct {
	Asset     string
	Total     decimal.Decimal
	Available decimal.Decimal
	Locked    decimal.Decimal
	USDValue  decimal.Decimal
	UpdatedAt time.Time
}
