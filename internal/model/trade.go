package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is an executed fill.
type Trade struct {
	Venue    Venue
	Symbol   Symbol
	TradeID  string
	Side     OrderSide
	Price    decimal.Decimal
	Quantity decimal.Decimal
	OrderID  string
	Fee      *decimal.Decimal
	Ts       time.Time
}

type tradeJSON struct {
	Venue    Venue     `json:"venue"`
	Symbol   Symbol    `json:"symbol"`
	TradeID  string    `json:"trade_id"`
	Side     OrderSide `json:"side"`
	Price    string    `json:"price"`
	Quantity string    `json:"quantity"`
	OrderID  string    `json:"order_id,omitempty"`
	Fee      *string   `json:"fee,omitempty"`
	Ts       time.Time `json:"ts"`
}

func (t Trade) MarshalJSON() ([]byte, error) {
	j := tradeJSON{
		Venue: t.Venue, Symbol: t.Symbol, TradeID: t.TradeID, Side: t.Side,
		Price: t.Price.String(), Quantity: t.Quantity.String(), OrderID: t.OrderID, Ts: t.Ts.UTC(),
	}
	if t.Fee != nil {
		s := t.Fee.String()
		j.Fee = &s
	}
	return json.Marshal(j)
}

func (t *Trade) UnmarshalJSON(data []byte) error {
	var j tradeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	var err error
	t.Venue, t.Symbol, t.TradeID, t.Side, t.OrderID, t.Ts = j.Venue, j.Symbol, j.TradeID, j.Side, j.OrderID, j.Ts
	if t.Price, err = decimal.NewFromString(j.Price); err != nil {
		return err
	}
	if t.Quantity, err = decimal.NewFromString(j.Quantity); err != nil {
		return err
	}
	if t.Fee, err = decimalPtr(j.Fee); err != nil {
		return err
	}
	return nil
}
