package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeMarket     OrderType = "market"
	OrderTypeLimit      OrderType = "limit"
	OrderTypeStopMarket OrderType = "stop_market"
	OrderTypeStopLimit  OrderType = "stop_limit"
)

type TimeInForce string

const (
	TIFGTC TimeInForce = "gtc"
	TIFIOC TimeInForce = "ioc"
	TIFFOK TimeInForce = "fok"
)

type OrderStatus string

const (
	OrderPending         OrderStatus = "pending"
	OrderOpen            OrderStatus = "open"
	OrderPartiallyFilled OrderStatus = "partially_filled"
	OrderFilled          OrderStatus = "filled"
	OrderCancelled       OrderStatus = "cancelled"
	OrderRejected        OrderStatus = "rejected"
	OrderExpired         OrderStatus = "expired"
)

// Active reports whether the status belongs to the active set
// {pending, open, partially_filled}.
func (s OrderStatus) Active() bool {
	switch s {
	case OrderPending, OrderOpen, OrderPartiallyFilled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status belongs to the terminal set
// {filled, cancelled, rejected, expired}.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderRejected, OrderExpired:
		return true
	default:
		return false
	}
}

// validTransitions encodes the allowed order status machine:
// pending -> open -> (partially_filled)* -> filled | cancelled | rejected | expired
var validTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderPending: {
		OrderOpen: true, OrderRejected: true, OrderCancelled: true, OrderExpired: true,
	},
	OrderOpen: {
		OrderPartiallyFilled: true, OrderFilled: true, OrderCancelled: true, OrderExpired: true, OrderRejected: true,
	},
	OrderPartiallyFilled: {
		OrderPartiallyFilled: true, OrderFilled: true, OrderCancelled: true, OrderExpired: true,
	},
}

// CanTransition reports whether moving from s to next is a legal step
// of the order state machine. Terminal states admit no further
// transition (idempotent re-application of the same terminal status is
// handled by callers, not by this function).
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	return validTransitions[s][next]
}

// Order is the canonical, venue-agnostic representation of an order.
type Order struct {
	Venue          Venue
	Symbol         Symbol
	Side           OrderSide
	Type           OrderType
	Quantity       decimal.Decimal
	Price          *decimal.Decimal
	StopPrice      *decimal.Decimal
	TIF            TimeInForce
	ClientID       string
	VenueID        string
	Status         OrderStatus
	FilledQty      decimal.Decimal
	AvgFillPrice   *decimal.Decimal
	Fee            *decimal.Decimal
	RejectReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	FilledAt       *time.Time
}

// RemainingQty returns Quantity - FilledQty, the derived invariant
// remaining_qty = qty - filled_qty.
func (o *Order) RemainingQty() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}

// Validate checks the structural invariants of §3: limit/stop_limit
// require Price; stop_market/stop_limit require StopPrice;
// 0 <= FilledQty <= Quantity.
func (o *Order) Validate() error {
	if o.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("quantity must be positive, got %s", o.Quantity)
	}
	switch o.Type {
	case OrderTypeLimit, OrderTypeStopLimit:
		if o.Price == nil {
			return fmt.Errorf("%s order requires price", o.Type)
		}
	}
	switch o.Type {
	case OrderTypeStopMarket, OrderTypeStopLimit:
		if o.StopPrice == nil {
			return fmt.Errorf("%s order requires stop_price", o.Type)
		}
	}
	if o.FilledQty.LessThan(decimal.Zero) || o.FilledQty.GreaterThan(o.Quantity) {
		return fmt.Errorf("filled_qty %s out of range [0, %s]", o.FilledQty, o.Quantity)
	}
	return nil
}

type orderJSON struct {
	Venue        Venue      `json:"venue"`
	Symbol       Symbol     `json:"symbol"`
	Side         OrderSide  `json:"side"`
	Type         OrderType  `json:"type"`
	Quantity     string     `json:"quantity"`
	Price        *string    `json:"price,omitempty"`
	StopPrice    *string    `json:"stop_price,omitempty"`
	TIF          TimeInForce `json:"tif"`
	ClientID     string     `json:"client_id"`
	VenueID      string     `json:"venue_id,omitempty"`
	Status       OrderStatus `json:"status"`
	FilledQty    string     `json:"filled_qty"`
	RemainingQty string     `json:"remaining_qty"`
	AvgFillPrice *string    `json:"avg_fill_price,omitempty"`
	Fee          *string    `json:"fee,omitempty"`
	RejectReason string     `json:"reject_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FilledAt     *time.Time `json:"filled_at,omitempty"`
}

// MarshalJSON implements the canonical-JSON encoding: decimals as
// strings, timestamps as RFC-3339 UTC.
func (o Order) MarshalJSON() ([]byte, error) {
	j := orderJSON{
		Venue: o.Venue, Symbol: o.Symbol, Side: o.Side, Type: o.Type,
		Quantity: o.Quantity.String(), TIF: o.TIF, ClientID: o.ClientID,
		VenueID: o.VenueID, Status: o.Status, FilledQty: o.FilledQty.String(),
		RemainingQty: o.RemainingQty().String(), RejectReason: o.RejectReason,
		CreatedAt: o.CreatedAt.UTC(), UpdatedAt: o.UpdatedAt.UTC(), FilledAt: utcPtr(o.FilledAt),
	}
	if o.Price != nil {
		s := o.Price.String()
		j.Price = &s
	}
	if o.StopPrice != nil {
		s := o.StopPrice.String()
		j.StopPrice = &s
	}
	if o.AvgFillPrice != nil {
		s := o.AvgFillPrice.String()
		j.AvgFillPrice = &s
	}
	if o.Fee != nil {
		s := o.Fee.String()
		j.Fee = &s
	}
	return json.Marshal(j)
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var j orderJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	qty, err := decimal.NewFromString(j.Quantity)
	if err != nil {
		return fmt.Errorf("quantity: %w", err)
	}
	filled, err := decimal.NewFromString(j.FilledQty)
	if err != nil {
		return fmt.Errorf("filled_qty: %w", err)
	}
	o.Venue, o.Symbol, o.Side, o.Type = j.Venue, j.Symbol, j.Side, j.Type
	o.Quantity, o.FilledQty = qty, filled
	o.TIF, o.ClientID, o.VenueID, o.Status = j.TIF, j.ClientID, j.VenueID, j.Status
	o.RejectReason = j.RejectReason
	o.CreatedAt, o.UpdatedAt, o.FilledAt = j.CreatedAt, j.UpdatedAt, j.FilledAt
	if o.Price, err = decimalPtr(j.Price); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if o.StopPrice, err = decimalPtr(j.StopPrice); err != nil {
		return fmt.Errorf("stop_price: %w", err)
	}
	if o.AvgFillPrice, err = decimalPtr(j.AvgFillPrice); err != nil {
		return fmt.Errorf("avg_fill_price: %w", err)
	}
	if o.Fee, err = decimalPtr(j.Fee); err != nil {
		return fmt.Errorf("fee: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func decimalPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
