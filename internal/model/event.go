package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType discriminates the Event tagged union. Grounded on
// original_source/app/core/events.py's per-kind dataclasses (OrderEvent,
// PositionEvent, BalanceEvent, MarketDataEvent, TradeEvent,
// ConnectionEvent, SystemEvent).
type EventType string

const (
	EventOrderUpdate      EventType = "order_update"
	EventPositionUpdate   EventType = "position_update"
	EventBalanceUpdate    EventType = "balance_update"
	EventMarketDataUpdate EventType = "market_data_update"
	EventTradeUpdate      EventType = "trade_update"
	EventConnectionUpdate EventType = "connection_update"
	EventSystemUpdate     EventType = "system_update"
)

// Channel returns the logical event-bus channel an event of this type
// is published to when no channel is given explicitly.
func (t EventType) Channel() string {
	switch t {
	case EventOrderUpdate:
		return "orders"
	case EventPositionUpdate:
		return "positions"
	case EventBalanceUpdate:
		return "balances"
	case EventMarketDataUpdate:
		return "market_data"
	case EventTradeUpdate:
		return "trades"
	case EventConnectionUpdate:
		return "connections"
	case EventSystemUpdate:
		return "system"
	default:
		return "system"
	}
}

// Event is the canonical tagged variant carried over the Event Bus.
// Exactly one payload field is populated, matching EventType.
type Event struct {
	EventID   string
	EventType EventType
	Ts        time.Time
	Venue     Venue

	Order      *Order
	Position   *Position
	Balance    *Balance
	MarketData *MarketData
	Trade      *Trade
	Connection *ConnectionPayload
	System     *SystemPayload
}

// ConnectionPayload is the payload of a connection_update event.
type ConnectionPayload struct {
	ConnectionType string // "websocket" | "api"
	Status         ConnStatus
	ErrorMessage   string
}

// SystemPayload is the payload of a system_update event (metrics
// ticks, health-monitor snapshots, breaker state changes).
type SystemPayload struct {
	Component string
	Status    string
	Message   string
	Data      map[string]interface{}
}

// NewEvent stamps EventID/Ts/EventType if unset, grounded on
// BaseEvent.__post_init__ in original_source/app/core/events.py.
func NewEvent(t EventType, venue Venue) Event {
	return Event{EventID: uuid.NewString(), EventType: t, Ts: time.Now().UTC(), Venue: venue}
}

func (e *Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	switch e.EventType {
	case EventOrderUpdate:
		if e.Order == nil {
			return fmt.Errorf("order_update event missing order payload")
		}
	case EventPositionUpdate:
		if e.Position == nil {
			return fmt.Errorf("position_update event missing position payload")
		}
	case EventBalanceUpdate:
		if e.Balance == nil {
			return fmt.Errorf("balance_update event missing balance payload")
		}
	case EventMarketDataUpdate:
		if e.MarketData == nil {
			return fmt.Errorf("market_data_update event missing market data payload")
		}
	case EventTradeUpdate:
		if e.Trade == nil {
			return fmt.Errorf("trade_update event missing trade payload")
		}
	case EventConnectionUpdate:
		if e.Connection == nil {
			return fmt.Errorf("connection_update event missing connection payload")
		}
	case EventSystemUpdate:
		if e.System == nil {
			return fmt.Errorf("system_update event missing system payload")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	return nil
}

type eventJSON struct {
	EventID    string             `json:"event_id"`
	EventType  EventType          `json:"event_type"`
	Ts         time.Time          `json:"ts"`
	Venue      Venue              `json:"venue"`
	Order      *Order             `json:"order,omitempty"`
	Position   *Position          `json:"position,omitempty"`
	Balance    *Balance           `json:"balance,omitempty"`
	MarketData *MarketData        `json:"market_data,omitempty"`
	Trade      *Trade             `json:"trade,omitempty"`
	Connection *ConnectionPayload `json:"connection,omitempty"`
	System     *SystemPayload     `json:"system,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	j := eventJSON{
		EventID: e.EventID, EventType: e.EventType, Ts: e.Ts.UTC(), Venue: e.Venue,
		Order: e.Order, Position: e.Position, Balance: e.Balance, MarketData: e.MarketData,
		Trade: e.Trade, Connection: e.Connection, System: e.System,
	}
	return json.Marshal(j)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var j eventJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	e.EventID, e.EventType, e.Ts, e.Venue = j.EventID, j.EventType, j.Ts, j.Venue
	e.Order, e.Position, e.Balance, e.MarketData = j.Order, j.Position, j.Balance, j.MarketData
	e.Trade, e.Connection, e.System = j.Trade, j.Connection, j.System
	return nil
}
