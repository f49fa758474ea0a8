// Package wshub is the Client WebSocket Hub of spec.md §4.5: a
// connection and subscription manager that delivers topic-filtered
// streams to external consumers over the four public endpoints
// /ws/market-data, /ws/orders, /ws/positions and /ws/portfolio.
//
// Grounded on the teacher's internal/infrastructure/websocket package
// for the per-connection read/write pump idiom and on
// interfaces/http/server.go for the request-ID-stamped HTTP handler
// style, reworked here around gorilla/websocket server-side upgrades
// rather than the teacher's outbound exchange client.
package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/marketdata"
	"github.com/tradefabric/gateway/internal/model"
	"github.com/tradefabric/gateway/internal/portfolio"
)

// Topic is one of the closed set of subscription topics spec.md §4.5
// names.
const (
	TopicMarketData = "market_data"
	TopicOrders     = "orders"
	TopicPositions  = "positions"
	TopicPortfolio  = "portfolio"
)

var validTopics = map[string]bool{
	TopicMarketData: true, TopicOrders: true, TopicPositions: true, TopicPortfolio: true,
}

const (
	sendQueueSize  = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// MarketDataSource is the subset of *marketdata.Aggregator the hub
// needs to emit an immediate snapshot on subscribe.
type MarketDataSource interface {
	Aggregate(symbol model.Symbol) (marketdata.Aggregated, bool)
}

// PortfolioSource is the subset of *portfolio.Aggregator the hub needs
// to emit snapshots for the orders/positions/portfolio topics.
type PortfolioSource interface {
	Positions() []model.ConsolidatedPosition
	ActiveOrders() []model.Order
	Metrics() portfolio.Metrics
}

// Hub tracks every live external WebSocket connection and its topic
// subscriptions, and routes Event Bus traffic to the matching
// subscribers. Grounded on spec.md §4.5's "Client Hub" paragraph.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection

	marketData MarketDataSource
	portfolio  PortfolioSource
	bus        *eventbus.Bus
	subs       []*eventbus.Subscription
	logger     zerolog.Logger
	upgrader   websocket.Upgrader
}

func New(bus *eventbus.Bus, md MarketDataSource, pf PortfolioSource, logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		marketData:  md,
		portfolio:   pf,
		bus:         bus,
		logger:      logger.With().Str("component", "wshub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize: 4096, WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start subscribes the hub to the Event Bus channels that feed its
// four topics, grounded on the "Routing rule" paragraph of spec.md
// §4.5.
func (h *Hub) Start(ctx context.Context) error {
	h.subs = []*eventbus.Subscription{
		h.bus.Subscribe(eventbus.ChannelOrders, h.handleOrderEvent),
		h.bus.Subscribe(eventbus.ChannelPositions, h.handlePositionEvent),
		h.bus.Subscribe(eventbus.ChannelMarketData, h.handleMarketDataEvent),
		h.bus.Subscribe(eventbus.ChannelSystem, h.handleSystemEvent),
	}
	return nil
}

// Shutdown unsubscribes from the bus and closes every live connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	for _, s := range h.subs {
		h.bus.Unsubscribe(s)
	}
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		conns = append(conns, c)
	}
	h.connections = make(map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	return nil
}

// ServeMarketData, ServeOrders, ServePositions and ServePortfolio are
// the four public WS upgrade handlers of spec.md §6's "Client
// WebSocket surface" table. The endpoint's own topic is used only as
// the implicit topic when a client's subscribe or unsubscribe message
// omits both pair and topic.
func (h *Hub) ServeMarketData(w http.ResponseWriter, r *http.Request) { h.serve(TopicMarketData)(w, r) }
func (h *Hub) ServeOrders(w http.ResponseWriter, r *http.Request)     { h.serve(TopicOrders)(w, r) }
func (h *Hub) ServePositions(w http.ResponseWriter, r *http.Request)  { h.serve(TopicPositions)(w, r) }
func (h *Hub) ServePortfolio(w http.ResponseWriter, r *http.Request)  { h.serve(TopicPortfolio)(w, r) }

func (h *Hub) serve(endpointTopic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		c := newConnection(uuid.NewString(), wsConn, h)
		h.addConnection(c)
		h.logger.Info().Str("connection_id", c.id).Str("endpoint", endpointTopic).Msg("client connected")

		h.sendEstablished(c)
		go c.writePump()
		c.readPump(endpointTopic)
	}
}

func (h *Hub) addConnection(c *Connection) {
	h.mu.Lock()
	h.connections[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) removeConnection(id string) {
	h.mu.Lock()
	delete(h.connections, id)
	h.mu.Unlock()
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

func (h *Hub) sendEstablished(c *Connection) {
	msg := establishedMessage{
		Type: "connection_established", ConnectionID: c.id,
		Subscriptions: []string{}, Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(payload)
}

type establishedMessage struct {
	Type          string    `json:"type"`
	ConnectionID  string    `json:"connection_id"`
	Subscriptions []string  `json:"subscriptions"`
	Timestamp     time.Time `json:"timestamp"`
}

// serverEnvelope is the event-push frame of spec.md §6: "Subsequent
// messages are event envelopes {type, venue?, symbol?, data,
// timestamp}".
type serverEnvelope struct {
	Type      string       `json:"type"`
	Venue     model.Venue  `json:"venue,omitempty"`
	Symbol    model.Symbol `json:"symbol,omitempty"`
	Data      interface{}  `json:"data"`
	Timestamp time.Time    `json:"timestamp"`
}

// clientMessage is the control-message frame a client sends, grounded
// on spec.md §4.5: "{action: subscribe|unsubscribe|ping, pair|topic?}".
type clientMessage struct {
	Action    string `json:"action"`
	Pair      string `json:"pair,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// sendSnapshot emits the last-known snapshot for topic/symbol directly
// to c, grounded on "On subscribe, the hub immediately emits the last
// known snapshot (if any)".
func (h *Hub) sendSnapshot(c *Connection, topic string, symbol model.Symbol) {
	switch topic {
	case TopicMarketData:
		if symbol == "" || h.marketData == nil {
			return
		}
		agg, ok := h.marketData.Aggregate(symbol)
		if !ok {
			return
		}
		c.trySendEnvelope(serverEnvelope{Type: "market_data_update", Symbol: symbol, Data: agg, Timestamp: time.Now().UTC()})
	case TopicPositions:
		if h.portfolio == nil {
			return
		}
		c.trySendEnvelope(serverEnvelope{Type: "position_update", Data: h.portfolio.Positions(), Timestamp: time.Now().UTC()})
	case TopicOrders:
		if h.portfolio == nil {
			return
		}
		c.trySendEnvelope(serverEnvelope{Type: "order_update", Data: h.portfolio.ActiveOrders(), Timestamp: time.Now().UTC()})
	case TopicPortfolio:
		if h.portfolio == nil {
			return
		}
		c.trySendEnvelope(serverEnvelope{Type: "system_update", Data: h.portfolio.Metrics(), Timestamp: time.Now().UTC()})
	}
}
