package wshub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tradefabric/gateway/internal/model"
)

// Connection wraps one accepted client WebSocket and its subscription
// state. Grounded on the teacher's per-connection goroutine pair
// (reader/writer with a buffered outbound channel) used throughout
// internal/infrastructure/websocket, reworked here for server-side
// accepted connections instead of an outbound exchange client.
type Connection struct {
	id   string
	conn *websocket.Conn
	hub  *Hub

	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]map[model.Symbol]struct{}

	closeOnce sync.Once
	logger    zerolog.Logger
}

func newConnection(id string, wsConn *websocket.Conn, h *Hub) *Connection {
	return &Connection{
		id: id, conn: wsConn, hub: h,
		send:          make(chan []byte, sendQueueSize),
		subscriptions: make(map[string]map[model.Symbol]struct{}),
		logger:        h.logger.With().Str("connection_id", id).Logger(),
	}
}

// trySend is a non-blocking enqueue; a full send queue means the
// client is not draining fast enough and the connection is dropped,
// grounded on "drop connection on send-queue overflow or send
// failure".
func (c *Connection) trySend(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.logger.Warn().Msg("send queue overflow, dropping connection")
		c.hub.removeConnection(c.id)
		c.close()
	}
}

func (c *Connection) trySendEnvelope(env serverEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to marshal envelope")
		return
	}
	c.trySend(payload)
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// writePump drains the send channel onto the socket. Exits (and closes
// the connection) on the first write error.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client control messages until the connection
// fails, dispatching subscribe/unsubscribe/ping. endpointTopic is the
// topic implied when a subscribe message names neither pair nor
// topic.
func (c *Connection) readPump(endpointTopic string) {
	defer func() {
		c.hub.removeConnection(c.id)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("malformed client message")
			continue
		}
		c.handleMessage(msg, endpointTopic)
	}
}

func (c *Connection) handleMessage(msg clientMessage, endpointTopic string) {
	switch msg.Action {
	case "subscribe":
		topic, symbol := resolveTopic(msg, endpointTopic)
		if !validTopics[topic] {
			return
		}
		c.subscribe(topic, symbol)
		c.hub.sendSnapshot(c, topic, symbol)
	case "unsubscribe":
		topic, symbol := resolveTopic(msg, endpointTopic)
		c.unsubscribe(topic, symbol)
	case "ping":
		c.trySend(mustMarshalPong())
	}
}

// resolveTopic derives (topic, symbol) from a client message: an
// explicit pair always means the market_data topic; an explicit topic
// field is used verbatim; otherwise the connection's endpoint topic
// applies.
func resolveTopic(msg clientMessage, endpointTopic string) (string, model.Symbol) {
	if msg.Pair != "" {
		return TopicMarketData, model.Symbol(msg.Pair)
	}
	if msg.Topic != "" {
		return msg.Topic, ""
	}
	return endpointTopic, ""
}

func (c *Connection) subscribe(topic string, symbol model.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	symbols, ok := c.subscriptions[topic]
	if !ok {
		symbols = make(map[model.Symbol]struct{})
		c.subscriptions[topic] = symbols
	}
	symbols[symbol] = struct{}{}
}

func (c *Connection) unsubscribe(topic string, symbol model.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	symbols, ok := c.subscriptions[topic]
	if !ok {
		return
	}
	delete(symbols, symbol)
	if len(symbols) == 0 {
		delete(c.subscriptions, topic)
	}
}

// wants reports whether this connection should receive a topic event
// for symbol. Non-market-data topics are unfiltered: any subscription
// entry under the topic qualifies. market_data is filtered by exact
// symbol match or a wildcard ("") subscription.
func (c *Connection) wants(topic string, symbol model.Symbol) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbols, ok := c.subscriptions[topic]
	if !ok {
		return false
	}
	if topic != TopicMarketData {
		return true
	}
	if _, exact := symbols[symbol]; exact {
		return true
	}
	_, wildcard := symbols[""]
	return wildcard
}

func mustMarshalPong() []byte {
	payload, _ := json.Marshal(struct {
		Type      string    `json:"type"`
		Timestamp time.Time `json:"timestamp"`
	}{Type: "pong", Timestamp: time.Now().UTC()})
	return payload
}
