package wshub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradefabric/gateway/internal/eventbus"
	"github.com/tradefabric/gateway/internal/marketdata"
	"github.com/tradefabric/gateway/internal/model"
	"github.com/tradefabric/gateway/internal/portfolio"
)

func newTestHub(t *testing.T) (*Hub, *eventbus.Bus, *marketdata.Aggregator) {
	t.Helper()
	bus := eventbus.New(nil, zerolog.Nop())
	md := marketdata.New(bus, zerolog.Nop())
	pf := portfolio.New(bus, zerolog.Nop())
	require.NoError(t, md.Start(context.Background()))
	require.NoError(t, pf.Start(context.Background()))
	h := New(bus, md, pf, zerolog.Nop())
	require.NoError(t, h.Start(context.Background()))
	return h, bus, md
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestConnectionEstablishedIsFirstMessage(t *testing.T) {
	h, _, _ := newTestHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeMarketData))
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/market-data")
	defer conn.Close()

	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connection_established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
}

func TestSubscribeMarketDataReceivesImmediateSnapshot(t *testing.T) {
	h, bus, md := newTestHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeMarketData))
	defer srv.Close()

	mdEvent := model.NewEvent(model.EventMarketDataUpdate, model.VenueHyperliquid)
	mdEvent.MarketData = &model.MarketData{
		Venue: model.VenueHyperliquid, Symbol: "BTC-PERP",
		Bid: model.PriceLevel{Price: decimal.NewFromInt(65000), Size: decimal.NewFromInt(1)},
		Ask: model.PriceLevel{Price: decimal.NewFromInt(65010), Size: decimal.NewFromInt(1)},
		ObservedAt: time.Now().UTC(),
	}
	require.NoError(t, bus.Publish(context.Background(), mdEvent))
	_, ok := md.Aggregate("BTC-PERP")
	require.True(t, ok)

	conn := dialWS(t, srv, "/ws/market-data")
	defer conn.Close()

	var established map[string]interface{}
	require.NoError(t, conn.ReadJSON(&established))

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "pair": "BTC-PERP"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snapshot map[string]interface{}
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "market_data_update", snapshot["type"])
	assert.Equal(t, "BTC-PERP", snapshot["symbol"])
}

func TestMarketDataBroadcastFiltersBySymbol(t *testing.T) {
	h, bus, _ := newTestHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeMarketData))
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/market-data")
	defer conn.Close()
	var established map[string]interface{}
	require.NoError(t, conn.ReadJSON(&established))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "pair": "BTC-PERP"}))

	// unrelated symbol must not reach this connection
	other := model.NewEvent(model.EventMarketDataUpdate, model.VenueLighter)
	other.MarketData = &model.MarketData{
		Venue: model.VenueLighter, Symbol: "ETH-PERP",
		Bid: model.PriceLevel{Price: decimal.NewFromInt(3000), Size: decimal.NewFromInt(1)},
		Ask: model.PriceLevel{Price: decimal.NewFromInt(3001), Size: decimal.NewFromInt(1)},
		ObservedAt: time.Now().UTC(),
	}
	require.NoError(t, bus.Publish(context.Background(), other))

	matching := model.NewEvent(model.EventMarketDataUpdate, model.VenueHyperliquid)
	matching.MarketData = &model.MarketData{
		Venue: model.VenueHyperliquid, Symbol: "BTC-PERP",
		Bid: model.PriceLevel{Price: decimal.NewFromInt(65000), Size: decimal.NewFromInt(1)},
		Ask: model.PriceLevel{Price: decimal.NewFromInt(65010), Size: decimal.NewFromInt(1)},
		ObservedAt: time.Now().UTC(),
	}
	require.NoError(t, bus.Publish(context.Background(), matching))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "BTC-PERP", msg["symbol"])
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	h, bus, _ := newTestHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeMarketData))
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/market-data")
	defer conn.Close()
	var established map[string]interface{}
	require.NoError(t, conn.ReadJSON(&established))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "pair": "BTC-PERP"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "unsubscribe", "pair": "BTC-PERP"}))

	time.Sleep(50 * time.Millisecond)

	ev := model.NewEvent(model.EventMarketDataUpdate, model.VenueHyperliquid)
	ev.MarketData = &model.MarketData{
		Venue: model.VenueHyperliquid, Symbol: "BTC-PERP",
		Bid: model.PriceLevel{Price: decimal.NewFromInt(65000), Size: decimal.NewFromInt(1)},
		Ask: model.PriceLevel{Price: decimal.NewFromInt(65010), Size: decimal.NewFromInt(1)},
		ObservedAt: time.Now().UTC(),
	}
	require.NoError(t, bus.Publish(context.Background(), ev))

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected a read timeout since the connection unsubscribed")
}

func TestPingReceivesPong(t *testing.T) {
	h, _, _ := newTestHub(t)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeOrders))
	defer srv.Close()

	conn := dialWS(t, srv, "/ws/orders")
	defer conn.Close()
	var established map[string]interface{}
	require.NoError(t, conn.ReadJSON(&established))

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pong map[string]interface{}
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong["type"])
}

func TestResolveTopicPrefersExplicitPairOverTopic(t *testing.T) {
	topic, symbol := resolveTopic(clientMessage{Pair: "BTC-PERP", Topic: "orders"}, TopicOrders)
	assert.Equal(t, TopicMarketData, topic)
	assert.Equal(t, model.Symbol("BTC-PERP"), symbol)
}

func TestResolveTopicFallsBackToEndpointTopic(t *testing.T) {
	topic, symbol := resolveTopic(clientMessage{}, TopicPositions)
	assert.Equal(t, TopicPositions, topic)
	assert.Equal(t, model.Symbol(""), symbol)
}
