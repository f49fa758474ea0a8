package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/tradefabric/gateway/internal/apierr"
	"github.com/tradefabric/gateway/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{
		"portfolio":  s.portfolio == nil || s.portfolio.Healthy(),
		"market_data": true,
	}
	allHealthy := true
	for _, v := range components {
		if !v {
			allHealthy = false
		}
	}
	for _, status := range s.orchestrator.VenueStatuses() {
		if !status.Healthy() {
			allHealthy = false
		}
	}
	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "degraded"
	}
	writeJSON(w, httpStatus, map[string]interface{}{
		"status": status, "components": components,
		"venues": s.orchestrator.VenueStatuses(), "timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleListVenues(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"venues": s.orchestrator.Venues()})
}

func venueFromVars(r *http.Request) (model.Venue, error) {
	v := model.Venue(mux.Vars(r)["venue"])
	if !v.Valid() {
		return "", apierr.Configuration("unknown venue: " + string(v))
	}
	return v, nil
}

func (s *Server) handleVenueStatus(w http.ResponseWriter, r *http.Request) {
	v, err := venueFromVars(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := s.orchestrator.VenueStatus(v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleVenueConnect(w http.ResponseWriter, r *http.Request) {
	v, err := venueFromVars(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.orchestrator.ConnectVenue(r.Context(), v); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"venue": string(v), "status": "connecting"})
}

func (s *Server) handleVenueDisconnect(w http.ResponseWriter, r *http.Request) {
	v, err := venueFromVars(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.orchestrator.DisconnectVenue(r.Context(), v); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"venue": string(v), "status": "disconnected"})
}

func (s *Server) handleVenueSymbols(w http.ResponseWriter, r *http.Request) {
	v, err := venueFromVars(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	symbols, err := s.orchestrator.GetSymbols(r.Context(), v)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"venue": v, "symbols": symbols})
}

// orderRequest is the body of POST /trading/orders. A dedicated
// request type avoids model.Order's UnmarshalJSON, which requires
// filled_qty/status fields that only make sense for an order already
// in flight.
type orderRequest struct {
	Venue     model.Venue       `json:"venue"`
	Symbol    model.Symbol      `json:"symbol"`
	Side      model.OrderSide   `json:"side"`
	Type      model.OrderType   `json:"type"`
	Quantity  string            `json:"quantity"`
	Price     *string           `json:"price,omitempty"`
	StopPrice *string           `json:"stop_price,omitempty"`
	TIF       model.TimeInForce `json:"tif,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apierr.OrderValidation("malformed request body: "+err.Error()))
		return
	}

	qty, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeError(w, r, apierr.OrderValidation("invalid quantity: "+req.Quantity))
		return
	}
	order := model.Order{
		Venue: req.Venue, Symbol: req.Symbol, Side: req.Side, Type: req.Type,
		Quantity: qty, TIF: req.TIF, ClientID: req.ClientID, Status: model.OrderPending,
	}
	if req.Price != nil {
		p, err := decimal.NewFromString(*req.Price)
		if err != nil {
			writeError(w, r, apierr.OrderValidation("invalid price: "+*req.Price))
			return
		}
		order.Price = &p
	}
	if req.StopPrice != nil {
		p, err := decimal.NewFromString(*req.StopPrice)
		if err != nil {
			writeError(w, r, apierr.OrderValidation("invalid stop_price: "+*req.StopPrice))
			return
		}
		order.StopPrice = &p
	}
	if order.TIF == "" {
		order.TIF = model.TIFGTC
	}
	if err := order.Validate(); err != nil {
		writeError(w, r, apierr.OrderValidation(err.Error()))
		return
	}

	placed, err := s.orchestrator.PlaceOrder(r.Context(), order)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placed)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	venueOrderID := mux.Vars(r)["id"]
	v := model.Venue(r.URL.Query().Get("venue"))
	if !v.Valid() {
		writeError(w, r, apierr.Configuration("venue query parameter is required and must be a known venue"))
		return
	}
	ok, err := s.orchestrator.CancelOrder(r.Context(), v, venueOrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	venueOrderID := mux.Vars(r)["id"]
	v := model.Venue(r.URL.Query().Get("venue"))
	if !v.Valid() {
		writeError(w, r, apierr.Configuration("venue query parameter is required and must be a known venue"))
		return
	}
	order, err := s.orchestrator.GetOrderStatus(r.Context(), v, venueOrderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// handleOrderHistory serves a best-effort order history from the
// Portfolio Aggregator's active-order table, filtered by the request's
// query parameters. The spec's module list has no persistent order
// store; this endpoint surfaces what the aggregator actually tracks
// rather than fabricating a history store outside scope.
func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	if s.portfolio == nil {
		writeJSON(w, http.StatusOK, []model.Order{})
		return
	}
	q := r.URL.Query()
	venue := model.Venue(q.Get("venue"))
	symbol := model.Symbol(q.Get("symbol"))
	status := model.OrderStatus(q.Get("status"))
	limit, offset := parseLimitOffset(q)

	var out []model.Order
	for _, o := range s.portfolio.ActiveOrders() {
		if venue != "" && o.Venue != venue {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
	}
	out = paginate(out, limit, offset)
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": out, "limit": limit, "offset": offset})
}

func (s *Server) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	if s.portfolio == nil {
		writeJSON(w, http.StatusOK, []model.Order{})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": s.portfolio.ActiveOrders()})
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	venue := model.Venue(q.Get("venue"))
	symbol := model.Symbol(q.Get("symbol"))

	if s.portfolio == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": 0})
		return
	}
	cancelled := 0
	var lastErr error
	for _, o := range s.portfolio.ActiveOrders() {
		if venue != "" && o.Venue != venue {
			continue
		}
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		ok, err := s.orchestrator.CancelOrder(r.Context(), o.Venue, o.VenueID)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			cancelled++
		}
	}
	if cancelled == 0 && lastErr != nil {
		writeError(w, r, lastErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": cancelled})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if s.portfolio == nil {
		writeJSON(w, http.StatusOK, []model.ConsolidatedPosition{})
		return
	}
	q := r.URL.Query()
	venue := model.Venue(q.Get("venue"))
	symbol := model.Symbol(q.Get("symbol"))

	if venue != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"positions": s.portfolio.VenuePositions(venue)})
		return
	}
	positions := s.portfolio.Positions()
	if symbol != "" {
		filtered := make([]model.ConsolidatedPosition, 0, 1)
		for _, p := range positions {
			if p.Symbol == symbol {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

func (s *Server) handlePositionBySymbol(w http.ResponseWriter, r *http.Request) {
	symbol := model.Symbol(mux.Vars(r)["symbol"])
	if s.portfolio == nil {
		writeError(w, r, apierr.PositionNotFound(string(symbol)))
		return
	}
	venue := model.Venue(r.URL.Query().Get("venue"))
	if venue != "" {
		for _, p := range s.portfolio.VenuePositions(venue) {
			if p.Symbol == symbol {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		writeError(w, r, apierr.PositionNotFound(string(symbol)))
		return
	}
	pos, ok := s.portfolio.Position(symbol)
	if !ok {
		writeError(w, r, apierr.PositionNotFound(string(symbol)))
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// closeRequest is the optional body of POST /positions/{symbol}/close.
// An omitted or empty Size closes the venue's full position for the
// symbol; an explicit Size reduces it by that amount instead, per spec.md §9.
type closeRequest struct {
	Size *string `json:"size,omitempty"`
}

// handleClosePosition reduces/closes a position by placing an
// opposing market order, grounded on spec.md §6's "POST
// /positions/{symbol}/close". The request body is optional; when it
// supplies a size, only that much of the position is closed, otherwise
// the full size of the position on the requested venue is used.
func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	symbol := model.Symbol(mux.Vars(r)["symbol"])
	venue := model.Venue(r.URL.Query().Get("venue"))
	if !venue.Valid() {
		writeError(w, r, apierr.Configuration("venue query parameter is required and must be a known venue"))
		return
	}

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, r, apierr.OrderValidation("malformed request body: "+err.Error()))
		return
	}

	if s.portfolio == nil {
		writeError(w, r, apierr.PositionNotFound(string(symbol)))
		return
	}
	var pos model.Position
	found := false
	for _, p := range s.portfolio.VenuePositions(venue) {
		if p.Symbol == symbol {
			pos, found = p, true
			break
		}
	}
	if !found || pos.Size.IsZero() {
		writeError(w, r, apierr.PositionNotFound(string(symbol)))
		return
	}

	closeSize := pos.Size.Abs()
	if req.Size != nil && *req.Size != "" {
		size, err := decimal.NewFromString(*req.Size)
		if err != nil {
			writeError(w, r, apierr.OrderValidation("invalid size: "+*req.Size))
			return
		}
		if size.LessThanOrEqual(decimal.Zero) || size.GreaterThan(pos.Size.Abs()) {
			writeError(w, r, apierr.OrderValidation("size must be greater than zero and no larger than the open position"))
			return
		}
		closeSize = size
	}

	side := model.SideSell
	if pos.Size.IsNegative() {
		side = model.SideBuy
	}
	closeOrder := model.Order{
		Venue: venue, Symbol: symbol, Side: side, Type: model.OrderTypeMarket,
		Quantity: closeSize, TIF: model.TIFIOC, Status: model.OrderPending,
	}
	placed, err := s.orchestrator.PlaceOrder(r.Context(), closeOrder)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, placed)
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	symbol := model.Symbol(mux.Vars(r)["symbol"])
	venue := model.Venue(r.URL.Query().Get("venue"))
	if venue != "" {
		md, err := s.orchestrator.GetMarketData(r.Context(), venue, symbol)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, md)
		return
	}
	if s.marketdata == nil {
		writeError(w, r, apierr.New(apierr.CodeMarketData, "market data unavailable"))
		return
	}
	agg, ok := s.marketdata.Aggregate(symbol)
	if !ok {
		writeError(w, r, apierr.New(apierr.CodeMarketData, "no recent market data for "+string(symbol)))
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := model.Symbol(mux.Vars(r)["symbol"])
	venue := model.Venue(r.URL.Query().Get("venue"))
	depth := 1
	if d, err := strconv.Atoi(r.URL.Query().Get("depth")); err == nil && d > 0 {
		depth = d
	}
	if venue != "" {
		md, err := s.orchestrator.GetMarketData(r.Context(), venue, symbol)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"symbol": symbol, "venue": venue, "depth": depth,
			"bids": []model.PriceLevel{md.Bid}, "asks": []model.PriceLevel{md.Ask},
		})
		return
	}
	if s.marketdata == nil {
		writeError(w, r, apierr.New(apierr.CodeMarketData, "market data unavailable"))
		return
	}
	sources := s.marketdata.Snapshot(symbol)
	if len(sources) == 0 {
		writeError(w, r, apierr.New(apierr.CodeMarketData, "no recent market data for "+string(symbol)))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"symbol": symbol, "depth": depth, "sources": sources})
}

// handleKlines is not backed by any historical candle store in this
// gateway's scope (there is no kline/candle module in spec.md's module
// list); it reports the most recent trades as a degenerate 1-trade
// "candle" stream rather than fabricating OHLCV aggregation outside
// scope.
func (s *Server) handleKlines(w http.ResponseWriter, r *http.Request) {
	symbol := model.Symbol(mux.Vars(r)["symbol"])
	venue := model.Venue(r.URL.Query().Get("venue"))
	if !venue.Valid() {
		writeError(w, r, apierr.Configuration("venue query parameter is required and must be a known venue"))
		return
	}
	limit := 100
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	trades, err := s.orchestrator.GetRecentTrades(r.Context(), venue, symbol, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol, "venue": venue, "interval": r.URL.Query().Get("interval"), "trades": trades,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{
		Error: "NOT_FOUND", Message: "resource not found",
		Details: map[string]interface{}{"path": r.URL.Path}, CorrelationID: correlationIDFrom(r.Context()),
	})
}

func parseLimitOffset(q map[string][]string) (int, int) {
	limit, offset := 100, 0
	if v, ok := q["limit"]; ok && len(v) > 0 {
		if n, err := strconv.Atoi(v[0]); err == nil && n > 0 {
			limit = n
		}
	}
	if v, ok := q["offset"]; ok && len(v) > 0 {
		if n, err := strconv.Atoi(v[0]); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func paginate(orders []model.Order, limit, offset int) []model.Order {
	if offset >= len(orders) {
		return []model.Order{}
	}
	end := offset + limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end]
}
