// Package httpapi is the REST surface of spec.md §6: a gorilla/mux
// router under /api/v1 in front of the Orchestrator, the Portfolio
// Aggregator, and the Market-Data Aggregator, plus the WS upgrade
// endpoints handed straight to internal/wshub.
//
// Grounded on the teacher's internal/interfaces/http/server.go: same
// middleware-chain shape (logging, request/correlation ID, timeout,
// CORS), same NewServer/Start/Shutdown/responseWrapper idiom, adapted
// to zerolog (the structured logger this repo uses everywhere else,
// where the teacher's read-only server used the stdlib log package)
// and to a writable, multi-component API instead of a read-only
// single-handler-group one.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tradefabric/gateway/internal/marketdata"
	"github.com/tradefabric/gateway/internal/orchestrator"
	"github.com/tradefabric/gateway/internal/portfolio"
	"github.com/tradefabric/gateway/internal/wshub"
)

// Config holds the server's network and CORS configuration. Grounded
// on ServerConfig in the teacher's server.go.
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

func DefaultConfig() Config {
	return Config{
		Host: "0.0.0.0", Port: 8080,
		ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, IdleTimeout: 60 * time.Second,
		RequestTimeout: 15 * time.Second, AllowedOrigins: []string{"*"},
	}
}

// Server wires the REST handlers and the WS hub's upgrade endpoints
// onto one mux.Router.
type Server struct {
	router *mux.Router
	server *http.Server
	config Config
	logger zerolog.Logger

	orchestrator *orchestrator.Orchestrator
	portfolio    *portfolio.Aggregator
	marketdata   *marketdata.Aggregator
	hub          *wshub.Hub
}

func NewServer(cfg Config, orch *orchestrator.Orchestrator, pf *portfolio.Aggregator, md *marketdata.Aggregator, hub *wshub.Hub, logger zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(), config: cfg, logger: logger.With().Str("component", "httpapi").Logger(),
		orchestrator: orch, portfolio: pf, marketdata: md, hub: hub,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.correlationIDMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/venues", s.handleListVenues).Methods(http.MethodGet)
	api.HandleFunc("/venues/{venue}/status", s.handleVenueStatus).Methods(http.MethodGet)
	api.HandleFunc("/venues/{venue}/connect", s.handleVenueConnect).Methods(http.MethodPost)
	api.HandleFunc("/venues/{venue}/disconnect", s.handleVenueDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/venues/{venue}/symbols", s.handleVenueSymbols).Methods(http.MethodGet)

	api.HandleFunc("/trading/orders", s.handlePlaceOrder).Methods(http.MethodPost)
	api.HandleFunc("/trading/orders", s.handleOrderHistory).Methods(http.MethodGet)
	api.HandleFunc("/trading/orders/active", s.handleActiveOrders).Methods(http.MethodGet)
	api.HandleFunc("/trading/orders/cancel-all", s.handleCancelAll).Methods(http.MethodPost)
	api.HandleFunc("/trading/orders/{id}", s.handleCancelOrder).Methods(http.MethodDelete)
	api.HandleFunc("/trading/orders/{id}", s.handleOrderStatus).Methods(http.MethodGet)

	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/positions/{symbol}", s.handlePositionBySymbol).Methods(http.MethodGet)
	api.HandleFunc("/positions/{symbol}/close", s.handleClosePosition).Methods(http.MethodPost)

	api.HandleFunc("/market-data/ticker/{symbol}", s.handleTicker).Methods(http.MethodGet)
	api.HandleFunc("/market-data/orderbook/{symbol}", s.handleOrderbook).Methods(http.MethodGet)
	api.HandleFunc("/market-data/klines/{symbol}", s.handleKlines).Methods(http.MethodGet)

	if s.hub != nil {
		s.router.HandleFunc("/ws/market-data", s.hub.ServeMarketData)
		s.router.HandleFunc("/ws/orders", s.hub.ServeOrders)
		s.router.HandleFunc("/ws/positions", s.hub.ServePositions)
		s.router.HandleFunc("/ws/portfolio", s.hub.ServePortfolio)
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting http server")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

// correlationIDMiddleware echoes X-Correlation-ID from the inbound
// request or mints one, per spec.md §6: "Every response propagates an
// X-Correlation-ID header echoed from the inbound request or freshly
// minted."
func (s *Server) correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", id)
		ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type correlationIDKey struct{}

func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		s.logger.Info().
			Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).Dur("duration", time.Since(start)).
			Str("correlation_id", correlationIDFrom(r.Context())).
			Msg("request handled")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isWebSocketUpgrade(r *http.Request) bool {
	return r.Header.Get("Upgrade") == "websocket"
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Correlation-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// responseWrapper captures the status code written, grounded on the
// teacher's responseWrapper in server.go.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
