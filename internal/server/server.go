package server

import (
	"context"
	"fmt"
	"net/http"

	"binance-trade-assistant/internal/binance"
	"binance-trade-assistant/internal/config"
	"binance-trade-assistant/internal/store"
	"binance-trade-assistant/internal/trading"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Server exposes the trading assistant over HTTP.
type Server struct {
	logger     *zap.Logger
	authSecret string
	client     binance.RestClientInterface
	service    *trading.Service
	trades     *store.TradeStore
	registry   *store.AutoSellStore
	http       *http.Server
}

// New creates the API server.
func New(
	cfg *config.Server,
	logger *zap.Logger,
	client binance.RestClientInterface,
	service *trading.Service,
	trades *store.TradeStore,
	registry *store.AutoSellStore,
) *Server {
	s := &Server{
		logger:     logger.Named("api-server"),
		authSecret: cfg.AuthSecret,
		client:     client,
		service:    service,
		trades:     trades,
		registry:   registry,
	}
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.Router(),
	}
	return s
}

// Router builds the route table. Everything under /api requires the shared
// auth secret; the health check does not.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/order", s.handleCreateOrder)
		r.Post("/market-price-order", s.handleMarketPriceOrder)
		r.Get("/trades", s.handleTrades)
		r.Get("/trade-history", s.handleTradeHistory)
		r.Get("/balance", s.handleBalance)
		r.Get("/price", s.handlePrice)
		r.Get("/pending-orders", s.handlePendingOrders)
		r.Delete("/order/{symbol}/{orderId}", s.handleCancelOrder)
		r.Get("/auto-sell-orders", s.handleAutoSellOrders)
	})

	return r
}

// authMiddleware compares the Authorization header against the shared
// secret by exact string match. Anything else is a uniform 401.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != s.authSecret {
			s.logger.Warn("Rejected unauthenticated request",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.String("remote_addr", r.RemoteAddr),
			)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("address", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.http.Shutdown(ctx)
}
