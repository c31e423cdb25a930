package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"binance-trade-assistant/internal/binance"
	"binance-trade-assistant/internal/trading"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError mirrors the UI contract: failures are a JSON object with an
// "error" field carrying the exchange's message where there is one.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req trading.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Info("Order request received",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("quantity", req.Quantity),
		zap.String("price", req.Price),
		zap.Bool("auto_sell", req.AutoSell),
	)

	order, err := s.service.PlaceOrder(&req)
	if err != nil {
		s.logger.Error("Order placement failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleMarketPriceOrder(w http.ResponseWriter, r *http.Request) {
	var req trading.MarketPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.logger.Info("Market price order request received",
		zap.String("symbol", req.Symbol),
		zap.Float64("usdt_amount", req.USDTAmount),
		zap.Bool("auto_sell", req.AutoSell),
		zap.Float64("desired_profit", req.DesiredProfit),
	)

	result, err := s.service.PlaceMarketPriceOrder(&req)
	if err != nil {
		s.logger.Error("Market price order failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// formattedTrade is the exchange trade history entry reshaped for the UI:
// numeric strings parsed, timestamp as ISO-8601.
type formattedTrade struct {
	Symbol          string  `json:"symbol"`
	ID              int64   `json:"id"`
	OrderID         int64   `json:"orderId"`
	Price           float64 `json:"price"`
	Quantity        float64 `json:"quantity"`
	QuoteQuantity   float64 `json:"quoteQuantity"`
	Commission      float64 `json:"commission"`
	CommissionAsset string  `json:"commissionAsset"`
	Time            string  `json:"time"`
	IsBuyer         bool    `json:"isBuyer"`
	IsMaker         bool    `json:"isMaker"`
	IsBestMatch     bool    `json:"isBestMatch"`
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.client.GetMyTrades("BTCUSDT", 500)
	if err != nil {
		s.logger.Error("Failed to get trade history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	formatted := make([]formattedTrade, 0, len(trades))
	for _, t := range trades {
		price, _ := strconv.ParseFloat(t.Price, 64)
		qty, _ := strconv.ParseFloat(t.Qty, 64)
		quoteQty, _ := strconv.ParseFloat(t.QuoteQty, 64)
		commission, _ := strconv.ParseFloat(t.Commission, 64)
		formatted = append(formatted, formattedTrade{
			Symbol:          t.Symbol,
			ID:              t.ID,
			OrderID:         t.OrderID,
			Price:           price,
			Quantity:        qty,
			QuoteQuantity:   quoteQty,
			Commission:      commission,
			CommissionAsset: t.CommissionAsset,
			Time:            time.UnixMilli(t.Time).UTC().Format(time.RFC3339),
			IsBuyer:         t.IsBuyer,
			IsMaker:         t.IsMaker,
			IsBestMatch:     t.IsBestMatch,
		})
	}
	writeJSON(w, http.StatusOK, formatted)
}

// handleTradeHistory serves the locally persisted fills, newest first.
func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	trades, err := s.trades.Recent(500)
	if err != nil {
		s.logger.Error("Failed to load local trades", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := s.client.GetAccount()
	if err != nil {
		s.logger.Error("Failed to get account balance", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	balances := make([]binance.Balance, 0, 2)
	for _, b := range account.Balances {
		if b.Asset != "BTC" && b.Asset != "USDT" {
			continue
		}
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free > 0 || locked > 0 {
			balances = append(balances, b)
		}
	}
	writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	price, err := s.client.GetTickerPrice(symbol)
	if err != nil {
		s.logger.Error("Failed to get price", zap.String("symbol", symbol), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price})
}

// pendingOrder is an open exchange order annotated with its notional.
type pendingOrder struct {
	binance.Order
	TotalUSDT float64 `json:"totalUSDT"`
}

func (s *Server) handlePendingOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.client.GetOpenOrders()
	if err != nil {
		s.logger.Error("Failed to get open orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	annotated := make([]pendingOrder, 0, len(orders))
	for _, o := range orders {
		annotated = append(annotated, pendingOrder{
			Order:     o,
			TotalUSDT: notional(o.Price, o.OrigQty),
		})
	}
	s.logger.Info("Returning pending orders", zap.Int("count", len(annotated)))
	writeJSON(w, http.StatusOK, annotated)
}

// notional computes price * quantity from the exchange's string fields.
func notional(price, qty string) float64 {
	p, err1 := decimal.NewFromString(price)
	q, err2 := decimal.NewFromString(qty)
	if err1 != nil || err2 != nil {
		return 0
	}
	return p.Mul(q).InexactFloat64()
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.client.CancelOrder(symbol, orderID)
	if err != nil {
		s.logger.Error("Failed to cancel order", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// The buy is gone, so any auto-sell tied to it is void.
	if err := s.registry.DeleteByBuyOrder(symbol, orderID); err != nil {
		s.logger.Error("Failed to delete auto-sell record for cancelled order",
			zap.Int64("order_id", orderID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAutoSellOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.registry.Recent(100)
	if err != nil {
		s.logger.Error("Failed to load auto-sell orders", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}
