package trading

import (
	"fmt"
	"strconv"
	"time"

	"binance-trade-assistant/internal/binance"
	"binance-trade-assistant/internal/exchangeinfo"
	"binance-trade-assistant/internal/models"
	"binance-trade-assistant/internal/store"
	"go.uber.org/zap"
)

// Service validates and submits orders against the exchange and records
// the resulting fills and auto-sell intentions.
type Service struct {
	logger   *zap.Logger
	client   binance.RestClientInterface
	rules    *exchangeinfo.Cache
	trades   *store.TradeStore
	registry *store.AutoSellStore

	// fillCheckWait is the pause between submitting a market order and the
	// first status check. Zero in tests.
	fillCheckWait time.Duration
}

// NewService creates a new order placement service.
func NewService(
	logger *zap.Logger,
	client binance.RestClientInterface,
	rules *exchangeinfo.Cache,
	trades *store.TradeStore,
	registry *store.AutoSellStore,
	fillCheckWait time.Duration,
) *Service {
	return &Service{
		logger:        logger.Named("trading"),
		client:        client,
		rules:         rules,
		trades:        trades,
		registry:      registry,
		fillCheckWait: fillCheckWait,
	}
}

// OrderRequest is a client request for a priced (limit or market) order.
type OrderRequest struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`
	Quantity string `json:"quantity"`
	Price    string `json:"price,omitempty"`

	AutoSell        bool    `json:"autoSell,omitempty"`
	TargetPrice     float64 `json:"targetPrice,omitempty"`
	StopLossAmount  float64 `json:"stopLossAmount,omitempty"`
	StopLimitAmount float64 `json:"stopLimitAmount,omitempty"`
}

// PlaceOrder normalizes the requested quantity, submits a limit order when
// a price is given (market otherwise), and persists the fill as a Trade.
// For a BUY with auto-sell requested, the follow-up intention is registered
// synchronously; a registration failure is logged but does not fail the
// order, which has already been placed.
func (s *Service) PlaceOrder(req *OrderRequest) (*binance.Order, error) {
	quantity, err := s.rules.AdjustQuantity(req.Symbol, req.Quantity)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Placing order",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.String("quantity", quantity),
		zap.String("price", req.Price),
	)

	orderType := binance.OrderTypeMarket
	if req.Price != "" {
		orderType = binance.OrderTypeLimit
	}

	order, err := s.client.CreateOrder(&binance.OrderRequest{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     orderType,
		Quantity: quantity,
		Price:    req.Price,
	})
	if err != nil {
		return nil, err
	}

	qty, _ := strconv.ParseFloat(quantity, 64)
	price, _ := strconv.ParseFloat(order.Price, 64)
	totalUSDT := qty * price

	timestamp := order.TransactTime
	if timestamp == 0 {
		timestamp = time.Now().UnixMilli()
	}

	trade := models.Trade{
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     qty,
		Price:        price,
		Timestamp:    timestamp,
		TotalUSDT:    totalUSDT,
		QuantityUSDT: totalUSDT,
	}
	if req.Side == binance.OrderSideSell {
		trade.QuantityUSDT = qty
	}
	if err := s.trades.Create(&trade); err != nil {
		// The order is already on the exchange; losing the local row is
		// not worth failing the request over.
		s.logger.Error("Failed to save trade record", zap.Error(err))
	}

	if req.Side == binance.OrderSideBuy && req.AutoSell && req.TargetPrice > 0 {
		err := s.RegisterAutoSell(order, req.TargetPrice, req.StopLossAmount, req.StopLimitAmount)
		if err != nil {
			s.logger.Error("Failed to register auto-sell order", zap.Error(err))
		}
	}

	return order, nil
}

// MarketPriceRequest is a client request for an immediate buy of a USDT
// notional at the current market price.
type MarketPriceRequest struct {
	Symbol     string  `json:"symbol"`
	USDTAmount float64 `json:"usdtAmount"`

	AutoSell        bool    `json:"autoSell"`
	DesiredProfit   float64 `json:"desiredProfit,omitempty"`
	StopLossAmount  float64 `json:"stopLossAmount,omitempty"`
	StopLimitAmount float64 `json:"stopLimitAmount,omitempty"`
}

// MarketPriceResult reports whether the market order had filled by the
// time of the status check. The caller decides what to do with an unfilled
// order.
type MarketPriceResult struct {
	Success bool           `json:"success"`
	Order   *binance.Order `json:"order"`
}

// PlaceMarketPriceOrder buys a USDT notional at the current price: fetch
// the ticker, derive the quantity, normalize it, submit a market BUY, then
// wait briefly and re-check the order. If the order filled and auto-sell
// was requested, the target price is back-computed from the desired
// absolute profit in USDT.
func (s *Service) PlaceMarketPriceOrder(req *MarketPriceRequest) (*MarketPriceResult, error) {
	priceStr, err := s.client.GetTickerPrice(req.Symbol)
	if err != nil {
		return nil, err
	}
	currentPrice, err := strconv.ParseFloat(priceStr, 64)
	if err != nil || currentPrice <= 0 {
		return nil, fmt.Errorf("invalid ticker price %q for %s", priceStr, req.Symbol)
	}

	rawQuantity := strconv.FormatFloat(req.USDTAmount/currentPrice, 'f', 8, 64)
	quantity, err := s.rules.AdjustQuantity(req.Symbol, rawQuantity)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Placing market price order",
		zap.String("symbol", req.Symbol),
		zap.Float64("usdt_amount", req.USDTAmount),
		zap.Float64("current_price", currentPrice),
		zap.String("quantity", quantity),
	)

	order, err := s.client.CreateOrder(&binance.OrderRequest{
		Symbol:   req.Symbol,
		Side:     binance.OrderSideBuy,
		Type:     binance.OrderTypeMarket,
		Quantity: quantity,
	})
	if err != nil {
		return nil, err
	}

	// Give the exchange a moment to execute before the first status check.
	time.Sleep(s.fillCheckWait)

	status, err := s.client.GetOrder(req.Symbol, order.OrderID)
	if err != nil {
		return nil, err
	}

	if status.Status != binance.OrderStatusFilled {
		s.logger.Warn("Market order not filled at status check",
			zap.Int64("order_id", status.OrderID),
			zap.String("status", status.Status),
		)
		return &MarketPriceResult{Success: false, Order: status}, nil
	}

	if req.AutoSell && req.DesiredProfit != 0 {
		executedQty, _ := strconv.ParseFloat(status.ExecutedQty, 64)
		if executedQty > 0 {
			// targetPrice makes the position worth entry cost + profit.
			totalCost := currentPrice * executedQty
			targetPrice := (totalCost + req.DesiredProfit) / executedQty
			err := s.RegisterAutoSell(status, targetPrice, req.StopLossAmount, req.StopLimitAmount)
			if err != nil {
				return nil, err
			}
		}
	}

	return &MarketPriceResult{Success: true, Order: status}, nil
}
