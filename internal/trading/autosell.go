package trading

import (
	"fmt"
	"strconv"

	"binance-trade-assistant/internal/binance"
	"binance-trade-assistant/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterAutoSell records the intention to sell a bought position back at
// targetPrice. When stop-loss and stop-limit USDT amounts are both given
// the record becomes an OCO: the per-unit stop prices are the amounts
// divided by the buy quantity.
//
// If the buy order has already filled, the sell leg (OCO or plain limit)
// is placed immediately and the record is saved as SELL_ORDER_PLACED;
// otherwise it is saved as WAITING_FOR_BUY and completed later by the
// reconciliation poller. A placement failure propagates and nothing is
// saved.
func (s *Service) RegisterAutoSell(buyOrder *binance.Order, targetPrice, stopLossAmount, stopLimitAmount float64) error {
	l := s.logger.With(
		zap.String("symbol", buyOrder.Symbol),
		zap.Int64("buy_order_id", buyOrder.OrderID),
		zap.Float64("target_price", targetPrice),
	)
	l.Info("Registering auto-sell order")

	buyQuantity, _ := strconv.ParseFloat(buyOrder.OrigQty, 64)

	var stopPrice, stopLimitPrice *float64
	if stopLossAmount > 0 && stopLimitAmount > 0 && buyQuantity > 0 {
		sp := perUnitPrice(stopLossAmount, buyQuantity)
		slp := perUnitPrice(stopLimitAmount, buyQuantity)
		stopPrice, stopLimitPrice = &sp, &slp
	}

	record := models.AutoSellOrder{
		Symbol:         buyOrder.Symbol,
		BuyOrderID:     buyOrder.OrderID,
		Quantity:       buyOrder.OrigQty,
		TargetPrice:    targetPrice,
		StopPrice:      stopPrice,
		StopLimitPrice: stopLimitPrice,
		IsOco:          stopPrice != nil && stopLimitPrice != nil,
		Status:         models.AutoSellWaitingForBuy,
	}

	if buyOrder.Status == binance.OrderStatusFilled {
		sellOrderID, err := s.placeSellLeg(&record, buyOrder.ExecutedQty)
		if err != nil {
			return err
		}
		record.Status = models.AutoSellSellOrderPlaced
		record.SellOrderID = &sellOrderID
	}

	if err := s.registry.Create(&record); err != nil {
		// If the sell leg was already placed above, the exchange now holds
		// an order we no longer track. Logged loudly; not reconciled.
		l.Error("Failed to save auto-sell record", zap.Error(err))
		return err
	}

	l.Info("Auto-sell order registered", zap.String("status", record.Status))
	return nil
}

// placeSellLeg submits the follow-up sell for an already-filled buy and
// returns the exchange order id of the limit leg.
func (s *Service) placeSellLeg(record *models.AutoSellOrder, executedQty string) (int64, error) {
	price := formatPrice(record.TargetPrice)

	if record.IsOco {
		oco, err := s.client.CreateOCOOrder(&binance.OCOOrderRequest{
			Symbol:         record.Symbol,
			Side:           binance.OrderSideSell,
			Quantity:       executedQty,
			Price:          price,
			StopPrice:      formatPrice(*record.StopPrice),
			StopLimitPrice: formatPrice(*record.StopLimitPrice),
		})
		if err != nil {
			return 0, err
		}
		if len(oco.OrderReports) == 0 {
			return 0, fmt.Errorf("OCO response for %s carried no order reports", record.Symbol)
		}
		return oco.OrderReports[0].OrderID, nil
	}

	sell, err := s.client.CreateOrder(&binance.OrderRequest{
		Symbol:   record.Symbol,
		Side:     binance.OrderSideSell,
		Type:     binance.OrderTypeLimit,
		Quantity: executedQty,
		Price:    price,
	})
	if err != nil {
		return 0, err
	}
	return sell.OrderID, nil
}

// perUnitPrice spreads a USDT amount over a quantity, rounded to the
// 2-decimal tick USDT pairs trade at.
func perUnitPrice(amount, quantity float64) float64 {
	return decimal.NewFromFloat(amount).
		DivRound(decimal.NewFromFloat(quantity), 2).
		InexactFloat64()
}

// formatPrice renders a price the way the USDT order endpoints expect it.
func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', 2, 64)
}
