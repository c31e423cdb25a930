package trading

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"binance-trade-assistant/internal/binance"
	"binance-trade-assistant/internal/models"
	"binance-trade-assistant/internal/store"
	"go.uber.org/zap"
)

// Poller periodically re-checks every auto-sell record still waiting for
// its buy order and completes or discards it based on the buy's fate.
type Poller struct {
	logger   *zap.Logger
	client   binance.RestClientInterface
	registry *store.AutoSellStore
	interval time.Duration
}

// NewPoller creates a new reconciliation poller.
func NewPoller(logger *zap.Logger, client binance.RestClientInterface, registry *store.AutoSellStore, interval time.Duration) *Poller {
	return &Poller{
		logger:   logger.Named("auto-sell-poller"),
		client:   client,
		registry: registry,
		interval: interval,
	}
}

// Run drives reconciliation on the configured interval until ctx is
// cancelled. A failed pass is logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Starting auto-sell reconciliation loop", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping auto-sell reconciliation loop")
			return
		case <-ticker.C:
			if err := p.reconcile(); err != nil {
				p.logger.Error("Reconciliation pass failed", zap.Error(err))
			}
		}
	}
}

// reconcile processes one batch of pending records. Records are handled
// independently; one record's exchange error must not starve the rest.
func (p *Poller) reconcile() error {
	pending, err := p.registry.PendingBuys()
	if err != nil {
		return err
	}
	p.logger.Info("Checking pending auto-sell orders", zap.Int("count", len(pending)))

	for i := range pending {
		record := &pending[i]
		if err := p.reconcileOne(record); err != nil {
			p.logger.Error("Failed to reconcile auto-sell order",
				zap.Uint("record_id", record.ID),
				zap.Int64("buy_order_id", record.BuyOrderID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// reconcileOne maps the buy order's current exchange status onto the
// record: FILLED places the sell leg, a terminal failure deletes the
// record, anything else waits for the next tick.
func (p *Poller) reconcileOne(record *models.AutoSellOrder) error {
	order, err := p.client.GetOrder(record.Symbol, record.BuyOrderID)
	if err != nil {
		return err
	}

	switch order.Status {
	case binance.OrderStatusFilled:
		return p.placeSell(record)

	case binance.OrderStatusCanceled, binance.OrderStatusExpired, binance.OrderStatusRejected:
		p.logger.Info("Buy order will never fill, dropping auto-sell record",
			zap.Int64("buy_order_id", record.BuyOrderID),
			zap.String("buy_status", order.Status),
		)
		return p.registry.Delete(record)

	default:
		// NEW or PARTIALLY_FILLED: nothing to do yet.
		return nil
	}
}

// placeSell submits the plain limit sell for a filled buy and advances the
// record to SELL_ORDER_PLACED.
func (p *Poller) placeSell(record *models.AutoSellOrder) error {
	p.logger.Info("Buy order filled, placing sell leg",
		zap.String("symbol", record.Symbol),
		zap.String("quantity", record.Quantity),
		zap.Float64("target_price", record.TargetPrice),
	)

	sell, err := p.client.CreateOrder(&binance.OrderRequest{
		Symbol:   record.Symbol,
		Side:     binance.OrderSideSell,
		Type:     binance.OrderTypeLimit,
		Quantity: record.Quantity,
		Price:    strconv.FormatFloat(record.TargetPrice, 'f', -1, 64),
	})
	if err != nil {
		return fmt.Errorf("failed to place sell leg for buy %d: %w", record.BuyOrderID, err)
	}

	return p.registry.MarkSellPlaced(record, sell.OrderID)
}
