package store

import (
	"fmt"

	"binance-trade-assistant/internal/models"
	"gorm.io/gorm"
)

// AutoSellStore is the registry of follow-up sell intentions.
type AutoSellStore struct {
	db *gorm.DB
}

// NewAutoSellStore creates a new AutoSellStore.
func NewAutoSellStore(db *gorm.DB) *AutoSellStore {
	return &AutoSellStore{db: db}
}

// Create inserts a new auto-sell record.
func (s *AutoSellStore) Create(order *models.AutoSellOrder) error {
	if err := s.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to save auto-sell order: %w", err)
	}
	return nil
}

// PendingBuys returns all records still waiting for their buy order to
// fill. Records already in SELL_ORDER_PLACED are excluded, which is what
// keeps the reconciliation pass idempotent.
func (s *AutoSellStore) PendingBuys() ([]models.AutoSellOrder, error) {
	var orders []models.AutoSellOrder
	err := s.db.Where("status = ?", models.AutoSellWaitingForBuy).Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending auto-sell orders: %w", err)
	}
	return orders, nil
}

// MarkSellPlaced records the sell leg's order id and advances the status.
func (s *AutoSellStore) MarkSellPlaced(order *models.AutoSellOrder, sellOrderID int64) error {
	order.Status = models.AutoSellSellOrderPlaced
	order.SellOrderID = &sellOrderID
	if err := s.db.Save(order).Error; err != nil {
		return fmt.Errorf("failed to update auto-sell order %d: %w", order.ID, err)
	}
	return nil
}

// Delete removes a record whose buy order will never fill.
func (s *AutoSellStore) Delete(order *models.AutoSellOrder) error {
	if err := s.db.Delete(order).Error; err != nil {
		return fmt.Errorf("failed to delete auto-sell order %d: %w", order.ID, err)
	}
	return nil
}

// DeleteByBuyOrder removes any record tied to the given buy order. Used
// when the user cancels the buy order themselves.
func (s *AutoSellStore) DeleteByBuyOrder(symbol string, buyOrderID int64) error {
	err := s.db.Where("symbol = ? AND buy_order_id = ?", symbol, buyOrderID).
		Delete(&models.AutoSellOrder{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete auto-sell order for buy %d: %w", buyOrderID, err)
	}
	return nil
}

// Recent returns the most recent records, newest first.
func (s *AutoSellStore) Recent(limit int) ([]models.AutoSellOrder, error) {
	var orders []models.AutoSellOrder
	err := s.db.Order("id desc").Limit(limit).Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load auto-sell orders: %w", err)
	}
	return orders, nil
}
