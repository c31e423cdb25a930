package store

import (
	"fmt"

	"binance-trade-assistant/internal/models"
	"gorm.io/gorm"
)

// TradeStore persists completed fills. Trades are append-only.
type TradeStore struct {
	db *gorm.DB
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(db *gorm.DB) *TradeStore {
	return &TradeStore{db: db}
}

// Create inserts a new trade record.
func (s *TradeStore) Create(trade *models.Trade) error {
	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// Recent returns the most recent trades, newest first.
func (s *TradeStore) Recent(limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.Order("timestamp desc").Limit(limit).Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	return trades, nil
}
