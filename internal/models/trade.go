package models

import "gorm.io/gorm"

// Trade is an immutable record of a completed exchange fill. Rows are
// created once at order placement time and never updated.
type Trade struct {
	gorm.Model
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"` // "BUY" or "SELL"
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	// Timestamp is the exchange transact time in milliseconds.
	Timestamp int64   `json:"timestamp"`
	TotalUSDT float64 `json:"totalUSDT"`
	// QuantityUSDT is the USDT-denominated size of the trade: TotalUSDT
	// for a BUY, the base quantity for a SELL.
	QuantityUSDT float64 `json:"quantityUSDT"`
}
