package models

import "gorm.io/gorm"

// AutoSellOrder lifecycle statuses. COMPLETED and CANCELLED exist in the
// schema for the UI but are never assigned by this service; the exchange,
// not us, fills or cancels the sell leg.
const (
	AutoSellWaitingForBuy   = "WAITING_FOR_BUY"
	AutoSellSellOrderPlaced = "SELL_ORDER_PLACED"
	AutoSellCompleted       = "COMPLETED"
	AutoSellCancelled       = "CANCELLED"
)

// AutoSellOrder is a follow-up sell intention linked to a buy order on the
// exchange. SellOrderID is nil until the sell leg has actually been placed.
type AutoSellOrder struct {
	gorm.Model
	Symbol      string `json:"symbol"`
	BuyOrderID  int64  `json:"buyOrderId" gorm:"index"`
	SellOrderID *int64 `json:"sellOrderId,omitempty"`
	// Quantity is kept as the exchange-formatted string so the sell leg
	// reuses exactly what the buy order carried.
	Quantity       string   `json:"quantity"`
	TargetPrice    float64  `json:"targetPrice"`
	StopPrice      *float64 `json:"stopPrice,omitempty"`
	StopLimitPrice *float64 `json:"stopLimitPrice,omitempty"`
	IsOco          bool     `json:"isOco"`
	Status         string   `json:"status" gorm:"index"`
}
