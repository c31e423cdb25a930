package exchangeinfo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"binance-trade-assistant/internal/binance"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	// ErrUnknownSymbol means the symbol is not present in the snapshot.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrMissingLotSize means the symbol carries no LOT_SIZE filter.
	ErrMissingLotSize = errors.New("no LOT_SIZE filter for symbol")
)

// infoClient is the slice of the gateway the cache needs.
type infoClient interface {
	GetExchangeInfo() (*binance.ExchangeInfoResponse, error)
}

// Cache holds a periodically refreshed snapshot of per-symbol trading
// rules. The snapshot is swapped wholesale under the lock; readers never
// observe a partially updated map.
type Cache struct {
	mu     sync.RWMutex
	rules  map[string]binance.SymbolInfo
	client infoClient
	logger *zap.Logger
}

// NewCache creates an empty cache. Call Refresh before the first use.
func NewCache(client infoClient, logger *zap.Logger) *Cache {
	return &Cache{
		rules:  make(map[string]binance.SymbolInfo),
		client: client,
		logger: logger.Named("exchange-info"),
	}
}

// Refresh fetches a fresh exchange-info snapshot and swaps it in.
func (c *Cache) Refresh() error {
	info, err := c.client.GetExchangeInfo()
	if err != nil {
		return fmt.Errorf("could not refresh exchange info: %w", err)
	}

	rules := make(map[string]binance.SymbolInfo, len(info.Symbols))
	for _, s := range info.Symbols {
		rules[s.Symbol] = s
	}

	c.mu.Lock()
	c.rules = rules
	c.mu.Unlock()

	c.logger.Info("Exchange info refreshed", zap.Int("symbols", len(rules)))
	return nil
}

// Run refreshes the snapshot on the given interval until ctx is cancelled.
// Refresh failures are logged and retried on the next tick; the previous
// snapshot stays in place, so staleness is bounded by the interval.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stopping exchange info refresh loop")
			return
		case <-ticker.C:
			if err := c.Refresh(); err != nil {
				c.logger.Error("Exchange info refresh failed", zap.Error(err))
			}
		}
	}
}

// lotSize returns the LOT_SIZE filter for a symbol.
func (c *Cache) lotSize(symbol string) (*binance.Filter, error) {
	c.mu.RLock()
	rule, ok := c.rules[symbol]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	for _, filter := range rule.Filters {
		if filter.FilterType == "LOT_SIZE" {
			return &filter, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMissingLotSize, symbol)
}

// AdjustQuantity quantizes a requested quantity to the symbol's lot-size
// rule: floor to a multiple of the step size, then clamp into
// [minQty, maxQty]. The result is formatted with at most 8 decimals and no
// trailing zeros, which is the form the order endpoints accept.
func (c *Cache) AdjustQuantity(symbol, quantity string) (string, error) {
	filter, err := c.lotSize(symbol)
	if err != nil {
		return "", err
	}

	qty, err := decimal.NewFromString(quantity)
	if err != nil {
		return "", fmt.Errorf("invalid quantity %q: %w", quantity, err)
	}
	step, err := decimal.NewFromString(filter.StepSize)
	if err != nil {
		return "", fmt.Errorf("invalid stepSize %q for %s: %w", filter.StepSize, symbol, err)
	}
	minQty, err := decimal.NewFromString(filter.MinQty)
	if err != nil {
		return "", fmt.Errorf("invalid minQty %q for %s: %w", filter.MinQty, symbol, err)
	}
	maxQty, err := decimal.NewFromString(filter.MaxQty)
	if err != nil {
		return "", fmt.Errorf("invalid maxQty %q for %s: %w", filter.MaxQty, symbol, err)
	}

	// Mod is exact here, unlike dividing by the step.
	adjusted := qty.Sub(qty.Mod(step))
	if adjusted.LessThan(minQty) {
		adjusted = minQty
	}
	if adjusted.GreaterThan(maxQty) {
		adjusted = maxQty
	}

	return trimZeros(adjusted.StringFixed(8)), nil
}

// trimZeros strips trailing zeros from a fixed-precision decimal string,
// and the decimal point itself when the value is an integer.
func trimZeros(s string) string {
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
