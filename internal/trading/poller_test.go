package trading

import (
	"errors"
	"testing"
	"time"

	"binance-trade-assistant/internal/binance"
	"binance-trade-assistant/internal/models"
	"binance-trade-assistant/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPoller(t *testing.T, client *fakeClient) (*Poller, *store.AutoSellStore) {
	t.Helper()
	registry := store.NewAutoSellStore(newTestDB(t))
	poller := NewPoller(zap.NewNop(), client, registry, time.Minute)
	return poller, registry
}

func pendingRecord(t *testing.T, registry *store.AutoSellStore, buyOrderID int64) *models.AutoSellOrder {
	t.Helper()
	record := &models.AutoSellOrder{
		Symbol:      "BTCUSDT",
		BuyOrderID:  buyOrderID,
		Quantity:    "0.01",
		TargetPrice: 51000,
		Status:      models.AutoSellWaitingForBuy,
	}
	require.NoError(t, registry.Create(record))
	return record
}

func TestReconcileFilledBuyPlacesSell(t *testing.T) {
	client := &fakeClient{
		orders: map[int64]*binance.Order{
			42: {Symbol: "BTCUSDT", OrderID: 42, Status: binance.OrderStatusFilled},
		},
	}
	poller, registry := newTestPoller(t, client)
	pendingRecord(t, registry, 42)

	require.NoError(t, poller.reconcile())

	// Exactly one sell submission at the recorded target.
	sells := client.sellOrders()
	require.Len(t, sells, 1)
	assert.Equal(t, binance.OrderTypeLimit, sells[0].Type)
	assert.Equal(t, "0.01", sells[0].Quantity)
	assert.Equal(t, "51000", sells[0].Price)

	records, err := registry.Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AutoSellSellOrderPlaced, records[0].Status)
	require.NotNil(t, records[0].SellOrderID)
}

func TestReconcileIsIdempotent(t *testing.T) {
	client := &fakeClient{
		orders: map[int64]*binance.Order{
			42: {Symbol: "BTCUSDT", OrderID: 42, Status: binance.OrderStatusFilled},
		},
	}
	poller, registry := newTestPoller(t, client)
	pendingRecord(t, registry, 42)

	require.NoError(t, poller.reconcile())
	require.NoError(t, poller.reconcile())

	// The second pass sees no WAITING_FOR_BUY rows and submits nothing.
	assert.Len(t, client.sellOrders(), 1)
}

func TestReconcileCanceledBuyDeletesRecord(t *testing.T) {
	client := &fakeClient{
		orders: map[int64]*binance.Order{
			42: {Symbol: "BTCUSDT", OrderID: 42, Status: binance.OrderStatusCanceled},
		},
	}
	poller, registry := newTestPoller(t, client)
	pendingRecord(t, registry, 42)

	require.NoError(t, poller.reconcile())

	assert.Empty(t, client.sellOrders())
	records, err := registry.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReconcileExpiredAndRejectedDeleteRecord(t *testing.T) {
	for _, status := range []string{binance.OrderStatusExpired, binance.OrderStatusRejected} {
		t.Run(status, func(t *testing.T) {
			client := &fakeClient{
				orders: map[int64]*binance.Order{
					42: {Symbol: "BTCUSDT", OrderID: 42, Status: status},
				},
			}
			poller, registry := newTestPoller(t, client)
			pendingRecord(t, registry, 42)

			require.NoError(t, poller.reconcile())

			records, err := registry.Recent(10)
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

func TestReconcileStillOpenBuyIsLeftAlone(t *testing.T) {
	for _, status := range []string{binance.OrderStatusNew, binance.OrderStatusPartiallyFilled} {
		t.Run(status, func(t *testing.T) {
			client := &fakeClient{
				orders: map[int64]*binance.Order{
					42: {Symbol: "BTCUSDT", OrderID: 42, Status: status},
				},
			}
			poller, registry := newTestPoller(t, client)
			pendingRecord(t, registry, 42)

			require.NoError(t, poller.reconcile())

			assert.Empty(t, client.sellOrders())
			pending, err := registry.PendingBuys()
			require.NoError(t, err)
			assert.Len(t, pending, 1)
		})
	}
}

func TestReconcileOneFailureDoesNotStarveSiblings(t *testing.T) {
	client := &fakeClient{
		orders: map[int64]*binance.Order{
			43: {Symbol: "BTCUSDT", OrderID: 43, Status: binance.OrderStatusFilled},
		},
		orderErrs: map[int64]error{
			42: errors.New("exchange timeout"),
		},
	}
	poller, registry := newTestPoller(t, client)
	pendingRecord(t, registry, 42)
	pendingRecord(t, registry, 43)

	require.NoError(t, poller.reconcile())

	// Record 43 was still reconciled despite 42 failing.
	require.Len(t, client.sellOrders(), 1)
	pending, err := registry.PendingBuys()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(42), pending[0].BuyOrderID)
}
