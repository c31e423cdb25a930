package trading

import (
	"fmt"
	"testing"

	"binance-trade-assistant/internal/binance"
	"binance-trade-assistant/internal/database"
	"binance-trade-assistant/internal/exchangeinfo"
	"binance-trade-assistant/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// fakeClient is a scriptable stand-in for the Binance gateway. Submitted
// orders are recorded so tests can assert on exactly what went out.
type fakeClient struct {
	tickerPrice string
	tickerErr   error

	orders    map[int64]*binance.Order
	orderErrs map[int64]error

	created    []*binance.OrderRequest
	createResp []*binance.Order
	createErr  error

	ocoCreated []*binance.OCOOrderRequest
	ocoResp    *binance.OCOOrderResponse
	ocoErr     error

	nextOrderID int64
}

var _ binance.RestClientInterface = (*fakeClient)(nil)

func (f *fakeClient) GetServerTime() (int64, error) { return 0, nil }

func (f *fakeClient) GetExchangeInfo() (*binance.ExchangeInfoResponse, error) {
	return &binance.ExchangeInfoResponse{Symbols: []binance.SymbolInfo{{
		Symbol: "BTCUSDT",
		Filters: []binance.Filter{{
			FilterType: "LOT_SIZE",
			StepSize:   "0.00010000",
			MinQty:     "0.00010000",
			MaxQty:     "9000.00000000",
		}},
	}}}, nil
}

func (f *fakeClient) GetTickerPrice(symbol string) (string, error) {
	return f.tickerPrice, f.tickerErr
}

func (f *fakeClient) CreateOrder(req *binance.OrderRequest) (*binance.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	if len(f.createResp) > 0 {
		resp := f.createResp[0]
		f.createResp = f.createResp[1:]
		return resp, nil
	}
	f.nextOrderID++
	return &binance.Order{
		Symbol:      req.Symbol,
		OrderID:     1000 + f.nextOrderID,
		Status:      binance.OrderStatusNew,
		Price:       req.Price,
		OrigQty:     req.Quantity,
		ExecutedQty: "0.00000000",
		Side:        req.Side,
		Type:        req.Type,
	}, nil
}

func (f *fakeClient) CreateOCOOrder(req *binance.OCOOrderRequest) (*binance.OCOOrderResponse, error) {
	if f.ocoErr != nil {
		return nil, f.ocoErr
	}
	f.ocoCreated = append(f.ocoCreated, req)
	if f.ocoResp != nil {
		return f.ocoResp, nil
	}
	f.nextOrderID++
	return &binance.OCOOrderResponse{
		OrderListID: f.nextOrderID,
		OrderReports: []binance.Order{
			{Symbol: req.Symbol, OrderID: 2000 + f.nextOrderID, Status: binance.OrderStatusNew},
		},
	}, nil
}

func (f *fakeClient) GetOrder(symbol string, orderID int64) (*binance.Order, error) {
	if err, ok := f.orderErrs[orderID]; ok {
		return nil, err
	}
	if order, ok := f.orders[orderID]; ok {
		return order, nil
	}
	return nil, fmt.Errorf("order %d not found", orderID)
}

func (f *fakeClient) CancelOrder(symbol string, orderID int64) (*binance.Order, error) {
	return &binance.Order{Symbol: symbol, OrderID: orderID, Status: binance.OrderStatusCanceled}, nil
}

func (f *fakeClient) GetOpenOrders() ([]binance.Order, error) { return nil, nil }

func (f *fakeClient) GetAccount() (*binance.AccountResponse, error) {
	return &binance.AccountResponse{}, nil
}

func (f *fakeClient) GetMyTrades(symbol string, limit int) ([]binance.MyTrade, error) {
	return nil, nil
}

// sellOrders filters the recorded submissions down to SELL legs.
func (f *fakeClient) sellOrders() []*binance.OrderRequest {
	var sells []*binance.OrderRequest
	for _, req := range f.created {
		if req.Side == binance.OrderSideSell {
			sells = append(sells, req)
		}
	}
	return sells
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))
	return db
}

// newTestService wires a Service against the fake gateway, a primed
// exchange-info cache, and an in-memory database.
func newTestService(t *testing.T, client *fakeClient) (*Service, *store.TradeStore, *store.AutoSellStore) {
	t.Helper()
	db := newTestDB(t)

	rules := exchangeinfo.NewCache(client, zap.NewNop())
	require.NoError(t, rules.Refresh())

	trades := store.NewTradeStore(db)
	registry := store.NewAutoSellStore(db)
	svc := NewService(zap.NewNop(), client, rules, trades, registry, 0)
	return svc, trades, registry
}
