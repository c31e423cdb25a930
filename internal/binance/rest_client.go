package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"binance-trade-assistant/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL    = "https://api.binance.com/api/v3"
	recvWindow = "5000" // How long a request is valid in milliseconds

	// openOrdersRecvWindow is deliberately long: the open-orders endpoint is
	// weight-heavy and slow under load.
	openOrdersRecvWindow = "60000"

	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderSideBuy    = "BUY"
	OrderSideSell   = "SELL"
	TimeInForceGTC  = "GTC"

	OrderStatusNew             = "NEW"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCanceled        = "CANCELED"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusRejected        = "REJECTED"
)

// RestClientInterface defines the interface for the Binance REST API client.
type RestClientInterface interface {
	GetServerTime() (int64, error)
	GetExchangeInfo() (*ExchangeInfoResponse, error)
	GetTickerPrice(symbol string) (string, error)
	CreateOrder(req *OrderRequest) (*Order, error)
	CreateOCOOrder(req *OCOOrderRequest) (*OCOOrderResponse, error)
	GetOrder(symbol string, orderID int64) (*Order, error)
	CancelOrder(symbol string, orderID int64) (*Order, error)
	GetOpenOrders() ([]Order, error)
	GetAccount() (*AccountResponse, error)
	GetMyTrades(symbol string, limit int) ([]MyTrade, error)
}

// RestClient is a client for the Binance REST API.
// It implements the RestClientInterface.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
}

// ensure RestClient implements the interface
var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	if url == "" {
		url = baseURL
		logger.Info("Using Binance Production API")
	} else {
		logger.Warn("Using Binance API base URL override", zap.String("base_url", url))
	}

	client := resty.New().SetBaseURL(url)

	// Initialize the rate limiter
	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secretKey: cfg.SecretKey,
		logger:    logger,
		limiter:   limiter,
	}
}

// sign creates a HMAC-SHA256 signature for the request.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// signedQuery stamps the params, signs them, and returns the full encoded
// payload with the signature appended last, as the exchange verifies it.
func (c *RestClient) signedQuery(params url.Values, window string) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", window)
	queryString := params.Encode()
	return queryString + "&signature=" + c.sign(queryString)
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == 418 { // HTTP 429 or 418
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			// Pass the exchange's error body through unchanged; callers
			// surface it to the UI as-is.
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// GetServerTime fetches the current server time from Binance.
// This is a good endpoint to test connectivity.
func (c *RestClient) GetServerTime() (int64, error) {
	type ServerTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	req := c.client.R().
		SetResult(&ServerTimeResponse{})
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/time", req)
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}

	result := resp.Result().(*ServerTimeResponse)
	return result.ServerTime, nil
}

// TickerPrice represents the response for a single ticker price.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetTickerPrice fetches the latest price for one symbol.
func (c *RestClient) GetTickerPrice(symbol string) (string, error) {
	var ticker TickerPrice

	req := c.client.R().
		SetQueryParam("symbol", symbol).
		SetResult(&ticker)
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/ticker/price", req)
	if err != nil {
		return "", fmt.Errorf("failed to get ticker price for %s: %w", symbol, err)
	}

	result := resp.Result().(*TickerPrice)
	return result.Price, nil
}

// ExchangeInfoResponse represents the full response from the /exchangeInfo endpoint.
type ExchangeInfoResponse struct {
	Symbols []SymbolInfo `json:"symbols"`
}

// SymbolInfo contains information about a specific trading symbol.
type SymbolInfo struct {
	Symbol  string   `json:"symbol"`
	Status  string   `json:"status"`
	Filters []Filter `json:"filters"`
}

// Filter represents a single filter for a symbol.
// We are interested in the LOT_SIZE filter to get the stepSize.
type Filter struct {
	FilterType string `json:"filterType"`
	MinQty     string `json:"minQty,omitempty"`
	MaxQty     string `json:"maxQty,omitempty"`
	StepSize   string `json:"stepSize,omitempty"`
}

// GetExchangeInfo fetches exchange trading rules and symbol information.
func (c *RestClient) GetExchangeInfo() (*ExchangeInfoResponse, error) {
	var exchangeInfo ExchangeInfoResponse

	req := c.client.R().
		SetResult(&exchangeInfo).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/exchangeInfo", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get exchange info: %w", err)
	}

	return resp.Result().(*ExchangeInfoResponse), nil
}

// Order is an exchange order as returned by the create, query and cancel
// endpoints. Not every field is present in every response; quantities and
// prices stay strings exactly as the exchange reports them.
type Order struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId,omitempty"`
	TransactTime        int64  `json:"transactTime,omitempty"`
	Price               string `json:"price"`
	OrigQty             string `json:"origQty"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Status              string `json:"status"`
	TimeInForce         string `json:"timeInForce"`
	Type                string `json:"type"`
	Side                string `json:"side"`
	StopPrice           string `json:"stopPrice,omitempty"`
	Time                int64  `json:"time,omitempty"`
	UpdateTime          int64  `json:"updateTime,omitempty"`
}

// OrderRequest holds the parameters for placing a new spot order.
type OrderRequest struct {
	Symbol      string
	Side        string
	Type        string
	Quantity    string
	Price       string // required for LIMIT orders
	TimeInForce string // defaults to GTC for LIMIT orders
}

// CreateOrder places a new order on Binance.
func (c *RestClient) CreateOrder(order *OrderRequest) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", order.Side)
	params.Set("type", order.Type)
	params.Set("quantity", order.Quantity)
	if order.Type == OrderTypeLimit {
		params.Set("price", order.Price)
		tif := order.TimeInForce
		if tif == "" {
			tif = TimeInForceGTC
		}
		params.Set("timeInForce", tif)
	}

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.signedQuery(params, recvWindow)).
		SetResult(&Order{})

	ctx := context.Background()

	resp, err := c.doRequest(ctx, "POST", "/order", req)
	if err != nil {
		c.logger.Error("Failed to create order",
			zap.Error(err),
			zap.String("symbol", order.Symbol),
			zap.String("side", order.Side),
		)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	result := resp.Result().(*Order)
	c.logger.Info("Successfully created order", zap.Any("order", result))
	return result, nil
}

// OCOOrderRequest holds the parameters for a one-cancels-the-other sell:
// a limit leg at Price plus a stop-loss leg at StopPrice/StopLimitPrice.
type OCOOrderRequest struct {
	Symbol         string
	Side           string
	Quantity       string
	Price          string
	StopPrice      string
	StopLimitPrice string
}

// OCOOrderResponse represents the response from creating an OCO order list.
type OCOOrderResponse struct {
	OrderListID  int64   `json:"orderListId"`
	ListStatus   string  `json:"listStatusType"`
	OrderReports []Order `json:"orderReports"`
}

// CreateOCOOrder places a linked limit/stop-loss-limit order pair.
func (c *RestClient) CreateOCOOrder(order *OCOOrderRequest) (*OCOOrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", order.Side)
	params.Set("quantity", order.Quantity)
	params.Set("price", order.Price)
	params.Set("stopPrice", order.StopPrice)
	params.Set("stopLimitPrice", order.StopLimitPrice)
	params.Set("stopLimitTimeInForce", TimeInForceGTC)

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.signedQuery(params, recvWindow)).
		SetResult(&OCOOrderResponse{})

	ctx := context.Background()

	resp, err := c.doRequest(ctx, "POST", "/order/oco", req)
	if err != nil {
		c.logger.Error("Failed to create OCO order",
			zap.Error(err),
			zap.String("symbol", order.Symbol),
		)
		return nil, fmt.Errorf("failed to create OCO order: %w", err)
	}

	return resp.Result().(*OCOOrderResponse), nil
}

// GetOrder fetches the current state of a single order.
func (c *RestClient) GetOrder(symbol string, orderID int64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(c.signedQuery(params, recvWindow)).
		SetResult(&Order{})

	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/order", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", orderID, err)
	}

	return resp.Result().(*Order), nil
}

// CancelOrder cancels an open order.
func (c *RestClient) CancelOrder(symbol string, orderID int64) (*Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(c.signedQuery(params, recvWindow)).
		SetResult(&Order{})

	ctx := context.Background()

	resp, err := c.doRequest(ctx, "DELETE", "/order", req)
	if err != nil {
		c.logger.Error("Failed to cancel order",
			zap.Error(err),
			zap.String("symbol", symbol),
			zap.Int64("order_id", orderID),
		)
		return nil, fmt.Errorf("failed to cancel order %d: %w", orderID, err)
	}

	result := resp.Result().(*Order)
	c.logger.Info("Successfully cancelled order", zap.Int64("order_id", result.OrderID))
	return result, nil
}

// GetOpenOrders fetches all currently open orders for the account.
func (c *RestClient) GetOpenOrders() ([]Order, error) {
	var orders []Order

	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(c.signedQuery(url.Values{}, openOrdersRecvWindow)).
		SetResult(&orders)

	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/openOrders", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}

	result := resp.Result().(*[]Order)
	return *result, nil
}

// Balance is a single asset balance from the account endpoint.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// AccountResponse represents the response from the /account endpoint.
type AccountResponse struct {
	Balances []Balance `json:"balances"`
}

// GetAccount fetches account information including asset balances.
func (c *RestClient) GetAccount() (*AccountResponse, error) {
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(c.signedQuery(url.Values{}, recvWindow)).
		SetResult(&AccountResponse{})

	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/account", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get account info: %w", err)
	}

	return resp.Result().(*AccountResponse), nil
}

// MyTrade is a single fill from the account trade history.
type MyTrade struct {
	Symbol          string `json:"symbol"`
	ID              int64  `json:"id"`
	OrderID         int64  `json:"orderId"`
	Price           string `json:"price"`
	Qty             string `json:"qty"`
	QuoteQty        string `json:"quoteQty"`
	Commission      string `json:"commission"`
	CommissionAsset string `json:"commissionAsset"`
	Time            int64  `json:"time"`
	IsBuyer         bool   `json:"isBuyer"`
	IsMaker         bool   `json:"isMaker"`
	IsBestMatch     bool   `json:"isBestMatch"`
}

// GetMyTrades fetches the account's trade history for a symbol.
func (c *RestClient) GetMyTrades(symbol string, limit int) ([]MyTrade, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	var trades []MyTrade
	req := c.client.R().
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(c.signedQuery(params, recvWindow)).
		SetResult(&trades)

	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", "/myTrades", req)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade history for %s: %w", symbol, err)
	}

	result := resp.Result().(*[]MyTrade)
	return *result, nil
}
