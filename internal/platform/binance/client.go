// Package binance is the REST client for the USDⓈ-M futures exchange API.
// Signed endpoints carry an HMAC-SHA256 signature over the query string, a
// millisecond timestamp, and a recvWindow; the timestamp source is injected so
// the clock synchronizer can correct for skew against the exchange clock.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfold/futbot/internal/domain"
)

// Base URLs for the two environments.
const (
	MainnetBaseURL = "https://fapi.binance.com"
	TestnetBaseURL = "https://testnet.binancefuture.com"
)

const defaultRecvWindow = 5000 // milliseconds

// TimestampFunc supplies the millisecond timestamp stamped on signed requests.
type TimestampFunc func() int64

// Client is the REST client for the exchange API.
type Client struct {
	baseURL    string
	apiKey     string
	secret     []byte
	recvWindow int64
	httpClient *http.Client
	timestamp  TimestampFunc
	sink       domain.EventSink
}

// NewClient creates a client for the given API root and credentials. The
// default timestamp source is the local clock; trading deployments should
// install the clock synchronizer via SetTimestampFunc.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		secret:     []byte(apiSecret),
		recvWindow: defaultRecvWindow,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		timestamp:  func() int64 { return time.Now().UnixMilli() },
	}
}

// SetTimestampFunc installs the timestamp source used for signed requests.
func (c *Client) SetTimestampFunc(fn TimestampFunc) {
	if fn != nil {
		c.timestamp = fn
	}
}

// SetRecvWindow overrides the acceptance window sent with signed requests.
func (c *Client) SetRecvWindow(ms int64) {
	if ms > 0 {
		c.recvWindow = ms
	}
}

// SetEventSink installs a sink that receives one APICall event per request.
func (c *Client) SetEventSink(sink domain.EventSink) { c.sink = sink }

// ExchangeInfo fetches the full symbol metadata snapshot.
func (c *Client) ExchangeInfo(ctx context.Context) (domain.ExchangeInfo, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false)
	if err != nil {
		return domain.ExchangeInfo{}, fmt.Errorf("binance: exchange info: %w", err)
	}

	var resp exchangeInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.ExchangeInfo{}, fmt.Errorf("binance: decode exchange info: %w", err)
	}
	return resp.toDomain()
}

// ServerTime returns the exchange clock in Unix milliseconds.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/time", nil, false)
	if err != nil {
		return 0, fmt.Errorf("binance: server time: %w", err)
	}

	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("binance: decode server time: %w", err)
	}
	return resp.ServerTime, nil
}

// TickerPrice returns the latest traded price for a symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: ticker %s: %w", symbol, err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("binance: decode ticker: %w", err)
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: parse ticker price %q: %w", resp.Price, err)
	}
	return price, nil
}

// Account returns balances for the authenticated account.
func (c *Client) Account(ctx context.Context) (domain.Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v2/account", nil, true)
	if err != nil {
		return domain.Account{}, fmt.Errorf("binance: account: %w", err)
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Account{}, fmt.Errorf("binance: decode account: %w", err)
	}
	return resp.toDomain()
}

// CreateOrder submits a new order.
func (c *Client) CreateOrder(ctx context.Context, p domain.OrderParams) (domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", string(p.Side))
	params.Set("type", string(p.Type))
	params.Set("quantity", p.Quantity)
	if p.Price != "" {
		params.Set("price", p.Price)
	}
	if p.StopPrice != "" {
		params.Set("stopPrice", p.StopPrice)
	}
	if p.Type != domain.OrderTypeMarket && p.TimeInForce != "" {
		params.Set("timeInForce", string(p.TimeInForce))
	}
	if p.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	if p.ClientOrderID != "" {
		params.Set("newClientOrderId", p.ClientOrderID)
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: create order: %w", err)
	}
	return decodeOrder(body)
}

// CancelOrder cancels an order by exchange ID.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.doRequest(ctx, http.MethodDelete, "/fapi/v1/order", params, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: cancel order %d: %w", orderID, err)
	}
	return decodeOrder(body)
}

// CancelAllOrders cancels every open order for a symbol.
func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)

	if _, err := c.doRequest(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, true); err != nil {
		return fmt.Errorf("binance: cancel all %s: %w", symbol, err)
	}
	return nil
}

// OpenOrders lists open orders; an empty symbol means all symbols.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/openOrders", params, true)
	if err != nil {
		return nil, fmt.Errorf("binance: open orders: %w", err)
	}
	return decodeOrders(body)
}

// GetOrder fetches a single order's current state.
func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/order", params, true)
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance: get order %d: %w", orderID, err)
	}
	return decodeOrder(body)
}

// OrderHistory lists recent orders for a symbol, at most limit records.
func (c *Client) OrderHistory(ctx context.Context, symbol string, limit int) ([]domain.Order, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/fapi/v1/allOrders", params, true)
	if err != nil {
		return nil, fmt.Errorf("binance: order history %s: %w", symbol, err)
	}
	return decodeOrders(body)
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, optionally signs, sends, and reads an HTTP request.
// Parameters travel in the query string for every method, as the exchange
// expects.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", strconv.FormatInt(c.timestamp(), 10))
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
	}

	query := params.Encode()
	if signed {
		query += "&signature=" + c.sign(query)
	}

	fullURL := c.baseURL + path
	if query != "" {
		fullURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.emitAPICall(ctx, method, path, params, 0, time.Since(start), err)
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.emitAPICall(ctx, method, path, params, resp.StatusCode, time.Since(start), err)
		return nil, fmt.Errorf("read response: %w", err)
	}

	statusErr := checkStatus(resp.StatusCode, respBody)
	c.emitAPICall(ctx, method, path, params, resp.StatusCode, time.Since(start), statusErr)
	if statusErr != nil {
		return nil, statusErr
	}
	return respBody, nil
}

// sign computes the hex-encoded HMAC-SHA256 signature over the encoded query.
func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// checkStatus maps non-2xx responses to tagged *domain.APIError values. The
// exchange error body is {"code": <int>, "msg": <string>}; a body without a
// code (e.g. a proxy error page) yields an APIError with HasCode false.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	apiErr := &domain.APIError{HTTPStatus: statusCode, Message: http.StatusText(statusCode)}

	var wire struct {
		Code *int   `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &wire); err == nil {
		if wire.Code != nil {
			apiErr.Code = *wire.Code
			apiErr.HasCode = true
		}
		if wire.Msg != "" {
			apiErr.Message = wire.Msg
		}
	}

	return apiErr
}

// emitAPICall reports one request to the event sink, if one is installed.
// The signature is never included.
func (c *Client) emitAPICall(ctx context.Context, method, path string, params url.Values, httpCode int, latency time.Duration, callErr error) {
	if c.sink == nil {
		return
	}

	ev := domain.APICallEvent{
		Endpoint: path,
		Method:   method,
		Params:   make(map[string]string, len(params)),
		HTTPCode: httpCode,
		Latency:  latency,
		At:       time.Now().UTC(),
	}
	for k := range params {
		ev.Params[k] = params.Get(k)
	}
	if callErr != nil {
		ev.Err = callErr.Error()
	}
	c.sink.APICall(ctx, ev)
}

var _ domain.ExchangeClient = (*Client)(nil)
