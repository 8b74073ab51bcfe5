package coincheck

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"coincheck-trade-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://coincheck.com"
	maxRetries     = 3
)

// ClientInterface defines the interface for the Coincheck REST API client.
type ClientInterface interface {
	GetTickerRate(ctx context.Context, side OrderType, pair string) (float64, error)
	GetBalances(ctx context.Context) (map[string]Balance, error)
	GetOpenOrders(ctx context.Context) ([]OpenOrder, error)
	GetOrderBooks(ctx context.Context, pair string) (OrderBooks, error)
	PlaceOrder(ctx context.Context, order NewOrder) (Order, error)
	CancelOrder(ctx context.Context, id int64) (int64, error)
	GetCancelStatus(ctx context.Context, id int64) (bool, error)
	GetTrades(ctx context.Context, pair string) ([]Trade, error)
}

// Client is a client for the Coincheck REST API.
type Client struct {
	client    *resty.Client
	baseURL   string
	accessKey string
	secretKey string
	logger    *zap.Logger
	limiter   *rate.Limiter
	retryWait time.Duration

	nonceMu   sync.Mutex
	lastNonce int64
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new Coincheck REST API client.
func NewClient(cfg config.Exchange, logger *zap.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cfg.AccessKey == "" {
		logger.Warn("No access key configured, private endpoints will be rejected")
	}

	return &Client{
		client:    resty.New().SetBaseURL(baseURL).SetTimeout(30 * time.Second),
		baseURL:   baseURL,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
		logger:    logger.Named("coincheck"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		retryWait: time.Second,
	}
}

// sign creates a HMAC-SHA256 signature of nonce, full URL and body.
func (c *Client) sign(nonce, fullURL, body string) string {
	h := hmac.New(sha256.New, []byte(c.secretKey))
	h.Write([]byte(nonce + fullURL + body))
	return hex.EncodeToString(h.Sum(nil))
}

// nextNonce returns a strictly increasing nonce.
func (c *Client) nextNonce() string {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	n := time.Now().UnixMilli()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return strconv.FormatInt(n, 10)
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

// doRequest handles the request execution with rate limiting, signing and retry logic,
// and decodes the response body into result.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, private bool, result any) error {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		req := c.client.R().SetContext(ctx)
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}
		if private {
			// each attempt needs a fresh nonce
			nonce := c.nextNonce()
			req.SetHeader("ACCESS-KEY", c.accessKey).
				SetHeader("ACCESS-NONCE", nonce).
				SetHeader("ACCESS-SIGNATURE", c.sign(nonce, c.baseURL+path, string(body)))
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err = req.Execute(method, path)

		if err == nil && !resp.IsError() {
			return decodeResponse(path, resp, result)
		}

		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
		} else {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			shouldRetry = true
		}

		if !shouldRetry {
			return &ResponseError{Path: path, Status: resp.StatusCode(), Message: errorMessage(resp.Body())}
		}

		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryWait
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("path", path),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err == nil && resp != nil {
		err = &ResponseError{Path: path, Status: resp.StatusCode(), Message: errorMessage(resp.Body())}
	}
	return fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

func decodeResponse(path string, resp *resty.Response, result any) error {
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return &ParseError{Field: path, Value: truncate(resp.String())}
	}
	if env.Success != nil && !*env.Success {
		return &ResponseError{Path: path, Status: resp.StatusCode(), Message: env.Error}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return &ParseError{Field: path, Value: truncate(resp.String())}
	}
	return nil
}

func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error != "" {
		return env.Error
	}
	return truncate(string(body))
}

func truncate(s string) string {
	const limit = 256
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func parseFloat(field, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ParseError{Field: field, Value: s}
	}
	return d.InexactFloat64(), nil
}

func parseOptionalFloat(field string, s *string) (float64, error) {
	if s == nil {
		return 0, nil
	}
	return parseFloat(field, *s)
}

func parseTime(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &ParseError{Field: field, Value: s}
	}
	return t, nil
}

// GetTickerRate returns the rate of trading one unit of the key currency on side.
func (c *Client) GetTickerRate(ctx context.Context, side OrderType, pair string) (float64, error) {
	var res struct {
		Rate string `json:"rate"`
	}

	params := url.Values{}
	params.Set("order_type", string(side))
	params.Set("pair", pair)
	params.Set("amount", "1")

	if err := c.doRequest(ctx, http.MethodGet, "/api/exchange/orders/rate?"+params.Encode(), nil, false, &res); err != nil {
		return 0, fmt.Errorf("failed to get %s rate of %s: %w", side, pair, err)
	}
	return parseFloat("rate", res.Rate)
}

// GetBalances returns the balances keyed by currency.
func (c *Client) GetBalances(ctx context.Context) (map[string]Balance, error) {
	var res map[string]json.RawMessage
	if err := c.doRequest(ctx, http.MethodGet, "/api/accounts/balance", nil, true, &res); err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	return parseBalances(res)
}

// parseBalances reads the "<currency>" and "<currency>_reserved" keys and skips the rest.
func parseBalances(raw map[string]json.RawMessage) (map[string]Balance, error) {
	balances := make(map[string]Balance)
	for key, value := range raw {
		if key == "success" || key == "error" {
			continue
		}
		currency, isReserved := strings.CutSuffix(key, "_reserved")
		if strings.Contains(currency, "_") {
			continue
		}

		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, &ParseError{Field: key, Value: string(value)}
		}
		v, err := parseFloat(key, s)
		if err != nil {
			return nil, err
		}

		b := balances[currency]
		if isReserved {
			b.Reserved = v
		} else {
			b.Amount = v
		}
		balances[currency] = b
	}
	return balances, nil
}

type openOrderResponse struct {
	ID                     int64   `json:"id"`
	OrderType              string  `json:"order_type"`
	Rate                   *string `json:"rate"`
	Pair                   string  `json:"pair"`
	PendingAmount          *string `json:"pending_amount"`
	PendingMarketBuyAmount *string `json:"pending_market_buy_amount"`
	CreatedAt              string  `json:"created_at"`
}

func (o openOrderResponse) toModel() (OpenOrder, error) {
	orderType, err := ParseOrderType(o.OrderType)
	if err != nil {
		return OpenOrder{}, err
	}
	r, err := parseOptionalFloat("rate", o.Rate)
	if err != nil {
		return OpenOrder{}, err
	}
	pending, err := parseOptionalFloat("pending_amount", o.PendingAmount)
	if err != nil {
		return OpenOrder{}, err
	}
	pendingBuy, err := parseOptionalFloat("pending_market_buy_amount", o.PendingMarketBuyAmount)
	if err != nil {
		return OpenOrder{}, err
	}
	createdAt, err := parseTime("created_at", o.CreatedAt)
	if err != nil {
		return OpenOrder{}, err
	}
	return OpenOrder{
		ID:                     o.ID,
		OrderType:              orderType,
		Rate:                   r,
		Pair:                   o.Pair,
		PendingAmount:          pending,
		PendingMarketBuyAmount: pendingBuy,
		CreatedAt:              createdAt,
	}, nil
}

// GetOpenOrders returns the open orders of every pair.
func (c *Client) GetOpenOrders(ctx context.Context) ([]OpenOrder, error) {
	var res struct {
		Orders []openOrderResponse `json:"orders"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/exchange/orders/opens", nil, true, &res); err != nil {
		return nil, fmt.Errorf("failed to get open orders: %w", err)
	}

	orders := make([]OpenOrder, 0, len(res.Orders))
	for _, o := range res.Orders {
		order, err := o.toModel()
		if err != nil {
			return nil, fmt.Errorf("failed to parse open order %d: %w", o.ID, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// GetOrderBooks returns the depth of pair.
func (c *Client) GetOrderBooks(ctx context.Context, pair string) (OrderBooks, error) {
	var res struct {
		Asks [][]decimal.Decimal `json:"asks"`
		Bids [][]decimal.Decimal `json:"bids"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/order_books?pair="+url.QueryEscape(pair), nil, false, &res); err != nil {
		return OrderBooks{}, fmt.Errorf("failed to get order books of %s: %w", pair, err)
	}

	asks, err := toOrderBook("asks", res.Asks)
	if err != nil {
		return OrderBooks{}, err
	}
	bids, err := toOrderBook("bids", res.Bids)
	if err != nil {
		return OrderBooks{}, err
	}
	return OrderBooks{Asks: asks, Bids: bids}, nil
}

func toOrderBook(field string, levels [][]decimal.Decimal) ([]OrderBook, error) {
	books := make([]OrderBook, 0, len(levels))
	for _, level := range levels {
		if len(level) != 2 {
			return nil, &ParseError{Field: field, Value: fmt.Sprint(level)}
		}
		books = append(books, OrderBook{Rate: level[0].InexactFloat64(), Amount: level[1].InexactFloat64()})
	}
	return books, nil
}

// PlaceOrder submits a new order.
func (c *Client) PlaceOrder(ctx context.Context, order NewOrder) (Order, error) {
	body, err := json.Marshal(order.requestBody())
	if err != nil {
		return Order{}, fmt.Errorf("failed to encode order: %w", err)
	}

	var res struct {
		ID        int64               `json:"id"`
		OrderType string              `json:"order_type"`
		Rate      decimal.NullDecimal `json:"rate"`
		Amount    decimal.NullDecimal `json:"amount"`
		Pair      string              `json:"pair"`
		CreatedAt string              `json:"created_at"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/api/exchange/orders", body, true, &res); err != nil {
		c.logger.Error("Failed to place order",
			zap.Error(err),
			zap.String("pair", order.Pair),
			zap.String("order_type", string(order.OrderType)),
		)
		return Order{}, fmt.Errorf("failed to place %s order: %w", order.OrderType, err)
	}

	orderType, err := ParseOrderType(res.OrderType)
	if err != nil {
		return Order{}, err
	}
	createdAt, err := parseTime("created_at", res.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	result := Order{
		ID:        res.ID,
		OrderType: orderType,
		Rate:      res.Rate.Decimal.InexactFloat64(),
		Amount:    res.Amount.Decimal.InexactFloat64(),
		Pair:      res.Pair,
		CreatedAt: createdAt,
	}
	c.logger.Info("Successfully placed order", zap.Int64("id", result.ID), zap.String("order_type", string(result.OrderType)))
	return result, nil
}

// CancelOrder requests the cancellation of an order and returns the id of the request.
func (c *Client) CancelOrder(ctx context.Context, id int64) (int64, error) {
	var res struct {
		ID int64 `json:"id"`
	}
	path := "/api/exchange/orders/" + strconv.FormatInt(id, 10)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, true, &res); err != nil {
		return 0, fmt.Errorf("failed to cancel order %d: %w", id, err)
	}
	return res.ID, nil
}

// GetCancelStatus reports whether the cancellation of an order completed.
func (c *Client) GetCancelStatus(ctx context.Context, id int64) (bool, error) {
	var res struct {
		Cancel bool `json:"cancel"`
	}
	path := "/api/exchange/orders/cancel_status?id=" + strconv.FormatInt(id, 10)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, true, &res); err != nil {
		return false, fmt.Errorf("failed to get cancel status of %d: %w", id, err)
	}
	return res.Cancel, nil
}

// GetTrades returns the latest public trades of pair, newest first.
func (c *Client) GetTrades(ctx context.Context, pair string) ([]Trade, error) {
	var res struct {
		Data []struct {
			ID        int64           `json:"id"`
			Amount    decimal.Decimal `json:"amount"`
			Rate      decimal.Decimal `json:"rate"`
			Pair      string          `json:"pair"`
			OrderType string          `json:"order_type"`
			CreatedAt string          `json:"created_at"`
		} `json:"data"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/trades?pair="+url.QueryEscape(pair), nil, false, &res); err != nil {
		return nil, fmt.Errorf("failed to get trades of %s: %w", pair, err)
	}

	trades := make([]Trade, 0, len(res.Data))
	for _, d := range res.Data {
		orderType, err := ParseOrderType(d.OrderType)
		if err != nil {
			return nil, err
		}
		createdAt, err := parseTime("created_at", d.CreatedAt)
		if err != nil {
			return nil, err
		}
		trades = append(trades, Trade{
			ID:        d.ID,
			OrderType: orderType,
			Rate:      d.Rate.InexactFloat64(),
			Amount:    d.Amount.InexactFloat64(),
			Pair:      d.Pair,
			CreatedAt: createdAt,
		})
	}
	return trades, nil
}
