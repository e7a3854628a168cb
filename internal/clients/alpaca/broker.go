// Package alpaca provides clients for the Alpaca trading and market-data
// APIs: order lifecycle, historical/latest bars, and the trade-updates
// stream.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
)

const (
	paperBaseURL = "https://paper-api.alpaca.markets"
	liveBaseURL  = "https://api.alpaca.markets"
)

// BrokerConfig holds broker client configuration. Mode is "paper" or
// "live"; live requires LiveConfirmed so a config typo can never point
// an unconfirmed deployment at real money.
type BrokerConfig struct {
	APIKey        string
	APISecret     string
	Mode          string
	LiveConfirmed bool
	BaseURL       string
	Timeout       time.Duration
}

// BrokerClient implements domain.BrokerAdapter against the Alpaca
// orders API
type BrokerClient struct {
	log        zerolog.Logger
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// Compile-time check that BrokerClient implements domain.BrokerAdapter
var _ domain.BrokerAdapter = (*BrokerClient)(nil)

// NewBrokerClient creates a broker client for the configured mode.
// Unknown modes and unconfirmed live mode fail here, never at submit
// time.
func NewBrokerClient(cfg BrokerConfig, log zerolog.Logger) (*BrokerClient, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	var baseURL string
	switch mode {
	case "paper":
		baseURL = paperBaseURL
	case "live":
		if !cfg.LiveConfirmed {
			return nil, fmt.Errorf("live trading requires explicit confirmation")
		}
		baseURL = liveBaseURL
	default:
		return nil, fmt.Errorf("trading mode must be paper or live, got %q", cfg.Mode)
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 500 * time.Millisecond
	}

	return &BrokerClient{
		log:        log.With().Str("client", "alpaca").Str("mode", mode).Logger(),
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// orderResponse is the wire shape of an Alpaca order
type orderResponse struct {
	ID             string  `json:"id"`
	ClientOrderID  string  `json:"client_order_id"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Qty            string  `json:"qty"`
	FilledQty      string  `json:"filled_qty"`
	Status         string  `json:"status"`
	FilledAvgPrice *string `json:"filled_avg_price"`
	CreatedAt      string  `json:"created_at"`
	FilledAt       *string `json:"filled_at"`
}

// SubmitOrder submits an order and parses the broker reply. Limit
// orders without a positive limit price are rejected before any network
// call.
func (c *BrokerClient) SubmitOrder(ctx context.Context, req domain.OrderRequest) (*domain.ExecutedOrder, error) {
	payload, err := buildOrderPayload(req)
	if err != nil {
		return nil, err
	}

	body, _, err := c.request(ctx, http.MethodPost, "/v2/orders", payload, false)
	if err != nil {
		return nil, err
	}
	return parseOrder(body)
}

// GetOrder fetches the current state of an order. An unknown order ID
// yields (nil, nil).
func (c *BrokerClient) GetOrder(ctx context.Context, orderID string) (*domain.ExecutedOrder, error) {
	body, status, err := c.request(ctx, http.MethodGet, "/v2/orders/"+orderID, nil, true)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return parseOrder(body)
}

// CancelOrder requests cancellation. 204 means the cancel was accepted;
// an already-gone order yields (false, nil).
func (c *BrokerClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	_, status, err := c.request(ctx, http.MethodDelete, "/v2/orders/"+orderID, nil, true)
	if err != nil {
		return false, err
	}
	if status == http.StatusNotFound {
		return false, nil
	}
	return status == http.StatusNoContent, nil
}

// Health checks account tradability via /v2/account and /v2/clock. A
// blocked account wins over a closed market.
func (c *BrokerClient) Health(ctx context.Context) domain.HealthStatus {
	accountBody, _, err := c.request(ctx, http.MethodGet, "/v2/account", nil, false)
	if err != nil {
		return domain.HealthStatus{Healthy: false, Reason: "account_unreachable"}
	}
	var account struct {
		TradingBlocked bool `json:"trading_blocked"`
		AccountBlocked bool `json:"account_blocked"`
	}
	if err := json.Unmarshal(accountBody, &account); err != nil {
		return domain.HealthStatus{Healthy: false, Reason: "account_unreachable"}
	}
	if account.TradingBlocked || account.AccountBlocked {
		return domain.HealthStatus{Healthy: false, Reason: "account_blocked"}
	}

	clockBody, _, err := c.request(ctx, http.MethodGet, "/v2/clock", nil, false)
	if err != nil {
		return domain.HealthStatus{Healthy: false, Reason: "clock_unreachable"}
	}
	var clock struct {
		IsOpen bool `json:"is_open"`
	}
	if err := json.Unmarshal(clockBody, &clock); err != nil {
		return domain.HealthStatus{Healthy: false, Reason: "clock_unreachable"}
	}
	if !clock.IsOpen {
		return domain.HealthStatus{Healthy: false, Reason: "market_closed"}
	}
	return domain.HealthStatus{Healthy: true, Reason: "ok"}
}

func buildOrderPayload(req domain.OrderRequest) (map[string]interface{}, error) {
	payload := map[string]interface{}{
		"symbol":        req.Symbol,
		"qty":           req.Qty,
		"side":          string(req.Side),
		"type":          string(req.Type),
		"time_in_force": string(req.TimeInForce),
	}
	if req.Type == domain.OrderTypeLimit {
		if req.LimitPrice == nil || *req.LimitPrice <= 0 {
			return nil, domain.NewValidationError("limit_price", "limit price required for limit orders")
		}
		payload["limit_price"] = *req.LimitPrice
	}
	if req.StopLoss != nil {
		payload["stop_loss"] = map[string]interface{}{"stop_price": *req.StopLoss}
	}
	if req.TakeProfit != nil {
		payload["take_profit"] = map[string]interface{}{"limit_price": *req.TakeProfit}
	}
	if req.ClientOrderID != "" {
		payload["client_order_id"] = req.ClientOrderID
	}
	return payload, nil
}

func parseOrder(body []byte) (*domain.ExecutedOrder, error) {
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewServiceError("alpaca", "decode_error", "failed to decode order response", err)
	}

	order := &domain.ExecutedOrder{
		OrderID:       resp.ID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        resp.Symbol,
		Side:          domain.OrderSide(resp.Side),
		Qty:           atoiOrZero(resp.Qty),
		FilledQty:     atoiOrZero(resp.FilledQty),
		Status:        MapOrderStatus(resp.Status),
		SubmittedAt:   parseTimeOrNow(resp.CreatedAt),
		Raw:           json.RawMessage(body),
	}
	if resp.FilledAvgPrice != nil {
		if price, err := strconv.ParseFloat(*resp.FilledAvgPrice, 64); err == nil {
			order.FilledAvgPrice = &price
		}
	}
	if resp.FilledAt != nil && *resp.FilledAt != "" {
		if at, err := time.Parse(time.RFC3339, *resp.FilledAt); err == nil {
			order.FilledAt = &at
		}
	}
	return order, nil
}

// MapOrderStatus maps Alpaca order states into the canonical status set.
// Unrecognized states map to PENDING so an order is never dropped.
func MapOrderStatus(status string) domain.OrderStatus {
	switch strings.ToLower(status) {
	case "new", "pending", "pending_new", "pending_cancel", "pending_replace":
		return domain.OrderStatusPending
	case "accepted", "accepted_for_bidding", "replaced":
		return domain.OrderStatusAccepted
	case "partially_filled":
		return domain.OrderStatusPartialFill
	case "filled":
		return domain.OrderStatusFilled
	case "canceled", "cancelled", "done_for_day":
		return domain.OrderStatusCancelled
	case "expired":
		return domain.OrderStatusExpired
	case "rejected":
		return domain.OrderStatusRejected
	default:
		return domain.OrderStatusPending
	}
}

// request performs one API call. allowNotFound suppresses the 404 error
// so callers can treat missing orders as absent rather than failed.
func (c *BrokerClient) request(ctx context.Context, method, path string, payload interface{}, allowNotFound bool) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("APCA-API-KEY-ID", c.apiKey)
	httpReq.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, domain.NewServiceError("alpaca", "timeout", "broker request timed out", err)
		}
		return nil, 0, domain.NewServiceError("alpaca", "network_error", "broker request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, domain.NewServiceError("alpaca", "read_error", "failed to read broker response", err)
	}

	if allowNotFound && resp.StatusCode == http.StatusNotFound {
		return body, resp.StatusCode, nil
	}
	if resp.StatusCode >= 400 {
		serr := domain.NewServiceError("alpaca", "http_error",
			fmt.Sprintf("broker returned status %d", resp.StatusCode), nil)
		serr.HTTPStatus = resp.StatusCode
		serr.Raw = body
		return nil, resp.StatusCode, serr
	}
	return body, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

func atoiOrZero(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseTimeOrNow(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now().UTC()
	}
	return at
}
