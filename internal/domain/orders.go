package domain

import (
	"encoding/json"
	"time"
)

// OrderSide is the direction of an order
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution style of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce controls how long an order stays working
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

// OrderStatus is the canonical order state. Broker-specific strings are
// mapped into this closed set by the adapter; anything unrecognized maps
// to OrderStatusPending so an order is never dropped on an unknown status.
type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "PENDING"
	OrderStatusAccepted    OrderStatus = "ACCEPTED"
	OrderStatusPartialFill OrderStatus = "PARTIAL_FILL"
	OrderStatusFilled      OrderStatus = "FILLED"
	OrderStatusCancelled   OrderStatus = "CANCELLED"
	OrderStatusExpired     OrderStatus = "EXPIRED"
	OrderStatusRejected    OrderStatus = "REJECTED"
)

// Terminal reports whether the status is final. PENDING, ACCEPTED and
// PARTIAL_FILL can still transition; the rest cannot.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// OrderRequest describes an order to submit. Immutable once built.
type OrderRequest struct {
	Symbol        string      `json:"symbol"`
	Qty           int         `json:"qty"`
	Side          OrderSide   `json:"side"`
	Type          OrderType   `json:"type"`
	TimeInForce   TimeInForce `json:"time_in_force"`
	LimitPrice    *float64    `json:"limit_price,omitempty"`
	StopLoss      *float64    `json:"stop_loss,omitempty"`
	TakeProfit    *float64    `json:"take_profit,omitempty"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
}

// ExecutedOrder is the canonical view of an order known to the broker.
// Instances are audit-appended, never mutated; a status change produces
// a new record.
type ExecutedOrder struct {
	OrderID              string          `json:"order_id"`
	ClientOrderID        string          `json:"client_order_id,omitempty"`
	Symbol               string          `json:"symbol"`
	Side                 OrderSide       `json:"side"`
	Qty                  int             `json:"qty"`
	FilledQty            int             `json:"filled_qty"`
	Status               OrderStatus     `json:"status"`
	FilledAvgPrice       *float64        `json:"filled_avg_price,omitempty"`
	SubmittedAt          time.Time       `json:"submitted_at"`
	FilledAt             *time.Time      `json:"filled_at,omitempty"`
	EstimatedSlippageBps *float64        `json:"estimated_slippage_bps,omitempty"`
	Raw                  json.RawMessage `json:"-"`
}

// SignedFilledQty returns the fill quantity with buys positive and sells
// negative, the convention used for net position math.
func (o *ExecutedOrder) SignedFilledQty() int {
	if o.Side == OrderSideSell {
		return -o.FilledQty
	}
	return o.FilledQty
}

// HealthStatus reports broker account tradability
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Reason  string `json:"reason,omitempty"`
}
