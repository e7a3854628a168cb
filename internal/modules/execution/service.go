// Package execution submits risk-approved orders to the broker and
// enforces the post-fill slippage cap. It is the only side-effecting
// stage in the pipeline: nothing reaches the broker without passing the
// pre-flight gates here, and a fill worse than the cap is cancelled and
// audited rather than kept.
package execution

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/events"
	"github.com/tradegate/tradegate/internal/modules/audit"
)

const defaultMaxSlippageBps = 50.0

// Recorder is the audit seam, satisfied by *audit.Repository. Recording
// failures are logged and never change the execution outcome.
type Recorder interface {
	RecordOrder(ctx context.Context, runID string, order *domain.ExecutedOrder) error
	RecordTradeOutcome(ctx context.Context, rec *audit.TradeOutcome) error
}

// Result is the outcome of one ExecuteTrade call. Order is attached
// whenever the broker produced one, including rejected and
// slippage-cancelled submissions.
type Result struct {
	Approved    bool                  `json:"approved"`
	Reason      string                `json:"reason"`
	Order       *domain.ExecutedOrder `json:"order,omitempty"`
	SlippageBps *float64              `json:"slippage_bps,omitempty"`
}

// Config holds the execution limits
type Config struct {
	MaxSlippageBps float64
}

// Service gates and submits orders
type Service struct {
	log          zerolog.Logger
	broker       domain.BrokerAdapter
	audit        Recorder
	eventManager *events.Manager
	cfg          Config
}

func NewService(broker domain.BrokerAdapter, recorder Recorder, eventManager *events.Manager, cfg Config, log zerolog.Logger) *Service {
	if cfg.MaxSlippageBps <= 0 {
		cfg.MaxSlippageBps = defaultMaxSlippageBps
	}
	return &Service{
		log:          log.With().Str("service", "execution").Logger(),
		broker:       broker,
		audit:        recorder,
		eventManager: eventManager,
		cfg:          cfg,
	}
}

// ExecuteTrade runs the pre-flight gates, submits the order once, and
// classifies the broker's reply. riskApprovedQty is the share count the
// risk governor sized; a request that disagrees with it never reaches
// the broker. entryEstimate is the price the decision was made at and
// is the reference for slippage. The order request's ClientOrderID
// doubles as the audit run ID.
func (s *Service) ExecuteTrade(ctx context.Context, req domain.OrderRequest, riskApprovedQty int, entryEstimate float64, checksPassed bool) (*Result, error) {
	if req.Qty <= 0 {
		return s.reject(req.Symbol, "invalid_quantity"), nil
	}
	if !checksPassed {
		return s.reject(req.Symbol, "risk_checks_failed"), nil
	}
	if req.Qty != riskApprovedQty {
		s.log.Warn().
			Str("symbol", req.Symbol).
			Int("qty", req.Qty).
			Int("risk_approved_qty", riskApprovedQty).
			Msg("Order quantity does not match risk-approved size")
		return s.reject(req.Symbol, "quantity_mismatch"), nil
	}
	if entryEstimate <= 0 {
		return s.reject(req.Symbol, "invalid_entry_estimate"), nil
	}

	order, err := s.broker.SubmitOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Result{Order: order}
	if order.FilledAvgPrice != nil {
		slippage := slippageBps(req.Side, *order.FilledAvgPrice, entryEstimate)
		order.EstimatedSlippageBps = &slippage
		result.SlippageBps = &slippage
	}

	s.recordOrder(ctx, req.ClientOrderID, order)

	switch order.Status {
	case domain.OrderStatusRejected:
		s.log.Warn().Str("symbol", order.Symbol).Str("order_id", order.OrderID).Msg("Order rejected by broker")
		result.Reason = "broker_rejected"
		return result, nil
	case domain.OrderStatusCancelled:
		s.log.Warn().Str("symbol", order.Symbol).Str("order_id", order.OrderID).Msg("Order cancelled by broker")
		result.Reason = "broker_cancelled"
		return result, nil
	case domain.OrderStatusExpired:
		s.log.Warn().Str("symbol", order.Symbol).Str("order_id", order.OrderID).Msg("Order expired at broker")
		result.Reason = "broker_expired"
		return result, nil
	}

	if order.FilledQty > 0 && result.SlippageBps != nil && *result.SlippageBps > s.cfg.MaxSlippageBps {
		s.cancelOnSlippage(ctx, order, *result.SlippageBps)
		result.Reason = fmt.Sprintf("slippage %.1f bps exceeds max %.1f bps", *result.SlippageBps, s.cfg.MaxSlippageBps)
		return result, nil
	}

	result.Approved = true
	if order.Status == domain.OrderStatusPartialFill {
		result.Reason = "partial_fill"
	} else {
		result.Reason = "submitted"
	}

	s.log.Info().
		Str("symbol", order.Symbol).
		Str("order_id", order.OrderID).
		Str("status", string(order.Status)).
		Int("filled_qty", order.FilledQty).
		Msg("Order submitted")
	return result, nil
}

func (s *Service) reject(symbol, reason string) *Result {
	s.log.Warn().Str("symbol", symbol).Str("reason", reason).Msg("Trade rejected before submission")
	return &Result{Reason: reason}
}

// cancelOnSlippage is best-effort: the cancel may race a full fill at
// the broker, so its failure is logged and the slippage outcome is
// audited either way.
func (s *Service) cancelOnSlippage(ctx context.Context, order *domain.ExecutedOrder, slippage float64) {
	if _, err := s.broker.CancelOrder(ctx, order.OrderID); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.OrderID).Msg("Cancel after slippage breach failed")
	}

	if s.eventManager != nil {
		s.eventManager.Emit(events.SlippageCancel, "execution", map[string]interface{}{
			"symbol":       order.Symbol,
			"order_id":     order.OrderID,
			"slippage_bps": slippage,
		})
	}

	if s.audit == nil {
		return
	}
	err := s.audit.RecordTradeOutcome(ctx, &audit.TradeOutcome{
		OrderID: order.OrderID,
		Symbol:  order.Symbol,
		Outcome: audit.OutcomeCancelledSlippage,
		Details: audit.Details(map[string]float64{"slippage_bps": slippage}),
	})
	if err != nil {
		s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to record slippage cancellation")
	}
}

func (s *Service) recordOrder(ctx context.Context, runID string, order *domain.ExecutedOrder) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordOrder(ctx, runID, order); err != nil {
		s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to record order")
	}
}

// slippageBps returns execution slippage in basis points with adverse
// fills positive: buys filled above the estimate and sells filled below
// it both come out greater than zero.
func slippageBps(side domain.OrderSide, fill, estimate float64) float64 {
	if side == domain.OrderSideSell {
		return (estimate - fill) / estimate * 10000
	}
	return (fill - estimate) / estimate * 10000
}
