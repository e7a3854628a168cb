// Package settlement tracks submitted orders through to their end state.
// The poll walks every order whose newest audited status is still open,
// asks the broker where it stands, and appends the transition; the
// trade-updates stream feeds the same path without waiting for the poll.
// Closing a position settles its realized PnL into the risk governor.
package settlement

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/events"
	"github.com/tradegate/tradegate/internal/modules/audit"
)

// Ledger is the audit seam, satisfied by *audit.Repository
type Ledger interface {
	OpenOrders(ctx context.Context) ([]audit.OrderRecord, error)
	LatestOrder(ctx context.Context, orderID string) (*audit.OrderRecord, error)
	RecordOrder(ctx context.Context, runID string, order *domain.ExecutedOrder) error
	RecordTradeOutcome(ctx context.Context, rec *audit.TradeOutcome) error
}

// TradeRecorder is the risk governor seam. RecordClose is its only
// caller: realized PnL enters the daily loss accounting exactly once,
// when a position is settled.
type TradeRecorder interface {
	RecordTrade(symbol string, pnl float64)
}

// Service reconciles audited orders with the broker's view of them
type Service struct {
	log          zerolog.Logger
	ledger       Ledger
	broker       domain.BrokerAdapter
	governor     TradeRecorder
	eventManager *events.Manager
}

func NewService(ledger Ledger, broker domain.BrokerAdapter, governor TradeRecorder, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		log:          log.With().Str("service", "settlement").Logger(),
		ledger:       ledger,
		broker:       broker,
		governor:     governor,
		eventManager: eventManager,
	}
}

// PollOpenOrders fetches the broker state of every order whose newest
// audited status is non-terminal and appends any transition it finds.
// Per-order failures are logged and skipped so one bad order cannot
// stall the rest of the sweep.
func (s *Service) PollOpenOrders(ctx context.Context) error {
	open, err := s.ledger.OpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("failed to load open orders: %w", err)
	}

	for _, rec := range open {
		order, err := s.broker.GetOrder(ctx, rec.OrderID)
		if err != nil {
			s.log.Warn().Err(err).Str("order_id", rec.OrderID).Msg("Order status check failed")
			continue
		}
		if order == nil {
			s.log.Warn().Str("order_id", rec.OrderID).Msg("Open order unknown to broker")
			continue
		}
		if string(order.Status) == rec.Status && order.FilledQty == rec.FilledQty {
			continue
		}
		s.applyTransition(ctx, rec.RunID, order)
	}
	return nil
}

// HandleTradeUpdate applies one order event from the trade-updates
// stream. The run ID is carried forward from the order's earlier audit
// records; an event that changes nothing is dropped.
func (s *Service) HandleTradeUpdate(ctx context.Context, event string, order *domain.ExecutedOrder) {
	if order == nil || order.OrderID == "" {
		return
	}

	prior, err := s.ledger.LatestOrder(ctx, order.OrderID)
	if err != nil {
		s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to load prior order record")
		return
	}

	runID := ""
	if prior != nil {
		runID = prior.RunID
		if string(order.Status) == prior.Status && order.FilledQty == prior.FilledQty {
			return
		}
	}

	s.log.Debug().
		Str("order_id", order.OrderID).
		Str("event", event).
		Str("status", string(order.Status)).
		Msg("Trade update received")
	s.applyTransition(ctx, runID, order)
}

// RecordClose settles a position: it appends the "closed" outcome with
// the realized PnL and feeds that PnL into the risk governor's daily
// accounting.
func (s *Service) RecordClose(ctx context.Context, symbol, orderID string, pnl float64) error {
	if orderID == "" {
		return domain.NewValidationError("order_id", "order_id is required")
	}

	prior, err := s.ledger.LatestOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}
	if prior == nil {
		return fmt.Errorf("order %q has no audit records", orderID)
	}
	if symbol == "" {
		symbol = prior.Symbol
	}

	err = s.ledger.RecordTradeOutcome(ctx, &audit.TradeOutcome{
		OrderID: orderID,
		Symbol:  symbol,
		Outcome: audit.OutcomeClosed,
		PnL:     &pnl,
	})
	if err != nil {
		return fmt.Errorf("failed to record close: %w", err)
	}

	s.governor.RecordTrade(symbol, pnl)
	s.eventManager.Emit(events.OutcomeRecorded, "settlement", map[string]interface{}{
		"order_id": orderID,
		"symbol":   symbol,
		"outcome":  audit.OutcomeClosed,
		"pnl":      pnl,
	})

	s.log.Info().
		Str("order_id", orderID).
		Str("symbol", symbol).
		Float64("pnl", pnl).
		Msg("Position closed")
	return nil
}

// applyTransition appends the new order state and, when it is terminal,
// the matching lifecycle outcome.
func (s *Service) applyTransition(ctx context.Context, runID string, order *domain.ExecutedOrder) {
	if err := s.ledger.RecordOrder(ctx, runID, order); err != nil {
		s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to record order transition")
		return
	}

	if !order.Status.Terminal() {
		return
	}

	outcome := statusOutcome(order.Status)
	err := s.ledger.RecordTradeOutcome(ctx, &audit.TradeOutcome{
		OrderID: order.OrderID,
		Symbol:  order.Symbol,
		Outcome: outcome,
		Details: audit.Details(map[string]interface{}{
			"status":     string(order.Status),
			"filled_qty": order.FilledQty,
		}),
	})
	if err != nil {
		s.log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to record order outcome")
		return
	}

	s.eventManager.Emit(events.OutcomeRecorded, "settlement", map[string]interface{}{
		"order_id": order.OrderID,
		"symbol":   order.Symbol,
		"outcome":  outcome,
	})
}

func statusOutcome(status domain.OrderStatus) string {
	switch status {
	case domain.OrderStatusFilled:
		return audit.OutcomeFilled
	case domain.OrderStatusCancelled:
		return audit.OutcomeCancelled
	case domain.OrderStatusExpired:
		return audit.OutcomeExpired
	default:
		return audit.OutcomeRejected
	}
}
