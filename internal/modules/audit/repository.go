package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
)

const (
	decisionsColumns = `id, run_id, symbol, final_decision, execution_reason, confidence, details_json, created_at`
	ordersColumns    = `id, run_id, order_id, client_order_id, symbol, side, qty, filled_qty, status, filled_avg_price, slippage_bps, created_at`
	outcomesColumns  = `id, order_id, symbol, outcome, pnl, details_json, created_at`
)

// Repository is the append-only sink over the ledger database. Record
// methods insert and mirror to the log; query methods read. Nothing
// here updates or deletes, and the schema's guard triggers make sure
// nothing else does either.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "audit").Logger(),
	}
}

// RecordDecision appends the final verdict of one run. Each run records
// exactly one decision; a second write for the same run is an attempt to
// rewrite history and fails as an invariant violation.
func (r *Repository) RecordDecision(ctx context.Context, rec *Decision) error {
	rec.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO decisions (run_id, symbol, final_decision, execution_reason, confidence, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Symbol, rec.FinalDecision, rec.ExecutionReason, rec.Confidence,
		jsonArg(rec.Details), rec.CreatedAt.Unix())
	if err != nil {
		if isConstraintConflict(err) {
			return domain.NewInvariantViolation(fmt.Sprintf("decision for run %s already recorded", rec.RunID))
		}
		return fmt.Errorf("failed to record decision: %w", err)
	}

	r.log.Info().
		Str("run_id", rec.RunID).
		Str("symbol", rec.Symbol).
		Str("final_decision", rec.FinalDecision).
		Str("execution_reason", rec.ExecutionReason).
		Msg("Audit decision recorded")
	return nil
}

// RecordAIOutput appends the classifier's parsed reply for one run
func (r *Repository) RecordAIOutput(ctx context.Context, rec *AIOutput) error {
	rec.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_outputs (run_id, symbol, decision, confidence, matched_rules_json, violated_rules_json, risk_flags_json, explanation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Symbol, rec.Decision, rec.Confidence,
		encodeLabels(rec.MatchedRules), encodeLabels(rec.ViolatedRules), encodeLabels(rec.RiskFlags),
		rec.Explanation, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record AI output: %w", err)
	}

	r.log.Info().
		Str("run_id", rec.RunID).
		Str("symbol", rec.Symbol).
		Str("decision", rec.Decision).
		Float64("confidence", rec.Confidence).
		Msg("Audit AI output recorded")
	return nil
}

// RecordRuleCheck appends a gate stage's verdict for one run
func (r *Repository) RecordRuleCheck(ctx context.Context, rec *RuleCheck) error {
	rec.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rule_checks (run_id, symbol, check_type, passed, violations_json, warnings_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Symbol, rec.CheckType, boolToInt(rec.Passed),
		encodeLabels(rec.Violations), encodeLabels(rec.Warnings), rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record rule check: %w", err)
	}

	r.log.Info().
		Str("run_id", rec.RunID).
		Str("symbol", rec.Symbol).
		Str("check_type", rec.CheckType).
		Bool("passed", rec.Passed).
		Msg("Audit rule check recorded")
	return nil
}

// RecordRiskOverride appends the risk governor's sizing verdict
func (r *Repository) RecordRiskOverride(ctx context.Context, rec *RiskOverride) error {
	rec.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO risk_overrides (run_id, symbol, approved, reason, shares, notional, risk_per_trade, stop_loss_price, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Symbol, boolToInt(rec.Approved), rec.Reason,
		rec.Shares, rec.Notional, rec.RiskPerTrade, rec.StopLossPrice, rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record risk override: %w", err)
	}

	r.log.Info().
		Str("run_id", rec.RunID).
		Str("symbol", rec.Symbol).
		Bool("approved", rec.Approved).
		Str("reason", rec.Reason).
		Msg("Audit risk override recorded")
	return nil
}

// RecordOrder appends the current state of a broker order. Called once
// on submit and again on every observed status change; the order's
// history is the sequence of its records.
func (r *Repository) RecordOrder(ctx context.Context, runID string, order *domain.ExecutedOrder) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (run_id, order_id, client_order_id, symbol, side, qty, filled_qty, status, filled_avg_price, slippage_bps, raw_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, order.OrderID, order.ClientOrderID, order.Symbol, string(order.Side),
		order.Qty, order.FilledQty, string(order.Status), order.FilledAvgPrice,
		order.EstimatedSlippageBps, jsonArg(order.Raw), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}

	r.log.Info().
		Str("run_id", runID).
		Str("order_id", order.OrderID).
		Str("symbol", order.Symbol).
		Str("status", string(order.Status)).
		Int("filled_qty", order.FilledQty).
		Msg("Audit order recorded")
	return nil
}

// RecordTradeOutcome appends a lifecycle event for an audited order
func (r *Repository) RecordTradeOutcome(ctx context.Context, rec *TradeOutcome) error {
	rec.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trade_outcomes (order_id, symbol, outcome, pnl, details_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.OrderID, rec.Symbol, rec.Outcome, rec.PnL, jsonArg(rec.Details), rec.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record trade outcome: %w", err)
	}

	logEvent := r.log.Info().
		Str("order_id", rec.OrderID).
		Str("symbol", rec.Symbol).
		Str("outcome", rec.Outcome)
	if rec.PnL != nil {
		logEvent = logEvent.Float64("pnl", *rec.PnL)
	}
	logEvent.Msg("Audit trade outcome recorded")
	return nil
}

// RecentDecisions returns the newest decisions across all symbols
func (r *Repository) RecentDecisions(ctx context.Context, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+decisionsColumns+` FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// DecisionsBySymbol returns the newest decisions for one symbol
func (r *Repository) DecisionsBySymbol(ctx context.Context, symbol string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+decisionsColumns+` FROM decisions WHERE symbol = ? ORDER BY id DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()
	return scanDecisions(rows)
}

// OrdersBySymbol returns the newest audited state of each order for a
// symbol, each with its latest recorded outcome when one exists.
func (r *Repository) OrdersBySymbol(ctx context.Context, symbol string, limit int) ([]OrderRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id, o.run_id, o.order_id, o.client_order_id, o.symbol, o.side, o.qty, o.filled_qty,
		       o.status, o.filled_avg_price, o.slippage_bps, o.created_at,
		       t.id, t.outcome, t.pnl, t.created_at
		FROM orders o
		LEFT JOIN trade_outcomes t ON t.order_id = o.order_id
		     AND t.id = (SELECT MAX(id) FROM trade_outcomes t2 WHERE t2.order_id = o.order_id)
		WHERE o.symbol = ?
		  AND o.id = (SELECT MAX(id) FROM orders o2 WHERE o2.order_id = o.order_id)
		ORDER BY o.id DESC
		LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []OrderRecord
	for rows.Next() {
		order, err := scanOrderWithOutcome(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// OpenOrders returns orders whose newest audited status is still
// non-terminal. The settlement poll works through this list.
func (r *Repository) OpenOrders(ctx context.Context) ([]OrderRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ordersColumns+` FROM orders
		WHERE id = (SELECT MAX(id) FROM orders o2 WHERE o2.order_id = orders.order_id)
		  AND status NOT IN (?, ?, ?, ?)
		ORDER BY id`,
		string(domain.OrderStatusFilled), string(domain.OrderStatusCancelled),
		string(domain.OrderStatusExpired), string(domain.OrderStatusRejected))
	if err != nil {
		return nil, fmt.Errorf("failed to query open orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// UnsettledOrders returns the newest audited state of each order for a
// symbol that has no "closed" outcome yet. Net position is the sum of
// their signed fills.
func (r *Repository) UnsettledOrders(ctx context.Context, symbol string) ([]OrderRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ordersColumns+` FROM orders
		WHERE symbol = ?
		  AND id = (SELECT MAX(id) FROM orders o2 WHERE o2.order_id = orders.order_id)
		  AND order_id NOT IN (SELECT order_id FROM trade_outcomes WHERE outcome = ?)
		ORDER BY id`, symbol, OutcomeClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsettled orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// LatestOrder returns the newest audited state of one order, or nil
// when the order was never recorded.
func (r *Repository) LatestOrder(ctx context.Context, orderID string) (*OrderRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ordersColumns+` FROM orders
		WHERE order_id = ?
		ORDER BY id DESC LIMIT 1`, orderID)

	order, err := scanOrder(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return order, nil
}

// OutcomesForOrder returns every recorded outcome for an order,
// oldest-first
func (r *Repository) OutcomesForOrder(ctx context.Context, orderID string) ([]TradeOutcome, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+outcomesColumns+` FROM trade_outcomes WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []TradeOutcome
	for rows.Next() {
		outcome, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *outcome)
	}
	return outcomes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDecisions(rows *sql.Rows) ([]Decision, error) {
	var decisions []Decision
	for rows.Next() {
		var (
			d         Decision
			reason    sql.NullString
			conf      sql.NullFloat64
			details   sql.NullString
			createdAt int64
		)
		err := rows.Scan(&d.ID, &d.RunID, &d.Symbol, &d.FinalDecision, &reason, &conf, &details, &createdAt)
		if err != nil {
			return nil, err
		}
		d.ExecutionReason = reason.String
		if conf.Valid {
			d.Confidence = &conf.Float64
		}
		if details.Valid {
			d.Details = json.RawMessage(details.String)
		}
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

func scanOrder(row rowScanner) (*OrderRecord, error) {
	var (
		o         OrderRecord
		runID     sql.NullString
		clientID  sql.NullString
		avgPrice  sql.NullFloat64
		slippage  sql.NullFloat64
		createdAt int64
	)
	err := row.Scan(&o.ID, &runID, &o.OrderID, &clientID, &o.Symbol, &o.Side,
		&o.Qty, &o.FilledQty, &o.Status, &avgPrice, &slippage, &createdAt)
	if err != nil {
		return nil, err
	}
	o.RunID = runID.String
	o.ClientOrderID = clientID.String
	if avgPrice.Valid {
		o.FilledAvgPrice = &avgPrice.Float64
	}
	if slippage.Valid {
		o.SlippageBps = &slippage.Float64
	}
	o.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]OrderRecord, error) {
	var orders []OrderRecord
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

func scanOrderWithOutcome(rows *sql.Rows) (*OrderRecord, error) {
	var (
		o          OrderRecord
		runID      sql.NullString
		clientID   sql.NullString
		avgPrice   sql.NullFloat64
		slippage   sql.NullFloat64
		createdAt  int64
		outcomeID  sql.NullInt64
		outcome    sql.NullString
		pnl        sql.NullFloat64
		outcomedAt sql.NullInt64
	)
	err := rows.Scan(&o.ID, &runID, &o.OrderID, &clientID, &o.Symbol, &o.Side,
		&o.Qty, &o.FilledQty, &o.Status, &avgPrice, &slippage, &createdAt,
		&outcomeID, &outcome, &pnl, &outcomedAt)
	if err != nil {
		return nil, err
	}
	o.RunID = runID.String
	o.ClientOrderID = clientID.String
	if avgPrice.Valid {
		o.FilledAvgPrice = &avgPrice.Float64
	}
	if slippage.Valid {
		o.SlippageBps = &slippage.Float64
	}
	o.CreatedAt = time.Unix(createdAt, 0).UTC()

	if outcome.Valid {
		latest := TradeOutcome{
			ID:      outcomeID.Int64,
			OrderID: o.OrderID,
			Symbol:  o.Symbol,
			Outcome: outcome.String,
		}
		if pnl.Valid {
			latest.PnL = &pnl.Float64
		}
		if outcomedAt.Valid {
			latest.CreatedAt = time.Unix(outcomedAt.Int64, 0).UTC()
		}
		o.LatestOutcome = &latest
	}
	return &o, nil
}

func scanOutcome(row rowScanner) (*TradeOutcome, error) {
	var (
		t         TradeOutcome
		pnl       sql.NullFloat64
		details   sql.NullString
		createdAt int64
	)
	err := row.Scan(&t.ID, &t.OrderID, &t.Symbol, &t.Outcome, &pnl, &details, &createdAt)
	if err != nil {
		return nil, err
	}
	if pnl.Valid {
		t.PnL = &pnl.Float64
	}
	if details.Valid {
		t.Details = json.RawMessage(details.String)
	}
	t.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &t, nil
}

func jsonArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func encodeLabels(labels []string) string {
	if labels == nil {
		labels = []string{}
	}
	data, _ := json.Marshal(labels)
	return string(data)
}

func isConstraintConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
