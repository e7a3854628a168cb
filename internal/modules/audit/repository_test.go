package audit

import (
	"context"
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/tradegate/tradegate/internal/domain"
)

func newTestRepository(t *testing.T) (*Repository, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE decisions (
			id INTEGER PRIMARY KEY,
			run_id TEXT UNIQUE NOT NULL,
			symbol TEXT NOT NULL,
			final_decision TEXT NOT NULL,
			execution_reason TEXT,
			confidence REAL,
			details_json TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE ai_outputs (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			decision TEXT NOT NULL,
			confidence REAL NOT NULL,
			matched_rules_json TEXT,
			violated_rules_json TEXT,
			risk_flags_json TEXT,
			explanation TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE rule_checks (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			check_type TEXT NOT NULL,
			passed INTEGER NOT NULL,
			violations_json TEXT,
			warnings_json TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE risk_overrides (
			id INTEGER PRIMARY KEY,
			run_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			approved INTEGER NOT NULL,
			reason TEXT,
			shares INTEGER,
			notional REAL,
			risk_per_trade REAL,
			stop_loss_price REAL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE orders (
			id INTEGER PRIMARY KEY,
			run_id TEXT,
			order_id TEXT NOT NULL,
			client_order_id TEXT,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			qty INTEGER NOT NULL,
			filled_qty INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			filled_avg_price REAL,
			slippage_bps REAL,
			raw_json TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE trade_outcomes (
			id INTEGER PRIMARY KEY,
			order_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			outcome TEXT NOT NULL,
			pnl REAL,
			details_json TEXT,
			created_at INTEGER NOT NULL
		);
		CREATE TRIGGER decisions_no_update BEFORE UPDATE ON decisions
		BEGIN SELECT RAISE(ABORT, 'audit records are append-only'); END;
		CREATE TRIGGER orders_no_delete BEFORE DELETE ON orders
		BEGIN SELECT RAISE(ABORT, 'audit records are append-only'); END;
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return NewRepository(db, zerolog.New(nil).Level(zerolog.Disabled)), db
}

func recordTestOrder(t *testing.T, repo *Repository, orderID, symbol string, side domain.OrderSide, qty, filled int, status domain.OrderStatus) {
	t.Helper()
	err := repo.RecordOrder(context.Background(), "run-1", &domain.ExecutedOrder{
		OrderID:   orderID,
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		FilledQty: filled,
		Status:    status,
	})
	require.NoError(t, err)
}

func recordTestOutcome(t *testing.T, repo *Repository, orderID, symbol, outcome string, pnl *float64) {
	t.Helper()
	err := repo.RecordTradeOutcome(context.Background(), &TradeOutcome{
		OrderID: orderID,
		Symbol:  symbol,
		Outcome: outcome,
		PnL:     pnl,
	})
	require.NoError(t, err)
}

func TestRecordDecision_RoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	conf := 0.82
	err := repo.RecordDecision(ctx, &Decision{
		RunID:           "run-1",
		Symbol:          "AAPL",
		FinalDecision:   "LONG",
		ExecutionReason: "submitted",
		Confidence:      &conf,
		Details:         Details(map[string]string{"strategy": "momentum"}),
	})
	require.NoError(t, err)

	decisions, err := repo.RecentDecisions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	assert.Equal(t, "run-1", decisions[0].RunID)
	assert.Equal(t, "LONG", decisions[0].FinalDecision)
	assert.Equal(t, "submitted", decisions[0].ExecutionReason)
	require.NotNil(t, decisions[0].Confidence)
	assert.Equal(t, 0.82, *decisions[0].Confidence)
	assert.Contains(t, string(decisions[0].Details), "momentum")
}

func TestRecordDecision_SecondWriteForRunFails(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordDecision(ctx, &Decision{
		RunID: "run-1", Symbol: "AAPL", FinalDecision: "LONG",
	}))

	err := repo.RecordDecision(ctx, &Decision{
		RunID: "run-1", Symbol: "AAPL", FinalDecision: "NO_TRADE",
	})
	require.Error(t, err)
	assert.True(t, domain.IsInvariantViolation(err))
	assert.Contains(t, err.Error(), "run-1")
}

func TestAppendOnly_GuardTriggersRejectMutation(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordDecision(ctx, &Decision{
		RunID: "run-1", Symbol: "AAPL", FinalDecision: "LONG",
	}))
	recordTestOrder(t, repo, "ord-1", "AAPL", domain.OrderSideBuy, 5, 5, domain.OrderStatusFilled)

	_, err := db.Exec(`UPDATE decisions SET final_decision = 'SHORT'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = db.Exec(`DELETE FROM orders`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestDecisionsBySymbol(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordDecision(ctx, &Decision{RunID: "run-1", Symbol: "AAPL", FinalDecision: "LONG"}))
	require.NoError(t, repo.RecordDecision(ctx, &Decision{RunID: "run-2", Symbol: "MSFT", FinalDecision: "NO_TRADE"}))
	require.NoError(t, repo.RecordDecision(ctx, &Decision{RunID: "run-3", Symbol: "AAPL", FinalDecision: "NO_TRADE"}))

	decisions, err := repo.DecisionsBySymbol(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	// newest first
	assert.Equal(t, "run-3", decisions[0].RunID)
	assert.Equal(t, "run-1", decisions[1].RunID)
}

func TestOpenOrders_LatestStatusWins(t *testing.T) {
	repo, _ := newTestRepository(t)

	recordTestOrder(t, repo, "ord-a", "AAPL", domain.OrderSideBuy, 5, 0, domain.OrderStatusPending)
	recordTestOrder(t, repo, "ord-a", "AAPL", domain.OrderSideBuy, 5, 5, domain.OrderStatusFilled)
	recordTestOrder(t, repo, "ord-b", "MSFT", domain.OrderSideBuy, 3, 0, domain.OrderStatusAccepted)
	recordTestOrder(t, repo, "ord-c", "AAPL", domain.OrderSideSell, 2, 0, domain.OrderStatusPending)
	recordTestOrder(t, repo, "ord-c", "AAPL", domain.OrderSideSell, 2, 0, domain.OrderStatusCancelled)

	open, err := repo.OpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "ord-b", open[0].OrderID)
	assert.Equal(t, "ACCEPTED", open[0].Status)
}

func TestUnsettledOrders_ExcludesClosed(t *testing.T) {
	repo, _ := newTestRepository(t)

	recordTestOrder(t, repo, "ord-a", "AAPL", domain.OrderSideBuy, 5, 5, domain.OrderStatusFilled)
	recordTestOutcome(t, repo, "ord-a", "AAPL", OutcomeFilled, nil)

	pnl := 12.5
	recordTestOrder(t, repo, "ord-b", "AAPL", domain.OrderSideSell, 2, 2, domain.OrderStatusFilled)
	recordTestOutcome(t, repo, "ord-b", "AAPL", OutcomeFilled, nil)
	recordTestOutcome(t, repo, "ord-b", "AAPL", OutcomeClosed, &pnl)

	recordTestOrder(t, repo, "ord-c", "MSFT", domain.OrderSideBuy, 9, 9, domain.OrderStatusFilled)

	unsettled, err := repo.UnsettledOrders(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, "ord-a", unsettled[0].OrderID)
	assert.Equal(t, 5, unsettled[0].FilledQty)
}

func TestOrdersBySymbol_JoinsLatestOutcome(t *testing.T) {
	repo, _ := newTestRepository(t)

	pnl := 12.5
	recordTestOrder(t, repo, "ord-a", "AAPL", domain.OrderSideBuy, 5, 5, domain.OrderStatusFilled)
	recordTestOutcome(t, repo, "ord-a", "AAPL", OutcomeFilled, nil)
	recordTestOutcome(t, repo, "ord-a", "AAPL", OutcomeClosed, &pnl)
	recordTestOrder(t, repo, "ord-b", "AAPL", domain.OrderSideBuy, 3, 0, domain.OrderStatusPending)

	orders, err := repo.OrdersBySymbol(context.Background(), "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	// newest first: ord-b has no outcome yet
	assert.Equal(t, "ord-b", orders[0].OrderID)
	assert.Nil(t, orders[0].LatestOutcome)

	require.NotNil(t, orders[1].LatestOutcome)
	assert.Equal(t, OutcomeClosed, orders[1].LatestOutcome.Outcome)
	require.NotNil(t, orders[1].LatestOutcome.PnL)
	assert.Equal(t, 12.5, *orders[1].LatestOutcome.PnL)
}

func TestLatestOrder(t *testing.T) {
	repo, _ := newTestRepository(t)

	recordTestOrder(t, repo, "ord-a", "AAPL", domain.OrderSideBuy, 5, 0, domain.OrderStatusPending)
	recordTestOrder(t, repo, "ord-a", "AAPL", domain.OrderSideBuy, 5, 2, domain.OrderStatusPartialFill)

	latest, err := repo.LatestOrder(context.Background(), "ord-a")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "PARTIAL_FILL", latest.Status)
	assert.Equal(t, 2, latest.FilledQty)

	missing, err := repo.LatestOrder(context.Background(), "ord-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStageRecords_Insert(t *testing.T) {
	repo, db := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordAIOutput(ctx, &AIOutput{
		RunID:        "run-1",
		Symbol:       "AAPL",
		Decision:     "LONG",
		Confidence:   0.82,
		MatchedRules: []string{"trend_up"},
		Explanation:  "clean breakout",
	}))
	require.NoError(t, repo.RecordRuleCheck(ctx, &RuleCheck{
		RunID:     "run-1",
		Symbol:    "AAPL",
		CheckType: "validation",
		Passed:    true,
		Warnings:  []string{"wide_spread"},
	}))
	shares := 5
	require.NoError(t, repo.RecordRiskOverride(ctx, &RiskOverride{
		RunID:    "run-1",
		Symbol:   "AAPL",
		Approved: true,
		Reason:   "within limits",
		Shares:   &shares,
	}))

	var aiCount, checkCount, riskCount int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ai_outputs`).Scan(&aiCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM rule_checks`).Scan(&checkCount))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM risk_overrides`).Scan(&riskCount))
	assert.Equal(t, 1, aiCount)
	assert.Equal(t, 1, checkCount)
	assert.Equal(t, 1, riskCount)

	var matched string
	require.NoError(t, db.QueryRow(`SELECT matched_rules_json FROM ai_outputs`).Scan(&matched))
	assert.Equal(t, `["trend_up"]`, matched)
}

func TestOutcomesForOrder_OldestFirst(t *testing.T) {
	repo, _ := newTestRepository(t)

	pnl := -3.0
	recordTestOrder(t, repo, "ord-a", "AAPL", domain.OrderSideBuy, 5, 5, domain.OrderStatusFilled)
	recordTestOutcome(t, repo, "ord-a", "AAPL", OutcomeFilled, nil)
	recordTestOutcome(t, repo, "ord-a", "AAPL", OutcomeClosed, &pnl)

	outcomes, err := repo.OutcomesForOrder(context.Background(), "ord-a")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, OutcomeFilled, outcomes[0].Outcome)
	assert.Equal(t, OutcomeClosed, outcomes[1].Outcome)
}
