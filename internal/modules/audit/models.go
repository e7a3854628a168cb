// Package audit persists the decision trail in the ledger database.
// Every table is append-only: records are inserted, mirrored to the
// log, and never touched again. The repository exposes no update or
// delete methods, and guard triggers in the schema reject mutations
// arriving through any other path.
package audit

import (
	"encoding/json"
	"time"
)

// Trade outcome vocabulary. Terminal broker states record the matching
// outcome; "closed" marks a settled position and is what the position
// calculation keys on.
const (
	OutcomeFilled            = "filled"
	OutcomeCancelled         = "cancelled"
	OutcomeExpired           = "expired"
	OutcomeRejected          = "rejected"
	OutcomeClosed            = "closed"
	OutcomeCancelledSlippage = "cancelled_slippage"
)

// Decision is one pipeline run's final verdict
type Decision struct {
	ID              int64           `json:"id"`
	RunID           string          `json:"run_id"`
	Symbol          string          `json:"symbol"`
	FinalDecision   string          `json:"final_decision"`
	ExecutionReason string          `json:"execution_reason,omitempty"`
	Confidence      *float64        `json:"confidence,omitempty"`
	Details         json.RawMessage `json:"details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AIOutput is the classifier's parsed reply for one run
type AIOutput struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	Symbol        string    `json:"symbol"`
	Decision      string    `json:"decision"`
	Confidence    float64   `json:"confidence"`
	MatchedRules  []string  `json:"matched_rules,omitempty"`
	ViolatedRules []string  `json:"violated_rules,omitempty"`
	RiskFlags     []string  `json:"risk_flags,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// RuleCheck is one gate stage's verdict for one run
type RuleCheck struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Symbol     string    `json:"symbol"`
	CheckType  string    `json:"check_type"`
	Passed     bool      `json:"passed"`
	Violations []string  `json:"violations,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RiskOverride is the risk governor's sizing verdict for one run
type RiskOverride struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	Symbol        string    `json:"symbol"`
	Approved      bool      `json:"approved"`
	Reason        string    `json:"reason,omitempty"`
	Shares        *int      `json:"shares,omitempty"`
	Notional      *float64  `json:"notional,omitempty"`
	RiskPerTrade  *float64  `json:"risk_per_trade,omitempty"`
	StopLossPrice *float64  `json:"stop_loss_price,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// OrderRecord is one broker order state as audited. A status change adds
// a new record for the same order_id; queries read the newest one.
type OrderRecord struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id,omitempty"`
	OrderID        string    `json:"order_id"`
	ClientOrderID  string    `json:"client_order_id,omitempty"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Qty            int       `json:"qty"`
	FilledQty      int       `json:"filled_qty"`
	Status         string    `json:"status"`
	FilledAvgPrice *float64  `json:"filled_avg_price,omitempty"`
	SlippageBps    *float64  `json:"slippage_bps,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	LatestOutcome *TradeOutcome `json:"latest_outcome,omitempty"`
}

// TradeOutcome is a lifecycle event for an audited order
type TradeOutcome struct {
	ID        int64           `json:"id"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Outcome   string          `json:"outcome"`
	PnL       *float64        `json:"pnl,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Details marshals v for a details column. A value that cannot be
// marshaled becomes null rather than blocking the audit write.
func Details(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
