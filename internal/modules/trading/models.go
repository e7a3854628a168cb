package trading

import (
	"time"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/modules/ai"
	"github.com/tradegate/tradegate/internal/modules/guides"
	"github.com/tradegate/tradegate/internal/modules/risk"
	"github.com/tradegate/tradegate/internal/modules/sentiment"
	"github.com/tradegate/tradegate/internal/modules/validation"
)

// RunRequest asks for one decision run on a symbol
type RunRequest struct {
	Symbol        string `json:"symbol"`
	Strategy      string `json:"strategy,omitempty"`
	ExecuteTrades bool   `json:"execute_trades"`
	ExtendedHours bool   `json:"extended_hours"`
}

// TradingDecision is the write-once outcome of one pipeline run. Every
// run produces exactly one, whatever the stages concluded; stage fields
// are nil when the run short-circuited before reaching them.
type TradingDecision struct {
	RunID           string                `json:"run_id"`
	Symbol          string                `json:"symbol"`
	Timestamp       time.Time             `json:"timestamp"`
	Price           float64               `json:"price"`
	Volume24h       float64               `json:"volume_24h"`
	Indicators      domain.Indicators     `json:"indicators"`
	Validation      *validation.Result    `json:"validation,omitempty"`
	Sentiment       *sentiment.Assessment `json:"sentiment,omitempty"`
	GuideEval       *guides.Evaluation    `json:"guide_evaluation,omitempty"`
	AIDecision      *ai.AIDecision        `json:"ai_decision,omitempty"`
	AIReason        string                `json:"ai_reason,omitempty"`
	RiskApproved    bool                  `json:"risk_approved"`
	RiskReason      string                `json:"risk_reason,omitempty"`
	Position        *risk.PositionSize    `json:"position,omitempty"`
	FinalDecision   string                `json:"final_decision"`
	ExecutionReason string                `json:"execution_reason,omitempty"`
	Order           *domain.ExecutedOrder `json:"order,omitempty"`
}
