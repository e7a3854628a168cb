package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tradegate/tradegate/internal/domain"
)

// Trade decisions the classifier is allowed to return
const (
	DecisionLong    = "LONG"
	DecisionShort   = "SHORT"
	DecisionNoTrade = "NO_TRADE"
)

// AIDecision is the parsed classifier verdict. Replies that do not
// satisfy the schema are rejected outright, never coerced into a
// tradeable decision.
type AIDecision struct {
	Decision      string   `json:"decision"`
	Confidence    float64  `json:"confidence"`
	MatchedRules  []string `json:"matched_rules"`
	ViolatedRules []string `json:"violated_rules"`
	RiskFlags     []string `json:"risk_flags"`
	Explanation   string   `json:"explanation"`
}

// ParseDecision strictly parses a classifier reply. The reply must be a
// JSON object with decision ∈ {LONG, SHORT, NO_TRADE}, confidence in
// [0,1], string arrays for the rule fields, and a non-empty explanation.
func ParseDecision(raw string) (*AIDecision, error) {
	var decision AIDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, domain.NewValidationError(typeErr.Field, fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
		}
		return nil, domain.NewValidationError("response", fmt.Sprintf("classifier reply is not valid JSON: %v", err))
	}

	switch decision.Decision {
	case DecisionLong, DecisionShort, DecisionNoTrade:
	default:
		return nil, domain.NewValidationError("decision", fmt.Sprintf("unknown decision %q", decision.Decision))
	}

	if decision.Confidence < 0 || decision.Confidence > 1 {
		return nil, domain.NewValidationError("confidence", fmt.Sprintf("confidence %v outside [0,1]", decision.Confidence))
	}

	if strings.TrimSpace(decision.Explanation) == "" {
		return nil, domain.NewValidationError("explanation", "explanation must not be empty")
	}

	return &decision, nil
}
