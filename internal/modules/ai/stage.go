package ai

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/modules/guides"
)

// Config holds AI stage tuning
type Config struct {
	MinConfidence float64
}

// DefaultConfig returns the default stage configuration
func DefaultConfig() Config {
	return Config{MinConfidence: 0.7}
}

// EvaluationInput carries everything the classifier needs to judge a
// symbol, plus the upstream gate outcomes that decide whether its
// verdict may stand.
type EvaluationInput struct {
	Symbol           string
	Price            float64
	Volume24h        float64
	Indicators       domain.Indicators
	Signals          domain.SearchSignals
	GuideName        string
	GuideAllowed     bool
	GuideEval        *guides.Evaluation
	ValidationPassed bool
}

// StageResult is the gated classifier verdict. Decision is the final,
// post-gate decision; RawDecision preserves what the classifier said
// before any downgrade.
type StageResult struct {
	Decision       *AIDecision
	RawDecision    string
	Reason         string
	WeakConditions []string
}

// Stage runs the AI classification step of a trading cycle.
//
// Responsibilities:
//   - Skip the classifier entirely when validation already failed
//   - Build the structured payload and call the classifier
//   - Strictly parse the reply and downgrade weak or guide-blocked verdicts
type Stage struct {
	log        zerolog.Logger
	classifier domain.Classifier
	cfg        Config
}

// NewStage creates a new AI evaluation stage
func NewStage(classifier domain.Classifier, cfg Config, log zerolog.Logger) *Stage {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultConfig().MinConfidence
	}
	return &Stage{
		log:        log.With().Str("service", "ai").Logger(),
		classifier: classifier,
		cfg:        cfg,
	}
}

// Evaluate runs the classifier and gates its verdict. Classifier
// transport errors and malformed replies propagate as errors; a weak or
// guide-blocked verdict is downgraded to NO_TRADE with the classifier
// metadata preserved.
func (s *Stage) Evaluate(ctx context.Context, input EvaluationInput) (*StageResult, error) {
	if !input.ValidationPassed {
		return &StageResult{
			Decision: &AIDecision{
				Decision:    DecisionNoTrade,
				Confidence:  0,
				Explanation: "Tradability validation failed, classifier not consulted",
			},
			RawDecision: DecisionNoTrade,
			Reason:      "validation_failed",
		}, nil
	}

	reply, err := s.classifier.Classify(ctx, s.buildPayload(input))
	if err != nil {
		return nil, err
	}

	decision, err := ParseDecision(reply)
	if err != nil {
		return nil, err
	}

	result := &StageResult{
		Decision:       decision,
		RawDecision:    decision.Decision,
		WeakConditions: s.weakConditions(input, decision),
	}

	switch {
	case decision.Decision == DecisionNoTrade:
		result.Reason = "ai_declined"
	case !input.GuideAllowed:
		result.Reason = "guide_rejection"
		result.Decision = downgrade(decision)
	case decision.Confidence < s.cfg.MinConfidence:
		result.Reason = "low_confidence"
		result.Decision = downgrade(decision)
	default:
		result.Reason = "ai_approved"
	}

	s.log.Info().
		Str("symbol", input.Symbol).
		Str("raw_decision", result.RawDecision).
		Str("final_decision", result.Decision.Decision).
		Float64("confidence", decision.Confidence).
		Str("reason", result.Reason).
		Strs("weak_conditions", result.WeakConditions).
		Msg("AI evaluation complete")

	return result, nil
}

// downgrade returns a NO_TRADE copy that keeps the classifier metadata
func downgrade(decision *AIDecision) *AIDecision {
	copied := *decision
	copied.Decision = DecisionNoTrade
	return &copied
}

func (s *Stage) weakConditions(input EvaluationInput, decision *AIDecision) []string {
	var weak []string
	if decision.Confidence < s.cfg.MinConfidence {
		weak = append(weak, "low_confidence")
	}
	if input.GuideEval != nil && len(input.GuideEval.UnmetHardRules) > 0 {
		weak = append(weak, "unmet_guide_rules")
	}
	weak = append(weak, decision.RiskFlags...)
	return weak
}

func (s *Stage) buildPayload(input EvaluationInput) map[string]interface{} {
	payload := map[string]interface{}{
		"symbol":     input.Symbol,
		"price":      input.Price,
		"volume_24h": input.Volume24h,
		"indicators": indicatorsPayload(input.Indicators),
		"news": map[string]interface{}{
			"total_results":    input.Signals.TotalResults,
			"categories":       input.Signals.Categories,
			"negative":         input.Signals.Negative,
			"neutral":          input.Signals.Neutral,
			"positive":         input.Signals.Positive,
			"earnings_mention": input.Signals.EarningsMention,
			"fda_mention":      input.Signals.FDAMention,
			"unusual_volume":   input.Signals.UnusualVolume,
		},
	}

	if input.GuideName != "" {
		guide := map[string]interface{}{
			"name":    input.GuideName,
			"allowed": input.GuideAllowed,
		}
		if input.GuideEval != nil {
			guide["version"] = input.GuideEval.GuideVersion
			guide["unmet_hard_rules"] = input.GuideEval.UnmetHardRules
			guide["matched_soft_rules"] = input.GuideEval.MatchedSoftRules
		}
		payload["guide"] = guide
	}

	return payload
}

func indicatorsPayload(ind domain.Indicators) map[string]interface{} {
	out := make(map[string]interface{})
	add := func(key string, value *float64) {
		if value != nil {
			out[key] = *value
		}
	}
	add("vwap", ind.VWAP)
	add("atr_14", ind.ATR)
	add("rsi_14", ind.RSI)
	add("ema_21", ind.EMA21)
	add("ema_50", ind.EMA50)
	add("sma_20", ind.SMA20)
	add("relative_volume", ind.RelativeVolume)
	add("percent_change", ind.PercentChange)
	return out
}
