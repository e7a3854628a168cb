// Package sentiment maps news search signals onto a pass/fail risk level
// and a score. The stage is a pure function of its inputs; it never
// calls out.
package sentiment

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
)

// Risk levels, ordered by severity
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Assessment is the stage's verdict for one run
type Assessment struct {
	Passed    bool     `json:"passed"`
	RiskLevel string   `json:"risk_level"`
	Score     float64  `json:"score"`
	Reasons   []string `json:"reasons"`
}

// Config holds the stage thresholds
type Config struct {
	MaxNegativeSignals int
	ExcessiveMentions  int
}

// DefaultConfig blocks at two negative categories and flags anything
// over fifty total mentions as unusually noisy
func DefaultConfig() Config {
	return Config{
		MaxNegativeSignals: 2,
		ExcessiveMentions:  50,
	}
}

// Stage scores news signals
type Stage struct {
	cfg Config
	log zerolog.Logger
}

// NewStage creates a sentiment stage
func NewStage(cfg Config, log zerolog.Logger) *Stage {
	defaults := DefaultConfig()
	if cfg.MaxNegativeSignals == 0 {
		cfg.MaxNegativeSignals = defaults.MaxNegativeSignals
	}
	if cfg.ExcessiveMentions == 0 {
		cfg.ExcessiveMentions = defaults.ExcessiveMentions
	}

	return &Stage{
		cfg: cfg,
		log: log.With().Str("service", "sentiment").Logger(),
	}
}

// Assess maps the signals to a risk level and score. Too many negative
// categories is the only failing condition; everything else downgrades
// to medium at worst.
func (s *Stage) Assess(signals domain.SearchSignals) Assessment {
	var reasons []string

	assessment := Assessment{
		Passed:    true,
		RiskLevel: RiskLow,
	}

	negatives := signals.NegativeCount()
	for _, category := range signals.Negative {
		reasons = append(reasons, fmt.Sprintf("negative_news: %s", category))
	}

	switch {
	case negatives >= s.cfg.MaxNegativeSignals:
		assessment.Passed = false
		assessment.RiskLevel = RiskHigh

	case negatives == 1:
		assessment.RiskLevel = RiskMedium

	case signals.EarningsMention && signals.UnusualVolume:
		assessment.RiskLevel = RiskMedium
		reasons = append(reasons, "high_volume_earnings")

	case signals.TotalResults > s.cfg.ExcessiveMentions:
		assessment.RiskLevel = RiskMedium
		reasons = append(reasons, "excessive_mentions")
	}

	assessment.Score = s.score(signals)
	assessment.Reasons = reasons

	s.log.Debug().
		Str("query", signals.Query).
		Bool("passed", assessment.Passed).
		Str("risk_level", assessment.RiskLevel).
		Float64("score", assessment.Score).
		Msg("Sentiment assessed")

	return assessment
}

// score starts neutral at 0.5 and walks down for negative and neutral
// mentions, up for positive ones, with a penalty for unusually heavy
// news volume. Clamped to [0, 1].
func (s *Stage) score(signals domain.SearchSignals) float64 {
	score := 0.5

	score -= 0.15 * float64(len(signals.Negative))
	score -= 0.05 * float64(len(signals.Neutral))
	score += 0.10 * float64(len(signals.Positive))

	switch {
	case signals.TotalResults > 50:
		score -= 0.2
	case signals.TotalResults > 30:
		score -= 0.1
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
