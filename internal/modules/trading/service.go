// Package trading composes the per-symbol decision pipeline. One Run is
// one audited pass: position check, market snapshot, news signals, the
// gate stages, risk sizing, and at most one order submission at the very
// end. Stage order is fixed; each stage consumes the previous one's
// output and every transition lands in the audit trail.
package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
	"github.com/tradegate/tradegate/internal/events"
	"github.com/tradegate/tradegate/internal/modules/ai"
	"github.com/tradegate/tradegate/internal/modules/audit"
	"github.com/tradegate/tradegate/internal/modules/execution"
	"github.com/tradegate/tradegate/internal/modules/guides"
	"github.com/tradegate/tradegate/internal/modules/risk"
	"github.com/tradegate/tradegate/internal/modules/sentiment"
	"github.com/tradegate/tradegate/internal/modules/validation"
	"github.com/tradegate/tradegate/pkg/formulas"
)

// Snapshot and search parameters for one run
const (
	snapshotTimeframe = "1Min"
	snapshotLookback  = 8 * time.Hour
	snapshotBarLimit  = 400

	searchFreshness = "pd"
	searchCount     = 15

	regimeNormal = "normal"
)

// Auditor is the append-only sink stage records are written to.
// Satisfied by *audit.Repository. Write failures are logged and never
// fail the run; the position read is the one call that must succeed.
type Auditor interface {
	UnsettledOrders(ctx context.Context, symbol string) ([]audit.OrderRecord, error)
	RecordDecision(ctx context.Context, rec *audit.Decision) error
	RecordAIOutput(ctx context.Context, rec *audit.AIOutput) error
	RecordRuleCheck(ctx context.Context, rec *audit.RuleCheck) error
	RecordRiskOverride(ctx context.Context, rec *audit.RiskOverride) error
}

// Governor approves and sizes trades. Satisfied by *risk.Governor.
type Governor interface {
	Evaluate(symbol, decision string, confidence, price, atr, previousLoss float64) (bool, string, *risk.PositionSize)
	Snapshot() risk.State
}

// Executor submits risk-approved orders. Satisfied by *execution.Service.
type Executor interface {
	ExecuteTrade(ctx context.Context, req domain.OrderRequest, riskApprovedQty int, entryEstimate float64, checksPassed bool) (*execution.Result, error)
}

// GuideEvaluator resolves a strategy name to a guide verdict. Satisfied
// by *guides.Service; a nil evaluation means no guide is registered
// under that name.
type GuideEvaluator interface {
	EvaluateSignals(ctx context.Context, name string, observed []string) (*guides.Evaluation, error)
}

// SymbolRegistry reports operator-set halt flags. Satisfied by
// *symbols.Service.
type SymbolRegistry interface {
	IsHalted(ctx context.Context, symbol string) (bool, error)
}

// RegimeDetector classifies the market regime from the run's bars. A
// nil detector treats every run as a normal regime.
type RegimeDetector interface {
	Detect(bars []domain.Bar) string
}

// Config holds the orchestrator's execution policy. Enabled is the
// global execution switch; a run's ExecuteTrades flag is honored only
// when it is set.
type Config struct {
	Enabled            bool
	EnforceMarketHours bool
}

// Orchestrator runs the decision pipeline for one symbol at a time.
// Instances are safe for concurrent runs on different symbols; the
// governor is the only shared mutable state and serializes itself.
type Orchestrator struct {
	log            zerolog.Logger
	marketData     domain.MarketDataProvider
	search         domain.SearchProvider
	gate           *validation.Gate
	sentimentStage *sentiment.Stage
	guideEvaluator GuideEvaluator
	aiStage        *ai.Stage
	governor       Governor
	executor       Executor
	auditor        Auditor
	registry       SymbolRegistry
	regimes        RegimeDetector
	eventManager   *events.Manager
	cfg            Config
}

// NewOrchestrator creates the pipeline orchestrator
func NewOrchestrator(
	marketData domain.MarketDataProvider,
	search domain.SearchProvider,
	gate *validation.Gate,
	sentimentStage *sentiment.Stage,
	guideEvaluator GuideEvaluator,
	aiStage *ai.Stage,
	governor Governor,
	executor Executor,
	auditor Auditor,
	registry SymbolRegistry,
	regimes RegimeDetector,
	eventManager *events.Manager,
	cfg Config,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		log:            log.With().Str("service", "trading").Logger(),
		marketData:     marketData,
		search:         search,
		gate:           gate,
		sentimentStage: sentimentStage,
		guideEvaluator: guideEvaluator,
		aiStage:        aiStage,
		governor:       governor,
		executor:       executor,
		auditor:        auditor,
		registry:       registry,
		regimes:        regimes,
		eventManager:   eventManager,
		cfg:            cfg,
	}
}

// Run executes one full decision pass for a symbol and returns its
// TradingDecision. Market data and search failures degrade the run to a
// safe NO_TRADE; classifier and broker failures abort it with an error
// so the caller's loop can log and resample. Nothing is submitted to
// the broker until the final step.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*TradingDecision, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, domain.NewValidationError("symbol", "symbol is required")
	}

	decision := &TradingDecision{
		RunID:         uuid.NewString(),
		Symbol:        symbol,
		Timestamp:     time.Now().UTC(),
		FinalDecision: ai.DecisionNoTrade,
	}
	log := o.log.With().Str("run_id", decision.RunID).Str("symbol", symbol).Logger()

	o.emit(events.CycleStarted, map[string]interface{}{
		"run_id":  decision.RunID,
		"symbol":  symbol,
		"execute": req.ExecuteTrades,
	})

	netPosition, err := o.netPosition(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to determine net position for %s: %w", symbol, err)
	}
	if netPosition != 0 {
		log.Info().Int("net_position", netPosition).Msg("Existing position open, skipping run")
		decision.ExecutionReason = "existing_position_open"
		return o.finalize(ctx, decision)
	}

	snapshot, err := o.loadSnapshot(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Msg("Market data unavailable")
		decision.Validation = &validation.Result{HardViolations: []string{"market_data_error"}}
		decision.RiskReason = "market_data_error"
		decision.ExecutionReason = "market_data_error"
		return o.finalize(ctx, decision)
	}
	decision.Price = snapshot.LastClose()
	decision.Volume24h = snapshot.TotalVolume()
	decision.Indicators = snapshot.Indicators

	signals := o.loadSignals(ctx, symbol)

	gateResult := o.gate.Validate(validation.Input{
		Symbol:        symbol,
		Price:         decision.Price,
		Volume24h:     decision.Volume24h,
		BarCount:      len(snapshot.Bars),
		Regime:        o.detectRegime(snapshot.Bars),
		EarningsToday: signals.EarningsMention,
		FDAToday:      signals.FDAMention,
		Halted:        o.isHalted(ctx, symbol),
		ExtendedHours: req.ExtendedHours,
		EnforceHours:  o.cfg.EnforceMarketHours,
	})
	decision.Validation = &gateResult
	o.recordRuleCheck(ctx, decision, "validation", gateResult.Passed, gateResult.HardViolations, gateResult.SoftWarnings)

	assessment := o.sentimentStage.Assess(signals)
	decision.Sentiment = &assessment
	o.recordSentiment(ctx, decision, assessment)

	guideAllowed := true
	var guideEval *guides.Evaluation
	if req.Strategy != "" && o.guideEvaluator != nil {
		guideEval, err = o.guideEvaluator.EvaluateSignals(ctx, req.Strategy, signals.ObservedSignalLabels())
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate guide %q: %w", req.Strategy, err)
		}
		if guideEval == nil {
			log.Warn().Str("strategy", req.Strategy).Msg("No guide registered for strategy, proceeding without one")
		} else {
			guideAllowed = guideEval.Allowed
			decision.GuideEval = guideEval
		}
	}

	aiResult, err := o.aiStage.Evaluate(ctx, ai.EvaluationInput{
		Symbol:           symbol,
		Price:            decision.Price,
		Volume24h:        decision.Volume24h,
		Indicators:       decision.Indicators,
		Signals:          signals,
		GuideName:        req.Strategy,
		GuideAllowed:     guideAllowed,
		GuideEval:        guideEval,
		ValidationPassed: gateResult.Passed,
	})
	if err != nil {
		return nil, err
	}
	decision.AIDecision = aiResult.Decision
	decision.AIReason = aiResult.Reason
	o.recordAIOutput(ctx, decision, aiResult)

	var atr float64
	if decision.Indicators.ATR != nil {
		atr = *decision.Indicators.ATR
	}
	riskOK, riskReason, position := o.governor.Evaluate(
		symbol,
		aiResult.Decision.Decision,
		aiResult.Decision.Confidence,
		decision.Price,
		atr,
		o.governor.Snapshot().DailyLoss,
	)
	decision.RiskApproved = riskOK
	decision.RiskReason = riskReason
	if riskOK {
		decision.Position = position
	}
	o.recordRiskOverride(ctx, decision)

	decision.ExecutionReason = riskReason
	tradeable := aiResult.Decision.Decision == ai.DecisionLong || aiResult.Decision.Decision == ai.DecisionShort

	switch {
	case !gateResult.Passed || !assessment.Passed || !riskOK:
		if !assessment.Passed {
			decision.ExecutionReason = "news_sentiment_rejection: " + strings.Join(assessment.Reasons, ", ")
		}

	case tradeable && req.ExecuteTrades && o.cfg.Enabled && decision.Position != nil:
		if err := o.execute(ctx, decision, aiResult.Decision.Decision); err != nil {
			return nil, err
		}

	case tradeable:
		decision.FinalDecision = aiResult.Decision.Decision
		log.Info().Str("decision", decision.FinalDecision).Msg("Tradeable decision not executed, execution disabled or not requested")
	}

	return o.finalize(ctx, decision)
}

// execute builds the market order for an approved decision and submits
// it through the execution service. Called at most once per run, as the
// run's single side-effecting step.
func (o *Orchestrator) execute(ctx context.Context, decision *TradingDecision, direction string) error {
	side := domain.OrderSideBuy
	if direction == ai.DecisionShort {
		side = domain.OrderSideSell
	}
	stopLoss := decision.Position.StopLossPrice

	result, err := o.executor.ExecuteTrade(ctx, domain.OrderRequest{
		Symbol:        decision.Symbol,
		Qty:           decision.Position.Shares,
		Side:          side,
		Type:          domain.OrderTypeMarket,
		TimeInForce:   domain.TimeInForceDay,
		StopLoss:      &stopLoss,
		ClientOrderID: decision.RunID,
	}, decision.Position.Shares, decision.Price, true)
	if err != nil {
		return fmt.Errorf("failed to execute trade for %s: %w", decision.Symbol, err)
	}

	decision.Order = result.Order
	decision.ExecutionReason = result.Reason
	if result.Approved {
		decision.FinalDecision = direction
		o.emit(events.TradeSubmitted, map[string]interface{}{
			"run_id":   decision.RunID,
			"symbol":   decision.Symbol,
			"side":     string(side),
			"qty":      decision.Position.Shares,
			"order_id": orderID(result.Order),
		})
	} else {
		o.emit(events.TradeRejected, map[string]interface{}{
			"run_id": decision.RunID,
			"symbol": decision.Symbol,
			"reason": result.Reason,
		})
	}
	return nil
}

// finalize records the decision, emits its event and hands it back. The
// one exit path for every completed run.
func (o *Orchestrator) finalize(ctx context.Context, decision *TradingDecision) (*TradingDecision, error) {
	rec := &audit.Decision{
		RunID:           decision.RunID,
		Symbol:          decision.Symbol,
		FinalDecision:   decision.FinalDecision,
		ExecutionReason: decision.ExecutionReason,
		Details:         audit.Details(decision),
	}
	if decision.AIDecision != nil {
		rec.Confidence = &decision.AIDecision.Confidence
	}
	if err := o.auditor.RecordDecision(ctx, rec); err != nil {
		o.log.Error().Err(err).Str("run_id", decision.RunID).Msg("Failed to record decision")
	}

	o.emit(events.DecisionRecorded, map[string]interface{}{
		"run_id":           decision.RunID,
		"symbol":           decision.Symbol,
		"final_decision":   decision.FinalDecision,
		"execution_reason": decision.ExecutionReason,
	})

	o.log.Info().
		Str("run_id", decision.RunID).
		Str("symbol", decision.Symbol).
		Str("final_decision", decision.FinalDecision).
		Str("execution_reason", decision.ExecutionReason).
		Msg("Run complete")
	return decision, nil
}

// netPosition sums signed fills over audited orders that have no closed
// outcome yet. Buys count positive, sells negative.
func (o *Orchestrator) netPosition(ctx context.Context, symbol string) (int, error) {
	open, err := o.auditor.UnsettledOrders(ctx, symbol)
	if err != nil {
		return 0, err
	}

	net := 0
	for _, rec := range open {
		if rec.Side == string(domain.OrderSideSell) {
			net -= rec.FilledQty
		} else {
			net += rec.FilledQty
		}
	}
	return net, nil
}

// loadSnapshot fetches the run's bars and derives the indicators. A
// failed history fetch falls back to a single latest bar; only when
// that fails too does the run lose its market data.
func (o *Orchestrator) loadSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	start := time.Now().UTC().Add(-snapshotLookback)
	bars, err := o.marketData.HistoricalBars(ctx, symbol, snapshotTimeframe, start, nil, snapshotBarLimit)
	if err != nil {
		latest, latestErr := o.marketData.LatestBar(ctx, symbol, snapshotTimeframe)
		if latestErr != nil || latest == nil {
			return nil, fmt.Errorf("no market data for %s: %w", symbol, err)
		}
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("Historical bars unavailable, using latest bar only")
		bars = []domain.Bar{*latest}
	}

	return &domain.MarketSnapshot{
		Symbol:     symbol,
		Timeframe:  snapshotTimeframe,
		Bars:       bars,
		Indicators: computeIndicators(bars),
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// loadSignals runs the news search, degrading to empty signals when the
// provider is down. A run never aborts for missing news.
func (o *Orchestrator) loadSignals(ctx context.Context, symbol string) domain.SearchSignals {
	query := symbol + " stock news"
	signals, err := o.search.Search(ctx, query, searchFreshness, searchCount)
	if err != nil {
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("News search unavailable, continuing without signals")
		return domain.EmptySearchSignals(query)
	}
	return signals
}

func (o *Orchestrator) detectRegime(bars []domain.Bar) string {
	if o.regimes == nil {
		return regimeNormal
	}
	return o.regimes.Detect(bars)
}

// isHalted degrades to not-halted when the registry is unreadable, so a
// registry outage cannot stop the cycle.
func (o *Orchestrator) isHalted(ctx context.Context, symbol string) bool {
	if o.registry == nil {
		return false
	}
	halted, err := o.registry.IsHalted(ctx, symbol)
	if err != nil {
		o.log.Warn().Err(err).Str("symbol", symbol).Msg("Halt flag unavailable, assuming not halted")
		return false
	}
	return halted
}

func (o *Orchestrator) recordRuleCheck(ctx context.Context, decision *TradingDecision, checkType string, passed bool, violations, warnings []string) {
	err := o.auditor.RecordRuleCheck(ctx, &audit.RuleCheck{
		RunID:      decision.RunID,
		Symbol:     decision.Symbol,
		CheckType:  checkType,
		Passed:     passed,
		Violations: violations,
		Warnings:   warnings,
	})
	if err != nil {
		o.log.Error().Err(err).Str("run_id", decision.RunID).Str("check_type", checkType).Msg("Failed to record rule check")
	}
}

// recordSentiment audits the sentiment verdict as a rule check. Reasons
// count as violations on failure, warnings otherwise.
func (o *Orchestrator) recordSentiment(ctx context.Context, decision *TradingDecision, assessment sentiment.Assessment) {
	if assessment.Passed {
		o.recordRuleCheck(ctx, decision, "news_sentiment", true, nil, assessment.Reasons)
		return
	}
	o.recordRuleCheck(ctx, decision, "news_sentiment", false, assessment.Reasons, nil)
}

func (o *Orchestrator) recordAIOutput(ctx context.Context, decision *TradingDecision, result *ai.StageResult) {
	err := o.auditor.RecordAIOutput(ctx, &audit.AIOutput{
		RunID:         decision.RunID,
		Symbol:        decision.Symbol,
		Decision:      result.RawDecision,
		Confidence:    result.Decision.Confidence,
		MatchedRules:  result.Decision.MatchedRules,
		ViolatedRules: result.Decision.ViolatedRules,
		RiskFlags:     result.Decision.RiskFlags,
		Explanation:   result.Decision.Explanation,
	})
	if err != nil {
		o.log.Error().Err(err).Str("run_id", decision.RunID).Msg("Failed to record AI output")
	}
}

func (o *Orchestrator) recordRiskOverride(ctx context.Context, decision *TradingDecision) {
	rec := &audit.RiskOverride{
		RunID:    decision.RunID,
		Symbol:   decision.Symbol,
		Approved: decision.RiskApproved,
		Reason:   decision.RiskReason,
	}
	if decision.Position != nil {
		rec.Shares = &decision.Position.Shares
		rec.Notional = &decision.Position.Notional
		rec.RiskPerTrade = &decision.Position.RiskPerTrade
		rec.StopLossPrice = &decision.Position.StopLossPrice
	}
	if err := o.auditor.RecordRiskOverride(ctx, rec); err != nil {
		o.log.Error().Err(err).Str("run_id", decision.RunID).Msg("Failed to record risk override")
	}
}

func (o *Orchestrator) emit(eventType events.EventType, data map[string]interface{}) {
	if o.eventManager == nil {
		return
	}
	o.eventManager.Emit(eventType, "trading", data)
}

func orderID(order *domain.ExecutedOrder) string {
	if order == nil {
		return ""
	}
	return order.OrderID
}

// computeIndicators derives the indicator set from the run's bars.
// Series too short for an indicator leave that field nil.
func computeIndicators(bars []domain.Bar) domain.Indicators {
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, bar := range bars {
		highs[i] = bar.High
		lows[i] = bar.Low
		closes[i] = bar.Close
		volumes[i] = bar.Volume
	}

	return domain.Indicators{
		VWAP:           formulas.CalculateVWAP(highs, lows, closes, volumes),
		ATR:            formulas.CalculateATR(highs, lows, closes, 14),
		RSI:            formulas.CalculateRSI(closes, 14),
		EMA21:          formulas.CalculateEMA(closes, 21),
		EMA50:          formulas.CalculateEMA(closes, 50),
		SMA20:          formulas.CalculateSMA(closes, 20),
		RelativeVolume: formulas.RelativeVolume(volumes, 20),
		PercentChange:  formulas.PercentChange(closes),
	}
}
