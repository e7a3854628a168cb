package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/events"
	"github.com/tradegate/tradegate/internal/modules/trading"
)

// DecisionRunner runs the decision pipeline for one symbol. Satisfied by
// *trading.Orchestrator.
type DecisionRunner interface {
	Run(ctx context.Context, req trading.RunRequest) (*trading.TradingDecision, error)
}

// SymbolSource supplies the symbols to evaluate each cycle. Satisfied by
// *symbols.Service.
type SymbolSource interface {
	CycleSymbols(ctx context.Context) []string
}

// TradingCycleJob runs the decision pipeline for every enabled symbol, a
// bounded number at a time. Per-symbol failures are logged and counted;
// they never abort the rest of the cycle.
type TradingCycleJob struct {
	log           zerolog.Logger
	runner        DecisionRunner
	symbols       SymbolSource
	eventManager  *events.Manager
	executeTrades bool
	workers       int
	runTimeout    time.Duration
	running       atomic.Bool
}

// TradingCycleConfig holds configuration for the trading cycle job
type TradingCycleConfig struct {
	Runner        DecisionRunner
	Symbols       SymbolSource
	EventManager  *events.Manager
	ExecuteTrades bool
	Workers       int
	RunTimeout    time.Duration
	Log           zerolog.Logger
}

// NewTradingCycleJob creates a trading cycle job
func NewTradingCycleJob(cfg TradingCycleConfig) *TradingCycleJob {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}

	return &TradingCycleJob{
		log:           cfg.Log.With().Str("job", "trading_cycle").Logger(),
		runner:        cfg.Runner,
		symbols:       cfg.Symbols,
		eventManager:  cfg.EventManager,
		executeTrades: cfg.ExecuteTrades,
		workers:       cfg.Workers,
		runTimeout:    cfg.RunTimeout,
	}
}

// Name returns the job name
func (j *TradingCycleJob) Name() string {
	return "trading_cycle"
}

// Run evaluates every enabled symbol once
func (j *TradingCycleJob) Run() error {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn().Msg("Trading cycle already running, skipping")
		return nil
	}
	defer j.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), j.runTimeout)
	defer cancel()

	cycleSymbols := j.symbols.CycleSymbols(ctx)
	if len(cycleSymbols) == 0 {
		j.log.Debug().Msg("No symbols enabled, skipping cycle")
		return nil
	}

	start := time.Now()
	var failures atomic.Int64

	sem := make(chan struct{}, j.workers)
	var wg sync.WaitGroup
	for _, symbol := range cycleSymbols {
		wg.Add(1)
		sem <- struct{}{}
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := j.runner.Run(ctx, trading.RunRequest{
				Symbol:        symbol,
				ExecuteTrades: j.executeTrades,
			}); err != nil {
				failures.Add(1)
				j.log.Error().Err(err).Str("symbol", symbol).Msg("Decision run failed")
			}
		}(symbol)
	}
	wg.Wait()

	duration := time.Since(start)
	if j.eventManager != nil {
		j.eventManager.Emit(events.CycleCompleted, "scheduler", map[string]interface{}{
			"symbols":     len(cycleSymbols),
			"failures":    failures.Load(),
			"duration_ms": duration.Milliseconds(),
		})
	}

	j.log.Info().
		Int("symbols", len(cycleSymbols)).
		Int64("failures", failures.Load()).
		Dur("duration", duration).
		Msg("Trading cycle completed")

	return nil
}
