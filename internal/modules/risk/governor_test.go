package risk

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testStart = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

func newTestGovernor(clock *testClock, mutate func(*Config)) *Governor {
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	if mutate != nil {
		mutate(&cfg)
	}
	return NewGovernor(cfg, zerolog.Nop())
}

func TestEvaluateCanonicalSizing(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, func(cfg *Config) {
		cfg.MaxRiskPerTrade = 0.02
		cfg.AccountSize = 100_000
	})

	approved, reason, position := governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 5.0, 0)

	require.True(t, approved, reason)
	require.NotNil(t, position)
	assert.Equal(t, 200, position.Shares)
	assert.InDelta(t, 140.0, position.StopLossPrice, 1e-9)
	assert.InDelta(t, 2000.0, position.RiskPerTrade, 1e-9)
	assert.InDelta(t, 30000.0, position.Notional, 1e-9)
	assert.Equal(t, "Trade approved", reason)
}

func TestEvaluateNoTradeIsApprovedWithoutPosition(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, nil)

	approved, reason, position := governor.Evaluate("AAPL", "NO_TRADE", 0.2, 150.0, 5.0, 0)

	assert.True(t, approved)
	assert.Nil(t, position)
	assert.Equal(t, "Trade rejected by AI/strategy", reason)
}

func TestEvaluateMaxTradesPerDay(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, func(cfg *Config) {
		cfg.MaxTradesPerDay = 5
	})

	for i := 0; i < 5; i++ {
		governor.RecordTrade("AAPL", 10.0)
		clock.Advance(10 * time.Minute)
	}

	approved, reason, position := governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 5.0, 0)

	assert.False(t, approved)
	assert.Contains(t, reason, "trades per day")
	assert.Nil(t, position)
}

func TestEvaluateDailyLossLimits(t *testing.T) {
	t.Run("previous loss exceeds cap", func(t *testing.T) {
		clock := newTestClock(testStart)
		governor := newTestGovernor(clock, nil)

		approved, reason, _ := governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 5.0, 6000.0)

		assert.False(t, approved)
		assert.Equal(t, "Max daily loss exceeded", reason)
	})

	t.Run("accumulated loss exceeds cap", func(t *testing.T) {
		clock := newTestClock(testStart)
		governor := newTestGovernor(clock, nil)

		governor.RecordTrade("AAPL", -6000.0)
		clock.Advance(10 * time.Minute)

		approved, reason, _ := governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 5.0, 0)

		assert.False(t, approved)
		assert.Equal(t, "Max daily loss exceeded", reason)
	})

	t.Run("trade would breach the cap", func(t *testing.T) {
		clock := newTestClock(testStart)
		governor := newTestGovernor(clock, func(cfg *Config) {
			cfg.MaxRiskPerTrade = 0.02
		})

		// A 4000 loss leaves 1000 of headroom; the next trade risks 2000
		governor.RecordTrade("AAPL", -4000.0)
		clock.Advance(10 * time.Minute)

		approved, reason, position := governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 5.0, 0)

		assert.False(t, approved)
		assert.Equal(t, "Trade would breach daily loss limit", reason)
		assert.Nil(t, position)
	})
}

func TestEvaluateCooldown(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, nil)

	governor.RecordTrade("AAPL", 50.0)
	clock.Advance(100 * time.Second)

	approved, reason, _ := governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 5.0, 0)
	assert.False(t, approved)
	assert.Equal(t, "In cooldown period", reason)

	clock.Advance(201 * time.Second)

	approved, reason, _ = governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 5.0, 0)
	assert.True(t, approved, reason)
}

func TestEvaluateInputValidation(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, nil)

	approved, reason, _ := governor.Evaluate("", "LONG", 0.9, 150.0, 5.0, 0)
	assert.False(t, approved)
	assert.Equal(t, "Invalid price or ATR data", reason)

	approved, reason, _ = governor.Evaluate("AAPL", "LONG", 0.9, 0, 5.0, 0)
	assert.False(t, approved)
	assert.Equal(t, "Invalid price or ATR data", reason)

	approved, reason, _ = governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 0, 0)
	assert.False(t, approved)
	assert.Equal(t, "ATR must be positive", reason)

	approved, reason, _ = governor.Evaluate("AAPL", "LONG", 0.9, 150.0, -2.0, 0)
	assert.False(t, approved)
	assert.Equal(t, "ATR must be positive", reason)
}

func TestEvaluateRejectsFloorToOneOverRisk(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, func(cfg *Config) {
		cfg.AccountSize = 1000
		cfg.MaxRiskPerTrade = 0.01
	})

	// Budget is $10 but a 100-point ATR forces a $200 single-share risk
	approved, reason, position := governor.Evaluate("AAPL", "LONG", 0.9, 500.0, 100.0, 0)

	assert.False(t, approved)
	assert.Contains(t, reason, "exceeds maximum")
	assert.Nil(t, position)
}

func TestEvaluateNeverExceedsRiskBudget(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, func(cfg *Config) {
		cfg.MaxRiskPerTrade = 0.015
	})
	budget := 0.015 * 100_000

	prices := []float64{1, 3.7, 25, 150, 999, 12345}
	atrs := []float64{0.01, 0.4, 1, 5.5, 42, 900}

	for _, price := range prices {
		for _, atr := range atrs {
			approved, reason, position := governor.Evaluate("AAPL", "LONG", 0.9, price, atr, 0)
			if !approved {
				continue
			}
			require.NotNil(t, position, reason)
			assert.LessOrEqual(t, position.RiskPerTrade, budget+1e-9,
				fmt.Sprintf("price=%v atr=%v", price, atr))
		}
	}
}

func TestDailyLossRatchet(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, nil)

	governor.RecordTrade("AAPL", -100.0)
	assert.InDelta(t, 100.0, governor.Snapshot().DailyLoss, 1e-9)

	// Wins never reduce the accumulated loss
	governor.RecordTrade("AAPL", 500.0)
	assert.InDelta(t, 100.0, governor.Snapshot().DailyLoss, 1e-9)

	governor.RecordTrade("AAPL", -50.0)
	assert.InDelta(t, 150.0, governor.Snapshot().DailyLoss, 1e-9)
	assert.Equal(t, 3, governor.Snapshot().TradesToday)
}

func TestDailyResetAtBoundary(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, nil)

	governor.RecordTrade("AAPL", -200.0)
	governor.RecordTrade("AAPL", -300.0)
	require.InDelta(t, 500.0, governor.Snapshot().DailyLoss, 1e-9)
	require.Equal(t, 2, governor.Snapshot().TradesToday)

	// Cross the midnight boundary; the first evaluate resets everything
	clock.Advance(24 * time.Hour)

	approved, _, _ := governor.Evaluate("AAPL", "LONG", 0.9, 150.0, 5.0, 0)
	assert.True(t, approved)

	state := governor.Snapshot()
	assert.Equal(t, 0.0, state.DailyLoss)
	// The approving evaluate does not record a trade; settlement does
	assert.Equal(t, 0, state.TradesToday)
}

func TestConcurrentRecordTrade(t *testing.T) {
	clock := newTestClock(testStart)
	governor := newTestGovernor(clock, func(cfg *Config) {
		cfg.MaxTradesPerDay = 1000
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			governor.RecordTrade("AAPL", -1.0)
		}()
	}
	wg.Wait()

	state := governor.Snapshot()
	assert.Equal(t, 100, state.TradesToday)
	assert.InDelta(t, 100.0, state.DailyLoss, 1e-9)
}
