package validation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func frozenGate(t *testing.T, hour, minute int) *Gate {
	t.Helper()
	fixed := time.Date(2025, 6, 2, hour, minute, 0, 0, time.UTC)
	return NewGate(Config{
		Location: time.UTC,
		Now:      func() time.Time { return fixed },
	}, zerolog.Nop())
}

func tradableInput() Input {
	return Input{
		Symbol:       "AAPL",
		Price:        150.0,
		Volume24h:    5_000_000,
		BarCount:     100,
		Regime:       "normal",
		EnforceHours: true,
	}
}

func TestValidatePasses(t *testing.T) {
	gate := frozenGate(t, 14, 30)

	result := gate.Validate(tradableInput())

	assert.True(t, result.Passed)
	assert.Empty(t, result.HardViolations)
	assert.Empty(t, result.SoftWarnings)
}

func TestValidateHardViolations(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Input)
		expected string
	}{
		{
			name:     "empty symbol",
			mutate:   func(i *Input) { i.Symbol = "" },
			expected: ViolationInsufficientLiquidity,
		},
		{
			name:     "volume below threshold",
			mutate:   func(i *Input) { i.Volume24h = 500_000 },
			expected: ViolationInsufficientLiquidity,
		},
		{
			name:     "negative volume",
			mutate:   func(i *Input) { i.Volume24h = -1 },
			expected: ViolationInsufficientLiquidity,
		},
		{
			name:     "halted",
			mutate:   func(i *Input) { i.Halted = true },
			expected: ViolationTradingHalted,
		},
		{
			name:     "earnings blackout",
			mutate:   func(i *Input) { i.EarningsToday = true },
			expected: ViolationBlackoutWindow,
		},
		{
			name:     "fda blackout",
			mutate:   func(i *Input) { i.FDAToday = true },
			expected: ViolationBlackoutWindow,
		},
		{
			name:     "too few bars",
			mutate:   func(i *Input) { i.BarCount = 10 },
			expected: ViolationInsufficientBars,
		},
		{
			name:     "zero price",
			mutate:   func(i *Input) { i.Price = 0 },
			expected: ViolationInvalidPrice,
		},
		{
			name:     "negative price",
			mutate:   func(i *Input) { i.Price = -1 },
			expected: ViolationInvalidPrice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := frozenGate(t, 14, 30)
			input := tradableInput()
			tt.mutate(&input)

			result := gate.Validate(input)

			assert.False(t, result.Passed)
			assert.Contains(t, result.HardViolations, tt.expected)
		})
	}
}

func TestValidateMarketHours(t *testing.T) {
	t.Run("outside regular session", func(t *testing.T) {
		gate := frozenGate(t, 22, 0)
		result := gate.Validate(tradableInput())

		assert.False(t, result.Passed)
		assert.Contains(t, result.HardViolations, ViolationMarketClosed)
	})

	t.Run("before open", func(t *testing.T) {
		gate := frozenGate(t, 9, 29)
		result := gate.Validate(tradableInput())

		assert.Contains(t, result.HardViolations, ViolationMarketClosed)
	})

	t.Run("extended hours window accepts early trading", func(t *testing.T) {
		gate := frozenGate(t, 5, 0)
		input := tradableInput()
		input.ExtendedHours = true

		result := gate.Validate(input)

		assert.True(t, result.Passed)
	})

	t.Run("extended hours still closed overnight", func(t *testing.T) {
		gate := frozenGate(t, 3, 0)
		input := tradableInput()
		input.ExtendedHours = true

		result := gate.Validate(input)

		assert.Contains(t, result.HardViolations, ViolationMarketClosed)
	})

	t.Run("enforcement disabled ignores the clock", func(t *testing.T) {
		gate := frozenGate(t, 22, 0)
		input := tradableInput()
		input.EnforceHours = false

		result := gate.Validate(input)

		assert.True(t, result.Passed)
	})
}

func TestValidateRegimeWarningIsSoft(t *testing.T) {
	gate := frozenGate(t, 14, 30)
	input := tradableInput()
	input.Regime = "crash"

	result := gate.Validate(input)

	assert.True(t, result.Passed)
	assert.Equal(t, []string{WarningRegime}, result.SoftWarnings)
}

func TestValidateAccumulatesViolationsInOrder(t *testing.T) {
	gate := frozenGate(t, 22, 0)
	input := Input{
		Symbol:       "",
		Price:        -5,
		Volume24h:    0,
		BarCount:     3,
		Halted:       true,
		FDAToday:     true,
		EnforceHours: true,
	}

	result := gate.Validate(input)

	assert.False(t, result.Passed)
	assert.Equal(t, []string{
		ViolationInsufficientLiquidity,
		ViolationTradingHalted,
		ViolationBlackoutWindow,
		ViolationMarketClosed,
		ViolationInsufficientBars,
		ViolationInvalidPrice,
	}, result.HardViolations)
}

func TestValidateDeterministicUnderFrozenClock(t *testing.T) {
	gate := frozenGate(t, 14, 30)
	input := tradableInput()

	first := gate.Validate(input)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, gate.Validate(input))
	}
}
