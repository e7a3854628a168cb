package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradegate/tradegate/internal/domain"
)

type fakeProvider struct {
	bars        []domain.Bar
	latest      *domain.Bar
	err         error
	histCalls   int
	latestCalls int
}

func (f *fakeProvider) LatestBar(ctx context.Context, symbol, timeframe string) (*domain.Bar, error) {
	f.latestCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.latest, nil
}

func (f *fakeProvider) HistoricalBars(ctx context.Context, symbol, timeframe string, start time.Time, end *time.Time, limit int) ([]domain.Bar, error) {
	f.histCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.bars, nil
}

func testBars(closes ...float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	base := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

func newTestHybrid(primary, backup *fakeProvider, now time.Time) *HybridProvider {
	cfg := HybridConfig{Now: func() time.Time { return now }}
	return NewHybridProvider(primary, backup, cfg, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestHybrid_RecentStartUsesPrimary(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	primary := &fakeProvider{bars: testBars(1, 2)}
	backup := &fakeProvider{bars: testBars(9)}

	hybrid := newTestHybrid(primary, backup, now)
	bars, err := hybrid.HistoricalBars(context.Background(), "AAPL", "1Min", now.Add(-8*time.Hour), nil, 400)
	require.NoError(t, err)

	assert.Equal(t, 2.0, bars[1].Close)
	assert.Equal(t, 1, primary.histCalls)
	assert.Equal(t, 0, backup.histCalls)
}

func TestHybrid_OldStartGoesStraightToBackup(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	primary := &fakeProvider{bars: testBars(1, 2)}
	backup := &fakeProvider{bars: testBars(9)}

	hybrid := newTestHybrid(primary, backup, now)
	bars, err := hybrid.HistoricalBars(context.Background(), "AAPL", "1D", now.Add(-72*time.Hour), nil, 400)
	require.NoError(t, err)

	assert.Equal(t, 9.0, bars[0].Close)
	assert.Equal(t, 0, primary.histCalls)
	assert.Equal(t, 1, backup.histCalls)
}

func TestHybrid_PrimaryFailureFallsBack(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	primary := &fakeProvider{err: errors.New("feed down")}
	backup := &fakeProvider{bars: testBars(9)}

	hybrid := newTestHybrid(primary, backup, now)
	bars, err := hybrid.HistoricalBars(context.Background(), "AAPL", "1Min", now.Add(-8*time.Hour), nil, 400)
	require.NoError(t, err)

	assert.Equal(t, 9.0, bars[0].Close)
	assert.Equal(t, 1, primary.histCalls)
	assert.Equal(t, 1, backup.histCalls)
}

func TestHybrid_BothFailingSurfacesBackupError(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	primary := &fakeProvider{err: errors.New("feed down")}
	backup := &fakeProvider{err: errors.New("chart down")}

	hybrid := newTestHybrid(primary, backup, now)
	_, err := hybrid.HistoricalBars(context.Background(), "AAPL", "1Min", now.Add(-8*time.Hour), nil, 400)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chart down")
}

func TestHybrid_LatestBarFallsBack(t *testing.T) {
	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	latest := testBars(5)[0]
	primary := &fakeProvider{err: errors.New("feed down")}
	backup := &fakeProvider{latest: &latest}

	hybrid := newTestHybrid(primary, backup, now)
	bar, err := hybrid.LatestBar(context.Background(), "AAPL", "1Min")
	require.NoError(t, err)

	assert.Equal(t, 5.0, bar.Close)
	assert.Equal(t, 1, primary.latestCalls)
	assert.Equal(t, 1, backup.latestCalls)
}
