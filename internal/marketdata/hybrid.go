// Package marketdata composes the provider clients into the pipeline's
// market-data seam: a hybrid provider that routes between the primary
// feed and the chart fallback, and a cache decorator that sits in front
// of whichever provider the wiring chooses.
package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
)

// Requests starting further back than this go straight to the backup
// feed; the primary only holds recent history.
const defaultRecencyWindow = 48 * time.Hour

// HybridConfig holds hybrid provider configuration
type HybridConfig struct {
	RecencyWindow time.Duration
	Now           func() time.Time
}

// HybridProvider routes between a primary provider and a backup. The
// backup serves requests reaching beyond the recency window and any
// request the primary fails.
type HybridProvider struct {
	log     zerolog.Logger
	primary domain.MarketDataProvider
	backup  domain.MarketDataProvider
	cfg     HybridConfig
}

// Compile-time check that HybridProvider implements domain.MarketDataProvider
var _ domain.MarketDataProvider = (*HybridProvider)(nil)

// NewHybridProvider creates a hybrid provider over the two feeds
func NewHybridProvider(primary, backup domain.MarketDataProvider, cfg HybridConfig, log zerolog.Logger) *HybridProvider {
	if cfg.RecencyWindow <= 0 {
		cfg.RecencyWindow = defaultRecencyWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &HybridProvider{
		log:     log.With().Str("provider", "hybrid").Logger(),
		primary: primary,
		backup:  backup,
		cfg:     cfg,
	}
}

// LatestBar asks the primary feed first and falls back on error
func (p *HybridProvider) LatestBar(ctx context.Context, symbol, timeframe string) (*domain.Bar, error) {
	bar, err := p.primary.LatestBar(ctx, symbol, timeframe)
	if err == nil {
		return bar, nil
	}
	p.log.Warn().Err(err).Str("symbol", symbol).Msg("Primary latest bar failed, trying backup")
	return p.backup.LatestBar(ctx, symbol, timeframe)
}

// HistoricalBars routes by recency: requests starting beyond the window
// go straight to the backup, everything else tries the primary first and
// falls back on error.
func (p *HybridProvider) HistoricalBars(ctx context.Context, symbol, timeframe string, start time.Time, end *time.Time, limit int) ([]domain.Bar, error) {
	if p.cfg.Now().UTC().Sub(start) > p.cfg.RecencyWindow {
		return p.backup.HistoricalBars(ctx, symbol, timeframe, start, end, limit)
	}

	bars, err := p.primary.HistoricalBars(ctx, symbol, timeframe, start, end, limit)
	if err == nil {
		return bars, nil
	}
	p.log.Warn().Err(err).Str("symbol", symbol).Msg("Primary historical bars failed, trying backup")
	return p.backup.HistoricalBars(ctx, symbol, timeframe, start, end, limit)
}
