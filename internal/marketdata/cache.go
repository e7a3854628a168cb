package marketdata

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tradegate/tradegate/internal/domain"
)

const defaultCacheTTL = 30 * time.Second

// CacheConfig holds cache decorator configuration
type CacheConfig struct {
	TTL time.Duration
	Now func() time.Time
}

// CachedProvider caches bar responses in the cache database as msgpack
// blobs keyed by request shape. The cache is an optimization only: any
// storage failure degrades to a pass-through fetch, never to an error.
type CachedProvider struct {
	log  zerolog.Logger
	next domain.MarketDataProvider
	db   *sql.DB
	cfg  CacheConfig
}

// Compile-time check that CachedProvider implements domain.MarketDataProvider
var _ domain.MarketDataProvider = (*CachedProvider)(nil)

// NewCachedProvider wraps next with a TTL bar cache
func NewCachedProvider(next domain.MarketDataProvider, db *sql.DB, cfg CacheConfig, log zerolog.Logger) *CachedProvider {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &CachedProvider{
		log:  log.With().Str("provider", "bar_cache").Logger(),
		next: next,
		db:   db,
		cfg:  cfg,
	}
}

// LatestBar serves a fresh cached bar when present, fetching otherwise
func (p *CachedProvider) LatestBar(ctx context.Context, symbol, timeframe string) (*domain.Bar, error) {
	key := cacheKey("latest", symbol, timeframe, 0, 0, 1)
	if bars, ok := p.lookup(ctx, key); ok && len(bars) == 1 {
		return &bars[0], nil
	}

	bar, err := p.next.LatestBar(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, symbol, timeframe, []domain.Bar{*bar})
	return bar, nil
}

// HistoricalBars serves a fresh cached series when present, fetching
// otherwise. Errors from the wrapped provider are never cached.
func (p *CachedProvider) HistoricalBars(ctx context.Context, symbol, timeframe string, start time.Time, end *time.Time, limit int) ([]domain.Bar, error) {
	endUnix := int64(0)
	if end != nil {
		endUnix = end.Unix()
	}
	key := cacheKey("bars", symbol, timeframe, start.Unix(), endUnix, limit)
	if bars, ok := p.lookup(ctx, key); ok {
		return bars, nil
	}

	bars, err := p.next.HistoricalBars(ctx, symbol, timeframe, start, end, limit)
	if err != nil {
		return nil, err
	}
	p.store(ctx, key, symbol, timeframe, bars)
	return bars, nil
}

func cacheKey(kind, symbol, timeframe string, startUnix, endUnix int64, limit int) string {
	raw := fmt.Sprintf("%s|%s|%s|%d|%d|%d", kind, symbol, timeframe, startUnix, endUnix, limit)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// lookup returns the cached bars when present and fresh. Any storage or
// decode problem reads as a miss.
func (p *CachedProvider) lookup(ctx context.Context, key string) ([]domain.Bar, bool) {
	var payload []byte
	var cachedAt int64
	err := p.db.QueryRowContext(ctx,
		`SELECT payload, cached_at FROM bar_cache WHERE cache_key = ?`, key).Scan(&payload, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		p.log.Warn().Err(err).Msg("Bar cache lookup failed")
		return nil, false
	}
	if p.cfg.Now().UTC().Sub(time.Unix(cachedAt, 0)) > p.cfg.TTL {
		return nil, false
	}

	var bars []domain.Bar
	if err := msgpack.Unmarshal(payload, &bars); err != nil {
		p.log.Warn().Err(err).Msg("Bar cache decode failed")
		return nil, false
	}
	return bars, true
}

func (p *CachedProvider) store(ctx context.Context, key, symbol, timeframe string, bars []domain.Bar) {
	payload, err := msgpack.Marshal(bars)
	if err != nil {
		p.log.Warn().Err(err).Msg("Bar cache encode failed")
		return
	}

	_, err = p.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO bar_cache (cache_key, symbol, timeframe, payload, cached_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, symbol, timeframe, payload, p.cfg.Now().UTC().Unix())
	if err != nil {
		p.log.Warn().Err(err).Msg("Bar cache write failed")
	}
}
