package domain

import (
	"context"
	"time"
)

// MarketDataProvider supplies OHLCV bars for a symbol. Implementations
// must return an error rather than an empty success when no data is
// available, so callers can distinguish "no bars" from "provider down".
type MarketDataProvider interface {
	// LatestBar returns the most recent bar for the symbol
	LatestBar(ctx context.Context, symbol, timeframe string) (*Bar, error)

	// HistoricalBars returns bars ordered oldest-first. end may be nil
	// (open-ended); limit caps the number of bars returned.
	HistoricalBars(ctx context.Context, symbol, timeframe string, start time.Time, end *time.Time, limit int) ([]Bar, error)
}

// SearchProvider runs a news search and distills the results into
// category signals
type SearchProvider interface {
	Search(ctx context.Context, query string, freshness string, count int) (SearchSignals, error)
}

// Classifier invokes the external AI model with a structured payload and
// returns the raw reply text. Parsing and validation of the reply belong
// to the evaluation stage, not the client.
type Classifier interface {
	Classify(ctx context.Context, payload map[string]interface{}) (string, error)
}

// BrokerAdapter is the order lifecycle seam. GetOrder and CancelOrder are
// idempotent: a not-found order yields (nil, nil) / (false, nil), not an
// error.
type BrokerAdapter interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (*ExecutedOrder, error)
	GetOrder(ctx context.Context, orderID string) (*ExecutedOrder, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	Health(ctx context.Context) HealthStatus
}
