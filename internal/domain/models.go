// Package domain holds the shared data model and the interfaces that
// decouple pipeline stages from the concrete provider clients. Stages
// depend on these seams, never on a specific client package, so a
// provider can be swapped without touching decision logic.
package domain

import "time"

// Bar is a single OHLCV bar. Bars are always ordered oldest-first.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Indicators holds the derived values computed from a bar series.
// A nil field means the series was too short to compute that indicator;
// consumers must treat nil and zero differently.
type Indicators struct {
	VWAP           *float64 `json:"vwap,omitempty"`
	ATR            *float64 `json:"atr,omitempty"`
	RSI            *float64 `json:"rsi,omitempty"`
	EMA21          *float64 `json:"ema_21,omitempty"`
	EMA50          *float64 `json:"ema_50,omitempty"`
	SMA20          *float64 `json:"sma_20,omitempty"`
	RelativeVolume *float64 `json:"relative_volume,omitempty"`
	PercentChange  *float64 `json:"percent_change,omitempty"`
}

// MarketSnapshot is the immutable per-run view of a symbol's market state
type MarketSnapshot struct {
	Symbol     string     `json:"symbol"`
	Timeframe  string     `json:"timeframe"`
	Bars       []Bar      `json:"bars"`
	Indicators Indicators `json:"indicators"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// LastClose returns the close of the most recent bar, or 0 when empty
func (s *MarketSnapshot) LastClose() float64 {
	if len(s.Bars) == 0 {
		return 0
	}
	return s.Bars[len(s.Bars)-1].Close
}

// TotalVolume sums the volume across all bars in the snapshot
func (s *MarketSnapshot) TotalVolume() float64 {
	var total float64
	for _, b := range s.Bars {
		total += b.Volume
	}
	return total
}

// SearchSignals summarizes news search results for one symbol in one run.
// Category counts and flags are derived by the search client; the pipeline
// only reads them.
type SearchSignals struct {
	Query        string         `json:"query"`
	TotalResults int            `json:"total_results"`
	Categories   map[string]int `json:"categories"`
	Negative     []string       `json:"negative"`
	Neutral      []string       `json:"neutral"`
	Positive     []string       `json:"positive"`

	EarningsMention bool `json:"earnings_mention"`
	FDAMention      bool `json:"fda_mention"`
	LawsuitMention  bool `json:"lawsuit_mention"`
	MacroMention    bool `json:"macro_mention"`
	UnusualVolume   bool `json:"unusual_volume"`
}

// EmptySearchSignals returns the safe degraded value used when the search
// provider is unavailable: no mentions, no flags, nothing to gate on.
func EmptySearchSignals(query string) SearchSignals {
	return SearchSignals{
		Query:      query,
		Categories: map[string]int{},
		Negative:   []string{},
		Neutral:    []string{},
		Positive:   []string{},
	}
}

// ObservedSignalLabels flattens the matched category labels for guide
// rule matching.
func (s SearchSignals) ObservedSignalLabels() []string {
	labels := make([]string, 0, len(s.Negative)+len(s.Neutral)+len(s.Positive))
	labels = append(labels, s.Negative...)
	labels = append(labels, s.Neutral...)
	labels = append(labels, s.Positive...)
	return labels
}

// NegativeCount returns the number of distinct negative categories matched
func (s SearchSignals) NegativeCount() int {
	return len(s.Negative)
}
