// Package yahoo implements a market-data provider backed by the Yahoo
// Finance v8 chart API. It needs no credentials and reaches further back
// than the primary data feed, so the hybrid provider uses it for older
// history and as a fallback.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
)

const (
	chartBaseURL = "https://query1.finance.yahoo.com"

	// Yahoo rejects requests without a browser-looking user agent
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// Config holds Yahoo client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a Yahoo Finance chart API client
type Client struct {
	log        zerolog.Logger
	baseURL    string
	httpClient *http.Client
}

// Compile-time check that Client implements domain.MarketDataProvider
var _ domain.MarketDataProvider = (*Client)(nil)

// NewClient creates a new Yahoo Finance client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = chartBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		log:        log.With().Str("client", "yahoo").Logger(),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chartQuote struct {
	Open   []float64 `json:"open"`
	High   []float64 `json:"high"`
	Low    []float64 `json:"low"`
	Close  []float64 `json:"close"`
	Volume []float64 `json:"volume"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// LatestBar returns the most recent bar from the last 24 hours
func (c *Client) LatestBar(ctx context.Context, symbol, timeframe string) (*domain.Bar, error) {
	start := time.Now().UTC().Add(-24 * time.Hour)
	bars, err := c.fetchChart(ctx, symbol, timeframe, start, nil)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, domain.NewServiceError("yahoo", "no_data",
			fmt.Sprintf("no latest bar available for %s", symbol), nil)
	}
	return &bars[len(bars)-1], nil
}

// HistoricalBars returns bars between start and end (now when nil),
// oldest-first, trimmed to the most recent limit bars. An empty series
// is an error.
func (c *Client) HistoricalBars(ctx context.Context, symbol, timeframe string, start time.Time, end *time.Time, limit int) ([]domain.Bar, error) {
	bars, err := c.fetchChart(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, domain.NewServiceError("yahoo", "no_data",
			fmt.Sprintf("no bars returned for %s", symbol), nil)
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("count", len(bars)).
		Msg("Fetched historical bars")
	return bars, nil
}

// fetchChart queries the chart endpoint and converts the columnar reply
// into bars. Rows where every OHLC value is null are dropped; Yahoo pads
// gaps that way.
func (c *Client) fetchChart(ctx context.Context, symbol, timeframe string, start time.Time, end *time.Time) ([]domain.Bar, error) {
	stop := time.Now().UTC()
	if end != nil {
		stop = *end
	}

	params := url.Values{}
	params.Set("interval", mapTimeframe(timeframe))
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(stop.Unix(), 10))

	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", browserUserAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewServiceError("yahoo", "network_error", "chart request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewServiceError("yahoo", "read_error", "failed to read chart response", err)
	}
	if resp.StatusCode != http.StatusOK {
		serr := domain.NewServiceError("yahoo", "http_error",
			fmt.Sprintf("chart API returned status %d", resp.StatusCode), nil)
		serr.HTTPStatus = resp.StatusCode
		serr.Raw = body
		return nil, serr
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.NewServiceError("yahoo", "decode_error", "failed to decode chart response", err)
	}
	if parsed.Chart.Error != nil {
		return nil, domain.NewServiceError("yahoo", "chart_error",
			fmt.Sprintf("%s: %s", parsed.Chart.Error.Code, parsed.Chart.Error.Description), nil)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, nil
	}

	result := parsed.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}

		volume := float64(0)
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}
		bars = append(bars, domain.Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      quote.Open[i],
			High:      quote.High[i],
			Low:       quote.Low[i],
			Close:     quote.Close[i],
			Volume:    volume,
		})
	}
	return bars, nil
}

// mapTimeframe converts the pipeline timeframe names into chart API
// interval names
func mapTimeframe(tf string) string {
	switch tf {
	case "1Min":
		return "1m"
	case "5Min":
		return "5m"
	case "15Min":
		return "15m"
	case "1h":
		return "60m"
	case "1D":
		return "1d"
	default:
		return "1m"
	}
}
