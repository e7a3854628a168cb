package alpaca

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
	dataBaseURL     = "https://data.alpaca.markets"
	defaultBarLimit = 1000
)

// MarketDataConfig holds data API client configuration. The data API
// uses the same key pair as the trading API but lives on its own host.
type MarketDataConfig struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
}

// MarketDataClient implements domain.MarketDataProvider against the
// Alpaca stocks data API
type MarketDataClient struct {
	log        zerolog.Logger
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// Compile-time check that MarketDataClient implements domain.MarketDataProvider
var _ domain.MarketDataProvider = (*MarketDataClient)(nil)

// NewMarketDataClient creates an Alpaca data API client
func NewMarketDataClient(cfg MarketDataConfig, log zerolog.Logger) *MarketDataClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = dataBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &MarketDataClient{
		log:        log.With().Str("client", "alpaca_data").Logger(),
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// barPayload is the wire shape of a single Alpaca bar
type barPayload struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

type barsResponse struct {
	Bars          []barPayload `json:"bars"`
	Symbol        string       `json:"symbol"`
	NextPageToken *string      `json:"next_page_token"`
}

type latestBarResponse struct {
	Bar    *barPayload `json:"bar"`
	Symbol string      `json:"symbol"`
}

// LatestBar returns the most recent bar for the symbol. A reply without
// a bar is an error, never an empty success.
func (c *MarketDataClient) LatestBar(ctx context.Context, symbol, timeframe string) (*domain.Bar, error) {
	params := url.Values{}
	params.Set("timeframe", timeframe)

	body, err := c.get(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/bars/latest", params)
	if err != nil {
		return nil, err
	}

	var resp latestBarResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewServiceError("alpaca_data", "decode_error", "failed to decode latest bar response", err)
	}
	if resp.Bar == nil {
		return nil, domain.NewServiceError("alpaca_data", "no_data",
			fmt.Sprintf("no latest bar available for %s", symbol), nil)
	}

	bar, err := parseBar(*resp.Bar)
	if err != nil {
		return nil, err
	}
	return &bar, nil
}

// HistoricalBars returns bars from start onward, oldest-first, following
// pagination tokens until limit bars are collected or the pages run out.
// An empty series is an error.
func (c *MarketDataClient) HistoricalBars(ctx context.Context, symbol, timeframe string, start time.Time, end *time.Time, limit int) ([]domain.Bar, error) {
	if limit <= 0 {
		limit = defaultBarLimit
	}

	bars := make([]domain.Bar, 0, limit)
	pageToken := ""
	for len(bars) < limit {
		params := url.Values{}
		params.Set("timeframe", timeframe)
		params.Set("start", start.UTC().Format(time.RFC3339))
		params.Set("limit", strconv.Itoa(limit-len(bars)))
		if end != nil {
			params.Set("end", end.UTC().Format(time.RFC3339))
		}
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		body, err := c.get(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/bars", params)
		if err != nil {
			return nil, err
		}

		var resp barsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, domain.NewServiceError("alpaca_data", "decode_error", "failed to decode bars response", err)
		}
		for _, raw := range resp.Bars {
			bar, err := parseBar(raw)
			if err != nil {
				return nil, err
			}
			bars = append(bars, bar)
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" || len(resp.Bars) == 0 {
			break
		}
		pageToken = *resp.NextPageToken
	}

	if len(bars) == 0 {
		return nil, domain.NewServiceError("alpaca_data", "no_data",
			fmt.Sprintf("no bars returned for %s", symbol), nil)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Int("count", len(bars)).
		Msg("Fetched historical bars")
	return bars, nil
}

func parseBar(raw barPayload) (domain.Bar, error) {
	ts, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		return domain.Bar{}, domain.NewServiceError("alpaca_data", "decode_error",
			fmt.Sprintf("bar timestamp %q is not RFC3339", raw.Timestamp), err)
	}
	return domain.Bar{
		Timestamp: ts,
		Open:      raw.Open,
		High:      raw.High,
		Low:       raw.Low,
		Close:     raw.Close,
		Volume:    raw.Volume,
	}, nil
}

func (c *MarketDataClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("APCA-API-KEY-ID", c.apiKey)
	httpReq.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return nil, domain.NewServiceError("alpaca_data", "timeout", "market data request timed out", err)
		}
		return nil, domain.NewServiceError("alpaca_data", "network_error", "market data request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewServiceError("alpaca_data", "read_error", "failed to read market data response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.NewServiceError("alpaca_data", "invalid_api_key", "market data API key rejected", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewServiceError("alpaca_data", "rate_limited", "market data rate limited", nil)
	case resp.StatusCode != http.StatusOK:
		serr := domain.NewServiceError("alpaca_data", "http_error",
			fmt.Sprintf("market data returned status %d", resp.StatusCode), nil)
		serr.HTTPStatus = resp.StatusCode
		serr.Raw = body
		return nil, serr
	}
	return body, nil
}
