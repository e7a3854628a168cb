// Package search provides a Brave-style web search client that distills
// news results into category signals for the trading pipeline.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
)

const searchPath = "/res/v1/web/search"

// Keyword lists per signal category. Matching is substring-based on the
// lowercased title+snippet of each result.
var (
	earningsTerms = []string{"earnings", "eps", "guidance", "results", "revenue", "profit", "quarter"}
	lawsuitTerms  = []string{"lawsuit", "class action", "litigation", "settlement", "sec investigation", "probe"}
	fdaTerms      = []string{"fda", "clinical", "trial", "approval", "phase"}
	macroTerms    = []string{"inflation", "cpi", "ppi", "fomc", "fed", "ecb", "opec", "gdp", "jobs report", "unemployment", "rate hike", "interest rate"}
	unusualTerms  = []string{"unusual activity", "surge", "spike"}
	negativeTerms = []string{"bankruptcy", "fraud", "recall", "downgrade", "plunge", "short seller"}
	positiveTerms = []string{"upgrade", "beat estimates", "record high", "breakthrough", "buyback"}
)

// Config holds search client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client queries the search endpoint and scans results against the
// category keyword lists. Implements domain.SearchProvider.
type Client struct {
	log        zerolog.Logger
	cfg        Config
	httpClient *http.Client
}

// Compile-time check that Client implements domain.SearchProvider
var _ domain.SearchProvider = (*Client)(nil)

// NewClient creates a new search client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.search.brave.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		log:        log.With().Str("client", "search").Logger(),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type searchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type searchResponse struct {
	Value []searchResult `json:"value"`
}

// Search runs one query and distills the results into SearchSignals.
// freshness follows the provider convention ("pd" = past day).
func (c *Client) Search(ctx context.Context, query string, freshness string, count int) (domain.SearchSignals, error) {
	if strings.TrimSpace(query) == "" {
		return domain.SearchSignals{}, domain.NewValidationError("query", "query must be a non-empty string")
	}
	if count <= 0 {
		return domain.SearchSignals{}, domain.NewValidationError("count", "count must be positive")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("freshness", freshness)
	params.Set("count", strconv.Itoa(count))

	requestURL := strings.TrimRight(c.cfg.BaseURL, "/") + searchPath + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return domain.SearchSignals{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Subscription-Token", c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.SearchSignals{}, domain.NewServiceError("search", "network_error", "search request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SearchSignals{}, domain.NewServiceError("search", "read_error", "failed to read search response", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return domain.SearchSignals{}, domain.NewServiceError("search", "invalid_api_key", "search API key rejected", nil)
	case http.StatusTooManyRequests:
		return domain.SearchSignals{}, domain.NewServiceError("search", "rate_limited", "search rate limited", nil)
	default:
		serr := domain.NewServiceError("search", "http_error",
			fmt.Sprintf("search returned status %d", resp.StatusCode), nil)
		serr.HTTPStatus = resp.StatusCode
		serr.Raw = body
		return domain.SearchSignals{}, serr
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.SearchSignals{}, domain.NewServiceError("search", "decode_error", "failed to decode search response", err)
	}

	signals := buildSignals(query, payload.Value, count)
	c.log.Debug().
		Str("query", query).
		Int("total_results", signals.TotalResults).
		Strs("negative", signals.Negative).
		Strs("neutral", signals.Neutral).
		Msg("Search signals built")
	return signals, nil
}

// buildSignals scans results against the category keyword lists. The
// category-to-polarity mapping: lawsuits and negative press are
// negative; earnings, fda, macro, and unusual activity are neutral
// context; positive press is positive.
func buildSignals(query string, results []searchResult, requestedCount int) domain.SearchSignals {
	signals := domain.EmptySearchSignals(query)
	signals.TotalResults = len(results)

	unusualHit := len(results) >= maxInt(5, requestedCount)
	counts := map[string]int{}
	for _, result := range results {
		lower := strings.ToLower(strings.TrimSpace(result.Title + " " + result.Snippet))
		if containsAny(lower, earningsTerms) {
			counts["earnings"]++
		}
		if containsAny(lower, lawsuitTerms) {
			counts["lawsuits"]++
		}
		if containsAny(lower, fdaTerms) {
			counts["fda"]++
		}
		if containsAny(lower, macroTerms) {
			counts["macro"]++
		}
		if containsAny(lower, unusualTerms) {
			counts["unusual"]++
			unusualHit = true
		}
		if containsAny(lower, negativeTerms) {
			counts["negative_press"]++
		}
		if containsAny(lower, positiveTerms) {
			counts["positive_press"]++
		}
	}
	signals.Categories = counts

	signals.EarningsMention = counts["earnings"] > 0
	signals.LawsuitMention = counts["lawsuits"] > 0
	signals.FDAMention = counts["fda"] > 0
	signals.MacroMention = counts["macro"] > 0
	signals.UnusualVolume = unusualHit

	if signals.LawsuitMention {
		signals.Negative = append(signals.Negative, "lawsuits")
	}
	if counts["negative_press"] > 0 {
		signals.Negative = append(signals.Negative, "negative_press")
	}
	if signals.FDAMention {
		signals.Neutral = append(signals.Neutral, "fda_event")
	}
	if signals.EarningsMention {
		signals.Neutral = append(signals.Neutral, "earnings")
	}
	if signals.MacroMention {
		signals.Neutral = append(signals.Neutral, "macro_event")
	}
	if signals.UnusualVolume {
		signals.Neutral = append(signals.Neutral, "unusual_activity")
	}
	if counts["positive_press"] > 0 {
		signals.Positive = append(signals.Positive, "positive_press")
	}

	return signals
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
