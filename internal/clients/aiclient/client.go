// Package aiclient provides an OpenAI-compatible chat-completions client
// used as the trade classifier.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradegate/tradegate/internal/domain"
)

const systemPrompt = `You are a disciplined intraday trading analyst. You receive a JSON
payload describing one symbol: current price, 24h volume, technical
indicators, recent news signals, and optionally a strategy guide with
its rule evaluation.

Respond with a single bare JSON object and nothing else. No markdown,
no code fences, no commentary. The object must have exactly these keys:
  "decision": one of "LONG", "SHORT", "NO_TRADE"
  "confidence": a number between 0 and 1
  "matched_rules": array of strings
  "violated_rules": array of strings
  "risk_flags": array of strings
  "explanation": short non-empty string stating the rationale

Prefer NO_TRADE whenever the evidence is mixed or thin.`

// Config holds classifier client configuration
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client calls an OpenAI-style chat-completions endpoint and returns the
// assistant reply verbatim. Strict schema parsing happens in the AI
// stage, not here.
type Client struct {
	log        zerolog.Logger
	cfg        Config
	httpClient *http.Client
}

// Compile-time check that Client implements domain.Classifier
var _ domain.Classifier = (*Client)(nil)

// NewClient creates a new classifier client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		log:        log.With().Str("client", "aiclient").Logger(),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Classify sends the structured payload to the model and returns the
// assistant reply with any markdown fencing stripped.
func (c *Client) Classify(ctx context.Context, payload map[string]interface{}) (string, error) {
	userPrompt, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	reqBody := completionRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(userPrompt)},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.NewServiceError("ai", "network_error", "classifier request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", domain.NewServiceError("ai", "read_error", "failed to read classifier response", err)
	}

	if resp.StatusCode != http.StatusOK {
		serr := domain.NewServiceError("ai", "http_error",
			fmt.Sprintf("classifier returned status %d", resp.StatusCode), nil)
		serr.HTTPStatus = resp.StatusCode
		serr.Raw = respBody
		return "", serr
	}

	var completion completionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", domain.NewServiceError("ai", "decode_error", "failed to decode classifier response", err)
	}
	if completion.Error != nil {
		serr := domain.NewServiceError("ai", completion.Error.Type, completion.Error.Message, nil)
		serr.Raw = respBody
		return "", serr
	}
	if len(completion.Choices) == 0 {
		return "", domain.NewServiceError("ai", "empty_response", "classifier returned no choices", nil)
	}

	reply := stripMarkdownCodeBlock(completion.Choices[0].Message.Content)
	c.log.Debug().
		Str("model", c.cfg.Model).
		Int("reply_bytes", len(reply)).
		Msg("Classifier reply received")
	return reply, nil
}

var codeBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownCodeBlock unwraps replies fenced as ```json ... ``` even
// though the prompt forbids fencing; models add it anyway.
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeBlockRe.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}
