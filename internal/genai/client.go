package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/blueprintd/internal/config"
	"github.com/fyrsmithlabs/blueprintd/internal/logging"
)

const (
	// defaultRateLimitDelay applies when a 429 response carries no
	// server-suggested retry delay.
	defaultRateLimitDelay = 40 * time.Second

	// unavailableBaseDelay seeds exponential backoff for 503 and network
	// failures: base * 2^(attempt-1).
	unavailableBaseDelay = 2 * time.Second

	maxOutputTokens  = 8192
	maxResponseBytes = 10 << 20

	// tokensPerWord estimates consumption when the backend omits usage
	// metadata.
	tokensPerWord = 1.3
)

// Wire types for the backend's generateContent format.

type wireInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wirePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *wireInlineData `json:"inlineData,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role"`
	Parts []wirePart `json:"parts"`
}

type wireGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMIMEType string  `json:"responseMimeType,omitempty"`
}

type wireRequest struct {
	Contents         []wireContent        `json:"contents"`
	GenerationConfig wireGenerationConfig `json:"generationConfig"`
}

type wireResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type wireError struct {
	Error struct {
		Message string `json:"message"`
		Details []struct {
			RetryDelay string `json:"retryDelay"`
		} `json:"details"`
	} `json:"error"`
}

// Client calls the generative backend with bounded retry. Safe for concurrent
// use; the jitter source is guarded internally.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	maxAttempts int

	httpClient *http.Client
	limiter    *rate.Limiter
	clock      Clock
	rng        *lockedRand

	logger *logging.Logger
	ledger *Ledger
}

// Option customizes a Client, mainly for tests.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces the clock used for timestamps and backoff sleeps.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithJitterSource seeds backoff jitter deterministically.
func WithJitterSource(rng *rand.Rand) Option {
	return func(c *Client) { c.rng = &lockedRand{rng: rng} }
}

// NewClient builds a backend client from configuration. The provided ledger
// receives one record per terminal outcome and per failed attempt.
func NewClient(cfg config.GenAIConfig, logger *logging.Logger, ledger *Ledger, opts ...Option) *Client {
	c := &Client{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey.Value(),
		model:       cfg.Model,
		maxAttempts: cfg.MaxAttempts,
		httpClient:  &http.Client{Timeout: cfg.Timeout.Duration()},
		clock:       SystemClock(),
		rng:         &lockedRand{rng: rand.New(rand.NewSource(time.Now().UnixNano()))},
		logger:      logger,
		ledger:      ledger,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call sends one request and drives the retry state machine to a terminal
// Outcome. Rate limits, 503s, and network failures are retried up to the
// configured attempt cap; everything else terminates immediately.
func (c *Client) Call(ctx context.Context, req Request) Outcome {
	body, err := json.Marshal(buildWireRequest(req))
	if err != nil {
		return c.recordTerminal(req.Stage, 0, fatal(fmt.Sprintf("failed to encode request: %v", err)))
	}

	c.logger.Trace(ctx, "sending backend request",
		zap.String("stage", req.Stage),
		zap.Int("parts", len(req.Parts)),
		zap.Bool("expect_json", req.ExpectJSON),
	)

	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return c.recordTerminal(req.Stage, attempt, fatal(fmt.Sprintf("rate limiter wait: %v", err)))
			}
		}

		outcome, delay := c.attempt(ctx, req, body, attempt)
		retryable := outcome.Kind == OutcomeRateLimited || outcome.Kind == OutcomeUnavailable

		if !retryable || attempt >= c.maxAttempts {
			return c.recordTerminal(req.Stage, attempt, outcome)
		}

		c.recordAttemptFailure(req.Stage, attempt, outcome, delay)
		c.logger.Warn(ctx, "transient backend failure, retrying",
			zap.String("stage", req.Stage),
			zap.Int("attempt", attempt),
			zap.String("kind", string(outcome.Kind)),
			zap.Duration("delay", delay),
		)
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return c.recordTerminal(req.Stage, attempt, fatal(fmt.Sprintf("canceled during backoff: %v", err)))
		}
	}
}

// attempt performs a single HTTP exchange. For retryable outcomes the second
// return value is the delay before the next attempt.
func (c *Client) attempt(ctx context.Context, req Request, body []byte, attempt int) (Outcome, time.Duration) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fatal(fmt.Sprintf("failed to build request: %v", err)), 0
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return unavailable(fmt.Sprintf("request failed: %v", err)), c.backoffDelay(attempt)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return unavailable(fmt.Sprintf("failed to read response: %v", err)), c.backoffDelay(attempt)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return c.parseSuccess(req, respBody), 0

	case http.StatusTooManyRequests:
		suggested := parseRetryDelay(respBody)
		jittered := time.Duration(float64(suggested) * (0.5 + c.rng.Float64()))
		return rateLimited(suggested), jittered

	case http.StatusServiceUnavailable:
		return unavailable("backend unavailable (503)"), c.backoffDelay(attempt)

	case http.StatusUnauthorized, http.StatusForbidden:
		return fatal(fmt.Sprintf("authentication failed (status %d)", resp.StatusCode)), 0

	default:
		return fatal(fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, truncateForLog(respBody))), 0
	}
}

// parseSuccess decodes a 200 response and, for structured calls, runs JSON
// extraction. Malformed structured output is terminal here; the quality gate
// above owns regeneration.
func (c *Client) parseSuccess(req Request, body []byte) Outcome {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return malformed(string(body), 0, 0)
	}
	if len(wire.Candidates) == 0 || len(wire.Candidates[0].Content.Parts) == 0 {
		return malformed(string(body), 0, 0)
	}

	var sb strings.Builder
	for _, part := range wire.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := sb.String()

	in, out := c.tokenCounts(req, text, wire)

	if !req.ExpectJSON {
		return successText(text, in, out)
	}
	raw, ok := ExtractJSON(text)
	if !ok {
		return malformed(text, in, out)
	}
	return successJSON(raw, in, out)
}

// tokenCounts prefers backend usage metadata, falling back to a word-count
// estimate.
func (c *Client) tokenCounts(req Request, text string, wire wireResponse) (in, out int) {
	if wire.UsageMetadata != nil {
		return wire.UsageMetadata.PromptTokenCount, wire.UsageMetadata.CandidatesTokenCount
	}
	var promptWords int
	for _, part := range req.Parts {
		promptWords += len(strings.Fields(part.Text))
	}
	in = int(float64(promptWords) * tokensPerWord)
	out = int(float64(len(strings.Fields(text))) * tokensPerWord)
	return in, out
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	return unavailableBaseDelay << (attempt - 1)
}

func (c *Client) recordTerminal(stage string, attempt int, outcome Outcome) Outcome {
	c.ledger.Append(Record{
		Timestamp:    c.clock.Now(),
		Stage:        stage,
		Model:        c.model,
		Attempt:      attempt,
		InputTokens:  outcome.InputTokens,
		OutputTokens: outcome.OutputTokens,
		Details:      map[string]string{"outcome": string(outcome.Kind)},
	})
	return outcome
}

func (c *Client) recordAttemptFailure(stage string, attempt int, outcome Outcome, delay time.Duration) {
	c.ledger.Append(Record{
		Timestamp: c.clock.Now(),
		Stage:     stage,
		Model:     c.model,
		Attempt:   attempt,
		Details: map[string]string{
			"outcome":     string(outcome.Kind),
			"retry_delay": delay.String(),
		},
	})
}

func buildWireRequest(req Request) wireRequest {
	parts := make([]wirePart, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Image != nil {
			parts = append(parts, wirePart{InlineData: &wireInlineData{
				MIMEType: p.Image.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(p.Image.Data),
			}})
			continue
		}
		parts = append(parts, wirePart{Text: p.Text})
	}

	gen := wireGenerationConfig{
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: maxOutputTokens,
	}
	if req.ExpectJSON {
		gen = wireGenerationConfig{
			Temperature:      0.1,
			TopK:             1,
			TopP:             0.1,
			MaxOutputTokens:  maxOutputTokens,
			ResponseMIMEType: "application/json",
		}
	}

	return wireRequest{
		Contents:         []wireContent{{Role: "user", Parts: parts}},
		GenerationConfig: gen,
	}
}

// parseRetryDelay extracts the server-suggested delay from a 429 error body.
// The backend encodes it as a duration string ("40s") in error details.
func parseRetryDelay(body []byte) time.Duration {
	var we wireError
	if err := json.Unmarshal(body, &we); err != nil {
		return defaultRateLimitDelay
	}
	for _, detail := range we.Error.Details {
		if detail.RetryDelay == "" {
			continue
		}
		if d, err := time.ParseDuration(detail.RetryDelay); err == nil && d > 0 {
			return d
		}
	}
	return defaultRateLimitDelay
}

func truncateForLog(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
