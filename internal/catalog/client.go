package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/config"
	"partsmatch/internal/matcher"
	"partsmatch/internal/metrics"
	"partsmatch/internal/util"
	"partsmatch/internal/value"
)

const (
	MaxSearchResults  = 100
	defaultRetryAfter = 60 * time.Second
	userAgent         = "partsmatch/1.0"
)

var (
	ErrMissingAPIKey = errors.New("missing PARTS_API_KEY")
	ErrUnauthorized  = errors.New("parts api: unauthorized")
	ErrRateLimited   = errors.New("parts api: rate limit exceeded")
)

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return "parts api error: " + e.Message
	}
	return fmt.Sprintf("parts api error %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL     string
	apiKey      string
	maxRetries  int
	searchDepth string
	httpClient  *http.Client
	limiter     *RateLimiter
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type SearchResult struct {
	Parts []internal.Record `json:"parts"`
	Total int               `json:"total"`
}

type remoteMatch struct {
	Component  internal.Record    `json:"component"`
	Part       internal.Record    `json:"part"`
	Matched    internal.Record    `json:"matched_part"`
	Confidence float64            `json:"confidence"`
	Breakdown  map[string]float64 `json:"match_breakdown"`
	Warnings   []string           `json:"warnings"`
}

type matchPayload struct {
	Matches []remoteMatch `json:"matches"`
}

func NewClient(cfg config.Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRetries := cfg.PartsMaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Client{
		baseURL:     cfg.PartsAPIBaseURL,
		apiKey:      cfg.PartsAPIKey,
		maxRetries:  maxRetries,
		searchDepth: cfg.PartsSearchDepth,
		httpClient:  &http.Client{Timeout: time.Duration(cfg.PartsTimeoutMs) * time.Millisecond},
		limiter:     NewRateLimiter(cfg.PartsRateLimitRPS),
		logger:      logger,
		sleep:       sleepContext,
	}
}

// SearchParts runs a free-text search. limit is capped at MaxSearchResults.
func (c *Client) SearchParts(ctx context.Context, query string, limit int) (SearchResult, error) {
	if limit <= 0 || limit > MaxSearchResults {
		limit = MaxSearchResults
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", "0")

	body, err := c.do(ctx, http.MethodGet, "parts/search", params, nil)
	if err != nil {
		return SearchResult{}, err
	}
	var out SearchResult
	if err := json.Unmarshal(body, &out); err != nil {
		return SearchResult{}, fmt.Errorf("decode search response: %w", err)
	}
	if out.Total == 0 {
		out.Total = len(out.Parts)
	}
	return out, nil
}

func (c *Client) GetPart(ctx context.Context, sku string) (internal.Record, error) {
	body, err := c.do(ctx, http.MethodGet, "parts/"+url.PathEscape(sku), nil, nil)
	if err != nil {
		return nil, err
	}
	var out internal.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode part %s: %w", sku, err)
	}
	if nested, ok := out["part"].(map[string]any); ok {
		return internal.Record(nested), nil
	}
	return out, nil
}

// MatchComponent asks the catalog to score one BOM line. Results come back
// best first.
func (c *Client) MatchComponent(ctx context.Context, component internal.Record, maxResults int) ([]matcher.MatchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	req := map[string]any{
		"component":    component,
		"max_results":  maxResults,
		"search_depth": c.searchDepth,
	}
	body, err := c.do(ctx, http.MethodPost, "components/match", nil, req)
	if err != nil {
		return nil, err
	}
	var payload matchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode match response: %w", err)
	}
	out := make([]matcher.MatchResult, 0, len(payload.Matches))
	for _, m := range payload.Matches {
		out = append(out, m.toResult(component))
	}
	return out, nil
}

// MatchComponentsBatch sends the whole BOM in one request. Statistics are
// recomputed locally so both matchers bucket with the same thresholds.
func (c *Client) MatchComponentsBatch(ctx context.Context, components []internal.Record) ([]matcher.MatchResult, matcher.Statistics, error) {
	req := map[string]any{
		"components":   components,
		"search_depth": c.searchDepth,
	}
	body, err := c.do(ctx, http.MethodPost, "components/match/batch", nil, req)
	if err != nil {
		return nil, matcher.Statistics{}, err
	}
	var payload matchPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, matcher.Statistics{}, fmt.Errorf("decode batch response: %w", err)
	}

	results := make([]matcher.MatchResult, 0, len(components))
	for i, component := range components {
		if i < len(payload.Matches) {
			results = append(results, payload.Matches[i].toResult(component))
			continue
		}
		results = append(results, matcher.MatchResult{
			Component: component,
			Details:   map[matcher.Factor]float64{},
			Warnings:  []string{"No result returned by the parts catalog"},
		})
	}
	return results, matcher.CalculateStatistics(results), nil
}

func (c *Client) NormalizeValue(ctx context.Context, text string) (value.Parsed, error) {
	params := url.Values{}
	params.Set("value", text)
	body, err := c.do(ctx, http.MethodGet, "values/normalize", params, nil)
	if err != nil {
		return value.Parsed{}, err
	}
	var out value.Parsed
	if err := json.Unmarshal(body, &out); err != nil {
		return value.Parsed{}, fmt.Errorf("decode normalized value: %w", err)
	}
	return out, nil
}

func (m remoteMatch) toResult(component internal.Record) matcher.MatchResult {
	part := m.Part
	if part == nil {
		part = m.Matched
	}
	details := map[matcher.Factor]float64{}
	for k, v := range m.Breakdown {
		details[matcher.Factor(strings.ToLower(k))] = v
	}
	warnings := m.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	confidence := m.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if part == nil {
		confidence = 0
	}
	return matcher.MatchResult{
		Component:  component,
		Part:       part,
		Confidence: confidence,
		Details:    details,
		Warnings:   warnings,
	}
}

// do sends one request with retries. 429 waits for Retry-After, 5xx and
// transport errors back off exponentially with jitter.
func (c *Client) do(ctx context.Context, method, endpoint string, params url.Values, payload any) ([]byte, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}

	baseURL := strings.TrimRight(c.baseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	var reqBody []byte
	if payload != nil {
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	label := metricEndpoint(endpoint)
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		waited, err := c.limiter.WaitTurn(ctx)
		if err != nil {
			return nil, err
		}
		metrics.RecordRateLimitDelay(waited)

		var body io.Reader
		if reqBody != nil {
			body = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		started := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordAPICall(label, "error", time.Since(started))
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			c.logger.Warn("parts api request failed",
				zap.String("endpoint", endpoint), zap.Int("attempt", attempt), zap.Error(err))
			if attempt < c.maxRetries {
				if err := c.sleep(ctx, backoff(attempt)); err != nil {
					return nil, err
				}
			}
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		metrics.RecordAPICall(label, strconv.Itoa(resp.StatusCode), time.Since(started))
		if readErr != nil {
			lastErr = readErr
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfter(resp.Header.Get("Retry-After"))
			if attempt < c.maxRetries {
				c.logger.Warn("parts api rate limited",
					zap.String("endpoint", endpoint), zap.Duration("retry_after", wait))
				metrics.RecordRateLimitDelay(wait)
				if err := c.sleep(ctx, wait); err != nil {
					return nil, err
				}
				lastErr = ErrRateLimited
				continue
			}
			return nil, fmt.Errorf("%w, retry after %s", ErrRateLimited, wait)
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: invalid API key", ErrUnauthorized)
		case resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: access forbidden, check API permissions", ErrUnauthorized)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorDetail(respBody)}
			if isRetryableStatus(resp.StatusCode) && attempt < c.maxRetries {
				lastErr = apiErr
				if err := c.sleep(ctx, backoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, apiErr
		}

		return unwrapEnvelope(respBody)
	}

	if lastErr == nil {
		lastErr = errors.New("parts api request failed")
	}
	return nil, lastErr
}

// unwrapEnvelope returns data from {"status":"success","data":...}. Bodies
// without a status field are returned unchanged.
func unwrapEnvelope(body []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return body, nil
	}
	switch env.Status {
	case "success":
		if len(env.Data) > 0 {
			return env.Data, nil
		}
		return body, nil
	case "error":
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = "Unknown error"
		}
		return nil, &APIError{Message: msg}
	default:
		return body, nil
	}
}

func errorDetail(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(body))
}

func isRetryableStatus(status int) bool {
	switch status {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func backoff(attempt int) time.Duration {
	return time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
}

func retryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func metricEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "parts/") && endpoint != "parts/search" {
		return "parts/{sku}"
	}
	return endpoint
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// toPartRecord maps a catalog part onto the stored columns. Parts without a
// SKU fall back to their MPN as the key.
func toPartRecord(raw internal.Record) (internal.PartRecord, error) {
	sku, ok := raw.Text("sku")
	if !ok {
		sku, ok = raw.Text("id")
	}
	mpn, hasMPN := matcher.FieldValue(raw, matcher.FactorMPN)
	if !ok {
		if !hasMPN {
			return internal.PartRecord{}, errors.New("part has neither sku nor mpn")
		}
		sku = mpn
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return internal.PartRecord{}, err
	}
	part := internal.PartRecord{
		SKU:     sku,
		RawJSON: string(rawJSON),
		Record:  raw,
	}
	if hasMPN {
		part.MPN = util.StringPtr(mpn)
	}
	part.Manufacturer = field(raw, matcher.FactorManufacturer)
	part.Description = field(raw, matcher.FactorDescription)
	part.Value = field(raw, matcher.FactorValue)
	part.Footprint = field(raw, matcher.FactorFootprint)
	return part, nil
}

func field(rec internal.Record, f matcher.Factor) *string {
	if s, ok := matcher.FieldValue(rec, f); ok {
		return util.StringPtr(s)
	}
	return nil
}
