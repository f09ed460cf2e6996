package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"partsmatch/internal"
	"partsmatch/internal/config"
	"partsmatch/internal/matcher"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, payload any) *http.Response {
	blob, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(string(blob))),
		Header:     make(http.Header),
	}
}

func success(data any) map[string]any {
	return map[string]any{"status": "success", "data": data}
}

func newTestClient(t *testing.T, rt roundTripFunc) (*Client, *[]time.Duration) {
	t.Helper()
	cfg := config.Config{
		PartsAPIBaseURL:   "https://example.test/v1",
		PartsAPIKey:       "test",
		PartsRateLimitRPS: 1000,
		PartsTimeoutMs:    1000,
		PartsMaxRetries:   3,
		PartsSearchDepth:  "standard",
	}
	client := NewClient(cfg, nil)
	client.httpClient = &http.Client{Transport: rt}
	var slept []time.Duration
	client.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return client, &slept
}

func TestSearchPartsWithRetry(t *testing.T) {
	attempt := 0
	client, slept := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/parts/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Fatalf("missing bearer token")
		}
		if r.URL.Query().Get("q") != "10k 0603" || r.URL.Query().Get("limit") != "100" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		attempt++
		if attempt == 1 {
			return jsonResponse(http.StatusInternalServerError, map[string]any{"error": "boom"}), nil
		}
		return jsonResponse(http.StatusOK, success(map[string]any{
			"parts": []map[string]any{{"sku": "SP-1", "mpn": "RC0603FR-0710KL"}},
			"total": 1,
		})), nil
	})

	res, err := client.SearchParts(context.Background(), "10k 0603", 500)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Parts) != 1 || res.Total != 1 {
		t.Fatalf("res=%+v", res)
	}
	if attempt != 2 || len(*slept) != 1 {
		t.Fatalf("attempt=%d slept=%v", attempt, *slept)
	}
}

func TestRetryAfterOnRateLimit(t *testing.T) {
	attempt := 0
	client, slept := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		if attempt == 1 {
			resp := jsonResponse(http.StatusTooManyRequests, map[string]any{})
			resp.Header.Set("Retry-After", "7")
			return resp, nil
		}
		return jsonResponse(http.StatusOK, success(map[string]any{"parts": []any{}})), nil
	})

	if _, err := client.SearchParts(context.Background(), "x", 5); err != nil {
		t.Fatal(err)
	}
	if len(*slept) != 1 || (*slept)[0] != 7*time.Second {
		t.Fatalf("slept=%v", *slept)
	}
}

func TestRateLimitExhausted(t *testing.T) {
	client, _ := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, map[string]any{}), nil
	})
	_, err := client.SearchParts(context.Background(), "x", 5)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err=%v", err)
	}
}

func TestUnauthorizedIsNotRetried(t *testing.T) {
	attempt := 0
	client, _ := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		return jsonResponse(http.StatusForbidden, map[string]any{}), nil
	})
	_, err := client.GetPart(context.Background(), "SP-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err=%v", err)
	}
	if attempt != 1 {
		t.Fatalf("attempt=%d", attempt)
	}
}

func TestMissingAPIKey(t *testing.T) {
	client := NewClient(config.Config{PartsAPIBaseURL: "https://example.test"}, nil)
	if _, err := client.SearchParts(context.Background(), "x", 1); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err=%v", err)
	}
}

func TestErrorEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, map[string]any{"status": "error", "error": "bad query"}), nil
	})
	_, err := client.NormalizeValue(context.Background(), "??")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "bad query" {
		t.Fatalf("err=%v", err)
	}
}

func TestGetPartUnwrapsNestedPart(t *testing.T) {
	client, _ := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.EscapedPath() != "/v1/parts/SP%2F1" {
			t.Fatalf("unexpected path %s", r.URL.EscapedPath())
		}
		return jsonResponse(http.StatusOK, success(map[string]any{"part": map[string]any{"sku": "SP/1"}})), nil
	})
	part, err := client.GetPart(context.Background(), "SP/1")
	if err != nil {
		t.Fatal(err)
	}
	if sku, _ := part.Text("sku"); sku != "SP/1" {
		t.Fatalf("part=%v", part)
	}
}

func TestMatchComponent(t *testing.T) {
	client, _ := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/components/match" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["max_results"].(float64) != 1 || body["search_depth"] != "standard" {
			t.Fatalf("body=%v", body)
		}
		return jsonResponse(http.StatusOK, success(map[string]any{"matches": []map[string]any{{
			"part":            map[string]any{"sku": "SP-1"},
			"confidence":      0.91,
			"match_breakdown": map[string]any{"MPN": 1.0, "value": 0.8},
			"warnings":        []string{},
		}}})), nil
	})

	m := NewRemoteMatcher(client)
	res, err := m.MatchOne(context.Background(), internal.Record{"mpn": "X"})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsHighConfidence() {
		t.Fatalf("classification=%s", res.Classification())
	}
	if s, ok := res.Score(matcher.FactorMPN); !ok || s != 1 {
		t.Fatalf("details=%v", res.Details)
	}
}

func TestMatchComponentsBatch(t *testing.T) {
	client, _ := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, success(map[string]any{
			"matches": []map[string]any{
				{"matched_part": map[string]any{"sku": "A"}, "confidence": 0.6},
				{"matched_part": nil, "confidence": 0.0, "warnings": []string{"No parts found"}},
			},
			"statistics": map[string]any{"total": 2},
		})), nil
	})

	components := []internal.Record{{"mpn": "A"}, {"mpn": "B"}, {"mpn": "C"}}
	results, stats, err := NewRemoteMatcher(client).MatchMany(context.Background(), components)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("len=%d", len(results))
	}
	if stats.Total != 3 || stats.MediumConfidence != 1 || stats.NoMatch != 2 {
		t.Fatalf("stats=%+v", stats)
	}
	if results[1].Warnings[0] != "No parts found" {
		t.Fatalf("warnings=%v", results[1].Warnings)
	}
	if results[2].Component["mpn"] != "C" {
		t.Fatalf("component not preserved: %v", results[2].Component)
	}
}

func TestRetryAfterParsing(t *testing.T) {
	if got := retryAfter(""); got != defaultRetryAfter {
		t.Fatalf("got %s", got)
	}
	if got := retryAfter("3"); got != 3*time.Second {
		t.Fatalf("got %s", got)
	}
	if got := retryAfter("soon"); got != defaultRetryAfter {
		t.Fatalf("got %s", got)
	}
}
