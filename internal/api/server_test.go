package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsmatch/internal"
	"partsmatch/internal/catalog"
	"partsmatch/internal/config"
	"partsmatch/internal/matcher"
)

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

func strp(s string) *string { return &s }

func testIndex() *catalog.Index {
	return catalog.BuildIndex([]internal.PartRecord{
		{
			SKU: "SP-1", MPN: strp("RC0603FR-0710KL"), Value: strp("10k"), Footprint: strp("0603"),
			Record: internal.Record{"sku": "SP-1", "mpn": "RC0603FR-0710KL", "value": "10k", "footprint": "0603"},
		},
		{
			SKU: "SP-2", MPN: strp("GRM188R71H104KA93D"), Value: strp("100nF"), Footprint: strp("0603"),
			Record: internal.Record{"sku": "SP-2", "mpn": "GRM188R71H104KA93D", "value": "100nF", "footprint": "0603"},
		},
	})
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	engine, err := matcher.NewEngine(matcher.DefaultWeights())
	require.NoError(t, err)
	return NewServer(engine, opts...)
}

func do(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t).Handler()

	rec, _ := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec, _ = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMatchRanksCandidates(t *testing.T) {
	h := newTestServer(t).Handler()
	body := map[string]any{
		"component": map[string]any{"mpn": "RC0603FR-0710KL", "value": "10k", "footprint": "0603"},
		"candidates": []map[string]any{
			{"sku": "B", "mpn": "RC0805FR-0710KL", "value": "10k", "footprint": "0805"},
			{"sku": "A", "mpn": "RC0603FR-0710KL", "value": "10k", "footprint": "0603"},
			{"sku": "Z", "description": "unrelated"},
		},
	}

	rec, env := do(t, h, http.MethodPost, "/api/v1/components/match", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", env.Status)

	var data struct {
		Matches []matchView `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Matches, 2)
	assert.Equal(t, "A", data.Matches[0].Part["sku"])
	assert.Equal(t, 1.0, data.Matches[0].Confidence)
	assert.Equal(t, "high", data.Matches[0].Classification)
	assert.Equal(t, 1.0, data.Matches[0].Breakdown["footprint"])
	assert.Greater(t, data.Matches[0].Confidence, data.Matches[1].Confidence)
}

func TestRequestErrors(t *testing.T) {
	h := newTestServer(t).Handler()

	cases := []struct {
		name, method, target string
		body                 any
		status               int
	}{
		{"missing value", http.MethodGet, "/api/v1/values/normalize", nil, http.StatusBadRequest},
		{"invalid json", http.MethodPost, "/api/v1/components/match", "{", http.StatusBadRequest},
		{"missing component", http.MethodPost, "/api/v1/components/match", map[string]any{}, http.StatusBadRequest},
		{"no search", http.MethodGet, "/api/v1/parts/search?q=10k", nil, http.StatusServiceUnavailable},
		{"no part store", http.MethodGet, "/api/v1/parts/SP-1", nil, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := do(t, h, tc.method, tc.target, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "error", env.Status)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestFootprintCompatible(t *testing.T) {
	h := newTestServer(t).Handler()
	rec, env := do(t, h, http.MethodGet, "/api/v1/footprints/Resistor_SMD:R_0603_1608Metric/compatible?with=1608", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var data struct {
		Footprint       struct{ Canonical string } `json:"footprint"`
		Compatible      bool                       `json:"compatible"`
		EquivalentSizes []string                   `json:"equivalent_sizes"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "0603", data.Footprint.Canonical)
	assert.True(t, data.Compatible)
	assert.Contains(t, data.EquivalentSizes, "1608")
}

// The catalog client must be able to use this server as its parts catalog.
func TestCatalogClientAgainstServer(t *testing.T) {
	index := testIndex()
	parts := func(_ context.Context, sku string) (internal.Record, error) {
		for _, r := range index.Search(sku, 1) {
			if r["sku"] == sku {
				return r, nil
			}
		}
		return nil, nil
	}
	srv := httptest.NewServer(newTestServer(t,
		WithSearch(index.SearchFunc(10)),
		WithPartLookup(parts),
		WithAPIKey("secret"),
	).Handler())
	defer srv.Close()

	cfg := config.Config{
		PartsAPIBaseURL:   srv.URL + "/api/v1",
		PartsAPIKey:       "secret",
		PartsRateLimitRPS: 1000,
		PartsTimeoutMs:    5000,
		PartsMaxRetries:   1,
	}
	client := catalog.NewClient(cfg, nil)
	ctx := context.Background()

	found, err := client.SearchParts(ctx, "RC0603FR-0710KL", 10)
	require.NoError(t, err)
	require.NotEmpty(t, found.Parts)
	assert.Equal(t, "SP-1", found.Parts[0]["sku"])

	part, err := client.GetPart(ctx, "SP-2")
	require.NoError(t, err)
	assert.Equal(t, "GRM188R71H104KA93D", part["mpn"])

	results, stats, err := client.MatchComponentsBatch(ctx, []internal.Record{
		{"mpn": "RC0603FR-0710KL", "value": "10k"},
		{"mpn": "NOPE"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsHighConfidence())
	assert.True(t, results[1].IsNoMatch())
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.NoMatch)

	single, err := catalog.NewRemoteMatcher(client).MatchOne(ctx, internal.Record{"value": "100nF", "footprint": "0603"})
	require.NoError(t, err)
	assert.Equal(t, "SP-2", single.Part["sku"])

	parsed, err := client.NormalizeValue(ctx, "4k7")
	require.NoError(t, err)
	require.NotNil(t, parsed.Numeric)
	assert.InDelta(t, 4700, *parsed.Numeric, 1e-9)

	cfg.PartsAPIKey = "wrong"
	_, err = catalog.NewClient(cfg, nil).SearchParts(ctx, "10k", 5)
	assert.ErrorIs(t, err, catalog.ErrUnauthorized)
}
