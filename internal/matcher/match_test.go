package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partsmatch/internal"
)

func TestDefaultWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, f := range Factors {
		sum += DefaultWeights()[f]
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	require.NoError(t, DefaultWeights().Validate())
}

func TestWeightsValidate(t *testing.T) {
	cases := []struct {
		name    string
		weights Weights
	}{
		{name: "missing factor", weights: Weights{FactorMPN: 1}},
		{name: "negative", weights: Weights{FactorMPN: 0.6, FactorValue: -0.1, FactorFootprint: 0.3, FactorManufacturer: 0.1, FactorDescription: 0.1}},
		{name: "sum too large", weights: Weights{FactorMPN: 0.5, FactorValue: 0.5, FactorFootprint: 0.5, FactorManufacturer: 0, FactorDescription: 0}},
		{name: "all zero", weights: Weights{FactorMPN: 0, FactorValue: 0, FactorFootprint: 0, FactorManufacturer: 0, FactorDescription: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.weights.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidWeights))

			_, err = NewEngine(tc.weights)
			assert.ErrorIs(t, err, ErrInvalidWeights)
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("rc0603fr-0710kl", " RC0603FR-0710KL "))
	assert.InDelta(t, 0.75, Similarity("ABCD", "ABCE"), 1e-12)
	assert.Equal(t, 0.0, Similarity("ABC123", "XYZ999"))
	assert.Equal(t, 0.0, Similarity("", "ABC"))
	s := Similarity("Yageo", "YAGEO Corporation")
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 1.0)
}

func TestFieldValue(t *testing.T) {
	rec := internal.Record{"value": "  ", "Value": "10k", "comment": "1k"}
	v, ok := FieldValue(rec, FactorValue)
	require.True(t, ok)
	assert.Equal(t, "10k", v)

	rec = internal.Record{"Manufacturer Part Number": "LM358DR", "Part Number": "X"}
	v, ok = FieldValue(rec, FactorMPN)
	require.True(t, ok)
	assert.Equal(t, "X", v)

	rec = internal.Record{"Case": 805.0}
	v, ok = FieldValue(rec, FactorFootprint)
	require.True(t, ok)
	assert.Equal(t, "805", v)

	_, ok = FieldValue(internal.Record{"mfr": nil}, FactorManufacturer)
	assert.False(t, ok)
}

func TestMatchExactPart(t *testing.T) {
	bom := internal.Record{"MPN": "RC0603FR-0710KL", "Value": "10k", "Footprint": "0603", "Manufacturer": "Yageo"}
	exact := internal.Record{"sku": "B", "mpn": "RC0603FR-0710KL", "value": "10kΩ", "package": "1608", "manufacturer": "YAGEO"}
	other := internal.Record{"sku": "A", "mpn": "RC0805FR-0710KL", "value": "10k", "package": "0805", "manufacturer": "Yageo"}

	res := MatchComponent(bom, []internal.Record{other, exact}, nil)
	require.NotNil(t, res.Part)
	assert.Equal(t, "B", res.Part["sku"])
	assert.GreaterOrEqual(t, res.Confidence, 0.9)
	assert.True(t, res.IsHighConfidence())
	assert.Empty(t, res.Warnings)
	for _, f := range []Factor{FactorMPN, FactorValue, FactorFootprint, FactorManufacturer} {
		s, ok := res.Score(f)
		require.True(t, ok, f)
		assert.Equal(t, 1.0, s, f)
	}
	_, ok := res.Score(FactorDescription)
	assert.False(t, ok)
}

func TestMatchNoCandidates(t *testing.T) {
	res := MatchComponent(internal.Record{"MPN": "X"}, nil, nil)
	assert.Nil(t, res.Part)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, []string{"No candidate parts provided"}, res.Warnings)
	assert.Equal(t, ClassNoMatch, res.Classification())
}

func TestMatchNothingComparable(t *testing.T) {
	res := MatchComponent(internal.Record{"Value": "10k"}, []internal.Record{{"mpn": "X"}}, nil)
	assert.Nil(t, res.Part)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Len(t, res.Warnings, 1)
}

func TestMatchFootprintMismatch(t *testing.T) {
	bom := internal.Record{"Value": "10k", "Footprint": "0402", "MPN": "GENERIC"}
	wrong := []internal.Record{
		{"mpn": "GENERIC", "value": "10k", "footprint": "0603"},
		{"mpn": "GENERIC", "value": "10k", "footprint": "0603", "description": "resistor"},
	}
	right := []internal.Record{{"mpn": "GENERIC", "value": "10k", "footprint": "1005"}}

	bad := MatchComponent(bom, wrong, nil)
	good := MatchComponent(bom, right, nil)

	require.NotNil(t, bad.Part)
	s, ok := bad.Score(FactorFootprint)
	require.True(t, ok)
	assert.Equal(t, 0.0, s)
	assert.Contains(t, bad.Warnings, "Footprint '0402' may not be compatible")
	assert.InDelta(t, 0.65/0.85, bad.Confidence, 1e-9)

	assert.Equal(t, 1.0, good.Confidence)
	assert.Less(t, bad.Confidence, good.Confidence)
}

func TestMatchWarnings(t *testing.T) {
	bom := internal.Record{"MPN": "ABC123", "Value": "10k", "Footprint": "SOT-23"}
	cand := internal.Record{"mpn": "ABX999", "value": "47k"}

	res := MatchComponent(bom, []internal.Record{cand}, nil)
	require.NotNil(t, res.Part)
	assert.Equal(t, []string{
		"MPN 'ABC123' did not match exactly",
		"Footprint 'SOT-23' may not be compatible",
		"Value '10k' did not match",
	}, res.Warnings)
}

func TestMatchValuePartialCredit(t *testing.T) {
	bom := internal.Record{"value": "10k"}

	res := MatchComponent(bom, []internal.Record{{"value": "15k"}}, nil)
	assert.InDelta(t, (10.0/15.0)*PartialValueCredit, res.Confidence, 1e-9)

	res = MatchComponent(bom, []internal.Record{{"value": "30k"}}, nil)
	assert.Nil(t, res.Part)

	res = MatchComponent(bom, []internal.Record{{"value": "10.3k"}}, nil)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestMatchTieKeepsFirst(t *testing.T) {
	bom := internal.Record{"mpn": "LM358"}
	cands := []internal.Record{
		{"sku": "first", "mpn": "LM358"},
		{"sku": "second", "mpn": "lm358"},
	}
	res := MatchComponent(bom, cands, nil)
	require.NotNil(t, res.Part)
	assert.Equal(t, "first", res.Part["sku"])
}

func TestMatchCustomWeights(t *testing.T) {
	weights := Weights{FactorMPN: 0, FactorValue: 1, FactorFootprint: 0, FactorManufacturer: 0, FactorDescription: 0}
	engine, err := NewEngine(weights)
	require.NoError(t, err)

	res := engine.Match(internal.Record{"mpn": "AAA", "value": "1u"}, []internal.Record{{"mpn": "ZZZ", "value": "1µF"}})
	assert.Equal(t, 1.0, res.Confidence)

	invalid := Weights{FactorMPN: 3}
	res = MatchComponent(internal.Record{"mpn": "AAA"}, []internal.Record{{"mpn": "AAA"}}, invalid)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestClassification(t *testing.T) {
	part := internal.Record{"mpn": "X"}
	cases := []struct {
		res  MatchResult
		want Classification
	}{
		{res: MatchResult{Part: part, Confidence: 0.95}, want: ClassHigh},
		{res: MatchResult{Part: part, Confidence: 0.80}, want: ClassHigh},
		{res: MatchResult{Part: part, Confidence: 0.7999}, want: ClassMedium},
		{res: MatchResult{Part: part, Confidence: 0.50}, want: ClassMedium},
		{res: MatchResult{Part: part, Confidence: 0.49}, want: ClassLow},
		{res: MatchResult{Part: nil, Confidence: 0}, want: ClassNoMatch},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.res.Classification())
	}
}

func TestBuildSearchQuery(t *testing.T) {
	assert.Equal(t, "LM358DR", BuildSearchQuery(internal.Record{"MPN": "LM358DR", "Value": "x"}))
	assert.Equal(t, "100nF 0603", BuildSearchQuery(internal.Record{"Value": "100nF", "Footprint": "Capacitor_SMD:C_0603_1608Metric"}))
	assert.Equal(t, "100nF 0402", BuildSearchQuery(internal.Record{"Value": "100nF", "Footprint": "1005"}))
	assert.Equal(t, "10k", BuildSearchQuery(internal.Record{"Value": "10k", "Footprint": "SOT-23"}))
	assert.Equal(t, "op amp", BuildSearchQuery(internal.Record{"Description": "op amp"}))
	assert.Equal(t, "", BuildSearchQuery(internal.Record{"Reference": "R1"}))
}

func TestMatchBatch(t *testing.T) {
	components := []internal.Record{
		{"MPN": "LM358DR", "Footprint": "SO-8"},
		{"MPN": "FAIL"},
		{"Reference": "J1"},
		{"MPN": "PANIC"},
		{"MPN": "EMPTY"},
	}
	search := func(_ context.Context, query string) ([]internal.Record, error) {
		switch query {
		case "FAIL":
			return nil, errors.New("catalog unavailable")
		case "PANIC":
			panic("boom")
		case "EMPTY":
			return nil, nil
		default:
			return []internal.Record{{"mpn": query, "package": "SOIC-8"}}, nil
		}
	}

	results, stats := MatchComponentsBatch(context.Background(), components, search, nil)
	require.Len(t, results, len(components))

	assert.True(t, results[0].IsHighConfidence())
	assert.Equal(t, []string{"Search failed: catalog unavailable"}, results[1].Warnings)
	assert.True(t, results[1].IsNoMatch())
	assert.Equal(t, []string{"Could not build search query"}, results[2].Warnings)
	require.Len(t, results[3].Warnings, 1)
	assert.Contains(t, results[3].Warnings[0], "search panicked: boom")
	assert.Equal(t, []string{"No candidate parts provided"}, results[4].Warnings)

	assert.Equal(t, Statistics{
		Total:             5,
		HighConfidence:    1,
		NoMatch:           4,
		AverageConfidence: 0.2,
	}, stats)
	for i, r := range results {
		assert.Equal(t, components[i], r.Component)
	}
}

func TestMatchBatchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	search := func(context.Context, string) ([]internal.Record, error) {
		calls++
		return nil, nil
	}
	results, stats := MatchComponentsBatch(ctx, []internal.Record{{"mpn": "A"}, {"mpn": "B"}}, search, nil)
	assert.Len(t, results, 2)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 2, stats.NoMatch)
	assert.Contains(t, results[0].Warnings[0], "Search skipped")
}

func TestMatchBatchEmpty(t *testing.T) {
	results, stats := MatchComponentsBatch(context.Background(), nil, nil, nil)
	assert.Empty(t, results)
	assert.Equal(t, Statistics{}, stats)
}

func TestCalculateStatistics(t *testing.T) {
	part := internal.Record{"mpn": "X"}
	stats := CalculateStatistics([]MatchResult{
		{Part: part, Confidence: 0.9},
		{Part: part, Confidence: 0.6},
		{Part: part, Confidence: 0.3},
		{Part: nil, Confidence: 0},
	})
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.HighConfidence)
	assert.Equal(t, 1, stats.MediumConfidence)
	assert.Equal(t, 1, stats.LowConfidence)
	assert.Equal(t, 1, stats.NoMatch)
	assert.InDelta(t, 0.45, stats.AverageConfidence, 1e-12)
}

func TestLocalMatcher(t *testing.T) {
	search := func(_ context.Context, query string) ([]internal.Record, error) {
		return []internal.Record{{"mpn": query}}, nil
	}
	m := NewLocalMatcher(nil, search)
	res, err := m.MatchOne(context.Background(), internal.Record{"mpn": "NE555"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)

	results, stats, err := m.MatchMany(context.Background(), []internal.Record{{"mpn": "A"}, {}})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 1, stats.HighConfidence)
	assert.Equal(t, 1, stats.NoMatch)
}
