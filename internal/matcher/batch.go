package matcher

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/footprint"
)

// SearchFunc returns catalog candidates for a free-text query.
type SearchFunc func(ctx context.Context, query string) ([]internal.Record, error)

type Statistics struct {
	Total             int     `json:"total"`
	HighConfidence    int     `json:"high_confidence"`
	MediumConfidence  int     `json:"medium_confidence"`
	LowConfidence     int     `json:"low_confidence"`
	NoMatch           int     `json:"no_match"`
	AverageConfidence float64 `json:"average_confidence"`
}

// BuildSearchQuery prefers the MPN, then the value plus the imperial chip
// size when the footprint has one, then the description. It returns "" when
// the record has none of them.
func BuildSearchQuery(rec internal.Record) string {
	if mpn, ok := FieldValue(rec, FactorMPN); ok {
		return mpn
	}
	if v, ok := FieldValue(rec, FactorValue); ok {
		parts := []string{v}
		if fp, ok := FieldValue(rec, FactorFootprint); ok {
			if size := footprint.Parse(fp).SizeImperial; size != "" {
				parts = append(parts, size)
			}
		}
		return strings.Join(parts, " ")
	}
	if desc, ok := FieldValue(rec, FactorDescription); ok {
		return desc
	}
	return ""
}

// MatchBatch matches every component against the candidates returned by
// search. Failures stay with their item: a search error, a panic inside
// search or a cancelled context turns that item into a no-match carrying the
// reason, and the batch always returns one result per component.
func (e *Engine) MatchBatch(ctx context.Context, components []internal.Record, search SearchFunc) ([]MatchResult, Statistics) {
	results := make([]MatchResult, 0, len(components))
	for i, component := range components {
		results = append(results, e.matchOne(ctx, i, component, search))
	}
	return results, CalculateStatistics(results)
}

func (e *Engine) matchOne(ctx context.Context, idx int, component internal.Record, search SearchFunc) MatchResult {
	if err := ctx.Err(); err != nil {
		return noMatch(component, fmt.Sprintf("Search skipped: %v", err))
	}
	query := BuildSearchQuery(component)
	if query == "" {
		return noMatch(component, "Could not build search query")
	}
	if search == nil {
		return noMatch(component, "Search failed: no search function configured")
	}

	candidates, err := safeSearch(ctx, search, query)
	if err != nil {
		e.logger.Warn("catalog search failed",
			zap.Int("item", idx),
			zap.String("query", query),
			zap.Error(err),
		)
		return noMatch(component, fmt.Sprintf("Search failed: %v", err))
	}
	return e.Match(component, candidates)
}

func safeSearch(ctx context.Context, search SearchFunc, query string) (candidates []internal.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search panicked: %v", r)
		}
	}()
	return search(ctx, query)
}

func noMatch(component internal.Record, warning string) MatchResult {
	return MatchResult{
		Component: component,
		Details:   map[Factor]float64{},
		Warnings:  []string{warning},
	}
}

func CalculateStatistics(results []MatchResult) Statistics {
	stats := Statistics{Total: len(results)}
	if len(results) == 0 {
		return stats
	}
	sum := 0.0
	for _, r := range results {
		switch r.Classification() {
		case ClassHigh:
			stats.HighConfidence++
		case ClassMedium:
			stats.MediumConfidence++
		case ClassLow:
			stats.LowConfidence++
		case ClassNoMatch:
			stats.NoMatch++
		}
		sum += r.Confidence
	}
	stats.AverageConfidence = sum / float64(len(results))
	return stats
}

// MatchComponentsBatch runs MatchBatch with weights, or with DefaultWeights
// when weights is nil or invalid.
func MatchComponentsBatch(ctx context.Context, components []internal.Record, search SearchFunc, weights Weights) ([]MatchResult, Statistics) {
	return defaultEngine(weights).MatchBatch(ctx, components, search)
}
