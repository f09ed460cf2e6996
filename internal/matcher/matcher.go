package matcher

import (
	"context"

	"partsmatch/internal"
)

// Matcher resolves BOM lines to catalog parts. The local engine and the
// remote catalog service both implement it with the same confidence buckets.
type Matcher interface {
	MatchOne(ctx context.Context, component internal.Record) (MatchResult, error)
	MatchMany(ctx context.Context, components []internal.Record) ([]MatchResult, Statistics, error)
}

type LocalMatcher struct {
	engine *Engine
	search SearchFunc
}

func NewLocalMatcher(engine *Engine, search SearchFunc) *LocalMatcher {
	if engine == nil {
		engine = defaultEngine(nil)
	}
	return &LocalMatcher{engine: engine, search: search}
}

func (m *LocalMatcher) MatchOne(ctx context.Context, component internal.Record) (MatchResult, error) {
	return m.engine.matchOne(ctx, 0, component, m.search), nil
}

func (m *LocalMatcher) MatchMany(ctx context.Context, components []internal.Record) ([]MatchResult, Statistics, error) {
	results, stats := m.engine.MatchBatch(ctx, components, m.search)
	return results, stats, nil
}
