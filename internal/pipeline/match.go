package pipeline

import (
	"context"

	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/catalog"
	"partsmatch/internal/config"
	"partsmatch/internal/matcher"
	"partsmatch/internal/storage"
)

// NewEngine builds the scoring engine from the configured weights and value
// tolerance.
func NewEngine(cfg config.Config, logger *zap.Logger) (*matcher.Engine, error) {
	return matcher.NewEngine(cfg.MatchWeights(),
		matcher.WithValueTolerance(cfg.MatchValueTolPct),
		matcher.WithLogger(logger),
	)
}

// NewSearch returns the candidate search for cfg. Without an API key only
// the stored parts are searched. With one, the cached catalog search is used
// and the local index answers when the catalog fails.
func NewSearch(cfg config.Config, db *storage.DB, logger *zap.Logger) (matcher.SearchFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	index, err := catalog.LoadIndex(db)
	if err != nil {
		return nil, err
	}
	local := index.SearchFunc(cfg.PartsSearchLimit)
	if cfg.PartsAPIKey == "" {
		logger.Info("searching stored parts only", zap.Int("parts", index.Len()))
		return local, nil
	}
	client := catalog.NewClient(cfg, logger)
	cached := catalog.NewCachedSearcher(db, client, cfg.PartsSearchLimit, cfg.CacheExpiry, logger)
	return withFallback(cached.Search, local, logger), nil
}

// NewMatcher picks the matcher for cfg. MATCH_USE_API with an API key hands
// scoring to the catalog service; otherwise the local engine scores
// candidates from NewSearch.
func NewMatcher(cfg config.Config, db *storage.DB, logger *zap.Logger) (matcher.Matcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine, err := NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	if cfg.MatchUseAPI && cfg.PartsAPIKey != "" {
		return catalog.NewRemoteMatcher(catalog.NewClient(cfg, logger)), nil
	}
	search, err := NewSearch(cfg, db, logger)
	if err != nil {
		return nil, err
	}
	return matcher.NewLocalMatcher(engine, search), nil
}

func withFallback(primary, fallback matcher.SearchFunc, logger *zap.Logger) matcher.SearchFunc {
	return func(ctx context.Context, query string) ([]internal.Record, error) {
		got, err := primary(ctx, query)
		if err == nil {
			return got, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		logger.Warn("catalog search failed, using local index", zap.String("query", query), zap.Error(err))
		return fallback(ctx, query)
	}
}
