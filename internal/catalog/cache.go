package catalog

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/metrics"
	"partsmatch/internal/storage"
)

type PartSearcher interface {
	SearchParts(ctx context.Context, query string, limit int) (SearchResult, error)
}

// CachedSearcher answers repeated queries from the search_cache table and
// stores every part it sees so the offline Index grows with use.
type CachedSearcher struct {
	db     *storage.DB
	remote PartSearcher
	limit  int
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewCachedSearcher(db *storage.DB, remote PartSearcher, limit int, ttl time.Duration, logger *zap.Logger) *CachedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSearcher{db: db, remote: remote, limit: limit, ttl: ttl, logger: logger, now: time.Now}
}

func (s *CachedSearcher) Search(ctx context.Context, query string) ([]internal.Record, error) {
	key := cacheKey(query, s.limit)
	now := s.now()

	if s.ttl > 0 {
		payload, ok, err := s.db.GetCachedSearch(key, s.ttl, now)
		if err != nil {
			s.logger.Warn("search cache read failed", zap.String("query", query), zap.Error(err))
		} else if ok {
			var parts []internal.Record
			if err := json.Unmarshal(payload, &parts); err == nil {
				metrics.RecordCacheLookup(true)
				return parts, nil
			}
		}
	}
	metrics.RecordCacheLookup(false)

	result, err := s.remote.SearchParts(ctx, query, s.limit)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(result.Parts); err == nil {
		if err := s.db.PutCachedSearch(key, payload, now); err != nil {
			s.logger.Warn("search cache write failed", zap.String("query", query), zap.Error(err))
		}
	}
	if err := s.db.UpsertParts(toPartRecords(result.Parts)); err != nil {
		s.logger.Warn("storing searched parts failed", zap.String("query", query), zap.Error(err))
	}
	return result.Parts, nil
}

func cacheKey(query string, limit int) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " ")) + "|" + strconv.Itoa(limit)
}

func toPartRecords(raw []internal.Record) []internal.PartRecord {
	out := make([]internal.PartRecord, 0, len(raw))
	for _, r := range raw {
		p, err := toPartRecord(r)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
