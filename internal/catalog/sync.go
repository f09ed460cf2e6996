package catalog

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"partsmatch/internal/storage"
)

// SyncService pulls search results for a list of queries into the parts
// table so matching can run offline.
type SyncService struct {
	db     *storage.DB
	client PartSearcher
	limit  int
	logger *zap.Logger
}

type SyncResult struct {
	Queries int
	Parts   int
	Failed  int
}

func NewSyncService(db *storage.DB, client PartSearcher, limit int, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{db: db, client: client, limit: limit, logger: logger}
}

// Sync keeps going past failed queries and reports them in Failed. It stops
// on the first storage error or when ctx is done.
func (s *SyncService) Sync(ctx context.Context, queries []string) (SyncResult, error) {
	var res SyncResult
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Queries++
		found, err := s.client.SearchParts(ctx, q, s.limit)
		if err != nil {
			res.Failed++
			s.logger.Warn("catalog sync query failed", zap.String("query", q), zap.Error(err))
			continue
		}
		parts := toPartRecords(found.Parts)
		if len(parts) == 0 {
			continue
		}
		if err := s.db.UpsertParts(parts); err != nil {
			return res, fmt.Errorf("store parts for %q: %w", q, err)
		}
		res.Parts += len(parts)
	}
	_ = s.db.SetMetadata("catalog.last_sync", time.Now().UTC().Format(time.RFC3339))
	s.logger.Info("catalog sync complete",
		zap.Int("queries", res.Queries), zap.Int("parts", res.Parts), zap.Int("failed", res.Failed))
	return res, nil
}
