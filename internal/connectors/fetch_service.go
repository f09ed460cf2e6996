package connectors

import (
	"context"

	"go.uber.org/zap"

	"partsmatch/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     rawStore
	logger    *zap.Logger
}

const statusFetched = "fetched"

type FetchResult struct {
	Fetched        int
	Stored         int
	Known          int
	WithAttachment int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     rawStore{dir: rawMailDir},
		logger:    logger,
	}
}

// FetchAndStore saves new messages as fetched. Messages already stored keep
// their status so a processed BOM is not queued twice.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		existing, err := s.db.GetEmailByProviderMessageID(msg.Provider, msg.MessageID)
		if err != nil {
			return res, err
		}
		if existing != nil {
			res.Known++
			continue
		}
		hash, path, err := s.store.save(msg.Provider, msg.Raw)
		if err != nil {
			return res, err
		}
		if _, err := s.db.UpsertEmail(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, path, statusFetched); err != nil {
			return res, err
		}
		res.Stored++
		if names := BOMAttachments(msg.Raw); len(names) > 0 {
			res.WithAttachment++
			s.logger.Debug("stored BOM e-mail", zap.String("message_id", msg.MessageID), zap.Strings("attachments", names))
		}
	}

	s.logger.Info("mailbox fetched",
		zap.String("label", label),
		zap.Int("fetched", res.Fetched),
		zap.Int("stored", res.Stored),
		zap.Int("known", res.Known),
	)
	return res, nil
}
