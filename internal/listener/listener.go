// Package listener polls the BOM inbox, runs new e-mails through the
// pipeline and optionally exports each job.
package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"partsmatch/internal/config"
	"partsmatch/internal/connectors"
	gmailconnector "partsmatch/internal/connectors/gmail"
	imapconnector "partsmatch/internal/connectors/imap"
	"partsmatch/internal/pipeline"
	"partsmatch/internal/storage"
)

type Service struct {
	db       *storage.DB
	cfg      config.Config
	pipeline *pipeline.Service
	logger   *zap.Logger

	// newConnector is swapped in tests.
	newConnector func(ctx context.Context, provider string) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, proc *pipeline.Service, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{db: db, cfg: cfg, pipeline: proc, logger: logger.Named("listener")}
	s.newConnector = s.makeConnector
	return s
}

// Run polls until ctx is cancelled. A failed cycle is logged and retried at
// the next interval.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func (s *Service) RunCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.newConnector(ctx, provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.logger)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return err
	}

	processedEmails, processedLines, err := s.pipeline.ProcessPending(ctx, s.cfg.MailListenerProcessBatch, provider)
	if err != nil {
		return err
	}

	exported := 0
	if s.cfg.MailListenerAutoExport {
		if exported, err = s.exportProcessed(provider); err != nil {
			return err
		}
	}

	s.logger.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", fetchResult.Fetched),
		zap.Int("stored", fetchResult.Stored),
		zap.Int("processed", processedEmails),
		zap.Int("lines", processedLines),
		zap.Int("exported", exported),
	)
	return nil
}

// exportProcessed writes one workbook per job of every processed e-mail and
// marks the e-mail exported.
func (s *Service) exportProcessed(provider string) (int, error) {
	emails, err := s.db.ListEmailsByStatus(pipeline.EmailProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	for _, email := range emails {
		if email.Provider != provider {
			continue
		}
		jobs, err := s.db.ListJobsByEmail(email.ID)
		if err != nil {
			return exported, err
		}
		for _, job := range jobs {
			if job.Status != pipeline.JobDone {
				continue
			}
			filename := fmt.Sprintf("%d_%s_%s", email.ID, sanitizeMessageID(email.MessageID), pipeline.ExportFileName(job.ID))
			outputPath := filepath.Join(s.cfg.OutputDir, "listener", filename)
			n, err := s.pipeline.ExportJob(job.ID, outputPath)
			if err != nil {
				return exported, err
			}
			if n > 0 {
				exported++
				s.logger.Info("job exported", zap.String("job_id", job.ID), zap.String("path", outputPath))
			}
		}
		_ = s.db.UpdateEmailStatus(email.ID, pipeline.EmailExported)
	}
	return exported, nil
}

func (s *Service) makeConnector(ctx context.Context, provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

func sanitizeMessageID(input string) string {
	repl := strings.NewReplacer("<", "", ">", "", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "@", "_at_")
	out := repl.Replace(input)
	if len(out) > 80 {
		out = out[:80]
	}
	return out
}
