package pipeline

import (
	"bytes"
	"context"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/bom"
)

const (
	EmailFetched   = "fetched"
	EmailSkipped   = "skipped"
	EmailNoBOM     = "no_bom"
	EmailProcessed = "processed"
	EmailExported  = "exported"
)

type ProcessResult struct {
	EmailID   int
	JobID     string
	Processed int
}

func (s *Service) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (ProcessResult, error) {
	email, err := s.db.MustEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return ProcessResult{}, err
	}
	return s.ProcessEmail(ctx, email)
}

// ProcessPending turns up to limit fetched e-mails into BOM jobs. An empty
// provider processes every provider.
func (s *Service) ProcessPending(ctx context.Context, limit int, provider string) (int, int, error) {
	pending, err := s.db.ListEmailsByStatus(EmailFetched, limit)
	if err != nil {
		return 0, 0, err
	}
	processedEmails := 0
	processedLines := 0
	for _, email := range pending {
		if provider != "" && email.Provider != provider {
			continue
		}
		if err := ctx.Err(); err != nil {
			return processedEmails, processedLines, err
		}
		res, err := s.ProcessEmail(ctx, email)
		if err != nil {
			return processedEmails, processedLines, err
		}
		processedEmails++
		processedLines += res.Processed
	}
	return processedEmails, processedLines, nil
}

// ProcessEmail reads the stored message, drops it when it does not look like
// a BOM and otherwise runs its BOM lines as a job. Earlier jobs of the same
// message are replaced.
func (s *Service) ProcessEmail(ctx context.Context, email internal.EmailRow) (ProcessResult, error) {
	start := time.Now()
	log := s.logger.With(zap.Int("email_id", email.ID), zap.String("message_id", email.MessageID))

	raw, err := os.ReadFile(email.RawRef)
	if err != nil {
		return ProcessResult{}, err
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return ProcessResult{}, err
	}
	var attachmentNames []string
	for _, att := range env.Attachments {
		attachmentNames = append(attachmentNames, strings.TrimSpace(att.FileName))
	}

	if err := s.db.ClearEmailJobs(email.ID); err != nil {
		return ProcessResult{}, err
	}

	detect := DetectBOM(firstNonEmpty(env.GetHeader("Subject"), email.Subject), env.Text, env.HTML, attachmentNames, s.cfg.DetectBOMThreshold)
	if !detect.IsBOM {
		log.Info("email skipped", zap.Float64("score", detect.Score))
		_ = s.db.UpdateEmailStatus(email.ID, EmailSkipped)
		_ = s.db.InsertRun(uuid.NewString(), "", map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}, map[string]int{"lines": 0})
		return ProcessResult{EmailID: email.ID}, nil
	}

	lines, _, err := bom.Read("message.eml", raw)
	if err != nil {
		return ProcessResult{}, err
	}
	if len(lines) == 0 {
		log.Info("no BOM rows found", zap.Float64("score", detect.Score))
		_ = s.db.UpdateEmailStatus(email.ID, EmailNoBOM)
		return ProcessResult{EmailID: email.ID}, nil
	}

	emailID := email.ID
	job, err := s.RunLines(ctx, "email:"+email.Provider, &emailID, lines, 1)
	if err != nil {
		return ProcessResult{}, err
	}
	if err := s.db.UpdateEmailStatus(email.ID, EmailProcessed); err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{EmailID: email.ID, JobID: job.JobID, Processed: len(lines)}, nil
}
