package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"partsmatch/internal"
	"partsmatch/internal/bom"
	"partsmatch/internal/config"
	"partsmatch/internal/matcher"
	"partsmatch/internal/metrics"
	"partsmatch/internal/pricing"
	"partsmatch/internal/storage"
	"partsmatch/internal/util"
)

const (
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Service runs BOM jobs: lines are matched, priced and stored under a new
// job id together with a run record.
type Service struct {
	db      *storage.DB
	cfg     config.Config
	matcher matcher.Matcher
	logger  *zap.Logger
}

func NewService(db *storage.DB, cfg config.Config, m matcher.Matcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, cfg: cfg, matcher: m, logger: logger}
}

type JobResult struct {
	JobID      string                `json:"job_id"`
	TraceID    string                `json:"trace_id"`
	Info       bom.Info              `json:"bom"`
	Results    []matcher.MatchResult `json:"results"`
	Statistics matcher.Statistics    `json:"statistics"`
	Cost       pricing.Summary       `json:"cost"`
}

// RunFile reads a BOM file and runs it as a job for boards assemblies.
func (s *Service) RunFile(ctx context.Context, path string, boards int) (JobResult, error) {
	lines, info, err := bom.ReadFile(path)
	if err != nil {
		return JobResult{}, err
	}
	res, err := s.RunLines(ctx, "file:"+info.FileType, nil, lines, boards)
	res.Info = info
	return res, err
}

// RunLines matches lines and persists the job. emailID links the job to the
// message it came from.
func (s *Service) RunLines(ctx context.Context, source string, emailID *int, lines []internal.BOMLine, boards int) (JobResult, error) {
	if s.matcher == nil {
		return JobResult{}, fmt.Errorf("pipeline: no matcher configured")
	}
	if boards < 1 {
		boards = 1
	}
	start := time.Now()
	res := JobResult{JobID: uuid.NewString(), TraceID: uuid.NewString()}
	log := s.logger.With(zap.String("job_id", res.JobID), zap.String("source", source))

	job := internal.JobRow{ID: res.JobID, EmailID: emailID, Source: source, Boards: boards, Status: JobRunning}
	if err := s.db.CreateJob(job); err != nil {
		return res, err
	}

	components := bom.Records(lines)
	matchStart := time.Now()
	results, stats, err := s.matcher.MatchMany(ctx, components)
	if err != nil {
		_ = s.db.UpdateJobStatus(res.JobID, JobFailed)
		log.Error("match failed", zap.Error(err))
		return res, err
	}
	matchDur := time.Since(matchStart)
	metrics.RecordBatch(source, matchDur)

	priceLines := make([]pricing.Line, 0, len(lines))
	for i, line := range lines {
		result := results[i]
		metrics.RecordMatch(source, string(result.Classification()), result.Confidence)

		lineID, err := s.db.InsertBOMLine(res.JobID, line)
		if err != nil {
			_ = s.db.UpdateJobStatus(res.JobID, JobFailed)
			return res, err
		}

		pl := pricing.Line{Reference: lineRef(line), Qty: 1, Candidate: result.Part}
		if line.Qty != nil {
			pl.Qty = *line.Qty
		}
		priceLines = append(priceLines, pl)

		var unit, extended *string
		if cost, ok := pricing.Cost(pl, boards); ok {
			unit = util.StringPtr(cost.UnitPrice.String())
			extended = util.StringPtr(cost.LineTotal.StringFixed(2))
		}
		if err := s.db.InsertMatch(lineID, result, unit, extended); err != nil {
			_ = s.db.UpdateJobStatus(res.JobID, JobFailed)
			return res, err
		}
	}

	res.Results = results
	res.Statistics = stats
	res.Cost = pricing.BOMCost(priceLines, boards)

	if err := s.db.UpdateJobStatus(res.JobID, JobDone); err != nil {
		return res, err
	}
	_ = s.db.InsertRun(res.TraceID, res.JobID,
		map[string]float64{"matchMs": float64(matchDur.Milliseconds()), "totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"lines": len(lines), "high": stats.HighConfidence, "medium": stats.MediumConfidence, "low": stats.LowConfidence, "noMatch": stats.NoMatch, "unpriced": res.Cost.Unpriced})

	log.Info("job done",
		zap.Int("lines", len(lines)),
		zap.Int("high", stats.HighConfidence),
		zap.Int("no_match", stats.NoMatch),
		zap.Float64("avg_confidence", stats.AverageConfidence),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

func lineRef(line internal.BOMLine) string {
	if line.Reference != nil {
		return *line.Reference
	}
	return fmt.Sprintf("line %d", line.LineNo)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
