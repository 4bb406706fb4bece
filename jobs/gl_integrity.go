package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// ErrIntegrityViolation is returned when a check finds broken invariants.
var ErrIntegrityViolation = errors.New("ledger integrity violated")

// IntegrityChecker is the part of the ledger the job needs.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) (accounting.IntegrityReport, error)
}

// IntegrityJob checks the ledger invariants on a schedule.
type IntegrityJob struct {
	Checker IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityJob initialises the integrity handler.
func NewIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle executes one integrity run. Violations are reported and not retried;
// check failures are returned so asynq retries them.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Checker == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload IntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger integrity payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := j.logger().With(slog.String("job", TaskLedgerIntegrity))
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	start := time.Now()

	report, err := j.Checker.CheckIntegrity(ctx)
	if err != nil {
		logger.Error("integrity check failed", slog.Any("error", err))
		return err
	}
	j.Metrics.ObserveIntegrity(report.Balanced(), len(report.UnbalancedEntries), len(report.BrokenReversals), report.CheckedAt)

	if !report.OK() {
		logger.Error("ledger integrity violated",
			slog.String("total_debit", accounting.FormatAmount(report.TotalDebit)),
			slog.String("total_credit", accounting.FormatAmount(report.TotalCredit)),
			slog.Any("unbalanced_entries", report.UnbalancedEntries),
			slog.Any("broken_reversals", report.BrokenReversals))
		return fmt.Errorf("%w: %d unbalanced, %d broken reversals: %w",
			ErrIntegrityViolation, len(report.UnbalancedEntries), len(report.BrokenReversals), asynq.SkipRetry)
	}
	logger.Info("ledger integrity ok",
		slog.String("total", accounting.FormatAmount(report.TotalDebit)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
