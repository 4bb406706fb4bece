package accounting

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour. ReadTx runs fn
// against one consistent snapshot and must not be used for writes.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ReadTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort keeps the history of PIN-approved voids.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// CounterpartyResolver looks counterparties up by id. Missing ids must yield
// an error wrapping ErrCounterpartyNotFound.
type CounterpartyResolver interface {
	ResolveCounterparty(ctx context.Context, id int64) (CounterpartyRef, error)
}

// ReportCache stores rendered reports under a version that mutations bump.
type ReportCache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context) error
}

// MetricsPort receives ledger counters.
type MetricsPort interface {
	EntryPosted()
	VoidOutcome(outcome string)
}

// Service coordinates the chart, fiscal periods, posting, voiding and reports.
type Service struct {
	repo      RepositoryPort
	audit     AuditPort
	verifier  PINVerifier
	parties   CounterpartyResolver
	approvals ApprovalPort
	cache     ReportCache
	metrics   MetricsPort
	logger    *slog.Logger
	now       func() time.Time
	loc       *time.Location
	flight    singleflight.Group
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, verifier PINVerifier) *Service {
	return &Service{
		repo:     repo,
		audit:    audit,
		verifier: verifier,
		logger:   slog.Default(),
		now:      time.Now,
		loc:      time.UTC,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithLocation sets the time zone used to derive "today".
func (s *Service) WithLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// WithCounterparties enables counterparty resolution on posting.
func (s *Service) WithCounterparties(r CounterpartyResolver) { s.parties = r }

// WithApprovals enables the approval history for PIN-approved voids.
func (s *Service) WithApprovals(a ApprovalPort) { s.approvals = a }

// WithCache enables report caching.
func (s *Service) WithCache(c ReportCache) { s.cache = c }

// WithMetrics enables ledger counters.
func (s *Service) WithMetrics(m MetricsPort) { s.metrics = m }

// WithLogger replaces the default logger.
func (s *Service) WithLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// today is the current calendar date in the configured zone.
func (s *Service) today() time.Time {
	return civilDate(s.now().In(s.loc))
}

func (s *Service) record(ctx context.Context, log shared.AuditLog) {
	if s.audit == nil {
		return
	}
	if log.At.IsZero() {
		log.At = s.now()
	}
	if err := s.audit.Record(ctx, log); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", log.Action), slog.Any("error", err))
	}
}

// invalidate drops cached reports after a ledger mutation.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("report cache bump failed", slog.Any("error", err))
	}
}
