package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/counterparties"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger bundles the services every binary builds on top of Postgres.
type Ledger struct {
	Accounting     *accounting.Service
	Counterparties *counterparties.Service
}

// LedgerOptions carries the optional collaborators of the ledger services.
type LedgerOptions struct {
	Cache   *cache.Versioned
	Metrics accounting.MetricsPort
}

// NewLedger wires the accounting and counterparty services against pool.
func NewLedger(cfg *Config, pool *pgxpool.Pool, logger *slog.Logger, opts LedgerOptions) *Ledger {
	audit := shared.NewAuditLogger(pool)
	parties := counterparties.NewService(counterparties.NewRepository(pool), audit, logger)

	svc := accounting.NewService(
		accounting.NewRepository(pool),
		audit,
		accounting.NewDualPIN(cfg.AccountantPIN, cfg.ManagerPIN),
	)
	svc.WithLocation(cfg.Location())
	svc.WithCounterparties(parties)
	svc.WithApprovals(shared.NewApprovalRecorder(pool, logger))
	svc.WithLogger(logger)
	if opts.Cache != nil {
		svc.WithCache(opts.Cache)
	}
	if opts.Metrics != nil {
		svc.WithMetrics(opts.Metrics)
	}
	return &Ledger{Accounting: svc, Counterparties: parties}
}
