package accounting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// IntegrityReport summarises the ledger invariants at one instant.
type IntegrityReport struct {
	CheckedAt         time.Time
	TotalDebit        decimal.Decimal
	TotalCredit       decimal.Decimal
	UnbalancedEntries []int64
	BrokenReversals   []int64
}

// Balanced reports whether global debits equal global credits.
func (r IntegrityReport) Balanced() bool { return r.TotalDebit.Equal(r.TotalCredit) }

// OK reports whether every check passed.
func (r IntegrityReport) OK() bool {
	return r.Balanced() && len(r.UnbalancedEntries) == 0 && len(r.BrokenReversals) == 0
}

// CheckIntegrity verifies global balance, per-entry balance and that every
// voided entry is netted out by its reversal. The checks run concurrently.
func (s *Service) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	report := IntegrityReport{CheckedAt: s.now()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.repo.ReadTx(gctx, func(ctx context.Context, tx TxRepository) error {
			totals, err := tx.SumMovements(ctx, BalanceQuery{})
			if err != nil {
				return err
			}
			for _, t := range totals {
				report.TotalDebit = report.TotalDebit.Add(t.Debit)
				report.TotalCredit = report.TotalCredit.Add(t.Credit)
			}
			return nil
		})
	})
	g.Go(func() error {
		return s.repo.ReadTx(gctx, func(ctx context.Context, tx TxRepository) error {
			ids, err := tx.FindUnbalancedEntries(ctx)
			report.UnbalancedEntries = ids
			return err
		})
	})
	g.Go(func() error {
		return s.repo.ReadTx(gctx, func(ctx context.Context, tx TxRepository) error {
			ids, err := tx.FindBrokenReversals(ctx)
			report.BrokenReversals = ids
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return IntegrityReport{}, storageErr("integrity check", err)
	}
	return report, nil
}
