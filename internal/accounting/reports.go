package accounting

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
)

// TrialBalance reports opening, period and closing figures per account.
// Opening covers movements dated before From; with no From it is zero.
func (s *Service) TrialBalance(ctx context.Context, r DateRange) (reports.TrialBalance, error) {
	return cachedReport(ctx, s, []string{"tb", rangeKey(r)}, func(ctx context.Context) (reports.TrialBalance, error) {
		balances, err := s.accountBalances(ctx, r, 0)
		if err != nil {
			return reports.TrialBalance{}, err
		}
		return reports.BuildTrialBalance(r.From, r.To, balances), nil
	})
}

// GeneralLedger lists the movements of one account with a running balance.
func (s *Service) GeneralLedger(ctx context.Context, code string, r DateRange) (reports.GeneralLedger, error) {
	code = strings.TrimSpace(code)
	return cachedReport(ctx, s, []string{"gl", code, rangeKey(r)}, func(ctx context.Context) (reports.GeneralLedger, error) {
		var gl reports.GeneralLedger
		err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
			acc, err := tx.GetAccount(ctx, code)
			if err != nil {
				return err
			}
			opening := decimal.Zero
			if r.From != nil {
				totals, err := tx.SumMovements(ctx, BalanceQuery{Before: r.From, AccountCode: code})
				if err != nil {
					return err
				}
				for _, t := range totals {
					opening = opening.Add(t.Debit).Sub(t.Credit)
				}
			}
			lines, err := tx.ListMovementLines(ctx, LineQuery{From: r.From, To: r.To, AccountCode: code})
			if err != nil {
				return err
			}
			gl = reports.BuildGeneralLedger(acc.Code, acc.Name, r.From, r.To, opening, toLedgerLines(lines))
			return nil
		})
		return gl, storageErr("general ledger", err)
	})
}

// IncomeStatement aggregates every movement dated up to asOf.
func (s *Service) IncomeStatement(ctx context.Context, asOf time.Time) (reports.IncomeStatement, error) {
	asOf = civilDate(asOf)
	return cachedReport(ctx, s, []string{"is", asOf.Format(time.DateOnly)}, func(ctx context.Context) (reports.IncomeStatement, error) {
		balances, err := s.accountBalances(ctx, DateRange{To: &asOf}, 0)
		if err != nil {
			return reports.IncomeStatement{}, err
		}
		return reports.BuildIncomeStatement(asOf, balances), nil
	})
}

// BalanceSheet aggregates every movement dated up to asOf.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (reports.BalanceSheet, error) {
	asOf = civilDate(asOf)
	return cachedReport(ctx, s, []string{"bs", asOf.Format(time.DateOnly)}, func(ctx context.Context) (reports.BalanceSheet, error) {
		balances, err := s.accountBalances(ctx, DateRange{To: &asOf}, 0)
		if err != nil {
			return reports.BalanceSheet{}, err
		}
		return reports.BuildBalanceSheet(asOf, balances), nil
	})
}

// JournalBook lists every movement of the range in posting order.
func (s *Service) JournalBook(ctx context.Context, r DateRange) (reports.JournalBook, error) {
	return cachedReport(ctx, s, []string{"jb", rangeKey(r)}, func(ctx context.Context) (reports.JournalBook, error) {
		var lines []MovementLine
		err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			lines, err = tx.ListMovementLines(ctx, LineQuery{From: r.From, To: r.To})
			return err
		})
		if err != nil {
			return reports.JournalBook{}, storageErr("journal book", err)
		}
		return reports.BuildJournalBook(r.From, r.To, toLedgerLines(lines)), nil
	})
}

// CounterpartyLedger is the trial balance of the entries of one counterparty.
func (s *Service) CounterpartyLedger(ctx context.Context, counterpartyID int64, r DateRange) (reports.CounterpartyLedger, error) {
	if counterpartyID <= 0 {
		return reports.CounterpartyLedger{}, &ValidationError{Field: "counterparty_id", Index: -1, Message: "is required"}
	}
	key := []string{"cp", strconv.FormatInt(counterpartyID, 10), rangeKey(r)}
	return cachedReport(ctx, s, key, func(ctx context.Context) (reports.CounterpartyLedger, error) {
		name := ""
		if s.parties != nil {
			ref, err := s.parties.ResolveCounterparty(ctx, counterpartyID)
			if err != nil {
				return reports.CounterpartyLedger{}, storageErr("counterparty ledger", err)
			}
			name = ref.Name
		}
		balances, err := s.accountBalances(ctx, r, counterpartyID)
		if err != nil {
			return reports.CounterpartyLedger{}, err
		}
		return reports.BuildCounterpartyLedger(counterpartyID, name, r.From, r.To, balances), nil
	})
}

// accountBalances loads the chart and the movement sums of the range, with
// classes resolved from root ancestors.
func (s *Service) accountBalances(ctx context.Context, r DateRange, counterpartyID int64) ([]reports.AccountBalance, error) {
	var (
		accounts []Account
		opening  []AccountTotals
		period   []AccountTotals
	)
	err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if accounts, err = tx.ListAccounts(ctx); err != nil {
			return err
		}
		if r.From != nil {
			if opening, err = tx.SumMovements(ctx, BalanceQuery{Before: r.From, CounterpartyID: counterpartyID}); err != nil {
				return err
			}
		}
		period, err = tx.SumMovements(ctx, BalanceQuery{From: r.From, To: r.To, CounterpartyID: counterpartyID})
		return err
	})
	if err != nil {
		return nil, storageErr("account balances", err)
	}

	chart := NewChart(accounts)
	index := make(map[string]int, len(accounts))
	out := make([]reports.AccountBalance, 0, len(accounts))
	slot := func(code string) int {
		if i, ok := index[code]; ok {
			return i
		}
		bal := reports.AccountBalance{Code: code}
		if acc, ok := chart.Lookup(code); ok {
			bal.Name = acc.Name
		}
		if class, err := chart.ClassOf(code); err == nil {
			bal.Class = string(class)
		} else {
			s.logger.Warn("account without classification", slog.String("code", code), slog.Any("error", err))
		}
		out = append(out, bal)
		index[code] = len(out) - 1
		return len(out) - 1
	}
	for _, t := range opening {
		i := slot(t.AccountCode)
		out[i].Opening = out[i].Opening.Add(t.Debit).Sub(t.Credit)
	}
	for _, t := range period {
		i := slot(t.AccountCode)
		out[i].Debit = out[i].Debit.Add(t.Debit)
		out[i].Credit = out[i].Credit.Add(t.Credit)
	}
	return out, nil
}

func toLedgerLines(lines []MovementLine) []reports.LedgerLine {
	out := make([]reports.LedgerLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, reports.LedgerLine{
			Date:         l.Date,
			EntryID:      l.EntryID,
			MovementID:   l.MovementID,
			AccountCode:  l.AccountCode,
			AccountName:  l.AccountName,
			Counterparty: l.CounterpartyName,
			Concept:      l.Concept,
			Debit:        l.Debit,
			Credit:       l.Credit,
			Voided:       l.Status == EntryVoided,
		})
	}
	return out
}

func rangeKey(r DateRange) string {
	from, to := "-", "-"
	if r.From != nil {
		from = r.From.Format(time.DateOnly)
	}
	if r.To != nil {
		to = r.To.Format(time.DateOnly)
	}
	return from + "_" + to
}

// cachedReport coalesces identical concurrent builds and, when a cache is
// configured, serves the versioned copy. Cache failures fall back to a build.
// The shared build ignores the first caller's cancellation; each caller still
// stops waiting when its own ctx is done.
func cachedReport[T any](ctx context.Context, s *Service, parts []string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	key := strings.Join(parts, ":")
	if s.cache != nil {
		if versioned, err := s.cache.BuildKey(ctx, parts...); err == nil {
			key = versioned
		} else {
			s.logger.Warn("report cache key failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		ctx := detached
		if s.cache == nil {
			return build(ctx)
		}
		var (
			out      T
			buildErr error
		)
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			v, err := build(ctx)
			buildErr = err
			return v, err
		})
		if buildErr != nil {
			return zero, buildErr
		}
		if err != nil {
			s.logger.Warn("report cache unavailable", slog.String("key", key), slog.Any("error", err))
			return build(ctx)
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
