package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const maxConcept = 500

// validateHeader checks the entry fields that do not depend on storage.
func (in CreateEntryInput) validateHeader() error {
	var errs ValidationErrors
	if in.Date.IsZero() {
		errs = append(errs, &ValidationError{Field: "date", Index: -1, Message: "is required"})
	}
	if in.CounterpartyID <= 0 {
		errs = append(errs, &ValidationError{Field: "counterparty_id", Index: -1, Message: "is required"})
	}
	concept := strings.TrimSpace(in.Concept)
	if concept == "" {
		errs = append(errs, &ValidationError{Field: "concept", Index: -1, Message: "is required"})
	} else if len(concept) > maxConcept {
		errs = append(errs, &ValidationError{Field: "concept", Index: -1, Message: fmt.Sprintf("exceeds %d characters", maxConcept)})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// normalizeMovements rounds amounts, enforces one positive side per line and
// checks that both sides balance.
func normalizeMovements(in []MovementInput) ([]MovementInput, error) {
	if len(in) == 0 {
		return nil, &ValidationError{Field: "movements", Index: -1, Message: "at least one movement is required"}
	}
	out := make([]MovementInput, 0, len(in))
	var errs ValidationErrors
	for i, m := range in {
		m.AccountCode = strings.TrimSpace(m.AccountCode)
		m.Debit = NormalizeAmount(m.Debit)
		m.Credit = NormalizeAmount(m.Credit)
		if m.AccountCode == "" {
			errs = append(errs, &ValidationError{Field: "account_code", Index: i, Message: "is required"})
		}
		switch {
		case m.Debit.IsNegative() || m.Credit.IsNegative():
			errs = append(errs, &ValidationError{Field: "amount", Index: i, Message: "must not be negative"})
		case m.Debit.IsPositive() && m.Credit.IsPositive():
			errs = append(errs, &ValidationError{Field: "amount", Index: i, Message: "cannot carry both debit and credit"})
		case m.Debit.IsZero() && m.Credit.IsZero():
			errs = append(errs, &ValidationError{Field: "amount", Index: i, Message: "must carry a debit or a credit"})
		case m.Debit.GreaterThan(MaxAmount) || m.Credit.GreaterThan(MaxAmount):
			errs = append(errs, &ValidationError{Field: "amount", Index: i, Message: "exceeds " + FormatAmount(MaxAmount)})
		}
		out = append(out, m)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	debit, credit := decimal.Zero, decimal.Zero
	for _, m := range out {
		debit = debit.Add(m.Debit)
		credit = credit.Add(m.Credit)
	}
	if !debit.Equal(credit) {
		return nil, &UnbalancedEntryError{TotalDebit: debit, TotalCredit: credit, Discrepancy: debit.Sub(credit).Abs()}
	}
	if debit.GreaterThan(MaxAmount) {
		return nil, &ValidationError{Field: "movements", Index: -1, Message: "entry total exceeds " + FormatAmount(MaxAmount)}
	}
	return out, nil
}

// sameSubmission reports whether a stored entry matches a replayed request.
func sameSubmission(e JournalEntry, date time.Time, counterpartyID int64, movements []MovementInput) bool {
	if !civilDate(e.Date).Equal(date) || e.CounterpartyID != counterpartyID || len(e.Movements) != len(movements) {
		return false
	}
	debit, credit := e.Totals()
	for _, m := range movements {
		debit = debit.Sub(m.Debit)
		credit = credit.Sub(m.Credit)
	}
	return debit.IsZero() && credit.IsZero()
}

// CreateEntry validates and persists a journal entry with its movements in a
// single transaction. Replaying an idempotency key returns the stored entry;
// reusing it for a different entry fails with ErrDuplicateSubmission.
func (s *Service) CreateEntry(ctx context.Context, in CreateEntryInput) (JournalEntry, error) {
	if err := in.validateHeader(); err != nil {
		return JournalEntry{}, err
	}
	date := civilDate(in.Date)
	year, period, err := ResolveFiscalAttribution(date, in.FiscalYear, in.FiscalPeriod)
	if err != nil {
		return JournalEntry{}, err
	}
	movements, err := normalizeMovements(in.Movements)
	if err != nil {
		return JournalEntry{}, err
	}
	// Resolved before the transaction opens: the directory reads through its
	// own connection. The counterparty FK covers a delete in between.
	if s.parties != nil {
		if _, err := s.parties.ResolveCounterparty(ctx, in.CounterpartyID); err != nil {
			return JournalEntry{}, storageErr("create entry", err)
		}
	}

	var (
		entry    JournalEntry
		replayed bool
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != nil {
			existing, found, err := tx.FindEntryBySourceRef(ctx, *in.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if !sameSubmission(existing, date, in.CounterpartyID, movements) {
					return ErrDuplicateSubmission
				}
				entry, replayed = existing, true
				return nil
			}
		}
		fp, err := tx.EnsurePeriod(ctx, DefaultFiscalPeriod(year), LockShare)
		if err != nil {
			return err
		}
		if err := fp.CheckPostingEligibility(period, date); err != nil {
			return err
		}
		for i, m := range movements {
			if _, err := tx.GetAccount(ctx, m.AccountCode); err != nil {
				if errors.Is(err, ErrAccountNotFound) {
					return &UnknownAccountError{Code: m.AccountCode, Index: i}
				}
				return err
			}
		}
		inserted, err := tx.InsertEntry(ctx, NewEntry{
			Date:           date,
			CounterpartyID: in.CounterpartyID,
			Concept:        strings.TrimSpace(in.Concept),
			Notes:          in.Notes,
			FiscalYear:     year,
			FiscalPeriod:   period,
			SourceRef:      in.IdempotencyKey,
			CreatedBy:      in.CreatedBy,
			CreatedAt:      s.now(),
		})
		if err != nil {
			return err
		}
		inserted.Movements, err = tx.InsertMovements(ctx, inserted.ID, movements)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, storageErr("create entry", err)
	}
	if replayed {
		s.logger.Info("journal entry replayed", slog.Int64("entry_id", entry.ID))
		return entry, nil
	}

	debit, _ := entry.Totals()
	s.record(ctx, shared.AuditLog{
		Actor:    in.CreatedBy,
		Action:   "journal.create",
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta: map[string]any{
			"fiscal_year":   entry.FiscalYear,
			"fiscal_period": entry.FiscalPeriod,
			"total":         FormatAmount(debit),
			"movements":     len(entry.Movements),
		},
	})
	s.invalidate(ctx)
	if s.metrics != nil {
		s.metrics.EntryPosted()
	}
	return entry, nil
}

// GetEntry loads an entry with its movements.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetEntry(ctx, id)
		return err
	})
	if err != nil {
		return JournalEntry{}, storageErr("get entry", err)
	}
	return entry, nil
}

// ListEntries returns entries ordered by (date, id) and the unpaged total.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, int, error) {
	if filter.Status != "" && filter.Status != EntryActive && filter.Status != EntryVoided {
		return nil, 0, &ValidationError{Field: "status", Index: -1, Message: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	var (
		entries []JournalEntry
		total   int
	)
	err := s.repo.ReadTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, total, err = tx.ListEntries(ctx, filter)
		return err
	})
	if err != nil {
		return nil, 0, storageErr("list entries", err)
	}
	return entries, total, nil
}
