package accounting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Void outcomes reported to metrics.
const (
	VoidOutcomeOK               = "ok"
	VoidOutcomeAlreadyVoided    = "already_voided"
	VoidOutcomePeriodClosed     = "period_closed"
	VoidOutcomeOutsideWindow    = "outside_window"
	VoidOutcomeApprovalRequired = "approval_required"
	VoidOutcomeError            = "error"
)

// approvalModule names void approvals in the approvals log.
const approvalModule = "ledger.void"

// voidRequiresApproval classifies today against the fiscal year of the entry:
// free through Dec 31, PIN-gated inside the adjustment window of the following
// year, rejected afterwards.
func voidRequiresApproval(p FiscalPeriod, entryID int64, fiscalYear int, today time.Time) (bool, error) {
	yearEnd := time.Date(fiscalYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	if !today.After(yearEnd) {
		return false, nil
	}
	if today.Year() == fiscalYear+1 && p.InAdjustmentWindow(today) {
		return p.PinsRequired, nil
	}
	return false, &OutsideVoidWindowError{EntryID: entryID, FiscalYear: fiscalYear, Today: today}
}

// swapMovements mirrors every movement of an entry.
func swapMovements(movements []Movement) []MovementInput {
	out := make([]MovementInput, 0, len(movements))
	for _, m := range movements {
		out = append(out, MovementInput{AccountCode: m.AccountCode, Debit: m.Credit, Credit: m.Debit})
	}
	return out
}

// VoidEntry reverses an active entry. The reversal is posted and the original
// marked VOIDED in the same transaction; concurrent voids of one entry resolve
// to a single winner.
func (s *Service) VoidEntry(ctx context.Context, in VoidInput) (ReversalResult, error) {
	if in.EntryID <= 0 {
		return ReversalResult{}, &ValidationError{Field: "entry_id", Index: -1, Message: "is required"}
	}
	if strings.TrimSpace(in.RequestedBy) == "" {
		return ReversalResult{}, &ValidationError{Field: "requested_by", Index: -1, Message: "is required"}
	}
	now := s.now()
	today := s.today()
	reason := strings.TrimSpace(in.Reason)

	var result ReversalResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if original.Status != EntryActive {
			return &AlreadyVoidedError{EntryID: original.ID}
		}
		fiscalYear := original.FiscalYear
		if fiscalYear == 0 {
			fiscalYear = original.Date.Year()
		}
		period, err := tx.EnsurePeriod(ctx, DefaultFiscalPeriod(fiscalYear), LockShare)
		if err != nil {
			return err
		}
		if period.State == PeriodClosed {
			return &PeriodClosedError{FiscalYear: fiscalYear}
		}
		needPINs, err := voidRequiresApproval(period, original.ID, fiscalYear, today)
		if err != nil {
			return err
		}
		if needPINs && (s.verifier == nil || !s.verifier.VerifyDualApproval(in.Approval)) {
			return &ApprovalRequiredError{EntryID: original.ID, FiscalYear: fiscalYear}
		}

		revYear, revPeriod := today.Year(), int(today.Month())
		if _, err := tx.EnsurePeriod(ctx, DefaultFiscalPeriod(revYear), LockShare); err != nil {
			return err
		}
		reverses := original.ID
		reversal, err := tx.InsertEntry(ctx, NewEntry{
			Date:           today,
			CounterpartyID: original.CounterpartyID,
			Concept:        fmt.Sprintf("Reversal of entry #%d", original.ID),
			Notes:          "Reason: " + reason,
			FiscalYear:     revYear,
			FiscalPeriod:   revPeriod,
			Reverses:       &reverses,
			CreatedBy:      in.RequestedBy,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		reversal.Movements, err = tx.InsertMovements(ctx, reversal.ID, swapMovements(original.Movements))
		if err != nil {
			return err
		}
		mark := VoidMark{By: in.RequestedBy, At: now, Reason: reason, CorrectedBy: reversal.ID}
		ok, err := tx.MarkVoided(ctx, original.ID, mark)
		if err != nil {
			return err
		}
		if !ok {
			return &AlreadyVoidedError{EntryID: original.ID}
		}
		original.Status = EntryVoided
		original.VoidedBy = mark.By
		original.VoidedAt = &mark.At
		original.VoidReason = mark.Reason
		original.CorrectedBy = &mark.CorrectedBy
		result = ReversalResult{Original: original, Reversal: reversal, ApprovalUsed: needPINs}
		return nil
	})
	if err != nil {
		s.countVoid(voidOutcome(err))
		return ReversalResult{}, storageErr("void entry", err)
	}
	s.countVoid(VoidOutcomeOK)

	entityID := strconv.FormatInt(result.Original.ID, 10)
	s.record(ctx, shared.AuditLog{
		Actor:    in.RequestedBy,
		Action:   "journal.void",
		Entity:   "journal_entry",
		EntityID: entityID,
		Meta: map[string]any{
			"reason":        reason,
			"reversal_id":   result.Reversal.ID,
			"approval_used": result.ApprovalUsed,
		},
	})
	if result.ApprovalUsed && s.approvals != nil {
		err := s.approvals.Record(ctx, shared.ApprovalLog{
			Module: approvalModule,
			RefID:  shared.ApprovalRefFor(approvalModule, entityID),
			Actor:  in.RequestedBy,
			Action: shared.ApprovalApprove,
			Note:   reason,
			At:     now,
		})
		if err != nil {
			s.logger.Warn("approval record failed", "entry_id", result.Original.ID, "error", err)
		}
	}
	s.invalidate(ctx)
	return result, nil
}

func (s *Service) countVoid(outcome string) {
	if s.metrics != nil {
		s.metrics.VoidOutcome(outcome)
	}
}

func voidOutcome(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyVoided):
		return VoidOutcomeAlreadyVoided
	case errors.Is(err, ErrPeriodClosed):
		return VoidOutcomePeriodClosed
	case errors.Is(err, ErrOutsideVoidWindow):
		return VoidOutcomeOutsideWindow
	case errors.Is(err, ErrApprovalRequired):
		return VoidOutcomeApprovalRequired
	default:
		return VoidOutcomeError
	}
}
