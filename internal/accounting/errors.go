package accounting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger error kinds. Each typed error below unwraps to one of them so callers
// can branch with errors.Is and read the context with errors.As.
var (
	ErrValidation        = errors.New("accounting: validation failed")
	ErrUnbalancedEntry   = errors.New("accounting: entry not balanced")
	ErrUnknownAccount    = errors.New("accounting: unknown account")
	ErrPeriodViolation   = errors.New("accounting: period violation")
	ErrAlreadyVoided     = errors.New("accounting: entry already voided")
	ErrPeriodClosed      = errors.New("accounting: fiscal period closed")
	ErrOutsideVoidWindow = errors.New("accounting: outside void window")
	ErrApprovalRequired  = errors.New("accounting: dual approval required")
	ErrStorage           = errors.New("accounting: storage failure")

	ErrAccountNotFound         = errors.New("accounting: account not found")
	ErrAccountExists           = errors.New("accounting: account already exists")
	ErrAccountInUse            = errors.New("accounting: account in use")
	ErrEntryNotFound           = errors.New("accounting: journal entry not found")
	ErrCounterpartyNotFound    = errors.New("accounting: counterparty not found")
	ErrDuplicateSubmission     = errors.New("accounting: duplicate submission")
	ErrInvalidPeriodTransition = shared.ErrInvalidPeriodTransition
)

// ValidationError reports a malformed field. Index is the movement position,
// or -1 when the field belongs to the entry header.
type ValidationError struct {
	Field   string
	Index   int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("movement %d: %s: %s", e.Index+1, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ValidationErrors collects every field problem of one request.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (v ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(v))
	for _, e := range v {
		errs = append(errs, e)
	}
	return errs
}

// UnbalancedEntryError carries the totals of an entry whose sides differ.
type UnbalancedEntryError struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Discrepancy decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("entry not balanced: debit %s credit %s discrepancy %s",
		e.TotalDebit.StringFixed(2), e.TotalCredit.StringFixed(2), e.Discrepancy.StringFixed(2))
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalancedEntry }

// UnknownAccountError names a movement account missing from the chart.
type UnknownAccountError struct {
	Code  string
	Index int
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("movement %d: account %q does not exist", e.Index+1, e.Code)
}

func (e *UnknownAccountError) Unwrap() error { return ErrUnknownAccount }

// PeriodViolationError explains why a date cannot be posted to a period.
type PeriodViolationError struct {
	Year   int
	Period int
	Reason string
}

func (e *PeriodViolationError) Error() string {
	return fmt.Sprintf("period %d/%d: %s", e.Year, e.Period, e.Reason)
}

func (e *PeriodViolationError) Unwrap() error { return ErrPeriodViolation }

// AlreadyVoidedError is returned when the entry is no longer active.
type AlreadyVoidedError struct {
	EntryID int64
}

func (e *AlreadyVoidedError) Error() string {
	return fmt.Sprintf("entry %d is already voided", e.EntryID)
}

func (e *AlreadyVoidedError) Unwrap() error { return ErrAlreadyVoided }

// PeriodClosedError is returned when the entry's fiscal year is closed.
type PeriodClosedError struct {
	FiscalYear int
}

func (e *PeriodClosedError) Error() string {
	return fmt.Sprintf("fiscal year %d is closed", e.FiscalYear)
}

func (e *PeriodClosedError) Unwrap() error { return ErrPeriodClosed }

// OutsideVoidWindowError is returned past the adjustment window.
type OutsideVoidWindowError struct {
	EntryID    int64
	FiscalYear int
	Today      time.Time
}

func (e *OutsideVoidWindowError) Error() string {
	return fmt.Sprintf("entry %d of fiscal year %d can no longer be voided on %s",
		e.EntryID, e.FiscalYear, e.Today.Format(time.DateOnly))
}

func (e *OutsideVoidWindowError) Unwrap() error { return ErrOutsideVoidWindow }

// ApprovalRequiredError is returned when the dual PIN check fails.
type ApprovalRequiredError struct {
	EntryID    int64
	FiscalYear int
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("voiding entry %d of fiscal year %d requires accountant and manager PINs", e.EntryID, e.FiscalYear)
}

func (e *ApprovalRequiredError) Unwrap() error { return ErrApprovalRequired }

// StorageError wraps an infrastructure failure of the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("accounting: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }

// Retryable reports that the operation may succeed if attempted again.
func (e *StorageError) Retryable() bool { return true }

var businessErrors = []error{
	ErrValidation, ErrUnbalancedEntry, ErrUnknownAccount, ErrPeriodViolation,
	ErrAlreadyVoided, ErrPeriodClosed, ErrOutsideVoidWindow, ErrApprovalRequired,
	ErrAccountNotFound, ErrAccountExists, ErrAccountInUse, ErrEntryNotFound,
	ErrCounterpartyNotFound, ErrDuplicateSubmission, ErrInvalidPeriodTransition,
	ErrStorage,
}

// storageErr leaves ledger errors untouched and wraps everything else.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return &StorageError{Op: op, Err: err}
}
