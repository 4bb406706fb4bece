package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountClass enumerates the classification carried by root accounts.
type AccountClass string

const (
	ClassAsset          AccountClass = reports.ClassAsset
	ClassLiability      AccountClass = reports.ClassLiability
	ClassEquity         AccountClass = reports.ClassEquity
	ClassRevenue        AccountClass = reports.ClassRevenue
	ClassExpense        AccountClass = reports.ClassExpense
	ClassCostOfSales    AccountClass = reports.ClassCostOfSales
	ClassProductionCost AccountClass = reports.ClassProductionCost
	ClassMemorandum     AccountClass = reports.ClassMemorandum
)

// AccountClasses lists every class in chart order.
var AccountClasses = []AccountClass{
	ClassAsset, ClassLiability, ClassEquity, ClassRevenue,
	ClassExpense, ClassCostOfSales, ClassProductionCost, ClassMemorandum,
}

// Valid reports whether the class is one of the known classes.
func (c AccountClass) Valid() bool {
	for _, known := range AccountClasses {
		if c == known {
			return true
		}
	}
	return false
}

// ParseAccountClass normalises raw input into an AccountClass.
func ParseAccountClass(raw string) (AccountClass, error) {
	c := AccountClass(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", &ValidationError{Field: "class", Index: -1, Message: fmt.Sprintf("unknown account class %q", raw)}
	}
	return c, nil
}

// PeriodState enumerates fiscal period lifecycle values.
type PeriodState string

const (
	PeriodOpen      PeriodState = shared.PeriodStateOpen
	PeriodInClosing PeriodState = shared.PeriodStateInClosing
	PeriodClosed    PeriodState = shared.PeriodStateClosed
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	EntryActive EntryStatus = "ACTIVE"
	EntryVoided EntryStatus = "VOIDED"
)

// AdjustmentPeriod is the closing-adjustment period that follows December.
const AdjustmentPeriod = 13

// Account models a chart of accounts node. Class is persisted on roots only;
// reads return the class resolved from the root ancestor.
type Account struct {
	Code       string
	Name       string
	ParentCode string
	Class      AccountClass
	CreatedAt  time.Time
}

// IsRoot reports whether the account has no parent.
func (a Account) IsRoot() bool { return a.ParentCode == "" }

// FiscalPeriod captures the posting state of one fiscal year.
type FiscalPeriod struct {
	Year            int
	State           PeriodState
	AdjustmentStart time.Time
	AdjustmentEnd   time.Time
	Month13Enabled  bool
	PinsRequired    bool
	ClosedBy        string
	ClosedAt        *time.Time
	Notes           string
}

// JournalEntry is a dated, balanced set of movements.
type JournalEntry struct {
	ID             int64
	Date           time.Time
	CounterpartyID int64
	Concept        string
	Notes          string
	FiscalYear     int
	FiscalPeriod   int
	Status         EntryStatus
	VoidedBy       string
	VoidedAt       *time.Time
	VoidReason     string
	CorrectedBy    *int64
	Reverses       *int64
	SourceRef      *uuid.UUID
	CreatedBy      string
	CreatedAt      time.Time
	Movements      []Movement
}

// Totals returns the debit and credit sums of the entry.
func (e JournalEntry) Totals() (debit, credit decimal.Decimal) {
	for _, m := range e.Movements {
		debit = debit.Add(m.Debit)
		credit = credit.Add(m.Credit)
	}
	return debit, credit
}

// IsVoided reports whether the entry has been reversed.
func (e JournalEntry) IsVoided() bool { return e.Status == EntryVoided }

// Movement is a single debit or credit of an entry.
type Movement struct {
	ID          int64
	EntryID     int64
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// CreateAccountInput describes a new chart node.
type CreateAccountInput struct {
	Code       string
	Name       string
	ParentCode string
	Class      AccountClass
}

// MovementInput is one line of a posting request.
type MovementInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// CreateEntryInput carries the payload for posting a journal entry.
type CreateEntryInput struct {
	Date           time.Time
	CounterpartyID int64
	Concept        string
	Notes          string
	FiscalYear     *int
	FiscalPeriod   *int
	Movements      []MovementInput
	IdempotencyKey *uuid.UUID
	CreatedBy      string
}

// NewEntry is the normalised header handed to the store.
type NewEntry struct {
	Date           time.Time
	CounterpartyID int64
	Concept        string
	Notes          string
	FiscalYear     int
	FiscalPeriod   int
	Reverses       *int64
	SourceRef      *uuid.UUID
	CreatedBy      string
	CreatedAt      time.Time
}

// EntryFilter narrows ListEntries.
type EntryFilter struct {
	From           *time.Time
	To             *time.Time
	CounterpartyID int64
	Status         EntryStatus
	Limit          int
	Offset         int
}

// DualApproval holds the accountant and manager PINs supplied with a void.
type DualApproval struct {
	AccountantPIN string
	ManagerPIN    string
}

// VoidInput describes a void request.
type VoidInput struct {
	EntryID     int64
	RequestedBy string
	Reason      string
	Approval    *DualApproval
}

// VoidMark is the status change applied to a voided entry.
type VoidMark struct {
	By          string
	At          time.Time
	Reason      string
	CorrectedBy int64
}

// ReversalResult is the outcome of a successful void.
type ReversalResult struct {
	Original     JournalEntry
	Reversal     JournalEntry
	ApprovalUsed bool
}

// PeriodSettingsInput updates the configurable fields of a fiscal period.
// Nil fields are left untouched.
type PeriodSettingsInput struct {
	Year            int
	AdjustmentStart *time.Time
	AdjustmentEnd   *time.Time
	Month13Enabled  *bool
	PinsRequired    *bool
	Notes           *string
	Actor           string
}

// DateRange bounds the report queries. Nil bounds are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// CounterpartyRef is the minimal view of a counterparty the ledger needs.
type CounterpartyRef struct {
	ID   int64
	Name string
}

// AccountTotals aggregates movement sums for one account.
type AccountTotals struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// BalanceQuery scopes a movement aggregation. From and To are inclusive,
// Before is exclusive.
type BalanceQuery struct {
	From           *time.Time
	To             *time.Time
	Before         *time.Time
	AccountCode    string
	CounterpartyID int64
}

// LineQuery scopes a movement listing.
type LineQuery struct {
	From           *time.Time
	To             *time.Time
	AccountCode    string
	CounterpartyID int64
}

// MovementLine is a movement joined with its entry header.
type MovementLine struct {
	EntryID          int64
	MovementID       int64
	Date             time.Time
	Concept          string
	CounterpartyID   int64
	CounterpartyName string
	AccountCode      string
	AccountName      string
	Debit            decimal.Decimal
	Credit           decimal.Decimal
	Status           EntryStatus
}

// civilDate truncates t to its calendar date in UTC.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
