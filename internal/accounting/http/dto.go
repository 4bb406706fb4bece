package accountinghttp

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

const dateLayout = time.DateOnly

// dateLayouts are tried in order; the second is the day-first form the
// bookkeeping staff type.
var dateLayouts = []string{time.DateOnly, "02/01/2006"}

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &accounting.ValidationError{Field: field, Index: -1, Message: fmt.Sprintf("invalid date %q, use YYYY-MM-DD", raw)}
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseRange(fromRaw, toRaw string) (accounting.DateRange, error) {
	from, err := parseOptionalDate("from", fromRaw)
	if err != nil {
		return accounting.DateRange{}, err
	}
	to, err := parseOptionalDate("to", toRaw)
	if err != nil {
		return accounting.DateRange{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return accounting.DateRange{}, &accounting.ValidationError{Field: "to", Index: -1, Message: "must not be before from"}
	}
	return accounting.DateRange{From: from, To: to}, nil
}

func idempotencyHeader(r *http.Request) (*uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if raw == "" {
		return nil, nil
	}
	key, err := uuid.Parse(raw)
	if err != nil {
		return nil, &accounting.ValidationError{Field: "Idempotency-Key", Index: -1, Message: "must be a UUID"}
	}
	return &key, nil
}

type createAccountRequest struct {
	Code       string `json:"code" validate:"required,max=20"`
	Name       string `json:"name" validate:"required,max=255"`
	ParentCode string `json:"parent_code" validate:"omitempty,max=20"`
	Class      string `json:"class" validate:"omitempty,account_class"`
}

func (r createAccountRequest) toInput() accounting.CreateAccountInput {
	return accounting.CreateAccountInput{
		Code:       strings.TrimSpace(r.Code),
		Name:       strings.TrimSpace(r.Name),
		ParentCode: strings.TrimSpace(r.ParentCode),
		Class:      accounting.AccountClass(strings.ToUpper(strings.TrimSpace(r.Class))),
	}
}

type movementRequest struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

type createEntryRequest struct {
	Date           string            `json:"date" validate:"required"`
	CounterpartyID int64             `json:"counterparty_id" validate:"required,gt=0"`
	Concept        string            `json:"concept" validate:"required,max=500"`
	Notes          string            `json:"notes"`
	FiscalYear     *int              `json:"fiscal_year" validate:"omitempty,gte=1900,lte=9999"`
	FiscalPeriod   *int              `json:"fiscal_period" validate:"omitempty,gte=1,lte=13"`
	IdempotencyKey *uuid.UUID        `json:"idempotency_key"`
	Movements      []movementRequest `json:"movements" validate:"required,min=1,dive"`
}

func (r createEntryRequest) toInput(actor string) (accounting.CreateEntryInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return accounting.CreateEntryInput{}, err
	}
	in := accounting.CreateEntryInput{
		Date:           date,
		CounterpartyID: r.CounterpartyID,
		Concept:        r.Concept,
		Notes:          r.Notes,
		FiscalYear:     r.FiscalYear,
		FiscalPeriod:   r.FiscalPeriod,
		IdempotencyKey: r.IdempotencyKey,
		CreatedBy:      actor,
		Movements:      make([]accounting.MovementInput, 0, len(r.Movements)),
	}
	for _, m := range r.Movements {
		in.Movements = append(in.Movements, accounting.MovementInput{AccountCode: m.AccountCode, Debit: m.Debit, Credit: m.Credit})
	}
	return in, nil
}

type voidRequest struct {
	Reason        string `json:"reason" validate:"max=500"`
	AccountantPIN string `json:"accountant_pin"`
	ManagerPIN    string `json:"manager_pin"`
}

func (r voidRequest) toInput(id int64, actor string) accounting.VoidInput {
	in := accounting.VoidInput{EntryID: id, RequestedBy: actor, Reason: strings.TrimSpace(r.Reason)}
	if r.AccountantPIN != "" || r.ManagerPIN != "" {
		in.Approval = &accounting.DualApproval{AccountantPIN: r.AccountantPIN, ManagerPIN: r.ManagerPIN}
	}
	return in
}

type periodSettingsRequest struct {
	AdjustmentStart *string `json:"adjustment_start"`
	AdjustmentEnd   *string `json:"adjustment_end"`
	Month13Enabled  *bool   `json:"month13_enabled"`
	PinsRequired    *bool   `json:"pins_required"`
	Notes           *string `json:"notes" validate:"omitempty,max=1000"`
}

func (r periodSettingsRequest) toInput(year int, actor string) (accounting.PeriodSettingsInput, error) {
	in := accounting.PeriodSettingsInput{
		Year:           year,
		Month13Enabled: r.Month13Enabled,
		PinsRequired:   r.PinsRequired,
		Notes:          r.Notes,
		Actor:          actor,
	}
	if r.AdjustmentStart != nil {
		t, err := parseDate("adjustment_start", *r.AdjustmentStart)
		if err != nil {
			return in, err
		}
		in.AdjustmentStart = &t
	}
	if r.AdjustmentEnd != nil {
		t, err := parseDate("adjustment_end", *r.AdjustmentEnd)
		if err != nil {
			return in, err
		}
		in.AdjustmentEnd = &t
	}
	return in, nil
}

type accountResponse struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	ParentCode string `json:"parent_code,omitempty"`
	Class      string `json:"class"`
}

func newAccountResponse(a accounting.Account) accountResponse {
	return accountResponse{Code: a.Code, Name: a.Name, ParentCode: a.ParentCode, Class: string(a.Class)}
}

type periodResponse struct {
	Year            int     `json:"year"`
	State           string  `json:"state"`
	AdjustmentStart string  `json:"adjustment_start"`
	AdjustmentEnd   string  `json:"adjustment_end"`
	Month13Enabled  bool    `json:"month13_enabled"`
	PinsRequired    bool    `json:"pins_required"`
	ClosedBy        string  `json:"closed_by,omitempty"`
	ClosedAt        *string `json:"closed_at,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

func newPeriodResponse(p accounting.FiscalPeriod) periodResponse {
	out := periodResponse{
		Year:            p.Year,
		State:           string(p.State),
		AdjustmentStart: p.AdjustmentStart.Format(dateLayout),
		AdjustmentEnd:   p.AdjustmentEnd.Format(dateLayout),
		Month13Enabled:  p.Month13Enabled,
		PinsRequired:    p.PinsRequired,
		ClosedBy:        p.ClosedBy,
		Notes:           p.Notes,
	}
	out.ClosedAt = formatTimestamp(p.ClosedAt)
	return out
}

type movementResponse struct {
	ID          int64  `json:"id"`
	AccountCode string `json:"account_code"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
}

type entryResponse struct {
	ID             int64              `json:"id"`
	Date           string             `json:"date"`
	CounterpartyID int64              `json:"counterparty_id"`
	Concept        string             `json:"concept"`
	Notes          string             `json:"notes,omitempty"`
	FiscalYear     int                `json:"fiscal_year"`
	FiscalPeriod   int                `json:"fiscal_period"`
	Status         string             `json:"status"`
	VoidedBy       string             `json:"voided_by,omitempty"`
	VoidedAt       *string            `json:"voided_at,omitempty"`
	VoidReason     string             `json:"void_reason,omitempty"`
	CorrectedBy    *int64             `json:"corrected_by,omitempty"`
	Reverses       *int64             `json:"reverses,omitempty"`
	CreatedBy      string             `json:"created_by,omitempty"`
	TotalDebit     string             `json:"total_debit"`
	TotalCredit    string             `json:"total_credit"`
	Movements      []movementResponse `json:"movements"`
}

func newEntryResponse(e accounting.JournalEntry) entryResponse {
	debit, credit := e.Totals()
	out := entryResponse{
		ID:             e.ID,
		Date:           e.Date.Format(dateLayout),
		CounterpartyID: e.CounterpartyID,
		Concept:        e.Concept,
		Notes:          e.Notes,
		FiscalYear:     e.FiscalYear,
		FiscalPeriod:   e.FiscalPeriod,
		Status:         string(e.Status),
		VoidedBy:       e.VoidedBy,
		VoidedAt:       formatTimestamp(e.VoidedAt),
		VoidReason:     e.VoidReason,
		CorrectedBy:    e.CorrectedBy,
		Reverses:       e.Reverses,
		CreatedBy:      e.CreatedBy,
		TotalDebit:     accounting.FormatAmount(debit),
		TotalCredit:    accounting.FormatAmount(credit),
		Movements:      make([]movementResponse, 0, len(e.Movements)),
	}
	for _, m := range e.Movements {
		out.Movements = append(out.Movements, movementResponse{
			ID:          m.ID,
			AccountCode: m.AccountCode,
			Debit:       accounting.FormatAmount(m.Debit),
			Credit:      accounting.FormatAmount(m.Credit),
		})
	}
	return out
}

type voidResponse struct {
	Original     entryResponse `json:"original"`
	Reversal     entryResponse `json:"reversal"`
	ApprovalUsed bool          `json:"approval_used"`
}

type integrityResponse struct {
	CheckedAt         string  `json:"checked_at"`
	OK                bool    `json:"ok"`
	Balanced          bool    `json:"balanced"`
	TotalDebit        string  `json:"total_debit"`
	TotalCredit       string  `json:"total_credit"`
	UnbalancedEntries []int64 `json:"unbalanced_entries"`
	BrokenReversals   []int64 `json:"broken_reversals"`
}

func newIntegrityResponse(r accounting.IntegrityReport) integrityResponse {
	out := integrityResponse{
		CheckedAt:         r.CheckedAt.UTC().Format(time.RFC3339),
		OK:                r.OK(),
		Balanced:          r.Balanced(),
		TotalDebit:        accounting.FormatAmount(r.TotalDebit),
		TotalCredit:       accounting.FormatAmount(r.TotalCredit),
		UnbalancedEntries: r.UnbalancedEntries,
		BrokenReversals:   r.BrokenReversals,
	}
	if out.UnbalancedEntries == nil {
		out.UnbalancedEntries = []int64{}
	}
	if out.BrokenReversals == nil {
		out.BrokenReversals = []int64{}
	}
	return out
}

func formatTimestamp(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
