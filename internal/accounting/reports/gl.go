package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerLine is one movement as seen by the ledger-style reports.
type LedgerLine struct {
	Date         time.Time       `json:"date"`
	EntryID      int64           `json:"entry_id"`
	MovementID   int64           `json:"movement_id"`
	AccountCode  string          `json:"account_code"`
	AccountName  string          `json:"account_name"`
	Counterparty string          `json:"counterparty"`
	Concept      string          `json:"concept"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Voided       bool            `json:"voided"`
}

// GeneralLedgerRow adds the running balance to a ledger line.
type GeneralLedgerRow struct {
	LedgerLine
	Balance decimal.Decimal `json:"balance"`
}

// GeneralLedger is the chronological movement history of a single account.
type GeneralLedger struct {
	AccountCode string             `json:"account_code"`
	AccountName string             `json:"account_name"`
	From        *time.Time         `json:"from,omitempty"`
	To          *time.Time         `json:"to,omitempty"`
	Opening     decimal.Decimal    `json:"opening"`
	Rows        []GeneralLedgerRow `json:"rows"`
	TotalDebit  decimal.Decimal    `json:"total_debit"`
	TotalCredit decimal.Decimal    `json:"total_credit"`
	Closing     decimal.Decimal    `json:"closing"`
}

// SortLines orders lines by (date, entry id, movement id).
func SortLines(lines []LedgerLine) {
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.EntryID != b.EntryID {
			return a.EntryID < b.EntryID
		}
		return a.MovementID < b.MovementID
	})
}

// BuildGeneralLedger computes the running balance starting from opening.
func BuildGeneralLedger(code, name string, from, to *time.Time, opening decimal.Decimal, lines []LedgerLine) GeneralLedger {
	sorted := append([]LedgerLine(nil), lines...)
	SortLines(sorted)

	gl := GeneralLedger{
		AccountCode: code,
		AccountName: name,
		From:        from,
		To:          to,
		Opening:     opening,
		Rows:        make([]GeneralLedgerRow, 0, len(sorted)),
	}
	balance := opening
	for _, line := range sorted {
		balance = balance.Add(line.Debit).Sub(line.Credit)
		gl.TotalDebit = gl.TotalDebit.Add(line.Debit)
		gl.TotalCredit = gl.TotalCredit.Add(line.Credit)
		gl.Rows = append(gl.Rows, GeneralLedgerRow{LedgerLine: line, Balance: balance})
	}
	gl.Closing = balance
	return gl
}

// JournalBook lists every movement in posting order.
type JournalBook struct {
	From        *time.Time      `json:"from,omitempty"`
	To          *time.Time      `json:"to,omitempty"`
	Lines       []LedgerLine    `json:"lines"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	Balanced    bool            `json:"balanced"`
}

// BuildJournalBook orders the lines and totals both columns.
func BuildJournalBook(from, to *time.Time, lines []LedgerLine) JournalBook {
	sorted := append([]LedgerLine(nil), lines...)
	SortLines(sorted)
	book := JournalBook{From: from, To: to, Lines: sorted}
	for _, line := range sorted {
		book.TotalDebit = book.TotalDebit.Add(line.Debit)
		book.TotalCredit = book.TotalCredit.Add(line.Credit)
	}
	book.Balanced = book.TotalDebit.Equal(book.TotalCredit)
	return book
}
