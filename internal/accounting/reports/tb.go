package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Account classes understood by the statement builders.
const (
	ClassAsset          = "ASSET"
	ClassLiability      = "LIABILITY"
	ClassEquity         = "EQUITY"
	ClassRevenue        = "REVENUE"
	ClassExpense        = "EXPENSE"
	ClassCostOfSales    = "COST_OF_SALES"
	ClassProductionCost = "PRODUCTION_COST"
	ClassMemorandum     = "MEMORANDUM"
)

// AccountBalance models a ledger account with aggregated movement sums.
type AccountBalance struct {
	Code    string
	Name    string
	Class   string
	Opening decimal.Decimal
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Closing computes the closing balance for the account (debit minus credit).
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Opening.Add(a.Debit).Sub(a.Credit)
}

// IsZero reports whether every figure of the account is zero.
func (a AccountBalance) IsZero() bool {
	return a.Opening.IsZero() && a.Debit.IsZero() && a.Credit.IsZero()
}

// TrialBalanceRow represents a single account inside the trial balance.
type TrialBalanceRow struct {
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Class   string          `json:"class"`
	Opening decimal.Decimal `json:"opening"`
	Debit   decimal.Decimal `json:"debit"`
	Credit  decimal.Decimal `json:"credit"`
	Closing decimal.Decimal `json:"closing"`
}

// TrialBalance is the per-account opening/period/closing report.
type TrialBalance struct {
	From         *time.Time        `json:"from,omitempty"`
	To           *time.Time        `json:"to,omitempty"`
	Rows         []TrialBalanceRow `json:"rows"`
	TotalOpening decimal.Decimal   `json:"total_opening"`
	TotalDebit   decimal.Decimal   `json:"total_debit"`
	TotalCredit  decimal.Decimal   `json:"total_credit"`
	TotalClosing decimal.Decimal   `json:"total_closing"`
	// Balanced holds when period debits equal period credits.
	Balanced bool `json:"balanced"`
	// Reconciled holds when closing totals equal opening plus period movement.
	Reconciled bool `json:"reconciled"`
}

// BuildTrialBalance converts account balances into trial balance rows ordered by code.
// Accounts whose figures are all zero are omitted.
func BuildTrialBalance(from, to *time.Time, accounts []AccountBalance) TrialBalance {
	result := TrialBalance{From: from, To: to, Rows: make([]TrialBalanceRow, 0, len(accounts))}
	for _, acc := range accounts {
		if acc.IsZero() {
			continue
		}
		row := TrialBalanceRow{
			Code:    acc.Code,
			Name:    acc.Name,
			Class:   acc.Class,
			Opening: acc.Opening,
			Debit:   acc.Debit,
			Credit:  acc.Credit,
			Closing: acc.Closing(),
		}
		result.Rows = append(result.Rows, row)
		result.TotalOpening = result.TotalOpening.Add(row.Opening)
		result.TotalDebit = result.TotalDebit.Add(row.Debit)
		result.TotalCredit = result.TotalCredit.Add(row.Credit)
		result.TotalClosing = result.TotalClosing.Add(row.Closing)
	}
	sort.Slice(result.Rows, func(i, j int) bool {
		return result.Rows[i].Code < result.Rows[j].Code
	})
	result.Balanced = result.TotalDebit.Equal(result.TotalCredit)
	result.Reconciled = result.TotalClosing.Equal(result.TotalOpening.Add(result.TotalDebit).Sub(result.TotalCredit))
	return result
}

// CounterpartyLedger is a trial balance restricted to one counterparty's entries.
type CounterpartyLedger struct {
	CounterpartyID   int64        `json:"counterparty_id"`
	CounterpartyName string       `json:"counterparty_name"`
	Balance          TrialBalance `json:"balance"`
}

// BuildCounterpartyLedger wraps the scoped balances of a counterparty.
func BuildCounterpartyLedger(id int64, name string, from, to *time.Time, accounts []AccountBalance) CounterpartyLedger {
	return CounterpartyLedger{
		CounterpartyID:   id,
		CounterpartyName: name,
		Balance:          BuildTrialBalance(from, to, accounts),
	}
}
