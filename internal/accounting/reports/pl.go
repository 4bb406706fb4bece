package reports

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StatementAccount is an account line on a financial statement, signed by its nature.
type StatementAccount struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// StatementSection groups accounts of one classification.
type StatementSection struct {
	Label    string             `json:"label"`
	Accounts []StatementAccount `json:"accounts"`
	Total    decimal.Decimal    `json:"total"`
}

func (s *StatementSection) add(code, name string, amount decimal.Decimal) {
	if amount.IsZero() {
		return
	}
	s.Accounts = append(s.Accounts, StatementAccount{Code: code, Name: name, Amount: amount})
	s.Total = s.Total.Add(amount)
}

func (s *StatementSection) sort() {
	sort.Slice(s.Accounts, func(i, j int) bool { return s.Accounts[i].Code < s.Accounts[j].Code })
}

// IncomeStatement summarises revenue, costs and expenses up to a cut-off date.
type IncomeStatement struct {
	AsOf              time.Time        `json:"as_of"`
	Revenue           StatementSection `json:"revenue"`
	CostOfSales       StatementSection `json:"cost_of_sales"`
	OperatingExpenses StatementSection `json:"operating_expenses"`
	GrossProfit       decimal.Decimal  `json:"gross_profit"`
	OperatingIncome   decimal.Decimal  `json:"operating_income"`
	NetIncome         decimal.Decimal  `json:"net_income"`
}

// BuildIncomeStatement aggregates revenue (credit natured) against cost of sales,
// production costs and operating expenses (debit natured).
func BuildIncomeStatement(asOf time.Time, accounts []AccountBalance) IncomeStatement {
	is := IncomeStatement{
		AsOf:              asOf,
		Revenue:           StatementSection{Label: "Revenue"},
		CostOfSales:       StatementSection{Label: "Cost of sales"},
		OperatingExpenses: StatementSection{Label: "Operating expenses"},
	}
	for _, acc := range accounts {
		switch acc.Class {
		case ClassRevenue:
			is.Revenue.add(acc.Code, acc.Name, acc.Closing().Neg())
		case ClassCostOfSales, ClassProductionCost:
			is.CostOfSales.add(acc.Code, acc.Name, acc.Closing())
		case ClassExpense:
			is.OperatingExpenses.add(acc.Code, acc.Name, acc.Closing())
		}
	}
	is.Revenue.sort()
	is.CostOfSales.sort()
	is.OperatingExpenses.sort()

	is.GrossProfit = is.Revenue.Total.Sub(is.CostOfSales.Total)
	is.OperatingIncome = is.GrossProfit.Sub(is.OperatingExpenses.Total)
	is.NetIncome = is.OperatingIncome
	return is
}
