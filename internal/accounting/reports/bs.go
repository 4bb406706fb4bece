package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	AsOf                      time.Time        `json:"as_of"`
	Assets                    StatementSection `json:"assets"`
	Liabilities               StatementSection `json:"liabilities"`
	Equity                    StatementSection `json:"equity"`
	NetIncome                 decimal.Decimal  `json:"net_income"`
	TotalEquity               decimal.Decimal  `json:"total_equity"`
	TotalLiabilitiesAndEquity decimal.Decimal  `json:"total_liabilities_and_equity"`
	// Balanced reports whether assets equal liabilities plus equity. It is
	// surfaced as computed and never corrected.
	Balanced   bool            `json:"balanced"`
	Difference decimal.Decimal `json:"difference"`
}

// BuildBalanceSheet aggregates balances into assets, liabilities and equity.
// Liabilities and equity are credit natured, so their raw balance is negated.
// Net income of the period is folded into equity.
func BuildBalanceSheet(asOf time.Time, accounts []AccountBalance) BalanceSheet {
	bs := BalanceSheet{
		AsOf:        asOf,
		Assets:      StatementSection{Label: "Assets"},
		Liabilities: StatementSection{Label: "Liabilities"},
		Equity:      StatementSection{Label: "Equity"},
	}
	for _, acc := range accounts {
		switch acc.Class {
		case ClassAsset:
			bs.Assets.add(acc.Code, acc.Name, acc.Closing())
		case ClassLiability:
			bs.Liabilities.add(acc.Code, acc.Name, acc.Closing().Neg())
		case ClassEquity:
			bs.Equity.add(acc.Code, acc.Name, acc.Closing().Neg())
		}
	}
	bs.Assets.sort()
	bs.Liabilities.sort()
	bs.Equity.sort()

	bs.NetIncome = BuildIncomeStatement(asOf, accounts).NetIncome
	bs.TotalEquity = bs.Equity.Total.Add(bs.NetIncome)
	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.TotalEquity)
	bs.Difference = bs.Assets.Total.Sub(bs.TotalLiabilitiesAndEquity)
	bs.Balanced = bs.Difference.IsZero()
	return bs
}
