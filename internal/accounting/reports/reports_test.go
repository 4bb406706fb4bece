package reports

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildTrialBalance(t *testing.T) {
	accounts := []AccountBalance{
		{Code: "1105", Name: "Cash", Class: ClassAsset, Opening: d("1000"), Debit: d("200"), Credit: d("150")},
		{Code: "1110", Name: "Bank", Class: ClassAsset, Opening: d("500"), Debit: d("100"), Credit: d("50")},
		{Code: "2205", Name: "Accounts Payable", Class: ClassLiability, Opening: d("0"), Debit: d("10"), Credit: d("400")},
		{Code: "5105", Name: "Idle", Class: ClassExpense},
	}

	tb := BuildTrialBalance(nil, nil, accounts)
	if len(tb.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(tb.Rows))
	}
	if !tb.TotalDebit.Equal(d("310")) {
		t.Fatalf("unexpected total debit: %v", tb.TotalDebit)
	}
	if !tb.TotalCredit.Equal(d("600")) {
		t.Fatalf("unexpected total credit: %v", tb.TotalCredit)
	}
	if !tb.TotalOpening.Equal(d("1500")) {
		t.Fatalf("unexpected total opening: %v", tb.TotalOpening)
	}
	if !tb.TotalClosing.Equal(d("1210")) {
		t.Fatalf("unexpected closing total: %v", tb.TotalClosing)
	}
	if tb.Balanced {
		t.Fatalf("expected unbalanced period figures")
	}
	if !tb.Reconciled {
		t.Fatalf("expected closing to reconcile")
	}
}

func TestBuildIncomeStatement(t *testing.T) {
	accounts := []AccountBalance{
		{Code: "4135", Name: "Sales", Class: ClassRevenue, Credit: d("1200")},
		{Code: "6135", Name: "COGS", Class: ClassCostOfSales, Debit: d("300")},
		{Code: "7105", Name: "Raw material", Class: ClassProductionCost, Debit: d("50")},
		{Code: "5105", Name: "Marketing", Class: ClassExpense, Debit: d("200")},
		{Code: "8105", Name: "Custody", Class: ClassMemorandum, Debit: d("999")},
	}

	is := BuildIncomeStatement(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), accounts)
	if !is.Revenue.Total.Equal(d("1200")) {
		t.Fatalf("expected revenue total 1200 got %v", is.Revenue.Total)
	}
	if !is.CostOfSales.Total.Equal(d("350")) {
		t.Fatalf("expected cost of sales 350 got %v", is.CostOfSales.Total)
	}
	if !is.GrossProfit.Equal(d("850")) {
		t.Fatalf("expected gross profit 850 got %v", is.GrossProfit)
	}
	if !is.NetIncome.Equal(d("650")) {
		t.Fatalf("expected net income 650 got %v", is.NetIncome)
	}
}

func TestBuildBalanceSheet(t *testing.T) {
	accounts := []AccountBalance{
		{Code: "1105", Name: "Cash", Class: ClassAsset, Debit: d("100"), Credit: d("20")},
		{Code: "2205", Name: "AP", Class: ClassLiability, Debit: d("10"), Credit: d("40")},
		{Code: "3105", Name: "Equity", Class: ClassEquity, Opening: d("-500")},
	}

	bs := BuildBalanceSheet(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), accounts)
	if !bs.Assets.Total.Equal(d("80")) {
		t.Fatalf("expected assets 80 got %v", bs.Assets.Total)
	}
	if !bs.Liabilities.Total.Equal(d("30")) {
		t.Fatalf("expected liabilities 30 got %v", bs.Liabilities.Total)
	}
	if !bs.Equity.Total.Equal(d("500")) {
		t.Fatalf("expected equity 500 got %v", bs.Equity.Total)
	}
	if !bs.TotalLiabilitiesAndEquity.Equal(d("530")) {
		t.Fatalf("expected total L+E 530 got %v", bs.TotalLiabilitiesAndEquity)
	}
	if bs.Balanced || !bs.Difference.Equal(d("-450")) {
		t.Fatalf("expected an exposed imbalance of -450, got %v", bs.Difference)
	}
}

func TestBuildGeneralLedgerOrdersDeterministically(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	lines := []LedgerLine{
		{Date: day.AddDate(0, 0, 1), EntryID: 1, MovementID: 1, Debit: d("10")},
		{Date: day, EntryID: 3, MovementID: 7, Credit: d("5")},
		{Date: day, EntryID: 2, MovementID: 9, Debit: d("1")},
		{Date: day, EntryID: 2, MovementID: 4, Debit: d("2")},
	}

	gl := BuildGeneralLedger("1105", "Cash", nil, nil, d("100"), lines)
	got := []int64{}
	for _, r := range gl.Rows {
		got = append(got, r.MovementID)
	}
	want := []int64{4, 9, 7, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v", got)
		}
	}
	if !gl.Closing.Equal(d("108")) {
		t.Fatalf("expected closing 108 got %v", gl.Closing)
	}
	if !gl.Rows[2].Balance.Equal(d("98")) {
		t.Fatalf("expected running balance 98 got %v", gl.Rows[2].Balance)
	}
}

func TestBuildJournalBook(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	book := BuildJournalBook(nil, nil, []LedgerLine{
		{Date: day, EntryID: 1, MovementID: 2, Credit: d("10")},
		{Date: day, EntryID: 1, MovementID: 1, Debit: d("10")},
	})
	if !book.Balanced || book.Lines[0].MovementID != 1 {
		t.Fatalf("unexpected journal book %+v", book)
	}
}
