package accounting_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accountingtest"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

const (
	accountantPIN = "4821"
	managerPIN    = "9034"
	acme          = int64(1)
)

type fixture struct {
	t         *testing.T
	svc       *accounting.Service
	store     *accountingtest.Store
	audit     *accountingtest.AuditRecorder
	approvals *accountingtest.ApprovalRecorder
	metrics   *accountingtest.Metrics

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	f := &fixture{
		t:         t,
		store:     accountingtest.NewStore(),
		audit:     &accountingtest.AuditRecorder{},
		approvals: &accountingtest.ApprovalRecorder{},
		metrics:   &accountingtest.Metrics{},
	}
	f.at(today)
	f.svc = accounting.NewService(f.store, f.audit, accounting.NewDualPIN(accountantPIN, managerPIN))
	f.svc.WithNow(f.clock)
	f.svc.WithCounterparties(f.store)
	f.svc.WithApprovals(f.approvals)
	f.svc.WithMetrics(f.metrics)
	f.store.AddCounterparty(acme, "Acme S.A.S.")
	f.seedChart()
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// at moves the clock to noon of the given day.
func (f *fixture) at(day string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = date(f.t, day).Add(12 * time.Hour)
}

func (f *fixture) seedChart() {
	ctx := context.Background()
	roots := []accounting.CreateAccountInput{
		{Code: "1", Name: "Activo", Class: accounting.ClassAsset},
		{Code: "2", Name: "Pasivo", Class: accounting.ClassLiability},
		{Code: "3", Name: "Patrimonio", Class: accounting.ClassEquity},
		{Code: "4", Name: "Ingresos", Class: accounting.ClassRevenue},
		{Code: "5", Name: "Gastos", Class: accounting.ClassExpense},
		{Code: "6", Name: "Costo de ventas", Class: accounting.ClassCostOfSales},
		{Code: "7", Name: "Costos de producción", Class: accounting.ClassProductionCost},
		{Code: "8", Name: "Cuentas de orden", Class: accounting.ClassMemorandum},
	}
	children := []accounting.CreateAccountInput{
		{Code: "11", Name: "Disponible", ParentCode: "1"},
		{Code: "1105", Name: "Caja", ParentCode: "11"},
		{Code: "1110", Name: "Bancos", ParentCode: "11"},
		{Code: "2205", Name: "Proveedores nacionales", ParentCode: "2"},
		{Code: "3105", Name: "Capital suscrito", ParentCode: "3"},
		{Code: "41", Name: "Operacionales", ParentCode: "4"},
		{Code: "4135", Name: "Comercio al por mayor", ParentCode: "41"},
		{Code: "5105", Name: "Gastos de personal", ParentCode: "5"},
		{Code: "6135", Name: "Costo comercio", ParentCode: "6"},
		{Code: "7105", Name: "Materia prima", ParentCode: "7"},
		{Code: "8105", Name: "Bienes en custodia", ParentCode: "8"},
		{Code: "8905", Name: "Contrapartida custodia", ParentCode: "8"},
	}
	for _, in := range append(roots, children...) {
		_, err := f.svc.CreateAccount(ctx, in)
		require.NoError(f.t, err, in.Code)
	}
}

// post creates a two-line entry debiting one account and crediting another.
func (f *fixture) post(day, debitCode, creditCode, amount string) accounting.JournalEntry {
	f.t.Helper()
	entry, err := f.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           date(f.t, day),
		CounterpartyID: acme,
		Concept:        "test posting",
		CreatedBy:      "maria",
		Movements: []accounting.MovementInput{
			{AccountCode: debitCode, Debit: dec(amount)},
			{AccountCode: creditCode, Credit: dec(amount)},
		},
	})
	require.NoError(f.t, err)
	return entry
}

func date(t *testing.T, day string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, day)
	require.NoError(t, err)
	return d
}

func datePtr(t *testing.T, day string) *time.Time {
	d := date(t, day)
	return &d
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int { return &v }

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s got %s %v", want, got.String(), msgAndArgs)
}
