package commands_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accountingtest"
	"github.com/odyssey-erp/odyssey-ledger/internal/commands"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

const chartCSV = `codigo,nombre
1,Activo
11,Disponible
1105,Caja
4,Ingresos
4135,Comercio al por mayor
`

type harness struct {
	svc    *accounting.Service
	store  *accountingtest.Store
	opened int
	steps  []int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := accountingtest.NewStore()
	store.AddCounterparty(1, "Acme S.A.S.")
	svc := accounting.NewService(store, nil, accounting.NewDualPIN("4821", "9034"))
	svc.WithNow(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) })
	svc.WithCounterparties(store)
	return &harness{svc: svc, store: store}
}

func (h *harness) env() commands.Env {
	return commands.Env{
		OpenLedger: func(context.Context) (commands.Ledger, func(), error) {
			h.opened++
			return h.svc, nil, nil
		},
		MigrateUp: func() error { return nil },
		MigrateDown: func(steps int) error {
			h.steps = append(h.steps, steps)
			return nil
		},
	}
}

func (h *harness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := commands.NewRootCommand(h.env())
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeChart(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "puc.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestImportAccountsIsRerunnable(t *testing.T) {
	h := newHarness(t)
	path := writeChart(t, chartCSV)

	out, _, err := h.run(t, "import-accounts", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created 5, skipped 0, failed 0")

	caja, err := h.svc.ResolveAccount(context.Background(), "1105")
	require.NoError(t, err)
	assert.Equal(t, "11", caja.ParentCode)
	assert.Equal(t, accounting.ClassAsset, caja.Class)

	out, _, err = h.run(t, "import-accounts", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created 0, skipped 5, failed 0")
}

func TestImportAccountsDryRunWritesNothing(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "import-accounts", "--dry-run", writeChart(t, chartCSV))
	require.NoError(t, err)
	assert.Contains(t, out, "4135\tComercio al por mayor\tparent=4\t")
	assert.Contains(t, out, "5 account(s) planned")

	accounts, err := h.svc.ListAccounts(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestImportAccountsReportsRowErrors(t *testing.T) {
	h := newHarness(t)
	path := writeChart(t, "code,name,parent_code\n1,Activo,\n1105,Caja,19\n")

	_, stderr, err := h.run(t, "import-accounts", path)
	require.Error(t, err)
	assert.Contains(t, stderr, "1105:")
}

func TestImportAccountsMissingFile(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "import-accounts", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Zero(t, h.opened)
}

func TestExportAccountsRoundTrip(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "import-accounts", writeChart(t, chartCSV))
	require.NoError(t, err)

	out, _, err := h.run(t, "export-accounts")
	require.NoError(t, err)
	assert.Contains(t, out, "code,name,parent_code,class")
	assert.Contains(t, out, "1105,Caja,11,")
}

func TestTrialBalanceCommand(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run(t, "import-accounts", writeChart(t, chartCSV))
	require.NoError(t, err)
	_, err = h.svc.CreateEntry(context.Background(), accounting.CreateEntryInput{
		Date:           time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		CounterpartyID: 1,
		Concept:        "sale",
		Movements: []accounting.MovementInput{
			{AccountCode: "1105", Debit: decimal.RequireFromString("120.5")},
			{AccountCode: "4135", Credit: decimal.RequireFromString("120.5")},
		},
	})
	require.NoError(t, err)

	out, _, err := h.run(t, "trial-balance", "--from", "2024-03-01", "--to", "2024-03-31")
	require.NoError(t, err)
	assert.Contains(t, out, "Caja")
	assert.Contains(t, out, "120.50")
	assert.Contains(t, out, "TOTAL")

	_, _, err = h.run(t, "trial-balance", "--from", "2024-03-31", "--to", "2024-03-01")
	require.Error(t, err)
	_, _, err = h.run(t, "trial-balance", "--from", "01/03/2024")
	require.Error(t, err)
}

func TestPeriodCommands(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "period", "begin-closing", "2024", "--actor", "auditor")
	require.NoError(t, err)
	assert.Equal(t, "2024 IN_CLOSING\n", out)

	out, _, err = h.run(t, "period", "close", "2024", "--actor", "auditor")
	require.NoError(t, err)
	assert.Equal(t, "2024 CLOSED\n", out)

	_, _, err = h.run(t, "period", "close", "2024", "--actor", "auditor")
	require.ErrorIs(t, err, accounting.ErrInvalidPeriodTransition)

	out, _, err = h.run(t, "period", "reopen", "2024", "--actor", "admin")
	require.NoError(t, err)
	assert.Equal(t, "2024 OPEN\n", out)

	_, _, err = h.run(t, "period", "close", "twenty", "--actor", "auditor")
	require.Error(t, err)
	_, _, err = h.run(t, "period", "close", "2024", "--actor", "")
	require.Error(t, err)
}

func TestIntegrityCommand(t *testing.T) {
	h := newHarness(t)
	out, _, err := h.run(t, "integrity")
	require.NoError(t, err)
	assert.Contains(t, out, "debits 0.00, credits 0.00")
	assert.Contains(t, out, "ok")
}

func TestMigrateCommands(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date")

	_, _, err = h.run(t, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, h.steps)

	_, _, err = h.run(t, "migrate", "down", "--steps", "0")
	require.Error(t, err)
}

func TestUnconfiguredBackend(t *testing.T) {
	root := commands.NewRootCommand(commands.Env{})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"integrity"})
	err := root.Execute()
	require.Error(t, err)
	assert.False(t, errors.Is(err, accounting.ErrStorage))
}
