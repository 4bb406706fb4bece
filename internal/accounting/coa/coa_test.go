package coa

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accountingtest"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

const pucSample = "\ufeffcodigo,nombre\n" +
	"110505,Caja general\n" +
	"1,Activo\n" +
	"11,Disponible\n" +
	"1105,Caja\n" +
	"41,Operacionales\n" +
	"4135,Comercio al por mayor y al por menor\n" +
	"\n"

func TestReadAccountsAcceptsSpanishHeaders(t *testing.T) {
	rows, err := ReadAccounts(strings.NewReader(pucSample))
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "110505", rows[0].Code)
	assert.Equal(t, "Caja general", rows[0].Name)
	assert.Equal(t, 2, rows[0].Line)
}

func TestReadAccountsRequiresColumns(t *testing.T) {
	_, err := ReadAccounts(strings.NewReader("name\nCaja\n"))
	require.Error(t, err)

	_, err = ReadAccounts(strings.NewReader("code,name,class\n1,Activo,INCOME\n"))
	require.ErrorIs(t, err, accounting.ErrValidation)
}

func TestPlanInfersParentsAndClasses(t *testing.T) {
	rows, err := ReadAccounts(strings.NewReader(pucSample))
	require.NoError(t, err)

	plan := Plan(rows, nil)

	byCode := map[string]accounting.CreateAccountInput{}
	order := []string{}
	for _, in := range plan {
		byCode[in.Code] = in
		order = append(order, in.Code)
	}
	assert.Equal(t, []string{"1", "11", "41", "1105", "4135", "110505"}, order)
	assert.Equal(t, accounting.ClassAsset, byCode["1"].Class)
	assert.Equal(t, "1", byCode["11"].ParentCode)
	assert.Equal(t, "11", byCode["1105"].ParentCode)
	assert.Equal(t, "1105", byCode["110505"].ParentCode)
	assert.Empty(t, byCode["41"].ParentCode)
	assert.Equal(t, accounting.ClassRevenue, byCode["41"].Class)
	assert.Equal(t, "41", byCode["4135"].ParentCode)
}

func TestPlanUsesExistingChart(t *testing.T) {
	plan := Plan([]Row{{Code: "4175", Name: "Devoluciones"}}, []accounting.Account{{Code: "4", Class: accounting.ClassRevenue}, {Code: "41", ParentCode: "4"}})
	require.Len(t, plan, 1)
	assert.Equal(t, "41", plan[0].ParentCode)
	assert.Empty(t, plan[0].Class)
}

func TestImportIsRerunnable(t *testing.T) {
	store := accountingtest.NewStore()
	svc := accounting.NewService(store, nil, nil)
	rows, err := ReadAccounts(strings.NewReader(pucSample))
	require.NoError(t, err)
	ctx := context.Background()

	res, err := Import(ctx, svc, Plan(rows, nil))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Created)
	assert.Empty(t, res.Errors)

	res, err = Import(ctx, svc, Plan(rows, nil))
	require.NoError(t, err)
	assert.Equal(t, 6, res.Skipped)

	acc, err := svc.ResolveAccount(ctx, "110505")
	require.NoError(t, err)
	assert.Equal(t, accounting.ClassAsset, acc.Class)
}

func TestImportCollectsRowErrors(t *testing.T) {
	store := accountingtest.NewStore()
	svc := accounting.NewService(store, nil, nil)

	res, err := Import(context.Background(), svc, []accounting.CreateAccountInput{
		{Code: "1", Name: "Activo", Class: accounting.ClassAsset},
		{Code: "1105", Name: "", ParentCode: "1"},
		{Code: "2205", Name: "Proveedores", ParentCode: "22"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "1105", res.Errors[0].Code)
	assert.Equal(t, "2205", res.Errors[1].Code)
}

func TestWriteAccountsRoundTrip(t *testing.T) {
	accounts := []accounting.Account{
		{Code: "1", Name: "Activo", Class: accounting.ClassAsset},
		{Code: "11", Name: "Disponible, caja y bancos", ParentCode: "1", Class: accounting.ClassAsset},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteAccounts(&buf, accounts))

	rows, err := ReadAccounts(&buf)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, accounting.ClassAsset, rows[0].Class)
	assert.Equal(t, "1", rows[1].ParentCode)
	assert.Empty(t, rows[1].Class)
	assert.Equal(t, "Disponible, caja y bancos", rows[1].Name)
}
