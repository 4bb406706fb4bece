package accountinghttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accountingtest"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	_ "github.com/odyssey-erp/odyssey-ledger/testing"
)

type testServer struct {
	t      *testing.T
	router chi.Router
	svc    *accounting.Service
	now    time.Time
}

func newTestServer(t *testing.T, today string) *testServer {
	t.Helper()
	store := accountingtest.NewStore()
	store.AddCounterparty(1, "Acme S.A.S.")
	now, err := time.Parse(time.DateOnly, today)
	require.NoError(t, err)
	ts := &testServer{t: t, now: now.Add(12 * time.Hour)}

	svc := accounting.NewService(store, nil, accounting.NewDualPIN("4821", "9034"))
	svc.WithNow(func() time.Time { return ts.now })
	svc.WithCounterparties(store)
	ts.svc = svc

	for _, in := range []accounting.CreateAccountInput{
		{Code: "1", Name: "Activo", Class: accounting.ClassAsset},
		{Code: "4", Name: "Ingresos", Class: accounting.ClassRevenue},
		{Code: "1105", Name: "Caja", ParentCode: "1"},
		{Code: "4135", Name: "Comercio", ParentCode: "4"},
	} {
		_, err := svc.CreateAccount(context.Background(), in)
		require.NoError(t, err)
	}

	h := NewHandler(nil, svc)
	h.now = func() time.Time { return ts.now }
	r := chi.NewRouter()
	h.MountRoutes(r)
	ts.router = r
	return ts
}

func (ts *testServer) do(method, path string, body any, actor string) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	return rr
}

func decodeProblem(t *testing.T, rr *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	return p
}

func entryBody(date string, debit, credit string) map[string]any {
	return map[string]any{
		"date":            date,
		"counterparty_id": 1,
		"concept":         "sale",
		"movements": []map[string]any{
			{"account_code": "1105", "debit": debit},
			{"account_code": "4135", "credit": credit},
		},
	}
}

func TestCreateEntryAndFetch(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")

	rr := ts.do(http.MethodPost, "/ledger/entries", entryBody("10/03/2024", "150.5", "150.50"), "maria")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created entryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "2024-03-10", created.Date)
	assert.Equal(t, "150.50", created.TotalDebit)
	assert.Equal(t, "maria", created.CreatedBy)
	assert.Equal(t, 3, created.FiscalPeriod)

	rr = ts.do(http.MethodGet, "/ledger/entries/1", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodGet, "/ledger/entries?status=active&from=2024-03-01", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Data       []entryResponse   `json:"data"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)
	assert.Equal(t, 1, list.Pagination.Total)
}

func TestCreateEntryUnbalancedCarriesTotals(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")

	rr := ts.do(http.MethodPost, "/ledger/entries", entryBody("2024-03-10", "500.00", "400.00"), "maria")

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	p := decodeProblem(t, rr)
	assert.Equal(t, "unbalanced_entry", p.Code)
	assert.Equal(t, "100.00", p.Context["discrepancy"])
}

func TestCreateEntryValidationListsFields(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")

	rr := ts.do(http.MethodPost, "/ledger/entries", map[string]any{
		"date":            "2024-03-10",
		"counterparty_id": 1,
		"concept":         "sale",
		"movements":       []map[string]any{{"debit": "1"}},
	}, "maria")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	p := decodeProblem(t, rr)
	require.Len(t, p.Errors, 1)
	assert.Equal(t, "account_code", p.Errors[0].Field)
	require.NotNil(t, p.Errors[0].Index)
	assert.Equal(t, 0, *p.Errors[0].Index)

	rr = ts.do(http.MethodPost, "/ledger/entries", entryBody("31-12-2024", "1", "1"), "maria")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateEntryUnknownAccount(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")
	body := entryBody("2024-03-10", "1", "1")
	body["movements"] = []map[string]any{
		{"account_code": "1105", "debit": "1"},
		{"account_code": "9999", "credit": "1"},
	}

	rr := ts.do(http.MethodPost, "/ledger/entries", body, "maria")

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	p := decodeProblem(t, rr)
	assert.Equal(t, "unknown_account", p.Code)
	assert.Equal(t, "9999", p.Context["account_code"])
	assert.EqualValues(t, 1, p.Context["index"])
}

func TestIdempotencyHeaderReplaysEntry(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")
	send := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(entryBody("2024-03-10", "5", "5")))
		req := httptest.NewRequest(http.MethodPost, "/ledger/entries", &buf)
		req.Header.Set("Idempotency-Key", "6f1c2d9e-3b7a-4c55-9a0e-2f8b1d4c7e10")
		rr := httptest.NewRecorder()
		ts.router.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	second := send()
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, http.StatusCreated, second.Code)
	var a, b entryResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &b))
	assert.Equal(t, a.ID, b.ID)
}

func TestOversizedAmountIsBadRequest(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")

	rr := ts.do(http.MethodPost, "/ledger/entries", entryBody("2024-03-10", "100000000000000", "100000000000000"), "maria")

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, rr.Header().Get("Retry-After"))
}

func TestVoidEndpointZones(t *testing.T) {
	ts := newTestServer(t, "2024-11-20")
	rr := ts.do(http.MethodPost, "/ledger/entries", entryBody("2024-11-20", "350", "350"), "maria")
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.do(http.MethodPost, "/ledger/entries/1/void", map[string]any{"reason": "typo"}, "")
	require.Equal(t, http.StatusBadRequest, rr.Code, "actor is mandatory")

	ts.now = ts.now.AddDate(0, 3, 0)
	rr = ts.do(http.MethodPost, "/ledger/entries/1/void", map[string]any{"reason": "typo"}, "maria")
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "approval_required", decodeProblem(t, rr).Code)

	rr = ts.do(http.MethodPost, "/ledger/entries/1/void", map[string]any{
		"reason": "typo", "accountant_pin": "4821", "manager_pin": "9034",
	}, "maria")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var out voidResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.True(t, out.ApprovalUsed)
	assert.Equal(t, "VOIDED", out.Original.Status)
	assert.Equal(t, "Reversal of entry #1", out.Reversal.Concept)

	rr = ts.do(http.MethodPost, "/ledger/entries/1/void", map[string]any{}, "maria")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "already_voided", decodeProblem(t, rr).Code)
}

func TestVoidOutsideWindow(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/ledger/entries", entryBody("2024-03-10", "1", "1"), "maria").Code)
	ts.now = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

	rr := ts.do(http.MethodPost, "/ledger/entries/1/void", map[string]any{}, "maria")

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	p := decodeProblem(t, rr)
	assert.Equal(t, "outside_void_window", p.Code)
	assert.EqualValues(t, 2024, p.Context["fiscal_year"])
}

func TestAccountRoutes(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")

	rr := ts.do(http.MethodPost, "/ledger/accounts", map[string]any{"code": "110505", "name": "Caja general", "parent_code": "1105"}, "maria")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = ts.do(http.MethodPost, "/ledger/accounts", map[string]any{"code": "9", "name": "Orden", "class": "ORDEN"}, "maria")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(http.MethodPost, "/ledger/accounts", map[string]any{"code": "1105", "name": "Caja", "parent_code": "1"}, "maria")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = ts.do(http.MethodGet, "/ledger/accounts/110505/ancestors", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var path struct {
		Data []accountResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &path))
	require.Len(t, path.Data, 3)
	assert.Equal(t, "ASSET", path.Data[2].Class)

	rr = ts.do(http.MethodGet, "/ledger/accounts?q=caja", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodGet, "/ledger/accounts/777", nil, "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = ts.do(http.MethodDelete, "/ledger/accounts/110505", nil, "maria")
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestPeriodRoutes(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")

	rr := ts.do(http.MethodGet, "/ledger/periods/2024", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var p periodResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "OPEN", p.State)
	assert.Equal(t, "2025-03-31", p.AdjustmentEnd)

	rr = ts.do(http.MethodPatch, "/ledger/periods/2024", map[string]any{"month13_enabled": false}, "maria")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(http.MethodPost, "/ledger/periods/2024/close", nil, "auditor")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "invalid_period_transition", decodeProblem(t, rr).Code)

	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/ledger/periods/2024/begin-closing", nil, "auditor").Code)
	rr = ts.do(http.MethodPost, "/ledger/periods/2024/close", nil, "auditor")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "CLOSED", p.State)
	assert.Equal(t, "auditor", p.ClosedBy)

	rr = ts.do(http.MethodPost, "/ledger/entries", entryBody("2024-03-10", "1", "1"), "maria")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "period_violation", decodeProblem(t, rr).Code)

	rr = ts.do(http.MethodGet, "/ledger/periods/abc", nil, "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestReportRoutes(t *testing.T) {
	ts := newTestServer(t, "2024-03-10")
	require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/ledger/entries", entryBody("2024-03-10", "75", "75"), "maria").Code)

	for _, path := range []string{
		"/ledger/reports/trial-balance?from=2024-01-01&to=2024-12-31",
		"/ledger/reports/general-ledger/1105",
		"/ledger/reports/income-statement?as_of=2024-03-31",
		"/ledger/reports/balance-sheet",
		"/ledger/reports/journal?from=01/03/2024",
		"/ledger/reports/counterparty/1",
		"/ledger/integrity",
	} {
		rr := ts.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, rr.Code, path+": "+rr.Body.String())
	}

	rr := ts.do(http.MethodGet, "/ledger/reports/trial-balance?from=2024-12-31&to=2024-01-01", nil, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(http.MethodGet, "/ledger/reports/counterparty/42", nil, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStorageFailureIsRetryable(t *testing.T) {
	p := problemFor(&accounting.StorageError{Op: "insert entry", Err: context.DeadlineExceeded})
	assert.Equal(t, http.StatusServiceUnavailable, p.Status)
	assert.Equal(t, true, p.Context["retryable"])

	rr := httptest.NewRecorder()
	h := NewHandler(nil, nil)
	h.fail(rr, httptest.NewRequest(http.MethodGet, "/", nil), &accounting.StorageError{Op: "x", Err: context.Canceled})
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}
