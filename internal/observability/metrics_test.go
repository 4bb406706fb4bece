package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
)

var _ accounting.MetricsPort = (*Metrics)(nil)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/ledger/entries/{id}")
	req := httptest.NewRequest(http.MethodGet, "/ledger/entries/7", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_http_requests_total{code="418",route="/ledger/entries/{id}"} 1`)
	assert.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/ledger/entries/{id}"`)
}

func TestLedgerCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.EntryPosted()
	metrics.EntryPosted()
	metrics.VoidOutcome(accounting.VoidOutcomeOK)
	metrics.VoidOutcome(accounting.VoidOutcomeApprovalRequired)

	body := scrape(t, metrics)
	assert.Contains(t, body, "odyssey_ledger_entries_posted_total 2")
	assert.Contains(t, body, `odyssey_ledger_void_requests_total{outcome="approval_required"} 1`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.EntryPosted()
	m.VoidOutcome("ok")
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
