// Package accountinghttp exposes the ledger engine over a JSON REST API.
package accountinghttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type ledgerService interface {
	CreateAccount(ctx context.Context, in accounting.CreateAccountInput) (accounting.Account, error)
	ResolveAccount(ctx context.Context, code string) (accounting.Account, error)
	Ancestors(ctx context.Context, code string) ([]accounting.Account, error)
	ListAccounts(ctx context.Context, search string) ([]accounting.Account, error)
	DeleteAccount(ctx context.Context, code string) error

	GetPeriod(ctx context.Context, year int) (accounting.FiscalPeriod, error)
	BeginClosing(ctx context.Context, year int, actor string) (accounting.FiscalPeriod, error)
	ClosePeriod(ctx context.Context, year int, actor string) (accounting.FiscalPeriod, error)
	ReopenPeriod(ctx context.Context, year int, actor string) (accounting.FiscalPeriod, error)
	UpdatePeriodSettings(ctx context.Context, in accounting.PeriodSettingsInput) (accounting.FiscalPeriod, error)

	CreateEntry(ctx context.Context, in accounting.CreateEntryInput) (accounting.JournalEntry, error)
	GetEntry(ctx context.Context, id int64) (accounting.JournalEntry, error)
	ListEntries(ctx context.Context, filter accounting.EntryFilter) ([]accounting.JournalEntry, int, error)
	VoidEntry(ctx context.Context, in accounting.VoidInput) (accounting.ReversalResult, error)

	TrialBalance(ctx context.Context, r accounting.DateRange) (reports.TrialBalance, error)
	GeneralLedger(ctx context.Context, code string, r accounting.DateRange) (reports.GeneralLedger, error)
	IncomeStatement(ctx context.Context, asOf time.Time) (reports.IncomeStatement, error)
	BalanceSheet(ctx context.Context, asOf time.Time) (reports.BalanceSheet, error)
	JournalBook(ctx context.Context, r accounting.DateRange) (reports.JournalBook, error)
	CounterpartyLedger(ctx context.Context, counterpartyID int64, r accounting.DateRange) (reports.CounterpartyLedger, error)
	CheckIntegrity(ctx context.Context) (accounting.IntegrityReport, error)
}

// Handler wires the ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   ledgerService
	validator *validator.Validate
	voidLimit func(http.Handler) http.Handler
	now       func() time.Time
}

// NewHandler constructs a ledger HTTP handler.
func NewHandler(logger *slog.Logger, service ledgerService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: newValidator(),
		now:       time.Now,
	}
}

// WithVoidLimiter installs a dedicated middleware on the void endpoint.
func (h *Handler) WithVoidLimiter(mw func(http.Handler) http.Handler) { h.voidLimit = mw }

// MountRoutes registers the ledger routes under /ledger.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.listAccounts)
			r.Post("/", h.createAccount)
			r.Get("/{code}", h.getAccount)
			r.Get("/{code}/ancestors", h.accountAncestors)
			r.Delete("/{code}", h.deleteAccount)
		})
		r.Route("/periods/{year}", func(r chi.Router) {
			r.Get("/", h.getPeriod)
			r.Patch("/", h.updatePeriod)
			r.Post("/begin-closing", h.transitionPeriod(h.service.BeginClosing))
			r.Post("/close", h.transitionPeriod(h.service.ClosePeriod))
			r.Post("/reopen", h.transitionPeriod(h.service.ReopenPeriod))
		})
		r.Route("/entries", func(r chi.Router) {
			r.Get("/", h.listEntries)
			r.Post("/", h.createEntry)
			r.Get("/{id}", h.getEntry)
			r.Group(func(r chi.Router) {
				if h.voidLimit != nil {
					r.Use(h.voidLimit)
				}
				r.Post("/{id}/void", h.voidEntry)
			})
		})
		r.Route("/reports", func(r chi.Router) {
			r.Get("/trial-balance", h.trialBalance)
			r.Get("/general-ledger/{code}", h.generalLedger)
			r.Get("/income-statement", h.incomeStatement)
			r.Get("/balance-sheet", h.balanceSheet)
			r.Get("/journal", h.journalBook)
			r.Get("/counterparty/{id}", h.counterpartyLedger)
		})
		r.Get("/integrity", h.integrity)
	})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	acc, err := h.service.CreateAccount(r.Context(), req.toInput())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newAccountResponse(acc))
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.service.ResolveAccount(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newAccountResponse(acc))
}

func (h *Handler) accountAncestors(w http.ResponseWriter, r *http.Request) {
	path, err := h.service.Ancestors(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]accountResponse, 0, len(path))
	for _, a := range path {
		out = append(out, newAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAccount(r.Context(), chi.URLParam(r, "code")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetPeriod(r.Context(), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodResponse(p))
}

func (h *Handler) updatePeriod(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	var req periodSettingsRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toInput(year, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.UpdatePeriodSettings(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newPeriodResponse(p))
}

type periodTransition func(ctx context.Context, year int, actor string) (accounting.FiscalPeriod, error)

func (h *Handler) transitionPeriod(fn periodTransition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, ok := h.yearParam(w, r)
		if !ok {
			return
		}
		actor, ok := h.requireActor(w, r)
		if !ok {
			return
		}
		p, err := fn(r.Context(), year, actor)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, newPeriodResponse(p))
	}
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filter := accounting.EntryFilter{From: rng.From, To: rng.To, Status: accounting.EntryStatus(strings.ToUpper(q.Get("status")))}
	if raw := q.Get("counterparty_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			h.fail(w, r, &accounting.ValidationError{Field: "counterparty_id", Index: -1, Message: "must be a positive integer"})
			return
		}
		filter.CounterpartyID = id
	}
	page, perPage := shared.ParsePage(q.Get("page"), q.Get("per_page"))
	filter.Limit, filter.Offset = shared.PageWindow(page, perPage)

	entries, total, err := h.service.ListEntries(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       out,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toInput(shared.ActorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if in.IdempotencyKey == nil {
		key, err := idempotencyHeader(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		in.IdempotencyKey = key
	}
	entry, err := h.service.CreateEntry(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newEntryResponse(entry))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newEntryResponse(entry))
}

func (h *Handler) voidEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req voidRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.VoidEntry(r.Context(), req.toInput(id, actor))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("journal entry voided",
		slog.Int64("entry_id", id),
		slog.Int64("reversal_id", result.Reversal.ID),
		slog.Bool("approval_used", result.ApprovalUsed),
		slog.String("actor", actor))
	httpx.JSON(w, http.StatusOK, voidResponse{
		Original:     newEntryResponse(result.Original),
		Reversal:     newEntryResponse(result.Reversal),
		ApprovalUsed: result.ApprovalUsed,
	})
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), rng)
	h.respond(w, r, tb, err)
}

func (h *Handler) generalLedger(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	gl, err := h.service.GeneralLedger(r.Context(), chi.URLParam(r, "code"), rng)
	h.respond(w, r, gl, err)
}

func (h *Handler) incomeStatement(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOfParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	is, err := h.service.IncomeStatement(r.Context(), asOf)
	h.respond(w, r, is, err)
}

func (h *Handler) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOfParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), asOf)
	h.respond(w, r, bs, err)
}

func (h *Handler) journalBook(w http.ResponseWriter, r *http.Request) {
	rng, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	book, err := h.service.JournalBook(r.Context(), rng)
	h.respond(w, r, book, err)
}

func (h *Handler) counterpartyLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	rng, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ledger, err := h.service.CounterpartyLedger(r.Context(), id, rng)
	h.respond(w, r, ledger, err)
}

func (h *Handler) integrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.CheckIntegrity(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, newIntegrityResponse(report))
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, body any, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, body)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		h.fail(w, r, fieldErrors(err))
		return false
	}
	return true
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := shared.ActorFromContext(r.Context())
	if actor == "" {
		h.fail(w, r, &accounting.ValidationError{Field: "X-Actor", Index: -1, Message: "header is required"})
		return "", false
	}
	return actor, true
}

func (h *Handler) yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.fail(w, r, &accounting.ValidationError{Field: "year", Index: -1, Message: "must be an integer"})
		return 0, false
	}
	return year, true
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, r, &accounting.ValidationError{Field: "id", Index: -1, Message: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) asOfParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		y, m, d := h.now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return parseDate("as_of", raw)
}
