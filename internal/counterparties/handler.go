package counterparties

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type directory interface {
	Create(ctx context.Context, in CreateInput) (Counterparty, error)
	Get(ctx context.Context, id int64) (Counterparty, error)
	List(ctx context.Context, filter ListFilter) ([]Counterparty, int, error)
	UpdateContact(ctx context.Context, id int64, in ContactInput) (Counterparty, error)
	Delete(ctx context.Context, id int64) error
}

// Handler serves the counterparty directory.
type Handler struct {
	logger  *slog.Logger
	service directory
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service directory) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers /counterparties.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/counterparties", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, perPage := shared.ParsePage(q.Get("page"), q.Get("per_page"))
	limit, offset := shared.PageWindow(page, perPage)
	items, total, err := h.service.List(r.Context(), ListFilter{Search: q.Get("q"), Limit: limit, Offset: offset})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []Counterparty{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	c, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var in ContactInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	c, err := h.service.UpdateContact(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		p := httpx.ProblemDetail{Status: http.StatusBadRequest, Title: "Validation Failed", Code: "validation", Detail: verr.Error()}
		for _, f := range verr.Fields {
			p.Errors = append(p.Errors, httpx.FieldError{Field: f.Field, Message: "failed " + f.Tag})
		}
		httpx.WriteProblem(w, p)
	case errors.Is(err, ErrValidation):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusBadRequest, Code: "validation", Detail: err.Error()})
	case errors.Is(err, ErrNotFound):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusNotFound, Code: "counterparty_not_found", Detail: err.Error()})
	case errors.Is(err, ErrDuplicateDocument):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusConflict, Code: "duplicate_document", Detail: err.Error()})
	case errors.Is(err, ErrInUse):
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusConflict, Code: "counterparty_in_use", Detail: err.Error()})
	default:
		h.logger.Error("counterparty request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusInternalServerError, Code: "internal"})
	}
}
