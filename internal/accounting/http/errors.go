package accountinghttp

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("account_class", func(fl validator.FieldLevel) bool {
		_, err := accounting.ParseAccountClass(fl.Field().String())
		return err == nil
	})
	return v
}

var movementIndex = regexp.MustCompile(`^movements\[(\d+)\]$`)

// fieldErrors converts validator output into the ledger's validation errors
// so both sources render the same way.
func fieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &accounting.ValidationError{Field: "body", Index: -1, Message: err.Error()}
	}
	out := make(accounting.ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		field, index := fe.Field(), -1
		parts := strings.Split(fe.Namespace(), ".")
		if len(parts) > 2 {
			if m := movementIndex.FindStringSubmatch(parts[1]); m != nil {
				index, _ = strconv.Atoi(m[1])
			}
		}
		out = append(out, &accounting.ValidationError{Field: field, Index: index, Message: tagMessage(fe)})
	}
	return out
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must contain at least " + fe.Param() + " item"
	case "gt", "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "account_class":
		return "must be one of " + strings.Join(classNames(), ", ")
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func classNames() []string {
	out := make([]string, 0, len(accounting.AccountClasses))
	for _, c := range accounting.AccountClasses {
		out = append(out, string(c))
	}
	return out
}

// fail renders err as an RFC7807 problem. Ledger error context is copied
// into extension members so clients can act on it without parsing text.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	p := problemFor(err)
	if p.Status >= http.StatusInternalServerError {
		h.logger.Error("ledger request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	if p.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	httpx.WriteProblem(w, p)
}

func problemFor(err error) httpx.ProblemDetail {
	var (
		verrs      accounting.ValidationErrors
		verr       *accounting.ValidationError
		unbalanced *accounting.UnbalancedEntryError
		unknown    *accounting.UnknownAccountError
		period     *accounting.PeriodViolationError
		voided     *accounting.AlreadyVoidedError
		closed     *accounting.PeriodClosedError
		outside    *accounting.OutsideVoidWindowError
		approval   *accounting.ApprovalRequiredError
		storage    *accounting.StorageError
	)
	switch {
	case errors.As(err, &verrs):
		return validationProblem(verrs)
	case errors.As(err, &verr):
		return validationProblem(accounting.ValidationErrors{verr})
	case errors.As(err, &unbalanced):
		return problem(http.StatusUnprocessableEntity, "unbalanced_entry", err, map[string]any{
			"total_debit":  accounting.FormatAmount(unbalanced.TotalDebit),
			"total_credit": accounting.FormatAmount(unbalanced.TotalCredit),
			"discrepancy":  accounting.FormatAmount(unbalanced.Discrepancy),
		})
	case errors.As(err, &unknown):
		return problem(http.StatusUnprocessableEntity, "unknown_account", err, map[string]any{
			"account_code": unknown.Code,
			"index":        unknown.Index,
		})
	case errors.As(err, &period):
		return problem(http.StatusUnprocessableEntity, "period_violation", err, map[string]any{
			"fiscal_year":   period.Year,
			"fiscal_period": period.Period,
			"reason":        period.Reason,
		})
	case errors.As(err, &voided):
		return problem(http.StatusConflict, "already_voided", err, map[string]any{"entry_id": voided.EntryID})
	case errors.As(err, &closed):
		return problem(http.StatusConflict, "period_closed", err, map[string]any{"fiscal_year": closed.FiscalYear})
	case errors.As(err, &outside):
		return problem(http.StatusUnprocessableEntity, "outside_void_window", err, map[string]any{
			"entry_id":    outside.EntryID,
			"fiscal_year": outside.FiscalYear,
			"today":       outside.Today.Format(time.DateOnly),
		})
	case errors.As(err, &approval):
		return problem(http.StatusForbidden, "approval_required", err, map[string]any{
			"entry_id":    approval.EntryID,
			"fiscal_year": approval.FiscalYear,
		})
	case errors.Is(err, accounting.ErrAccountNotFound):
		return problem(http.StatusNotFound, "account_not_found", err, nil)
	case errors.Is(err, accounting.ErrEntryNotFound):
		return problem(http.StatusNotFound, "entry_not_found", err, nil)
	case errors.Is(err, accounting.ErrCounterpartyNotFound):
		return problem(http.StatusNotFound, "counterparty_not_found", err, nil)
	case errors.Is(err, accounting.ErrAccountExists):
		return problem(http.StatusConflict, "account_exists", err, nil)
	case errors.Is(err, accounting.ErrAccountInUse):
		return problem(http.StatusConflict, "account_in_use", err, nil)
	case errors.Is(err, accounting.ErrDuplicateSubmission):
		return problem(http.StatusConflict, "duplicate_submission", err, nil)
	case errors.Is(err, accounting.ErrInvalidPeriodTransition):
		return problem(http.StatusConflict, "invalid_period_transition", err, nil)
	case errors.As(err, &storage):
		return httpx.ProblemDetail{
			Status:  http.StatusServiceUnavailable,
			Title:   "Storage unavailable",
			Code:    "storage",
			Detail:  "the ledger store is temporarily unavailable",
			Context: map[string]any{"operation": storage.Op, "retryable": storage.Retryable()},
		}
	default:
		return httpx.ProblemDetail{Status: http.StatusInternalServerError, Code: "internal"}
	}
}

func problem(status int, code string, err error, ctx map[string]any) httpx.ProblemDetail {
	return httpx.ProblemDetail{
		Status:  status,
		Title:   http.StatusText(status),
		Code:    code,
		Detail:  err.Error(),
		Context: ctx,
	}
}

func validationProblem(verrs accounting.ValidationErrors) httpx.ProblemDetail {
	p := httpx.ProblemDetail{
		Status: http.StatusBadRequest,
		Title:  "Validation Failed",
		Code:   "validation",
		Detail: verrs.Error(),
	}
	for _, v := range verrs {
		fe := httpx.FieldError{Field: v.Field, Message: v.Message}
		if v.Index >= 0 {
			idx := v.Index
			fe.Index = &idx
		}
		p.Errors = append(p.Errors, fe)
	}
	return p
}
