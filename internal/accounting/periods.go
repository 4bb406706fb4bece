package accounting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	minFiscalYear = 1900
	maxFiscalYear = 9999
)

// DefaultFiscalPeriod is the period created on first use of a year: open, with
// the adjustment window covering the first quarter of the following year.
func DefaultFiscalPeriod(year int) FiscalPeriod {
	return FiscalPeriod{
		Year:            year,
		State:           PeriodOpen,
		AdjustmentStart: time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC),
		AdjustmentEnd:   time.Date(year+1, time.March, 31, 0, 0, 0, 0, time.UTC),
		Month13Enabled:  true,
		PinsRequired:    true,
	}
}

// InAdjustmentWindow reports whether date falls inside the inclusive window.
func (p FiscalPeriod) InAdjustmentWindow(date time.Time) bool {
	d := civilDate(date)
	return !d.Before(civilDate(p.AdjustmentStart)) && !d.After(civilDate(p.AdjustmentEnd))
}

// ResolveFiscalAttribution picks the (year, period) an entry posts to. Missing
// values default to the date's year and month; period 13 is never derived.
func ResolveFiscalAttribution(date time.Time, year, period *int) (int, int, error) {
	y, p := date.Year(), int(date.Month())
	if year != nil {
		y = *year
	}
	if period != nil {
		p = *period
	}
	if y < minFiscalYear || y > maxFiscalYear {
		return 0, 0, &ValidationError{Field: "fiscal_year", Index: -1, Message: fmt.Sprintf("must be between %d and %d", minFiscalYear, maxFiscalYear)}
	}
	if p < 1 || p > AdjustmentPeriod {
		return 0, 0, &ValidationError{Field: "fiscal_period", Index: -1, Message: "must be between 1 and 13"}
	}
	return y, p, nil
}

// CheckPostingEligibility validates that date may post to period of this year.
func (p FiscalPeriod) CheckPostingEligibility(period int, date time.Time) error {
	if period == AdjustmentPeriod {
		if !p.Month13Enabled {
			return &PeriodViolationError{Year: p.Year, Period: period, Reason: "month 13 is disabled"}
		}
		if !p.InAdjustmentWindow(date) {
			return &PeriodViolationError{
				Year:   p.Year,
				Period: period,
				Reason: fmt.Sprintf("date %s is outside the adjustment window %s to %s",
					date.Format(time.DateOnly), p.AdjustmentStart.Format(time.DateOnly), p.AdjustmentEnd.Format(time.DateOnly)),
			}
		}
		return nil
	}
	if p.State == PeriodClosed {
		return &PeriodViolationError{Year: p.Year, Period: period, Reason: "fiscal year is closed"}
	}
	return nil
}

func validateYear(year int) error {
	if year < minFiscalYear || year > maxFiscalYear {
		return &ValidationError{Field: "year", Index: -1, Message: fmt.Sprintf("must be between %d and %d", minFiscalYear, maxFiscalYear)}
	}
	return nil
}

// EnsurePeriod returns the period of year, creating it with defaults if absent.
func (s *Service) EnsurePeriod(ctx context.Context, year int) (FiscalPeriod, error) {
	if err := validateYear(year); err != nil {
		return FiscalPeriod{}, err
	}
	var period FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		period, err = tx.EnsurePeriod(ctx, DefaultFiscalPeriod(year), LockShare)
		return err
	})
	if err != nil {
		return FiscalPeriod{}, storageErr("ensure period", err)
	}
	return period, nil
}

// GetPeriod is EnsurePeriod under the name the read endpoints use.
func (s *Service) GetPeriod(ctx context.Context, year int) (FiscalPeriod, error) {
	return s.EnsurePeriod(ctx, year)
}

// BeginClosing moves an open year into IN_CLOSING.
func (s *Service) BeginClosing(ctx context.Context, year int, actor string) (FiscalPeriod, error) {
	return s.transitionPeriod(ctx, year, PeriodInClosing, actor, false)
}

// ClosePeriod hard-closes a year that is being closed.
func (s *Service) ClosePeriod(ctx context.Context, year int, actor string) (FiscalPeriod, error) {
	return s.transitionPeriod(ctx, year, PeriodClosed, actor, false)
}

// ReopenPeriod returns a year to OPEN. Reopening a CLOSED year is the
// administrative override and is audited as such.
func (s *Service) ReopenPeriod(ctx context.Context, year int, actor string) (FiscalPeriod, error) {
	return s.transitionPeriod(ctx, year, PeriodOpen, actor, true)
}

func (s *Service) transitionPeriod(ctx context.Context, year int, target PeriodState, actor string, admin bool) (FiscalPeriod, error) {
	if err := validateYear(year); err != nil {
		return FiscalPeriod{}, err
	}
	var (
		period FiscalPeriod
		from   PeriodState
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.EnsurePeriod(ctx, DefaultFiscalPeriod(year), LockUpdate)
		if err != nil {
			return err
		}
		from = current.State
		if err := shared.ValidatePeriodTransition(string(current.State), string(target), admin); err != nil {
			return fmt.Errorf("%w: %s -> %s", err, current.State, target)
		}
		current.State = target
		switch target {
		case PeriodClosed:
			at := s.now()
			current.ClosedBy = actor
			current.ClosedAt = &at
		case PeriodOpen:
			current.ClosedBy = ""
			current.ClosedAt = nil
		}
		if err := tx.UpdatePeriod(ctx, current); err != nil {
			return err
		}
		period = current
		return nil
	})
	if err != nil {
		return FiscalPeriod{}, storageErr("period transition", err)
	}
	s.record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   "period." + periodAction(target),
		Entity:   "fiscal_period",
		EntityID: strconv.Itoa(year),
		Meta:     map[string]any{"from": string(from), "to": string(target)},
	})
	s.invalidate(ctx)
	return period, nil
}

func periodAction(target PeriodState) string {
	switch target {
	case PeriodInClosing:
		return "begin_closing"
	case PeriodClosed:
		return "close"
	default:
		return "reopen"
	}
}

// UpdatePeriodSettings changes the adjustment window, flags or notes of a year.
func (s *Service) UpdatePeriodSettings(ctx context.Context, in PeriodSettingsInput) (FiscalPeriod, error) {
	if err := validateYear(in.Year); err != nil {
		return FiscalPeriod{}, err
	}
	var period FiscalPeriod
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.EnsurePeriod(ctx, DefaultFiscalPeriod(in.Year), LockUpdate)
		if err != nil {
			return err
		}
		if in.AdjustmentStart != nil {
			current.AdjustmentStart = civilDate(*in.AdjustmentStart)
		}
		if in.AdjustmentEnd != nil {
			current.AdjustmentEnd = civilDate(*in.AdjustmentEnd)
		}
		if current.AdjustmentStart.After(current.AdjustmentEnd) {
			return &ValidationError{Field: "adjustment_start", Index: -1, Message: "must not be after adjustment_end"}
		}
		if in.Month13Enabled != nil {
			current.Month13Enabled = *in.Month13Enabled
		}
		if in.PinsRequired != nil {
			current.PinsRequired = *in.PinsRequired
		}
		if in.Notes != nil {
			current.Notes = *in.Notes
		}
		if err := tx.UpdatePeriod(ctx, current); err != nil {
			return err
		}
		period = current
		return nil
	})
	if err != nil {
		return FiscalPeriod{}, storageErr("update period", err)
	}
	s.record(ctx, shared.AuditLog{
		Actor:    in.Actor,
		Action:   "period.update",
		Entity:   "fiscal_period",
		EntityID: strconv.Itoa(in.Year),
		Meta: map[string]any{
			"adjustment_start": period.AdjustmentStart.Format(time.DateOnly),
			"adjustment_end":   period.AdjustmentEnd.Format(time.DateOnly),
			"month13_enabled":  period.Month13Enabled,
			"pins_required":    period.PinsRequired,
		},
	})
	return period, nil
}
