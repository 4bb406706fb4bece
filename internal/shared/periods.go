package shared

import "errors"

// Fiscal period states shared between the ledger and its adapters.
const (
	PeriodStateOpen      = "OPEN"
	PeriodStateInClosing = "IN_CLOSING"
	PeriodStateClosed    = "CLOSED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = errors.New("period transition invalid")

// ValidatePeriodTransition checks transitions according to policy.
// CLOSED -> OPEN is the administrative reopen and requires the admin flag.
func ValidatePeriodTransition(current, target string, isAdmin bool) error {
	if current == target {
		return ErrInvalidPeriodTransition
	}
	switch current {
	case PeriodStateOpen:
		if target == PeriodStateInClosing {
			return nil
		}
	case PeriodStateInClosing:
		if target == PeriodStateClosed || target == PeriodStateOpen {
			return nil
		}
	case PeriodStateClosed:
		if target == PeriodStateOpen && isAdmin {
			return nil
		}
	}
	return ErrInvalidPeriodTransition
}
