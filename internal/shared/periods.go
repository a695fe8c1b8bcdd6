package shared

// Period statuses reused outside accounting module.
const (
	PeriodStatusOpen   = "OPEN"
	PeriodStatusClosed = "CLOSED"
	PeriodStatusLocked = "LOCKED"
)

// ErrInvalidPeriodTransition indicates status change not allowed.
var ErrInvalidPeriodTransition = Validation("period.invalid_transition", "period transition invalid")

// ValidatePeriodTransition checks transitions. LOCKED is terminal and OPEN must close before locking.
func ValidatePeriodTransition(current, target string) error {
	switch {
	case current == PeriodStatusOpen && target == PeriodStatusClosed:
		return nil
	case current == PeriodStatusClosed && (target == PeriodStatusOpen || target == PeriodStatusLocked):
		return nil
	}
	return ErrInvalidPeriodTransition.With("%s -> %s", current, target)
}
