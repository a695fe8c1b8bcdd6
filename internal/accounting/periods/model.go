package periods

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = shared.PeriodStatusOpen
	PeriodStatusClosed PeriodStatus = shared.PeriodStatusClosed
	PeriodStatusLocked PeriodStatus = shared.PeriodStatusLocked
)

var (
	// ErrNoOpenPeriod is returned when no period covers a transaction date.
	ErrNoOpenPeriod     = shared.Validation("period.no_open_period", "no accounting period covers the date")
	ErrPeriodNotFound   = shared.NotFound("period.not_found", "accounting period not found")
	ErrPeriodNotOpen    = shared.Validation("period.not_open", "accounting period does not allow posting")
	ErrPeriodOverlap    = shared.Validation("period.overlap", "period overlaps an existing period")
	ErrInvalidRange     = shared.Validation("period.invalid_range", "period start must not be after end")
	ErrUnpostedJournals = shared.Validation("period.unposted_journals", "draft or pending journals remain in the period")
	ErrDateOutOfRange   = shared.Validation("period.date_out_of_range", "date outside period")
)

// Period represents a fiscal period window. Dates are calendar days; EndDate is inclusive.
type Period struct {
	ID         int64        `json:"id"`
	CompanyID  int64        `json:"company_id"`
	FiscalYear int          `json:"fiscal_year"`
	Number     int          `json:"period_number"`
	Name       string       `json:"name"`
	StartDate  time.Time    `json:"start_date"`
	EndDate    time.Time    `json:"end_date"`
	Status     PeriodStatus `json:"status"`
	ClosedAt   *time.Time   `json:"closed_at,omitempty"`
	ClosedBy   *int64       `json:"closed_by,omitempty"`
	LockedAt   *time.Time   `json:"locked_at,omitempty"`
	LockedBy   *int64       `json:"locked_by,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// AllowsPosting is true only for OPEN periods.
func (p Period) AllowsPosting() bool {
	return p.Status == PeriodStatusOpen
}

// Contains reports whether the calendar day of date falls inside [StartDate, EndDate].
func (p Period) Contains(date time.Time) bool {
	d := Day(date)
	return !d.Before(Day(p.StartDate)) && !d.After(Day(p.EndDate))
}

// EnsurePosting returns ErrPeriodNotOpen unless the period is OPEN.
func (p Period) EnsurePosting() error {
	if !p.AllowsPosting() {
		return ErrPeriodNotOpen.With("period %d is %s", p.ID, p.Status)
	}
	return nil
}

// Overlaps reports whether two inclusive ranges intersect.
func (p Period) Overlaps(start, end time.Time) bool {
	return !Day(start).After(Day(p.EndDate)) && !Day(end).Before(Day(p.StartDate))
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CreateInput describes a new period.
type CreateInput struct {
	FiscalYear int
	Number     int
	Name       string
	StartDate  time.Time
	EndDate    time.Time
}
