package periods

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Locker serialises status transitions across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Service manages the accounting calendar.
type Service struct {
	repo   RepositoryPort
	locker Locker
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryPort, locker Locker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create opens a new period. Ranges may not overlap another period of the company.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, in CreateInput) (Period, error) {
	if err := tenant.Validate(); err != nil {
		return Period{}, err
	}
	start, end := Day(in.StartDate), Day(in.EndDate)
	if start.After(end) {
		return Period{}, ErrInvalidRange
	}
	name := shared.NormalizeName(in.Name)
	if name == "" {
		name = fmt.Sprintf("%d-%02d", in.FiscalYear, in.Number)
	}
	var created Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		overlapping, err := tx.FindOverlapping(ctx, tenant.CompanyID, start, end)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return ErrPeriodOverlap.With("%s", overlapping[0].Name)
		}
		created, err = tx.InsertPeriod(ctx, Period{
			CompanyID:  tenant.CompanyID,
			FiscalYear: in.FiscalYear,
			Number:     in.Number,
			Name:       name,
			StartDate:  start,
			EndDate:    end,
			Status:     PeriodStatusOpen,
		})
		if err != nil {
			return err
		}
		return tx.InsertAudit(ctx, shared.AuditLog{
			CompanyID: tenant.CompanyID,
			ActorID:   tenant.ActorID,
			Action:    "period.create",
			Entity:    "accounting_period",
			EntityID:  fmt.Sprintf("%d", created.ID),
			Meta:      map[string]any{"start": start.Format("2006-01-02"), "end": end.Format("2006-01-02")},
			At:        s.now(),
		})
	})
	return created, err
}

func (s *Service) Get(ctx context.Context, tenant shared.Tenant, id int64) (Period, error) {
	if err := tenant.Validate(); err != nil {
		return Period{}, err
	}
	var p Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		p, err = tx.GetPeriod(ctx, tenant.CompanyID, id)
		return err
	})
	return p, err
}

// List returns periods ordered by start date; fiscalYear 0 lists all.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, fiscalYear int) ([]Period, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var out []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListPeriods(ctx, tenant.CompanyID, fiscalYear)
		return err
	})
	return out, err
}

// FindForDate returns the period whose range contains date, or ErrNoOpenPeriod.
func (s *Service) FindForDate(ctx context.Context, tenant shared.Tenant, date time.Time) (Period, error) {
	if err := tenant.Validate(); err != nil {
		return Period{}, err
	}
	var p Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		p, err = tx.FindPeriodForDate(ctx, tenant.CompanyID, date)
		return err
	})
	return p, err
}

// AllowsPosting reports whether journals may post into the period.
func (s *Service) AllowsPosting(ctx context.Context, tenant shared.Tenant, id int64) (bool, error) {
	p, err := s.Get(ctx, tenant, id)
	if err != nil {
		return false, err
	}
	return p.AllowsPosting(), nil
}

// Close moves OPEN to CLOSED. It refuses while DRAFT or PENDING journals remain inside the period.
func (s *Service) Close(ctx context.Context, tenant shared.Tenant, id int64) (Period, error) {
	return s.transition(ctx, tenant, id, PeriodStatusClosed)
}

// Reopen moves CLOSED back to OPEN.
func (s *Service) Reopen(ctx context.Context, tenant shared.Tenant, id int64) (Period, error) {
	return s.transition(ctx, tenant, id, PeriodStatusOpen)
}

// Lock moves CLOSED to LOCKED. LOCKED is terminal.
func (s *Service) Lock(ctx context.Context, tenant shared.Tenant, id int64) (Period, error) {
	return s.transition(ctx, tenant, id, PeriodStatusLocked)
}

func (s *Service) transition(ctx context.Context, tenant shared.Tenant, id int64, target PeriodStatus) (Period, error) {
	if err := tenant.Validate(); err != nil {
		return Period{}, err
	}
	var updated Period
	run := func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetPeriodForUpdate(ctx, tenant.CompanyID, id)
			if err != nil {
				return err
			}
			if err := shared.ValidatePeriodTransition(string(current.Status), string(target)); err != nil {
				return err
			}
			if target == PeriodStatusClosed {
				n, err := tx.CountUnpostedJournals(ctx, tenant.CompanyID, current.ID, current.StartDate, current.EndDate)
				if err != nil {
					return err
				}
				if n > 0 {
					return ErrUnpostedJournals.With("%d journal(s) in %s", n, current.Name)
				}
			}
			now := s.now()
			actor := tenant.ActorID
			next := current
			next.Status = target
			switch target {
			case PeriodStatusClosed:
				next.ClosedAt, next.ClosedBy = &now, &actor
			case PeriodStatusOpen:
				next.ClosedAt, next.ClosedBy = nil, nil
			case PeriodStatusLocked:
				next.LockedAt, next.LockedBy = &now, &actor
			}
			if err := tx.UpdatePeriodStatus(ctx, next); err != nil {
				return err
			}
			updated = next
			return tx.InsertAudit(ctx, shared.AuditLog{
				CompanyID: tenant.CompanyID,
				ActorID:   tenant.ActorID,
				Action:    "period.status",
				Entity:    "accounting_period",
				EntityID:  fmt.Sprintf("%d", current.ID),
				Meta:      map[string]any{"from": current.Status, "to": target},
				At:        now,
			})
		})
	}
	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, shared.FinanceLockKey(id), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period status changed", slog.Int64("company_id", tenant.CompanyID), slog.Int64("period_id", id), slog.String("status", string(target)))
	return updated, nil
}
