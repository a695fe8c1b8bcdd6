package balances

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Locker serialises rebuilds of one company.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Invalidator drops cached reports after snapshots change.
type Invalidator interface {
	Bump(ctx context.Context, scope string) error
}

// ConsistencyRecorder counts invariant failures.
type ConsistencyRecorder interface {
	ConsistencyFailure(component string)
}

// Service answers balance lookups and maintains the snapshot table.
type Service struct {
	repo    RepositoryPort
	locker  Locker
	cache   Invalidator
	metrics ConsistencyRecorder
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo RepositoryPort, locker Locker, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, cache: cache, logger: logger, now: time.Now}
}

// WithMetrics attaches a consistency failure counter.
func (s *Service) WithMetrics(m ConsistencyRecorder) *Service {
	s.metrics = m
	return s
}

// GetBalance returns the snapshot of account in period. A nil branch sums all branches.
// Branches without a row in the period report the carried forward closing of their latest earlier row.
func (s *Service) GetBalance(ctx context.Context, tenant shared.Tenant, accountID, periodID int64, branchID *int64) (Snapshot, error) {
	if err := tenant.Validate(); err != nil {
		return Snapshot{}, err
	}
	out := Snapshot{AccountID: accountID, PeriodID: periodID}
	if branchID != nil {
		out.BranchID = *branchID
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodRef(ctx, tenant.CompanyID, periodID)
		if err != nil {
			return err
		}
		rows, err := tx.LatestBalances(ctx, tenant.CompanyID, &accountID, branchID, period.StartDate)
		if err != nil {
			return err
		}
		for _, row := range rows {
			out.add(CarryForward(row, period))
		}
		return nil
	})
	return out, err
}

// PeriodBalances returns one row per (account, branch) as of period, carried forward where needed.
func (s *Service) PeriodBalances(ctx context.Context, tenant shared.Tenant, periodID int64, branchID *int64) ([]AccountBalance, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var out []AccountBalance
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodRef(ctx, tenant.CompanyID, periodID)
		if err != nil {
			return err
		}
		rows, err := tx.LatestBalances(ctx, tenant.CompanyID, nil, branchID, period.StartDate)
		if err != nil {
			return err
		}
		out = make([]AccountBalance, 0, len(rows))
		for _, row := range rows {
			out = append(out, CarryForward(row, period))
		}
		return nil
	})
	return out, err
}

// CarryForward projects row onto period. Rows already in period are returned unchanged.
func CarryForward(row AccountBalance, period PeriodRef) AccountBalance {
	if row.PeriodID == period.ID {
		return row
	}
	return Seed(row.CompanyID, Key{AccountID: row.AccountID, PeriodID: period.ID, BranchID: row.BranchID}, period, &row)
}

// RebuildResult summarises a rebuild.
type RebuildResult struct {
	CompanyID int64 `json:"company_id"`
	Rows      int   `json:"rows"`
	Drifts    int   `json:"drifts"`
}

// Rebuild replaces every snapshot of the company with a replay of posted history.
// Periods are row locked for the duration so no posting interleaves.
func (s *Service) Rebuild(ctx context.Context, tenant shared.Tenant) (RebuildResult, error) {
	if err := tenant.Validate(); err != nil {
		return RebuildResult{}, err
	}
	result := RebuildResult{CompanyID: tenant.CompanyID}
	run := func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			periods, err := tx.LockPeriodRefs(ctx, tenant.CompanyID)
			if err != nil {
				return err
			}
			history, err := tx.LoadHistory(ctx, tenant.CompanyID)
			if err != nil {
				return err
			}
			stored, err := tx.ListBalances(ctx, tenant.CompanyID)
			if err != nil {
				return err
			}
			expected := Replay(tenant.CompanyID, periods, history)
			result.Drifts = len(Compare(stored, expected))
			if err := tx.DeleteBalances(ctx, tenant.CompanyID); err != nil {
				return err
			}
			if err := tx.InsertBalances(ctx, expected); err != nil {
				return err
			}
			result.Rows = len(expected)
			return tx.InsertAudit(ctx, shared.AuditLog{
				CompanyID: tenant.CompanyID,
				ActorID:   tenant.ActorID,
				Action:    "balance.rebuild",
				Entity:    "company",
				EntityID:  fmt.Sprintf("%d", tenant.CompanyID),
				Meta:      map[string]any{"rows": result.Rows, "drifts": result.Drifts},
				At:        s.now(),
			})
		})
	}
	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, shared.RebuildLockKey(tenant.CompanyID), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return RebuildResult{}, err
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx, shared.LedgerScope(tenant.CompanyID)); err != nil {
			s.logger.Warn("cache bump after rebuild", slog.Int64("company_id", tenant.CompanyID), slog.Any("error", err))
		}
	}
	s.logger.Info("balances rebuilt", slog.Int64("company_id", tenant.CompanyID), slog.Int("rows", result.Rows), slog.Int("drifts", result.Drifts))
	return result, nil
}

// Verify compares stored snapshots against a replay without modifying them.
// Any disagreement is returned as ErrDrift together with the offending rows.
func (s *Service) Verify(ctx context.Context, tenant shared.Tenant) ([]Drift, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var drifts []Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		periods, err := tx.ListPeriodRefs(ctx, tenant.CompanyID)
		if err != nil {
			return err
		}
		history, err := tx.LoadHistory(ctx, tenant.CompanyID)
		if err != nil {
			return err
		}
		stored, err := tx.ListBalances(ctx, tenant.CompanyID)
		if err != nil {
			return err
		}
		for _, row := range stored {
			if err := row.Verify(); err != nil {
				drifts = append(drifts, Drift{Key: row.Key(), Stored: &row})
			}
		}
		if len(drifts) == 0 {
			drifts = Compare(stored, Replay(tenant.CompanyID, periods, history))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(drifts) > 0 {
		if s.metrics != nil {
			s.metrics.ConsistencyFailure("balances")
		}
		s.logger.Error("balance snapshot drift", slog.Int64("company_id", tenant.CompanyID), slog.Int("rows", len(drifts)),
			slog.String("code", ErrDrift.Code))
		return drifts, ErrDrift.With("%d row(s)", len(drifts))
	}
	return nil, nil
}
