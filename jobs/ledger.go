package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// BalanceService is the part of the balance engine the ledger jobs drive.
type BalanceService interface {
	Rebuild(ctx context.Context, tenant shared.Tenant) (balances.RebuildResult, error)
	Verify(ctx context.Context, tenant shared.Tenant) ([]balances.Drift, error)
}

// BalanceRebuildJob replays posted journals into fresh snapshots.
type BalanceRebuildJob struct {
	run      companyRun
	balances BalanceService
}

// NewBalanceRebuildJob constructs the rebuild handler.
func NewBalanceRebuildJob(svc BalanceService, companies CompanySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceRebuildJob {
	return &BalanceRebuildJob{
		run:      companyRun{name: TaskBalanceRebuild, companies: companies, logger: logger, metrics: metrics},
		balances: svc,
	}
}

// Handle rebuilds the companies in scope.
func (j *BalanceRebuildJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.balances == nil {
		return errors.New("balance rebuild: service not configured")
	}
	return j.run.handle(ctx, task, func(ctx context.Context, companyID int64) error {
		res, err := j.balances.Rebuild(ctx, shared.Tenant{CompanyID: companyID})
		if err != nil {
			return err
		}
		if res.Drifts > 0 {
			j.run.log().Warn("rebuild corrected drift", slog.Int64("company_id", companyID), slog.Int("drifts", res.Drifts))
			j.run.drift("balances", companyID, res.Drifts)
		}
		return nil
	})
}

// GLIntegrityJob audits balance snapshots without changing them.
type GLIntegrityJob struct {
	run      companyRun
	balances BalanceService
}

// NewGLIntegrityJob constructs the integrity handler.
func NewGLIntegrityJob(svc BalanceService, companies CompanySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		run:      companyRun{name: TaskGLIntegrity, companies: companies, logger: logger, metrics: metrics},
		balances: svc,
	}
}

// Handle verifies every company in scope. Drift is reported, not retried: the service
// already logged it and a rebuild is the fix.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.balances == nil {
		return errors.New("gl integrity: service not configured")
	}
	return j.run.handle(ctx, task, func(ctx context.Context, companyID int64) error {
		drifts, err := j.balances.Verify(ctx, shared.Tenant{CompanyID: companyID})
		if errors.Is(err, balances.ErrDrift) {
			j.run.drift("balances", companyID, len(drifts))
			return nil
		}
		return err
	})
}
