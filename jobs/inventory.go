package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// StockService is the part of the stock ledger the reconciliation job drives.
type StockService interface {
	ReconcileLayers(ctx context.Context, tenant shared.Tenant) ([]inventory.LayerDrift, error)
	SyncJournals(ctx context.Context, tenant shared.Tenant, limit int) (int, error)
}

// LayerReconcileJob reports layer drift and posts movements whose journal hook failed.
type LayerReconcileJob struct {
	run   companyRun
	stock StockService
	batch int
}

// NewLayerReconcileJob constructs the reconciliation handler.
func NewLayerReconcileJob(svc StockService, companies CompanySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LayerReconcileJob {
	return &LayerReconcileJob{
		run:   companyRun{name: TaskLayerReconcile, companies: companies, logger: logger, metrics: metrics},
		stock: svc,
		batch: 500,
	}
}

// Handle reconciles the companies in scope.
func (j *LayerReconcileJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.stock == nil {
		return errors.New("layer reconcile: service not configured")
	}
	return j.run.handle(ctx, task, func(ctx context.Context, companyID int64) error {
		tenant := shared.Tenant{CompanyID: companyID}
		drifts, err := j.stock.ReconcileLayers(ctx, tenant)
		if err != nil {
			return err
		}
		j.run.drift("stock_layers", companyID, len(drifts))
		linked, err := j.stock.SyncJournals(ctx, tenant, j.batch)
		if err != nil {
			return err
		}
		if linked > 0 {
			j.run.log().Info("posted pending movements", slog.Int64("company_id", companyID), slog.Int("linked", linked))
		}
		return nil
	})
}
