package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// ErrUnknownTask is returned for task names the worker does not serve.
var ErrUnknownTask = errors.New("jobs: unknown task")

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// CompanySource lists the companies holding ledger or stock data.
type CompanySource interface {
	CompanyIDs(ctx context.Context) ([]int64, error)
}

type pgCompanies struct {
	pool *pgxpool.Pool
}

// NewCompanySource discovers companies from periods and products.
func NewCompanySource(pool *pgxpool.Pool) CompanySource {
	return pgCompanies{pool: pool}
}

func (c pgCompanies) CompanyIDs(ctx context.Context) ([]int64, error) {
	rows, err := c.pool.Query(ctx, `SELECT company_id FROM accounting_periods
UNION SELECT company_id FROM products
ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// companyRun decodes a CompanyPayload and calls fn for each company in scope.
// The first failing company stops the run so asynq retries it.
type companyRun struct {
	name      string
	companies CompanySource
	logger    *slog.Logger
	metrics   *jobmetrics.Metrics
}

func (r companyRun) log() *slog.Logger {
	logger := r.logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", r.name))
}

func (r companyRun) track() *jobmetrics.Tracker {
	if r.metrics != nil {
		return r.metrics.Track(r.name)
	}
	return defaultJobMetrics.Track(r.name)
}

func (r companyRun) handle(ctx context.Context, task *asynq.Task, fn func(context.Context, int64) error) (err error) {
	var payload CompanyPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("%s: decode payload: %v: %w", r.name, err, asynq.SkipRetry)
		}
	}
	tracker := r.track()
	defer func() { err = tracker.End(err) }()

	ids := []int64{payload.CompanyID}
	if payload.CompanyID <= 0 {
		if r.companies == nil {
			return fmt.Errorf("%s: company source not configured", r.name)
		}
		if ids, err = r.companies.CompanyIDs(ctx); err != nil {
			r.log().Error("list companies", slog.Any("error", err))
			return err
		}
	}
	for _, id := range ids {
		if err := fn(ctx, id); err != nil {
			r.log().Error("company failed", slog.Int64("company_id", id), slog.Any("error", err))
			return err
		}
	}
	r.log().Info("completed", slog.Int("companies", len(ids)))
	return nil
}

func (r companyRun) drift(check string, companyID int64, count int) {
	m := r.metrics
	if m == nil {
		m = defaultJobMetrics
	}
	m.AddAnomalies(check, companyID, count)
}
