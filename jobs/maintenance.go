package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// KeyStore purges idempotency keys.
type KeyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob removes keys older than the retention window.
type IdempotencyCleanupJob struct {
	store     KeyStore
	retention time.Duration
	run       companyRun
}

// NewIdempotencyCleanupJob constructs the cleanup handler. retention applies when the
// task payload carries none.
func NewIdempotencyCleanupJob(store KeyStore, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &IdempotencyCleanupJob{
		store:     store,
		retention: retention,
		run:       companyRun{name: TaskIdempotencyCleanup, logger: logger, metrics: metrics},
	}
}

// Handle deletes expired keys.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.store == nil {
		return errors.New("idempotency cleanup: store not configured")
	}
	var payload CleanupPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = j.retention
	}
	tracker := j.run.track()
	defer func() { err = tracker.End(err) }()

	removed, err := j.store.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	j.run.log().Info("removed idempotency keys", slog.Int64("removed", removed), slog.Duration("retention", retention))
	return nil
}
