package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskBalanceRebuild replays posted history into balance snapshots.
	TaskBalanceRebuild = "ledger:balance_rebuild"
	// TaskGLIntegrity compares balance snapshots with a replay and reports drift.
	TaskGLIntegrity = "ledger:gl_integrity"
	// TaskLayerReconcile checks stock layers against stock items and posts unlinked movements.
	TaskLayerReconcile = "inventory:layer_reconcile"
	// TaskIdempotencyCleanup drops expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// CompanyPayload scopes a ledger task. A zero company means every company.
type CompanyPayload struct {
	CompanyID int64 `json:"company_id"`
}

// CleanupPayload configures idempotency key retention.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}

// NewBalanceRebuildTask constructs a rebuild task for one company or all of them.
func NewBalanceRebuildTask(companyID int64) (*asynq.Task, error) {
	return newTask(TaskBalanceRebuild, CompanyPayload{CompanyID: companyID})
}

// NewGLIntegrityTask constructs an integrity audit task.
func NewGLIntegrityTask(companyID int64) (*asynq.Task, error) {
	return newTask(TaskGLIntegrity, CompanyPayload{CompanyID: companyID})
}

// NewLayerReconcileTask constructs a stock layer reconciliation task.
func NewLayerReconcileTask(companyID int64) (*asynq.Task, error) {
	return newTask(TaskLayerReconcile, CompanyPayload{CompanyID: companyID})
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{Retention: retention})
}

// NewTask builds a task by type name with its default payload, for manual triggers.
func NewTask(name string, companyID int64, retention time.Duration) (*asynq.Task, error) {
	switch name {
	case TaskBalanceRebuild:
		return NewBalanceRebuildTask(companyID)
	case TaskGLIntegrity:
		return NewGLIntegrityTask(companyID)
	case TaskLayerReconcile:
		return NewLayerReconcileTask(companyID)
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(retention)
	}
	return nil, ErrUnknownTask
}
