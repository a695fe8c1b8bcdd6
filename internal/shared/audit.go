package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	CompanyID int64
	ActorID   int64
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// AuditWriter appends audit rows inside the caller's transaction.
type AuditWriter interface {
	InsertAudit(ctx context.Context, log AuditLog) error
}

// TxAudit writes audit rows through an open transaction so the event commits with the mutation.
type TxAudit struct {
	tx pgx.Tx
}

// NewTxAudit binds an audit writer to tx.
func NewTxAudit(tx pgx.Tx) TxAudit {
	return TxAudit{tx: tx}
}

// InsertAudit persists the log entry.
func (a TxAudit) InsertAudit(ctx context.Context, log AuditLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	if _, ok := log.Meta["event_id"]; !ok {
		log.Meta["event_id"] = uuid.NewString()
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err = a.tx.Exec(ctx, `INSERT INTO audit_logs (company_id, actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		log.CompanyID, log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, at)
	return err
}

// Validate checks mandatory fields.
func (l AuditLog) Validate() error {
	if l.Action == "" || l.Entity == "" || l.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	return nil
}
