package shared

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"
)

// ErrIdempotencyMismatch indicates a key reused with a different payload.
var ErrIdempotencyMismatch = Conflict("idempotency.mismatch", "idempotency key reused with a different request")

// IdempotencyRecord is a processed key and the entity it produced.
type IdempotencyRecord struct {
	Key         string
	Module      string
	CompanyID   int64
	Fingerprint string
	ResultID    int64
	CreatedAt   time.Time
}

// Fingerprint hashes a request payload so replays can be distinguished from key reuse.
func Fingerprint(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// TxIdempotency reads and claims keys within the mutation transaction.
type TxIdempotency struct {
	tx pgx.Tx
}

// NewTxIdempotency binds key handling to tx.
func NewTxIdempotency(tx pgx.Tx) TxIdempotency {
	return TxIdempotency{tx: tx}
}

// LookupIdempotency returns the stored record, or nil when the key is new.
func (s TxIdempotency) LookupIdempotency(ctx context.Context, companyID int64, module, key string) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	err := s.tx.QueryRow(ctx, `SELECT key, module, company_id, fingerprint, result_id, created_at
FROM idempotency_keys WHERE company_id=$1 AND module=$2 AND key=$3`, companyID, module, key).
		Scan(&rec.Key, &rec.Module, &rec.CompanyID, &rec.Fingerprint, &rec.ResultID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotency claims the key; a concurrent claim surfaces as a conflict.
func (s TxIdempotency) SaveIdempotency(ctx context.Context, rec IdempotencyRecord) error {
	if rec.Key == "" || rec.Module == "" {
		return errors.New("idempotency key and module required")
	}
	_, err := s.tx.Exec(ctx, `INSERT INTO idempotency_keys (key, module, company_id, fingerprint, result_id, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())`, rec.Key, rec.Module, rec.CompanyID, rec.Fingerprint, rec.ResultID)
	return MapPgError(err)
}

// CheckReplay compares a stored record against the new fingerprint.
// It returns the original result id when the request is a replay.
func CheckReplay(rec *IdempotencyRecord, fingerprint string) (int64, bool, error) {
	if rec == nil {
		return 0, false, nil
	}
	if rec.Fingerprint != "" && fingerprint != "" && rec.Fingerprint != fingerprint {
		return 0, false, ErrIdempotencyMismatch.With("key %s", rec.Key)
	}
	return rec.ResultID, true, nil
}

// IdempotencyStore maintains the key table outside business transactions.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

// Cleanup removes entries older than retention and reports how many were dropped.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
