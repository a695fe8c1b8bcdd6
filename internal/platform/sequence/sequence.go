// Package sequence issues per company, per day document references from a counter row.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Format renders {prefix}-{YYYYMMDD}-{00001}.
func Format(prefix string, day time.Time, n int64) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, day.Format("20060102"), n)
}

// Next increments the counter for (company, prefix, day) inside tx and returns the new value.
// The upsert takes the row lock so concurrent callers serialise on the counter and a rollback
// returns the number, keeping references gapless.
func Next(ctx context.Context, tx pgx.Tx, companyID int64, prefix string, day time.Time) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, `INSERT INTO document_sequences (company_id, prefix, seq_date, last_value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (company_id, prefix, seq_date) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, companyID, prefix, day.Format("2006-01-02")).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sequence: next %s: %w", prefix, err)
	}
	return n, nil
}

// Reference combines Next and Format.
func Reference(ctx context.Context, tx pgx.Tx, companyID int64, prefix string, day time.Time) (string, error) {
	n, err := Next(ctx, tx, companyID, prefix, day)
	if err != nil {
		return "", err
	}
	return Format(prefix, day, n), nil
}
