package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Reader is the period lookup surface used by posting transactions.
type Reader interface {
	GetPeriod(ctx context.Context, companyID, id int64) (Period, error)
	// GetPeriodForShare blocks status transitions until the caller commits.
	GetPeriodForShare(ctx context.Context, companyID, id int64) (Period, error)
	FindPeriodForDate(ctx context.Context, companyID int64, date time.Time) (Period, error)
	FindNextOpenPeriod(ctx context.Context, companyID int64, after time.Time) (Period, error)
}

// TxRepository exposes transactional period operations.
type TxRepository interface {
	Reader
	shared.AuditWriter
	GetPeriodForUpdate(ctx context.Context, companyID, id int64) (Period, error)
	ListPeriods(ctx context.Context, companyID int64, fiscalYear int) ([]Period, error)
	FindOverlapping(ctx context.Context, companyID int64, start, end time.Time) ([]Period, error)
	InsertPeriod(ctx context.Context, p Period) (Period, error)
	UpdatePeriodStatus(ctx context.Context, p Period) error
	CountUnpostedJournals(ctx context.Context, companyID, periodID int64, start, end time.Time) (int, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Repository persists periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{PeriodTx: NewPeriodTx(tx), TxAudit: shared.NewTxAudit(tx)})
	})
}

type txRepository struct {
	*PeriodTx
	shared.TxAudit
}

// PeriodTx implements period queries on an open transaction so other ledger repositories can embed it.
type PeriodTx struct {
	tx pgx.Tx
}

func NewPeriodTx(tx pgx.Tx) *PeriodTx {
	return &PeriodTx{tx: tx}
}

const periodColumns = `id, company_id, fiscal_year, period_number, name, start_date, end_date, status, closed_at, closed_by, locked_at, locked_by, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.FiscalYear, &p.Number, &p.Name, &p.StartDate, &p.EndDate, &p.Status,
		&p.ClosedAt, &p.ClosedBy, &p.LockedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *PeriodTx) getOne(ctx context.Context, query string, args ...any) (Period, error) {
	p, err := scanPeriod(r.tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *PeriodTx) GetPeriod(ctx context.Context, companyID, id int64) (Period, error) {
	return r.getOne(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE company_id=$1 AND id=$2`, companyID, id)
}

func (r *PeriodTx) GetPeriodForShare(ctx context.Context, companyID, id int64) (Period, error) {
	return r.getOne(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE company_id=$1 AND id=$2 FOR SHARE`, companyID, id)
}

func (r *PeriodTx) GetPeriodForUpdate(ctx context.Context, companyID, id int64) (Period, error) {
	return r.getOne(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id)
}

func (r *PeriodTx) FindPeriodForDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	p, err := r.getOne(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id=$1 AND $2::date BETWEEN start_date AND end_date`, companyID, Day(date))
	if errors.Is(err, ErrPeriodNotFound) {
		return Period{}, ErrNoOpenPeriod.With("%s", Day(date).Format("2006-01-02"))
	}
	return p, err
}

func (r *PeriodTx) FindNextOpenPeriod(ctx context.Context, companyID int64, after time.Time) (Period, error) {
	p, err := r.getOne(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id=$1 AND status='OPEN' AND start_date > $2::date ORDER BY start_date LIMIT 1`, companyID, Day(after))
	if errors.Is(err, ErrPeriodNotFound) {
		return Period{}, ErrNoOpenPeriod.With("after %s", Day(after).Format("2006-01-02"))
	}
	return p, err
}

func (r *PeriodTx) ListPeriods(ctx context.Context, companyID int64, fiscalYear int) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id=$1 AND ($2 = 0 OR fiscal_year=$2) ORDER BY start_date`, companyID, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PeriodTx) FindOverlapping(ctx context.Context, companyID int64, start, end time.Time) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id=$1 AND start_date <= $3::date AND end_date >= $2::date FOR UPDATE`, companyID, Day(start), Day(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PeriodTx) InsertPeriod(ctx context.Context, p Period) (Period, error) {
	inserted, err := scanPeriod(r.tx.QueryRow(ctx, `INSERT INTO accounting_periods (company_id, fiscal_year, period_number, name, start_date, end_date, status)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+periodColumns,
		p.CompanyID, p.FiscalYear, p.Number, p.Name, Day(p.StartDate), Day(p.EndDate), p.Status))
	return inserted, shared.MapPgError(err)
}

func (r *PeriodTx) UpdatePeriodStatus(ctx context.Context, p Period) error {
	tag, err := r.tx.Exec(ctx, `UPDATE accounting_periods SET status=$3, closed_at=$4, closed_by=$5, locked_at=$6, locked_by=$7, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, p.CompanyID, p.ID, p.Status, p.ClosedAt, p.ClosedBy, p.LockedAt, p.LockedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *PeriodTx) CountUnpostedJournals(ctx context.Context, companyID, periodID int64, start, end time.Time) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journals
WHERE company_id=$1 AND deleted_at IS NULL AND status IN ('DRAFT','PENDING')
  AND (period_id=$2 OR transaction_date BETWEEN $3::date AND $4::date)`, companyID, periodID, Day(start), Day(end)).Scan(&n)
	return n, err
}
