package balances

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrPeriodNotFound is returned when a lookup names an unknown period.
var ErrPeriodNotFound = shared.NotFound("period.not_found", "accounting period not found")

// TxRepository exposes the reporting and maintenance queries on top of Store.
type TxRepository interface {
	Store
	shared.AuditWriter
	GetPeriodRef(ctx context.Context, companyID, periodID int64) (PeriodRef, error)
	// LockPeriodRefs row locks every period of the company, blocking postings until commit.
	LockPeriodRefs(ctx context.Context, companyID int64) ([]PeriodRef, error)
	ListPeriodRefs(ctx context.Context, companyID int64) ([]PeriodRef, error)
	// LatestBalances returns, per (account, branch), the newest row starting on or before periodStart.
	LatestBalances(ctx context.Context, companyID int64, accountID, branchID *int64, periodStart time.Time) ([]AccountBalance, error)
	ListBalances(ctx context.Context, companyID int64) ([]AccountBalance, error)
	LoadHistory(ctx context.Context, companyID int64) ([]HistoryLine, error)
	DeleteBalances(ctx context.Context, companyID int64) error
	InsertBalances(ctx context.Context, rows []AccountBalance) error
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Repository persists snapshots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a repeatable read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{BalanceTx: NewBalanceTx(tx), TxAudit: shared.NewTxAudit(tx)})
	})
}

type txRepository struct {
	*BalanceTx
	shared.TxAudit
}

// BalanceTx implements Store and the snapshot queries on an open transaction.
type BalanceTx struct {
	tx pgx.Tx
}

func NewBalanceTx(tx pgx.Tx) *BalanceTx {
	return &BalanceTx{tx: tx}
}

const balanceColumns = `id, company_id, account_id, period_id, branch_id, fiscal_year, period_start,
opening_debit, opening_credit, period_debit, period_credit, closing_debit, closing_credit, ytd_debit, ytd_credit, updated_at`

func scanBalance(row pgx.Row) (AccountBalance, error) {
	var b AccountBalance
	err := row.Scan(&b.ID, &b.CompanyID, &b.AccountID, &b.PeriodID, &b.BranchID, &b.FiscalYear, &b.PeriodStart,
		&b.OpeningDebit, &b.OpeningCredit, &b.PeriodDebit, &b.PeriodCredit, &b.ClosingDebit, &b.ClosingCredit,
		&b.YTDDebit, &b.YTDCredit, &b.UpdatedAt)
	return b, err
}

func (r *BalanceTx) optional(ctx context.Context, query string, args ...any) (*AccountBalance, error) {
	b, err := scanBalance(r.tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BalanceTx) list(ctx context.Context, query string, args ...any) ([]AccountBalance, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *BalanceTx) GetBalanceForUpdate(ctx context.Context, key Key) (*AccountBalance, error) {
	return r.optional(ctx, `SELECT `+balanceColumns+` FROM account_balances
WHERE account_id=$1 AND period_id=$2 AND branch_id=$3 FOR UPDATE`, key.AccountID, key.PeriodID, key.BranchID)
}

// LockChain takes a transaction scoped advisory lock, so a chain with no rows yet is serialized too.
func (r *BalanceTx) LockChain(ctx context.Context, accountID, branchID int64) error {
	_, err := r.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended('account_balances:' || $1::text || ':' || $2::text, 0))`,
		accountID, branchID)
	return err
}

func (r *BalanceTx) GetPriorBalance(ctx context.Context, accountID, branchID int64, before time.Time) (*AccountBalance, error) {
	return r.optional(ctx, `SELECT `+balanceColumns+` FROM account_balances
WHERE account_id=$1 AND branch_id=$2 AND period_start < $3::date ORDER BY period_start DESC LIMIT 1 FOR UPDATE`, accountID, branchID, before)
}

func (r *BalanceTx) InsertBalance(ctx context.Context, s AccountBalance) (AccountBalance, error) {
	inserted, err := r.optional(ctx, `INSERT INTO account_balances (company_id, account_id, period_id, branch_id, fiscal_year, period_start,
opening_debit, opening_credit, period_debit, period_credit, closing_debit, closing_credit, ytd_debit, ytd_credit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (account_id, period_id, branch_id) DO NOTHING
RETURNING `+balanceColumns,
		s.CompanyID, s.AccountID, s.PeriodID, s.BranchID, s.FiscalYear, s.PeriodStart,
		s.OpeningDebit, s.OpeningCredit, s.PeriodDebit, s.PeriodCredit, s.ClosingDebit, s.ClosingCredit, s.YTDDebit, s.YTDCredit)
	if err != nil {
		return AccountBalance{}, err
	}
	if inserted != nil {
		return *inserted, nil
	}
	existing, err := r.GetBalanceForUpdate(ctx, s.Key())
	if err != nil {
		return AccountBalance{}, err
	}
	if existing == nil {
		return AccountBalance{}, shared.Conflict("balance.insert_race", "balance row vanished during insert")
	}
	return *existing, nil
}

func (r *BalanceTx) IncrementBalance(ctx context.Context, id int64, debit, credit decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE account_balances SET
period_debit = period_debit + $2, period_credit = period_credit + $3,
closing_debit = closing_debit + $2, closing_credit = closing_credit + $3,
ytd_debit = ytd_debit + $2, ytd_credit = ytd_credit + $3, updated_at = NOW()
WHERE id=$1`, id, debit, credit)
	return err
}

func (r *BalanceTx) ShiftLaterBalances(ctx context.Context, accountID, branchID int64, periodStart time.Time, fiscalYear int, debit, credit decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE account_balances SET
opening_debit = opening_debit + $4, opening_credit = opening_credit + $5,
closing_debit = closing_debit + $4, closing_credit = closing_credit + $5,
ytd_debit = ytd_debit + CASE WHEN fiscal_year = $6 THEN $4 ELSE 0 END,
ytd_credit = ytd_credit + CASE WHEN fiscal_year = $6 THEN $5 ELSE 0 END,
updated_at = NOW()
WHERE account_id=$1 AND branch_id=$2 AND period_start > $3::date`, accountID, branchID, periodStart, debit, credit, fiscalYear)
	return err
}

func (r *BalanceTx) GetPeriodRef(ctx context.Context, companyID, periodID int64) (PeriodRef, error) {
	var p PeriodRef
	err := r.tx.QueryRow(ctx, `SELECT id, fiscal_year, start_date FROM accounting_periods WHERE company_id=$1 AND id=$2`, companyID, periodID).
		Scan(&p.ID, &p.FiscalYear, &p.StartDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return PeriodRef{}, ErrPeriodNotFound
	}
	return p, err
}

func (r *BalanceTx) LockPeriodRefs(ctx context.Context, companyID int64) ([]PeriodRef, error) {
	return r.periodRefs(ctx, `SELECT id, fiscal_year, start_date FROM accounting_periods WHERE company_id=$1 ORDER BY id FOR UPDATE`, companyID)
}

func (r *BalanceTx) ListPeriodRefs(ctx context.Context, companyID int64) ([]PeriodRef, error) {
	return r.periodRefs(ctx, `SELECT id, fiscal_year, start_date FROM accounting_periods WHERE company_id=$1 ORDER BY id`, companyID)
}

func (r *BalanceTx) periodRefs(ctx context.Context, query string, companyID int64) ([]PeriodRef, error) {
	rows, err := r.tx.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PeriodRef
	for rows.Next() {
		var p PeriodRef
		if err := rows.Scan(&p.ID, &p.FiscalYear, &p.StartDate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *BalanceTx) LatestBalances(ctx context.Context, companyID int64, accountID, branchID *int64, periodStart time.Time) ([]AccountBalance, error) {
	return r.list(ctx, `SELECT DISTINCT ON (account_id, branch_id) `+balanceColumns+` FROM account_balances
WHERE company_id=$1 AND ($2::bigint IS NULL OR account_id=$2) AND ($3::bigint IS NULL OR branch_id=$3) AND period_start <= $4::date
ORDER BY account_id, branch_id, period_start DESC`, companyID, accountID, branchID, periodStart)
}

func (r *BalanceTx) ListBalances(ctx context.Context, companyID int64) ([]AccountBalance, error) {
	return r.list(ctx, `SELECT `+balanceColumns+` FROM account_balances WHERE company_id=$1 ORDER BY account_id, branch_id, period_start`, companyID)
}

// LoadHistory returns lines of journals that have affected balances. Voided journals still count;
// their reversal journal nets them out.
func (r *BalanceTx) LoadHistory(ctx context.Context, companyID int64) ([]HistoryLine, error) {
	rows, err := r.tx.Query(ctx, `SELECT l.account_id, j.branch_id, j.period_id, l.debit, l.credit
FROM journal_lines l JOIN journals j ON j.id = l.journal_id
WHERE j.company_id=$1 AND j.status IN ('POSTED','VOIDED') AND j.deleted_at IS NULL
ORDER BY j.id, l.line_no`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryLine
	for rows.Next() {
		var l HistoryLine
		if err := rows.Scan(&l.AccountID, &l.BranchID, &l.PeriodID, &l.Debit, &l.Credit); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *BalanceTx) DeleteBalances(ctx context.Context, companyID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM account_balances WHERE company_id=$1`, companyID)
	return err
}

func (r *BalanceTx) InsertBalances(ctx context.Context, rows []AccountBalance) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range rows {
		batch.Queue(`INSERT INTO account_balances (company_id, account_id, period_id, branch_id, fiscal_year, period_start,
opening_debit, opening_credit, period_debit, period_credit, closing_debit, closing_credit, ytd_debit, ytd_credit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			b.CompanyID, b.AccountID, b.PeriodID, b.BranchID, b.FiscalYear, b.PeriodStart,
			b.OpeningDebit, b.OpeningCredit, b.PeriodDebit, b.PeriodCredit, b.ClosingDebit, b.ClosingCredit, b.YTDDebit, b.YTDCredit)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}
