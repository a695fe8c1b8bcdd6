package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes everything a posting transaction touches.
type TxRepository interface {
	periods.Reader
	balances.Store
	shared.AuditWriter
	LookupIdempotency(ctx context.Context, companyID int64, module, key string) (*shared.IdempotencyRecord, error)
	SaveIdempotency(ctx context.Context, rec shared.IdempotencyRecord) error
	NextReference(ctx context.Context, companyID int64, prefix string, day time.Time) (string, error)
	GetAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]accounts.Account, error)
	CountCostCenters(ctx context.Context, companyID int64, ids []int64) (int, error)
	InsertJournal(ctx context.Context, j Journal) (Journal, error)
	ReplaceLines(ctx context.Context, journalID int64, lines []Line) ([]Line, error)
	GetJournal(ctx context.Context, companyID, id int64) (Journal, error)
	GetJournalForUpdate(ctx context.Context, companyID, id int64) (Journal, error)
	// UpdateJournal writes the mutable header fields when the stored version equals expected.
	UpdateJournal(ctx context.Context, j Journal, expected int) error
	ListJournals(ctx context.Context, companyID int64, filter ListFilter) ([]Journal, int, error)
}

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Repository persists journals in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn at read committed; balance rows and the period are row locked by the queries.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds the journal queries to an open transaction owned by another component.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{
		tx:            tx,
		PeriodTx:      periods.NewPeriodTx(tx),
		BalanceTx:     balances.NewBalanceTx(tx),
		AccountTx:     accounts.NewAccountTx(tx),
		TxAudit:       shared.NewTxAudit(tx),
		TxIdempotency: shared.NewTxIdempotency(tx),
	}
}

type txRepository struct {
	tx pgx.Tx
	*periods.PeriodTx
	*balances.BalanceTx
	*accounts.AccountTx
	shared.TxAudit
	shared.TxIdempotency
}

func (r *txRepository) NextReference(ctx context.Context, companyID int64, prefix string, day time.Time) (string, error) {
	return sequence.Reference(ctx, r.tx, companyID, prefix, day)
}

const journalColumns = `id, company_id, branch_id, period_id, reference, type, status, transaction_date, posting_date,
description, total_debit, total_credit, source_kind, source_id, reversal_of_id, reversed_by_id, COALESCE(void_reason, ''),
voided_at, voided_by, posted_at, posted_by, created_by, version, deleted_at, created_at, updated_at`

func scanJournal(row pgx.Row) (Journal, error) {
	var (
		j          Journal
		sourceKind *string
		sourceID   *int64
	)
	err := row.Scan(&j.ID, &j.CompanyID, &j.BranchID, &j.PeriodID, &j.Reference, &j.Type, &j.Status, &j.TransactionDate,
		&j.PostingDate, &j.Description, &j.TotalDebit, &j.TotalCredit, &sourceKind, &sourceID, &j.ReversalOfID,
		&j.ReversedByID, &j.VoidReason, &j.VoidedAt, &j.VoidedBy, &j.PostedAt, &j.PostedBy, &j.CreatedBy, &j.Version,
		&j.DeletedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return Journal{}, err
	}
	if sourceKind != nil && sourceID != nil {
		j.Source = &SourceRef{Kind: SourceKind(*sourceKind), ID: *sourceID}
	}
	return j, nil
}

const lineColumns = `id, journal_id, line_no, account_id, cost_center_id, description, debit, credit,
COALESCE(currency, ''), fx_debit, fx_credit, fx_rate, subledger_kind, subledger_id, due_date`

func scanLine(row pgx.Row) (Line, error) {
	var (
		l       Line
		subKind *string
		subID   *int64
	)
	err := row.Scan(&l.ID, &l.JournalID, &l.LineNo, &l.AccountID, &l.CostCenterID, &l.Description, &l.Debit, &l.Credit,
		&l.Currency, &l.FxDebit, &l.FxCredit, &l.FxRate, &subKind, &subID, &l.DueDate)
	if err != nil {
		return Line{}, err
	}
	if subKind != nil && subID != nil {
		l.Subledger = &SubledgerRef{Kind: SubledgerKind(*subKind), ID: *subID}
	}
	return l, nil
}

func sourceArgs(s *SourceRef) (*string, *int64) {
	if s == nil {
		return nil, nil
	}
	kind := string(s.Kind)
	return &kind, &s.ID
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *txRepository) InsertJournal(ctx context.Context, j Journal) (Journal, error) {
	kind, id := sourceArgs(j.Source)
	err := r.tx.QueryRow(ctx, `INSERT INTO journals (company_id, branch_id, period_id, reference, type, status, transaction_date,
description, total_debit, total_credit, source_kind, source_id, reversal_of_id, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id, version, created_at, updated_at`,
		j.CompanyID, j.BranchID, j.PeriodID, j.Reference, j.Type, j.Status, j.TransactionDate, j.Description,
		j.TotalDebit, j.TotalCredit, kind, id, j.ReversalOfID, j.CreatedBy,
	).Scan(&j.ID, &j.Version, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return Journal{}, err
	}
	lines, err := r.insertLines(ctx, j.ID, j.Lines)
	if err != nil {
		return Journal{}, err
	}
	j.Lines = lines
	return j, nil
}

func (r *txRepository) insertLines(ctx context.Context, journalID int64, lines []Line) ([]Line, error) {
	batch := &pgx.Batch{}
	for _, l := range lines {
		var subKind *string
		var subID *int64
		if l.Subledger != nil {
			k := string(l.Subledger.Kind)
			subKind, subID = &k, &l.Subledger.ID
		}
		batch.Queue(`INSERT INTO journal_lines (journal_id, line_no, account_id, cost_center_id, description, debit, credit,
currency, fx_debit, fx_credit, fx_rate, subledger_kind, subledger_id, due_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
			journalID, l.LineNo, l.AccountID, l.CostCenterID, l.Description, l.Debit, l.Credit,
			nullString(l.Currency), l.FxDebit, l.FxCredit, l.FxRate, subKind, subID, l.DueDate)
	}
	br := r.tx.SendBatch(ctx, batch)
	out := make([]Line, len(lines))
	for i, l := range lines {
		l.JournalID = journalID
		if err := br.QueryRow().Scan(&l.ID); err != nil {
			_ = br.Close()
			return nil, err
		}
		out[i] = l
	}
	return out, br.Close()
}

func (r *txRepository) ReplaceLines(ctx context.Context, journalID int64, lines []Line) ([]Line, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE journal_id=$1`, journalID); err != nil {
		return nil, err
	}
	return r.insertLines(ctx, journalID, lines)
}

func (r *txRepository) loadLines(ctx context.Context, ids ...int64) (map[int64][]Line, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lineColumns+` FROM journal_lines WHERE journal_id = ANY($1) ORDER BY journal_id, line_no`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]Line, len(ids))
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		out[l.JournalID] = append(out[l.JournalID], l)
	}
	return out, rows.Err()
}

func (r *txRepository) getJournal(ctx context.Context, query string, companyID, id int64) (Journal, error) {
	j, err := scanJournal(r.tx.QueryRow(ctx, query, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Journal{}, ErrJournalNotFound
	}
	if err != nil {
		return Journal{}, err
	}
	lines, err := r.loadLines(ctx, j.ID)
	if err != nil {
		return Journal{}, err
	}
	j.Lines = lines[j.ID]
	return j, nil
}

func (r *txRepository) GetJournal(ctx context.Context, companyID, id int64) (Journal, error) {
	return r.getJournal(ctx, `SELECT `+journalColumns+` FROM journals WHERE company_id=$1 AND id=$2 AND deleted_at IS NULL`, companyID, id)
}

func (r *txRepository) GetJournalForUpdate(ctx context.Context, companyID, id int64) (Journal, error) {
	return r.getJournal(ctx, `SELECT `+journalColumns+` FROM journals WHERE company_id=$1 AND id=$2 AND deleted_at IS NULL FOR UPDATE`, companyID, id)
}

func (r *txRepository) UpdateJournal(ctx context.Context, j Journal, expected int) error {
	tag, err := r.tx.Exec(ctx, `UPDATE journals SET period_id=$3, transaction_date=$4, posting_date=$5, description=$6, status=$7,
total_debit=$8, total_credit=$9, reversed_by_id=$10, void_reason=$11, voided_at=$12, voided_by=$13, posted_at=$14,
posted_by=$15, deleted_at=$16, version=version+1, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND version=$17`,
		j.CompanyID, j.ID, j.PeriodID, j.TransactionDate, j.PostingDate, j.Description, j.Status,
		j.TotalDebit, j.TotalCredit, j.ReversedByID, nullString(j.VoidReason), j.VoidedAt, j.VoidedBy, j.PostedAt,
		j.PostedBy, j.DeletedAt, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *txRepository) ListJournals(ctx context.Context, companyID int64, filter ListFilter) ([]Journal, int, error) {
	where := []string{"company_id=$1", "deleted_at IS NULL"}
	args := []any{companyID}
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.PeriodID != nil {
		add("period_id=$%d", *filter.PeriodID)
	}
	if filter.Status != "" {
		add("status=$%d", filter.Status)
	}
	if filter.Type != "" {
		add("type=$%d", filter.Type)
	}
	if filter.Source != nil {
		add("source_kind=$%d", string(filter.Source.Kind))
		add("source_id=$%d", filter.Source.ID)
	}
	if filter.From != nil {
		add("transaction_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("transaction_date <= $%d", *filter.To)
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM journals WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.tx.Query(ctx, fmt.Sprintf(`SELECT %s FROM journals WHERE %s ORDER BY transaction_date DESC, id DESC LIMIT $%d OFFSET $%d`,
		journalColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Journal
	var ids []int64
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, j)
		ids = append(ids, j.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return out, total, nil
	}
	lines, err := r.loadLines(ctx, ids...)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, total, nil
}
