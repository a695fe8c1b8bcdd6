package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository persists the chart of accounts.
type Repository interface {
	List(ctx context.Context, companyID int64) ([]Account, error)
	Get(ctx context.Context, companyID, id int64) (Account, error)
	Insert(ctx context.Context, account Account) (Account, error)
	ListCostCenters(ctx context.Context, companyID int64) ([]CostCenter, error)
	GetCostCenter(ctx context.Context, companyID, id int64) (CostCenter, error)
	InsertCostCenter(ctx context.Context, cc CostCenter) (CostCenter, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, company_id, code, name, type, parent_id, is_group, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsGroup, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) List(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Account, error) {
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

func (r *repository) Insert(ctx context.Context, a Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (company_id, code, name, type, parent_id, is_group, is_active)
VALUES ($1, $2, $3, $4, $5, $6, TRUE) RETURNING `+accountColumns,
		a.CompanyID, a.Code, a.Name, a.Type, a.ParentID, a.IsGroup)
	inserted, err := scanAccount(row)
	return inserted, shared.MapPgError(err)
}

func (r *repository) ListCostCenters(ctx context.Context, companyID int64) ([]CostCenter, error) {
	rows, err := r.db.Query(ctx, `SELECT id, company_id, code, name, parent_id, is_active, created_at FROM cost_centers WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CostCenter
	for rows.Next() {
		var c CostCenter
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Code, &c.Name, &c.ParentID, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) GetCostCenter(ctx context.Context, companyID, id int64) (CostCenter, error) {
	var c CostCenter
	err := r.db.QueryRow(ctx, `SELECT id, company_id, code, name, parent_id, is_active, created_at FROM cost_centers WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&c.ID, &c.CompanyID, &c.Code, &c.Name, &c.ParentID, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CostCenter{}, ErrCostCenterNotFound
	}
	return c, err
}

func (r *repository) InsertCostCenter(ctx context.Context, c CostCenter) (CostCenter, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO cost_centers (company_id, code, name, parent_id) VALUES ($1, $2, $3, $4)
RETURNING id, is_active, created_at`, c.CompanyID, c.Code, c.Name, c.ParentID).Scan(&c.ID, &c.IsActive, &c.CreatedAt)
	return c, shared.MapPgError(err)
}

// AccountTx resolves accounts inside a posting transaction.
type AccountTx struct {
	tx pgx.Tx
}

func NewAccountTx(tx pgx.Tx) *AccountTx {
	return &AccountTx{tx: tx}
}

// GetAccounts loads the listed accounts of the company keyed by id. Missing ids are simply absent.
func (r *AccountTx) GetAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id = ANY($2)`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// CountCostCenters counts active cost centres of the company among ids.
func (r *AccountTx) CountCostCenters(ctx context.Context, companyID int64, ids []int64) (int, error) {
	var n int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM cost_centers WHERE company_id=$1 AND id = ANY($2) AND is_active`, companyID, ids).Scan(&n)
	return n, err
}
