package mappings

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Get(ctx context.Context, companyID int64, module, key string) (AccountMapping, error)
	List(ctx context.Context, companyID int64) ([]AccountMapping, error)
	Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const columns = `company_id, module, key, account_id, created_at, updated_at`

func scan(row pgx.Row) (AccountMapping, error) {
	var m AccountMapping
	err := row.Scan(&m.CompanyID, &m.Module, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// Get resolves an account mapping for the specified key.
func (r *repository) Get(ctx context.Context, companyID int64, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, ErrMappingInvalid
	}
	m, err := scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM account_mappings WHERE company_id=$1 AND module=$2 AND key=$3`,
		companyID, strings.ToUpper(module), key))
	if errors.Is(err, pgx.ErrNoRows) {
		return AccountMapping{}, ErrMappingNotFound.With("%s/%s", module, key)
	}
	return m, err
}

func (r *repository) List(ctx context.Context, companyID int64) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM account_mappings WHERE company_id=$1 ORDER BY module, key`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, m AccountMapping) (AccountMapping, error) {
	return scan(r.db.QueryRow(ctx, `INSERT INTO account_mappings (company_id, module, key, account_id)
VALUES ($1, $2, $3, $4)
ON CONFLICT (company_id, module, key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()
RETURNING `+columns, m.CompanyID, m.Module, m.Key, m.AccountID))
}
