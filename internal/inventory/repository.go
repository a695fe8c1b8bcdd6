package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	shared.AuditWriter
	LookupIdempotency(ctx context.Context, companyID int64, module, key string) (*shared.IdempotencyRecord, error)
	SaveIdempotency(ctx context.Context, rec shared.IdempotencyRecord) error
	NextReference(ctx context.Context, companyID int64, prefix string, day time.Time) (string, error)

	InsertProduct(ctx context.Context, p Product) (Product, error)
	InsertWarehouse(ctx context.Context, w Warehouse) (Warehouse, error)
	GetProduct(ctx context.Context, companyID, id int64) (Product, error)
	GetWarehouse(ctx context.Context, companyID, id int64) (Warehouse, error)
	ListProducts(ctx context.Context, companyID int64) ([]Product, error)
	ListWarehouses(ctx context.Context, companyID int64) ([]Warehouse, error)

	// LockStockItem creates the (product, warehouse, unit) row when missing and locks it.
	LockStockItem(ctx context.Context, companyID, productID, warehouseID int64, unit string) (StockItem, error)
	UpdateStockItem(ctx context.Context, item StockItem) error
	// LockOpenBatches locks the batches with remaining quantity of a stock item.
	LockOpenBatches(ctx context.Context, companyID, productID, warehouseID int64, unit string) ([]StockBatch, error)
	InsertBatch(ctx context.Context, b StockBatch) (StockBatch, error)
	UpdateBatchRemaining(ctx context.Context, b StockBatch) error

	InsertMovement(ctx context.Context, m StockMovement) (StockMovement, error)
	PairMovements(ctx context.Context, outID, inID int64) error
	GetMovement(ctx context.Context, companyID, id int64) (StockMovement, error)
	GetMovementForUpdate(ctx context.Context, companyID, id int64) (StockMovement, error)
	SetMovementJournal(ctx context.Context, companyID, id, journalID int64) error

	SumStock(ctx context.Context, companyID int64, q StockQuery) (StockLevel, error)
	ListMovements(ctx context.Context, companyID int64, f MovementFilter) ([]StockCardEntry, int, error)
	LayerDrift(ctx context.Context, companyID int64) ([]LayerDrift, error)
	ListUnlinkedMovements(ctx context.Context, companyID int64, limit int) ([]StockMovement, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback at read committed. Stock items and batches are locked
// FOR UPDATE by the queries, which serialises writers per (product, warehouse, unit).
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

// NewTxRepository binds the inventory queries to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx, TxAudit: shared.NewTxAudit(tx), TxIdempotency: shared.NewTxIdempotency(tx)}
}

type txRepository struct {
	tx pgx.Tx
	shared.TxAudit
	shared.TxIdempotency
}
