package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func (r *txRepository) NextReference(ctx context.Context, companyID int64, prefix string, day time.Time) (string, error) {
	return sequence.Reference(ctx, r.tx, companyID, prefix, day)
}

const productColumns = `id, company_id, sku, name, valuation_method, is_active, created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CompanyID, &p.SKU, &p.Name, &p.ValuationMethod, &p.IsActive, &p.CreatedAt)
	return p, err
}

const warehouseColumns = `id, company_id, branch_id, code, name, kind, allow_negative_stock, is_active, created_at`

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var w Warehouse
	err := row.Scan(&w.ID, &w.CompanyID, &w.BranchID, &w.Code, &w.Name, &w.Kind, &w.AllowNegativeStock, &w.IsActive, &w.CreatedAt)
	return w, err
}

func (r *txRepository) InsertProduct(ctx context.Context, p Product) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `INSERT INTO products (company_id, sku, name, valuation_method, is_active)
VALUES ($1, $2, $3, $4, $5) RETURNING `+productColumns, p.CompanyID, p.SKU, p.Name, p.ValuationMethod, p.IsActive))
}

func (r *txRepository) InsertWarehouse(ctx context.Context, w Warehouse) (Warehouse, error) {
	return scanWarehouse(r.tx.QueryRow(ctx, `INSERT INTO warehouses (company_id, branch_id, code, name, kind, allow_negative_stock, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING `+warehouseColumns,
		w.CompanyID, w.BranchID, w.Code, w.Name, w.Kind, w.AllowNegativeStock, w.IsActive))
}

func (r *txRepository) GetProduct(ctx context.Context, companyID, id int64) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound.With("id %d", id)
	}
	return p, err
}

func (r *txRepository) GetWarehouse(ctx context.Context, companyID, id int64) (Warehouse, error) {
	w, err := scanWarehouse(r.tx.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE company_id=$1 AND id=$2`, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrWarehouseNotFound.With("id %d", id)
	}
	return w, err
}

func (r *txRepository) ListProducts(ctx context.Context, companyID int64) ([]Product, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 ORDER BY sku`, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Product, error) { return scanProduct(row) })
}

func (r *txRepository) ListWarehouses(ctx context.Context, companyID int64) ([]Warehouse, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+warehouseColumns+` FROM warehouses WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Warehouse, error) { return scanWarehouse(row) })
}

const itemColumns = `id, company_id, product_id, warehouse_id, unit, quantity, reserved, avg_cost, updated_at`

func (r *txRepository) LockStockItem(ctx context.Context, companyID, productID, warehouseID int64, unit string) (StockItem, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO stock_items (company_id, product_id, warehouse_id, unit)
VALUES ($1, $2, $3, $4) ON CONFLICT (product_id, warehouse_id, unit) DO NOTHING`, companyID, productID, warehouseID, unit); err != nil {
		return StockItem{}, err
	}
	var it StockItem
	err := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items
WHERE company_id=$1 AND product_id=$2 AND warehouse_id=$3 AND unit=$4 FOR UPDATE`, companyID, productID, warehouseID, unit).
		Scan(&it.ID, &it.CompanyID, &it.ProductID, &it.WarehouseID, &it.Unit, &it.Quantity, &it.Reserved, &it.AvgCost, &it.UpdatedAt)
	return it, err
}

func (r *txRepository) UpdateStockItem(ctx context.Context, item StockItem) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_items SET quantity=$2, reserved=$3, avg_cost=$4, updated_at=NOW() WHERE id=$1`,
		item.ID, item.Quantity, item.Reserved, item.AvgCost)
	return err
}

const batchColumns = `id, company_id, product_id, warehouse_id, unit, movement_id, received_date, initial_qty, remaining_qty, unit_cost`

func (r *txRepository) LockOpenBatches(ctx context.Context, companyID, productID, warehouseID int64, unit string) ([]StockBatch, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+batchColumns+` FROM stock_batches
WHERE company_id=$1 AND product_id=$2 AND warehouse_id=$3 AND unit=$4 AND remaining_qty > 0
ORDER BY received_date, id FOR UPDATE`, companyID, productID, warehouseID, unit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockBatch, error) {
		var b StockBatch
		err := row.Scan(&b.ID, &b.CompanyID, &b.ProductID, &b.WarehouseID, &b.Unit, &b.MovementID, &b.ReceivedDate,
			&b.InitialQty, &b.RemainingQty, &b.UnitCost)
		return b, err
	})
}

func (r *txRepository) InsertBatch(ctx context.Context, b StockBatch) (StockBatch, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_batches (company_id, product_id, warehouse_id, unit, movement_id, received_date,
initial_qty, remaining_qty, unit_cost) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		b.CompanyID, b.ProductID, b.WarehouseID, b.Unit, b.MovementID, b.ReceivedDate, b.InitialQty, b.RemainingQty, b.UnitCost).
		Scan(&b.ID)
	return b, err
}

// UpdateBatchRemaining only ever lowers remaining_qty; the guard catches a stale caller.
func (r *txRepository) UpdateBatchRemaining(ctx context.Context, b StockBatch) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_batches SET remaining_qty=$2 WHERE id=$1 AND remaining_qty >= $2`, b.ID, b.RemainingQty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchOverconsumed.With("batch %d", b.ID)
	}
	return nil
}

const movementColumns = `id, company_id, branch_id, reference, type, direction, product_id, warehouse_id, unit, quantity,
unit_cost, total_cost, movement_date, source_kind, source_id, paired_movement_id, journal_id, note, created_by, created_at`

func scanMovement(row pgx.Row, extra ...any) (StockMovement, error) {
	var (
		m          StockMovement
		sourceKind *string
		sourceID   *int64
	)
	dest := []any{&m.ID, &m.CompanyID, &m.BranchID, &m.Reference, &m.Type, &m.Direction, &m.ProductID, &m.WarehouseID,
		&m.Unit, &m.Quantity, &m.UnitCost, &m.TotalCost, &m.MovementDate, &sourceKind, &sourceID, &m.PairedMovementID,
		&m.JournalID, &m.Note, &m.CreatedBy, &m.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return StockMovement{}, err
	}
	if sourceKind != nil && sourceID != nil {
		m.Source = &SourceRef{Kind: SourceKind(*sourceKind), ID: *sourceID}
	}
	return m, nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (StockMovement, error) {
	var kind *string
	var sourceID *int64
	if m.Source != nil {
		k := string(m.Source.Kind)
		kind, sourceID = &k, &m.Source.ID
	}
	return scanMovement(r.tx.QueryRow(ctx, `INSERT INTO stock_movements (company_id, branch_id, reference, type, direction,
product_id, warehouse_id, unit, quantity, unit_cost, total_cost, movement_date, source_kind, source_id, note, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING `+movementColumns,
		m.CompanyID, m.BranchID, m.Reference, m.Type, m.Direction, m.ProductID, m.WarehouseID, m.Unit, m.Quantity,
		m.UnitCost, m.TotalCost, m.MovementDate, kind, sourceID, m.Note, m.CreatedBy))
}

func (r *txRepository) PairMovements(ctx context.Context, outID, inID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_movements SET paired_movement_id = CASE id WHEN $1 THEN $2 ELSE $1 END
WHERE id IN ($1, $2) AND paired_movement_id IS NULL`, outID, inID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 2 {
		return fmt.Errorf("inventory: pair movements %d/%d: %d rows", outID, inID, tag.RowsAffected())
	}
	return nil
}

func (r *txRepository) getMovement(ctx context.Context, query string, companyID, id int64) (StockMovement, error) {
	m, err := scanMovement(r.tx.QueryRow(ctx, query, companyID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return StockMovement{}, ErrMovementNotFound.With("id %d", id)
	}
	return m, err
}

func (r *txRepository) GetMovement(ctx context.Context, companyID, id int64) (StockMovement, error) {
	return r.getMovement(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE company_id=$1 AND id=$2`, companyID, id)
}

func (r *txRepository) GetMovementForUpdate(ctx context.Context, companyID, id int64) (StockMovement, error) {
	return r.getMovement(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id)
}

func (r *txRepository) SetMovementJournal(ctx context.Context, companyID, id, journalID int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_movements SET journal_id=$3 WHERE company_id=$1 AND id=$2 AND journal_id IS NULL`,
		companyID, id, journalID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJournalAlreadyLinked.With("movement %d", id)
	}
	return nil
}

func (r *txRepository) SumStock(ctx context.Context, companyID int64, q StockQuery) (StockLevel, error) {
	where := []string{"company_id=$1", "product_id=$2"}
	args := []any{companyID, q.ProductID}
	if q.WarehouseID != nil {
		args = append(args, *q.WarehouseID)
		where = append(where, fmt.Sprintf("warehouse_id=$%d", len(args)))
	}
	if q.Unit != "" {
		args = append(args, q.Unit)
		where = append(where, fmt.Sprintf("unit=$%d", len(args)))
	}
	var lvl StockLevel
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0), COALESCE(SUM(reserved), 0), COALESCE(SUM(quantity * avg_cost), 0)
FROM stock_items WHERE `+strings.Join(where, " AND "), args...).Scan(&lvl.Quantity, &lvl.Reserved, &lvl.Value)
	return lvl, err
}

func (r *txRepository) ListMovements(ctx context.Context, companyID int64, f MovementFilter) ([]StockCardEntry, int, error) {
	// The running balance covers the whole card; date filters apply after the window.
	inner := []string{"company_id=$1", "product_id=$2"}
	args := []any{companyID, f.ProductID}
	if f.WarehouseID != nil {
		args = append(args, *f.WarehouseID)
		inner = append(inner, fmt.Sprintf("warehouse_id=$%d", len(args)))
	}
	var outer []string
	if f.From != nil {
		args = append(args, *f.From)
		outer = append(outer, fmt.Sprintf("movement_date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		outer = append(outer, fmt.Sprintf("movement_date <= $%d", len(args)))
	}
	card := fmt.Sprintf(`SELECT *, SUM(CASE direction WHEN 'IN' THEN quantity ELSE -quantity END)
OVER (PARTITION BY warehouse_id, unit ORDER BY movement_date, id) AS balance_qty
FROM stock_movements WHERE %s`, strings.Join(inner, " AND "))
	cond := "TRUE"
	if len(outer) > 0 {
		cond = strings.Join(outer, " AND ")
	}

	var total int
	if err := r.tx.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM (%s) card WHERE %s`, card, cond), args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(f.Page, f.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.tx.Query(ctx, fmt.Sprintf(`SELECT %s, balance_qty FROM (%s) card WHERE %s ORDER BY movement_date, id LIMIT $%d OFFSET $%d`,
		movementColumns, card, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []StockCardEntry
	for rows.Next() {
		var bal decimal.Decimal
		m, err := scanMovement(rows, &bal)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, StockCardEntry{StockMovement: m, BalanceQty: bal})
	}
	return out, total, rows.Err()
}

func (r *txRepository) LayerDrift(ctx context.Context, companyID int64) ([]LayerDrift, error) {
	rows, err := r.tx.Query(ctx, `SELECT si.product_id, si.warehouse_id, si.unit, si.quantity, COALESCE(SUM(sb.remaining_qty), 0)
FROM stock_items si
JOIN products p ON p.id = si.product_id AND p.valuation_method IN ('FIFO','LIFO')
LEFT JOIN stock_batches sb ON sb.product_id = si.product_id AND sb.warehouse_id = si.warehouse_id AND sb.unit = si.unit
WHERE si.company_id=$1
GROUP BY si.product_id, si.warehouse_id, si.unit, si.quantity
HAVING GREATEST(si.quantity, 0) <> COALESCE(SUM(sb.remaining_qty), 0)
ORDER BY si.product_id, si.warehouse_id, si.unit`, companyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (LayerDrift, error) {
		var d LayerDrift
		err := row.Scan(&d.ProductID, &d.WarehouseID, &d.Unit, &d.Quantity, &d.LayerQty)
		return d, err
	})
}

func (r *txRepository) ListUnlinkedMovements(ctx context.Context, companyID int64, limit int) ([]StockMovement, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE company_id=$1 AND journal_id IS NULL AND ROUND(total_cost, 2) <> 0 ORDER BY id LIMIT $2`, companyID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (StockMovement, error) { return scanMovement(row) })
}
