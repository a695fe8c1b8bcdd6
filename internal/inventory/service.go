package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Idempotency modules of the stock ledger.
const (
	moduleAdd      = "inventory.add"
	moduleRemove   = "inventory.remove"
	moduleTransfer = "inventory.transfer"
)

// Recorder counts committed movements.
type Recorder interface {
	MovementEvent(movementType string)
}

// Service coordinates inventory operations.
type Service struct {
	repo        RepositoryPort
	integration IntegrationHandler
	metrics     Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// WithIntegration attaches the ledger posting hook.
func (s *Service) WithIntegration(h IntegrationHandler) *Service {
	s.integration = h
	return s
}

// WithMetrics attaches a movement recorder.
func (s *Service) WithMetrics(m Recorder) *Service {
	s.metrics = m
	return s
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateProduct registers a product.
func (s *Service) CreateProduct(ctx context.Context, tenant shared.Tenant, in ProductInput) (Product, error) {
	if err := tenant.Validate(); err != nil {
		return Product{}, err
	}
	p, err := in.normalize()
	if err != nil {
		return Product{}, err
	}
	p.CompanyID = tenant.CompanyID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertProduct(ctx, p)
		if err != nil {
			return err
		}
		p = created
		return s.audit(ctx, tx, tenant, "product.create", "product", p.ID, map[string]any{"sku": p.SKU, "method": p.ValuationMethod})
	})
	if err != nil {
		return Product{}, err
	}
	return p, nil
}

// CreateWarehouse registers a warehouse in a branch.
func (s *Service) CreateWarehouse(ctx context.Context, tenant shared.Tenant, in WarehouseInput) (Warehouse, error) {
	if err := tenant.Validate(); err != nil {
		return Warehouse{}, err
	}
	w, err := in.normalize()
	if err != nil {
		return Warehouse{}, err
	}
	w.CompanyID = tenant.CompanyID
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertWarehouse(ctx, w)
		if err != nil {
			return err
		}
		w = created
		return s.audit(ctx, tx, tenant, "warehouse.create", "warehouse", w.ID, map[string]any{"code": w.Code, "kind": w.Kind})
	})
	if err != nil {
		return Warehouse{}, err
	}
	return w, nil
}

// ListProducts returns the company's products ordered by SKU.
func (s *Service) ListProducts(ctx context.Context, tenant shared.Tenant) ([]Product, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var out []Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListProducts(ctx, tenant.CompanyID)
		return err
	})
	return out, err
}

// ListWarehouses returns the company's warehouses ordered by code.
func (s *Service) ListWarehouses(ctx context.Context, tenant shared.Tenant) ([]Warehouse, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var out []Warehouse
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListWarehouses(ctx, tenant.CompanyID)
		return err
	})
	return out, err
}

// AddStock receives stock: one inbound movement, the weighted average update and, for layered
// products, a new batch. All of it commits together.
func (s *Service) AddStock(ctx context.Context, tenant shared.Tenant, in AddStockInput, key string) (StockMovement, error) {
	if err := tenant.Validate(); err != nil {
		return StockMovement{}, err
	}
	if err := in.Validate(); err != nil {
		return StockMovement{}, err
	}
	payload := in
	in.Unit = strings.TrimSpace(in.Unit)
	in.MovementDate = s.day(in.MovementDate)
	var (
		out    StockMovement
		replay bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, fp, err := s.replay(ctx, tx, tenant, moduleAdd, key, payload)
		if err != nil {
			return err
		}
		if prior != 0 {
			replay = true
			out, err = tx.GetMovement(ctx, tenant.CompanyID, prior)
			return err
		}
		if err := s.checkPosting(ctx, tenant, MovementIntent{Type: in.Type, Direction: DirectionIn, Date: in.MovementDate}); err != nil {
			return err
		}
		product, warehouse, err := s.target(ctx, tx, tenant.CompanyID, in.ProductID, in.WarehouseID)
		if err != nil {
			return err
		}
		item, err := tx.LockStockItem(ctx, tenant.CompanyID, product.ID, warehouse.ID, in.Unit)
		if err != nil {
			return err
		}
		out, err = s.receive(ctx, tx, tenant, product, warehouse, &item, inbound{
			Type: in.Type, Quantity: in.Quantity, UnitCost: in.UnitCost, Date: in.MovementDate, Source: in.Source, Note: in.Note,
		})
		if err != nil {
			return err
		}
		if err := s.claim(ctx, tx, tenant, moduleAdd, key, fp, out.ID); err != nil {
			return err
		}
		return s.audit(ctx, tx, tenant, "inventory.add", "stock_movement", out.ID, movementMeta(out))
	})
	if err != nil {
		return StockMovement{}, err
	}
	if !replay {
		s.afterCommit(out)
	}
	return s.post(ctx, tenant, out), nil
}

// RemoveStock issues stock at the cost the valuation method attributes to it. Available stock is
// checked unless the warehouse allows negative stock or is virtual.
func (s *Service) RemoveStock(ctx context.Context, tenant shared.Tenant, in RemoveStockInput, key string) (StockMovement, error) {
	if err := tenant.Validate(); err != nil {
		return StockMovement{}, err
	}
	if err := in.Validate(); err != nil {
		return StockMovement{}, err
	}
	payload := in
	in.Unit = strings.TrimSpace(in.Unit)
	in.MovementDate = s.day(in.MovementDate)
	var (
		out    StockMovement
		replay bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, fp, err := s.replay(ctx, tx, tenant, moduleRemove, key, payload)
		if err != nil {
			return err
		}
		if prior != 0 {
			replay = true
			out, err = tx.GetMovement(ctx, tenant.CompanyID, prior)
			return err
		}
		if err := s.checkPosting(ctx, tenant, MovementIntent{Type: in.Type, Direction: DirectionOut, Date: in.MovementDate}); err != nil {
			return err
		}
		product, warehouse, err := s.target(ctx, tx, tenant.CompanyID, in.ProductID, in.WarehouseID)
		if err != nil {
			return err
		}
		item, err := tx.LockStockItem(ctx, tenant.CompanyID, product.ID, warehouse.ID, in.Unit)
		if err != nil {
			return err
		}
		out, err = s.issue(ctx, tx, tenant, product, warehouse, &item, outbound{
			Type: in.Type, Quantity: in.Quantity, Date: in.MovementDate, Source: in.Source, Note: in.Note,
		})
		if err != nil {
			return err
		}
		if err := s.claim(ctx, tx, tenant, moduleRemove, key, fp, out.ID); err != nil {
			return err
		}
		return s.audit(ctx, tx, tenant, "inventory.remove", "stock_movement", out.ID, movementMeta(out))
	})
	if err != nil {
		return StockMovement{}, err
	}
	if !replay {
		s.afterCommit(out)
	}
	return s.post(ctx, tenant, out), nil
}

// Transfer moves stock between warehouses as a linked TRANSFER_OUT / TRANSFER_IN pair valued at the
// source's removal cost. Stock items are locked in warehouse id order so opposite transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, tenant shared.Tenant, in TransferInput, key string) (TransferResult, error) {
	if err := tenant.Validate(); err != nil {
		return TransferResult{}, err
	}
	if err := in.Validate(); err != nil {
		return TransferResult{}, err
	}
	payload := in
	in.Unit = strings.TrimSpace(in.Unit)
	in.MovementDate = s.day(in.MovementDate)
	var (
		out    TransferResult
		replay bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		prior, fp, err := s.replay(ctx, tx, tenant, moduleTransfer, key, payload)
		if err != nil {
			return err
		}
		if prior != 0 {
			replay = true
			if out.Outbound, err = tx.GetMovement(ctx, tenant.CompanyID, prior); err != nil {
				return err
			}
			if out.Outbound.PairedMovementID == nil {
				return ErrMovementNotFound.With("transfer %s has no inbound leg", out.Outbound.Reference)
			}
			out.Inbound, err = tx.GetMovement(ctx, tenant.CompanyID, *out.Outbound.PairedMovementID)
			return err
		}
		if err := s.checkPosting(ctx, tenant,
			MovementIntent{Type: MovementTransferOut, Direction: DirectionOut, Date: in.MovementDate},
			MovementIntent{Type: MovementTransferIn, Direction: DirectionIn, Date: in.MovementDate},
		); err != nil {
			return err
		}
		product, from, err := s.target(ctx, tx, tenant.CompanyID, in.ProductID, in.FromWarehouseID)
		if err != nil {
			return err
		}
		to, err := tx.GetWarehouse(ctx, tenant.CompanyID, in.ToWarehouseID)
		if err != nil {
			return err
		}
		if !to.IsActive {
			return ErrWarehouseInactive.With("%s", to.Code)
		}

		var fromItem, toItem StockItem
		lockFirst, lockSecond := &fromItem, &toItem
		firstID, secondID := from.ID, to.ID
		if to.ID < from.ID {
			lockFirst, lockSecond = &toItem, &fromItem
			firstID, secondID = to.ID, from.ID
		}
		if *lockFirst, err = tx.LockStockItem(ctx, tenant.CompanyID, product.ID, firstID, in.Unit); err != nil {
			return err
		}
		if *lockSecond, err = tx.LockStockItem(ctx, tenant.CompanyID, product.ID, secondID, in.Unit); err != nil {
			return err
		}

		note := strings.TrimSpace(in.Note)
		outMv, err := s.issue(ctx, tx, tenant, product, from, &fromItem, outbound{
			Type: MovementTransferOut, Quantity: in.Quantity, Date: in.MovementDate, Source: in.Source,
			Note: joinNote(fmt.Sprintf("transfer to %s", to.Code), note),
		})
		if err != nil {
			return err
		}
		inMv, err := s.receive(ctx, tx, tenant, product, to, &toItem, inbound{
			Type: MovementTransferIn, Quantity: in.Quantity, UnitCost: outMv.UnitCost, Date: in.MovementDate, Source: in.Source,
			Note: joinNote(fmt.Sprintf("transfer from %s", from.Code), note),
		})
		if err != nil {
			return err
		}
		if err := tx.PairMovements(ctx, outMv.ID, inMv.ID); err != nil {
			return err
		}
		outMv.PairedMovementID, inMv.PairedMovementID = &inMv.ID, &outMv.ID
		out = TransferResult{Outbound: outMv, Inbound: inMv}
		if err := s.claim(ctx, tx, tenant, moduleTransfer, key, fp, outMv.ID); err != nil {
			return err
		}
		return s.audit(ctx, tx, tenant, "inventory.transfer", "stock_movement", outMv.ID, map[string]any{
			"outbound": outMv.Reference,
			"inbound":  inMv.Reference,
			"quantity": in.Quantity.String(),
		})
	})
	if err != nil {
		return TransferResult{}, err
	}
	if !replay {
		s.afterCommit(out.Outbound)
		s.afterCommit(out.Inbound)
	}
	out.Outbound = s.post(ctx, tenant, out.Outbound)
	out.Inbound = s.post(ctx, tenant, out.Inbound)
	return out, nil
}

// Reserve earmarks available quantity.
func (s *Service) Reserve(ctx context.Context, tenant shared.Tenant, in ReserveInput) (StockItem, error) {
	return s.adjustReserved(ctx, tenant, in, "inventory.reserve", func(item *StockItem, w Warehouse) error {
		if !w.AllowsNegative() && item.Available().LessThan(in.Quantity) {
			return ErrInsufficientStock.With("available %s, requested %s", item.Available(), in.Quantity)
		}
		item.Reserved = item.Reserved.Add(in.Quantity)
		return nil
	})
}

// Release returns reserved quantity to available stock.
func (s *Service) Release(ctx context.Context, tenant shared.Tenant, in ReserveInput) (StockItem, error) {
	return s.adjustReserved(ctx, tenant, in, "inventory.release", func(item *StockItem, _ Warehouse) error {
		if item.Reserved.LessThan(in.Quantity) {
			return ErrInsufficientReserved.With("reserved %s, requested %s", item.Reserved, in.Quantity)
		}
		item.Reserved = item.Reserved.Sub(in.Quantity)
		return nil
	})
}

func (s *Service) adjustReserved(ctx context.Context, tenant shared.Tenant, in ReserveInput, action string, mutate func(*StockItem, Warehouse) error) (StockItem, error) {
	if err := tenant.Validate(); err != nil {
		return StockItem{}, err
	}
	if err := in.Validate(); err != nil {
		return StockItem{}, err
	}
	unit := strings.TrimSpace(in.Unit)
	var out StockItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, warehouse, err := s.target(ctx, tx, tenant.CompanyID, in.ProductID, in.WarehouseID)
		if err != nil {
			return err
		}
		item, err := tx.LockStockItem(ctx, tenant.CompanyID, product.ID, warehouse.ID, unit)
		if err != nil {
			return err
		}
		if err := mutate(&item, warehouse); err != nil {
			return err
		}
		if err := tx.UpdateStockItem(ctx, item); err != nil {
			return err
		}
		out = item
		return s.audit(ctx, tx, tenant, action, "stock_item", item.ID, map[string]any{
			"quantity": in.Quantity.String(),
			"reserved": item.Reserved.String(),
		})
	})
	if err != nil {
		return StockItem{}, err
	}
	return out, nil
}

// LinkJournal records the journal generated for a movement. The link is set once; linking the same
// journal again is a no-op.
func (s *Service) LinkJournal(ctx context.Context, tenant shared.Tenant, movementID, journalID int64) (StockMovement, error) {
	if err := tenant.Validate(); err != nil {
		return StockMovement{}, err
	}
	if journalID <= 0 {
		return StockMovement{}, shared.Validation("inventory.invalid_journal", "journal id required")
	}
	var out StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, tenant.CompanyID, movementID)
		if err != nil {
			return err
		}
		if m.JournalID != nil {
			if *m.JournalID == journalID {
				out = m
				return nil
			}
			return ErrJournalAlreadyLinked.With("%s is linked to journal %d", m.Reference, *m.JournalID)
		}
		if err := tx.SetMovementJournal(ctx, tenant.CompanyID, m.ID, journalID); err != nil {
			return err
		}
		m.JournalID = &journalID
		out = m
		return s.audit(ctx, tx, tenant, "inventory.link_journal", "stock_movement", m.ID, map[string]any{"journal_id": journalID})
	})
	if err != nil {
		return StockMovement{}, err
	}
	return out, nil
}

// GetMovement returns one movement.
func (s *Service) GetMovement(ctx context.Context, tenant shared.Tenant, id int64) (StockMovement, error) {
	if err := tenant.Validate(); err != nil {
		return StockMovement{}, err
	}
	var out StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.GetMovement(ctx, tenant.CompanyID, id)
		return err
	})
	return out, err
}

// GetStockLevel is the quantity on hand across the matched stock items.
func (s *Service) GetStockLevel(ctx context.Context, tenant shared.Tenant, q StockQuery) (decimal.Decimal, error) {
	lvl, err := s.level(ctx, tenant, q)
	return lvl.Quantity, err
}

// GetAvailableStock is quantity minus reserved across the matched stock items.
func (s *Service) GetAvailableStock(ctx context.Context, tenant shared.Tenant, q StockQuery) (decimal.Decimal, error) {
	lvl, err := s.level(ctx, tenant, q)
	return lvl.Available(), err
}

// GetInventoryValue is the sum of quantity times average cost, unrounded.
func (s *Service) GetInventoryValue(ctx context.Context, tenant shared.Tenant, q StockQuery) (decimal.Decimal, error) {
	lvl, err := s.level(ctx, tenant, q)
	return lvl.Value, err
}

// StockLevel returns quantity, reserved and value in one read.
func (s *Service) StockLevel(ctx context.Context, tenant shared.Tenant, q StockQuery) (StockLevel, error) {
	return s.level(ctx, tenant, q)
}

func (s *Service) level(ctx context.Context, tenant shared.Tenant, q StockQuery) (StockLevel, error) {
	if err := tenant.Validate(); err != nil {
		return StockLevel{}, err
	}
	if q.ProductID <= 0 {
		return StockLevel{}, ErrProductNotFound
	}
	q.Unit = strings.TrimSpace(q.Unit)
	var out StockLevel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetProduct(ctx, tenant.CompanyID, q.ProductID); err != nil {
			return err
		}
		var err error
		out, err = tx.SumStock(ctx, tenant.CompanyID, q)
		return err
	})
	return out, err
}

// ListMovements returns one page of the stock card of a product with running balances.
func (s *Service) ListMovements(ctx context.Context, tenant shared.Tenant, filter MovementFilter) ([]StockCardEntry, shared.Pagination, error) {
	if err := tenant.Validate(); err != nil {
		return nil, shared.Pagination{}, err
	}
	if filter.ProductID <= 0 {
		return nil, shared.Pagination{}, ErrProductNotFound
	}
	var (
		out   []StockCardEntry
		total int
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, total, err = tx.ListMovements(ctx, tenant.CompanyID, filter)
		return err
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ReconcileLayers lists layered stock items whose open batches disagree with their quantity.
func (s *Service) ReconcileLayers(ctx context.Context, tenant shared.Tenant) ([]LayerDrift, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	var out []LayerDrift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.LayerDrift(ctx, tenant.CompanyID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, d := range out {
		s.logger.Error("stock layers drifted",
			slog.Int64("company_id", tenant.CompanyID),
			slog.Int64("product_id", d.ProductID),
			slog.Int64("warehouse_id", d.WarehouseID),
			slog.String("quantity", d.Quantity.String()),
			slog.String("layer_qty", d.LayerQty.String()),
		)
	}
	return out, nil
}

// SyncJournals posts movements that committed without a journal, e.g. after a failed hook.
func (s *Service) SyncJournals(ctx context.Context, tenant shared.Tenant, limit int) (int, error) {
	if err := tenant.Validate(); err != nil {
		return 0, err
	}
	if s.integration == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 100
	}
	var pending []StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		pending, err = tx.ListUnlinkedMovements(ctx, tenant.CompanyID, limit)
		return err
	})
	if err != nil {
		return 0, err
	}
	linked, failed := 0, 0
	for _, m := range pending {
		posted, err := s.postJournal(ctx, tenant, m)
		if err != nil {
			failed++
			s.logPostingFailure(m, err)
			continue
		}
		if posted.JournalID != nil {
			linked++
		}
	}
	if failed > 0 {
		s.logger.Warn("movements still without journal",
			slog.Int64("company_id", tenant.CompanyID),
			slog.Int("failed", failed),
			slog.Int("linked", linked),
		)
	}
	return linked, nil
}

type inbound struct {
	Type     MovementType
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	Date     time.Time
	Source   *SourceRef
	Note     string
}

// receive appends an inbound movement to a locked stock item.
func (s *Service) receive(ctx context.Context, tx TxRepository, tenant shared.Tenant, product Product, warehouse Warehouse, item *StockItem, in inbound) (StockMovement, error) {
	ref, err := tx.NextReference(ctx, tenant.CompanyID, in.Type.Prefix(), in.Date)
	if err != nil {
		return StockMovement{}, err
	}
	m, err := tx.InsertMovement(ctx, StockMovement{
		CompanyID:    tenant.CompanyID,
		BranchID:     warehouse.BranchID,
		Reference:    ref,
		Type:         in.Type,
		Direction:    DirectionIn,
		ProductID:    product.ID,
		WarehouseID:  warehouse.ID,
		Unit:         item.Unit,
		Quantity:     in.Quantity,
		UnitCost:     in.UnitCost,
		TotalCost:    in.Quantity.Mul(in.UnitCost),
		MovementDate: in.Date,
		Source:       in.Source,
		Note:         strings.TrimSpace(in.Note),
		CreatedBy:    tenant.ActorID,
	})
	if err != nil {
		return StockMovement{}, err
	}
	if product.ValuationMethod.UsesLayers() {
		// Units already issued into negative stock absorb the front of the receipt.
		remaining := in.Quantity
		if item.Quantity.IsNegative() {
			remaining = decimal.Max(decimal.Zero, in.Quantity.Add(item.Quantity))
		}
		if _, err := tx.InsertBatch(ctx, StockBatch{
			CompanyID:    tenant.CompanyID,
			ProductID:    product.ID,
			WarehouseID:  warehouse.ID,
			Unit:         item.Unit,
			MovementID:   m.ID,
			ReceivedDate: in.Date,
			InitialQty:   in.Quantity,
			RemainingQty: remaining,
			UnitCost:     in.UnitCost,
		}); err != nil {
			return StockMovement{}, err
		}
	}
	item.AvgCost = WeightedAverage(item.Quantity, item.AvgCost, in.Quantity, in.UnitCost)
	item.Quantity = item.Quantity.Add(in.Quantity)
	if err := tx.UpdateStockItem(ctx, *item); err != nil {
		return StockMovement{}, err
	}
	return m, nil
}

type outbound struct {
	Type     MovementType
	Quantity decimal.Decimal
	Date     time.Time
	Source   *SourceRef
	Note     string
}

// issue appends an outbound movement to a locked stock item and consumes layers.
func (s *Service) issue(ctx context.Context, tx TxRepository, tenant shared.Tenant, product Product, warehouse Warehouse, item *StockItem, out outbound) (StockMovement, error) {
	if !warehouse.AllowsNegative() && item.Available().LessThan(out.Quantity) {
		return StockMovement{}, ErrInsufficientStock.With("%s in %s: available %s, requested %s",
			product.SKU, warehouse.Code, item.Available(), out.Quantity)
	}
	var batches []StockBatch
	if product.ValuationMethod.UsesLayers() {
		var err error
		if batches, err = tx.LockOpenBatches(ctx, tenant.CompanyID, product.ID, warehouse.ID, item.Unit); err != nil {
			return StockMovement{}, err
		}
	}
	cost, err := CostForRemoval(product.ValuationMethod, *item, batches, out.Quantity)
	if err != nil {
		return StockMovement{}, err
	}
	touched, err := ConsumeBatches(batches, cost.Allocations)
	if err != nil {
		return StockMovement{}, err
	}
	for _, b := range touched {
		if err := tx.UpdateBatchRemaining(ctx, b); err != nil {
			return StockMovement{}, err
		}
	}
	ref, err := tx.NextReference(ctx, tenant.CompanyID, out.Type.Prefix(), out.Date)
	if err != nil {
		return StockMovement{}, err
	}
	m, err := tx.InsertMovement(ctx, StockMovement{
		CompanyID:    tenant.CompanyID,
		BranchID:     warehouse.BranchID,
		Reference:    ref,
		Type:         out.Type,
		Direction:    DirectionOut,
		ProductID:    product.ID,
		WarehouseID:  warehouse.ID,
		Unit:         item.Unit,
		Quantity:     out.Quantity,
		UnitCost:     cost.UnitCost,
		TotalCost:    cost.Total,
		MovementDate: out.Date,
		Source:       out.Source,
		Note:         strings.TrimSpace(out.Note),
		CreatedBy:    tenant.ActorID,
	})
	if err != nil {
		return StockMovement{}, err
	}
	item.Quantity = item.Quantity.Sub(out.Quantity)
	if product.ValuationMethod.UsesLayers() {
		item.AvgCost = LayerAverage(batches, item.AvgCost)
	}
	if err := tx.UpdateStockItem(ctx, *item); err != nil {
		return StockMovement{}, err
	}
	if cost.Uncovered.IsPositive() {
		s.logger.Warn("removal not covered by layers",
			slog.Int64("company_id", tenant.CompanyID),
			slog.String("reference", m.Reference),
			slog.String("uncovered", cost.Uncovered.String()),
		)
	}
	return m, nil
}

func (s *Service) target(ctx context.Context, tx TxRepository, companyID, productID, warehouseID int64) (Product, Warehouse, error) {
	product, err := tx.GetProduct(ctx, companyID, productID)
	if err != nil {
		return Product{}, Warehouse{}, err
	}
	if !product.IsActive {
		return Product{}, Warehouse{}, ErrProductInactive.With("%s", product.SKU)
	}
	warehouse, err := tx.GetWarehouse(ctx, companyID, warehouseID)
	if err != nil {
		return Product{}, Warehouse{}, err
	}
	if !warehouse.IsActive {
		return Product{}, Warehouse{}, ErrWarehouseInactive.With("%s", warehouse.Code)
	}
	return product, warehouse, nil
}

// replay returns the stored result id when key was already processed with the same payload,
// or zero with the fingerprint to claim.
func (s *Service) replay(ctx context.Context, tx TxRepository, tenant shared.Tenant, module, key string, payload any) (int64, string, error) {
	if key == "" {
		return 0, "", nil
	}
	fp, err := shared.Fingerprint(payload)
	if err != nil {
		return 0, "", err
	}
	rec, err := tx.LookupIdempotency(ctx, tenant.CompanyID, module, key)
	if err != nil {
		return 0, "", err
	}
	id, ok, err := shared.CheckReplay(rec, fp)
	if err != nil || !ok {
		return 0, fp, err
	}
	return id, fp, nil
}

func (s *Service) claim(ctx context.Context, tx TxRepository, tenant shared.Tenant, module, key, fp string, resultID int64) error {
	if key == "" {
		return nil
	}
	return tx.SaveIdempotency(ctx, shared.IdempotencyRecord{
		Key: key, Module: module, CompanyID: tenant.CompanyID, Fingerprint: fp, ResultID: resultID,
	})
}

// checkPosting rejects a movement the ledger would refuse before anything is written.
func (s *Service) checkPosting(ctx context.Context, tenant shared.Tenant, intents ...MovementIntent) error {
	checker, ok := s.integration.(IntegrationChecker)
	if !ok {
		return nil
	}
	for _, intent := range intents {
		if err := checker.CheckMovement(ctx, tenant, intent); err != nil {
			return err
		}
	}
	return nil
}

// post hands a committed movement to the integration hook and links the journal it returns.
// The movement is already durable, so a failure is logged and left to SyncJournals.
func (s *Service) post(ctx context.Context, tenant shared.Tenant, m StockMovement) StockMovement {
	posted, err := s.postJournal(ctx, tenant, m)
	if err != nil {
		s.logPostingFailure(m, err)
		return m
	}
	return posted
}

// postJournal retries are safe: postings are idempotent per movement.
func (s *Service) postJournal(ctx context.Context, tenant shared.Tenant, m StockMovement) (StockMovement, error) {
	if s.integration == nil || m.JournalID != nil {
		return m, nil
	}
	hookTenant := shared.Tenant{CompanyID: m.CompanyID, BranchID: m.BranchID, ActorID: tenant.ActorID}
	journalID, err := s.integration.HandleMovementPosted(ctx, MovementPostedEvent{Tenant: hookTenant, Movement: m})
	if err != nil {
		return m, fmt.Errorf("inventory: post %s: %w", m.Reference, err)
	}
	if journalID == 0 {
		return m, nil
	}
	return s.LinkJournal(ctx, tenant, m.ID, journalID)
}

func (s *Service) logPostingFailure(m StockMovement, err error) {
	s.logger.Error("movement posting failed",
		slog.Int64("company_id", m.CompanyID),
		slog.String("reference", m.Reference),
		slog.String("code", shared.CodeOf(err)),
		slog.Any("error", err),
	)
}

func (s *Service) afterCommit(m StockMovement) {
	if s.metrics != nil {
		s.metrics.MovementEvent(string(m.Type))
	}
	s.logger.Info("stock movement",
		slog.Int64("company_id", m.CompanyID),
		slog.String("reference", m.Reference),
		slog.String("direction", string(m.Direction)),
		slog.String("quantity", m.Quantity.String()),
		slog.String("unit_cost", m.UnitCost.String()),
	)
}

func (s *Service) audit(ctx context.Context, tx TxRepository, tenant shared.Tenant, action, entity string, id int64, meta map[string]any) error {
	return tx.InsertAudit(ctx, shared.AuditLog{
		CompanyID: tenant.CompanyID,
		ActorID:   tenant.ActorID,
		Action:    action,
		Entity:    entity,
		EntityID:  fmt.Sprintf("%d", id),
		Meta:      meta,
		At:        s.now(),
	})
}

func (s *Service) day(t time.Time) time.Time {
	if t.IsZero() {
		t = s.now()
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func movementMeta(m StockMovement) map[string]any {
	return map[string]any{
		"reference":  m.Reference,
		"type":       m.Type,
		"quantity":   m.Quantity.String(),
		"unit_cost":  m.UnitCost.String(),
		"total_cost": m.TotalCost.String(),
	}
}

func joinNote(prefix, note string) string {
	if note == "" {
		return prefix
	}
	return prefix + ": " + note
}
