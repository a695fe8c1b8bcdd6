package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type itemKey struct {
	product, warehouse int64
	unit               string
}

type memoryState struct {
	products   map[int64]Product
	warehouses map[int64]Warehouse
	items      map[itemKey]StockItem
	batches    map[int64]StockBatch
	movements  map[int64]StockMovement
	nextID     int64
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		products:   make(map[int64]Product, len(s.products)),
		warehouses: make(map[int64]Warehouse, len(s.warehouses)),
		items:      make(map[itemKey]StockItem, len(s.items)),
		batches:    make(map[int64]StockBatch, len(s.batches)),
		movements:  make(map[int64]StockMovement, len(s.movements)),
		nextID:     s.nextID,
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.warehouses {
		out.warehouses[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.movements {
		out.movements[k] = v
	}
	return out
}

// memoryRepo keeps the stock ledger in maps; the shared ledger supplies audit, keys and sequences.
type memoryRepo struct {
	*ledgertest.Ledger
	memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		Ledger: ledgertest.New(),
		memoryState: memoryState{
			products:   map[int64]Product{},
			warehouses: map[int64]Warehouse{},
			items:      map[itemKey]StockItem{},
			batches:    map[int64]StockBatch{},
			movements:  map[int64]StockMovement{},
		},
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return m.Ledger.Tx(func() error {
		saved := m.memoryState.clone()
		if err := fn(ctx, m); err != nil {
			m.memoryState = saved
			return err
		}
		return nil
	})
}

func (m *memoryRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memoryRepo) InsertProduct(_ context.Context, p Product) (Product, error) {
	p.ID = m.id()
	p.CreatedAt = time.Now()
	m.products[p.ID] = p
	return p, nil
}

func (m *memoryRepo) InsertWarehouse(_ context.Context, w Warehouse) (Warehouse, error) {
	w.ID = m.id()
	w.CreatedAt = time.Now()
	m.warehouses[w.ID] = w
	return w, nil
}

func (m *memoryRepo) GetProduct(_ context.Context, companyID, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok || p.CompanyID != companyID {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetWarehouse(_ context.Context, companyID, id int64) (Warehouse, error) {
	w, ok := m.warehouses[id]
	if !ok || w.CompanyID != companyID {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return w, nil
}

func (m *memoryRepo) ListProducts(_ context.Context, companyID int64) ([]Product, error) {
	var out []Product
	for _, p := range m.products {
		if p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (m *memoryRepo) ListWarehouses(_ context.Context, companyID int64) ([]Warehouse, error) {
	var out []Warehouse
	for _, w := range m.warehouses {
		if w.CompanyID == companyID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memoryRepo) LockStockItem(_ context.Context, companyID, productID, warehouseID int64, unit string) (StockItem, error) {
	k := itemKey{productID, warehouseID, unit}
	it, ok := m.items[k]
	if !ok {
		it = StockItem{ID: m.id(), CompanyID: companyID, ProductID: productID, WarehouseID: warehouseID, Unit: unit}
		m.items[k] = it
	}
	return it, nil
}

func (m *memoryRepo) UpdateStockItem(_ context.Context, item StockItem) error {
	m.items[itemKey{item.ProductID, item.WarehouseID, item.Unit}] = item
	return nil
}

func (m *memoryRepo) LockOpenBatches(_ context.Context, companyID, productID, warehouseID int64, unit string) ([]StockBatch, error) {
	var out []StockBatch
	for _, b := range m.batches {
		if b.CompanyID == companyID && b.ProductID == productID && b.WarehouseID == warehouseID && b.Unit == unit && b.RemainingQty.IsPositive() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryRepo) InsertBatch(_ context.Context, b StockBatch) (StockBatch, error) {
	b.ID = m.id()
	m.batches[b.ID] = b
	return b, nil
}

func (m *memoryRepo) UpdateBatchRemaining(_ context.Context, b StockBatch) error {
	cur, ok := m.batches[b.ID]
	if !ok || b.RemainingQty.GreaterThan(cur.RemainingQty) {
		return ErrBatchOverconsumed.With("batch %d", b.ID)
	}
	cur.RemainingQty = b.RemainingQty
	m.batches[b.ID] = cur
	return nil
}

func (m *memoryRepo) InsertMovement(_ context.Context, mv StockMovement) (StockMovement, error) {
	for _, other := range m.movements {
		if other.CompanyID == mv.CompanyID && other.Reference == mv.Reference {
			return StockMovement{}, errDuplicateReference
		}
	}
	mv.ID = m.id()
	mv.CreatedAt = time.Now()
	m.movements[mv.ID] = mv
	return mv, nil
}

func (m *memoryRepo) PairMovements(_ context.Context, outID, inID int64) error {
	out, in := m.movements[outID], m.movements[inID]
	out.PairedMovementID, in.PairedMovementID = &inID, &outID
	m.movements[outID], m.movements[inID] = out, in
	return nil
}

func (m *memoryRepo) GetMovement(_ context.Context, companyID, id int64) (StockMovement, error) {
	mv, ok := m.movements[id]
	if !ok || mv.CompanyID != companyID {
		return StockMovement{}, ErrMovementNotFound
	}
	return mv, nil
}

func (m *memoryRepo) GetMovementForUpdate(ctx context.Context, companyID, id int64) (StockMovement, error) {
	return m.GetMovement(ctx, companyID, id)
}

func (m *memoryRepo) SetMovementJournal(_ context.Context, companyID, id, journalID int64) error {
	mv, ok := m.movements[id]
	if !ok || mv.CompanyID != companyID {
		return ErrMovementNotFound
	}
	if mv.JournalID != nil {
		return ErrJournalAlreadyLinked
	}
	mv.JournalID = &journalID
	m.movements[id] = mv
	return nil
}

func (m *memoryRepo) SumStock(_ context.Context, companyID int64, q StockQuery) (StockLevel, error) {
	lvl := StockLevel{Quantity: decimal.Zero, Reserved: decimal.Zero, Value: decimal.Zero}
	for _, it := range m.items {
		if it.CompanyID != companyID || it.ProductID != q.ProductID {
			continue
		}
		if q.WarehouseID != nil && it.WarehouseID != *q.WarehouseID {
			continue
		}
		if q.Unit != "" && it.Unit != q.Unit {
			continue
		}
		lvl.Quantity = lvl.Quantity.Add(it.Quantity)
		lvl.Reserved = lvl.Reserved.Add(it.Reserved)
		lvl.Value = lvl.Value.Add(it.Value())
	}
	return lvl, nil
}

func (m *memoryRepo) ListMovements(_ context.Context, companyID int64, f MovementFilter) ([]StockCardEntry, int, error) {
	var all []StockMovement
	for _, mv := range m.movements {
		if mv.CompanyID == companyID && mv.ProductID == f.ProductID && (f.WarehouseID == nil || mv.WarehouseID == *f.WarehouseID) {
			all = append(all, mv)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].MovementDate.Equal(all[j].MovementDate) {
			return all[i].MovementDate.Before(all[j].MovementDate)
		}
		return all[i].ID < all[j].ID
	})
	running := map[itemKey]decimal.Decimal{}
	var out []StockCardEntry
	for _, mv := range all {
		k := itemKey{0, mv.WarehouseID, mv.Unit}
		running[k] = running[k].Add(mv.SignedQuantity())
		if f.From != nil && mv.MovementDate.Before(*f.From) {
			continue
		}
		if f.To != nil && mv.MovementDate.After(*f.To) {
			continue
		}
		out = append(out, StockCardEntry{StockMovement: mv, BalanceQty: running[k]})
	}
	return out, len(out), nil
}

func (m *memoryRepo) LayerDrift(_ context.Context, companyID int64) ([]LayerDrift, error) {
	var out []LayerDrift
	for k, it := range m.items {
		if it.CompanyID != companyID || !m.products[k.product].ValuationMethod.UsesLayers() {
			continue
		}
		layers := decimal.Zero
		for _, b := range m.batches {
			if b.ProductID == k.product && b.WarehouseID == k.warehouse && b.Unit == k.unit {
				layers = layers.Add(b.RemainingQty)
			}
		}
		if !decimal.Max(it.Quantity, decimal.Zero).Equal(layers) {
			out = append(out, LayerDrift{ProductID: k.product, WarehouseID: k.warehouse, Unit: k.unit, Quantity: it.Quantity, LayerQty: layers})
		}
	}
	return out, nil
}

func (m *memoryRepo) ListUnlinkedMovements(_ context.Context, companyID int64, limit int) ([]StockMovement, error) {
	var out []StockMovement
	for _, mv := range m.movements {
		if mv.CompanyID == companyID && mv.JournalID == nil && !shared.RoundMoney(mv.TotalCost).IsZero() {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) item(productID, warehouseID int64, unit string) StockItem {
	return m.items[itemKey{productID, warehouseID, unit}]
}

func (m *memoryRepo) batchesOf(productID, warehouseID int64) []StockBatch {
	var out []StockBatch
	for _, b := range m.batches {
		if b.ProductID == productID && b.WarehouseID == warehouseID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var errDuplicateReference = shared.Conflict("db.unique_violation", "duplicate movement reference")
