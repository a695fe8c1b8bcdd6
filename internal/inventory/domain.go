package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ValuationMethod selects how outbound movements are costed.
type ValuationMethod string

const (
	ValuationFIFO            ValuationMethod = "FIFO"
	ValuationLIFO            ValuationMethod = "LIFO"
	ValuationWeightedAverage ValuationMethod = "WEIGHTED_AVERAGE"
)

// Valid reports whether the method is known.
func (m ValuationMethod) Valid() bool {
	switch m {
	case ValuationFIFO, ValuationLIFO, ValuationWeightedAverage:
		return true
	}
	return false
}

// UsesLayers reports whether receipts create cost batches.
func (m ValuationMethod) UsesLayers() bool {
	return m == ValuationFIFO || m == ValuationLIFO
}

// WarehouseKind distinguishes physical stores from virtual locations (in transit, consignment).
type WarehouseKind string

const (
	WarehousePhysical WarehouseKind = "PHYSICAL"
	WarehouseVirtual  WarehouseKind = "VIRTUAL"
)

// MovementType enumerates stock ledger events.
type MovementType string

const (
	MovementPurchase    MovementType = "PURCHASE"
	MovementSale        MovementType = "SALE"
	MovementTransferIn  MovementType = "TRANSFER_IN"
	MovementTransferOut MovementType = "TRANSFER_OUT"
	MovementAdjustment  MovementType = "ADJUSTMENT"
	MovementReturnIn    MovementType = "RETURN_IN"
	MovementReturnOut   MovementType = "RETURN_OUT"
	MovementOpening     MovementType = "OPENING"
)

var movementPrefixes = map[MovementType]string{
	MovementPurchase:    "PUR",
	MovementSale:        "SAL",
	MovementTransferIn:  "TRI",
	MovementTransferOut: "TRO",
	MovementAdjustment:  "ADJ",
	MovementReturnIn:    "RTI",
	MovementReturnOut:   "RTO",
	MovementOpening:     "OPN",
}

// Prefix is the reference prefix of the type.
func (t MovementType) Prefix() string {
	return movementPrefixes[t]
}

// Inbound reports whether the type may increase stock. Adjustments go both ways.
func (t MovementType) Inbound() bool {
	switch t {
	case MovementPurchase, MovementTransferIn, MovementAdjustment, MovementReturnIn, MovementOpening:
		return true
	}
	return false
}

// Outbound reports whether the type may decrease stock.
func (t MovementType) Outbound() bool {
	switch t {
	case MovementSale, MovementTransferOut, MovementAdjustment, MovementReturnOut:
		return true
	}
	return false
}

// Direction of a movement relative to the warehouse.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// SourceKind tags the document that caused a movement.
type SourceKind string

const (
	SourceGoodsReceipt   SourceKind = "GOODS_RECEIPT"
	SourceDelivery       SourceKind = "DELIVERY"
	SourceSalesInvoice   SourceKind = "SALES_INVOICE"
	SourcePurchaseBill   SourceKind = "PURCHASE_BILL"
	SourceAdjustmentNote SourceKind = "ADJUSTMENT_NOTE"
	SourceTransferNote   SourceKind = "TRANSFER_NOTE"
)

// SourceRef points at the originating document.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   int64      `json:"id"`
}

// Valid reports whether the reference names a known kind and a positive id.
func (s SourceRef) Valid() bool {
	switch s.Kind {
	case SourceGoodsReceipt, SourceDelivery, SourceSalesInvoice, SourcePurchaseBill, SourceAdjustmentNote, SourceTransferNote:
		return s.ID > 0
	}
	return false
}

// Product is a stocked item. Products are company wide.
type Product struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	SKU             string          `json:"sku"`
	Name            string          `json:"name"`
	ValuationMethod ValuationMethod `json:"valuation_method"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Warehouse is a stock location inside a branch.
type Warehouse struct {
	ID                 int64         `json:"id"`
	CompanyID          int64         `json:"company_id"`
	BranchID           int64         `json:"branch_id"`
	Code               string        `json:"code"`
	Name               string        `json:"name"`
	Kind               WarehouseKind `json:"kind"`
	AllowNegativeStock bool          `json:"allow_negative_stock"`
	IsActive           bool          `json:"is_active"`
	CreatedAt          time.Time     `json:"created_at"`
}

// AllowsNegative reports whether removals may exceed available stock.
func (w Warehouse) AllowsNegative() bool {
	return w.AllowNegativeStock || w.Kind == WarehouseVirtual
}

// StockItem is the running balance of one (product, warehouse, unit).
type StockItem struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reserved    decimal.Decimal `json:"reserved"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Available is quantity on hand minus reservations.
func (i StockItem) Available() decimal.Decimal {
	return i.Quantity.Sub(i.Reserved)
}

// Value is quantity times average cost.
func (i StockItem) Value() decimal.Decimal {
	return i.Quantity.Mul(i.AvgCost)
}

// StockMovement is an append-only stock ledger row. Only JournalID and PairedMovementID are set after insert.
type StockMovement struct {
	ID               int64           `json:"id"`
	CompanyID        int64           `json:"company_id"`
	BranchID         int64           `json:"branch_id"`
	Reference        string          `json:"reference"`
	Type             MovementType    `json:"type"`
	Direction        Direction       `json:"direction"`
	ProductID        int64           `json:"product_id"`
	WarehouseID      int64           `json:"warehouse_id"`
	Unit             string          `json:"unit"`
	Quantity         decimal.Decimal `json:"quantity"`
	UnitCost         decimal.Decimal `json:"unit_cost"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	MovementDate     time.Time       `json:"movement_date"`
	Source           *SourceRef      `json:"source,omitempty"`
	PairedMovementID *int64          `json:"paired_movement_id,omitempty"`
	JournalID        *int64          `json:"journal_id,omitempty"`
	Note             string          `json:"note"`
	CreatedBy        int64           `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
}

// SignedQuantity is positive for receipts and negative for removals.
func (m StockMovement) SignedQuantity() decimal.Decimal {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// StockBatch is a FIFO/LIFO cost layer created by a receipt.
type StockBatch struct {
	ID           int64           `json:"id"`
	CompanyID    int64           `json:"company_id"`
	ProductID    int64           `json:"product_id"`
	WarehouseID  int64           `json:"warehouse_id"`
	Unit         string          `json:"unit"`
	MovementID   int64           `json:"movement_id"`
	ReceivedDate time.Time       `json:"received_date"`
	InitialQty   decimal.Decimal `json:"initial_qty"`
	RemainingQty decimal.Decimal `json:"remaining_qty"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

// Consume takes qty out of the layer. Remaining quantity never goes below zero.
func (b *StockBatch) Consume(qty decimal.Decimal) error {
	if qty.IsNegative() {
		return ErrInvalidQuantity
	}
	if qty.GreaterThan(b.RemainingQty) {
		return ErrBatchOverconsumed.With("batch %d has %s, asked %s", b.ID, b.RemainingQty, qty)
	}
	b.RemainingQty = b.RemainingQty.Sub(qty)
	return nil
}

// StockCardEntry is a movement with the running balance of its (product, warehouse, unit).
type StockCardEntry struct {
	StockMovement
	BalanceQty decimal.Decimal `json:"balance_qty"`
}

// StockLevel aggregates the stock items matched by a StockQuery.
type StockLevel struct {
	Quantity decimal.Decimal `json:"quantity"`
	Reserved decimal.Decimal `json:"reserved"`
	Value    decimal.Decimal `json:"value"`
}

// Available is quantity minus reserved.
func (l StockLevel) Available() decimal.Decimal {
	return l.Quantity.Sub(l.Reserved)
}

// LayerDrift reports a layered stock item whose open batches do not add up to its quantity.
type LayerDrift struct {
	ProductID   int64           `json:"product_id"`
	WarehouseID int64           `json:"warehouse_id"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	LayerQty    decimal.Decimal `json:"layer_qty"`
}

var (
	ErrProductNotFound      = shared.NotFound("inventory.product_not_found", "product not found")
	ErrWarehouseNotFound    = shared.NotFound("inventory.warehouse_not_found", "warehouse not found")
	ErrMovementNotFound     = shared.NotFound("inventory.movement_not_found", "stock movement not found")
	ErrProductInactive      = shared.Validation("inventory.product_inactive", "product is inactive")
	ErrWarehouseInactive    = shared.Validation("inventory.warehouse_inactive", "warehouse is inactive")
	ErrInvalidProduct       = shared.Validation("inventory.invalid_product", "product sku, name and valuation method are required")
	ErrInvalidWarehouse     = shared.Validation("inventory.invalid_warehouse", "warehouse branch, code, name and kind are required")
	ErrInvalidQuantity      = shared.Validation("inventory.invalid_quantity", "quantity must be positive with at most 4 decimals")
	ErrInvalidUnitCost      = shared.Validation("inventory.invalid_unit_cost", "unit cost must be non-negative with at most 6 decimals")
	ErrInvalidUnit          = shared.Validation("inventory.invalid_unit", "unit is required")
	ErrInvalidType          = shared.Validation("inventory.invalid_type", "movement type does not fit the direction")
	ErrInvalidSource        = shared.Validation("inventory.invalid_source", "invalid source reference")
	ErrSameWarehouse        = shared.Validation("inventory.same_warehouse", "source and destination warehouse must differ")
	ErrInsufficientStock    = shared.Validation("inventory.insufficient_stock", "insufficient available stock")
	ErrInsufficientReserved = shared.Validation("inventory.insufficient_reserved", "release exceeds reserved quantity")
	ErrJournalAlreadyLinked = shared.Conflict("inventory.journal_linked", "movement already linked to another journal")
	ErrBatchOverconsumed    = shared.Consistency("inventory.batch_overconsumed", "batch consumption exceeds remaining quantity")
)
