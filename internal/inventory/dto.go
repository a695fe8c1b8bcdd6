package inventory

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AddStockInput describes a receipt into one warehouse.
type AddStockInput struct {
	ProductID    int64           `json:"product_id" validate:"required,gt=0"`
	WarehouseID  int64           `json:"warehouse_id" validate:"required,gt=0"`
	Unit         string          `json:"unit" validate:"required,max=16"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	Type         MovementType    `json:"type" validate:"required"`
	MovementDate time.Time       `json:"movement_date"`
	Source       *SourceRef      `json:"source,omitempty"`
	Note         string          `json:"note" validate:"max=500"`
}

// Validate checks everything that does not need the database.
func (in AddStockInput) Validate() error {
	if !in.Type.Inbound() {
		return ErrInvalidType.With("%s cannot receive stock", in.Type)
	}
	if err := validateTarget(in.ProductID, in.WarehouseID, in.Unit, in.Quantity, in.Source); err != nil {
		return err
	}
	if in.UnitCost.IsNegative() || !shared.HasScale(in.UnitCost, shared.CostScale) {
		return ErrInvalidUnitCost
	}
	return nil
}

// RemoveStockInput describes an issue out of one warehouse. Cost comes from valuation.
type RemoveStockInput struct {
	ProductID    int64           `json:"product_id" validate:"required,gt=0"`
	WarehouseID  int64           `json:"warehouse_id" validate:"required,gt=0"`
	Unit         string          `json:"unit" validate:"required,max=16"`
	Quantity     decimal.Decimal `json:"quantity"`
	Type         MovementType    `json:"type" validate:"required"`
	MovementDate time.Time       `json:"movement_date"`
	Source       *SourceRef      `json:"source,omitempty"`
	Note         string          `json:"note" validate:"max=500"`
}

func (in RemoveStockInput) Validate() error {
	if !in.Type.Outbound() {
		return ErrInvalidType.With("%s cannot remove stock", in.Type)
	}
	return validateTarget(in.ProductID, in.WarehouseID, in.Unit, in.Quantity, in.Source)
}

// TransferInput moves stock between two warehouses of the same company.
type TransferInput struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	FromWarehouseID int64           `json:"from_warehouse_id" validate:"required,gt=0"`
	ToWarehouseID   int64           `json:"to_warehouse_id" validate:"required,gt=0"`
	Unit            string          `json:"unit" validate:"required,max=16"`
	Quantity        decimal.Decimal `json:"quantity"`
	MovementDate    time.Time       `json:"movement_date"`
	Source          *SourceRef      `json:"source,omitempty"`
	Note            string          `json:"note" validate:"max=500"`
}

func (in TransferInput) Validate() error {
	if err := validateTarget(in.ProductID, in.FromWarehouseID, in.Unit, in.Quantity, in.Source); err != nil {
		return err
	}
	if in.ToWarehouseID <= 0 {
		return ErrWarehouseNotFound
	}
	if in.FromWarehouseID == in.ToWarehouseID {
		return ErrSameWarehouse
	}
	return nil
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Outbound StockMovement `json:"outbound"`
	Inbound  StockMovement `json:"inbound"`
}

// ReserveInput reserves or releases quantity on a stock item.
type ReserveInput struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	WarehouseID int64           `json:"warehouse_id" validate:"required,gt=0"`
	Unit        string          `json:"unit" validate:"required,max=16"`
	Quantity    decimal.Decimal `json:"quantity"`
}

func (in ReserveInput) Validate() error {
	return validateTarget(in.ProductID, in.WarehouseID, in.Unit, in.Quantity, nil)
}

// StockQuery selects stock items for level and value lookups. Nil warehouse means all warehouses.
type StockQuery struct {
	ProductID   int64
	WarehouseID *int64
	Unit        string
}

// MovementFilter selects a stock card.
type MovementFilter struct {
	ProductID   int64
	WarehouseID *int64
	From        *time.Time
	To          *time.Time
	Page        int
	PerPage     int
}

// ProductInput creates a product.
type ProductInput struct {
	SKU             string          `json:"sku" validate:"required,max=64"`
	Name            string          `json:"name" validate:"required,max=200"`
	ValuationMethod ValuationMethod `json:"valuation_method" validate:"required"`
}

func (in ProductInput) normalize() (Product, error) {
	p := Product{
		SKU:             shared.NormalizeCode(in.SKU),
		Name:            shared.NormalizeName(in.Name),
		ValuationMethod: ValuationMethod(strings.ToUpper(string(in.ValuationMethod))),
		IsActive:        true,
	}
	if p.SKU == "" || p.Name == "" || !p.ValuationMethod.Valid() {
		return Product{}, ErrInvalidProduct
	}
	return p, nil
}

// WarehouseInput creates a warehouse.
type WarehouseInput struct {
	BranchID           int64         `json:"branch_id" validate:"required,gt=0"`
	Code               string        `json:"code" validate:"required,max=32"`
	Name               string        `json:"name" validate:"required,max=200"`
	Kind               WarehouseKind `json:"kind"`
	AllowNegativeStock bool          `json:"allow_negative_stock"`
}

func (in WarehouseInput) normalize() (Warehouse, error) {
	w := Warehouse{
		BranchID:           in.BranchID,
		Code:               shared.NormalizeCode(in.Code),
		Name:               shared.NormalizeName(in.Name),
		Kind:               in.Kind,
		AllowNegativeStock: in.AllowNegativeStock,
		IsActive:           true,
	}
	if w.Kind == "" {
		w.Kind = WarehousePhysical
	}
	if w.BranchID <= 0 || w.Code == "" || w.Name == "" || (w.Kind != WarehousePhysical && w.Kind != WarehouseVirtual) {
		return Warehouse{}, ErrInvalidWarehouse
	}
	return w, nil
}

func validateTarget(productID, warehouseID int64, unit string, qty decimal.Decimal, source *SourceRef) error {
	if productID <= 0 {
		return ErrProductNotFound
	}
	if warehouseID <= 0 {
		return ErrWarehouseNotFound
	}
	if strings.TrimSpace(unit) == "" {
		return ErrInvalidUnit
	}
	if !qty.IsPositive() || !shared.HasScale(qty, shared.QuantityScale) {
		return ErrInvalidQuantity
	}
	if source != nil && !source.Valid() {
		return ErrInvalidSource
	}
	return nil
}
