package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Seeds a demo company: chart of accounts, inventory mappings, the current fiscal
// year and opening stock. Safe to run repeatedly.
func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	svc := app.NewServices(cfg, pool, nil, nil, app.NewLogger(cfg))
	tenant := shared.Tenant{
		CompanyID: getenvInt("SEED_COMPANY_ID", 1),
		BranchID:  getenvInt("SEED_BRANCH_ID", 1),
		ActorID:   1,
	}

	fmt.Println("→ Seeding chart of accounts...")
	ids, err := seedAccounts(ctx, svc.Accounts, tenant)
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}
	fmt.Println("→ Seeding inventory mappings...")
	if err := seedMappings(ctx, svc.Mappings, tenant, ids); err != nil {
		log.Fatalf("seed mappings: %v", err)
	}
	fmt.Println("→ Seeding accounting periods...")
	if err := seedPeriods(ctx, svc.Periods, tenant, time.Now().UTC().Year()); err != nil {
		log.Fatalf("seed periods: %v", err)
	}
	fmt.Println("→ Seeding opening stock...")
	if err := seedInventory(ctx, svc.Inventory, tenant); err != nil {
		log.Fatalf("seed inventory: %v", err)
	}
	fmt.Println("✓ Seed complete")
}

var chart = []struct {
	code, name string
	typ        accounts.AccountType
}{
	{"1100", "Cash", accounts.AccountTypeAsset},
	{"1200", "Accounts Receivable", accounts.AccountTypeAsset},
	{"1300", "Inventory", accounts.AccountTypeAsset},
	{"1350", "Inventory In Transit", accounts.AccountTypeAsset},
	{"2000", "Accounts Payable", accounts.AccountTypeLiability},
	{"2100", "Goods Received Not Invoiced", accounts.AccountTypeLiability},
	{"3000", "Share Capital", accounts.AccountTypeEquity},
	{"3900", "Opening Balance Equity", accounts.AccountTypeEquity},
	{"4000", "Sales Revenue", accounts.AccountTypeRevenue},
	{"4900", "Inventory Adjustment Gain", accounts.AccountTypeRevenue},
	{"5000", "Cost of Goods Sold", accounts.AccountTypeCOGS},
	{"6900", "Inventory Adjustment Loss", accounts.AccountTypeExpense},
}

func seedAccounts(ctx context.Context, svc *accounts.Service, tenant shared.Tenant) (map[string]int64, error) {
	existing, err := svc.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]int64, len(chart))
	for _, acc := range existing {
		ids[acc.Code] = acc.ID
	}
	for _, c := range chart {
		if _, ok := ids[c.code]; ok {
			continue
		}
		acc, err := svc.Create(ctx, tenant, accounts.CreateAccountInput{Code: c.code, Name: c.name, Type: c.typ})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.code, err)
		}
		ids[c.code] = acc.ID
	}
	return ids, nil
}

func seedMappings(ctx context.Context, svc *mappings.Service, tenant shared.Tenant, ids map[string]int64) error {
	keys := map[string]string{
		mappings.KeyInventory:      "1300",
		mappings.KeyInTransit:      "1350",
		mappings.KeyGRIR:           "2100",
		mappings.KeyOpening:        "3900",
		mappings.KeyAdjustmentGain: "4900",
		mappings.KeyCOGS:           "5000",
		mappings.KeyAdjustmentLoss: "6900",
	}
	for key, code := range keys {
		if _, err := svc.Set(ctx, tenant, mappings.ModuleInventory, key, ids[code]); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func seedPeriods(ctx context.Context, svc *periods.Service, tenant shared.Tenant, year int) error {
	existing, err := svc.List(ctx, tenant, year)
	if err != nil {
		return err
	}
	have := make(map[int]bool, len(existing))
	for _, p := range existing {
		have[p.Number] = true
	}
	for month := 1; month <= 12; month++ {
		if have[month] {
			continue
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		if _, err := svc.Create(ctx, tenant, periods.CreateInput{
			FiscalYear: year,
			Number:     month,
			StartDate:  start,
			EndDate:    start.AddDate(0, 1, -1),
		}); err != nil {
			return fmt.Errorf("%d-%02d: %w", year, month, err)
		}
	}
	return nil
}

func seedInventory(ctx context.Context, svc *inventory.Service, tenant shared.Tenant) error {
	warehouses, err := svc.ListWarehouses(ctx, tenant)
	if err != nil {
		return err
	}
	var store inventory.Warehouse
	for _, w := range warehouses {
		if w.Code == "MAIN" {
			store = w
		}
	}
	if store.ID == 0 {
		store, err = svc.CreateWarehouse(ctx, tenant, inventory.WarehouseInput{
			BranchID: tenant.BranchID, Code: "MAIN", Name: "Main Warehouse", Kind: inventory.WarehousePhysical,
		})
		if err != nil {
			return err
		}
	}

	existing, err := svc.ListProducts(ctx, tenant)
	if err != nil {
		return err
	}
	bySKU := make(map[string]inventory.Product, len(existing))
	for _, p := range existing {
		bySKU[p.SKU] = p
	}
	products := []struct {
		sku, name string
		method    inventory.ValuationMethod
		qty, cost int64
	}{
		{"WIDGET", "Widget", inventory.ValuationFIFO, 100, 12},
		{"GEAR", "Gear", inventory.ValuationLIFO, 40, 35},
		{"BOLT", "Bolt", inventory.ValuationWeightedAverage, 500, 1},
	}
	for _, p := range products {
		product, ok := bySKU[p.sku]
		if !ok {
			product, err = svc.CreateProduct(ctx, tenant, inventory.ProductInput{SKU: p.sku, Name: p.name, ValuationMethod: p.method})
			if err != nil {
				return fmt.Errorf("%s: %w", p.sku, err)
			}
		}
		_, err := svc.AddStock(ctx, tenant, inventory.AddStockInput{
			ProductID:   product.ID,
			WarehouseID: store.ID,
			Unit:        "pcs",
			Quantity:    decimal.NewFromInt(p.qty),
			UnitCost:    decimal.NewFromInt(p.cost),
			Type:        inventory.MovementOpening,
			Note:        "seed opening balance",
		}, "seed-opening-"+p.sku)
		if err != nil {
			return fmt.Errorf("%s opening: %w", p.sku, err)
		}
	}
	return nil
}

func getenvInt(key string, fallback int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil && v > 0 {
		return v
	}
	return fallback
}
