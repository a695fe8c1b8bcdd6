package mappings

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Modules and keys resolved by integration postings.
const (
	ModuleInventory = "INVENTORY"

	KeyInventory      = "inventory.asset"
	KeyGRIR           = "inventory.grir"
	KeyCOGS           = "inventory.cogs"
	KeyAdjustmentGain = "inventory.adjustment_gain"
	KeyAdjustmentLoss = "inventory.adjustment_loss"
	KeyInTransit      = "inventory.in_transit"
	KeyOpening        = "inventory.opening"
)

var (
	ErrMappingNotFound = shared.NotFound("mapping.not_found", "account mapping not found")
	ErrMappingInvalid  = shared.Validation("mapping.invalid", "module, key and account are required")
)

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	CompanyID int64     `json:"company_id"`
	Module    string    `json:"module"`
	Key       string    `json:"key"`
	AccountID int64     `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
