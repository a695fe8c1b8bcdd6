package integration

import (
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// ErrUnmappedMovement indicates a movement type without a posting rule.
var ErrUnmappedMovement = shared.Validation("integration.unmapped_movement", "no posting rule for movement")

// rule names the mapping keys debited and credited for a movement.
type rule struct {
	journal journals.JournalType
	debit   string
	credit  string
}

var inboundRules = map[inventory.MovementType]rule{
	inventory.MovementPurchase:   {journals.TypePurchase, mappings.KeyInventory, mappings.KeyGRIR},
	inventory.MovementReturnIn:   {journals.TypeSales, mappings.KeyInventory, mappings.KeyCOGS},
	inventory.MovementOpening:    {journals.TypeOpening, mappings.KeyInventory, mappings.KeyOpening},
	inventory.MovementAdjustment: {journals.TypeAdjustment, mappings.KeyInventory, mappings.KeyAdjustmentGain},
	inventory.MovementTransferIn: {journals.TypeTransfer, mappings.KeyInventory, mappings.KeyInTransit},
}

var outboundRules = map[inventory.MovementType]rule{
	inventory.MovementSale:        {journals.TypeSales, mappings.KeyCOGS, mappings.KeyInventory},
	inventory.MovementReturnOut:   {journals.TypePurchase, mappings.KeyGRIR, mappings.KeyInventory},
	inventory.MovementAdjustment:  {journals.TypeAdjustment, mappings.KeyAdjustmentLoss, mappings.KeyInventory},
	inventory.MovementTransferOut: {journals.TypeTransfer, mappings.KeyInTransit, mappings.KeyInventory},
}

func ruleFor(m inventory.StockMovement) (rule, error) {
	rules := inboundRules
	if m.Direction == inventory.DirectionOut {
		rules = outboundRules
	}
	r, ok := rules[m.Type]
	if !ok {
		return rule{}, ErrUnmappedMovement.With("%s %s", m.Direction, m.Type)
	}
	return r, nil
}
