package inventory

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// MovementPostedEvent is emitted after a movement commits, once per movement.
// A transfer emits one event per leg.
type MovementPostedEvent struct {
	Tenant   shared.Tenant
	Movement StockMovement
}

// MovementIntent describes a movement about to be written, before it has an id or a cost.
type MovementIntent struct {
	Type      MovementType
	Direction Direction
	Date      time.Time
}
