package inventory

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// IntegrationHandler turns committed movements into ledger postings.
// It returns the journal id to link, or zero when the movement has no financial effect.
type IntegrationHandler interface {
	HandleMovementPosted(ctx context.Context, evt MovementPostedEvent) (int64, error)
}

// IntegrationChecker is implemented by handlers that can tell up front whether a movement will
// post: a rule exists, its accounts are mapped and the date falls in an OPEN period.
type IntegrationChecker interface {
	CheckMovement(ctx context.Context, tenant shared.Tenant, intent MovementIntent) error
}
