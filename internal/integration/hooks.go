package integration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Ledger exposes journal posting operations required by integrations.
type Ledger interface {
	CreateAndPost(ctx context.Context, tenant shared.Tenant, in journals.CreateInput, key string) (journals.PostResult, error)
}

// AccountResolver provides mapping lookups.
type AccountResolver interface {
	Resolve(ctx context.Context, companyID int64, module, key string) (int64, error)
}

// PeriodGate finds the accounting period covering a date.
type PeriodGate interface {
	FindForDate(ctx context.Context, tenant shared.Tenant, date time.Time) (periods.Period, error)
}

// Hooks wires stock movements into the general ledger.
type Hooks struct {
	ledger   Ledger
	accounts AccountResolver
	periods  PeriodGate
	logger   *slog.Logger
}

// NewHooks constructs integration hooks.
func NewHooks(ledger Ledger, accounts AccountResolver, logger *slog.Logger) *Hooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hooks{ledger: ledger, accounts: accounts, logger: logger}
}

// WithPeriods lets CheckMovement reject movements dated outside an OPEN period.
func (h *Hooks) WithPeriods(p PeriodGate) *Hooks {
	h.periods = p
	return h
}

// CheckMovement fails when a movement of this type and date could not be posted: no rule,
// an unmapped account or a period that is missing or not OPEN.
func (h *Hooks) CheckMovement(ctx context.Context, tenant shared.Tenant, intent inventory.MovementIntent) error {
	if h == nil || h.ledger == nil || h.accounts == nil {
		return nil
	}
	r, err := ruleFor(inventory.StockMovement{Type: intent.Type, Direction: intent.Direction})
	if err != nil {
		return err
	}
	for _, key := range []string{r.debit, r.credit} {
		if _, err := h.resolve(ctx, tenant.CompanyID, key); err != nil {
			return err
		}
	}
	if h.periods == nil {
		return nil
	}
	p, err := h.periods.FindForDate(ctx, tenant, intent.Date)
	if err != nil {
		return err
	}
	return p.EnsurePosting()
}

func (h *Hooks) resolve(ctx context.Context, companyID int64, key string) (int64, error) {
	return h.accounts.Resolve(ctx, companyID, mappings.ModuleInventory, key)
}

// HandleMovementPosted posts the valuation entry of a movement and returns the journal id.
// Zero value movements post nothing. The movement id is the idempotency key, so a retry after a
// lost link returns the journal posted the first time.
func (h *Hooks) HandleMovementPosted(ctx context.Context, evt inventory.MovementPostedEvent) (int64, error) {
	if h == nil || h.ledger == nil || h.accounts == nil {
		return 0, nil
	}
	m := evt.Movement
	amount := shared.RoundMoney(m.TotalCost)
	if amount.IsZero() {
		return 0, nil
	}
	r, err := ruleFor(m)
	if err != nil {
		return 0, err
	}
	debit, err := h.resolve(ctx, m.CompanyID, r.debit)
	if err != nil {
		return 0, err
	}
	credit, err := h.resolve(ctx, m.CompanyID, r.credit)
	if err != nil {
		return 0, err
	}
	res, err := h.ledger.CreateAndPost(ctx, evt.Tenant, journals.CreateInput{
		Type:            r.journal,
		TransactionDate: m.MovementDate,
		Description:     fmt.Sprintf("%s %s", m.Type, m.Reference),
		Source:          &journals.SourceRef{Kind: journals.SourceStockMovement, ID: m.ID},
		Lines: []journals.LineInput{
			{AccountID: debit, Debit: amount, Description: m.Reference},
			{AccountID: credit, Credit: amount, Description: m.Reference},
		},
	}, fmt.Sprintf("stock-movement:%d", m.ID))
	if err != nil {
		return 0, err
	}
	h.logger.Debug("movement journal posted",
		slog.Int64("company_id", m.CompanyID),
		slog.String("reference", m.Reference),
		slog.String("journal", res.Journal.Reference),
		slog.Bool("replay", res.Replay),
	)
	return res.Journal.ID, nil
}

var (
	_ inventory.IntegrationHandler = (*Hooks)(nil)
	_ inventory.IntegrationChecker = (*Hooks)(nil)
)
