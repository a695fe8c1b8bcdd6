package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AccountsHandler  *accounts.Handler
	MappingsHandler  *mappings.Handler
	PeriodsHandler   *periods.Handler
	JournalsHandler  *journals.Handler
	BalancesHandler  *balances.Handler
	ReportsHandler   *reports.Handler
	InventoryHandler *inventory.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewHandlers builds the HTTP handler for every service.
func NewHandlers(logger *slog.Logger, svc *Services) RouterParams {
	return RouterParams{
		Logger:           logger,
		AccountsHandler:  accounts.NewHandler(logger, svc.Accounts),
		MappingsHandler:  mappings.NewHandler(logger, svc.Mappings),
		PeriodsHandler:   periods.NewHandler(logger, svc.Periods),
		JournalsHandler:  journals.NewHandler(logger, svc.Journals),
		BalancesHandler:  balances.NewHandler(logger, svc.Balances),
		ReportsHandler:   reports.NewHandler(logger, svc.Reports),
		InventoryHandler: inventory.NewHandler(logger, svc.Inventory),
	}
}

// NewRouter constructs the chi.Router with the ledger API mounted.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.Config.IsProduction() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mount := []struct {
		prefix string
		routes interface{ MountRoutes(chi.Router) }
		ok     bool
	}{
		{"/accounts", params.AccountsHandler, params.AccountsHandler != nil},
		{"/mappings", params.MappingsHandler, params.MappingsHandler != nil},
		{"/periods", params.PeriodsHandler, params.PeriodsHandler != nil},
		{"/journals", params.JournalsHandler, params.JournalsHandler != nil},
		{"/balances", params.BalancesHandler, params.BalancesHandler != nil},
		{"/reports", params.ReportsHandler, params.ReportsHandler != nil},
		{"/inventory", params.InventoryHandler, params.InventoryHandler != nil},
		{"/jobs", params.JobHandler, params.JobHandler != nil},
	}
	for _, m := range mount {
		if m.ok {
			r.Route(m.prefix, m.routes.MountRoutes)
		}
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	return r
}
