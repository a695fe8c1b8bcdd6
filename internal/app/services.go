package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/mappings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/lock"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Services is the fully wired domain layer shared by the API and the worker.
type Services struct {
	Accounts    *accounts.Service
	Mappings    *mappings.Service
	Periods     *periods.Service
	Balances    *balances.Service
	Journals    *journals.Service
	Reports     *reports.Service
	Inventory   *inventory.Service
	Idempotency *shared.IdempotencyStore
}

// NewServices builds every service over one pool and redis client. A nil redis
// client disables report caching and cross process locks.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *Services {
	if logger == nil {
		logger = slog.Default()
	}
	reportCache := cache.NewVersioned(redisClient, "ledger:reports", cfg.ReportCacheTTL)
	locker := lock.New(redisClient, cfg.LockTTL)

	accountRepo := accounts.NewRepository(pool)
	accountService := accounts.NewService(accountRepo)
	mappingService := mappings.NewService(mappings.NewRepository(pool), accountRepo)
	periodService := periods.NewService(periods.NewRepository(pool), locker, logger)
	balanceService := balances.NewService(balances.NewRepository(pool), locker, reportCache, logger).WithMetrics(metrics)
	journalService := journals.NewService(journals.NewRepository(pool), reportCache, logger).WithMetrics(metrics)
	reportService := reports.NewService(balanceService, accountService, reportCache, logger)

	hooks := integration.NewHooks(journalService, mappingService, logger).WithPeriods(periodService)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), logger).
		WithIntegration(hooks).
		WithMetrics(metrics)

	return &Services{
		Accounts:    accountService,
		Mappings:    mappingService,
		Periods:     periodService,
		Balances:    balanceService,
		Journals:    journalService,
		Reports:     reportService,
		Inventory:   inventoryService,
		Idempotency: shared.NewIdempotencyStore(pool),
	}
}
