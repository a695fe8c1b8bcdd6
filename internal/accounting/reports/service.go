package reports

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// BalanceSource returns carried forward snapshot rows for a period.
type BalanceSource interface {
	PeriodBalances(ctx context.Context, tenant shared.Tenant, periodID int64, branchID *int64) ([]balances.AccountBalance, error)
}

// AccountSource lists the chart of accounts.
type AccountSource interface {
	List(ctx context.Context, tenant shared.Tenant) ([]accounts.Account, error)
}

// Cache is the versioned report cache. Postings bump the company scope.
type Cache interface {
	BuildKey(ctx context.Context, scope string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// ErrUnknownAccount flags a snapshot row whose account is missing from the chart.
var ErrUnknownAccount = shared.Consistency("report.unknown_account", "balance row references an unknown account")

// Service assembles financial statements from balance snapshots.
type Service struct {
	balances BalanceSource
	accounts AccountSource
	cache    Cache
	logger   *slog.Logger
}

func NewService(balances BalanceSource, accounts AccountSource, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{balances: balances, accounts: accounts, cache: cache, logger: logger}
}

// TrialBalance returns the trial balance of period, optionally for one branch.
func (s *Service) TrialBalance(ctx context.Context, tenant shared.Tenant, periodID int64, branchID *int64) (TrialBalance, error) {
	rows, err := s.rows(ctx, tenant, periodID, branchID)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := BuildTrialBalance(rows)
	tb.PeriodID, tb.BranchID = periodID, branchID
	if !tb.Balanced {
		s.logger.Error("trial balance out of balance",
			slog.Int64("company_id", tenant.CompanyID),
			slog.Int64("period_id", periodID),
			slog.String("debit", tb.TotalDebit.String()),
			slog.String("credit", tb.TotalCredit.String()))
	}
	return tb, nil
}

// ProfitAndLoss reports revenue and expense movement of period.
func (s *Service) ProfitAndLoss(ctx context.Context, tenant shared.Tenant, periodID int64, branchID *int64) (ProfitAndLoss, error) {
	rows, err := s.rows(ctx, tenant, periodID, branchID)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return BuildProfitAndLoss(rows), nil
}

// BalanceSheet reports closing positions as of the end of period.
func (s *Service) BalanceSheet(ctx context.Context, tenant shared.Tenant, periodID int64, branchID *int64) (BalanceSheet, error) {
	rows, err := s.rows(ctx, tenant, periodID, branchID)
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(rows), nil
}

func (s *Service) rows(ctx context.Context, tenant shared.Tenant, periodID int64, branchID *int64) ([]AccountBalance, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	branch := "all"
	if branchID != nil {
		branch = fmt.Sprintf("%d", *branchID)
	}
	if s.cache == nil {
		return s.load(ctx, tenant, periodID, branchID)
	}
	key, err := s.cache.BuildKey(ctx, shared.LedgerScope(tenant.CompanyID), "balances", fmt.Sprintf("%d", periodID), branch)
	if err != nil {
		return nil, err
	}
	var out []AccountBalance
	load := func(ctx context.Context) (any, error) {
		return s.load(ctx, tenant, periodID, branchID)
	}
	if err := s.cache.FetchJSON(ctx, key, &out, load); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, tenant shared.Tenant, periodID int64, branchID *int64) ([]AccountBalance, error) {
	snapshots, err := s.balances.PeriodBalances(ctx, tenant, periodID, branchID)
	if err != nil {
		return nil, err
	}
	chart, err := s.accounts.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]accounts.Account, len(chart))
	for _, a := range chart {
		byID[a.ID] = a
	}
	folded := make(map[int64]*AccountBalance)
	for _, snap := range snapshots {
		row, ok := folded[snap.AccountID]
		if !ok {
			acc, known := byID[snap.AccountID]
			if !known {
				return nil, ErrUnknownAccount.With("account %d", snap.AccountID)
			}
			row = &AccountBalance{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Type: acc.Type}
			folded[snap.AccountID] = row
		}
		row.OpeningDebit = row.OpeningDebit.Add(snap.OpeningDebit)
		row.OpeningCredit = row.OpeningCredit.Add(snap.OpeningCredit)
		row.Debit = row.Debit.Add(snap.PeriodDebit)
		row.Credit = row.Credit.Add(snap.PeriodCredit)
	}
	out := make([]AccountBalance, 0, len(folded))
	for _, row := range folded {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
