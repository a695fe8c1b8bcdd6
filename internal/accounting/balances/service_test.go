package balances_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var tenant = shared.Tenant{CompanyID: 1, BranchID: 1, ActorID: 3}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ref(p periods.Period) balances.PeriodRef {
	return balances.PeriodRef{ID: p.ID, FiscalYear: p.FiscalYear, StartDate: p.StartDate}
}

func apply(t *testing.T, ledger *ledgertest.Ledger, p periods.Period, moves ...balances.Movement) {
	t.Helper()
	err := ledger.BalancesPort().WithTx(context.Background(), func(ctx context.Context, tx balances.TxRepository) error {
		return balances.Apply(ctx, tx, tenant.CompanyID, ref(p), moves)
	})
	require.NoError(t, err)
}

type bumper struct{ scopes []string }

func (b *bumper) Bump(_ context.Context, scope string) error {
	b.scopes = append(b.scopes, scope)
	return nil
}

func TestApplyCarriesAndShifts(t *testing.T) {
	ledger := ledgertest.New()
	jan := ledger.Month(1, 2025, time.January, periods.PeriodStatusOpen)
	feb := ledger.Month(1, 2025, time.February, periods.PeriodStatusOpen)
	mar := ledger.Month(1, 2025, time.March, periods.PeriodStatusOpen)

	apply(t, ledger, jan, balances.Movement{AccountID: 10, BranchID: 1, Debit: d("100")})
	apply(t, ledger, mar, balances.Movement{AccountID: 10, BranchID: 1, Debit: d("20")})
	// late posting into February must push March's opening and YTD
	apply(t, ledger, feb,
		balances.Movement{AccountID: 10, BranchID: 1, Credit: d("30")},
		balances.Movement{AccountID: 10, BranchID: 1, Credit: d("5")},
	)

	febRow, ok := ledger.Balance(10, feb.ID, 1)
	require.True(t, ok)
	require.True(t, febRow.OpeningDebit.Equal(d("100")))
	require.True(t, febRow.PeriodCredit.Equal(d("35")))
	require.NoError(t, febRow.Verify())

	marRow, ok := ledger.Balance(10, mar.ID, 1)
	require.True(t, ok)
	require.True(t, marRow.OpeningDebit.Equal(d("100")))
	require.True(t, marRow.OpeningCredit.Equal(d("35")))
	require.True(t, marRow.ClosingDebit.Equal(d("120")))
	require.True(t, marRow.YTDDebit.Equal(d("120")))
	require.True(t, marRow.YTDCredit.Equal(d("35")))
	require.NoError(t, marRow.Verify())
}

func TestGetBalanceSumsBranchesAndCarriesForward(t *testing.T) {
	ledger := ledgertest.New()
	jan := ledger.Month(1, 2025, time.January, periods.PeriodStatusOpen)
	feb := ledger.Month(1, 2025, time.February, periods.PeriodStatusOpen)
	apply(t, ledger, jan,
		balances.Movement{AccountID: 10, BranchID: 1, Debit: d("100")},
		balances.Movement{AccountID: 10, BranchID: 2, Debit: d("50")},
	)
	apply(t, ledger, feb, balances.Movement{AccountID: 10, BranchID: 1, Credit: d("25")})

	svc := balances.NewService(ledger.BalancesPort(), nil, nil, nil)
	ctx := context.Background()

	all, err := svc.GetBalance(ctx, tenant, 10, feb.ID, nil)
	require.NoError(t, err)
	require.True(t, all.OpeningDebit.Equal(d("150")))
	require.True(t, all.PeriodCredit.Equal(d("25")))
	require.True(t, all.ClosingDebit.Equal(d("150")))
	require.True(t, all.ClosingCredit.Equal(d("25")))
	require.True(t, all.YTDDebit.Equal(d("150")))

	branch := int64(2)
	b2, err := svc.GetBalance(ctx, tenant, 10, feb.ID, &branch)
	require.NoError(t, err)
	require.True(t, b2.OpeningDebit.Equal(d("50")))
	require.True(t, b2.PeriodDebit.IsZero())
	require.True(t, b2.ClosingDebit.Equal(d("50")))

	none, err := svc.GetBalance(ctx, tenant, 99, jan.ID, nil)
	require.NoError(t, err)
	require.True(t, none.ClosingDebit.IsZero())

	_, err = svc.GetBalance(ctx, tenant, 10, 404, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRebuildAndVerify(t *testing.T) {
	ledger := ledgertest.New()
	jan := ledger.Month(1, 2025, time.January, periods.PeriodStatusOpen)
	feb := ledger.Month(1, 2025, time.February, periods.PeriodStatusOpen)
	history := []balances.HistoryLine{
		{Movement: balances.Movement{AccountID: 10, BranchID: 1, Debit: d("100")}, PeriodID: jan.ID},
		{Movement: balances.Movement{AccountID: 20, BranchID: 1, Credit: d("100")}, PeriodID: jan.ID},
		{Movement: balances.Movement{AccountID: 10, BranchID: 1, Credit: d("40")}, PeriodID: feb.ID},
		{Movement: balances.Movement{AccountID: 20, BranchID: 1, Debit: d("40")}, PeriodID: feb.ID},
	}
	ledger.History = func(int64) []balances.HistoryLine { return history }
	for _, h := range history {
		p := jan
		if h.PeriodID == feb.ID {
			p = feb
		}
		apply(t, ledger, p, h.Movement)
	}

	cache := &bumper{}
	svc := balances.NewService(ledger.BalancesPort(), nil, cache, nil)
	ctx := context.Background()

	drifts, err := svc.Verify(ctx, tenant)
	require.NoError(t, err)
	require.Empty(t, drifts)

	// corrupt a snapshot: Verify reports it, Rebuild repairs it
	err = ledger.Tx(func() error {
		key := balances.Key{AccountID: 10, PeriodID: feb.ID, BranchID: 1}
		row := ledger.Balances[key]
		row.PeriodCredit = d("41")
		row.ClosingCredit = d("41")
		ledger.Balances[key] = row
		return nil
	})
	require.NoError(t, err)

	drifts, err = svc.Verify(ctx, tenant)
	require.ErrorIs(t, err, balances.ErrDrift)
	require.ErrorIs(t, err, shared.ErrConsistency)
	require.Len(t, drifts, 1)

	res, err := svc.Rebuild(ctx, tenant)
	require.NoError(t, err)
	require.Equal(t, 4, res.Rows)
	require.Equal(t, 1, res.Drifts)
	require.Equal(t, []string{shared.LedgerScope(1)}, cache.scopes)

	drifts, err = svc.Verify(ctx, tenant)
	require.NoError(t, err)
	require.Empty(t, drifts)

	again, err := svc.Rebuild(ctx, tenant)
	require.NoError(t, err)
	require.Zero(t, again.Drifts)
}

func TestPeriodBalancesForTrialBalance(t *testing.T) {
	ledger := ledgertest.New()
	jan := ledger.Month(1, 2025, time.January, periods.PeriodStatusOpen)
	feb := ledger.Month(1, 2025, time.February, periods.PeriodStatusOpen)
	apply(t, ledger, jan,
		balances.Movement{AccountID: 10, BranchID: 1, Debit: d("100")},
		balances.Movement{AccountID: 20, BranchID: 1, Credit: d("100")},
	)
	svc := balances.NewService(ledger.BalancesPort(), nil, nil, nil)
	rows, err := svc.PeriodBalances(context.Background(), tenant, feb.ID, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, feb.ID, r.PeriodID)
		require.True(t, r.PeriodDebit.IsZero())
		require.NoError(t, r.Verify())
	}
}

func TestApplySeedsUnderChainLock(t *testing.T) {
	ledger := ledgertest.New()
	jan := ledger.Month(1, 2025, time.January, periods.PeriodStatusOpen)
	feb := ledger.Month(1, 2025, time.February, periods.PeriodStatusOpen)
	apply(t, ledger, jan, balances.Movement{AccountID: 10, BranchID: 1, Debit: d("40")})
	apply(t, ledger, feb, balances.Movement{AccountID: 10, BranchID: 1, Debit: d("2")})
	require.Equal(t, []balances.Key{{AccountID: 10, BranchID: 1}, {AccountID: 10, BranchID: 1}}, ledger.ChainLocks)

	err := balances.Apply(context.Background(), ledger, tenant.CompanyID, ref(feb), []balances.Movement{{AccountID: 11, BranchID: 1, Debit: d("1")}})
	require.Equal(t, "balance.chain_not_held", shared.CodeOf(err))
}

func TestConcurrentPostingsIntoAdjacentPeriodsKeepChain(t *testing.T) {
	ledger := ledgertest.New()
	jan := ledger.Month(1, 2025, time.January, periods.PeriodStatusOpen)
	feb := ledger.Month(1, 2025, time.February, periods.PeriodStatusOpen)

	const n = 20
	var g errgroup.Group
	for i := 0; i < n; i++ {
		for _, p := range []periods.Period{feb, jan} {
			g.Go(func() error {
				return ledger.BalancesPort().WithTx(context.Background(), func(ctx context.Context, tx balances.TxRepository) error {
					return balances.Apply(ctx, tx, tenant.CompanyID, ref(p), []balances.Movement{{AccountID: 10, BranchID: 1, Debit: d("1")}})
				})
			})
		}
	}
	require.NoError(t, g.Wait())

	janRow, ok := ledger.Balance(10, jan.ID, 1)
	require.True(t, ok)
	febRow, ok := ledger.Balance(10, feb.ID, 1)
	require.True(t, ok)
	require.True(t, janRow.ClosingDebit.Equal(d("20")))
	require.True(t, febRow.OpeningDebit.Equal(janRow.ClosingDebit))
	require.True(t, febRow.ClosingDebit.Equal(d("40")))
	require.True(t, febRow.YTDDebit.Equal(d("40")))
	require.NoError(t, febRow.Verify())
}
