package journals

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	cash    int64 = 1
	revenue int64 = 2
	group   int64 = 3
)

var tenant = shared.Tenant{CompanyID: 1, BranchID: 1, ActorID: 9}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(m time.Month, dd int) time.Time { return time.Date(2026, m, dd, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	repo *memoryRepo
	svc  *Service
	jan  periods.Period
	feb  periods.Period
	bump atomic.Int64
}

func (f *fixture) Bump(context.Context, string) error {
	f.bump.Add(1)
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	repo.addAccount(cash, "1100", accounts.AccountTypeAsset)
	repo.addAccount(revenue, "4000", accounts.AccountTypeRevenue)
	repo.accounts[group] = accounts.Account{ID: group, CompanyID: 1, Code: "1000", Type: accounts.AccountTypeAsset, IsGroup: true, IsActive: true}
	f := &fixture{repo: repo}
	f.jan = repo.Month(1, 2026, time.January, periods.PeriodStatusOpen)
	f.feb = repo.Month(1, 2026, time.February, periods.PeriodStatusOpen)
	f.svc = NewService(repo, f, nil)
	f.svc.WithNow(func() time.Time { return time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC) })
	return f
}

func sale(date time.Time, amount string) CreateInput {
	return CreateInput{
		Type:            TypeSales,
		TransactionDate: date,
		Description:     "cash sale",
		Lines: []LineInput{
			{AccountID: cash, Debit: d(amount)},
			{AccountID: revenue, Credit: d(amount)},
		},
	}
}

func (f *fixture) setStatus(p periods.Period, status periods.PeriodStatus) {
	p.Status = status
	f.repo.Periods[p.ID] = p
}

func TestCreateAndPostUpdatesBalances(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.CreateAndPost(context.Background(), tenant, sale(day(time.January, 15), "100.5"), "")
	require.NoError(t, err)
	j := res.Journal
	require.Equal(t, StatusPosted, j.Status)
	require.Equal(t, "SJ-20260115-00001", j.Reference)
	require.Equal(t, f.jan.ID, j.PeriodID)
	require.True(t, j.TotalDebit.Equal(d("100.5")))
	require.True(t, j.TotalCredit.Equal(j.TotalDebit))
	require.Equal(t, day(time.January, 20), *j.PostingDate)
	require.Equal(t, int64(9), *j.PostedBy)

	row, ok := f.repo.Balance(cash, f.jan.ID, 1)
	require.True(t, ok)
	require.True(t, row.PeriodDebit.Equal(d("100.5")))
	require.True(t, row.ClosingDebit.Equal(d("100.5")))
	require.NoError(t, row.Verify())
	rev, ok := f.repo.Balance(revenue, f.jan.ID, 1)
	require.True(t, ok)
	require.True(t, rev.PeriodCredit.Equal(d("100.5")))

	require.Equal(t, []string{"journal.create", "journal.post"}, f.repo.AuditActions())
	require.Equal(t, int64(1), f.bump.Load())
}

func TestLineValidation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]struct {
		line LineInput
		want error
	}{
		"zero":      {LineInput{AccountID: cash}, ErrZeroAmountLine},
		"both":      {LineInput{AccountID: cash, Debit: d("1"), Credit: d("1")}, ErrInvalidLine},
		"negative":  {LineInput{AccountID: cash, Debit: d("-1")}, ErrNegativeAmount},
		"precision": {LineInput{AccountID: cash, Debit: d("0.00001")}, ErrLinePrecision},
		"fx":        {LineInput{AccountID: cash, Debit: d("1"), FxDebit: decimal.NewNullDecimal(d("2"))}, ErrInvalidForeign},
		"subledger": {LineInput{AccountID: cash, Debit: d("1"), Subledger: &SubledgerRef{Kind: "VENDOR", ID: 1}}, ErrInvalidSubledger},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := sale(day(time.January, 5), "1")
			in.Lines[0] = tc.line
			_, err := f.svc.Create(context.Background(), tenant, in, "")
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, f.repo.journals)
}

func TestForeignCurrencyLine(t *testing.T) {
	f := newFixture(t)
	in := sale(day(time.January, 5), "155000")
	in.Lines[0].Currency = "USD"
	in.Lines[0].FxDebit = decimal.NewNullDecimal(d("10"))
	in.Lines[0].FxRate = decimal.NewNullDecimal(d("15500"))
	j, err := f.svc.Create(context.Background(), tenant, in, "")
	require.NoError(t, err)
	require.True(t, j.Lines[0].FxDebit.Decimal.Equal(d("10")))
}

func TestCreateRequiresOpenPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, tenant, sale(day(time.March, 1), "10"), "")
	require.ErrorIs(t, err, periods.ErrNoOpenPeriod)

	f.setStatus(f.jan, periods.PeriodStatusClosed)
	_, err = f.svc.Create(ctx, tenant, sale(day(time.January, 3), "10"), "")
	require.ErrorIs(t, err, periods.ErrPeriodNotOpen)

	_, err = f.svc.Create(ctx, shared.Tenant{CompanyID: 1, ActorID: 9}, sale(day(time.February, 3), "10"), "")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAccountsMustBePostable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := sale(day(time.January, 5), "10")
	in.Lines[0].AccountID = group
	_, err := f.svc.Create(ctx, tenant, in, "")
	require.ErrorIs(t, err, accounts.ErrAccountNotPostable)

	in.Lines[0].AccountID = 404
	_, err = f.svc.Create(ctx, tenant, in, "")
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)

	in.Lines[0].AccountID = cash
	center := int64(77)
	in.Lines[0].CostCenterID = &center
	_, err = f.svc.Create(ctx, tenant, in, "")
	require.ErrorIs(t, err, accounts.ErrCostCenterNotFound)
	f.repo.centers[center] = true
	_, err = f.svc.Create(ctx, tenant, in, "")
	require.NoError(t, err)
}

func TestPostRejectsUnbalancedAndRepost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := sale(day(time.January, 10), "50")
	in.Lines[1].Credit = d("49.99")
	draft, err := f.svc.Create(ctx, tenant, in, "")
	require.NoError(t, err)
	require.False(t, draft.IsBalanced())

	ok, err := f.svc.CanPost(ctx, tenant, draft.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = f.svc.Post(ctx, tenant, draft.ID)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, f.repo.Balances)
	stored, err := f.svc.Get(ctx, tenant, draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)

	good, err := f.svc.Create(ctx, tenant, sale(day(time.January, 11), "50"), "")
	require.NoError(t, err)
	posted, err := f.svc.Post(ctx, tenant, good.ID)
	require.NoError(t, err)
	require.Equal(t, 2, posted.Version)

	_, err = f.svc.Post(ctx, tenant, good.ID)
	require.ErrorIs(t, err, ErrNotPostable)
	row, _ := f.repo.Balance(cash, f.jan.ID, 1)
	require.True(t, row.PeriodDebit.Equal(d("50")))
}

func TestPostBlockedByClosedPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.svc.Create(ctx, tenant, sale(day(time.January, 12), "10"), "")
	require.NoError(t, err)

	f.setStatus(f.jan, periods.PeriodStatusClosed)
	_, err = f.svc.Post(ctx, tenant, draft.ID)
	require.ErrorIs(t, err, periods.ErrPeriodNotOpen)
	require.Empty(t, f.repo.Balances)

	f.setStatus(f.jan, periods.PeriodStatusOpen)
	_, err = f.svc.Post(ctx, tenant, draft.ID)
	require.NoError(t, err)
}

func TestLockedPeriodRejectsPostingAndKeepsBalances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 10), "100"), "")
	require.NoError(t, err)
	draft, err := f.svc.Create(ctx, tenant, sale(day(time.January, 12), "10"), "")
	require.NoError(t, err)

	before := make(map[balances.Key]balances.AccountBalance, len(f.repo.Balances))
	for k, v := range f.repo.Balances {
		before[k] = v
	}
	f.setStatus(f.jan, periods.PeriodStatusLocked)

	_, err = f.svc.Post(ctx, tenant, draft.ID)
	require.ErrorIs(t, err, periods.ErrPeriodNotOpen)
	_, err = f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 13), "5"), "")
	require.ErrorIs(t, err, periods.ErrPeriodNotOpen)
	require.Equal(t, before, f.repo.Balances)

	stored, err := f.svc.Get(ctx, tenant, draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
}

func TestVoidInLockedPeriodLandsInNextOpenPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 15), "25"), "")
	require.NoError(t, err)
	f.setStatus(f.jan, periods.PeriodStatusLocked)

	out, err := f.svc.Void(ctx, tenant, res.Journal.ID, "posted twice")
	require.NoError(t, err)
	require.Equal(t, f.feb.ID, out.Reversal.PeriodID)
	require.Equal(t, day(time.February, 1), out.Reversal.TransactionDate)
	require.Equal(t, "RV-20260201-00001", out.Reversal.Reference)
	require.Equal(t, StatusVoided, out.Voided.Status)

	janRow, _ := f.repo.Balance(cash, f.jan.ID, 1)
	require.True(t, janRow.PeriodDebit.Equal(d("25")))
	require.True(t, janRow.PeriodCredit.IsZero())
	febRow, ok := f.repo.Balance(cash, f.feb.ID, 1)
	require.True(t, ok)
	require.True(t, febRow.OpeningDebit.Equal(d("25")))
	require.True(t, febRow.PeriodCredit.Equal(d("25")))
	require.True(t, febRow.Net().IsZero())
}

func TestVoidInOpenPeriodNetsToZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 15), "100"), "")
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, tenant, res.Journal.ID, "  ")
	require.ErrorIs(t, err, ErrVoidReasonRequired)

	out, err := f.svc.Void(ctx, tenant, res.Journal.ID, "duplicate invoice")
	require.NoError(t, err)
	require.Equal(t, StatusVoided, out.Voided.Status)
	require.Equal(t, out.Reversal.ID, *out.Voided.ReversedByID)
	require.Equal(t, res.Journal.ID, *out.Reversal.ReversalOfID)
	require.Equal(t, TypeReversal, out.Reversal.Type)
	require.Equal(t, StatusPosted, out.Reversal.Status)
	require.Equal(t, day(time.January, 15), out.Reversal.TransactionDate)
	require.Equal(t, &SourceRef{Kind: SourceJournal, ID: res.Journal.ID}, out.Reversal.Source)
	require.Equal(t, "RV-20260115-00001", out.Reversal.Reference)

	row, _ := f.repo.Balance(cash, f.jan.ID, 1)
	require.True(t, row.Net().IsZero())
	require.True(t, row.PeriodDebit.Equal(d("100")))
	require.True(t, row.PeriodCredit.Equal(d("100")))

	_, err = f.svc.Void(ctx, tenant, res.Journal.ID, "again")
	require.ErrorIs(t, err, ErrNotVoidable)

	verifier := balances.NewService(f.repo.BalancesPort(), nil, nil, nil)
	drifts, err := verifier.Verify(ctx, tenant)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestVoidAfterCloseLandsInNextOpenPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 15), "40"), "")
	require.NoError(t, err)
	f.setStatus(f.jan, periods.PeriodStatusClosed)

	out, err := f.svc.Void(ctx, tenant, res.Journal.ID, "wrong customer")
	require.NoError(t, err)
	require.Equal(t, f.feb.ID, out.Reversal.PeriodID)
	require.Equal(t, day(time.February, 1), out.Reversal.TransactionDate)

	janRow, _ := f.repo.Balance(cash, f.jan.ID, 1)
	require.True(t, janRow.ClosingDebit.Equal(d("40")))
	febRow, ok := f.repo.Balance(cash, f.feb.ID, 1)
	require.True(t, ok)
	require.True(t, febRow.OpeningDebit.Equal(d("40")))
	require.True(t, febRow.Net().IsZero())

	f.setStatus(f.feb, periods.PeriodStatusClosed)
	res2, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 16), "1"), "")
	require.ErrorIs(t, err, periods.ErrPeriodNotOpen)
	require.False(t, res2.Replay)
}

func TestVoidWithoutOpenPeriodFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.February, 2), "40"), "")
	require.NoError(t, err)
	f.setStatus(f.feb, periods.PeriodStatusClosed)

	_, err = f.svc.Void(ctx, tenant, res.Journal.ID, "late")
	require.ErrorIs(t, err, periods.ErrNoOpenPeriod)
	stored, err := f.svc.Get(ctx, tenant, res.Journal.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, stored.Status)
}

func TestCreateAndPostIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 15), "25"), "movement-1")
	require.NoError(t, err)
	second, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 15), "25"), "movement-1")
	require.NoError(t, err)
	require.True(t, second.Replay)
	require.Equal(t, first.Journal.ID, second.Journal.ID)

	row, _ := f.repo.Balance(cash, f.jan.ID, 1)
	require.True(t, row.PeriodDebit.Equal(d("25")))

	_, err = f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 15), "26"), "movement-1")
	require.ErrorIs(t, err, shared.ErrIdempotencyMismatch)
	require.Len(t, f.repo.journals, 1)
}

func TestDraftLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := sale(day(time.January, 8), "30")
	in.Lines[1].Credit = d("20")
	draft, err := f.svc.Create(ctx, tenant, in, "")
	require.NoError(t, err)
	require.Equal(t, 1, draft.Version)

	_, err = f.svc.Submit(ctx, tenant, draft.ID)
	require.ErrorIs(t, err, ErrUnbalanced)

	upd := UpdateInput{Version: 1, TransactionDate: day(time.February, 8), Description: "fixed", Lines: sale(day(time.February, 8), "30").Lines}
	updated, err := f.svc.UpdateDraft(ctx, tenant, draft.ID, upd)
	require.NoError(t, err)
	require.Equal(t, 2, updated.Version)
	require.Equal(t, f.feb.ID, updated.PeriodID)
	require.True(t, updated.IsBalanced())

	_, err = f.svc.UpdateDraft(ctx, tenant, draft.ID, upd)
	require.ErrorIs(t, err, ErrVersionConflict)
	require.ErrorIs(t, err, shared.ErrConflict)

	pending, err := f.svc.Submit(ctx, tenant, draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, pending.Status)

	upd.Version = pending.Version
	_, err = f.svc.UpdateDraft(ctx, tenant, draft.ID, upd)
	require.ErrorIs(t, err, ErrNotEditable)
	require.ErrorIs(t, f.svc.DeleteDraft(ctx, tenant, draft.ID), ErrNotEditable)

	ok, err := f.svc.CanPost(ctx, tenant, draft.ID)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = f.svc.Post(ctx, tenant, draft.ID)
	require.NoError(t, err)

	other, err := f.svc.Create(ctx, tenant, sale(day(time.January, 9), "5"), "")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteDraft(ctx, tenant, other.ID))
	_, err = f.svc.Get(ctx, tenant, other.ID)
	require.ErrorIs(t, err, ErrJournalNotFound)

	list, page, err := f.svc.List(ctx, tenant, ListFilter{Status: StatusPosted})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 1, page.Total)
}

func TestUnpostedDraftBlocksPeriodClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft, err := f.svc.Create(ctx, tenant, sale(day(time.January, 8), "30"), "")
	require.NoError(t, err)

	periodSvc := periods.NewService(f.repo.PeriodsPort(), nil, nil)
	_, err = periodSvc.Close(ctx, tenant, f.jan.ID)
	require.ErrorIs(t, err, periods.ErrUnpostedJournals)

	_, err = f.svc.Post(ctx, tenant, draft.ID)
	require.NoError(t, err)
	closed, err := periodSvc.Close(ctx, tenant, f.jan.ID)
	require.NoError(t, err)
	require.Equal(t, periods.PeriodStatusClosed, closed.Status)
}

func TestConcurrentPostingsKeepTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var g errgroup.Group
	for i := 1; i <= 20; i++ {
		amount := fmt.Sprintf("%d.25", i)
		g.Go(func() error {
			_, err := f.svc.CreateAndPost(ctx, tenant, sale(day(time.January, 15), amount), "")
			return err
		})
	}
	require.NoError(t, g.Wait())

	refs := map[string]bool{}
	for _, j := range f.repo.journals {
		require.False(t, refs[j.Reference], j.Reference)
		refs[j.Reference] = true
	}
	require.Len(t, refs, 20)

	// 1..20 sums to 210, plus 20 × 0.25
	row, _ := f.repo.Balance(cash, f.jan.ID, 1)
	require.True(t, row.PeriodDebit.Equal(d("215")), row.PeriodDebit.String())
	rev, _ := f.repo.Balance(revenue, f.jan.ID, 1)
	require.True(t, rev.PeriodCredit.Equal(row.PeriodDebit))
}

func TestReversalLinesSwapSides(t *testing.T) {
	lines := reversalLines([]Line{
		{AccountID: cash, Debit: d("10"), FxDebit: decimal.NewNullDecimal(d("1")), Currency: "USD"},
		{AccountID: revenue, Credit: d("10")},
	})
	require.True(t, lines[0].Credit.Equal(d("10")))
	require.True(t, lines[0].Debit.IsZero())
	require.True(t, lines[0].FxCredit.Decimal.Equal(d("1")))
	require.True(t, lines[1].Debit.Equal(d("10")))
	require.Equal(t, 2, lines[1].LineNo)
}
