package balances

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the transactional snapshot surface. Implementations must row lock in GetBalanceForUpdate.
type Store interface {
	// LockChain serializes writers of one (account, branch) chain until the transaction ends.
	// A new snapshot is seeded from the prior row only while the chain is held.
	LockChain(ctx context.Context, accountID, branchID int64) error
	GetBalanceForUpdate(ctx context.Context, key Key) (*AccountBalance, error)
	GetPriorBalance(ctx context.Context, accountID, branchID int64, before time.Time) (*AccountBalance, error)
	// InsertBalance stores seed, or returns the row a concurrent transaction inserted first.
	InsertBalance(ctx context.Context, seed AccountBalance) (AccountBalance, error)
	// IncrementBalance adds to the period, closing and YTD columns in place.
	IncrementBalance(ctx context.Context, id int64, debit, credit decimal.Decimal) error
	// ShiftLaterBalances adds to opening and closing of rows after periodStart, and to YTD within fiscalYear.
	ShiftLaterBalances(ctx context.Context, accountID, branchID int64, periodStart time.Time, fiscalYear int, debit, credit decimal.Decimal) error
}

type chainKey struct {
	accountID int64
	branchID  int64
}

// Apply posts movements into the snapshots of period. Movements are netted per account and branch
// and applied in (account, branch) order so concurrent postings take row locks in the same sequence.
func Apply(ctx context.Context, store Store, companyID int64, period PeriodRef, movements []Movement) error {
	type total struct{ debit, credit decimal.Decimal }
	totals := make(map[chainKey]*total)
	var keys []chainKey
	for _, m := range movements {
		k := chainKey{accountID: m.AccountID, branchID: m.BranchID}
		t, ok := totals[k]
		if !ok {
			t = &total{}
			totals[k] = t
			keys = append(keys, k)
		}
		t.debit = t.debit.Add(m.Debit)
		t.credit = t.credit.Add(m.Credit)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].accountID != keys[j].accountID {
			return keys[i].accountID < keys[j].accountID
		}
		return keys[i].branchID < keys[j].branchID
	})

	for _, k := range keys {
		t := totals[k]
		key := Key{AccountID: k.accountID, PeriodID: period.ID, BranchID: k.branchID}
		if err := store.LockChain(ctx, k.accountID, k.branchID); err != nil {
			return err
		}
		row, err := store.GetBalanceForUpdate(ctx, key)
		if err != nil {
			return err
		}
		if row == nil {
			prior, err := store.GetPriorBalance(ctx, k.accountID, k.branchID, period.StartDate)
			if err != nil {
				return err
			}
			inserted, err := store.InsertBalance(ctx, Seed(companyID, key, period, prior))
			if err != nil {
				return err
			}
			row = &inserted
		}
		expected := *row
		expected.AddMovement(t.debit, t.credit)
		if err := expected.Verify(); err != nil {
			return err
		}
		if err := store.IncrementBalance(ctx, row.ID, t.debit, t.credit); err != nil {
			return err
		}
		if err := store.ShiftLaterBalances(ctx, k.accountID, k.branchID, period.StartDate, period.FiscalYear, t.debit, t.credit); err != nil {
			return err
		}
	}
	return nil
}
