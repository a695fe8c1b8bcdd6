package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
)

// AccountBalance is one account's balance as of a period, all branches folded in unless filtered.
type AccountBalance struct {
	AccountID     int64                `json:"account_id"`
	Code          string               `json:"code"`
	Name          string               `json:"name"`
	Type          accounts.AccountType `json:"type"`
	OpeningDebit  decimal.Decimal      `json:"opening_debit"`
	OpeningCredit decimal.Decimal      `json:"opening_credit"`
	Debit         decimal.Decimal      `json:"debit"`
	Credit        decimal.Decimal      `json:"credit"`
}

// Opening is the signed opening balance, debit positive.
func (a AccountBalance) Opening() decimal.Decimal {
	return a.OpeningDebit.Sub(a.OpeningCredit)
}

// Closing computes the closing balance for the account, debit positive.
func (a AccountBalance) Closing() decimal.Decimal {
	return a.Opening().Add(a.Debit).Sub(a.Credit)
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	AccountID     int64           `json:"account_id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Opening       decimal.Decimal `json:"opening"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Closing       decimal.Decimal `json:"closing"`
	ClosingDebit  decimal.Decimal `json:"closing_debit"`
	ClosingCredit decimal.Decimal `json:"closing_credit"`
}

// TrialBalanceGroup aggregates accounts sharing a code prefix.
type TrialBalanceGroup struct {
	Key      string                `json:"key"`
	Accounts []TrialBalanceAccount `json:"accounts"`
	Opening  decimal.Decimal       `json:"opening"`
	Debit    decimal.Decimal       `json:"debit"`
	Credit   decimal.Decimal       `json:"credit"`
	Closing  decimal.Decimal       `json:"closing"`
}

// TrialBalance lists every account with activity or a carried balance.
type TrialBalance struct {
	PeriodID           int64               `json:"period_id"`
	BranchID           *int64              `json:"branch_id,omitempty"`
	Groups             []TrialBalanceGroup `json:"groups"`
	TotalOpening       decimal.Decimal     `json:"total_opening"`
	TotalDebit         decimal.Decimal     `json:"total_debit"`
	TotalCredit        decimal.Decimal     `json:"total_credit"`
	TotalClosing       decimal.Decimal     `json:"total_closing"`
	TotalClosingDebit  decimal.Decimal     `json:"total_closing_debit"`
	TotalClosingCredit decimal.Decimal     `json:"total_closing_credit"`
	Balanced           bool                `json:"balanced"`
}

// BuildTrialBalance converts account balances into grouped trial balance data.
// A posted ledger always yields Balanced; anything else points at snapshot drift.
func BuildTrialBalance(rows []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	result := TrialBalance{}
	for _, acc := range rows {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Opening:   acc.Opening(),
			Debit:     acc.Debit,
			Credit:    acc.Credit,
			Closing:   acc.Closing(),
		}
		if row.Closing.IsPositive() {
			row.ClosingDebit = row.Closing
		} else {
			row.ClosingCredit = row.Closing.Neg()
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Opening = grp.Opening.Add(row.Opening)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
		grp.Closing = grp.Closing.Add(row.Closing)
		result.TotalClosingDebit = result.TotalClosingDebit.Add(row.ClosingDebit)
		result.TotalClosingCredit = result.TotalClosingCredit.Add(row.ClosingCredit)
	}

	sort.Strings(keys)
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalOpening = result.TotalOpening.Add(grp.Opening)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
		result.TotalClosing = result.TotalClosing.Add(grp.Closing)
	}
	result.Balanced = result.TotalDebit.Equal(result.TotalCredit) && result.TotalClosingDebit.Equal(result.TotalClosingCredit)
	return result
}
