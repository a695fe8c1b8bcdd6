// Package balances maintains per account, per period, per branch balance snapshots.
package balances

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	ErrClosingIdentity = shared.Consistency("balance.closing_identity", "closing balance differs from opening plus period")
	ErrDrift           = shared.Consistency("balance.drift", "balance snapshot differs from journal history")
)

// Key identifies one snapshot row.
type Key struct {
	AccountID int64
	PeriodID  int64
	BranchID  int64
}

// PeriodRef is the slice of a period the balance chain needs.
type PeriodRef struct {
	ID         int64
	FiscalYear int
	StartDate  time.Time
}

// AccountBalance is the materialised snapshot row.
type AccountBalance struct {
	ID            int64           `json:"id"`
	CompanyID     int64           `json:"company_id"`
	AccountID     int64           `json:"account_id"`
	PeriodID      int64           `json:"period_id"`
	BranchID      int64           `json:"branch_id"`
	FiscalYear    int             `json:"fiscal_year"`
	PeriodStart   time.Time       `json:"period_start"`
	OpeningDebit  decimal.Decimal `json:"opening_debit"`
	OpeningCredit decimal.Decimal `json:"opening_credit"`
	PeriodDebit   decimal.Decimal `json:"period_debit"`
	PeriodCredit  decimal.Decimal `json:"period_credit"`
	ClosingDebit  decimal.Decimal `json:"closing_debit"`
	ClosingCredit decimal.Decimal `json:"closing_credit"`
	YTDDebit      decimal.Decimal `json:"ytd_debit"`
	YTDCredit     decimal.Decimal `json:"ytd_credit"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Key returns the snapshot key.
func (b AccountBalance) Key() Key {
	return Key{AccountID: b.AccountID, PeriodID: b.PeriodID, BranchID: b.BranchID}
}

// AddMovement adds a posting to the period and YTD columns and recomputes closing.
func (b *AccountBalance) AddMovement(debit, credit decimal.Decimal) {
	b.PeriodDebit = b.PeriodDebit.Add(debit)
	b.PeriodCredit = b.PeriodCredit.Add(credit)
	b.YTDDebit = b.YTDDebit.Add(debit)
	b.YTDCredit = b.YTDCredit.Add(credit)
	b.recomputeClosing()
}

func (b *AccountBalance) recomputeClosing() {
	b.ClosingDebit = b.OpeningDebit.Add(b.PeriodDebit)
	b.ClosingCredit = b.OpeningCredit.Add(b.PeriodCredit)
}

// Verify checks closing = opening + period per column.
func (b AccountBalance) Verify() error {
	if !b.ClosingDebit.Equal(b.OpeningDebit.Add(b.PeriodDebit)) || !b.ClosingCredit.Equal(b.OpeningCredit.Add(b.PeriodCredit)) {
		return ErrClosingIdentity.With("account %d period %d branch %d", b.AccountID, b.PeriodID, b.BranchID)
	}
	return nil
}

// Net is closing debit minus closing credit.
func (b AccountBalance) Net() decimal.Decimal {
	return b.ClosingDebit.Sub(b.ClosingCredit)
}

// Seed builds an empty row for key whose opening carries the prior row's closing.
// YTD carries only inside the same fiscal year.
func Seed(companyID int64, key Key, period PeriodRef, prior *AccountBalance) AccountBalance {
	b := AccountBalance{
		CompanyID:   companyID,
		AccountID:   key.AccountID,
		PeriodID:    key.PeriodID,
		BranchID:    key.BranchID,
		FiscalYear:  period.FiscalYear,
		PeriodStart: period.StartDate,
	}
	if prior != nil {
		b.OpeningDebit = prior.ClosingDebit
		b.OpeningCredit = prior.ClosingCredit
		if prior.FiscalYear == period.FiscalYear {
			b.YTDDebit = prior.YTDDebit
			b.YTDCredit = prior.YTDCredit
		}
	}
	b.recomputeClosing()
	return b
}

// Snapshot is the lookup result of GetBalance; branch 0 means all branches.
type Snapshot struct {
	AccountID     int64           `json:"account_id"`
	PeriodID      int64           `json:"period_id"`
	BranchID      int64           `json:"branch_id,omitempty"`
	OpeningDebit  decimal.Decimal `json:"opening_debit"`
	OpeningCredit decimal.Decimal `json:"opening_credit"`
	PeriodDebit   decimal.Decimal `json:"period_debit"`
	PeriodCredit  decimal.Decimal `json:"period_credit"`
	ClosingDebit  decimal.Decimal `json:"closing_debit"`
	ClosingCredit decimal.Decimal `json:"closing_credit"`
	YTDDebit      decimal.Decimal `json:"ytd_debit"`
	YTDCredit     decimal.Decimal `json:"ytd_credit"`
}

func (s *Snapshot) add(b AccountBalance) {
	s.OpeningDebit = s.OpeningDebit.Add(b.OpeningDebit)
	s.OpeningCredit = s.OpeningCredit.Add(b.OpeningCredit)
	s.PeriodDebit = s.PeriodDebit.Add(b.PeriodDebit)
	s.PeriodCredit = s.PeriodCredit.Add(b.PeriodCredit)
	s.ClosingDebit = s.ClosingDebit.Add(b.ClosingDebit)
	s.ClosingCredit = s.ClosingCredit.Add(b.ClosingCredit)
	s.YTDDebit = s.YTDDebit.Add(b.YTDDebit)
	s.YTDCredit = s.YTDCredit.Add(b.YTDCredit)
}

// Movement is one posted line reduced to what the snapshot needs.
type Movement struct {
	AccountID int64
	BranchID  int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// HistoryLine is a posted line with its period, used by replay.
type HistoryLine struct {
	Movement
	PeriodID int64
}

// Drift reports a snapshot that disagrees with replayed history.
type Drift struct {
	Key      Key             `json:"key"`
	Stored   *AccountBalance `json:"stored,omitempty"`
	Expected *AccountBalance `json:"expected,omitempty"`
}
