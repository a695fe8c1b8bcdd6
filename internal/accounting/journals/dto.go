package journals

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// LineInput is a journal line as supplied by callers.
type LineInput struct {
	AccountID    int64               `json:"account_id" validate:"required,gt=0"`
	CostCenterID *int64              `json:"cost_center_id,omitempty" validate:"omitempty,gt=0"`
	Description  string              `json:"description,omitempty" validate:"max=500"`
	Debit        decimal.Decimal     `json:"debit"`
	Credit       decimal.Decimal     `json:"credit"`
	Currency     string              `json:"currency,omitempty" validate:"omitempty,len=3"`
	FxDebit      decimal.NullDecimal `json:"fx_debit"`
	FxCredit     decimal.NullDecimal `json:"fx_credit"`
	FxRate       decimal.NullDecimal `json:"fx_rate"`
	Subledger    *SubledgerRef       `json:"subledger,omitempty"`
	DueDate      *time.Time          `json:"due_date,omitempty"`
}

// Validate enforces the single-sided, non-negative, four decimal line rules.
func (l LineInput) Validate() error {
	if l.AccountID <= 0 {
		return ErrInvalidLine.With("account required")
	}
	if l.Debit.IsNegative() || l.Credit.IsNegative() {
		return ErrNegativeAmount
	}
	if l.Debit.IsZero() && l.Credit.IsZero() {
		return ErrZeroAmountLine
	}
	if l.Debit.IsPositive() && l.Credit.IsPositive() {
		return ErrInvalidLine
	}
	if !shared.HasScale(l.Debit, shared.LedgerScale) || !shared.HasScale(l.Credit, shared.LedgerScale) {
		return ErrLinePrecision
	}
	if l.Subledger != nil && !l.Subledger.Valid() {
		return ErrInvalidSubledger
	}
	return l.validateForeign()
}

func (l LineInput) validateForeign() error {
	if !l.FxDebit.Valid && !l.FxCredit.Valid && !l.FxRate.Valid {
		return nil
	}
	if l.Currency == "" || !l.FxRate.Valid || !l.FxRate.Decimal.IsPositive() {
		return ErrInvalidForeign
	}
	if l.Debit.IsPositive() && (l.FxCredit.Valid && !l.FxCredit.Decimal.IsZero()) {
		return ErrInvalidForeign
	}
	if l.Credit.IsPositive() && (l.FxDebit.Valid && !l.FxDebit.Decimal.IsZero()) {
		return ErrInvalidForeign
	}
	for _, v := range []decimal.NullDecimal{l.FxDebit, l.FxCredit} {
		if v.Valid && (v.Decimal.IsNegative() || !shared.HasScale(v.Decimal, shared.LedgerScale)) {
			return ErrInvalidForeign
		}
	}
	return nil
}

func (l LineInput) toLine(no int) Line {
	return Line{
		LineNo:       no,
		AccountID:    l.AccountID,
		CostCenterID: l.CostCenterID,
		Description:  l.Description,
		Debit:        l.Debit,
		Credit:       l.Credit,
		Currency:     l.Currency,
		FxDebit:      l.FxDebit,
		FxCredit:     l.FxCredit,
		FxRate:       l.FxRate,
		Subledger:    l.Subledger,
		DueDate:      l.DueDate,
	}
}

func toLines(in []LineInput) ([]Line, error) {
	if len(in) == 0 {
		return nil, ErrNoLines
	}
	out := make([]Line, 0, len(in))
	for i, l := range in {
		if err := l.Validate(); err != nil {
			var se *shared.Error
			if errors.As(err, &se) {
				return nil, se.With("line %d", i+1)
			}
			return nil, err
		}
		out = append(out, l.toLine(i+1))
	}
	return out, nil
}

// CreateInput describes a new draft journal.
type CreateInput struct {
	Type            JournalType `json:"type" validate:"required"`
	TransactionDate time.Time   `json:"transaction_date" validate:"required"`
	Description     string      `json:"description" validate:"max=500"`
	Source          *SourceRef  `json:"source,omitempty"`
	Lines           []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// Validate checks header fields and every line.
func (in CreateInput) Validate() error {
	if !in.Type.Valid() || in.Type == TypeReversal {
		return ErrInvalidType
	}
	if in.TransactionDate.IsZero() {
		return shared.Validation("journal.date_required", "transaction date required")
	}
	if in.Source != nil && !in.Source.Valid() {
		return ErrInvalidSource
	}
	_, err := toLines(in.Lines)
	return err
}

// UpdateInput replaces the editable fields of a draft. Version must match the stored row.
type UpdateInput struct {
	Version         int         `json:"version" validate:"required,gt=0"`
	TransactionDate time.Time   `json:"transaction_date" validate:"required"`
	Description     string      `json:"description" validate:"max=500"`
	Lines           []LineInput `json:"lines" validate:"required,min=1,dive"`
}

// ListFilter narrows journal listings.
type ListFilter struct {
	PeriodID *int64
	Status   Status
	Type     JournalType
	Source   *SourceRef
	From     *time.Time
	To       *time.Time
	Page     int
	PerPage  int
}

// PostResult is returned by CreateAndPost.
type PostResult struct {
	Journal Journal `json:"journal"`
	Replay  bool    `json:"replay"`
}

// VoidResult carries the voided original and its posted reversal.
type VoidResult struct {
	Voided   Journal `json:"voided"`
	Reversal Journal `json:"reversal"`
}
