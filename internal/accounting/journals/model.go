package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// JournalType classifies the business origin of a journal.
type JournalType string

const (
	TypeGeneral    JournalType = "GENERAL"
	TypeSales      JournalType = "SALES"
	TypePurchase   JournalType = "PURCHASE"
	TypeReceipt    JournalType = "RECEIPT"
	TypePayment    JournalType = "PAYMENT"
	TypeTransfer   JournalType = "TRANSFER"
	TypeAdjustment JournalType = "ADJUSTMENT"
	TypeOpening    JournalType = "OPENING"
	TypeClosing    JournalType = "CLOSING"
	TypeReversal   JournalType = "REVERSAL"
)

var typePrefixes = map[JournalType]string{
	TypeGeneral:    "GJ",
	TypeSales:      "SJ",
	TypePurchase:   "PJ",
	TypeReceipt:    "RJ",
	TypePayment:    "PV",
	TypeTransfer:   "TJ",
	TypeAdjustment: "AJ",
	TypeOpening:    "OJ",
	TypeClosing:    "CJ",
	TypeReversal:   "RV",
}

// Valid reports whether t is a known type.
func (t JournalType) Valid() bool {
	_, ok := typePrefixes[t]
	return ok
}

// Prefix is the reference prefix of the type.
func (t JournalType) Prefix() string {
	return typePrefixes[t]
}

// Status enumerates journal lifecycle states.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusPending Status = "PENDING"
	StatusPosted  Status = "POSTED"
	StatusVoided  Status = "VOIDED"
)

// SourceKind names the document type a journal originates from.
type SourceKind string

const (
	SourceInvoice       SourceKind = "INVOICE"
	SourceBill          SourceKind = "BILL"
	SourcePayment       SourceKind = "PAYMENT"
	SourceReceipt       SourceKind = "RECEIPT"
	SourceStockMovement SourceKind = "STOCK_MOVEMENT"
	SourceJournal       SourceKind = "JOURNAL"
	SourceExpense       SourceKind = "EXPENSE"
)

// SourceRef points at the originating document.
type SourceRef struct {
	Kind SourceKind `json:"kind"`
	ID   int64      `json:"id"`
}

// Valid reports whether the reference names a known kind and a positive id.
func (s SourceRef) Valid() bool {
	switch s.Kind {
	case SourceInvoice, SourceBill, SourcePayment, SourceReceipt, SourceStockMovement, SourceJournal, SourceExpense:
		return s.ID > 0
	}
	return false
}

// SubledgerKind names the party type of a line.
type SubledgerKind string

const (
	SubledgerCustomer SubledgerKind = "CUSTOMER"
	SubledgerSupplier SubledgerKind = "SUPPLIER"
	SubledgerEmployee SubledgerKind = "EMPLOYEE"
	SubledgerBank     SubledgerKind = "BANK_ACCOUNT"
)

// SubledgerRef ties a line to a party for aging and statements.
type SubledgerRef struct {
	Kind SubledgerKind `json:"kind"`
	ID   int64         `json:"id"`
}

// Valid reports whether the reference names a known kind and a positive id.
func (s SubledgerRef) Valid() bool {
	switch s.Kind {
	case SubledgerCustomer, SubledgerSupplier, SubledgerEmployee, SubledgerBank:
		return s.ID > 0
	}
	return false
}

// Line is one leg of a journal. Exactly one of Debit and Credit is positive.
type Line struct {
	ID           int64               `json:"id"`
	JournalID    int64               `json:"journal_id"`
	LineNo       int                 `json:"line_no"`
	AccountID    int64               `json:"account_id"`
	CostCenterID *int64              `json:"cost_center_id,omitempty"`
	Description  string              `json:"description,omitempty"`
	Debit        decimal.Decimal     `json:"debit"`
	Credit       decimal.Decimal     `json:"credit"`
	Currency     string              `json:"currency,omitempty"`
	FxDebit      decimal.NullDecimal `json:"fx_debit"`
	FxCredit     decimal.NullDecimal `json:"fx_credit"`
	FxRate       decimal.NullDecimal `json:"fx_rate"`
	Subledger    *SubledgerRef       `json:"subledger,omitempty"`
	DueDate      *time.Time          `json:"due_date,omitempty"`
}

// Journal is the transaction header with its lines.
type Journal struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	BranchID        int64           `json:"branch_id"`
	PeriodID        int64           `json:"period_id"`
	Reference       string          `json:"reference"`
	Type            JournalType     `json:"type"`
	Status          Status          `json:"status"`
	TransactionDate time.Time       `json:"transaction_date"`
	PostingDate     *time.Time      `json:"posting_date,omitempty"`
	Description     string          `json:"description"`
	TotalDebit      decimal.Decimal `json:"total_debit"`
	TotalCredit     decimal.Decimal `json:"total_credit"`
	Source          *SourceRef      `json:"source,omitempty"`
	ReversalOfID    *int64          `json:"reversal_of_id,omitempty"`
	ReversedByID    *int64          `json:"reversed_by_id,omitempty"`
	VoidReason      string          `json:"void_reason,omitempty"`
	VoidedAt        *time.Time      `json:"voided_at,omitempty"`
	VoidedBy        *int64          `json:"voided_by,omitempty"`
	PostedAt        *time.Time      `json:"posted_at,omitempty"`
	PostedBy        *int64          `json:"posted_by,omitempty"`
	CreatedBy       int64           `json:"created_by"`
	Version         int             `json:"version"`
	DeletedAt       *time.Time      `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Lines           []Line          `json:"lines"`
}

// Sums adds up line debits and credits exactly.
func (j Journal) Sums() (debit, credit decimal.Decimal) {
	for _, l := range j.Lines {
		debit = debit.Add(l.Debit)
		credit = credit.Add(l.Credit)
	}
	return debit, credit
}

// IsBalanced is true iff line debits equal line credits.
func (j Journal) IsBalanced() bool {
	debit, credit := j.Sums()
	return debit.Equal(credit)
}

// IsEditable is true only for live drafts.
func (j Journal) IsEditable() bool {
	return j.Status == StatusDraft && j.DeletedAt == nil
}

// reversalLines swaps every debit and credit, foreign amounts included.
func reversalLines(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	for i, l := range lines {
		out = append(out, Line{
			LineNo:       i + 1,
			AccountID:    l.AccountID,
			CostCenterID: l.CostCenterID,
			Description:  l.Description,
			Debit:        l.Credit,
			Credit:       l.Debit,
			Currency:     l.Currency,
			FxDebit:      l.FxCredit,
			FxCredit:     l.FxDebit,
			FxRate:       l.FxRate,
			Subledger:    l.Subledger,
			DueDate:      l.DueDate,
		})
	}
	return out
}
