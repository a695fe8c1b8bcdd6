package accounts

import (
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeCOGS      AccountType = "COGS"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account type increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeCOGS, AccountTypeExpense:
		return true
	}
	return false
}

// NormalBalance derives the normal side from the type.
func (t AccountType) NormalBalance() NormalBalance {
	switch t {
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		return NormalCredit
	default:
		return NormalDebit
	}
}

var (
	ErrAccountNotFound    = shared.NotFound("account.not_found", "account not found")
	ErrAccountNotPostable = shared.Validation("account.not_postable", "account is a group and cannot receive postings")
	ErrAccountInactive    = shared.Validation("account.inactive", "account is inactive")
	ErrInvalidAccountType = shared.Validation("account.invalid_type", "invalid account type")
	ErrInvalidParent      = shared.Validation("account.invalid_parent", "parent must be a group account of the same type")
	ErrCodeRequired       = shared.Validation("account.code_required", "code and name are required")
	ErrCostCenterNotFound = shared.NotFound("cost_center.not_found", "cost center not found")
)

// Account models a chart of accounts node.
type Account struct {
	ID        int64       `json:"id"`
	CompanyID int64       `json:"company_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	ParentID  *int64      `json:"parent_id,omitempty"`
	IsGroup   bool        `json:"is_group"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (a Account) NodeID() int64        { return a.ID }
func (a Account) ParentNodeID() *int64 { return a.ParentID }

// NormalBalance of the account.
func (a Account) NormalBalance() NormalBalance {
	return a.Type.NormalBalance()
}

// EnsurePostable rejects group and inactive accounts.
func (a Account) EnsurePostable() error {
	if a.IsGroup {
		return ErrAccountNotPostable.With("%s", a.Code)
	}
	if !a.IsActive {
		return ErrAccountInactive.With("%s", a.Code)
	}
	return nil
}

// CostCenter is an analytic dimension attached to journal lines.
type CostCenter struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (c CostCenter) NodeID() int64        { return c.ID }
func (c CostCenter) ParentNodeID() *int64 { return c.ParentID }

// CreateAccountInput carries a new account.
type CreateAccountInput struct {
	Code     string      `json:"code" validate:"required,max=32"`
	Name     string      `json:"name" validate:"required,max=200"`
	Type     AccountType `json:"type" validate:"required"`
	ParentID *int64      `json:"parent_id"`
	IsGroup  bool        `json:"is_group"`
}

// CreateCostCenterInput carries a new cost center.
type CreateCostCenterInput struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=200"`
	ParentID *int64 `json:"parent_id"`
}
