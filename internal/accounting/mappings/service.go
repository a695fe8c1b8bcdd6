package mappings

import (
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AccountReader checks that a mapped account can receive postings.
type AccountReader interface {
	Get(ctx context.Context, companyID, id int64) (accounts.Account, error)
}

// Service maintains and resolves account mappings.
type Service struct {
	repo     Repository
	accounts AccountReader
}

func NewService(repo Repository, accounts AccountReader) *Service {
	return &Service{repo: repo, accounts: accounts}
}

// Resolve returns the account mapped to module/key.
func (s *Service) Resolve(ctx context.Context, companyID int64, module, key string) (int64, error) {
	m, err := s.repo.Get(ctx, companyID, strings.ToUpper(module), key)
	if err != nil {
		return 0, err
	}
	return m.AccountID, nil
}

// List returns every mapping of the tenant.
func (s *Service) List(ctx context.Context, tenant shared.Tenant) ([]AccountMapping, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, tenant.CompanyID)
}

// Set points module/key at accountID. The account must be postable.
func (s *Service) Set(ctx context.Context, tenant shared.Tenant, module, key string, accountID int64) (AccountMapping, error) {
	if err := tenant.Validate(); err != nil {
		return AccountMapping{}, err
	}
	module, key = strings.ToUpper(strings.TrimSpace(module)), strings.TrimSpace(key)
	if module == "" || key == "" || accountID <= 0 {
		return AccountMapping{}, ErrMappingInvalid
	}
	if s.accounts != nil {
		acc, err := s.accounts.Get(ctx, tenant.CompanyID, accountID)
		if err != nil {
			return AccountMapping{}, err
		}
		if err := acc.EnsurePostable(); err != nil {
			return AccountMapping{}, err
		}
	}
	return s.repo.Upsert(ctx, AccountMapping{CompanyID: tenant.CompanyID, Module: module, Key: key, AccountID: accountID})
}
