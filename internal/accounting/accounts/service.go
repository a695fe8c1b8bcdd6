package accounts

import (
	"context"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, tenant shared.Tenant) ([]Account, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, tenant.CompanyID)
}

// Tree loads the company chart once and indexes it for ancestor and descendant walks.
func (s *Service) Tree(ctx context.Context, tenant shared.Tenant) (*shared.Tree[Account], error) {
	accounts, err := s.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	return shared.BuildTree(accounts), nil
}

// Create validates and stores an account. Children must share the parent's type.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, in CreateAccountInput) (Account, error) {
	if err := tenant.Validate(); err != nil {
		return Account{}, err
	}
	code := shared.NormalizeCode(in.Code)
	name := shared.NormalizeName(in.Name)
	if code == "" || name == "" {
		return Account{}, ErrCodeRequired
	}
	if !in.Type.Valid() {
		return Account{}, ErrInvalidAccountType.With("%s", in.Type)
	}
	if in.ParentID != nil {
		parent, err := s.repo.Get(ctx, tenant.CompanyID, *in.ParentID)
		if err != nil {
			return Account{}, err
		}
		if !parent.IsGroup || parent.Type != in.Type {
			return Account{}, ErrInvalidParent
		}
	}
	return s.repo.Insert(ctx, Account{
		CompanyID: tenant.CompanyID,
		Code:      code,
		Name:      name,
		Type:      in.Type,
		ParentID:  in.ParentID,
		IsGroup:   in.IsGroup,
	})
}

func (s *Service) ListCostCenters(ctx context.Context, tenant shared.Tenant) ([]CostCenter, error) {
	if err := tenant.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListCostCenters(ctx, tenant.CompanyID)
}

// CreateCostCenter stores a cost center under an optional parent.
func (s *Service) CreateCostCenter(ctx context.Context, tenant shared.Tenant, in CreateCostCenterInput) (CostCenter, error) {
	if err := tenant.Validate(); err != nil {
		return CostCenter{}, err
	}
	code := shared.NormalizeCode(in.Code)
	name := shared.NormalizeName(in.Name)
	if code == "" || name == "" {
		return CostCenter{}, ErrCodeRequired
	}
	if in.ParentID != nil {
		if _, err := s.repo.GetCostCenter(ctx, tenant.CompanyID, *in.ParentID); err != nil {
			return CostCenter{}, err
		}
	}
	return s.repo.InsertCostCenter(ctx, CostCenter{CompanyID: tenant.CompanyID, Code: code, Name: name, ParentID: in.ParentID})
}
