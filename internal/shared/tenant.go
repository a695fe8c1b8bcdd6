package shared

// Tenant scopes every core operation. It is passed explicitly; nothing reads it from ambient state.
type Tenant struct {
	CompanyID int64
	BranchID  int64
	ActorID   int64
}

// ErrTenantRequired indicates a missing company scope.
var ErrTenantRequired = Validation("tenant.required", "company scope required")

// Validate ensures a company is present. Branch is optional for read-only lookups.
func (t Tenant) Validate() error {
	if t.CompanyID <= 0 {
		return ErrTenantRequired
	}
	return nil
}

// RequireBranch ensures the tenant carries a branch, needed by journal and movement writes.
func (t Tenant) RequireBranch() error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.BranchID <= 0 {
		return Validation("tenant.branch_required", "branch scope required")
	}
	return nil
}

// Owns reports whether the entity company matches the tenant.
func (t Tenant) Owns(companyID int64) bool {
	return companyID != 0 && companyID == t.CompanyID
}

