package mappings

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type memoryRepo struct {
	rows map[string]AccountMapping
}

func key(companyID int64, module, k string) string { return fmt.Sprintf("%d/%s/%s", companyID, module, k) }

func (m *memoryRepo) Get(_ context.Context, companyID int64, module, k string) (AccountMapping, error) {
	row, ok := m.rows[key(companyID, module, k)]
	if !ok {
		return AccountMapping{}, ErrMappingNotFound
	}
	return row, nil
}

func (m *memoryRepo) List(_ context.Context, companyID int64) ([]AccountMapping, error) {
	var out []AccountMapping
	for _, row := range m.rows {
		if row.CompanyID == companyID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryRepo) Upsert(_ context.Context, row AccountMapping) (AccountMapping, error) {
	m.rows[key(row.CompanyID, row.Module, row.Key)] = row
	return row, nil
}

type accountStub map[int64]accounts.Account

func (a accountStub) Get(_ context.Context, _ int64, id int64) (accounts.Account, error) {
	acc, ok := a[id]
	if !ok {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return acc, nil
}

func TestSetAndResolve(t *testing.T) {
	repo := &memoryRepo{rows: map[string]AccountMapping{}}
	svc := NewService(repo, accountStub{
		10: {ID: 10, Code: "1300", IsActive: true},
		11: {ID: 11, Code: "1000", IsGroup: true, IsActive: true},
	})
	tenant := shared.Tenant{CompanyID: 1, ActorID: 1}
	ctx := context.Background()

	_, err := svc.Set(ctx, tenant, "inventory", KeyInventory, 11)
	require.ErrorIs(t, err, accounts.ErrAccountNotPostable)
	_, err = svc.Set(ctx, tenant, "", KeyInventory, 10)
	require.ErrorIs(t, err, ErrMappingInvalid)

	m, err := svc.Set(ctx, tenant, " inventory ", KeyInventory, 10)
	require.NoError(t, err)
	require.Equal(t, ModuleInventory, m.Module)

	id, err := svc.Resolve(ctx, 1, "inventory", KeyInventory)
	require.NoError(t, err)
	require.Equal(t, int64(10), id)

	_, err = svc.Resolve(ctx, 2, ModuleInventory, KeyInventory)
	require.ErrorIs(t, err, ErrMappingNotFound)
}
