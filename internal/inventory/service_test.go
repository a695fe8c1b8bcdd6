package inventory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var tenant = shared.Tenant{CompanyID: 1, BranchID: 1, ActorID: 9}

func march(dd int) time.Time { return time.Date(2026, time.March, dd, 0, 0, 0, 0, time.UTC) }

type fixture struct {
	repo    *memoryRepo
	svc     *Service
	fifo    Product
	lifo    Product
	avg     Product
	main    Warehouse
	store   Warehouse
	transit Warehouse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := newMemoryRepo()
	f := &fixture{repo: repo, svc: NewService(repo, nil)}
	f.svc.WithNow(func() time.Time { return time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC) })

	var err error
	f.fifo, err = f.svc.CreateProduct(ctx, tenant, ProductInput{SKU: "widget", Name: "Widget", ValuationMethod: ValuationFIFO})
	require.NoError(t, err)
	f.lifo, err = f.svc.CreateProduct(ctx, tenant, ProductInput{SKU: "gear", Name: "Gear", ValuationMethod: ValuationLIFO})
	require.NoError(t, err)
	f.avg, err = f.svc.CreateProduct(ctx, tenant, ProductInput{SKU: "bolt", Name: "Bolt", ValuationMethod: "weighted_average"})
	require.NoError(t, err)
	f.main, err = f.svc.CreateWarehouse(ctx, tenant, WarehouseInput{BranchID: 1, Code: "main", Name: "Main"})
	require.NoError(t, err)
	f.store, err = f.svc.CreateWarehouse(ctx, tenant, WarehouseInput{BranchID: 2, Code: "store", Name: "Store"})
	require.NoError(t, err)
	f.transit, err = f.svc.CreateWarehouse(ctx, tenant, WarehouseInput{BranchID: 1, Code: "transit", Name: "Transit", Kind: WarehouseVirtual})
	require.NoError(t, err)
	return f
}

func (f *fixture) receive(t *testing.T, p Product, w Warehouse, qty, cost string, date time.Time) StockMovement {
	t.Helper()
	m, err := f.svc.AddStock(context.Background(), tenant, AddStockInput{
		ProductID: p.ID, WarehouseID: w.ID, Unit: "pcs", Quantity: dec(qty), UnitCost: dec(cost), Type: MovementPurchase, MovementDate: date,
	}, "")
	require.NoError(t, err)
	return m
}

func (f *fixture) sell(p Product, w Warehouse, qty string) (StockMovement, error) {
	return f.svc.RemoveStock(context.Background(), tenant, RemoveStockInput{
		ProductID: p.ID, WarehouseID: w.ID, Unit: "pcs", Quantity: dec(qty), Type: MovementSale, MovementDate: march(10),
	}, "")
}

func TestCreateProductNormalizes(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, "WIDGET", f.fifo.SKU)
	require.Equal(t, ValuationWeightedAverage, f.avg.ValuationMethod)
	require.Equal(t, WarehousePhysical, f.main.Kind)
	require.True(t, f.transit.AllowsNegative())

	_, err := f.svc.CreateProduct(context.Background(), tenant, ProductInput{SKU: "x", Name: "X", ValuationMethod: "HIFO"})
	require.ErrorIs(t, err, ErrInvalidProduct)

	products, err := f.svc.ListProducts(context.Background(), tenant)
	require.NoError(t, err)
	require.Len(t, products, 3)
	require.Equal(t, "BOLT", products[0].SKU)
}

func TestAddStockWeightedAverage(t *testing.T) {
	f := newFixture(t)
	first := f.receive(t, f.avg, f.main, "10", "4", time.Time{})
	second := f.receive(t, f.avg, f.main, "10", "8", time.Time{})

	require.Equal(t, "PUR-20260310-00001", first.Reference)
	require.Equal(t, "PUR-20260310-00002", second.Reference)
	require.Equal(t, march(10), first.MovementDate)
	require.True(t, second.TotalCost.Equal(dec("80")))

	item := f.repo.item(f.avg.ID, f.main.ID, "pcs")
	require.True(t, item.Quantity.Equal(dec("20")))
	require.True(t, item.AvgCost.Equal(dec("6")), item.AvgCost.String())
	require.Empty(t, f.repo.batchesOf(f.avg.ID, f.main.ID))

	value, err := f.svc.GetInventoryValue(context.Background(), tenant, StockQuery{ProductID: f.avg.ID})
	require.NoError(t, err)
	require.True(t, value.Equal(dec("120")))

	out, err := f.sell(f.avg, f.main, "5")
	require.NoError(t, err)
	require.True(t, out.UnitCost.Equal(dec("6")))
	require.True(t, out.TotalCost.Equal(dec("30")))
	require.True(t, f.repo.item(f.avg.ID, f.main.ID, "pcs").AvgCost.Equal(dec("6")))
}

func TestRemoveStockFIFOConsumesOldestLayers(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.fifo, f.main, "10", "5", march(1))
	f.receive(t, f.fifo, f.main, "10", "8", march(2))

	out, err := f.sell(f.fifo, f.main, "15")
	require.NoError(t, err)
	require.Equal(t, "SAL-20260310-00001", out.Reference)
	require.Equal(t, DirectionOut, out.Direction)
	require.True(t, out.UnitCost.Equal(dec("6")), out.UnitCost.String())
	require.True(t, out.TotalCost.Equal(dec("90")))

	batches := f.repo.batchesOf(f.fifo.ID, f.main.ID)
	require.Len(t, batches, 2)
	require.True(t, batches[0].RemainingQty.IsZero())
	require.True(t, batches[1].RemainingQty.Equal(dec("5")))

	item := f.repo.item(f.fifo.ID, f.main.ID, "pcs")
	require.True(t, item.Quantity.Equal(dec("5")))
	require.True(t, item.AvgCost.Equal(dec("8")))
}

func TestRemoveStockLIFOConsumesNewestLayers(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.lifo, f.main, "10", "5", march(1))
	f.receive(t, f.lifo, f.main, "10", "8", march(2))

	out, err := f.sell(f.lifo, f.main, "15")
	require.NoError(t, err)
	require.True(t, out.UnitCost.Equal(dec("7")), out.UnitCost.String())

	batches := f.repo.batchesOf(f.lifo.ID, f.main.ID)
	require.True(t, batches[0].RemainingQty.Equal(dec("5")))
	require.True(t, batches[1].RemainingQty.IsZero())
}

func TestRemoveStockRejectsShortage(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.fifo, f.main, "3", "5", march(1))
	audits := len(f.repo.AuditActions())

	_, err := f.sell(f.fifo, f.main, "4")
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrValidation)

	require.True(t, f.repo.item(f.fifo.ID, f.main.ID, "pcs").Quantity.Equal(dec("3")))
	require.True(t, f.repo.batchesOf(f.fifo.ID, f.main.ID)[0].RemainingQty.Equal(dec("3")))
	require.Len(t, f.repo.movements, 1)
	require.Len(t, f.repo.AuditActions(), audits)
}

func TestVirtualWarehouseGoesNegative(t *testing.T) {
	f := newFixture(t)
	out, err := f.sell(f.fifo, f.transit, "3")
	require.NoError(t, err)
	require.True(t, out.TotalCost.IsZero())
	require.True(t, f.repo.item(f.fifo.ID, f.transit.ID, "pcs").Quantity.Equal(dec("-3")))

	f.receive(t, f.fifo, f.transit, "5", "10", march(10))
	item := f.repo.item(f.fifo.ID, f.transit.ID, "pcs")
	require.True(t, item.Quantity.Equal(dec("2")))
	require.True(t, item.AvgCost.Equal(dec("10")))
	batches := f.repo.batchesOf(f.fifo.ID, f.transit.ID)
	require.Len(t, batches, 1)
	require.True(t, batches[0].RemainingQty.Equal(dec("2")))

	drift, err := f.svc.ReconcileLayers(context.Background(), tenant)
	require.NoError(t, err)
	require.Empty(t, drift)
}

func TestStockInputValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := AddStockInput{ProductID: f.fifo.ID, WarehouseID: f.main.ID, Unit: "pcs", Quantity: dec("1"), UnitCost: dec("1"), Type: MovementPurchase}

	cases := map[string]struct {
		mutate func(*AddStockInput)
		want   error
	}{
		"zero quantity":     {func(in *AddStockInput) { in.Quantity = decimal.Zero }, ErrInvalidQuantity},
		"quantity scale":    {func(in *AddStockInput) { in.Quantity = dec("1.00001") }, ErrInvalidQuantity},
		"negative cost":     {func(in *AddStockInput) { in.UnitCost = dec("-1") }, ErrInvalidUnitCost},
		"cost scale":        {func(in *AddStockInput) { in.UnitCost = dec("0.0000001") }, ErrInvalidUnitCost},
		"outbound type":     {func(in *AddStockInput) { in.Type = MovementSale }, ErrInvalidType},
		"blank unit":        {func(in *AddStockInput) { in.Unit = " " }, ErrInvalidUnit},
		"bad source":        {func(in *AddStockInput) { in.Source = &SourceRef{Kind: "EMAIL", ID: 1} }, ErrInvalidSource},
		"unknown warehouse": {func(in *AddStockInput) { in.WarehouseID = 999 }, ErrWarehouseNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := f.svc.AddStock(ctx, tenant, in, "")
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.Transfer(ctx, tenant, TransferInput{
		ProductID: f.fifo.ID, FromWarehouseID: f.main.ID, ToWarehouseID: f.main.ID, Unit: "pcs", Quantity: dec("1"),
	}, "")
	require.ErrorIs(t, err, ErrSameWarehouse)

	_, err = f.svc.AddStock(ctx, shared.Tenant{}, base, "")
	require.ErrorIs(t, err, shared.ErrTenantRequired)
}

func TestTransferIsSymmetric(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.fifo, f.main, "10", "5", march(1))

	res, err := f.svc.Transfer(ctx, tenant, TransferInput{
		ProductID: f.fifo.ID, FromWarehouseID: f.main.ID, ToWarehouseID: f.store.ID, Unit: "pcs", Quantity: dec("4"), Note: "restock",
	}, "tr-1")
	require.NoError(t, err)

	require.Equal(t, MovementTransferOut, res.Outbound.Type)
	require.Equal(t, MovementTransferIn, res.Inbound.Type)
	require.Equal(t, "TRO-20260310-00001", res.Outbound.Reference)
	require.Equal(t, "TRI-20260310-00001", res.Inbound.Reference)
	require.Equal(t, res.Inbound.ID, *res.Outbound.PairedMovementID)
	require.Equal(t, res.Outbound.ID, *res.Inbound.PairedMovementID)
	require.True(t, res.Outbound.UnitCost.Equal(res.Inbound.UnitCost))
	require.True(t, res.Outbound.TotalCost.Equal(res.Inbound.TotalCost))
	require.Equal(t, int64(2), res.Inbound.BranchID)
	require.Equal(t, "transfer to STORE: restock", res.Outbound.Note)

	total, err := f.svc.GetStockLevel(ctx, tenant, StockQuery{ProductID: f.fifo.ID})
	require.NoError(t, err)
	require.True(t, total.Equal(dec("10")))
	store, err := f.svc.GetStockLevel(ctx, tenant, StockQuery{ProductID: f.fifo.ID, WarehouseID: &f.store.ID})
	require.NoError(t, err)
	require.True(t, store.Equal(dec("4")))

	stored := f.repo.movements[res.Outbound.ID]
	require.Equal(t, res.Inbound.ID, *stored.PairedMovementID)

	again, err := f.svc.Transfer(ctx, tenant, TransferInput{
		ProductID: f.fifo.ID, FromWarehouseID: f.main.ID, ToWarehouseID: f.store.ID, Unit: "pcs", Quantity: dec("4"), Note: "restock",
	}, "tr-1")
	require.NoError(t, err)
	require.Equal(t, res.Outbound.ID, again.Outbound.ID)
	require.Equal(t, res.Inbound.ID, again.Inbound.ID)
	require.Len(t, f.repo.movements, 3)
}

func TestTransferShortageWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.receive(t, f.fifo, f.main, "2", "5", march(1))
	_, err := f.svc.Transfer(context.Background(), tenant, TransferInput{
		ProductID: f.fifo.ID, FromWarehouseID: f.main.ID, ToWarehouseID: f.store.ID, Unit: "pcs", Quantity: dec("3"),
	}, "")
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Len(t, f.repo.movements, 1)
	require.Empty(t, f.repo.batchesOf(f.fifo.ID, f.store.ID))
}

func TestAddStockIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := AddStockInput{ProductID: f.avg.ID, WarehouseID: f.main.ID, Unit: "pcs", Quantity: dec("2"), UnitCost: dec("3"), Type: MovementPurchase}

	first, err := f.svc.AddStock(ctx, tenant, in, "rcv-1")
	require.NoError(t, err)
	replayed, err := f.svc.AddStock(ctx, tenant, in, "rcv-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, replayed.ID)
	require.True(t, f.repo.item(f.avg.ID, f.main.ID, "pcs").Quantity.Equal(dec("2")))

	in.Quantity = dec("5")
	_, err = f.svc.AddStock(ctx, tenant, in, "rcv-1")
	require.ErrorIs(t, err, shared.ErrIdempotencyMismatch)
}

func TestConcurrentReceiptsGetUniqueReferences(t *testing.T) {
	f := newFixture(t)
	const n = 25
	refs := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			m, err := f.svc.AddStock(context.Background(), tenant, AddStockInput{
				ProductID: f.fifo.ID, WarehouseID: f.main.ID, Unit: "pcs", Quantity: dec("1"), UnitCost: dec("2"), Type: MovementPurchase,
			}, fmt.Sprintf("k-%d", i))
			refs[i] = m.Reference
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	for _, r := range refs {
		require.False(t, seen[r], r)
		seen[r] = true
	}
	require.True(t, seen["PUR-20260310-00025"])
	item := f.repo.item(f.fifo.ID, f.main.ID, "pcs")
	require.True(t, item.Quantity.Equal(dec("25")))
	require.Len(t, f.repo.batchesOf(f.fifo.ID, f.main.ID), n)
}

func TestReserveAndRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.avg, f.main, "10", "1", march(1))
	in := ReserveInput{ProductID: f.avg.ID, WarehouseID: f.main.ID, Unit: "pcs", Quantity: dec("7")}

	item, err := f.svc.Reserve(ctx, tenant, in)
	require.NoError(t, err)
	require.True(t, item.Reserved.Equal(dec("7")))

	avail, err := f.svc.GetAvailableStock(ctx, tenant, StockQuery{ProductID: f.avg.ID, WarehouseID: &f.main.ID, Unit: "pcs"})
	require.NoError(t, err)
	require.True(t, avail.Equal(dec("3")))

	_, err = f.sell(f.avg, f.main, "4")
	require.ErrorIs(t, err, ErrInsufficientStock)
	_, err = f.svc.Reserve(ctx, tenant, in)
	require.ErrorIs(t, err, ErrInsufficientStock)

	in.Quantity = dec("8")
	_, err = f.svc.Release(ctx, tenant, in)
	require.ErrorIs(t, err, ErrInsufficientReserved)
	in.Quantity = dec("7")
	item, err = f.svc.Release(ctx, tenant, in)
	require.NoError(t, err)
	require.True(t, item.Reserved.IsZero())
	require.Contains(t, f.repo.AuditActions(), "inventory.release")
}

func TestLinkJournalOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.receive(t, f.avg, f.main, "1", "1", march(1))

	linked, err := f.svc.LinkJournal(ctx, tenant, m.ID, 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), *linked.JournalID)
	_, err = f.svc.LinkJournal(ctx, tenant, m.ID, 7)
	require.NoError(t, err)
	_, err = f.svc.LinkJournal(ctx, tenant, m.ID, 8)
	require.ErrorIs(t, err, ErrJournalAlreadyLinked)

	_, err = f.svc.LinkJournal(ctx, shared.Tenant{CompanyID: 2}, m.ID, 9)
	require.ErrorIs(t, err, ErrMovementNotFound)
}

type fakeIntegration struct {
	fail    error
	reject  error
	next    int64
	events  []MovementPostedEvent
	intents []MovementIntent
}

func (h *fakeIntegration) CheckMovement(_ context.Context, _ shared.Tenant, intent MovementIntent) error {
	h.intents = append(h.intents, intent)
	return h.reject
}

func (h *fakeIntegration) HandleMovementPosted(_ context.Context, evt MovementPostedEvent) (int64, error) {
	if h.fail != nil {
		return 0, h.fail
	}
	h.events = append(h.events, evt)
	if shared.RoundMoney(evt.Movement.TotalCost).IsZero() {
		return 0, nil
	}
	h.next++
	return 100 + h.next, nil
}

type countingRecorder struct{ types []string }

func (r *countingRecorder) MovementEvent(t string) { r.types = append(r.types, t) }

func TestIntegrationLinksJournal(t *testing.T) {
	f := newFixture(t)
	hook := &fakeIntegration{}
	rec := &countingRecorder{}
	f.svc.WithIntegration(hook).WithMetrics(rec)

	m := f.receive(t, f.fifo, f.store, "2", "5", march(1))
	require.NotNil(t, m.JournalID)
	require.Equal(t, int64(101), *m.JournalID)
	require.Len(t, hook.events, 1)
	require.Equal(t, int64(2), hook.events[0].Tenant.BranchID)
	require.Equal(t, []string{"PURCHASE"}, rec.types)

	free := f.receive(t, f.fifo, f.store, "1", "0", march(1))
	require.Nil(t, free.JournalID)
}

func TestIntegrationFailureKeepsMovementAndRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hook := &fakeIntegration{fail: errors.New("ledger down")}
	f.svc.WithIntegration(hook)
	in := AddStockInput{ProductID: f.avg.ID, WarehouseID: f.main.ID, Unit: "pcs", Quantity: dec("2"), UnitCost: dec("3"), Type: MovementPurchase}

	m, err := f.svc.AddStock(ctx, tenant, in, "rcv-9")
	require.NoError(t, err)
	require.NotZero(t, m.ID)
	require.Nil(t, m.JournalID)
	require.Nil(t, f.repo.movements[m.ID].JournalID)
	require.True(t, f.repo.item(f.avg.ID, f.main.ID, "pcs").Quantity.Equal(dec("2")))

	_, err = f.svc.RemoveStock(ctx, tenant, RemoveStockInput{
		ProductID: f.avg.ID, WarehouseID: f.main.ID, Unit: "pcs", Quantity: dec("1"), Type: MovementSale,
	}, "iss-9")
	require.NoError(t, err)
	require.True(t, f.repo.item(f.avg.ID, f.main.ID, "pcs").Quantity.Equal(dec("1")))

	hook.fail = nil
	replayed, err := f.svc.AddStock(ctx, tenant, in, "rcv-9")
	require.NoError(t, err)
	require.Equal(t, m.ID, replayed.ID)
	require.NotNil(t, replayed.JournalID)
	require.True(t, f.repo.item(f.avg.ID, f.main.ID, "pcs").Quantity.Equal(dec("1")))

	n, err := f.svc.SyncJournals(ctx, tenant, 0)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRejectedPostingWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.fifo, f.main, "5", "2", march(1))
	closed := shared.Validation("period.not_open", "accounting period does not allow posting")
	hook := &fakeIntegration{reject: closed}
	f.svc.WithIntegration(hook)

	in := AddStockInput{ProductID: f.avg.ID, WarehouseID: f.main.ID, Unit: "pcs", Quantity: dec("10"), UnitCost: dec("3"), Type: MovementPurchase, MovementDate: march(4)}
	for i := 0; i < 2; i++ {
		_, err := f.svc.AddStock(ctx, tenant, in, "")
		require.ErrorIs(t, err, closed)
	}
	_, err := f.svc.AddStock(ctx, tenant, in, "rcv-closed")
	require.ErrorIs(t, err, closed)
	require.Equal(t, MovementPurchase, hook.intents[0].Type)
	require.Equal(t, DirectionIn, hook.intents[0].Direction)
	require.True(t, hook.intents[0].Date.Equal(march(4)))

	_, err = f.sell(f.fifo, f.main, "1")
	require.ErrorIs(t, err, closed)
	_, err = f.svc.Transfer(ctx, tenant, TransferInput{
		ProductID: f.fifo.ID, FromWarehouseID: f.main.ID, ToWarehouseID: f.store.ID, Unit: "pcs", Quantity: dec("2"),
	}, "tr-closed")
	require.ErrorIs(t, err, closed)

	require.Len(t, f.repo.movements, 1)
	require.Empty(t, hook.events)
	require.True(t, f.repo.item(f.avg.ID, f.main.ID, "pcs").Quantity.IsZero())
	require.True(t, f.repo.item(f.fifo.ID, f.main.ID, "pcs").Quantity.Equal(dec("5")))
	require.Empty(t, f.repo.batchesOf(f.fifo.ID, f.store.ID))

	hook.reject = nil
	m, err := f.svc.AddStock(ctx, tenant, in, "rcv-closed")
	require.NoError(t, err)
	require.Equal(t, "PUR-20260304-00001", m.Reference)
	require.NotNil(t, m.JournalID)
	require.True(t, f.repo.item(f.avg.ID, f.main.ID, "pcs").Quantity.Equal(dec("10")))
}

func TestSyncJournalsPostsUnlinked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.avg, f.main, "2", "3", march(1))
	f.receive(t, f.avg, f.main, "1", "4", march(2))

	hook := &fakeIntegration{}
	f.svc.WithIntegration(hook)
	n, err := f.svc.SyncJournals(ctx, tenant, 0)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = f.svc.SyncJournals(ctx, tenant, 0)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSyncJournalsSkipsSubCentTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hook := &fakeIntegration{}
	f.svc.WithIntegration(hook)
	dust := f.receive(t, f.avg, f.main, "1", "0.004", march(1))
	require.Nil(t, dust.JournalID)
	require.True(t, dust.TotalCost.Equal(dec("0.004")))

	pending, err := f.repo.ListUnlinkedMovements(ctx, tenant.CompanyID, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	n, err := f.svc.SyncJournals(ctx, tenant, 0)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Len(t, hook.events, 1)
}

func TestStockCardRunningBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.fifo, f.main, "10", "5", march(1))
	f.receive(t, f.fifo, f.main, "5", "6", march(3))
	_, err := f.sell(f.fifo, f.main, "12")
	require.NoError(t, err)

	card, page, err := f.svc.ListMovements(ctx, tenant, MovementFilter{ProductID: f.fifo.ID, WarehouseID: &f.main.ID})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, card, 3)
	require.True(t, card[0].BalanceQty.Equal(dec("10")))
	require.True(t, card[1].BalanceQty.Equal(dec("15")))
	require.True(t, card[2].BalanceQty.Equal(dec("3")))

	from := march(2)
	card, _, err = f.svc.ListMovements(ctx, tenant, MovementFilter{ProductID: f.fifo.ID, From: &from})
	require.NoError(t, err)
	require.Len(t, card, 2)
	require.True(t, card[0].BalanceQty.Equal(dec("15")))
}

func TestReconcileLayersReportsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, f.fifo, f.main, "10", "5", march(1))
	_, err := f.sell(f.fifo, f.main, "4")
	require.NoError(t, err)

	drift, err := f.svc.ReconcileLayers(ctx, tenant)
	require.NoError(t, err)
	require.Empty(t, drift)

	b := f.repo.batchesOf(f.fifo.ID, f.main.ID)[0]
	b.RemainingQty = dec("5")
	f.repo.batches[b.ID] = b
	drift, err = f.svc.ReconcileLayers(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	require.True(t, drift[0].Quantity.Equal(dec("6")))
	require.True(t, drift[0].LayerQty.Equal(dec("5")))
}
