package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func layers() []StockBatch {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []StockBatch{
		{ID: 2, ReceivedDate: day.AddDate(0, 0, 1), InitialQty: dec("10"), RemainingQty: dec("10"), UnitCost: dec("8")},
		{ID: 1, ReceivedDate: day, InitialQty: dec("10"), RemainingQty: dec("10"), UnitCost: dec("5")},
	}
}

func TestCostForRemovalFIFOSpansBatches(t *testing.T) {
	batches := layers()
	cost, err := CostForRemoval(ValuationFIFO, StockItem{AvgCost: dec("6.5")}, batches, dec("15"))
	require.NoError(t, err)
	require.True(t, cost.UnitCost.Equal(dec("6")), cost.UnitCost.String())
	require.True(t, cost.Total.Equal(dec("90")))
	require.Len(t, cost.Allocations, 2)
	require.Equal(t, int64(1), cost.Allocations[0].BatchID)
	require.True(t, cost.Uncovered.IsZero())

	touched, err := ConsumeBatches(batches, cost.Allocations)
	require.NoError(t, err)
	require.Len(t, touched, 2)
	remaining := map[int64]decimal.Decimal{}
	for _, b := range batches {
		remaining[b.ID] = b.RemainingQty
	}
	require.True(t, remaining[1].IsZero())
	require.True(t, remaining[2].Equal(dec("5")))
	require.True(t, LayerAverage(batches, decimal.Zero).Equal(dec("8")))
}

func TestCostForRemovalLIFOTakesNewestFirst(t *testing.T) {
	cost, err := CostForRemoval(ValuationLIFO, StockItem{}, layers(), dec("15"))
	require.NoError(t, err)
	require.True(t, cost.UnitCost.Equal(dec("7")), cost.UnitCost.String())
	require.Equal(t, int64(2), cost.Allocations[0].BatchID)
}

func TestCostForRemovalWeightedAverageSkipsLayers(t *testing.T) {
	cost, err := CostForRemoval(ValuationWeightedAverage, StockItem{AvgCost: dec("6")}, layers(), dec("3"))
	require.NoError(t, err)
	require.True(t, cost.UnitCost.Equal(dec("6")))
	require.True(t, cost.Total.Equal(dec("18")))
	require.Empty(t, cost.Allocations)
}

func TestCostForRemovalUncoveredUsesAverage(t *testing.T) {
	batches := []StockBatch{{ID: 1, RemainingQty: dec("5"), UnitCost: dec("5")}}
	cost, err := CostForRemoval(ValuationFIFO, StockItem{AvgCost: dec("4")}, batches, dec("8"))
	require.NoError(t, err)
	require.True(t, cost.Uncovered.Equal(dec("3")))
	require.True(t, cost.Total.Equal(dec("37")))
	require.True(t, cost.UnitCost.Equal(dec("4.625")))
}

func TestCostForRemovalKeepsPrecision(t *testing.T) {
	batches := []StockBatch{
		{ID: 1, RemainingQty: dec("1"), UnitCost: dec("1")},
		{ID: 2, RemainingQty: dec("2"), UnitCost: dec("2")},
	}
	cost, err := CostForRemoval(ValuationFIFO, StockItem{}, batches, dec("3"))
	require.NoError(t, err)
	require.True(t, cost.Total.Equal(dec("5")))
	require.Equal(t, "1.666667", cost.UnitCost.StringFixed(6))
}

func TestCostForRemovalTieBreaksOnID(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	batches := []StockBatch{
		{ID: 9, ReceivedDate: day, RemainingQty: dec("1"), UnitCost: dec("9")},
		{ID: 3, ReceivedDate: day, RemainingQty: dec("1"), UnitCost: dec("3")},
	}
	fifo, err := CostForRemoval(ValuationFIFO, StockItem{}, batches, dec("1"))
	require.NoError(t, err)
	require.True(t, fifo.UnitCost.Equal(dec("3")))
	lifo, err := CostForRemoval(ValuationLIFO, StockItem{}, batches, dec("1"))
	require.NoError(t, err)
	require.True(t, lifo.UnitCost.Equal(dec("9")))
}

func TestWeightedAverage(t *testing.T) {
	first := WeightedAverage(decimal.Zero, decimal.Zero, dec("10"), dec("4"))
	require.True(t, first.Equal(dec("4")))
	second := WeightedAverage(dec("10"), first, dec("10"), dec("8"))
	require.True(t, second.Equal(dec("6")))
	require.True(t, WeightedAverage(dec("-2"), dec("3"), dec("5"), dec("7")).Equal(dec("7")))
}

func TestBatchConsumeNeverNegative(t *testing.T) {
	b := StockBatch{ID: 1, RemainingQty: dec("2")}
	require.ErrorIs(t, b.Consume(dec("3")), ErrBatchOverconsumed)
	require.True(t, b.RemainingQty.Equal(dec("2")))
	require.NoError(t, b.Consume(dec("2")))
	require.True(t, b.RemainingQty.IsZero())
}
