package inventory

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Allocation is the part of a removal taken from one batch.
type Allocation struct {
	BatchID  int64
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
}

// RemovalCost is the valuation of an outbound quantity.
type RemovalCost struct {
	Quantity decimal.Decimal
	// Total is exact; it is rounded only when a journal is built.
	Total       decimal.Decimal
	UnitCost    decimal.Decimal
	Allocations []Allocation
	// Uncovered is the quantity no layer could serve, costed at the average cost.
	Uncovered decimal.Decimal
}

// CostForRemoval values qty leaving a stock item.
// FIFO walks open batches oldest first, LIFO newest first, and the unit cost is the
// quantity weighted cost of every batch touched. Weighted average uses the item's avg cost.
func CostForRemoval(method ValuationMethod, item StockItem, batches []StockBatch, qty decimal.Decimal) (RemovalCost, error) {
	if !qty.IsPositive() {
		return RemovalCost{}, ErrInvalidQuantity
	}
	if !method.UsesLayers() {
		return RemovalCost{
			Quantity:  qty,
			Total:     qty.Mul(item.AvgCost),
			UnitCost:  shared.RoundCost(item.AvgCost),
			Uncovered: decimal.Zero,
		}, nil
	}

	out := RemovalCost{Quantity: qty, Total: decimal.Zero}
	need := qty
	for _, b := range orderBatches(method, batches) {
		if !need.IsPositive() {
			break
		}
		if !b.RemainingQty.IsPositive() {
			continue
		}
		take := decimal.Min(need, b.RemainingQty)
		out.Allocations = append(out.Allocations, Allocation{BatchID: b.ID, Quantity: take, UnitCost: b.UnitCost})
		out.Total = out.Total.Add(take.Mul(b.UnitCost))
		need = need.Sub(take)
	}
	out.Uncovered = need
	if need.IsPositive() {
		out.Total = out.Total.Add(need.Mul(item.AvgCost))
	}
	out.UnitCost = shared.RoundCost(out.Total.Div(qty))
	return out, nil
}

// ConsumeBatches applies allocations to the batches they were computed from and returns the
// touched batches. Costing and depletion therefore share one ordering.
func ConsumeBatches(batches []StockBatch, allocs []Allocation) ([]StockBatch, error) {
	index := make(map[int64]int, len(batches))
	for i, b := range batches {
		index[b.ID] = i
	}
	touched := make([]StockBatch, 0, len(allocs))
	for _, a := range allocs {
		i, ok := index[a.BatchID]
		if !ok {
			return nil, ErrBatchOverconsumed.With("batch %d not locked", a.BatchID)
		}
		if err := batches[i].Consume(a.Quantity); err != nil {
			return nil, err
		}
		touched = append(touched, batches[i])
	}
	return touched, nil
}

// WeightedAverage is the moving average after receiving qty at cost.
// Stock at or below zero carries no usable cost basis, so the receipt cost wins.
func WeightedAverage(oldQty, oldAvg, qty, cost decimal.Decimal) decimal.Decimal {
	newQty := oldQty.Add(qty)
	if !oldQty.IsPositive() || !newQty.IsPositive() {
		return shared.RoundCost(cost)
	}
	value := oldQty.Mul(oldAvg).Add(qty.Mul(cost))
	return shared.RoundCost(value.Div(newQty))
}

// LayerAverage is the value weighted cost of the open layers, or fallback when none remain.
func LayerAverage(batches []StockBatch, fallback decimal.Decimal) decimal.Decimal {
	qty, value := decimal.Zero, decimal.Zero
	for _, b := range batches {
		if !b.RemainingQty.IsPositive() {
			continue
		}
		qty = qty.Add(b.RemainingQty)
		value = value.Add(b.RemainingQty.Mul(b.UnitCost))
	}
	if !qty.IsPositive() {
		return fallback
	}
	return shared.RoundCost(value.Div(qty))
}

func orderBatches(method ValuationMethod, batches []StockBatch) []StockBatch {
	out := append([]StockBatch(nil), batches...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ReceivedDate.Equal(b.ReceivedDate) {
			if method == ValuationLIFO {
				return a.ReceivedDate.After(b.ReceivedDate)
			}
			return a.ReceivedDate.Before(b.ReceivedDate)
		}
		if method == ValuationLIFO {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return out
}
