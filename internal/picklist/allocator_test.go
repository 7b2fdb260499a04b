package picklist

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/uom"
)

var unitConv = uom.Conversion{Factor: decimal.NewFromInt(1)}

func line(item string, stockQty float64) Location {
	return Location{ItemCode: item, UOM: "Nos", StockUOM: "Nos", ConversionFactor: decimal.NewFromInt(1), Qty: dec(stockQty), StockQty: dec(stockQty)}
}

func TestAllocateSplitsAcrossWarehouses(t *testing.T) {
	a := newAllocator()
	a.load("X", []inventory.Candidate{{WarehouseID: 1, Qty: dec(5)}, {WarehouseID: 2, Qty: dec(3)}})

	rows := a.allocate(line("X", 6), unitConv, false)
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0].WarehouseID)
	requireDecimal(t, 5, rows[0].StockQty)
	require.Equal(t, int64(2), rows[1].WarehouseID)
	requireDecimal(t, 1, rows[1].StockQty)

	left := a.queues["X"].Remaining()
	require.Len(t, left, 1)
	require.Equal(t, int64(2), left[0].WarehouseID)
	requireDecimal(t, 2, left[0].Qty)
}

func TestAllocateNeverExceedsRequest(t *testing.T) {
	cases := []struct {
		name      string
		available []float64
		request   float64
	}{
		{"exact", []float64{2, 3}, 5},
		{"surplus", []float64{4, 4, 4}, 7},
		{"short", []float64{1, 2}, 6},
		{"fractional", []float64{0.5, 2.25}, 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newAllocator()
			var cands []inventory.Candidate
			available := decimal.Zero
			for i, qty := range tc.available {
				cands = append(cands, inventory.Candidate{WarehouseID: int64(i + 1), Qty: dec(qty)})
				available = available.Add(dec(qty))
			}
			a.load("X", cands)

			rows := a.allocate(line("X", tc.request), unitConv, false)
			allocated := decimal.Zero
			for _, row := range rows {
				allocated = allocated.Add(row.StockQty)
			}
			require.True(t, allocated.LessThanOrEqual(dec(tc.request)))
			if available.GreaterThanOrEqual(dec(tc.request)) {
				require.True(t, allocated.Equal(dec(tc.request)), "allocated %s", allocated)
			}
		})
	}
}

// A partly consumed location goes back to the front of the queue, so the
// next line of the same item keeps picking from it before moving on. This
// prefers locality over a strict global FIFO order across lines.
func TestAllocateRequeuesPartialLocationAtFront(t *testing.T) {
	a := newAllocator()
	a.load("X", []inventory.Candidate{{WarehouseID: 1, Qty: dec(10)}, {WarehouseID: 2, Qty: dec(5)}})

	first := a.allocate(line("X", 4), unitConv, false)
	second := a.allocate(line("X", 3), unitConv, false)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	require.Equal(t, int64(1), first[0].WarehouseID)
	require.Equal(t, int64(1), second[0].WarehouseID)

	left := a.queues["X"].Remaining()
	require.Equal(t, int64(1), left[0].WarehouseID)
	requireDecimal(t, 3, left[0].Qty)
	require.Equal(t, int64(2), left[1].WarehouseID)
}

func TestAllocateWholeNumberUOM(t *testing.T) {
	a := newAllocator()
	a.load("BOX", []inventory.Candidate{{WarehouseID: 1, Qty: dec(100)}})
	conv := uom.Conversion{Factor: dec(3), MustBeWholeNumber: true}
	req := Location{ItemCode: "BOX", UOM: "Box", ConversionFactor: dec(3), Qty: dec(2.5), StockQty: dec(7.5)}

	rows := a.allocate(req, conv, false)
	require.Len(t, rows, 1)
	requireDecimal(t, 2, rows[0].Qty)
	requireDecimal(t, 6, rows[0].StockQty)
}

func TestAllocateStopsWhenRoundingLeavesNothing(t *testing.T) {
	a := newAllocator()
	a.load("BOX", []inventory.Candidate{{WarehouseID: 1, Qty: dec(2)}, {WarehouseID: 2, Qty: dec(9)}})
	conv := uom.Conversion{Factor: dec(3), MustBeWholeNumber: true}
	req := Location{ItemCode: "BOX", UOM: "Box", ConversionFactor: dec(3), Qty: dec(1), StockQty: dec(3)}

	rows := a.allocate(req, conv, false)
	require.Empty(t, rows)
	left := a.queues["BOX"].Remaining()
	require.Len(t, left, 2)
	requireDecimal(t, 2, left[0].Qty)
}

func TestAllocateSerialsMatchStockQty(t *testing.T) {
	a := newAllocator()
	a.load("SER", []inventory.Candidate{
		{WarehouseID: 1, Qty: dec(3), SerialNos: []string{"S1", "S2", "S3"}},
		{WarehouseID: 2, Qty: dec(2), SerialNos: []string{"S4", "S5"}},
	})

	rows := a.allocate(line("SER", 4), unitConv, false)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"S1", "S2", "S3"}, rows[0].SerialNos)
	require.Equal(t, []string{"S4"}, rows[1].SerialNos)
	for _, row := range rows {
		require.True(t, decimal.NewFromInt(int64(len(row.SerialNos))).Equal(row.StockQty))
	}

	rest := a.allocate(line("SER", 1), unitConv, false)
	require.Len(t, rest, 1)
	require.Equal(t, []string{"S5"}, rest[0].SerialNos)
}

func TestAllocateSerialsWithFractionalRequest(t *testing.T) {
	a := newAllocator()
	a.load("SER", []inventory.Candidate{{WarehouseID: 1, Qty: dec(3), SerialNos: []string{"S1", "S2", "S3"}}})

	rows := a.allocate(line("SER", 2.5), unitConv, false)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].SerialNos, 2)
	requireDecimal(t, 2, rows[0].StockQty)
}

func TestAllocateZeroQtyLine(t *testing.T) {
	a := newAllocator()
	a.load("X", []inventory.Candidate{{WarehouseID: 1, Qty: dec(5)}})
	require.Empty(t, a.allocate(line("X", 0), unitConv, false))
	require.Len(t, a.queues["X"].Remaining(), 1)
}

func TestAllocateSubmittedZeroRowUsesTransactionQty(t *testing.T) {
	a := newAllocator()
	a.load("X", []inventory.Candidate{{WarehouseID: 1, Qty: dec(50)}})
	req := Location{ItemCode: "X", UOM: "Box", ConversionFactor: dec(12), Qty: dec(2), StockQty: decimal.Zero}

	rows := a.allocate(req, uom.Conversion{Factor: dec(12)}, true)
	require.Len(t, rows, 1)
	requireDecimal(t, 24, rows[0].StockQty)
	requireDecimal(t, 2, rows[0].Qty)
	requireDecimal(t, 24, rows[0].PickedQty)
}
