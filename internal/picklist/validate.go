package picklist

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/masterdata/items"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// ValidateBeforeSubmit defaults unpicked rows to their stock qty and checks
// that serialized rows carry exactly one serial number per picked unit.
// catalog maps item codes to their master record.
func ValidateBeforeSubmit(pl *PickList, catalog map[string]items.Item) error {
	for i := range pl.Locations {
		row := &pl.Locations[i]
		if row.PickedQty.IsZero() {
			row.PickedQty = row.StockQty
		}
		if !catalog[row.ItemCode].HasSerialNo {
			continue
		}
		if len(row.SerialNos) == 0 {
			return shared.NewValidationError("Serial Nos Required",
				"Row #%d: %s does not have any available serial numbers in warehouse %d", row.Idx, row.ItemCode, row.WarehouseID)
		}
		if !decimal.NewFromInt(int64(len(row.SerialNos))).Equal(row.PickedQty) {
			return shared.NewValidationError("Quantity Mismatch",
				"For item %s at row %d, count of serial numbers does not match with the picked quantity", row.ItemCode, row.Idx)
		}
	}
	return nil
}

// ValidateHasLocations rejects documents without rows.
func ValidateHasLocations(pl *PickList) error {
	if len(pl.Locations) == 0 {
		return shared.NewValidationError("", "Add items in the Item Locations table")
	}
	return nil
}

type itemWarehouse struct {
	itemCode    string
	warehouseID int64
}

// GroupSimilarItems returns the rows merged per (item, warehouse) for
// printing. The first row of each group carries the summed quantities and
// rows are renumbered from one.
func GroupSimilarItems(rows []Location) []Location {
	type totals struct {
		qty    decimal.Decimal
		picked decimal.Decimal
	}
	sums := make(map[itemWarehouse]*totals)
	var order []itemWarehouse
	first := make(map[itemWarehouse]Location)
	for _, row := range rows {
		key := itemWarehouse{itemCode: row.ItemCode, warehouseID: row.WarehouseID}
		t, ok := sums[key]
		if !ok {
			t = &totals{}
			sums[key] = t
			order = append(order, key)
			first[key] = row
		}
		t.qty = t.qty.Add(row.Qty)
		t.picked = t.picked.Add(row.PickedQty)
	}
	out := make([]Location, 0, len(order))
	for i, key := range order {
		row := first[key]
		row.Qty = sums[key].qty
		row.StockQty = sums[key].qty
		row.PickedQty = sums[key].picked
		row.Idx = i + 1
		out = append(out, row)
	}
	return out
}
