package picklist

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
	"github.com/odyssey-erp/fulfillment/internal/uom"
)

type aggregateKey struct {
	itemCode  string
	uom       string
	reference string
}

// aggregation is the output of aggregate: request rows merged per
// (item, uom, originating line) and the per-item stock qty totals that size
// each sourcing query.
type aggregation struct {
	lines      []Location
	itemTotals map[string]decimal.Decimal
}

func aggregate(rows []Location, submitted bool) (aggregation, error) {
	out := aggregation{itemTotals: make(map[string]decimal.Decimal)}
	index := make(map[aggregateKey]int)
	for i, row := range rows {
		if strings.TrimSpace(row.ItemCode) == "" {
			idx := row.Idx
			if idx == 0 {
				idx = i + 1
			}
			return aggregation{}, shared.NewValidationError("", "Row #%d: Item Code is Mandatory", idx)
		}
		key := aggregateKey{itemCode: row.ItemCode, uom: row.UOM, reference: row.reference()}
		if pos, ok := index[key]; ok {
			out.lines[pos].Qty = out.lines[pos].Qty.Add(row.Qty)
			out.lines[pos].StockQty = out.lines[pos].StockQty.Add(row.StockQty)
		} else {
			row.ID = 0
			row.Idx = 0
			row.SerialNos = nil
			row.BatchNo = ""
			row.WarehouseID = 0
			index[key] = len(out.lines)
			out.lines = append(out.lines, row)
		}
		out.itemTotals[row.ItemCode] = out.itemTotals[row.ItemCode].Add(requiredStockQty(row, submitted))
	}
	return out, nil
}

// requiredStockQty is the stock qty a row asks for. A submitted row reset to
// zero stock qty after a stock-out asks for its transaction qty again.
func requiredStockQty(row Location, submitted bool) decimal.Decimal {
	if submitted && row.StockQty.IsZero() {
		return uom.ToStockQty(row.Qty, row.ConversionFactor)
	}
	return row.StockQty
}

func validateForQty(pl *PickList) error {
	if pl.Purpose == PurposeMaterialTransferForManufacture && !pl.ForQty.IsPositive() {
		return shared.NewValidationError("", "Qty of Finished Goods Item should be greater than 0.")
	}
	return nil
}
