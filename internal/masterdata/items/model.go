// Package items exposes the item and unit-of-measure master records the
// fulfillment flow consults: tracking flags, stock units and conversions.
package items

import "github.com/shopspring/decimal"

// Item is the subset of the item master used while picking.
type Item struct {
	Code        string `json:"code" db:"code"`
	Name        string `json:"name" db:"name"`
	ItemGroup   string `json:"item_group" db:"item_group"`
	StockUOM    string `json:"stock_uom" db:"stock_uom"`
	HasSerialNo bool   `json:"has_serial_no" db:"has_serial_no"`
	HasBatchNo  bool   `json:"has_batch_no" db:"has_batch_no"`
}

// UOM describes a unit of measure.
type UOM struct {
	Name              string `json:"name" db:"name"`
	MustBeWholeNumber bool   `json:"must_be_whole_number" db:"must_be_whole_number"`
}

// Details is returned by the item details lookup.
type Details struct {
	ItemCode         string          `json:"item_code"`
	StockUOM         string          `json:"stock_uom"`
	UOM              string          `json:"uom"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
}
