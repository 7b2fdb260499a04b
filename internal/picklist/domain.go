// Package picklist owns the Pick List document: aggregation of request rows,
// allocation of stock locations, submit-time validation and the picked
// quantity write-back onto sales order lines.
package picklist

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
)

// Status enumerates pick list lifecycle states.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSubmitted Status = "SUBMITTED"
	StatusCancelled Status = "CANCELLED"
)

// Purpose selects the downstream document a pick list feeds.
type Purpose string

const (
	PurposeDelivery                       Purpose = "Delivery"
	PurposeMaterialTransfer               Purpose = "Material Transfer"
	PurposeMaterialTransferForManufacture Purpose = "Material Transfer for Manufacture"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeDelivery, PurposeMaterialTransfer, PurposeMaterialTransferForManufacture:
		return true
	}
	return false
}

// PickList is the document header with its location rows.
type PickList struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	CompanyID         int64           `json:"company_id"`
	Purpose           Purpose         `json:"purpose"`
	CustomerID        int64           `json:"customer_id,omitempty"`
	ParentWarehouseID int64           `json:"parent_warehouse_id,omitempty"`
	WorkOrderID       int64           `json:"work_order_id,omitempty"`
	MaterialRequestID int64           `json:"material_request_id,omitempty"`
	ForQty            decimal.Decimal `json:"for_qty"`
	GroupSameItems    bool            `json:"group_same_items"`
	Status            Status          `json:"status"`
	Locations         []Location      `json:"locations"`
	CreatedBy         int64           `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsSubmitted reports whether the document has been submitted.
func (p *PickList) IsSubmitted() bool { return p.Status == StatusSubmitted }

// Location is one pick list row. Before allocation it carries the requested
// qty; afterwards it names the warehouse, batch and serials to pick from.
type Location struct {
	ID                    int64           `json:"id,omitempty"`
	Idx                   int             `json:"idx"`
	ItemCode              string          `json:"item_code"`
	ItemName              string          `json:"item_name,omitempty"`
	ItemGroup             string          `json:"item_group,omitempty"`
	UOM                   string          `json:"uom"`
	StockUOM              string          `json:"stock_uom"`
	ConversionFactor      decimal.Decimal `json:"conversion_factor"`
	Qty                   decimal.Decimal `json:"qty"`
	StockQty              decimal.Decimal `json:"stock_qty"`
	PickedQty             decimal.Decimal `json:"picked_qty"`
	WarehouseID           int64           `json:"warehouse_id,omitempty"`
	BatchNo               string          `json:"batch_no,omitempty"`
	SerialNos             []string        `json:"serial_nos,omitempty"`
	SalesOrderID          int64           `json:"sales_order_id,omitempty"`
	SalesOrderItemID      int64           `json:"sales_order_item_id,omitempty"`
	MaterialRequestID     int64           `json:"material_request_id,omitempty"`
	MaterialRequestItemID int64           `json:"material_request_item_id,omitempty"`
}

// reference names the order line a row originates from.
func (l Location) reference() string {
	switch {
	case l.SalesOrderItemID != 0:
		return fmt.Sprintf("so:%d", l.SalesOrderItemID)
	case l.MaterialRequestItemID != 0:
		return fmt.Sprintf("mr:%d", l.MaterialRequestItemID)
	}
	return ""
}

// SalesOrder is the slice of a sales order header the pick list touches.
type SalesOrder struct {
	ID         int64           `json:"id" db:"id"`
	DocNumber  string          `json:"doc_number" db:"doc_number"`
	CustomerID int64           `json:"customer_id" db:"customer_id"`
	PerPicked  decimal.Decimal `json:"per_picked" db:"per_picked"`
}

// SalesOrderLine is the slice of a sales order line the write-back touches.
type SalesOrderLine struct {
	ID           int64           `db:"id"`
	SalesOrderID int64           `db:"sales_order_id"`
	ItemCode     string          `db:"item_code"`
	Qty          decimal.Decimal `db:"qty"`
	StockQty     decimal.Decimal `db:"stock_qty"`
	PickedQty    decimal.Decimal `db:"picked_qty"`
}

// AllocationResult reports what a reallocation pass produced besides rows.
type AllocationResult struct {
	Warnings   []inventory.ShortageWarning `json:"warnings,omitempty"`
	OutOfStock bool                        `json:"out_of_stock"`
}

// Message summarises the result for API callers.
func (r AllocationResult) Message() string {
	if r.OutOfStock {
		return "Please Restock Items and Update the Pick List to continue. To discontinue, cancel the Pick List."
	}
	return ""
}
