// Package delivery derives Delivery Note drafts from picked pick lists.
package delivery

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// DELIVERY NOTE DRAFT
// ============================================================================

// Status of a stored delivery note.
type Status string

const (
	StatusDraft Status = "DRAFT"
)

// DeliveryNoteDraft is one delivery note derived from a pick list. Notes
// built from sales orders carry the customer of those orders; the direct
// issue note carries the pick list customer, if any.
type DeliveryNoteDraft struct {
	ID            int64              `json:"id,omitempty"`
	Name          string             `json:"name,omitempty"`
	PickListID    int64              `json:"pick_list_id"`
	CompanyID     int64              `json:"company_id"`
	CustomerID    int64              `json:"customer_id,omitempty"`
	ProjectID     int64              `json:"project_id,omitempty"`
	SalesOrderIDs []int64            `json:"sales_order_ids,omitempty"`
	Status        Status             `json:"status"`
	Items         []DeliveryNoteItem `json:"items"`
	CreatedAt     time.Time          `json:"created_at,omitempty"`
}

// DirectIssue reports whether the note covers rows without a sales order.
func (d DeliveryNoteDraft) DirectIssue() bool { return len(d.SalesOrderIDs) == 0 }

// DeliveryNoteItem is one line of a delivery note.
type DeliveryNoteItem struct {
	Idx              int             `json:"idx"`
	ItemCode         string          `json:"item_code"`
	ItemName         string          `json:"item_name,omitempty"`
	UOM              string          `json:"uom"`
	StockUOM         string          `json:"stock_uom"`
	ConversionFactor decimal.Decimal `json:"conversion_factor"`
	Qty              decimal.Decimal `json:"qty"`
	StockQty         decimal.Decimal `json:"stock_qty"`
	Rate             decimal.Decimal `json:"rate"`
	WarehouseID      int64           `json:"warehouse_id"`
	BatchNo          string          `json:"batch_no,omitempty"`
	SerialNos        []string        `json:"serial_nos,omitempty"`
	SalesOrderID     int64           `json:"against_sales_order,omitempty"`
	SalesOrderItemID int64           `json:"so_detail,omitempty"`
	CostCenterID     int64           `json:"cost_center_id,omitempty"`
}

// ============================================================================
// SALES ORDER VIEW
// ============================================================================

// SalesOrder is the header data a delivery note inherits.
type SalesOrder struct {
	ID         int64 `db:"id"`
	CustomerID int64 `db:"customer_id"`
	ProjectID  int64 `db:"project_id"`
	CompanyID  int64 `db:"company_id"`
}

// SalesOrderLine is the line data a delivery note item inherits.
type SalesOrderLine struct {
	ID                  int64           `db:"id"`
	SalesOrderID        int64           `db:"sales_order_id"`
	ItemCode            string          `db:"item_code"`
	UOM                 string          `db:"uom"`
	ConversionFactor    decimal.Decimal `db:"conversion_factor"`
	Rate                decimal.Decimal `db:"rate"`
	Qty                 decimal.Decimal `db:"qty"`
	DeliveredQty        decimal.Decimal `db:"delivered_qty"`
	DeliveredBySupplier bool            `db:"delivered_by_supplier"`
}

// Deliverable reports whether the line still has quantity to ship from stock.
func (l SalesOrderLine) Deliverable() bool {
	return l.DeliveredQty.Abs().LessThan(l.Qty.Abs()) && !l.DeliveredBySupplier
}

// CostCenterSource names where an item default is defined.
type CostCenterSource string

const (
	CostCenterItem      CostCenterSource = "Item"
	CostCenterItemGroup CostCenterSource = "Item Group"
)
