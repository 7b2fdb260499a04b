// Package stockentry derives the Stock Entry that moves picked stock for
// material transfer pick lists.
package stockentry

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockEntryDraft is the stock entry derived from a pick list.
type StockEntryDraft struct {
	ID                 int64            `json:"id,omitempty"`
	Name               string           `json:"name,omitempty"`
	PickListID         int64            `json:"pick_list_id"`
	Purpose            string           `json:"purpose"`
	StockEntryType     string           `json:"stock_entry_type"`
	CompanyID          int64            `json:"company_id"`
	WorkOrderID        int64            `json:"work_order_id,omitempty"`
	MaterialRequestID  int64            `json:"material_request_id,omitempty"`
	FromBOM            bool             `json:"from_bom"`
	BOMNo              string           `json:"bom_no,omitempty"`
	UseMultiLevelBOM   bool             `json:"use_multi_level_bom"`
	FGCompletedQty     decimal.Decimal  `json:"fg_completed_qty"`
	InspectionRequired bool             `json:"inspection_required"`
	ProjectID          int64            `json:"project_id,omitempty"`
	ToWarehouseID      int64            `json:"to_warehouse_id,omitempty"`
	Items              []StockEntryItem `json:"items"`
	CreatedAt          time.Time        `json:"created_at,omitempty"`
}

// StockEntryItem moves one picked row from its source warehouse.
type StockEntryItem struct {
	Idx                   int             `json:"idx"`
	ItemCode              string          `json:"item_code"`
	SourceWarehouseID     int64           `json:"s_warehouse"`
	TargetWarehouseID     int64           `json:"t_warehouse,omitempty"`
	Qty                   decimal.Decimal `json:"qty"`
	TransferQty           decimal.Decimal `json:"transfer_qty"`
	UOM                   string          `json:"uom"`
	StockUOM              string          `json:"stock_uom"`
	ConversionFactor      decimal.Decimal `json:"conversion_factor"`
	BatchNo               string          `json:"batch_no,omitempty"`
	SerialNos             []string        `json:"serial_nos,omitempty"`
	MaterialRequestID     int64           `json:"material_request,omitempty"`
	MaterialRequestItemID int64           `json:"material_request_item,omitempty"`
}

// WorkOrder is the slice of a work order a manufacture transfer inherits.
type WorkOrder struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	CompanyID        int64     `json:"company_id" db:"company_id"`
	BOMNo            string    `json:"bom_no" db:"bom_no"`
	UseMultiLevelBOM bool      `json:"use_multi_level_bom" db:"use_multi_level_bom"`
	WIPWarehouseID   int64     `json:"wip_warehouse_id" db:"wip_warehouse_id"`
	SkipTransfer     bool      `json:"skip_transfer" db:"skip_transfer"`
	ProjectID        int64     `json:"project_id" db:"project_id"`
	PlannedStartDate time.Time `json:"planned_start_date" db:"planned_start_date"`
}

// PendingWorkOrder is a work order that still needs material transferred.
type PendingWorkOrder struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	CompanyID        int64     `json:"company_id" db:"company_id"`
	PlannedStartDate time.Time `json:"planned_start_date" db:"planned_start_date"`
}

// WorkOrderFilter narrows the pending work order search.
type WorkOrderFilter struct {
	CompanyID int64
	Query     string
	Offset    int
	Limit     int
}
