// Package inventory locates available stock for an item: bins for plain
// items, serial numbers, batches and serials within batches, always ordered
// first-in (or first-expired) first-out.
package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Variant selects the sourcing strategy for an item.
type Variant int

const (
	// Plain items are tracked by warehouse bin only.
	Plain Variant = iota
	// Serialized items are tracked per serial number.
	Serialized
	// Batched items are tracked per batch.
	Batched
	// SerializedBatched items carry serial numbers inside batches.
	SerializedBatched
)

// VariantFor maps item master flags to a sourcing variant.
func VariantFor(hasSerialNo, hasBatchNo bool) Variant {
	switch {
	case hasSerialNo && hasBatchNo:
		return SerializedBatched
	case hasSerialNo:
		return Serialized
	case hasBatchNo:
		return Batched
	default:
		return Plain
	}
}

func (v Variant) String() string {
	switch v {
	case Serialized:
		return "serialized"
	case Batched:
		return "batched"
	case SerializedBatched:
		return "serialized_batched"
	default:
		return "plain"
	}
}

// Candidate is one place stock can be picked from, in stock units.
type Candidate struct {
	WarehouseID int64           `json:"warehouse_id" db:"warehouse_id"`
	Qty         decimal.Decimal `json:"qty" db:"qty"`
	BatchNo     string          `json:"batch_no,omitempty" db:"batch_no"`
	SerialNos   []string        `json:"serial_nos,omitempty" db:"-"`
}

// ShortageWarning reports that less stock was found than required. It is
// informational; allocation proceeds with what is available.
type ShortageWarning struct {
	ItemCode  string          `json:"item_code"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

func (w ShortageWarning) String() string {
	return fmt.Sprintf("%s units of Item %s is not available.", w.Shortfall.String(), w.ItemCode)
}

// Query describes one sourcing request. Warehouses empty means every
// warehouse of the company.
type Query struct {
	ItemCode    string
	CompanyID   int64
	Warehouses  []int64
	RequiredQty decimal.Decimal
}

// SerialFilter narrows the serial number registry.
type SerialFilter struct {
	ItemCode    string
	CompanyID   int64
	Warehouses  []int64
	WarehouseID int64
	BatchNo     string
	Limit       int
}

// SerialNo is a registered serial number with its current warehouse.
type SerialNo struct {
	SerialNo    string `db:"serial_no"`
	WarehouseID int64  `db:"warehouse_id"`
}

// BatchFilter narrows the batch ledger query.
type BatchFilter struct {
	ItemCode   string
	CompanyID  int64
	Warehouses []int64
	Today      time.Time
}
