package warehouses

import (
	"time"
)

// Warehouse represents a node of the warehouse tree. Group warehouses only
// aggregate their children and never hold stock themselves.
type Warehouse struct {
	ID        int64     `json:"id" db:"id"`
	CompanyID int64     `json:"company_id" db:"company_id"`
	ParentID  *int64    `json:"parent_id,omitempty" db:"parent_id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	IsGroup   bool      `json:"is_group" db:"is_group"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
