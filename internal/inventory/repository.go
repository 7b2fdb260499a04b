package inventory

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
)

// noExpiry stands in for batches without an expiry date so they sort last.
const noExpiry = "2200-01-01"

// Repository reads bins, serial numbers and the batch ledger from PostgreSQL.
type Repository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// BinLocations lists warehouses holding positive stock of a plain item,
// oldest bin first.
func (r *Repository) BinLocations(ctx context.Context, itemCode string, companyID int64, warehouses []int64) ([]Candidate, error) {
	q := r.builder.Select("b.warehouse_id", "b.actual_qty AS qty").
		From("bins b").
		Join("warehouses w ON w.id = b.warehouse_id").
		Where(squirrel.Eq{"b.item_code": itemCode, "w.company_id": companyID}).
		Where(squirrel.Gt{"b.actual_qty": 0}).
		OrderBy("b.created_at", "b.id")
	if len(warehouses) > 0 {
		q = q.Where(squirrel.Eq{"b.warehouse_id": warehouses})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bin query: %w", err)
	}
	var out []Candidate
	if err := pgxscan.Select(ctx, r.pool, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("bin locations: %w", err)
	}
	return out, nil
}

// AvailableSerials lists serial numbers currently held in a warehouse,
// earliest purchase first.
func (r *Repository) AvailableSerials(ctx context.Context, filter SerialFilter) ([]SerialNo, error) {
	q := r.builder.Select("s.serial_no", "s.warehouse_id").
		From("serial_nos s").
		Where(squirrel.Eq{"s.item_code": filter.ItemCode, "s.company_id": filter.CompanyID}).
		Where(squirrel.NotEq{"s.warehouse_id": nil}).
		OrderBy("s.purchase_date", "s.created_at", "s.serial_no")
	if len(filter.Warehouses) > 0 {
		q = q.Where(squirrel.Eq{"s.warehouse_id": filter.Warehouses})
	}
	if filter.WarehouseID != 0 {
		q = q.Where(squirrel.Eq{"s.warehouse_id": filter.WarehouseID})
	}
	if filter.BatchNo != "" {
		q = q.Where(squirrel.Eq{"s.batch_no": filter.BatchNo})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build serial query: %w", err)
	}
	var out []SerialNo
	if err := pgxscan.Select(ctx, r.pool, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("available serials: %w", err)
	}
	return out, nil
}

// BatchLocations sums the stock ledger per (warehouse, batch) for unexpired,
// enabled batches, first-expiring first.
func (r *Repository) BatchLocations(ctx context.Context, filter BatchFilter) ([]Candidate, error) {
	expiry := fmt.Sprintf("COALESCE(b.expiry_date, DATE '%s')", noExpiry)
	q := r.builder.Select("sle.warehouse_id", "sle.batch_no", "SUM(sle.actual_qty) AS qty").
		From("stock_ledger_entries sle").
		Join("batches b ON b.batch_no = sle.batch_no").
		Where(squirrel.Eq{
			"sle.item_code":    filter.ItemCode,
			"sle.company_id":   filter.CompanyID,
			"sle.is_cancelled": false,
			"b.disabled":       false,
		}).
		Where(expiry+" > ?", filter.Today.Format("2006-01-02")).
		GroupBy("sle.warehouse_id", "sle.batch_no", "sle.item_code", "b.expiry_date", "b.created_at").
		Having("SUM(sle.actual_qty) > 0").
		OrderBy(expiry, "b.created_at")
	if len(filter.Warehouses) > 0 {
		q = q.Where(squirrel.Eq{"sle.warehouse_id": filter.Warehouses})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build batch query: %w", err)
	}
	var out []Candidate
	if err := pgxscan.Select(ctx, r.pool, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("batch locations: %w", err)
	}
	return out, nil
}
