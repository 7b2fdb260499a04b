package picklist

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository persists pick lists in PostgreSQL.
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

type txRepo struct {
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, builder: r.builder})
	})
}

type headerRow struct {
	ID                int64           `db:"id"`
	Name              string          `db:"name"`
	CompanyID         int64           `db:"company_id"`
	Purpose           string          `db:"purpose"`
	CustomerID        int64           `db:"customer_id"`
	ParentWarehouseID int64           `db:"parent_warehouse_id"`
	WorkOrderID       int64           `db:"work_order_id"`
	MaterialRequestID int64           `db:"material_request_id"`
	ForQty            decimal.Decimal `db:"for_qty"`
	GroupSameItems    bool            `db:"group_same_items"`
	Status            string          `db:"status"`
	CreatedBy         int64           `db:"created_by"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

type locationRow struct {
	ID                    int64           `db:"id"`
	Idx                   int             `db:"idx"`
	ItemCode              string          `db:"item_code"`
	ItemName              string          `db:"item_name"`
	ItemGroup             string          `db:"item_group"`
	UOM                   string          `db:"uom"`
	StockUOM              string          `db:"stock_uom"`
	ConversionFactor      decimal.Decimal `db:"conversion_factor"`
	Qty                   decimal.Decimal `db:"qty"`
	StockQty              decimal.Decimal `db:"stock_qty"`
	PickedQty             decimal.Decimal `db:"picked_qty"`
	WarehouseID           int64           `db:"warehouse_id"`
	BatchNo               string          `db:"batch_no"`
	SerialNos             []string        `db:"serial_nos"`
	SalesOrderID          int64           `db:"sales_order_id"`
	SalesOrderItemID      int64           `db:"sales_order_item_id"`
	MaterialRequestID     int64           `db:"material_request_id"`
	MaterialRequestItemID int64           `db:"material_request_item_id"`
}

const selectHeader = `
	SELECT id, COALESCE(name, '') AS name, company_id, purpose, COALESCE(customer_id, 0) AS customer_id,
		COALESCE(parent_warehouse_id, 0) AS parent_warehouse_id,
		COALESCE(work_order_id, 0) AS work_order_id,
		COALESCE(material_request_id, 0) AS material_request_id,
		for_qty, group_same_items, status, COALESCE(created_by, 0) AS created_by, created_at, updated_at
	FROM pick_lists`

const selectLocations = `
	SELECT id, idx, item_code, item_name, item_group, uom, stock_uom, conversion_factor,
		qty, stock_qty, picked_qty, COALESCE(warehouse_id, 0) AS warehouse_id,
		COALESCE(batch_no, '') AS batch_no, serial_nos,
		COALESCE(sales_order_id, 0) AS sales_order_id,
		COALESCE(sales_order_item_id, 0) AS sales_order_item_id,
		COALESCE(material_request_id, 0) AS material_request_id,
		COALESCE(material_request_item_id, 0) AS material_request_item_id
	FROM pick_list_items WHERE pick_list_id = $1 ORDER BY idx`

// Get loads a pick list with its rows.
func (r *Repository) Get(ctx context.Context, id int64) (PickList, error) {
	var h headerRow
	if err := pgxscan.Get(ctx, r.pool, &h, selectHeader+` WHERE id = $1`, id); err != nil {
		if pgxscan.NotFound(err) {
			return PickList{}, fmt.Errorf("pick list %d: %w", id, shared.ErrNotFound)
		}
		return PickList{}, fmt.Errorf("get pick list: %w", err)
	}
	var rows []locationRow
	if err := pgxscan.Select(ctx, r.pool, &rows, selectLocations, id); err != nil {
		return PickList{}, fmt.Errorf("get pick list rows: %w", err)
	}
	pl := h.toDomain()
	pl.Locations = make([]Location, 0, len(rows))
	for _, row := range rows {
		pl.Locations = append(pl.Locations, row.toDomain())
	}
	return pl, nil
}

// SalesOrder loads the sales order header fields used by pick lists.
func (r *Repository) SalesOrder(ctx context.Context, id int64) (SalesOrder, error) {
	var so SalesOrder
	err := pgxscan.Get(ctx, r.pool, &so, `
		SELECT id, doc_number, customer_id, per_picked FROM sales_orders WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return SalesOrder{}, shared.ErrNotFound
		}
		return SalesOrder{}, err
	}
	return so, nil
}

// ListOutOfStock returns submitted pick lists whose rows all carry zero
// stock qty.
func (r *Repository) ListOutOfStock(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 50
	}
	var ids []int64
	err := pgxscan.Select(ctx, r.pool, &ids, `
		SELECT pl.id FROM pick_lists pl
		WHERE pl.status = $1
		  AND EXISTS (SELECT 1 FROM pick_list_items i WHERE i.pick_list_id = pl.id)
		  AND NOT EXISTS (SELECT 1 FROM pick_list_items i WHERE i.pick_list_id = pl.id AND i.stock_qty > 0)
		ORDER BY pl.updated_at
		LIMIT $2`, string(StatusSubmitted), limit)
	if err != nil {
		return nil, fmt.Errorf("list out of stock pick lists: %w", err)
	}
	return ids, nil
}

func (t *txRepo) Insert(ctx context.Context, pl *PickList) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO pick_lists (name, company_id, purpose, customer_id, parent_warehouse_id, work_order_id,
			material_request_id, for_qty, group_same_items, status, created_by)
		VALUES (NULL, $1, $2, NULLIF($3::bigint, 0), NULLIF($4::bigint, 0), NULLIF($5::bigint, 0), NULLIF($6::bigint, 0), $7, $8, $9, NULLIF($10::bigint, 0))
		RETURNING id, created_at, updated_at`,
		pl.CompanyID, string(pl.Purpose), pl.CustomerID, pl.ParentWarehouseID, pl.WorkOrderID,
		pl.MaterialRequestID, pl.ForQty, pl.GroupSameItems, string(pl.Status), pl.CreatedBy,
	).Scan(&pl.ID, &pl.CreatedAt, &pl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert pick list: %w", err)
	}
	pl.Name = fmt.Sprintf("PICK-%05d", pl.ID)
	if _, err := t.tx.Exec(ctx, `UPDATE pick_lists SET name = $2 WHERE id = $1`, pl.ID, pl.Name); err != nil {
		return fmt.Errorf("name pick list: %w", err)
	}
	return t.insertLocations(ctx, pl)
}

func (t *txRepo) Update(ctx context.Context, pl *PickList) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE pick_lists SET status = $2, for_qty = $3, group_same_items = $4, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`,
		pl.ID, string(pl.Status), pl.ForQty, pl.GroupSameItems,
	).Scan(&pl.UpdatedAt)
	if err != nil {
		if pgxscan.NotFound(err) {
			return fmt.Errorf("pick list %d: %w", pl.ID, shared.ErrNotFound)
		}
		return fmt.Errorf("update pick list: %w", err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM pick_list_items WHERE pick_list_id = $1`, pl.ID); err != nil {
		return fmt.Errorf("clear pick list rows: %w", err)
	}
	return t.insertLocations(ctx, pl)
}

func (t *txRepo) insertLocations(ctx context.Context, pl *PickList) error {
	if len(pl.Locations) == 0 {
		return nil
	}
	q := t.builder.Insert("pick_list_items").Columns(
		"pick_list_id", "idx", "item_code", "item_name", "item_group", "uom", "stock_uom",
		"conversion_factor", "qty", "stock_qty", "picked_qty", "warehouse_id", "batch_no", "serial_nos",
		"sales_order_id", "sales_order_item_id", "material_request_id", "material_request_item_id",
	)
	for _, l := range pl.Locations {
		serials := l.SerialNos
		if serials == nil {
			serials = []string{}
		}
		q = q.Values(
			pl.ID, l.Idx, l.ItemCode, l.ItemName, l.ItemGroup, l.UOM, l.StockUOM,
			l.ConversionFactor, l.Qty, l.StockQty, l.PickedQty, nullID(l.WarehouseID), nullString(l.BatchNo), serials,
			nullID(l.SalesOrderID), nullID(l.SalesOrderItemID), nullID(l.MaterialRequestID), nullID(l.MaterialRequestItemID),
		)
	}
	q = q.Suffix("RETURNING id")
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build pick list rows insert: %w", err)
	}
	var ids []int64
	if err := pgxscan.Select(ctx, t.tx, &ids, sql, args...); err != nil {
		return fmt.Errorf("insert pick list rows: %w", err)
	}
	for i := range ids {
		if i < len(pl.Locations) {
			pl.Locations[i].ID = ids[i]
		}
	}
	return nil
}

func (t *txRepo) SalesOrderLineForUpdate(ctx context.Context, lineID int64) (SalesOrderLine, error) {
	var line SalesOrderLine
	err := pgxscan.Get(ctx, t.tx, &line, `
		SELECT id, sales_order_id, item_code, qty, stock_qty, picked_qty
		FROM sales_order_lines WHERE id = $1 FOR UPDATE`, lineID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return SalesOrderLine{}, shared.ErrNotFound
		}
		return SalesOrderLine{}, err
	}
	return line, nil
}

func (t *txRepo) SetSalesOrderLinePicked(ctx context.Context, lineID int64, picked decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_order_lines SET picked_qty = $2 WHERE id = $1`, lineID, picked)
	return err
}

func (t *txRepo) SalesOrderLines(ctx context.Context, salesOrderID int64) ([]SalesOrderLine, error) {
	var lines []SalesOrderLine
	err := pgxscan.Select(ctx, t.tx, &lines, `
		SELECT id, sales_order_id, item_code, qty, stock_qty, picked_qty
		FROM sales_order_lines WHERE sales_order_id = $1 ORDER BY id`, salesOrderID)
	return lines, err
}

func (t *txRepo) SetSalesOrderPerPicked(ctx context.Context, salesOrderID int64, perPicked decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales_orders SET per_picked = $2 WHERE id = $1`, salesOrderID, perPicked)
	return err
}

func (h headerRow) toDomain() PickList {
	return PickList{
		ID:                h.ID,
		Name:              h.Name,
		CompanyID:         h.CompanyID,
		Purpose:           Purpose(h.Purpose),
		CustomerID:        h.CustomerID,
		ParentWarehouseID: h.ParentWarehouseID,
		WorkOrderID:       h.WorkOrderID,
		MaterialRequestID: h.MaterialRequestID,
		ForQty:            h.ForQty,
		GroupSameItems:    h.GroupSameItems,
		Status:            Status(h.Status),
		CreatedBy:         h.CreatedBy,
		CreatedAt:         h.CreatedAt,
		UpdatedAt:         h.UpdatedAt,
	}
}

func (r locationRow) toDomain() Location {
	return Location(r)
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
