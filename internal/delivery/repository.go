package delivery

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

// Repository provides PostgreSQL backed persistence for delivery notes.
type Repository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewRepository constructs a delivery repository.
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

// WithTx wraps operations within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, builder: r.builder})
	})
}

// ============================================================================
// SOURCE DOCUMENTS
// ============================================================================

// SalesOrder loads the header fields a delivery note inherits.
func (r *Repository) SalesOrder(ctx context.Context, id int64) (SalesOrder, error) {
	var so SalesOrder
	err := pgxscan.Get(ctx, r.pool, &so, `
		SELECT id, customer_id, COALESCE(project_id, 0) AS project_id, company_id
		FROM sales_orders WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return SalesOrder{}, shared.ErrNotFound
		}
		return SalesOrder{}, err
	}
	return so, nil
}

// SalesOrderLine loads one sales order line.
func (r *Repository) SalesOrderLine(ctx context.Context, id int64) (SalesOrderLine, error) {
	var line SalesOrderLine
	err := pgxscan.Get(ctx, r.pool, &line, `
		SELECT id, sales_order_id, item_code, uom, conversion_factor, rate, qty,
			delivered_qty, delivered_by_supplier
		FROM sales_order_lines WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return SalesOrderLine{}, shared.ErrNotFound
		}
		return SalesOrderLine{}, err
	}
	return line, nil
}

// ProjectCostCenter returns the cost center of a project, zero when unset.
func (r *Repository) ProjectCostCenter(ctx context.Context, projectID int64) (int64, error) {
	var id int64
	err := pgxscan.Get(ctx, r.pool, &id, `
		SELECT COALESCE(cost_center_id, 0) FROM projects WHERE id = $1`, projectID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

// DefaultCostCenter returns the buying cost center configured for an item
// or item group in a company, zero when none is configured.
func (r *Repository) DefaultCostCenter(ctx context.Context, source CostCenterSource, name string, companyID int64) (int64, error) {
	sql, args, err := r.builder.
		Select("COALESCE(buying_cost_center_id, 0)").
		From("item_defaults").
		Where(squirrel.Eq{"parent_type": string(source), "parent": name, "company_id": companyID}).
		Limit(1).
		ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := pgxscan.Get(ctx, r.pool, &id, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

// ============================================================================
// DELIVERY NOTES
// ============================================================================

// ExistsForPickList reports whether any delivery note references the pick list.
func (r *Repository) ExistsForPickList(ctx context.Context, pickListID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM delivery_notes WHERE pick_list_id = $1)`, pickListID).Scan(&exists)
	return exists, err
}

type noteRow struct {
	ID            int64     `db:"id"`
	Name          string    `db:"name"`
	PickListID    int64     `db:"pick_list_id"`
	CompanyID     int64     `db:"company_id"`
	CustomerID    int64     `db:"customer_id"`
	ProjectID     int64     `db:"project_id"`
	SalesOrderIDs []int64   `db:"sales_order_ids"`
	Status        string    `db:"status"`
	CreatedAt     time.Time `db:"created_at"`
}

type itemRow struct {
	DeliveryNoteID   int64           `db:"delivery_note_id"`
	Idx              int             `db:"idx"`
	ItemCode         string          `db:"item_code"`
	ItemName         string          `db:"item_name"`
	UOM              string          `db:"uom"`
	StockUOM         string          `db:"stock_uom"`
	ConversionFactor decimal.Decimal `db:"conversion_factor"`
	Qty              decimal.Decimal `db:"qty"`
	StockQty         decimal.Decimal `db:"stock_qty"`
	Rate             decimal.Decimal `db:"rate"`
	WarehouseID      int64           `db:"warehouse_id"`
	BatchNo          string          `db:"batch_no"`
	SerialNos        []string        `db:"serial_nos"`
	SalesOrderID     int64           `db:"against_sales_order"`
	SalesOrderItemID int64           `db:"so_detail"`
	CostCenterID     int64           `db:"cost_center_id"`
}

// ListByPickList returns the delivery notes of a pick list with their items.
func (r *Repository) ListByPickList(ctx context.Context, pickListID int64) ([]DeliveryNoteDraft, error) {
	var headers []noteRow
	err := pgxscan.Select(ctx, r.pool, &headers, `
		SELECT id, name, pick_list_id, company_id, COALESCE(customer_id, 0) AS customer_id,
			COALESCE(project_id, 0) AS project_id, sales_order_ids, status, created_at
		FROM delivery_notes WHERE pick_list_id = $1 ORDER BY id`, pickListID)
	if err != nil {
		return nil, fmt.Errorf("list delivery notes: %w", err)
	}
	if len(headers) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(headers))
	for i, h := range headers {
		ids[i] = h.ID
	}
	var items []itemRow
	err = pgxscan.Select(ctx, r.pool, &items, `
		SELECT delivery_note_id, idx, item_code, item_name, uom, stock_uom, conversion_factor,
			qty, stock_qty, rate, warehouse_id, COALESCE(batch_no, '') AS batch_no, serial_nos,
			COALESCE(against_sales_order, 0) AS against_sales_order,
			COALESCE(so_detail, 0) AS so_detail,
			COALESCE(cost_center_id, 0) AS cost_center_id
		FROM delivery_note_items WHERE delivery_note_id = ANY($1) ORDER BY delivery_note_id, idx`, ids)
	if err != nil {
		return nil, fmt.Errorf("list delivery note items: %w", err)
	}

	notes := make([]DeliveryNoteDraft, len(headers))
	index := make(map[int64]int, len(headers))
	for i, h := range headers {
		index[h.ID] = i
		notes[i] = DeliveryNoteDraft{
			ID:            h.ID,
			Name:          h.Name,
			PickListID:    h.PickListID,
			CompanyID:     h.CompanyID,
			CustomerID:    h.CustomerID,
			ProjectID:     h.ProjectID,
			SalesOrderIDs: h.SalesOrderIDs,
			Status:        Status(h.Status),
			CreatedAt:     h.CreatedAt,
		}
	}
	for _, it := range items {
		i := index[it.DeliveryNoteID]
		notes[i].Items = append(notes[i].Items, DeliveryNoteItem{
			Idx:              it.Idx,
			ItemCode:         it.ItemCode,
			ItemName:         it.ItemName,
			UOM:              it.UOM,
			StockUOM:         it.StockUOM,
			ConversionFactor: it.ConversionFactor,
			Qty:              it.Qty,
			StockQty:         it.StockQty,
			Rate:             it.Rate,
			WarehouseID:      it.WarehouseID,
			BatchNo:          it.BatchNo,
			SerialNos:        it.SerialNos,
			SalesOrderID:     it.SalesOrderID,
			SalesOrderItemID: it.SalesOrderItemID,
			CostCenterID:     it.CostCenterID,
		})
	}
	return notes, nil
}

// ============================================================================
// TRANSACTIONAL OPERATIONS
// ============================================================================

func (t *txRepo) Insert(ctx context.Context, note *DeliveryNoteDraft) error {
	orders := note.SalesOrderIDs
	if orders == nil {
		orders = []int64{}
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO delivery_notes (pick_list_id, company_id, customer_id, project_id, sales_order_ids, status, created_by)
		VALUES ($1, $2, NULLIF($3::bigint, 0), NULLIF($4::bigint, 0), $5, $6, NULLIF($7::bigint, 0))
		RETURNING id, created_at`,
		note.PickListID, note.CompanyID, note.CustomerID, note.ProjectID, orders, string(note.Status),
		shared.ActorFromContext(ctx),
	).Scan(&note.ID, &note.CreatedAt)
	if err != nil {
		return err
	}
	note.Name = fmt.Sprintf("DN-%05d", note.ID)
	if _, err := t.tx.Exec(ctx, `UPDATE delivery_notes SET name = $2 WHERE id = $1`, note.ID, note.Name); err != nil {
		return fmt.Errorf("name delivery note: %w", err)
	}
	if len(note.Items) == 0 {
		return nil
	}

	q := t.builder.Insert("delivery_note_items").Columns(
		"delivery_note_id", "idx", "item_code", "item_name", "uom", "stock_uom", "conversion_factor",
		"qty", "stock_qty", "rate", "warehouse_id", "batch_no", "serial_nos",
		"against_sales_order", "so_detail", "cost_center_id",
	)
	for _, it := range note.Items {
		serials := it.SerialNos
		if serials == nil {
			serials = []string{}
		}
		q = q.Values(
			note.ID, it.Idx, it.ItemCode, it.ItemName, it.UOM, it.StockUOM, it.ConversionFactor,
			it.Qty, it.StockQty, it.Rate, it.WarehouseID, nullString(it.BatchNo), serials,
			nullID(it.SalesOrderID), nullID(it.SalesOrderItemID), nullID(it.CostCenterID),
		)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delivery note items insert: %w", err)
	}
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert delivery note items: %w", err)
	}
	return nil
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
