package stockentry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository persists stock entries and reads manufacturing documents.
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

// WorkOrder loads a work order.
func (r *Repository) WorkOrder(ctx context.Context, id int64) (WorkOrder, error) {
	var wo WorkOrder
	err := pgxscan.Get(ctx, r.pool, &wo, `
		SELECT id, name, company_id, COALESCE(bom_no, '') AS bom_no, use_multi_level_bom,
			COALESCE(wip_warehouse_id, 0) AS wip_warehouse_id, skip_transfer,
			COALESCE(project_id, 0) AS project_id, planned_start_date
		FROM work_orders WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return WorkOrder{}, shared.ErrNotFound
		}
		return WorkOrder{}, err
	}
	return wo, nil
}

// BOMInspectionRequired reports the inspection flag of a bill of materials.
func (r *Repository) BOMInspectionRequired(ctx context.Context, bomNo string) (bool, error) {
	var required bool
	err := r.pool.QueryRow(ctx, `SELECT inspection_required FROM boms WHERE name = $1`, bomNo).Scan(&required)
	if err != nil {
		if pgxscan.NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return required, nil
}

// MaterialRequestLineWarehouse returns the target warehouse of a material
// request line, zero when unset.
func (r *Repository) MaterialRequestLineWarehouse(ctx context.Context, lineID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(warehouse_id, 0) FROM material_request_items WHERE id = $1`, lineID).Scan(&id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// ExistsForPickList reports whether a stock entry references the pick list.
func (r *Repository) ExistsForPickList(ctx context.Context, pickListID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM stock_entries WHERE pick_list_id = $1)`, pickListID).Scan(&exists)
	return exists, err
}

// PendingWorkOrders lists submitted, unfinished work orders of a company
// with material left to transfer. Names containing the query earlier sort
// first.
func (r *Repository) PendingWorkOrders(ctx context.Context, f WorkOrderFilter) ([]PendingWorkOrder, error) {
	needle := strings.ReplaceAll(f.Query, "%", "")
	sql, args, err := r.builder.
		Select("id", "name", "company_id", "planned_start_date").
		From("work_orders").
		Where(squirrel.Eq{"company_id": f.CompanyID, "submitted": true}).
		Where(squirrel.NotEq{"status": []string{"Completed", "Stopped"}}).
		Where("qty > material_transferred_for_manufacturing").
		Where(squirrel.ILike{"name": "%" + needle + "%"}).
		OrderByClause("CASE WHEN strpos(name, ?) > 0 THEN strpos(name, ?) ELSE 99999 END", needle, needle).
		OrderBy("name").
		Offset(uint64(f.Offset)).
		Limit(uint64(f.Limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending work orders query: %w", err)
	}
	var out []PendingWorkOrder
	if err := pgxscan.Select(ctx, r.pool, &out, sql, args...); err != nil {
		return nil, fmt.Errorf("pending work orders: %w", err)
	}
	return out, nil
}

type entryRow struct {
	ID                 int64           `db:"id"`
	Name               string          `db:"name"`
	PickListID         int64           `db:"pick_list_id"`
	Purpose            string          `db:"purpose"`
	StockEntryType     string          `db:"stock_entry_type"`
	CompanyID          int64           `db:"company_id"`
	WorkOrderID        int64           `db:"work_order_id"`
	MaterialRequestID  int64           `db:"material_request_id"`
	FromBOM            bool            `db:"from_bom"`
	BOMNo              string          `db:"bom_no"`
	UseMultiLevelBOM   bool            `db:"use_multi_level_bom"`
	FGCompletedQty     decimal.Decimal `db:"fg_completed_qty"`
	InspectionRequired bool            `db:"inspection_required"`
	ProjectID          int64           `db:"project_id"`
	ToWarehouseID      int64           `db:"to_warehouse_id"`
	CreatedAt          time.Time       `db:"created_at"`
}

type itemRow struct {
	Idx                   int             `db:"idx"`
	ItemCode              string          `db:"item_code"`
	SourceWarehouseID     int64           `db:"s_warehouse_id"`
	TargetWarehouseID     int64           `db:"t_warehouse_id"`
	Qty                   decimal.Decimal `db:"qty"`
	TransferQty           decimal.Decimal `db:"transfer_qty"`
	UOM                   string          `db:"uom"`
	StockUOM              string          `db:"stock_uom"`
	ConversionFactor      decimal.Decimal `db:"conversion_factor"`
	BatchNo               string          `db:"batch_no"`
	SerialNos             []string        `db:"serial_nos"`
	MaterialRequestID     int64           `db:"material_request_id"`
	MaterialRequestItemID int64           `db:"material_request_item_id"`
}

// GetByPickList loads the stock entry of a pick list.
func (r *Repository) GetByPickList(ctx context.Context, pickListID int64) (StockEntryDraft, error) {
	var h entryRow
	err := pgxscan.Get(ctx, r.pool, &h, `
		SELECT id, name, pick_list_id, purpose, stock_entry_type, company_id,
			COALESCE(work_order_id, 0) AS work_order_id,
			COALESCE(material_request_id, 0) AS material_request_id,
			from_bom, COALESCE(bom_no, '') AS bom_no, use_multi_level_bom, fg_completed_qty,
			inspection_required, COALESCE(project_id, 0) AS project_id,
			COALESCE(to_warehouse_id, 0) AS to_warehouse_id, created_at
		FROM stock_entries WHERE pick_list_id = $1`, pickListID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return StockEntryDraft{}, fmt.Errorf("stock entry for pick list %d: %w", pickListID, shared.ErrNotFound)
		}
		return StockEntryDraft{}, err
	}
	var rows []itemRow
	err = pgxscan.Select(ctx, r.pool, &rows, `
		SELECT idx, item_code, s_warehouse_id, COALESCE(t_warehouse_id, 0) AS t_warehouse_id,
			qty, transfer_qty, uom, stock_uom, conversion_factor, COALESCE(batch_no, '') AS batch_no,
			serial_nos, COALESCE(material_request_id, 0) AS material_request_id,
			COALESCE(material_request_item_id, 0) AS material_request_item_id
		FROM stock_entry_items WHERE stock_entry_id = $1 ORDER BY idx`, h.ID)
	if err != nil {
		return StockEntryDraft{}, fmt.Errorf("stock entry items: %w", err)
	}
	entry := StockEntryDraft{
		ID:                 h.ID,
		Name:               h.Name,
		PickListID:         h.PickListID,
		Purpose:            h.Purpose,
		StockEntryType:     h.StockEntryType,
		CompanyID:          h.CompanyID,
		WorkOrderID:        h.WorkOrderID,
		MaterialRequestID:  h.MaterialRequestID,
		FromBOM:            h.FromBOM,
		BOMNo:              h.BOMNo,
		UseMultiLevelBOM:   h.UseMultiLevelBOM,
		FGCompletedQty:     h.FGCompletedQty,
		InspectionRequired: h.InspectionRequired,
		ProjectID:          h.ProjectID,
		ToWarehouseID:      h.ToWarehouseID,
		CreatedAt:          h.CreatedAt,
		Items:              make([]StockEntryItem, 0, len(rows)),
	}
	for _, row := range rows {
		entry.Items = append(entry.Items, StockEntryItem(row))
	}
	return entry, nil
}

func (t *txRepo) Insert(ctx context.Context, entry *StockEntryDraft) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO stock_entries (pick_list_id, purpose, stock_entry_type, company_id, work_order_id,
			material_request_id, from_bom, bom_no, use_multi_level_bom, fg_completed_qty,
			inspection_required, project_id, to_warehouse_id, created_by)
		VALUES ($1, $2, $3, $4, NULLIF($5::bigint, 0), NULLIF($6::bigint, 0), $7, NULLIF($8, ''), $9, $10,
			$11, NULLIF($12::bigint, 0), NULLIF($13::bigint, 0), NULLIF($14::bigint, 0))
		RETURNING id, created_at`,
		entry.PickListID, entry.Purpose, entry.StockEntryType, entry.CompanyID, entry.WorkOrderID,
		entry.MaterialRequestID, entry.FromBOM, entry.BOMNo, entry.UseMultiLevelBOM, entry.FGCompletedQty,
		entry.InspectionRequired, entry.ProjectID, entry.ToWarehouseID, shared.ActorFromContext(ctx),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return err
	}
	entry.Name = fmt.Sprintf("STE-%05d", entry.ID)
	if _, err := t.tx.Exec(ctx, `UPDATE stock_entries SET name = $2 WHERE id = $1`, entry.ID, entry.Name); err != nil {
		return fmt.Errorf("name stock entry: %w", err)
	}
	if len(entry.Items) == 0 {
		return nil
	}

	q := t.builder.Insert("stock_entry_items").Columns(
		"stock_entry_id", "idx", "item_code", "s_warehouse_id", "t_warehouse_id", "qty", "transfer_qty",
		"uom", "stock_uom", "conversion_factor", "batch_no", "serial_nos",
		"material_request_id", "material_request_item_id",
	)
	for _, it := range entry.Items {
		serials := it.SerialNos
		if serials == nil {
			serials = []string{}
		}
		q = q.Values(
			entry.ID, it.Idx, it.ItemCode, it.SourceWarehouseID, nullID(it.TargetWarehouseID), it.Qty, it.TransferQty,
			it.UOM, it.StockUOM, it.ConversionFactor, nullString(it.BatchNo), serials,
			nullID(it.MaterialRequestID), nullID(it.MaterialRequestItemID),
		)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build stock entry items insert: %w", err)
	}
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert stock entry items: %w", err)
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
