package picklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/masterdata/items"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/shared"
	"github.com/odyssey-erp/fulfillment/internal/uom"
)

var tracer = otel.Tracer("fulfillment/picklist")

var hundred = decimal.NewFromInt(100)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PickList, error)
	SalesOrder(ctx context.Context, id int64) (SalesOrder, error)
	ListOutOfStock(ctx context.Context, limit int) ([]int64, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Insert(ctx context.Context, pl *PickList) error
	Update(ctx context.Context, pl *PickList) error
	SalesOrderLineForUpdate(ctx context.Context, lineID int64) (SalesOrderLine, error)
	SetSalesOrderLinePicked(ctx context.Context, lineID int64, picked decimal.Decimal) error
	SalesOrderLines(ctx context.Context, salesOrderID int64) ([]SalesOrderLine, error)
	SetSalesOrderPerPicked(ctx context.Context, salesOrderID int64, perPicked decimal.Decimal) error
}

// LocationSourcer finds candidate stock locations for an item.
type LocationSourcer interface {
	Locations(ctx context.Context, q inventory.Query) ([]inventory.Candidate, *inventory.ShortageWarning, error)
}

// Catalog resolves item and UOM master data.
type Catalog interface {
	Item(ctx context.Context, code string) (items.Item, error)
	UOM(ctx context.Context, name string) (items.UOM, error)
	Details(ctx context.Context, code, uom string) (items.Details, error)
}

// WarehouseTree resolves a warehouse and its descendants.
type WarehouseTree interface {
	Subtree(ctx context.Context, rootID int64) ([]int64, error)
}

// Locker serialises state transitions of one pick list.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder receives pick list metrics.
type Recorder interface {
	ObserveAllocation(purpose string, rows int)
	ObserveTransition(status string)
}

// Config carries policy settings.
type Config struct {
	// OverDeliveryAllowance is the percentage a sales order line may be
	// picked beyond 100.
	OverDeliveryAllowance decimal.Decimal
	LockTTL               time.Duration
}

// Service coordinates pick list operations.
type Service struct {
	repo       RepositoryPort
	sourcer    LocationSourcer
	catalog    Catalog
	warehouses WarehouseTree
	locker     Locker
	audit      AuditPort
	metrics    Recorder
	logger     *slog.Logger
	cfg        Config
}

// Deps groups the collaborators of Service. Locker, Audit and Metrics may be nil.
type Deps struct {
	Repo       RepositoryPort
	Sourcer    LocationSourcer
	Catalog    Catalog
	Warehouses WarehouseTree
	Locker     Locker
	Audit      AuditPort
	Metrics    Recorder
	Logger     *slog.Logger
}

// NewService builds Service.
func NewService(deps Deps, cfg Config) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Service{
		repo:       deps.Repo,
		sourcer:    deps.Sourcer,
		catalog:    deps.Catalog,
		warehouses: deps.Warehouses,
		locker:     deps.Locker,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// Get loads a pick list.
func (s *Service) Get(ctx context.Context, id int64) (PickList, error) {
	if id <= 0 {
		return PickList{}, shared.NewValidationError("", "invalid pick list id %d", id)
	}
	return s.repo.Get(ctx, id)
}

// PrintView returns the pick list with rows merged per (item, warehouse)
// when the document asks for it.
func (s *Service) PrintView(ctx context.Context, id int64) (PickList, error) {
	pl, err := s.Get(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	if pl.GroupSameItems {
		pl.Locations = GroupSimilarItems(pl.Locations)
	}
	return pl, nil
}

// SetItemLocations replaces the rows of pl with allocated locations. The
// existing rows are read as the request. Shortages are reported in the
// result, never as errors.
func (s *Service) SetItemLocations(ctx context.Context, pl *PickList) (AllocationResult, error) {
	ctx, span := tracer.Start(ctx, "picklist.SetItemLocations")
	defer span.End()
	span.SetAttributes(attribute.Int64("pick_list_id", pl.ID), attribute.Int("rows", len(pl.Locations)))

	var result AllocationResult
	if err := validateForQty(pl); err != nil {
		return result, err
	}
	submitted := pl.IsSubmitted()
	agg, err := aggregate(pl.Locations, submitted)
	if err != nil {
		return result, err
	}

	var from []int64
	if pl.ParentWarehouseID != 0 {
		from, err = s.warehouses.Subtree(ctx, pl.ParentWarehouseID)
		if err != nil {
			return result, fmt.Errorf("picklist: resolve warehouses: %w", err)
		}
	}

	replica := append([]Location(nil), pl.Locations...)
	alloc := newAllocator()
	var rows []Location
	for _, line := range agg.lines {
		if !alloc.has(line.ItemCode) {
			candidates, warning, err := s.sourcer.Locations(ctx, inventory.Query{
				ItemCode:    line.ItemCode,
				CompanyID:   pl.CompanyID,
				Warehouses:  from,
				RequiredQty: agg.itemTotals[line.ItemCode],
			})
			if err != nil {
				return result, err
			}
			if warning != nil {
				result.Warnings = append(result.Warnings, *warning)
			}
			alloc.load(line.ItemCode, candidates)
		}
		unit, err := s.catalog.UOM(ctx, line.UOM)
		if err != nil {
			return result, err
		}
		conv := uom.Conversion{Factor: line.ConversionFactor, MustBeWholeNumber: unit.MustBeWholeNumber}
		rows = append(rows, alloc.allocate(line, conv, submitted)...)
	}

	if len(rows) == 0 && submitted {
		for i := range replica {
			replica[i].StockQty = decimal.Zero
			replica[i].PickedQty = decimal.Zero
		}
		rows = replica
		result.OutOfStock = true
	}
	for i := range rows {
		rows[i].Idx = i + 1
	}
	pl.Locations = rows
	if s.metrics != nil {
		s.metrics.ObserveAllocation(string(pl.Purpose), len(rows))
	}
	return result, nil
}

// CreateInput is the payload for a new pick list.
type CreateInput struct {
	CompanyID         int64           `json:"company_id" validate:"required,gt=0"`
	Purpose           Purpose         `json:"purpose" validate:"required,oneof=Delivery 'Material Transfer' 'Material Transfer for Manufacture'"`
	CustomerID        int64           `json:"customer_id" validate:"gte=0"`
	ParentWarehouseID int64           `json:"parent_warehouse_id" validate:"gte=0"`
	WorkOrderID       int64           `json:"work_order_id" validate:"gte=0"`
	MaterialRequestID int64           `json:"material_request_id" validate:"gte=0"`
	ForQty            decimal.Decimal `json:"for_qty"`
	GroupSameItems    bool            `json:"group_same_items"`
	Locations         []LocationInput `json:"locations" validate:"required,min=1,dive"`
}

// LocationInput is one requested row.
type LocationInput struct {
	ItemCode              string          `json:"item_code" validate:"max=140"`
	UOM                   string          `json:"uom" validate:"max=40"`
	ConversionFactor      decimal.Decimal `json:"conversion_factor"`
	Qty                   decimal.Decimal `json:"qty"`
	StockQty              decimal.Decimal `json:"stock_qty"`
	PickedQty             decimal.Decimal `json:"picked_qty"`
	WarehouseID           int64           `json:"warehouse_id" validate:"gte=0"`
	BatchNo               string          `json:"batch_no" validate:"max=140"`
	SerialNos             []string        `json:"serial_nos"`
	SalesOrderID          int64           `json:"sales_order_id" validate:"gte=0"`
	SalesOrderItemID      int64           `json:"sales_order_item_id" validate:"gte=0"`
	MaterialRequestID     int64           `json:"material_request_id" validate:"gte=0"`
	MaterialRequestItemID int64           `json:"material_request_item_id" validate:"gte=0"`
}

// Create builds a draft pick list, allocates its rows and stores it.
func (s *Service) Create(ctx context.Context, in CreateInput) (PickList, AllocationResult, error) {
	if !in.Purpose.Valid() {
		return PickList{}, AllocationResult{}, shared.NewValidationError("", "unknown purpose %q", in.Purpose)
	}
	pl := PickList{
		CompanyID:         in.CompanyID,
		Purpose:           in.Purpose,
		CustomerID:        in.CustomerID,
		ParentWarehouseID: in.ParentWarehouseID,
		WorkOrderID:       in.WorkOrderID,
		MaterialRequestID: in.MaterialRequestID,
		ForQty:            in.ForQty,
		GroupSameItems:    in.GroupSameItems,
		Status:            StatusDraft,
		CreatedBy:         shared.ActorFromContext(ctx),
	}
	rows, err := s.prepareRows(ctx, in.Locations)
	if err != nil {
		return PickList{}, AllocationResult{}, err
	}
	pl.Locations = rows
	result, err := s.SetItemLocations(ctx, &pl)
	if err != nil {
		return PickList{}, AllocationResult{}, err
	}
	if err := s.beforeSave(ctx, &pl); err != nil {
		return PickList{}, AllocationResult{}, err
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, &pl)
	}); err != nil {
		return PickList{}, AllocationResult{}, err
	}
	s.record(ctx, "picklist.create", pl)
	return pl, result, nil
}

// Update replaces the requested rows and reallocates. Submitted pick lists
// may be updated to pick from restocked locations.
func (s *Service) Update(ctx context.Context, id int64, in []LocationInput) (PickList, AllocationResult, error) {
	var result AllocationResult
	pl, err := s.mutate(ctx, id, func(ctx context.Context, pl *PickList) error {
		rows, err := s.prepareRows(ctx, in)
		if err != nil {
			return err
		}
		pl.Locations = rows
		result, err = s.reallocate(ctx, pl)
		return err
	})
	if err != nil {
		return PickList{}, AllocationResult{}, err
	}
	s.record(ctx, "picklist.update", pl)
	return pl, result, nil
}

// Reallocate recomputes the locations of a stored pick list and saves it.
func (s *Service) Reallocate(ctx context.Context, id int64) (PickList, AllocationResult, error) {
	var result AllocationResult
	pl, err := s.mutate(ctx, id, func(ctx context.Context, pl *PickList) error {
		var err error
		result, err = s.reallocate(ctx, pl)
		return err
	})
	if err != nil {
		return PickList{}, AllocationResult{}, err
	}
	if result.OutOfStock {
		s.logger.WarnContext(ctx, "pick list out of stock", slog.Int64("pick_list_id", id))
	}
	s.record(ctx, "picklist.reallocate", pl)
	return pl, result, nil
}

func (s *Service) reallocate(ctx context.Context, pl *PickList) (AllocationResult, error) {
	if pl.Status == StatusCancelled {
		return AllocationResult{}, fmt.Errorf("picklist %d: %w", pl.ID, shared.ErrInvalidStatus)
	}
	result, err := s.SetItemLocations(ctx, pl)
	if err != nil {
		return result, err
	}
	if pl.Status == StatusDraft {
		if err := s.beforeSave(ctx, pl); err != nil {
			return result, err
		}
	}
	return result, nil
}

// mutate loads a pick list under its lock, applies fn and persists the
// result in one transaction.
func (s *Service) mutate(ctx context.Context, id int64, fn func(context.Context, *PickList) error) (PickList, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	defer release()

	pl, err := s.Get(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	var before map[int64]linePick
	if pl.Status == StatusSubmitted {
		before = pickedByLine(pl.Locations)
	}
	if err := fn(ctx, &pl); err != nil {
		return PickList{}, err
	}
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if before != nil {
			if err := s.syncSalesOrders(ctx, tx, before, pickedByLine(pl.Locations)); err != nil {
				return err
			}
		}
		return tx.Update(ctx, &pl)
	}); err != nil {
		return PickList{}, err
	}
	return pl, nil
}

type linePick struct {
	itemCode string
	qty      decimal.Decimal
}

// pickedByLine sums picked qty per sales order line.
func pickedByLine(rows []Location) map[int64]linePick {
	out := make(map[int64]linePick)
	for _, row := range rows {
		if row.SalesOrderItemID == 0 {
			continue
		}
		p := out[row.SalesOrderItemID]
		p.itemCode = row.ItemCode
		p.qty = p.qty.Add(row.PickedQty)
		out[row.SalesOrderItemID] = p
	}
	return out
}

// syncSalesOrders writes the change in picked qty of a submitted pick list
// back to its sales order lines. Increases are held to the over-delivery
// allowance.
func (s *Service) syncSalesOrders(ctx context.Context, tx TxRepository, before, after map[int64]linePick) error {
	lineIDs := make([]int64, 0, len(before)+len(after))
	for id := range before {
		lineIDs = append(lineIDs, id)
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			lineIDs = append(lineIDs, id)
		}
	}
	slices.Sort(lineIDs)

	for _, id := range lineIDs {
		delta := after[id].qty.Sub(before[id].qty)
		if delta.IsZero() {
			continue
		}
		code := after[id].itemCode
		if code == "" {
			code = before[id].itemCode
		}
		if err := s.updateSalesOrder(ctx, tx, id, code, delta, delta.IsPositive()); err != nil {
			return err
		}
	}
	return nil
}

// Submit validates the rows, writes picked quantities back to the sales
// order lines and marks the pick list submitted.
func (s *Service) Submit(ctx context.Context, id int64) (PickList, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	defer release()

	pl, err := s.Get(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	if pl.Status != StatusDraft {
		return PickList{}, fmt.Errorf("picklist %d is %s: %w", id, pl.Status, shared.ErrInvalidStatus)
	}
	if err := validateForQty(&pl); err != nil {
		return PickList{}, err
	}
	catalog, err := s.itemCatalog(ctx, pl.Locations)
	if err != nil {
		return PickList{}, err
	}
	if err := ValidateBeforeSubmit(&pl, catalog); err != nil {
		return PickList{}, err
	}

	pl.Status = StatusSubmitted
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, row := range pl.Locations {
			if row.SalesOrderItemID == 0 {
				continue
			}
			if err := s.updateSalesOrder(ctx, tx, row.SalesOrderItemID, row.ItemCode, row.PickedQty, true); err != nil {
				return err
			}
		}
		return tx.Update(ctx, &pl)
	})
	if err != nil {
		return PickList{}, err
	}
	s.logger.InfoContext(ctx, "pick list submitted", slog.Int64("pick_list_id", id), slog.Int("rows", len(pl.Locations)))
	s.transition(ctx, "picklist.submit", pl)
	return pl, nil
}

// Cancel removes the pick list's contribution from its sales order lines
// and marks it cancelled.
func (s *Service) Cancel(ctx context.Context, id int64) (PickList, error) {
	release, err := s.lock(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	defer release()

	pl, err := s.Get(ctx, id)
	if err != nil {
		return PickList{}, err
	}
	if pl.Status != StatusSubmitted {
		return PickList{}, fmt.Errorf("picklist %d is %s: %w", id, pl.Status, shared.ErrInvalidStatus)
	}
	pl.Status = StatusCancelled
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, row := range pl.Locations {
			if row.SalesOrderItemID == 0 {
				continue
			}
			if err := s.updateSalesOrder(ctx, tx, row.SalesOrderItemID, row.ItemCode, row.PickedQty.Neg(), false); err != nil {
				return err
			}
		}
		return tx.Update(ctx, &pl)
	})
	if err != nil {
		return PickList{}, err
	}
	s.logger.InfoContext(ctx, "pick list cancelled", slog.Int64("pick_list_id", id))
	s.transition(ctx, "picklist.cancel", pl)
	return pl, nil
}

// RestockOutOfStock reallocates submitted pick lists whose rows were reset
// by a stock-out. It returns how many now have stock again.
func (s *Service) RestockOutOfStock(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.ListOutOfStock(ctx, limit)
	if err != nil {
		return 0, err
	}
	restocked := 0
	for _, id := range ids {
		_, result, err := s.Reallocate(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrLocked) {
				continue
			}
			if shared.IsValidation(err) {
				s.logger.WarnContext(ctx, "restock skipped", slog.Int64("pick_list_id", id), slog.Any("error", err))
				continue
			}
			return restocked, fmt.Errorf("picklist %d: %w", id, err)
		}
		if !result.OutOfStock {
			restocked++
		}
	}
	return restocked, nil
}

// updateSalesOrder adds delta to a sales order line's picked qty and
// recomputes the order's picked percentage. enforce applies the
// over-delivery allowance.
func (s *Service) updateSalesOrder(ctx context.Context, tx TxRepository, lineID int64, itemCode string, delta decimal.Decimal, enforce bool) error {
	line, err := tx.SalesOrderLineForUpdate(ctx, lineID)
	if err != nil {
		return fmt.Errorf("sales order line %d: %w", lineID, err)
	}
	picked := line.PickedQty.Add(delta)
	if enforce {
		ordered := line.StockQty
		if ordered.IsZero() {
			ordered = line.Qty
		}
		limit := hundred.Add(s.cfg.OverDeliveryAllowance)
		if ordered.IsPositive() && picked.Div(ordered).Mul(hundred).GreaterThan(limit) {
			return shared.NewValidationError("",
				"You are picking more than required quantity for %s. Check if there is any other pick list created for sales order %d",
				itemCode, line.SalesOrderID)
		}
	}
	if picked.IsNegative() {
		picked = decimal.Zero
	}
	if err := tx.SetSalesOrderLinePicked(ctx, lineID, picked); err != nil {
		return err
	}

	lines, err := tx.SalesOrderLines(ctx, line.SalesOrderID)
	if err != nil {
		return err
	}
	totalPicked, totalOrdered := decimal.Zero, decimal.Zero
	for _, l := range lines {
		totalPicked = totalPicked.Add(l.PickedQty)
		totalOrdered = totalOrdered.Add(l.StockQty)
	}
	perPicked := decimal.Zero
	if totalOrdered.IsPositive() {
		perPicked = totalPicked.Div(totalOrdered).Mul(hundred).Round(6)
	}
	return tx.SetSalesOrderPerPicked(ctx, line.SalesOrderID, perPicked)
}

// beforeSave rejects rows whose sales order is already fully picked.
func (s *Service) beforeSave(ctx context.Context, pl *PickList) error {
	perPicked := make(map[int64]decimal.Decimal)
	for _, row := range pl.Locations {
		if row.SalesOrderID == 0 {
			continue
		}
		pct, ok := perPicked[row.SalesOrderID]
		if !ok {
			so, err := s.repo.SalesOrder(ctx, row.SalesOrderID)
			if err != nil {
				return fmt.Errorf("sales order %d: %w", row.SalesOrderID, err)
			}
			pct = so.PerPicked
			perPicked[row.SalesOrderID] = pct
		}
		if pct.Equal(hundred) {
			return shared.NewConflictError("Row %d has been picked already!", row.Idx)
		}
	}
	return nil
}

// prepareRows turns request rows into locations, filling item master
// fields and deriving the stock qty when only qty is given.
func (s *Service) prepareRows(ctx context.Context, in []LocationInput) ([]Location, error) {
	rows := make([]Location, 0, len(in))
	for i, r := range in {
		row := Location{
			Idx:                   i + 1,
			ItemCode:              r.ItemCode,
			UOM:                   r.UOM,
			ConversionFactor:      r.ConversionFactor,
			Qty:                   r.Qty,
			StockQty:              r.StockQty,
			PickedQty:             r.PickedQty,
			WarehouseID:           r.WarehouseID,
			BatchNo:               r.BatchNo,
			SerialNos:             r.SerialNos,
			SalesOrderID:          r.SalesOrderID,
			SalesOrderItemID:      r.SalesOrderItemID,
			MaterialRequestID:     r.MaterialRequestID,
			MaterialRequestItemID: r.MaterialRequestItemID,
		}
		if row.ItemCode != "" {
			it, err := s.catalog.Item(ctx, row.ItemCode)
			if err != nil {
				return nil, fmt.Errorf("row #%d: %w", row.Idx, err)
			}
			row.ItemName = it.Name
			row.ItemGroup = it.ItemGroup
			row.StockUOM = it.StockUOM
			if row.ConversionFactor.IsZero() {
				det, err := s.catalog.Details(ctx, row.ItemCode, row.UOM)
				if err != nil {
					return nil, fmt.Errorf("row #%d: %w", row.Idx, err)
				}
				row.UOM = det.UOM
				row.ConversionFactor = det.ConversionFactor
			}
		}
		if row.StockQty.IsZero() {
			row.StockQty = uom.ToStockQty(row.Qty, row.ConversionFactor)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) itemCatalog(ctx context.Context, rows []Location) (map[string]items.Item, error) {
	out := make(map[string]items.Item)
	for _, row := range rows {
		if _, ok := out[row.ItemCode]; ok {
			continue
		}
		it, err := s.catalog.Item(ctx, row.ItemCode)
		if err != nil {
			return nil, err
		}
		out[row.ItemCode] = it
	}
	return out, nil
}

func (s *Service) lock(ctx context.Context, id int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, shared.PickListLockKey(id), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, fmt.Errorf("picklist %d: %w", id, shared.ErrLocked)
		}
		return nil, err
	}
	return release, nil
}

func (s *Service) transition(ctx context.Context, action string, pl PickList) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(pl.Status))
	}
	s.record(ctx, action, pl)
}

func (s *Service) record(ctx context.Context, action string, pl PickList) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "pick_list",
		EntityID: strconv.FormatInt(pl.ID, 10),
		Meta:     map[string]any{"status": pl.Status, "rows": len(pl.Locations)},
		At:       time.Now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
