package stockentry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/odyssey-erp/fulfillment/internal/picklist"
	"github.com/odyssey-erp/fulfillment/internal/shared"
	"github.com/odyssey-erp/fulfillment/internal/uom"
)

var tracer = otel.Tracer("fulfillment/stockentry")

// PickListConstraint is the unique constraint binding one stock entry to a pick list.
const PickListConstraint = "stock_entries_pick_list_id_key"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	WorkOrder(ctx context.Context, id int64) (WorkOrder, error)
	BOMInspectionRequired(ctx context.Context, bomNo string) (bool, error)
	MaterialRequestLineWarehouse(ctx context.Context, lineID int64) (int64, error)
	ExistsForPickList(ctx context.Context, pickListID int64) (bool, error)
	GetByPickList(ctx context.Context, pickListID int64) (StockEntryDraft, error)
	PendingWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]PendingWorkOrder, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Insert(ctx context.Context, entry *StockEntryDraft) error
}

// PickListReader loads pick lists.
type PickListReader interface {
	Get(ctx context.Context, id int64) (picklist.PickList, error)
}

// WarehouseLookup tells group warehouses from leaves.
type WarehouseLookup interface {
	IsGroup(ctx context.Context, id int64) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder counts derived documents.
type Recorder interface {
	ObserveDocuments(kind string, n int)
}

// Service derives and stores stock entries.
type Service struct {
	repo       RepositoryPort
	pickLists  PickListReader
	warehouses WarehouseLookup
	audit      AuditPort
	metrics    Recorder
	logger     *slog.Logger
}

// NewService builds Service. audit and metrics may be nil.
func NewService(repo RepositoryPort, pickLists PickListReader, warehouses WarehouseLookup, audit AuditPort, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		pickLists:  pickLists,
		warehouses: warehouses,
		audit:      audit,
		metrics:    metrics,
		logger:     logger,
	}
}

// DeriveStockEntry maps pl into a stock entry draft. Pick lists created
// from a work order transfer into its work-in-progress warehouse; those
// created from a material request transfer into the warehouse of each
// request line; all others carry only source warehouses.
func (s *Service) DeriveStockEntry(ctx context.Context, pl picklist.PickList) (StockEntryDraft, error) {
	ctx, span := tracer.Start(ctx, "stockentry.DeriveStockEntry")
	defer span.End()
	span.SetAttributes(attribute.Int64("pick_list_id", pl.ID), attribute.String("purpose", string(pl.Purpose)))

	if err := picklist.ValidateHasLocations(&pl); err != nil {
		return StockEntryDraft{}, err
	}
	if pl.Purpose == picklist.PurposeDelivery || !pl.Purpose.Valid() {
		return StockEntryDraft{}, shared.NewValidationError("", "Stock Entry cannot be created for a Pick List with purpose %q", pl.Purpose)
	}

	entry := StockEntryDraft{
		PickListID:        pl.ID,
		Purpose:           string(pl.Purpose),
		StockEntryType:    string(pl.Purpose),
		CompanyID:         pl.CompanyID,
		MaterialRequestID: pl.MaterialRequestID,
	}

	pl.Locations = pickedRows(pl.Locations)
	if len(pl.Locations) == 0 {
		return StockEntryDraft{}, shared.NewValidationError("", "Pick List %d has no picked quantity to transfer", pl.ID)
	}

	switch {
	case pl.WorkOrderID != 0:
		if err := s.fromWorkOrder(ctx, pl, &entry); err != nil {
			return StockEntryDraft{}, err
		}
	case pl.MaterialRequestID != 0:
		if err := s.fromMaterialRequest(ctx, pl, &entry); err != nil {
			return StockEntryDraft{}, err
		}
	default:
		for _, row := range pl.Locations {
			entry.Items = append(entry.Items, itemFrom(row, len(entry.Items)+1))
		}
	}
	return entry, nil
}

func (s *Service) fromWorkOrder(ctx context.Context, pl picklist.PickList, entry *StockEntryDraft) error {
	wo, err := s.repo.WorkOrder(ctx, pl.WorkOrderID)
	if err != nil {
		return fmt.Errorf("work order %d: %w", pl.WorkOrderID, err)
	}
	entry.WorkOrderID = wo.ID
	entry.CompanyID = wo.CompanyID
	entry.FromBOM = true
	entry.BOMNo = wo.BOMNo
	entry.UseMultiLevelBOM = wo.UseMultiLevelBOM
	entry.FGCompletedQty = pl.ForQty
	entry.ProjectID = wo.ProjectID
	if wo.BOMNo != "" {
		entry.InspectionRequired, err = s.repo.BOMInspectionRequired(ctx, wo.BOMNo)
		if err != nil {
			return fmt.Errorf("bom %s: %w", wo.BOMNo, err)
		}
	}

	wip := wo.WIPWarehouseID
	if wip != 0 && wo.SkipTransfer {
		group, err := s.warehouses.IsGroup(ctx, wip)
		if err != nil {
			return fmt.Errorf("wip warehouse %d: %w", wip, err)
		}
		if group {
			wip = 0
		}
	}
	entry.ToWarehouseID = wip

	for _, row := range pl.Locations {
		item := itemFrom(row, len(entry.Items)+1)
		item.TargetWarehouseID = wip
		entry.Items = append(entry.Items, item)
	}
	return nil
}

func (s *Service) fromMaterialRequest(ctx context.Context, pl picklist.PickList, entry *StockEntryDraft) error {
	for _, row := range pl.Locations {
		item := itemFrom(row, len(entry.Items)+1)
		if row.MaterialRequestItemID != 0 {
			target, err := s.repo.MaterialRequestLineWarehouse(ctx, row.MaterialRequestItemID)
			if err != nil {
				return fmt.Errorf("material request line %d: %w", row.MaterialRequestItemID, err)
			}
			item.TargetWarehouseID = target
		}
		entry.Items = append(entry.Items, item)
	}
	return nil
}

// pickedRows drops rows with nothing picked.
func pickedRows(rows []picklist.Location) []picklist.Location {
	out := make([]picklist.Location, 0, len(rows))
	for _, row := range rows {
		if row.PickedQty.IsPositive() {
			out = append(out, row)
		}
	}
	return out
}

// itemFrom copies the fields every stock entry line takes from its row.
func itemFrom(row picklist.Location, idx int) StockEntryItem {
	cf := uom.NormalizeFactor(row.ConversionFactor)
	return StockEntryItem{
		Idx:                   idx,
		ItemCode:              row.ItemCode,
		SourceWarehouseID:     row.WarehouseID,
		Qty:                   uom.ToTransactionQty(row.PickedQty, cf),
		TransferQty:           row.PickedQty,
		UOM:                   row.UOM,
		StockUOM:              row.StockUOM,
		ConversionFactor:      cf,
		BatchNo:               row.BatchNo,
		SerialNos:             append([]string(nil), row.SerialNos...),
		MaterialRequestID:     row.MaterialRequestID,
		MaterialRequestItemID: row.MaterialRequestItemID,
	}
}

// CreateStockEntry derives and stores the stock entry of a submitted pick
// list. A pick list feeds at most one stock entry.
func (s *Service) CreateStockEntry(ctx context.Context, pickListID int64) (StockEntryDraft, error) {
	pl, err := s.pickLists.Get(ctx, pickListID)
	if err != nil {
		return StockEntryDraft{}, err
	}
	if pl.Status != picklist.StatusSubmitted {
		return StockEntryDraft{}, fmt.Errorf("picklist %d is %s: %w", pickListID, pl.Status, shared.ErrInvalidStatus)
	}
	exists, err := s.repo.ExistsForPickList(ctx, pickListID)
	if err != nil {
		return StockEntryDraft{}, err
	}
	if exists {
		return StockEntryDraft{}, errAlreadyCreated()
	}

	entry, err := s.DeriveStockEntry(ctx, pl)
	if err != nil {
		return StockEntryDraft{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, &entry)
	})
	if err != nil {
		// a concurrent request won the race for the pick list
		if shared.IgnoreDuplicate(err, PickListConstraint) == nil {
			return StockEntryDraft{}, errAlreadyCreated()
		}
		return StockEntryDraft{}, fmt.Errorf("insert stock entry: %w", err)
	}

	s.logger.InfoContext(ctx, "stock entry created",
		slog.Int64("pick_list_id", pickListID), slog.Int64("stock_entry_id", entry.ID), slog.Int("items", len(entry.Items)))
	if s.metrics != nil {
		s.metrics.ObserveDocuments("stock_entry", 1)
	}
	s.record(ctx, entry)
	return entry, nil
}

func errAlreadyCreated() error {
	return shared.NewConflictError("Stock Entry has been already created against this Pick List")
}

// Get returns the stock entry stored for a pick list.
func (s *Service) Get(ctx context.Context, pickListID int64) (StockEntryDraft, error) {
	return s.repo.GetByPickList(ctx, pickListID)
}

// Exists reports whether a stock entry references the pick list.
func (s *Service) Exists(ctx context.Context, pickListID int64) (bool, error) {
	return s.repo.ExistsForPickList(ctx, pickListID)
}

// PendingWorkOrders lists submitted work orders of a company that still
// need material transferred, best name matches first.
func (s *Service) PendingWorkOrders(ctx context.Context, filter WorkOrderFilter) ([]PendingWorkOrder, error) {
	if filter.CompanyID <= 0 {
		return nil, shared.NewValidationError("", "company_id is required")
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.PendingWorkOrders(ctx, filter)
}

func (s *Service) record(ctx context.Context, entry StockEntryDraft) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   "stock_entry.create",
		Entity:   "stock_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta:     map[string]any{"pick_list_id": entry.PickListID, "purpose": entry.Purpose, "items": len(entry.Items)},
		At:       time.Now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", slog.Int64("stock_entry_id", entry.ID), slog.Any("error", err))
	}
}
