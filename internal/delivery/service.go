package delivery

import (
	"context"
	"errors"
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

var tracer = otel.Tracer("fulfillment/delivery")

const idempotencyModule = "delivery_note"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	SalesOrder(ctx context.Context, id int64) (SalesOrder, error)
	SalesOrderLine(ctx context.Context, id int64) (SalesOrderLine, error)
	ProjectCostCenter(ctx context.Context, projectID int64) (int64, error)
	DefaultCostCenter(ctx context.Context, source CostCenterSource, name string, companyID int64) (int64, error)
	ExistsForPickList(ctx context.Context, pickListID int64) (bool, error)
	ListByPickList(ctx context.Context, pickListID int64) ([]DeliveryNoteDraft, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Insert(ctx context.Context, note *DeliveryNoteDraft) error
}

// PickListReader loads pick lists.
type PickListReader interface {
	Get(ctx context.Context, id int64) (picklist.PickList, error)
}

// StockEntryChecker reports whether a stock entry references a pick list.
type StockEntryChecker interface {
	Exists(ctx context.Context, pickListID int64) (bool, error)
}

// IdempotencyStore guards repeated creation requests.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Recorder counts derived documents.
type Recorder interface {
	ObserveDocuments(kind string, n int)
}

// Service derives and stores delivery notes.
type Service struct {
	repo        RepositoryPort
	pickLists   PickListReader
	stock       StockEntryChecker
	idempotency IdempotencyStore
	audit       AuditPort
	metrics     Recorder
	logger      *slog.Logger
}

// NewService builds Service. stock, idem, audit and metrics may be nil.
func NewService(repo RepositoryPort, pickLists PickListReader, stock StockEntryChecker, idem IdempotencyStore, audit AuditPort, metrics Recorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		pickLists:   pickLists,
		stock:       stock,
		idempotency: idem,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
	}
}

// DeriveDeliveryNotes maps the picked rows of pl into delivery note drafts:
// one note per customer of the referenced sales orders, in the order the
// customers first appear, plus one note for rows without a sales order.
func (s *Service) DeriveDeliveryNotes(ctx context.Context, pl picklist.PickList) ([]DeliveryNoteDraft, error) {
	ctx, span := tracer.Start(ctx, "delivery.DeriveDeliveryNotes")
	defer span.End()
	span.SetAttributes(attribute.Int64("pick_list_id", pl.ID))

	if err := picklist.ValidateHasLocations(&pl); err != nil {
		return nil, err
	}

	d := &deriver{service: s, pickList: pl, costCenters: make(map[costCenterKey]int64)}
	var customers []int64
	ordersByCustomer := make(map[int64][]SalesOrder)
	seenOrder := make(map[int64]bool)
	direct := false
	for _, row := range pl.Locations {
		if row.SalesOrderID == 0 {
			direct = true
			continue
		}
		if seenOrder[row.SalesOrderID] {
			continue
		}
		seenOrder[row.SalesOrderID] = true
		so, err := s.repo.SalesOrder(ctx, row.SalesOrderID)
		if err != nil {
			return nil, fmt.Errorf("sales order %d: %w", row.SalesOrderID, err)
		}
		if _, ok := ordersByCustomer[so.CustomerID]; !ok {
			customers = append(customers, so.CustomerID)
		}
		ordersByCustomer[so.CustomerID] = append(ordersByCustomer[so.CustomerID], so)
	}

	var notes []DeliveryNoteDraft
	for _, customerID := range customers {
		orders := ordersByCustomer[customerID]
		note := DeliveryNoteDraft{
			PickListID: pl.ID,
			CompanyID:  pl.CompanyID,
			CustomerID: customerID,
			ProjectID:  orders[0].ProjectID,
			Status:     StatusDraft,
		}
		for _, so := range orders {
			note.SalesOrderIDs = append(note.SalesOrderIDs, so.ID)
			if err := d.mapRows(ctx, &note, so.ID); err != nil {
				return nil, err
			}
		}
		if len(note.Items) > 0 {
			notes = append(notes, note)
		}
	}

	if direct {
		note := DeliveryNoteDraft{
			PickListID: pl.ID,
			CompanyID:  pl.CompanyID,
			CustomerID: pl.CustomerID,
			Status:     StatusDraft,
		}
		if err := d.mapRows(ctx, &note, 0); err != nil {
			return nil, err
		}
		if len(note.Items) > 0 {
			notes = append(notes, note)
		}
	}
	span.SetAttributes(attribute.Int("notes", len(notes)))
	return notes, nil
}

// CreateDeliveryNotes derives and stores the delivery notes of a submitted
// pick list. A non-empty requestID makes the call idempotent.
func (s *Service) CreateDeliveryNotes(ctx context.Context, pickListID int64, requestID string) ([]DeliveryNoteDraft, error) {
	pl, err := s.pickLists.Get(ctx, pickListID)
	if err != nil {
		return nil, err
	}
	if pl.Status != picklist.StatusSubmitted {
		return nil, fmt.Errorf("picklist %d is %s: %w", pickListID, pl.Status, shared.ErrInvalidStatus)
	}

	key := ""
	if requestID != "" && s.idempotency != nil {
		key = shared.DeliveryNoteIdempotencyKey(pickListID, requestID)
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, shared.NewConflictError("Delivery Note(s) already created for request %s", requestID)
			}
			return nil, err
		}
	}

	notes, err := s.createNotes(ctx, pl)
	if err != nil {
		if key != "" {
			if derr := s.idempotency.Delete(ctx, key); derr != nil {
				s.logger.ErrorContext(ctx, "release idempotency key failed", slog.String("key", key), slog.Any("error", derr))
			}
		}
		return nil, err
	}
	s.logger.InfoContext(ctx, "delivery notes created", slog.Int64("pick_list_id", pickListID), slog.Int("notes", len(notes)))
	if s.metrics != nil {
		s.metrics.ObserveDocuments("delivery_note", len(notes))
	}
	return notes, nil
}

func (s *Service) createNotes(ctx context.Context, pl picklist.PickList) ([]DeliveryNoteDraft, error) {
	notes, err := s.DeriveDeliveryNotes(ctx, pl)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, shared.NewValidationError("", "Pick List %d has nothing left to deliver", pl.ID)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for i := range notes {
			if err := tx.Insert(ctx, &notes[i]); err != nil {
				return fmt.Errorf("insert delivery note: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		s.record(ctx, note)
	}
	return notes, nil
}

// List returns the delivery notes stored for a pick list.
func (s *Service) List(ctx context.Context, pickListID int64) ([]DeliveryNoteDraft, error) {
	return s.repo.ListByPickList(ctx, pickListID)
}

// TargetDocumentExists reports whether the document a pick list of the
// given purpose feeds has been created.
func (s *Service) TargetDocumentExists(ctx context.Context, pickListID int64, purpose picklist.Purpose) (bool, error) {
	if purpose == picklist.PurposeDelivery {
		return s.repo.ExistsForPickList(ctx, pickListID)
	}
	if !purpose.Valid() {
		return false, shared.NewValidationError("", "unknown purpose %q", purpose)
	}
	if s.stock == nil {
		return false, errors.New("delivery: stock entry lookup not configured")
	}
	return s.stock.Exists(ctx, pickListID)
}

func (s *Service) record(ctx context.Context, note DeliveryNoteDraft) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   "delivery_note.create",
		Entity:   "delivery_note",
		EntityID: strconv.FormatInt(note.ID, 10),
		Meta:     map[string]any{"pick_list_id": note.PickListID, "customer_id": note.CustomerID, "items": len(note.Items)},
		At:       time.Now().UTC(),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit record failed", slog.Int64("delivery_note_id", note.ID), slog.Any("error", err))
	}
}

// ============================================================================
// ROW MAPPING
// ============================================================================

type costCenterKey struct {
	source CostCenterSource
	name   string
}

// deriver holds per-call lookups while mapping one pick list.
type deriver struct {
	service     *Service
	pickList    picklist.PickList
	costCenters map[costCenterKey]int64
}

// mapRows appends the rows of salesOrderID (zero for direct issue rows) to note.
func (d *deriver) mapRows(ctx context.Context, note *DeliveryNoteDraft, salesOrderID int64) error {
	for _, row := range d.pickList.Locations {
		if row.SalesOrderID != salesOrderID || !row.PickedQty.IsPositive() {
			continue
		}
		item := DeliveryNoteItem{
			ItemCode:         row.ItemCode,
			ItemName:         row.ItemName,
			UOM:              row.UOM,
			StockUOM:         row.StockUOM,
			ConversionFactor: uom.NormalizeFactor(row.ConversionFactor),
			StockQty:         row.PickedQty,
			WarehouseID:      row.WarehouseID,
			BatchNo:          row.BatchNo,
			SerialNos:        append([]string(nil), row.SerialNos...),
		}
		if row.SalesOrderItemID != 0 {
			line, err := d.service.repo.SalesOrderLine(ctx, row.SalesOrderItemID)
			if err != nil {
				return fmt.Errorf("sales order line %d: %w", row.SalesOrderItemID, err)
			}
			if !line.Deliverable() {
				continue
			}
			item.Rate = line.Rate
			if line.UOM != "" {
				item.UOM = line.UOM
			}
			if line.ConversionFactor.IsPositive() {
				item.ConversionFactor = line.ConversionFactor
			}
			item.SalesOrderID = line.SalesOrderID
			item.SalesOrderItemID = line.ID
		}
		item.Qty = uom.ToTransactionQty(row.PickedQty, item.ConversionFactor)

		cc, err := d.costCenter(ctx, note.ProjectID, row)
		if err != nil {
			return err
		}
		item.CostCenterID = cc
		item.Idx = len(note.Items) + 1
		note.Items = append(note.Items, item)
	}
	return nil
}

// costCenter resolves the project cost center, then the item default, then
// the item group default of the pick list company. Zero means none.
func (d *deriver) costCenter(ctx context.Context, projectID int64, row picklist.Location) (int64, error) {
	if projectID != 0 {
		id, err := d.service.repo.ProjectCostCenter(ctx, projectID)
		if err != nil {
			return 0, fmt.Errorf("project %d cost center: %w", projectID, err)
		}
		if id != 0 {
			return id, nil
		}
	}
	for _, key := range []costCenterKey{{CostCenterItem, row.ItemCode}, {CostCenterItemGroup, row.ItemGroup}} {
		if key.name == "" {
			continue
		}
		id, ok := d.costCenters[key]
		if !ok {
			var err error
			id, err = d.service.repo.DefaultCostCenter(ctx, key.source, key.name, d.pickList.CompanyID)
			if err != nil {
				return 0, fmt.Errorf("%s %s cost center: %w", key.source, key.name, err)
			}
			d.costCenters[key] = id
		}
		if id != 0 {
			return id, nil
		}
	}
	return 0, nil
}
