package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/odyssey-erp/fulfillment/internal/masterdata/items"
)

var tracer = otel.Tracer("fulfillment/inventory")

// Store abstracts the stock registries the sourcer reads.
type Store interface {
	BinLocations(ctx context.Context, itemCode string, companyID int64, warehouses []int64) ([]Candidate, error)
	AvailableSerials(ctx context.Context, filter SerialFilter) ([]SerialNo, error)
	BatchLocations(ctx context.Context, filter BatchFilter) ([]Candidate, error)
}

// ItemLookup resolves item master tracking flags.
type ItemLookup interface {
	Item(ctx context.Context, code string) (items.Item, error)
}

// ShortageRecorder counts shortage warnings.
type ShortageRecorder interface {
	ObserveShortage(itemCode string)
}

// Service finds candidate stock locations for items.
type Service struct {
	store    Store
	items    ItemLookup
	logger   *slog.Logger
	recorder ShortageRecorder
	now      func() time.Time
}

// NewService builds Service. recorder may be nil.
func NewService(store Store, lookup ItemLookup, logger *slog.Logger, recorder ShortageRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, items: lookup, logger: logger, recorder: recorder, now: time.Now}
}

// Locations returns the candidates for q.ItemCode in FIFO/FEFO order. When
// the candidates add up to less than the required qty a ShortageWarning is
// returned alongside them.
func (s *Service) Locations(ctx context.Context, q Query) ([]Candidate, *ShortageWarning, error) {
	if q.ItemCode == "" {
		return nil, nil, errors.New("inventory: item code required")
	}
	it, err := s.items.Item(ctx, q.ItemCode)
	if err != nil {
		return nil, nil, err
	}
	variant := VariantFor(it.HasSerialNo, it.HasBatchNo)

	ctx, span := tracer.Start(ctx, "inventory.Locations")
	defer span.End()
	span.SetAttributes(
		attribute.String("item_code", q.ItemCode),
		attribute.String("variant", variant.String()),
	)

	var locations []Candidate
	switch variant {
	case Serialized:
		locations, err = s.serialized(ctx, q)
	case Batched:
		locations, err = s.store.BatchLocations(ctx, s.batchFilter(q))
	case SerializedBatched:
		locations, err = s.serializedBatched(ctx, q)
	default:
		locations, err = s.store.BinLocations(ctx, q.ItemCode, q.CompanyID, q.Warehouses)
	}
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("inventory: source %s: %w", q.ItemCode, err)
	}

	available := decimal.Zero
	for _, loc := range locations {
		available = available.Add(loc.Qty)
	}
	remaining := q.RequiredQty.Sub(available)
	if !remaining.IsPositive() {
		return locations, nil, nil
	}
	warning := &ShortageWarning{ItemCode: q.ItemCode, Shortfall: remaining}
	s.logger.WarnContext(ctx, "insufficient stock",
		slog.String("item_code", q.ItemCode),
		slog.String("shortfall", remaining.String()),
	)
	if s.recorder != nil {
		s.recorder.ObserveShortage(q.ItemCode)
	}
	return locations, warning, nil
}

func (s *Service) batchFilter(q Query) BatchFilter {
	return BatchFilter{ItemCode: q.ItemCode, CompanyID: q.CompanyID, Warehouses: q.Warehouses, Today: s.now()}
}

func (s *Service) serialized(ctx context.Context, q Query) ([]Candidate, error) {
	limit := int(q.RequiredQty.Ceil().IntPart())
	if limit <= 0 {
		return nil, nil
	}
	serials, err := s.store.AvailableSerials(ctx, SerialFilter{
		ItemCode:   q.ItemCode,
		CompanyID:  q.CompanyID,
		Warehouses: q.Warehouses,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	return groupSerials(serials), nil
}

// groupSerials folds serial numbers into one candidate per warehouse, keeping
// the order in which warehouses first appear.
func groupSerials(serials []SerialNo) []Candidate {
	index := make(map[int64]int)
	var out []Candidate
	for _, sn := range serials {
		i, ok := index[sn.WarehouseID]
		if !ok {
			i = len(out)
			index[sn.WarehouseID] = i
			out = append(out, Candidate{WarehouseID: sn.WarehouseID})
		}
		out[i].SerialNos = append(out[i].SerialNos, sn.SerialNo)
	}
	for i := range out {
		out[i].Qty = decimal.NewFromInt(int64(len(out[i].SerialNos)))
	}
	return out
}

func (s *Service) serializedBatched(ctx context.Context, q Query) ([]Candidate, error) {
	batches, err := s.store.BatchLocations(ctx, s.batchFilter(q))
	if err != nil {
		return nil, err
	}
	outstanding := q.RequiredQty
	out := make([]Candidate, 0, len(batches))
	for _, b := range batches {
		if !outstanding.IsPositive() {
			break
		}
		limit := int(decimal.Min(b.Qty, outstanding).Floor().IntPart())
		if limit <= 0 {
			continue
		}
		serials, err := s.store.AvailableSerials(ctx, SerialFilter{
			ItemCode:    q.ItemCode,
			CompanyID:   q.CompanyID,
			WarehouseID: b.WarehouseID,
			BatchNo:     b.BatchNo,
			Limit:       limit,
		})
		if err != nil {
			return nil, err
		}
		if len(serials) == 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(len(serials)))
		b.Qty = qty
		b.SerialNos = make([]string, 0, len(serials))
		for _, sn := range serials {
			b.SerialNos = append(b.SerialNos, sn.SerialNo)
		}
		out = append(out, b)
		outstanding = outstanding.Sub(qty)
	}
	return out, nil
}
