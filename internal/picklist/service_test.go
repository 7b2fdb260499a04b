package picklist

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/masterdata/items"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type fixture struct {
	repo    *memoryRepo
	sourcer *memorySourcer
	catalog *memoryCatalog
	audit   *recordingAudit
	svc     *Service
}

func newFixture(t *testing.T, allowance float64) *fixture {
	t.Helper()
	f := &fixture{
		repo: newMemoryRepo(),
		sourcer: &memorySourcer{stock: map[string][]inventory.Candidate{
			"WIDGET": {{WarehouseID: 1, Qty: dec(5)}, {WarehouseID: 2, Qty: dec(3)}},
			"PHONE": {
				{WarehouseID: 1, Qty: dec(2), SerialNos: []string{"P1", "P2"}},
				{WarehouseID: 2, Qty: dec(1), SerialNos: []string{"P3"}},
			},
		}},
		catalog: &memoryCatalog{
			items: map[string]items.Item{
				"WIDGET": {Code: "WIDGET", StockUOM: "Nos", ItemGroup: "Parts"},
				"PHONE":  {Code: "PHONE", StockUOM: "Nos", HasSerialNo: true},
				"BOXED":  {Code: "BOXED", StockUOM: "Nos"},
			},
			uoms: map[string]items.UOM{
				"Nos": {Name: "Nos", MustBeWholeNumber: true},
				"Box": {Name: "Box", MustBeWholeNumber: true},
			},
			factors: map[string]decimal.Decimal{"BOXED/Box": dec(3)},
		},
		audit: &recordingAudit{},
	}
	f.repo.orders[100] = SalesOrder{ID: 100, CustomerID: 9}
	f.repo.lines[1000] = SalesOrderLine{ID: 1000, SalesOrderID: 100, ItemCode: "WIDGET", Qty: dec(10), StockQty: dec(10)}
	f.repo.lines[1001] = SalesOrderLine{ID: 1001, SalesOrderID: 100, ItemCode: "PHONE", Qty: dec(10), StockQty: dec(10)}
	f.svc = NewService(Deps{
		Repo:       f.repo,
		Sourcer:    f.sourcer,
		Catalog:    f.catalog,
		Warehouses: staticTree{10: {10, 1}},
		Audit:      f.audit,
	}, Config{OverDeliveryAllowance: dec(allowance)})
	return f
}

func widgetRequest(qty float64) CreateInput {
	return CreateInput{
		CompanyID: 1,
		Purpose:   PurposeDelivery,
		Locations: []LocationInput{{ItemCode: "WIDGET", Qty: dec(qty), SalesOrderID: 100, SalesOrderItemID: 1000}},
	}
}

func TestCreateAllocatesLocations(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	pl, result, err := f.svc.Create(ctx, widgetRequest(6))
	require.NoError(t, err)
	require.Empty(t, result.Warnings)
	require.Equal(t, StatusDraft, pl.Status)
	require.NotZero(t, pl.ID)
	require.Len(t, pl.Locations, 2)
	require.Equal(t, int64(1), pl.Locations[0].WarehouseID)
	requireDecimal(t, 5, pl.Locations[0].StockQty)
	require.Equal(t, int64(2), pl.Locations[1].WarehouseID)
	requireDecimal(t, 1, pl.Locations[1].StockQty)
	require.Equal(t, "Parts", pl.Locations[0].ItemGroup)
	require.Equal(t, []int{1, 2}, []int{pl.Locations[0].Idx, pl.Locations[1].Idx})
	require.Equal(t, []string{"picklist.create"}, f.audit.actions)

	stored, err := f.svc.Get(ctx, pl.ID)
	require.NoError(t, err)
	require.Len(t, stored.Locations, 2)
}

func TestCreateReportsShortage(t *testing.T) {
	f := newFixture(t, 0)

	pl, result, err := f.svc.Create(context.Background(), widgetRequest(10))
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	require.Equal(t, "WIDGET", result.Warnings[0].ItemCode)
	requireDecimal(t, 2, result.Warnings[0].Shortfall)
	require.Len(t, pl.Locations, 2)
}

func TestCreateSizesSourcingByItemTotal(t *testing.T) {
	f := newFixture(t, 0)
	in := CreateInput{CompanyID: 1, Purpose: PurposeMaterialTransfer, ParentWarehouseID: 10, Locations: []LocationInput{
		{ItemCode: "WIDGET", Qty: dec(2), MaterialRequestItemID: 1},
		{ItemCode: "WIDGET", Qty: dec(1), MaterialRequestItemID: 2},
	}}

	pl, _, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, f.sourcer.queries, 1)
	requireDecimal(t, 3, f.sourcer.queries[0].RequiredQty)
	require.Equal(t, []int64{10, 1}, f.sourcer.queries[0].Warehouses)
	for _, row := range pl.Locations {
		require.Equal(t, int64(1), row.WarehouseID)
	}
}

func TestCreateConvertsUOM(t *testing.T) {
	f := newFixture(t, 0)
	f.sourcer.stock["BOXED"] = []inventory.Candidate{{WarehouseID: 1, Qty: dec(100)}}
	in := CreateInput{CompanyID: 1, Purpose: PurposeMaterialTransfer, Locations: []LocationInput{
		{ItemCode: "BOXED", UOM: "Box", Qty: dec(2.5)},
	}}

	pl, _, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, pl.Locations, 1)
	requireDecimal(t, 3, pl.Locations[0].ConversionFactor)
	requireDecimal(t, 2, pl.Locations[0].Qty)
	requireDecimal(t, 6, pl.Locations[0].StockQty)
}

func TestCreateRejectsFullyPickedOrder(t *testing.T) {
	f := newFixture(t, 0)
	so := f.repo.orders[100]
	so.PerPicked = dec(100)
	f.repo.orders[100] = so

	_, _, err := f.svc.Create(context.Background(), widgetRequest(1))
	require.True(t, shared.IsConflict(err))
	require.Contains(t, err.Error(), "Row 1 has been picked already!")
	require.Empty(t, f.repo.pickLists)
}

func TestCreateManufactureNeedsForQty(t *testing.T) {
	f := newFixture(t, 0)
	in := widgetRequest(1)
	in.Purpose = PurposeMaterialTransferForManufacture

	_, _, err := f.svc.Create(context.Background(), in)
	require.True(t, shared.IsValidation(err))
}

func locationKey(l Location) string {
	return fmt.Sprintf("%s|%d|%s|%s|%s", l.ItemCode, l.WarehouseID, l.BatchNo, l.Qty, l.StockQty)
}

func TestReallocationIsIdempotent(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	pl, _, err := f.svc.Create(ctx, widgetRequest(7))
	require.NoError(t, err)

	again, _, err := f.svc.Reallocate(ctx, pl.ID)
	require.NoError(t, err)

	keys := func(rows []Location) []string {
		var out []string
		for _, r := range rows {
			out = append(out, locationKey(r))
		}
		sort.Strings(out)
		return out
	}
	require.Equal(t, keys(pl.Locations), keys(again.Locations))
}

func TestSubmitWritesBackAndCancelReverts(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	pl, _, err := f.svc.Create(ctx, widgetRequest(6))
	require.NoError(t, err)

	submitted, err := f.svc.Submit(ctx, pl.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, submitted.Status)
	requireDecimal(t, 5, submitted.Locations[0].PickedQty)
	requireDecimal(t, 1, submitted.Locations[1].PickedQty)

	requireDecimal(t, 6, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 30, f.repo.orders[100].PerPicked)

	cancelled, err := f.svc.Cancel(ctx, pl.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	requireDecimal(t, 0, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 0, f.repo.orders[100].PerPicked)
	require.Equal(t, []string{"picklist.create", "picklist.submit", "picklist.cancel"}, f.audit.actions)
}

func TestCancelKeepsOtherPickListsContribution(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	first, _, err := f.svc.Create(ctx, widgetRequest(2))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, first.ID)
	require.NoError(t, err)
	second, _, err := f.svc.Create(ctx, widgetRequest(3))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, second.ID)
	require.NoError(t, err)
	requireDecimal(t, 5, f.repo.lines[1000].PickedQty)

	_, err = f.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	requireDecimal(t, 3, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 15, f.repo.orders[100].PerPicked)
}

// The allowance is measured per sales order line against the line's stock
// qty, falling back to its qty when stock qty is unset, not against the
// order as a whole.
func TestSubmitRejectsOverDelivery(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	line := f.repo.lines[1000]
	line.PickedQty = dec(8)
	f.repo.lines[1000] = line

	pl, _, err := f.svc.Create(ctx, widgetRequest(5))
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, pl.ID)
	require.True(t, shared.IsValidation(err))
	require.Contains(t, err.Error(), "You are picking more than required quantity for WIDGET")
	requireDecimal(t, 8, f.repo.lines[1000].PickedQty)

	stored, err := f.svc.Get(ctx, pl.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
}

func TestSubmitWithinAllowance(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	line := f.repo.lines[1000]
	line.PickedQty = dec(8)
	f.repo.lines[1000] = line

	pl, _, err := f.svc.Create(ctx, widgetRequest(5))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, pl.ID)
	require.NoError(t, err)
	requireDecimal(t, 13, f.repo.lines[1000].PickedQty)
}

func TestSubmitValidatesSerials(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	in := CreateInput{CompanyID: 1, Purpose: PurposeDelivery, Locations: []LocationInput{
		{ItemCode: "PHONE", Qty: dec(3), SalesOrderID: 100, SalesOrderItemID: 1001},
	}}
	pl, _, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	for _, row := range pl.Locations {
		require.True(t, decimal.NewFromInt(int64(len(row.SerialNos))).Equal(row.StockQty))
	}

	stored := f.repo.pickLists[pl.ID]
	stored.Locations[0].PickedQty = dec(1)
	f.repo.pickLists[pl.ID] = stored

	_, err = f.svc.Submit(ctx, pl.ID)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Quantity Mismatch", verr.Title)
	requireDecimal(t, 0, f.repo.lines[1001].PickedQty)
}

func TestSubmitRequiresDraft(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	pl, _, err := f.svc.Create(ctx, widgetRequest(1))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, pl.ID)
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, pl.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	_, err = f.svc.Cancel(ctx, 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubmittedStockOutResetsRowsAndRestocks(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	pl, _, err := f.svc.Create(ctx, widgetRequest(4))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, pl.ID)
	require.NoError(t, err)

	f.sourcer.stock["WIDGET"] = nil
	reset, result, err := f.svc.Reallocate(ctx, pl.ID)
	require.NoError(t, err)
	require.True(t, result.OutOfStock)
	require.NotEmpty(t, result.Message())
	require.Len(t, reset.Locations, 1)
	requireDecimal(t, 0, reset.Locations[0].StockQty)
	requireDecimal(t, 0, reset.Locations[0].PickedQty)
	requireDecimal(t, 4, reset.Locations[0].Qty)
	requireDecimal(t, 0, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 0, f.repo.orders[100].PerPicked)

	restocked, err := f.svc.RestockOutOfStock(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, restocked)

	f.sourcer.stock["WIDGET"] = []inventory.Candidate{{WarehouseID: 2, Qty: dec(10)}}
	restocked, err = f.svc.RestockOutOfStock(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, restocked)

	stored, err := f.svc.Get(ctx, pl.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSubmitted, stored.Status)
	require.Len(t, stored.Locations, 1)
	require.Equal(t, int64(2), stored.Locations[0].WarehouseID)
	requireDecimal(t, 4, stored.Locations[0].StockQty)
	requireDecimal(t, 4, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 20, f.repo.orders[100].PerPicked)

	_, err = f.svc.Cancel(ctx, pl.ID)
	require.NoError(t, err)
	requireDecimal(t, 0, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 0, f.repo.orders[100].PerPicked)
}

func TestReallocatingSubmittedListTracksSalesOrder(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	pl, _, err := f.svc.Create(ctx, widgetRequest(6))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, pl.ID)
	require.NoError(t, err)
	requireDecimal(t, 6, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 30, f.repo.orders[100].PerPicked)

	f.sourcer.stock["WIDGET"] = nil
	_, result, err := f.svc.Reallocate(ctx, pl.ID)
	require.NoError(t, err)
	require.True(t, result.OutOfStock)
	requireDecimal(t, 0, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 0, f.repo.orders[100].PerPicked)

	// only part of the request comes back
	f.sourcer.stock["WIDGET"] = []inventory.Candidate{{WarehouseID: 2, Qty: dec(3)}}
	restocked, err := f.svc.RestockOutOfStock(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, restocked)

	stored, err := f.svc.Get(ctx, pl.ID)
	require.NoError(t, err)
	picked := decimal.Zero
	for _, row := range stored.Locations {
		picked = picked.Add(row.PickedQty)
	}
	requireDecimal(t, 3, picked)
	requireDecimal(t, 3, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 15, f.repo.orders[100].PerPicked)

	_, err = f.svc.Cancel(ctx, pl.ID)
	require.NoError(t, err)
	requireDecimal(t, 0, f.repo.lines[1000].PickedQty)
	requireDecimal(t, 0, f.repo.orders[100].PerPicked)
}

func TestReallocatingSubmittedListHonoursAllowance(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	pl, _, err := f.svc.Create(ctx, widgetRequest(4))
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, pl.ID)
	require.NoError(t, err)

	f.sourcer.stock["WIDGET"] = nil
	_, _, err = f.svc.Reallocate(ctx, pl.ID)
	require.NoError(t, err)

	// another pick list claims the order line while this one is out of stock
	line := f.repo.lines[1000]
	line.PickedQty = dec(8)
	f.repo.lines[1000] = line

	f.sourcer.stock["WIDGET"] = []inventory.Candidate{{WarehouseID: 2, Qty: dec(10)}}
	_, _, err = f.svc.Reallocate(ctx, pl.ID)
	require.True(t, shared.IsValidation(err))
	requireDecimal(t, 8, f.repo.lines[1000].PickedQty)

	restocked, err := f.svc.RestockOutOfStock(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, restocked)

	stored, err := f.svc.Get(ctx, pl.ID)
	require.NoError(t, err)
	requireDecimal(t, 0, stored.Locations[0].PickedQty)
}

func TestGetRejectsInvalidID(t *testing.T) {
	f := newFixture(t, 0)
	_, err := f.svc.Get(context.Background(), 0)
	require.True(t, shared.IsValidation(err))
	require.NotErrorIs(t, err, shared.ErrNotFound)
}

func TestPrintViewGroupsSameItems(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	in := CreateInput{CompanyID: 1, Purpose: PurposeMaterialTransfer, GroupSameItems: true, Locations: []LocationInput{
		{ItemCode: "WIDGET", Qty: dec(1), MaterialRequestItemID: 1},
		{ItemCode: "WIDGET", Qty: dec(2), MaterialRequestItemID: 2},
	}}
	pl, _, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	require.Len(t, pl.Locations, 2)

	view, err := f.svc.PrintView(ctx, pl.ID)
	require.NoError(t, err)
	require.Len(t, view.Locations, 1)
	requireDecimal(t, 3, view.Locations[0].Qty)
}

func TestConcurrentTransitionIsLocked(t *testing.T) {
	f := newFixture(t, 0)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	f.svc.locker = cache.NewLocker(client)
	ctx := context.Background()

	pl, _, err := f.svc.Create(ctx, widgetRequest(1))
	require.NoError(t, err)

	release, err := f.svc.locker.Acquire(ctx, shared.PickListLockKey(pl.ID), time.Minute)
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, pl.ID)
	require.ErrorIs(t, err, shared.ErrLocked)

	release()
	_, err = f.svc.Submit(ctx, pl.ID)
	require.NoError(t, err)
}
