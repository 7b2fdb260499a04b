package picklist

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/masterdata/items"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type memoryRepo struct {
	pickLists map[int64]PickList
	orders    map[int64]SalesOrder
	lines     map[int64]SalesOrderLine
	nextID    int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		pickLists: make(map[int64]PickList),
		orders:    make(map[int64]SalesOrder),
		lines:     make(map[int64]SalesOrderLine),
	}
}

func clonePickList(pl PickList) PickList {
	rows := make([]Location, len(pl.Locations))
	for i, row := range pl.Locations {
		row.SerialNos = append([]string(nil), row.SerialNos...)
		rows[i] = row
	}
	pl.Locations = rows
	return pl
}

func (r *memoryRepo) snapshot() *memoryRepo {
	cp := newMemoryRepo()
	cp.nextID = r.nextID
	for k, v := range r.pickLists {
		cp.pickLists[k] = clonePickList(v)
	}
	for k, v := range r.orders {
		cp.orders[k] = v
	}
	for k, v := range r.lines {
		cp.lines[k] = v
	}
	return cp
}

// WithTx restores the previous state when fn fails, like a rollback.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := r.snapshot()
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		*r = *before
		return err
	}
	return nil
}

func (r *memoryRepo) Get(_ context.Context, id int64) (PickList, error) {
	pl, ok := r.pickLists[id]
	if !ok {
		return PickList{}, shared.ErrNotFound
	}
	return clonePickList(pl), nil
}

func (r *memoryRepo) SalesOrder(_ context.Context, id int64) (SalesOrder, error) {
	so, ok := r.orders[id]
	if !ok {
		return SalesOrder{}, shared.ErrNotFound
	}
	return so, nil
}

func (r *memoryRepo) ListOutOfStock(_ context.Context, limit int) ([]int64, error) {
	var ids []int64
	for id, pl := range r.pickLists {
		if pl.Status != StatusSubmitted || len(pl.Locations) == 0 {
			continue
		}
		empty := true
		for _, row := range pl.Locations {
			if row.StockQty.IsPositive() {
				empty = false
				break
			}
		}
		if empty {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (tx *memoryTx) Insert(_ context.Context, pl *PickList) error {
	tx.repo.nextID++
	pl.ID = tx.repo.nextID
	pl.Name = "PICK-TEST"
	tx.repo.pickLists[pl.ID] = clonePickList(*pl)
	return nil
}

func (tx *memoryTx) Update(_ context.Context, pl *PickList) error {
	if _, ok := tx.repo.pickLists[pl.ID]; !ok {
		return shared.ErrNotFound
	}
	tx.repo.pickLists[pl.ID] = clonePickList(*pl)
	return nil
}

func (tx *memoryTx) SalesOrderLineForUpdate(_ context.Context, lineID int64) (SalesOrderLine, error) {
	line, ok := tx.repo.lines[lineID]
	if !ok {
		return SalesOrderLine{}, shared.ErrNotFound
	}
	return line, nil
}

func (tx *memoryTx) SetSalesOrderLinePicked(_ context.Context, lineID int64, picked decimal.Decimal) error {
	line := tx.repo.lines[lineID]
	line.PickedQty = picked
	tx.repo.lines[lineID] = line
	return nil
}

func (tx *memoryTx) SalesOrderLines(_ context.Context, salesOrderID int64) ([]SalesOrderLine, error) {
	var out []SalesOrderLine
	for _, line := range tx.repo.lines {
		if line.SalesOrderID == salesOrderID {
			out = append(out, line)
		}
	}
	return out, nil
}

func (tx *memoryTx) SetSalesOrderPerPicked(_ context.Context, salesOrderID int64, perPicked decimal.Decimal) error {
	so := tx.repo.orders[salesOrderID]
	so.PerPicked = perPicked
	tx.repo.orders[salesOrderID] = so
	return nil
}

// memorySourcer serves fixed candidates per item, in order.
type memorySourcer struct {
	stock   map[string][]inventory.Candidate
	queries []inventory.Query
}

func (m *memorySourcer) Locations(_ context.Context, q inventory.Query) ([]inventory.Candidate, *inventory.ShortageWarning, error) {
	m.queries = append(m.queries, q)
	var out []inventory.Candidate
	total := decimal.Zero
	for _, c := range m.stock[q.ItemCode] {
		if len(q.Warehouses) > 0 && !containsWarehouse(q.Warehouses, c.WarehouseID) {
			continue
		}
		c.SerialNos = append([]string(nil), c.SerialNos...)
		out = append(out, c)
		total = total.Add(c.Qty)
	}
	if shortfall := q.RequiredQty.Sub(total); shortfall.IsPositive() {
		return out, &inventory.ShortageWarning{ItemCode: q.ItemCode, Shortfall: shortfall}, nil
	}
	return out, nil, nil
}

func containsWarehouse(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

type memoryCatalog struct {
	items   map[string]items.Item
	uoms    map[string]items.UOM
	factors map[string]decimal.Decimal
}

func (c *memoryCatalog) Item(_ context.Context, code string) (items.Item, error) {
	it, ok := c.items[code]
	if !ok {
		return items.Item{}, shared.ErrNotFound
	}
	return it, nil
}

func (c *memoryCatalog) UOM(_ context.Context, name string) (items.UOM, error) {
	return c.uoms[name], nil
}

func (c *memoryCatalog) Details(ctx context.Context, code, uom string) (items.Details, error) {
	it, err := c.Item(ctx, code)
	if err != nil {
		return items.Details{}, err
	}
	if uom == "" {
		uom = it.StockUOM
	}
	factor, ok := c.factors[code+"/"+uom]
	if !ok {
		factor = decimal.NewFromInt(1)
	}
	return items.Details{ItemCode: code, StockUOM: it.StockUOM, UOM: uom, ConversionFactor: factor}, nil
}

type staticTree map[int64][]int64

func (t staticTree) Subtree(_ context.Context, rootID int64) ([]int64, error) {
	ids, ok := t[rootID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return ids, nil
}

type recordingAudit struct {
	actions []string
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func requireDecimal(t interface {
	Helper()
	Fatalf(string, ...any)
}, want float64, got decimal.Decimal) {
	t.Helper()
	if !dec(want).Equal(got) {
		t.Fatalf("expected %v, got %s", want, got.String())
	}
}
