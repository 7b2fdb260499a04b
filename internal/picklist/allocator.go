package picklist

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/uom"
)

// locationQueue holds the remaining candidates of one item for a single
// allocation pass. Partly consumed candidates go back to the front.
type locationQueue struct {
	items []inventory.Candidate
}

func newLocationQueue(candidates []inventory.Candidate) *locationQueue {
	items := make([]inventory.Candidate, len(candidates))
	for i, c := range candidates {
		c.SerialNos = append([]string(nil), c.SerialNos...)
		items[i] = c
	}
	return &locationQueue{items: items}
}

func (q *locationQueue) Len() int { return len(q.items) }

func (q *locationQueue) PopFront() inventory.Candidate {
	c := q.items[0]
	q.items = q.items[1:]
	return c
}

func (q *locationQueue) PushFront(c inventory.Candidate) {
	q.items = append([]inventory.Candidate{c}, q.items...)
}

// Remaining returns a copy of the queued candidates.
func (q *locationQueue) Remaining() []inventory.Candidate {
	return append([]inventory.Candidate(nil), q.items...)
}

// allocator assigns candidates to request lines. Later lines of an item see
// only the capacity earlier lines left behind.
type allocator struct {
	queues map[string]*locationQueue
}

func newAllocator() *allocator {
	return &allocator{queues: make(map[string]*locationQueue)}
}

func (a *allocator) has(itemCode string) bool {
	_, ok := a.queues[itemCode]
	return ok
}

func (a *allocator) load(itemCode string, candidates []inventory.Candidate) {
	a.queues[itemCode] = newLocationQueue(candidates)
}

// allocate splits line across the item's queued candidates, returning one
// row per candidate used.
func (a *allocator) allocate(line Location, conv uom.Conversion, submitted bool) []Location {
	queue, ok := a.queues[line.ItemCode]
	if !ok {
		return nil
	}
	remaining := requiredStockQty(line, submitted)

	var rows []Location
	for remaining.IsPositive() && queue.Len() > 0 {
		candidate := queue.PopFront()
		serialized := len(candidate.SerialNos) > 0

		assign := decimal.Min(remaining, candidate.Qty)
		if serialized {
			assign = assign.Floor()
		}
		qty, assign := conv.Fit(assign)
		if !assign.IsPositive() || (serialized && !assign.Equal(assign.Floor())) {
			queue.PushFront(candidate)
			break
		}

		row := line
		row.ID = 0
		row.Qty = qty
		row.StockQty = assign
		row.PickedQty = decimal.Zero
		if submitted {
			row.PickedQty = assign
		}
		row.WarehouseID = candidate.WarehouseID
		row.BatchNo = candidate.BatchNo
		row.SerialNos = nil
		used := 0
		if serialized {
			used = int(assign.IntPart())
			if used > len(candidate.SerialNos) {
				used = len(candidate.SerialNos)
			}
			row.SerialNos = append([]string(nil), candidate.SerialNos[:used]...)
		}
		rows = append(rows, row)

		remaining = remaining.Sub(assign)
		leftover := candidate.Qty.Sub(assign)
		if leftover.IsPositive() {
			candidate.Qty = leftover
			if serialized {
				candidate.SerialNos = candidate.SerialNos[used:]
			}
			queue.PushFront(candidate)
		}
	}
	return rows
}
