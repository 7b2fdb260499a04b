package picklist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/fulfillment/internal/masterdata/items"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

func TestValidateBeforeSubmitDefaultsPickedQty(t *testing.T) {
	pl := &PickList{Locations: []Location{
		{Idx: 1, ItemCode: "A", StockQty: dec(4)},
		{Idx: 2, ItemCode: "A", StockQty: dec(4), PickedQty: dec(3)},
	}}
	require.NoError(t, ValidateBeforeSubmit(pl, map[string]items.Item{"A": {Code: "A"}}))
	requireDecimal(t, 4, pl.Locations[0].PickedQty)
	requireDecimal(t, 3, pl.Locations[1].PickedQty)
}

func TestValidateBeforeSubmitSerials(t *testing.T) {
	catalog := map[string]items.Item{"S": {Code: "S", HasSerialNo: true}}

	pl := &PickList{Locations: []Location{{Idx: 1, ItemCode: "S", StockQty: dec(2), WarehouseID: 3}}}
	err := ValidateBeforeSubmit(pl, catalog)
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Serial Nos Required", verr.Title)

	pl = &PickList{Locations: []Location{{Idx: 1, ItemCode: "S", StockQty: dec(2), SerialNos: []string{"S1"}}}}
	err = ValidateBeforeSubmit(pl, catalog)
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Quantity Mismatch", verr.Title)

	pl = &PickList{Locations: []Location{{Idx: 1, ItemCode: "S", StockQty: dec(2), SerialNos: []string{"S1", "S2"}}}}
	require.NoError(t, ValidateBeforeSubmit(pl, catalog))
}

func TestValidateHasLocations(t *testing.T) {
	require.True(t, shared.IsValidation(ValidateHasLocations(&PickList{})))
	require.NoError(t, ValidateHasLocations(&PickList{Locations: []Location{{ItemCode: "A"}}}))
}

func TestGroupSimilarItems(t *testing.T) {
	rows := []Location{
		{Idx: 1, ItemCode: "A", WarehouseID: 1, Qty: dec(2), PickedQty: dec(2)},
		{Idx: 2, ItemCode: "B", WarehouseID: 1, Qty: dec(1), PickedQty: dec(1)},
		{Idx: 3, ItemCode: "A", WarehouseID: 1, Qty: dec(3), PickedQty: dec(1)},
		{Idx: 4, ItemCode: "A", WarehouseID: 2, Qty: dec(5), PickedQty: dec(0)},
	}
	grouped := GroupSimilarItems(rows)
	require.Len(t, grouped, 3)
	require.Equal(t, "A", grouped[0].ItemCode)
	requireDecimal(t, 5, grouped[0].Qty)
	requireDecimal(t, 5, grouped[0].StockQty)
	requireDecimal(t, 3, grouped[0].PickedQty)
	require.Equal(t, "B", grouped[1].ItemCode)
	require.Equal(t, int64(2), grouped[2].WarehouseID)
	for i, row := range grouped {
		require.Equal(t, i+1, row.Idx)
	}
}
