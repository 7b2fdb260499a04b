package items

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// Repository reads item master data from PostgreSQL.
type Repository interface {
	GetItem(ctx context.Context, code string) (Item, error)
	GetUOM(ctx context.Context, name string) (UOM, error)
	ConversionFactor(ctx context.Context, itemCode, uom string) (decimal.Decimal, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetItem(ctx context.Context, code string) (Item, error) {
	var it Item
	err := pgxscan.Get(ctx, r.pool, &it, `
		SELECT code, name, item_group, stock_uom, has_serial_no, has_batch_no
		FROM items WHERE code = $1`, code)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Item{}, fmt.Errorf("item %s: %w", code, shared.ErrNotFound)
		}
		return Item{}, fmt.Errorf("get item %s: %w", code, err)
	}
	return it, nil
}

func (r *repository) GetUOM(ctx context.Context, name string) (UOM, error) {
	var u UOM
	err := pgxscan.Get(ctx, r.pool, &u, `SELECT name, must_be_whole_number FROM uoms WHERE name = $1`, name)
	if err != nil {
		if pgxscan.NotFound(err) {
			return UOM{Name: name}, nil
		}
		return UOM{}, fmt.Errorf("get uom %s: %w", name, err)
	}
	return u, nil
}

func (r *repository) ConversionFactor(ctx context.Context, itemCode, uom string) (decimal.Decimal, error) {
	var factor decimal.Decimal
	err := r.pool.QueryRow(ctx, `
		SELECT conversion_factor FROM item_uoms WHERE item_code = $1 AND uom = $2`, itemCode, uom).Scan(&factor)
	if err != nil {
		if pgxscan.NotFound(err) {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, fmt.Errorf("conversion factor %s/%s: %w", itemCode, uom, err)
	}
	return factor, nil
}
