package warehouses

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

type Repository interface {
	Get(ctx context.Context, id int64) (Warehouse, error)
	Subtree(ctx context.Context, rootID int64) ([]int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	var w Warehouse
	err := pgxscan.Get(ctx, r.pool, &w, `
		SELECT id, company_id, parent_id, code, name, is_group, created_at
		FROM warehouses WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return Warehouse{}, shared.ErrNotFound
		}
		return Warehouse{}, fmt.Errorf("get warehouse %d: %w", id, err)
	}
	return w, nil
}

// Subtree returns rootID followed by every warehouse below it.
func (r *repository) Subtree(ctx context.Context, rootID int64) ([]int64, error) {
	var ids []int64
	err := pgxscan.Select(ctx, r.pool, &ids, `
		WITH RECURSIVE tree AS (
			SELECT id, 0 AS depth FROM warehouses WHERE id = $1
			UNION ALL
			SELECT w.id, t.depth + 1 FROM warehouses w JOIN tree t ON w.parent_id = t.id
		)
		SELECT id FROM tree ORDER BY depth, id`, rootID)
	if err != nil {
		return nil, fmt.Errorf("warehouse subtree %d: %w", rootID, err)
	}
	if len(ids) == 0 {
		return nil, errors.Join(shared.ErrNotFound, fmt.Errorf("warehouse %d", rootID))
	}
	return ids, nil
}
