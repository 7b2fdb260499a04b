package items

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Service answers item master questions through the cache.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService builds Service.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Item returns the item master record.
func (s *Service) Item(ctx context.Context, code string) (Item, error) {
	if strings.TrimSpace(code) == "" {
		return Item{}, errors.New("items: item code required")
	}
	return cached(ctx, s.cache, "item:"+code, func(ctx context.Context) (Item, error) {
		return s.repo.GetItem(ctx, code)
	})
}

// UOM returns the unit of measure record. Unknown units are fractional.
func (s *Service) UOM(ctx context.Context, name string) (UOM, error) {
	if name == "" {
		return UOM{}, nil
	}
	return cached(ctx, s.cache, "uom:"+name, func(ctx context.Context) (UOM, error) {
		return s.repo.GetUOM(ctx, name)
	})
}

// Details returns the stock unit of an item and, when uom is given, the
// conversion factor from uom to the stock unit.
func (s *Service) Details(ctx context.Context, code, uom string) (Details, error) {
	it, err := s.Item(ctx, code)
	if err != nil {
		return Details{}, err
	}
	out := Details{ItemCode: it.Code, StockUOM: it.StockUOM, UOM: it.StockUOM, ConversionFactor: decimal.NewFromInt(1)}
	if uom == "" || uom == it.StockUOM {
		return out, nil
	}
	factor, err := s.repo.ConversionFactor(ctx, code, uom)
	if err != nil {
		return Details{}, err
	}
	out.UOM = uom
	out.ConversionFactor = factor
	return out, nil
}
