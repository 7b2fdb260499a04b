package warehouses

import (
	"context"
	"errors"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, errors.New("invalid warehouse ID")
	}
	return s.repo.Get(ctx, id)
}

// Subtree resolves the warehouses a pick list restricted to rootID may source
// from: the root itself and all of its descendants.
func (s *Service) Subtree(ctx context.Context, rootID int64) ([]int64, error) {
	if rootID <= 0 {
		return nil, errors.New("invalid warehouse ID")
	}
	return s.repo.Subtree(ctx, rootID)
}

// IsGroup reports whether the warehouse is a non-leaf group node.
func (s *Service) IsGroup(ctx context.Context, id int64) (bool, error) {
	w, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return w.IsGroup, nil
}
