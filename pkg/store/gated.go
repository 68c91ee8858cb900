package store

import (
	"context"

	"github.com/memora-ai/memora/pkg/types"
)

// Gated wraps a Store so that every call acquires a slot from the gate before
// touching the backend and releases it on completion or error. Wrapping at
// this level keeps individual components unaware of backpressure.
func Gated(s Store, g *Gate) Store {
	return &gatedStore{inner: s, gate: g}
}

type gatedStore struct {
	inner Store
	gate  *Gate
}

func (s *gatedStore) PutUnit(ctx context.Context, unit *types.MemoryUnit, links []types.Link) error {
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.Release()
	return s.inner.PutUnit(ctx, unit, links)
}

func (s *gatedStore) GetUnit(ctx context.Context, id string) (*types.MemoryUnit, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()
	return s.inner.GetUnit(ctx, id)
}

func (s *gatedStore) DeleteUnit(ctx context.Context, id string) error {
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.Release()
	return s.inner.DeleteUnit(ctx, id)
}

func (s *gatedStore) IncrementAccess(ctx context.Context, ids []string) error {
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.Release()
	return s.inner.IncrementAccess(ctx, ids)
}

func (s *gatedStore) VectorSearch(ctx context.Context, q VectorQuery) ([]ScoredUnit, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()
	return s.inner.VectorSearch(ctx, q)
}

func (s *gatedStore) TextSearch(ctx context.Context, q TextQuery) ([]ScoredUnit, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()
	return s.inner.TextSearch(ctx, q)
}

func (s *gatedStore) Neighbors(ctx context.Context, unitID string, linkTypes []types.LinkType, limit int) ([]types.Neighbor, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()
	return s.inner.Neighbors(ctx, unitID, linkTypes, limit)
}

func (s *gatedStore) RangeSearch(ctx context.Context, q RangeQuery) ([]*types.MemoryUnit, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()
	return s.inner.RangeSearch(ctx, q)
}

func (s *gatedStore) PutEntity(ctx context.Context, e *types.Entity) error {
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.Release()
	return s.inner.PutEntity(ctx, e)
}

func (s *gatedStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()
	return s.inner.GetEntity(ctx, id)
}

func (s *gatedStore) EntitiesByType(ctx context.Context, t types.EntityType) ([]*types.Entity, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release()
	return s.inner.EntitiesByType(ctx, t)
}

func (s *gatedStore) Close() error { return s.inner.Close() }
