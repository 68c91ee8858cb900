package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memora-ai/memora/pkg/types"
)

// DefaultRetryDelay is the backoff before the single store retry.
const DefaultRetryDelay = 250 * time.Millisecond

// Retried wraps a Store so that a transient failure is retried once after a
// short backoff. Definitive outcomes (not found, dimension mismatch,
// validation, context cancellation) pass through untouched. Wrap outside the
// gate so the second attempt acquires its own slot.
func Retried(s Store, delay time.Duration) Store {
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &retriedStore{inner: s, delay: delay}
}

type retriedStore struct {
	inner Store
	delay time.Duration
}

// definitive reports whether a second attempt cannot change the outcome.
func definitive(err error) bool {
	return errors.Is(err, types.ErrNotFound) ||
		errors.Is(err, types.ErrDimensionMismatch) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		types.IsValidation(err)
}

func (s *retriedStore) do(ctx context.Context, call func() error) error {
	err := call()
	if err == nil || definitive(err) {
		return err
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
	}
	return call()
}

func (s *retriedStore) PutUnit(ctx context.Context, unit *types.MemoryUnit, links []types.Link) error {
	return s.do(ctx, func() error { return s.inner.PutUnit(ctx, unit, links) })
}

func (s *retriedStore) GetUnit(ctx context.Context, id string) (*types.MemoryUnit, error) {
	var out *types.MemoryUnit
	err := s.do(ctx, func() error {
		var err error
		out, err = s.inner.GetUnit(ctx, id)
		return err
	})
	return out, err
}

func (s *retriedStore) DeleteUnit(ctx context.Context, id string) error {
	return s.do(ctx, func() error { return s.inner.DeleteUnit(ctx, id) })
}

func (s *retriedStore) IncrementAccess(ctx context.Context, ids []string) error {
	return s.do(ctx, func() error { return s.inner.IncrementAccess(ctx, ids) })
}

func (s *retriedStore) VectorSearch(ctx context.Context, q VectorQuery) ([]ScoredUnit, error) {
	var out []ScoredUnit
	err := s.do(ctx, func() error {
		var err error
		out, err = s.inner.VectorSearch(ctx, q)
		return err
	})
	return out, err
}

func (s *retriedStore) TextSearch(ctx context.Context, q TextQuery) ([]ScoredUnit, error) {
	var out []ScoredUnit
	err := s.do(ctx, func() error {
		var err error
		out, err = s.inner.TextSearch(ctx, q)
		return err
	})
	return out, err
}

func (s *retriedStore) Neighbors(ctx context.Context, unitID string, linkTypes []types.LinkType, limit int) ([]types.Neighbor, error) {
	var out []types.Neighbor
	err := s.do(ctx, func() error {
		var err error
		out, err = s.inner.Neighbors(ctx, unitID, linkTypes, limit)
		return err
	})
	return out, err
}

func (s *retriedStore) RangeSearch(ctx context.Context, q RangeQuery) ([]*types.MemoryUnit, error) {
	var out []*types.MemoryUnit
	err := s.do(ctx, func() error {
		var err error
		out, err = s.inner.RangeSearch(ctx, q)
		return err
	})
	return out, err
}

func (s *retriedStore) PutEntity(ctx context.Context, e *types.Entity) error {
	return s.do(ctx, func() error { return s.inner.PutEntity(ctx, e) })
}

func (s *retriedStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	var out *types.Entity
	err := s.do(ctx, func() error {
		var err error
		out, err = s.inner.GetEntity(ctx, id)
		return err
	})
	return out, err
}

func (s *retriedStore) EntitiesByType(ctx context.Context, t types.EntityType) ([]*types.Entity, error) {
	var out []*types.Entity
	err := s.do(ctx, func() error {
		var err error
		out, err = s.inner.EntitiesByType(ctx, t)
		return err
	})
	return out, err
}

func (s *retriedStore) Close() error { return s.inner.Close() }
