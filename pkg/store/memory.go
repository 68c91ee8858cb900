package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/memora-ai/memora/pkg/types"
)

// BM25 defaults, tunable via SetBM25Params.
const (
	DefaultBM25K1 = 1.2
	DefaultBM25B  = 0.75
)

// MemoryStore is an in-process Store used by tests, examples, and single-node
// deployments that do not need durability. All operations are safe for
// concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	units    map[string]*types.MemoryUnit
	adjacent map[string][]types.Neighbor
	entities map[string]*types.Entity
	dims     int

	bm25K1 float64
	bm25B  float64
}

// NewMemoryStore creates an empty in-memory store. Embedding dimensionality is
// fixed by the first unit stored.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units:    make(map[string]*types.MemoryUnit),
		adjacent: make(map[string][]types.Neighbor),
		entities: make(map[string]*types.Entity),
		bm25K1:   DefaultBM25K1,
		bm25B:    DefaultBM25B,
	}
}

// SetBM25Params overrides the ranking parameters used by TextSearch.
func (s *MemoryStore) SetBM25Params(k1, b float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k1 > 0 {
		s.bm25K1 = k1
	}
	if b >= 0 && b <= 1 {
		s.bm25B = b
	}
}

// PutUnit stores a unit together with its links. The write is all-or-nothing:
// a failed validation leaves no partial link state behind.
func (s *MemoryStore) PutUnit(ctx context.Context, unit *types.MemoryUnit, links []types.Link) error {
	if err := unit.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(unit.Embedding) > 0 {
		if s.dims == 0 {
			s.dims = len(unit.Embedding)
		} else if len(unit.Embedding) != s.dims {
			return fmt.Errorf("unit %s: %w: got %d, store has %d",
				unit.ID, types.ErrDimensionMismatch, len(unit.Embedding), s.dims)
		}
	}
	for _, l := range links {
		other := l.TargetID
		if other == unit.ID {
			other = l.SourceID
		}
		if _, ok := s.units[other]; !ok {
			return fmt.Errorf("link target %s: %w", other, types.ErrNotFound)
		}
	}

	cp := *unit
	cp.Embedding = append([]float32(nil), unit.Embedding...)
	s.units[unit.ID] = &cp

	// Links are symmetric: record both directions.
	for _, l := range links {
		s.adjacent[l.SourceID] = append(s.adjacent[l.SourceID],
			types.Neighbor{UnitID: l.TargetID, Type: l.Type, Weight: l.Weight})
		s.adjacent[l.TargetID] = append(s.adjacent[l.TargetID],
			types.Neighbor{UnitID: l.SourceID, Type: l.Type, Weight: l.Weight})
	}
	return nil
}

// GetUnit returns a copy of the stored unit.
func (s *MemoryStore) GetUnit(ctx context.Context, id string) (*types.MemoryUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return nil, fmt.Errorf("unit %s: %w", id, types.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

// DeleteUnit removes the unit and detaches every link referencing it.
func (s *MemoryStore) DeleteUnit(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[id]; !ok {
		return fmt.Errorf("unit %s: %w", id, types.ErrNotFound)
	}
	delete(s.units, id)
	for _, n := range s.adjacent[id] {
		s.adjacent[n.UnitID] = removeNeighbor(s.adjacent[n.UnitID], id)
	}
	delete(s.adjacent, id)
	for _, e := range s.entities {
		e.UnitIDs = removeString(e.UnitIDs, id)
	}
	return nil
}

// IncrementAccess bumps the access count for each id. Unknown ids are skipped.
func (s *MemoryStore) IncrementAccess(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if u, ok := s.units[id]; ok {
			u.AccessCount++
		}
	}
	return nil
}

// VectorSearch ranks units by cosine similarity to the query vector,
// descending, keeping only scores at or above the threshold.
func (s *MemoryStore) VectorSearch(ctx context.Context, q VectorQuery) ([]ScoredUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var units []*types.MemoryUnit
	for _, u := range s.units {
		if u.AgentID != q.AgentID || !matchesFactTypes(u, q.FactTypes) {
			continue
		}
		cp := *u
		units = append(units, &cp)
	}
	return RankByCosine(units, q.Vector, q.Threshold, q.Limit), nil
}

// TextSearch ranks units by BM25 over whitespace-and-punctuation tokens.
func (s *MemoryStore) TextSearch(ctx context.Context, q TextQuery) ([]ScoredUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var units []*types.MemoryUnit
	for _, u := range s.units {
		if u.AgentID != q.AgentID || !matchesFactTypes(u, q.FactTypes) {
			continue
		}
		cp := *u
		units = append(units, &cp)
	}
	return RankBM25(units, q.Query, s.bm25K1, s.bm25B, q.Limit), nil
}

// Neighbors returns the link edges adjacent to unitID, strongest first.
func (s *MemoryStore) Neighbors(ctx context.Context, unitID string, linkTypes []types.LinkType, limit int) ([]types.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Neighbor
	for _, n := range s.adjacent[unitID] {
		if len(linkTypes) > 0 && !containsLinkType(linkTypes, n.Type) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].UnitID < out[j].UnitID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RangeSearch returns units whose event time falls inside the range,
// oldest first.
func (s *MemoryStore) RangeSearch(ctx context.Context, q RangeQuery) ([]*types.MemoryUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.MemoryUnit
	for _, u := range s.units {
		if u.AgentID != q.AgentID || !matchesFactTypes(u, q.FactTypes) {
			continue
		}
		if !q.Range.Contains(u.EventAt) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EventAt.Equal(out[j].EventAt) {
			return out[i].EventAt.Before(out[j].EventAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// PutEntity inserts or replaces an entity.
func (s *MemoryStore) PutEntity(ctx context.Context, e *types.Entity) error {
	if e.ID == "" || e.Name == "" {
		return &types.ValidationError{Field: "entity", Reason: "id and name are required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	cp.Variants = append([]string(nil), e.Variants...)
	cp.UnitIDs = append([]string(nil), e.UnitIDs...)
	s.entities[e.ID] = &cp
	return nil
}

// GetEntity returns a copy of the stored entity.
func (s *MemoryStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", id, types.ErrNotFound)
	}
	cp := *e
	cp.Variants = append([]string(nil), e.Variants...)
	cp.UnitIDs = append([]string(nil), e.UnitIDs...)
	return &cp, nil
}

// EntitiesByType lists entities of the given type, ordered by id.
func (s *MemoryStore) EntitiesByType(ctx context.Context, t types.EntityType) ([]*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Entity
	for _, e := range s.entities {
		if e.Type != t {
			continue
		}
		cp := *e
		cp.Variants = append([]string(nil), e.Variants...)
		cp.UnitIDs = append([]string(nil), e.UnitIDs...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func containsLinkType(ts []types.LinkType, t types.LinkType) bool {
	for _, x := range ts {
		if x == t {
			return true
		}
	}
	return false
}

func removeNeighbor(ns []types.Neighbor, unitID string) []types.Neighbor {
	out := ns[:0]
	for _, n := range ns {
		if n.UnitID != unitID {
			out = append(out, n)
		}
	}
	return out
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, x := range ss {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
