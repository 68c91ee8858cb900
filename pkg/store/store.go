// Package store defines the persistence contract the retrieval core requires
// and provides an in-memory reference implementation. Durable backends live in
// the neo4jstore and badgerstore subpackages.
package store

import (
	"context"

	"github.com/memora-ai/memora/pkg/types"
)

// VectorQuery asks for the nearest units to a query embedding.
type VectorQuery struct {
	AgentID   string
	Vector    []float32
	Threshold float64
	Limit     int
	FactTypes []types.FactType
}

// TextQuery asks for a BM25-ranked full-text match over unit text.
type TextQuery struct {
	AgentID   string
	Query     string
	Limit     int
	FactTypes []types.FactType
}

// RangeQuery asks for units whose event time falls inside a range.
type RangeQuery struct {
	AgentID   string
	Range     types.TimeRange
	Limit     int
	FactTypes []types.FactType
}

// ScoredUnit pairs a unit with the score assigned by the query that found it.
type ScoredUnit struct {
	Unit  *types.MemoryUnit
	Score float64
}

// Store is the access contract the core requires of a persistence engine.
//
// PutUnit is transactional per unit: either the unit and all its links are
// stored, or none of them are. All read methods are side-effect-free; access
// counting is an explicit, separate call so retrieval strategies stay
// read-only.
type Store interface {
	PutUnit(ctx context.Context, unit *types.MemoryUnit, links []types.Link) error
	GetUnit(ctx context.Context, id string) (*types.MemoryUnit, error)
	// DeleteUnit removes a unit and detaches every link that references it.
	DeleteUnit(ctx context.Context, id string) error
	IncrementAccess(ctx context.Context, ids []string) error

	VectorSearch(ctx context.Context, q VectorQuery) ([]ScoredUnit, error)
	TextSearch(ctx context.Context, q TextQuery) ([]ScoredUnit, error)
	// Neighbors returns the link edges leaving unitID, optionally filtered by
	// link type. limit <= 0 means no limit.
	Neighbors(ctx context.Context, unitID string, linkTypes []types.LinkType, limit int) ([]types.Neighbor, error)
	RangeSearch(ctx context.Context, q RangeQuery) ([]*types.MemoryUnit, error)

	PutEntity(ctx context.Context, e *types.Entity) error
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
	EntitiesByType(ctx context.Context, t types.EntityType) ([]*types.Entity, error)

	Close() error
}

func matchesFactTypes(u *types.MemoryUnit, fts []types.FactType) bool {
	if len(fts) == 0 {
		return true
	}
	for _, ft := range fts {
		if u.FactType == ft {
			return true
		}
	}
	return false
}
