// Package links defines the three link types of the memory graph and builds
// the link set for a unit at ingestion time.
package links

import (
	"context"
	"time"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
	"github.com/memora-ai/memora/pkg/utils"
)

const (
	// DefaultTemporalWindow is the maximum event-time distance for a
	// temporal link.
	DefaultTemporalWindow = 72 * time.Hour
	// DefaultSemanticThreshold is the minimum cosine similarity for a
	// semantic link.
	DefaultSemanticThreshold = 0.7
	// TemporalFloor is the lowest weight a temporal link can carry.
	TemporalFloor = 0.3
	// EntityLinkWeight is fixed: identity is not a matter of degree.
	EntityLinkWeight = 1.0
	// candidateLimit caps how many link candidates one ingestion pulls.
	candidateLimit = 256
)

// TemporalWeight returns the weight of a temporal link between two event
// times, and false when the pair falls outside the window.
func TemporalWeight(a, b time.Time, window time.Duration) (float64, bool) {
	if window <= 0 {
		window = DefaultTemporalWindow
	}
	dt := a.Sub(b)
	if dt < 0 {
		dt = -dt
	}
	if dt > window {
		return 0, false
	}
	w := 1 - float64(dt)/float64(window)
	if w < TemporalFloor {
		w = TemporalFloor
	}
	return w, true
}

// SemanticWeight returns the cosine similarity of two embeddings as a link
// weight, and false when it does not exceed the threshold.
func SemanticWeight(a, b []float32, threshold float64) (float64, bool) {
	if threshold <= 0 {
		threshold = DefaultSemanticThreshold
	}
	sim := utils.Cosine(a, b)
	if sim <= threshold {
		return 0, false
	}
	return sim, true
}

// Builder computes the full link set for a new unit. The store writes happen
// elsewhere: Build is read-only so that link creation can stay transactional
// with the unit insert.
type Builder struct {
	store             store.Store
	temporalWindow    time.Duration
	semanticThreshold float64
}

// NewBuilder creates a Builder. Zero window/threshold values select defaults.
func NewBuilder(s store.Store, window time.Duration, semanticThreshold float64) *Builder {
	if window <= 0 {
		window = DefaultTemporalWindow
	}
	if semanticThreshold <= 0 {
		semanticThreshold = DefaultSemanticThreshold
	}
	return &Builder{store: s, temporalWindow: window, semanticThreshold: semanticThreshold}
}

// Build returns every link the unit participates in: temporal links to units
// inside the window, semantic links above the similarity threshold, and
// weight-1 entity links to each unit in sharedEntityUnits (units that mention
// an entity this unit also mentions). At most one link per (pair, type).
func (b *Builder) Build(ctx context.Context, unit *types.MemoryUnit, sharedEntityUnits []string) ([]types.Link, error) {
	var out []types.Link
	seen := make(map[string]struct{})

	add := func(target string, lt types.LinkType, w float64) {
		if target == unit.ID {
			return
		}
		key := string(lt) + "/" + target
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, types.Link{SourceID: unit.ID, TargetID: target, Type: lt, Weight: w})
	}

	// Entity links first: they exist regardless of elapsed time.
	for _, id := range sharedEntityUnits {
		add(id, types.EntityLink, EntityLinkWeight)
	}

	inWindow, err := b.store.RangeSearch(ctx, store.RangeQuery{
		AgentID: unit.AgentID,
		Range: types.TimeRange{
			Start: unit.EventAt.Add(-b.temporalWindow),
			End:   unit.EventAt.Add(b.temporalWindow),
		},
		Limit: candidateLimit,
	})
	if err != nil {
		return nil, err
	}
	for _, other := range inWindow {
		if w, ok := TemporalWeight(unit.EventAt, other.EventAt, b.temporalWindow); ok {
			add(other.ID, types.TemporalLink, w)
		}
	}

	if len(unit.Embedding) > 0 {
		similar, err := b.store.VectorSearch(ctx, store.VectorQuery{
			AgentID:   unit.AgentID,
			Vector:    unit.Embedding,
			Threshold: b.semanticThreshold,
			Limit:     candidateLimit,
		})
		if err != nil {
			return nil, err
		}
		for _, su := range similar {
			if w, ok := SemanticWeight(unit.Embedding, su.Unit.Embedding, b.semanticThreshold); ok {
				add(su.Unit.ID, types.SemanticLink, w)
			}
		}
	}

	return out, nil
}
