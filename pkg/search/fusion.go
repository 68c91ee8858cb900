package search

import (
	"sort"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

// RRFK is the rank offset in the reciprocal rank fusion formula 1/(k+rank).
const RRFK = 60

// FuseRRF merges the per-strategy ranked lists into one fused ranking using
// reciprocal rank fusion. Each unit scores the sum of 1/(RRFK+rank) over the
// lists it appears in, rank 1-indexed; absent lists contribute nothing, so
// cross-strategy agreement is rewarded without normalizing heterogeneous
// scores. Ties break by number of lists, then most recent event time, then
// id, so the fused order is reproducible.
func FuseRRF(lists map[string][]store.ScoredUnit) []*types.RetrievalCandidate {
	byID := make(map[string]*types.RetrievalCandidate)
	for name, list := range lists {
		for i, su := range list {
			cand, ok := byID[su.Unit.ID]
			if !ok {
				cand = types.NewCandidate(su.Unit)
				byID[su.Unit.ID] = cand
			}
			rank := i + 1
			cand.Ranks[name] = rank
			cand.Scores[name] = su.Score
			cand.FusedScore += 1.0 / float64(RRFK+rank)
		}
	}

	out := make([]*types.RetrievalCandidate, 0, len(byID))
	for _, cand := range byID {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if a.ListCount() != b.ListCount() {
			return a.ListCount() > b.ListCount()
		}
		if !a.Unit.EventAt.Equal(b.Unit.EventAt) {
			return a.Unit.EventAt.After(b.Unit.EventAt)
		}
		return a.Unit.ID < b.Unit.ID
	})
	return out
}
