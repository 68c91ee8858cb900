package search

import (
	"github.com/memora-ai/memora/pkg/types"
	"github.com/memora-ai/memora/pkg/utils"
)

// DefaultMMRLambda balances relevance against novelty in Diversify.
const DefaultMMRLambda = 0.5

// Diversify selects up to k candidates by maximal marginal relevance:
// greedily pick the item maximizing
//
//	lambda·relevance − (1−lambda)·max similarity to the already selected
//
// where relevance is the rerank score and similarity is embedding cosine.
// The first pick is the most relevant item. Greedy is O(k·n) and stable,
// which matters more here than global optimality. lambda=1 reduces to pure
// relevance order; lambda=0 to maximal diversity. FinalRank is assigned
// 1-indexed on the selection.
func Diversify(candidates []*types.RetrievalCandidate, k int, lambda float64) []*types.RetrievalCandidate {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}

	remaining := append([]*types.RetrievalCandidate(nil), candidates...)
	selected := make([]*types.RetrievalCandidate, 0, k)

	for len(selected) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], selected, lambda)
		for i := 1; i < len(remaining); i++ {
			if s := mmrScore(remaining[i], selected, lambda); s > bestScore {
				bestIdx = i
				bestScore = s
			}
		}
		pick := remaining[bestIdx]
		pick.FinalRank = len(selected) + 1
		selected = append(selected, pick)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func mmrScore(c *types.RetrievalCandidate, selected []*types.RetrievalCandidate, lambda float64) float64 {
	var maxSim float64
	for _, s := range selected {
		if sim := utils.Cosine(c.Unit.Embedding, s.Unit.Embedding); sim > maxSim {
			maxSim = sim
		}
	}
	return lambda*c.RerankScore - (1-lambda)*maxSim
}
