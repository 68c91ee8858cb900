// Package search implements the retrieval side of the memory engine: the
// spreading-activation graph walk, the four-strategy coordinator, reciprocal
// rank fusion, the rerankers, and MMR diversification.
package search

import (
	"container/heap"
	"context"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

// HopDecay is the fixed per-hop attenuation applied on top of the link weight.
const HopDecay = 0.8

// Engine performs bounded spreading activation over the link graph.
type Engine struct {
	store store.Store
}

// NewEngine creates an activation engine over the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// Spread propagates activation from the seed units across the link graph and
// returns the accumulated activation of every visited unit. Each hop scales
// the activation by link weight times HopDecay; a unit reachable through
// several paths keeps the maximum pending activation. The walk is best-first
// (highest activation next) and visits at most budget units, so running out
// of budget is the normal way to stop, not an error. An empty linkTypes slice
// traverses every link type.
func (e *Engine) Spread(ctx context.Context, seeds map[string]float64, budget int, linkTypes []types.LinkType) (map[string]float64, error) {
	result := make(map[string]float64)
	if budget <= 0 || len(seeds) == 0 {
		return result, nil
	}

	pending := make(map[string]float64, len(seeds))
	frontier := &activationHeap{}
	heap.Init(frontier)
	for id, a := range seeds {
		if a <= 0 {
			continue
		}
		pending[id] = a
		heap.Push(frontier, activationNode{id: id, activation: a})
	}

	visited := make(map[string]struct{})
	for frontier.Len() > 0 && len(visited) < budget {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := heap.Pop(frontier).(activationNode)
		if _, done := visited[node.id]; done {
			continue
		}
		// Stale heap entry: a stronger path was pushed later.
		if node.activation < pending[node.id] {
			continue
		}
		visited[node.id] = struct{}{}
		result[node.id] = node.activation

		neighbors, err := e.store.Neighbors(ctx, node.id, linkTypes, 0)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if _, done := visited[n.UnitID]; done {
				continue
			}
			a := node.activation * n.Weight * HopDecay
			if a <= pending[n.UnitID] {
				continue
			}
			pending[n.UnitID] = a
			heap.Push(frontier, activationNode{id: n.UnitID, activation: a})
		}
	}
	return result, nil
}

type activationNode struct {
	id         string
	activation float64
}

type activationHeap []activationNode

func (h activationHeap) Len() int { return len(h) }

func (h activationHeap) Less(i, j int) bool {
	if h[i].activation != h[j].activation {
		return h[i].activation > h[j].activation
	}
	return h[i].id < h[j].id
}

func (h activationHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *activationHeap) Push(x any) { *h = append(*h, x.(activationNode)) }

func (h *activationHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
