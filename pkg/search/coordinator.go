package search

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
	"github.com/memora-ai/memora/pkg/utils"
)

// Strategy names, used as keys in retrieval results and candidate rank maps.
const (
	StrategySemantic      = "semantic"
	StrategyKeyword       = "keyword"
	StrategyGraph         = "graph"
	StrategyTemporalGraph = "temporal_graph"
)

const (
	// SemanticFloor is the minimum similarity for the semantic strategy.
	SemanticFloor = 0.3
	// GraphSeedFloor is the minimum similarity for a unit to seed the graph walk.
	GraphSeedFloor = 0.5
	// TemporalSimFloor is the minimum similarity for temporal-graph seeds.
	TemporalSimFloor = 0.4

	graphSeedLimit = 10
	rangeSeedLimit = 64
)

// Request carries one retrieval query through the coordinator. Budget bounds
// the spreading-activation walk; zero disables the two graph strategies.
// Range is set when the query contained a parseable temporal expression and
// gates the temporal-graph strategy.
type Request struct {
	AgentID   string
	Query     string
	Embedding []float32
	FactTypes []types.FactType
	Budget    int
	TopK      int
	Range     *types.TimeRange
}

// Coordinator fans one query out to the four retrieval strategies and
// collects their ranked lists. Strategies are read-only on the store and fail
// soft: a single failing strategy is logged and dropped, and the query only
// fails when every launched strategy failed.
type Coordinator struct {
	store  store.Store
	engine *Engine
	logger *slog.Logger
}

// NewCoordinator creates a coordinator over a store. The store is expected to
// be gate-wrapped so strategy fan-out cannot overload the backend.
func NewCoordinator(s store.Store, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{store: s, engine: NewEngine(s), logger: logger}
}

type strategyFunc func(ctx context.Context, req Request) ([]store.ScoredUnit, error)

// Retrieve runs the applicable strategies concurrently and returns their
// ranked lists keyed by strategy name. All launched strategies are waited for;
// results never race. The temporal-graph strategy only runs when the request
// carries a time range, and both graph strategies require a positive budget.
func (c *Coordinator) Retrieve(ctx context.Context, req Request) (map[string][]store.ScoredUnit, error) {
	strategies := map[string]strategyFunc{
		StrategySemantic: c.semantic,
		StrategyKeyword:  c.keyword,
	}
	if req.Budget > 0 {
		strategies[StrategyGraph] = c.graph
		if req.Range != nil {
			strategies[StrategyTemporalGraph] = c.temporalGraph
		}
	}

	type outcome struct {
		name string
		list []store.ScoredUnit
		err  error
	}
	results := make(chan outcome, len(strategies))
	var wg sync.WaitGroup
	for name, fn := range strategies {
		wg.Add(1)
		go func(name string, fn strategyFunc) {
			defer wg.Done()
			list, err := fn(ctx, req)
			results <- outcome{name: name, list: list, err: err}
		}(name, fn)
	}
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		// The caller gave up; partial lists must not be fused.
		return nil, err
	}

	lists := make(map[string][]store.ScoredUnit, len(strategies))
	var failures int
	for o := range results {
		if o.err != nil {
			failures++
			c.logger.Warn("retrieval strategy failed",
				"strategy", o.name, "agent_id", req.AgentID, "error", o.err)
			continue
		}
		if len(o.list) > 0 {
			lists[o.name] = o.list
		}
	}
	if failures == len(strategies) {
		return nil, types.ErrRetrievalFailed
	}
	return lists, nil
}

func (c *Coordinator) semantic(ctx context.Context, req Request) ([]store.ScoredUnit, error) {
	if len(req.Embedding) == 0 {
		return nil, nil
	}
	return c.store.VectorSearch(ctx, store.VectorQuery{
		AgentID:   req.AgentID,
		Vector:    req.Embedding,
		Threshold: SemanticFloor,
		Limit:     strategyLimit(req.TopK),
		FactTypes: req.FactTypes,
	})
}

func (c *Coordinator) keyword(ctx context.Context, req Request) ([]store.ScoredUnit, error) {
	return c.store.TextSearch(ctx, store.TextQuery{
		AgentID:   req.AgentID,
		Query:     req.Query,
		Limit:     strategyLimit(req.TopK),
		FactTypes: req.FactTypes,
	})
}

// graph seeds the activation walk from the strongest semantic matches and
// ranks everything the walk reached by accumulated activation.
func (c *Coordinator) graph(ctx context.Context, req Request) ([]store.ScoredUnit, error) {
	if len(req.Embedding) == 0 {
		return nil, nil
	}
	seedsList, err := c.store.VectorSearch(ctx, store.VectorQuery{
		AgentID:   req.AgentID,
		Vector:    req.Embedding,
		Threshold: GraphSeedFloor,
		Limit:     graphSeedLimit,
		FactTypes: req.FactTypes,
	})
	if err != nil {
		return nil, err
	}
	seeds := make(map[string]float64, len(seedsList))
	for _, su := range seedsList {
		seeds[su.Unit.ID] = su.Score
	}
	activation, err := c.engine.Spread(ctx, seeds, req.Budget, nil)
	if err != nil {
		return nil, err
	}
	return c.rankActivated(ctx, req, activation, func(u *types.MemoryUnit) float64 {
		return activation[u.ID]
	})
}

// temporalGraph retrieves units inside the query's date range, spreads
// activation through temporal links only, and ranks by how close each unit's
// event time sits to the center of the range.
func (c *Coordinator) temporalGraph(ctx context.Context, req Request) ([]store.ScoredUnit, error) {
	inRange, err := c.store.RangeSearch(ctx, store.RangeQuery{
		AgentID:   req.AgentID,
		Range:     *req.Range,
		Limit:     rangeSeedLimit,
		FactTypes: req.FactTypes,
	})
	if err != nil {
		return nil, err
	}
	seeds := make(map[string]float64, len(inRange))
	for _, u := range inRange {
		sim := 1.0
		if len(req.Embedding) > 0 && len(u.Embedding) > 0 {
			sim = utils.Cosine(req.Embedding, u.Embedding)
			if sim < TemporalSimFloor {
				continue
			}
		}
		seeds[u.ID] = sim
	}
	activation, err := c.engine.Spread(ctx, seeds, req.Budget, []types.LinkType{types.TemporalLink})
	if err != nil {
		return nil, err
	}
	center := req.Range.Center()
	return c.rankActivated(ctx, req, activation, func(u *types.MemoryUnit) float64 {
		dt := u.EventAt.Sub(center)
		if dt < 0 {
			dt = -dt
		}
		return 1 / (1 + dt.Hours())
	})
}

// rankActivated materializes the visited units and sorts them by the given
// scoring function, descending, with id as the tie break.
func (c *Coordinator) rankActivated(ctx context.Context, req Request, activation map[string]float64, score func(*types.MemoryUnit) float64) ([]store.ScoredUnit, error) {
	out := make([]store.ScoredUnit, 0, len(activation))
	for id := range activation {
		u, err := c.store.GetUnit(ctx, id)
		if err != nil {
			return nil, err
		}
		if !unitMatches(u, req.FactTypes) {
			continue
		}
		out = append(out, store.ScoredUnit{Unit: u, Score: score(u)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Unit.ID < out[j].Unit.ID
	})
	if limit := strategyLimit(req.TopK); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func unitMatches(u *types.MemoryUnit, fts []types.FactType) bool {
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

// strategyLimit gives each strategy headroom above the final top-k so fusion
// has cross-strategy overlap to work with.
func strategyLimit(topK int) int {
	if topK <= 0 {
		topK = 10
	}
	n := topK * 3
	if n < 30 {
		n = 30
	}
	return n
}
