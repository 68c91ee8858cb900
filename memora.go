package memora

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/memora-ai/memora/pkg/embedder"
	"github.com/memora-ai/memora/pkg/entity"
	"github.com/memora-ai/memora/pkg/links"
	"github.com/memora-ai/memora/pkg/llm"
	"github.com/memora-ai/memora/pkg/opinions"
	"github.com/memora-ai/memora/pkg/search"
	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/temporal"
	"github.com/memora-ai/memora/pkg/types"
)

// Options holds the tunables of a Memory instance. Zero values select the
// documented defaults.
type Options struct {
	// GateCapacity bounds simultaneous in-flight store calls.
	GateCapacity int
	// EntityThreshold is the acceptance score for entity resolution.
	EntityThreshold float64
	// SemanticThreshold is the minimum similarity for a semantic link.
	SemanticThreshold float64
	// TemporalWindow is the maximum event-time distance for a temporal link.
	TemporalWindow time.Duration
	// MMRLambda balances relevance and novelty in diversification. Nil selects
	// the default; an explicit zero means pure diversity.
	MMRLambda *float64
	// DefaultBudget is the activation budget used when a request carries none.
	DefaultBudget int
	// DefaultTopK is the result count used when a request carries none.
	DefaultTopK int
	// OpinionWorkers and OpinionQueueSize shape the background pool.
	OpinionWorkers   int
	OpinionQueueSize int
}

func ptr[T any](v T) *T { return &v }

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		GateCapacity:      store.DefaultGateCapacity,
		EntityThreshold:   entity.DefaultAcceptThreshold,
		SemanticThreshold: links.DefaultSemanticThreshold,
		TemporalWindow:    links.DefaultTemporalWindow,
		MMRLambda:         ptr(search.DefaultMMRLambda),
		DefaultBudget:     50,
		DefaultTopK:       10,
		OpinionWorkers:    opinions.DefaultWorkers,
		OpinionQueueSize:  opinions.DefaultQueueSize,
	}
}

// Memory is the long-term memory engine: ingestion, entity resolution, link
// graph maintenance, four-strategy retrieval, and think-with-opinions. All
// store traffic flows through a counting-semaphore gate so concurrent
// queries cannot overload the backend.
type Memory struct {
	store       store.Store
	gate        *store.Gate
	embedder    embedder.Client
	chat        llm.Client
	resolver    *entity.Resolver
	linker      *links.Builder
	coordinator *search.Coordinator
	rerankers   map[string]search.Reranker
	pool        *opinions.Pool
	former      *opinions.Former
	logger      *slog.Logger
	opts        Options
	now         func() time.Time
}

// New assembles a Memory over the given collaborators. The store is wrapped
// with the concurrency gate here; pass it unwrapped. scorer may be nil, in
// which case cross-encoder rerank requests degrade to the heuristic. chat may
// be nil, which disables Think and opinion formation.
func New(s store.Store, emb embedder.Client, scorer search.Scorer, chat llm.Client, opts Options, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.GateCapacity <= 0 {
		opts.GateCapacity = def.GateCapacity
	}
	if opts.EntityThreshold <= 0 {
		opts.EntityThreshold = def.EntityThreshold
	}
	if opts.SemanticThreshold <= 0 {
		opts.SemanticThreshold = def.SemanticThreshold
	}
	if opts.TemporalWindow <= 0 {
		opts.TemporalWindow = def.TemporalWindow
	}
	if opts.MMRLambda == nil {
		opts.MMRLambda = def.MMRLambda
	}
	if opts.DefaultBudget <= 0 {
		opts.DefaultBudget = def.DefaultBudget
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = def.DefaultTopK
	}

	gate := store.NewGate(opts.GateCapacity)
	// Retry wraps the gate so a second attempt acquires its own slot.
	backend := store.Retried(store.Gated(s, gate), store.DefaultRetryDelay)

	m := &Memory{
		store:       backend,
		gate:        gate,
		embedder:    emb,
		chat:        chat,
		resolver:    entity.NewResolver(backend, opts.EntityThreshold),
		linker:      links.NewBuilder(backend, opts.TemporalWindow, opts.SemanticThreshold),
		coordinator: search.NewCoordinator(backend, logger),
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}

	m.rerankers = map[string]search.Reranker{
		search.RerankerHeuristic: search.NewHeuristicReranker(),
	}
	if scorer != nil {
		m.rerankers[search.RerankerCross] = search.NewCrossEncoderReranker(scorer, logger)
	}

	if chat != nil {
		m.pool = opinions.NewPool(opts.OpinionWorkers, opts.OpinionQueueSize, logger)
		m.former = opinions.NewFormer(chat, m.pool, m.opinionSink, logger)
	}
	return m
}

// SearchRequest is one retrieval query.
type SearchRequest struct {
	AgentID string `json:"agent_id"`
	Query   string `json:"query"`
	// FactTypes restricts results; empty means all types.
	FactTypes []types.FactType `json:"fact_types,omitempty"`
	// Budget bounds the activation walk. Zero disables the graph strategies;
	// negative is rejected. Nil selects the configured default.
	Budget *int `json:"budget,omitempty"`
	TopK   int  `json:"top_k,omitempty"`
	// Reranker selects "heuristic", "cross_encoder", or "none" (fused order).
	Reranker string `json:"reranker,omitempty"`
	// Trace requests the diagnostic record alongside the results.
	Trace bool `json:"trace,omitempty"`
}

// SearchResult is the ranked, diversified answer to one query.
type SearchResult struct {
	Results []*types.RetrievalCandidate `json:"results"`
	Trace   *Trace                      `json:"trace,omitempty"`
}

// Search runs the full retrieval pipeline for one query. Returned units have
// their access counts incremented as a post-step; a failure there is logged,
// not surfaced, because the results are already correct.
func (m *Memory) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if req.AgentID == "" {
		return nil, &types.ValidationError{Field: "agent_id", Reason: "cannot be empty"}
	}
	if req.Query == "" {
		return nil, &types.ValidationError{Field: "query", Reason: "cannot be empty"}
	}
	budget := m.opts.DefaultBudget
	if req.Budget != nil {
		if *req.Budget < 0 {
			return nil, &types.ValidationError{Field: "budget", Reason: "cannot be negative"}
		}
		budget = *req.Budget
	}
	topK := req.TopK
	if topK <= 0 {
		topK = m.opts.DefaultTopK
	}
	reranker, err := m.selectReranker(req.Reranker)
	if err != nil {
		return nil, err
	}

	var embedding []float32
	if m.embedder != nil {
		embedding, err = m.embedder.EmbedSingle(ctx, req.Query)
		if err != nil {
			// Keyword retrieval can still serve the query.
			m.logger.Warn("query embedding failed, vector strategies disabled",
				"agent_id", req.AgentID, "error", types.NewCollaboratorError("embedder", err))
			embedding = nil
		}
	}

	var timeRange *types.TimeRange
	if r, ok := temporal.Parse(req.Query, m.now()); ok {
		timeRange = r
	}

	p := newPipeline(m.coordinator, *m.opts.MMRLambda, req.Trace, m.logger)
	results, trace, err := p.Run(ctx, search.Request{
		AgentID:   req.AgentID,
		Query:     req.Query,
		Embedding: embedding,
		FactTypes: req.FactTypes,
		Budget:    budget,
		TopK:      topK,
		Range:     timeRange,
	}, reranker)
	if err != nil {
		return nil, err
	}

	if len(results) > 0 {
		ids := make([]string, len(results))
		for i, c := range results {
			ids[i] = c.Unit.ID
		}
		if err := m.store.IncrementAccess(ctx, ids); err != nil {
			m.logger.Warn("access count update failed", "error", err)
		}
	}
	return &SearchResult{Results: results, Trace: trace}, nil
}

// Get returns one unit by id.
func (m *Memory) Get(ctx context.Context, id string) (*types.MemoryUnit, error) {
	return m.store.GetUnit(ctx, id)
}

// Delete removes a unit and detaches its links.
func (m *Memory) Delete(ctx context.Context, id string) error {
	return m.store.DeleteUnit(ctx, id)
}

// Close drains the background pool and closes the store and clients.
func (m *Memory) Close() error {
	if m.pool != nil {
		m.pool.Close()
	}
	var errs []error
	if m.chat != nil {
		errs = append(errs, m.chat.Close())
	}
	if m.embedder != nil {
		errs = append(errs, m.embedder.Close())
	}
	errs = append(errs, m.store.Close())
	return errors.Join(errs...)
}

func (m *Memory) selectReranker(kind string) (search.Reranker, error) {
	switch kind {
	case "", search.RerankerNone:
		return nil, nil
	case search.RerankerCross:
		if r, ok := m.rerankers[search.RerankerCross]; ok {
			return r, nil
		}
		// No scorer configured; heuristic is the documented degradation.
		m.logger.Warn("cross-encoder not configured, using heuristic reranker")
		return m.rerankers[search.RerankerHeuristic], nil
	case search.RerankerHeuristic:
		return m.rerankers[search.RerankerHeuristic], nil
	default:
		return nil, &types.ValidationError{Field: "reranker", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}
}
