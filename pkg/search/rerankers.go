package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/memora-ai/memora/pkg/types"
	"github.com/memora-ai/memora/pkg/utils"
)

// Reranker rescores a fused candidate list. Implementations set RerankScore
// on every candidate and return the list sorted by it, descending, preserving
// the incoming order for equal scores. Adding a reranker never requires
// caller changes: callers select one by kind and hold the interface.
type Reranker interface {
	Name() string
	Rerank(ctx context.Context, query string, candidates []*types.RetrievalCandidate) ([]*types.RetrievalCandidate, error)
}

// Reranker kinds accepted in search requests.
const (
	RerankerNone      = "none"
	RerankerHeuristic = "heuristic"
	RerankerCross     = "cross_encoder"
)

const recencyHalfLife = 365 * 24 * time.Hour

// HeuristicReranker scores candidates from signals already in hand, with no
// external calls: a blend of normalized semantic and keyword scores, boosted
// by recency and by how often the unit has been retrieved before.
type HeuristicReranker struct {
	now func() time.Time
}

// NewHeuristicReranker creates the deterministic reranker.
func NewHeuristicReranker() *HeuristicReranker {
	return &HeuristicReranker{now: time.Now}
}

func (r *HeuristicReranker) Name() string { return RerankerHeuristic }

// Rerank computes 0.6·semantic + 0.4·bm25 on scores normalized across the
// list, then multiplies by (1 + 0.2·recency + 0.1·frequency). Recency decays
// logarithmically with a one-year half-life on event age; frequency is the
// access count normalized by the list maximum.
func (r *HeuristicReranker) Rerank(ctx context.Context, query string, candidates []*types.RetrievalCandidate) ([]*types.RetrievalCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	semMin, semMax := scoreRange(candidates, StrategySemantic)
	_, bmMax := scoreRange(candidates, StrategyKeyword)
	var maxAccess int64
	for _, c := range candidates {
		if c.Unit.AccessCount > maxAccess {
			maxAccess = c.Unit.AccessCount
		}
	}

	now := r.now()
	for _, c := range candidates {
		sem := normalize(c.Scores[StrategySemantic], semMin, semMax)
		bm := 0.0
		if bmMax > 0 {
			bm = c.Scores[StrategyKeyword] / bmMax
		}
		base := 0.6*sem + 0.4*bm

		age := now.Sub(c.Unit.EventAt)
		if age < 0 {
			age = 0
		}
		recency := 1 / (1 + math.Log2(1+float64(age)/float64(recencyHalfLife)))
		frequency := 0.0
		if maxAccess > 0 {
			frequency = float64(c.Unit.AccessCount) / float64(maxAccess)
		}
		c.RerankScore = base * (1 + 0.2*recency + 0.1*frequency)
	}
	sortByRerankScore(candidates)
	return candidates, nil
}

// Scorer is the external relevance model behind the cross-encoder reranker.
type Scorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// CrossEncoderReranker scores (query, document) pairs through an external
// model. Documents are the unit text prefixed with a readable event date so
// the model sees temporal context. When the model is unreachable the reranker
// logs a degradation notice and falls back to the heuristic reranker instead
// of failing the query.
type CrossEncoderReranker struct {
	scorer   Scorer
	fallback *HeuristicReranker
	logger   *slog.Logger
}

// NewCrossEncoderReranker creates a cross-encoder reranker with a heuristic
// fallback.
func NewCrossEncoderReranker(scorer Scorer, logger *slog.Logger) *CrossEncoderReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossEncoderReranker{
		scorer:   scorer,
		fallback: NewHeuristicReranker(),
		logger:   logger,
	}
}

func (r *CrossEncoderReranker) Name() string { return RerankerCross }

func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, candidates []*types.RetrievalCandidate) ([]*types.RetrievalCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = FormatDocument(c.Unit)
	}
	scores, err := r.scorer.Score(ctx, query, docs)
	if err != nil || len(scores) != len(candidates) {
		if err == nil {
			err = fmt.Errorf("scored %d of %d documents", len(scores), len(candidates))
		}
		r.logger.Warn("cross-encoder unavailable, degrading to heuristic reranker",
			"error", fmt.Errorf("%w: %v", types.ErrRerankerUnavailable, err))
		return r.fallback.Rerank(ctx, query, candidates)
	}
	for i, c := range candidates {
		c.RerankScore = utils.Sigmoid(scores[i])
	}
	sortByRerankScore(candidates)
	return candidates, nil
}

// FormatDocument renders a unit for the scoring model: event date first,
// then the fact text.
func FormatDocument(u *types.MemoryUnit) string {
	return fmt.Sprintf("[%s] %s", u.EventAt.Format("January 2, 2006"), u.Text)
}

func sortByRerankScore(candidates []*types.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].RerankScore > candidates[j].RerankScore
	})
}

func scoreRange(candidates []*types.RetrievalCandidate, strategy string) (min, max float64) {
	first := true
	for _, c := range candidates {
		s, ok := c.Scores[strategy]
		if !ok {
			continue
		}
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}

func normalize(v, min, max float64) float64 {
	if max <= min {
		if v > 0 {
			return 1
		}
		return 0
	}
	if v < min {
		return 0
	}
	return (v - min) / (max - min)
}
