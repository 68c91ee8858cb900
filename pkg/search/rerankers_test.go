package search

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/memora-ai/memora/pkg/types"
	"github.com/memora-ai/memora/pkg/utils"
)

func candidate(id string, eventAt time.Time, access int64, scores map[string]float64) *types.RetrievalCandidate {
	c := types.NewCandidate(&types.MemoryUnit{
		ID: id, AgentID: "a", Text: "candidate " + id,
		FactType: types.FactWorld, EventAt: eventAt, AccessCount: access,
	})
	for k, v := range scores {
		c.Scores[k] = v
		c.Ranks[k] = 1
	}
	return c
}

func TestHeuristicRerankFormula(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r := NewHeuristicReranker()
	r.now = func() time.Time { return now }

	cands := []*types.RetrievalCandidate{
		candidate("a", now, 4, map[string]float64{StrategySemantic: 0.9, StrategyKeyword: 2.0}),
		candidate("b", now, 2, map[string]float64{StrategySemantic: 0.5, StrategyKeyword: 1.0}),
		candidate("c", now, 0, map[string]float64{StrategySemantic: 0.3}),
	}
	got, err := r.Rerank(context.Background(), "query", cands)
	if err != nil {
		t.Fatal(err)
	}

	// a: normalized semantic 1, normalized bm25 1, zero age, max access.
	// base = 0.6 + 0.4 = 1; boost = 1 + 0.2·1 + 0.1·1 = 1.3.
	if math.Abs(got[0].RerankScore-1.3) > 1e-9 || got[0].Unit.ID != "a" {
		t.Fatalf("top candidate = %s score %v, want a at 1.3", got[0].Unit.ID, got[0].RerankScore)
	}

	// b: sem (0.5-0.3)/0.6 = 1/3, bm 0.5; base = 0.4; boost = 1.25.
	wantB := (0.6*(1.0/3) + 0.4*0.5) * (1 + 0.2 + 0.1*0.5)
	var b *types.RetrievalCandidate
	for _, c := range got {
		if c.Unit.ID == "b" {
			b = c
		}
	}
	if math.Abs(b.RerankScore-wantB) > 1e-9 {
		t.Fatalf("RerankScore(b) = %v, want %v", b.RerankScore, wantB)
	}
}

func TestHeuristicRerankRecencyDecay(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	r := NewHeuristicReranker()
	r.now = func() time.Time { return now }

	fresh := candidate("fresh", now, 0, map[string]float64{StrategySemantic: 0.8})
	stale := candidate("stale", now.AddDate(-2, 0, 0), 0, map[string]float64{StrategySemantic: 0.8})
	got, err := r.Rerank(context.Background(), "query", []*types.RetrievalCandidate{stale, fresh})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Unit.ID != "fresh" {
		t.Fatalf("equal relevance should order by recency, got %s first", got[0].Unit.ID)
	}
	// Base is 0.6·1 with no keyword signal. Two years is two half-lives, so
	// recency = 1/(1+log2(3)).
	wantStale := 0.6 * (1 + 0.2*(1/(1+math.Log2(3))))
	for _, c := range got {
		if c.Unit.ID == "stale" && math.Abs(c.RerankScore-wantStale) > 1e-9 {
			t.Fatalf("RerankScore(stale) = %v, want %v", c.RerankScore, wantStale)
		}
	}
}

func TestHeuristicRerankEmptyList(t *testing.T) {
	got, err := NewHeuristicReranker().Rerank(context.Background(), "query", nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("Rerank(nil) = %v, %v", got, err)
	}
}

// stubScorer is a hand-rolled Scorer for the cross-encoder tests.
type stubScorer struct {
	scores []float64
	err    error
	docs   []string
}

func (s *stubScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	s.docs = docs
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

func TestCrossEncoderRerank(t *testing.T) {
	now := time.Now()
	scorer := &stubScorer{scores: []float64{-1.0, 2.0}}
	r := NewCrossEncoderReranker(scorer, quietLogger())

	cands := []*types.RetrievalCandidate{
		candidate("low", now, 0, nil),
		candidate("high", now, 0, nil),
	}
	wantDoc := FormatDocument(cands[0].Unit)
	got, err := r.Rerank(context.Background(), "query", cands)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Unit.ID != "high" || got[1].Unit.ID != "low" {
		t.Fatalf("model order not applied: %s, %s", got[0].Unit.ID, got[1].Unit.ID)
	}
	if math.Abs(got[0].RerankScore-utils.Sigmoid(2.0)) > 1e-9 {
		t.Fatalf("RerankScore = %v, want sigmoid(2)", got[0].RerankScore)
	}
	if len(scorer.docs) != 2 || scorer.docs[0] != wantDoc {
		t.Fatalf("documents not formatted for the model: %v", scorer.docs)
	}
}

func TestCrossEncoderFallsBackOnError(t *testing.T) {
	now := time.Now()
	r := NewCrossEncoderReranker(&stubScorer{err: errors.New("model down")}, quietLogger())

	cands := []*types.RetrievalCandidate{
		candidate("a", now, 0, map[string]float64{StrategySemantic: 0.9}),
		candidate("b", now, 0, map[string]float64{StrategySemantic: 0.2}),
	}
	got, err := r.Rerank(context.Background(), "query", cands)
	if err != nil {
		t.Fatalf("fallback must not surface the model error, got %v", err)
	}
	if got[0].Unit.ID != "a" {
		t.Fatalf("heuristic fallback order wrong: %s first", got[0].Unit.ID)
	}
	if got[0].RerankScore <= 0 {
		t.Fatal("fallback must still assign rerank scores")
	}
}

func TestCrossEncoderFallsBackOnScoreCountMismatch(t *testing.T) {
	now := time.Now()
	r := NewCrossEncoderReranker(&stubScorer{scores: []float64{1.0}}, quietLogger())

	cands := []*types.RetrievalCandidate{
		candidate("a", now, 0, map[string]float64{StrategySemantic: 0.9}),
		candidate("b", now, 0, map[string]float64{StrategySemantic: 0.2}),
	}
	got, err := r.Rerank(context.Background(), "query", cands)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both candidates back, got %d", len(got))
	}
}

func TestFormatDocument(t *testing.T) {
	u := &types.MemoryUnit{
		Text:    "Alice moved to Berlin",
		EventAt: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC),
	}
	if got := FormatDocument(u); got != "[March 5, 2024] Alice moved to Berlin" {
		t.Fatalf("FormatDocument = %q", got)
	}
}
