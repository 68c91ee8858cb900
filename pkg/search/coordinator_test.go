package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

// faultStore wraps a working store and fails selected operations.
type faultStore struct {
	store.Store
	failVector bool
	failText   bool
	failRange  bool
}

var errInjected = errors.New("injected store failure")

func (f *faultStore) VectorSearch(ctx context.Context, q store.VectorQuery) ([]store.ScoredUnit, error) {
	if f.failVector {
		return nil, errInjected
	}
	return f.Store.VectorSearch(ctx, q)
}

func (f *faultStore) TextSearch(ctx context.Context, q store.TextQuery) ([]store.ScoredUnit, error) {
	if f.failText {
		return nil, errInjected
	}
	return f.Store.TextSearch(ctx, q)
}

func (f *faultStore) RangeSearch(ctx context.Context, q store.RangeQuery) ([]*types.MemoryUnit, error) {
	if f.failRange {
		return nil, errInjected
	}
	return f.Store.RangeSearch(ctx, q)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedCorpus(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	units := []struct {
		id, text string
		at       time.Time
		emb      []float32
	}{
		{"u1", "Alice went hiking in the Alps", base, []float32{1, 0}},
		{"u2", "Alice packed hiking boots", base.Add(2 * time.Hour), []float32{0.9, 0.1}},
		{"u3", "Bob reviewed the budget numbers", base.AddDate(0, 2, 0), []float32{0, 1}},
	}
	for _, u := range units {
		mu := &types.MemoryUnit{
			ID: u.id, AgentID: "a", Text: u.text,
			FactType: types.FactWorld, EventAt: u.at, Embedding: u.emb,
		}
		var links []types.Link
		if u.id == "u2" {
			links = []types.Link{{SourceID: "u2", TargetID: "u1", Type: types.TemporalLink, Weight: 0.9}}
		}
		if err := s.PutUnit(ctx, mu, links); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRetrieveRunsAllStrategies(t *testing.T) {
	s := store.NewMemoryStore()
	seedCorpus(t, s)
	c := NewCoordinator(s, quietLogger())

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	lists, err := c.Retrieve(context.Background(), Request{
		AgentID:   "a",
		Query:     "hiking",
		Embedding: []float32{1, 0},
		Budget:    20,
		TopK:      10,
		Range:     &types.TimeRange{Start: start, End: start.AddDate(0, 0, 2)},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{StrategySemantic, StrategyKeyword, StrategyGraph, StrategyTemporalGraph} {
		if len(lists[name]) == 0 {
			t.Errorf("strategy %s returned nothing: %v", name, lists)
		}
	}
	if lists[StrategySemantic][0].Unit.ID != "u1" {
		t.Errorf("semantic should rank the exact-match embedding first, got %s", lists[StrategySemantic][0].Unit.ID)
	}
}

func TestRetrieveZeroBudgetSkipsGraphStrategies(t *testing.T) {
	s := store.NewMemoryStore()
	seedCorpus(t, s)
	c := NewCoordinator(s, quietLogger())

	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	lists, err := c.Retrieve(context.Background(), Request{
		AgentID:   "a",
		Query:     "hiking",
		Embedding: []float32{1, 0},
		Budget:    0,
		TopK:      10,
		Range:     &types.TimeRange{Start: start, End: start.AddDate(0, 0, 2)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lists[StrategyGraph]; ok {
		t.Fatal("graph strategy must not run with zero budget")
	}
	if _, ok := lists[StrategyTemporalGraph]; ok {
		t.Fatal("temporal-graph strategy must not run with zero budget")
	}
	if len(lists[StrategySemantic]) == 0 || len(lists[StrategyKeyword]) == 0 {
		t.Fatalf("direct strategies should still run, got %v", lists)
	}
}

func TestRetrieveWithoutRangeSkipsTemporalGraph(t *testing.T) {
	s := store.NewMemoryStore()
	seedCorpus(t, s)
	c := NewCoordinator(s, quietLogger())

	lists, err := c.Retrieve(context.Background(), Request{
		AgentID: "a", Query: "hiking", Embedding: []float32{1, 0}, Budget: 20, TopK: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lists[StrategyTemporalGraph]; ok {
		t.Fatal("temporal-graph strategy requires a parsed time range")
	}
}

func TestRetrieveSoftFailure(t *testing.T) {
	inner := store.NewMemoryStore()
	seedCorpus(t, inner)
	// Vector search down: semantic and graph drop out, keyword still answers.
	c := NewCoordinator(&faultStore{Store: inner, failVector: true}, quietLogger())

	lists, err := c.Retrieve(context.Background(), Request{
		AgentID: "a", Query: "hiking", Embedding: []float32{1, 0}, Budget: 20, TopK: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lists[StrategySemantic]; ok {
		t.Fatal("semantic should have failed")
	}
	if len(lists[StrategyKeyword]) == 0 {
		t.Fatal("keyword should still return results")
	}
}

func TestRetrieveAllStrategiesFailed(t *testing.T) {
	inner := store.NewMemoryStore()
	seedCorpus(t, inner)
	c := NewCoordinator(&faultStore{Store: inner, failVector: true, failText: true}, quietLogger())

	_, err := c.Retrieve(context.Background(), Request{
		AgentID: "a", Query: "hiking", Embedding: []float32{1, 0}, Budget: 20, TopK: 10,
	})
	if !errors.Is(err, types.ErrRetrievalFailed) {
		t.Fatalf("expected ErrRetrievalFailed, got %v", err)
	}
}

func TestRetrieveNoEmbeddingKeywordOnly(t *testing.T) {
	s := store.NewMemoryStore()
	seedCorpus(t, s)
	c := NewCoordinator(s, quietLogger())

	lists, err := c.Retrieve(context.Background(), Request{
		AgentID: "a", Query: "hiking", Budget: 20, TopK: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := lists[StrategySemantic]; ok {
		t.Fatal("semantic must be empty without an embedding")
	}
	if len(lists[StrategyKeyword]) == 0 {
		t.Fatal("keyword should carry the query")
	}
}

func TestTemporalGraphDoesNotLeakOutOfRange(t *testing.T) {
	s := store.NewMemoryStore()
	seedCorpus(t, s)
	c := NewCoordinator(s, quietLogger())

	// Range covers only the June units; the August unit must not appear even
	// though it matches nothing temporally adjacent.
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	lists, err := c.Retrieve(context.Background(), Request{
		AgentID:   "a",
		Query:     "what happened",
		Embedding: []float32{1, 0},
		Budget:    20,
		TopK:      10,
		Range:     &types.TimeRange{Start: start, End: start.AddDate(0, 0, 2)},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, su := range lists[StrategyTemporalGraph] {
		if su.Unit.ID == "u3" {
			t.Fatal("unit outside the range leaked into temporal-graph results")
		}
	}
}
