package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memora-ai/memora/pkg/types"
)

func newUnit(id, agent, text string, eventAt time.Time, embedding []float32) *types.MemoryUnit {
	return &types.MemoryUnit{
		ID:        id,
		AgentID:   agent,
		Text:      text,
		EventAt:   eventAt,
		FactType:  types.FactWorld,
		Embedding: embedding,
	}
}

func TestPutUnitRejectsUnknownLinkTarget(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	u := newUnit("u1", "a", "Alice works remotely", now, nil)
	link := types.Link{SourceID: "u1", TargetID: "missing", Type: types.SemanticLink, Weight: 0.9}
	err := s.PutUnit(ctx, u, []types.Link{link})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// The failed write must leave nothing behind.
	if _, err := s.GetUnit(ctx, "u1"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("unit should not exist after failed put, got %v", err)
	}
	if ns, _ := s.Neighbors(ctx, "u1", nil, 0); len(ns) != 0 {
		t.Fatalf("no links expected, got %v", ns)
	}
}

func TestPutUnitDimensionMismatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.PutUnit(ctx, newUnit("u1", "a", "Alice likes tea", now, []float32{1, 0, 0}), nil); err != nil {
		t.Fatal(err)
	}
	err := s.PutUnit(ctx, newUnit("u2", "a", "Bob likes coffee", now, []float32{1, 0}), nil)
	if !errors.Is(err, types.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestVectorSearchOrderingAndThreshold(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	units := []*types.MemoryUnit{
		newUnit("u1", "a", "cats are mammals", now, []float32{1, 0}),
		newUnit("u2", "a", "dogs are mammals", now, []float32{0.9, 0.1}),
		newUnit("u3", "a", "stocks went down", now, []float32{0, 1}),
		newUnit("u4", "other", "cats are cute", now, []float32{1, 0}),
	}
	for _, u := range units {
		if err := s.PutUnit(ctx, u, nil); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.VectorSearch(ctx, VectorQuery{AgentID: "a", Vector: []float32{1, 0}, Threshold: 0.5, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Unit.ID != "u1" || got[1].Unit.ID != "u2" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestVectorSearchDeterministicTies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	// Identical embeddings and event times: order must fall back to id.
	for _, id := range []string{"c", "a", "b"} {
		if err := s.PutUnit(ctx, newUnit(id, "x", "ties are broken by id", now, []float32{1, 0}), nil); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 5; i++ {
		got, err := s.VectorSearch(ctx, VectorQuery{AgentID: "x", Vector: []float32{1, 0}, Limit: 10})
		if err != nil {
			t.Fatal(err)
		}
		if got[0].Unit.ID != "a" || got[1].Unit.ID != "b" || got[2].Unit.ID != "c" {
			t.Fatalf("run %d: non-deterministic order: %s %s %s", i, got[0].Unit.ID, got[1].Unit.ID, got[2].Unit.ID)
		}
	}
}

func TestTextSearchRanksTermMatches(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	units := []*types.MemoryUnit{
		newUnit("u1", "a", "Alice went hiking in the mountains", now, nil),
		newUnit("u2", "a", "Alice and Bob went hiking and hiking again", now, nil),
		newUnit("u3", "a", "Bob stayed home all weekend", now, nil),
	}
	for _, u := range units {
		if err := s.PutUnit(ctx, u, nil); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.TextSearch(ctx, TextQuery{AgentID: "a", Query: "hiking", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(got))
	}
	for _, su := range got {
		if su.Unit.ID == "u3" {
			t.Fatal("u3 does not mention hiking")
		}
	}
}

func TestNeighborsFilterAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"u1", "u2", "u3"} {
		if err := s.PutUnit(ctx, newUnit(id, "a", "node "+id+" exists", now, nil), nil); err != nil {
			t.Fatal(err)
		}
	}
	links := []types.Link{
		{SourceID: "u4", TargetID: "u1", Type: types.TemporalLink, Weight: 0.5},
		{SourceID: "u4", TargetID: "u2", Type: types.EntityLink, Weight: 1.0},
		{SourceID: "u4", TargetID: "u3", Type: types.SemanticLink, Weight: 0.8},
	}
	if err := s.PutUnit(ctx, newUnit("u4", "a", "hub node links out", now, nil), links); err != nil {
		t.Fatal(err)
	}

	all, err := s.Neighbors(ctx, "u4", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].UnitID != "u2" || all[1].UnitID != "u3" || all[2].UnitID != "u1" {
		t.Fatalf("expected weight-descending order, got %+v", all)
	}

	temporalOnly, err := s.Neighbors(ctx, "u4", []types.LinkType{types.TemporalLink}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(temporalOnly) != 1 || temporalOnly[0].UnitID != "u1" {
		t.Fatalf("expected only the temporal edge, got %+v", temporalOnly)
	}

	// Symmetry: the far side sees the edge too.
	back, err := s.Neighbors(ctx, "u2", nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 1 || back[0].UnitID != "u4" {
		t.Fatalf("expected symmetric edge, got %+v", back)
	}
}

func TestDeleteUnitDetachesLinks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if err := s.PutUnit(ctx, newUnit("u1", "a", "first unit here", now, nil), nil); err != nil {
		t.Fatal(err)
	}
	link := types.Link{SourceID: "u2", TargetID: "u1", Type: types.EntityLink, Weight: 1}
	if err := s.PutUnit(ctx, newUnit("u2", "a", "second unit here", now, nil), []types.Link{link}); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteUnit(ctx, "u2"); err != nil {
		t.Fatal(err)
	}
	if ns, _ := s.Neighbors(ctx, "u1", nil, 0); len(ns) != 0 {
		t.Fatalf("expected u1's edges gone, got %+v", ns)
	}
	if err := s.DeleteUnit(ctx, "u2"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("double delete should be ErrNotFound, got %v", err)
	}
}

func TestRangeSearchInclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"u1", "u2", "u3"} {
		u := newUnit(id, "a", "event number "+id, base.AddDate(0, 0, i), nil)
		if err := s.PutUnit(ctx, u, nil); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.RangeSearch(ctx, RangeQuery{
		AgentID: "a",
		Range:   types.TimeRange{Start: base, End: base.AddDate(0, 0, 1)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "u1" || got[1].ID != "u2" {
		t.Fatalf("expected [u1 u2] oldest first, got %+v", got)
	}
}

func TestIncrementAccess(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.PutUnit(ctx, newUnit("u1", "a", "accessed unit here", time.Now(), nil), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrementAccess(ctx, []string{"u1", "unknown"}); err != nil {
		t.Fatal(err)
	}
	u, err := s.GetUnit(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.AccessCount != 1 {
		t.Fatalf("AccessCount = %d, want 1", u.AccessCount)
	}
}
