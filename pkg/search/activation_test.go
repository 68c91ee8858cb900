package search

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

// putWithLinks inserts a unit together with its outgoing edges.
func putWithLinks(t *testing.T, s store.Store, id string, links ...types.Link) {
	t.Helper()
	u := &types.MemoryUnit{
		ID: id, AgentID: "a", Text: "graph unit " + id,
		FactType: types.FactWorld, EventAt: time.Now(),
	}
	if err := s.PutUnit(context.Background(), u, links); err != nil {
		t.Fatal(err)
	}
}

func TestSpreadDecaysPerHop(t *testing.T) {
	s := store.NewMemoryStore()
	putWithLinks(t, s, "a")
	putWithLinks(t, s, "b", types.Link{SourceID: "b", TargetID: "a", Type: types.SemanticLink, Weight: 0.9})
	putWithLinks(t, s, "c", types.Link{SourceID: "c", TargetID: "b", Type: types.SemanticLink, Weight: 0.5})

	got, err := NewEngine(s).Spread(context.Background(), map[string]float64{"a": 1.0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{
		"a": 1.0,
		"b": 1.0 * 0.9 * HopDecay,
		"c": 1.0 * 0.9 * HopDecay * 0.5 * HopDecay,
	}
	if len(got) != len(want) {
		t.Fatalf("visited %d units, want %d: %v", len(got), len(want), got)
	}
	for id, w := range want {
		if math.Abs(got[id]-w) > 1e-9 {
			t.Errorf("activation[%s] = %v, want %v", id, got[id], w)
		}
	}
}

func TestSpreadKeepsStrongestPath(t *testing.T) {
	// Two routes into d: a weak direct edge and a stronger two-hop path.
	s := store.NewMemoryStore()
	putWithLinks(t, s, "d")
	putWithLinks(t, s, "b", types.Link{SourceID: "b", TargetID: "d", Type: types.SemanticLink, Weight: 0.95})
	putWithLinks(t, s, "a",
		types.Link{SourceID: "a", TargetID: "b", Type: types.SemanticLink, Weight: 0.95},
		types.Link{SourceID: "a", TargetID: "d", Type: types.SemanticLink, Weight: 0.1},
	)

	got, err := NewEngine(s).Spread(context.Background(), map[string]float64{"a": 1.0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	viaB := 1.0 * 0.95 * HopDecay * 0.95 * HopDecay
	if math.Abs(got["d"]-viaB) > 1e-9 {
		t.Fatalf("activation[d] = %v, want the stronger path %v", got["d"], viaB)
	}
}

func TestSpreadRespectsBudget(t *testing.T) {
	s := store.NewMemoryStore()
	putWithLinks(t, s, "a")
	prev := "a"
	for _, id := range []string{"b", "c", "d", "e"} {
		putWithLinks(t, s, id, types.Link{SourceID: id, TargetID: prev, Type: types.SemanticLink, Weight: 0.9})
		prev = id
	}

	got, err := NewEngine(s).Spread(context.Background(), map[string]float64{"a": 1.0}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("budget 3 should visit exactly 3 units, visited %d: %v", len(got), got)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, ok := got[id]; !ok {
			t.Fatalf("best-first walk should visit %s first, got %v", id, got)
		}
	}
}

func TestSpreadZeroBudgetVisitsNothing(t *testing.T) {
	s := store.NewMemoryStore()
	putWithLinks(t, s, "a")
	got, err := NewEngine(s).Spread(context.Background(), map[string]float64{"a": 1.0}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("zero budget must visit nothing, got %v", got)
	}
}

func TestSpreadFiltersLinkTypes(t *testing.T) {
	s := store.NewMemoryStore()
	putWithLinks(t, s, "t")
	putWithLinks(t, s, "sem")
	putWithLinks(t, s, "a",
		types.Link{SourceID: "a", TargetID: "t", Type: types.TemporalLink, Weight: 0.9},
		types.Link{SourceID: "a", TargetID: "sem", Type: types.SemanticLink, Weight: 0.9},
	)

	got, err := NewEngine(s).Spread(context.Background(), map[string]float64{"a": 1.0}, 10,
		[]types.LinkType{types.TemporalLink})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got["t"]; !ok {
		t.Fatal("temporal neighbor should be reached")
	}
	if _, ok := got["sem"]; ok {
		t.Fatal("semantic neighbor must be excluded by the link-type filter")
	}
}

func TestSpreadCancelledContext(t *testing.T) {
	s := store.NewMemoryStore()
	putWithLinks(t, s, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewEngine(s).Spread(ctx, map[string]float64{"a": 1.0}, 10, nil); err == nil {
		t.Fatal("expected a context error")
	}
}
