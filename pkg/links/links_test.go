package links

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

func TestTemporalWeight(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	window := 72 * time.Hour

	tests := []struct {
		name   string
		other  time.Time
		want   float64
		inside bool
	}{
		{"same instant", base, 1.0, true},
		{"half window", base.Add(36 * time.Hour), 0.5, true},
		{"near edge floors at 0.3", base.Add(71 * time.Hour), 0.3, true},
		{"past window", base.Add(73 * time.Hour), 0, false},
		{"symmetric", base.Add(-36 * time.Hour), 0.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := TemporalWeight(base, tt.other, window)
			if ok != tt.inside {
				t.Fatalf("inside = %v, want %v", ok, tt.inside)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("weight = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSemanticWeightThresholdIsStrict(t *testing.T) {
	a := []float32{1, 0}
	if _, ok := SemanticWeight(a, a, 1.0); ok {
		t.Fatal("similarity equal to the threshold must not link")
	}
	w, ok := SemanticWeight(a, a, 0.7)
	if !ok || math.Abs(w-1) > 1e-6 {
		t.Fatalf("expected weight 1, got %v ok=%v", w, ok)
	}
	if _, ok := SemanticWeight(a, []float32{0, 1}, 0.7); ok {
		t.Fatal("orthogonal vectors must not link")
	}
}

func TestBuildCollectsAllLinkTypes(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	put := func(id string, at time.Time, emb []float32) {
		u := &types.MemoryUnit{
			ID: id, AgentID: "a", Text: "unit " + id + " text",
			FactType: types.FactWorld, EventAt: at, Embedding: emb,
		}
		if err := s.PutUnit(ctx, u, nil); err != nil {
			t.Fatal(err)
		}
	}
	put("near", base.Add(time.Hour), []float32{0, 1})
	put("far", base.Add(200*time.Hour), []float32{0, 1})
	put("similar", base.Add(500*time.Hour), []float32{1, 0})
	put("shared", base.Add(600*time.Hour), []float32{0, 1})

	unit := &types.MemoryUnit{
		ID: "new", AgentID: "a", Text: "the new unit",
		FactType: types.FactWorld, EventAt: base, Embedding: []float32{1, 0},
	}
	b := NewBuilder(s, 0, 0)
	got, err := b.Build(ctx, unit, []string{"shared", "new"})
	if err != nil {
		t.Fatal(err)
	}

	byKey := make(map[string]types.Link)
	for _, l := range got {
		if l.SourceID != "new" {
			t.Fatalf("link source should be the new unit, got %s", l.SourceID)
		}
		byKey[string(l.Type)+"/"+l.TargetID] = l
	}

	if l, ok := byKey["entity/shared"]; !ok || l.Weight != EntityLinkWeight {
		t.Fatalf("missing weight-1 entity link, got %+v", byKey)
	}
	if _, ok := byKey["entity/new"]; ok {
		t.Fatal("must not link a unit to itself")
	}
	if l, ok := byKey["temporal/near"]; !ok || l.Weight <= 0.9 {
		t.Fatalf("expected strong temporal link to the adjacent unit, got %+v", byKey)
	}
	if _, ok := byKey["temporal/far"]; ok {
		t.Fatal("unit outside the window must not get a temporal link")
	}
	if l, ok := byKey["semantic/similar"]; !ok || math.Abs(l.Weight-1) > 1e-6 {
		t.Fatalf("expected semantic link at cosine weight, got %+v", byKey)
	}
	if _, ok := byKey["semantic/shared"]; ok {
		t.Fatal("orthogonal unit must not get a semantic link")
	}
}

func TestBuildDeduplicatesPerPairAndType(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	other := &types.MemoryUnit{
		ID: "other", AgentID: "a", Text: "the other unit",
		FactType: types.FactWorld, EventAt: base, Embedding: []float32{1, 0},
	}
	if err := s.PutUnit(ctx, other, nil); err != nil {
		t.Fatal(err)
	}

	unit := &types.MemoryUnit{
		ID: "new", AgentID: "a", Text: "the new unit",
		FactType: types.FactWorld, EventAt: base, Embedding: []float32{1, 0},
	}
	// "other" qualifies temporally, semantically, and by shared entity, and is
	// listed twice: one link per type must come out.
	got, err := NewBuilder(s, 0, 0).Build(ctx, unit, []string{"other", "other"})
	if err != nil {
		t.Fatal(err)
	}
	counts := make(map[types.LinkType]int)
	for _, l := range got {
		counts[l.Type]++
	}
	if counts[types.EntityLink] != 1 || counts[types.TemporalLink] != 1 || counts[types.SemanticLink] != 1 {
		t.Fatalf("expected one link per type, got %v", counts)
	}
}
