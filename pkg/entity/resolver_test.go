package entity

import (
	"context"
	"testing"
	"time"

	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

func seedEntity(t *testing.T, s store.Store, e *types.Entity) {
	t.Helper()
	if err := s.PutEntity(context.Background(), e); err != nil {
		t.Fatal(err)
	}
}

func TestResolveExactVariantMatch(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, &types.Entity{
		ID: "e1", Name: "Google", Type: types.EntityOrganization,
		Variants: []string{"Google Inc"}, LastSeen: now.Add(-time.Hour),
	})

	r := NewResolver(s, 0)
	got, err := r.Resolve(context.Background(), []types.Mention{
		{Name: "google inc", Type: types.EntityOrganization, SeenAt: now, UnitID: "u1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one resolution, got %d", len(got))
	}
	res := got[0]
	if res.Created || res.Entity.ID != "e1" {
		t.Fatalf("expected match to e1, got %+v", res)
	}
	// Variant scoring alone gives 0.5, plus fresh recency clears 0.6.
	if res.Score < DefaultAcceptThreshold {
		t.Fatalf("score %v below accept threshold", res.Score)
	}
	if !containsString(res.Entity.UnitIDs, "u1") {
		t.Fatal("unit reference not recorded on the entity")
	}
	if !res.Entity.LastSeen.Equal(now) {
		t.Fatalf("LastSeen not advanced, got %v", res.Entity.LastSeen)
	}
}

func TestResolveMintsNewEntityBelowThreshold(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, &types.Entity{
		ID: "e1", Name: "Acme Corporation", Type: types.EntityOrganization,
		LastSeen: now.Add(-365 * 24 * time.Hour),
	})

	r := NewResolver(s, 0)
	got, err := r.Resolve(context.Background(), []types.Mention{
		{Name: "Zenith Labs", Type: types.EntityOrganization, SeenAt: now, UnitID: "u1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	res := got[0]
	if !res.Created {
		t.Fatalf("dissimilar mention should mint a new entity, matched %+v", res.Entity)
	}
	if res.Score != 0 {
		t.Fatalf("a minted entity carries score 0, got %v", res.Score)
	}
	if res.Entity.ID == "e1" || res.Entity.ID == "" {
		t.Fatalf("bad minted id %q", res.Entity.ID)
	}
	if res.Entity.Name != "Zenith Labs" || res.Entity.Type != types.EntityOrganization {
		t.Fatalf("minted entity fields wrong: %+v", res.Entity)
	}

	orgs, err := s.EntitiesByType(context.Background(), types.EntityOrganization)
	if err != nil {
		t.Fatal(err)
	}
	if len(orgs) != 2 {
		t.Fatalf("new entity not persisted, have %d", len(orgs))
	}
}

func TestResolveTypeScopesCandidates(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, &types.Entity{
		ID: "p1", Name: "Mercury", Type: types.EntityPerson, LastSeen: now,
	})

	r := NewResolver(s, 0)
	got, err := r.Resolve(context.Background(), []types.Mention{
		{Name: "Mercury", Type: types.EntityOrganization, SeenAt: now},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !got[0].Created {
		t.Fatal("a person entity must not capture an organization mention")
	}
}

func TestResolveCooccurrenceBreaksAmbiguity(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	// Two equally named candidates; only e1 shares units with the entity the
	// first mention resolves to.
	seedEntity(t, s, &types.Entity{
		ID: "e1", Name: "Jordan", Type: types.EntityPerson,
		UnitIDs: []string{"u1", "u2"}, LastSeen: now,
	})
	seedEntity(t, s, &types.Entity{
		ID: "e2", Name: "Jordan", Type: types.EntityPerson,
		UnitIDs: []string{"u9"}, LastSeen: now,
	})
	seedEntity(t, s, &types.Entity{
		ID: "ctx", Name: "Acme", Type: types.EntityOrganization,
		UnitIDs: []string{"u1", "u2"}, LastSeen: now,
	})

	r := NewResolver(s, 0)
	got, err := r.Resolve(context.Background(), []types.Mention{
		{Name: "Acme", Type: types.EntityOrganization, SeenAt: now},
		{Name: "Jordan", Type: types.EntityPerson, SeenAt: now},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got[1].Entity.ID != "e1" {
		t.Fatalf("co-occurring candidate should win, got %s", got[1].Entity.ID)
	}
}

func TestResolveTieGoesToMostRecent(t *testing.T) {
	s := store.NewMemoryStore()
	now := time.Now()
	seedEntity(t, s, &types.Entity{
		ID: "old", Name: "Phoenix", Type: types.EntityConcept, LastSeen: now.Add(-time.Hour),
	})
	seedEntity(t, s, &types.Entity{
		ID: "new", Name: "Phoenix", Type: types.EntityConcept, LastSeen: now.Add(-time.Hour),
	})
	// Bump one candidate's LastSeen: identical otherwise, recency decides.
	seedEntity(t, s, &types.Entity{
		ID: "new", Name: "Phoenix", Type: types.EntityConcept, LastSeen: now.Add(-time.Minute),
	})

	r := NewResolver(s, 0)
	got, err := r.Resolve(context.Background(), []types.Mention{
		{Name: "Phoenix", Type: types.EntityConcept, SeenAt: now},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Entity.ID != "new" {
		t.Fatalf("tie should go to the most recently seen entity, got %s", got[0].Entity.ID)
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"google", "Google", 1},
		{"", "", 1},
		{"abc", "abd", 1 - 1.0/3},
		{"abc", "xyz", 0},
		{"kitten", "sitting", 1 - 3.0/7},
	}
	for _, tt := range tests {
		if got := levenshteinSimilarity(tt.a, tt.b); got < tt.want-1e-9 || got > tt.want+1e-9 {
			t.Errorf("levenshteinSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
