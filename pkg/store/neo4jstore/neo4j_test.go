package neo4jstore

import (
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/memora-ai/memora/pkg/types"
)

func TestUnitFromNode(t *testing.T) {
	eventAt := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	node := neo4j.Node{Props: map[string]any{
		"id":           "u1",
		"agent_id":     "agent-1",
		"text":         "Alice moved to Berlin",
		"context":      "relocation",
		"fact_type":    "world",
		"document_id":  "doc-9",
		"access_count": int64(3),
		"confidence":   0.8,
		"event_at":     eventAt,
		"ingested_at":  eventAt.Add(time.Hour),
		"embedding":    []any{0.25, 0.5},
	}}

	u, err := unitFromNode(node)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || u.AgentID != "agent-1" || u.FactType != types.FactWorld {
		t.Fatalf("unit = %+v", u)
	}
	if u.AccessCount != 3 || u.Confidence == nil || *u.Confidence != 0.8 {
		t.Fatalf("access/confidence = %d, %v", u.AccessCount, u.Confidence)
	}
	if !u.EventAt.Equal(eventAt) {
		t.Fatalf("EventAt = %v", u.EventAt)
	}
	if len(u.Embedding) != 2 || u.Embedding[0] != 0.25 || u.Embedding[1] != 0.5 {
		t.Fatalf("Embedding = %v", u.Embedding)
	}
}

func TestUnitFromNodeToleratesMissingProps(t *testing.T) {
	// Nodes written by older schema versions can lack optional properties.
	node := neo4j.Node{Props: map[string]any{
		"id":       "u2",
		"agent_id": "agent-1",
		"text":     "partial record",
	}}

	u, err := unitFromNode(node)
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u2" || u.FactType != "" || u.Confidence != nil {
		t.Fatalf("unit = %+v, want zero values for absent props", u)
	}
	if u.Embedding != nil || u.AccessCount != 0 {
		t.Fatalf("unit = %+v, want no embedding and zero access count", u)
	}
}

func TestUnitFromNodeRejectsMalformedEmbedding(t *testing.T) {
	node := neo4j.Node{Props: map[string]any{
		"id":        "u3",
		"embedding": []any{"not a number"},
	}}
	if _, err := unitFromNode(node); err == nil {
		t.Fatal("expected an error for a non-numeric embedding element")
	}
}

func TestEntityFromNode(t *testing.T) {
	seen := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	node := neo4j.Node{Props: map[string]any{
		"id":         "e1",
		"name":       "Alice",
		"type":       "person",
		"first_seen": seen,
		"last_seen":  seen.AddDate(0, 1, 0),
		"variants":   []any{"Alice", "alice l"},
		"unit_ids":   []any{"u1"},
	}}

	e, err := entityFromNode(node)
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != "e1" || e.Type != types.EntityPerson || len(e.Variants) != 2 || len(e.UnitIDs) != 1 {
		t.Fatalf("entity = %+v", e)
	}
}
