package types

import (
	"strings"
	"time"
)

// FactType classifies a memory unit.
type FactType string

const (
	// FactWorld is general knowledge about the world.
	FactWorld FactType = "world"
	// FactAgent describes the agent's own identity and past actions.
	FactAgent FactType = "agent"
	// FactOpinion is a perspective the agent has formed, with a confidence score.
	FactOpinion FactType = "opinion"
)

// ValidFactType reports whether s names a known fact type.
func ValidFactType(s string) bool {
	switch FactType(s) {
	case FactWorld, FactAgent, FactOpinion:
		return true
	}
	return false
}

// EntityType classifies a canonical entity.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityPlace        EntityType = "place"
	EntityProduct      EntityType = "product"
	EntityConcept      EntityType = "concept"
	EntityOther        EntityType = "other"
)

// LinkType is the kind of edge between two memory units.
type LinkType string

const (
	// TemporalLink connects units whose event times fall within the temporal window.
	TemporalLink LinkType = "temporal"
	// SemanticLink connects units whose embeddings exceed the similarity threshold.
	SemanticLink LinkType = "semantic"
	// EntityLink connects units that mention the same resolved entity. Weight is
	// always 1.0 and never decays.
	EntityLink LinkType = "entity"
)

// MemoryUnit is one atomic, timestamped, embedded factual statement.
//
// Units are created at ingestion and are immutable afterwards except for the
// access count, which is incremented when the unit is returned by retrieval.
type MemoryUnit struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Text        string    `json:"text"`
	Context     string    `json:"context,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	EventAt     time.Time `json:"event_at"`
	IngestedAt  time.Time `json:"ingested_at"`
	FactType    FactType  `json:"fact_type"`
	AccessCount int64     `json:"access_count"`
	// Confidence is set for opinion units only.
	Confidence *float64 `json:"confidence,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
}

// Validate checks the invariants required before a unit may be stored.
func (u *MemoryUnit) Validate() error {
	if strings.TrimSpace(u.Text) == "" {
		return &ValidationError{Field: "text", Reason: "cannot be empty"}
	}
	if u.AgentID == "" {
		return &ValidationError{Field: "agent_id", Reason: "cannot be empty"}
	}
	if !ValidFactType(string(u.FactType)) {
		return &ValidationError{Field: "fact_type", Reason: "must be world, agent, or opinion"}
	}
	if u.Confidence != nil && u.FactType != FactOpinion {
		return &ValidationError{Field: "confidence", Reason: "only opinion units carry confidence"}
	}
	if !hasSubjectPredicate(u.Text) {
		return &ValidationError{Field: "text", Reason: "must contain an explicit subject and predicate"}
	}
	return nil
}

// hasSubjectPredicate is a cheap structural check: a self-contained factual
// statement needs at least two tokens, the first of which is not a bare verb
// fragment. The extraction collaborator is expected to deliver well-formed
// statements; this guards against fragments slipping through.
func hasSubjectPredicate(text string) bool {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return false
	}
	first := strings.ToLower(strings.Trim(fields[0], ".,!?"))
	switch first {
	case "is", "are", "was", "were", "has", "have", "had", "and", "or", "but":
		return false
	}
	return true
}

// Entity is a canonical identity behind one or more named mentions.
type Entity struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      EntityType `json:"type"`
	Variants  []string   `json:"variants,omitempty"`
	UnitIDs   []string   `json:"unit_ids,omitempty"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
}

// HasVariant reports whether name is already a known surface form.
func (e *Entity) HasVariant(name string) bool {
	if strings.EqualFold(e.Name, name) {
		return true
	}
	for _, v := range e.Variants {
		if strings.EqualFold(v, name) {
			return true
		}
	}
	return false
}

// AddVariant records a new surface form if it is not already known.
func (e *Entity) AddVariant(name string) {
	if !e.HasVariant(name) {
		e.Variants = append(e.Variants, name)
	}
}

// Mention is an extracted entity reference awaiting resolution.
type Mention struct {
	Name   string     `json:"name"`
	Type   EntityType `json:"type"`
	UnitID string     `json:"unit_id"`
	SeenAt time.Time  `json:"seen_at"`
}

// Link is a weighted, symmetric edge between two memory units. Links are
// created as a side effect of storing a unit and are never mutated.
type Link struct {
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Type     LinkType `json:"type"`
	Weight   float64  `json:"weight"`
}

// Neighbor is one traversal step: the unit on the far side of a link.
type Neighbor struct {
	UnitID string   `json:"unit_id"`
	Type   LinkType `json:"type"`
	Weight float64  `json:"weight"`
}

// TimeRange is a half-open-free inclusive event time window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Center returns the midpoint of the range.
func (r TimeRange) Center() time.Time {
	return r.Start.Add(r.End.Sub(r.Start) / 2)
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// RetrievalCandidate is the per-query record carried through the pipeline.
// It exists only for the duration of one query and is never persisted.
type RetrievalCandidate struct {
	Unit *MemoryUnit `json:"unit"`

	// Per-strategy 1-indexed rank and raw score, keyed by strategy name.
	Ranks  map[string]int     `json:"ranks,omitempty"`
	Scores map[string]float64 `json:"scores,omitempty"`

	FusedScore  float64 `json:"fused_score"`
	RerankScore float64 `json:"rerank_score"`
	FinalRank   int     `json:"final_rank"`
}

// NewCandidate wraps a unit with empty rank/score maps.
func NewCandidate(unit *MemoryUnit) *RetrievalCandidate {
	return &RetrievalCandidate{
		Unit:   unit,
		Ranks:  make(map[string]int),
		Scores: make(map[string]float64),
	}
}

// ListCount returns the number of strategy lists the candidate appeared in.
func (c *RetrievalCandidate) ListCount() int {
	return len(c.Ranks)
}
