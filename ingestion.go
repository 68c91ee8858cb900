package memora

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memora-ai/memora/pkg/entity"
	"github.com/memora-ai/memora/pkg/types"
)

// PutRequest is one fact to remember.
type PutRequest struct {
	AgentID  string         `json:"agent_id"`
	Text     string         `json:"text"`
	Context  string         `json:"context,omitempty"`
	FactType types.FactType `json:"fact_type"`
	// EventAt is when the fact happened; zero means now.
	EventAt time.Time `json:"event_at,omitempty"`
	// Confidence is required to be nil unless FactType is opinion.
	Confidence *float64 `json:"confidence,omitempty"`
	DocumentID string   `json:"document_id,omitempty"`
	// Mentions are pre-extracted entity references. When empty, a
	// capitalized-span heuristic extracts them from the text.
	Mentions []MentionInput `json:"mentions,omitempty"`
}

// MentionInput names an entity referenced by the fact.
type MentionInput struct {
	Name string           `json:"name"`
	Type types.EntityType `json:"type"`
}

// Put ingests one fact: embeds it, resolves its entity mentions, computes
// its temporal, semantic, and entity links, and stores unit and links in one
// transactional write. On success the returned unit carries its id and
// embedding.
func (m *Memory) Put(ctx context.Context, req PutRequest) (*types.MemoryUnit, error) {
	now := m.now().UTC()
	eventAt := req.EventAt
	if eventAt.IsZero() {
		eventAt = now
	}
	unit := &types.MemoryUnit{
		ID:         uuid.New().String(),
		AgentID:    req.AgentID,
		Text:       strings.TrimSpace(req.Text),
		Context:    req.Context,
		EventAt:    eventAt.UTC(),
		IngestedAt: now,
		FactType:   req.FactType,
		Confidence: req.Confidence,
		DocumentID: req.DocumentID,
	}
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	if m.embedder != nil {
		vec, err := m.embedder.EmbedSingle(ctx, unit.Text)
		if err != nil {
			return nil, types.NewCollaboratorError("embedder", err)
		}
		unit.Embedding = vec
	}

	mentions := make([]types.Mention, 0, len(req.Mentions))
	for _, mi := range req.Mentions {
		if mi.Name == "" {
			continue
		}
		t := mi.Type
		if t == "" {
			t = types.EntityOther
		}
		mentions = append(mentions, types.Mention{
			Name: mi.Name, Type: t, UnitID: unit.ID, SeenAt: unit.EventAt,
		})
	}
	if len(mentions) == 0 {
		mentions = extractMentions(unit.Text, unit.ID, unit.EventAt)
	}

	resolutions, err := m.resolver.Resolve(ctx, mentions)
	if err != nil {
		return nil, err
	}
	var shared []string
	seen := map[string]struct{}{unit.ID: {}}
	for _, res := range resolutions {
		for _, id := range res.Entity.UnitIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			shared = append(shared, id)
		}
	}

	unitLinks, err := m.linker.Build(ctx, unit, shared)
	if err != nil {
		return nil, err
	}

	if err := m.store.PutUnit(ctx, unit, unitLinks); err != nil {
		// The unit never landed; detach the references resolution made to it.
		m.detachEntityRefs(ctx, resolutions, unit.ID)
		return nil, err
	}
	return unit, nil
}

func (m *Memory) detachEntityRefs(ctx context.Context, resolutions []entity.Resolution, unitID string) {
	for _, res := range resolutions {
		e := res.Entity
		kept := e.UnitIDs[:0]
		for _, id := range e.UnitIDs {
			if id != unitID {
				kept = append(kept, id)
			}
		}
		e.UnitIDs = kept
		if err := m.store.PutEntity(ctx, e); err != nil {
			m.logger.Warn("entity cleanup failed", "entity_id", e.ID, "error", err)
		}
	}
}

var mentionPattern = regexp.MustCompile(`\b[A-Z][A-Za-z]*(?:\s+[A-Z][A-Za-z]*)*\b`)

// mentionStopwords excludes lone sentence-starting words that the
// capitalization heuristic would otherwise mistake for names.
var mentionStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "it": {}, "he": {}, "she": {}, "they": {},
	"we": {}, "i": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"my": {}, "his": {}, "her": {}, "its": {}, "our": {}, "their": {},
	"yesterday": {}, "today": {}, "tomorrow": {}, "when": {}, "after": {},
	"before": {}, "on": {}, "in": {}, "at": {}, "last": {}, "next": {},
}

// extractMentions is the fallback extractor: runs of capitalized words,
// typed "other" since the heuristic cannot classify them.
func extractMentions(text, unitID string, seenAt time.Time) []types.Mention {
	var out []types.Mention
	dedupe := make(map[string]struct{})
	for _, span := range mentionPattern.FindAllString(text, -1) {
		words := strings.Fields(span)
		if len(words) == 1 {
			if _, stop := mentionStopwords[strings.ToLower(words[0])]; stop {
				continue
			}
		}
		key := strings.ToLower(span)
		if _, ok := dedupe[key]; ok {
			continue
		}
		dedupe[key] = struct{}{}
		out = append(out, types.Mention{
			Name: span, Type: types.EntityOther, UnitID: unitID, SeenAt: seenAt,
		})
	}
	return out
}
