// Package entity resolves extracted entity mentions to canonical identities.
package entity

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/memora-ai/memora/pkg/store"
	"github.com/memora-ai/memora/pkg/types"
)

const (
	// DefaultAcceptThreshold is the minimum composite score for a mention to
	// resolve to an existing entity instead of minting a new one.
	DefaultAcceptThreshold = 0.6

	nameWeight     = 0.5
	cooccurWeight  = 0.3
	temporalWeight = 0.2

	// recencyHalfLife controls how fast temporal proximity decays with time
	// since an entity was last mentioned.
	recencyHalfLife = 30 * 24 * time.Hour
)

// Resolution is the outcome for one mention.
type Resolution struct {
	Mention types.Mention
	Entity  *types.Entity
	Created bool
	Score   float64
}

// Resolver disambiguates mentions against the entities already in the store.
type Resolver struct {
	store     store.Store
	threshold float64
	now       func() time.Time
}

// NewResolver creates a resolver. A non-positive threshold selects
// DefaultAcceptThreshold.
func NewResolver(s store.Store, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = DefaultAcceptThreshold
	}
	return &Resolver{store: s, threshold: threshold, now: time.Now}
}

// Resolve maps each mention to an existing or newly minted entity and updates
// the winning entity's variant set, unit references, and last-seen time.
// Mentions from the same call provide co-occurrence context for each other:
// a candidate sharing memory units with entities already resolved here scores
// higher. Candidates are drawn only from entities of the mention's type; a
// type mismatch is not an error, it simply leaves those entities out.
func (r *Resolver) Resolve(ctx context.Context, mentions []types.Mention) ([]Resolution, error) {
	out := make([]Resolution, 0, len(mentions))
	contextUnits := make(map[string]struct{})

	for _, m := range mentions {
		candidates, err := r.store.EntitiesByType(ctx, m.Type)
		if err != nil {
			return nil, types.NewCollaboratorError("store", err)
		}

		var best *types.Entity
		var bestScore float64
		for _, cand := range candidates {
			score := r.score(m, cand, contextUnits)
			if best == nil || score > bestScore ||
				(score == bestScore && cand.LastSeen.After(best.LastSeen)) {
				best = cand
				bestScore = score
			}
		}

		res := Resolution{Mention: m, Score: bestScore}
		if best != nil && bestScore >= r.threshold {
			res.Entity = best
		} else {
			res.Entity = &types.Entity{
				ID:        uuid.New().String(),
				Name:      m.Name,
				Type:      m.Type,
				FirstSeen: m.SeenAt,
			}
			res.Created = true
			res.Score = 0
		}

		res.Entity.AddVariant(m.Name)
		res.Entity.LastSeen = m.SeenAt
		if m.UnitID != "" && !containsString(res.Entity.UnitIDs, m.UnitID) {
			res.Entity.UnitIDs = append(res.Entity.UnitIDs, m.UnitID)
		}
		if err := r.store.PutEntity(ctx, res.Entity); err != nil {
			return nil, types.NewCollaboratorError("store", err)
		}

		for _, id := range res.Entity.UnitIDs {
			contextUnits[id] = struct{}{}
		}
		out = append(out, res)
	}
	return out, nil
}

// score computes 0.5·name + 0.3·co-occurrence + 0.2·temporal proximity.
func (r *Resolver) score(m types.Mention, cand *types.Entity, contextUnits map[string]struct{}) float64 {
	name := nameSimilarity(m.Name, cand)

	var shared int
	for _, id := range cand.UnitIDs {
		if _, ok := contextUnits[id]; ok {
			shared++
		}
	}
	cooccur := float64(shared) / float64(shared+1)

	age := m.SeenAt.Sub(cand.LastSeen)
	if age < 0 {
		age = 0
	}
	proximity := math.Exp2(-float64(age) / float64(recencyHalfLife))

	return nameWeight*name + cooccurWeight*cooccur + temporalWeight*proximity
}

// nameSimilarity returns 1 for a known surface form and a normalized
// Levenshtein similarity otherwise.
func nameSimilarity(name string, cand *types.Entity) float64 {
	if cand.HasVariant(name) {
		return 1
	}
	best := levenshteinSimilarity(name, cand.Name)
	for _, v := range cand.Variants {
		if s := levenshteinSimilarity(name, v); s > best {
			best = s
		}
	}
	return best
}

func levenshteinSimilarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = minInt(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func minInt(xs ...int) int {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
