package store

import (
	"math"
	"sort"
	"strings"

	"github.com/memora-ai/memora/pkg/types"
	"github.com/memora-ai/memora/pkg/utils"
)

// RankByCosine scores units against the query vector and returns those at or
// above the threshold, best first. Shared by every scan-based backend so the
// ordering and tie-break rules stay identical across stores.
func RankByCosine(units []*types.MemoryUnit, vector []float32, threshold float64, limit int) []ScoredUnit {
	var out []ScoredUnit
	for _, u := range units {
		if len(u.Embedding) == 0 {
			continue
		}
		sim := utils.Cosine(vector, u.Embedding)
		if sim < threshold {
			continue
		}
		out = append(out, ScoredUnit{Unit: u, Score: sim})
	}
	SortScored(out)
	return Truncate(out, limit)
}

// RankBM25 scores units against the query with BM25 and returns positive
// matches, best first.
func RankBM25(units []*types.MemoryUnit, query string, k1, b float64, limit int) []ScoredUnit {
	terms := Tokenize(query)
	if len(terms) == 0 || len(units) == 0 {
		return nil
	}

	type doc struct {
		unit *types.MemoryUnit
		tf   map[string]int
		len  int
	}
	docs := make([]doc, 0, len(units))
	var totalLen int
	for _, u := range units {
		toks := Tokenize(u.Text)
		tf := make(map[string]int, len(toks))
		for _, t := range toks {
			tf[t]++
		}
		docs = append(docs, doc{unit: u, tf: tf, len: len(toks)})
		totalLen += len(toks)
	}
	avgLen := float64(totalLen) / float64(len(docs))

	df := make(map[string]int, len(terms))
	for _, t := range terms {
		for _, d := range docs {
			if d.tf[t] > 0 {
				df[t]++
			}
		}
	}

	var out []ScoredUnit
	n := float64(len(docs))
	for _, d := range docs {
		var score float64
		for _, t := range terms {
			f := float64(d.tf[t])
			if f == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[t])+0.5)/(float64(df[t])+0.5))
			denom := f + k1*(1-b+b*float64(d.len)/avgLen)
			score += idf * f * (k1 + 1) / denom
		}
		if score > 0 {
			out = append(out, ScoredUnit{Unit: d.unit, Score: score})
		}
	}
	SortScored(out)
	return Truncate(out, limit)
}

// SortScored orders by score descending, then most recent event time, then
// id, so repeated queries are reproducible.
func SortScored(out []ScoredUnit) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Unit.EventAt.Equal(out[j].Unit.EventAt) {
			return out[i].Unit.EventAt.After(out[j].Unit.EventAt)
		}
		return out[i].Unit.ID < out[j].Unit.ID
	})
}

// Truncate keeps the first limit entries; limit <= 0 keeps all.
func Truncate(out []ScoredUnit, limit int) []ScoredUnit {
	if limit > 0 && len(out) > limit {
		return out[:limit]
	}
	return out
}

// Tokenize lowercases and splits on anything outside [a-z0-9].
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}
