package memora

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/memora-ai/memora/pkg/search"
	"github.com/memora-ai/memora/pkg/types"
)

// Stage names the phases a query moves through. Every query advances
// Idle -> Retrieving -> Fusing -> Reranking -> Diversifying -> Done; an
// unrecoverable error from any stage moves it to Failed instead. Reranking is
// the only skippable stage, taken when the caller selects no reranker.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageRetrieving   Stage = "retrieving"
	StageFusing       Stage = "fusing"
	StageReranking    Stage = "reranking"
	StageDiversifying Stage = "diversifying"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// StageTransition is one recorded state change of the pipeline.
type StageTransition struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// StrategyTraceEntry records where one unit ranked in one strategy list.
type StrategyTraceEntry struct {
	UnitID string  `json:"unit_id"`
	Rank   int     `json:"rank"`
	Score  float64 `json:"score"`
}

// FusionTraceEntry records a unit's fused score and which lists fed it.
type FusionTraceEntry struct {
	UnitID     string         `json:"unit_id"`
	FusedScore float64        `json:"fused_score"`
	Ranks      map[string]int `json:"ranks"`
}

// RerankTraceEntry records how reranking moved a unit.
type RerankTraceEntry struct {
	UnitID      string  `json:"unit_id"`
	FusedScore  float64 `json:"fused_score"`
	RerankScore float64 `json:"rerank_score"`
	Delta       int     `json:"delta"` // positions gained (positive) or lost
}

// Trace is the optional diagnostic record of one query. Accumulating it
// never changes the result.
type Trace struct {
	Transitions []StageTransition               `json:"transitions"`
	Strategies  map[string][]StrategyTraceEntry `json:"strategies"`
	Fusion      []FusionTraceEntry              `json:"fusion"`
	Rerank      []RerankTraceEntry              `json:"rerank,omitempty"`
	Reranker    string                          `json:"reranker,omitempty"`
}

// pipeline drives one query through the retrieval stages.
type pipeline struct {
	coordinator *search.Coordinator
	lambda      float64
	logger      *slog.Logger

	state Stage
	trace *Trace
}

func newPipeline(coordinator *search.Coordinator, lambda float64, traced bool, logger *slog.Logger) *pipeline {
	p := &pipeline{
		coordinator: coordinator,
		lambda:      lambda,
		logger:      logger,
		state:       StageIdle,
	}
	if traced {
		p.trace = &Trace{Strategies: make(map[string][]StrategyTraceEntry)}
	}
	return p
}

// Run executes the stages in order. Each stage's output is the next stage's
// sole input. A nil reranker bypasses Reranking, with the fused score carried
// as the rerank score so diversification still has a relevance signal.
func (p *pipeline) Run(ctx context.Context, req search.Request, reranker search.Reranker) ([]*types.RetrievalCandidate, *Trace, error) {
	p.transition(StageRetrieving)
	lists, err := p.coordinator.Retrieve(ctx, req)
	if err != nil {
		p.fail(err)
		return nil, p.trace, err
	}
	if p.trace != nil {
		for name, list := range lists {
			entries := make([]StrategyTraceEntry, len(list))
			for i, su := range list {
				entries[i] = StrategyTraceEntry{UnitID: su.Unit.ID, Rank: i + 1, Score: su.Score}
			}
			p.trace.Strategies[name] = entries
		}
	}

	p.transition(StageFusing)
	fused := search.FuseRRF(lists)
	if p.trace != nil {
		for _, c := range fused {
			p.trace.Fusion = append(p.trace.Fusion, FusionTraceEntry{
				UnitID:     c.Unit.ID,
				FusedScore: c.FusedScore,
				Ranks:      c.Ranks,
			})
		}
	}

	if reranker != nil {
		p.transition(StageReranking)
		fusedOrder := make(map[string]int, len(fused))
		for i, c := range fused {
			fusedOrder[c.Unit.ID] = i
		}
		fused, err = reranker.Rerank(ctx, req.Query, fused)
		if err != nil {
			err = fmt.Errorf("rerank: %w", err)
			p.fail(err)
			return nil, p.trace, err
		}
		if p.trace != nil {
			p.trace.Reranker = reranker.Name()
			for i, c := range fused {
				p.trace.Rerank = append(p.trace.Rerank, RerankTraceEntry{
					UnitID:      c.Unit.ID,
					FusedScore:  c.FusedScore,
					RerankScore: c.RerankScore,
					Delta:       fusedOrder[c.Unit.ID] - i,
				})
			}
		}
	} else {
		for _, c := range fused {
			c.RerankScore = c.FusedScore
		}
	}

	p.transition(StageDiversifying)
	topK := req.TopK
	if topK <= 0 {
		topK = len(fused)
	}
	final := search.Diversify(fused, topK, p.lambda)

	p.transition(StageDone)
	return final, p.trace, nil
}

func (p *pipeline) transition(to Stage) {
	if p.trace != nil {
		p.trace.Transitions = append(p.trace.Transitions, StageTransition{
			From: p.state, To: to, At: time.Now().UTC(),
		})
	}
	p.state = to
}

func (p *pipeline) fail(err error) {
	from := p.state
	p.transition(StageFailed)
	p.logger.Error("retrieval pipeline failed", "stage", from, "error", err)
}
