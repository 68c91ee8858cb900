package memora

import (
	"context"
	"fmt"
	"strings"

	"github.com/memora-ai/memora/pkg/llm"
	"github.com/memora-ai/memora/pkg/opinions"
	"github.com/memora-ai/memora/pkg/search"
	"github.com/memora-ai/memora/pkg/types"
)

const thinkSystemPrompt = `You are the reasoning layer of an agent's long-term memory.
Answer the question using only the memories provided, in plain prose.
Say so plainly when the memories do not contain the answer. Do not invent facts.`

// ThinkRequest asks the memory to answer a question from what it knows.
type ThinkRequest struct {
	AgentID string `json:"agent_id"`
	Query   string `json:"query"`
	Budget  *int   `json:"budget,omitempty"`
	TopK    int    `json:"top_k,omitempty"`
}

// BasedOn groups the supporting memories of an answer by fact type.
type BasedOn struct {
	World   []*types.MemoryUnit `json:"world"`
	Agent   []*types.MemoryUnit `json:"agent"`
	Opinion []*types.MemoryUnit `json:"opinion"`
}

// ThinkResult is an answer with its supporting memories. NewOpinions is part
// of the wire contract but always empty: opinions form asynchronously after
// the answer returns, so none exist yet at response time.
type ThinkResult struct {
	Text        string   `json:"text"`
	BasedOn     BasedOn  `json:"based_on"`
	NewOpinions []string `json:"new_opinions"`
}

// Think retrieves the memories relevant to the question, synthesizes an
// answer from them, and schedules background opinion formation on the
// exchange. The answer returns before any opinion work starts; opinion
// failures never reach the caller.
func (m *Memory) Think(ctx context.Context, req ThinkRequest) (*ThinkResult, error) {
	if m.chat == nil {
		return nil, fmt.Errorf("think requires a chat client")
	}
	found, err := m.Search(ctx, SearchRequest{
		AgentID:  req.AgentID,
		Query:    req.Query,
		Budget:   req.Budget,
		TopK:     req.TopK,
		Reranker: search.RerankerHeuristic,
	})
	if err != nil {
		return nil, err
	}

	result := &ThinkResult{NewOpinions: []string{}}
	for _, c := range found.Results {
		switch c.Unit.FactType {
		case types.FactWorld:
			result.BasedOn.World = append(result.BasedOn.World, c.Unit)
		case types.FactAgent:
			result.BasedOn.Agent = append(result.BasedOn.Agent, c.Unit)
		case types.FactOpinion:
			result.BasedOn.Opinion = append(result.BasedOn.Opinion, c.Unit)
		}
	}

	answer, err := m.chat.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: thinkSystemPrompt},
		{Role: llm.RoleUser, Content: thinkPrompt(req.Query, result.BasedOn)},
	})
	if err != nil {
		return nil, types.NewCollaboratorError("llm", err)
	}
	result.Text = strings.TrimSpace(answer)

	if m.former != nil {
		m.former.FormAsync(req.AgentID, req.Query, result.Text)
	}
	return result, nil
}

func thinkPrompt(query string, basedOn BasedOn) string {
	var b strings.Builder
	writeSection := func(title string, units []*types.MemoryUnit) {
		if len(units) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s:\n", title)
		for _, u := range units {
			fmt.Fprintf(&b, "- %s\n", search.FormatDocument(u))
		}
		b.WriteString("\n")
	}
	writeSection("Facts about the world", basedOn.World)
	writeSection("Facts about yourself", basedOn.Agent)
	writeSection("Opinions you previously formed", basedOn.Opinion)
	if b.Len() == 0 {
		b.WriteString("No relevant memories were found.\n\n")
	}
	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}

// opinionSink stores one formed opinion through the normal ingestion path so
// it gets embedded and linked like any other unit.
func (m *Memory) opinionSink(ctx context.Context, agentID string, op opinions.Opinion) error {
	confidence := op.Confidence
	_, err := m.Put(ctx, PutRequest{
		AgentID:    agentID,
		Text:       op.Text,
		FactType:   types.FactOpinion,
		Confidence: &confidence,
	})
	return err
}
