package opinions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/memora-ai/memora/pkg/llm"
)

const formSystemPrompt = `You extract opinions an AI agent may have formed while answering a question.
An opinion is a subjective judgement, preference, or working belief, not a restatement of facts.
Return a JSON object {"opinions": [{"text": "...", "confidence": 0.0}]} where each text is a
self-contained statement starting with an explicit subject, and confidence is in [0, 1].
Return {"opinions": []} when the exchange contains nothing opinion-worthy.`

// Opinion is one extracted judgement with the model's confidence in it.
type Opinion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Sink stores one formed opinion for an agent. The root ingestion path
// implements it so opinions get the same linking as any other unit.
type Sink func(ctx context.Context, agentID string, op Opinion) error

// Former extracts opinions from question/answer exchanges and stores them
// through the sink, all on the background pool.
type Former struct {
	llm    llm.Client
	pool   *Pool
	sink   Sink
	logger *slog.Logger
}

// NewFormer creates a former over the given chat client and pool.
func NewFormer(client llm.Client, pool *Pool, sink Sink, logger *slog.Logger) *Former {
	if logger == nil {
		logger = slog.Default()
	}
	return &Former{llm: client, pool: pool, sink: sink, logger: logger}
}

// FormAsync schedules opinion formation for one exchange and returns
// immediately. Every failure inside the task is logged and swallowed; the
// originating request is long gone by the time this runs.
func (f *Former) FormAsync(agentID, question, answer string) {
	f.pool.Submit(func(ctx context.Context) {
		ops, err := f.extract(ctx, question, answer)
		if err != nil {
			f.logger.Warn("opinion extraction failed", "agent_id", agentID, "error", err)
			return
		}
		for _, op := range ops {
			if op.Text == "" {
				continue
			}
			if op.Confidence < 0 {
				op.Confidence = 0
			} else if op.Confidence > 1 {
				op.Confidence = 1
			}
			if err := f.sink(ctx, agentID, op); err != nil {
				f.logger.Warn("opinion store failed", "agent_id", agentID, "error", err)
			}
		}
	})
}

func (f *Former) extract(ctx context.Context, question, answer string) ([]Opinion, error) {
	var out struct {
		Opinions []Opinion `json:"opinions"`
	}
	err := f.llm.ChatStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: formSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Question: %s\n\nAnswer: %s", question, answer)},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Opinions, nil
}
