package opinions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/memora-ai/memora/pkg/llm"
)

// fakeChat returns a canned structured payload, or an error.
type fakeChat struct {
	payload string
	err     error
}

func (f *fakeChat) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return f.payload, f.err
}

func (f *fakeChat) ChatStructured(ctx context.Context, messages []llm.Message, out any) error {
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.payload), out)
}

func (f *fakeChat) Close() error { return nil }

// collectSink records every opinion stored through it.
type collectSink struct {
	mu  sync.Mutex
	got []Opinion
}

func (c *collectSink) sink(ctx context.Context, agentID string, op Opinion) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, op)
	return nil
}

func TestFormAsyncStoresExtractedOpinions(t *testing.T) {
	chat := &fakeChat{payload: `{"opinions": [
		{"text": "The agent prefers concise answers", "confidence": 0.8},
		{"text": "", "confidence": 0.9},
		{"text": "The agent distrusts stale data", "confidence": 1.7}
	]}`}
	pool := NewPool(1, 4, testLogger())
	sink := &collectSink{}
	f := NewFormer(chat, pool, sink.sink, testLogger())

	f.FormAsync("agent-1", "what should I do", "keep it short")
	pool.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.got) != 2 {
		t.Fatalf("stored %d opinions, want 2 (empty text skipped)", len(sink.got))
	}
	if sink.got[1].Confidence != 1 {
		t.Fatalf("confidence should clamp to 1, got %v", sink.got[1].Confidence)
	}
}

func TestFormAsyncSwallowsExtractionFailure(t *testing.T) {
	pool := NewPool(1, 4, testLogger())
	sink := &collectSink{}
	f := NewFormer(&fakeChat{err: errors.New("model down")}, pool, sink.sink, testLogger())

	f.FormAsync("agent-1", "question", "answer")
	pool.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.got) != 0 {
		t.Fatalf("nothing should be stored on failure, got %v", sink.got)
	}
}

func TestFormAsyncDoesNotBlockCaller(t *testing.T) {
	pool := NewPool(1, 1, testLogger())
	defer pool.Close()
	block := make(chan struct{})
	defer close(block)
	pool.Submit(func(ctx context.Context) { <-block })
	pool.Submit(func(ctx context.Context) {})

	f := NewFormer(&fakeChat{payload: `{"opinions": []}`}, pool, (&collectSink{}).sink, testLogger())
	done := make(chan struct{})
	go func() {
		// Queue is full: the submission is dropped, never waited on.
		f.FormAsync("agent-1", "q", "a")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("FormAsync blocked the caller")
	}
}
