// Package dto defines the request and response shapes of the HTTP API.
package dto

import (
	"errors"
	"strings"
	"time"

	"github.com/memora-ai/memora/pkg/types"
)

// MaxTextLength bounds ingested fact text.
const MaxTextLength = 10000

// ErrTextTooLong rejects oversized fact text.
var ErrTextTooLong = errors.New("text exceeds maximum length")

// PutRequest is the body of POST /api/v1/memories.
type PutRequest struct {
	AgentID    string     `json:"agent_id" binding:"required"`
	Text       string     `json:"text" binding:"required"`
	Context    string     `json:"context,omitempty"`
	FactType   string     `json:"fact_type"`
	EventAt    *time.Time `json:"event_at,omitempty"`
	Confidence *float64   `json:"confidence,omitempty"`
	DocumentID string     `json:"document_id,omitempty"`
	Mentions   []Mention  `json:"mentions,omitempty"`
}

// Mention is a pre-extracted entity reference in a put request.
type Mention struct {
	Name string `json:"name" binding:"required"`
	Type string `json:"type,omitempty"`
}

// Validate performs validation on PutRequest.
func (r *PutRequest) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return errors.New("text cannot be empty")
	}
	if len(r.Text) > MaxTextLength {
		return ErrTextTooLong
	}
	if r.FactType != "" && !types.ValidFactType(r.FactType) {
		return errors.New("invalid fact_type: must be world, agent, or opinion")
	}
	return nil
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	AgentID   string   `json:"agent_id" binding:"required"`
	Query     string   `json:"query" binding:"required"`
	FactTypes []string `json:"fact_types,omitempty"`
	Budget    *int     `json:"budget,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
	Reranker  string   `json:"reranker,omitempty"`
	Trace     bool     `json:"trace,omitempty"`
}

// ThinkRequest is the body of POST /api/v1/think.
type ThinkRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
	Query   string `json:"query" binding:"required"`
	Budget  *int   `json:"budget,omitempty"`
	TopK    int    `json:"top_k,omitempty"`
}

// MemoryFact is one memory unit in API responses.
type MemoryFact struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Context    string    `json:"context,omitempty"`
	FactType   string    `json:"fact_type"`
	EventAt    time.Time `json:"event_at"`
	Confidence *float64  `json:"confidence,omitempty"`
	Score      *float64  `json:"score,omitempty"`
	Rank       int       `json:"rank,omitempty"`
}

// FromUnit converts a stored unit for the API.
func FromUnit(u *types.MemoryUnit) MemoryFact {
	return MemoryFact{
		ID:         u.ID,
		Text:       u.Text,
		Context:    u.Context,
		FactType:   string(u.FactType),
		EventAt:    u.EventAt,
		Confidence: u.Confidence,
	}
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
