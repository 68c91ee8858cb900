package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memora-ai/memora"
	"github.com/memora-ai/memora/pkg/server/dto"
	"github.com/memora-ai/memora/pkg/types"
)

// MemoryHandler handles ingestion, search, think, and delete requests.
type MemoryHandler struct {
	memory *memora.Memory
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(m *memora.Memory) *MemoryHandler {
	return &MemoryHandler{memory: m}
}

// Put handles POST /api/v1/memories.
func (h *MemoryHandler) Put(c *gin.Context) {
	var req dto.PutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	factType := types.FactType(req.FactType)
	if req.FactType == "" {
		factType = types.FactWorld
	}
	var eventAt time.Time
	if req.EventAt != nil {
		eventAt = *req.EventAt
	}
	mentions := make([]memora.MentionInput, 0, len(req.Mentions))
	for _, m := range req.Mentions {
		mentions = append(mentions, memora.MentionInput{Name: m.Name, Type: types.EntityType(m.Type)})
	}

	unit, err := h.memory.Put(c.Request.Context(), memora.PutRequest{
		AgentID:    req.AgentID,
		Text:       req.Text,
		Context:    req.Context,
		FactType:   factType,
		EventAt:    eventAt,
		Confidence: req.Confidence,
		DocumentID: req.DocumentID,
		Mentions:   mentions,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.FromUnit(unit))
}

// Search handles POST /api/v1/search.
func (h *MemoryHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	factTypes := make([]types.FactType, 0, len(req.FactTypes))
	for _, ft := range req.FactTypes {
		if !types.ValidFactType(ft) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid fact type: " + ft})
			return
		}
		factTypes = append(factTypes, types.FactType(ft))
	}

	res, err := h.memory.Search(c.Request.Context(), memora.SearchRequest{
		AgentID:   req.AgentID,
		Query:     req.Query,
		FactTypes: factTypes,
		Budget:    req.Budget,
		TopK:      req.TopK,
		Reranker:  req.Reranker,
		Trace:     req.Trace,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	facts := make([]dto.MemoryFact, len(res.Results))
	for i, cand := range res.Results {
		f := dto.FromUnit(cand.Unit)
		score := cand.RerankScore
		f.Score = &score
		f.Rank = cand.FinalRank
		facts[i] = f
	}
	body := gin.H{"results": facts}
	if res.Trace != nil {
		body["trace"] = res.Trace
	}
	c.JSON(http.StatusOK, body)
}

// Think handles POST /api/v1/think.
func (h *MemoryHandler) Think(c *gin.Context) {
	var req dto.ThinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	res, err := h.memory.Think(c.Request.Context(), memora.ThinkRequest{
		AgentID: req.AgentID,
		Query:   req.Query,
		Budget:  req.Budget,
		TopK:    req.TopK,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	toFacts := func(units []*types.MemoryUnit) []dto.MemoryFact {
		out := make([]dto.MemoryFact, len(units))
		for i, u := range units {
			out[i] = dto.FromUnit(u)
		}
		return out
	}
	c.JSON(http.StatusOK, gin.H{
		"text": res.Text,
		"based_on": gin.H{
			"world":   toFacts(res.BasedOn.World),
			"agent":   toFacts(res.BasedOn.Agent),
			"opinion": toFacts(res.BasedOn.Opinion),
		},
		"new_opinions": res.NewOpinions,
	})
}

// Get handles GET /api/v1/memories/:id.
func (h *MemoryHandler) Get(c *gin.Context) {
	unit, err := h.memory.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromUnit(unit))
}

// Delete handles DELETE /api/v1/memories/:id.
func (h *MemoryHandler) Delete(c *gin.Context) {
	if err := h.memory.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

func respondError(c *gin.Context, err error) {
	switch {
	case types.IsValidation(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, types.ErrRetrievalFailed):
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
	}
}
