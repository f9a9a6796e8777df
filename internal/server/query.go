package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/snapknow/internal/models"
	"github.com/raphaelgruber/snapknow/internal/service"
)

type queryRequest struct {
	Query       string   `json:"query" binding:"required"`
	Threshold   *float64 `json:"threshold"`
	TopK        *int     `json:"top_k"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Topic       string   `json:"topic"`
	Stream      *bool    `json:"stream"`
}

func (req queryRequest) options() service.QueryOptions {
	return service.QueryOptions{
		Threshold: req.Threshold,
		TopK:      req.TopK,
		Filter: models.ListFilter{
			Category:    req.Category,
			Subcategory: req.Subcategory,
			Topic:       req.Topic,
		},
	}
}

// handleQuery answers a natural-language question over the stored knowledge.
// By default the response is a Server-Sent Events stream: a context event
// with the retrieved sources, token events as the answer is generated, and a
// final done event with the full answer. Set "stream": false for a single
// JSON response instead.
func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	if req.Stream != nil && !*req.Stream {
		s.handleQuerySync(c, req)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	for ev := range s.retrieval.Stream(ctx, req.Query, req.options()) {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal stream event", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			// Client went away; the context cancellation stops generation.
			s.logger.Debug("stream write failed", "error", err)
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleQuerySync(c *gin.Context, req queryRequest) {
	answer, hits, err := s.retrieval.Answer(c.Request.Context(), req.Query, req.options())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"answer":  answer,
		"sources": service.SourceRefs(hits),
	})
}
